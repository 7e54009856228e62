package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/internal/pokeapi"
	"github.com/samvad-hq/pokedex-seeder/internal/storage"
)

// chainLinkRecords stores one record per species in the tree with its parent.
func chainLinkRecords(d pokeapi.EvolutionChain) []domain.SubRecord {
	return byKey(func(add func(k, v string)) {
		d.Walk(func(link pokeapi.ChainLink, parent *pokeapi.Ref) {
			from := ""
			if parent != nil {
				from = refID(*parent)
			}
			add(link.Species.Name, jsonValue(map[string]any{
				"species_id":      refID(link.Species),
				"evolves_from_id": from,
				"is_baby":         link.IsBaby,
			}))
		})
	})
}

// mapSpeciesToChains fills the species → chain cache used by the species pass.
func mapSpeciesToChains(_ context.Context, env *Env, chains []pokeapi.EvolutionChain) error {
	if env.Caches == nil {
		return nil
	}
	for _, chain := range chains {
		chain.Walk(func(link pokeapi.ChainLink, _ *pokeapi.Ref) {
			if id, err := link.Species.ID(); err == nil {
				env.Caches.EvolutionChain.Set(id, chain.ID)
			}
		})
	}
	env.log().DebugObj("species mapped to evolution chains", "evolution_map", map[string]any{
		"chains":  len(chains),
		"species": env.Caches.EvolutionChain.Len(),
	})
	return nil
}

// chainFor resolves the chain of a species from the run cache, falling back
// to the link carried by the species document when the cache was cleared.
func chainFor(env *Env, species pokeapi.PokemonSpecies) int {
	if env.Caches != nil {
		if id, ok := env.Caches.EvolutionChain.Get(species.ID); ok {
			return id
		}
	}
	if species.EvolutionChain != nil {
		if id, err := domain.IDFromURL(species.EvolutionChain.URL); err == nil {
			return id
		}
	}
	return 0
}

// linkEvolvesFrom records the pre-evolution of every seeded species. Species
// without one get an empty, seeded record set.
func linkEvolvesFrom(ctx context.Context, env *Env, species []pokeapi.PokemonSpecies) error {
	var errs []error
	for _, s := range species {
		var recs []domain.SubRecord
		if chain := chainFor(env, s); chain > 0 {
			recs = append(recs, domain.SubRecord{Key: "chain", Value: strconv.Itoa(chain)})
		}
		if s.EvolvesFromSpecies != nil {
			recs = append(recs, domain.SubRecord{Key: "from", Value: refID(*s.EvolvesFromSpecies)})
		}
		if err := env.Store.UpsertSubRecords(ctx, speciesTable, s.ID, domain.KindEvolution, recs); err != nil {
			errs = append(errs, fmt.Errorf("species %d: %w", s.ID, err))
		}
	}
	return errors.Join(errs...)
}

func pokedexEntryRecords(d pokeapi.Pokedex) []domain.SubRecord {
	return byKey(func(add func(k, v string)) {
		for _, e := range d.PokemonEntries {
			add(strconv.Itoa(e.EntryNumber), refID(e.PokemonSpecies))
		}
	})
}

// assignPokedexNumbers writes each species' number in every seeded pokedex
// onto the species row, then marks each pokedex whose species were all
// written. Species that are not stored are skipped.
func assignPokedexNumbers(ctx context.Context, env *Env, dexes []pokeapi.Pokedex) error {
	numbers := make(map[int][]domain.SubRecord)
	var order []int
	for _, dex := range dexes {
		for _, e := range dex.PokemonEntries {
			id, err := e.PokemonSpecies.ID()
			if err != nil {
				continue
			}
			if _, seen := numbers[id]; !seen {
				order = append(order, id)
			}
			numbers[id] = append(numbers[id], domain.SubRecord{Key: dex.Name, Value: strconv.Itoa(e.EntryNumber)})
		}
	}

	var (
		errs    []error
		skipped int
		failed  = make(map[int]bool)
	)
	for _, id := range order {
		if _, err := env.Store.Resource(ctx, speciesTable, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				skipped++
				continue
			}
			failed[id] = true
			errs = append(errs, err)
			continue
		}
		if err := env.Store.UpsertSubRecords(ctx, speciesTable, id, domain.KindPokedex, numbers[id]); err != nil {
			failed[id] = true
			errs = append(errs, fmt.Errorf("species %d: %w", id, err))
		}
	}

	for _, dex := range dexes {
		assigned := 0
		for _, e := range dex.PokemonEntries {
			if id, err := e.PokemonSpecies.ID(); err == nil {
				if failed[id] {
					assigned = -1
					break
				}
				assigned++
			}
		}
		if assigned < 0 {
			continue
		}
		rec := []domain.SubRecord{{Key: "species", Value: strconv.Itoa(assigned)}}
		if err := env.Store.UpsertSubRecords(ctx, pokedexTable, dex.ID, domain.KindPokedex, rec); err != nil {
			errs = append(errs, fmt.Errorf("pokedex %d: %w", dex.ID, err))
		}
	}

	env.log().InfoObj("pokedex numbers assigned", "pokedex_numbers", map[string]any{
		"pokedexes": len(dexes),
		"species":   len(order) - skipped,
		"skipped":   skipped,
		"failed":    len(failed),
	})
	return errors.Join(errs...)
}

func pokemonTypeRecords(d pokeapi.Pokemon) []domain.SubRecord {
	return byKey(func(add func(k, v string)) {
		for _, t := range d.Types {
			add(strconv.Itoa(t.Slot), jsonValue(map[string]string{"type": t.Type.Name, "type_id": refID(t.Type)}))
		}
	})
}

func pokemonAbilityRecords(d pokeapi.Pokemon) []domain.SubRecord {
	return byKey(func(add func(k, v string)) {
		for _, a := range d.Abilities {
			add(strconv.Itoa(a.Slot), jsonValue(map[string]any{
				"ability":    a.Ability.Name,
				"ability_id": refID(a.Ability),
				"is_hidden":  a.IsHidden,
			}))
		}
	})
}

func pokemonStatRecords(d pokeapi.Pokemon) []domain.SubRecord {
	return byKey(func(add func(k, v string)) {
		for _, s := range d.Stats {
			add(s.Stat.Name, jsonValue(map[string]int{"base_stat": s.BaseStat, "effort": s.Effort}))
		}
	})
}

func varietyRecords(d pokeapi.PokemonSpecies) []domain.SubRecord {
	return byKey(func(add func(k, v string)) {
		for _, v := range d.Varieties {
			add(v.Pokemon.Name, jsonValue(map[string]any{
				"pokemon_id": refID(v.Pokemon),
				"is_default": v.IsDefault,
			}))
		}
	})
}
