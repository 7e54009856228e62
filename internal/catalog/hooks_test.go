package catalog

import (
	"context"
	"testing"

	"github.com/samvad-hq/pokedex-seeder/internal/cache"
	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/internal/pokeapi"
)

func ref(endpoint, name string, id int) pokeapi.Ref {
	return pokeapi.Ref{Name: name, URL: docURL(endpoint, id)}
}

func bulbasaurChain() pokeapi.EvolutionChain {
	return pokeapi.EvolutionChain{
		ID: 1,
		Chain: pokeapi.ChainLink{
			Species: ref("pokemon-species", "bulbasaur", 1),
			EvolvesTo: []pokeapi.ChainLink{{
				Species: ref("pokemon-species", "ivysaur", 2),
				EvolvesTo: []pokeapi.ChainLink{{
					Species: ref("pokemon-species", "venusaur", 3),
				}},
			}},
		},
	}
}

func TestChainLinkRecordsCarryParents(t *testing.T) {
	recs := chainLinkRecords(bulbasaurChain())
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %+v", recs)
	}
	want := map[string]string{
		"bulbasaur": `{"evolves_from_id":"","is_baby":false,"species_id":"1"}`,
		"ivysaur":   `{"evolves_from_id":"1","is_baby":false,"species_id":"2"}`,
		"venusaur":  `{"evolves_from_id":"2","is_baby":false,"species_id":"3"}`,
	}
	for _, r := range recs {
		if want[r.Key] != r.Value {
			t.Fatalf("record %s = %s, want %s", r.Key, r.Value, want[r.Key])
		}
	}
}

func TestLinkEvolvesFromUsesChainMapping(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	env := &Env{Store: st, Caches: cache.NewRun()}

	if err := mapSpeciesToChains(ctx, env, []pokeapi.EvolutionChain{bulbasaurChain()}); err != nil {
		t.Fatalf("mapSpeciesToChains: %v", err)
	}
	if got, ok := env.Caches.EvolutionChain.Get(3); !ok || got != 1 {
		t.Fatalf("species 3 not mapped: %d %v", got, ok)
	}

	ivysaur := pokeapi.PokemonSpecies{Localized: pokeapi.Localized{ID: 2, Name: "ivysaur"}}
	from := ref("pokemon-species", "bulbasaur", 1)
	ivysaur.EvolvesFromSpecies = &from
	seedRow(t, st, speciesTable, 2)

	if err := linkEvolvesFrom(ctx, env, []pokeapi.PokemonSpecies{ivysaur}); err != nil {
		t.Fatalf("linkEvolvesFrom: %v", err)
	}
	recs, _ := st.SubRecords(ctx, speciesTable, 2, domain.KindEvolution)
	if len(recs) != 2 || recs[0].Key != "chain" || recs[0].Value != "1" || recs[1].Key != "from" || recs[1].Value != "1" {
		t.Fatalf("unexpected evolution records %+v", recs)
	}
}

func TestLinkEvolvesFromFallsBackToDocumentChain(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	env := &Env{Store: st, Caches: cache.NewRun()}
	env.Caches.ClearAll()

	species := pokeapi.PokemonSpecies{
		Localized:      pokeapi.Localized{ID: 133, Name: "eevee"},
		EvolutionChain: &pokeapi.APIResource{URL: docURL("evolution-chain", 67)},
	}
	seedRow(t, st, speciesTable, 133)

	if err := linkEvolvesFrom(ctx, env, []pokeapi.PokemonSpecies{species}); err != nil {
		t.Fatalf("linkEvolvesFrom: %v", err)
	}
	recs, _ := st.SubRecords(ctx, speciesTable, 133, domain.KindEvolution)
	if len(recs) != 1 || recs[0].Key != "chain" || recs[0].Value != "67" {
		t.Fatalf("unexpected evolution records %+v", recs)
	}

	kinds, _ := st.SeededKinds(ctx, speciesTable, 133)
	if len(kinds) != 1 || kinds[0] != domain.KindEvolution {
		t.Fatalf("unexpected kinds %v", kinds)
	}
}

func TestAssignPokedexNumbersSkipsMissingSpecies(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	env := &Env{Store: st}
	seedRow(t, st, speciesTable, 1)
	seedRow(t, st, speciesTable, 4)

	national := pokeapi.Pokedex{
		Localized: pokeapi.Localized{ID: 1, Name: "national"},
		PokemonEntries: []pokeapi.PokemonEntry{
			{EntryNumber: 1, PokemonSpecies: ref("pokemon-species", "bulbasaur", 1)},
			{EntryNumber: 4, PokemonSpecies: ref("pokemon-species", "charmander", 4)},
			{EntryNumber: 7, PokemonSpecies: ref("pokemon-species", "squirtle", 7)},
		},
	}
	kanto := pokeapi.Pokedex{
		Localized: pokeapi.Localized{ID: 2, Name: "kanto"},
		PokemonEntries: []pokeapi.PokemonEntry{
			{EntryNumber: 1, PokemonSpecies: ref("pokemon-species", "bulbasaur", 1)},
		},
	}
	if got := pokedexEntryRecords(national); len(got) != 3 || got[2].Key != "7" || got[2].Value != "7" {
		t.Fatalf("unexpected entry records %+v", got)
	}

	if err := assignPokedexNumbers(ctx, env, []pokeapi.Pokedex{national, kanto}); err != nil {
		t.Fatalf("assignPokedexNumbers: %v", err)
	}

	recs, _ := st.SubRecords(ctx, speciesTable, 1, domain.KindPokedex)
	if len(recs) != 2 || recs[0].Key != "kanto" || recs[1].Key != "national" {
		t.Fatalf("unexpected numbers for species 1: %+v", recs)
	}
	recs, _ = st.SubRecords(ctx, speciesTable, 4, domain.KindPokedex)
	if len(recs) != 1 || recs[0].Value != "4" {
		t.Fatalf("unexpected numbers for species 4: %+v", recs)
	}
	if _, err := st.Resource(ctx, speciesTable, 7); err == nil {
		t.Fatalf("missing species must not be created")
	}
	for _, dex := range []int{1, 2} {
		kinds, _ := st.SeededKinds(ctx, pokedexTable, dex)
		if len(kinds) != 1 || kinds[0] != domain.KindPokedex {
			t.Fatalf("pokedex %d not marked assigned: %v", dex, kinds)
		}
	}
}

func TestPokemonRecords(t *testing.T) {
	p := pokeapi.Pokemon{
		ID:   25,
		Name: "pikachu",
		Types: []pokeapi.PokemonType{
			{Slot: 1, Type: ref("type", "electric", 13)},
		},
		Abilities: []pokeapi.PokemonAbility{
			{Slot: 1, Ability: ref("ability", "static", 9)},
			{Slot: 3, IsHidden: true, Ability: ref("ability", "lightning-rod", 31)},
		},
		Stats: []pokeapi.PokemonStat{{BaseStat: 35, Effort: 0, Stat: ref("stat", "hp", 1)}},
	}

	if got := pokemonTypeRecords(p); len(got) != 1 || got[0].Value != `{"type":"electric","type_id":"13"}` {
		t.Fatalf("unexpected type records %+v", got)
	}
	abilities := pokemonAbilityRecords(p)
	if len(abilities) != 2 || abilities[1].Key != "3" || abilities[1].Value != `{"ability":"lightning-rod","ability_id":"31","is_hidden":true}` {
		t.Fatalf("unexpected ability records %+v", abilities)
	}
	if got := pokemonStatRecords(p); len(got) != 1 || got[0].Key != "hp" || got[0].Value != `{"base_stat":35,"effort":0}` {
		t.Fatalf("unexpected stat records %+v", got)
	}
}

func TestExtractHelpers(t *testing.T) {
	links := linkRecords(map[string][]pokeapi.Ref{
		"half_damage_to": {ref("type", "steel", 9)},
		"no_damage_to":   {ref("type", "ghost", 8)},
		"empty":          nil,
	})
	if len(links) != 2 || links[0].Key != "half_damage_to/steel" || links[0].Value != "9" {
		t.Fatalf("unexpected link records %+v", links)
	}

	recs := byKey(func(add func(k, v string)) {
		add("en", "first")
		add(" ", "ignored")
		add("en", "second")
	})
	if len(recs) != 1 || recs[0].Value != "second" {
		t.Fatalf("unexpected records %+v", recs)
	}

	if got := cleanText("When\fthe\u00adre is\n  rain"); got != "When there is rain" {
		t.Fatalf("cleanText = %q", got)
	}
}
