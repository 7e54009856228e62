package catalog

import (
	"context"
	"strconv"
	"strings"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/internal/pokeapi"
	"github.com/samvad-hq/pokedex-seeder/internal/seeding"
)

// Category is a type-erased EntitySpec.
type Category struct {
	Name     string
	Endpoint string
	Table    string
	Phase    string
	Required []string
	bind     func(cfg domain.CategoryConfig, f Fetcher, env *Env) seeding.Job
}

// Job binds the category to a config and its dependencies.
func (c Category) Job(cfg domain.CategoryConfig, f Fetcher, env *Env) seeding.Job {
	return c.bind(cfg, f, env)
}

func define[D Document](phase string, spec EntitySpec[D]) Category {
	if spec.Endpoint == "" {
		spec.Endpoint = spec.Category
	}
	return Category{
		Name:     spec.Category,
		Endpoint: spec.Endpoint,
		Table:    spec.Table,
		Phase:    phase,
		Required: append(append([]string(nil), spec.Required...), spec.PostKinds...),
		bind: func(cfg domain.CategoryConfig, f Fetcher, env *Env) seeding.Job {
			return seeding.NewJob[D](cfg, NewEntityProcessor(spec, f, env))
		},
	}
}

// localizedSpec describes a category whose documents carry localized names,
// required alongside every extra kind.
func localizedSpec[D localizedDoc](endpoint, category string, extra ...KindExtractor[D]) EntitySpec[D] {
	kinds := append([]KindExtractor[D]{namesKind[D]()}, extra...)
	required := make([]string, 0, len(kinds))
	for _, k := range kinds {
		required = append(required, k.Kind)
	}
	return EntitySpec[D]{
		Category: category,
		Endpoint: endpoint,
		Table:    tableName(category),
		Required: required,
		Kinds:    kinds,
	}
}

func localized[D localizedDoc](phase, endpoint, category string, extra ...KindExtractor[D]) Category {
	return define(phase, localizedSpec(endpoint, category, extra...))
}

func withPost[D Document](spec EntitySpec[D], post func(context.Context, *Env, []D) error, kinds ...string) EntitySpec[D] {
	spec.Post = post
	spec.PostKinds = kinds
	return spec
}

func tableName(category string) string {
	return strings.ReplaceAll(category, "-", "_")
}

const (
	PhaseFoundation     = "foundation"
	PhaseInfrastructure = "infrastructure"
	PhaseSupplementary  = "supplementary"
	PhaseMechanics      = "mechanics"
	PhaseMoves          = "moves"
	PhaseItems          = "items"
	PhaseMisc           = "misc-systems"
	PhaseLocations      = "locations"
	PhaseEncounters     = "encounters"
	PhaseSpecies        = "species"
)

// PhaseOrder lists phases in dependency order.
var PhaseOrder = []string{
	PhaseFoundation,
	PhaseInfrastructure,
	PhaseSupplementary,
	PhaseMechanics,
	PhaseMoves,
	PhaseItems,
	PhaseMisc,
	PhaseLocations,
	PhaseEncounters,
	PhaseSpecies,
}

const (
	speciesTable = "pokemon_species"
	pokedexTable = "pokedexes"
)

// Categories returns every category in run order.
func Categories() []Category {
	return []Category{
		localized[pokeapi.Language](PhaseFoundation, "language", "languages"),
		localized(PhaseFoundation, "region", "regions", KindExtractor[pokeapi.Region]{
			Kind: domain.KindLinks,
			Extract: func(d pokeapi.Region) []domain.SubRecord {
				return linkRecords(map[string][]pokeapi.Ref{"main_generation": optRef(d.MainGeneration)})
			},
		}),
		localized(PhaseFoundation, "generation", "generations", KindExtractor[pokeapi.Generation]{
			Kind: domain.KindLinks,
			Extract: func(d pokeapi.Generation) []domain.SubRecord {
				return linkRecords(map[string][]pokeapi.Ref{"main_region": {d.MainRegion}})
			},
		}),

		localized[pokeapi.Version](PhaseInfrastructure, "version", "versions"),
		define(PhaseInfrastructure, EntitySpec[pokeapi.VersionGroup]{
			Category: "version-groups",
			Endpoint: "version-group",
			Table:    "version_groups",
			Kinds: []KindExtractor[pokeapi.VersionGroup]{{
				Kind: domain.KindLinks,
				Extract: func(d pokeapi.VersionGroup) []domain.SubRecord {
					return linkRecords(map[string][]pokeapi.Ref{"generation": {d.Generation}})
				},
			}},
		}),

		localized[pokeapi.Stat](PhaseSupplementary, "stat", "stats"),
		localized[pokeapi.Localized](PhaseSupplementary, "egg-group", "egg-groups"),
		localized[pokeapi.Localized](PhaseSupplementary, "pokemon-color", "pokemon-colors"),
		localized[pokeapi.Localized](PhaseSupplementary, "pokemon-shape", "pokemon-shapes"),
		localized[pokeapi.Localized](PhaseSupplementary, "pokemon-habitat", "pokemon-habitats"),
		define(PhaseSupplementary, EntitySpec[pokeapi.GrowthRate]{
			Category: "growth-rates",
			Endpoint: "growth-rate",
			Table:    "growth_rates",
			Required: []string{domain.KindFlavor},
			Kinds: []KindExtractor[pokeapi.GrowthRate]{{
				Kind:    domain.KindFlavor,
				Extract: func(d pokeapi.GrowthRate) []domain.SubRecord { return descriptionRecords(d.Descriptions) },
			}},
		}),

		localized(PhaseMechanics, "type", "types", KindExtractor[pokeapi.Type]{
			Kind: domain.KindDamage,
			Extract: func(d pokeapi.Type) []domain.SubRecord {
				r := d.DamageRelations
				return linkRecords(map[string][]pokeapi.Ref{
					"double_damage_from": r.DoubleDamageFrom,
					"double_damage_to":   r.DoubleDamageTo,
					"half_damage_from":   r.HalfDamageFrom,
					"half_damage_to":     r.HalfDamageTo,
					"no_damage_from":     r.NoDamageFrom,
					"no_damage_to":       r.NoDamageTo,
				})
			},
		}),
		localized(PhaseMechanics, "nature", "natures", KindExtractor[pokeapi.Nature]{
			Kind: domain.KindLinks,
			Extract: func(d pokeapi.Nature) []domain.SubRecord {
				return linkRecords(map[string][]pokeapi.Ref{
					"decreased_stat": optRef(d.DecreasedStat),
					"increased_stat": optRef(d.IncreasedStat),
				})
			},
		}),
		localized(PhaseMechanics, "move-damage-class", "move-damage-classes", KindExtractor[pokeapi.MoveDamageClass]{
			Kind:    domain.KindFlavor,
			Extract: func(d pokeapi.MoveDamageClass) []domain.SubRecord { return descriptionRecords(d.Descriptions) },
		}),

		localized(PhaseMoves, "move", "moves",
			KindExtractor[pokeapi.Move]{
				Kind:    domain.KindEffects,
				Extract: func(d pokeapi.Move) []domain.SubRecord { return effectRecords(d.EffectEntries) },
			},
			KindExtractor[pokeapi.Move]{
				Kind:    domain.KindFlavor,
				Extract: func(d pokeapi.Move) []domain.SubRecord { return flavorRecords(d.FlavorTextEntries) },
			},
			KindExtractor[pokeapi.Move]{
				Kind: domain.KindLinks,
				Extract: func(d pokeapi.Move) []domain.SubRecord {
					return linkRecords(map[string][]pokeapi.Ref{"type": {d.Type}, "damage_class": optRef(d.DamageClass)})
				},
			},
		),

		localized(PhaseItems, "item-category", "item-categories", KindExtractor[pokeapi.ItemCategory]{
			Kind: domain.KindLinks,
			Extract: func(d pokeapi.ItemCategory) []domain.SubRecord {
				return linkRecords(map[string][]pokeapi.Ref{"pocket": optRef(d.Pocket)})
			},
		}),
		localized(PhaseItems, "item", "items",
			KindExtractor[pokeapi.Item]{
				Kind:    domain.KindEffects,
				Extract: func(d pokeapi.Item) []domain.SubRecord { return effectRecords(d.EffectEntries) },
			},
			KindExtractor[pokeapi.Item]{
				Kind:    domain.KindFlavor,
				Extract: func(d pokeapi.Item) []domain.SubRecord { return flavorRecords(d.FlavorTextEntries) },
			},
		),

		localized(PhaseMisc, "ability", "abilities",
			KindExtractor[pokeapi.Ability]{
				Kind:    domain.KindEffects,
				Extract: func(d pokeapi.Ability) []domain.SubRecord { return effectRecords(d.EffectEntries) },
			},
			KindExtractor[pokeapi.Ability]{
				Kind:    domain.KindFlavor,
				Extract: func(d pokeapi.Ability) []domain.SubRecord { return flavorRecords(d.FlavorTextEntries) },
			},
		),
		localized[pokeapi.Localized](PhaseMisc, "berry-firmness", "berry-firmnesses"),

		localized(PhaseLocations, "location", "locations", KindExtractor[pokeapi.Location]{
			Kind: domain.KindLinks,
			Extract: func(d pokeapi.Location) []domain.SubRecord {
				return linkRecords(map[string][]pokeapi.Ref{"region": optRef(d.Region)})
			},
		}),

		localized[pokeapi.EncounterMethod](PhaseEncounters, "encounter-method", "encounter-methods"),

		define(PhaseSpecies, EntitySpec[pokeapi.EvolutionChain]{
			Category: "evolution-chains",
			Endpoint: "evolution-chain",
			Table:    "evolution_chains",
			Required: []string{domain.KindLinks},
			Kinds: []KindExtractor[pokeapi.EvolutionChain]{{
				Kind:    domain.KindLinks,
				Extract: chainLinkRecords,
			}},
			Post: mapSpeciesToChains,
		}),
		define(PhaseSpecies, withPost(localizedSpec("pokemon-species", "pokemon-species", KindExtractor[pokeapi.PokemonSpecies]{
			Kind:    domain.KindFlavor,
			Extract: func(d pokeapi.PokemonSpecies) []domain.SubRecord { return flavorRecords(d.FlavorTextEntries) },
		}), linkEvolvesFrom, domain.KindEvolution)),
		define(PhaseSpecies, EntitySpec[pokeapi.Pokedex]{
			Category: "pokedexes",
			Endpoint: "pokedex",
			Table:    pokedexTable,
			Required: []string{domain.KindNames, domain.KindEntries},
			Kinds: []KindExtractor[pokeapi.Pokedex]{
				namesKind[pokeapi.Pokedex](),
				{Kind: domain.KindEntries, Extract: pokedexEntryRecords},
			},
			Post:      assignPokedexNumbers,
			PostKinds: []string{domain.KindPokedex},
		}),
		define(PhaseSpecies, EntitySpec[pokeapi.Pokemon]{
			Category: "pokemon",
			Table:    "pokemon",
			Required: []string{domain.KindTypes, domain.KindAbilities, domain.KindStats},
			Kinds: []KindExtractor[pokeapi.Pokemon]{
				{Kind: domain.KindTypes, Extract: pokemonTypeRecords},
				{Kind: domain.KindAbilities, Extract: pokemonAbilityRecords},
				{Kind: domain.KindStats, Extract: pokemonStatRecords},
			},
		}),
		define(PhaseSpecies, EntitySpec[pokeapi.PokemonSpecies]{
			Category:   "species-varieties",
			Endpoint:   "pokemon-species",
			Table:      speciesTable,
			Required:   []string{domain.KindVarieties},
			Kinds:      []KindExtractor[pokeapi.PokemonSpecies]{{Kind: domain.KindVarieties, Extract: varietyRecords}},
			AttachOnly: true,
		}),
		define(PhaseSpecies, EntitySpec[pokeapi.Gender]{
			Category: "genders",
			Endpoint: "gender",
			Table:    "genders",
			Required: []string{domain.KindGender},
			Kinds: []KindExtractor[pokeapi.Gender]{{
				Kind: domain.KindGender,
				Extract: func(d pokeapi.Gender) []domain.SubRecord {
					return byKey(func(add func(k, v string)) {
						for _, s := range d.PokemonSpeciesDetails {
							add(s.PokemonSpecies.Name, strconv.Itoa(s.Rate))
						}
					})
				},
			}},
		}),
	}
}
