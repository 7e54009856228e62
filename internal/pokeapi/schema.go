// Package pokeapi holds the upstream document schemas. Every document is
// decoded into one of these types and validated before it reaches storage.
package pokeapi

import (
	"github.com/samvad-hq/pokedex-seeder/internal/domain"
)

// Ref is a named link to another upstream document.
type Ref = domain.NamedResourceRef

// APIResource is an unnamed link.
type APIResource struct {
	URL string `json:"url" validate:"required"`
}

type LocalizedName struct {
	Name     string `json:"name"`
	Language Ref    `json:"language"`
}

type VerboseEffect struct {
	Effect      string `json:"effect"`
	ShortEffect string `json:"short_effect"`
	Language    Ref    `json:"language"`
}

type FlavorText struct {
	FlavorText   string `json:"flavor_text"`
	Language     Ref    `json:"language"`
	Version      *Ref   `json:"version,omitempty"`
	VersionGroup *Ref   `json:"version_group,omitempty"`
}

type Description struct {
	Description string `json:"description"`
	Language    Ref    `json:"language"`
}

// Localized is the common shape of simple lookup documents.
type Localized struct {
	ID    int             `json:"id" validate:"required,gt=0"`
	Name  string          `json:"name" validate:"required"`
	Names []LocalizedName `json:"names" validate:"dive"`
}

func (l Localized) Identity() (int, string) { return l.ID, l.Name }

func (l Localized) LocalizedNames() []LocalizedName { return l.Names }

type Language struct {
	Localized
	Official bool   `json:"official"`
	ISO639   string `json:"iso639"`
	ISO3166  string `json:"iso3166"`
}

type Region struct {
	Localized
	MainGeneration *Ref `json:"main_generation,omitempty"`
}

type Generation struct {
	Localized
	MainRegion Ref `json:"main_region"`
}

type Version struct {
	Localized
	VersionGroup Ref `json:"version_group"`
}

type VersionGroup struct {
	ID         int    `json:"id" validate:"required,gt=0"`
	Name       string `json:"name" validate:"required"`
	Order      int    `json:"order"`
	Generation Ref    `json:"generation"`
}

func (v VersionGroup) Identity() (int, string) { return v.ID, v.Name }

type Stat struct {
	Localized
	GameIndex    int  `json:"game_index"`
	IsBattleOnly bool `json:"is_battle_only"`
}

type GrowthRate struct {
	ID           int           `json:"id" validate:"required,gt=0"`
	Name         string        `json:"name" validate:"required"`
	Formula      string        `json:"formula"`
	Descriptions []Description `json:"descriptions" validate:"dive"`
}

func (g GrowthRate) Identity() (int, string) { return g.ID, g.Name }

type DamageRelations struct {
	DoubleDamageFrom []Ref `json:"double_damage_from"`
	DoubleDamageTo   []Ref `json:"double_damage_to"`
	HalfDamageFrom   []Ref `json:"half_damage_from"`
	HalfDamageTo     []Ref `json:"half_damage_to"`
	NoDamageFrom     []Ref `json:"no_damage_from"`
	NoDamageTo       []Ref `json:"no_damage_to"`
}

type Type struct {
	Localized
	Generation      *Ref            `json:"generation,omitempty"`
	DamageClass     *Ref            `json:"move_damage_class,omitempty"`
	DamageRelations DamageRelations `json:"damage_relations"`
}

type Nature struct {
	Localized
	DecreasedStat *Ref `json:"decreased_stat,omitempty"`
	IncreasedStat *Ref `json:"increased_stat,omitempty"`
}

type MoveDamageClass struct {
	Localized
	Descriptions []Description `json:"descriptions" validate:"dive"`
}

type Move struct {
	Localized
	Accuracy          *int            `json:"accuracy"`
	Power             *int            `json:"power"`
	PP                *int            `json:"pp"`
	Priority          int             `json:"priority"`
	Type              Ref             `json:"type"`
	DamageClass       *Ref            `json:"damage_class,omitempty"`
	EffectEntries     []VerboseEffect `json:"effect_entries" validate:"dive"`
	FlavorTextEntries []FlavorText    `json:"flavor_text_entries" validate:"dive"`
}

type ItemCategory struct {
	Localized
	Pocket *Ref `json:"pocket,omitempty"`
}

type Item struct {
	Localized
	Cost              int             `json:"cost"`
	Category          Ref             `json:"category"`
	EffectEntries     []VerboseEffect `json:"effect_entries" validate:"dive"`
	FlavorTextEntries []FlavorText    `json:"flavor_text_entries" validate:"dive"`
}

type Ability struct {
	Localized
	IsMainSeries      bool            `json:"is_main_series"`
	Generation        *Ref            `json:"generation,omitempty"`
	EffectEntries     []VerboseEffect `json:"effect_entries" validate:"dive"`
	FlavorTextEntries []FlavorText    `json:"flavor_text_entries" validate:"dive"`
}

type Location struct {
	Localized
	Region *Ref `json:"region,omitempty"`
}

type EncounterMethod struct {
	Localized
	Order int `json:"order"`
}

// ChainLink is one node of an evolution tree.
type ChainLink struct {
	IsBaby    bool        `json:"is_baby"`
	Species   Ref         `json:"species"`
	EvolvesTo []ChainLink `json:"evolves_to" validate:"dive"`
}

type EvolutionChain struct {
	ID    int       `json:"id" validate:"required,gt=0"`
	Chain ChainLink `json:"chain"`
}

func (e EvolutionChain) Identity() (int, string) { return e.ID, "" }

// Walk visits every link of the tree depth-first with its parent species,
// which is nil for the root.
func (e EvolutionChain) Walk(visit func(link ChainLink, parent *Ref)) {
	var walk func(ChainLink, *Ref)
	walk = func(link ChainLink, parent *Ref) {
		visit(link, parent)
		species := link.Species
		for _, next := range link.EvolvesTo {
			walk(next, &species)
		}
	}
	walk(e.Chain, nil)
}

type SpeciesVariety struct {
	IsDefault bool `json:"is_default"`
	Pokemon   Ref  `json:"pokemon"`
}

type PokemonSpecies struct {
	Localized
	Order              int              `json:"order"`
	GenderRate         int              `json:"gender_rate"`
	CaptureRate        int              `json:"capture_rate"`
	BaseHappiness      *int             `json:"base_happiness"`
	IsBaby             bool             `json:"is_baby"`
	IsLegendary        bool             `json:"is_legendary"`
	IsMythical         bool             `json:"is_mythical"`
	Generation         Ref              `json:"generation"`
	GrowthRate         *Ref             `json:"growth_rate,omitempty"`
	Color              *Ref             `json:"color,omitempty"`
	Shape              *Ref             `json:"shape,omitempty"`
	Habitat            *Ref             `json:"habitat,omitempty"`
	EggGroups          []Ref            `json:"egg_groups" validate:"dive"`
	EvolutionChain     *APIResource     `json:"evolution_chain,omitempty"`
	EvolvesFromSpecies *Ref             `json:"evolves_from_species,omitempty"`
	Varieties          []SpeciesVariety `json:"varieties" validate:"dive"`
	FlavorTextEntries  []FlavorText     `json:"flavor_text_entries" validate:"dive"`
}

type PokemonEntry struct {
	EntryNumber    int `json:"entry_number" validate:"gt=0"`
	PokemonSpecies Ref `json:"pokemon_species"`
}

type Pokedex struct {
	Localized
	IsMainSeries   bool           `json:"is_main_series"`
	Region         *Ref           `json:"region,omitempty"`
	PokemonEntries []PokemonEntry `json:"pokemon_entries" validate:"dive"`
}

type PokemonType struct {
	Slot int `json:"slot"`
	Type Ref `json:"type"`
}

type PokemonAbility struct {
	Slot     int  `json:"slot"`
	IsHidden bool `json:"is_hidden"`
	Ability  Ref  `json:"ability"`
}

type PokemonStat struct {
	BaseStat int `json:"base_stat"`
	Effort   int `json:"effort"`
	Stat     Ref `json:"stat"`
}

type Pokemon struct {
	ID             int              `json:"id" validate:"required,gt=0"`
	Name           string           `json:"name" validate:"required"`
	Height         int              `json:"height"`
	Weight         int              `json:"weight"`
	BaseExperience *int             `json:"base_experience"`
	IsDefault      bool             `json:"is_default"`
	Order          int              `json:"order"`
	Species        Ref              `json:"species"`
	Types          []PokemonType    `json:"types" validate:"dive"`
	Abilities      []PokemonAbility `json:"abilities" validate:"dive"`
	Stats          []PokemonStat    `json:"stats" validate:"dive"`
}

func (p Pokemon) Identity() (int, string) { return p.ID, p.Name }

type GenderSpeciesDetail struct {
	Rate           int `json:"rate"`
	PokemonSpecies Ref `json:"pokemon_species"`
}

type Gender struct {
	ID                    int                   `json:"id" validate:"required,gt=0"`
	Name                  string                `json:"name" validate:"required"`
	PokemonSpeciesDetails []GenderSpeciesDetail `json:"pokemon_species_details" validate:"dive"`
}

func (g Gender) Identity() (int, string) { return g.ID, g.Name }
