package domain

import "encoding/json"

// Resource is one persisted entity row, keyed by (Table, ID).
type Resource struct {
	Table   string
	ID      int
	Name    string
	Payload json.RawMessage
}

// SubRecord is a dependent record of a resource (a localized name, an effect
// text, a relationship). It is keyed by (Table, ResourceID, Kind, Key).
type SubRecord struct {
	Table      string
	ResourceID int
	Kind       string
	Key        string
	Value      string
}

// Common sub-resource kinds.
const (
	KindNames     = "names"
	KindEffects   = "effects"
	KindFlavor    = "flavor-texts"
	KindTypes     = "types"
	KindAbilities = "abilities"
	KindStats     = "stats"
	KindDamage    = "damage-relations"
	KindLinks     = "links"
	KindEvolution = "evolves-from"
	KindPokedex   = "pokedex-numbers"
	KindVarieties = "varieties"
	KindGender    = "gender-rates"
	KindEntries   = "entries"
)
