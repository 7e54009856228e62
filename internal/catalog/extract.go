package catalog

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/internal/pokeapi"
)

type localizedDoc interface {
	Document
	LocalizedNames() []pokeapi.LocalizedName
}

// namesKind stores one record per language.
func namesKind[D localizedDoc]() KindExtractor[D] {
	return KindExtractor[D]{Kind: domain.KindNames, Extract: func(d D) []domain.SubRecord {
		return byKey(func(add func(k, v string)) {
			for _, n := range d.LocalizedNames() {
				add(n.Language.Name, n.Name)
			}
		})
	}}
}

// byKey collects records, the last value winning for a repeated key, sorted
// by key.
func byKey(fill func(add func(k, v string))) []domain.SubRecord {
	vals := make(map[string]string)
	fill(func(k, v string) {
		if k = strings.TrimSpace(k); k != "" {
			vals[k] = v
		}
	})
	out := make([]domain.SubRecord, 0, len(vals))
	for k, v := range vals {
		out = append(out, domain.SubRecord{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func jsonValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

func effectRecords(entries []pokeapi.VerboseEffect) []domain.SubRecord {
	return byKey(func(add func(k, v string)) {
		for _, e := range entries {
			add(e.Language.Name, jsonValue(map[string]string{
				"effect":       cleanText(e.Effect),
				"short_effect": cleanText(e.ShortEffect),
			}))
		}
	})
}

// flavorRecords keys entries by language and version (or version group).
func flavorRecords(entries []pokeapi.FlavorText) []domain.SubRecord {
	return byKey(func(add func(k, v string)) {
		for _, e := range entries {
			version := ""
			switch {
			case e.Version != nil:
				version = e.Version.Name
			case e.VersionGroup != nil:
				version = e.VersionGroup.Name
			}
			add(e.Language.Name+"/"+version, cleanText(e.FlavorText))
		}
	})
}

func descriptionRecords(entries []pokeapi.Description) []domain.SubRecord {
	return byKey(func(add func(k, v string)) {
		for _, d := range entries {
			add(d.Language.Name, cleanText(d.Description))
		}
	})
}

// linkRecords stores references under "<relation>/<name>" with the target id
// as the value.
func linkRecords(links map[string][]pokeapi.Ref) []domain.SubRecord {
	return byKey(func(add func(k, v string)) {
		for rel, refs := range links {
			for _, r := range refs {
				add(rel+"/"+r.Name, refID(r))
			}
		}
	})
}

func refID(r pokeapi.Ref) string {
	id, err := r.ID()
	if err != nil {
		return ""
	}
	return strconv.Itoa(id)
}

func optRef(r *pokeapi.Ref) []pokeapi.Ref {
	if r == nil {
		return nil
	}
	return []pokeapi.Ref{*r}
}

// cleanText folds the control characters upstream uses for line breaks.
func cleanText(s string) string {
	return strings.Join(strings.Fields(strings.NewReplacer("\f", " ", "\u00ad", "").Replace(s)), " ")
}
