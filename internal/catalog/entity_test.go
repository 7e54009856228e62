package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/pokedex-seeder/internal/cache"
	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/internal/ledger"
	"github.com/samvad-hq/pokedex-seeder/internal/resilience"
	"github.com/samvad-hq/pokedex-seeder/internal/resource"
	"github.com/samvad-hq/pokedex-seeder/internal/seeding"
	"github.com/samvad-hq/pokedex-seeder/internal/storage"
)

const testBase = "https://pokeapi.test/api/v2"

func docURL(endpoint string, id int) string {
	return fmt.Sprintf("%s/%s/%d/", testBase, endpoint, id)
}

// fakeFetcher serves canned documents by url.
type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]any
	calls []string
}

func (f *fakeFetcher) FetchInto(_ context.Context, url string, _ domain.Mode, dst any) error {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	doc, ok := f.docs[url]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("no document at %s", url)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

type staticLister struct{ refs []domain.NamedResourceRef }

func (l staticLister) FetchAllFromEndpoint(context.Context, string, domain.Mode, resource.PageOptions) ([]domain.NamedResourceRef, error) {
	return l.refs, nil
}

func openStore(t *testing.T) storage.Store {
	t.Helper()
	st, err := storage.NewStore(context.Background(), "sqlite", storage.Options{SQLitePath: filepath.Join(t.TempDir(), "seed.db")})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newEngine(t *testing.T, refs []domain.NamedResourceRef) (*seeding.Engine, *ledger.Ledger) {
	t.Helper()
	led := ledger.New()
	e, err := seeding.New(seeding.Options{
		Lister: staticLister{refs: refs},
		Ledger: led,
		Retry:  resilience.New(time.Millisecond, nil, nil),
	}, nil)
	if err != nil {
		t.Fatalf("seeding.New: %v", err)
	}
	return e, led
}

func category(t *testing.T, name string) Category {
	t.Helper()
	for _, c := range Categories() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no category %q", name)
	return Category{}
}

func english(name string) []map[string]any {
	return []map[string]any{{"name": name, "language": map[string]string{"name": "en", "url": docURL("language", 9)}}}
}

func abilityDoc(id int) map[string]any {
	return map[string]any{
		"id":    id,
		"name":  fmt.Sprintf("ability-%d", id),
		"names": english(fmt.Sprintf("Ability %d", id)),
		"effect_entries": []map[string]any{{
			"effect":       "Does\fthings.",
			"short_effect": "Does things.",
			"language":     map[string]string{"name": "en", "url": docURL("language", 9)},
		}},
		"flavor_text_entries": []map[string]any{{
			"flavor_text":   "Flavor\ntext",
			"language":      map[string]string{"name": "en", "url": docURL("language", 9)},
			"version_group": map[string]string{"name": "red-blue", "url": docURL("version-group", 1)},
		}},
	}
}

func seedRow(t *testing.T, st storage.Store, table string, id int, kinds ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := st.UpsertResource(ctx, domain.Resource{Table: table, ID: id, Name: fmt.Sprintf("row-%d", id), Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("UpsertResource: %v", err)
	}
	for _, k := range kinds {
		if err := st.UpsertSubRecords(ctx, table, id, k, []domain.SubRecord{{Key: "en", Value: "x"}}); err != nil {
			t.Fatalf("UpsertSubRecords: %v", err)
		}
	}
}

func TestSeedTopsUpPartiallySeededRows(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	c := category(t, "abilities")

	fetch := &fakeFetcher{docs: map[string]any{}}
	var refs []domain.NamedResourceRef
	for id := 1; id <= 10; id++ {
		url := docURL("ability", id)
		refs = append(refs, domain.NamedResourceRef{Name: fmt.Sprintf("ability-%d", id), URL: url})
		fetch.docs[url] = abilityDoc(id)
		switch {
		case id <= 7:
			seedRow(t, st, c.Table, id, domain.KindNames, domain.KindEffects, domain.KindFlavor)
		case id <= 9:
			seedRow(t, st, c.Table, id, domain.KindNames, domain.KindEffects)
		}
	}

	e, led := newEngine(t, refs)
	env := &Env{Store: st, Caches: cache.NewRun()}
	job := c.Job(domain.NewCategoryConfig(c.Endpoint, domain.ModePremium).Named(c.Name), fetch, env)
	if err := job.Run(ctx, e); err != nil {
		t.Fatalf("Run: %v", err)
	}

	prog, ok := led.Progress("abilities")
	if !ok || prog.Count != 3 || prog.Failed != 0 || !prog.Completed {
		t.Fatalf("unexpected progress %+v", prog)
	}
	if len(fetch.calls) != 3 {
		t.Fatalf("expected 3 fetches, got %v", fetch.calls)
	}

	for _, id := range []int{8, 9} {
		kinds, err := st.SeededKinds(ctx, c.Table, id)
		if err != nil {
			t.Fatalf("SeededKinds: %v", err)
		}
		if len(kinds) != 3 {
			t.Fatalf("row %d not topped up: %v", id, kinds)
		}
		effects, _ := st.SubRecords(ctx, c.Table, id, domain.KindEffects)
		if len(effects) != 1 || effects[0].Value != "x" {
			t.Fatalf("existing effects of %d overwritten: %+v", id, effects)
		}
		row, _ := st.Resource(ctx, c.Table, id)
		if row.Name != fmt.Sprintf("row-%d", id) {
			t.Fatalf("existing row %d rewritten: %+v", id, row)
		}
	}

	row, err := st.Resource(ctx, c.Table, 10)
	if err != nil || row.Name != "ability-10" {
		t.Fatalf("row 10 not created: %+v %v", row, err)
	}
	flavor, _ := st.SubRecords(ctx, c.Table, 10, domain.KindFlavor)
	if len(flavor) != 1 || flavor[0].Key != "en/red-blue" || flavor[0].Value != "Flavor text" {
		t.Fatalf("unexpected flavor records %+v", flavor)
	}
	effects, _ := st.SubRecords(ctx, c.Table, 10, domain.KindEffects)
	if len(effects) != 1 || effects[0].Value != `{"effect":"Does things.","short_effect":"Does things."}` {
		t.Fatalf("unexpected effect records %+v", effects)
	}

	n, _ := st.CountResources(ctx, c.Table)
	if n != 10 {
		t.Fatalf("expected 10 rows, got %d", n)
	}

	// a second run finds every id complete and touches nothing
	again, led2 := newEngine(t, refs)
	if err := c.Job(domain.NewCategoryConfig(c.Endpoint, domain.ModePremium).Named(c.Name), fetch, env).Run(ctx, again); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	prog, _ = led2.Progress("abilities")
	if !prog.Completed || prog.Count != 0 || prog.Failed != 0 {
		t.Fatalf("unexpected second-run progress %+v", prog)
	}
	if len(fetch.calls) != 3 {
		t.Fatalf("second run must not fetch, got %d calls", len(fetch.calls))
	}
	if n, _ := st.CountResources(ctx, c.Table); n != 10 {
		t.Fatalf("expected 10 rows after rerun, got %d", n)
	}
}

func TestAttachOnlySkipsMissingOwner(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)
	c := category(t, "species-varieties")

	species := func(id int) map[string]any {
		return map[string]any{
			"id":    id,
			"name":  fmt.Sprintf("species-%d", id),
			"names": english("Species"),
			"varieties": []map[string]any{{
				"is_default": true,
				"pokemon":    map[string]string{"name": fmt.Sprintf("pokemon-%d", id), "url": docURL("pokemon", id)},
			}},
		}
	}
	fetch := &fakeFetcher{docs: map[string]any{
		docURL("pokemon-species", 1): species(1),
		docURL("pokemon-species", 2): species(2),
	}}
	seedRow(t, st, speciesTable, 1, domain.KindNames)

	refs := []domain.NamedResourceRef{
		{Name: "species-1", URL: docURL("pokemon-species", 1)},
		{Name: "species-2", URL: docURL("pokemon-species", 2)},
	}
	e, led := newEngine(t, refs)
	job := c.Job(domain.NewCategoryConfig(c.Endpoint, domain.ModeStandard).Named(c.Name), fetch, &Env{Store: st})
	if err := job.Run(ctx, e); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := st.Resource(ctx, speciesTable, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("attach-only pass created an owner row: %v", err)
	}
	if len(fetch.calls) != 1 {
		t.Fatalf("expected only the owned species fetched, got %v", fetch.calls)
	}
	vars, _ := st.SubRecords(ctx, speciesTable, 1, domain.KindVarieties)
	if len(vars) != 1 || vars[0].Key != "pokemon-1" {
		t.Fatalf("unexpected varieties %+v", vars)
	}
	prog, _ := led.Progress("species-varieties")
	if prog.Count != 2 || prog.Failed != 0 || !prog.Completed {
		t.Fatalf("unexpected progress %+v", prog)
	}
}

func TestProcessItemFailsWithoutDocumentID(t *testing.T) {
	st := openStore(t)
	c := category(t, "languages")
	url := "https://pokeapi.test/api/v2/language/not-a-number/"
	fetch := &fakeFetcher{docs: map[string]any{url: map[string]any{"name": "xx"}}}

	e, led := newEngine(t, []domain.NamedResourceRef{{Name: "xx", URL: url}})
	job := c.Job(domain.NewCategoryConfig(c.Endpoint, domain.ModeStandard).Named(c.Name), fetch, &Env{Store: st})
	if err := job.Run(context.Background(), e); err != nil {
		t.Fatalf("Run: %v", err)
	}
	prog, _ := led.Progress("languages")
	if prog.Failed != 1 || prog.Count != 0 {
		t.Fatalf("unexpected progress %+v", prog)
	}
	if n, _ := st.CountResources(context.Background(), c.Table); n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

// flakyStore fails the first failures writes of one kind for one row.
type flakyStore struct {
	storage.Store
	table    string
	id       int
	kind     string
	failures int
}

func (s *flakyStore) UpsertSubRecords(ctx context.Context, table string, id int, kind string, recs []domain.SubRecord) error {
	if table == s.table && id == s.id && kind == s.kind && s.failures > 0 {
		s.failures--
		return errors.New("disk full")
	}
	return s.Store.UpsertSubRecords(ctx, table, id, kind, recs)
}

func speciesDocs() map[string]any {
	species := func(id int) map[string]any {
		doc := map[string]any{
			"id":              id,
			"name":            fmt.Sprintf("species-%d", id),
			"names":           english(fmt.Sprintf("Species %d", id)),
			"evolution_chain": map[string]string{"url": docURL("evolution-chain", 1)},
		}
		if id > 1 {
			doc["evolves_from_species"] = map[string]string{"name": "species-1", "url": docURL("pokemon-species", 1)}
		}
		return doc
	}
	return map[string]any{
		docURL("pokemon-species", 1): species(1),
		docURL("pokemon-species", 2): species(2),
	}
}

func speciesRefs() []domain.NamedResourceRef {
	return []domain.NamedResourceRef{
		{Name: "species-1", URL: docURL("pokemon-species", 1)},
		{Name: "species-2", URL: docURL("pokemon-species", 2)},
	}
}

func TestFailedPostProcessIsRetriedWithinRun(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Store: openStore(t), table: speciesTable, id: 1, kind: domain.KindEvolution, failures: 1}
	c := category(t, "pokemon-species")
	fetch := &fakeFetcher{docs: speciesDocs()}

	e, led := newEngine(t, speciesRefs())
	cfg := domain.NewCategoryConfig(c.Endpoint, domain.ModeStandard).Named(c.Name)
	if err := c.Job(cfg, fetch, &Env{Store: st, Caches: cache.NewRun()}).Run(ctx, e); err != nil {
		t.Fatalf("Run: %v", err)
	}

	recs, _ := st.SubRecords(ctx, speciesTable, 1, domain.KindEvolution)
	if len(recs) != 1 || recs[0].Key != "chain" || recs[0].Value != "1" {
		t.Fatalf("evolution of species 1 not written after retry: %+v", recs)
	}
	recs, _ = st.SubRecords(ctx, speciesTable, 2, domain.KindEvolution)
	if len(recs) != 2 || recs[1].Key != "from" || recs[1].Value != "1" {
		t.Fatalf("unexpected evolution of species 2: %+v", recs)
	}
	prog, _ := led.Progress(c.Name)
	if !prog.Completed || prog.Count != 2 || prog.Failed != 0 {
		t.Fatalf("unexpected progress %+v", prog)
	}
	// species 2 was complete after the first attempt and is not fetched again
	if len(fetch.calls) != 3 {
		t.Fatalf("expected 3 fetches, got %v", fetch.calls)
	}
}

func TestFailedPostProcessIsRepairedByRerun(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Store: openStore(t), table: speciesTable, id: 1, kind: domain.KindEvolution, failures: 1}
	c := category(t, "pokemon-species")
	fetch := &fakeFetcher{docs: speciesDocs()}

	cfg := domain.NewCategoryConfig(c.Endpoint, domain.ModeStandard).Named(c.Name)
	cfg.MaxRetries = 0
	e, _ := newEngine(t, speciesRefs())
	if err := c.Job(cfg, fetch, &Env{Store: st}).Run(ctx, e); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected post-process failure to surface, got %v", err)
	}
	if recs, _ := st.SubRecords(ctx, speciesTable, 1, domain.KindEvolution); len(recs) != 0 {
		t.Fatalf("unexpected evolution records %+v", recs)
	}

	again, led := newEngine(t, speciesRefs())
	if err := c.Job(cfg, fetch, &Env{Store: st}).Run(ctx, again); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	recs, _ := st.SubRecords(ctx, speciesTable, 1, domain.KindEvolution)
	if len(recs) != 1 || recs[0].Value != "1" {
		t.Fatalf("rerun did not repair species 1: %+v", recs)
	}
	prog, _ := led.Progress(c.Name)
	if !prog.Completed || prog.Count != 1 {
		t.Fatalf("unexpected rerun progress %+v", prog)
	}
	ids, err := st.CompleteIDs(ctx, speciesTable, c.Required)
	if err != nil || len(ids) != 2 {
		t.Fatalf("expected both species complete, got %v %v", ids, err)
	}
}
