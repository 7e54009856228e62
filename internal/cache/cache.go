// Package cache holds the run-scoped, advisory caches of a seeding run.
// Nothing here is persisted; every cache can be cleared at any time and is
// repopulated on demand.
package cache

import "sync"

// Clearer is implemented by every cache the memory monitor can drop.
type Clearer interface {
	Name() string
	Clear() int
}

// Responses maps request URLs to raw response bodies.
type Responses struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewResponses returns an empty response cache.
func NewResponses() *Responses {
	return &Responses{entries: make(map[string][]byte)}
}

func (r *Responses) Get(url string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	body, ok := r.entries[url]
	return body, ok
}

func (r *Responses) Put(url string, body []byte) {
	r.mu.Lock()
	r.entries[url] = body
	r.mu.Unlock()
}

func (r *Responses) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Responses) Name() string { return "responses" }

// Clear drops every entry and returns how many were removed.
func (r *Responses) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	r.entries = make(map[string][]byte)
	return n
}

// URLSet records URLs already processed during this run.
type URLSet struct {
	mu   sync.RWMutex
	urls map[string]struct{}
}

func NewURLSet() *URLSet {
	return &URLSet{urls: make(map[string]struct{})}
}

func (s *URLSet) Add(url string) {
	s.mu.Lock()
	s.urls[url] = struct{}{}
	s.mu.Unlock()
}

func (s *URLSet) Has(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.urls[url]
	return ok
}

func (s *URLSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.urls)
}

func (s *URLSet) Name() string { return "processed_urls" }

func (s *URLSet) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.urls)
	s.urls = make(map[string]struct{})
	return n
}

// IDMap is a named int→int mapping built during post-processing, e.g.
// species id → evolution chain id.
type IDMap struct {
	name string
	mu   sync.RWMutex
	m    map[int]int
}

func NewIDMap(name string) *IDMap {
	return &IDMap{name: name, m: make(map[int]int)}
}

func (m *IDMap) Set(k, v int) {
	m.mu.Lock()
	m.m[k] = v
	m.mu.Unlock()
}

func (m *IDMap) Get(k int) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[k]
	return v, ok
}

func (m *IDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

func (m *IDMap) Name() string { return m.name }

func (m *IDMap) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.m)
	m.m = make(map[int]int)
	return n
}

// Run owns every cache of one pipeline run.
type Run struct {
	Responses      *Responses
	Processed      *URLSet
	EvolutionChain *IDMap
}

// NewRun returns a fresh, empty set of run caches.
func NewRun() *Run {
	return &Run{
		Responses:      NewResponses(),
		Processed:      NewURLSet(),
		EvolutionChain: NewIDMap("evolution_chain_ids"),
	}
}

// Clearers lists every cache in a stable order.
func (r *Run) Clearers() []Clearer {
	return []Clearer{r.Responses, r.Processed, r.EvolutionChain}
}

// ClearAll drops every cache and reports the removed entry counts by name.
func (r *Run) ClearAll() map[string]int {
	out := make(map[string]int, 3)
	for _, c := range r.Clearers() {
		out[c.Name()] = c.Clear()
	}
	return out
}
