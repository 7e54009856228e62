// Package ledger tracks per-category seeding progress and run-wide request
// statistics. It is the basis for resumption reporting and run summaries.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Progress is the state of one category. Completed means every item was
// attempted, not that every item succeeded.
type Progress struct {
	Completed     bool       `json:"completed"`
	Count         int        `json:"count"`
	Failed        int        `json:"failed"`
	ExpectedCount *int       `json:"expected_count,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// ErrorEntry is one recorded failure.
type ErrorEntry struct {
	URL       string    `json:"url"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats are the run-wide counters. They only grow during a run.
type Stats struct {
	RunID          string       `json:"run_id"`
	TotalRequests  int          `json:"total_requests"`
	FailedRequests int          `json:"failed_requests"`
	StartTime      *time.Time   `json:"start_time,omitempty"`
	Errors         []ErrorEntry `json:"errors"`
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	progress map[string]*Progress
	order    []string
	stats    Stats
	now      func() time.Time
}

// New returns an empty ledger with a fresh run id.
func New() *Ledger {
	return &Ledger{
		progress: make(map[string]*Progress),
		stats:    Stats{RunID: uuid.NewString()},
		now:      time.Now,
	}
}

// StartRun stamps the run start time once.
func (l *Ledger) StartRun() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stats.StartTime == nil {
		t := l.now().UTC()
		l.stats.StartTime = &t
	}
}

func (l *Ledger) entry(category string) *Progress {
	p, ok := l.progress[category]
	if !ok {
		p = &Progress{StartedAt: l.now().UTC()}
		l.progress[category] = p
		l.order = append(l.order, category)
	}
	return p
}

// Begin creates or refreshes the progress of category. Counters survive a
// refresh so category-level retries accumulate.
func (l *Ledger) Begin(category string, expected int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.entry(category)
	p.Completed = false
	p.FinishedAt = nil
	exp := expected
	p.ExpectedCount = &exp
}

// Succeeded counts one processed item.
func (l *Ledger) Succeeded(category string) {
	l.mu.Lock()
	l.entry(category).Count++
	l.mu.Unlock()
}

// Failed counts one failed item.
func (l *Ledger) Failed(category string) {
	l.mu.Lock()
	l.entry(category).Failed++
	l.mu.Unlock()
}

// Complete marks category attempted. expected is recorded when non-nil.
func (l *Ledger) Complete(category string, expected *int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.entry(category)
	if expected != nil {
		exp := *expected
		p.ExpectedCount = &exp
	}
	p.Completed = true
	t := l.now().UTC()
	p.FinishedAt = &t
}

// Progress returns a snapshot for category.
func (l *Ledger) Progress(category string) (Progress, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.progress[category]
	if !ok {
		return Progress{}, false
	}
	return copyProgress(*p), true
}

// Categories returns category names in the order they were first seen.
func (l *Ledger) Categories() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// RecordRequest counts one upstream attempt.
func (l *Ledger) RecordRequest(failed bool) {
	l.mu.Lock()
	l.stats.TotalRequests++
	if failed {
		l.stats.FailedRequests++
	}
	l.mu.Unlock()
}

// RecordError appends to the error log.
func (l *Ledger) RecordError(url string, err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	l.stats.Errors = append(l.stats.Errors, ErrorEntry{
		URL:       url,
		Error:     err.Error(),
		Timestamp: l.now().UTC(),
	})
	l.mu.Unlock()
}

// Stats returns a snapshot of the run statistics.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.Errors = append([]ErrorEntry(nil), l.stats.Errors...)
	if l.stats.StartTime != nil {
		t := *l.stats.StartTime
		s.StartTime = &t
	}
	return s
}

// Summary renders one human-readable line per category, in first-seen order.
func (l *Ledger) Summary() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	lines := make([]string, 0, len(l.order))
	for _, name := range l.order {
		p := l.progress[name]
		status := "in progress"
		if p.Completed {
			status = "completed"
		}
		expected := "?"
		if p.ExpectedCount != nil {
			expected = fmt.Sprintf("%d", *p.ExpectedCount)
		}
		lines = append(lines, fmt.Sprintf("%s: %s, %d processed, %d failed, %s remote", name, status, p.Count, p.Failed, expected))
	}
	return lines
}

// ErrorCountsByURL groups the error log, most frequent first.
func (l *Ledger) ErrorCountsByURL(limit int) []URLCount {
	l.mu.Lock()
	counts := make(map[string]int)
	for _, e := range l.stats.Errors {
		counts[e.URL]++
	}
	l.mu.Unlock()

	out := make([]URLCount, 0, len(counts))
	for u, n := range counts {
		out = append(out, URLCount{URL: u, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].URL < out[j].URL
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// URLCount is one row of ErrorCountsByURL.
type URLCount struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

func copyProgress(p Progress) Progress {
	if p.ExpectedCount != nil {
		exp := *p.ExpectedCount
		p.ExpectedCount = &exp
	}
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		p.FinishedAt = &t
	}
	return p
}
