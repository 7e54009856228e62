package publishers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samvad-hq/pokedex-seeder/internal/ledger"
)

// ReportSchema versions the JSON body of every report.
const ReportSchema = "pokedex-seeder/report.v1"

// Report kinds.
const (
	KindCategoryFinished = "category_finished"
	KindRunFinished      = "run_finished"
)

// Event is one run report. Reports mirror what the run already logs; sinks
// are an optional copy for downstream consumers.
type Event struct {
	Schema   string           `json:"schema"`
	Kind     string           `json:"kind"`
	RunID    string           `json:"run_id"`
	Category string           `json:"category,omitempty"`
	Status   string           `json:"status"`
	Error    string           `json:"error,omitempty"`
	Progress *ledger.Progress `json:"progress,omitempty"`
	Stats    *ledger.Stats    `json:"stats,omitempty"`
	// Summary holds one line per category on run reports.
	Summary   []string  `json:"summary,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewCategoryEvent reports the outcome of one category.
func NewCategoryEvent(runID, category string, progress ledger.Progress, err error) Event {
	evt := newEvent(KindCategoryFinished, runID, err)
	evt.Category = category
	evt.Progress = &progress
	return evt
}

// NewRunEvent reports the outcome of a whole run.
func NewRunEvent(stats ledger.Stats, summary []string, err error) Event {
	evt := newEvent(KindRunFinished, stats.RunID, err)
	evt.Stats = &stats
	evt.Summary = summary
	return evt
}

func newEvent(kind, runID string, err error) Event {
	evt := Event{
		Schema:    ReportSchema,
		Kind:      kind,
		RunID:     runID,
		Status:    "ok",
		EmittedAt: time.Now().UTC(),
	}
	if err != nil {
		evt.Status = "failed"
		evt.Error = err.Error()
	}
	return evt
}

// Key identifies a report within its run. A category is reported once per
// run and the run once, so the key doubles as a deduplication id.
func (e Event) Key() string {
	if e.Category == "" {
		return e.RunID + "/" + e.Kind
	}
	return e.RunID + "/" + e.Kind + "/" + e.Category
}

// Attributes are the routing fields sent next to the body on message sinks.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{
		"schema": ReportSchema,
		"kind":   e.Kind,
		"run_id": e.RunID,
		"status": e.Status,
	}
	if e.Category != "" {
		attrs["category"] = e.Category
	}
	return attrs
}

// Encode renders the JSON body.
func (e Event) Encode() ([]byte, error) {
	if e.Schema == "" {
		e.Schema = ReportSchema
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s report: %w", e.Kind, err)
	}
	return body, nil
}
