package publishers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/samvad-hq/pokedex-seeder/internal/ledger"
)

func movesReport() Event {
	expected := 5
	return NewCategoryEvent("run-1", "moves", ledger.Progress{Completed: true, Count: 4, Failed: 1, ExpectedCount: &expected}, nil)
}

func TestCategoryReportBody(t *testing.T) {
	evt := movesReport()
	if evt.Key() != "run-1/category_finished/moves" {
		t.Fatalf("Key = %q", evt.Key())
	}

	body, err := evt.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got struct {
		Schema   string `json:"schema"`
		Kind     string `json:"kind"`
		RunID    string `json:"run_id"`
		Category string `json:"category"`
		Status   string `json:"status"`
		Progress struct {
			Completed     bool `json:"completed"`
			Count         int  `json:"count"`
			Failed        int  `json:"failed"`
			ExpectedCount *int `json:"expected_count"`
		} `json:"progress"`
		Stats json.RawMessage `json:"stats"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Schema != ReportSchema || got.Kind != KindCategoryFinished || got.RunID != "run-1" || got.Category != "moves" || got.Status != "ok" {
		t.Fatalf("unexpected envelope %s", body)
	}
	if !got.Progress.Completed || got.Progress.Count != 4 || got.Progress.Failed != 1 || got.Progress.ExpectedCount == nil || *got.Progress.ExpectedCount != 5 {
		t.Fatalf("unexpected progress %s", body)
	}
	if got.Stats != nil {
		t.Fatalf("category reports carry no stats: %s", body)
	}
}

func TestRunReportBody(t *testing.T) {
	stats := ledger.Stats{
		RunID:          "run-2",
		TotalRequests:  40,
		FailedRequests: 3,
		Errors:         []ledger.ErrorEntry{{URL: "https://pokeapi.co/api/v2/move/9/", Error: "timeout"}},
	}
	evt := NewRunEvent(stats, []string{"moves: 4/5 (1 failed)"}, errors.New("phase moves: boom"))

	if evt.Key() != "run-2/run_finished" {
		t.Fatalf("Key = %q", evt.Key())
	}
	attrs := evt.Attributes()
	if attrs["status"] != "failed" || attrs["run_id"] != "run-2" || attrs["schema"] != ReportSchema {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if _, ok := attrs["category"]; ok {
		t.Fatalf("run reports have no category attribute")
	}

	body, err := evt.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var got struct {
		Error string `json:"error"`
		Stats struct {
			RunID          string `json:"run_id"`
			TotalRequests  int    `json:"total_requests"`
			FailedRequests int    `json:"failed_requests"`
			Errors         []struct {
				URL string `json:"url"`
			} `json:"errors"`
		} `json:"stats"`
		Summary []string `json:"summary"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Error != "phase moves: boom" || got.Stats.RunID != "run-2" || got.Stats.TotalRequests != 40 || got.Stats.FailedRequests != 3 {
		t.Fatalf("unexpected run report %s", body)
	}
	if len(got.Stats.Errors) != 1 || got.Stats.Errors[0].URL != "https://pokeapi.co/api/v2/move/9/" || len(got.Summary) != 1 {
		t.Fatalf("unexpected run report %s", body)
	}
}
