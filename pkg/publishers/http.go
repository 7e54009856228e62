package publishers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/samvad-hq/pokedex-seeder/internal/logger"
	"github.com/samvad-hq/pokedex-seeder/pkg/httpclient"
)

// httpPublisher sends each report as a JSON body to a webhook. The report key
// goes out as Idempotency-Key so receivers can drop redeliveries.
type httpPublisher struct {
	id     string
	sink   HTTPSink
	client *resty.Client
	log    logger.Logger
}

func newHTTPPublisher(_ context.Context, cfg SinkConfig, log logger.Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("missing http settings")
	}
	sink := *cfg.HTTP
	if sink.Method == "" {
		sink.Method = defaultHTTPMethod
	}
	if sink.TimeoutSeconds <= 0 {
		sink.TimeoutSeconds = defaultHTTPTimeout
	}
	client := httpclient.NewRestyHTTPClient(time.Duration(sink.TimeoutSeconds)*time.Second,
		httpclient.WithUserAgent("pokedex-seeder/reports"))
	return &httpPublisher{id: cfg.ID, sink: sink, client: client, log: logger.Ensure(log)}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return TypeHTTP }

func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := evt.Encode()
	if err != nil {
		return err
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeaders(h.sink.Headers).
		SetHeader("Content-Type", "application/json").
		SetHeader("Idempotency-Key", evt.Key()).
		SetHeader("X-Report-Kind", evt.Kind).
		SetBody(body).
		Execute(h.sink.Method, h.sink.URL)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", evt.Key(), err)
	}
	if !resp.IsSuccess() {
		snippet := strings.TrimSpace(string(resp.Body()))
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return fmt.Errorf("webhook %s: status %d: %s", evt.Key(), resp.StatusCode(), snippet)
	}
	h.log.DebugObj("report delivered", "report_http", map[string]any{
		"sink":   h.id,
		"report": evt.Key(),
		"status": resp.StatusCode(),
	})
	return nil
}
