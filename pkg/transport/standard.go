package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/pkg/httpclient"
)

const DefaultStandardTimeout = 10 * time.Second

// proxyEnvelope is the public proxy's wrapper; contents holds the upstream
// body as a JSON-encoded string.
type proxyEnvelope struct {
	Contents *string `json:"contents"`
	Status   struct {
		HTTPCode int `json:"http_code"`
	} `json:"status"`
}

// standardTransport fetches through a rotating public proxy that wraps the
// upstream body in an envelope.
type standardTransport struct {
	proxyBase string
	client    HTTPClient
}

// NewStandard builds the public-proxy transport. A nil client uses resty with
// the standard 10s timeout.
func NewStandard(proxyBase string, client HTTPClient) Transport {
	if client == nil {
		client = httpclient.NewRestyClient(DefaultStandardTimeout)
	}
	return &standardTransport{proxyBase: strings.TrimSpace(proxyBase), client: client}
}

func (s *standardTransport) Mode() domain.Mode { return domain.ModeStandard }

func (s *standardTransport) Ready() error {
	if s.proxyBase == "" {
		return &ConfigError{Mode: domain.ModeStandard, Missing: []string{"standard_proxy_base"}}
	}
	return nil
}

// ProxiedURL returns the proxy URL that fetches targetURL.
func (s *standardTransport) ProxiedURL(targetURL string) string {
	return s.proxyBase + url.QueryEscape(targetURL)
}

func (s *standardTransport) Get(ctx context.Context, targetURL string) ([]byte, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	resp, err := s.client.Get(ctx, s.ProxiedURL(targetURL), Headers())
	if err != nil {
		return nil, fmt.Errorf("proxy request: %w", err)
	}
	body := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("proxy returned status %d body: %s", resp.StatusCode(), responseSnippet(body))
	}

	var env proxyEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode proxy envelope: %w", err)
	}
	if env.Status.HTTPCode >= 400 {
		return nil, fmt.Errorf("upstream returned status %d via proxy", env.Status.HTTPCode)
	}
	if env.Contents == nil || strings.TrimSpace(*env.Contents) == "" {
		return nil, fmt.Errorf("proxy envelope has empty contents")
	}
	return []byte(*env.Contents), nil
}
