package transport

import (
	"context"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/pkg/httpclient"
)

// Transport performs one upstream GET and returns the upstream document body.
// Implementations do not retry; callers own the retry policy.
type Transport interface {
	Mode() domain.Mode
	// Ready reports configuration problems before any request is attempted.
	Ready() error
	Get(ctx context.Context, targetURL string) ([]byte, error)
}

// Registry resolves the transport for a mode.
type Registry interface {
	TransportFor(mode domain.Mode) (Transport, error)
}

// HTTPClient aliases the shared httpclient.Client interface for clarity within transports.
type HTTPClient = httpclient.Client
