package publishers

import (
	"context"
	"fmt"

	"github.com/samvad-hq/pokedex-seeder/internal/logger"
)

// Publisher delivers reports to one downstream sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// closer is implemented by publishers holding connections.
type closer interface {
	Close() error
}

// Builder creates a Publisher from its sink entry.
type Builder func(ctx context.Context, cfg SinkConfig, log logger.Logger) (Publisher, error)

// Builders maps sink types to their constructors.
type Builders map[string]Builder

// DefaultBuilders knows every sink type a reports file may declare.
func DefaultBuilders() Builders {
	return Builders{
		TypeHTTP:   newHTTPPublisher,
		TypeSQS:    newSQSPublisher,
		TypeSNS:    newSNSPublisher,
		TypePubSub: newPubSubPublisher,
		TypeKafka:  newKafkaPublisher,
	}
}

// Build opens one route per sink. Sinks opened before a failure are closed.
func (b Builders) Build(ctx context.Context, sinks []SinkConfig, log logger.Logger) (*Fanout, error) {
	var routes []Route
	for _, sink := range sinks {
		build, ok := b[sink.Type]
		if !ok {
			_ = NewFanout(routes...).Close()
			return nil, fmt.Errorf("sink %q: unsupported type %q", sink.ID, sink.Type)
		}
		pub, err := build(ctx, sink, logger.Ensure(log))
		if err != nil {
			_ = NewFanout(routes...).Close()
			return nil, fmt.Errorf("sink %q: %w", sink.ID, err)
		}
		routes = append(routes, Route{Publisher: pub, Kinds: sink.Events})
	}
	return NewFanout(routes...), nil
}
