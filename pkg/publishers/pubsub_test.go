package publishers

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"

	"github.com/samvad-hq/pokedex-seeder/internal/ledger"
)

func TestPubSubPublisherOrdersByRun(t *testing.T) {
	server := pstest.NewServer()
	defer server.Close()
	t.Setenv("PUBSUB_EMULATOR_HOST", server.Addr)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "test-project")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	defer client.Close()
	if _, err := client.CreateTopic(ctx, "seed-reports"); err != nil {
		t.Fatalf("create topic: %v", err)
	}

	pub, err := newPubSubPublisher(ctx, SinkConfig{
		ID:     "gcp",
		Type:   TypePubSub,
		PubSub: &PubSubSink{ProjectID: "test-project", Topic: "seed-reports"},
	}, nil)
	if err != nil {
		t.Fatalf("newPubSubPublisher: %v", err)
	}
	defer pub.(*pubsubPublisher).Close()

	if err := pub.Publish(ctx, movesReport()); err != nil {
		t.Fatalf("Publish category: %v", err)
	}
	if err := pub.Publish(ctx, NewRunEvent(ledger.Stats{RunID: "run-1", TotalRequests: 7}, nil, nil)); err != nil {
		t.Fatalf("Publish run: %v", err)
	}

	msgs := server.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages on emulator, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.OrderingKey != "run-1" || m.Attributes["run_id"] != "run-1" {
			t.Fatalf("unexpected message ordering %q attrs %v", m.OrderingKey, m.Attributes)
		}
	}
	var run Event
	if err := json.Unmarshal(msgs[1].Data, &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.Kind != KindRunFinished || run.Stats == nil || run.Stats.TotalRequests != 7 {
		t.Fatalf("unexpected run report %+v", run)
	}
}
