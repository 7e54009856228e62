package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/samvad-hq/pokedex-seeder/internal/logger"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisherKeysByRun(t *testing.T) {
	w := &fakeWriter{}
	pub := &kafkaPublisher{id: "bus", writer: w, log: logger.NopLogger{}}

	evt := movesReport()
	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "run-1" || !msg.Time.Equal(evt.EmittedAt) {
		t.Fatalf("unexpected key %q time %v", msg.Key, msg.Time)
	}
	var keys []string
	for _, h := range msg.Headers {
		keys = append(keys, h.Key)
	}
	if len(keys) != 5 || keys[0] != "category" || keys[4] != "status" {
		t.Fatalf("headers must be sorted, got %v", keys)
	}
	var got Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Category != "moves" || got.Progress == nil || got.Progress.Count != 4 {
		t.Fatalf("unexpected payload %+v", got)
	}

	if err := NewFanout(Route{Publisher: pub}).Close(); err != nil || !w.closed {
		t.Fatalf("Close = %v, closed=%v", err, w.closed)
	}
}

func TestKafkaPublisherWriteError(t *testing.T) {
	pub := &kafkaPublisher{id: "bus", writer: &fakeWriter{err: errors.New("no leader")}, log: logger.NopLogger{}}
	if err := pub.Publish(context.Background(), movesReport()); err == nil {
		t.Fatalf("expected error")
	}
}
