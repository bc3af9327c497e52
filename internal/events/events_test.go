package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/orchardops/orchard/internal/config"
	"github.com/orchardops/orchard/internal/errdefs"
)

func TestMemoryPublisher(t *testing.T) {
	pub := NewMemoryPublisher()
	ctx := context.Background()

	want := Event{
		Type:      TypeNodeStatus,
		Node:      "node-1",
		Status:    "running",
		Timestamp: time.Now().UTC(),
	}
	if err := pub.Publish(ctx, want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := pub.Events()
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Type != want.Type || got[0].Node != want.Node {
		t.Errorf("event = %+v, want %+v", got[0], want)
	}

	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pub.Publish(ctx, want); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
	if len(pub.Events()) != 1 {
		t.Error("publish after close should be dropped")
	}
}

func TestFactorySelectsBackend(t *testing.T) {
	pub, err := New(config.EventsConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := pub.(*MemoryPublisher); !ok {
		t.Fatalf("got %T, want *MemoryPublisher", pub)
	}

	if _, err := New(config.EventsConfig{Type: "carrier-pigeon"}); !errdefs.IsValidation(err) {
		t.Fatalf("expected validation error for unknown backend, got %v", err)
	}

	if _, err := New(config.EventsConfig{Type: "kafka"}); !errdefs.IsValidation(err) {
		t.Fatalf("expected validation error for kafka without brokers, got %v", err)
	}
}

func startNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		t.Fatalf("failed to create NATS server: %v", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server never became ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSPublisherDelivers(t *testing.T) {
	srv := startNATSServer(t)

	pub, err := NewNATSPublisher(config.EventsConfig{Type: "nats", URL: srv.ClientURL()})
	if err != nil {
		t.Fatalf("failed to connect publisher: %v", err)
	}
	defer pub.Close()

	sub, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("failed to connect subscriber: %v", err)
	}
	defer sub.Close()

	received := make(chan Event, 1)
	if _, err := sub.Subscribe(natsSubject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Errorf("bad event payload: %v", err)
			return
		}
		received <- event
	}); err != nil {
		t.Fatal(err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatal(err)
	}

	want := Event{
		Type:      TypeNodeCreated,
		Node:      "node-1",
		Cluster:   "default",
		Timestamp: time.Now().UTC(),
	}
	if err := pub.Publish(context.Background(), want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != want.Type || got.Node != want.Node || got.Cluster != want.Cluster {
			t.Errorf("event = %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
	}
}
