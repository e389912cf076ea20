package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
)

func TestBusFanout(t *testing.T) {
	bus := NewBus()
	a1 := bus.NewAdapter()
	a2 := bus.NewAdapter()
	defer a1.Close()
	defer a2.Close()

	var mu sync.Mutex
	var got1, got2 []Envelope
	a1.Subscribe(func(env Envelope) {
		mu.Lock()
		got1 = append(got1, env)
		mu.Unlock()
	})
	a2.Subscribe(func(env Envelope) {
		mu.Lock()
		got2 = append(got2, env)
		mu.Unlock()
	})

	env := Envelope{
		Room:    "channel:general",
		Event:   "channel:message",
		Payload: json.RawMessage(`{"content":"hi"}`),
		Exclude: "c1",
		Origin:  "p1",
	}
	if err := a1.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got1) != 1 {
		t.Fatalf("publisher received %d envelopes, want 1 (self-delivery)", len(got1))
	}
	if len(got2) != 1 {
		t.Fatalf("peer received %d envelopes, want 1", len(got2))
	}
	if string(got2[0].Payload) != `{"content":"hi"}` {
		t.Errorf("payload altered in transit: %s", got2[0].Payload)
	}
	if got2[0].Exclude != "c1" || got2[0].Room != "channel:general" {
		t.Errorf("envelope fields lost: %+v", got2[0])
	}
}

func TestClosedAdapterStopsReceiving(t *testing.T) {
	bus := NewBus()
	a1 := bus.NewAdapter()
	a2 := bus.NewAdapter()

	received := 0
	a2.Subscribe(func(Envelope) { received++ })

	if err := a2.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a1.Publish(context.Background(), Envelope{Room: "channel:x", Event: "channel:message"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if received != 0 {
		t.Fatalf("closed adapter received %d envelopes, want 0", received)
	}
}

func TestPublishWithoutSubscriberIsSafe(t *testing.T) {
	bus := NewBus()
	a := bus.NewAdapter()
	defer a.Close()
	if err := a.Publish(context.Background(), Envelope{Room: "channel:x", Event: "channel:message"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}
