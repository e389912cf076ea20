package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAdapter(t *testing.T, mr *miniredis.Miniredis) *RedisAdapter {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	a := NewRedisAdapterWithClient(client, "realtime:test", nil)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func waitEnvelope(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return Envelope{}
	}
}

func TestRedisCrossProcessFanout(t *testing.T) {
	mr := miniredis.RunT(t)

	// Two adapters on one Redis stand in for two server processes.
	p1 := newTestAdapter(t, mr)
	p2 := newTestAdapter(t, mr)

	got1 := make(chan Envelope, 4)
	got2 := make(chan Envelope, 4)
	p1.Subscribe(func(env Envelope) { got1 <- env })
	p2.Subscribe(func(env Envelope) { got2 <- env })

	env := Envelope{
		Room:    "channel:design",
		Event:   "channel:reaction",
		Payload: json.RawMessage(`{"messageId":"m1","reaction":"+1"}`),
		Exclude: "conn-a",
		Origin:  "p2",
	}

	// Subscriptions are established asynchronously; retry until the
	// publish is observed on both sides.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := p2.Publish(context.Background(), env); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
		select {
		case first := <-got1:
			if first.Event != "channel:reaction" || first.Room != "channel:design" {
				t.Fatalf("unexpected envelope on p1: %+v", first)
			}
			if string(first.Payload) != `{"messageId":"m1","reaction":"+1"}` {
				t.Fatalf("payload altered in transit: %s", first.Payload)
			}
			// The publisher receives its own publish too.
			self := waitEnvelope(t, got2)
			if self.Origin != "p2" {
				t.Fatalf("self-delivery lost origin: %+v", self)
			}
			return
		case <-time.After(50 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("cross-process envelope never arrived")
			}
		}
	}
}

func TestRedisPublishAfterServerGone(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestAdapter(t, mr)
	a.Subscribe(func(Envelope) {})

	mr.Close()

	err := a.Publish(context.Background(), Envelope{Room: "channel:x", Event: "channel:message"})
	if err == nil {
		t.Fatal("Publish() after redis shutdown returned nil, want error for local-delivery fallback")
	}
}

func TestRedisMalformedPayloadIsDropped(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestAdapter(t, mr)

	got := make(chan Envelope, 1)
	a.Subscribe(func(env Envelope) { got <- env })

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := client.Publish(context.Background(), "realtime:test", "{not json").Err(); err != nil {
			t.Fatalf("raw publish error = %v", err)
		}
		if err := client.Publish(context.Background(), "realtime:test", `{"room":"channel:x","event":"channel:message"}`).Err(); err != nil {
			t.Fatalf("raw publish error = %v", err)
		}
		select {
		case env := <-got:
			// The malformed frame was skipped, the valid one delivered.
			if env.Room != "channel:x" {
				t.Fatalf("unexpected envelope: %+v", env)
			}
			return
		case <-time.After(50 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("valid envelope never arrived")
			}
		}
	}
}
