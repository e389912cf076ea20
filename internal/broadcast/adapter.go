// Package broadcast bridges room emissions across server processes.
//
// Every process publishes room events to one shared channel and subscribes
// to the same channel; each subscriber — the publisher included — forwards
// a received envelope only to its own locally connected members. The
// adapter itself has no room knowledge; membership stays with the local
// registry.
//
// Delivery is at-most-once. Ordering holds only among events published by
// the same process; no total order is imposed across processes.
package broadcast

import (
	"context"
	"encoding/json"
)

// Envelope is the unit published to the shared channel.
type Envelope struct {
	// Room is the wire form of the target room key, e.g. "channel:general".
	Room string `json:"room"`

	// Event is the outbound event name delivered to members.
	Event string `json:"event"`

	// Payload is relayed verbatim; the adapter never inspects it.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Exclude names a connection that must not receive the event
	// (the sender). Connection ids are unique across processes, so a
	// foreign exclude simply matches nothing.
	Exclude string `json:"exclude,omitempty"`

	// Origin identifies the publishing process, for logging.
	Origin string `json:"origin,omitempty"`
}

// Handler consumes envelopes received from the shared channel.
type Handler func(Envelope)

// Adapter fans envelopes out to every subscribed process.
type Adapter interface {
	// Publish sends the envelope to all subscribers, including the
	// publisher itself. A non-nil error means cross-process fanout failed;
	// the caller is expected to fall back to local-only delivery.
	Publish(ctx context.Context, env Envelope) error

	// Subscribe registers the handler invoked for every received envelope.
	// Must be called before Publish traffic starts.
	Subscribe(h Handler)

	// Close stops the subscription and releases transport resources.
	Close() error
}
