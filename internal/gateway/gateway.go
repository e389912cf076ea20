// Package gateway owns the websocket edge: accepting connections,
// decoding frames, and delivering room emissions to local members.
//
// Emissions always travel through the broadcast adapter, publisher
// included, so a frame reaches a member the same way whether it
// originated in this process or another. If the publish itself fails the
// gateway degrades to local-only delivery rather than dropping the event.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Rostammahabadi/better-slack-backend/internal/auth"
	"github.com/Rostammahabadi/better-slack-backend/internal/broadcast"
	"github.com/Rostammahabadi/better-slack-backend/internal/observability"
	"github.com/Rostammahabadi/better-slack-backend/internal/rooms"
	"github.com/Rostammahabadi/better-slack-backend/internal/router"
)

const (
	// DefaultPingInterval is how often the server pings idle connections.
	DefaultPingInterval = 25 * time.Second

	// DefaultPongTimeout closes a connection that has not answered a ping.
	DefaultPongTimeout = 60 * time.Second

	// DefaultSendBuffer is the per-connection outbound queue depth.
	DefaultSendBuffer = 64

	// maxFrameBytes caps a single inbound frame.
	maxFrameBytes = 1 << 20

	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
)

// Dispatcher routes decoded frames; *router.Router satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess router.Session, event string, data json.RawMessage) error
	Disconnect(ctx context.Context, sess router.Session)
}

// Config assembles a Server.
type Config struct {
	Auth     *auth.Service
	Registry *rooms.Registry
	Adapter  broadcast.Adapter

	// AllowedOrigin restricts browser handshakes to one Origin. Empty
	// allows any origin. Requests without an Origin header (non-browser
	// clients) always pass.
	AllowedOrigin string

	PingInterval time.Duration
	PongTimeout  time.Duration
	SendBuffer   int

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Server accepts websocket connections and fans room emissions out to the
// local members of each room. It implements router.Emitter.
type Server struct {
	auth     *auth.Service
	registry *rooms.Registry
	adapter  broadcast.Adapter
	upgrader websocket.Upgrader

	// origin identifies this process in published envelopes.
	origin string

	pingInterval time.Duration
	pongTimeout  time.Duration
	sendBuffer   int

	log     *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	mu         sync.RWMutex
	conns      map[string]*Conn
	dispatcher Dispatcher
	closed     bool
}

// New builds a gateway and subscribes it to the broadcast adapter. The
// dispatcher must be attached with SetDispatcher before serving; the
// router needs the gateway as its emitter, so the two are wired in two
// steps.
func New(config Config) *Server {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultSendBuffer
	}
	if config.Logger == nil {
		config.Logger = observability.NewLogger(observability.LogConfig{})
	}

	s := &Server{
		auth:         config.Auth,
		registry:     config.Registry,
		adapter:      config.Adapter,
		origin:       uuid.NewString(),
		pingInterval: config.PingInterval,
		pongTimeout:  config.PongTimeout,
		sendBuffer:   config.SendBuffer,
		log:          config.Logger,
		metrics:      config.Metrics,
		tracer:       config.Tracer,
		conns:        make(map[string]*Conn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(config.AllowedOrigin),
	}
	s.adapter.Subscribe(s.deliverLocal)
	return s
}

// SetDispatcher attaches the event router. Must be called before the
// first connection is accepted.
func (s *Server) SetDispatcher(d Dispatcher) {
	s.mu.Lock()
	s.dispatcher = d
	s.mu.Unlock()
}

func (s *Server) dispatch() Dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatcher
}

func originChecker(allowed string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if allowed == "" {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || origin == allowed
	}
}

// ServeHTTP handles the websocket handshake. Connections without a
// credential are rejected before the upgrade.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := s.auth.Authenticate(auth.TokenFromRequest(r))
	if err != nil {
		s.log.Warn(ctx, "handshake rejected", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sock, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Warn(ctx, "websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &Conn{
		id:       uuid.NewString(),
		identity: identity,
		sock:     sock,
		send:     make(chan []byte, s.sendBuffer),
		done:     make(chan struct{}),
		server:   s,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sock.Close()
		return
	}
	s.conns[c.id] = c
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
	}
	s.log.Info(ctx, "connection opened",
		"conn_id", c.id, "user_id", identity.UserID, "remote", r.RemoteAddr)

	go c.writeLoop()
	go c.readLoop()
}

// EmitToRoom publishes a room event through the broadcast adapter. Local
// members receive it on the subscribe path; if the publish fails, fanout
// degrades to local-only delivery so in-process members still see it.
func (s *Server) EmitToRoom(ctx context.Context, room rooms.RoomKey, event string, payload any, exclude string) {
	raw, err := marshalPayload(payload)
	if err != nil {
		s.log.Error(ctx, "unencodable payload", "event", event, "room", room.String(), "error", err)
		return
	}
	env := broadcast.Envelope{
		Room:    room.String(),
		Event:   event,
		Payload: raw,
		Exclude: exclude,
		Origin:  s.origin,
	}
	if err := s.adapter.Publish(ctx, env); err != nil {
		if s.metrics != nil {
			s.metrics.BroadcastPublishErrors.Inc()
		}
		s.log.Warn(ctx, "broadcast publish failed, delivering locally only",
			"event", event, "room", env.Room, "error", err)
		s.deliverLocal(env)
	}
}

// EmitToConn sends an event to one local connection.
func (s *Server) EmitToConn(connID, event string, payload any) {
	raw, err := marshalPayload(payload)
	if err != nil {
		s.log.Error(context.Background(), "unencodable payload", "event", event, "conn_id", connID, "error", err)
		return
	}

	s.mu.RLock()
	c := s.conns[connID]
	s.mu.RUnlock()
	if c == nil {
		return
	}
	c.enqueue(encodeFrame(event, raw))
	if s.metrics != nil {
		s.metrics.EventCounter.WithLabelValues(event, "outbound").Inc()
	}
}

// deliverLocal forwards an envelope to the locally connected members of
// its room. Runs for every envelope received from the shared channel,
// including this process's own publishes.
func (s *Server) deliverLocal(env broadcast.Envelope) {
	key, err := rooms.ParseRoomKey(env.Room)
	if err != nil {
		s.log.Warn(context.Background(), "dropping envelope with malformed room", "room", env.Room, "origin", env.Origin)
		return
	}

	members := s.registry.Members(key)
	if len(members) == 0 {
		return
	}

	data := encodeFrame(env.Event, env.Payload)
	delivered := 0
	for _, m := range members {
		if m.ConnID == env.Exclude {
			continue
		}
		s.mu.RLock()
		c := s.conns[m.ConnID]
		s.mu.RUnlock()
		if c == nil {
			// Member registered by this process but already gone, or the
			// registry entry belongs to a connection mid-teardown.
			continue
		}
		c.enqueue(data)
		delivered++
	}
	if delivered > 0 && s.metrics != nil {
		s.metrics.EventCounter.WithLabelValues(env.Event, "outbound").Add(float64(delivered))
	}
}

// ConnCount reports the number of open local connections.
func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// Shutdown closes every open connection and stops accepting new ones.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
	s.log.Info(ctx, "gateway shut down", "connections_closed", len(conns))
}

func (s *Server) removeConn(c *Conn) {
	s.mu.Lock()
	_, present := s.conns[c.id]
	delete(s.conns, c.id)
	d := s.dispatcher
	s.mu.Unlock()
	if !present {
		return
	}

	if s.metrics != nil {
		s.metrics.ConnectionsActive.Dec()
	}
	if d != nil {
		d.Disconnect(context.Background(), c)
	}
	s.log.Info(context.Background(), "connection closed", "conn_id", c.id, "user_id", c.UserID())
}

// frame is the wire shape of every client-visible message.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, payload json.RawMessage) []byte {
	data, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		// A frame of a string event and pre-encoded payload cannot fail.
		panic(err)
	}
	return data
}

func marshalPayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}
