// Package router maps inbound client events to handlers.
//
// Each event name resolves through a dispatch table to a handler plus the
// client-facing failure message used when that handler errors. Handlers
// fall into three shapes: membership changes (join/leave against the room
// registry, followed by a roster or departure broadcast), fan-out relays
// (the inbound payload forwarded verbatim to a room, excluding the
// sender), and the assistant exchange (a relay plus an AI completion).
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Rostammahabadi/better-slack-backend/internal/bot"
	"github.com/Rostammahabadi/better-slack-backend/internal/observability"
	"github.com/Rostammahabadi/better-slack-backend/internal/rooms"
)

// DefaultBotTimeout bounds a single AI completion call.
const DefaultBotTimeout = 30 * time.Second

// Session is the router's view of the originating connection.
type Session interface {
	// ID is the process-unique connection id.
	ID() string
	// UserID is the authenticated user id, empty in presence-only mode.
	UserID() string
	// Username is the authenticated display name, may be empty.
	Username() string
}

// Emitter delivers outbound events. EmitToRoom fans out to every member
// of the room across all processes, minus the excluded connection;
// EmitToConn targets one local connection. A json.RawMessage payload is
// forwarded byte-for-byte.
type Emitter interface {
	EmitToRoom(ctx context.Context, room rooms.RoomKey, event string, payload any, exclude string)
	EmitToConn(connID, event string, payload any)
}

// Config assembles a Router.
type Config struct {
	Registry *rooms.Registry
	Emitter  Emitter

	// Completer answers bot:message events. Nil disables the assistant;
	// bot:message then fails with an error event.
	Completer bot.Completer

	// BotTimeout bounds one completion call. Defaults to DefaultBotTimeout.
	BotTimeout time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

type handlerFunc func(ctx context.Context, sess Session, data json.RawMessage) error

type handlerEntry struct {
	fn handlerFunc
	// failMsg is the human-readable message sent to the client when the
	// handler errors; the underlying error rides alongside it.
	failMsg string
}

// Router dispatches decoded client frames to event handlers.
type Router struct {
	registry   *rooms.Registry
	emit       Emitter
	completer  bot.Completer
	botTimeout time.Duration

	log     *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	handlers map[string]handlerEntry
}

// New builds a router over the given registry and emitter.
func New(config Config) *Router {
	if config.BotTimeout <= 0 {
		config.BotTimeout = DefaultBotTimeout
	}
	if config.Logger == nil {
		config.Logger = observability.NewLogger(observability.LogConfig{})
	}

	r := &Router{
		registry:   config.Registry,
		emit:       config.Emitter,
		completer:  config.Completer,
		botTimeout: config.BotTimeout,
		log:        config.Logger,
		metrics:    config.Metrics,
		tracer:     config.Tracer,
	}

	r.handlers = map[string]handlerEntry{
		EventWorkspaceJoin:  {r.handleWorkspaceJoin, "Failed to join workspace"},
		EventWorkspaceLeave: {r.handleWorkspaceLeave, "Failed to leave workspace"},

		EventChannelJoin:            {r.handleChannelJoin, "Failed to join channel"},
		EventChannelLeave:           {r.handleChannelLeave, "Failed to leave channel"},
		EventChannelMessage:         {r.relayChannel(EventChannelMessage), "Failed to send message"},
		EventChannelCreate:          {r.handleChannelCreate, "Failed to create channel"},
		EventChannelEditMessage:     {r.relayChannel(EventChannelEditMessage), "Failed to edit message"},
		EventChannelTyping:          {r.handleChannelTyping, "Failed to send typing indicator"},
		EventChannelReaction:        {r.relayChannel(EventChannelReaction), "Failed to add reaction"},
		EventChannelReactionRemoved: {r.relayChannel(EventChannelReactionRemoved), "Failed to remove reaction"},
		EventChannelThreadReply:     {r.relayChannel(EventChannelThreadReply), "Failed to send thread reply"},

		EventConversationConnect:         {r.handleConversationConnect, "Failed to join conversation"},
		EventConversationLeave:           {r.handleConversationLeave, "Failed to leave conversation"},
		EventConversationMessage:         {r.relayConversation(EventConversationMessage), "Failed to send message"},
		EventConversationTyping:          {r.handleConversationTyping, "Failed to send typing indicator"},
		EventConversationEditMessage:     {r.relayConversation(EventConversationEditMessage), "Failed to edit message"},
		EventConversationReaction:        {r.relayConversation(EventConversationReaction), "Failed to add reaction"},
		EventConversationReactionRemoved: {r.relayConversation(EventConversationReactionRemoved), "Failed to remove reaction"},
		EventConversationThreadReply:     {r.relayConversation(EventConversationThreadReply), "Failed to send thread reply"},

		EventBotConnect: {r.handleBotConnect, "Failed to connect to assistant"},
		EventBotMessage: {r.handleBotMessage, "Failed to get assistant response"},
	}
	return r
}

// Dispatch routes one inbound frame. Handler failures are reported to the
// originating connection as an error event and returned to the caller for
// logging; peers never observe a failed event.
func (r *Router) Dispatch(ctx context.Context, sess Session, event string, data json.RawMessage) error {
	entry, ok := r.handlers[event]
	if !ok {
		r.log.Warn(ctx, "unknown event", "event", event, "conn_id", sess.ID())
		r.emit.EmitToConn(sess.ID(), EventError, errorPayload{Message: fmt.Sprintf("Unknown event %q", event)})
		return fmt.Errorf("unknown event %q", event)
	}

	r.countEvent(event, "inbound")

	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, "router.dispatch",
			attribute.String("event", event),
			attribute.String("conn.id", sess.ID()),
		)
		defer span.End()
	}

	if err := entry.fn(ctx, sess, data); err != nil {
		if span != nil {
			observability.RecordError(span, err)
		}
		if r.metrics != nil {
			r.metrics.HandlerErrors.WithLabelValues(event).Inc()
		}
		r.log.Error(ctx, "event handler failed", "event", event, "conn_id", sess.ID(), "error", err)
		r.emit.EmitToConn(sess.ID(), EventError, errorPayload{Message: entry.failMsg, Error: err.Error()})
		return err
	}
	return nil
}

// Disconnect drains every room the connection belongs to and announces the
// departures. Bot rooms get no departure event; the remaining tabs of the
// same user have nothing to update.
func (r *Router) Disconnect(ctx context.Context, sess Session) {
	drained := r.registry.Drain(sess.ID())
	for _, d := range drained {
		switch d.Room.Kind {
		case rooms.KindWorkspace:
			r.emit.EmitToRoom(ctx, d.Room, EventWorkspaceUserLeft,
				userLeftPayload{UserID: d.Member.UserID, WorkspaceID: d.Room.ID}, sess.ID())
		case rooms.KindChannel:
			r.emit.EmitToRoom(ctx, d.Room, EventChannelUserLeft,
				userLeftPayload{UserID: d.Member.UserID, ChannelID: d.Room.ID}, sess.ID())
		case rooms.KindConversation:
			r.emit.EmitToRoom(ctx, d.Room, EventConversationUserLeft,
				userLeftPayload{UserID: d.Member.UserID, ConversationID: d.Room.ID}, sess.ID())
		}
		r.updateRoomGauge(d.Room.Kind)
	}
	if len(drained) > 0 {
		r.log.Debug(ctx, "drained session", "conn_id", sess.ID(), "rooms", len(drained))
	}
}

func (r *Router) handleWorkspaceJoin(ctx context.Context, sess Session, data json.RawMessage) error {
	var p workspaceJoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.WorkspaceID == "" {
		return errors.New("workspaceId is required")
	}
	userID, username := r.identity(sess, p.UserID, p.Username)

	room := rooms.WorkspaceRoom(p.WorkspaceID)
	roster := r.registry.Join(room, rooms.Member{ConnID: sess.ID(), UserID: userID, Username: username})
	r.updateRoomGauge(room.Kind)
	r.emit.EmitToRoom(ctx, room, EventWorkspaceUsers, roster, "")
	return nil
}

func (r *Router) handleWorkspaceLeave(ctx context.Context, sess Session, data json.RawMessage) error {
	var p workspaceLeavePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.WorkspaceID == "" {
		return errors.New("workspaceId is required")
	}

	room := rooms.WorkspaceRoom(p.WorkspaceID)
	m, ok := r.registry.Leave(room, sess.ID())
	r.updateRoomGauge(room.Kind)
	if !ok {
		return nil
	}
	r.emit.EmitToRoom(ctx, room, EventWorkspaceUserLeft,
		userLeftPayload{UserID: m.UserID, WorkspaceID: p.WorkspaceID}, sess.ID())
	return nil
}

func (r *Router) handleChannelJoin(ctx context.Context, sess Session, data json.RawMessage) error {
	var p channelJoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.ChannelID == "" {
		return errors.New("channelId is required")
	}
	userID, username := r.identity(sess, p.UserID, p.Username)

	room := rooms.ChannelRoom(p.ChannelID)
	roster := r.registry.Join(room, rooms.Member{ConnID: sess.ID(), UserID: userID, Username: username})
	r.updateRoomGauge(room.Kind)
	r.emit.EmitToRoom(ctx, room, EventChannelUsers, roster, "")
	r.emit.EmitToRoom(ctx, room, EventChannelUserJoined,
		userJoinedPayload{UserID: userID, ChannelID: p.ChannelID}, sess.ID())
	return nil
}

func (r *Router) handleChannelLeave(ctx context.Context, sess Session, data json.RawMessage) error {
	var p channelLeavePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.ChannelID == "" {
		return errors.New("channelId is required")
	}

	room := rooms.ChannelRoom(p.ChannelID)
	m, ok := r.registry.Leave(room, sess.ID())
	r.updateRoomGauge(room.Kind)
	if !ok {
		return nil
	}
	r.emit.EmitToRoom(ctx, room, EventChannelUserLeft,
		userLeftPayload{UserID: m.UserID, ChannelID: p.ChannelID}, sess.ID())
	return nil
}

// handleChannelCreate announces a new channel to the whole workspace. The
// payload is the channel object itself and passes through verbatim.
func (r *Router) handleChannelCreate(ctx context.Context, sess Session, data json.RawMessage) error {
	var p channelCreatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.WorkspaceID == "" {
		return errors.New("workspaceId is required")
	}
	r.emit.EmitToRoom(ctx, rooms.WorkspaceRoom(p.WorkspaceID), EventChannelCreate, data, sess.ID())
	return nil
}

func (r *Router) handleChannelTyping(ctx context.Context, sess Session, data json.RawMessage) error {
	var p channelTypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.ChannelID == "" {
		return errors.New("channelId is required")
	}

	room := rooms.ChannelRoom(p.ChannelID)
	m, ok := r.registry.Member(room, sess.ID())
	if !ok {
		// Typing from a non-member is dropped silently; there is no
		// roster identity to attach and nothing the room should see.
		return nil
	}
	r.emit.EmitToRoom(ctx, room, EventChannelTyping, typingPayload{
		UserID:    memberUserID(m, sess),
		Username:  memberUsername(m, sess),
		IsTyping:  p.IsTyping,
		ChannelID: p.ChannelID,
	}, sess.ID())
	return nil
}

func (r *Router) handleConversationConnect(ctx context.Context, sess Session, data json.RawMessage) error {
	var p conversationConnectPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.ConversationID == "" {
		return errors.New("conversationId is required")
	}
	userID, username := r.identity(sess, p.UserID, p.Username)

	room := rooms.ConversationRoom(p.ConversationID)
	roster := r.registry.Join(room, rooms.Member{ConnID: sess.ID(), UserID: userID, Username: username})
	r.updateRoomGauge(room.Kind)
	r.emit.EmitToRoom(ctx, room, EventConversationUsers, roster, "")
	return nil
}

func (r *Router) handleConversationLeave(ctx context.Context, sess Session, data json.RawMessage) error {
	var p conversationLeavePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.ConversationID == "" {
		return errors.New("conversationId is required")
	}

	room := rooms.ConversationRoom(p.ConversationID)
	m, ok := r.registry.Leave(room, sess.ID())
	r.updateRoomGauge(room.Kind)
	if !ok {
		return nil
	}
	r.emit.EmitToRoom(ctx, room, EventConversationUserLeft,
		userLeftPayload{UserID: m.UserID, ConversationID: p.ConversationID}, sess.ID())
	return nil
}

func (r *Router) handleConversationTyping(ctx context.Context, sess Session, data json.RawMessage) error {
	var p conversationTypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if p.ConversationID == "" {
		return errors.New("conversationId is required")
	}

	room := rooms.ConversationRoom(p.ConversationID)
	m, ok := r.registry.Member(room, sess.ID())
	if !ok {
		return nil
	}
	r.emit.EmitToRoom(ctx, room, EventConversationTyping, typingPayload{
		UserID:         memberUserID(m, sess),
		Username:       memberUsername(m, sess),
		IsTyping:       p.IsTyping,
		ConversationID: p.ConversationID,
	}, sess.ID())
	return nil
}

func (r *Router) handleBotConnect(ctx context.Context, sess Session, data json.RawMessage) error {
	var p botConnectPayload
	if len(data) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	userID := p.UserID
	if userID == "" {
		userID = sess.UserID()
	}
	if userID == "" {
		return errors.New("userId is required")
	}

	room := rooms.BotRoom(userID)
	r.registry.Join(room, rooms.Member{ConnID: sess.ID(), UserID: userID, Username: sess.Username()})
	r.updateRoomGauge(room.Kind)
	r.emit.EmitToRoom(ctx, room, EventBotConnected, botConnectedPayload{UserID: userID}, "")
	return nil
}

// handleBotMessage relays the question to the user's bot room, then runs
// the completion off the read loop so a slow model does not stall the
// connection. The answer fans out to every tab in the room; a failure goes
// only to the asking connection.
func (r *Router) handleBotMessage(ctx context.Context, sess Session, data json.RawMessage) error {
	var p botMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	userID := p.UserID
	if userID == "" {
		userID = sess.UserID()
	}
	if userID == "" {
		return errors.New("userId is required")
	}
	if p.Message == "" {
		return errors.New("message is required")
	}
	if r.completer == nil {
		return errors.New("assistant is not configured")
	}

	room := rooms.BotRoom(userID)
	r.emit.EmitToRoom(ctx, room, EventBotMessage, data, sess.ID())

	go r.completeAndReply(context.WithoutCancel(ctx), room, userID, p.Message, p.WorkspaceID, sess.ID())
	return nil
}

func (r *Router) completeAndReply(ctx context.Context, room rooms.RoomKey, userID, question, workspaceID, connID string) {
	ctx, cancel := context.WithTimeout(ctx, r.botTimeout)
	defer cancel()

	start := time.Now()
	answer, err := r.completer.Complete(ctx, question, workspaceID)
	elapsed := time.Since(start)

	if r.metrics != nil {
		r.metrics.BotRequestDuration.Observe(elapsed.Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		r.metrics.BotRequestCounter.WithLabelValues(status).Inc()
	}

	if err != nil {
		r.log.Error(ctx, "assistant completion failed", "user_id", userID, "error", err, "elapsed", elapsed)
		r.emit.EmitToConn(connID, EventError,
			errorPayload{Message: "Failed to get assistant response", Error: err.Error()})
		return
	}

	r.log.Debug(ctx, "assistant completion finished", "user_id", userID, "elapsed", elapsed)
	r.emit.EmitToRoom(ctx, room, EventBotMessage,
		botAnswerPayload{UserID: userID, Message: answer, Role: "assistant"}, "")
}

// relayChannel builds a verbatim fan-out handler for a channel-scoped event.
func (r *Router) relayChannel(event string) handlerFunc {
	return func(ctx context.Context, sess Session, data json.RawMessage) error {
		var p channelScopedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if p.ChannelID == "" {
			return errors.New("channelId is required")
		}
		r.emit.EmitToRoom(ctx, rooms.ChannelRoom(p.ChannelID), event, data, sess.ID())
		return nil
	}
}

// relayConversation builds a verbatim fan-out handler for a
// conversation-scoped event.
func (r *Router) relayConversation(event string) handlerFunc {
	return func(ctx context.Context, sess Session, data json.RawMessage) error {
		var p conversationScopedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if p.ConversationID == "" {
			return errors.New("conversationId is required")
		}
		r.emit.EmitToRoom(ctx, rooms.ConversationRoom(p.ConversationID), event, data, sess.ID())
		return nil
	}
}

// identity prefers the client-supplied fields and falls back to the
// authenticated session, matching the contract where the HTTP API layer
// owns identity and the realtime layer only relays it.
func (r *Router) identity(sess Session, userID, username string) (string, string) {
	if userID == "" {
		userID = sess.UserID()
	}
	if username == "" {
		username = sess.Username()
	}
	return userID, username
}

// memberUserID resolves the sender's user id from their membership, so
// typing indicators carry the identity the roster already shows.
func memberUserID(m rooms.Member, sess Session) string {
	if m.UserID != "" {
		return m.UserID
	}
	return sess.UserID()
}

func memberUsername(m rooms.Member, sess Session) string {
	if m.Username != "" {
		return m.Username
	}
	return sess.Username()
}

func (r *Router) countEvent(event, direction string) {
	if r.metrics != nil {
		r.metrics.EventCounter.WithLabelValues(event, direction).Inc()
	}
}

func (r *Router) updateRoomGauge(kind rooms.Kind) {
	if r.metrics != nil {
		r.metrics.RoomsActive.WithLabelValues(string(kind)).Set(float64(r.registry.RoomCount(kind)))
	}
}
