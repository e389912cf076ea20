// Package rooms tracks which connections belong to which rooms.
//
// A room is an ephemeral broadcast scope (a workspace, a channel, a direct
// conversation, or a per-user bot session). Rooms exist only while they have
// at least one member; the registry garbage-collects a room the moment its
// last member leaves.
package rooms

import (
	"fmt"
	"strings"
)

// Kind classifies a room by the entity it fans out for.
type Kind string

const (
	KindWorkspace    Kind = "workspace"
	KindChannel      Kind = "channel"
	KindConversation Kind = "conversation"

	// KindBot rooms are keyed by user id rather than an entity id, so a
	// user's AI-assistant exchanges reach all of their open connections.
	KindBot Kind = "bot"
)

// RoomKey identifies a room. Equality is structural: two keys with the same
// kind and id name the same room regardless of which process built them.
type RoomKey struct {
	Kind Kind
	ID   string
}

// WorkspaceRoom returns the room key for a workspace.
func WorkspaceRoom(workspaceID string) RoomKey {
	return RoomKey{Kind: KindWorkspace, ID: workspaceID}
}

// ChannelRoom returns the room key for a channel.
func ChannelRoom(channelID string) RoomKey {
	return RoomKey{Kind: KindChannel, ID: channelID}
}

// ConversationRoom returns the room key for a direct conversation.
func ConversationRoom(conversationID string) RoomKey {
	return RoomKey{Kind: KindConversation, ID: conversationID}
}

// BotRoom returns the per-user bot session room key.
func BotRoom(userID string) RoomKey {
	return RoomKey{Kind: KindBot, ID: userID}
}

// String renders the wire form used as registry and pub/sub key,
// e.g. "channel:67ab12".
func (k RoomKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// ParseRoomKey parses the "<kind>:<id>" wire form back into a RoomKey.
func ParseRoomKey(s string) (RoomKey, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return RoomKey{}, fmt.Errorf("malformed room key %q", s)
	}
	switch Kind(kind) {
	case KindWorkspace, KindChannel, KindConversation, KindBot:
		return RoomKey{Kind: Kind(kind), ID: id}, nil
	default:
		return RoomKey{}, fmt.Errorf("unknown room kind %q", kind)
	}
}

// StatusOnline is the only presence status currently modeled.
const StatusOnline = "online"

// Member is one connection's membership in one room. A connection holds at
// most one Member per room; re-joining overwrites rather than duplicates.
type Member struct {
	ConnID   string `json:"connId"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
	Status   string `json:"status"`
}
