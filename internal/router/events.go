package router

// Inbound event names, as sent by clients over the wire.
const (
	EventWorkspaceJoin  = "workspace:join"
	EventWorkspaceLeave = "workspace:leave"

	EventChannelJoin            = "channel:join"
	EventChannelLeave           = "channel:leave"
	EventChannelMessage         = "channel:message"
	EventChannelCreate          = "channel:create"
	EventChannelEditMessage     = "channel:edit_message"
	EventChannelTyping          = "channel:typing"
	EventChannelReaction        = "channel:reaction"
	EventChannelReactionRemoved = "channel:reaction_removed"
	EventChannelThreadReply     = "channel:thread_reply"

	EventConversationConnect         = "conversation:connect"
	EventConversationLeave           = "conversation:leave"
	EventConversationMessage         = "conversation:message"
	EventConversationTyping          = "conversation:typing"
	EventConversationEditMessage     = "conversation:edit_message"
	EventConversationReaction        = "conversation:reaction"
	EventConversationReactionRemoved = "conversation:reaction_removed"
	EventConversationThreadReply     = "conversation:thread_reply"

	EventBotConnect = "bot:connect"
	EventBotMessage = "bot:message"
)

// Outbound event names, emitted by the engine.
const (
	EventWorkspaceUsers    = "workspace:users"
	EventWorkspaceUserLeft = "workspace:user_left"

	EventChannelUsers      = "channel:users"
	EventChannelUserJoined = "channel:user_joined"
	EventChannelUserLeft   = "channel:user_left"

	EventConversationUsers    = "conversation:users"
	EventConversationUserLeft = "conversation:user_left"

	EventBotConnected = "bot:connected"

	EventError = "error"
)
