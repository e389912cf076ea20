package router

// Inbound payload shapes. Fan-out events are relayed verbatim, so their
// structs carry only the fields the router itself reads; everything else
// passes through untouched as raw JSON.

type workspaceJoinPayload struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
	Username    string `json:"username"`
}

type workspaceLeavePayload struct {
	WorkspaceID string `json:"workspaceId"`
}

type channelJoinPayload struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
}

type channelLeavePayload struct {
	ChannelID string `json:"channelId"`
}

type channelScopedPayload struct {
	ChannelID string `json:"channelId"`
}

type channelCreatePayload struct {
	WorkspaceID string `json:"workspaceId"`
}

type channelTypingPayload struct {
	ChannelID string `json:"channelId"`
	IsTyping  bool   `json:"isTyping"`
}

type conversationConnectPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Username       string `json:"username"`
}

type conversationLeavePayload struct {
	ConversationID string `json:"conversationId"`
}

type conversationScopedPayload struct {
	ConversationID string `json:"conversationId"`
}

type conversationTypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type botConnectPayload struct {
	UserID string `json:"userId"`
}

type botMessagePayload struct {
	UserID      string `json:"userId"`
	Message     string `json:"message"`
	WorkspaceID string `json:"workspaceId"`
}

// Outbound payload shapes.

type userJoinedPayload struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
}

type userLeftPayload struct {
	UserID         string `json:"userId"`
	WorkspaceID    string `json:"workspaceId,omitempty"`
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

type typingPayload struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	IsTyping       bool   `json:"isTyping"`
	ChannelID      string `json:"channelId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}

type botConnectedPayload struct {
	UserID string `json:"userId"`
}

type botAnswerPayload struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
	Role    string `json:"role"`
}

type errorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
