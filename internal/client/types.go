// Package client provides the WebSocket client used by the terminal chat UI.
// Types mirror the relay wire protocol without importing server packages.
package client

// MessageType identifies the kind of WebSocket message.
type MessageType string

const (
	MsgSetNickname    MessageType = "SET_NICKNAME"
	MsgChat           MessageType = "CHAT"
	MsgTypingStart    MessageType = "TYPING_START"
	MsgTypingStop     MessageType = "TYPING_STOP"
	MsgSystem         MessageType = "SYSTEM"
	MsgUserListUpdate MessageType = "USER_LIST_UPDATE"
)

// Message is the union of every field the server sends.
type Message struct {
	Type     MessageType `json:"type"`
	Sender   string      `json:"sender,omitempty"`
	Message  string      `json:"message,omitempty"`
	Nickname string      `json:"nickname,omitempty"`
	Users    []string    `json:"users,omitempty"`
}

type setNicknameRequest struct {
	Type     MessageType `json:"type"`
	Nickname string      `json:"nickname"`
}

type chatRequest struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type typingRequest struct {
	Type MessageType `json:"type"`
}
