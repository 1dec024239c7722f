package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

const (
	MsgSetNickname    MessageType = "SET_NICKNAME"
	MsgChat           MessageType = "CHAT"
	MsgTypingStart    MessageType = "TYPING_START"
	MsgTypingStop     MessageType = "TYPING_STOP"
	MsgSystem         MessageType = "SYSTEM"
	MsgUserListUpdate MessageType = "USER_LIST_UPDATE"
)

// SystemSender is the sender name carried by every SYSTEM message.
const SystemSender = "系统"

// --- inbound ---

// Request is one decoded client message. It is one of SetNicknameRequest,
// ChatRequest or TypingRequest.
type Request interface {
	requestType() MessageType
}

type SetNicknameRequest struct {
	Nickname string
}

// ChatRequest carries the raw chat body. Message is nil when the field was
// absent or not a JSON string; such requests are dropped by the handler.
type ChatRequest struct {
	Message *string
}

type TypingRequest struct {
	Type MessageType
}

func (SetNicknameRequest) requestType() MessageType { return MsgSetNickname }
func (ChatRequest) requestType() MessageType        { return MsgChat }
func (r TypingRequest) requestType() MessageType    { return r.Type }

var (
	ErrMissingType  = errors.New("missing type")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing or invalid field")
)

// DecodeError is returned for any inbound frame that does not decode to a
// known request. Nothing is partially applied for such frames.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode: %v", e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses a text frame into a Request. Keys must match exactly and a
// JSON null counts as absent.
func Decode(data []byte) (Request, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Err: err}
	}
	typ, ok := stringField(fields, "type")
	if !ok {
		return nil, &DecodeError{Err: ErrMissingType}
	}

	t := MessageType(typ)
	switch t {
	case MsgSetNickname:
		nick, ok := stringField(fields, "nickname")
		if !ok {
			return nil, &DecodeError{Type: typ, Err: fmt.Errorf("nickname: %w", ErrMissingField)}
		}
		return SetNicknameRequest{Nickname: nick}, nil
	case MsgChat:
		body, ok := stringField(fields, "message")
		if !ok {
			return ChatRequest{}, nil
		}
		return ChatRequest{Message: &body}, nil
	case MsgTypingStart, MsgTypingStop:
		return TypingRequest{Type: t}, nil
	default:
		return nil, &DecodeError{Type: typ, Err: ErrUnknownType}
	}
}

// stringField reports fields[key] when it is present and a JSON string.
func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var v *string
	if err := json.Unmarshal(raw, &v); err != nil || v == nil {
		return "", false
	}
	return *v, true
}

// --- outbound ---

// Event is an outbound message. Its JSON encoding is the wire format.
type Event interface {
	EventType() MessageType
}

type SystemEvent struct {
	Type     MessageType `json:"type"`
	Sender   string      `json:"sender"`
	Message  string      `json:"message"`
	Nickname string      `json:"nickname,omitempty"`
}

type ChatEvent struct {
	Type    MessageType `json:"type"`
	Sender  string      `json:"sender"`
	Message string      `json:"message"`
}

type TypingEvent struct {
	Type   MessageType `json:"type"`
	Sender string      `json:"sender"`
}

type UserListEvent struct {
	Type  MessageType `json:"type"`
	Users []string    `json:"users"`
}

func (e SystemEvent) EventType() MessageType   { return e.Type }
func (e ChatEvent) EventType() MessageType     { return e.Type }
func (e TypingEvent) EventType() MessageType   { return e.Type }
func (e UserListEvent) EventType() MessageType { return e.Type }

func NewSystemEvent(message string) SystemEvent {
	return SystemEvent{Type: MsgSystem, Sender: SystemSender, Message: message}
}

// NewConfirmationEvent is the SYSTEM message sent only to a client whose
// nickname was just accepted.
func NewConfirmationEvent(message, nickname string) SystemEvent {
	return SystemEvent{Type: MsgSystem, Sender: SystemSender, Message: message, Nickname: nickname}
}

func NewChatEvent(sender, message string) ChatEvent {
	return ChatEvent{Type: MsgChat, Sender: sender, Message: message}
}

func NewTypingEvent(t MessageType, sender string) TypingEvent {
	return TypingEvent{Type: t, Sender: sender}
}

func NewUserListEvent(users []string) UserListEvent {
	if users == nil {
		users = []string{}
	}
	return UserListEvent{Type: MsgUserListUpdate, Users: users}
}
