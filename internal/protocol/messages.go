package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatMessage  MessageType = "chat_message"
	TypeChatResponse MessageType = "chat_response"
	TypeErrorEvent   MessageType = "error_event"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrEmptyMessage    = errors.New("chat_message requires a non-empty message")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

// ChatMessage is the websocket form of a POST /api/chat body.
type ChatMessage struct {
	Type    MessageType `json:"type"`
	ID      string      `json:"id,omitempty"`
	Message string      `json:"message"`
}

// ChatResponse carries the upstream chat-completion JSON unchanged.
type ChatResponse struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type ErrorEvent struct {
	Type   MessageType     `json:"type"`
	ID     string          `json:"id,omitempty"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error"`
}

// NewErrorEvent builds an error frame from a rendered {"error": ...} body.
func NewErrorEvent(id string, status int, body []byte) ErrorEvent {
	var wrapped struct {
		Error json.RawMessage `json:"error"`
	}
	errPayload := json.RawMessage(`"unknown error"`)
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Error) > 0 {
		errPayload = wrapped.Error
	}
	return ErrorEvent{Type: TypeErrorEvent, ID: id, Status: status, Error: errPayload}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatMessage:
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Message) == "" {
			return nil, ErrEmptyMessage
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
