// Package protocol определяет формат кадров канала /ws/chat: JSON-текст,
// каждый кадр самодостаточен. Канал не даёт ни номеров последовательности,
// ни корреляции подтверждений — входящий кадр это сигнал перечитать
// состояние через API, а не само состояние.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/hirelink/chatclient/internal/model"
)

type EventType string

// Входящие кадры (сервер → клиент).
const (
	EventNewMessage   EventType = "new_message"
	EventMessageSent  EventType = "message_sent"
	EventTyping       EventType = "typing"
	EventMessagesRead EventType = "messages_read"
	EventUserStatus   EventType = "user_status"
	EventError        EventType = "error"
)

// Исходящие кадры (клиент → сервер).
const (
	EventChatMessage EventType = "chat_message"
	EventMarkRead    EventType = "mark_read"
)

// OutboundFrame is what the client sends to the server.
type OutboundFrame struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Content        string    `json:"content,omitempty"`
	ReplyToID      string    `json:"reply_to_id,omitempty"`
	IsTyping       *bool     `json:"is_typing,omitempty"`
}

// ChatMessage builds an outbound text-send frame.
func ChatMessage(conversationID, content, replyToID string) OutboundFrame {
	return OutboundFrame{
		Type:           EventChatMessage,
		ConversationID: conversationID,
		Content:        content,
		ReplyToID:      replyToID,
	}
}

// Typing builds an outbound typing-indicator frame.
func Typing(conversationID string, typing bool) OutboundFrame {
	return OutboundFrame{Type: EventTyping, ConversationID: conversationID, IsTyping: &typing}
}

// MarkRead builds an outbound read-receipt frame.
func MarkRead(conversationID string) OutboundFrame {
	return OutboundFrame{Type: EventMarkRead, ConversationID: conversationID}
}

// InboundFrame is what the server pushes to the client: a type tag plus a
// typed payload. Payload stays raw until the caller asks for the typed form.
type InboundFrame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessagePayload carries the created message for a new_message frame.
type NewMessagePayload struct {
	Message model.Message `json:"message"`
}

// TypingPayload carries the partner's typing state change.
type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

// MessagesReadPayload carries the conversation whose messages the partner read.
type MessagesReadPayload struct {
	ConversationID string `json:"conversation_id"`
}

// UserStatusPayload carries a presence change.
type UserStatusPayload struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

// ErrorPayload carries a server-side failure notice.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Decode parses one raw text frame from the channel.
func Decode(raw []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return InboundFrame{}, fmt.Errorf("protocol: decode frame: %w", err)
	}
	if f.Type == "" {
		return InboundFrame{}, fmt.Errorf("protocol: frame without type")
	}
	return f, nil
}

// Encode serializes an outbound frame to one text frame.
func Encode(f OutboundFrame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode frame: %w", err)
	}
	return data, nil
}

func (f InboundFrame) NewMessage() (NewMessagePayload, error) {
	var p NewMessagePayload
	err := json.Unmarshal(f.Payload, &p)
	return p, err
}

func (f InboundFrame) Typing() (TypingPayload, error) {
	var p TypingPayload
	err := json.Unmarshal(f.Payload, &p)
	return p, err
}

func (f InboundFrame) MessagesRead() (MessagesReadPayload, error) {
	var p MessagesReadPayload
	err := json.Unmarshal(f.Payload, &p)
	return p, err
}

func (f InboundFrame) UserStatus() (UserStatusPayload, error) {
	var p UserStatusPayload
	err := json.Unmarshal(f.Payload, &p)
	return p, err
}

func (f InboundFrame) ErrorMessage() (ErrorPayload, error) {
	var p ErrorPayload
	err := json.Unmarshal(f.Payload, &p)
	return p, err
}
