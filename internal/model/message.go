package model

import "time"

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeFile  ContentType = "file"
)

// ReplySnapshot — снимок исходного сообщения, сделанный в момент отправки
// ответа. Хранится отдельно от самого сообщения: превью остаётся стабильным,
// даже если оригинал позже удалён.
type ReplySnapshot struct {
	SenderName  string      `json:"sender_name"`
	ContentType ContentType `json:"content_type"`
	Preview     string      `json:"preview"`
}

// Message — сообщение диалога. Неизменяемо, кроме IsDeleted (односторонний
// флаг, ставит только отправитель) и IsRead (ставит только получатель).
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Sender         UserPublic     `json:"sender"`
	Content        string         `json:"content"`
	ContentType    ContentType    `json:"content_type"`
	FileURL        string         `json:"file_url,omitempty"`
	FileName       string         `json:"file_name,omitempty"`
	FileSize       int64          `json:"file_size,omitempty"`
	ReplyToID      *string        `json:"reply_to_id,omitempty"`
	ReplyTo        *ReplySnapshot `json:"reply_to,omitempty"`
	IsDeleted      bool           `json:"is_deleted"`
	IsRead         bool           `json:"is_read"`
	CreatedAt      time.Time      `json:"created_at"`

	// Pending выставляется только локально для оптимистичного эха исходящего
	// текста; сервер это поле не возвращает.
	Pending bool `json:"-"`
}

// Preview возвращает короткий текст для снимка ответа и списка диалогов.
func (m *Message) Preview(max int) string {
	if m.IsDeleted {
		return ""
	}
	text := m.Content
	if text == "" {
		text = m.FileName
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
