package model

import "time"

// Conversation — строго двухсторонний диалог. Локальный пользователь
// подразумевается, Partner — вторая сторона. LastMessage* — денормализованный
// снимок последнего сообщения для списка диалогов.
type Conversation struct {
	ID            string     `json:"id"`
	Partner       UserPublic `json:"partner"`
	LastMessage   string     `json:"last_message"`
	LastMessageAt time.Time  `json:"last_message_at"`
	UnreadCount   int        `json:"unread_count"`
	CreatedAt     time.Time  `json:"created_at"`
}
