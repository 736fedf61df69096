package storage

import (
	"context"

	"github.com/hirelink/chatclient/internal/model"
)

// Store — кеш диалогов, сообщений и присутствия. Единица консистентности —
// целиком перечитанное представление: Replace* заменяют вид полностью,
// постепенных патчей нет. Реализации: memory.Client (по умолчанию),
// redis.Client (общий кеш для многопроцессных ботов).
//
// Инварианты, которые обязана держать реализация:
//   - сообщение не живёт без родительской записи диалога;
//   - счётчик непрочитанных не бывает отрицательным.
type Store interface {
	ReplaceConversations(ctx context.Context, convs []model.Conversation) error
	Conversations(ctx context.Context) ([]model.Conversation, error)
	Conversation(ctx context.Context, id string) (model.Conversation, bool, error)

	ReplaceMessages(ctx context.Context, conversationID string, msgs []model.Message) error
	Messages(ctx context.Context, conversationID string) ([]model.Message, error)
	// AppendPending добавляет оптимистичное локальное эхо исходящего
	// сообщения. Эхо живёт до ближайшего ReplaceMessages этого диалога.
	AppendPending(ctx context.Context, conversationID string, msg model.Message) error

	SetUnreadTotal(ctx context.Context, n int) error
	UnreadTotal(ctx context.Context) (int, error)

	SetPresence(ctx context.Context, p model.Presence) error
	Presence(ctx context.Context, userID string) (model.Presence, bool, error)

	Close() error
}
