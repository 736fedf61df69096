// Package memory — кеш в памяти процесса, реализация storage.Store по
// умолчанию для одиночной клиентской сессии.
package memory

import (
	"context"
	"sync"

	"github.com/hirelink/chatclient/internal/model"
)

type Client struct {
	mu       sync.RWMutex
	convs    []model.Conversation
	convByID map[string]model.Conversation
	messages map[string][]model.Message
	unread   int
	presence map[string]model.Presence
}

func New() *Client {
	return &Client{
		convByID: make(map[string]model.Conversation),
		messages: make(map[string][]model.Message),
		presence: make(map[string]model.Presence),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) ReplaceConversations(ctx context.Context, convs []model.Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.convs = make([]model.Conversation, len(convs))
	copy(c.convs, convs)
	c.convByID = make(map[string]model.Conversation, len(convs))
	for i := range c.convs {
		if c.convs[i].UnreadCount < 0 {
			c.convs[i].UnreadCount = 0
		}
		c.convByID[c.convs[i].ID] = c.convs[i]
	}
	// Сообщения диалогов, пропавших из списка, не выбрасываем: клиент
	// диалоги не удаляет, а список мог прийти усечённым.
	return nil
}

func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Conversation, len(c.convs))
	copy(out, c.convs)
	return out, nil
}

func (c *Client) Conversation(ctx context.Context, id string) (model.Conversation, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conv, ok := c.convByID[id]
	return conv, ok, nil
}

func (c *Client) ReplaceMessages(ctx context.Context, conversationID string, msgs []model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureConversationLocked(conversationID)
	view := make([]model.Message, len(msgs))
	copy(view, msgs)
	c.messages[conversationID] = view
	return nil
}

func (c *Client) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := c.messages[conversationID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (c *Client) AppendPending(ctx context.Context, conversationID string, msg model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureConversationLocked(conversationID)
	msg.Pending = true
	c.messages[conversationID] = append(c.messages[conversationID], msg)
	return nil
}

func (c *Client) SetUnreadTotal(ctx context.Context, n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 0 {
		n = 0
	}
	c.unread = n
	return nil
}

func (c *Client) UnreadTotal(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread, nil
}

func (c *Client) SetPresence(ctx context.Context, p model.Presence) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence[p.UserID] = p
	return nil
}

func (c *Client) Presence(ctx context.Context, userID string) (model.Presence, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.presence[userID]
	return p, ok, nil
}

// ensureConversationLocked создаёт заглушку диалога, чтобы сообщения не
// существовали без родительской записи; полный вид диалога подтянет
// ближайший ReplaceConversations.
func (c *Client) ensureConversationLocked(conversationID string) {
	if _, ok := c.convByID[conversationID]; ok {
		return
	}
	stub := model.Conversation{ID: conversationID}
	c.convByID[conversationID] = stub
	c.convs = append(c.convs, stub)
}
