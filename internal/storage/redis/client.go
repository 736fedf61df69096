// Package redis — реализация storage.Store поверх Redis: общий кеш для
// нескольких процессов одного бота (например, пул воркеров рекрутингового
// ассистента). Представления хранятся как целые JSON-документы — кеш
// заменяется только видом целиком, как и в памяти.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hirelink/chatclient/internal/model"
	"github.com/redis/go-redis/v9"
)

// TTL видов: кеш — только ускоритель, истёкший вид перечитается из API.
const (
	conversationsTTL = 10 * time.Minute
	messagesTTL      = 10 * time.Minute
	unreadTTL        = 10 * time.Minute
	presenceTTL      = 2 * time.Minute
)

type Client struct {
	cli    *redis.Client
	prefix string
}

// New подключается к Redis и проверяет соединение. prefix разводит кеши
// разных локальных пользователей в одном Redis (например "chat:u1").
func New(ctx context.Context, url, prefix string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if prefix == "" {
		prefix = "chat"
	}
	return &Client{cli: cli, prefix: prefix}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func (c *Client) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (c *Client) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis marshal %s: %w", key, err)
	}
	return c.cli.Set(ctx, key, data, ttl).Err()
}

func (c *Client) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.cli.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("redis unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *Client) ReplaceConversations(ctx context.Context, convs []model.Conversation) error {
	clamped := make([]model.Conversation, len(convs))
	copy(clamped, convs)
	for i := range clamped {
		if clamped[i].UnreadCount < 0 {
			clamped[i].UnreadCount = 0
		}
	}
	return c.setJSON(ctx, c.key("conversations"), clamped, conversationsTTL)
}

func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var convs []model.Conversation
	if _, err := c.getJSON(ctx, c.key("conversations"), &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

func (c *Client) Conversation(ctx context.Context, id string) (model.Conversation, bool, error) {
	convs, err := c.Conversations(ctx)
	if err != nil {
		return model.Conversation{}, false, err
	}
	for _, conv := range convs {
		if conv.ID == id {
			return conv, true, nil
		}
	}
	return model.Conversation{}, false, nil
}

func (c *Client) ReplaceMessages(ctx context.Context, conversationID string, msgs []model.Message) error {
	if err := c.ensureConversation(ctx, conversationID); err != nil {
		return err
	}
	return c.setJSON(ctx, c.key("messages", conversationID), msgs, messagesTTL)
}

func (c *Client) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	if _, err := c.getJSON(ctx, c.key("messages", conversationID), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) AppendPending(ctx context.Context, conversationID string, msg model.Message) error {
	if err := c.ensureConversation(ctx, conversationID); err != nil {
		return err
	}
	msgs, err := c.Messages(ctx, conversationID)
	if err != nil {
		return err
	}
	msg.Pending = true
	// Pending не сериализуется в JSON; в общем кеше эхо помечается локальным id.
	return c.setJSON(ctx, c.key("messages", conversationID), append(msgs, msg), messagesTTL)
}

func (c *Client) SetUnreadTotal(ctx context.Context, n int) error {
	if n < 0 {
		n = 0
	}
	return c.cli.Set(ctx, c.key("unread"), n, unreadTTL).Err()
}

func (c *Client) UnreadTotal(ctx context.Context) (int, error) {
	n, err := c.cli.Get(ctx, c.key("unread")).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (c *Client) SetPresence(ctx context.Context, p model.Presence) error {
	return c.setJSON(ctx, c.key("presence", p.UserID), p, presenceTTL)
}

func (c *Client) Presence(ctx context.Context, userID string) (model.Presence, bool, error) {
	var p model.Presence
	ok, err := c.getJSON(ctx, c.key("presence", userID), &p)
	return p, ok, err
}

// ensureConversation держит инвариант «сообщение не живёт без диалога»:
// для неизвестного диалога пишется заглушка, полный вид подтянет ближайший
// ReplaceConversations.
func (c *Client) ensureConversation(ctx context.Context, conversationID string) error {
	convs, err := c.Conversations(ctx)
	if err != nil {
		return err
	}
	for _, conv := range convs {
		if conv.ID == conversationID {
			return nil
		}
	}
	convs = append(convs, model.Conversation{ID: conversationID})
	return c.setJSON(ctx, c.key("conversations"), convs, conversationsTTL)
}
