package api

import (
	"context"
	"net/http"

	"github.com/hirelink/chatclient/internal/model"
)

// Conversations возвращает список диалогов пользователя.
func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetOrCreateConversation возвращает диалог с пользователем userID, создавая
// его при первом обращении (get-or-create на стороне сервера).
func (c *Client) GetOrCreateConversation(ctx context.Context, userID string) (model.Conversation, error) {
	body := struct {
		UserID string `json:"user_id"`
	}{UserID: userID}
	var out model.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", nil, body, &out); err != nil {
		return model.Conversation{}, err
	}
	return out, nil
}

// UnreadCount возвращает суммарный счётчик непрочитанных.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := c.do(ctx, http.MethodGet, "/unread-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

// UserStatus возвращает присутствие пользователя. 404 трактуется как
// «данных ещё нет», а не как ошибка: возвращается оффлайн-статус.
func (c *Client) UserStatus(ctx context.Context, userID string) (model.Presence, error) {
	var out model.Presence
	err := c.do(ctx, http.MethodGet, "/user-status/"+userID, nil, nil, &out)
	if err != nil {
		if IsNotFound(err) {
			return model.Presence{UserID: userID}, nil
		}
		return model.Presence{}, err
	}
	if out.UserID == "" {
		out.UserID = userID
	}
	return out, nil
}
