package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hirelink/chatclient/internal/model"
)

// Messages возвращает страницу сообщений диалога (новые первыми).
func (c *Client) Messages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("conversation_id", conversationID)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var out []model.Message
	if err := c.do(ctx, http.MethodGet, "/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessageRequest — тело POST /messages.
type SendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	ReplyToID      string `json:"reply_to,omitempty"`
}

// SendMessage отправляет текстовое сообщение (fallback-путь вместо кадра
// chat_message).
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (model.Message, error) {
	var out model.Message
	if err := c.do(ctx, http.MethodPost, "/messages", nil, req, &out); err != nil {
		return model.Message{}, err
	}
	return out, nil
}

// SendAttachment отправляет файл с необязательной подписью. Вложения всегда
// идут по HTTP независимо от состояния живого канала: канал несёт только
// небольшие текстовые кадры.
func (c *Client) SendAttachment(ctx context.Context, conversationID, filename string, file io.Reader, caption string) (model.Message, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("conversation_id", conversationID); err != nil {
				return err
			}
			if caption != "" {
				if err := mw.WriteField("content", caption); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile("file", filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return err
			}
			return mw.Close()
		}()
		if err != nil {
			pw.CloseWithError(fmt.Errorf("api: build multipart: %w", err))
			return
		}
		pw.Close()
	}()

	var out model.Message
	if err := c.doMultipart(ctx, "/messages", mw.FormDataContentType(), pr, &out); err != nil {
		return model.Message{}, err
	}
	return out, nil
}

// MarkRead помечает сообщения диалога прочитанными (fallback-путь вместо
// кадра mark_read).
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	body := struct {
		ConversationID string `json:"conversation_id"`
	}{ConversationID: conversationID}
	return c.do(ctx, http.MethodPost, "/messages/mark-read", nil, body, nil)
}

// DeleteMessage помечает сообщение удалённым. Сервер не убирает строку,
// а выставляет is_deleted; право есть только у отправителя.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/messages/"+messageID, nil, nil, nil)
}
