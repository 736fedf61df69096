package chat

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hirelink/chatclient/internal/api"
	"github.com/hirelink/chatclient/internal/logger"
	"github.com/hirelink/chatclient/internal/model"
	"github.com/hirelink/chatclient/internal/protocol"
)

const replyPreviewLen = 80

// SendText отправляет текст в диалог. При живом канале — кадром chat_message
// (плюс сброс индикатора печати); иначе — HTTP-вызовом. После HTTP-пути виды
// перечитываются независимо от исхода: сервер мог сохранить сообщение даже
// при ошибочном ответе, и отличить это без перечитывания нельзя.
//
// Ошибка возвращается вызывающему, чтобы UI вернул черновик пользователю.
func (s *Session) SendText(ctx context.Context, conversationID, content, replyToID string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	s.appendEcho(conversationID, content, replyToID)

	if s.conn.Connected() {
		if err := s.conn.Send(protocol.ChatMessage(conversationID, content, replyToID)); err == nil {
			// Отправка текста завершает набор: таймер снимается, typing(false)
			// уходит вместе с сообщением, даже если индикатор уже истёк.
			s.stopTypingTimer(conversationID)
			s.sendTyping(conversationID, false)
			return nil
		}
		// Канал оборвался между проверкой и записью — уходим на HTTP-путь.
	}

	_, err := s.api.SendMessage(ctx, api.SendMessageRequest{
		ConversationID: conversationID,
		Content:        content,
		ReplyToID:      replyToID,
	})
	s.invalidateAfterSend(conversationID)
	return err
}

// SendAttachment отправляет файл с необязательной подписью. Вложения всегда
// идут HTTP-вызовом независимо от состояния канала: живой канал несёт только
// небольшие управляющие и текстовые кадры.
func (s *Session) SendAttachment(ctx context.Context, conversationID, filename string, file io.Reader, caption string) error {
	_, err := s.api.SendAttachment(ctx, conversationID, filename, file, caption)
	s.invalidateAfterSend(conversationID)
	return err
}

// DeleteMessage помечает собственное сообщение удалённым. Строка остаётся,
// контент скрывается; отмены нет.
func (s *Session) DeleteMessage(ctx context.Context, conversationID, messageID string) error {
	err := s.api.DeleteMessage(ctx, messageID)
	s.invalidateAfterSend(conversationID)
	return err
}

// MarkRead помечает сообщения диалога прочитанными: кадром при живом канале,
// HTTP-вызовом при опросе. В обоих случаях счётчики перечитываются из API.
func (s *Session) MarkRead(ctx context.Context, conversationID string) error {
	var err error
	if s.conn.Connected() {
		err = s.conn.Send(protocol.MarkRead(conversationID))
	} else {
		err = s.api.MarkRead(ctx, conversationID)
	}
	s.invalidateAfterSend(conversationID)
	return err
}

// invalidateAfterSend — безусловное перечитывание после любой попытки
// изменить состояние на сервере (отправка, удаление, прочтение).
func (s *Session) invalidateAfterSend(conversationID string) {
	s.refetchMessages(conversationID)
	s.refetchConversations()
	s.refetchUnread()
}

// appendEcho добавляет в кеш оптимистичное локальное эхо исходящего текста.
// Эхо живёт до ближайшего авторитетного перечитывания диалога.
func (s *Session) appendEcho(conversationID, content, replyToID string) {
	echo := model.Message{
		ID:             "local-" + uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		ContentType:    model.ContentTypeText,
		CreatedAt:      time.Now(),
	}
	if replyToID != "" {
		echo.ReplyToID = &replyToID
		// Снимок оригинала делается один раз, сейчас: превью ответа
		// переживёт удаление исходного сообщения.
		if snap, ok := s.replySnapshot(conversationID, replyToID); ok {
			echo.ReplyTo = &snap
		}
	}
	if err := s.store.AppendPending(s.ctx, conversationID, echo); err != nil {
		logger.Errorf("chat: append echo: %v", err)
		return
	}
	s.emit(Event{Kind: EventMessagesUpdated, ConversationID: conversationID})
}

// replySnapshot собирает денормализованный снимок сообщения, на которое
// отвечаем, из текущего вида кеша.
func (s *Session) replySnapshot(conversationID, messageID string) (model.ReplySnapshot, bool) {
	msgs, err := s.store.Messages(s.ctx, conversationID)
	if err != nil {
		return model.ReplySnapshot{}, false
	}
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		return model.ReplySnapshot{
			SenderName:  msgs[i].Sender.Username,
			ContentType: msgs[i].ContentType,
			Preview:     msgs[i].Preview(replyPreviewLen),
		}, true
	}
	return model.ReplySnapshot{}, false
}
