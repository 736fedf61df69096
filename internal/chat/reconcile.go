package chat

import (
	"github.com/hirelink/chatclient/internal/logger"
	"github.com/hirelink/chatclient/internal/protocol"
)

// messagePageSize — размер страницы при перечитывании сообщений диалога.
const messagePageSize = 50

// handleFrame — единственная точка входа входящих кадров. Кадр — это триггер
// инвалидации, а не данные: всё, что важно для корректности (счётчики,
// прочитанность), перечитывается из API.
func (s *Session) handleFrame(f protocol.InboundFrame) {
	switch f.Type {
	case protocol.EventNewMessage:
		conversationID := s.openConversation()
		if p, err := f.NewMessage(); err == nil && p.Message.ConversationID != "" {
			conversationID = p.Message.ConversationID
		}
		if conversationID != "" {
			s.refetchMessages(conversationID)
		}
		s.refetchConversations()
		s.refetchUnread()

	case protocol.EventMessageSent:
		// Подтверждение собственной отправки: conversation_id кадр не несёт,
		// перечитываем открытый диалог.
		if conv := s.openConversation(); conv != "" {
			s.refetchMessages(conv)
		}
		s.refetchConversations()

	case protocol.EventTyping:
		p, err := f.Typing()
		if err != nil {
			logger.Errorf("chat: typing payload: %v", err)
			return
		}
		s.handlePartnerTyping(p.ConversationID, p.IsTyping)

	case protocol.EventMessagesRead:
		p, err := f.MessagesRead()
		if err != nil {
			logger.Errorf("chat: messages_read payload: %v", err)
			return
		}
		s.refetchMessages(p.ConversationID)
		s.refetchConversations()

	case protocol.EventUserStatus:
		p, err := f.UserStatus()
		if err != nil {
			logger.Errorf("chat: user_status payload: %v", err)
			return
		}
		s.refetchPresence(p.UserID)

	case protocol.EventError:
		p, err := f.ErrorMessage()
		if err != nil {
			logger.Errorf("chat: error payload: %v", err)
			return
		}
		// Кеш не трогаем — только отдаём наверх.
		logger.Errorf("chat: server error: %s", p.Message)
		s.emit(Event{Kind: EventServerError, Message: p.Message})

	default:
		logger.Debugf("chat: ignoring frame %s", f.Type)
	}
}

// Каждый refetch — независимая загрузка целого вида: кто завершился
// последним, тот и записал правду.

func (s *Session) refetchConversations() {
	go func() {
		convs, err := s.api.Conversations(s.ctx)
		if err != nil {
			logger.Errorf("chat: refetch conversations: %v", err)
			return
		}
		if err := s.store.ReplaceConversations(s.ctx, convs); err != nil {
			logger.Errorf("chat: store conversations: %v", err)
			return
		}
		s.emit(Event{Kind: EventConversationsUpdated})
	}()
}

func (s *Session) refetchMessages(conversationID string) {
	go func() {
		msgs, err := s.api.Messages(s.ctx, conversationID, messagePageSize, 0)
		if err != nil {
			logger.Errorf("chat: refetch messages %s: %v", conversationID, err)
			return
		}
		if err := s.store.ReplaceMessages(s.ctx, conversationID, msgs); err != nil {
			logger.Errorf("chat: store messages %s: %v", conversationID, err)
			return
		}
		s.emit(Event{Kind: EventMessagesUpdated, ConversationID: conversationID})
	}()
}

func (s *Session) refetchUnread() {
	go func() {
		n, err := s.api.UnreadCount(s.ctx)
		if err != nil {
			logger.Errorf("chat: refetch unread: %v", err)
			return
		}
		if err := s.store.SetUnreadTotal(s.ctx, n); err != nil {
			logger.Errorf("chat: store unread: %v", err)
			return
		}
		s.emit(Event{Kind: EventUnreadUpdated})
	}()
}

func (s *Session) refetchPresence(userID string) {
	go func() {
		p, err := s.api.UserStatus(s.ctx, userID)
		if err != nil {
			logger.Errorf("chat: refetch presence %s: %v", userID, err)
			return
		}
		if err := s.store.SetPresence(s.ctx, p); err != nil {
			logger.Errorf("chat: store presence: %v", err)
			return
		}
		s.emit(Event{Kind: EventPresenceUpdated, UserID: userID})
	}()
}
