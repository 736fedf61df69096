package chat

import (
	"time"

	"github.com/hirelink/chatclient/internal/protocol"
)

// Индикатор печати. Локальная сторона: typing(true) на первом нажатии после
// паузы, typing(false) через TypingTimeout тишины или при отправке/очистке.
// Входящая сторона: индикатор собеседника гаснет по собственному таймеру,
// даже если его typing(false) потерялся — иначе «печатает…» зависает.
//
// Кадры печати существуют только в живом канале; в режиме опроса оба
// направления молчат.

// SetTyping вызывается на каждое нажатие клавиши в поле ввода диалога.
func (s *Session) SetTyping(conversationID string) {
	if !s.conn.Connected() {
		return
	}

	s.mu.Lock()
	prev := s.typingConv
	first := s.typingConv != conversationID
	s.typingConv = conversationID
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	// Таймер привязан к диалогу: сработает — погасим индикатор именно там.
	s.typingTimer = time.AfterFunc(s.cfg.TypingTimeout, func() {
		s.ClearTyping(conversationID)
	})
	s.mu.Unlock()

	if first {
		if prev != "" {
			s.sendTyping(prev, false)
		}
		s.sendTyping(conversationID, true)
	}
}

// ClearTyping гасит локальный индикатор печати (очистка поля, смена
// диалога, таймаут тишины).
func (s *Session) ClearTyping(conversationID string) {
	if !s.stopTypingTimer(conversationID) {
		return
	}
	s.sendTyping(conversationID, false)
}

// stopTypingTimer снимает таймер печати диалога; true — индикатор был активен.
func (s *Session) stopTypingTimer(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingConv != conversationID {
		return false
	}
	s.typingConv = ""
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	return true
}

func (s *Session) sendTyping(conversationID string, typing bool) {
	if !s.conn.Connected() {
		return
	}
	// Ошибка не важна: индикатор — не состояние, потерянный кадр истечёт
	// на другой стороне сам.
	_ = s.conn.Send(protocol.Typing(conversationID, typing))
}

// handlePartnerTyping обрабатывает входящий кадр typing: уведомляет UI и
// взводит страховочный таймер сброса.
func (s *Session) handlePartnerTyping(conversationID string, typing bool) {
	s.mu.Lock()
	if timer, ok := s.partnerTimers[conversationID]; ok {
		timer.Stop()
		delete(s.partnerTimers, conversationID)
	}
	if typing {
		s.partnerTimers[conversationID] = time.AfterFunc(s.cfg.TypingTimeout, func() {
			s.mu.Lock()
			delete(s.partnerTimers, conversationID)
			s.mu.Unlock()
			s.emit(Event{Kind: EventPartnerTyping, ConversationID: conversationID, Typing: false})
		})
	}
	s.mu.Unlock()

	s.emit(Event{Kind: EventPartnerTyping, ConversationID: conversationID, Typing: typing})
}
