package chat

import (
	"context"
	"time"

	"github.com/hirelink/chatclient/internal/logger"
)

// Fallback-опрос: пока живой канал не в Connected, виды перечитываются по
// таймерам. Каждый цикл — независимая горутина со своим тикером; все они
// снимаются одним cancel, чтобы работа не «пережила» переключение в live
// или закрытие сессии.

func (s *Session) startPolling() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollCancel != nil || !s.api.HasToken() {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.pollCancel = cancel

	logger.Debugf("chat: polling started")
	s.pollLoop(ctx, s.cfg.Poll.Conversations, func() {
		s.refetchConversations()
	})
	s.pollLoop(ctx, s.cfg.Poll.Unread, func() {
		s.refetchUnread()
	})
	s.pollLoop(ctx, s.cfg.Poll.Messages, func() {
		// Открытого диалога нет — тик пропускается (опрос сообщений
		// фактически приостановлен).
		if conv := s.openConversation(); conv != "" {
			s.refetchMessages(conv)
		}
	})
	s.pollLoop(ctx, s.cfg.Poll.Presence, func() {
		if user := s.observedUser(); user != "" {
			s.refetchPresence(user)
		}
	})
}

func (s *Session) stopPolling() {
	s.mu.Lock()
	s.stopPollingLocked()
	s.mu.Unlock()
}

func (s *Session) stopPollingLocked() {
	if s.pollCancel == nil {
		return
	}
	s.pollCancel()
	s.pollCancel = nil
	logger.Debugf("chat: polling stopped")
}

func (s *Session) pollLoop(ctx context.Context, interval time.Duration, tick func()) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick()
			}
		}
	}()
}
