package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hirelink/chatclient/internal/storage/memory"
)

func waitEvent(t *testing.T, s *Session, match func(Event) bool) Event {
	t.Helper()
	for {
		select {
		case e := <-s.Events():
			if match(e) {
				return e
			}
		case <-time.After(3 * time.Second):
			t.Fatal("expected event did not arrive")
		}
	}
}

func TestTypingThrottleAndAutoClear(t *testing.T) {
	f := newFixture(t)
	s := New(f.config(), memory.New())
	defer s.Close()
	s.Start(context.Background())
	waitFor(t, "live channel", func() bool { return s.Live() })

	// Серия нажатий — ровно один typing(true).
	s.SetTyping("42")
	s.SetTyping("42")
	s.SetTyping("42")
	raw := waitFrame(t, f, `"is_typing":true`)
	if !strings.Contains(string(raw), `"conversation_id":"42"`) {
		t.Errorf("typing frame = %s", raw)
	}
	select {
	case extra := <-f.wsFrames:
		if strings.Contains(string(extra), `"is_typing":true`) {
			t.Errorf("duplicate typing(true): %s", extra)
		}
	case <-time.After(30 * time.Millisecond):
	}

	// Тишина дольше таймаута — индикатор гаснет сам, без новых нажатий.
	waitFrame(t, f, `"is_typing":false`)
}

func TestSendTextClearsTypingIndicator(t *testing.T) {
	f := newFixture(t)
	s := New(f.config(), memory.New())
	defer s.Close()
	s.Start(context.Background())
	waitFor(t, "live channel", func() bool { return s.Live() })

	s.SetTyping("42")
	waitFrame(t, f, `"is_typing":true`)

	if err := s.SendText(context.Background(), "42", "done typing", ""); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	// typing(false) уходит вместе с сообщением, не дожидаясь таймера.
	waitFrame(t, f, `"is_typing":false`)
	waitFrame(t, f, `"chat_message"`)
}

func TestPartnerTypingAutoExpires(t *testing.T) {
	f := newFixture(t)
	s := New(f.config(), memory.New())
	defer s.Close()
	s.Start(context.Background())
	waitFor(t, "live channel", func() bool { return s.Live() })

	f.push(t, `{"type":"typing","payload":{"conversation_id":"42","is_typing":true}}`)

	e := waitEvent(t, s, func(e Event) bool { return e.Kind == EventPartnerTyping })
	if !e.Typing || e.ConversationID != "42" {
		t.Errorf("event = %+v", e)
	}

	// Кадр typing(false) от сервера потерян — индикатор истекает сам.
	e = waitEvent(t, s, func(e Event) bool { return e.Kind == EventPartnerTyping && !e.Typing })
	if e.ConversationID != "42" {
		t.Errorf("expiry event = %+v", e)
	}
}

func TestTypingIsSilentWhilePolling(t *testing.T) {
	f := newFixture(t)
	s := New(f.config(), memory.New())
	// Канал не подключён: нажатия не порождают ни кадров, ни HTTP-вызовов.
	s.SetTyping("42")
	s.ClearTyping("42")

	time.Sleep(30 * time.Millisecond)
	if n := f.postMessages.Load(); n != 0 {
		t.Errorf("typing leaked to REST: %d calls", n)
	}
}
