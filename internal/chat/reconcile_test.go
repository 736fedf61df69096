package chat

import (
	"context"
	"testing"
	"time"

	"github.com/hirelink/chatclient/internal/model"
	"github.com/hirelink/chatclient/internal/storage/memory"
)

func TestUserStatusFrameRefreshesPresence(t *testing.T) {
	f := newFixture(t)
	store := memory.New()
	s := New(f.config(), store)
	defer s.Close()
	s.Start(context.Background())
	waitFor(t, "live channel", func() bool { return s.Live() })

	// Кадр — только триггер: присутствие перечитывается из API, а не
	// берётся из кадра.
	f.push(t, `{"type":"user_status","payload":{"user_id":"u2","is_online":false}}`)

	waitFor(t, "presence refetched", func() bool {
		p, ok, _ := store.Presence(context.Background(), "u2")
		return ok && p.IsOnline // API фикстуры отвечает is_online:true
	})
}

func TestErrorFrameDoesNotTouchCache(t *testing.T) {
	f := newFixture(t)
	store := memory.New()
	s := New(f.config(), store)
	defer s.Close()
	s.Start(context.Background())
	waitFor(t, "live channel", func() bool { return s.Live() })

	store.ReplaceMessages(context.Background(), "42", []model.Message{{ID: "m1", Content: "kept"}})
	msgsBefore := f.getMessages.Load()

	f.push(t, `{"type":"error","payload":{"message":"rate limited"}}`)
	e := waitEvent(t, s, func(e Event) bool { return e.Kind == EventServerError })
	if e.Message != "rate limited" {
		t.Errorf("error event = %+v", e)
	}

	time.Sleep(30 * time.Millisecond)
	if f.getMessages.Load() != msgsBefore {
		t.Error("error frame triggered a refetch")
	}
	msgs, _ := store.Messages(context.Background(), "42")
	if len(msgs) != 1 || msgs[0].Content != "kept" {
		t.Errorf("cache mutated by error frame: %+v", msgs)
	}
}

func TestReplySnapshotSurvivesOriginalDeletion(t *testing.T) {
	f := newFixture(t)
	store := memory.New()
	s := New(f.config(), store)

	ctx := context.Background()
	store.ReplaceMessages(ctx, "42", []model.Message{{
		ID:             "m1",
		ConversationID: "42",
		Sender:         model.UserPublic{ID: "u2", Username: "recruiter"},
		Content:        "original offer text",
		ContentType:    model.ContentTypeText,
	}})

	// Снимок делается в момент отправки ответа.
	if err := s.SendText(ctx, "42", "sounds good", "m1"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	msgs, _ := store.Messages(ctx, "42")
	var snap *model.ReplySnapshot
	for _, m := range msgs {
		if m.Pending && m.ReplyTo != nil {
			snap = m.ReplyTo
		}
	}
	if snap == nil {
		t.Fatal("echo carries no reply snapshot")
	}
	if snap.SenderName != "recruiter" || snap.Preview != "original offer text" {
		t.Errorf("snapshot = %+v", snap)
	}

	// Оригинал удалён — снимок не перечитывается и остаётся прежним.
	captured := *snap
	store.ReplaceMessages(ctx, "42", []model.Message{
		{ID: "m1", ConversationID: "42", IsDeleted: true, ContentType: model.ContentTypeText},
		{ID: "m9", ConversationID: "42", Content: "sounds good", ContentType: model.ContentTypeText,
			ReplyToID: strPtr("m1"), ReplyTo: &captured},
	})
	msgs, _ = store.Messages(ctx, "42")
	for _, m := range msgs {
		if m.ID == "m9" {
			if m.ReplyTo == nil || m.ReplyTo.Preview != "original offer text" {
				t.Errorf("reply preview changed after deletion: %+v", m.ReplyTo)
			}
		}
		if m.ID == "m1" && !m.IsDeleted {
			t.Error("original not marked deleted")
		}
	}
}

func strPtr(s string) *string { return &s }
