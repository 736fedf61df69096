package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestNoToken(t *testing.T) {
	c := NewClient("http://localhost:9", "")
	if _, err := c.Conversations(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
	if err := c.MarkRead(context.Background(), "42"); !errors.Is(err, ErrNoToken) {
		t.Fatalf("MarkRead err = %v, want ErrNoToken", err)
	}
}

func TestConversations(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/conversations", func(w http.ResponseWriter, req *http.Request) {
		if got := req.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"42","partner":{"id":"u2","username":"recruiter"},"unread_count":3}]`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	convs, err := c.Conversations(context.Background())
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "42" || convs[0].UnreadCount != 3 {
		t.Errorf("convs = %+v", convs)
	}
	if convs[0].Partner.Username != "recruiter" {
		t.Errorf("partner = %+v", convs[0].Partner)
	}
}

func TestErrorDecoding(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/messages", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"not a participant"}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	_, err := c.SendMessage(context.Background(), SendMessageRequest{ConversationID: "42", Content: "hi"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Message != "not a participant" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if !IsStatus(err, http.StatusForbidden) {
		t.Error("IsStatus(403) = false")
	}
}

func TestUserStatusNotFoundIsNoData(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/user-status/{id}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"unknown user"}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	p, err := c.UserStatus(context.Background(), "u2")
	if err != nil {
		t.Fatalf("UserStatus on 404: %v, want nil (no data yet)", err)
	}
	if p.UserID != "u2" || p.IsOnline {
		t.Errorf("presence = %+v", p)
	}
}

func TestSendMessageBody(t *testing.T) {
	var got SendMessageRequest
	r := chi.NewRouter()
	r.Post("/messages", func(w http.ResponseWriter, req *http.Request) {
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"m9","conversation_id":"42","content":"hi","content_type":"text"}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	msg, err := c.SendMessage(context.Background(), SendMessageRequest{
		ConversationID: "42", Content: "hi", ReplyToID: "m1",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if got.ConversationID != "42" || got.Content != "hi" || got.ReplyToID != "m1" {
		t.Errorf("request body = %+v", got)
	}
	if msg.ID != "m9" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestSendAttachment(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/messages", func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := req.FormValue("conversation_id"); got != "42" {
			t.Errorf("conversation_id = %q", got)
		}
		if got := req.FormValue("content"); got != "resume attached" {
			t.Errorf("content = %q", got)
		}
		f, hdr, err := req.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "resume.pdf" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"m10","conversation_id":"42","content_type":"file","file_name":"resume.pdf"}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	msg, err := c.SendAttachment(context.Background(), "42", "resume.pdf", strings.NewReader("%PDF-1.4"), "resume attached")
	if err != nil {
		t.Fatalf("SendAttachment: %v", err)
	}
	if msg.ContentType != "file" || msg.FileName != "resume.pdf" {
		t.Errorf("msg = %+v", msg)
	}
}

func TestDeleteMessage(t *testing.T) {
	var gotPath string
	r := chi.NewRouter()
	r.Delete("/messages/{id}", func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	if err := c.DeleteMessage(context.Background(), "m7"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if gotPath != "/messages/m7" {
		t.Errorf("path = %q", gotPath)
	}
}
