package model

import "testing"

func TestPreview(t *testing.T) {
	m := Message{Content: "short", ContentType: ContentTypeText}
	if got := m.Preview(80); got != "short" {
		t.Errorf("Preview = %q", got)
	}

	long := Message{Content: "это очень длинное сообщение о вакансии разработчика"}
	if got := long.Preview(10); got != "это очень …" {
		t.Errorf("truncated Preview = %q", got)
	}

	file := Message{ContentType: ContentTypeFile, FileName: "resume.pdf"}
	if got := file.Preview(80); got != "resume.pdf" {
		t.Errorf("attachment Preview = %q", got)
	}

	deleted := Message{Content: "secret", IsDeleted: true}
	if got := deleted.Preview(80); got != "" {
		t.Errorf("deleted Preview = %q, want empty", got)
	}
}
