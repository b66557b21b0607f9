package email

import (
	"strings"
	"testing"
)

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("no-reply@slotbook.local", "client@example.com", "Booking reminder", "See you tomorrow at 14:00.")

	headerPart, bodyPart, found := strings.Cut(msg, "\r\n\r\n")
	if !found {
		t.Fatal("message has no header/body separator")
	}
	for _, want := range []string{
		"From: no-reply@slotbook.local",
		"To: client@example.com",
		"Subject: Booking reminder",
		"Content-Type: text/plain; charset=utf-8",
	} {
		if !strings.Contains(headerPart, want) {
			t.Errorf("headers missing %q", want)
		}
	}
	if !strings.Contains(bodyPart, "See you tomorrow at 14:00.") {
		t.Errorf("body missing content: %q", bodyPart)
	}
}

func TestNewSMTPSenderDefaultsFrom(t *testing.T) {
	s := NewSMTPSender("mailpit", "1025", "  ")
	if s.from != "no-reply@slotbook.local" {
		t.Fatalf("from = %q", s.from)
	}
	if s.addr != "mailpit:1025" {
		t.Fatalf("addr = %q", s.addr)
	}
}
