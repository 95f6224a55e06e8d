package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateContentBoundary(t *testing.T) {
	exact := strings.Repeat("a", MaxContentLength)
	clean, err := ValidateContent(exact)
	if err != nil {
		t.Fatalf("content of exactly %d chars should pass: %v", MaxContentLength, err)
	}
	if clean != exact {
		t.Fatal("content should be returned unchanged")
	}

	over := strings.Repeat("a", MaxContentLength+1)
	if _, err := ValidateContent(over); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}
}

func TestValidateContentBoundaryMultibyte(t *testing.T) {
	// The limit counts characters, so multibyte content at exactly the
	// limit must pass even though its byte length is larger.
	exact := strings.Repeat("é", MaxContentLength)
	if _, err := ValidateContent(exact); err != nil {
		t.Fatalf("%d multibyte chars should pass: %v", MaxContentLength, err)
	}

	over := strings.Repeat("é", MaxContentLength+1)
	if _, err := ValidateContent(over); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}
}

func TestValidateContentEmpty(t *testing.T) {
	for _, content := range []string{"", "   ", "\n\t ", "<b></b>"} {
		if _, err := ValidateContent(content); !errors.Is(err, ErrEmptyContent) {
			t.Fatalf("content %q: expected ErrEmptyContent, got %v", content, err)
		}
	}
}

func TestValidateContentSpam(t *testing.T) {
	spam := strings.TrimSpace(strings.Repeat("buy ", 20))
	if _, err := ValidateContent(spam); !errors.Is(err, ErrSpamContent) {
		t.Fatalf("expected ErrSpamContent, got %v", err)
	}

	// Short repeated greetings are not spam.
	if _, err := ValidateContent("ok ok ok"); err != nil {
		t.Fatalf("short repetition should pass: %v", err)
	}

	// Normal sentences with a repeated word are fine.
	if _, err := ValidateContent("the job is done, the payment is on the way"); err != nil {
		t.Fatalf("normal content should pass: %v", err)
	}
}

func TestSanitizeContent(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<script>alert(1)</script>hello", "alert(1)hello"},
		{"click javascript:alert(1)", "click alert(1)"},
		{`<img src=x onerror=alert(1)>hi`, "hi"},
		{"plain text", "plain text"},
		{"a onclick=b", "a b"},
	}
	for _, tc := range cases {
		if got := SanitizeContent(tc.in); got != tc.want {
			t.Errorf("SanitizeContent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidateAttachment(t *testing.T) {
	good := &Attachment{URL: "https://cdn.example.com/a.png", Filename: "a.png", Size: 1024}
	if err := ValidateAttachment(good, MessageTypeImage); err != nil {
		t.Fatalf("valid image attachment rejected: %v", err)
	}

	if err := ValidateAttachment(nil, MessageTypeText); err != nil {
		t.Fatalf("text without attachment should pass: %v", err)
	}
	if err := ValidateAttachment(nil, MessageTypeImage); err == nil {
		t.Fatal("image without attachment should fail")
	}
	if err := ValidateAttachment(good, MessageTypeText); err == nil {
		t.Fatal("attachment on text message should fail")
	}

	missing := &Attachment{URL: "", Filename: "a.png", Size: 10}
	if err := ValidateAttachment(missing, MessageTypeImage); err == nil {
		t.Fatal("attachment without url should fail")
	}

	huge := &Attachment{URL: "https://x/a.png", Filename: "a.png", Size: MaxAttachmentSize + 1}
	if err := ValidateAttachment(huge, MessageTypeImage); err == nil {
		t.Fatal("oversized attachment should fail")
	}

	exe := &Attachment{URL: "https://x/a.exe", Filename: "a.exe", Size: 10}
	if err := ValidateAttachment(exe, MessageTypeImage); err == nil {
		t.Fatal("non-image extension on image message should fail")
	}
	// The same file as a FILE message is fine.
	if err := ValidateAttachment(exe, MessageTypeFile); err != nil {
		t.Fatalf("file attachment rejected: %v", err)
	}
}

func TestRoomIDRoundTrip(t *testing.T) {
	roomID := RoomID("job-42")
	if roomID != "job_job-42" {
		t.Fatalf("unexpected room id %q", roomID)
	}
	jobID, ok := JobIDFromRoom(roomID)
	if !ok || jobID != "job-42" {
		t.Fatalf("round trip failed: %q %v", jobID, ok)
	}
	if _, ok := JobIDFromRoom("lobby"); ok {
		t.Fatal("non-job room should not parse")
	}
}
