package domain

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxContentLength is the maximum message length after trimming.
	MaxContentLength = 2000
	// MaxAttachmentSize is the maximum attachment size in bytes (10MB).
	MaxAttachmentSize = 10 << 20
	// spamRepetitionRatio rejects messages where more than this share of
	// tokens repeat the first token.
	spamRepetitionRatio = 0.8
)

var (
	ErrEmptyContent   = errors.New("message content is empty")
	ErrContentTooLong = fmt.Errorf("message content exceeds %d characters", MaxContentLength)
	ErrSpamContent    = errors.New("message content looks like spam")
	ErrBadAttachment  = errors.New("invalid attachment")
	ErrBadMessageType = errors.New("invalid message type")
)

// IsValidationError reports whether err is one of the content or
// attachment validation sentinels.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrContentTooLong) ||
		errors.Is(err, ErrSpamContent) ||
		errors.Is(err, ErrBadAttachment) ||
		errors.Is(err, ErrBadMessageType)
}

var (
	tagPattern          = regexp.MustCompile(`<[^>]*>`)
	jsURLPattern        = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerPattern = regexp.MustCompile(`(?i)\bon\w+\s*=`)
)

var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

// SanitizeContent strips HTML tags, javascript: URLs and inline event
// handler attributes from message content.
func SanitizeContent(content string) string {
	content = tagPattern.ReplaceAllString(content, "")
	content = jsURLPattern.ReplaceAllString(content, "")
	content = eventHandlerPattern.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// ValidateContent sanitizes and validates message content, returning the
// cleaned string. Empty, oversized and spam-like content is rejected.
func ValidateContent(content string) (string, error) {
	clean := SanitizeContent(content)
	if clean == "" {
		return "", ErrEmptyContent
	}
	// The limit is in characters, not bytes, so multibyte text is not
	// penalized.
	if utf8.RuneCountInString(clean) > MaxContentLength {
		return "", ErrContentTooLong
	}
	if looksLikeSpam(clean) {
		return "", ErrSpamContent
	}
	return clean, nil
}

// looksLikeSpam reports whether more than 80% of the message's tokens
// repeat its first token.
func looksLikeSpam(content string) bool {
	tokens := strings.Fields(content)
	if len(tokens) < 5 {
		return false
	}
	first := tokens[0]
	repeats := 0
	for _, tok := range tokens {
		if tok == first {
			repeats++
		}
	}
	return float64(repeats)/float64(len(tokens)) > spamRepetitionRatio
}

// ValidateAttachment validates attachment metadata for the given message
// type. Attachments are only allowed on IMAGE and FILE messages.
func ValidateAttachment(att *Attachment, msgType MessageType) error {
	if att == nil {
		if msgType == MessageTypeImage || msgType == MessageTypeFile {
			return fmt.Errorf("%w: %s messages require an attachment", ErrBadAttachment, msgType)
		}
		return nil
	}

	if msgType != MessageTypeImage && msgType != MessageTypeFile {
		return fmt.Errorf("%w: attachment not allowed on %s messages", ErrBadAttachment, msgType)
	}
	if att.URL == "" || att.Filename == "" {
		return fmt.Errorf("%w: url and filename are required", ErrBadAttachment)
	}
	if att.Size <= 0 {
		return fmt.Errorf("%w: size is required", ErrBadAttachment)
	}
	if att.Size > MaxAttachmentSize {
		return fmt.Errorf("%w: size exceeds 10MB", ErrBadAttachment)
	}

	if msgType == MessageTypeImage {
		ext := strings.ToLower(path.Ext(att.Filename))
		if _, ok := imageExtensions[ext]; !ok {
			return fmt.Errorf("%w: unsupported image extension %q", ErrBadAttachment, ext)
		}
	}

	return nil
}
