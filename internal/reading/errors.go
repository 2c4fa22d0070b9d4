package reading

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrMissingKey           = errors.New("api key is not configured")
	ErrContentRequest       = errors.New("content request failed")
	ErrSynthesis            = errors.New("speech synthesis failed")
	ErrNoAudio              = errors.New("no audio payload returned")
	ErrInvalidConfiguration = errors.New("invalid reading configuration")
	ErrEmptyInput           = errors.New("input is empty")
	ErrArticleNotFound      = errors.New("article not found")
)

// Category groups provider failures into the few cases a user can act on.
type Category string

const (
	CategoryQuota       Category = "quota"
	CategoryInvalidKey  Category = "invalid_key"
	CategoryUnavailable Category = "unavailable"
	CategoryBlocked     Category = "blocked"
	CategoryParse       Category = "parse"
	CategoryUnknown     Category = "unknown"
)

var userMessages = map[Category]string{
	CategoryQuota:       "The API quota has been exceeded. Wait a moment and try again.",
	CategoryInvalidKey:  "The API key was rejected. Check the key and try again.",
	CategoryUnavailable: "The AI service is temporarily unavailable. Try again shortly.",
	CategoryBlocked:     "The content was blocked by the provider's safety filters.",
	CategoryParse:       "The AI response could not be read. Try again.",
	CategoryUnknown:     "Processing failed for an unknown reason.",
}

// UserMessage returns the fixed sentence shown for a category.
func (c Category) UserMessage() string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[CategoryUnknown]
}

// Classify maps a provider status code and message to a Category.
func Classify(status int, message string) Category {
	msg := strings.ToLower(message)
	switch {
	case status == http.StatusTooManyRequests,
		strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "quota"):
		return CategoryQuota
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		strings.Contains(msg, "api key not valid"),
		strings.Contains(msg, "api_key_invalid"):
		return CategoryInvalidKey
	case strings.Contains(msg, "safety"),
		strings.Contains(msg, "blocked"):
		return CategoryBlocked
	case status == http.StatusInternalServerError,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout,
		strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "unavailable"):
		return CategoryUnavailable
	}
	return CategoryUnknown
}

// ContentError reports a failed content-processing step.
type ContentError struct {
	Category Category
	Err      error
}

func NewContentError(category Category, err error) *ContentError {
	return &ContentError{Category: category, Err: err}
}

func (e *ContentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("content request failed (%s)", e.Category)
	}
	return fmt.Sprintf("content request failed (%s): %v", e.Category, e.Err)
}

func (e *ContentError) Unwrap() []error {
	return unwrapWith(ErrContentRequest, e.Err)
}

func (e *ContentError) UserMessage() string { return e.Category.UserMessage() }

// ParseError is a ContentError raised when the reply is not usable data.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse response: " + e.Reason
	}
	return fmt.Sprintf("parse response: %s: %v", e.Reason, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return unwrapWith(ErrContentRequest, e.Err)
}

func (e *ParseError) UserMessage() string { return CategoryParse.UserMessage() }

// SynthesisError reports a failed speech step.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("speech synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() []error {
	return unwrapWith(ErrSynthesis, e.Err)
}

func unwrapWith(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}

// CategoryOf extracts the user-facing category of any pipeline error.
func CategoryOf(err error) Category {
	var pe *ParseError
	if errors.As(err, &pe) {
		return CategoryParse
	}
	var ce *ContentError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUnknown
}
