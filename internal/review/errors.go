package review

import (
	"errors"
	"fmt"

	"debiasapi/internal/model"
)

type ErrorCode string

const (
	CodeClassificationUnavailable ErrorCode = "CLASSIFICATION_UNAVAILABLE"
	CodeSuggestionUnavailable     ErrorCode = "SUGGESTION_UNAVAILABLE"
	CodeInvalidTransition         ErrorCode = "INVALID_TRANSITION"
	CodeRegenerationLimit         ErrorCode = "REGENERATION_LIMIT_EXCEEDED"
	CodeSessionNotReady           ErrorCode = "SESSION_NOT_READY"
	CodeSessionExpired            ErrorCode = "SESSION_EXPIRED"
	CodeNotFound                  ErrorCode = "NOT_FOUND"
	CodeInvalidInput              ErrorCode = "INVALID_INPUT"
)

// Error is a domain failure. It always names the session and, where one is
// involved, the item and its status after the failed operation, so clients
// can resynchronize without refetching the session.
type Error struct {
	Code       ErrorCode
	SessionID  string
	ItemID     string
	ItemStatus model.ItemStatus
	Reason     string
	Err        error
}

// Sentinels for errors.Is; they match any *Error with the same code.
var (
	ErrClassificationUnavailable = &Error{Code: CodeClassificationUnavailable}
	ErrSuggestionUnavailable     = &Error{Code: CodeSuggestionUnavailable}
	ErrInvalidTransition         = &Error{Code: CodeInvalidTransition}
	ErrRegenerationLimitExceeded = &Error{Code: CodeRegenerationLimit}
	ErrSessionNotReady           = &Error{Code: CodeSessionNotReady}
	ErrSessionExpired            = &Error{Code: CodeSessionExpired}
	ErrNotFound                  = &Error{Code: CodeNotFound}
	ErrInvalidInput              = &Error{Code: CodeInvalidInput}
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("review: %s", e.Code)
	if e.SessionID != "" {
		msg += " session=" + e.SessionID
	}
	if e.ItemID != "" {
		msg += " item=" + e.ItemID
	}
	if e.ItemStatus != "" {
		msg += " status=" + string(e.ItemStatus)
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func itemError(code ErrorCode, sessionID string, it *model.ReviewItem, reason string) *Error {
	e := &Error{Code: code, SessionID: sessionID, Reason: reason}
	if it != nil {
		e.ItemID = it.ID
		e.ItemStatus = it.Status
	}
	return e
}

// WithSession stamps a session id onto a domain error if it has none.
func WithSession(err error, sessionID string) error {
	if e, ok := err.(*Error); ok && e.SessionID == "" {
		c := *e
		c.SessionID = sessionID
		return &c
	}
	return err
}

// WithItem stamps itemID and the item's status in s onto a domain error.
// A status already carried by err is replaced when s holds the item, so the
// error always reflects the state s was read in.
func WithItem(err error, s *model.Session, itemID string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	c := *e
	if c.ItemID == "" {
		c.ItemID = itemID
	}
	if s != nil {
		if c.SessionID == "" {
			c.SessionID = s.ID
		}
		if it := s.Item(c.ItemID); it != nil {
			c.ItemStatus = it.Status
		}
	}
	return &c
}
