package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"debiasapi/internal/http/middleware"
	"debiasapi/internal/review"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

// errorEnvelope names the affected session and item, plus the item status
// after the failed call, so clients can resynchronize without refetching.
type errorEnvelope struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	SessionID  string `json:"session_id,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	ItemStatus string `json:"item_status,omitempty"`
}

// writeError writes a standardized JSON error response without leaking internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return writeEnvelope(c, status, errorEnvelope{Code: code, Message: message})
}

func writeEnvelope(c *fiber.Ctx, status int, env errorEnvelope) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: middleware.RequestIDFromCtx(c),
		Error:     env,
	})
}

var domainStatus = map[review.ErrorCode]int{
	review.CodeNotFound:                  fiber.StatusNotFound,
	review.CodeInvalidInput:              fiber.StatusBadRequest,
	review.CodeInvalidTransition:         fiber.StatusConflict,
	review.CodeRegenerationLimit:         fiber.StatusConflict,
	review.CodeSessionNotReady:           fiber.StatusConflict,
	review.CodeSessionExpired:            fiber.StatusGone,
	review.CodeClassificationUnavailable: fiber.StatusBadGateway,
	review.CodeSuggestionUnavailable:     fiber.StatusBadGateway,
}

var domainMessage = map[review.ErrorCode]string{
	review.CodeNotFound:                  "resource not found",
	review.CodeInvalidInput:              "invalid input",
	review.CodeInvalidTransition:         "transition not allowed in the current item status",
	review.CodeRegenerationLimit:         "regeneration limit exceeded",
	review.CodeSessionNotReady:           "session has items awaiting review",
	review.CodeSessionExpired:            "session expired",
	review.CodeClassificationUnavailable: "bias classifier unavailable",
	review.CodeSuggestionUnavailable:     "suggestion generator unavailable",
}

// writeServiceError maps service errors onto the envelope. Domain reasons are
// authored by this service and safe to expose; anything else becomes a 500.
func writeServiceError(c *fiber.Ctx, err error) error {
	var de *review.Error
	if errors.As(err, &de) {
		status, ok := domainStatus[de.Code]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		if status == fiber.StatusBadGateway && review.IsTimeout(de) {
			status = fiber.StatusGatewayTimeout
		}
		msg := domainMessage[de.Code]
		if de.Reason != "" {
			msg += ": " + de.Reason
		}
		return writeEnvelope(c, status, errorEnvelope{
			Code:       string(de.Code),
			Message:    msg,
			SessionID:  de.SessionID,
			ItemID:     de.ItemID,
			ItemStatus: string(de.ItemStatus),
		})
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return writeError(c, fiber.StatusGatewayTimeout, "TIMEOUT", "request timed out")
	}
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
