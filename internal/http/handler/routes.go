package handler

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"debiasapi/internal/http/middleware"
	"debiasapi/internal/review"
	"debiasapi/internal/service"
)

// Response headers set on assembled documents.
const (
	HeaderChangesApplied = "X-Changes-Applied"
	HeaderDocumentURL    = "X-Document-URL"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, svc service.ReviewService, gatherer prometheus.Gatherer) {
	app.Get("/health", HealthCheck(svc))
	app.Get("/healthz", LivenessProbe())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	reviews := app.Group("/reviews")
	reviews.Post("/", StartReview(svc))
	reviews.Get("/:id", GetSession(svc))
	reviews.Get("/:id/status", GetStatus(svc))
	reviews.Post("/:id/items/:itemId/decision", DecideItem(svc))
	reviews.Post("/:id/items/:itemId/regenerate", RegenerateItem(svc))
	reviews.Post("/:id/assemble", AssembleDocument(svc))
	reviews.Get("/:id/document", DownloadDocument(svc))
	reviews.Delete("/:id", DeleteSession(svc))
}

// HealthCheck pings the session backend and reports the active session count.
// @Summary Service health
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(svc service.ReviewService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		h, err := svc.Health(ctx)
		if err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.JSON(fiber.Map{"status": "healthy", "active_sessions": h.ActiveSessions})
	}
}

// LivenessProbe always answers 200 while the process serves HTTP.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// idParam validates a UUID path parameter.
func idParam(c *fiber.Ctx, name string) (string, bool) {
	id := c.Params(name)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// StartReview uploads a document and opens a review session.
// @Summary Start a review session
// @Tags reviews
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "UTF-8 text document"
// @Param confidence_threshold formData number false "Override of the flagging threshold"
// @Success 201 {object} service.StartReviewResult
// @Failure 400 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Router /reviews [post]
func StartReview(svc service.ReviewService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		var threshold *float64
		if raw := strings.TrimSpace(c.FormValue("confidence_threshold")); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_THRESHOLD", "confidence_threshold must be a number")
			}
			threshold = &v
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_READ_ERROR", "cannot read uploaded file")
		}

		res, err := svc.StartReview(c.UserContext(), service.StartReviewInput{
			Filename:            fh.Filename,
			Owner:               middleware.OwnerFromCtx(c),
			Content:             content,
			ConfidenceThreshold: threshold,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// GetSession returns the session status and every item.
// @Summary Get a review session
// @Tags reviews
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} service.SessionDetail
// @Failure 404 {object} errorPayload
// @Router /reviews/{id} [get]
func GetSession(svc service.ReviewService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c, "id")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		d, err := svc.GetSession(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(d)
	}
}

// GetStatus returns the aggregated counts of a session.
// @Summary Get session status
// @Tags reviews
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} model.Stats
// @Failure 404 {object} errorPayload
// @Router /reviews/{id}/status [get]
func GetStatus(svc service.ReviewService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c, "id")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		st, err := svc.Status(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(st)
	}
}

type decisionRequest struct {
	Action       string  `json:"action"`
	ApprovedText *string `json:"approved_text"`
}

// DecideItem approves or rejects one item.
// @Summary Approve or reject an item
// @Tags reviews
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param itemId path string true "Item ID"
// @Param body body decisionRequest true "approve or reject"
// @Success 200 {object} model.ReviewItemView
// @Failure 400 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Failure 410 {object} errorPayload
// @Router /reviews/{id}/items/{itemId}/decision [post]
func DecideItem(svc service.ReviewService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c, "id")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		itemID, ok := idParam(c, "itemId")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid item id format")
		}
		var req decisionRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		action := review.Event(strings.ToLower(strings.TrimSpace(req.Action)))
		if action != review.EventApprove && action != review.EventReject {
			return writeEnvelope(c, fiber.StatusBadRequest, errorEnvelope{
				Code:      string(review.CodeInvalidInput),
				Message:   "action must be approve or reject",
				SessionID: id,
				ItemID:    itemID,
			})
		}
		v, err := svc.Decide(c.UserContext(), id, itemID, action, req.ApprovedText)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(v)
	}
}

// RegenerateItem asks for a fresh suggestion.
// @Summary Regenerate a suggestion
// @Tags reviews
// @Produce json
// @Param id path string true "Session ID"
// @Param itemId path string true "Item ID"
// @Success 200 {object} model.ReviewItemView
// @Failure 409 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Failure 504 {object} errorPayload
// @Router /reviews/{id}/items/{itemId}/regenerate [post]
func RegenerateItem(svc service.ReviewService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c, "id")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		itemID, ok := idParam(c, "itemId")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid item id format")
		}
		v, err := svc.Regenerate(c.UserContext(), id, itemID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(v)
	}
}

// AssembleDocument returns the final document as an attachment.
// @Summary Assemble the final document
// @Tags reviews
// @Produce plain
// @Param id path string true "Session ID"
// @Success 200 {file} file
// @Failure 409 {object} errorPayload
// @Router /reviews/{id}/assemble [post]
func AssembleDocument(svc service.ReviewService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c, "id")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.Assemble(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
		c.Set(fiber.HeaderContentDisposition, attachment(doc.Filename))
		c.Set(HeaderChangesApplied, strconv.Itoa(doc.ChangedCount))
		if doc.URL != "" {
			c.Set(HeaderDocumentURL, doc.URL)
		}
		return c.Send(doc.Content)
	}
}

// DownloadDocument streams the archived final document.
// @Summary Download the archived final document
// @Tags reviews
// @Produce plain
// @Param id path string true "Session ID"
// @Success 200 {file} file
// @Failure 404 {object} errorPayload
// @Router /reviews/{id}/document [get]
func DownloadDocument(svc service.ReviewService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c, "id")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		rc, info, err := svc.Document(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		ct := info.ContentType
		if ct == "" {
			ct = "text/plain; charset=utf-8"
		}
		name := info.Key
		if i := strings.LastIndex(name, "/"); i >= 0 {
			name = name[i+1:]
		}
		c.Set(fiber.HeaderContentType, ct)
		c.Set(fiber.HeaderContentDisposition, attachment(name))
		return c.SendStream(rc, int(info.Size))
	}
}

// DeleteSession removes a session and its archived documents.
// @Summary Delete a review session
// @Tags reviews
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} errorPayload
// @Router /reviews/{id} [delete]
func DeleteSession(svc service.ReviewService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c, "id")
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// attachment renders an RFC 6266 Content-Disposition value: an ASCII-only
// filename fallback plus the exact name as RFC 5987 filename*.
func attachment(name string) string {
	var fallback, encoded strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f || r > 0x7e || r == '"' || r == '\\':
			fallback.WriteByte('_')
		default:
			fallback.WriteRune(r)
		}
	}
	for _, b := range []byte(name) {
		if isAttrChar(b) {
			encoded.WriteByte(b)
		} else {
			fmt.Fprintf(&encoded, "%%%02X", b)
		}
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback.String(), encoded.String())
}

func isAttrChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", b) >= 0
}
