package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"debiasapi/internal/assemble"
	"debiasapi/internal/logger"
	"debiasapi/internal/model"
	"debiasapi/internal/review"
	"debiasapi/internal/segment"
	"debiasapi/internal/storage"
	"debiasapi/internal/store"
)

const defaultFilename = "document.txt"

var tracer = otel.Tracer("debiasapi/internal/service")

// StartReviewInput is an uploaded document awaiting review.
type StartReviewInput struct {
	Filename string
	Owner    string
	Content  []byte
	// ConfidenceThreshold overrides the configured threshold when non-nil.
	ConfidenceThreshold *float64
}

// StartReviewResult summarizes a freshly created session.
type StartReviewResult struct {
	SessionID      string                 `json:"session_id"`
	Filename       string                 `json:"filename"`
	TotalSentences int                    `json:"total_sentences"`
	BiasedCount    int                    `json:"biased_count"`
	NeutralCount   int                    `json:"neutral_count"`
	AmbiguousCount int                    `json:"ambiguous_count"`
	Items          []model.ReviewItemView `json:"items"`
	Status         model.Stats            `json:"status"`
}

// SessionDetail is the full client view of a session.
type SessionDetail struct {
	SessionID           string                 `json:"session_id"`
	Owner               string                 `json:"owner,omitempty"`
	Filename            string                 `json:"filename"`
	ConfidenceThreshold float64                `json:"confidence_threshold"`
	CreatedAt           time.Time              `json:"created_at"`
	Status              model.Stats            `json:"status"`
	Items               []model.ReviewItemView `json:"items"`
}

// Health reports the session backend state.
type Health struct {
	ActiveSessions int `json:"active_sessions"`
}

// ReviewService defines the review session lifecycle use cases.
type ReviewService interface {
	// StartReview segments and classifies the document and opens a session.
	StartReview(ctx context.Context, in StartReviewInput) (*StartReviewResult, error)

	// Decide applies approve or reject to one item.
	Decide(ctx context.Context, sessionID, itemID string, action review.Event, approvedText *string) (*model.ReviewItemView, error)

	// Regenerate asks for a fresh suggestion for an item in needs_regeneration.
	Regenerate(ctx context.Context, sessionID, itemID string) (*model.ReviewItemView, error)

	// Status returns the aggregated item counts.
	Status(ctx context.Context, sessionID string) (*model.Stats, error)

	// GetSession returns the status plus every item view.
	GetSession(ctx context.Context, sessionID string) (*SessionDetail, error)

	// Assemble builds the final document of a completed session and archives it.
	Assemble(ctx context.Context, sessionID string) (*model.FinalDocument, error)

	// Document streams a previously assembled document from the archive.
	Document(ctx context.Context, sessionID string) (io.ReadCloser, storage.ObjectInfo, error)

	// Delete removes the session and its archived objects.
	Delete(ctx context.Context, sessionID string) error

	// Health pings the session backend and counts active sessions.
	Health(ctx context.Context) (*Health, error)
}

type reviewService struct {
	engine   *review.Engine
	sessions *store.Store
	archive  storage.Storage
	metrics  *Metrics
	log      *logger.Logger

	sessionTTL    time.Duration
	maxBytes      int
	presignExpiry time.Duration
}

type Option func(*reviewService)

func WithLogger(l *logger.Logger) Option {
	return func(s *reviewService) { s.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(s *reviewService) { s.metrics = m }
}

// WithArchive enables archiving of source and final documents.
func WithArchive(st storage.Storage) Option {
	return func(s *reviewService) { s.archive = st }
}

func WithSessionTTL(d time.Duration) Option {
	return func(s *reviewService) { s.sessionTTL = d }
}

func WithMaxDocumentBytes(n int) Option {
	return func(s *reviewService) { s.maxBytes = n }
}

// NewReviewService constructs a ReviewService.
func NewReviewService(engine *review.Engine, sessions *store.Store, opts ...Option) ReviewService {
	s := &reviewService{
		engine:        engine,
		sessions:      sessions,
		log:           logger.Nop(),
		sessionTTL:    24 * time.Hour,
		maxBytes:      5 << 20,
		presignExpiry: 15 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "review")
	return s
}

func startSpan(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if sessionID != "" {
		span.SetAttributes(attribute.String("review.session_id", sessionID))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func invalidInput(reason string) error {
	return &review.Error{Code: review.CodeInvalidInput, Reason: reason}
}

func (s *reviewService) StartReview(ctx context.Context, in StartReviewInput) (_ *StartReviewResult, err error) {
	ctx, span := startSpan(ctx, "review.StartReview", "")
	defer func() { endSpan(span, err) }()

	switch {
	case len(in.Content) == 0:
		return nil, invalidInput("document is empty")
	case s.maxBytes > 0 && len(in.Content) > s.maxBytes:
		return nil, invalidInput(fmt.Sprintf("document exceeds %d bytes", s.maxBytes))
	case !utf8.Valid(in.Content):
		return nil, invalidInput("document must be UTF-8 text")
	}
	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		filename = defaultFilename
	}

	source := string(in.Content)
	units := segment.Split(source)
	if len(units) == 0 {
		return nil, invalidInput("no sentences could be extracted from the document")
	}

	id := uuid.NewString()
	span.SetAttributes(attribute.String("review.session_id", id), attribute.Int("review.sentences", len(units)))

	var sourceKey string
	if s.archive != nil {
		sourceKey = storage.SourceKey(id, filename)
		_, err := s.archive.Put(ctx, sourceKey, bytes.NewReader(in.Content), storage.PutObjectOptions{
			Size:        int64(len(in.Content)),
			ContentType: "text/plain; charset=utf-8",
			Metadata:    map[string]string{"original-filename": filename, "session-id": id},
		})
		if err != nil {
			return nil, fmt.Errorf("archive source: %w", err)
		}
	}

	sess, err := s.engine.Create(ctx, review.Draft{
		ID:        id,
		Owner:     in.Owner,
		Filename:  filename,
		Source:    source,
		Sentences: units,
		Threshold: in.ConfidenceThreshold,
		TTL:       s.sessionTTL,
	})
	if err == nil {
		sess.SourceKey = sourceKey
		err = s.sessions.Create(ctx, sess)
	}
	if err != nil {
		s.rollbackArchive(sourceKey)
		s.log.Warn("start review failed", "session_id", id, "error", err)
		return nil, err
	}

	s.metrics.sessionCreated()
	st := review.Status(sess)
	s.log.Info("session created",
		"event", "session_created",
		"session_id", id,
		"sentences", len(units),
		"flagged", len(sess.Items),
	)

	return &StartReviewResult{
		SessionID:      id,
		Filename:       filename,
		TotalSentences: st.TotalSentences,
		BiasedCount:    st.TotalItems,
		NeutralCount:   st.AutoApprovedCount,
		AmbiguousCount: segment.AmbiguousCount(units),
		Items:          sess.Views(),
		Status:         st,
	}, nil
}

// rollbackArchive removes an archived source after a failed start. It runs on
// a fresh context because the request context may already be cancelled.
func (s *reviewService) rollbackArchive(key string) {
	if s.archive == nil || key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.archive.Delete(ctx, key); err != nil {
		s.log.Warn("archive rollback failed", "key", key, "error", err)
	}
}

func (s *reviewService) Decide(ctx context.Context, sessionID, itemID string, action review.Event, approvedText *string) (_ *model.ReviewItemView, err error) {
	ctx, span := startSpan(ctx, "review.Decide", sessionID)
	span.SetAttributes(attribute.String("review.item_id", itemID), attribute.String("review.action", string(action)))
	defer func() { endSpan(span, err) }()

	if action != review.EventApprove && action != review.EventReject {
		return nil, &review.Error{Code: review.CodeInvalidInput, SessionID: sessionID, ItemID: itemID, Reason: "action must be approve or reject"}
	}

	var view model.ReviewItemView
	_, err = s.sessions.Update(ctx, sessionID, func(sess *model.Session) error {
		it, err := s.engine.Decide(sess, itemID, action, approvedText)
		if err != nil {
			return err
		}
		view = sess.View(it)
		return nil
	})
	if err != nil {
		return nil, s.itemState(ctx, err, sessionID, itemID, false)
	}

	s.metrics.transition(action, view.Status)
	s.log.Info("item transition",
		"event", "item_transition",
		"session_id", sessionID,
		"item_id", itemID,
		"action", string(action),
		"status", string(view.Status),
	)
	return &view, nil
}

// Regenerate validates under the session lock, calls the suggester without
// holding it, then commits only if the item did not change meanwhile.
func (s *reviewService) Regenerate(ctx context.Context, sessionID, itemID string) (_ *model.ReviewItemView, err error) {
	ctx, span := startSpan(ctx, "review.Regenerate", sessionID)
	span.SetAttributes(attribute.String("review.item_id", itemID))
	defer func() { endSpan(span, err) }()

	var ticket review.Ticket
	err = s.sessions.Inspect(ctx, sessionID, func(sess *model.Session) error {
		t, err := s.engine.BeginRegeneration(sess, itemID)
		ticket = t
		return err
	})
	if err != nil {
		s.noteLimit(sessionID, itemID, err)
		return nil, s.itemState(ctx, err, sessionID, itemID, false)
	}

	suggestion, err := s.engine.Suggest(ctx, ticket)
	if err != nil {
		s.log.Warn("suggestion failed",
			"session_id", sessionID,
			"item_id", itemID,
			"timeout", review.IsTimeout(err),
			"error", err,
		)
		// the lock was released for the call; another decision may have landed
		return nil, s.itemState(ctx, err, sessionID, itemID, true)
	}

	var view model.ReviewItemView
	_, err = s.sessions.Update(ctx, sessionID, func(sess *model.Session) error {
		it, err := s.engine.CompleteRegeneration(sess, ticket, suggestion)
		if err != nil {
			return err
		}
		view = sess.View(it)
		return nil
	})
	if err != nil {
		s.noteLimit(sessionID, itemID, err)
		return nil, s.itemState(ctx, err, sessionID, itemID, false)
	}

	s.metrics.transition(review.EventRegenerate, view.Status)
	s.log.Info("item transition",
		"event", "item_transition",
		"session_id", sessionID,
		"item_id", itemID,
		"action", string(review.EventRegenerate),
		"status", string(view.Status),
		"regeneration_count", view.RegenerationCount,
	)
	return &view, nil
}

// itemState makes a failed item operation name the item and its current
// status. Errors that already carry a status are left alone unless refresh
// is set. Sessions stay readable through the grace window, so an expired
// session still resolves here.
func (s *reviewService) itemState(ctx context.Context, err error, sessionID, itemID string, refresh bool) error {
	var de *review.Error
	if !errors.As(err, &de) {
		return err
	}
	if de.ItemStatus != "" && !refresh {
		return review.WithItem(err, nil, itemID)
	}
	sess, gerr := s.sessions.Get(ctx, sessionID)
	if gerr != nil {
		return review.WithItem(err, nil, itemID)
	}
	return review.WithItem(err, sess, itemID)
}

func (s *reviewService) noteLimit(sessionID, itemID string, err error) {
	if !errors.Is(err, review.ErrRegenerationLimitExceeded) {
		return
	}
	s.metrics.limitHit()
	s.log.Info("regeneration limit reached",
		"event", "regeneration_limit",
		"session_id", sessionID,
		"item_id", itemID,
	)
}

func (s *reviewService) Status(ctx context.Context, sessionID string) (*model.Stats, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st := review.Status(sess)
	return &st, nil
}

func (s *reviewService) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{
		SessionID:           sess.ID,
		Owner:               sess.Owner,
		Filename:            sess.Filename,
		ConfidenceThreshold: sess.ConfidenceThreshold,
		CreatedAt:           sess.CreatedAt,
		Status:              review.Status(sess),
		Items:               sess.Views(),
	}, nil
}

// Assemble is read-only on the session, so it also works during the grace
// window. Archive failures are logged; the document is still returned.
func (s *reviewService) Assemble(ctx context.Context, sessionID string) (_ *model.FinalDocument, err error) {
	ctx, span := startSpan(ctx, "review.Assemble", sessionID)
	defer func() { endSpan(span, err) }()

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	doc, err := assemble.Assemble(sess)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("review.changed", doc.ChangedCount))

	if s.archive != nil {
		key := storage.DocumentKey(sessionID, doc.Filename)
		_, perr := s.archive.Put(ctx, key, bytes.NewReader(doc.Content), storage.PutObjectOptions{
			Size:        int64(len(doc.Content)),
			ContentType: "text/plain; charset=utf-8",
			Metadata:    map[string]string{"session-id": sessionID, "changes-applied": fmt.Sprint(doc.ChangedCount)},
		})
		if perr != nil {
			s.log.Warn("archive final document failed", "session_id", sessionID, "error", perr)
		} else if url, uerr := s.archive.PresignGet(ctx, key, s.presignExpiry); uerr == nil {
			doc.URL = url
		} else {
			s.log.Warn("presign final document failed", "session_id", sessionID, "error", uerr)
		}
	}

	s.log.Info("document assembled",
		"event", "document_assembled",
		"session_id", sessionID,
		"changed", doc.ChangedCount,
		"bytes", len(doc.Content),
	)
	return doc, nil
}

func (s *reviewService) Document(ctx context.Context, sessionID string) (io.ReadCloser, storage.ObjectInfo, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if s.archive == nil {
		return nil, storage.ObjectInfo{}, &review.Error{Code: review.CodeNotFound, SessionID: sessionID, Reason: "document archive is disabled"}
	}
	key := storage.DocumentKey(sessionID, assemble.OutputFilename(sess.Filename))
	rc, info, err := s.archive.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, &review.Error{Code: review.CodeNotFound, SessionID: sessionID, Reason: "document has not been assembled"}
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("fetch archived document: %w", err)
	}
	return rc, info, nil
}

func (s *reviewService) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	if s.archive != nil {
		keys := []string{storage.DocumentKey(sessionID, assemble.OutputFilename(sess.Filename))}
		if sess.SourceKey != "" {
			keys = append(keys, sess.SourceKey)
		}
		for _, k := range keys {
			if err := s.archive.Delete(ctx, k); err != nil {
				s.log.Warn("delete archived object failed", "key", k, "error", err)
			}
		}
	}
	s.log.Info("session deleted", "event", "session_deleted", "session_id", sessionID)
	return nil
}

func (s *reviewService) Health(ctx context.Context) (*Health, error) {
	if err := s.sessions.Ping(ctx); err != nil {
		return nil, err
	}
	n, err := s.sessions.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Health{ActiveSessions: n}, nil
}
