// Package review implements the human-in-the-loop review session: creating a
// session from classified sentences, the per-item state machine, and status
// aggregation. Persistence and locking are the caller's concern; every
// function here mutates only the *model.Session it is handed.
package review

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"debiasapi/internal/model"
)

// Policy carries the tunables of the workflow.
type Policy struct {
	ConfidenceThreshold float64
	MaxRegenerations    int
	ClassifyTimeout     time.Duration
	SuggestTimeout      time.Duration
	Concurrency         int
}

// Engine binds the classify and suggest capabilities to a policy.
type Engine struct {
	classifier Classifier
	suggester  Suggester
	policy     Policy
	now        func() time.Time
}

// NewEngine constructs an Engine. Zero timeouts and concurrency fall back to sane defaults.
func NewEngine(c Classifier, s Suggester, p Policy) *Engine {
	if p.ClassifyTimeout <= 0 {
		p.ClassifyTimeout = 10 * time.Second
	}
	if p.SuggestTimeout <= 0 {
		p.SuggestTimeout = 20 * time.Second
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	return &Engine{classifier: c, suggester: s, policy: p, now: time.Now}
}

// Policy returns the engine's effective policy.
func (e *Engine) Policy() Policy { return e.policy }

// Draft is the input to Create.
type Draft struct {
	ID        string
	Owner     string
	Filename  string
	Source    string
	Sentences []model.SentenceUnit
	// Threshold overrides the policy threshold when non-nil.
	Threshold *float64
	TTL       time.Duration
}

// Create classifies every sentence exactly once and builds the session.
// Sentences at or above the threshold with a non-neutral category become
// review items with an initial suggestion; the rest are implicitly approved.
// Any capability failure aborts creation.
func (e *Engine) Create(ctx context.Context, d Draft) (*model.Session, error) {
	threshold := e.policy.ConfidenceThreshold
	if d.Threshold != nil {
		threshold = *d.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, newError(CodeInvalidInput, "confidence threshold must be within [0,1]", nil)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	now := e.now().UTC()
	slots := make([]*model.ReviewItem, len(d.Sentences))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.policy.Concurrency)
	for i, unit := range d.Sentences {
		g.Go(func() error {
			verdict, err := classify(gctx, e.classifier, unit.Text, e.policy.ClassifyTimeout)
			if err != nil {
				return err
			}
			if verdict.Category == model.CategoryNeutral || verdict.Confidence < threshold {
				return nil
			}
			text, err := suggest(gctx, e.suggester, unit.Text, verdict.Category, e.policy.SuggestTimeout)
			if err != nil {
				return err
			}
			it := &model.ReviewItem{
				ID:            uuid.NewString(),
				SentenceIndex: unit.Index,
				Category:      verdict.Category,
				Confidence:    verdict.Confidence,
				Status:        model.StatusPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if text == "" {
				it.Status = model.StatusNeedsRegeneration
			} else {
				it.Suggestion = &text
			}
			slots[i] = it
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, WithSession(err, d.ID)
	}

	items := make([]model.ReviewItem, 0, len(slots))
	for _, it := range slots {
		if it != nil {
			items = append(items, *it)
		}
	}

	return &model.Session{
		ID:                  d.ID,
		Owner:               d.Owner,
		Filename:            d.Filename,
		Source:              d.Source,
		Sentences:           append([]model.SentenceUnit(nil), d.Sentences...),
		Items:               items,
		ConfidenceThreshold: threshold,
		CreatedAt:           now,
		ExpiresAt:           now.Add(d.TTL),
	}, nil
}

// Status aggregates item states. The session is completed iff nothing is
// pending or awaiting regeneration; pending_review iff no item was touched yet.
func Status(s *model.Session) model.Stats {
	st := model.Stats{
		SessionID:         s.ID,
		TotalSentences:    len(s.Sentences),
		TotalItems:        len(s.Items),
		AutoApprovedCount: len(s.Sentences) - len(s.Items),
		ExpiresAt:         s.ExpiresAt,
	}
	touched := false
	for _, it := range s.Items {
		switch it.Status {
		case model.StatusPending:
			st.PendingCount++
		case model.StatusApproved:
			st.ApprovedCount++
		case model.StatusNeedsRegeneration:
			st.NeedsRegenerationCount++
		}
		if it.Revision > 0 {
			touched = true
		}
	}
	switch {
	case st.PendingCount == 0 && st.NeedsRegenerationCount == 0:
		st.Overall = model.OverallCompleted
	case !touched:
		st.Overall = model.OverallPendingReview
	default:
		st.Overall = model.OverallInProgress
	}
	return st
}

// Decide applies approve or reject to one item of s.
func (e *Engine) Decide(s *model.Session, itemID string, action Event, text *string) (*model.ReviewItem, error) {
	it := s.Item(itemID)
	if it == nil {
		return nil, &Error{Code: CodeNotFound, SessionID: s.ID, ItemID: itemID, Reason: "item not found"}
	}
	var err error
	switch action {
	case EventApprove:
		err = approveItem(it, text, e.now().UTC())
	case EventReject:
		err = rejectItem(it, e.now().UTC())
	default:
		err = itemError(CodeInvalidInput, "", it, "action must be approve or reject")
	}
	if err != nil {
		return nil, WithSession(err, s.ID)
	}
	return it, nil
}

// Ticket captures an item at the start of a regeneration. The regeneration
// commits only if the item is unchanged when the suggestion arrives.
type Ticket struct {
	SessionID string
	ItemID    string
	Revision  int
	Sentence  string
	Category  model.Category
}

// BeginRegeneration validates that itemID may be regenerated now.
func (e *Engine) BeginRegeneration(s *model.Session, itemID string) (Ticket, error) {
	it := s.Item(itemID)
	if it == nil {
		return Ticket{}, &Error{Code: CodeNotFound, SessionID: s.ID, ItemID: itemID, Reason: "item not found"}
	}
	if err := checkRegenerate(it, e.policy.MaxRegenerations); err != nil {
		return Ticket{}, WithSession(err, s.ID)
	}
	t := Ticket{SessionID: s.ID, ItemID: it.ID, Revision: it.Revision, Category: it.Category}
	if it.SentenceIndex >= 0 && it.SentenceIndex < len(s.Sentences) {
		t.Sentence = s.Sentences[it.SentenceIndex].Text
	}
	return t, nil
}

// Suggest runs the suggestion capability for a ticket under the policy timeout.
// On failure the returned error carries the ticket's snapshot status; callers
// that released the session lock should refresh it with WithItem.
func (e *Engine) Suggest(ctx context.Context, t Ticket) (string, error) {
	out, err := suggest(ctx, e.suggester, t.Sentence, t.Category, e.policy.SuggestTimeout)
	if err != nil {
		de := err.(*Error)
		de.SessionID = t.SessionID
		de.ItemID = t.ItemID
		de.ItemStatus = model.StatusNeedsRegeneration
		return "", de
	}
	return out, nil
}

// CompleteRegeneration commits a suggestion obtained for t. If another
// transition won the race meanwhile the commit fails with INVALID_TRANSITION.
func (e *Engine) CompleteRegeneration(s *model.Session, t Ticket, suggestion string) (*model.ReviewItem, error) {
	it := s.Item(t.ItemID)
	if it == nil {
		return nil, &Error{Code: CodeNotFound, SessionID: s.ID, ItemID: t.ItemID, Reason: "item not found"}
	}
	if it.Revision != t.Revision {
		return nil, itemError(CodeInvalidTransition, s.ID, it, "item changed during regeneration")
	}
	if err := checkRegenerate(it, e.policy.MaxRegenerations); err != nil {
		return nil, WithSession(err, s.ID)
	}
	applyRegeneration(it, suggestion, e.now().UTC())
	return it, nil
}
