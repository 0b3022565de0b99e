package model

import "time"

// ItemStatus is the review state of a single flagged sentence.
type ItemStatus string

const (
	StatusPending           ItemStatus = "pending"
	StatusApproved          ItemStatus = "approved"
	StatusNeedsRegeneration ItemStatus = "needs_regeneration"
)

// OverallStatus is derived from the item statuses of a session.
type OverallStatus string

const (
	OverallPendingReview OverallStatus = "pending_review"
	OverallInProgress    OverallStatus = "in_progress"
	OverallCompleted     OverallStatus = "completed"
)

// ReviewItem tracks one sentence that entered human review.
// ApprovedText is non-nil iff Status is StatusApproved.
type ReviewItem struct {
	ID                string     `json:"id"`
	SentenceIndex     int        `json:"sentence_index"`
	Category          Category   `json:"category"`
	Confidence        float64    `json:"confidence"`
	Suggestion        *string    `json:"suggestion"`
	ApprovedText      *string    `json:"approved_text"`
	Status            ItemStatus `json:"status"`
	RegenerationCount int        `json:"regeneration_count"`
	// Revision increments on every human or regeneration transition; zero means untouched.
	Revision  int       `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is one document's review workflow. It owns its items exclusively.
type Session struct {
	ID                  string         `json:"id"`
	Owner               string         `json:"owner"`
	Filename            string         `json:"filename"`
	Source              string         `json:"source"`
	Sentences           []SentenceUnit `json:"sentences"`
	Items               []ReviewItem   `json:"items"`
	ConfidenceThreshold float64        `json:"confidence_threshold"`
	SourceKey           string         `json:"source_key,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	ExpiresAt           time.Time      `json:"expires_at"`
}

// Item returns the item with the given id, or nil.
func (s *Session) Item(id string) *ReviewItem {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i]
		}
	}
	return nil
}

// ItemForSentence returns the item attached to the sentence at index, or nil.
func (s *Session) ItemForSentence(index int) *ReviewItem {
	for i := range s.Items {
		if s.Items[i].SentenceIndex == index {
			return &s.Items[i]
		}
	}
	return nil
}

// Clone returns a deep copy, so callers never share item state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Sentences = append([]SentenceUnit(nil), s.Sentences...)
	out.Items = make([]ReviewItem, len(s.Items))
	for i, it := range s.Items {
		it.Suggestion = cloneString(it.Suggestion)
		it.ApprovedText = cloneString(it.ApprovedText)
		out.Items[i] = it
	}
	return &out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Stats is the aggregated review status of a session.
// PendingCount + ApprovedCount + NeedsRegenerationCount == TotalItems.
type Stats struct {
	SessionID              string        `json:"session_id"`
	TotalSentences         int           `json:"total_sentences"`
	TotalItems             int           `json:"total_items"`
	PendingCount           int           `json:"pending_count"`
	ApprovedCount          int           `json:"approved_count"`
	NeedsRegenerationCount int           `json:"needs_regeneration_count"`
	AutoApprovedCount      int           `json:"auto_approved_count"`
	Overall                OverallStatus `json:"overall"`
	ExpiresAt              time.Time     `json:"expires_at"`
}

// ReviewItemView is the client-facing projection of a ReviewItem.
type ReviewItemView struct {
	ItemID            string     `json:"item_id"`
	SentenceIndex     int        `json:"sentence_index"`
	OriginalText      string     `json:"original_text"`
	Category          Category   `json:"category"`
	Confidence        float64    `json:"confidence"`
	Suggestion        *string    `json:"suggestion"`
	ApprovedText      *string    `json:"approved_text"`
	Status            ItemStatus `json:"status"`
	RegenerationCount int        `json:"regeneration_count"`
}

// View projects the item against its session's sentence list.
func (s *Session) View(it *ReviewItem) ReviewItemView {
	v := ReviewItemView{
		ItemID:            it.ID,
		SentenceIndex:     it.SentenceIndex,
		Category:          it.Category,
		Confidence:        it.Confidence,
		Suggestion:        cloneString(it.Suggestion),
		ApprovedText:      cloneString(it.ApprovedText),
		Status:            it.Status,
		RegenerationCount: it.RegenerationCount,
	}
	if it.SentenceIndex >= 0 && it.SentenceIndex < len(s.Sentences) {
		v.OriginalText = s.Sentences[it.SentenceIndex].Text
	}
	return v
}

// Views projects every item in sentence order.
func (s *Session) Views() []ReviewItemView {
	out := make([]ReviewItemView, 0, len(s.Items))
	for i := range s.Items {
		out = append(out, s.View(&s.Items[i]))
	}
	return out
}
