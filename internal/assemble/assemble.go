// Package assemble rebuilds the final document of a completed review session.
package assemble

import (
	"fmt"
	"strings"

	"debiasapi/internal/model"
	"debiasapi/internal/review"
)

const defaultFilename = "document.txt"

// Assemble walks the session's sentences in order, emitting each approved
// item's text in place of its sentence and the source bytes everywhere else.
// It refuses to run unless the session status is completed.
func Assemble(s *model.Session) (*model.FinalDocument, error) {
	st := review.Status(s)
	if st.Overall != model.OverallCompleted {
		return nil, &review.Error{
			Code:      review.CodeSessionNotReady,
			SessionID: s.ID,
			Reason: fmt.Sprintf("pending: %d, needs regeneration: %d",
				st.PendingCount, st.NeedsRegenerationCount),
		}
	}

	approved := make(map[int]string, len(s.Items))
	for _, it := range s.Items {
		if it.Status == model.StatusApproved && it.ApprovedText != nil {
			approved[it.SentenceIndex] = *it.ApprovedText
		}
	}

	var b strings.Builder
	b.Grow(len(s.Source))
	cursor, changed := 0, 0
	for _, u := range s.Sentences {
		if u.Start < cursor || u.End < u.Start || u.End > len(s.Source) {
			return nil, fmt.Errorf("assemble: sentence %d span [%d,%d) out of order", u.Index, u.Start, u.End)
		}
		b.WriteString(s.Source[cursor:u.Start])
		if text, ok := approved[u.Index]; ok {
			b.WriteString(text)
			if text != s.Source[u.Start:u.End] {
				changed++
			}
		} else {
			b.WriteString(s.Source[u.Start:u.End])
		}
		cursor = u.End
	}
	b.WriteString(s.Source[cursor:])

	return &model.FinalDocument{
		SessionID:      s.ID,
		Filename:       OutputFilename(s.Filename),
		Content:        []byte(b.String()),
		ChangedCount:   changed,
		TotalSentences: len(s.Sentences),
	}, nil
}

// OutputFilename is the download name of the assembled document.
func OutputFilename(source string) string {
	if source == "" {
		source = defaultFilename
	}
	return "debiased_" + source
}
