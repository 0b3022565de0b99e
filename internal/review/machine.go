package review

import (
	"strings"
	"time"

	"debiasapi/internal/model"
)

// Event is a review action applied to a single item.
type Event string

const (
	EventApprove    Event = "approve"
	EventReject     Event = "reject"
	EventRegenerate Event = "regenerate"
)

// next is the transition table. Pairs absent from it are invalid.
func next(from model.ItemStatus, ev Event) (model.ItemStatus, bool) {
	switch from {
	case model.StatusPending:
		switch ev {
		case EventApprove:
			return model.StatusApproved, true
		case EventReject:
			return model.StatusNeedsRegeneration, true
		}
	case model.StatusNeedsRegeneration:
		switch ev {
		case EventApprove:
			return model.StatusApproved, true
		case EventRegenerate:
			return model.StatusPending, true
		}
	case model.StatusApproved:
	}
	return "", false
}

// approveItem moves it to approved. An explicit non-blank text wins over the
// current suggestion; approving with neither is rejected.
func approveItem(it *model.ReviewItem, text *string, now time.Time) error {
	to, ok := next(it.Status, EventApprove)
	if !ok {
		return itemError(CodeInvalidTransition, "", it, "cannot approve from "+string(it.Status))
	}
	var final string
	switch {
	case text != nil && strings.TrimSpace(*text) != "":
		final = *text
	case it.Suggestion != nil && strings.TrimSpace(*it.Suggestion) != "":
		final = *it.Suggestion
	default:
		return itemError(CodeInvalidInput, "", it, "approved text is required when no suggestion exists")
	}
	it.ApprovedText = &final
	it.Status = to
	touch(it, now)
	return nil
}

func rejectItem(it *model.ReviewItem, now time.Time) error {
	to, ok := next(it.Status, EventReject)
	if !ok {
		return itemError(CodeInvalidTransition, "", it, "cannot reject from "+string(it.Status))
	}
	it.Suggestion = nil
	it.Status = to
	touch(it, now)
	return nil
}

// checkRegenerate validates that a regeneration may start without changing it.
func checkRegenerate(it *model.ReviewItem, max int) error {
	if _, ok := next(it.Status, EventRegenerate); !ok {
		return itemError(CodeInvalidTransition, "", it, "cannot regenerate from "+string(it.Status))
	}
	if it.RegenerationCount+1 > max {
		return itemError(CodeRegenerationLimit, "", it, "regeneration limit reached; approve with manual text")
	}
	return nil
}

// applyRegeneration records a fresh suggestion. A blank suggestion still
// counts as an attempt but keeps the item in needs_regeneration.
func applyRegeneration(it *model.ReviewItem, suggestion string, now time.Time) {
	it.RegenerationCount++
	if strings.TrimSpace(suggestion) == "" {
		it.Suggestion = nil
		it.Status = model.StatusNeedsRegeneration
	} else {
		s := suggestion
		it.Suggestion = &s
		it.Status, _ = next(model.StatusNeedsRegeneration, EventRegenerate)
	}
	touch(it, now)
}

func touch(it *model.ReviewItem, now time.Time) {
	it.Revision++
	it.UpdatedAt = now
}
