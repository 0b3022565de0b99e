package review

import (
	"context"
	"errors"
	"strings"
	"time"

	"debiasapi/internal/model"
)

// Classification is the classifier's verdict for one sentence.
type Classification struct {
	Category   model.Category
	Confidence float64
}

// Classifier maps a sentence to a bias category and confidence.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Suggester drafts a de-biased rewrite of a sentence.
type Suggester interface {
	Suggest(ctx context.Context, sentence string, category model.Category) (string, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, text string) (Classification, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (Classification, error) {
	return f(ctx, text)
}

// SuggesterFunc adapts a function to Suggester.
type SuggesterFunc func(ctx context.Context, sentence string, category model.Category) (string, error)

func (f SuggesterFunc) Suggest(ctx context.Context, sentence string, category model.Category) (string, error) {
	return f(ctx, sentence, category)
}

// classify calls c under timeout and maps every failure to CLASSIFICATION_UNAVAILABLE.
func classify(ctx context.Context, c Classifier, text string, timeout time.Duration) (Classification, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := c.Classify(cctx, text)
	if err != nil {
		return Classification{}, newError(CodeClassificationUnavailable, failureReason(cctx, err), err)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return Classification{}, newError(CodeClassificationUnavailable, "confidence out of range", nil)
	}
	if res.Category == "" {
		return Classification{}, newError(CodeClassificationUnavailable, "empty category", nil)
	}
	return res, nil
}

// suggest calls s under timeout. A blank suggestion is returned as "" with no error.
func suggest(ctx context.Context, s Suggester, sentence string, category model.Category, timeout time.Duration) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := s.Suggest(sctx, sentence, category)
	if err != nil {
		return "", newError(CodeSuggestionUnavailable, failureReason(sctx, err), err)
	}
	if sctx.Err() != nil {
		// late result after the deadline is discarded, never partially adopted
		return "", newError(CodeSuggestionUnavailable, "timeout", sctx.Err())
	}
	return strings.TrimSpace(out), nil
}

func failureReason(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	return "upstream error"
}

// IsTimeout reports whether a capability failure was caused by its deadline.
func IsTimeout(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason == "timeout"
	}
	return false
}
