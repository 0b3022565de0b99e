package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"debiasapi/internal/model"
	"debiasapi/internal/segment"
)

func stubClassifier(verdicts map[string]Classification) Classifier {
	return ClassifierFunc(func(ctx context.Context, text string) (Classification, error) {
		if v, ok := verdicts[text]; ok {
			return v, nil
		}
		return Classification{Category: model.CategoryNeutral, Confidence: 0.99}, nil
	})
}

// sequenceSuggester returns the given outputs in order, then repeats the last.
func sequenceSuggester(outputs ...string) (Suggester, *int32) {
	var calls int32
	return SuggesterFunc(func(ctx context.Context, sentence string, category model.Category) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		idx := int(n) - 1
		if idx >= len(outputs) {
			idx = len(outputs) - 1
		}
		return outputs[idx], nil
	}), &calls
}

func ptr(s string) *string { return &s }

// sync32 counts distinct strings from concurrent callers.
type sync32 struct {
	mu sync.Mutex
	m  map[string]int
}

func (c *sync32) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]int)
	}
	c.m[s]++
}

func (c *sync32) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.m {
		if n != 1 {
			return -1
		}
	}
	return len(c.m)
}

func testPolicy() Policy {
	return Policy{ConfidenceThreshold: 0.7, MaxRegenerations: 5, ClassifyTimeout: time.Second, SuggestTimeout: time.Second, Concurrency: 4}
}

func newScenarioSession(t *testing.T, e *Engine) *model.Session {
	t.Helper()
	src := "Cats sleep a lot. Women belong in the kitchen. The meeting is at noon."
	s, err := e.Create(context.Background(), Draft{Source: src, Sentences: segment.Split(src), TTL: time.Hour})
	require.NoError(t, err)
	return s
}

func TestCreate_FlagsAboveThreshold(t *testing.T) {
	suggester, calls := sequenceSuggester("People of any gender can cook.")
	e := NewEngine(stubClassifier(map[string]Classification{
		"Women belong in the kitchen.": {Category: model.CategoryGender, Confidence: 0.82},
		"The meeting is at noon.":      {Category: model.CategoryPolitical, Confidence: 0.4},
	}), suggester, testPolicy())

	s := newScenarioSession(t, e)

	require.Len(t, s.Sentences, 3)
	require.Len(t, s.Items, 1)
	it := s.Items[0]
	assert.Equal(t, 1, it.SentenceIndex)
	assert.Equal(t, model.CategoryGender, it.Category)
	assert.Equal(t, 0.82, it.Confidence)
	assert.Equal(t, model.StatusPending, it.Status)
	assert.Equal(t, "People of any gender can cook.", *it.Suggestion)
	assert.Nil(t, it.ApprovedText)
	assert.EqualValues(t, 1, *calls)
	assert.Equal(t, 0.7, s.ConfidenceThreshold)
	assert.NotEmpty(t, s.ID)

	st := Status(s)
	assert.Equal(t, model.OverallPendingReview, st.Overall)
	assert.Equal(t, 2, st.AutoApprovedCount)
	assert.Equal(t, 1, st.PendingCount)
}

func TestCreate_ThresholdOverrideAndValidation(t *testing.T) {
	suggester, _ := sequenceSuggester("rewrite")
	e := NewEngine(stubClassifier(map[string]Classification{
		"The meeting is at noon.": {Category: model.CategoryPolitical, Confidence: 0.4},
	}), suggester, testPolicy())
	src := "The meeting is at noon."

	low := 0.3
	s, err := e.Create(context.Background(), Draft{Source: src, Sentences: segment.Split(src), Threshold: &low})
	require.NoError(t, err)
	assert.Len(t, s.Items, 1)

	bad := 1.2
	_, err = e.Create(context.Background(), Draft{Source: src, Sentences: segment.Split(src), Threshold: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreate_ClassifierFailurePropagates(t *testing.T) {
	e := NewEngine(ClassifierFunc(func(ctx context.Context, text string) (Classification, error) {
		return Classification{}, errors.New("model offline")
	}), SuggesterFunc(func(ctx context.Context, s string, c model.Category) (string, error) {
		t.Fatal("suggester must not be called")
		return "", nil
	}), testPolicy())

	src := "One. Two."
	_, err := e.Create(context.Background(), Draft{ID: "sess-1", Source: src, Sentences: segment.Split(src)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClassificationUnavailable)
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "sess-1", de.SessionID)
}

func TestCreate_ClassifierTimeout(t *testing.T) {
	p := testPolicy()
	p.ClassifyTimeout = 20 * time.Millisecond
	e := NewEngine(ClassifierFunc(func(ctx context.Context, text string) (Classification, error) {
		<-ctx.Done()
		return Classification{}, ctx.Err()
	}), nil, p)

	src := "Slow sentence."
	_, err := e.Create(context.Background(), Draft{Source: src, Sentences: segment.Split(src)})
	assert.ErrorIs(t, err, ErrClassificationUnavailable)
	assert.True(t, IsTimeout(err))
}

func TestCreate_InvalidConfidenceRejected(t *testing.T) {
	e := NewEngine(ClassifierFunc(func(ctx context.Context, text string) (Classification, error) {
		return Classification{Category: model.CategoryAge, Confidence: 1.7}, nil
	}), nil, testPolicy())
	src := "Old people are slow."
	_, err := e.Create(context.Background(), Draft{Source: src, Sentences: segment.Split(src)})
	assert.ErrorIs(t, err, ErrClassificationUnavailable)
}

func TestCreate_SuggesterFailurePropagates(t *testing.T) {
	e := NewEngine(ClassifierFunc(func(ctx context.Context, text string) (Classification, error) {
		return Classification{Category: model.CategoryCaste, Confidence: 0.9}, nil
	}), SuggesterFunc(func(ctx context.Context, s string, c model.Category) (string, error) {
		return "", errors.New("llm down")
	}), testPolicy())
	src := "A biased sentence."
	_, err := e.Create(context.Background(), Draft{Source: src, Sentences: segment.Split(src)})
	assert.ErrorIs(t, err, ErrSuggestionUnavailable)
}

func TestCreate_BlankSuggestionNeedsRegeneration(t *testing.T) {
	suggester, _ := sequenceSuggester("   ")
	e := NewEngine(ClassifierFunc(func(ctx context.Context, text string) (Classification, error) {
		return Classification{Category: model.CategoryReligion, Confidence: 0.9}, nil
	}), suggester, testPolicy())
	src := "A biased sentence."
	s, err := e.Create(context.Background(), Draft{Source: src, Sentences: segment.Split(src)})
	require.NoError(t, err)
	require.Len(t, s.Items, 1)
	assert.Equal(t, model.StatusNeedsRegeneration, s.Items[0].Status)
	assert.Nil(t, s.Items[0].Suggestion)
	assert.Equal(t, model.OverallPendingReview, Status(s).Overall)
}

func TestCreate_ClassifiesEachSentenceOnceInOrder(t *testing.T) {
	var seen sync32 // every sentence must be classified exactly once
	src := ""
	for i := 0; i < 40; i++ {
		src += fmt.Sprintf("Sentence number %d is here. ", i)
	}
	e := NewEngine(ClassifierFunc(func(ctx context.Context, text string) (Classification, error) {
		seen.add(text)
		return Classification{Category: model.CategoryGender, Confidence: 0.9}, nil
	}), SuggesterFunc(func(ctx context.Context, s string, c model.Category) (string, error) {
		return "rewrite of " + s, nil
	}), testPolicy())

	s, err := e.Create(context.Background(), Draft{Source: src, Sentences: segment.Split(src)})
	require.NoError(t, err)
	require.Len(t, s.Items, 40)
	assert.Equal(t, 40, seen.len())
	for i, it := range s.Items {
		assert.Equal(t, i, it.SentenceIndex)
		assert.Equal(t, "rewrite of "+s.Sentences[i].Text, *it.Suggestion)
	}
}

func TestCreate_NoSentencesIsTriviallyCompleted(t *testing.T) {
	e := NewEngine(stubClassifier(nil), nil, testPolicy())
	s, err := e.Create(context.Background(), Draft{})
	require.NoError(t, err)
	assert.Equal(t, model.OverallCompleted, Status(s).Overall)
}

func TestScenario_RejectRegenerateApprove(t *testing.T) {
	suggester, _ := sequenceSuggester("S1'", "S1''")
	e := NewEngine(stubClassifier(map[string]Classification{
		"Women belong in the kitchen.": {Category: model.CategoryGender, Confidence: 0.82},
	}), suggester, testPolicy())
	s := newScenarioSession(t, e)
	itemID := s.Items[0].ID

	it, err := e.Decide(s, itemID, EventReject, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNeedsRegeneration, it.Status)
	assert.Nil(t, it.Suggestion)
	st := Status(s)
	assert.Equal(t, 1, st.NeedsRegenerationCount)
	assert.Equal(t, model.OverallInProgress, st.Overall)

	ticket, err := e.BeginRegeneration(s, itemID)
	require.NoError(t, err)
	out, err := e.Suggest(context.Background(), ticket)
	require.NoError(t, err)
	it, err = e.CompleteRegeneration(s, ticket, out)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, it.Status)
	assert.Equal(t, "S1''", *it.Suggestion)
	assert.Equal(t, 1, it.RegenerationCount)

	it, err = e.Decide(s, itemID, EventApprove, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, it.Status)
	assert.Equal(t, "S1''", *it.ApprovedText)

	st = Status(s)
	assert.Equal(t, model.OverallCompleted, st.Overall)
	assert.Equal(t, st.TotalItems, st.PendingCount+st.ApprovedCount+st.NeedsRegenerationCount)
}

func TestScenario_RegenerationLimit(t *testing.T) {
	suggester, calls := sequenceSuggester("again")
	e := NewEngine(stubClassifier(map[string]Classification{
		"Women belong in the kitchen.": {Category: model.CategoryGender, Confidence: 0.82},
	}), suggester, testPolicy())
	s := newScenarioSession(t, e)
	itemID := s.Items[0].ID

	prev := 0
	for attempt := 1; attempt <= 6; attempt++ {
		_, err := e.Decide(s, itemID, EventReject, nil)
		require.NoError(t, err)

		ticket, err := e.BeginRegeneration(s, itemID)
		if attempt == 6 {
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRegenerationLimitExceeded)
			var de *Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, model.StatusNeedsRegeneration, de.ItemStatus)
			assert.Equal(t, itemID, de.ItemID)
			break
		}
		require.NoError(t, err)
		out, err := e.Suggest(context.Background(), ticket)
		require.NoError(t, err)
		it, err := e.CompleteRegeneration(s, ticket, out)
		require.NoError(t, err)
		assert.Greater(t, it.RegenerationCount, prev)
		assert.LessOrEqual(t, it.RegenerationCount, 5)
		prev = it.RegenerationCount
	}

	it := s.Item(itemID)
	assert.Equal(t, 5, it.RegenerationCount)
	assert.Equal(t, model.StatusNeedsRegeneration, it.Status)
	assert.EqualValues(t, 6, *calls) // initial suggestion plus five regenerations

	it, err := e.Decide(s, itemID, EventApprove, ptr("custom text"))
	require.NoError(t, err)
	assert.Equal(t, "custom text", *it.ApprovedText)
	assert.Equal(t, model.OverallCompleted, Status(s).Overall)
}

func TestRegeneration_LoserSeesInvalidTransition(t *testing.T) {
	suggester, _ := sequenceSuggester("first", "second")
	e := NewEngine(stubClassifier(map[string]Classification{
		"Women belong in the kitchen.": {Category: model.CategoryGender, Confidence: 0.82},
	}), suggester, testPolicy())
	s := newScenarioSession(t, e)
	itemID := s.Items[0].ID
	_, err := e.Decide(s, itemID, EventReject, nil)
	require.NoError(t, err)

	ticket, err := e.BeginRegeneration(s, itemID)
	require.NoError(t, err)

	// manual approval lands while the suggestion is in flight
	_, err = e.Decide(s, itemID, EventApprove, ptr("manual"))
	require.NoError(t, err)

	_, err = e.CompleteRegeneration(s, ticket, "late suggestion")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	it := s.Item(itemID)
	assert.Equal(t, "manual", *it.ApprovedText)
	assert.Equal(t, 0, it.RegenerationCount)
}

func TestRegeneration_BlankResultStaysNeedsRegeneration(t *testing.T) {
	suggester, _ := sequenceSuggester("first", "")
	e := NewEngine(stubClassifier(map[string]Classification{
		"Women belong in the kitchen.": {Category: model.CategoryGender, Confidence: 0.82},
	}), suggester, testPolicy())
	s := newScenarioSession(t, e)
	itemID := s.Items[0].ID
	_, err := e.Decide(s, itemID, EventReject, nil)
	require.NoError(t, err)

	ticket, err := e.BeginRegeneration(s, itemID)
	require.NoError(t, err)
	out, err := e.Suggest(context.Background(), ticket)
	require.NoError(t, err)
	it, err := e.CompleteRegeneration(s, ticket, out)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNeedsRegeneration, it.Status)
	assert.Equal(t, 1, it.RegenerationCount)

	// approving without text is refused; there is nothing to approve
	_, err = e.Decide(s, itemID, EventApprove, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegeneration_SuggestTimeoutLeavesItem(t *testing.T) {
	p := testPolicy()
	p.SuggestTimeout = 20 * time.Millisecond
	var n int32
	e := NewEngine(stubClassifier(map[string]Classification{
		"Women belong in the kitchen.": {Category: model.CategoryGender, Confidence: 0.82},
	}), SuggesterFunc(func(ctx context.Context, s string, c model.Category) (string, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			return "initial", nil
		}
		<-ctx.Done()
		return "partial", ctx.Err()
	}), p)
	s := newScenarioSession(t, e)
	itemID := s.Items[0].ID
	_, err := e.Decide(s, itemID, EventReject, nil)
	require.NoError(t, err)

	ticket, err := e.BeginRegeneration(s, itemID)
	require.NoError(t, err)
	_, err = e.Suggest(context.Background(), ticket)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSuggestionUnavailable)
	assert.True(t, IsTimeout(err))
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, model.StatusNeedsRegeneration, de.ItemStatus)

	it := s.Item(itemID)
	assert.Equal(t, model.StatusNeedsRegeneration, it.Status)
	assert.Equal(t, 0, it.RegenerationCount)
	assert.Nil(t, it.Suggestion)
}

func TestDecide_Errors(t *testing.T) {
	suggester, _ := sequenceSuggester("S1'")
	e := NewEngine(stubClassifier(map[string]Classification{
		"Women belong in the kitchen.": {Category: model.CategoryGender, Confidence: 0.82},
	}), suggester, testPolicy())
	s := newScenarioSession(t, e)
	itemID := s.Items[0].ID

	_, err := e.Decide(s, "nope", EventApprove, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.Decide(s, itemID, Event("shrug"), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.BeginRegeneration(s, itemID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending items cannot be regenerated")

	_, err = e.Decide(s, itemID, EventApprove, ptr("edited"))
	require.NoError(t, err)

	_, err = e.Decide(s, itemID, EventApprove, ptr("again"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, model.StatusApproved, de.ItemStatus)
	assert.Equal(t, s.ID, de.SessionID)

	_, err = e.Decide(s, itemID, EventReject, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition, "re-opening approved items is unsupported")
	assert.Equal(t, "edited", *s.Item(itemID).ApprovedText)
}

func TestStatus_Idempotent(t *testing.T) {
	suggester, _ := sequenceSuggester("S1'")
	e := NewEngine(stubClassifier(map[string]Classification{
		"Women belong in the kitchen.": {Category: model.CategoryGender, Confidence: 0.82},
		"Cats sleep a lot.":            {Category: model.CategoryAppearance, Confidence: 0.75},
	}), suggester, testPolicy())
	s := newScenarioSession(t, e)
	_, err := e.Decide(s, s.Items[0].ID, EventReject, nil)
	require.NoError(t, err)

	first := Status(s)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Status(s))
	}
	assert.Equal(t, 2, first.TotalItems)
	assert.Equal(t, first.TotalItems, first.PendingCount+first.ApprovedCount+first.NeedsRegenerationCount)
}
