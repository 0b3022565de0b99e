package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"debiasapi/internal/model"
	"debiasapi/internal/review"
	"debiasapi/internal/service"
	"debiasapi/internal/storage"
)

type MockReviewService struct {
	mock.Mock
}

var _ service.ReviewService = (*MockReviewService)(nil)

func (m *MockReviewService) StartReview(ctx context.Context, in service.StartReviewInput) (*service.StartReviewResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*service.StartReviewResult)
	return res, args.Error(1)
}

func (m *MockReviewService) Decide(ctx context.Context, sessionID, itemID string, action review.Event, approvedText *string) (*model.ReviewItemView, error) {
	args := m.Called(ctx, sessionID, itemID, action, approvedText)
	v, _ := args.Get(0).(*model.ReviewItemView)
	return v, args.Error(1)
}

func (m *MockReviewService) Regenerate(ctx context.Context, sessionID, itemID string) (*model.ReviewItemView, error) {
	args := m.Called(ctx, sessionID, itemID)
	v, _ := args.Get(0).(*model.ReviewItemView)
	return v, args.Error(1)
}

func (m *MockReviewService) Status(ctx context.Context, sessionID string) (*model.Stats, error) {
	args := m.Called(ctx, sessionID)
	st, _ := args.Get(0).(*model.Stats)
	return st, args.Error(1)
}

func (m *MockReviewService) GetSession(ctx context.Context, sessionID string) (*service.SessionDetail, error) {
	args := m.Called(ctx, sessionID)
	d, _ := args.Get(0).(*service.SessionDetail)
	return d, args.Error(1)
}

func (m *MockReviewService) Assemble(ctx context.Context, sessionID string) (*model.FinalDocument, error) {
	args := m.Called(ctx, sessionID)
	d, _ := args.Get(0).(*model.FinalDocument)
	return d, args.Error(1)
}

func (m *MockReviewService) Document(ctx context.Context, sessionID string) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, sessionID)
	rc, _ := args.Get(0).(io.ReadCloser)
	info, _ := args.Get(1).(storage.ObjectInfo)
	return rc, info, args.Error(2)
}

func (m *MockReviewService) Delete(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockReviewService) Health(ctx context.Context) (*service.Health, error) {
	args := m.Called(ctx)
	h, _ := args.Get(0).(*service.Health)
	return h, args.Error(1)
}
