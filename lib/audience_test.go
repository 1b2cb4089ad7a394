package lib

import (
	"context"
	"testing"

	"github.com/newsr/citydigest/mailchimp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func TestSegmentName(t *testing.T) {
	assert.Equal(t, "Austin daily digest", SegmentName("Austin", "daily"))
	assert.Equal(t, "New York weekly digest", SegmentName("New York", "weekly"))
}

func TestEnsureContact_UpdatesExisting(t *testing.T) {
	api := new(MockAPI)
	audience := &audienceSync{log: zap.NewNop(), api: api}
	ctx := context.Background()

	merge := mailchimp.MergeFields{FirstName: "Alice", LastName: "Ng"}
	api.On("GetMember", mock.Anything, "alice@example.com").Return(&mailchimp.Member{Status: "subscribed"}, nil)
	api.On("UpdateMember", mock.Anything, "alice@example.com", merge).Return(&mailchimp.Member{}, nil)
	api.On("UpdateMemberTags", mock.Anything, "alice@example.com", []string{"city:aus"}).Return(nil)

	ok := audience.EnsureContact(ctx, "alice@example.com", "Alice", "Ng", []string{"city:aus"})

	assert.True(t, ok)
	api.AssertNotCalled(t, "AddMember")
	api.AssertExpectations(t)
}

func TestEnsureContact_AddsWhenMissing(t *testing.T) {
	api := new(MockAPI)
	audience := &audienceSync{log: zap.NewNop(), api: api}
	ctx := context.Background()

	merge := mailchimp.MergeFields{FirstName: "Alice", LastName: "Ng"}
	api.On("GetMember", mock.Anything, "alice@example.com").Return(nil, notFoundErr())
	api.On("AddMember", mock.Anything, "alice@example.com", merge).Return(&mailchimp.Member{Status: "subscribed"}, nil)
	api.On("UpdateMemberTags", mock.Anything, "alice@example.com", []string{"city:aus"}).Return(nil)

	ok := audience.EnsureContact(ctx, "alice@example.com", "Alice", "Ng", []string{"city:aus"})

	assert.True(t, ok)
	api.AssertNotCalled(t, "UpdateMember")
	api.AssertExpectations(t)
}

func TestEnsureContact_ForgottenEmailIsNotRetried(t *testing.T) {
	api := new(MockAPI)
	audience := &audienceSync{log: zap.NewNop(), api: api}
	ctx := context.Background()

	forgotten := &mailchimp.APIError{StatusCode: 400, Title: "Forgotten Email Not Subscribed"}
	api.On("GetMember", mock.Anything, "gone@example.com").Return(nil, notFoundErr())
	api.On("AddMember", mock.Anything, "gone@example.com", mock.Anything).Return(nil, forgotten)

	ok := audience.EnsureContact(ctx, "gone@example.com", "", "", []string{"city:aus"})

	assert.False(t, ok)
	api.AssertNotCalled(t, "UpdateMemberTags")
}

func TestEnsureContact_NoTagsSkipsTagCall(t *testing.T) {
	api := new(MockAPI)
	audience := &audienceSync{log: zap.NewNop(), api: api}

	api.On("GetMember", mock.Anything, "alice@example.com").Return(&mailchimp.Member{}, nil)
	api.On("UpdateMember", mock.Anything, "alice@example.com", mock.Anything).Return(&mailchimp.Member{}, nil)

	ok := audience.EnsureContact(context.Background(), "alice@example.com", "Alice", "Ng", nil)

	assert.True(t, ok)
	api.AssertNotCalled(t, "UpdateMemberTags")
}

func TestAddToSegment_ReusesExistingSegment(t *testing.T) {
	api := new(MockAPI)
	audience := &audienceSync{log: zap.NewNop(), api: api}

	api.On("ListSegments", mock.Anything).Return([]mailchimp.Segment{
		{ID: 11, Name: "New York daily digest"},
		{ID: 12, Name: "Austin daily digest"},
	}, nil)
	api.On("AddSegmentMember", mock.Anything, 12, "alice@example.com").Return(nil)

	ok := audience.AddToSegment(context.Background(), "alice@example.com", "Austin", "daily")

	assert.True(t, ok)
	api.AssertNotCalled(t, "CreateSegment")
	api.AssertExpectations(t)
}

func TestAddToSegment_CreatesSegmentLazily(t *testing.T) {
	api := new(MockAPI)
	audience := &audienceSync{log: zap.NewNop(), api: api}

	api.On("ListSegments", mock.Anything).Return([]mailchimp.Segment{}, nil)
	api.On("CreateSegment", mock.Anything, "Austin daily digest").Return(&mailchimp.Segment{ID: 99, Name: "Austin daily digest"}, nil)
	api.On("AddSegmentMember", mock.Anything, 99, "alice@example.com").Return(nil)

	ok := audience.AddToSegment(context.Background(), "alice@example.com", "Austin", "daily")

	assert.True(t, ok)
	api.AssertExpectations(t)
}

func TestRemoveFromSegment_MissingSegmentIsNoop(t *testing.T) {
	api := new(MockAPI)
	audience := &audienceSync{log: zap.NewNop(), api: api}

	api.On("ListSegments", mock.Anything).Return([]mailchimp.Segment{}, nil)

	ok := audience.RemoveFromSegment(context.Background(), "alice@example.com", "Austin", "daily")

	assert.True(t, ok)
	api.AssertNotCalled(t, "RemoveSegmentMember")
}

func TestRemoveFromSegment(t *testing.T) {
	api := new(MockAPI)
	audience := &audienceSync{log: zap.NewNop(), api: api}

	api.On("ListSegments", mock.Anything).Return([]mailchimp.Segment{{ID: 12, Name: "Austin daily digest"}}, nil)
	api.On("RemoveSegmentMember", mock.Anything, 12, "alice@example.com").Return(nil)

	ok := audience.RemoveFromSegment(context.Background(), "alice@example.com", "Austin", "daily")

	assert.True(t, ok)
	api.AssertExpectations(t)
}
