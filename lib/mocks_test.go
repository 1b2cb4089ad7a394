package lib

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/newsr/citydigest/lib/models"
	"github.com/newsr/citydigest/mailchimp"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.City{},
		&models.Subscription{},
		&models.CityDigest{},
		&models.DeliveryRecord{},
	)
	require.NoError(t, err)
	return db
}

func seedCity(t *testing.T, db *gorm.DB, code, name string) *models.City {
	city := &models.City{Code: code, Name: name}
	require.NoError(t, db.Create(city).Error)
	return city
}

func seedUser(t *testing.T, db *gorm.DB, email, firstName, lastName string) *models.User {
	user := &models.User{Email: email, FirstName: firstName, LastName: lastName}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedDigest(t *testing.T, db *gorm.DB, cityCode, headline, status string, date time.Time) *models.CityDigest {
	digest := &models.CityDigest{CityCode: cityCode, Headline: headline, Status: status, Date: date}
	require.NoError(t, db.Create(digest).Error)
	return digest
}

// MockAPI is a mock implementation of mailchimp.API
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAPI) GetMember(ctx context.Context, email string) (*mailchimp.Member, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailchimp.Member), args.Error(1)
}

func (m *MockAPI) AddMember(ctx context.Context, email string, merge mailchimp.MergeFields) (*mailchimp.Member, error) {
	args := m.Called(ctx, email, merge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailchimp.Member), args.Error(1)
}

func (m *MockAPI) UpdateMember(ctx context.Context, email string, merge mailchimp.MergeFields) (*mailchimp.Member, error) {
	args := m.Called(ctx, email, merge)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailchimp.Member), args.Error(1)
}

func (m *MockAPI) UpdateMemberTags(ctx context.Context, email string, tags []string) error {
	args := m.Called(ctx, email, tags)
	return args.Error(0)
}

func (m *MockAPI) ListSegments(ctx context.Context) ([]mailchimp.Segment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mailchimp.Segment), args.Error(1)
}

func (m *MockAPI) CreateSegment(ctx context.Context, name string) (*mailchimp.Segment, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mailchimp.Segment), args.Error(1)
}

func (m *MockAPI) AddSegmentMember(ctx context.Context, segmentID int, email string) error {
	args := m.Called(ctx, segmentID, email)
	return args.Error(0)
}

func (m *MockAPI) RemoveSegmentMember(ctx context.Context, segmentID int, email string) error {
	args := m.Called(ctx, segmentID, email)
	return args.Error(0)
}

func (m *MockAPI) CreateCampaign(ctx context.Context, spec mailchimp.CampaignSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockAPI) SetCampaignContent(ctx context.Context, campaignID, html string) error {
	args := m.Called(ctx, campaignID, html)
	return args.Error(0)
}

func (m *MockAPI) SendCampaign(ctx context.Context, campaignID string) error {
	args := m.Called(ctx, campaignID)
	return args.Error(0)
}

func notFoundErr() error {
	return &mailchimp.APIError{StatusCode: 404, Title: "Resource Not Found"}
}
