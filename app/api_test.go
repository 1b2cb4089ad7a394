package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/newsr/citydigest/config"
	"github.com/newsr/citydigest/lib"
	"github.com/newsr/citydigest/lib/models"
	"github.com/newsr/citydigest/mailchimp"
	"github.com/newsr/citydigest/senders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// newTestRouter wires the full router over an in-memory database. The
// mailing-list provider answers 404 to everything, which the service
// treats as best-effort sync misses.
func newTestRouter(t *testing.T) (http.Handler, *gorm.DB) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.City{},
		&models.Subscription{},
		&models.CityDigest{},
		&models.DeliveryRecord{},
	))

	cfg := &config.Config{}
	cfg.Mailchimp.ServerPrefix = "us1"
	cfg.Mailchimp.TimeoutSecs = 5
	log := zap.NewNop()

	transport := roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 404,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"status":404,"title":"Resource Not Found"}`)),
		}, nil
	})
	client := mailchimp.NewClient(cfg, log, transport)

	svc := lib.NewService(nil, cfg, log, db, client, senders.Registry{})
	return router(cfg, log, svc), db
}

func postForm(handler http.Handler, path, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	handler, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestSubscribeEndpoint(t *testing.T) {
	handler, db := newTestRouter(t)
	require.NoError(t, db.Create(&models.City{Code: "aus", Name: "Austin"}).Error)
	require.NoError(t, db.Create(&models.User{Email: "alice@example.com", FirstName: "Alice"}).Error)

	w := postForm(handler, "/api/users/1/subscriptions", "city_code=aus&frequency=daily")

	assert.Equal(t, http.StatusCreated, w.Code)

	var view SubscriptionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "aus", view.CityCode)
	assert.Equal(t, models.SubscriptionActive, view.Status)
}

func TestSubscribeEndpoint_InvalidFrequency(t *testing.T) {
	handler, db := newTestRouter(t)
	require.NoError(t, db.Create(&models.City{Code: "aus", Name: "Austin"}).Error)

	w := postForm(handler, "/api/users/1/subscriptions", "city_code=aus&frequency=hourly")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid frequency")
}

func TestSubscribeEndpoint_UnknownCity(t *testing.T) {
	handler, _ := newTestRouter(t)

	w := postForm(handler, "/api/users/1/subscriptions", "city_code=atlantis&frequency=daily")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSubscriptionsEndpoint(t *testing.T) {
	handler, db := newTestRouter(t)
	require.NoError(t, db.Create(&models.City{Code: "aus", Name: "Austin"}).Error)
	require.NoError(t, db.Create(&models.User{Email: "alice@example.com"}).Error)

	w := postForm(handler, "/api/users/1/subscriptions", "city_code=aus&frequency=daily")
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/users/1/subscriptions", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)

	var body struct {
		Subscriptions []SubscriptionView `json:"subscriptions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Subscriptions, 1)
	assert.Equal(t, "aus", body.Subscriptions[0].CityCode)
}

func TestUnsubscribeEndpoint(t *testing.T) {
	handler, db := newTestRouter(t)
	require.NoError(t, db.Create(&models.City{Code: "aus", Name: "Austin"}).Error)
	require.NoError(t, db.Create(&models.User{Email: "alice@example.com"}).Error)

	w := postForm(handler, "/api/users/1/subscriptions", "city_code=aus&frequency=daily")
	require.Equal(t, http.StatusCreated, w.Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/1/subscriptions?city_code=aus&frequency=daily", nil)
	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req)

	assert.Equal(t, 200, w2.Code)

	var sub models.Subscription
	require.NoError(t, db.Where("user_id = ?", 1).First(&sub).Error)
	assert.Equal(t, models.SubscriptionInactive, sub.Status)
}

func TestUpdatePreferencesEndpoint(t *testing.T) {
	handler, db := newTestRouter(t)
	require.NoError(t, db.Create(&models.City{Code: "aus", Name: "Austin"}).Error)
	require.NoError(t, db.Create(&models.User{Email: "alice@example.com"}).Error)

	payload := `{"city_code":"aus","preferences":{"categories":["sports"],"delivery_time":"07:30"}}`
	req := httptest.NewRequest(http.MethodPatch, "/api/users/1/subscriptions", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)

	var view SubscriptionView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, models.FrequencyDaily, view.Frequency)
	assert.Equal(t, []string{"sports"}, view.Preferences.Categories)
}

func TestTriggerSendEndpoint_NoCities(t *testing.T) {
	handler, _ := newTestRouter(t)

	w := postForm(handler, "/api/admin/digests/send", "frequency=daily")

	assert.Equal(t, 200, w.Code)
	assert.JSONEq(t, `{"results":{}}`, w.Body.String())
}

func TestTriggerSendEndpoint_InvalidFrequency(t *testing.T) {
	handler, _ := newTestRouter(t)

	w := postForm(handler, "/api/admin/digests/send", "frequency=hourly")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecentDeliveriesEndpoint(t *testing.T) {
	handler, db := newTestRouter(t)
	require.NoError(t, db.Create(&models.DeliveryRecord{
		RunID: "r1", CityCode: "aus", CampaignID: "c1", Frequency: "daily", Outcome: models.DeliverySent,
	}).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/deliveries?city_code=aus", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)

	var body struct {
		Deliveries []DeliveryRecordView `json:"deliveries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Deliveries, 1)
	assert.Equal(t, "c1", body.Deliveries[0].CampaignID)
}

func TestBasicAuthGuardsAPIRoutes(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.City{}, &models.Subscription{}))

	log := zap.NewNop()
	t.Setenv("BASIC_AUTH_CREDS", "admin:hunter2")
	cfg := config.NewConfig(nil, log)

	client := mailchimp.NewClient(cfg, log, roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("unexpected call")
	}))
	svc := lib.NewService(nil, cfg, log, db, client, senders.Registry{})
	handler := router(cfg, log, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/users/1/subscriptions", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/users/1/subscriptions", nil)
	req.SetBasicAuth("admin", "hunter2")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, 200, w.Code)
}
