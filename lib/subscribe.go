package lib

import (
	"context"
	"errors"

	"github.com/newsr/citydigest/lib/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// subscriptionStore is a pure state machine over subscription rows. It
// never talks to the mailing-list provider; that orchestration happens
// one level up in Service.
type subscriptionStore struct {
	log *zap.Logger
	db  *gorm.DB
}

type PreferenceUpdate struct {
	Frequency   string
	Preferences models.Preferences
}

func (s *subscriptionStore) Subscribe(ctx context.Context, userID uint, cityCode, frequency string) (*models.Subscription, error) {
	if !models.ValidFrequency(frequency) {
		return nil, &ValidationError{Field: "frequency", Reason: `must be "daily" or "weekly"`}
	}
	if _, err := s.city(ctx, cityCode); err != nil {
		return nil, err
	}

	sub := &models.Subscription{}
	tx := s.db.WithContext(ctx).
		Where("user_id = ? AND city_code = ? AND frequency = ?", userID, cityCode, frequency).
		First(sub)

	switch {
	case errors.Is(tx.Error, gorm.ErrRecordNotFound):
		sub = &models.Subscription{
			UserID:    userID,
			CityCode:  cityCode,
			Frequency: frequency,
			Status:    models.SubscriptionActive,
		}
		if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
			return nil, err
		}
		s.log.Sugar().Infof("Created subscription id:%v (user:%v %s %s)", sub.ID, userID, cityCode, frequency)
		return sub, nil

	case tx.Error != nil:
		return nil, tx.Error

	default:
		// Flip an inactive row back to active rather than duplicating,
		// preserving its preference history. Re-subscribing while
		// active is a no-op.
		if sub.Status != models.SubscriptionActive {
			tx := s.db.WithContext(ctx).Model(sub).Update("status", models.SubscriptionActive)
			if err := tx.Error; err != nil {
				return nil, err
			}
			sub.Status = models.SubscriptionActive
		}
		return sub, nil
	}
}

func (s *subscriptionStore) Unsubscribe(ctx context.Context, userID uint, cityCode, frequency string) error {
	sub := &models.Subscription{}
	tx := s.db.WithContext(ctx).
		Where("user_id = ? AND city_code = ? AND frequency = ?", userID, cityCode, frequency).
		First(sub)

	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		// Nothing to unsubscribe. Success, not an error.
		return nil
	} else if tx.Error != nil {
		return tx.Error
	}

	if sub.Status == models.SubscriptionInactive {
		return nil
	}
	return s.db.WithContext(ctx).Model(sub).Update("status", models.SubscriptionInactive).Error
}

// UpdatePreferences merges a partial preference bag into the user's
// subscription for the city, creating an active one with defaults if
// none exists. The returned oldFrequency differs from the
// subscription's frequency only when the update migrated it; callers
// use the pair to move segment membership.
func (s *subscriptionStore) UpdatePreferences(ctx context.Context, userID uint, cityCode string, update PreferenceUpdate) (sub *models.Subscription, oldFrequency string, err error) {
	if update.Frequency != "" && !models.ValidFrequency(update.Frequency) {
		return nil, "", &ValidationError{Field: "frequency", Reason: `must be "daily" or "weekly"`}
	}
	if _, err := s.city(ctx, cityCode); err != nil {
		return nil, "", err
	}

	sub = &models.Subscription{}
	tx := s.db.WithContext(ctx).
		Where("user_id = ? AND city_code = ? AND status = ?", userID, cityCode, models.SubscriptionActive).
		Order("updated_at desc").
		First(sub)

	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		frequency := update.Frequency
		if frequency == "" {
			frequency = models.FrequencyDaily
		}
		sub = &models.Subscription{
			UserID:      userID,
			CityCode:    cityCode,
			Frequency:   frequency,
			Status:      models.SubscriptionActive,
			Preferences: datatypes.NewJSONType(update.Preferences),
		}
		if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
			return nil, "", err
		}
		return sub, sub.Frequency, nil
	} else if tx.Error != nil {
		return nil, "", tx.Error
	}

	oldFrequency = sub.Frequency
	merged := sub.Preferences.Data().Merge(update.Preferences)

	if update.Frequency != "" && update.Frequency != sub.Frequency {
		return s.migrateFrequency(ctx, sub, update.Frequency, merged)
	}

	tx = s.db.WithContext(ctx).Model(sub).Update("preferences", datatypes.NewJSONType(merged))
	if err := tx.Error; err != nil {
		return nil, "", err
	}
	sub.Preferences = datatypes.NewJSONType(merged)
	return sub, oldFrequency, nil
}

// migrateFrequency moves a subscription to a new cadence. If a row for
// the target tuple already exists it is reused (the unique index
// forbids a second one) and the old row goes inactive.
func (s *subscriptionStore) migrateFrequency(ctx context.Context, sub *models.Subscription, frequency string, prefs models.Preferences) (*models.Subscription, string, error) {
	oldFrequency := sub.Frequency

	existing := &models.Subscription{}
	tx := s.db.WithContext(ctx).
		Where("user_id = ? AND city_code = ? AND frequency = ?", sub.UserID, sub.CityCode, frequency).
		First(existing)

	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		tx := s.db.WithContext(ctx).Model(sub).Updates(map[string]any{
			"frequency":   frequency,
			"preferences": datatypes.NewJSONType(prefs),
		})
		if err := tx.Error; err != nil {
			return nil, "", err
		}
		sub.Frequency = frequency
		sub.Preferences = datatypes.NewJSONType(prefs)
		return sub, oldFrequency, nil
	} else if tx.Error != nil {
		return nil, "", tx.Error
	}

	tx = s.db.WithContext(ctx).Model(existing).Updates(map[string]any{
		"status":      models.SubscriptionActive,
		"preferences": datatypes.NewJSONType(prefs),
	})
	if err := tx.Error; err != nil {
		return nil, "", err
	}
	if err := s.db.WithContext(ctx).Model(sub).Update("status", models.SubscriptionInactive).Error; err != nil {
		return nil, "", err
	}

	existing.Status = models.SubscriptionActive
	existing.Preferences = datatypes.NewJSONType(prefs)
	return existing, oldFrequency, nil
}

func (s *subscriptionStore) ListActive(ctx context.Context, userID uint) (models.Subscriptions, error) {
	var subs models.Subscriptions
	tx := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.SubscriptionActive).
		Order("city_code, frequency").
		Find(&subs)
	return subs, tx.Error
}

func (s *subscriptionStore) CountActive(ctx context.Context, cityCode, frequency string) (int64, error) {
	var count int64
	tx := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("city_code = ? AND frequency = ? AND status = ?", cityCode, frequency, models.SubscriptionActive).
		Count(&count)
	return count, tx.Error
}

func (s *subscriptionStore) city(ctx context.Context, cityCode string) (*models.City, error) {
	city := &models.City{}
	tx := s.db.WithContext(ctx).Where("code = ?", cityCode).First(city)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil, &ValidationError{Field: "city_code", Reason: "unknown city: " + cityCode}
	} else if tx.Error != nil {
		return nil, tx.Error
	}
	return city, nil
}
