package app

import (
	"time"

	"github.com/newsr/citydigest/lib"
	"github.com/newsr/citydigest/lib/models"
)

type SubscriptionView struct {
	ID          uint               `json:"id"`
	UserID      uint               `json:"user_id"`
	CityCode    string             `json:"city_code"`
	Frequency   string             `json:"frequency"`
	Status      string             `json:"status"`
	Preferences models.Preferences `json:"preferences"`
}

func (view SubscriptionView) From(entity models.Subscription) SubscriptionView {
	return SubscriptionView{
		ID:          entity.ID,
		UserID:      entity.UserID,
		CityCode:    entity.CityCode,
		Frequency:   entity.Frequency,
		Status:      entity.Status,
		Preferences: entity.Preferences.Data(),
	}
}

type DeliveryRecordView struct {
	ID         uint   `json:"id"`
	RunID      string `json:"run_id"`
	CityCode   string `json:"city_code"`
	DigestID   uint   `json:"digest_id"`
	CampaignID string `json:"campaign_id"`
	UserID     *uint  `json:"user_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Frequency  string `json:"frequency"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func (view DeliveryRecordView) From(entity models.DeliveryRecord) DeliveryRecordView {
	return DeliveryRecordView{
		ID:         entity.ID,
		RunID:      entity.RunID,
		CityCode:   entity.CityCode,
		DigestID:   entity.DigestID,
		CampaignID: entity.CampaignID,
		UserID:     entity.UserID,
		Email:      entity.Email,
		Frequency:  entity.Frequency,
		Outcome:    entity.Outcome,
		Detail:     entity.Detail,
		CreatedAt:  entity.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// PreferencesBody is the PATCH payload for preference updates.
type PreferencesBody struct {
	CityCode    string             `json:"city_code"`
	Frequency   string             `json:"frequency"`
	Preferences models.Preferences `json:"preferences"`
}

func (body PreferencesBody) Update() lib.PreferenceUpdate {
	return lib.PreferenceUpdate{
		Frequency:   body.Frequency,
		Preferences: body.Preferences,
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}
