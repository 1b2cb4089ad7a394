package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"

	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
)

func ValidFrequency(frequency string) bool {
	return frequency == FrequencyDaily || frequency == FrequencyWeekly
}

// Preferences is the per-subscription preference bag. Recognized keys
// are typed; anything else goes into the bounded Extra map.
type Preferences struct {
	Categories   []string          `json:"categories,omitempty"`
	DeliveryTime string            `json:"delivery_time,omitempty"`
	Sections     map[string]bool   `json:"sections,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Merge overlays the set fields of partial onto p. Unset fields keep
// their prior values; Sections and Extra merge key-wise.
func (p Preferences) Merge(partial Preferences) Preferences {
	if partial.Categories != nil {
		p.Categories = partial.Categories
	}
	if partial.DeliveryTime != "" {
		p.DeliveryTime = partial.DeliveryTime
	}
	if partial.Sections != nil {
		if p.Sections == nil {
			p.Sections = make(map[string]bool, len(partial.Sections))
		}
		for k, v := range partial.Sections {
			p.Sections[k] = v
		}
	}
	if partial.Extra != nil {
		if p.Extra == nil {
			p.Extra = make(map[string]string, len(partial.Extra))
		}
		for k, v := range partial.Extra {
			p.Extra[k] = v
		}
	}
	return p
}

type Subscription struct {
	gorm.Model
	UserID      uint   `gorm:"index:idx_user_city_frequency,unique"`
	CityCode    string `gorm:"index:idx_user_city_frequency,unique"`
	Frequency   string `gorm:"index:idx_user_city_frequency,unique"`
	Status      string
	Preferences datatypes.JSONType[Preferences]

	User User
}

type Subscriptions []Subscription
