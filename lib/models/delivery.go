package models

import "gorm.io/gorm"

const (
	DeliverySent     = "sent"
	DeliveryTestSent = "test_sent"
	DeliveryFailed   = "failed"
)

// DeliveryRecord is one row of the append-only delivery ledger.
// UserID and Email are set for targeted test sends only; segment-wide
// batch sends leave them empty. Rows are never updated or deleted.
type DeliveryRecord struct {
	gorm.Model
	RunID      string `gorm:"index"`
	CityCode   string `gorm:"index"`
	DigestID   uint
	CampaignID string `gorm:"index"`
	UserID     *uint
	Email      string
	Frequency  string
	Outcome    string `gorm:"index"`
	Detail     string
}

type DeliveryRecords []DeliveryRecord
