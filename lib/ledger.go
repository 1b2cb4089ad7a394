package lib

import (
	"context"

	"github.com/newsr/citydigest/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// deliveryLedger is the append-only audit trail of send attempts. No
// business rules live here: writes only append, reads only filter, so
// application bugs elsewhere cannot corrupt the trail.
type deliveryLedger struct {
	log *zap.Logger
	db  *gorm.DB
}

type LedgerFilter struct {
	CityCode   string
	CampaignID string
	Limit      int
}

type DeliveryStat struct {
	CityCode string `json:"city_code"`
	Outcome  string `json:"outcome"`
	Count    int64  `json:"count"`
}

func (l *deliveryLedger) Record(ctx context.Context, rec *models.DeliveryRecord) error {
	if err := l.db.WithContext(ctx).Create(rec).Error; err != nil {
		l.log.Sugar().Errorw("Failed to write delivery record", "city", rec.CityCode, "outcome", rec.Outcome, "err", err)
		return err
	}
	return nil
}

func (l *deliveryLedger) Recent(ctx context.Context, filter LedgerFilter) (models.DeliveryRecords, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	tx := l.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if filter.CityCode != "" {
		tx = tx.Where("city_code = ?", filter.CityCode)
	}
	if filter.CampaignID != "" {
		tx = tx.Where("campaign_id = ?", filter.CampaignID)
	}

	var records models.DeliveryRecords
	tx = tx.Find(&records)
	return records, tx.Error
}

func (l *deliveryLedger) Stats(ctx context.Context) ([]DeliveryStat, error) {
	var stats []DeliveryStat
	tx := l.db.WithContext(ctx).
		Model(&models.DeliveryRecord{}).
		Select("city_code, outcome, count(*) as count").
		Group("city_code").Group("outcome").
		Order("city_code, outcome").
		Scan(&stats)
	return stats, tx.Error
}
