package lib

import (
	"context"
	"errors"
	"fmt"

	"github.com/newsr/citydigest/config"
	"github.com/newsr/citydigest/lib/models"
	"github.com/newsr/citydigest/mailchimp"
	"github.com/newsr/citydigest/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the exposed surface of the digest core. Subscription
// mutations are authoritative in the store; audience sync is layered
// on top as best-effort, so a subscribe that fails to reach the
// mailing list still succeeds from the user's point of view.
type Service struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	api     mailchimp.API
	senders senders.Registry

	store      *subscriptionStore
	audience   *audienceSync
	resolver   *digestResolver
	dispatcher *campaignDispatcher
	ledger     *deliveryLedger
	sender     *digestSender
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, db *gorm.DB, api mailchimp.API, senders senders.Registry) *Service {
	store := &subscriptionStore{log, db}
	audience := &audienceSync{log, api}
	resolver := &digestResolver{log, db}
	dispatcher := &campaignDispatcher{cfg, log, api, audience}
	ledger := &deliveryLedger{log, db}
	sender := &digestSender{cfg, log, db, store, resolver, audience, dispatcher, ledger}

	return &Service{cfg, log, db, api, senders, store, audience, resolver, dispatcher, ledger, sender}
}

func (svc *Service) Subscribe(ctx context.Context, userID uint, cityCode, frequency string) (*models.Subscription, error) {
	sub, err := svc.store.Subscribe(ctx, userID, cityCode, frequency)
	if err != nil {
		return nil, err
	}

	svc.syncMembership(ctx, userID, cityCode, frequency)
	return sub, nil
}

func (svc *Service) Unsubscribe(ctx context.Context, userID uint, cityCode, frequency string) error {
	if err := svc.store.Unsubscribe(ctx, userID, cityCode, frequency); err != nil {
		return err
	}

	// Removal proceeds even when the contact was never successfully
	// upserted; unsubscribe must always make forward progress.
	user, city, err := svc.contactContext(ctx, userID, cityCode)
	if err != nil {
		svc.log.Sugar().Warnf("Skipping segment removal: %v", err)
		return nil
	}
	svc.audience.RemoveFromSegment(ctx, user.Email, city.Name, frequency)
	return nil
}

func (svc *Service) UpdatePreferences(ctx context.Context, userID uint, cityCode string, update PreferenceUpdate) (*models.Subscription, error) {
	sub, oldFrequency, err := svc.store.UpdatePreferences(ctx, userID, cityCode, update)
	if err != nil {
		return nil, err
	}

	if oldFrequency != sub.Frequency {
		user, city, err := svc.contactContext(ctx, userID, cityCode)
		if err != nil {
			svc.log.Sugar().Warnf("Skipping segment migration: %v", err)
			return sub, nil
		}
		svc.audience.RemoveFromSegment(ctx, user.Email, city.Name, oldFrequency)
		svc.syncMembership(ctx, userID, cityCode, sub.Frequency)
	}
	return sub, nil
}

func (svc *Service) ListSubscriptions(ctx context.Context, userID uint) (models.Subscriptions, error) {
	return svc.store.ListActive(ctx, userID)
}

// TriggerSend is the on-demand counterpart of the scheduler's cycle:
// same pre-flight and subscriber-count checks, same per-city outcome
// map, no cron timer.
func (svc *Service) TriggerSend(ctx context.Context, frequency, cityCode string) (map[string]string, error) {
	return svc.sender.SendDigests(ctx, frequency, cityCode)
}

func (svc *Service) SendTestDigest(ctx context.Context, userID uint, cityCode, frequency string) (string, error) {
	return svc.sender.SendTestDigest(ctx, userID, cityCode, frequency)
}

func (svc *Service) RecentDeliveries(ctx context.Context, filter LedgerFilter) (models.DeliveryRecords, error) {
	return svc.ledger.Recent(ctx, filter)
}

func (svc *Service) DeliveryStats(ctx context.Context) ([]DeliveryStat, error) {
	return svc.ledger.Stats(ctx)
}

func (svc *Service) PingProvider(ctx context.Context) error {
	return svc.api.Ping(ctx)
}

// SendOpsEmail sends a direct transactional email outside the campaign
// pipeline, for verifying the outbound mail path.
func (svc *Service) SendOpsEmail(ctx context.Context, recipient, subject, body string) (string, error) {
	sender, ok := svc.senders["email"]
	if !ok {
		return "", errors.New("no direct email sender configured")
	}

	id, err := sender.Send(ctx, subject, body, recipient)
	if err != nil {
		svc.log.Sugar().Errorw("Failed to send ops email", "recipient", recipient, "err", err)
		return "", &UpstreamError{Op: "direct email", Err: err}
	}
	svc.log.Sugar().Infow("Sent ops email to "+recipient, "message_id", id)
	return id, nil
}

// syncMembership pushes one active tuple into the audience: contact
// upsert always precedes segment mutation. Failures are logged only.
func (svc *Service) syncMembership(ctx context.Context, userID uint, cityCode, frequency string) {
	user, city, err := svc.contactContext(ctx, userID, cityCode)
	if err != nil {
		svc.log.Sugar().Warnf("Skipping audience sync: %v", err)
		return
	}

	tags := []string{"city:" + cityCode, "frequency:" + frequency}
	if ok := svc.audience.EnsureContact(ctx, user.Email, user.FirstName, user.LastName, tags); !ok {
		svc.log.Sugar().Warnf("Could not sync contact %s, continuing with segment add", user.Email)
	}
	svc.audience.AddToSegment(ctx, user.Email, city.Name, frequency)
}

func (svc *Service) contactContext(ctx context.Context, userID uint, cityCode string) (*models.User, *models.City, error) {
	user := &models.User{}
	tx := svc.db.WithContext(ctx).First(user, userID)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil, nil, &NotFoundError{Resource: "user", Key: fmt.Sprint(userID)}
	} else if tx.Error != nil {
		return nil, nil, tx.Error
	}

	city, err := svc.store.city(ctx, cityCode)
	if err != nil {
		return nil, nil, err
	}
	return user, city, nil
}
