package lib

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newsr/citydigest/config"
	"github.com/newsr/citydigest/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Per-city outcomes of a send cycle. Anything else in the result map
// is a campaign id.
const (
	OutcomeNoSubscribers  = "no_subscribers"
	OutcomeNoActiveDigest = "no_active_digest"
	OutcomeTestFailed     = "test_failed"
	OutcomeFailed         = "failed"
)

// digestSender walks cities and pushes their digests out through the
// dispatcher, one city at a time. Cities share the provider's send
// budget, so the loop is sequential; one city's failure never blocks
// the rest.
type digestSender struct {
	cfg        *config.Config
	log        *zap.Logger
	db         *gorm.DB
	subs       *subscriptionStore
	resolver   *digestResolver
	audience   *audienceSync
	dispatcher *campaignDispatcher
	ledger     *deliveryLedger
}

// SendDigests runs one delivery cycle for a frequency. With onlyCity
// set it processes that single city; otherwise every city in the
// registry. Returns the per-city outcome map.
func (s *digestSender) SendDigests(ctx context.Context, frequency, onlyCity string) (map[string]string, error) {
	if !models.ValidFrequency(frequency) {
		return nil, &ValidationError{Field: "frequency", Reason: `must be "daily" or "weekly"`}
	}

	var cities models.Cities
	if onlyCity != "" {
		city, err := s.subs.city(ctx, onlyCity)
		if err != nil {
			return nil, err
		}
		cities = models.Cities{*city}
	} else {
		if err := s.db.WithContext(ctx).Order("code").Find(&cities).Error; err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	results := make(map[string]string)

	for _, city := range cities {
		digest, err := s.resolver.LatestActiveDigest(ctx, city.Code)
		if err != nil {
			var notFound *NotFoundError
			if errors.As(err, &notFound) {
				if onlyCity != "" {
					results[city.Code] = OutcomeNoActiveDigest
				}
				continue
			}
			s.log.Sugar().Errorw("Failed to resolve digest", "city", city.Code, "err", err)
			results[city.Code] = OutcomeFailed
			continue
		}

		results[city.Code] = s.sendCityDigest(ctx, runID, &city, digest, frequency)
	}

	s.log.Sugar().Infow("Send cycle completed", "run_id", runID, "frequency", frequency, "results", results)
	return results, nil
}

func (s *digestSender) sendCityDigest(ctx context.Context, runID string, city *models.City, digest *models.CityDigest, frequency string) string {
	if outcome := s.runTestSequence(ctx, runID, city, digest, frequency); outcome != "" {
		return outcome
	}

	count, err := s.subs.CountActive(ctx, city.Code, frequency)
	if err != nil {
		s.log.Sugar().Errorw("Failed to count subscribers", "city", city.Code, "err", err)
		return OutcomeFailed
	}
	if count == 0 {
		s.log.Sugar().Infof("No subscribers for %s %s digest, skipping", city.Name, frequency)
		return OutcomeNoSubscribers
	}

	doc, err := s.resolver.Render(digest, city.Name, frequency, RecipientContext{})
	if err != nil {
		s.recordFailure(ctx, runID, city.Code, digest.ID, frequency, nil, "", "render: "+err.Error())
		return OutcomeFailed
	}

	segment, err := s.audience.FindSegment(ctx, SegmentName(city.Name, frequency))
	if err != nil || segment == nil {
		detail := "segment missing"
		if err != nil {
			detail = err.Error()
		}
		s.log.Sugar().Warnf("No usable segment for %s %s digest: %s", city.Name, frequency, detail)
		s.recordFailure(ctx, runID, city.Code, digest.ID, frequency, nil, "", detail)
		return OutcomeFailed
	}

	title := fmt.Sprintf("%s %s digest - %s", city.Name, frequency, time.Now().UTC().Format("2006-01-02"))
	campaignID, err := s.dispatcher.SendToSegment(ctx, segment.ID, doc, title)
	if err != nil {
		s.recordFailure(ctx, runID, city.Code, digest.ID, frequency, nil, "", err.Error())
		return OutcomeFailed
	}

	s.ledger.Record(ctx, &models.DeliveryRecord{
		RunID:      runID,
		CityCode:   city.Code,
		DigestID:   digest.ID,
		CampaignID: campaignID,
		Frequency:  frequency,
		Outcome:    models.DeliverySent,
	})
	return campaignID
}

// runTestSequence sends the digest to every configured test recipient
// and requires all of them to succeed. Returns OutcomeTestFailed to
// abort this city, or "" to proceed. An empty test team skips the
// sequence entirely.
func (s *digestSender) runTestSequence(ctx context.Context, runID string, city *models.City, digest *models.CityDigest, frequency string) string {
	for _, userID := range s.cfg.TestTeam() {
		if _, err := s.sendTestToUser(ctx, runID, userID, city, digest, frequency); err != nil {
			s.log.Sugar().Errorw("Pre-flight test failed, skipping city", "city", city.Code, "user", userID, "err", err)
			s.recordFailure(ctx, runID, city.Code, digest.ID, frequency, &userID, "", "test_failed: "+err.Error())
			return OutcomeTestFailed
		}
	}
	return ""
}

// SendTestDigest sends the city's latest digest to a single user and
// records a test_sent ledger row. Used for the pre-flight sequence
// and for on-demand verification by operators.
func (s *digestSender) SendTestDigest(ctx context.Context, userID uint, cityCode, frequency string) (string, error) {
	if !models.ValidFrequency(frequency) {
		return "", &ValidationError{Field: "frequency", Reason: `must be "daily" or "weekly"`}
	}

	city, err := s.subs.city(ctx, cityCode)
	if err != nil {
		return "", err
	}
	digest, err := s.resolver.LatestActiveDigest(ctx, cityCode)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	campaignID, err := s.sendTestToUser(ctx, runID, userID, city, digest, frequency)
	if err != nil {
		s.recordFailure(ctx, runID, city.Code, digest.ID, frequency, &userID, "", err.Error())
		return "", err
	}
	return campaignID, nil
}

func (s *digestSender) sendTestToUser(ctx context.Context, runID string, userID uint, city *models.City, digest *models.CityDigest, frequency string) (string, error) {
	user := &models.User{}
	tx := s.db.WithContext(ctx).First(user, userID)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return "", &NotFoundError{Resource: "user", Key: fmt.Sprint(userID)}
	} else if tx.Error != nil {
		return "", tx.Error
	}

	doc, err := s.resolver.Render(digest, city.Name, frequency, RecipientContext{FirstName: user.FirstName})
	if err != nil {
		return "", err
	}

	title := fmt.Sprintf("Test %s digest for %s", city.Name, user.Email)
	contact := Contact{Email: user.Email, FirstName: user.FirstName, LastName: user.LastName}

	campaignID, err := s.dispatcher.SendToSingleRecipient(ctx, contact, doc, title)
	if err != nil {
		return "", err
	}

	s.ledger.Record(ctx, &models.DeliveryRecord{
		RunID:      runID,
		CityCode:   city.Code,
		DigestID:   digest.ID,
		CampaignID: campaignID,
		UserID:     &userID,
		Email:      user.Email,
		Frequency:  frequency,
		Outcome:    models.DeliveryTestSent,
	})
	return campaignID, nil
}

func (s *digestSender) recordFailure(ctx context.Context, runID, cityCode string, digestID uint, frequency string, userID *uint, email, detail string) {
	s.ledger.Record(ctx, &models.DeliveryRecord{
		RunID:     runID,
		CityCode:  cityCode,
		DigestID:  digestID,
		UserID:    userID,
		Email:     email,
		Frequency: frequency,
		Outcome:   models.DeliveryFailed,
		Detail:    detail,
	})
}
