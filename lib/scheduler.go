package lib

import (
	"context"
	"sync"
	"time"

	"github.com/newsr/citydigest/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var schedMu sync.Mutex

// Daily digests go out at 07:00 UTC, weekly at 08:00 UTC on Sundays.
const (
	dailySendHour  = 7
	weeklySendHour = 8
)

// Scheduler owns the two cron-style jobs and nothing else: it fires a
// send cycle per frequency at its wall-clock time and delegates the
// whole per-city procedure to the Service. Cycles are serialized on a
// mutex; Stop waits for an in-flight cycle to drain.
type Scheduler struct {
	log *zap.Logger
	svc *Service

	mu     *sync.Mutex
	cancel context.CancelFunc
	now    func() time.Time
}

func NewScheduler(lc fx.Lifecycle, log *zap.Logger, svc *Service) *Scheduler {
	scheduler := &Scheduler{log: log, svc: svc, mu: &schedMu, now: time.Now}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop scheduler")
			scheduler.Stop()
			return nil
		},
	})

	return scheduler
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	now := s.now().UTC()
	daily := time.NewTimer(nextDaily(now).Sub(now))
	weekly := time.NewTimer(nextWeekly(now).Sub(now))
	defer daily.Stop()
	defer weekly.Stop()

	s.log.Sugar().Infow("Scheduler started",
		"next_daily", nextDaily(now).Format(time.RFC3339),
		"next_weekly", nextWeekly(now).Format(time.RFC3339),
	)

	for {
		select {
		case <-ctx.Done():
			// Locking here to wait for an in-flight cycle to finish
			s.mu.Lock()
			s.log.Sugar().Info("Scheduler stopped")
			return

		case <-daily.C:
			s.runCycle(ctx, models.FrequencyDaily)
			now := s.now().UTC()
			daily.Reset(nextDaily(now).Sub(now))

		case <-weekly.C:
			s.runCycle(ctx, models.FrequencyWeekly)
			now := s.now().UTC()
			weekly.Reset(nextWeekly(now).Sub(now))
		}
	}
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Scheduler) runCycle(ctx context.Context, frequency string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	startTime := s.now().UTC()
	s.log.Sugar().Infof("Running scheduled %s digest job", frequency)

	results, err := s.svc.TriggerSend(ctx, frequency, "")
	if err != nil {
		s.log.Sugar().Errorw("Digest job failed", "frequency", frequency, "err", err)
		return
	}

	elapsed := time.Now().UTC().Sub(startTime)
	s.log.Sugar().Infow("Digest job completed",
		"frequency", frequency, "results", results, "elapsed_msecs", int(elapsed.Milliseconds()),
	)
}

// nextDaily is the next 07:00 UTC strictly after now.
func nextDaily(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), dailySendHour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// nextWeekly is the next Sunday 08:00 UTC strictly after now.
func nextWeekly(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), weeklySendHour, 0, 0, 0, time.UTC)
	for next.Weekday() != time.Sunday || !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
