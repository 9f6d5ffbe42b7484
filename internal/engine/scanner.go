package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/plannerhq/webhook-engine/internal/domain"
)

// EventSource is the slice of the persistence layer the scanner needs.
type EventSource interface {
	ListDueEvents(ctx context.Context, now time.Time, lookahead, suppression time.Duration) ([]domain.Event, error)
	ClaimEventTrigger(ctx context.Context, id string, startDate, now time.Time, suppression time.Duration) (bool, error)
}

// Scanner periodically scans for due events and hands qualifying ones to
// the delivery executor. One instance per process; Start/Stop are owned by
// the top-level lifecycle.
type Scanner struct {
	events      EventSource
	deliverer   Deliverer
	lock        *CycleLock
	interval    time.Duration
	suppression time.Duration
	logger      *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewScanner creates a scanner. lock may be nil when single-instance
// deployment is guaranteed.
func NewScanner(events EventSource, deliverer Deliverer, lock *CycleLock, interval, suppression time.Duration, logger *slog.Logger) *Scanner {
	return &Scanner{
		events:      events,
		deliverer:   deliverer,
		lock:        lock,
		interval:    interval,
		suppression: suppression,
		logger:      logger,
	}
}

// Start launches the scan loop. It runs until Stop is called or the
// parent context is cancelled.
func (s *Scanner) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)
	s.logger.Info("trigger scanner started", "interval", s.interval.String())
}

// Stop halts the scan loop and waits for in-flight deliveries to wind
// down. An interrupted retry wait aborts its chain; the ledger keeps the
// rows already written.
func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
	s.wg.Wait()
	s.logger.Info("trigger scanner stopped")
}

func (s *Scanner) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ScanOnce(ctx, time.Now())
		}
	}
}

// ScanOnce runs a single scan cycle: query due events, claim each
// qualifying occurrence, and dispatch claimed ones to the executor. Each
// delivery runs on its own goroutine so a retry chain never blocks the
// next cycle or other deliveries.
func (s *Scanner) ScanOnce(ctx context.Context, now time.Time) {
	if s.lock != nil {
		if !s.lock.TryAcquire(ctx) {
			s.logger.Debug("scan cycle skipped, another instance holds the lock")
			return
		}
		defer s.lock.Release(ctx)
	}

	events, err := s.events.ListDueEvents(ctx, now, 2*s.interval, s.suppression)
	if err != nil {
		s.logger.Error("failed to query due events", "error", err)
		return
	}

	fired := 0
	for i := range events {
		ev := events[i]
		if ev.WebhookConfig == nil || !ev.WebhookConfig.Enabled {
			continue
		}
		if ev.TriggerTime().After(now) {
			// Inside the look-ahead window but not due yet; a later
			// cycle picks it up.
			continue
		}

		claimed, err := s.events.ClaimEventTrigger(ctx, ev.ID, ev.StartDate, now, s.suppression)
		if err != nil {
			s.logger.Error("failed to claim event trigger", "error", err, "event_id", ev.ID)
			continue
		}
		if !claimed {
			// Another scan or instance won the claim.
			continue
		}

		job := DeliveryJob{
			Kind:     domain.KindEvent,
			EntityID: ev.ID,
			Snapshot: ev.Snapshot(),
			Config:   *ev.WebhookConfig,
			Trigger: domain.TriggerContext{
				Kind:      domain.KindEvent,
				Event:     domain.TriggerScheduled,
				Timestamp: now,
			},
		}

		fired++
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.deliverer.Deliver(ctx, job)
		}()
	}

	if fired > 0 {
		s.logger.Info("scan cycle fired webhooks", "candidates", len(events), "fired", fired)
	}
}
