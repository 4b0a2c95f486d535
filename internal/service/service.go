package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
	"github.com/thesammykins/onlydrives-alert-bot/internal/metrics"
	"github.com/thesammykins/onlydrives-alert-bot/internal/scheduler"
	"github.com/thesammykins/onlydrives-alert-bot/internal/settings"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

// Cycle outcomes as reported to metrics.
const (
	StatusOK           = "ok"
	StatusInitialSync  = "initial_sync"
	StatusSkipped      = "skipped"
	StatusFetchError   = "fetch_error"
	StatusSettingError = "settings_error"
	StatusStoreError   = "store_error"
)

// Dispatcher delivers detected events.
type Dispatcher interface {
	DispatchBroadcast(ctx context.Context, ev alerting.Event, rs settings.Resolved) bool
	DispatchSubscriptions(ctx context.Context, ev alerting.Event, rs settings.Resolved) int
}

// Options configure the monitoring service.
type Options struct {
	Schedule scheduler.Options
	Defaults settings.Defaults
	LockKey  int64
	Metrics  metrics.Recorder
}

// CycleResult summarises one poll cycle.
type CycleResult struct {
	ID                string        `json:"id"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	Status            string        `json:"status"`
	InitialSync       bool          `json:"initial_sync"`
	Products          int           `json:"products"`
	Detected          int           `json:"detected"`
	Broadcasts        int           `json:"broadcasts"`
	SubscriptionSends int           `json:"subscription_sends"`
	ProductErrors     int           `json:"product_errors"`
}

// Service orchestrates fetching, change detection, delivery and persistence.
type Service struct {
	source  catalog.Source
	store   storage.StateStore
	router  Dispatcher
	locker  storage.AdvisoryLocker
	opts    Options
	metrics metrics.Recorder
	logger  zerolog.Logger
	now     func() time.Time

	mu        sync.Mutex
	interval  time.Duration
	lastCycle *CycleResult
}

// New constructs the monitoring service.
func New(source catalog.Source, store storage.StateStore, router Dispatcher, opts Options, logger zerolog.Logger) *Service {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Schedule.Interval <= 0 {
		opts.Schedule.Interval = opts.Defaults.PollInterval
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		source:   source,
		store:    store,
		router:   router,
		locker:   locker,
		opts:     opts,
		metrics:  opts.Metrics,
		logger:   logger.With().Str("component", "service").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
		interval: opts.Schedule.Interval,
	}
}

// Run begins the poll loop and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	schedOpts := s.opts.Schedule
	schedOpts.IntervalFunc = s.PollInterval
	sched := scheduler.New(schedOpts, s.logger)
	return sched.Run(ctx, s.ProcessTick)
}

// ProcessTick adapts RunCycle to the scheduler.
func (s *Service) ProcessTick(ctx context.Context, _ time.Time) error {
	_, err := s.RunCycle(ctx)
	return err
}

// PollInterval is the period resolved from runtime settings by the latest cycle.
func (s *Service) PollInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// LastCycle returns the summary of the most recent completed cycle.
func (s *Service) LastCycle() (CycleResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastCycle == nil {
		return CycleResult{}, false
	}
	return *s.lastCycle, true
}

// RunCycle executes one full poll cycle. A fetch failure aborts the cycle
// before anything is persisted; a failing product never aborts the batch.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{ID: uuid.NewString(), StartedAt: s.now()}
	log := s.logger.With().Str("cycle_id", res.ID).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return s.finish(res, StatusStoreError), err
	}
	if !proceed {
		log.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return s.finish(res, StatusSkipped), nil
	}
	if unlock != nil {
		defer unlock()
	}

	rs, err := settings.Load(ctx, s.store, s.opts.Defaults)
	if err != nil {
		return s.finish(res, StatusSettingError), err
	}
	s.setInterval(rs.PollInterval)

	snaps, err := s.source.FetchSnapshots(ctx)
	if err != nil {
		log.Error().Err(err).Msg("catalog fetch failed, cycle aborted")
		return s.finish(res, StatusFetchError), fmt.Errorf("fetch catalog: %w", err)
	}
	res.Products = len(snaps)
	log.Info().Int("products", len(snaps)).Msg("catalog fetched")

	synced, err := s.store.IsInitialSyncComplete(ctx)
	if err != nil {
		return s.finish(res, StatusStoreError), err
	}
	res.InitialSync = !synced
	if res.InitialSync {
		log.Info().Msg("first run detected, indexing catalog without alerts")
	}

	for _, snap := range snaps {
		if err := s.processProduct(ctx, snap, rs, res.InitialSync, &res); err != nil {
			res.ProductErrors++
			s.metrics.IncProductError()
			log.Error().Err(err).Str("product_id", snap.ID).Str("sku", snap.SKU).Msg("product processing failed")
		}
	}
	s.metrics.AddProcessed(len(snaps))

	if res.InitialSync {
		if err := s.store.MarkInitialSyncComplete(ctx); err != nil {
			return s.finish(res, StatusStoreError), err
		}
		log.Info().Int("products", res.Products).Msg("initial sync complete, future cycles will alert")
		return s.finish(res, StatusInitialSync), nil
	}

	log.Info().
		Int("detected", res.Detected).
		Int("broadcasts", res.Broadcasts).
		Int("subscription_sends", res.SubscriptionSends).
		Int("product_errors", res.ProductErrors).
		Msg("cycle complete")
	return s.finish(res, StatusOK), nil
}

func (s *Service) processProduct(ctx context.Context, snap catalog.Snapshot, rs settings.Resolved, initial bool, res *CycleResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if snap.ID == "" {
		return errors.New("snapshot without product id")
	}

	prev, err := s.store.GetProductState(ctx, snap.ID)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	priceDelivered := initial
	if !initial {
		for _, ev := range alerting.Detect(snap, prev, rs.Thresholds) {
			res.Detected++
			s.metrics.IncDetected(ev.Kind.String())

			if s.router.DispatchBroadcast(ctx, ev, rs) {
				res.Broadcasts++
				if ev.Kind.IsPrice() {
					priceDelivered = true
				}
			}
			res.SubscriptionSends += s.router.DispatchSubscriptions(ctx, ev, rs)
		}
	}

	next := alerting.NextBaseline(snap, prev, priceDelivered)
	if err := s.store.UpsertProductState(ctx, next); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

func (s *Service) finish(res CycleResult, status string) CycleResult {
	res.Status = status
	res.Duration = s.now().Sub(res.StartedAt)
	s.metrics.ObserveCycle(status, res.Duration)

	if status != StatusSkipped {
		s.mu.Lock()
		s.lastCycle = &res
		s.mu.Unlock()
	}
	return res
}

func (s *Service) setInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.interval = d
	s.mu.Unlock()
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.opts.LockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
