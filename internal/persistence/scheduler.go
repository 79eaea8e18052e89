package persistence

import (
	"sync"
	"time"

	"github.com/roylee0704/gron"

	"hoyn/internal/persistence/interfaces"
	"hoyn/internal/providers"
	"hoyn/internal/ratelimit"
	"hoyn/internal/services"
	"hoyn/internal/structures"
)

const (
	defaultSaveInterval  = 30 * time.Second
	defaultStatsInterval = 10 * time.Second
	defaultSweepInterval = time.Minute
)

type Scheduler struct {
	config      *structures.Config
	logger      providers.Logger
	stats       services.ScanStatisticServiceInterface
	fileManager *FileManager
	limiter     ratelimit.Limiter
	throttle    *ratelimit.KeyedThrottle
	cron        *gron.Cron
	opsMu       sync.Mutex
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func (s *Scheduler) Init() {
	s.cron = gron.New()

	if s.config.Storage.SnapshotPath != "" {
		s.cron.AddFunc(gron.Every(orDefault(s.config.Storage.SaveInterval, defaultSaveInterval)), func() {
			s.opsMu.Lock()
			defer s.opsMu.Unlock()

			if err := s.fileManager.SaveToFile(s.config.Storage.SnapshotPath); err != nil {
				s.logger.Errorf(providers.TypeApp, "Error while persisting data: %s", err)
				return
			}
			s.logger.Debugf(providers.TypeApp, "Persisted data to file %s", s.config.Storage.SnapshotPath)
		})
	}

	s.cron.AddFunc(gron.Every(orDefault(s.config.Analytics.Interval, defaultStatsInterval)), func() {
		s.opsMu.Lock()
		defer s.opsMu.Unlock()

		s.stats.AggregateStats()
		s.logger.Debugf(providers.TypeScan, "Scan statistic aggregated, %d profiles", s.stats.Profiles())
	})

	s.cron.AddFunc(gron.Every(orDefault(s.config.Messaging.SweepInterval, defaultSweepInterval)), s.sweep)

	s.cron.Start()
}

func (s *Scheduler) sweep() {
	buckets := s.limiter.Sweep()
	clients := 0
	if s.throttle != nil {
		clients = s.throttle.Sweep()
	}
	if buckets+clients > 0 {
		s.logger.Debugf(providers.TypeMessaging, "Swept %d rate limit buckets, %d scan clients", buckets, clients)
	}
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) Restore() error {
	if s.config.Storage.SnapshotPath == "" {
		return nil
	}
	return s.fileManager.LoadFromFile(s.config.Storage.SnapshotPath)
}

// Persist folds queued scans into the counters and writes the snapshot.
func (s *Scheduler) Persist() error {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	s.stats.AggregateStats()
	if s.config.Storage.SnapshotPath == "" {
		return nil
	}

	s.logger.Infof(providers.TypeApp, "Persisting snapshot to %s...", s.config.Storage.SnapshotPath)
	err := s.fileManager.SaveToFile(s.config.Storage.SnapshotPath)
	if err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while persisting data: %s", err)
		return err
	}
	return nil
}

func NewScheduler(config *structures.Config, logger providers.Logger, stats services.ScanStatisticServiceInterface, fileManager *FileManager, limiter ratelimit.Limiter, throttle *ratelimit.KeyedThrottle) interfaces.SchedulerInterface {
	return &Scheduler{
		config:      config,
		logger:      logger,
		stats:       stats,
		fileManager: fileManager,
		limiter:     limiter,
		throttle:    throttle,
	}
}
