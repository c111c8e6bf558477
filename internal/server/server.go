/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the continuity core together: database, asset
// store, queues, fallback chain, scheduled producers, drop-in ingestor,
// housekeeping and the control API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/muninn/internal/api"
	"github.com/friendsincode/muninn/internal/assets"
	"github.com/friendsincode/muninn/internal/config"
	"github.com/friendsincode/muninn/internal/db"
	"github.com/friendsincode/muninn/internal/dropin"
	"github.com/friendsincode/muninn/internal/eventbus"
	"github.com/friendsincode/muninn/internal/events"
	"github.com/friendsincode/muninn/internal/fallback"
	"github.com/friendsincode/muninn/internal/freshness"
	"github.com/friendsincode/muninn/internal/housekeeping"
	"github.com/friendsincode/muninn/internal/killswitch"
	"github.com/friendsincode/muninn/internal/ledger"
	"github.com/friendsincode/muninn/internal/logbuffer"
	"github.com/friendsincode/muninn/internal/playout"
	"github.com/friendsincode/muninn/internal/producers"
	"github.com/friendsincode/muninn/internal/queue"
	"github.com/friendsincode/muninn/internal/scheduler"
	"github.com/friendsincode/muninn/internal/selector"
	"github.com/friendsincode/muninn/internal/storage"
	"github.com/friendsincode/muninn/internal/telemetry"
)

// Server bundles the HTTP surface and the background services.
type Server struct {
	cfg    *config.Config
	policy config.Policy
	logger zerolog.Logger

	db       *gorm.DB
	bus      *events.Bus
	logBuf   *logbuffer.Buffer
	store    *assets.Store
	ledger   *ledger.Ledger
	queues   *queue.Manager
	chain    *fallback.Chain
	driver   *playout.Driver
	ksw      *killswitch.Switch
	sched    *scheduler.Service
	ingestor *dropin.Ingestor
	mirror   *eventbus.Mirror

	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, policy config.Policy, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	srv := &Server{
		cfg:    cfg,
		policy: policy,
		logger: logger,
		bus:    events.NewBus(),
		logBuf: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           srv.apiHandler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.Handler())
	srv.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metricsMux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	return srv, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.deferClose(func() error { return db.Close(database) })

	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("load station timezone: %w", err)
	}

	s.store, err = assets.NewStore(database, s.cfg.MediaRoot, s.logger)
	if err != nil {
		return err
	}
	// Filesystem is the source of truth: pick up rows a corrupted or
	// replaced database is missing.
	if recovered, err := s.store.Rebuild(context.Background()); err != nil {
		s.logger.Warn().Err(err).Int("recovered", recovered).Msg("asset store rebuild incomplete")
	}

	s.ledger = ledger.New(database, s.logger)
	s.queues, err = queue.NewManager(s.cfg.SpoolRoot, s.logger)
	if err != nil {
		return err
	}

	guard := freshness.NewGuard(s.policy.Staleness(), s.logger)
	signal := fallback.NewSignal(s.cfg.ForceBreakFlagPath, s.logger)
	s.chain = fallback.NewChain(s.queues, guard, s.store, signal, s.cfg.EmergencyAssetPath, s.bus, s.logger)
	s.driver = playout.NewDriver(s.chain, s.queues, s.store, s.ledger, s.bus, s.logger)
	s.ksw = killswitch.New(s.cfg.KillSwitchPath, s.logger)

	sel := selector.New(s.store, s.ledger, s.policy.SelectorWindow(), s.policy.SelectorMaxLookback, s.logger)

	archive, err := s.buildArchive()
	if err != nil {
		return err
	}
	keeper := housekeeping.New(s.store, s.ledger, s.queues, s.policy,
		s.cfg.MediaRoot, s.cfg.SpoolRoot, s.cfg.LogDir, archive, s.bus, s.logger)

	s.ingestor, err = dropin.New(s.cfg.InboxDir, s.cfg.ProcessedDir,
		s.policy.DropinSettle(), s.policy.DropinExtensions,
		s.store, s.queues, s.bus, s.logger)
	if err != nil {
		return err
	}

	planner, err := producers.NewPlanner(filepath.Join(s.cfg.SpoolRoot, "plans"), loc, s.policy.BreakMinuteOfHour, s.logger)
	if err != nil {
		return err
	}

	s.sched = scheduler.New(database, loc, s.bus, s.logger)
	s.sched.Register(scheduler.Job{
		Name:    "refill",
		Trigger: scheduler.EveryMinutes(s.policy.RefillEveryMinutes),
		Run:     producers.NewRefill(s.queues, sel, s.policy.RefillDepth, s.logger).Run,
	})
	s.sched.Register(scheduler.Job{
		Name:    "housekeeping",
		Trigger: scheduler.EveryMinutes(s.policy.HousekeepingEveryMinutes),
		Run:     keeper.Run,
	})
	s.sched.Register(scheduler.Job{
		Name:    "plan",
		Trigger: scheduler.DailyAt(0, 5),
		Run:     planner.Run,
	})
	if s.cfg.BreakGeneratorURL != "" {
		breaks := producers.NewBreaks(
			producers.NewHTTPGenerator(s.cfg.BreakGeneratorURL),
			s.store, s.queues, s.ksw, planner,
			s.cfg.BreakGenTimeout, loc, s.bus, s.logger)
		s.sched.Register(scheduler.Job{
			Name:    "breaks",
			Trigger: scheduler.HourlyAt(s.policy.BreakMinuteOfHour),
			Timeout: s.cfg.BreakGenTimeout,
			Run:     breaks.Run,
		})
	} else {
		s.logger.Warn().Msg("no break generator configured, break production disabled")
	}

	if err := s.buildMirror(); err != nil {
		return err
	}
	return nil
}

// buildArchive returns the configured archive tier, or nil when archival
// is disabled.
func (s *Server) buildArchive() (storage.Archive, error) {
	switch s.cfg.ArchiveBackend {
	case "":
		return nil, nil
	case "fs":
		return storage.NewFilesystem(s.cfg.ArchiveFSRoot, s.logger)
	case "s3":
		arch, err := storage.NewS3(context.Background(), storage.S3Options{
			AccessKeyID:     s.cfg.S3AccessKeyID,
			SecretAccessKey: s.cfg.S3SecretAccessKey,
			Region:          s.cfg.S3Region,
			Bucket:          s.cfg.S3Bucket,
			Endpoint:        s.cfg.S3Endpoint,
			UsePathStyle:    s.cfg.S3UsePathStyle,
		}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("init s3 archive: %w", err)
		}
		return arch, nil
	default:
		return nil, fmt.Errorf("unsupported archive backend %q", s.cfg.ArchiveBackend)
	}
}

// buildMirror wires the external event sinks. A broker that cannot be
// reached at startup is skipped with a warning; mirroring is optional.
func (s *Server) buildMirror() error {
	var sinks []eventbus.Sink

	if s.cfg.NATSURL != "" {
		sink, err := eventbus.NewNATSSink(s.cfg.NATSURL, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("nats mirror unavailable")
		} else {
			sinks = append(sinks, sink)
		}
	}
	if s.cfg.RedisAddr != "" {
		sink, err := eventbus.NewRedisSink(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("redis mirror unavailable")
		} else {
			sinks = append(sinks, sink)
		}
	}

	if len(sinks) > 0 {
		node, err := os.Hostname()
		if err != nil || node == "" {
			node = "muninn"
		}
		s.mirror = eventbus.NewMirror(s.bus, node, sinks, s.logger)
	}
	return nil
}

func (s *Server) apiHandler() http.Handler {
	controlAPI := api.New(s.db, []byte(s.cfg.JWTSigningKey),
		s.driver, s.chain, s.queues, s.ksw, s.logBuf, s.bus,
		s.cfg.TracingEnabled, s.logger)
	return controlAPI.Router()
}

// Start launches the background workers. It does not block.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.runBackground("scheduler", func() { s.sched.Run(ctx) })
	s.runBackground("dropin", func() {
		if err := s.ingestor.Run(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("drop-in ingestor stopped")
		}
	})
	if s.mirror != nil {
		s.runBackground("event-mirror", func() { s.mirror.Run(ctx) })
	}
}

func (s *Server) runBackground(name string, run func()) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.logger.Debug().Str("worker", name).Msg("background worker started")
		run()
	}()
}

// HTTPServer returns the control API server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer returns the metrics server.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// DB exposes the database handle for operator commands.
func (s *Server) DB() *gorm.DB {
	return s.db
}

func (s *Server) deferClose(closer func() error) {
	s.closers = append(s.closers, closer)
}

// Close stops background workers and releases resources.
func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.bgWG.Wait()

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
