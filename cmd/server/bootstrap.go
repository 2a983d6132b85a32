package main

import (
	"fmt"

	"github.com/huangang/copilot-metrics/internal/config"
	"github.com/huangang/copilot-metrics/internal/middleware"
	"github.com/huangang/copilot-metrics/internal/models"
	"github.com/huangang/copilot-metrics/internal/services"
	"github.com/huangang/copilot-metrics/pkg/logger"
	"gorm.io/gorm"
)

// appServices holds all initialized services needed by the routes.
type appServices struct {
	cfg          *config.Config
	db           *gorm.DB
	store        *services.CredentialStore
	proxy        *services.MetricsProxy
	stats        *services.FetchStats
	systemLogs   *services.SystemLogService
	proxyLimiter *middleware.RateLimiter
}

// bootstrap initializes all application dependencies: database, credential
// store, metrics proxy, schedulers.
func bootstrap(cfg *config.Config) (*appServices, error) {
	db, err := models.OpenDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		if err := models.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		logger.Info().Str("driver", cfg.Database.Driver).Msg("System log database ready")
	} else {
		logger.Info().Msg("System log database disabled")
	}

	systemLogs := services.NewSystemLogService(db, &cfg.SystemLog)
	if err := systemLogs.StartCleanupScheduler(); err != nil {
		logger.Warn().Err(err).Str("cron", cfg.SystemLog.CleanupCron).Msg("Failed to start system log cleanup")
	}

	store := services.NewCredentialStore()
	store.Seed(cfg.GitHub.Token, cfg.GitHub.Org)

	return &appServices{
		cfg:          cfg,
		db:           db,
		store:        store,
		proxy:        services.NewMetricsProxy(store, &cfg.GitHub, nil),
		stats:        services.NewFetchStats(),
		systemLogs:   systemLogs,
		proxyLimiter: middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}, nil
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.systemLogs.StopCleanupScheduler()
	s.proxyLimiter.Stop()

	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	logger.Info().Msg("All schedulers stopped")
}
