package tasks

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ExportCleaner removes rendered exports older than a TTL.
type ExportCleaner interface {
	Cleanup(ttl time.Duration) ([]string, error)
}

// RunPurger drops expired generation runs.
type RunPurger interface {
	PurgeRuns() int
}

// MaintenanceConfig schedules the housekeeping jobs. Schedules accept the
// standard five-field cron syntax and descriptors such as "@every 1h".
type MaintenanceConfig struct {
	ExportSchedule string
	ExportTTL      time.Duration
	RunSchedule    string
}

// Maintenance owns the cron runner for periodic cleanup.
type Maintenance struct {
	cron    *cron.Cron
	exports ExportCleaner
	runs    RunPurger
	cfg     MaintenanceConfig
	logger  *zap.Logger
}

// NewMaintenance registers the cleanup jobs. Either dependency may be nil.
func NewMaintenance(exports ExportCleaner, runs RunPurger, cfg MaintenanceConfig, logger *zap.Logger) (*Maintenance, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RunSchedule == "" {
		cfg.RunSchedule = "@every 5m"
	}
	m := &Maintenance{
		cron:    cron.New(),
		exports: exports,
		runs:    runs,
		cfg:     cfg,
		logger:  logger,
	}
	if exports != nil && cfg.ExportSchedule != "" {
		if _, err := m.cron.AddFunc(cfg.ExportSchedule, m.CleanupExports); err != nil {
			return nil, fmt.Errorf("schedule export cleanup %q: %w", cfg.ExportSchedule, err)
		}
	}
	if runs != nil {
		if _, err := m.cron.AddFunc(cfg.RunSchedule, m.PurgeRuns); err != nil {
			return nil, fmt.Errorf("schedule run purge %q: %w", cfg.RunSchedule, err)
		}
	}
	return m, nil
}

// Start runs the scheduler in its own goroutine.
func (m *Maintenance) Start() {
	m.cron.Start()
}

// Stop waits for running jobs to finish.
func (m *Maintenance) Stop() {
	<-m.cron.Stop().Done()
}

// Jobs reports how many jobs are registered.
func (m *Maintenance) Jobs() int {
	return len(m.cron.Entries())
}

// CleanupExports deletes expired export files.
func (m *Maintenance) CleanupExports() {
	removed, err := m.exports.Cleanup(m.cfg.ExportTTL)
	if err != nil {
		m.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		m.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
}

// PurgeRuns drops finished generation runs past their TTL.
func (m *Maintenance) PurgeRuns() {
	if purged := m.runs.PurgeRuns(); purged > 0 {
		m.logger.Debug("generation runs purged", zap.Int("count", purged))
	}
}
