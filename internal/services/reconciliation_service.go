package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/festpass/registration-backend/internal/config"
	"github.com/festpass/registration-backend/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	reconcileOrphanLimit = 200
	reconcileLookback    = 24 * time.Hour
	reconcileJobTimeout  = 2 * time.Minute
)

type OrphanFinder interface {
	ListOrphans(ctx context.Context, cutoff time.Time, limit int) ([]models.OrphanProfile, error)
}

type AuditCounter interface {
	CountByEventTypeSince(ctx context.Context, since time.Time) (map[models.PaymentEventType]int, error)
}

type DeadLetterCounter interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
}

type FestStatusCounter interface {
	CountByStatus(ctx context.Context, status models.FestRegistrationStatus) (int, error)
}

// ReconciliationReport summarizes state that needs an operator's attention
type ReconciliationReport struct {
	GeneratedAt          time.Time              `json:"generated_at"`
	OrphanProfiles       []models.OrphanProfile `json:"orphan_profiles"`
	OrphanCount          int                    `json:"orphan_count"`
	PendingFestApprovals int                    `json:"pending_fest_approvals"`
	PersistenceFailures  int                    `json:"persistence_failures_24h"`
	RejectedSignatures   int                    `json:"rejected_signatures_24h"`
	DeadLetters          int                    `json:"notification_dead_letters_24h"`
}

// ReconciliationService periodically looks for profiles left behind by
// failed registration writes and for payments that never completed
type ReconciliationService struct {
	cron        *cron.Cron
	profiles    OrphanFinder
	audits      AuditCounter
	deadLetters DeadLetterCounter
	fest        FestStatusCounter
	metrics     *MetricsService
	config      config.ReconcileConfig
	logger      *logrus.Logger
	now         func() time.Time

	mu   sync.RWMutex
	last *ReconciliationReport
}

// NewReconciliationService creates the service. Call Start to schedule it.
func NewReconciliationService(
	profiles OrphanFinder,
	audits AuditCounter,
	deadLetters DeadLetterCounter,
	fest FestStatusCounter,
	metrics *MetricsService,
	cfg config.ReconcileConfig,
	logger *logrus.Logger,
) *ReconciliationService {
	if cfg.OrphanAge <= 0 {
		cfg.OrphanAge = time.Hour
	}

	return &ReconciliationService{
		// second minute hour day month weekday
		cron:        cron.New(cron.WithSeconds()),
		profiles:    profiles,
		audits:      audits,
		deadLetters: deadLetters,
		fest:        fest,
		metrics:     metrics,
		config:      cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Start schedules the reconciliation job
func (s *ReconciliationService) Start() error {
	if s.config.Schedule == "" {
		s.logger.Info("Reconciliation schedule empty, job not scheduled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, s.reconcileJob); err != nil {
		return fmt.Errorf("failed to schedule reconciliation job: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.config.Schedule).Info("✓ Scheduled: Reconciliation")
	return nil
}

// Stop waits for a running job to finish
func (s *ReconciliationService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Reconciliation stopped")
}

func (s *ReconciliationService) reconcileJob() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileJobTimeout)
	defer cancel()

	if _, err := s.Run(ctx); err != nil {
		s.logger.WithError(err).Error("[CRON ERROR] Reconciliation failed")
	}
}

// Run builds a fresh report, logs it and keeps it as the latest one
func (s *ReconciliationService) Run(ctx context.Context) (*ReconciliationReport, error) {
	startTime := s.now()
	since := startTime.Add(-reconcileLookback)

	orphans, err := s.profiles.ListOrphans(ctx, startTime.Add(-s.config.OrphanAge), reconcileOrphanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orphan profiles: %w", err)
	}
	if orphans == nil {
		orphans = []models.OrphanProfile{}
	}

	counts, err := s.audits.CountByEventTypeSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count payment audits: %w", err)
	}

	deadLetters, err := s.deadLetters.CountSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count dead letters: %w", err)
	}

	pending, err := s.fest.CountByStatus(ctx, models.FestRegistrationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending fest registrations: %w", err)
	}

	report := &ReconciliationReport{
		GeneratedAt:          startTime,
		OrphanProfiles:       orphans,
		OrphanCount:          len(orphans),
		PendingFestApprovals: pending,
		PersistenceFailures:  counts[models.PaymentEventPersistenceFailed],
		RejectedSignatures:   counts[models.PaymentEventRejectedBadSignature],
		DeadLetters:          deadLetters,
	}

	s.metrics.SetOrphanProfiles(report.OrphanCount)

	entry := s.logger.WithFields(logrus.Fields{
		"orphan_profiles":        report.OrphanCount,
		"pending_fest_approvals": report.PendingFestApprovals,
		"persistence_failures":   report.PersistenceFailures,
		"rejected_signatures":    report.RejectedSignatures,
		"dead_letters":           report.DeadLetters,
		"duration":               time.Since(startTime).String(),
	})
	if report.OrphanCount > 0 || report.PersistenceFailures > 0 || report.DeadLetters > 0 {
		entry.Warn("[CRON] Reconciliation found inconsistencies")
	} else {
		entry.Info("[CRON] ✓ Reconciliation clean")
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	return report, nil
}

// LastReport returns the most recent report, or nil before the first run
func (s *ReconciliationService) LastReport() *ReconciliationReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// JobStatus describes the scheduled entries
func (s *ReconciliationService) JobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
