package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/config"
	"github.com/watchkeep/uptime-monitor/pkg/database"
	"github.com/watchkeep/uptime-monitor/pkg/recorder"
)

// inactivityThreshold is the "N days without activity" constant spec.md
// §3 names for the Active→Inactive user transition.
const inactivityThreshold = 90 * 24 * time.Hour

// AlertEnqueuer is the subset of the alert pipeline the tls.sweep job needs.
type AlertEnqueuer interface {
	Enqueue(intent recorder.AlertIntent) bool
}

// CooldownGCer is the subset of the alert pipeline the cooldown.gc job
// needs.
type CooldownGCer interface {
	RunCooldownGC() int
}

// RegisterBuiltins wires up the six built-in jobs named in spec.md §4.6.
// alertSink and cooldownGC may be nil (tls.sweep and cooldown.gc become
// no-ops), which keeps the scheduler usable in tests that only exercise a
// subset of jobs.
func RegisterBuiltins(s *Scheduler, db *database.DB, cfg *config.Config, alertSink AlertEnqueuer, cooldownGC CooldownGCer) error {
	jobs := []struct {
		name   string
		period time.Duration
		action Action
	}{
		{"metrics.aggregate", 5 * time.Minute, aggregateMetrics(db)},
		{"logs.cleanup", 24 * time.Hour, cleanupLogs(db, cfg.Retention)},
		{"tls.sweep", 6 * time.Hour, sweepTLS(db, cfg.TLS, alertSink)},
		{"cooldown.gc", time.Hour, gcCooldowns(cooldownGC)},
		{"users.inactive", 24 * time.Hour, markInactiveUsers(db)},
		{"heartbeat", 10 * time.Minute, heartbeat(db)},
	}

	for _, j := range jobs {
		if err := s.Register(j.name, j.period, j.action); err != nil {
			return fmt.Errorf("failed to register job %q: %w", j.name, err)
		}
	}
	return nil
}

// aggregateMetrics upserts today's DailyStats row from the current Target
// and User aggregates (spec.md §3 "Upserted by the scheduler").
func aggregateMetrics(db *database.DB) Action {
	return func(ctx context.Context) error {
		stats, err := collectDailyStats(db)
		if err != nil {
			return fmt.Errorf("failed to collect daily stats: %w", err)
		}
		return db.DailyStatsRepository().Upsert(stats)
	}
}

func collectDailyStats(db *database.DB) (*database.DailyStats, error) {
	stats := &database.DailyStats{StatDate: time.Now().UTC().Format("2006-01-02")}

	if err := db.Get(&stats.TotalUsers, "SELECT COUNT(*) FROM users"); err != nil {
		return nil, err
	}
	if err := db.Get(&stats.ActiveUsers, "SELECT COUNT(*) FROM users WHERE status = ?", database.UserStatusActive); err != nil {
		return nil, err
	}
	if err := db.Get(&stats.TotalTargets, "SELECT COUNT(*) FROM targets WHERE deleted = 0"); err != nil {
		return nil, err
	}
	if err := db.Get(&stats.ActiveTargets, "SELECT COUNT(*) FROM targets WHERE is_active = 1 AND deleted = 0"); err != nil {
		return nil, err
	}
	if err := db.Get(&stats.TotalProbes, "SELECT COALESCE(SUM(total_probes), 0) FROM targets"); err != nil {
		return nil, err
	}
	if err := db.Get(&stats.SuccessfulProbes, "SELECT COALESCE(SUM(successful_probes), 0) FROM targets"); err != nil {
		return nil, err
	}
	if err := db.Get(&stats.FailedProbes, "SELECT COALESCE(SUM(failed_probes), 0) FROM targets"); err != nil {
		return nil, err
	}
	if err := db.Get(&stats.TotalDowntimeSeconds, "SELECT COALESCE(SUM(total_downtime_seconds), 0) FROM targets"); err != nil {
		return nil, err
	}

	var avg *float64
	if err := db.Get(&avg, "SELECT AVG(avg_response_time) FROM targets WHERE avg_response_time IS NOT NULL"); err != nil {
		return nil, err
	}
	stats.AvgResponseTime = avg

	return stats, nil
}

// cleanupLogs deletes ProbeLog and activity-log rows older than the
// configured retention window.
func cleanupLogs(db *database.DB, cfg config.RetentionConfig) Action {
	return func(ctx context.Context) error {
		days := cfg.LogRetentionDays
		if days <= 0 {
			days = 30
		}
		cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

		if _, err := db.ProbeLogRepository().DeleteOlderThan(cutoff); err != nil {
			return fmt.Errorf("failed to delete old probe logs: %w", err)
		}
		if _, err := db.ActivityLogRepository().DeleteOlderThan(cutoff); err != nil {
			return fmt.Errorf("failed to delete old activity logs: %w", err)
		}
		return nil
	}
}

// sweepTLS re-emits TLSExpiring intents for every active target whose
// certificate is within the configured warning window, as a backstop to
// the engine's per-probe emission (cooldown keeps this from spamming).
func sweepTLS(db *database.DB, cfg config.TLSConfig, alertSink AlertEnqueuer) Action {
	return func(ctx context.Context) error {
		if alertSink == nil {
			return nil
		}
		days := cfg.ExpiryWarningDays
		if days <= 0 {
			days = 30
		}

		targets, err := db.TargetRepository().ListExpiringTLS(days)
		if err != nil {
			return fmt.Errorf("failed to list expiring tls targets: %w", err)
		}

		for _, target := range targets {
			if target.TLSDaysRemaining == nil {
				continue
			}
			alertSink.Enqueue(recorder.AlertIntent{
				Kind:             recorder.IntentTLSExpiring,
				TargetID:         target.ID,
				TargetUUID:       target.UUID,
				OwnerID:          target.OwnerID,
				TargetName:       target.DisplayName,
				TLSDaysRemaining: *target.TLSDaysRemaining,
			})
		}
		return nil
	}
}

// gcCooldowns runs the alert pipeline's cooldown gc pass.
func gcCooldowns(cooldownGC CooldownGCer) Action {
	return func(ctx context.Context) error {
		if cooldownGC == nil {
			return nil
		}
		cooldownGC.RunCooldownGC()
		return nil
	}
}

// markInactiveUsers transitions Users with no activity for 90 days to
// Inactive (spec.md §3).
func markInactiveUsers(db *database.DB) Action {
	return func(ctx context.Context) error {
		cutoff := time.Now().Add(-inactivityThreshold)
		_, err := db.UserRepository().MarkInactiveStale(cutoff)
		return err
	}
}

// heartbeat emits a liveness log line and a database health-check.
func heartbeat(db *database.DB) Action {
	return func(ctx context.Context) error {
		if err := db.HealthCheck(); err != nil {
			return fmt.Errorf("heartbeat health check failed: %w", err)
		}
		log.Printf("scheduler: heartbeat ok at %s", time.Now().Format(time.RFC3339))
		return nil
	}
}
