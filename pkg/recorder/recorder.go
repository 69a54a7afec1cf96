// Package recorder implements the result recorder (C2) and transition
// detector (C3): it turns a probe.Result into a persisted ProbeLog, folds
// it into the owning Target's running metrics, and decides which alert
// intents the transition warrants. One probe cycle is one call to Record,
// and Record is the sole writer of Target state during that cycle.
package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/database"
	"github.com/watchkeep/uptime-monitor/pkg/probe"
)

// Recorder owns the database handle used to persist probe outcomes.
type Recorder struct {
	db *database.DB
}

// New returns a Recorder backed by db.
func New(db *database.DB) *Recorder {
	return &Recorder{db: db}
}

// Record appends a ProbeLog row and mutates target's aggregate metrics in
// one transaction (spec.md §4.2), then returns the AlertIntents the
// transition detector raised for this cycle. target is mutated in place so
// the caller sees the post-probe state immediately after Record returns.
func (r *Recorder) Record(ctx context.Context, target *database.Target, result probe.Result, now time.Time) ([]AlertIntent, error) {
	oldWasUp := target.IsUp
	oldDowntimeStart := target.CurrentDowntimeStart

	log, err := buildProbeLog(target.ID, result, now)
	if err != nil {
		return nil, fmt.Errorf("failed to build probe log: %w", err)
	}

	applyResult(target, result, now, oldWasUp, oldDowntimeStart)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin recorder transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExec(database.InsertProbeLogQuery, log); err != nil {
		return nil, fmt.Errorf("failed to insert probe log: %w", err)
	}
	if _, err := tx.NamedExec(database.UpdateTargetQuery, target); err != nil {
		return nil, fmt.Errorf("failed to update target: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit recorder transaction: %w", err)
	}

	return DetectTransitions(oldWasUp, oldDowntimeStart, result, target, now), nil
}

// applyResult folds result into target's aggregates per spec.md §4.2: total
// and success/failure counters, uptime%, downtime accounting, running
// min/avg/max response time, next-due time, and TLS metadata.
func applyResult(target *database.Target, result probe.Result, now time.Time, oldWasUp bool, oldDowntimeStart *time.Time) {
	target.TotalProbes++
	target.LastProbeAt = &now
	target.LastStatusCode = result.StatusCode

	if result.Success {
		target.SuccessfulProbes++
		if !oldWasUp {
			target.IsUp = true
			if oldDowntimeStart != nil {
				target.TotalDowntimeSeconds += now.Sub(*oldDowntimeStart).Seconds()
			}
			target.CurrentDowntimeStart = nil
		}
	} else {
		target.FailedProbes++
		if oldWasUp {
			target.IsUp = false
			downStart := now
			target.CurrentDowntimeStart = &downStart
			target.DowntimeEvents++
		}
	}

	if target.TotalProbes > 0 {
		target.UptimePercent = 100 * float64(target.SuccessfulProbes) / float64(target.TotalProbes)
	} else {
		target.UptimePercent = 100
	}

	responseSeconds := result.ResponseTime.Seconds()
	target.LastResponseTime = &responseSeconds
	foldResponseTime(target, responseSeconds)

	target.NextDueAt = nextDueAt(now, target.ProbeInterval)

	if result.TLS != nil {
		target.TLSExpiry = &result.TLS.NotAfter
		issuer := result.TLS.Issuer
		target.TLSIssuer = &issuer
		days := result.TLS.DaysRemaining
		target.TLSDaysRemaining = &days
	}
}

// foldResponseTime maintains running min/max and a running mean over
// target.TotalProbes samples (avg = running mean, per spec.md §4.2).
func foldResponseTime(target *database.Target, sample float64) {
	if target.MinResponseTime == nil || sample < *target.MinResponseTime {
		min := sample
		target.MinResponseTime = &min
	}
	if target.MaxResponseTime == nil || sample > *target.MaxResponseTime {
		max := sample
		target.MaxResponseTime = &max
	}

	n := float64(target.TotalProbes)
	if target.AvgResponseTime == nil || n <= 1 {
		avg := sample
		target.AvgResponseTime = &avg
		return
	}
	avg := *target.AvgResponseTime + (sample-*target.AvgResponseTime)/n
	target.AvgResponseTime = &avg
}

func nextDueAt(now time.Time, probeIntervalSeconds int) *time.Time {
	next := now.Add(time.Duration(probeIntervalSeconds) * time.Second)
	return &next
}

// buildProbeLog translates a probe.Result into the append-only row shape.
func buildProbeLog(targetID int, result probe.Result, now time.Time) (*database.ProbeLog, error) {
	log := &database.ProbeLog{
		TargetID:   targetID,
		Timestamp:  now,
		Success:    result.Success,
		StatusCode: result.StatusCode,
		RetryCount: result.RetryCount,
	}

	responseSeconds := result.ResponseTime.Seconds()
	log.ResponseTime = &responseSeconds

	if result.ResponseSize > 0 {
		size := result.ResponseSize
		log.ResponseSize = &size
	}
	if result.ErrorClass != "" {
		class := result.ErrorClass
		log.ErrorClass = &class
	}
	if result.ErrorMessage != "" {
		msg := result.ErrorMessage
		log.ErrorMessage = &msg
	}
	if result.DNSTime != nil {
		secs := result.DNSTime.Seconds()
		log.DNSTime = &secs
	}
	if result.ConnectTime != nil {
		secs := result.ConnectTime.Seconds()
		log.ConnectTime = &secs
	}
	if result.ResolvedIP != "" {
		ip := result.ResolvedIP
		log.ResolvedIP = &ip
	}
	if result.TLS != nil {
		verified := result.TLS.Verified
		log.TLSVerified = &verified
	}
	if len(result.Headers) > 0 {
		headers, err := database.MarshalHeaders(result.Headers)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal probe headers: %w", err)
		}
		log.Headers = headers
	}

	return log, nil
}
