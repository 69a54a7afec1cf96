package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserRepository provides database operations for users.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user row.
func (r *UserRepository) Create(user *User) error {
	query := `
		INSERT INTO users (external_id, role, status, max_targets, min_probe_interval, last_activity_at)
		VALUES (:external_id, :role, :status, :max_targets, :min_probe_interval, :last_activity_at)
	`
	result, err := r.db.NamedExec(query, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get user ID: %w", err)
	}

	user.ID = int(id)
	return nil
}

// GetByExternalID gets a user by their external account id.
func (r *UserRepository) GetByExternalID(externalID int64) (*User, error) {
	var user User
	query := "SELECT * FROM users WHERE external_id = ?"
	err := r.db.Get(&user, query, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by external id: %w", err)
	}
	return &user, nil
}

// EnsureExists returns the User for externalID, creating it with defaults
// on first interaction (spec.md §3: "created on first interaction").
func (r *UserRepository) EnsureExists(externalID int64, maxTargets, minProbeInterval int) (*User, error) {
	existing, err := r.GetByExternalID(externalID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	now := time.Now().UTC()
	user := &User{
		ExternalID:       externalID,
		Role:             "user",
		Status:           UserStatusActive,
		MaxTargets:       maxTargets,
		MinProbeInterval: minProbeInterval,
		LastActivityAt:   &now,
	}
	if err := r.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Update updates a user's mutable fields.
func (r *UserRepository) Update(user *User) error {
	query := `
		UPDATE users
		SET role = :role, status = :status, max_targets = :max_targets,
		    min_probe_interval = :min_probe_interval, last_activity_at = :last_activity_at
		WHERE id = :id
	`
	_, err := r.db.NamedExec(query, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// TouchActivity stamps last_activity_at for externalID to now.
func (r *UserRepository) TouchActivity(externalID int64) error {
	query := "UPDATE users SET last_activity_at = CURRENT_TIMESTAMP WHERE external_id = ?"
	_, err := r.db.Exec(query, externalID)
	if err != nil {
		return fmt.Errorf("failed to touch user activity: %w", err)
	}
	return nil
}

// MarkInactiveStale transitions Active users with no activity since cutoff
// to Inactive, used by the users.inactive scheduled job.
func (r *UserRepository) MarkInactiveStale(cutoff time.Time) (int64, error) {
	query := `
		UPDATE users
		SET status = ?
		WHERE status = ? AND (last_activity_at IS NULL OR last_activity_at < ?)
	`
	result, err := r.db.Exec(query, UserStatusInactive, UserStatusActive, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark users inactive: %w", err)
	}
	return result.RowsAffected()
}

// TargetRepository provides database operations for targets.
type TargetRepository struct {
	db *DB
}

// NewTargetRepository creates a new target repository
func NewTargetRepository(db *DB) *TargetRepository {
	return &TargetRepository{db: db}
}

// Create inserts a new target, assigning a UUID if absent.
func (r *TargetRepository) Create(t *Target) error {
	if t.UUID == "" {
		t.UUID = uuid.New().String()
	}

	query := `
		INSERT INTO targets (
			uuid, owner_id, display_name, url, kind, http_method, probe_interval,
			timeout, retry_count, retry_delay, expected_status_codes, expected_content,
			headers, request_body, slow_threshold, alert_on_down, alert_on_recovery,
			alert_on_slow, is_active, next_due_at
		) VALUES (
			:uuid, :owner_id, :display_name, :url, :kind, :http_method, :probe_interval,
			:timeout, :retry_count, :retry_delay, :expected_status_codes, :expected_content,
			:headers, :request_body, :slow_threshold, :alert_on_down, :alert_on_recovery,
			:alert_on_slow, :is_active, :next_due_at
		)
	`
	result, err := r.db.NamedExec(query, t)
	if err != nil {
		return fmt.Errorf("failed to create target: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get target id: %w", err)
	}
	t.ID = int(id)
	return nil
}

// GetByID gets a target by surrogate id.
func (r *TargetRepository) GetByID(id int) (*Target, error) {
	var t Target
	query := "SELECT * FROM targets WHERE id = ?"
	if err := r.db.Get(&t, query, id); err != nil {
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return &t, nil
}

// GetByUUID gets a target by its external UUID.
func (r *TargetRepository) GetByUUID(id string) (*Target, error) {
	var t Target
	query := "SELECT * FROM targets WHERE uuid = ?"
	if err := r.db.Get(&t, query, id); err != nil {
		return nil, fmt.Errorf("failed to get target by uuid: %w", err)
	}
	return &t, nil
}

// ListByOwner lists all non-deleted targets owned by externalID.
func (r *TargetRepository) ListByOwner(ownerID int64) ([]*Target, error) {
	var targets []*Target
	query := "SELECT * FROM targets WHERE owner_id = ? AND deleted = 0 ORDER BY created_at"
	if err := r.db.Select(&targets, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list targets by owner: %w", err)
	}
	return targets, nil
}

// CountActiveByOwner counts non-deleted targets for quota enforcement.
func (r *TargetRepository) CountActiveByOwner(ownerID int64) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM targets WHERE owner_id = ? AND deleted = 0"
	if err := r.db.Get(&count, query, ownerID); err != nil {
		return 0, fmt.Errorf("failed to count targets by owner: %w", err)
	}
	return count, nil
}

// ClaimDue selects up to batchSize active, non-deleted, due targets ordered
// by next_due_at, and provisionally advances their next_due_at so a
// concurrent sweep cannot select the same target (spec.md §4.4 "Ordering &
// isolation"). The recorder overwrites next_due_at with the real value once
// the probe completes.
func (r *TargetRepository) ClaimDue(batchSize int, now time.Time) ([]*Target, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	var targets []*Target
	selectQuery := `
		SELECT * FROM targets
		WHERE is_active = 1 AND deleted = 0 AND (next_due_at <= ? OR next_due_at IS NULL)
		ORDER BY next_due_at ASC
		LIMIT ?
	`
	if err := tx.Select(&targets, selectQuery, now, batchSize); err != nil {
		return nil, fmt.Errorf("failed to select due targets: %w", err)
	}

	for _, t := range targets {
		provisional := now.Add(time.Duration(t.ProbeInterval) * time.Second)
		if _, err := tx.Exec("UPDATE targets SET next_due_at = ? WHERE id = ?", provisional, t.ID); err != nil {
			return nil, fmt.Errorf("failed to claim target %d: %w", t.ID, err)
		}
		t.NextDueAt = &provisional
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	return targets, nil
}

// UpdateTargetQuery is exported so pkg/recorder can write a mutated Target
// back inside its own transaction alongside the ProbeLog insert (spec.md
// §4.2 requires both to land as one logical transaction).
const UpdateTargetQuery = `
	UPDATE targets SET
		display_name = :display_name, url = :url, kind = :kind, http_method = :http_method,
		probe_interval = :probe_interval, timeout = :timeout, retry_count = :retry_count,
		retry_delay = :retry_delay, expected_status_codes = :expected_status_codes,
		expected_content = :expected_content, headers = :headers, request_body = :request_body,
		slow_threshold = :slow_threshold, alert_on_down = :alert_on_down,
		alert_on_recovery = :alert_on_recovery, alert_on_slow = :alert_on_slow,
		is_active = :is_active, is_up = :is_up, last_probe_at = :last_probe_at,
		next_due_at = :next_due_at, last_status_code = :last_status_code,
		last_response_time = :last_response_time, total_probes = :total_probes,
		successful_probes = :successful_probes, failed_probes = :failed_probes,
		uptime_percent = :uptime_percent, min_response_time = :min_response_time,
		avg_response_time = :avg_response_time, max_response_time = :max_response_time,
		total_downtime_seconds = :total_downtime_seconds, downtime_events = :downtime_events,
		current_downtime_start = :current_downtime_start, tls_expiry = :tls_expiry,
		tls_issuer = :tls_issuer, tls_days_remaining = :tls_days_remaining, deleted = :deleted
	WHERE id = :id
`

// Update writes back the full set of mutable target fields. Used by the
// recorder as its single logical transaction per probe cycle.
func (r *TargetRepository) Update(t *Target) error {
	_, err := r.db.NamedExec(UpdateTargetQuery, t)
	if err != nil {
		return fmt.Errorf("failed to update target: %w", err)
	}
	return nil
}

// SoftDelete marks a target deleted without removing its history.
func (r *TargetRepository) SoftDelete(id int) error {
	_, err := r.db.Exec("UPDATE targets SET deleted = 1, is_active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete target: %w", err)
	}
	return nil
}

// ListExpiringTLS returns active HTTPS/TLS targets whose certificate expires
// within thresholdDays, for the tls.sweep scheduled job.
func (r *TargetRepository) ListExpiringTLS(thresholdDays int) ([]*Target, error) {
	var targets []*Target
	query := `
		SELECT * FROM targets
		WHERE is_active = 1 AND deleted = 0
		  AND kind IN (?, ?)
		  AND tls_days_remaining IS NOT NULL AND tls_days_remaining <= ?
	`
	if err := r.db.Select(&targets, query, TargetKindHTTPS, TargetKindTLS, thresholdDays); err != nil {
		return nil, fmt.Errorf("failed to list expiring tls targets: %w", err)
	}
	return targets, nil
}

// ProbeLogRepository provides database operations for probe logs.
type ProbeLogRepository struct {
	db *DB
}

// NewProbeLogRepository creates a new probe log repository
func NewProbeLogRepository(db *DB) *ProbeLogRepository {
	return &ProbeLogRepository{db: db}
}

// InsertProbeLogQuery is exported so pkg/recorder can append a ProbeLog
// inside its own transaction alongside a Target update (spec.md §4.2
// requires both to land as one logical transaction).
const InsertProbeLogQuery = `
	INSERT INTO probe_logs (
		target_id, timestamp, success, status_code, response_time, response_size,
		error_class, error_message, dns_time, connect_time, resolved_ip, tls_verified,
		retry_count, headers
	) VALUES (
		:target_id, :timestamp, :success, :status_code, :response_time, :response_size,
		:error_class, :error_message, :dns_time, :connect_time, :resolved_ip, :tls_verified,
		:retry_count, :headers
	)
`

// Create appends a probe log row.
func (r *ProbeLogRepository) Create(log *ProbeLog) error {
	result, err := r.db.NamedExec(InsertProbeLogQuery, log)
	if err != nil {
		return fmt.Errorf("failed to create probe log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get probe log id: %w", err)
	}
	log.ID = id
	return nil
}

// ListByTarget returns the most recent probe logs for a target.
func (r *ProbeLogRepository) ListByTarget(targetID int, limit int) ([]*ProbeLog, error) {
	var logs []*ProbeLog
	query := "SELECT * FROM probe_logs WHERE target_id = ? ORDER BY timestamp DESC LIMIT ?"
	if err := r.db.Select(&logs, query, targetID, limit); err != nil {
		return nil, fmt.Errorf("failed to list probe logs: %w", err)
	}
	return logs, nil
}

// DeleteOlderThan removes probe logs older than cutoff, for logs.cleanup.
func (r *ProbeLogRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM probe_logs WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old probe logs: %w", err)
	}
	return result.RowsAffected()
}

// AlertRepository provides database operations for alerts.
type AlertRepository struct {
	db *DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create persists an alert row and fills in its assigned id.
func (r *AlertRepository) Create(a *Alert) error {
	query := `
		INSERT INTO alerts (
			owner_id, target_id, kind, title, body, priority, channels, sent,
			sent_at, retry_count, max_retries
		) VALUES (
			:owner_id, :target_id, :kind, :title, :body, :priority, :channels, :sent,
			:sent_at, :retry_count, :max_retries
		)
	`
	result, err := r.db.NamedExec(query, a)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get alert id: %w", err)
	}
	a.ID = id
	return nil
}

// MarkSent flags an alert as delivered.
func (r *AlertRepository) MarkSent(id int64, sentAt time.Time) error {
	_, err := r.db.Exec("UPDATE alerts SET sent = 1, sent_at = ? WHERE id = ?", sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark alert sent: %w", err)
	}
	return nil
}

// IncrementRetry bumps an alert's delivery retry counter.
func (r *AlertRepository) IncrementRetry(id int64) error {
	_, err := r.db.Exec("UPDATE alerts SET retry_count = retry_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to increment alert retry count: %w", err)
	}
	return nil
}

// LastFiredForTarget returns the most recent alert creation time for a
// target among the cooldown-eligible kinds, or the zero time if none.
func (r *AlertRepository) LastFiredForTarget(targetID int) (time.Time, error) {
	var created time.Time
	query := "SELECT created_at FROM alerts WHERE target_id = ? AND kind IN (?, ?, ?) ORDER BY created_at DESC LIMIT 1"
	err := r.db.Get(&created, query, targetID, AlertKindDown, AlertKindSlow, AlertKindTLSExpiry)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to look up last alert for target: %w", err)
	}
	return created, nil
}

// ActivityLogRepository provides database operations for activity logs.
type ActivityLogRepository struct {
	db *DB
}

// NewActivityLogRepository creates a new activity log repository
func NewActivityLogRepository(db *DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create appends an activity log row.
func (r *ActivityLogRepository) Create(log *ActivityLog) error {
	query := `INSERT INTO activity_logs (user_id, action, details) VALUES (:user_id, :action, :details)`
	result, err := r.db.NamedExec(query, log)
	if err != nil {
		return fmt.Errorf("failed to create activity log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get activity log id: %w", err)
	}
	log.ID = id
	return nil
}

// DeleteOlderThan removes activity logs older than cutoff, for logs.cleanup.
func (r *ActivityLogRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM activity_logs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old activity logs: %w", err)
	}
	return result.RowsAffected()
}

// DailyStatsRepository provides database operations for daily stats.
type DailyStatsRepository struct {
	db *DB
}

// NewDailyStatsRepository creates a new daily stats repository
func NewDailyStatsRepository(db *DB) *DailyStatsRepository {
	return &DailyStatsRepository{db: db}
}

// Upsert writes stats for stats.StatDate, overwriting any existing row for
// that day. Used by the metrics.aggregate scheduled job.
func (r *DailyStatsRepository) Upsert(stats *DailyStats) error {
	query := `
		INSERT INTO daily_stats (
			stat_date, total_users, active_users, total_targets, active_targets,
			total_probes, successful_probes, failed_probes, avg_response_time,
			total_downtime_seconds
		) VALUES (
			:stat_date, :total_users, :active_users, :total_targets, :active_targets,
			:total_probes, :successful_probes, :failed_probes, :avg_response_time,
			:total_downtime_seconds
		)
		ON CONFLICT(stat_date) DO UPDATE SET
			total_users = excluded.total_users,
			active_users = excluded.active_users,
			total_targets = excluded.total_targets,
			active_targets = excluded.active_targets,
			total_probes = excluded.total_probes,
			successful_probes = excluded.successful_probes,
			failed_probes = excluded.failed_probes,
			avg_response_time = excluded.avg_response_time,
			total_downtime_seconds = excluded.total_downtime_seconds
	`
	_, err := r.db.NamedExec(query, stats)
	if err != nil {
		return fmt.Errorf("failed to upsert daily stats: %w", err)
	}
	return nil
}

// GetByDate returns the stats row for a given YYYY-MM-DD date, if present.
func (r *DailyStatsRepository) GetByDate(date string) (*DailyStats, error) {
	var stats DailyStats
	if err := r.db.Get(&stats, "SELECT * FROM daily_stats WHERE stat_date = ?", date); err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	return &stats, nil
}
