package database

import (
	"testing"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/config"
)

func createTestDB(t *testing.T) *DB {
	cfg := &config.Config{
		Datastore: config.DatastoreConfig{
			URL:     ":memory:",
			WALMode: true,
		},
	}

	db, err := NewDB(cfg)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	return db
}

func TestNewDB(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	if db == nil {
		t.Fatal("Database should not be nil")
	}
}

func TestInitSchema(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	tables := []string{"users", "targets", "probe_logs", "alerts", "activity_logs", "daily_stats"}
	var count int
	for _, table := range tables {
		if err := db.Get(&count, "SELECT COUNT(*) FROM "+table); err != nil {
			t.Errorf("failed to query %s table: %v", table, err)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	if err := db.HealthCheck(); err != nil {
		t.Errorf("health check should pass on a fresh database: %v", err)
	}
}

func TestGetStats(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats["users_count"] != 0 {
		t.Errorf("expected 0 users, got %v", stats["users_count"])
	}
}

func TestUserRepository(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	repo := db.UserRepository()

	user, err := repo.EnsureExists(1001, 10, 60)
	if err != nil {
		t.Fatalf("failed to ensure user exists: %v", err)
	}
	if user.Status != UserStatusActive {
		t.Errorf("expected new user to be active, got %s", user.Status)
	}

	again, err := repo.EnsureExists(1001, 10, 60)
	if err != nil {
		t.Fatalf("failed second ensure: %v", err)
	}
	if again.ID != user.ID {
		t.Errorf("EnsureExists should not create a duplicate user, got ids %d and %d", user.ID, again.ID)
	}

	if err := repo.TouchActivity(1001); err != nil {
		t.Fatalf("failed to touch activity: %v", err)
	}

	fetched, err := repo.GetByExternalID(1001)
	if err != nil {
		t.Fatalf("failed to fetch user: %v", err)
	}
	if fetched.LastActivityAt == nil {
		t.Error("expected last_activity_at to be set after TouchActivity")
	}
}

func TestUserRepositoryMarkInactiveStale(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	repo := db.UserRepository()
	if _, err := repo.EnsureExists(2002, 10, 60); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	cutoff := time.Now().UTC().Add(time.Hour)
	affected, err := repo.MarkInactiveStale(cutoff)
	if err != nil {
		t.Fatalf("failed to mark inactive: %v", err)
	}
	if affected != 1 {
		t.Errorf("expected 1 user marked inactive, got %d", affected)
	}

	user, err := repo.GetByExternalID(2002)
	if err != nil {
		t.Fatalf("failed to fetch user: %v", err)
	}
	if user.Status != UserStatusInactive {
		t.Errorf("expected user status inactive, got %s", user.Status)
	}
}

func newTestTarget(ownerID int64) *Target {
	codes, _ := MarshalExpectedStatusCodes([]int{200})
	return &Target{
		OwnerID:             ownerID,
		DisplayName:         "example",
		URL:                 "https://example.com",
		Kind:                TargetKindHTTPS,
		HTTPMethod:          "GET",
		ProbeInterval:       300,
		Timeout:             30,
		RetryCount:          3,
		RetryDelay:          5,
		ExpectedStatusCodes: codes,
		SlowThreshold:       5.0,
		AlertOnDown:         true,
		AlertOnRecovery:     true,
		AlertOnSlow:         true,
		IsActive:            true,
		IsUp:                true,
	}
}

func TestTargetRepositoryCreateAndGet(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	repo := db.TargetRepository()
	target := newTestTarget(42)

	if err := repo.Create(target); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}
	if target.UUID == "" {
		t.Error("expected target to receive a generated uuid")
	}

	fetched, err := repo.GetByID(target.ID)
	if err != nil {
		t.Fatalf("failed to fetch target: %v", err)
	}
	if fetched.DisplayName != "example" {
		t.Errorf("expected display name 'example', got %q", fetched.DisplayName)
	}

	byUUID, err := repo.GetByUUID(target.UUID)
	if err != nil {
		t.Fatalf("failed to fetch target by uuid: %v", err)
	}
	if byUUID.ID != target.ID {
		t.Error("GetByUUID should return the same target as GetByID")
	}
}

func TestTargetRepositoryListByOwner(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	repo := db.TargetRepository()
	if err := repo.Create(newTestTarget(11)); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}
	if err := repo.Create(newTestTarget(11)); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}
	other := newTestTarget(12)
	if err := repo.Create(other); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	targets, err := repo.ListByOwner(11)
	if err != nil {
		t.Fatalf("failed to list targets by owner: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets for owner 11, got %d", len(targets))
	}
	for _, target := range targets {
		if target.OwnerID != 11 {
			t.Errorf("expected owner 11, got %d", target.OwnerID)
		}
	}

	if err := repo.SoftDelete(targets[0].ID); err != nil {
		t.Fatalf("failed to soft-delete target: %v", err)
	}
	remaining, err := repo.ListByOwner(11)
	if err != nil {
		t.Fatalf("failed to list targets by owner after delete: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("expected 1 target for owner 11 after soft delete, got %d", len(remaining))
	}
}

func TestTargetRepositoryClaimDue(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	repo := db.TargetRepository()
	t1 := newTestTarget(1)
	if err := repo.Create(t1); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	now := time.Now().UTC()
	claimed, err := repo.ClaimDue(10, now)
	if err != nil {
		t.Fatalf("failed to claim due targets: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed target (next_due_at null), got %d", len(claimed))
	}

	// A second claim immediately after should not re-select it since
	// next_due_at was advanced past now.
	claimedAgain, err := repo.ClaimDue(10, now)
	if err != nil {
		t.Fatalf("failed second claim: %v", err)
	}
	if len(claimedAgain) != 0 {
		t.Errorf("expected no targets claimed on second pass, got %d", len(claimedAgain))
	}
}

func TestTargetRepositoryCountActiveByOwner(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	repo := db.TargetRepository()
	if err := repo.Create(newTestTarget(7)); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}
	if err := repo.Create(newTestTarget(7)); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	count, err := repo.CountActiveByOwner(7)
	if err != nil {
		t.Fatalf("failed to count targets: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 active targets for owner, got %d", count)
	}
}

func TestTargetRepositorySoftDelete(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	repo := db.TargetRepository()
	target := newTestTarget(9)
	if err := repo.Create(target); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	if err := repo.SoftDelete(target.ID); err != nil {
		t.Fatalf("failed to soft delete target: %v", err)
	}

	count, err := repo.CountActiveByOwner(9)
	if err != nil {
		t.Fatalf("failed to count targets: %v", err)
	}
	if count != 0 {
		t.Errorf("expected soft-deleted target to be excluded, got count %d", count)
	}
}

func TestTargetRepositoryListExpiringTLS(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	repo := db.TargetRepository()
	target := newTestTarget(3)
	if err := repo.Create(target); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	days := 10
	target.TLSDaysRemaining = &days
	if err := repo.Update(target); err != nil {
		t.Fatalf("failed to update target: %v", err)
	}

	expiring, err := repo.ListExpiringTLS(30)
	if err != nil {
		t.Fatalf("failed to list expiring tls targets: %v", err)
	}
	if len(expiring) != 1 {
		t.Errorf("expected 1 expiring target, got %d", len(expiring))
	}
}

func TestProbeLogRepository(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	targetRepo := db.TargetRepository()
	target := newTestTarget(5)
	if err := targetRepo.Create(target); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	logRepo := db.ProbeLogRepository()
	log := &ProbeLog{
		TargetID:  target.ID,
		Timestamp: time.Now().UTC(),
		Success:   true,
	}
	if err := logRepo.Create(log); err != nil {
		t.Fatalf("failed to create probe log: %v", err)
	}
	if log.ID == 0 {
		t.Error("expected probe log to receive an assigned id")
	}

	logs, err := logRepo.ListByTarget(target.ID, 10)
	if err != nil {
		t.Fatalf("failed to list probe logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 probe log, got %d", len(logs))
	}

	oldLog := &ProbeLog{
		TargetID:  target.ID,
		Timestamp: time.Now().UTC().Add(-72 * time.Hour),
		Success:   false,
	}
	if err := logRepo.Create(oldLog); err != nil {
		t.Fatalf("failed to create old probe log: %v", err)
	}

	deleted, err := logRepo.DeleteOlderThan(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("failed to delete old probe logs: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted probe log, got %d", deleted)
	}
}

func TestAlertRepository(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	targetRepo := db.TargetRepository()
	target := newTestTarget(6)
	if err := targetRepo.Create(target); err != nil {
		t.Fatalf("failed to create target: %v", err)
	}

	alertRepo := db.AlertRepository()
	alert := &Alert{
		OwnerID:    6,
		TargetID:   &target.ID,
		Kind:       AlertKindDown,
		Title:      "target down",
		Body:       "example.com is down",
		Priority:   "high",
		MaxRetries: 3,
	}
	if err := alertRepo.Create(alert); err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}
	if alert.ID == 0 {
		t.Error("expected alert to receive an assigned id")
	}

	if err := alertRepo.MarkSent(alert.ID, time.Now().UTC()); err != nil {
		t.Fatalf("failed to mark alert sent: %v", err)
	}
	if err := alertRepo.IncrementRetry(alert.ID); err != nil {
		t.Fatalf("failed to increment retry: %v", err)
	}

	lastFired, err := alertRepo.LastFiredForTarget(target.ID)
	if err != nil {
		t.Fatalf("failed to look up last fired: %v", err)
	}
	if lastFired.IsZero() {
		t.Error("expected a non-zero last fired timestamp")
	}
}

func TestActivityLogRepository(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	repo := db.ActivityLogRepository()
	log := &ActivityLog{UserID: 1, Action: "target.created"}
	if err := repo.Create(log); err != nil {
		t.Fatalf("failed to create activity log: %v", err)
	}

	oldLog := &ActivityLog{UserID: 1, Action: "target.created"}
	if err := repo.Create(oldLog); err != nil {
		t.Fatalf("failed to create activity log: %v", err)
	}

	deleted, err := repo.DeleteOlderThan(time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("failed to delete old activity logs: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted activity logs, got %d", deleted)
	}
}

func TestDailyStatsRepositoryUpsert(t *testing.T) {
	db := createTestDB(t)
	defer db.Close()

	repo := db.DailyStatsRepository()
	stats := &DailyStats{
		StatDate:     "2026-07-30",
		TotalUsers:   5,
		ActiveUsers:  4,
		TotalTargets: 10,
	}
	if err := repo.Upsert(stats); err != nil {
		t.Fatalf("failed to upsert daily stats: %v", err)
	}

	stats.TotalUsers = 6
	if err := repo.Upsert(stats); err != nil {
		t.Fatalf("failed to upsert again: %v", err)
	}

	fetched, err := repo.GetByDate("2026-07-30")
	if err != nil {
		t.Fatalf("failed to fetch daily stats: %v", err)
	}
	if fetched.TotalUsers != 6 {
		t.Errorf("expected upsert to overwrite total_users to 6, got %d", fetched.TotalUsers)
	}
}
