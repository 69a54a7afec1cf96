package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeep/uptime-monitor/pkg/config"
	"github.com/watchkeep/uptime-monitor/pkg/database"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(&config.Config{
		Datastore: config.DatastoreConfig{URL: ":memory:", WALMode: true},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchedulerRunsRegisteredJob(t *testing.T) {
	s := New()
	var calls int64

	require.NoError(t, s.Register("tick", 60*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) >= 2
	}, time.Second, 10*time.Millisecond)

	statuses := s.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, "tick", statuses[0].Name)
	assert.GreaterOrEqual(t, statuses[0].RunCount, int64(2))
}

func TestSchedulerCountsErrorsWithoutHalting(t *testing.T) {
	s := New()
	var calls int64

	require.NoError(t, s.Register("flaky", 40*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&calls, 1)
		return assert.AnError
	}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) >= 2
	}, time.Second, 10*time.Millisecond)

	statuses := s.Status()
	require.Len(t, statuses, 1)
	assert.Equal(t, statuses[0].RunCount, statuses[0].ErrorCount)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	s := New()
	noop := func(ctx context.Context) error { return nil }
	require.NoError(t, s.Register("once", time.Hour, noop))
	assert.Error(t, s.Register("once", time.Hour, noop))
}

func TestAggregateMetricsUpsertsDailyStats(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, aggregateMetrics(db)(context.Background()))

	today := time.Now().UTC().Format("2006-01-02")
	stats, err := db.DailyStatsRepository().GetByDate(today)
	require.NoError(t, err)
	assert.Equal(t, today, stats.StatDate)
}

func TestHeartbeatChecksDatabaseHealth(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, heartbeat(db)(context.Background()))
}

func TestMarkInactiveUsersReturnsNoErrorOnEmptyTable(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, markInactiveUsers(db)(context.Background()))
}

func TestCleanupLogsReturnsNoErrorOnEmptyTables(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, cleanupLogs(db, config.RetentionConfig{LogRetentionDays: 30})(context.Background()))
}

func TestSweepTLSNoOpWithoutSink(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, sweepTLS(db, config.TLSConfig{ExpiryWarningDays: 30}, nil)(context.Background()))
}

func TestGcCooldownsNoOpWithoutGCer(t *testing.T) {
	require.NoError(t, gcCooldowns(nil)(context.Background()))
}
