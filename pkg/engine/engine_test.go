package engine

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeep/uptime-monitor/pkg/config"
	"github.com/watchkeep/uptime-monitor/pkg/database"
	"github.com/watchkeep/uptime-monitor/pkg/recorder"
)

type fakeSink struct {
	mu      sync.Mutex
	intents []recorder.AlertIntent
}

func (f *fakeSink) Enqueue(intent recorder.AlertIntent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intent)
	return true
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intents)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(&config.Config{
		Datastore: config.DatastoreConfig{URL: ":memory:", WALMode: true},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		MaxConcurrentProbes: 4,
		BatchSize:           10,
		SweepInterval:       1,
	}
}

func TestEngineProbesDueTargetAndRecordsResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	db := newTestDB(t)
	codes, err := database.MarshalExpectedStatusCodes([]int{200})
	require.NoError(t, err)

	target := &database.Target{
		OwnerID:             1,
		DisplayName:         "web",
		URL:                 server.URL,
		Kind:                database.TargetKindHTTP,
		HTTPMethod:          "GET",
		ProbeInterval:       1,
		Timeout:             2,
		RetryCount:          0,
		ExpectedStatusCodes: codes,
		SlowThreshold:       5.0,
		AlertOnDown:         true,
		AlertOnRecovery:     true,
		IsActive:            true,
		IsUp:                true,
	}
	require.NoError(t, db.TargetRepository().Create(target))

	rec := recorder.New(db)
	sink := &fakeSink{}
	eng := New(db, rec, sink, testEngineConfig())

	eng.sweep()
	eng.wg.Wait()

	logs, err := db.ProbeLogRepository().ListByTarget(target.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)

	refreshed, err := db.TargetRepository().GetByID(target.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, refreshed.TotalProbes)
}

func TestEngineStartStopDrainsInFlight(t *testing.T) {
	db := newTestDB(t)
	rec := recorder.New(db)
	eng := New(db, rec, nil, testEngineConfig())

	require.NoError(t, eng.Start())
	require.Error(t, eng.Start())

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, eng.Stop())
	require.NoError(t, eng.Stop())
}

func TestEngineRecordsFailureOnBadTargetKind(t *testing.T) {
	db := newTestDB(t)
	codes, err := database.MarshalExpectedStatusCodes([]int{200})
	require.NoError(t, err)

	target := &database.Target{
		OwnerID:             1,
		DisplayName:         "bogus",
		URL:                 "irrelevant",
		Kind:                database.TargetKind("carrier-pigeon"),
		ExpectedStatusCodes: codes,
		IsActive:            true,
		IsUp:                true,
	}
	require.NoError(t, db.TargetRepository().Create(target))

	rec := recorder.New(db)
	eng := New(db, rec, nil, testEngineConfig())
	eng.runProbeTask(target)

	logs, err := db.ProbeLogRepository().ListByTarget(target.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
}
