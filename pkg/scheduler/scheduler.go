// Package scheduler implements the periodic job scheduler (C6): a registry
// of named jobs, each run on its own fixed period, one at a time, with
// run/error counters kept for diagnostics.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Action is one scheduled job's work. Errors are counted, never fatal.
type Action func(ctx context.Context) error

// JobStatus is a snapshot of one registered job's run history.
type JobStatus struct {
	Name       string
	Period     time.Duration
	LastRun    time.Time
	NextDueAt  time.Time
	RunCount   int64
	ErrorCount int64
}

type jobRecord struct {
	mu         sync.Mutex
	name       string
	period     time.Duration
	entryID    cron.EntryID
	lastRun    time.Time
	runCount   int64
	errorCount int64
}

// Scheduler runs named jobs at fixed periods, one at a time per job
// (spec.md §4.6: "a single dispatcher loop ticks... launch action... advance
// nextDueAt"). It is backed by robfig/cron's @every schedules rather than a
// hand-rolled ticker loop, with SkipIfStillRunning so a slow run is never
// overlapped by its own next tick.
type Scheduler struct {
	cron *cron.Cron

	mu   sync.Mutex
	jobs map[string]*jobRecord
}

// New builds an empty Scheduler. Register jobs with Register, then Start.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		jobs: make(map[string]*jobRecord),
	}
}

// Register adds a named job that runs every period. It must be called
// before Start.
func (s *Scheduler) Register(name string, period time.Duration, action Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	record := &jobRecord{name: name, period: period}

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", period.String()), func() {
		s.run(record, action)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", name, err)
	}
	record.entryID = entryID

	s.jobs[name] = record
	return nil
}

func (s *Scheduler) run(record *jobRecord, action Action) {
	record.mu.Lock()
	record.lastRun = time.Now()
	record.mu.Unlock()

	if err := action(context.Background()); err != nil {
		record.mu.Lock()
		record.errorCount++
		record.mu.Unlock()
		log.Printf("scheduler: job %q failed: %v", record.name, err)
	}

	record.mu.Lock()
	record.runCount++
	record.mu.Unlock()
}

// Start begins running every registered job on its schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop requests every job to finish its current run and waits for them,
// per spec.md §4.6 ("exceptions are counted, not fatal" — Stop itself is
// the only way this scheduler halts).
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Status returns a snapshot of every registered job's run history.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, record := range s.jobs {
		record.mu.Lock()
		entry := s.cron.Entry(record.entryID)
		statuses = append(statuses, JobStatus{
			Name:       record.name,
			Period:     record.period,
			LastRun:    record.lastRun,
			NextDueAt:  entry.Next,
			RunCount:   record.runCount,
			ErrorCount: record.errorCount,
		})
		record.mu.Unlock()
	}
	return statuses
}
