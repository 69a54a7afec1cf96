// Package engine implements the monitoring engine (C4): a bounded-
// concurrency, database-driven scheduler that continually claims due
// targets, probes them, records the outcome, and forwards any resulting
// alert intents to the alert pipeline.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/config"
	"github.com/watchkeep/uptime-monitor/pkg/database"
	"github.com/watchkeep/uptime-monitor/pkg/probe"
	"github.com/watchkeep/uptime-monitor/pkg/recorder"
)

// AlertEnqueuer is the subset of the alert pipeline the engine depends on.
// Defined here, not in pkg/alerts, so the engine never imports the
// dispatcher's cooldown/rate-limit/delivery internals.
type AlertEnqueuer interface {
	Enqueue(intent recorder.AlertIntent) bool
}

// Engine runs the periodic sweep loop described in spec.md §4.4.
type Engine struct {
	db        *database.DB
	recorder  *recorder.Recorder
	alertSink AlertEnqueuer
	cfg       config.EngineConfig

	sem chan struct{}
	wg  sync.WaitGroup

	probesDispatched uint64
	probesFailed     uint64

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New builds an Engine. alertSink may be nil, in which case alert intents
// are silently discarded (useful for tests exercising the probe/recorder
// path in isolation).
func New(db *database.DB, rec *recorder.Recorder, alertSink AlertEnqueuer, cfg config.EngineConfig) *Engine {
	concurrency := cfg.MaxConcurrentProbes
	if concurrency <= 0 {
		concurrency = 50
	}
	return &Engine{
		db:        db,
		recorder:  rec,
		alertSink: alertSink,
		cfg:       cfg,
		sem:       make(chan struct{}, concurrency),
	}
}

// Start launches the background sweep loop. It returns immediately.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.loopDone = make(chan struct{})
	e.running = true

	go e.loop(ctx)
	return nil
}

// Stop requests termination of the sweep loop and blocks until every
// in-flight probe task finishes normally (spec.md §4.4 "Cancellation").
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.cancel()
	e.running = false
	e.mu.Unlock()

	<-e.loopDone
	e.wg.Wait()
	return nil
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.loopDone)

	interval := time.Duration(e.cfg.SweepInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

// sweep claims up to batchSize due targets and dispatches one task per
// target under the concurrency permit. Dispatch does not wait for tasks to
// finish: the loop sleeps sweepInterval and ticks again regardless of
// in-flight work (spec.md §4.4 step 4).
func (e *Engine) sweep() {
	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	targets, err := e.db.TargetRepository().ClaimDue(batchSize, time.Now())
	if err != nil {
		log.Printf("engine: sweep selection failed, skipping this tick: %v", err)
		return
	}

	for _, target := range targets {
		target := target
		e.wg.Add(1)
		e.sem <- struct{}{}
		go func() {
			defer e.wg.Done()
			defer func() { <-e.sem }()
			e.runProbeTask(target)
		}()
	}
}

// runProbeTask executes one target's probe → recorder → transition chain.
// Probes run against a fresh background context so Stop() never aborts an
// in-flight task mid-probe; only the sweep loop's own ticking stops early.
func (e *Engine) runProbeTask(target *database.Target) {
	defer func() {
		if r := recover(); r != nil {
			e.recordEngineFault(target, fmt.Errorf("panic in probe task: %v", r))
		}
	}()

	spec, err := buildProbeSpec(target)
	if err != nil {
		e.recordEngineFault(target, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeBudget(spec))
	defer cancel()

	result := e.dispatchProbe(ctx, spec)
	atomic.AddUint64(&e.probesDispatched, 1)
	if !result.Success {
		atomic.AddUint64(&e.probesFailed, 1)
	}

	intents, err := e.recorder.Record(context.Background(), target, result, time.Now())
	if err != nil {
		log.Printf("engine: recorder failed for target %d, leaving prior state: %v", target.ID, err)
		e.recordEngineFault(target, err)
		return
	}

	if e.alertSink == nil {
		return
	}
	for _, intent := range intents {
		e.alertSink.Enqueue(intent)
	}
}

func (e *Engine) dispatchProbe(ctx context.Context, spec probe.Spec) probe.Result {
	switch database.TargetKind(spec.Kind) {
	case database.TargetKindHTTP, database.TargetKindHTTPS:
		return probe.HTTP(ctx, spec)
	case database.TargetKindTCP:
		return probe.TCP(ctx, spec)
	case database.TargetKindDNS:
		return probe.DNS(ctx, spec)
	case database.TargetKindTLS:
		return probe.TLS(ctx, spec)
	default:
		return probe.Result{Success: false, ErrorClass: probe.ErrClassUnknown, ErrorMessage: "unrecognized target kind: " + spec.Kind}
	}
}

// recordEngineFault writes a synthetic failing ProbeLog directly, bypassing
// the recorder's transaction, so the target remains visible even when the
// fault originates inside the engine itself rather than the probe
// (spec.md §4.4 "Error containment").
func (e *Engine) recordEngineFault(target *database.Target, cause error) {
	msg := cause.Error()
	class := probe.ErrClassEngineFault
	entry := &database.ProbeLog{
		TargetID:     target.ID,
		Timestamp:    time.Now(),
		Success:      false,
		ErrorClass:   &class,
		ErrorMessage: &msg,
	}
	if err := e.db.ProbeLogRepository().Create(entry); err != nil {
		log.Printf("engine: failed to record engine fault for target %d: %v (original fault: %v)", target.ID, err, cause)
	}
}

// ProbesDispatched reports the total number of probes the engine has
// executed, for the liveness server's /metrics endpoint.
func (e *Engine) ProbesDispatched() uint64 {
	return atomic.LoadUint64(&e.probesDispatched)
}

// ProbesFailed reports how many of those probes completed with a failure
// result.
func (e *Engine) ProbesFailed() uint64 {
	return atomic.LoadUint64(&e.probesFailed)
}
