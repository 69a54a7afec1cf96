// Package alerts implements the alert pipeline (C5): a bounded queue that
// decouples the probe hot path from delivery, and a dispatch loop applying
// cooldown, per-owner rate limiting, persistence, and retrying delivery to
// every AlertIntent the engine raises.
package alerts

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/config"
	"github.com/watchkeep/uptime-monitor/pkg/database"
	"github.com/watchkeep/uptime-monitor/pkg/recorder"
	"github.com/watchkeep/uptime-monitor/pkg/retry"
)

// Pipeline is the C5 alert pipeline.
type Pipeline struct {
	db       *database.DB
	sink     Sink
	resolver Resolver
	cfg      config.AlertsConfig

	queue    chan recorder.AlertIntent
	cooldown *cooldownTracker
	limiter  *rateLimiter

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New builds a Pipeline. resolver may be nil, in which case alerts route on
// the owner's external id directly (IdentityResolver).
func New(db *database.DB, sink Sink, resolver Resolver, cfg config.AlertsConfig) *Pipeline {
	capacity := cfg.QueueCap
	if capacity <= 0 {
		capacity = 10000
	}
	cooldownWindow := time.Duration(cfg.Cooldown) * time.Second
	if cooldownWindow <= 0 {
		cooldownWindow = 5 * time.Minute
	}
	maxPerHour := cfg.MaxAlertsPerHour
	if maxPerHour <= 0 {
		maxPerHour = 20
	}
	if resolver == nil {
		resolver = IdentityResolver{}
	}

	return &Pipeline{
		db:       db,
		sink:     sink,
		resolver: resolver,
		cfg:      cfg,
		queue:    make(chan recorder.AlertIntent, capacity),
		cooldown: newCooldownTracker(cooldownWindow, 10000),
		limiter:  newRateLimiter(time.Hour, maxPerHour),
	}
}

// Enqueue is non-blocking: a full queue drops the intent with a warning,
// since probe availability matters more than delivering a redundant alert
// (spec.md §4.5).
func (p *Pipeline) Enqueue(intent recorder.AlertIntent) bool {
	select {
	case p.queue <- intent:
		return true
	default:
		log.Printf("alerts: queue full, dropping %s intent for target %d", intent.Kind, intent.TargetID)
		return false
	}
}

// Start launches the background dispatch loop.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("alert pipeline already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.loopDone = make(chan struct{})
	p.running = true

	go p.loop(ctx)
	return nil
}

// Stop requests the dispatch loop to exit, then drains every intent still
// queued by persisting it unsent, so no state is silently lost (spec.md
// §4.5 "Shutdown").
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	<-p.loopDone
	p.drain()
	return nil
}

func (p *Pipeline) loop(ctx context.Context) {
	defer close(p.loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case intent := <-p.queue:
			p.dispatch(ctx, intent)
		}
	}
}

func (p *Pipeline) drain() {
	for {
		select {
		case intent := <-p.queue:
			alert := buildAlert(intent, p.cfg.RetryCount)
			alert.Sent = false
			if err := p.db.AlertRepository().Create(alert); err != nil {
				log.Printf("alerts: failed to persist drained intent for target %d: %v", intent.TargetID, err)
			}
		default:
			return
		}
	}
}

// dispatch runs one intent through cooldown, rate limiting, persistence,
// and delivery, in that order (spec.md §4.5).
func (p *Pipeline) dispatch(ctx context.Context, intent recorder.AlertIntent) {
	now := time.Now()

	if cooldownEligible(intent.Kind) && !p.cooldown.allow(intent.TargetID, now) {
		return
	}

	alert := buildAlert(intent, p.cfg.RetryCount)
	deliverable := p.limiter.allow(intent.OwnerID, now)
	alert.Sent = false

	if err := p.db.AlertRepository().Create(alert); err != nil {
		log.Printf("alerts: failed to persist alert for target %d: %v", intent.TargetID, err)
		return
	}

	if !deliverable {
		return
	}

	destination, err := p.resolver.Resolve(intent.OwnerID)
	if err != nil {
		log.Printf("alerts: failed to resolve routing for owner %d: %v", intent.OwnerID, err)
		return
	}

	maxRetries := p.cfg.RetryCount
	if maxRetries <= 0 {
		maxRetries = 3
	}

	err = retry.Do(ctx, maxRetries+1, time.Second, func(attempt int) error {
		return p.sink.Deliver(ctx, Message{
			Destination: destination,
			Title:       alert.Title,
			Body:        alert.Body,
			Priority:    alert.Priority,
		})
	})
	if err != nil {
		log.Printf("alerts: delivery failed after retries for target %d: %v", intent.TargetID, err)
		if incErr := p.db.AlertRepository().IncrementRetry(alert.ID); incErr != nil {
			log.Printf("alerts: failed to record retry count for alert %d: %v", alert.ID, incErr)
		}
		return
	}

	if err := p.db.AlertRepository().MarkSent(alert.ID, time.Now()); err != nil {
		log.Printf("alerts: failed to mark alert %d sent: %v", alert.ID, err)
	}
}

// QueueDepth reports how many alert intents are currently queued for
// dispatch, for the liveness server's /metrics endpoint.
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}

// RunCooldownGC runs the cooldown tracker's gc pass and returns its count.
// Called by the scheduler's cooldown.gc job.
func (p *Pipeline) RunCooldownGC() int {
	return p.cooldown.gc()
}

func cooldownEligible(kind recorder.AlertIntentKind) bool {
	switch kind {
	case recorder.IntentDown, recorder.IntentSlow, recorder.IntentTLSExpiring:
		return true
	default:
		return false
	}
}
