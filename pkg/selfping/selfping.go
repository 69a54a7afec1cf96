// Package selfping implements C8: a background loop that periodically pings
// this process's own liveness endpoint, so a free-tier host that spins down
// idle processes sees regular traffic and stays up (spec.md §4.8).
package selfping

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/config"
	"github.com/watchkeep/uptime-monitor/pkg/retry"
)

// Pinger periodically GETs a target URL and counts successes/failures.
type Pinger struct {
	url      string
	interval time.Duration
	timeout  time.Duration
	retries  int

	client *http.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	successes uint64
	failures  uint64
}

// New builds a Pinger from config. url is resolved by the caller: explicit
// config.Liveness.SelfPingURL wins, then the hosting environment's public
// URL variable, then a localhost fallback built from the liveness port
// (spec.md §4.8 "Target URL resolution").
func New(cfg config.LivenessConfig, url string) *Pinger {
	interval := time.Duration(cfg.SelfPingInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	timeout := time.Duration(cfg.SelfPingTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := cfg.SelfPingRetries
	if retries <= 0 {
		retries = 3
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pinger{
		url:      url,
		interval: interval,
		timeout:  timeout,
		retries:  retries,
		client:   &http.Client{Timeout: timeout},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ResolveURL implements spec.md §4.8's target URL precedence: explicit
// config, then the hosting environment's public URL variable, then a
// localhost fallback built from the liveness port.
func ResolveURL(cfg config.LivenessConfig, publicURLEnv string) string {
	if cfg.SelfPingURL != "" {
		return cfg.SelfPingURL
	}
	if publicURLEnv != "" {
		return publicURLEnv + "/ping"
	}
	return fmt.Sprintf("http://localhost:%d/ping", cfg.Port)
}

// Start launches the background ping loop.
func (p *Pinger) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop cancels the loop and waits for it to exit.
func (p *Pinger) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pinger) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.ping()
		}
	}
}

func (p *Pinger) ping() {
	err := retry.Do(p.ctx, p.retries, time.Second, func(attempt int) error {
		req, err := http.NewRequestWithContext(p.ctx, http.MethodGet, p.url, nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("self-ping got status %s", resp.Status)
		}
		return nil
	})

	if err != nil {
		atomic.AddUint64(&p.failures, 1)
		log.Printf("selfping: ping to %s failed: %v", p.url, err)
		return
	}
	atomic.AddUint64(&p.successes, 1)
}

// Stats reports ping counters, for diagnostics.
func (p *Pinger) Stats() (successes, failures uint64) {
	return atomic.LoadUint64(&p.successes), atomic.LoadUint64(&p.failures)
}
