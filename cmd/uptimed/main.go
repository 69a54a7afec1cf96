// Command uptimed is the uptime-monitor daemon: it wires together the
// probe/recorder/engine pipeline, the alert dispatcher, the periodic job
// scheduler, and the liveness server, then runs until a termination signal
// arrives.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/watchkeep/uptime-monitor/pkg/alerts"
	"github.com/watchkeep/uptime-monitor/pkg/config"
	"github.com/watchkeep/uptime-monitor/pkg/database"
	"github.com/watchkeep/uptime-monitor/pkg/engine"
	"github.com/watchkeep/uptime-monitor/pkg/liveness"
	"github.com/watchkeep/uptime-monitor/pkg/recorder"
	"github.com/watchkeep/uptime-monitor/pkg/scheduler"
	"github.com/watchkeep/uptime-monitor/pkg/selfping"
)

// scheduledJobNames mirrors the built-ins scheduler.RegisterBuiltins wires
// up, so /metrics can expose a per-job run-count gauge for each one.
var scheduledJobNames = []string{
	"metrics.aggregate", "logs.cleanup", "tls.sweep",
	"cooldown.gc", "users.inactive", "heartbeat",
}

func main() {
	log.Println("starting uptime-monitor daemon...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := database.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer db.Close()

	var sink alerts.Sink
	if cfg.Alerts.WebhookURL != "" {
		sink = alerts.NewHTTPSink(cfg.Alerts.WebhookURL, 10*time.Second)
	} else {
		sink = alerts.LogSink{}
		log.Println("no alerts.webhook_url configured, alerts will only be logged")
	}

	rec := recorder.New(db)
	pipeline := alerts.New(db, sink, nil, cfg.Alerts)
	eng := engine.New(db, rec, pipeline, cfg.Engine)

	sched := scheduler.New()
	if err := scheduler.RegisterBuiltins(sched, db, cfg, pipeline, pipeline); err != nil {
		log.Fatalf("failed to register scheduled jobs: %v", err)
	}

	liveSrv := liveness.New(cfg.Liveness, cfg.Identity.AppName, cfg.Identity.AppVersion)
	liveSrv.RegisterGaugeFunc("uptime_engine_probes_dispatched_total", "Probes dispatched by the engine.", nil, func() float64 {
		return float64(eng.ProbesDispatched())
	})
	liveSrv.RegisterGaugeFunc("uptime_engine_probes_failed_total", "Probes the engine dispatched that resolved as a failure.", nil, func() float64 {
		return float64(eng.ProbesFailed())
	})
	liveSrv.RegisterGaugeFunc("uptime_alerts_queue_depth", "Alert intents currently queued for dispatch.", nil, func() float64 {
		return float64(pipeline.QueueDepth())
	})
	for _, jobName := range scheduledJobNames {
		jobName := jobName
		liveSrv.RegisterGaugeFunc("uptime_scheduler_job_run_count", "Completed runs per scheduled job.", prometheus.Labels{"job": jobName}, func() float64 {
			for _, status := range sched.Status() {
				if status.Name == jobName {
					return float64(status.RunCount)
				}
			}
			return 0
		})
	}

	if err := pipeline.Start(); err != nil {
		log.Fatalf("failed to start alert pipeline: %v", err)
	}
	if err := eng.Start(); err != nil {
		log.Fatalf("failed to start engine: %v", err)
	}
	sched.Start()
	if err := liveSrv.Start(); err != nil {
		log.Fatalf("failed to start liveness server: %v", err)
	}

	var pinger *selfping.Pinger
	if cfg.Liveness.SelfPingEnabled {
		url := selfping.ResolveURL(cfg.Liveness, os.Getenv("UPTIME_PUBLIC_URL"))
		pinger = selfping.New(cfg.Liveness, url)
		pinger.Start()
		log.Printf("self-ping enabled, target: %s", url)
	}

	log.Printf("%s v%s ready, liveness listening on %s", cfg.Identity.AppName, cfg.Identity.AppVersion, liveSrv.Addr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutdown signal received, draining...")

	if pinger != nil {
		pinger.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := liveSrv.Stop(ctx); err != nil {
		log.Printf("liveness server shutdown error: %v", err)
	}

	sched.Stop()

	if err := eng.Stop(); err != nil {
		log.Printf("engine shutdown error: %v", err)
	}
	if err := pipeline.Stop(); err != nil {
		log.Printf("alert pipeline shutdown error: %v", err)
	}

	log.Println("uptime-monitor daemon stopped")
}
