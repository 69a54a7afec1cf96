// Package liveness implements the C7 liveness server: a small, deliberately
// unauthenticated HTTP surface (spec.md §4.7) that a hosting platform's
// health checks and the self-pinger hit, distinct from any administrative
// API.
package liveness

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watchkeep/uptime-monitor/pkg/config"
)

// Server is the liveness HTTP server. It tracks its own request count and
// start time so /health can answer without touching the database.
type Server struct {
	cfg        config.LivenessConfig
	appName    string
	appVersion string

	router     *gin.Engine
	httpServer *http.Server

	startedAt      time.Time
	requestsServed uint64

	registry      *prometheus.Registry
	requestsTotal *prometheus.CounterVec
}

// healthBody is the shape spec.md §4.7 requires from /health and /status.
type healthBody struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptimeSeconds"`
	RequestsServed uint64 `json:"requestsServed"`
	Timestamp      string `json:"timestamp"`
	Port           int    `json:"port"`
	AppName        string `json:"appName"`
	AppVersion     string `json:"appVersion"`
}

// New builds a Server. It does not start listening until Start is called,
// and it does not touch gin's global mode.
func New(cfg config.LivenessConfig, appName, appVersion string) *Server {
	registry := prometheus.NewRegistry()
	requestsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uptime_liveness_requests_total",
		Help: "Requests served by the liveness endpoint set, by path.",
	}, []string{"path"})
	registry.MustRegister(requestsTotal)

	s := &Server{
		cfg:           cfg,
		appName:       appName,
		appVersion:    appVersion,
		registry:      registry,
		requestsTotal: requestsTotal,
	}

	router := gin.New()
	router.Use(s.countRequests, gin.Recovery())
	router.GET("/", s.handleRoot)
	router.GET("/ping", s.handlePing)
	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	s.router = router

	return s
}

func (s *Server) countRequests(c *gin.Context) {
	atomic.AddUint64(&s.requestsServed, 1)
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	s.requestsTotal.WithLabelValues(path).Inc()
	c.Next()
}

func (s *Server) handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handlePing(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthBody{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		RequestsServed: atomic.LoadUint64(&s.requestsServed),
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Port:           s.cfg.Port,
		AppName:        s.appName,
		AppVersion:     s.appVersion,
	})
}

// Start begins listening in the background. Call Stop to shut down
// gracefully.
func (s *Server) Start() error {
	s.startedAt = time.Now()
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", s.cfg.Port),
		Handler:        s.router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("liveness: server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Addr reports the bound listen address, for tests and logging.
func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.cfg.Port)
}

// RegisterGaugeFunc exposes a live-read gauge on /metrics, backed by fn
// (evaluated at scrape time, not polled). Callers pass engine/alerts/
// scheduler accessors here so /metrics carries probe counters, alert-queue
// depth, and scheduler job run counts without this package depending on
// any of those components.
func (s *Server) RegisterGaugeFunc(name, help string, labels prometheus.Labels, fn func() float64) {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, fn)
	s.registry.MustRegister(gauge)
}
