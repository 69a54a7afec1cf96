package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/watchkeep/uptime-monitor/pkg/config"
)

// DB represents the database connection
type DB struct {
	*sqlx.DB
	config *config.Config
}

// NewDB creates a new database connection
func NewDB(cfg *config.Config) (*DB, error) {
	dbPath := cfg.Datastore.URL

	// Handle special case for in-memory database
	if dbPath == ":memory:" {
		db, err := sqlx.Connect("sqlite", ":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to connect to in-memory database: %w", err)
		}

		database := &DB{
			DB:     db,
			config: cfg,
		}

		if err := database.InitSchema(); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}

		return database, nil
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	connStr := dbPath
	if cfg.Datastore.WALMode {
		connStr += "?_journal_mode=WAL&_sync=NORMAL&_cache_size=1000&_foreign_keys=ON"
	}

	db, err := sqlx.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	poolSize := cfg.Datastore.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize / 2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	dbWrapper := &DB{
		DB:     db,
		config: cfg,
	}

	if err := dbWrapper.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return dbWrapper, nil
}

// InitSchema initializes the database schema
func (db *DB) InitSchema() error {
	schema := `
	-- Users table: one row per external account id
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id INTEGER UNIQUE NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		status TEXT NOT NULL DEFAULT 'active', -- active, inactive, suspended, banned
		max_targets INTEGER NOT NULL DEFAULT 10,
		min_probe_interval INTEGER NOT NULL DEFAULT 60,
		last_activity_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Targets table: monitored endpoints
	CREATE TABLE IF NOT EXISTS targets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT UNIQUE NOT NULL,
		owner_id INTEGER NOT NULL, -- users.external_id
		display_name TEXT NOT NULL,
		url TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'http', -- http, https, tcp, dns, tls
		http_method TEXT NOT NULL DEFAULT 'GET',
		probe_interval INTEGER NOT NULL DEFAULT 300,
		timeout INTEGER NOT NULL DEFAULT 30,
		retry_count INTEGER NOT NULL DEFAULT 3,
		retry_delay INTEGER NOT NULL DEFAULT 5,
		expected_status_codes TEXT NOT NULL DEFAULT '[200]', -- JSON array
		expected_content TEXT,
		headers TEXT, -- JSON string->string map
		request_body TEXT,
		slow_threshold REAL NOT NULL DEFAULT 5.0,
		alert_on_down BOOLEAN NOT NULL DEFAULT TRUE,
		alert_on_recovery BOOLEAN NOT NULL DEFAULT TRUE,
		alert_on_slow BOOLEAN NOT NULL DEFAULT TRUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_up BOOLEAN NOT NULL DEFAULT TRUE,
		last_probe_at DATETIME,
		next_due_at DATETIME,
		last_status_code INTEGER,
		last_response_time REAL,
		total_probes INTEGER NOT NULL DEFAULT 0,
		successful_probes INTEGER NOT NULL DEFAULT 0,
		failed_probes INTEGER NOT NULL DEFAULT 0,
		uptime_percent REAL NOT NULL DEFAULT 100,
		min_response_time REAL,
		avg_response_time REAL,
		max_response_time REAL,
		total_downtime_seconds REAL NOT NULL DEFAULT 0,
		downtime_events INTEGER NOT NULL DEFAULT 0,
		current_downtime_start DATETIME,
		tls_expiry DATETIME,
		tls_issuer TEXT,
		tls_days_remaining INTEGER,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (owner_id) REFERENCES users(external_id) ON DELETE CASCADE
	);

	-- Probe logs: append-only record of every probe
	CREATE TABLE IF NOT EXISTS probe_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_id INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		success BOOLEAN NOT NULL,
		status_code INTEGER,
		response_time REAL,
		response_size INTEGER,
		error_class TEXT,
		error_message TEXT,
		dns_time REAL,
		connect_time REAL,
		resolved_ip TEXT,
		tls_verified BOOLEAN,
		retry_count INTEGER NOT NULL DEFAULT 0,
		headers TEXT, -- JSON raw header capture
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (target_id) REFERENCES targets(id) ON DELETE CASCADE
	);

	-- Alerts: persisted notification events
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL,
		target_id INTEGER,
		kind TEXT NOT NULL, -- down, up, slow, tls_expiry, maintenance, error, warning
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'normal',
		channels TEXT, -- JSON array
		sent BOOLEAN NOT NULL DEFAULT FALSE,
		sent_at DATETIME,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (target_id) REFERENCES targets(id) ON DELETE CASCADE
	);

	-- Activity logs: per-user audit trail
	CREATE TABLE IF NOT EXISTS activity_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL, -- users.external_id
		action TEXT NOT NULL,
		details TEXT, -- JSON
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Daily stats: one row per UTC calendar day
	CREATE TABLE IF NOT EXISTS daily_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stat_date TEXT UNIQUE NOT NULL, -- YYYY-MM-DD
		total_users INTEGER NOT NULL DEFAULT 0,
		active_users INTEGER NOT NULL DEFAULT 0,
		total_targets INTEGER NOT NULL DEFAULT 0,
		active_targets INTEGER NOT NULL DEFAULT 0,
		total_probes INTEGER NOT NULL DEFAULT 0,
		successful_probes INTEGER NOT NULL DEFAULT 0,
		failed_probes INTEGER NOT NULL DEFAULT 0,
		avg_response_time REAL,
		total_downtime_seconds REAL NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_external_id ON users(external_id);
	CREATE INDEX IF NOT EXISTS idx_users_status ON users(status);
	CREATE INDEX IF NOT EXISTS idx_targets_owner_id ON targets(owner_id);
	CREATE INDEX IF NOT EXISTS idx_targets_next_due_at ON targets(next_due_at);
	CREATE INDEX IF NOT EXISTS idx_targets_is_active ON targets(is_active, deleted);
	CREATE INDEX IF NOT EXISTS idx_probe_logs_target_timestamp ON probe_logs(target_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_alerts_owner_id ON alerts(owner_id);
	CREATE INDEX IF NOT EXISTS idx_alerts_target_id ON alerts(target_id);
	CREATE INDEX IF NOT EXISTS idx_alerts_sent ON alerts(sent);
	CREATE INDEX IF NOT EXISTS idx_activity_logs_user_id ON activity_logs(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_daily_stats_date ON daily_stats(stat_date);

	CREATE TRIGGER IF NOT EXISTS update_users_timestamp
		AFTER UPDATE ON users
		BEGIN
			UPDATE users SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;

	CREATE TRIGGER IF NOT EXISTS update_targets_timestamp
		AFTER UPDATE ON targets
		BEGIN
			UPDATE targets SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;

	CREATE TRIGGER IF NOT EXISTS update_daily_stats_timestamp
		AFTER UPDATE ON daily_stats
		BEGIN
			UPDATE daily_stats SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
		END;
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck() error {
	var result int
	err := db.Get(&result, "SELECT 1")
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// GetStats returns database statistics
func (db *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	tables := []string{"users", "targets", "probe_logs", "alerts", "activity_logs", "daily_stats"}

	for _, table := range tables {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := db.Get(&count, query); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table+"_count"] = count
	}

	var pages, pageSize int
	if err := db.Get(&pages, "PRAGMA page_count"); err == nil {
		if err := db.Get(&pageSize, "PRAGMA page_size"); err == nil {
			stats["database_size_bytes"] = pages * pageSize
		}
	}

	var walMode string
	if err := db.Get(&walMode, "PRAGMA journal_mode"); err == nil {
		stats["journal_mode"] = walMode
	}

	return stats, nil
}

// UserRepository returns a new user repository
func (db *DB) UserRepository() *UserRepository {
	return NewUserRepository(db)
}

// TargetRepository returns a new target repository
func (db *DB) TargetRepository() *TargetRepository {
	return NewTargetRepository(db)
}

// ProbeLogRepository returns a new probe log repository
func (db *DB) ProbeLogRepository() *ProbeLogRepository {
	return NewProbeLogRepository(db)
}

// AlertRepository returns a new alert repository
func (db *DB) AlertRepository() *AlertRepository {
	return NewAlertRepository(db)
}

// ActivityLogRepository returns a new activity log repository
func (db *DB) ActivityLogRepository() *ActivityLogRepository {
	return NewActivityLogRepository(db)
}

// DailyStatsRepository returns a new daily stats repository
func (db *DB) DailyStatsRepository() *DailyStatsRepository {
	return NewDailyStatsRepository(db)
}
