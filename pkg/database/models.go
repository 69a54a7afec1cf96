package database

import (
	"encoding/json"
	"time"
)

// UserStatus is the closed set of lifecycle states a User can occupy.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"
)

// Valid reports whether s is one of the known UserStatus values.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended, UserStatusBanned:
		return true
	}
	return false
}

// TargetKind is the closed set of probe kinds a Target can request.
type TargetKind string

const (
	TargetKindHTTP  TargetKind = "http"
	TargetKindHTTPS TargetKind = "https"
	TargetKindTCP   TargetKind = "tcp"
	TargetKindDNS   TargetKind = "dns"
	TargetKindTLS   TargetKind = "tls"
)

func (k TargetKind) Valid() bool {
	switch k {
	case TargetKindHTTP, TargetKindHTTPS, TargetKindTCP, TargetKindDNS, TargetKindTLS:
		return true
	}
	return false
}

// AlertKind is the closed set of notification kinds the alert pipeline emits.
type AlertKind string

const (
	AlertKindDown        AlertKind = "down"
	AlertKindUp          AlertKind = "up"
	AlertKindSlow        AlertKind = "slow"
	AlertKindTLSExpiry   AlertKind = "tls_expiry"
	AlertKindMaintenance AlertKind = "maintenance"
	AlertKindError       AlertKind = "error"
	AlertKindWarning     AlertKind = "warning"
)

func (k AlertKind) Valid() bool {
	switch k {
	case AlertKindDown, AlertKindUp, AlertKindSlow, AlertKindTLSExpiry, AlertKindMaintenance, AlertKindError, AlertKindWarning:
		return true
	}
	return false
}

// User is identified by an external account id, not the surrogate key.
type User struct {
	ID               int        `db:"id" json:"id"`
	ExternalID       int64      `db:"external_id" json:"external_id"`
	Role             string     `db:"role" json:"role"`
	Status           UserStatus `db:"status" json:"status"`
	MaxTargets       int        `db:"max_targets" json:"max_targets"`
	MinProbeInterval int        `db:"min_probe_interval" json:"min_probe_interval"`
	LastActivityAt   *time.Time `db:"last_activity_at" json:"last_activity_at"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Target is a monitored endpoint owned by one User (by external id).
type Target struct {
	ID                   int        `db:"id" json:"id"`
	UUID                 string     `db:"uuid" json:"uuid"`
	OwnerID              int64      `db:"owner_id" json:"owner_id"`
	DisplayName          string     `db:"display_name" json:"display_name"`
	URL                  string     `db:"url" json:"url"`
	Kind                 TargetKind `db:"kind" json:"kind"`
	HTTPMethod           string     `db:"http_method" json:"http_method"`
	ProbeInterval        int        `db:"probe_interval" json:"probe_interval"`
	Timeout              int        `db:"timeout" json:"timeout"`
	RetryCount           int        `db:"retry_count" json:"retry_count"`
	RetryDelay           int        `db:"retry_delay" json:"retry_delay"`
	ExpectedStatusCodes  string     `db:"expected_status_codes" json:"expected_status_codes"` // JSON array
	ExpectedContent      *string    `db:"expected_content" json:"expected_content"`
	Headers              *string    `db:"headers" json:"headers"` // JSON string->string map
	RequestBody          *string    `db:"request_body" json:"request_body"`
	SlowThreshold        float64    `db:"slow_threshold" json:"slow_threshold"`
	AlertOnDown          bool       `db:"alert_on_down" json:"alert_on_down"`
	AlertOnRecovery      bool       `db:"alert_on_recovery" json:"alert_on_recovery"`
	AlertOnSlow          bool       `db:"alert_on_slow" json:"alert_on_slow"`
	IsActive             bool       `db:"is_active" json:"is_active"`
	IsUp                 bool       `db:"is_up" json:"is_up"`
	LastProbeAt          *time.Time `db:"last_probe_at" json:"last_probe_at"`
	NextDueAt            *time.Time `db:"next_due_at" json:"next_due_at"`
	LastStatusCode       *int       `db:"last_status_code" json:"last_status_code"`
	LastResponseTime     *float64   `db:"last_response_time" json:"last_response_time"`
	TotalProbes          int64      `db:"total_probes" json:"total_probes"`
	SuccessfulProbes     int64      `db:"successful_probes" json:"successful_probes"`
	FailedProbes         int64      `db:"failed_probes" json:"failed_probes"`
	UptimePercent        float64    `db:"uptime_percent" json:"uptime_percent"`
	MinResponseTime      *float64   `db:"min_response_time" json:"min_response_time"`
	AvgResponseTime      *float64   `db:"avg_response_time" json:"avg_response_time"`
	MaxResponseTime      *float64   `db:"max_response_time" json:"max_response_time"`
	TotalDowntimeSeconds float64    `db:"total_downtime_seconds" json:"total_downtime_seconds"`
	DowntimeEvents       int64      `db:"downtime_events" json:"downtime_events"`
	CurrentDowntimeStart *time.Time `db:"current_downtime_start" json:"current_downtime_start"`
	TLSExpiry            *time.Time `db:"tls_expiry" json:"tls_expiry"`
	TLSIssuer            *string    `db:"tls_issuer" json:"tls_issuer"`
	TLSDaysRemaining     *int       `db:"tls_days_remaining" json:"tls_days_remaining"`
	Deleted              bool       `db:"deleted" json:"deleted"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// MarshalExpectedStatusCodes converts codes to the JSON form stored in the column.
func MarshalExpectedStatusCodes(codes []int) (string, error) {
	if len(codes) == 0 {
		codes = []int{200}
	}
	data, err := json.Marshal(codes)
	return string(data), err
}

// UnmarshalExpectedStatusCodes parses the stored JSON array of status codes.
func (t *Target) UnmarshalExpectedStatusCodes() ([]int, error) {
	var codes []int
	if t.ExpectedStatusCodes == "" {
		return []int{200}, nil
	}
	if err := json.Unmarshal([]byte(t.ExpectedStatusCodes), &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

// MarshalHeaders converts a header map to its JSON column representation.
func MarshalHeaders(headers map[string]string) (*string, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(headers)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

// UnmarshalHeaders parses the stored JSON header map, if any.
func (t *Target) UnmarshalHeaders() (map[string]string, error) {
	if t.Headers == nil || *t.Headers == "" {
		return nil, nil
	}
	headers := make(map[string]string)
	if err := json.Unmarshal([]byte(*t.Headers), &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// ProbeLog is an append-only record of a single probe attempt.
type ProbeLog struct {
	ID            int64     `db:"id" json:"id"`
	TargetID      int       `db:"target_id" json:"target_id"`
	Timestamp     time.Time `db:"timestamp" json:"timestamp"`
	Success       bool      `db:"success" json:"success"`
	StatusCode    *int      `db:"status_code" json:"status_code"`
	ResponseTime  *float64  `db:"response_time" json:"response_time"`
	ResponseSize  *int64    `db:"response_size" json:"response_size"`
	ErrorClass    *string   `db:"error_class" json:"error_class"`
	ErrorMessage  *string   `db:"error_message" json:"error_message"`
	DNSTime       *float64  `db:"dns_time" json:"dns_time"`
	ConnectTime   *float64  `db:"connect_time" json:"connect_time"`
	ResolvedIP    *string   `db:"resolved_ip" json:"resolved_ip"`
	TLSVerified   *bool     `db:"tls_verified" json:"tls_verified"`
	RetryCount    int       `db:"retry_count" json:"retry_count"`
	Headers       *string   `db:"headers" json:"headers"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Alert is a persisted notification event.
type Alert struct {
	ID         int64     `db:"id" json:"id"`
	OwnerID    int64     `db:"owner_id" json:"owner_id"`
	TargetID   *int      `db:"target_id" json:"target_id"`
	Kind       AlertKind `db:"kind" json:"kind"`
	Title      string    `db:"title" json:"title"`
	Body       string    `db:"body" json:"body"`
	Priority   string    `db:"priority" json:"priority"`
	Channels   *string   `db:"channels" json:"channels"` // JSON array
	Sent       bool      `db:"sent" json:"sent"`
	SentAt     *time.Time `db:"sent_at" json:"sent_at"`
	RetryCount int       `db:"retry_count" json:"retry_count"`
	MaxRetries int       `db:"max_retries" json:"max_retries"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ActivityLog is an audit-trail row scoped to a user (by external id).
type ActivityLog struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Action    string    `db:"action" json:"action"`
	Details   *string   `db:"details" json:"details"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DailyStats aggregates user, target, and probe counters for one UTC day.
type DailyStats struct {
	ID                   int64     `db:"id" json:"id"`
	StatDate             string    `db:"stat_date" json:"stat_date"` // YYYY-MM-DD
	TotalUsers           int64     `db:"total_users" json:"total_users"`
	ActiveUsers          int64     `db:"active_users" json:"active_users"`
	TotalTargets         int64     `db:"total_targets" json:"total_targets"`
	ActiveTargets        int64     `db:"active_targets" json:"active_targets"`
	TotalProbes          int64     `db:"total_probes" json:"total_probes"`
	SuccessfulProbes     int64     `db:"successful_probes" json:"successful_probes"`
	FailedProbes         int64     `db:"failed_probes" json:"failed_probes"`
	AvgResponseTime      *float64  `db:"avg_response_time" json:"avg_response_time"`
	TotalDowntimeSeconds float64   `db:"total_downtime_seconds" json:"total_downtime_seconds"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}
