// Package probe implements the four stateless probe kinds a Target can
// request: HTTP(S), TCP, DNS, and TLS. Each probe is a pure function of
// (Target, now) to a Result; none of them touch the database.
package probe

import "time"

// TLSMeta carries certificate inspection results as dedicated typed fields,
// not folded into the generic headers map.
type TLSMeta struct {
	Verified      bool
	Issuer        string
	Subject       string
	NotBefore     time.Time
	NotAfter      time.Time
	DaysRemaining int
}

// Result is what every probe kind returns.
type Result struct {
	Success       bool
	StatusCode    *int
	ResponseTime  time.Duration
	ResponseSize  int64
	ErrorClass    string
	ErrorMessage  string
	DNSTime       *time.Duration
	ConnectTime   *time.Duration
	ResolvedIP    string
	TLS           *TLSMeta
	Headers       map[string]string
	RetryCount    int
}

// Error classes returned in Result.ErrorClass. These are stable tokens, not
// free-form strings, so the transition detector and recorder can branch on
// them without string-matching heuristics.
const (
	ErrClassTimeout       = "timeout"
	ErrClassConnectFailed = "connect_failed"
	ErrClassDNSNXDomain   = "dns_nxdomain"
	ErrClassDNSNoAnswer   = "dns_no_answer"
	ErrClassDNSTimeout    = "dns_timeout"
	ErrClassHTTPStatus    = "http_status"
	ErrClassContentMatch  = "content_mismatch"
	ErrClassTLSInvalid    = "tls_invalid"
	ErrClassTLSExpired    = "tls_expired"
	ErrClassUnknown       = "unknown"
	ErrClassEngineFault   = "engine_fault"
)

// Spec is the subset of Target fields a probe needs, decoupled from the
// database package so pkg/probe has no persistence dependency.
type Spec struct {
	URL                 string
	Kind                string // http, https, tcp, dns, tls
	HTTPMethod          string
	Timeout             time.Duration
	RetryCount          int
	RetryDelay          time.Duration
	ExpectedStatusCodes []int
	ExpectedContent     string
	Headers             map[string]string
	RequestBody         string
	DNSRecordType       string // default "A"
}

func defaultUserAgent() string {
	return "uptime-monitor-probe/1.0"
}
