package probe

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/retry"
)

// TCP parses host:port from spec.URL (default port 80 when absent), opens a
// connection, and reports connect latency. success ⇔ the connection
// established within the timeout.
func TCP(ctx context.Context, spec Spec) Result {
	addr := tcpAddress(spec.URL)

	var result Result
	var attempts int

	err := retry.Do(ctx, spec.RetryCount+1, spec.RetryDelay, func(attempt int) error {
		attempts = attempt + 1
		dialer := net.Dialer{Timeout: spec.Timeout}
		start := time.Now()
		conn, dialErr := dialer.DialContext(ctx, "tcp", addr)
		elapsed := time.Since(start)

		if dialErr != nil {
			result = Result{
				Success:      false,
				ResponseTime: elapsed,
				ConnectTime:  &elapsed,
				ErrorMessage: dialErr.Error(),
			}
			if isTimeoutErr(dialErr) {
				result.ErrorClass = ErrClassTimeout
			} else {
				result.ErrorClass = ErrClassConnectFailed
			}
			return dialErr
		}
		conn.Close()

		result = Result{
			Success:      true,
			ResponseTime: elapsed,
			ConnectTime:  &elapsed,
			ResolvedIP:   remoteHost(conn),
		}
		return nil
	})

	result.RetryCount = attempts - 1
	if err != nil && result.ErrorClass == "" {
		result.ErrorClass = ErrClassUnknown
	}
	return result
}

// tcpAddress extracts a host:port pair from a raw target URL, defaulting
// to port 80 when the URL carries none.
func tcpAddress(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		if u.Port() != "" {
			return u.Host
		}
		return net.JoinHostPort(u.Hostname(), "80")
	}

	host := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "80")
}

func remoteHost(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
