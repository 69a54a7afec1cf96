package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/retry"
)

// TLS opens a TLS connection on port 443 with certificate verification
// disabled (so an expired or self-signed certificate can still be
// inspected), parses the leaf certificate the same way the teacher's ACME
// client parses issued certificates, and reports days remaining until
// expiry. success ⇔ now falls within [NotBefore, NotAfter].
func TLS(ctx context.Context, spec Spec) Result {
	addr := tlsAddress(spec.URL)
	host, _, _ := net.SplitHostPort(addr)

	var result Result
	var attempts int

	err := retry.Do(ctx, spec.RetryCount+1, spec.RetryDelay, func(attempt int) error {
		attempts = attempt + 1
		start := time.Now()
		res, dialErr := inspectCertificate(ctx, addr, host, spec.Timeout)
		res.ResponseTime = time.Since(start)
		result = res
		if isSemanticTLSClass(res.ErrorClass) {
			return nil
		}
		return dialErr
	})

	result.RetryCount = attempts - 1
	if err != nil && result.ErrorClass == "" {
		result.ErrorClass = ErrClassUnknown
	}
	return result
}

func inspectCertificate(ctx context.Context, addr, sni string, timeout time.Duration) (Result, error) {
	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         sni,
	})
	if err != nil {
		r := Result{Success: false, ErrorMessage: err.Error()}
		if isTimeoutErr(err) {
			r.ErrorClass = ErrClassTimeout
		} else {
			r.ErrorClass = ErrClassConnectFailed
		}
		return r, err
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return Result{Success: false, ErrorClass: ErrClassTLSInvalid, ErrorMessage: "no peer certificates presented"}, errNoCertificates
	}

	cert := certs[0]
	meta := newTLSMeta(cert, true)

	if time.Now().Before(cert.NotBefore) || time.Now().After(cert.NotAfter) {
		return Result{
			Success:      false,
			ErrorClass:   ErrClassTLSExpired,
			ErrorMessage: "certificate is not currently valid",
			TLS:          meta,
		}, errCertNotValid
	}

	return Result{Success: true, TLS: meta}, nil
}

// newTLSMeta builds the TLSMeta carrier from a leaf certificate. Shared by
// the dedicated TLS probe and the HTTP(S) probe's handshake capture, so both
// report the same fields the same way.
func newTLSMeta(cert *x509.Certificate, verified bool) *TLSMeta {
	return &TLSMeta{
		Verified:      verified,
		Issuer:        cert.Issuer.CommonName,
		Subject:       cert.Subject.CommonName,
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		DaysRemaining: int(cert.NotAfter.Sub(time.Now()).Hours() / 24),
	}
}

// isSemanticTLSClass reports whether class is a certificate-state verdict
// rather than a transient connect/handshake failure. Semantic classes are
// not retried (spec.md §4.1/§7).
func isSemanticTLSClass(class string) bool {
	switch class {
	case ErrClassTLSInvalid, ErrClassTLSExpired:
		return true
	default:
		return false
	}
}

// tlsAddress extracts a host:port pair from a raw target URL, defaulting to
// port 443 when the URL carries none. Unlike tcpAddress, which defaults to
// 80 for the generic TCP probe.
func tlsAddress(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		if u.Port() != "" {
			return u.Host
		}
		return net.JoinHostPort(u.Hostname(), "443")
	}

	host := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "443")
}

const (
	errNoCertificates = probeError("no peer certificates")
	errCertNotValid   = probeError("certificate not valid now")
)
