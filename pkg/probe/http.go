package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/retry"
)

// HTTP runs the configured method against spec.URL, following redirects,
// and reports success per spec.md §4.1: status in the expected set and,
// when configured, the body contains the expected substring. Network and
// timeout errors are retried with exponential backoff; HTTP responses and
// TLS verification failures are not.
func HTTP(ctx context.Context, spec Spec) Result {
	connectTimeout := spec.Timeout
	if connectTimeout > 10*time.Second {
		connectTimeout = 10 * time.Second
	}

	client := &http.Client{
		Timeout: spec.Timeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout: connectTimeout,
			DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return nil // follow redirects
		},
	}

	var result Result
	var attempts int

	err := retry.Do(ctx, spec.RetryCount+1, spec.RetryDelay, func(attempt int) error {
		attempts = attempt + 1
		start := time.Now()
		res, doErr := doHTTPRequest(ctx, client, spec)
		elapsed := time.Since(start)
		if doErr != nil {
			result = Result{
				Success:      false,
				ResponseTime: elapsed,
				ErrorMessage: doErr.Error(),
			}
			if isCertVerificationErr(doErr) {
				result.ErrorClass = ErrClassTLSInvalid
				return nil // certificate verification is semantic, not retried
			}
			if isTimeoutErr(doErr) {
				result.ErrorClass = ErrClassTimeout
			} else {
				result.ErrorClass = ErrClassConnectFailed
			}
			return doErr
		}
		res.ResponseTime = elapsed
		result = *res
		return nil // network succeeded; HTTP-level failures are not retried
	})

	result.RetryCount = attempts - 1
	if err != nil && result.ErrorClass == "" {
		result.ErrorClass = ErrClassUnknown
	}
	return result
}

func doHTTPRequest(ctx context.Context, client *http.Client, spec Spec) (*Result, error) {
	method := spec.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if spec.RequestBody != "" {
		body = bytes.NewBufferString(spec.RequestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, spec.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("User-Agent", defaultUserAgent())
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	statusCode := resp.StatusCode
	result := &Result{
		StatusCode:   &statusCode,
		ResponseSize: int64(len(data)),
		Headers:      headers,
	}

	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		// client's Transport carries no InsecureSkipVerify, so a response
		// reaching here already passed Go's certificate verification.
		result.TLS = newTLSMeta(resp.TLS.PeerCertificates[0], true)
	}

	statusOK := len(spec.ExpectedStatusCodes) == 0 || containsInt(spec.ExpectedStatusCodes, statusCode)
	contentOK := spec.ExpectedContent == "" || strings.Contains(string(data), spec.ExpectedContent)

	if !statusOK {
		result.Success = false
		result.ErrorClass = ErrClassHTTPStatus
		result.ErrorMessage = fmt.Sprintf("unexpected status code %d", statusCode)
		return result, nil
	}
	if !contentOK {
		result.Success = false
		result.ErrorClass = ErrClassContentMatch
		result.ErrorMessage = "response body did not contain expected content"
		return result, nil
	}

	result.Success = true
	return result, nil
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func isTimeoutErr(err error) bool {
	type timeoutErr interface{ Timeout() bool }
	if te, ok := err.(timeoutErr); ok {
		return te.Timeout()
	}
	return false
}

// isCertVerificationErr reports whether err is a TLS handshake failure
// caused by the peer's certificate itself (expired, wrong host, unknown
// authority) rather than a transient network problem. These are semantic
// failures (spec.md §4.1/§7): the result still reports an error, but the
// retry budget isn't spent on a certificate that won't change between
// attempts.
func isCertVerificationErr(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var hostErr x509.HostnameError
	var unknownAuthErr x509.UnknownAuthorityError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &hostErr) || errors.As(err, &unknownAuthErr) || errors.As(err, &invalidErr)
}
