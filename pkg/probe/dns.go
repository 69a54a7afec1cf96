package probe

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/watchkeep/uptime-monitor/pkg/retry"
)

// DNS extracts the bare host from spec.URL and resolves it, defaulting to
// an A record lookup unless spec.DNSRecordType names another type.
// NXDOMAIN, empty-answer, and timeout are reported as distinct failure
// classes per spec.md §4.1.
func DNS(ctx context.Context, spec Spec) Result {
	host := bareHost(spec.URL)
	qtype := dns.TypeA
	if spec.DNSRecordType != "" {
		if t, ok := dns.StringToType[strings.ToUpper(spec.DNSRecordType)]; ok {
			qtype = t
		}
	}

	var result Result
	var attempts int

	err := retry.Do(ctx, spec.RetryCount+1, spec.RetryDelay, func(attempt int) error {
		attempts = attempt + 1
		start := time.Now()
		res, resolveErr := resolve(ctx, host, qtype, spec.Timeout)
		elapsed := time.Since(start)
		res.ResponseTime = elapsed
		res.DNSTime = &elapsed
		result = res
		if res.ErrorClass == ErrClassDNSNXDomain || res.ErrorClass == ErrClassDNSNoAnswer {
			return nil // NXDOMAIN/no-answer is semantic, not retried
		}
		return resolveErr
	})

	result.RetryCount = attempts - 1
	if err != nil && result.ErrorClass == "" {
		result.ErrorClass = ErrClassUnknown
	}
	return result
}

func resolve(ctx context.Context, host string, qtype uint16, timeout time.Duration) (Result, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	client := &dns.Client{Timeout: timeout}
	resolver := systemResolver()

	resp, _, err := client.ExchangeContext(ctx, m, resolver)
	if err != nil {
		r := Result{Success: false, ErrorMessage: err.Error()}
		if isTimeoutErr(err) {
			r.ErrorClass = ErrClassDNSTimeout
		} else {
			r.ErrorClass = ErrClassConnectFailed
		}
		return r, err
	}

	switch resp.Rcode {
	case dns.RcodeNameError:
		return Result{Success: false, ErrorClass: ErrClassDNSNXDomain, ErrorMessage: "NXDOMAIN"}, errNXDomain
	case dns.RcodeSuccess:
		if len(resp.Answer) == 0 {
			return Result{Success: false, ErrorClass: ErrClassDNSNoAnswer, ErrorMessage: "no answer records"}, errNoAnswer
		}
		return Result{Success: true, ResolvedIP: firstAnswer(resp.Answer)}, nil
	default:
		return Result{Success: false, ErrorClass: ErrClassConnectFailed, ErrorMessage: dns.RcodeToString[resp.Rcode]}, errBadRcode
	}
}

func firstAnswer(answers []dns.RR) string {
	switch rr := answers[0].(type) {
	case *dns.A:
		return rr.A.String()
	case *dns.AAAA:
		return rr.AAAA.String()
	case *dns.CNAME:
		return rr.Target
	default:
		return rr.String()
	}
}

func bareHost(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	host := strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	if idx := strings.IndexAny(host, "/:"); idx != -1 {
		host = host[:idx]
	}
	return host
}

// systemResolver returns a well-known public resolver address, since this
// package resolves on behalf of targets and must not depend on the host's
// /etc/resolv.conf being reachable from a container.
func systemResolver() string {
	return "1.1.1.1:53"
}

type probeError string

func (e probeError) Error() string { return string(e) }

const (
	errNXDomain = probeError("nxdomain")
	errNoAnswer = probeError("no answer")
	errBadRcode = probeError("bad rcode")
)
