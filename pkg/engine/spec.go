package engine

import (
	"fmt"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/database"
	"github.com/watchkeep/uptime-monitor/pkg/probe"
)

// buildProbeSpec translates a persisted Target into the decoupled probe.Spec
// the probe family understands.
func buildProbeSpec(target *database.Target) (probe.Spec, error) {
	codes, err := target.UnmarshalExpectedStatusCodes()
	if err != nil {
		return probe.Spec{}, fmt.Errorf("failed to parse expected status codes: %w", err)
	}

	headers, err := target.UnmarshalHeaders()
	if err != nil {
		return probe.Spec{}, fmt.Errorf("failed to parse custom headers: %w", err)
	}

	var expectedContent, requestBody string
	if target.ExpectedContent != nil {
		expectedContent = *target.ExpectedContent
	}
	if target.RequestBody != nil {
		requestBody = *target.RequestBody
	}

	return probe.Spec{
		URL:                 target.URL,
		Kind:                string(target.Kind),
		HTTPMethod:          target.HTTPMethod,
		Timeout:             time.Duration(target.Timeout) * time.Second,
		RetryCount:          target.RetryCount,
		RetryDelay:          time.Duration(target.RetryDelay) * time.Second,
		ExpectedStatusCodes: codes,
		ExpectedContent:     expectedContent,
		Headers:             headers,
		RequestBody:         requestBody,
	}, nil
}

// probeBudget bounds a single probe's wall-clock time, per spec.md §4.1:
// timeout × (retries+1) + sum(retry delays), with headroom for scheduling
// jitter.
func probeBudget(spec probe.Spec) time.Duration {
	attempts := time.Duration(spec.RetryCount + 1)
	var delays time.Duration
	for i := 0; i < spec.RetryCount; i++ {
		delays += spec.RetryDelay * time.Duration(1<<uint(i))
	}
	return spec.Timeout*attempts + delays + 2*time.Second
}
