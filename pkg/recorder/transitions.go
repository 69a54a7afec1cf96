package recorder

import (
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/database"
	"github.com/watchkeep/uptime-monitor/pkg/probe"
)

// AlertIntentKind is the closed set of notification triggers the transition
// detector can emit.
type AlertIntentKind string

const (
	IntentDown        AlertIntentKind = "down"
	IntentUp          AlertIntentKind = "up"
	IntentSlow        AlertIntentKind = "slow"
	IntentTLSExpiring AlertIntentKind = "tls_expiring"
)

// AlertIntent is a candidate notification raised by one probe cycle. The
// alert pipeline (pkg/alerts) turns zero or more of these into persisted,
// delivered Alerts; it owns cooldown and rate-limiting, not this package.
type AlertIntent struct {
	Kind             AlertIntentKind
	TargetID         int
	TargetUUID       string
	OwnerID          int64
	TargetName       string
	DowntimeDuration time.Duration // set only for IntentUp
	ResponseTime     time.Duration // set only for IntentSlow
	TLSDaysRemaining int           // set only for IntentTLSExpiring
}

// DetectTransitions is purely functional: oldWasUp and oldDowntimeStart
// describe the target's state immediately before this probe (the caller
// must capture them before Record mutates the target), so the resulting
// intents reflect the transition that just happened, not the state after
// it. Multiple intents per probe are possible, e.g. a successful-but-slow
// probe against a target whose certificate is also near expiry.
func DetectTransitions(oldWasUp bool, oldDowntimeStart *time.Time, result probe.Result, target *database.Target, now time.Time) []AlertIntent {
	var intents []AlertIntent

	base := AlertIntent{
		TargetID:   target.ID,
		TargetUUID: target.UUID,
		OwnerID:    target.OwnerID,
		TargetName: target.DisplayName,
	}

	if oldWasUp && !result.Success && target.AlertOnDown {
		intent := base
		intent.Kind = IntentDown
		intents = append(intents, intent)
	}

	if !oldWasUp && result.Success && target.AlertOnRecovery {
		intent := base
		intent.Kind = IntentUp
		if oldDowntimeStart != nil {
			intent.DowntimeDuration = now.Sub(*oldDowntimeStart)
		}
		intents = append(intents, intent)
	}

	if result.Success && target.AlertOnSlow && result.ResponseTime.Seconds() > target.SlowThreshold {
		intent := base
		intent.Kind = IntentSlow
		intent.ResponseTime = result.ResponseTime
		intents = append(intents, intent)
	}

	if result.TLS != nil && result.TLS.DaysRemaining <= 30 {
		intent := base
		intent.Kind = IntentTLSExpiring
		intent.TLSDaysRemaining = result.TLS.DaysRemaining
		intents = append(intents, intent)
	}

	return intents
}
