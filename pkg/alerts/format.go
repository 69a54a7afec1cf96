package alerts

import (
	"fmt"
	"html"
	"time"

	"github.com/watchkeep/uptime-monitor/pkg/database"
	"github.com/watchkeep/uptime-monitor/pkg/recorder"
)

// buildAlert renders an intent into the persisted Alert row shape. Target
// fields are HTML-escaped since the delivered body uses HTML-style markup.
func buildAlert(intent recorder.AlertIntent, maxRetries int) *database.Alert {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	kind, title, body := formatIntent(intent)
	targetID := intent.TargetID

	return &database.Alert{
		OwnerID:    intent.OwnerID,
		TargetID:   &targetID,
		Kind:       kind,
		Title:      title,
		Body:       body,
		Priority:   priorityFor(kind),
		MaxRetries: maxRetries,
	}
}

func formatIntent(intent recorder.AlertIntent) (database.AlertKind, string, string) {
	name := html.EscapeString(intent.TargetName)

	switch intent.Kind {
	case recorder.IntentDown:
		return database.AlertKindDown,
			fmt.Sprintf("%s is down", intent.TargetName),
			fmt.Sprintf("<b>%s</b> stopped responding.", name)
	case recorder.IntentUp:
		return database.AlertKindUp,
			fmt.Sprintf("%s recovered", intent.TargetName),
			fmt.Sprintf("<b>%s</b> is back up after %s of downtime.", name, intent.DowntimeDuration.Round(time.Second))
	case recorder.IntentSlow:
		return database.AlertKindSlow,
			fmt.Sprintf("%s is responding slowly", intent.TargetName),
			fmt.Sprintf("<b>%s</b> responded in %s.", name, intent.ResponseTime.Round(time.Millisecond))
	case recorder.IntentTLSExpiring:
		return database.AlertKindTLSExpiry,
			fmt.Sprintf("%s certificate expiring soon", intent.TargetName),
			fmt.Sprintf("<b>%s</b>'s TLS certificate expires in %d day(s).", name, intent.TLSDaysRemaining)
	default:
		return database.AlertKindWarning, "unrecognized alert", "unrecognized alert intent"
	}
}

func priorityFor(kind database.AlertKind) string {
	if kind == database.AlertKindDown {
		return "high"
	}
	return "normal"
}
