package targets

import (
	"strings"

	"github.com/goliatone/go-leadhooks/core"
)

// Match keeps the targets subscribed to eventType. A target bound to a form only
// matches leads captured by that form.
func Match(list []core.WebhookTarget, eventType core.EventType, formID string) []core.WebhookTarget {
	formID = strings.TrimSpace(formID)
	out := make([]core.WebhookTarget, 0, len(list))
	for _, target := range list {
		if !target.IsActive || !target.Subscribes(eventType) {
			continue
		}
		if target.FormID != "" && target.FormID != formID {
			continue
		}
		out = append(out, target)
	}
	return core.CloneTargets(out)
}
