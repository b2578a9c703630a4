package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/intake-agent/internal/appointment"
	"github.com/wolfman30/intake-agent/internal/bookings"
)

// collectedDisplay renders the "collected so far" block, or "" when nothing
// has been collected.
func collectedDisplay(c appointment.Context) string {
	collected := c.Collected()
	if len(collected) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("✓ Information collected so far:\n")
	for _, fv := range collected {
		fmt.Fprintf(&sb, "  • %s: %s\n", fv.Field.Label(), fv.Value)
	}
	sb.WriteString("\n")
	return sb.String()
}

func collectingMessage(c appointment.Context, missing []appointment.Field, questions string) string {
	return fmt.Sprintf("%sStill need: %s\n\n%s", collectedDisplay(c), appointment.Phrases(missing), questions)
}

func finalizedMessage(b bookings.Booking) string {
	headline := finalizedHeadline
	if b.Trigger == bookings.TriggerAllFields {
		headline = allFilledHeadline
	}
	if b.Confirmation == "" {
		return headline
	}
	return headline + "\n\n" + b.Confirmation
}
