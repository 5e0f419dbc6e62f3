package messaging

import (
	"fmt"
	"strings"

	"github.com/healthbridge/triageflow/internal/models"
)

// Render flattens an outbound intent into plain message text. Channels without
// native buttons or lists get the options as a numbered block under the body;
// channels with interactive support can render the structured fields directly
// and skip this.
func Render(intent models.OutboundIntent) string {
	var b strings.Builder
	b.WriteString(intent.Body)

	if intent.Assessment != nil {
		a := intent.Assessment
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "Severity: %s (risk %.0f%%)\n", a.Severity, a.RiskScore*100)
		if len(a.Conditions) > 0 {
			b.WriteString("Possible causes: ")
			names := make([]string, 0, len(a.Conditions))
			for _, c := range a.Conditions {
				names = append(names, c.Name)
			}
			b.WriteString(strings.Join(names, ", "))
			b.WriteString("\n")
		}
		b.WriteString(a.Recommendation)
	}

	if len(intent.Buttons) > 0 {
		b.WriteString("\n")
		for i, btn := range intent.Buttons {
			fmt.Fprintf(&b, "\n%d. %s", i+1, btn.Title)
		}
	}

	for _, section := range intent.Sections {
		if section.Title != "" {
			b.WriteString("\n\n")
			b.WriteString(section.Title)
			b.WriteString(":")
		}
		for i, row := range section.Rows {
			fmt.Fprintf(&b, "\n%d. %s", i+1, row.Title)
			if row.Description != "" {
				fmt.Fprintf(&b, " (%s)", row.Description)
			}
		}
	}

	return strings.TrimSpace(b.String())
}
