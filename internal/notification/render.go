package notification

import (
	"fmt"
	"strings"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
)

func severityIcon(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "🚨"
	case models.SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}

// mentionLine renders the chat mentions that precede an alert
func mentionLine(alert *models.Alert) string {
	var parts []string
	if alert.MentionHere {
		parts = append(parts, "@here")
	}
	for _, id := range alert.MentionUserIDs {
		parts = append(parts, "<@"+id+">")
	}
	return strings.Join(parts, " ")
}

// RenderText renders an alert as plain text for text-only destinations
func RenderText(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s\n", severityIcon(alert.Severity), alert.Severity, alert.Title)
	if alert.ChainID != "" {
		fmt.Fprintf(&b, "Chain: %s\n", alert.ChainID)
	}
	if alert.Description != "" {
		b.WriteString(alert.Description)
		b.WriteByte('\n')
	}
	for _, f := range alert.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Name, f.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}
