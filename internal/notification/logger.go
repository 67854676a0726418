// File: internal/notification/logger.go
package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// LogSender writes alerts to the application log. It stands in for Discord
// when chat delivery is disabled.
type LogSender struct {
	logger *logrus.Entry
}

// NewLogSender creates a log sender on the global logger
func NewLogSender() *LogSender {
	return &LogSender{logger: utils.GetLogger().WithField("component", "alert_log")}
}

// WithLogger replaces the logger
func (ls *LogSender) WithLogger(logger *logrus.Logger) *LogSender {
	ls.logger = logger.WithField("component", "alert_log")
	return ls
}

// Name implements Sender
func (ls *LogSender) Name() string { return "log" }

// Send implements Sender
func (ls *LogSender) Send(_ context.Context, alert *models.Alert) error {
	entry := ls.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"kind":     alert.Kind,
		"severity": alert.Severity,
		"chain":    alert.ChainID,
		"channel":  alert.ChannelID,
		"subject":  alert.Subject,
	})
	for _, f := range alert.Fields {
		entry = entry.WithField("field."+f.Name, f.Value)
	}

	switch alert.Severity {
	case models.SeverityCritical:
		entry.Error(alert.Title)
	case models.SeverityWarning:
		entry.Warn(alert.Title)
	default:
		entry.Info(alert.Title)
	}
	return nil
}
