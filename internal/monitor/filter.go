// File: internal/monitor/filter.go
package monitor

import (
	"context"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
)

// recipient is one channel an alert is delivered to
type recipient struct {
	channelID   string
	mentionHere bool
	userIDs     []string
}

// chainGate selects the channel preference flag a chain level alert obeys
type chainGate func(pref *models.ChannelPreference) bool

func gateGovernance(pref *models.ChannelPreference) bool { return pref.GovernanceAlertsEnabled }
func gateUpgrade(pref *models.ChannelPreference) bool    { return pref.UpgradeAlertsEnabled }

// validatorAudience groups the enabled registrations of a validator by channel
func (m *Monitor) validatorAudience(ctx context.Context, key models.ValidatorKey) ([]*recipient, error) {
	registrations, err := m.storage.ListRegistrationsForValidator(ctx, key.ChainID, key.OperatorAddress)
	if err != nil {
		return nil, err
	}

	var out []*recipient
	byChannel := make(map[string]*recipient)
	for _, reg := range registrations {
		if !reg.NotificationsEnabled {
			continue
		}
		r, ok := byChannel[reg.ChannelID]
		if !ok {
			pref, err := m.preference(ctx, reg.ChannelID, key.ChainID)
			if err != nil {
				return nil, err
			}
			r = &recipient{channelID: reg.ChannelID, mentionHere: pref.MentionHereOnAlert}
			byChannel[reg.ChannelID] = r
			out = append(out, r)
		}
		if !slices.Contains(r.userIDs, reg.UserID) {
			r.userIDs = append(r.userIDs, reg.UserID)
		}
	}
	return out, nil
}

// chainAudience returns the channels following a chain whose preference passes gate
func (m *Monitor) chainAudience(ctx context.Context, chainID string, gate chainGate) ([]*recipient, error) {
	channels, err := m.storage.ListChannelsForChain(ctx, chainID)
	if err != nil {
		return nil, err
	}

	var out []*recipient
	for _, channelID := range channels {
		pref, err := m.preference(ctx, channelID, chainID)
		if err != nil {
			return nil, err
		}
		if !gate(pref) {
			continue
		}
		out = append(out, &recipient{channelID: channelID, mentionHere: pref.MentionHereOnAlert})
	}
	return out, nil
}

func (m *Monitor) preference(ctx context.Context, channelID, chainID string) (*models.ChannelPreference, error) {
	pref, err := m.storage.GetChannelPreference(ctx, channelID, chainID)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		pref = models.DefaultChannelPreference(channelID, chainID)
	}
	return pref, nil
}

func (m *Monitor) notifyValidator(ctx context.Context, key models.ValidatorKey, counters *tickCounters, alert *models.Alert) error {
	audience, err := m.validatorAudience(ctx, key)
	if err != nil {
		return err
	}
	m.emit(ctx, alert, audience, counters)
	return nil
}

func (m *Monitor) notifyChain(ctx context.Context, chainID string, gate chainGate, counters *tickCounters, alert *models.Alert) error {
	audience, err := m.chainAudience(ctx, chainID, gate)
	if err != nil {
		return err
	}
	m.emit(ctx, alert, audience, counters)
	return nil
}

// emit hands one copy of alert per recipient to the notifier. Only the first
// copy is mirrored to operator sinks.
func (m *Monitor) emit(ctx context.Context, alert *models.Alert, audience []*recipient, counters *tickCounters) {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = m.clock.Now()
	}
	counters.alerts.Add(1)
	if m.metrics != nil {
		m.metrics.GetPrometheusMetrics().RecordAlert(string(alert.Kind), string(alert.Severity))
	}
	if len(audience) == 0 {
		m.logger.WithFields(logrus.Fields{
			"chain": alert.ChainID,
			"kind":  alert.Kind,
		}).Debug("Alert has no recipients")
		return
	}

	for i, r := range audience {
		out := alert.Clone()
		out.ChannelID = r.channelID
		out.MentionHere = r.mentionHere
		out.MentionUserIDs = append([]string(nil), r.userIDs...)
		out.Mirror = i == 0
		m.notifier.Notify(ctx, out)
	}
}
