package monitor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/storage"
)

// pollGovernance diffs the latest proposals of a chain against their stored
// snapshots. The first successful poll of a chain only seeds storage.
func (m *Monitor) pollGovernance(ctx context.Context, chainCfg *config.ChainConfig, state *models.ChainState, counters *tickCounters) error {
	proposals, err := m.client.GetProposals(ctx, chainCfg, m.config.Governance.ProposalWindow)
	if err != nil {
		return m.handleFetchFailure(ctx, chainCfg, storage.EntityGovernance, err, counters, func(count int) error {
			alert := fetchFailureAlert(chainCfg.ChainID, storage.EntityGovernance, "governance proposals", count, err)
			return m.notifyChain(ctx, chainCfg.ChainID, gateGovernance, counters, alert)
		})
	}

	now := m.clock.Now()
	seeding := state.GovernanceSeededAt == nil
	logger := m.logger.WithField("chain", chainCfg.ChainID)

	type proposalUpdate struct {
		snap  *models.ProposalSnapshot
		alert *models.Alert
	}
	updates := make([]proposalUpdate, 0, len(proposals))
	alerting := false
	for _, p := range proposals {
		prev, err := m.storage.GetProposalSnapshot(ctx, chainCfg.ChainID, p.ID)
		if err != nil {
			return err
		}
		u := proposalUpdate{snap: &models.ProposalSnapshot{
			ChainID:       chainCfg.ChainID,
			ProposalID:    p.ID,
			Status:        p.Status,
			Title:         p.Title,
			VotingEndTime: p.VotingEndTime,
			ObservedAt:    now,
		}}

		switch {
		case prev == nil:
			if !seeding {
				u.alert = newProposalAlert(chainCfg, u.snap)
			}
		case prev.Status == u.snap.Status:
		case prev.Status.IsRegression(u.snap.Status):
			logger.WithFields(logrus.Fields{
				"proposal_id":     p.ID,
				"stored_status":   prev.Status,
				"returned_status": u.snap.Status,
			}).Warn("Ignoring proposal status regression")
			u.snap.Status = prev.Status
		default:
			u.alert = proposalStatusAlert(chainCfg, prev.Status, u.snap)
		}
		alerting = alerting || u.alert != nil
		updates = append(updates, u)
	}

	var audience []*recipient
	if alerting {
		if audience, err = m.chainAudience(ctx, chainCfg.ChainID, gateGovernance); err != nil {
			return err
		}
	}

	// a proposal is stored and announced before the next one is touched
	for _, u := range updates {
		if err := m.storage.SaveProposalSnapshot(ctx, u.snap); err != nil {
			return err
		}
		if u.alert == nil {
			continue
		}
		logger.WithFields(logrus.Fields{
			"proposal_id": u.alert.Subject,
			"kind":        u.alert.Kind,
		}).Info("Governance transition detected")
		m.emit(ctx, u.alert, audience, counters)
	}
	if seeding {
		state.GovernanceSeededAt = &now
		if err := m.storage.SaveChainState(ctx, state); err != nil {
			return err
		}
		logger.WithField("proposals", len(updates)).Info("Seeded governance state")
	}

	return m.handleFetchSuccess(ctx, chainCfg, storage.EntityGovernance, func() error {
		alert := recoveryAlert(chainCfg.ChainID, storage.EntityGovernance, "governance proposals")
		return m.notifyChain(ctx, chainCfg.ChainID, gateGovernance, counters, alert)
	})
}

// pollUpgrade tracks the pending upgrade plan of a chain. Appearance or
// replacement of a plan alerts, and so does its disappearance.
func (m *Monitor) pollUpgrade(ctx context.Context, chainCfg *config.ChainConfig, state *models.ChainState, counters *tickCounters) error {
	plan, err := m.client.GetUpgradePlan(ctx, chainCfg)
	if err != nil {
		return m.handleFetchFailure(ctx, chainCfg, storage.EntityUpgrade, err, counters, func(count int) error {
			alert := fetchFailureAlert(chainCfg.ChainID, storage.EntityUpgrade, "the upgrade plan", count, err)
			return m.notifyChain(ctx, chainCfg.ChainID, gateUpgrade, counters, alert)
		})
	}

	now := m.clock.Now()
	seeding := state.UpgradeSeededAt == nil
	prev, err := m.storage.GetUpgradePlan(ctx, chainCfg.ChainID)
	if err != nil {
		return err
	}

	var alert *models.Alert
	switch {
	case plan != nil && prev == nil:
		if !seeding {
			alert = upgradeScheduledAlert(chainCfg, plan)
		}
	case plan != nil && !prev.SamePlan(plan):
		alert = upgradeScheduledAlert(chainCfg, plan)
	case plan == nil && prev != nil:
		alert = upgradeClearedAlert(chainCfg, prev)
	}

	var audience []*recipient
	if alert != nil {
		if audience, err = m.chainAudience(ctx, chainCfg.ChainID, gateUpgrade); err != nil {
			return err
		}
	}

	if plan != nil {
		plan.ChainID = chainCfg.ChainID
		plan.ObservedAt = now
		if err := m.storage.SaveUpgradePlan(ctx, plan); err != nil {
			return err
		}
	} else if prev != nil {
		if err := m.storage.DeleteUpgradePlan(ctx, chainCfg.ChainID); err != nil {
			return err
		}
	}
	if seeding {
		state.UpgradeSeededAt = &now
		if err := m.storage.SaveChainState(ctx, state); err != nil {
			return err
		}
	}

	if alert != nil {
		m.logger.WithFields(logrus.Fields{
			"chain": chainCfg.ChainID,
			"kind":  alert.Kind,
		}).Info("Upgrade plan transition detected")
		m.emit(ctx, alert, audience, counters)
	}

	return m.handleFetchSuccess(ctx, chainCfg, storage.EntityUpgrade, func() error {
		alert := recoveryAlert(chainCfg.ChainID, storage.EntityUpgrade, "the upgrade plan")
		return m.notifyChain(ctx, chainCfg.ChainID, gateUpgrade, counters, alert)
	})
}

func newProposalAlert(chainCfg *config.ChainConfig, snap *models.ProposalSnapshot) *models.Alert {
	alert := newAlert(models.AlertKindNewProposal, models.SeverityInfo, snap.ChainID, proposalSubject(snap.ProposalID), "New Governance Proposal")
	alert.CreatedAt = snap.ObservedAt
	alert.Description = fmt.Sprintf("**#%d: %s**", snap.ProposalID, snap.Title)
	alert.AddField("Chain", chainName(chainCfg), true)
	alert.AddField("Status", statusLabel(snap.Status), true)
	if snap.VotingEndTime != nil {
		alert.AddField("Voting Ends", snap.VotingEndTime.UTC().Format(time.RFC1123), false)
	}
	return alert
}

func proposalStatusAlert(chainCfg *config.ChainConfig, from models.ProposalStatus, snap *models.ProposalSnapshot) *models.Alert {
	severity := models.SeverityInfo
	if snap.Status == models.ProposalStatusVotingPeriod {
		severity = models.SeverityWarning
	}
	alert := newAlert(models.AlertKindProposalStatus, severity, snap.ChainID, proposalSubject(snap.ProposalID), "Proposal Status Changed")
	alert.CreatedAt = snap.ObservedAt
	alert.Description = fmt.Sprintf("**#%d: %s** moved from %s to %s.", snap.ProposalID, snap.Title, statusLabel(from), statusLabel(snap.Status))
	alert.AddField("Chain", chainName(chainCfg), true)
	alert.AddField("Previous Status", statusLabel(from), true)
	alert.AddField("Current Status", statusLabel(snap.Status), true)
	if snap.Status == models.ProposalStatusVotingPeriod && snap.VotingEndTime != nil {
		alert.AddField("Voting Ends", snap.VotingEndTime.UTC().Format(time.RFC1123), false)
	}
	return alert
}

func upgradeScheduledAlert(chainCfg *config.ChainConfig, plan *models.UpgradePlan) *models.Alert {
	alert := newAlert(models.AlertKindUpgradeScheduled, models.SeverityWarning, chainCfg.ChainID, plan.Name, "Upgrade Scheduled")
	alert.Description = fmt.Sprintf("Upgrade **%s** is scheduled at height %d.", plan.Name, plan.Height)
	alert.AddField("Chain", chainName(chainCfg), true)
	alert.AddField("Name", plan.Name, true)
	alert.AddField("Height", strconv.FormatInt(plan.Height, 10), true)
	if plan.Info != "" {
		alert.AddField("Info", truncate(plan.Info, 1000), false)
	}
	return alert
}

func upgradeClearedAlert(chainCfg *config.ChainConfig, prev *models.UpgradePlan) *models.Alert {
	alert := newAlert(models.AlertKindUpgradeCleared, models.SeverityInfo, chainCfg.ChainID, prev.Name, "Upgrade Plan Cleared")
	alert.Description = fmt.Sprintf("Upgrade **%s** at height %d was executed or cancelled.", prev.Name, prev.Height)
	alert.AddField("Chain", chainName(chainCfg), true)
	return alert
}

func proposalSubject(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func statusLabel(s models.ProposalStatus) string {
	switch s {
	case models.ProposalStatusDepositPeriod:
		return "Deposit Period"
	case models.ProposalStatusVotingPeriod:
		return "Voting Period"
	case models.ProposalStatusPassed:
		return "Passed"
	case models.ProposalStatusRejected:
		return "Rejected"
	case models.ProposalStatusFailed:
		return "Failed"
	}
	return string(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
