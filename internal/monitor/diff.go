package monitor

import (
	"fmt"
	"strconv"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/chain"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// diffValidator compares two observations of the same validator. A missing
// prev is a first observation and never alerts. missedThreshold 0 disables
// the missed block check.
func diffValidator(prev, next *models.ValidatorSnapshot, missedThreshold int64, chainCfg *config.ChainConfig) []*models.Alert {
	if prev == nil {
		return nil
	}

	var alerts []*models.Alert
	switch {
	case !prev.Jailed && next.Jailed:
		alert := validatorAlert(models.AlertKindJailed, models.SeverityCritical, next, chainCfg, "Validator Jailed")
		alert.Description = fmt.Sprintf("**%s** has been jailed and removed from the active set.", next.Moniker)
		alerts = append(alerts, alert)
	case prev.Jailed && !next.Jailed:
		alert := validatorAlert(models.AlertKindUnjailed, models.SeverityInfo, next, chainCfg, "Validator Unjailed")
		alert.Description = fmt.Sprintf("**%s** is no longer jailed.", next.Moniker)
		alerts = append(alerts, alert)
	}

	if prev.BondingStatus != next.BondingStatus {
		alert := validatorAlert(models.AlertKindStatusChanged, models.SeverityWarning, next, chainCfg, "Validator Status Changed")
		alert.Description = fmt.Sprintf("Status changed from %s to %s.", prev.BondingStatus.Label(), next.BondingStatus.Label())
		alert.AddField("Previous Status", prev.BondingStatus.Label(), true)
		alert.AddField("Current Status", next.BondingStatus.Label(), true)
		alerts = append(alerts, alert)
	}

	// an unknown count on either side cannot establish a crossing
	if missedThreshold > 0 && prev.MissedBlocksCount != nil && next.MissedBlocksCount != nil &&
		prev.MissedBlocks() < missedThreshold && next.MissedBlocks() >= missedThreshold {
		alert := validatorAlert(models.AlertKindMissedBlocks, models.SeverityWarning, next, chainCfg, "Missed Blocks Threshold Exceeded")
		alert.Description = fmt.Sprintf("**%s** has missed %d blocks in the signing window.", next.Moniker, next.MissedBlocks())
		alert.AddField("Missed Blocks", strconv.FormatInt(next.MissedBlocks(), 10), true)
		alert.AddField("Threshold", strconv.FormatInt(missedThreshold, 10), true)
		alerts = append(alerts, alert)
	}
	return alerts
}

func newAlert(kind models.AlertKind, severity models.Severity, chainID, subject, title string) *models.Alert {
	return &models.Alert{
		ID:       utils.GenerateID(),
		Kind:     kind,
		Severity: severity,
		ChainID:  chainID,
		Subject:  subject,
		Title:    title,
	}
}

func validatorAlert(kind models.AlertKind, severity models.Severity, snap *models.ValidatorSnapshot, chainCfg *config.ChainConfig, title string) *models.Alert {
	alert := newAlert(kind, severity, snap.ChainID, snap.OperatorAddress, title)
	alert.CreatedAt = snap.ObservedAt
	alert.AddField("Validator", snap.Moniker, true)
	alert.AddField("Chain", chainName(chainCfg), true)
	alert.AddField("Status", snap.BondingStatus.Label(), true)
	alert.AddField("Stake", models.FormatTokens(snap.Tokens, chainCfg.Decimals, chainCfg.Denom), true)
	alert.AddField("Operator Address", snap.OperatorAddress, false)
	return alert
}

func fetchFailureAlert(chainID, subject, what string, count int, err error) *models.Alert {
	alert := newAlert(models.AlertKindFetchFailure, models.SeverityWarning, chainID, subject, "Data Retrieval Failing")
	alert.Description = fmt.Sprintf("Could not fetch %s for %d consecutive polls.", what, count)
	alert.AddField("Error Kind", string(chain.Classify(err)), true)
	alert.AddField("Consecutive Failures", strconv.Itoa(count), true)
	return alert
}

func recoveryAlert(chainID, subject, what string) *models.Alert {
	alert := newAlert(models.AlertKindFetchRecovered, models.SeverityInfo, chainID, subject, "Data Retrieval Recovered")
	alert.Description = fmt.Sprintf("Fetching %s succeeded again.", what)
	return alert
}

func chainName(chainCfg *config.ChainConfig) string {
	if chainCfg.Name != "" {
		return chainCfg.Name
	}
	return chainCfg.ChainID
}
