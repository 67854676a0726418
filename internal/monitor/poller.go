// File: internal/monitor/poller.go
package monitor

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/chain"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/storage"
)

// pollChain runs the validator, governance and upgrade polls of one chain in
// order. It returns only errors that must abort the tick.
func (m *Monitor) pollChain(ctx context.Context, chainCfg *config.ChainConfig, operators []string, counters *tickCounters) error {
	for _, addr := range operators {
		if ctx.Err() != nil {
			return nil
		}
		if err := m.pollValidator(ctx, chainCfg, addr, counters); err != nil {
			return err
		}
	}

	if !m.config.Governance.Enabled && !m.config.Governance.UpgradeEnabled {
		return nil
	}

	state, err := m.storage.GetChainState(ctx, chainCfg.ChainID)
	if err != nil {
		return err
	}
	if state == nil {
		state = &models.ChainState{ChainID: chainCfg.ChainID}
	}

	if m.config.Governance.Enabled && ctx.Err() == nil {
		if err := m.pollGovernance(ctx, chainCfg, state, counters); err != nil {
			return err
		}
	}
	if m.config.Governance.UpgradeEnabled && ctx.Err() == nil {
		if err := m.pollUpgrade(ctx, chainCfg, state, counters); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) pollValidator(ctx context.Context, chainCfg *config.ChainConfig, operatorAddress string, counters *tickCounters) error {
	key := models.ValidatorKey{ChainID: chainCfg.ChainID, OperatorAddress: operatorAddress}
	entity := storage.ValidatorEntity(operatorAddress)

	info, err := m.client.GetValidator(ctx, chainCfg, operatorAddress)
	if err != nil {
		return m.handleFetchFailure(ctx, chainCfg, entity, err, counters, func(count int) error {
			alert := fetchFailureAlert(chainCfg.ChainID, operatorAddress, "validator "+operatorAddress, count, err)
			return m.notifyValidator(ctx, key, counters, alert)
		})
	}
	counters.polled.Add(1)
	if m.metrics != nil {
		m.metrics.GetPrometheusMetrics().RecordValidatorPolled(chainCfg.ChainID)
	}

	next := info.Snapshot(chainCfg.ChainID, m.clock.Now())
	prev, err := m.storage.GetValidatorSnapshot(ctx, key.ChainID, key.OperatorAddress)
	if err != nil {
		return err
	}

	threshold := int64(0)
	if chainCfg.MissedBlocksSupported {
		threshold = chainCfg.MissedBlockThreshold
	}
	alerts := diffValidator(prev, next, threshold, chainCfg)

	var audience []*recipient
	if len(alerts) > 0 {
		if audience, err = m.validatorAudience(ctx, key); err != nil {
			return err
		}
	}

	if err := m.storage.SaveValidatorSnapshot(ctx, next); err != nil {
		return err
	}

	logger := m.logger.WithFields(logrus.Fields{
		"chain":     key.ChainID,
		"validator": key.OperatorAddress,
	})
	if prev == nil {
		logger.WithField("moniker", next.Moniker).Info("Stored baseline snapshot")
	}
	for _, alert := range alerts {
		logger.WithFields(logrus.Fields{
			"kind":       alert.Kind,
			"recipients": len(audience),
		}).Info("Validator transition detected")
		m.emit(ctx, alert, audience, counters)
	}

	return m.handleFetchSuccess(ctx, chainCfg, entity, func() error {
		alert := recoveryAlert(chainCfg.ChainID, operatorAddress, "validator "+next.Moniker)
		return m.notifyValidator(ctx, key, counters, alert)
	})
}

// handleFetchFailure counts a failed fetch and calls onThreshold exactly when
// the consecutive count reaches the configured threshold.
func (m *Monitor) handleFetchFailure(
	ctx context.Context,
	chainCfg *config.ChainConfig,
	entity string,
	fetchErr error,
	counters *tickCounters,
	onThreshold func(count int) error,
) error {
	// cancellation is not a chain failure
	if ctx.Err() != nil {
		return nil
	}
	kind := chain.Classify(fetchErr)
	if kind == chain.KindCanceled {
		return nil
	}
	counters.failures.Add(1)

	count, err := m.storage.IncrementFailureCount(ctx, chainCfg.ChainID, entity, fetchErr.Error())
	if err != nil {
		return err
	}

	logger := m.logger.WithFields(logrus.Fields{
		"chain":                chainCfg.ChainID,
		"entity":               entity,
		"error_kind":           kind,
		"consecutive_failures": count,
	}).WithError(fetchErr)
	if kind == chain.KindMalformed {
		logger.Error("Chain returned a malformed response")
	} else {
		logger.Warn("Chain fetch failed")
	}

	if m.metrics != nil {
		pm := m.metrics.GetPrometheusMetrics()
		pm.RecordFetchError(chainCfg.ChainID, entityLabel(entity), string(kind))
		if entity == storage.EntityGovernance || entity == storage.EntityUpgrade {
			pm.SetConsecutiveFailures(chainCfg.ChainID, entity, count)
		}
	}

	if count == m.config.Monitor.ConsecutiveFailureThreshold {
		return onThreshold(count)
	}
	return nil
}

// handleFetchSuccess resets the failure counter and calls onRecovered when a
// failure alert had been raised for the entity.
func (m *Monitor) handleFetchSuccess(ctx context.Context, chainCfg *config.ChainConfig, entity string, onRecovered func() error) error {
	previous, err := m.storage.ResetFailureCount(ctx, chainCfg.ChainID, entity)
	if err != nil {
		return err
	}
	if m.metrics != nil && (entity == storage.EntityGovernance || entity == storage.EntityUpgrade) {
		m.metrics.GetPrometheusMetrics().SetConsecutiveFailures(chainCfg.ChainID, entity, 0)
	}
	if previous >= m.config.Monitor.ConsecutiveFailureThreshold {
		m.logger.WithFields(logrus.Fields{
			"chain":             chainCfg.ChainID,
			"entity":            entity,
			"previous_failures": previous,
		}).Info("Chain fetch recovered")
		return onRecovered()
	}
	return nil
}

func entityLabel(entity string) string {
	if entity == storage.EntityGovernance || entity == storage.EntityUpgrade {
		return entity
	}
	return "validator"
}
