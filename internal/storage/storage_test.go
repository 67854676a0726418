package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/metrics"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

func newTestStorage(t *testing.T) *SQLStorage {
	t.Helper()
	s := NewSQLiteStorage(&StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "test.db"),
	}).WithLogger(utils.NewDiscardLogger())
	require.NoError(t, s.Connect())
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestValidatorSnapshotRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	snap, err := s.GetValidatorSnapshot(ctx, "cosmoshub-4", "cosmosvaloper1a")
	require.NoError(t, err)
	assert.Nil(t, snap)

	missed := int64(12)
	observed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.SaveValidatorSnapshot(ctx, &models.ValidatorSnapshot{
		ChainID:           "cosmoshub-4",
		OperatorAddress:   "cosmosvaloper1a",
		Moniker:           "Alpha",
		Jailed:            true,
		BondingStatus:     models.BondStatusUnbonding,
		Tokens:            "1000",
		MissedBlocksCount: &missed,
		ObservedAt:        observed,
	}))

	snap, err = s.GetValidatorSnapshot(ctx, "cosmoshub-4", "cosmosvaloper1a")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "Alpha", snap.Moniker)
	assert.True(t, snap.Jailed)
	assert.Equal(t, models.BondStatusUnbonding, snap.BondingStatus)
	assert.Equal(t, int64(12), snap.MissedBlocks())
	assert.True(t, observed.Equal(snap.ObservedAt))

	// replaced, not merged
	require.NoError(t, s.SaveValidatorSnapshot(ctx, &models.ValidatorSnapshot{
		ChainID:         "cosmoshub-4",
		OperatorAddress: "cosmosvaloper1a",
		Moniker:         "Alpha",
		BondingStatus:   models.BondStatusBonded,
		Tokens:          "2000",
		ObservedAt:      observed.Add(time.Minute),
	}))
	snap, err = s.GetValidatorSnapshot(ctx, "cosmoshub-4", "cosmosvaloper1a")
	require.NoError(t, err)
	assert.False(t, snap.Jailed)
	assert.Nil(t, snap.MissedBlocksCount)
	assert.Equal(t, "2000", snap.Tokens)
	assert.True(t, observed.Add(time.Minute).Equal(snap.ObservedAt))
}

func TestProposalAndUpgradeSnapshots(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	end := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveProposalSnapshot(ctx, &models.ProposalSnapshot{
		ChainID: "juno-1", ProposalID: 42, Status: models.ProposalStatusVotingPeriod,
		Title: "Upgrade", VotingEndTime: &end, ObservedAt: time.Now(),
	}))
	p, err := s.GetProposalSnapshot(ctx, "juno-1", 42)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, models.ProposalStatusVotingPeriod, p.Status)
	require.NotNil(t, p.VotingEndTime)
	assert.True(t, end.Equal(*p.VotingEndTime))

	p, err = s.GetProposalSnapshot(ctx, "juno-1", 43)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, s.SaveUpgradePlan(ctx, &models.UpgradePlan{
		ChainID: "juno-1", Name: "v20", Height: 100, Info: "x", ObservedAt: time.Now(),
	}))
	plan, err := s.GetUpgradePlan(ctx, "juno-1")
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "v20", plan.Name)

	require.NoError(t, s.DeleteUpgradePlan(ctx, "juno-1"))
	plan, err = s.GetUpgradePlan(ctx, "juno-1")
	require.NoError(t, err)
	assert.Nil(t, plan)

	state, err := s.GetChainState(ctx, "juno-1")
	require.NoError(t, err)
	assert.Nil(t, state)
	now := time.Now().UTC()
	require.NoError(t, s.SaveChainState(ctx, &models.ChainState{ChainID: "juno-1", GovernanceSeededAt: &now}))
	state, err = s.GetChainState(ctx, "juno-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.NotNil(t, state.GovernanceSeededAt)
	assert.Nil(t, state.UpgradeSeededAt)
}

func TestFailureCounters(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		n, err := s.IncrementFailureCount(ctx, "juno-1", EntityGovernance, "timeout")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	prev, err := s.ResetFailureCount(ctx, "juno-1", EntityGovernance)
	require.NoError(t, err)
	assert.Equal(t, 3, prev)

	prev, err = s.ResetFailureCount(ctx, "juno-1", EntityGovernance)
	require.NoError(t, err)
	assert.Equal(t, 0, prev)

	n, err := s.IncrementFailureCount(ctx, "juno-1", EntityGovernance, "timeout")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegistrations(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	reg := &models.Registration{
		GuildID: "g", ChannelID: "c1", UserID: "u1",
		ChainID: "juno-1", OperatorAddress: "junovaloper1a", NotificationsEnabled: true,
	}
	require.NoError(t, s.CreateRegistration(ctx, reg))
	assert.NotZero(t, reg.ID)

	dup := *reg
	dup.ID = 0
	assert.ErrorIs(t, s.CreateRegistration(ctx, &dup), ErrConflict)

	require.NoError(t, s.CreateRegistration(ctx, &models.Registration{
		ChannelID: "c2", UserID: "u2", ChainID: "juno-1", OperatorAddress: "junovaloper1a", NotificationsEnabled: true,
	}))
	require.NoError(t, s.CreateRegistration(ctx, &models.Registration{
		ChannelID: "c2", UserID: "u2", ChainID: "juno-1", OperatorAddress: "junovaloper1b", NotificationsEnabled: false,
	}))

	keys, err := s.ListMonitoredValidators(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.ValidatorKey{{ChainID: "juno-1", OperatorAddress: "junovaloper1a"}}, keys)

	regs, err := s.ListRegistrationsForValidator(ctx, "juno-1", "junovaloper1a")
	require.NoError(t, err)
	assert.Len(t, regs, 2)

	regs, err = s.ListRegistrationsByUser(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, "junovaloper1a", regs[0].OperatorAddress)

	require.NoError(t, s.SetRegistrationNotifications(ctx, "u2", "juno-1", "junovaloper1b", true))
	got, err := s.GetRegistration(ctx, "u2", "juno-1", "junovaloper1b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.NotificationsEnabled)
	assert.ErrorIs(t, s.SetRegistrationNotifications(ctx, "u9", "juno-1", "junovaloper1b", true), ErrNotFound)

	channels, err := s.ListChannelsForChain(ctx, "juno-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, channels)

	n, err := s.CountRegistrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.DeleteRegistration(ctx, "u1", "juno-1", "junovaloper1a"))
	assert.ErrorIs(t, s.DeleteRegistration(ctx, "u1", "juno-1", "junovaloper1a"), ErrNotFound)
}

func TestChannelPreferences(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	pref, err := s.GetChannelPreference(ctx, "c1", "juno-1")
	require.NoError(t, err)
	assert.Nil(t, pref)

	require.NoError(t, s.SaveChannelPreference(ctx, &models.ChannelPreference{
		ChannelID: "c1", ChainID: "juno-1", GovernanceAlertsEnabled: false, UpgradeAlertsEnabled: true, MentionHereOnAlert: true,
	}))
	require.NoError(t, s.SaveChannelPreference(ctx, &models.ChannelPreference{
		ChannelID: "c1", ChainID: "osmosis-1", GovernanceAlertsEnabled: true,
	}))

	pref, err = s.GetChannelPreference(ctx, "c1", "juno-1")
	require.NoError(t, err)
	require.NotNil(t, pref)
	assert.False(t, pref.GovernanceAlertsEnabled)
	assert.True(t, pref.MentionHereOnAlert)

	prefs, err := s.ListChannelPreferences(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, "juno-1", prefs[0].ChainID)

	channels, err := s.ListChannelsForChain(ctx, "osmosis-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, channels)
}

func TestPruneOrphans(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, addr := range []string{"junovaloper1kept", "junovaloper1gone"} {
		require.NoError(t, s.SaveValidatorSnapshot(ctx, &models.ValidatorSnapshot{
			ChainID: "juno-1", OperatorAddress: addr, BondingStatus: models.BondStatusBonded,
			Tokens: "1", ObservedAt: time.Now(),
		}))
		_, err := s.IncrementFailureCount(ctx, "juno-1", ValidatorEntity(addr), "x")
		require.NoError(t, err)
	}
	_, err := s.IncrementFailureCount(ctx, "juno-1", EntityUpgrade, "x")
	require.NoError(t, err)
	require.NoError(t, s.CreateRegistration(ctx, &models.Registration{
		ChannelID: "c", UserID: "u", ChainID: "juno-1", OperatorAddress: "junovaloper1kept", NotificationsEnabled: true,
	}))

	res, err := s.PruneOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.ValidatorSnapshots)
	assert.Equal(t, int64(1), res.FailureCounters)

	snap, err := s.GetValidatorSnapshot(ctx, "juno-1", "junovaloper1kept")
	require.NoError(t, err)
	assert.NotNil(t, snap)
	snap, err = s.GetValidatorSnapshot(ctx, "juno-1", "junovaloper1gone")
	require.NoError(t, err)
	assert.Nil(t, snap)

	prev, err := s.ResetFailureCount(ctx, "juno-1", EntityUpgrade)
	require.NoError(t, err)
	assert.Equal(t, 1, prev)

	stats, err := s.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Registrations)
	assert.Equal(t, int64(1), stats.ValidatorSnapshots)
	assert.NotNil(t, stats.LatestObservation)
}

func TestStorageWithMetricsDelegates(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	wrapped := NewStorageWithMetrics(s, metrics.NewManager())

	require.NoError(t, wrapped.CreateRegistration(ctx, &models.Registration{
		ChannelID: "c", UserID: "u", ChainID: "juno-1", OperatorAddress: "junovaloper1a", NotificationsEnabled: true,
	}))
	n, err := wrapped.CountRegistrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPersistenceErrorWhenClosed(t *testing.T) {
	s := newTestStorage(t)
	db := s.db
	require.NoError(t, db.Close())

	_, err := s.GetValidatorSnapshot(context.Background(), "juno-1", "x")
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = $1 AND b = $2", postgresDialect.rebind("a = ? AND b = ?"))
	assert.Equal(t, "a = ?", sqliteDialect.rebind("a = ?"))
}

func TestNewStorageFactory(t *testing.T) {
	s, err := NewStorage(&config.StorageConfig{Type: "sqlite", ConnectionString: "x.db"})
	require.NoError(t, err)
	assert.IsType(t, &SQLStorage{}, s)

	s, err = NewStorage(&config.StorageConfig{Type: "mysql", ConnectionString: "user@tcp(localhost)/db"})
	require.NoError(t, err)
	assert.IsType(t, &GormStorage{}, s)

	_, err = NewStorage(&config.StorageConfig{Type: "mongo", ConnectionString: "x"})
	assert.Error(t, err)

	assert.Equal(t, "u@tcp(h)/db?parseTime=true", mysqlDSN("u@tcp(h)/db"))
	assert.Equal(t, "u@tcp(h)/db?charset=utf8&parseTime=true", mysqlDSN("u@tcp(h)/db?charset=utf8"))
}
