package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/chain"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/storage"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

const (
	hubID      = "cosmoshub-4"
	hubAddr    = "cosmosvaloper1qyqszqgpqyqszqgpqyqszqgpqyqszqgph84tp0"
	secondAddr = "cosmosvaloper1qgpqyqszqgpqyqszqgpqyqszqgpqyqszxrnw2e"
	absentAddr = "cosmosvaloper1qvpsxqcrqvpsxqcrqvpsxqcrqvpsxqcr8nj0qc"
)

type stubClient struct {
	mu         sync.Mutex
	validators map[string]*chain.ValidatorInfo
	errs       map[string]error
	heightErr  error
	freshReads int
}

func (c *stubClient) GetValidator(ctx context.Context, _ *config.ChainConfig, addr string) (*chain.ValidatorInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if chain.IsFreshRead(ctx) {
		c.freshReads++
	}
	if err := c.errs[addr]; err != nil {
		return nil, err
	}
	v, ok := c.validators[addr]
	if !ok {
		return nil, &chain.NotFoundError{URL: "test", Resource: "validator"}
	}
	copied := *v
	return &copied, nil
}

func (c *stubClient) GetProposals(context.Context, *config.ChainConfig, int) ([]chain.Proposal, error) {
	return nil, nil
}

func (c *stubClient) GetUpgradePlan(context.Context, *config.ChainConfig) (*models.UpgradePlan, error) {
	return nil, nil
}

func (c *stubClient) GetLatestHeight(context.Context, *config.ChainConfig) (int64, error) {
	if c.heightErr != nil {
		return 0, c.heightErr
	}
	return 12345, nil
}

type captureNotifier struct {
	alerts []*models.Alert
}

func (n *captureNotifier) Notify(_ context.Context, alert *models.Alert) {
	n.alerts = append(n.alerts, alert)
}

type fixture struct {
	svc      *Service
	client   *stubClient
	store    *storage.SQLStorage
	notifier *captureNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewSQLiteStorage(&storage.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "service.db"),
	}).WithLogger(utils.NewDiscardLogger())
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { _ = store.Close() })

	missed := int64(250)
	client := &stubClient{
		validators: map[string]*chain.ValidatorInfo{
			hubAddr: {
				OperatorAddress:    hubAddr,
				Moniker:            "Hub Validator",
				Status:             models.BondStatusBonded,
				Tokens:             "1234500000",
				MissedBlocks:       &missed,
				SignedBlocksWindow: 10000,
			},
		},
		errs: map[string]error{},
	}

	cfg := &config.Config{
		Chains: map[string]*config.ChainConfig{
			"cosmoshub": {
				ChainID:               hubID,
				Name:                  "cosmoshub",
				OperatorPrefix:        "cosmosvaloper",
				Denom:                 "uatom",
				Decimals:              6,
				MissedBlocksSupported: true,
				MissedBlockThreshold:  50,
			},
			"osmosis": {
				ChainID:        "osmosis-1",
				Name:           "osmosis",
				OperatorPrefix: "osmovaloper",
				Denom:          "uosmo",
				Decimals:       6,
			},
		},
	}

	notifier := &captureNotifier{}
	svc := NewService(cfg, client, store, notifier).WithLogger(utils.NewDiscardLogger())
	return &fixture{svc: svc, client: client, store: store, notifier: notifier}
}

func (f *fixture) register(t *testing.T, user, addr string) {
	t.Helper()
	_, err := f.svc.Register(context.Background(), RegisterRequest{
		GuildID: "g1", ChannelID: "c1", UserID: user, Chain: "cosmoshub", OperatorAddress: addr,
	})
	require.NoError(t, err)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, RegisterRequest{
		GuildID: "g1", ChannelID: "c1", UserID: "u1", Chain: "CosmosHub", OperatorAddress: " " + hubAddr + " ",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hub Validator", res.Moniker)
	assert.Equal(t, "cosmoshub", res.ChainName)
	assert.True(t, res.Registration.NotificationsEnabled)

	reg, err := f.store.GetRegistration(ctx, "u1", hubID, hubAddr)
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Equal(t, "c1", reg.ChannelID)

	t.Run("duplicate", func(t *testing.T) {
		_, err := f.svc.Register(ctx, RegisterRequest{ChannelID: "c2", UserID: "u1", Chain: "cosmoshub", OperatorAddress: hubAddr})
		assert.Equal(t, utils.ErrCodeConflict, utils.ErrorCode(err))
	})

	t.Run("other user may register the same validator", func(t *testing.T) {
		_, err := f.svc.Register(ctx, RegisterRequest{ChannelID: "c1", UserID: "u2", Chain: "cosmoshub", OperatorAddress: hubAddr})
		assert.NoError(t, err)
	})
}

func TestRegisterRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
		code string
	}{
		{"unknown chain", RegisterRequest{ChannelID: "c1", UserID: "u1", Chain: "junonet", OperatorAddress: hubAddr}, utils.ErrCodeUnsupportedChain},
		{"wrong prefix", RegisterRequest{ChannelID: "c1", UserID: "u1", Chain: "cosmoshub", OperatorAddress: "osmovaloper1xyz"}, utils.ErrCodeInvalidAddress},
		{"unknown validator", RegisterRequest{ChannelID: "c1", UserID: "u1", Chain: "cosmoshub", OperatorAddress: absentAddr}, utils.ErrCodeNotFound},
		{"missing channel", RegisterRequest{UserID: "u1", Chain: "cosmoshub", OperatorAddress: hubAddr}, utils.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, utils.ErrorCode(err))
		})
	}

	count, err := f.store.CountRegistrations(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegisterChainUnreachable(t *testing.T) {
	f := newFixture(t)
	f.client.errs[hubAddr] = &chain.NetworkError{URL: "http://lcd", StatusCode: 502}

	_, err := f.svc.Register(context.Background(), RegisterRequest{ChannelID: "c1", UserID: "u1", Chain: "cosmoshub", OperatorAddress: hubAddr})
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeConnection, utils.ErrorCode(err))
	var netErr *chain.NetworkError
	assert.True(t, errors.As(err, &netErr))
}

func TestUnregister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1", hubAddr)

	require.NoError(t, f.svc.Unregister(ctx, "u1", "cosmoshub", hubAddr))

	err := f.svc.Unregister(ctx, "u1", "cosmoshub", hubAddr)
	assert.Equal(t, utils.ErrCodeNotFound, utils.ErrorCode(err))

	err = f.svc.Unregister(ctx, "u1", "nochain", hubAddr)
	assert.Equal(t, utils.ErrCodeUnsupportedChain, utils.ErrorCode(err))
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.svc.Status(ctx, "cosmoshub", hubAddr)
	require.NoError(t, err)
	assert.Equal(t, "Hub Validator", status.Snapshot.Moniker)
	assert.Equal(t, "1,234.50 ATOM", status.StakeDisplay)
	require.NotNil(t, status.Uptime)
	assert.InDelta(t, 97.5, *status.Uptime, 0.0001)
	assert.Equal(t, int64(12345), status.LatestHeight)
	assert.Equal(t, 1, f.client.freshReads, "status bypasses the slashing cache")

	// status is read-only
	snap, err := f.store.GetValidatorSnapshot(ctx, hubID, hubAddr)
	require.NoError(t, err)
	assert.Nil(t, snap)

	t.Run("height is best effort", func(t *testing.T) {
		f.client.heightErr = errors.New("boom")
		status, err := f.svc.Status(ctx, "cosmoshub", hubAddr)
		require.NoError(t, err)
		assert.Zero(t, status.LatestHeight)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := f.svc.Status(ctx, "cosmoshub", absentAddr)
		assert.Equal(t, utils.ErrCodeNotFound, utils.ErrorCode(err))
	})

	t.Run("malformed", func(t *testing.T) {
		f.client.errs[hubAddr] = &chain.MalformedResponseError{URL: "x", Err: errors.New("bad json")}
		_, err := f.svc.Status(ctx, "cosmoshub", hubAddr)
		assert.Equal(t, utils.ErrCodeBlockchain, utils.ErrorCode(err))
	})
}

func TestMyValidatorsReportsPerEntryErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1", hubAddr)

	second := secondAddr
	f.client.validators[second] = &chain.ValidatorInfo{OperatorAddress: second, Moniker: "Second", Status: models.BondStatusUnbonded, Tokens: "0"}
	f.register(t, "u1", second)
	f.client.errs[second] = &chain.NetworkError{URL: "x", StatusCode: 503}

	out, err := f.svc.MyValidators(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, out, 2)

	byAddr := map[string]*RegistrationStatus{}
	for _, entry := range out {
		byAddr[entry.Registration.OperatorAddress] = entry
	}
	require.NotNil(t, byAddr[hubAddr].Status)
	assert.Empty(t, byAddr[hubAddr].Error)
	assert.Equal(t, "cosmoshub", byAddr[hubAddr].ChainName)
	assert.Nil(t, byAddr[second].Status)
	assert.NotEmpty(t, byAddr[second].Error)

	empty, err := f.svc.MyValidators(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSetValidatorNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "u1", hubAddr)

	require.NoError(t, f.svc.SetValidatorNotifications(ctx, "u1", "cosmoshub", hubAddr, false))
	reg, err := f.store.GetRegistration(ctx, "u1", hubID, hubAddr)
	require.NoError(t, err)
	assert.False(t, reg.NotificationsEnabled)

	err = f.svc.SetValidatorNotifications(ctx, "u2", "cosmoshub", hubAddr, false)
	assert.Equal(t, utils.ErrCodeNotFound, utils.ErrorCode(err))
}

func TestSetChainNotificationsKeepsUnsetToggles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	off, on := false, true

	pref, err := f.svc.SetChainNotifications(ctx, "c1", "cosmoshub", ChainPreferenceUpdate{GovernanceAlerts: &off})
	require.NoError(t, err)
	assert.False(t, pref.GovernanceAlertsEnabled)
	assert.True(t, pref.UpgradeAlertsEnabled)
	assert.False(t, pref.MentionHereOnAlert)

	pref, err = f.svc.SetChainNotifications(ctx, "c1", "cosmoshub-4", ChainPreferenceUpdate{MentionHere: &on})
	require.NoError(t, err)
	assert.False(t, pref.GovernanceAlertsEnabled)
	assert.True(t, pref.MentionHereOnAlert)

	stored, err := f.store.GetChannelPreference(ctx, "c1", hubID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.GovernanceAlertsEnabled)
	assert.True(t, stored.MentionHereOnAlert)

	prefs, err := f.svc.ChannelPreferences(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, prefs, 1)

	_, err = f.svc.SetChainNotifications(ctx, "c1", "nochain", ChainPreferenceUpdate{})
	assert.Equal(t, utils.ErrCodeUnsupportedChain, utils.ErrorCode(err))
}

func TestChains(t *testing.T) {
	f := newFixture(t)
	chains := f.svc.Chains()
	require.Len(t, chains, 2)
	assert.Equal(t, "cosmoshub", chains[0].Name)
	assert.Equal(t, "ATOM", chains[0].Symbol)
	assert.True(t, chains[0].MissedBlocksSupported)
	assert.Equal(t, "osmosis", chains[1].Name)
	assert.Equal(t, "OSMO", chains[1].Symbol)
}

func TestSendTestNotification(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.SendTestNotification(context.Background(), "c9", "u7"))
	require.Len(t, f.notifier.alerts, 1)
	alert := f.notifier.alerts[0]
	assert.Equal(t, models.AlertKindTestNotification, alert.Kind)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "c9", alert.ChannelID)
	assert.Equal(t, []string{"u7"}, alert.MentionUserIDs)
	assert.NotEmpty(t, alert.Fields)

	err := f.svc.SendTestNotification(context.Background(), "", "u7")
	assert.Equal(t, utils.ErrCodeValidation, utils.ErrorCode(err))
}
