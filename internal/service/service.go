// File: internal/service/service.go
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/chain"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/notification"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/storage"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// statusConcurrency bounds parallel fetches of a single myvalidators request
const statusConcurrency = 10

// Service implements the user facing commands. It reads storage and the chain
// but never writes snapshots; the poll loop owns those.
type Service struct {
	config   *config.Config
	client   chain.Client
	storage  storage.Storage
	notifier notification.Notifier
	logger   *logrus.Logger
	now      func() time.Time
}

// RegisterRequest holds the parameters of a register command
type RegisterRequest struct {
	GuildID         string `json:"guild_id"`
	ChannelID       string `json:"channel_id"`
	UserID          string `json:"user_id"`
	Chain           string `json:"chain"`
	OperatorAddress string `json:"operator_address"`
}

// RegistrationResult is returned by Register
type RegistrationResult struct {
	Registration *models.Registration `json:"registration"`
	Moniker      string               `json:"moniker"`
	ChainName    string               `json:"chain_name"`
}

// ChainPreferenceUpdate changes channel toggles; nil fields keep their value
type ChainPreferenceUpdate struct {
	GovernanceAlerts *bool `json:"governance_alerts_enabled,omitempty"`
	UpgradeAlerts    *bool `json:"upgrade_alerts_enabled,omitempty"`
	MentionHere      *bool `json:"mention_here_on_alert,omitempty"`
}

// ChainInfo describes a configured chain
type ChainInfo struct {
	Name                  string `json:"name"`
	ChainID               string `json:"chain_id"`
	Denom                 string `json:"denom"`
	Symbol                string `json:"symbol"`
	MissedBlocksSupported bool   `json:"missed_blocks_supported"`
	MissedBlockThreshold  int64  `json:"missed_block_threshold,omitempty"`
}

// RegistrationStatus pairs a registration with a fresh status or the error that prevented it
type RegistrationStatus struct {
	Registration *models.Registration   `json:"registration"`
	ChainName    string                 `json:"chain_name"`
	Status       *models.ValidatorStatus `json:"status,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// NewService creates the command service
func NewService(cfg *config.Config, client chain.Client, store storage.Storage, notifier notification.Notifier) *Service {
	return &Service{
		config:   cfg,
		client:   client,
		storage:  store,
		notifier: notifier,
		logger:   utils.GetLogger(),
		now:      time.Now,
	}
}

// WithLogger replaces the service logger
func (s *Service) WithLogger(logger *logrus.Logger) *Service {
	s.logger = logger
	return s
}

// Chains lists configured chains sorted by name
func (s *Service) Chains() []ChainInfo {
	names := s.config.ChainNames()
	out := make([]ChainInfo, 0, len(names))
	for _, name := range names {
		c := s.config.Chains[name]
		out = append(out, ChainInfo{
			Name:                  name,
			ChainID:               c.ChainID,
			Denom:                 c.Denom,
			Symbol:                models.TokenSymbol(c.Denom, c.Decimals),
			MissedBlocksSupported: c.MissedBlocksSupported,
			MissedBlockThreshold:  c.MissedBlockThreshold,
		})
	}
	return out
}

// ResolveChain looks up a chain by name or chain id
func (s *Service) ResolveChain(name string) (*config.ChainConfig, error) {
	chainCfg, ok := s.config.Chain(strings.TrimSpace(name))
	if !ok {
		return nil, utils.NewAppError(utils.ErrCodeUnsupportedChain,
			"Chain `"+utils.NormalizeChainName(name)+"` is not supported", "")
	}
	return chainCfg, nil
}

// Register validates the address, checks the validator exists on chain and
// stores the registration.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegistrationResult, error) {
	chainCfg, err := s.ResolveChain(req.Chain)
	if err != nil {
		return nil, err
	}
	addr := strings.TrimSpace(req.OperatorAddress)
	if err := chain.ValidateOperatorAddress(addr, chainCfg.OperatorPrefix); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInvalidAddress,
			"Invalid address format for "+strings.ToUpper(chainCfg.Name), err.Error())
	}
	if req.UserID == "" || req.ChannelID == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "User and channel are required", "")
	}

	info, err := s.client.GetValidator(ctx, chainCfg, addr)
	if err != nil {
		return nil, s.fetchError(chainCfg, addr, err)
	}

	reg := &models.Registration{
		GuildID:              req.GuildID,
		ChannelID:            req.ChannelID,
		UserID:               req.UserID,
		ChainID:              chainCfg.ChainID,
		OperatorAddress:      addr,
		NotificationsEnabled: true,
		CreatedAt:            s.now().UTC(),
	}
	if err := s.storage.CreateRegistration(ctx, reg); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, utils.NewAppError(utils.ErrCodeConflict,
				"Validator `"+addr+"` is already registered for monitoring", "")
		}
		return nil, utils.WrapAppError(utils.ErrCodeDatabase, "Failed to save registration", err)
	}

	s.logger.WithFields(logrus.Fields{
		"chain":     chainCfg.ChainID,
		"validator": addr,
		"user":      req.UserID,
		"channel":   req.ChannelID,
	}).Info("Validator registered")

	return &RegistrationResult{Registration: reg, Moniker: info.Moniker, ChainName: chainCfg.Name}, nil
}

// Unregister removes the caller's registration. Snapshots are kept.
func (s *Service) Unregister(ctx context.Context, userID, chainName, operatorAddress string) error {
	chainCfg, err := s.ResolveChain(chainName)
	if err != nil {
		return err
	}
	addr := strings.TrimSpace(operatorAddress)
	if err := s.storage.DeleteRegistration(ctx, userID, chainCfg.ChainID, addr); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return utils.NewAppError(utils.ErrCodeNotFound,
				"Validator `"+addr+"` was not found in your monitoring list", "")
		}
		return utils.WrapAppError(utils.ErrCodeDatabase, "Failed to remove registration", err)
	}

	s.logger.WithFields(logrus.Fields{
		"chain":     chainCfg.ChainID,
		"validator": addr,
		"user":      userID,
	}).Info("Validator unregistered")
	return nil
}

// Status fetches the current state of a validator, bypassing the poll interval
func (s *Service) Status(ctx context.Context, chainName, operatorAddress string) (*models.ValidatorStatus, error) {
	chainCfg, err := s.ResolveChain(chainName)
	if err != nil {
		return nil, err
	}
	return s.status(ctx, chainCfg, strings.TrimSpace(operatorAddress))
}

func (s *Service) status(ctx context.Context, chainCfg *config.ChainConfig, addr string) (*models.ValidatorStatus, error) {
	ctx = chain.WithFreshRead(ctx)
	info, err := s.client.GetValidator(ctx, chainCfg, addr)
	if err != nil {
		return nil, s.fetchError(chainCfg, addr, err)
	}

	snap := info.Snapshot(chainCfg.ChainID, s.now().UTC())
	status := &models.ValidatorStatus{
		Snapshot:     snap,
		SignedWindow: info.SignedBlocksWindow,
		StakeDisplay: models.FormatTokens(snap.Tokens, chainCfg.Decimals, chainCfg.Denom),
	}
	if snap.MissedBlocksCount != nil {
		if uptime, ok := models.Uptime(info.SignedBlocksWindow, *snap.MissedBlocksCount); ok {
			status.Uptime = &uptime
		}
	}
	if height, err := s.client.GetLatestHeight(ctx, chainCfg); err == nil {
		status.LatestHeight = height
	} else {
		s.logger.WithFields(logrus.Fields{"chain": chainCfg.ChainID, "error": err}).Debug("Latest height unavailable")
	}
	return status, nil
}

// ListRegistrations returns the caller's registrations
func (s *Service) ListRegistrations(ctx context.Context, userID string) ([]*models.Registration, error) {
	regs, err := s.storage.ListRegistrationsByUser(ctx, userID)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeDatabase, "Failed to list registrations", err)
	}
	return regs, nil
}

// MyValidators fetches a fresh status for each of the caller's registrations.
// A failed fetch is reported in its entry and does not fail the call.
func (s *Service) MyValidators(ctx context.Context, userID string) ([]*RegistrationStatus, error) {
	regs, err := s.ListRegistrations(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*RegistrationStatus, len(regs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusConcurrency)
	for i, reg := range regs {
		reg := reg
		out[i] = &RegistrationStatus{Registration: reg, ChainName: reg.ChainID}
		chainCfg, ok := s.config.ChainByID(reg.ChainID)
		if !ok {
			out[i].Error = "chain is no longer configured"
			continue
		}
		out[i].ChainName = chainCfg.Name
		entry := out[i]
		g.Go(func() error {
			status, err := s.status(gctx, chainCfg, reg.OperatorAddress)
			if err != nil {
				entry.Error = err.Error()
				return nil
			}
			entry.Status = status
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// SetValidatorNotifications toggles alerts for one of the caller's registrations
func (s *Service) SetValidatorNotifications(ctx context.Context, userID, chainName, operatorAddress string, enabled bool) error {
	chainCfg, err := s.ResolveChain(chainName)
	if err != nil {
		return err
	}
	addr := strings.TrimSpace(operatorAddress)
	if err := s.storage.SetRegistrationNotifications(ctx, userID, chainCfg.ChainID, addr, enabled); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return utils.NewAppError(utils.ErrCodeNotFound,
				"Validator `"+addr+"` was not found in your monitoring list", "")
		}
		return utils.WrapAppError(utils.ErrCodeDatabase, "Failed to update notifications", err)
	}
	return nil
}

// SetChainNotifications updates the governance and upgrade toggles of a channel
func (s *Service) SetChainNotifications(ctx context.Context, channelID, chainName string, update ChainPreferenceUpdate) (*models.ChannelPreference, error) {
	chainCfg, err := s.ResolveChain(chainName)
	if err != nil {
		return nil, err
	}
	if channelID == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Channel is required", "")
	}

	pref, err := s.storage.GetChannelPreference(ctx, channelID, chainCfg.ChainID)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeDatabase, "Failed to load preferences", err)
	}
	if pref == nil {
		pref = models.DefaultChannelPreference(channelID, chainCfg.ChainID)
	}
	if update.GovernanceAlerts != nil {
		pref.GovernanceAlertsEnabled = *update.GovernanceAlerts
	}
	if update.UpgradeAlerts != nil {
		pref.UpgradeAlertsEnabled = *update.UpgradeAlerts
	}
	if update.MentionHere != nil {
		pref.MentionHereOnAlert = *update.MentionHere
	}
	pref.UpdatedAt = s.now().UTC()

	if err := s.storage.SaveChannelPreference(ctx, pref); err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeDatabase, "Failed to save preferences", err)
	}
	return pref, nil
}

// ChannelPreferences lists the preferences stored for a channel
func (s *Service) ChannelPreferences(ctx context.Context, channelID string) ([]*models.ChannelPreference, error) {
	prefs, err := s.storage.ListChannelPreferences(ctx, channelID)
	if err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeDatabase, "Failed to list preferences", err)
	}
	return prefs, nil
}

// TestAlert builds the sample alert sent by the test_notification command
func (s *Service) TestAlert(channelID, userID string) *models.Alert {
	alert := &models.Alert{
		ID:          utils.GenerateID(),
		Kind:        models.AlertKindTestNotification,
		Severity:    models.SeverityCritical,
		ChainID:     "example-chain",
		Subject:     "examplevaloper1test",
		Title:       "Validator Jailed (Test)",
		Description: "This is a test notification to confirm alerts are configured correctly.",
		ChannelID:   channelID,
		CreatedAt:   s.now().UTC(),
	}
	if userID != "" {
		alert.MentionUserIDs = []string{userID}
	}
	alert.AddField("Validator", "TestValidator", true)
	alert.AddField("Status", models.BondStatusUnbonding.Label(), true)
	alert.AddField("Jailed", "Yes", true)
	alert.AddField("Missed Blocks", "120", true)
	alert.AddField("Total Stake", "1,234,567.89 TST", true)
	alert.AddField("Estimated Uptime", "`"+models.ProgressBar(98.8)+"`", false)
	return alert
}

// SendTestNotification queues a sample alert for channelID
func (s *Service) SendTestNotification(ctx context.Context, channelID, userID string) error {
	if channelID == "" {
		return utils.NewAppError(utils.ErrCodeValidation, "Channel is required", "")
	}
	s.notifier.Notify(ctx, s.TestAlert(channelID, userID))
	return nil
}

func (s *Service) fetchError(chainCfg *config.ChainConfig, addr string, err error) error {
	switch chain.Classify(err) {
	case chain.KindNotFound:
		return utils.NewAppError(utils.ErrCodeNotFound,
			"Could not find validator `"+addr+"` on "+strings.ToUpper(chainCfg.Name), "")
	case chain.KindMalformed:
		return utils.WrapAppError(utils.ErrCodeBlockchain, "Chain returned an unexpected response", err)
	}
	return utils.WrapAppError(utils.ErrCodeConnection, "Could not reach "+strings.ToUpper(chainCfg.Name), err)
}
