// File: internal/storage/gorm.go
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

type validatorSnapshotRow struct {
	ChainID           string `gorm:"primaryKey;type:varchar(64)"`
	OperatorAddress   string `gorm:"primaryKey;type:varchar(128)"`
	Moniker           string `gorm:"type:varchar(255);not null"`
	Jailed            bool   `gorm:"not null"`
	BondingStatus     string `gorm:"type:varchar(16);not null"`
	Tokens            string `gorm:"type:varchar(80);not null"`
	MissedBlocksCount *int64
	ObservedAt        time.Time `gorm:"not null"`
}

func (validatorSnapshotRow) TableName() string { return "validator_snapshots" }

type proposalSnapshotRow struct {
	ChainID       string `gorm:"primaryKey;type:varchar(64)"`
	ProposalID    uint64 `gorm:"primaryKey;autoIncrement:false"`
	Status        string `gorm:"type:varchar(32);not null"`
	Title         string `gorm:"type:text"`
	VotingEndTime *time.Time
	ObservedAt    time.Time `gorm:"not null"`
}

func (proposalSnapshotRow) TableName() string { return "proposal_snapshots" }

type upgradePlanRow struct {
	ChainID    string    `gorm:"primaryKey;type:varchar(64)"`
	Name       string    `gorm:"type:varchar(255);not null"`
	Height     int64     `gorm:"not null"`
	Info       string    `gorm:"type:text"`
	ObservedAt time.Time `gorm:"not null"`
}

func (upgradePlanRow) TableName() string { return "upgrade_plans" }

type chainStateRow struct {
	ChainID            string `gorm:"primaryKey;type:varchar(64)"`
	GovernanceSeededAt *time.Time
	UpgradeSeededAt    *time.Time
}

func (chainStateRow) TableName() string { return "chain_states" }

type failureCounterRow struct {
	ChainID   string    `gorm:"primaryKey;type:varchar(64)"`
	Entity    string    `gorm:"primaryKey;type:varchar(160)"`
	Count     int       `gorm:"not null"`
	LastError string    `gorm:"type:text"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (failureCounterRow) TableName() string { return "failure_counters" }

type registrationRow struct {
	ID                   int64     `gorm:"primaryKey;autoIncrement"`
	GuildID              string    `gorm:"type:varchar(32)"`
	ChannelID            string    `gorm:"type:varchar(32);not null;index"`
	UserID               string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_registrations_user_validator"`
	ChainID              string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_registrations_user_validator;index:idx_registrations_validator"`
	OperatorAddress      string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_registrations_user_validator;index:idx_registrations_validator"`
	NotificationsEnabled bool      `gorm:"not null;default:true"`
	CreatedAt            time.Time `gorm:"not null"`
}

func (registrationRow) TableName() string { return "registrations" }

type channelPreferenceRow struct {
	ChannelID               string    `gorm:"primaryKey;type:varchar(32)"`
	ChainID                 string    `gorm:"primaryKey;type:varchar(64)"`
	GovernanceAlertsEnabled bool      `gorm:"not null"`
	UpgradeAlertsEnabled    bool      `gorm:"not null"`
	MentionHereOnAlert      bool      `gorm:"not null"`
	UpdatedAt               time.Time `gorm:"not null"`
}

func (channelPreferenceRow) TableName() string { return "channel_preferences" }

// GormStorage implements Storage on MySQL through gorm
type GormStorage struct {
	db     *gorm.DB
	config *StorageConfig
	logger *logrus.Logger
}

// NewGormStorage creates a MySQL storage instance
func NewGormStorage(config *StorageConfig) *GormStorage {
	return &GormStorage{
		config: config,
		logger: utils.GetLogger(),
	}
}

// mysqlDSN makes sure DATETIME columns scan into time.Time
func mysqlDSN(dsn string) string {
	return ensureParam(dsn, "parseTime", "true")
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}

// Connect opens the database
func (s *GormStorage) Connect() error {
	gormLogger := logger.New(s.logger, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})

	db, err := gorm.Open(mysql.Open(mysqlDSN(s.config.ConnectionString)), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open database", err.Error())
	}
	sqlDB, err := db.DB()
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to access connection pool", err.Error())
	}
	if s.config.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(s.config.MaxConnections)
		sqlDB.SetMaxIdleConns(s.config.MaxConnections)
	}
	if s.config.MaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(s.config.MaxIdleTime)
	}

	s.db = db
	s.logger.WithField("dialect", db.Dialector.Name()).Info("Database connected")
	return nil
}

// Close closes the database connection
func (s *GormStorage) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.db = nil
	return sqlDB.Close()
}

// Ping checks database connectivity
func (s *GormStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Migrate creates the schema
func (s *GormStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	err := s.db.AutoMigrate(
		&validatorSnapshotRow{},
		&proposalSnapshotRow{},
		&upgradePlanRow{},
		&chainStateRow{},
		&failureCounterRow{},
		&registrationRow{},
		&channelPreferenceRow{},
	)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Migration failed", err.Error())
	}
	s.logger.Info("Database migrations completed")
	return nil
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// GetValidatorSnapshot returns the stored snapshot or nil
func (s *GormStorage) GetValidatorSnapshot(ctx context.Context, chainID, operatorAddress string) (*models.ValidatorSnapshot, error) {
	var row validatorSnapshotRow
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND operator_address = ?", chainID, operatorAddress).
		Take(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get validator snapshot", err)
	}
	return &models.ValidatorSnapshot{
		ChainID:           row.ChainID,
		OperatorAddress:   row.OperatorAddress,
		Moniker:           row.Moniker,
		Jailed:            row.Jailed,
		BondingStatus:     models.BondStatus(row.BondingStatus),
		Tokens:            row.Tokens,
		MissedBlocksCount: row.MissedBlocksCount,
		ObservedAt:        row.ObservedAt,
	}, nil
}

// SaveValidatorSnapshot replaces the stored snapshot
func (s *GormStorage) SaveValidatorSnapshot(ctx context.Context, snap *models.ValidatorSnapshot) error {
	row := validatorSnapshotRow{
		ChainID:           snap.ChainID,
		OperatorAddress:   snap.OperatorAddress,
		Moniker:           snap.Moniker,
		Jailed:            snap.Jailed,
		BondingStatus:     string(snap.BondingStatus),
		Tokens:            snap.Tokens,
		MissedBlocksCount: snap.MissedBlocksCount,
		ObservedAt:        snap.ObservedAt.UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return persistErr("save validator snapshot", err)
}

// GetProposalSnapshot returns the stored proposal or nil
func (s *GormStorage) GetProposalSnapshot(ctx context.Context, chainID string, proposalID uint64) (*models.ProposalSnapshot, error) {
	var row proposalSnapshotRow
	err := s.db.WithContext(ctx).
		Where("chain_id = ? AND proposal_id = ?", chainID, proposalID).
		Take(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get proposal snapshot", err)
	}
	return &models.ProposalSnapshot{
		ChainID:       row.ChainID,
		ProposalID:    row.ProposalID,
		Status:        models.ProposalStatus(row.Status),
		Title:         row.Title,
		VotingEndTime: row.VotingEndTime,
		ObservedAt:    row.ObservedAt,
	}, nil
}

// SaveProposalSnapshot replaces the stored proposal
func (s *GormStorage) SaveProposalSnapshot(ctx context.Context, snap *models.ProposalSnapshot) error {
	row := proposalSnapshotRow{
		ChainID:       snap.ChainID,
		ProposalID:    snap.ProposalID,
		Status:        string(snap.Status),
		Title:         snap.Title,
		VotingEndTime: snap.VotingEndTime,
		ObservedAt:    snap.ObservedAt.UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return persistErr("save proposal snapshot", err)
}

// GetUpgradePlan returns the recorded upgrade plan or nil
func (s *GormStorage) GetUpgradePlan(ctx context.Context, chainID string) (*models.UpgradePlan, error) {
	var row upgradePlanRow
	err := s.db.WithContext(ctx).Where("chain_id = ?", chainID).Take(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get upgrade plan", err)
	}
	return &models.UpgradePlan{
		ChainID:    row.ChainID,
		Name:       row.Name,
		Height:     row.Height,
		Info:       row.Info,
		ObservedAt: row.ObservedAt,
	}, nil
}

// SaveUpgradePlan records the pending upgrade plan of a chain
func (s *GormStorage) SaveUpgradePlan(ctx context.Context, plan *models.UpgradePlan) error {
	row := upgradePlanRow{
		ChainID:    plan.ChainID,
		Name:       plan.Name,
		Height:     plan.Height,
		Info:       plan.Info,
		ObservedAt: plan.ObservedAt.UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return persistErr("save upgrade plan", err)
}

// DeleteUpgradePlan forgets the recorded plan
func (s *GormStorage) DeleteUpgradePlan(ctx context.Context, chainID string) error {
	err := s.db.WithContext(ctx).Where("chain_id = ?", chainID).Delete(&upgradePlanRow{}).Error
	return persistErr("delete upgrade plan", err)
}

// GetChainState returns chain bookkeeping or nil
func (s *GormStorage) GetChainState(ctx context.Context, chainID string) (*models.ChainState, error) {
	var row chainStateRow
	err := s.db.WithContext(ctx).Where("chain_id = ?", chainID).Take(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get chain state", err)
	}
	return &models.ChainState{
		ChainID:            row.ChainID,
		GovernanceSeededAt: row.GovernanceSeededAt,
		UpgradeSeededAt:    row.UpgradeSeededAt,
	}, nil
}

// SaveChainState upserts chain bookkeeping
func (s *GormStorage) SaveChainState(ctx context.Context, state *models.ChainState) error {
	row := chainStateRow{
		ChainID:            state.ChainID,
		GovernanceSeededAt: state.GovernanceSeededAt,
		UpgradeSeededAt:    state.UpgradeSeededAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return persistErr("save chain state", err)
}

// IncrementFailureCount bumps the consecutive failure counter and returns the new value
func (s *GormStorage) IncrementFailureCount(ctx context.Context, chainID, entity, lastError string) (int, error) {
	var count int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		row := failureCounterRow{ChainID: chainID, Entity: entity, Count: 1, LastError: lastError, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "chain_id"}, {Name: "entity"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count":      gorm.Expr("failure_counters.count + 1"),
				"last_error": lastError,
				"updated_at": now,
			}),
		}).Create(&row).Error; err != nil {
			return err
		}
		var current failureCounterRow
		if err := tx.Where("chain_id = ? AND entity = ?", chainID, entity).Take(&current).Error; err != nil {
			return err
		}
		count = current.Count
		return nil
	})
	if err != nil {
		return 0, persistErr("increment failure count", err)
	}
	return count, nil
}

// ResetFailureCount clears the counter and returns its previous value
func (s *GormStorage) ResetFailureCount(ctx context.Context, chainID, entity string) (int, error) {
	var previous int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row failureCounterRow
		err := tx.Where("chain_id = ? AND entity = ?", chainID, entity).Take(&row).Error
		if notFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		previous = row.Count
		return tx.Where("chain_id = ? AND entity = ?", chainID, entity).Delete(&failureCounterRow{}).Error
	})
	if err != nil {
		return 0, persistErr("reset failure count", err)
	}
	return previous, nil
}

// CreateRegistration inserts a registration, returning ErrConflict when the
// user already registered the validator.
func (s *GormStorage) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	row := registrationRow{
		GuildID:              reg.GuildID,
		ChannelID:            reg.ChannelID,
		UserID:               reg.UserID,
		ChainID:              reg.ChainID,
		OperatorAddress:      reg.OperatorAddress,
		NotificationsEnabled: reg.NotificationsEnabled,
		CreatedAt:            reg.CreatedAt.UTC(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return persistErr("create registration", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	reg.ID = row.ID
	return nil
}

// DeleteRegistration removes a user's registration
func (s *GormStorage) DeleteRegistration(ctx context.Context, userID, chainID, operatorAddress string) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND chain_id = ? AND operator_address = ?", userID, chainID, operatorAddress).
		Delete(&registrationRow{})
	if res.Error != nil {
		return persistErr("delete registration", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRegistration returns a user's registration or nil
func (s *GormStorage) GetRegistration(ctx context.Context, userID, chainID, operatorAddress string) (*models.Registration, error) {
	var row registrationRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND chain_id = ? AND operator_address = ?", userID, chainID, operatorAddress).
		Take(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get registration", err)
	}
	return row.toModel(), nil
}

func (r *registrationRow) toModel() *models.Registration {
	return &models.Registration{
		ID:                   r.ID,
		GuildID:              r.GuildID,
		ChannelID:            r.ChannelID,
		UserID:               r.UserID,
		ChainID:              r.ChainID,
		OperatorAddress:      r.OperatorAddress,
		NotificationsEnabled: r.NotificationsEnabled,
		CreatedAt:            r.CreatedAt,
	}
}

func (s *GormStorage) listRegistrations(ctx context.Context, op string, query *gorm.DB) ([]*models.Registration, error) {
	var rows []registrationRow
	if err := query.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, persistErr(op, err)
	}
	out := make([]*models.Registration, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// ListRegistrationsByUser returns all registrations of a user
func (s *GormStorage) ListRegistrationsByUser(ctx context.Context, userID string) ([]*models.Registration, error) {
	return s.listRegistrations(ctx, "list registrations",
		s.db.Where("user_id = ?", userID).Order("chain_id, operator_address"))
}

// ListRegistrationsForValidator returns every registration pointing at a validator
func (s *GormStorage) ListRegistrationsForValidator(ctx context.Context, chainID, operatorAddress string) ([]*models.Registration, error) {
	return s.listRegistrations(ctx, "list registrations",
		s.db.Where("chain_id = ? AND operator_address = ?", chainID, operatorAddress).Order("id"))
}

// ListMonitoredValidators returns validators with at least one enabled registration
func (s *GormStorage) ListMonitoredValidators(ctx context.Context) ([]models.ValidatorKey, error) {
	var keys []models.ValidatorKey
	err := s.db.WithContext(ctx).Model(&registrationRow{}).
		Distinct("chain_id", "operator_address").
		Where("notifications_enabled = ?", true).
		Order("chain_id, operator_address").
		Scan(&keys).Error
	return keys, persistErr("list monitored validators", err)
}

// ListChannelsForChain returns channels with a registration or a preference for the chain
func (s *GormStorage) ListChannelsForChain(ctx context.Context, chainID string) ([]string, error) {
	var channels []string
	err := s.db.WithContext(ctx).Raw(`
		SELECT channel_id FROM registrations WHERE chain_id = ?
		UNION
		SELECT channel_id FROM channel_preferences WHERE chain_id = ?
		ORDER BY channel_id`, chainID, chainID).Scan(&channels).Error
	return channels, persistErr("list channels", err)
}

// SetRegistrationNotifications toggles alerts for a user's registration
func (s *GormStorage) SetRegistrationNotifications(ctx context.Context, userID, chainID, operatorAddress string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&registrationRow{}).
		Where("user_id = ? AND chain_id = ? AND operator_address = ?", userID, chainID, operatorAddress).
		Update("notifications_enabled", enabled)
	if res.Error != nil {
		return persistErr("update registration", res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero affected rows when the value is unchanged
		existing, err := s.GetRegistration(ctx, userID, chainID, operatorAddress)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrNotFound
		}
	}
	return nil
}

// CountRegistrations returns the total number of registrations
func (s *GormStorage) CountRegistrations(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&registrationRow{}).Count(&n).Error
	return n, persistErr("count registrations", err)
}

// GetChannelPreference returns the stored preference or nil
func (s *GormStorage) GetChannelPreference(ctx context.Context, channelID, chainID string) (*models.ChannelPreference, error) {
	var row channelPreferenceRow
	err := s.db.WithContext(ctx).Where("channel_id = ? AND chain_id = ?", channelID, chainID).Take(&row).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get channel preference", err)
	}
	return row.toModel(), nil
}

func (r *channelPreferenceRow) toModel() *models.ChannelPreference {
	return &models.ChannelPreference{
		ChannelID:               r.ChannelID,
		ChainID:                 r.ChainID,
		GovernanceAlertsEnabled: r.GovernanceAlertsEnabled,
		UpgradeAlertsEnabled:    r.UpgradeAlertsEnabled,
		MentionHereOnAlert:      r.MentionHereOnAlert,
		UpdatedAt:               r.UpdatedAt,
	}
}

// SaveChannelPreference upserts a channel preference
func (s *GormStorage) SaveChannelPreference(ctx context.Context, pref *models.ChannelPreference) error {
	pref.UpdatedAt = time.Now().UTC()
	row := channelPreferenceRow{
		ChannelID:               pref.ChannelID,
		ChainID:                 pref.ChainID,
		GovernanceAlertsEnabled: pref.GovernanceAlertsEnabled,
		UpgradeAlertsEnabled:    pref.UpgradeAlertsEnabled,
		MentionHereOnAlert:      pref.MentionHereOnAlert,
		UpdatedAt:               pref.UpdatedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return persistErr("save channel preference", err)
}

// ListChannelPreferences returns all preferences of a channel
func (s *GormStorage) ListChannelPreferences(ctx context.Context, channelID string) ([]*models.ChannelPreference, error) {
	var rows []channelPreferenceRow
	if err := s.db.WithContext(ctx).Where("channel_id = ?", channelID).Order("chain_id").Find(&rows).Error; err != nil {
		return nil, persistErr("list channel preferences", err)
	}
	out := make([]*models.ChannelPreference, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}

// PruneOrphans removes snapshots and failure counters of validators nobody is registered for
func (s *GormStorage) PruneOrphans(ctx context.Context) (*PruneResult, error) {
	result := &PruneResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		registered := tx.Model(&registrationRow{}).Select("1").
			Where("registrations.chain_id = validator_snapshots.chain_id AND registrations.operator_address = validator_snapshots.operator_address")
		res := tx.Where("NOT EXISTS (?)", registered).Delete(&validatorSnapshotRow{})
		if res.Error != nil {
			return res.Error
		}
		result.ValidatorSnapshots = res.RowsAffected

		var counters []failureCounterRow
		if err := tx.Where("entity LIKE ?", ValidatorEntity("")+"%").Find(&counters).Error; err != nil {
			return err
		}
		for _, c := range counters {
			var n int64
			addr := strings.TrimPrefix(c.Entity, ValidatorEntity(""))
			if err := tx.Model(&registrationRow{}).
				Where("chain_id = ? AND operator_address = ?", c.ChainID, addr).
				Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			if err := tx.Where("chain_id = ? AND entity = ?", c.ChainID, c.Entity).
				Delete(&failureCounterRow{}).Error; err != nil {
				return err
			}
			result.FailureCounters++
		}
		return nil
	})
	if err != nil {
		return nil, persistErr("prune", err)
	}
	return result, nil
}

// GetStorageStats returns row counts used by the health endpoint
func (s *GormStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}
	db := s.db.WithContext(ctx)
	counts := []struct {
		model any
		dst   *int64
	}{
		{&registrationRow{}, &stats.Registrations},
		{&validatorSnapshotRow{}, &stats.ValidatorSnapshots},
		{&proposalSnapshotRow{}, &stats.ProposalSnapshots},
		{&upgradePlanRow{}, &stats.PendingUpgrades},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return nil, persistErr("storage stats", err)
		}
	}

	var latest validatorSnapshotRow
	err := db.Order("observed_at DESC").Take(&latest).Error
	switch {
	case err == nil:
		stats.LatestObservation = &latest.ObservedAt
	case !notFound(err):
		return nil, persistErr("storage stats", err)
	}
	return stats, nil
}
