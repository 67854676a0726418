// File: internal/storage/sql.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// dialect captures the differences between the SQL backends
type dialect struct {
	name       string
	driver     string
	types      columnTypes
	positional bool // $1 placeholders instead of ?
}

var (
	sqliteDialect   = dialect{name: "sqlite", driver: "sqlite", types: sqliteTypes}
	postgresDialect = dialect{name: "postgres", driver: "postgres", types: postgresTypes, positional: true}
)

// rebind rewrites ? placeholders for dialects that use positional parameters
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStorage implements Storage on database/sql for SQLite and PostgreSQL
type SQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	dialect    dialect
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLStorage {
	return newSQLStorage(config, sqliteDialect)
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *SQLStorage {
	return newSQLStorage(config, postgresDialect)
}

func newSQLStorage(config *StorageConfig, d dialect) *SQLStorage {
	return &SQLStorage{
		config:     config,
		dialect:    d,
		logger:     utils.GetLogger(),
		migrations: getMigrations(d.types),
	}
}

// WithLogger replaces the storage logger
func (s *SQLStorage) WithLogger(logger *logrus.Logger) *SQLStorage {
	s.logger = logger
	return s
}

// Connect establishes database connection
func (s *SQLStorage) Connect() error {
	if s.dialect.name == "sqlite" {
		dir := filepath.Dir(s.config.ConnectionString)
		if dir != "." && dir != "" && !strings.HasPrefix(s.config.ConnectionString, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
			}
		}
	}

	db, err := sql.Open(s.dialect.driver, s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open database", err.Error())
	}

	maxConns := s.config.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	if s.dialect.name == "sqlite" {
		// sqlite allows a single writer
		maxConns = 1
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set busy timeout", err.Error())
		}
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	if s.config.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(s.config.MaxIdleTime)
	}

	s.db = db
	s.logger.WithField("dialect", s.dialect.name).Info("Database connected")
	return nil
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.logger.Info("Database connection closed")
	return err
}

// Ping checks database connectivity
func (s *SQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		for _, stmt := range migration.statements() {
			if _, err := s.db.Exec(stmt); err != nil {
				return utils.NewAppError(utils.ErrCodeDatabase,
					fmt.Sprintf("Migration %s failed", migration.Version),
					err.Error())
			}
		}
	}

	s.logger.WithField("count", len(s.migrations)).Info("Database migrations completed")
	return nil
}

func (s *SQLStorage) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStorage) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStorage) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

// GetValidatorSnapshot returns the stored snapshot or nil
func (s *SQLStorage) GetValidatorSnapshot(ctx context.Context, chainID, operatorAddress string) (*models.ValidatorSnapshot, error) {
	var (
		snap   models.ValidatorSnapshot
		status string
		missed sql.NullInt64
	)
	err := s.queryRow(ctx, `
		SELECT chain_id, operator_address, moniker, jailed, bonding_status, tokens, missed_blocks_count, observed_at
		FROM validator_snapshots WHERE chain_id = ? AND operator_address = ?`,
		chainID, operatorAddress).Scan(
		&snap.ChainID, &snap.OperatorAddress, &snap.Moniker, &snap.Jailed,
		&status, &snap.Tokens, &missed, &snap.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get validator snapshot", err)
	}
	snap.BondingStatus = models.BondStatus(status)
	if missed.Valid {
		v := missed.Int64
		snap.MissedBlocksCount = &v
	}
	return &snap, nil
}

// SaveValidatorSnapshot replaces the stored snapshot
func (s *SQLStorage) SaveValidatorSnapshot(ctx context.Context, snap *models.ValidatorSnapshot) error {
	_, err := s.exec(ctx, `
		INSERT INTO validator_snapshots
		(chain_id, operator_address, moniker, jailed, bonding_status, tokens, missed_blocks_count, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain_id, operator_address) DO UPDATE SET
			moniker = excluded.moniker,
			jailed = excluded.jailed,
			bonding_status = excluded.bonding_status,
			tokens = excluded.tokens,
			missed_blocks_count = excluded.missed_blocks_count,
			observed_at = excluded.observed_at`,
		snap.ChainID, snap.OperatorAddress, snap.Moniker, snap.Jailed,
		string(snap.BondingStatus), snap.Tokens, nullInt64(snap.MissedBlocksCount), snap.ObservedAt.UTC())
	return persistErr("save validator snapshot", err)
}

// GetProposalSnapshot returns the stored proposal or nil
func (s *SQLStorage) GetProposalSnapshot(ctx context.Context, chainID string, proposalID uint64) (*models.ProposalSnapshot, error) {
	var (
		snap      models.ProposalSnapshot
		status    string
		votingEnd sql.NullTime
		id        int64
	)
	err := s.queryRow(ctx, `
		SELECT chain_id, proposal_id, status, title, voting_end_time, observed_at
		FROM proposal_snapshots WHERE chain_id = ? AND proposal_id = ?`,
		chainID, int64(proposalID)).Scan(
		&snap.ChainID, &id, &status, &snap.Title, &votingEnd, &snap.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get proposal snapshot", err)
	}
	snap.ProposalID = uint64(id)
	snap.Status = models.ProposalStatus(status)
	snap.VotingEndTime = timePtr(votingEnd)
	return &snap, nil
}

// SaveProposalSnapshot replaces the stored proposal
func (s *SQLStorage) SaveProposalSnapshot(ctx context.Context, snap *models.ProposalSnapshot) error {
	_, err := s.exec(ctx, `
		INSERT INTO proposal_snapshots (chain_id, proposal_id, status, title, voting_end_time, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (chain_id, proposal_id) DO UPDATE SET
			status = excluded.status,
			title = excluded.title,
			voting_end_time = excluded.voting_end_time,
			observed_at = excluded.observed_at`,
		snap.ChainID, int64(snap.ProposalID), string(snap.Status), snap.Title,
		nullTime(snap.VotingEndTime), snap.ObservedAt.UTC())
	return persistErr("save proposal snapshot", err)
}

// GetUpgradePlan returns the recorded upgrade plan or nil
func (s *SQLStorage) GetUpgradePlan(ctx context.Context, chainID string) (*models.UpgradePlan, error) {
	var plan models.UpgradePlan
	err := s.queryRow(ctx, `
		SELECT chain_id, name, height, info, observed_at FROM upgrade_plans WHERE chain_id = ?`,
		chainID).Scan(&plan.ChainID, &plan.Name, &plan.Height, &plan.Info, &plan.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get upgrade plan", err)
	}
	return &plan, nil
}

// SaveUpgradePlan records the pending upgrade plan of a chain
func (s *SQLStorage) SaveUpgradePlan(ctx context.Context, plan *models.UpgradePlan) error {
	_, err := s.exec(ctx, `
		INSERT INTO upgrade_plans (chain_id, name, height, info, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (chain_id) DO UPDATE SET
			name = excluded.name,
			height = excluded.height,
			info = excluded.info,
			observed_at = excluded.observed_at`,
		plan.ChainID, plan.Name, plan.Height, plan.Info, plan.ObservedAt.UTC())
	return persistErr("save upgrade plan", err)
}

// DeleteUpgradePlan forgets the recorded plan
func (s *SQLStorage) DeleteUpgradePlan(ctx context.Context, chainID string) error {
	_, err := s.exec(ctx, `DELETE FROM upgrade_plans WHERE chain_id = ?`, chainID)
	return persistErr("delete upgrade plan", err)
}

// GetChainState returns chain bookkeeping or nil
func (s *SQLStorage) GetChainState(ctx context.Context, chainID string) (*models.ChainState, error) {
	var (
		state    models.ChainState
		gov, upg sql.NullTime
	)
	err := s.queryRow(ctx, `
		SELECT chain_id, governance_seeded_at, upgrade_seeded_at FROM chain_states WHERE chain_id = ?`,
		chainID).Scan(&state.ChainID, &gov, &upg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("get chain state", err)
	}
	state.GovernanceSeededAt = timePtr(gov)
	state.UpgradeSeededAt = timePtr(upg)
	return &state, nil
}

// SaveChainState upserts chain bookkeeping
func (s *SQLStorage) SaveChainState(ctx context.Context, state *models.ChainState) error {
	_, err := s.exec(ctx, `
		INSERT INTO chain_states (chain_id, governance_seeded_at, upgrade_seeded_at)
		VALUES (?, ?, ?)
		ON CONFLICT (chain_id) DO UPDATE SET
			governance_seeded_at = excluded.governance_seeded_at,
			upgrade_seeded_at = excluded.upgrade_seeded_at`,
		state.ChainID, nullTime(state.GovernanceSeededAt), nullTime(state.UpgradeSeededAt))
	return persistErr("save chain state", err)
}

// IncrementFailureCount bumps the consecutive failure counter and returns the new value
func (s *SQLStorage) IncrementFailureCount(ctx context.Context, chainID, entity, lastError string) (int, error) {
	var count int
	err := s.queryRow(ctx, `
		INSERT INTO failure_counters (chain_id, entity, count, last_error, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (chain_id, entity) DO UPDATE SET
			count = failure_counters.count + 1,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
		RETURNING count`,
		chainID, entity, lastError, time.Now().UTC()).Scan(&count)
	if err != nil {
		return 0, persistErr("increment failure count", err)
	}
	return count, nil
}

// ResetFailureCount clears the counter and returns its previous value
func (s *SQLStorage) ResetFailureCount(ctx context.Context, chainID, entity string) (int, error) {
	var previous int
	err := s.queryRow(ctx, `
		DELETE FROM failure_counters WHERE chain_id = ? AND entity = ? RETURNING count`,
		chainID, entity).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, persistErr("reset failure count", err)
	}
	return previous, nil
}

// CreateRegistration inserts a registration, returning ErrConflict when the
// user already registered the validator.
func (s *SQLStorage) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.queryRow(ctx, `
		INSERT INTO registrations
		(guild_id, channel_id, user_id, chain_id, operator_address, notifications_enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, chain_id, operator_address) DO NOTHING
		RETURNING id`,
		reg.GuildID, reg.ChannelID, reg.UserID, reg.ChainID, reg.OperatorAddress,
		reg.NotificationsEnabled, reg.CreatedAt.UTC()).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConflict
	}
	if err != nil {
		return persistErr("create registration", err)
	}
	reg.ID = id
	return nil
}

// DeleteRegistration removes a user's registration
func (s *SQLStorage) DeleteRegistration(ctx context.Context, userID, chainID, operatorAddress string) error {
	res, err := s.exec(ctx, `
		DELETE FROM registrations WHERE user_id = ? AND chain_id = ? AND operator_address = ?`,
		userID, chainID, operatorAddress)
	if err != nil {
		return persistErr("delete registration", err)
	}
	return requireAffected(res)
}

const registrationColumns = `id, guild_id, channel_id, user_id, chain_id, operator_address, notifications_enabled, created_at`

// GetRegistration returns a user's registration or nil
func (s *SQLStorage) GetRegistration(ctx context.Context, userID, chainID, operatorAddress string) (*models.Registration, error) {
	rows, err := s.query(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE user_id = ? AND chain_id = ? AND operator_address = ?`,
		userID, chainID, operatorAddress)
	if err != nil {
		return nil, persistErr("get registration", err)
	}
	regs, err := scanRegistrations(rows)
	if err != nil || len(regs) == 0 {
		return nil, err
	}
	return regs[0], nil
}

// ListRegistrationsByUser returns all registrations of a user
func (s *SQLStorage) ListRegistrationsByUser(ctx context.Context, userID string) ([]*models.Registration, error) {
	rows, err := s.query(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE user_id = ? ORDER BY chain_id, operator_address`, userID)
	if err != nil {
		return nil, persistErr("list registrations", err)
	}
	return scanRegistrations(rows)
}

// ListRegistrationsForValidator returns every registration pointing at a validator
func (s *SQLStorage) ListRegistrationsForValidator(ctx context.Context, chainID, operatorAddress string) ([]*models.Registration, error) {
	rows, err := s.query(ctx, `SELECT `+registrationColumns+` FROM registrations
		WHERE chain_id = ? AND operator_address = ? ORDER BY id`, chainID, operatorAddress)
	if err != nil {
		return nil, persistErr("list registrations", err)
	}
	return scanRegistrations(rows)
}

// ListMonitoredValidators returns validators with at least one enabled registration
func (s *SQLStorage) ListMonitoredValidators(ctx context.Context) ([]models.ValidatorKey, error) {
	rows, err := s.query(ctx, `
		SELECT DISTINCT chain_id, operator_address FROM registrations
		WHERE notifications_enabled = ? ORDER BY chain_id, operator_address`, true)
	if err != nil {
		return nil, persistErr("list monitored validators", err)
	}
	defer rows.Close()

	var keys []models.ValidatorKey
	for rows.Next() {
		var k models.ValidatorKey
		if err := rows.Scan(&k.ChainID, &k.OperatorAddress); err != nil {
			return nil, persistErr("list monitored validators", err)
		}
		keys = append(keys, k)
	}
	return keys, persistErr("list monitored validators", rows.Err())
}

// ListChannelsForChain returns channels with a registration or a preference for the chain
func (s *SQLStorage) ListChannelsForChain(ctx context.Context, chainID string) ([]string, error) {
	rows, err := s.query(ctx, `
		SELECT channel_id FROM registrations WHERE chain_id = ?
		UNION
		SELECT channel_id FROM channel_preferences WHERE chain_id = ?
		ORDER BY channel_id`, chainID, chainID)
	if err != nil {
		return nil, persistErr("list channels", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, persistErr("list channels", err)
		}
		channels = append(channels, ch)
	}
	return channels, persistErr("list channels", rows.Err())
}

// SetRegistrationNotifications toggles alerts for a user's registration
func (s *SQLStorage) SetRegistrationNotifications(ctx context.Context, userID, chainID, operatorAddress string, enabled bool) error {
	res, err := s.exec(ctx, `
		UPDATE registrations SET notifications_enabled = ?
		WHERE user_id = ? AND chain_id = ? AND operator_address = ?`,
		enabled, userID, chainID, operatorAddress)
	if err != nil {
		return persistErr("update registration", err)
	}
	return requireAffected(res)
}

// CountRegistrations returns the total number of registrations
func (s *SQLStorage) CountRegistrations(ctx context.Context) (int64, error) {
	var n int64
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&n)
	return n, persistErr("count registrations", err)
}

// GetChannelPreference returns the stored preference or nil
func (s *SQLStorage) GetChannelPreference(ctx context.Context, channelID, chainID string) (*models.ChannelPreference, error) {
	rows, err := s.query(ctx, `
		SELECT channel_id, chain_id, governance_alerts_enabled, upgrade_alerts_enabled, mention_here_on_alert, updated_at
		FROM channel_preferences WHERE channel_id = ? AND chain_id = ?`, channelID, chainID)
	if err != nil {
		return nil, persistErr("get channel preference", err)
	}
	prefs, err := scanPreferences(rows)
	if err != nil || len(prefs) == 0 {
		return nil, err
	}
	return prefs[0], nil
}

// SaveChannelPreference upserts a channel preference
func (s *SQLStorage) SaveChannelPreference(ctx context.Context, pref *models.ChannelPreference) error {
	pref.UpdatedAt = time.Now().UTC()
	_, err := s.exec(ctx, `
		INSERT INTO channel_preferences
		(channel_id, chain_id, governance_alerts_enabled, upgrade_alerts_enabled, mention_here_on_alert, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (channel_id, chain_id) DO UPDATE SET
			governance_alerts_enabled = excluded.governance_alerts_enabled,
			upgrade_alerts_enabled = excluded.upgrade_alerts_enabled,
			mention_here_on_alert = excluded.mention_here_on_alert,
			updated_at = excluded.updated_at`,
		pref.ChannelID, pref.ChainID, pref.GovernanceAlertsEnabled, pref.UpgradeAlertsEnabled,
		pref.MentionHereOnAlert, pref.UpdatedAt)
	return persistErr("save channel preference", err)
}

// ListChannelPreferences returns all preferences of a channel
func (s *SQLStorage) ListChannelPreferences(ctx context.Context, channelID string) ([]*models.ChannelPreference, error) {
	rows, err := s.query(ctx, `
		SELECT channel_id, chain_id, governance_alerts_enabled, upgrade_alerts_enabled, mention_here_on_alert, updated_at
		FROM channel_preferences WHERE channel_id = ? ORDER BY chain_id`, channelID)
	if err != nil {
		return nil, persistErr("list channel preferences", err)
	}
	return scanPreferences(rows)
}

// PruneOrphans removes snapshots and failure counters of validators nobody is registered for
func (s *SQLStorage) PruneOrphans(ctx context.Context) (*PruneResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistErr("prune", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM validator_snapshots WHERE NOT EXISTS (
			SELECT 1 FROM registrations r
			WHERE r.chain_id = validator_snapshots.chain_id
			AND r.operator_address = validator_snapshots.operator_address)`)
	if err != nil {
		return nil, persistErr("prune snapshots", err)
	}
	snapshots, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, s.dialect.rebind(`
		DELETE FROM failure_counters WHERE entity LIKE ? AND NOT EXISTS (
			SELECT 1 FROM registrations r
			WHERE r.chain_id = failure_counters.chain_id
			AND ? || r.operator_address = failure_counters.entity)`),
		ValidatorEntity("")+"%", ValidatorEntity(""))
	if err != nil {
		return nil, persistErr("prune failure counters", err)
	}
	counters, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, persistErr("prune", err)
	}
	return &PruneResult{ValidatorSnapshots: snapshots, FailureCounters: counters}, nil
}

// GetStorageStats returns row counts used by the health endpoint
func (s *SQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}
	counts := []struct {
		table string
		dst   *int64
	}{
		{"registrations", &stats.Registrations},
		{"validator_snapshots", &stats.ValidatorSnapshots},
		{"proposal_snapshots", &stats.ProposalSnapshots},
		{"upgrade_plans", &stats.PendingUpgrades},
	}
	for _, c := range counts {
		if err := s.queryRow(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, persistErr("storage stats", err)
		}
	}

	var latest time.Time
	err := s.queryRow(ctx, `SELECT observed_at FROM validator_snapshots ORDER BY observed_at DESC LIMIT 1`).Scan(&latest)
	switch {
	case err == nil:
		stats.LatestObservation = &latest
	case !errors.Is(err, sql.ErrNoRows):
		return nil, persistErr("storage stats", err)
	}
	return stats, nil
}

func scanRegistrations(rows *sql.Rows) ([]*models.Registration, error) {
	defer rows.Close()
	var regs []*models.Registration
	for rows.Next() {
		var r models.Registration
		if err := rows.Scan(&r.ID, &r.GuildID, &r.ChannelID, &r.UserID, &r.ChainID,
			&r.OperatorAddress, &r.NotificationsEnabled, &r.CreatedAt); err != nil {
			return nil, persistErr("scan registration", err)
		}
		regs = append(regs, &r)
	}
	return regs, persistErr("scan registration", rows.Err())
}

func scanPreferences(rows *sql.Rows) ([]*models.ChannelPreference, error) {
	defer rows.Close()
	var prefs []*models.ChannelPreference
	for rows.Next() {
		var p models.ChannelPreference
		if err := rows.Scan(&p.ChannelID, &p.ChainID, &p.GovernanceAlertsEnabled,
			&p.UpgradeAlertsEnabled, &p.MentionHereOnAlert, &p.UpdatedAt); err != nil {
			return nil, persistErr("scan channel preference", err)
		}
		prefs = append(prefs, &p)
	}
	return prefs, persistErr("scan channel preference", rows.Err())
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistErr("rows affected", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
