package storage

import (
	"strings"
)

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// columnTypes holds the dialect specific pieces of the schema
type columnTypes struct {
	Timestamp string
	SerialPK  string
}

var (
	sqliteTypes   = columnTypes{Timestamp: "DATETIME", SerialPK: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	postgresTypes = columnTypes{Timestamp: "TIMESTAMPTZ", SerialPK: "BIGSERIAL PRIMARY KEY"}
)

// getMigrations returns the schema for a dialect. Statements are idempotent.
func getMigrations(types columnTypes) []*Migration {
	r := strings.NewReplacer("{{TS}}", types.Timestamp, "{{SERIAL_PK}}", types.SerialPK)
	migrations := []*Migration{
		{
			Version:     "001",
			Description: "Create validator snapshots table",
			SQL: `
				CREATE TABLE IF NOT EXISTS validator_snapshots (
					chain_id TEXT NOT NULL,
					operator_address TEXT NOT NULL,
					moniker TEXT NOT NULL DEFAULT '',
					jailed BOOLEAN NOT NULL DEFAULT FALSE,
					bonding_status TEXT NOT NULL,
					tokens TEXT NOT NULL DEFAULT '0',
					missed_blocks_count BIGINT,
					observed_at {{TS}} NOT NULL,
					PRIMARY KEY (chain_id, operator_address)
				)`,
		},
		{
			Version:     "002",
			Description: "Create proposal snapshots table",
			SQL: `
				CREATE TABLE IF NOT EXISTS proposal_snapshots (
					chain_id TEXT NOT NULL,
					proposal_id BIGINT NOT NULL,
					status TEXT NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					voting_end_time {{TS}},
					observed_at {{TS}} NOT NULL,
					PRIMARY KEY (chain_id, proposal_id)
				)`,
		},
		{
			Version:     "003",
			Description: "Create upgrade plans and chain state tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS upgrade_plans (
					chain_id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					height BIGINT NOT NULL,
					info TEXT NOT NULL DEFAULT '',
					observed_at {{TS}} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS chain_states (
					chain_id TEXT PRIMARY KEY,
					governance_seeded_at {{TS}},
					upgrade_seeded_at {{TS}}
				)`,
		},
		{
			Version:     "004",
			Description: "Create failure counters table",
			SQL: `
				CREATE TABLE IF NOT EXISTS failure_counters (
					chain_id TEXT NOT NULL,
					entity TEXT NOT NULL,
					count INTEGER NOT NULL DEFAULT 0,
					last_error TEXT NOT NULL DEFAULT '',
					updated_at {{TS}} NOT NULL,
					PRIMARY KEY (chain_id, entity)
				)`,
		},
		{
			Version:     "005",
			Description: "Create registrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS registrations (
					id {{SERIAL_PK}},
					guild_id TEXT NOT NULL DEFAULT '',
					channel_id TEXT NOT NULL,
					user_id TEXT NOT NULL,
					chain_id TEXT NOT NULL,
					operator_address TEXT NOT NULL,
					notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
					created_at {{TS}} NOT NULL,
					UNIQUE (user_id, chain_id, operator_address)
				);

				CREATE INDEX IF NOT EXISTS idx_registrations_validator ON registrations(chain_id, operator_address);
				CREATE INDEX IF NOT EXISTS idx_registrations_channel ON registrations(channel_id)`,
		},
		{
			Version:     "006",
			Description: "Create channel preferences table",
			SQL: `
				CREATE TABLE IF NOT EXISTS channel_preferences (
					channel_id TEXT NOT NULL,
					chain_id TEXT NOT NULL,
					governance_alerts_enabled BOOLEAN NOT NULL DEFAULT TRUE,
					upgrade_alerts_enabled BOOLEAN NOT NULL DEFAULT TRUE,
					mention_here_on_alert BOOLEAN NOT NULL DEFAULT FALSE,
					updated_at {{TS}} NOT NULL,
					PRIMARY KEY (channel_id, chain_id)
				)`,
		},
	}
	for _, m := range migrations {
		m.SQL = r.Replace(m.SQL)
	}
	return migrations
}

// statements splits a migration into single statements
func (m *Migration) statements() []string {
	var out []string
	for _, stmt := range strings.Split(m.SQL, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
