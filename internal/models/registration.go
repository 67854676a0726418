package models

import "time"

// Registration links a chat user and channel to a validator they want alerts for
type Registration struct {
	ID                   int64     `json:"id" db:"id"`
	GuildID              string    `json:"guild_id" db:"guild_id"`
	ChannelID            string    `json:"channel_id" db:"channel_id"`
	UserID               string    `json:"user_id" db:"user_id"`
	ChainID              string    `json:"chain_id" db:"chain_id"`
	OperatorAddress      string    `json:"operator_address" db:"operator_address"`
	NotificationsEnabled bool      `json:"notifications_enabled" db:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}

// Key returns the validator this registration points at
func (r *Registration) Key() ValidatorKey {
	return ValidatorKey{ChainID: r.ChainID, OperatorAddress: r.OperatorAddress}
}

// ChannelPreference holds per channel, per chain alert toggles
type ChannelPreference struct {
	ChannelID               string    `json:"channel_id" db:"channel_id"`
	ChainID                 string    `json:"chain_id" db:"chain_id"`
	GovernanceAlertsEnabled bool      `json:"governance_alerts_enabled" db:"governance_alerts_enabled"`
	UpgradeAlertsEnabled    bool      `json:"upgrade_alerts_enabled" db:"upgrade_alerts_enabled"`
	MentionHereOnAlert      bool      `json:"mention_here_on_alert" db:"mention_here_on_alert"`
	UpdatedAt               time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultChannelPreference is used for channels that never set preferences
func DefaultChannelPreference(channelID, chainID string) *ChannelPreference {
	return &ChannelPreference{
		ChannelID:               channelID,
		ChainID:                 chainID,
		GovernanceAlertsEnabled: true,
		UpgradeAlertsEnabled:    true,
		MentionHereOnAlert:      false,
	}
}
