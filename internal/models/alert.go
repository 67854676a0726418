package models

import "time"

// AlertKind names the transition that produced an alert
type AlertKind string

const (
	AlertKindJailed           AlertKind = "jailed"
	AlertKindUnjailed         AlertKind = "unjailed"
	AlertKindStatusChanged    AlertKind = "status_changed"
	AlertKindMissedBlocks     AlertKind = "missed_blocks"
	AlertKindNewProposal      AlertKind = "new_proposal"
	AlertKindProposalStatus   AlertKind = "proposal_status"
	AlertKindUpgradeScheduled AlertKind = "upgrade_scheduled"
	AlertKindUpgradeCleared   AlertKind = "upgrade_cleared"
	AlertKindFetchFailure     AlertKind = "fetch_failure"
	AlertKindFetchRecovered   AlertKind = "fetch_recovered"
	AlertKindTestNotification AlertKind = "test_notification"
)

// Severity of an alert
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Field is one name/value row of an alert body
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Alert is a rendered-agnostic notification addressed to one channel
type Alert struct {
	ID             string    `json:"id"`
	Kind           AlertKind `json:"kind"`
	Severity       Severity  `json:"severity"`
	ChainID        string    `json:"chain_id"`
	Subject        string    `json:"subject,omitempty"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Fields         []Field   `json:"fields,omitempty"`
	ChannelID      string    `json:"channel_id"`
	MentionHere    bool      `json:"mention_here"`
	MentionUserIDs []string  `json:"mention_user_ids,omitempty"`
	Mirror         bool      `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// AddField appends a body row
func (a *Alert) AddField(name, value string, inline bool) {
	a.Fields = append(a.Fields, Field{Name: name, Value: value, Inline: inline})
}

// Clone returns a copy of the alert with its own slices
func (a *Alert) Clone() *Alert {
	c := *a
	c.Fields = append([]Field(nil), a.Fields...)
	c.MentionUserIDs = append([]string(nil), a.MentionUserIDs...)
	return &c
}
