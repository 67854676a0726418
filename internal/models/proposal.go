package models

import (
	"fmt"
	"strings"
	"time"
)

// ProposalStatus is the lifecycle state of a governance proposal
type ProposalStatus string

const (
	ProposalStatusDepositPeriod ProposalStatus = "DEPOSIT_PERIOD"
	ProposalStatusVotingPeriod  ProposalStatus = "VOTING_PERIOD"
	ProposalStatusPassed        ProposalStatus = "PASSED"
	ProposalStatusRejected      ProposalStatus = "REJECTED"
	ProposalStatusFailed        ProposalStatus = "FAILED"
)

// ParseProposalStatus accepts both DEPOSIT_PERIOD and PROPOSAL_STATUS_DEPOSIT_PERIOD forms.
// PROPOSAL_STATUS_UNSPECIFIED is reported as an error.
func ParseProposalStatus(s string) (ProposalStatus, error) {
	v := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "PROPOSAL_STATUS_")
	switch ProposalStatus(v) {
	case ProposalStatusDepositPeriod, ProposalStatusVotingPeriod,
		ProposalStatusPassed, ProposalStatusRejected, ProposalStatusFailed:
		return ProposalStatus(v), nil
	}
	return "", fmt.Errorf("unknown proposal status %q", s)
}

// Rank orders statuses along the proposal lifecycle. Terminal statuses share the top rank.
func (s ProposalStatus) Rank() int {
	switch s {
	case ProposalStatusDepositPeriod:
		return 1
	case ProposalStatusVotingPeriod:
		return 2
	case ProposalStatusPassed, ProposalStatusRejected, ProposalStatusFailed:
		return 3
	}
	return 0
}

// IsTerminal reports whether no further transition is expected
func (s ProposalStatus) IsTerminal() bool {
	return s.Rank() == 3
}

// IsRegression reports whether moving from s to next goes backwards in the lifecycle
func (s ProposalStatus) IsRegression(next ProposalStatus) bool {
	if s == next {
		return false
	}
	if s.IsTerminal() {
		return true
	}
	return next.Rank() < s.Rank()
}

// ProposalSnapshot is the last observed state of a governance proposal
type ProposalSnapshot struct {
	ChainID       string         `json:"chain_id" db:"chain_id"`
	ProposalID    uint64         `json:"proposal_id" db:"proposal_id"`
	Status        ProposalStatus `json:"status" db:"status"`
	Title         string         `json:"title" db:"title"`
	VotingEndTime *time.Time     `json:"voting_end_time,omitempty" db:"voting_end_time"`
	ObservedAt    time.Time      `json:"observed_at" db:"observed_at"`
}

// UpgradePlan is a pending software upgrade on a chain
type UpgradePlan struct {
	ChainID    string    `json:"chain_id" db:"chain_id"`
	Name       string    `json:"name" db:"name"`
	Height     int64     `json:"height" db:"height"`
	Info       string    `json:"info" db:"info"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
}

// SamePlan reports whether two plans describe the same scheduled upgrade
func (p *UpgradePlan) SamePlan(other *UpgradePlan) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Name == other.Name && p.Height == other.Height
}

// ChainState holds chain level bookkeeping for the poll loop
type ChainState struct {
	ChainID            string     `json:"chain_id" db:"chain_id"`
	GovernanceSeededAt *time.Time `json:"governance_seeded_at,omitempty" db:"governance_seeded_at"`
	UpgradeSeededAt    *time.Time `json:"upgrade_seeded_at,omitempty" db:"upgrade_seeded_at"`
}
