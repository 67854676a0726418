package models

import (
	"fmt"
	"strings"
	"time"
)

// BondStatus is the staking status of a validator
type BondStatus string

const (
	BondStatusBonded    BondStatus = "BONDED"
	BondStatusUnbonding BondStatus = "UNBONDING"
	BondStatusUnbonded  BondStatus = "UNBONDED"
)

// ParseBondStatus accepts both the short form and the BOND_STATUS_* form returned by the staking API
func ParseBondStatus(s string) (BondStatus, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "BOND_STATUS_") {
	case "BONDED":
		return BondStatusBonded, nil
	case "UNBONDING":
		return BondStatusUnbonding, nil
	case "UNBONDED":
		return BondStatusUnbonded, nil
	}
	return "", fmt.Errorf("unknown bond status %q", s)
}

// Label returns a human readable status name
func (s BondStatus) Label() string {
	switch s {
	case BondStatusBonded:
		return "Bonded"
	case BondStatusUnbonding:
		return "Unbonding"
	case BondStatusUnbonded:
		return "Unbonded"
	}
	return string(s)
}

// ValidatorSnapshot is the last observed state of a validator on a chain
type ValidatorSnapshot struct {
	ChainID           string     `json:"chain_id" db:"chain_id"`
	OperatorAddress   string     `json:"operator_address" db:"operator_address"`
	Moniker           string     `json:"moniker" db:"moniker"`
	Jailed            bool       `json:"jailed" db:"jailed"`
	BondingStatus     BondStatus `json:"bonding_status" db:"bonding_status"`
	Tokens            string     `json:"tokens" db:"tokens"`
	MissedBlocksCount *int64     `json:"missed_blocks_count,omitempty" db:"missed_blocks_count"`
	ObservedAt        time.Time  `json:"observed_at" db:"observed_at"`
}

// MissedBlocks returns the missed block count, treating an unknown count as zero
func (v *ValidatorSnapshot) MissedBlocks() int64 {
	if v == nil || v.MissedBlocksCount == nil {
		return 0
	}
	return *v.MissedBlocksCount
}

// ValidatorKey identifies a monitored validator
type ValidatorKey struct {
	ChainID         string `json:"chain_id"`
	OperatorAddress string `json:"operator_address"`
}

func (k ValidatorKey) String() string {
	return k.ChainID + "/" + k.OperatorAddress
}

// ValidatorStatus is the result of a fresh status query
type ValidatorStatus struct {
	Snapshot     *ValidatorSnapshot `json:"snapshot"`
	SignedWindow int64              `json:"signed_blocks_window,omitempty"`
	Uptime       *float64           `json:"uptime,omitempty"`
	StakeDisplay string             `json:"stake"`
	LatestHeight int64              `json:"latest_height,omitempty"`
}
