package chain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
)

// PubKey is a typed key as rendered by the REST gateway
type PubKey struct {
	Type string `json:"@type"`
	Key  string `json:"key"`
}

// ValidatorInfo is the validator state returned by the staking module,
// optionally enriched with slashing data.
type ValidatorInfo struct {
	OperatorAddress    string
	Moniker            string
	Jailed             bool
	Status             models.BondStatus
	Tokens             string
	ConsensusPubKey    *PubKey
	ConsensusAddress   string
	MissedBlocks       *int64
	SignedBlocksWindow int64
}

// Snapshot converts the fetched state into a snapshot observed at now
func (v *ValidatorInfo) Snapshot(chainID string, now time.Time) *models.ValidatorSnapshot {
	snap := &models.ValidatorSnapshot{
		ChainID:         chainID,
		OperatorAddress: v.OperatorAddress,
		Moniker:         v.Moniker,
		Jailed:          v.Jailed,
		BondingStatus:   v.Status,
		Tokens:          v.Tokens,
		ObservedAt:      now,
	}
	if v.MissedBlocks != nil {
		missed := *v.MissedBlocks
		snap.MissedBlocksCount = &missed
	}
	return snap
}

// Proposal is a governance proposal as listed by the gov module
type Proposal struct {
	ID            uint64
	Status        models.ProposalStatus
	Title         string
	VotingEndTime *time.Time
}

// uint64String decodes integers the gateway renders as JSON strings
type uint64String uint64

func (u *uint64String) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid integer %s: %w", s, err)
	}
	*u = uint64String(v)
	return nil
}

type validatorResponse struct {
	Validator *struct {
		OperatorAddress string  `json:"operator_address"`
		ConsensusPubkey *PubKey `json:"consensus_pubkey"`
		Jailed          bool    `json:"jailed"`
		Status          string  `json:"status"`
		Tokens          string  `json:"tokens"`
		Description     struct {
			Moniker string `json:"moniker"`
		} `json:"description"`
	} `json:"validator"`
}

type signingInfosResponse struct {
	Info []struct {
		Address             string       `json:"address"`
		MissedBlocksCounter uint64String `json:"missed_blocks_counter"`
	} `json:"info"`
	Pagination *pageResponse `json:"pagination"`
}

type pageResponse struct {
	NextKey *string `json:"next_key"`
}

type slashingParamsResponse struct {
	Params *struct {
		SignedBlocksWindow uint64String `json:"signed_blocks_window"`
	} `json:"params"`
}

type govV1ProposalsResponse struct {
	Proposals []struct {
		ID            uint64String `json:"id"`
		Status        string       `json:"status"`
		Title         string       `json:"title"`
		VotingEndTime *time.Time   `json:"voting_end_time"`
		Messages      []struct {
			Content *struct {
				Title string `json:"title"`
			} `json:"content"`
		} `json:"messages"`
	} `json:"proposals"`
}

type govV1Beta1ProposalsResponse struct {
	Proposals []struct {
		ProposalID    uint64String `json:"proposal_id"`
		Status        string       `json:"status"`
		VotingEndTime *time.Time   `json:"voting_end_time"`
		Content       *struct {
			Title string `json:"title"`
		} `json:"content"`
	} `json:"proposals"`
}

type upgradePlanResponse struct {
	Plan *struct {
		Name   string       `json:"name"`
		Height uint64String `json:"height"`
		Info   string       `json:"info"`
	} `json:"plan"`
}

type latestBlockResponse struct {
	Block *struct {
		Header struct {
			Height uint64String `json:"height"`
		} `json:"header"`
	} `json:"block"`
	SDKBlock *struct {
		Header struct {
			Height uint64String `json:"height"`
		} `json:"header"`
	} `json:"sdk_block"`
}

// votingEnd drops the zero timestamp the gateway renders for proposals still in deposit
func votingEnd(t *time.Time) *time.Time {
	if t == nil || t.IsZero() || t.Year() <= 1 {
		return nil
	}
	v := t.UTC()
	return &v
}
