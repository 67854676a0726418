package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		name     string
		tokens   string
		decimals int32
		denom    string
		want     string
	}{
		{"micro denom", "1234500000", 6, "uatom", "1,234.50 ATOM"},
		{"atto denom", "2500000000000000000", 18, "aevmos", "2.50 EVMOS"},
		{"large", "1000000000000", 6, "uosmo", "1,000,000.00 OSMO"},
		{"plain denom", "42", 0, "stake", "42.00 STAKE"},
		{"unparseable", "abc", 6, "uatom", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTokens(tt.tokens, tt.decimals, tt.denom))
		})
	}
}

func TestUptime(t *testing.T) {
	up, ok := Uptime(10000, 250)
	assert.True(t, ok)
	assert.InDelta(t, 97.5, up, 0.0001)

	up, ok = Uptime(100, 500)
	assert.True(t, ok)
	assert.Equal(t, 0.0, up)

	_, ok = Uptime(0, 1)
	assert.False(t, ok)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[██████████░░░░░░░░░░] 50.00%", ProgressBar(50))
	assert.Equal(t, "[████████████████████] 100.00%", ProgressBar(120))
	assert.Equal(t, "[░░░░░░░░░░░░░░░░░░░░] 0.00%", ProgressBar(-3))
}

func TestParseBondStatus(t *testing.T) {
	s, err := ParseBondStatus("BOND_STATUS_BONDED")
	assert.NoError(t, err)
	assert.Equal(t, BondStatusBonded, s)

	s, err = ParseBondStatus("unbonding")
	assert.NoError(t, err)
	assert.Equal(t, BondStatusUnbonding, s)

	_, err = ParseBondStatus("BOND_STATUS_UNSPECIFIED")
	assert.Error(t, err)
}

func TestProposalStatusLifecycle(t *testing.T) {
	s, err := ParseProposalStatus("PROPOSAL_STATUS_VOTING_PERIOD")
	assert.NoError(t, err)
	assert.Equal(t, ProposalStatusVotingPeriod, s)

	_, err = ParseProposalStatus("PROPOSAL_STATUS_UNSPECIFIED")
	assert.Error(t, err)

	assert.False(t, ProposalStatusDepositPeriod.IsRegression(ProposalStatusVotingPeriod))
	assert.False(t, ProposalStatusVotingPeriod.IsRegression(ProposalStatusPassed))
	assert.False(t, ProposalStatusPassed.IsRegression(ProposalStatusPassed))
	assert.True(t, ProposalStatusPassed.IsRegression(ProposalStatusVotingPeriod))
	assert.True(t, ProposalStatusPassed.IsRegression(ProposalStatusRejected))
	assert.True(t, ProposalStatusVotingPeriod.IsRegression(ProposalStatusDepositPeriod))
	assert.True(t, ProposalStatusFailed.IsTerminal())
}

func TestUpgradePlanSamePlan(t *testing.T) {
	a := &UpgradePlan{Name: "v2", Height: 100}
	assert.True(t, a.SamePlan(&UpgradePlan{Name: "v2", Height: 100, Info: "other"}))
	assert.False(t, a.SamePlan(&UpgradePlan{Name: "v2", Height: 101}))
	assert.False(t, a.SamePlan(nil))
	var none *UpgradePlan
	assert.True(t, none.SamePlan(nil))
}

func TestTokenSymbol(t *testing.T) {
	assert.Equal(t, "ATOM", TokenSymbol("uatom", 6))
	assert.Equal(t, "EVMOS", TokenSymbol("aevmos", 18))
	assert.Equal(t, "STAKE", TokenSymbol("stake", 0))
}
