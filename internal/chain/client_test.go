package chain

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/cache"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

var testPubKey = make([]byte, 32)

func testConsAddress(t *testing.T) string {
	sum := sha256.Sum256(testPubKey)
	addr, err := bech32.ConvertAndEncode("cosmosvalcons", sum[:20])
	require.NoError(t, err)
	return addr
}

func newTestClient() *RESTClient {
	return NewRESTClient(2*time.Second, cache.NewMemoryCache(time.Minute, ""), time.Minute).
		WithLogger(utils.NewDiscardLogger())
}

func testChain(urls ...string) *config.ChainConfig {
	return &config.ChainConfig{
		ChainID:               "cosmoshub-4",
		Name:                  "cosmoshub",
		RESTBaseURL:           urls[0],
		BackupURLs:            urls[1:],
		OperatorPrefix:        "cosmosvaloper",
		ConsensusPrefix:       "cosmosvalcons",
		Denom:                 "uatom",
		Decimals:              6,
		MissedBlockThreshold:  50,
		MissedBlocksSupported: true,
		GovAPIVersion:         "v1",
	}
}

func chainServer(t *testing.T, consAddr string, signingCalls *int32) *httptest.Server {
	key := base64.StdEncoding.EncodeToString(testPubKey)
	mux := http.NewServeMux()
	mux.HandleFunc("/cosmos/staking/v1beta1/validators/cosmosvaloper1good", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"validator":{"operator_address":"cosmosvaloper1good",
			"consensus_pubkey":{"@type":"/cosmos.crypto.ed25519.PubKey","key":"` + key + `"},
			"jailed":true,"status":"BOND_STATUS_UNBONDING","tokens":"1500000",
			"description":{"moniker":"Good Val"}}}`))
	})
	mux.HandleFunc("/cosmos/staking/v1beta1/validators/cosmosvaloper1broken", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"validator":`))
	})
	mux.HandleFunc("/cosmos/slashing/v1beta1/signing_infos", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(signingCalls, 1)
		if r.URL.Query().Get("pagination.key") == "" {
			_, _ = w.Write([]byte(`{"info":[{"address":"cosmosvalcons1other","missed_blocks_counter":"3"}],
				"pagination":{"next_key":"cGFnZTI="}}`))
			return
		}
		_, _ = w.Write([]byte(`{"info":[{"address":"` + consAddr + `","missed_blocks_counter":"77"}],
			"pagination":{"next_key":null}}`))
	})
	mux.HandleFunc("/cosmos/slashing/v1beta1/params", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"params":{"signed_blocks_window":"10000"}}`))
	})
	mux.HandleFunc("/cosmos/gov/v1/proposals", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("pagination.reverse"))
		_, _ = w.Write([]byte(`{"proposals":[
			{"id":"12","status":"PROPOSAL_STATUS_VOTING_PERIOD","title":"Raise limits","voting_end_time":"2026-11-01T12:00:00Z"},
			{"id":"11","status":"PROPOSAL_STATUS_DEPOSIT_PERIOD","title":"","voting_end_time":"0001-01-01T00:00:00Z",
			 "messages":[{"content":{"title":"Legacy content"}}]},
			{"id":"10","status":"PROPOSAL_STATUS_UNSPECIFIED","title":"odd"}]}`))
	})
	mux.HandleFunc("/cosmos/gov/v1beta1/proposals", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"proposals":[{"proposal_id":"5","status":"PROPOSAL_STATUS_PASSED","content":{"title":"Old style"}}]}`))
	})
	mux.HandleFunc("/cosmos/upgrade/v1beta1/current_plan", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"plan":{"name":"v19","height":"2000000","info":"binaries"}}`))
	})
	mux.HandleFunc("/cosmos/base/tendermint/v1beta1/blocks/latest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"block":{"header":{"height":"1999000"}}}`))
	})
	return httptest.NewServer(mux)
}

func TestGetValidatorWithMissedBlocks(t *testing.T) {
	consAddr := testConsAddress(t)
	var calls int32
	srv := chainServer(t, consAddr, &calls)
	defer srv.Close()

	client := newTestClient()
	chain := testChain(srv.URL)

	info, err := client.GetValidator(context.Background(), chain, "cosmosvaloper1good")
	require.NoError(t, err)
	assert.Equal(t, "Good Val", info.Moniker)
	assert.True(t, info.Jailed)
	assert.Equal(t, models.BondStatusUnbonding, info.Status)
	assert.Equal(t, "1500000", info.Tokens)
	assert.Equal(t, consAddr, info.ConsensusAddress)
	require.NotNil(t, info.MissedBlocks)
	assert.Equal(t, int64(77), *info.MissedBlocks)
	assert.Equal(t, int64(10000), info.SignedBlocksWindow)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	// second lookup is served from the cache
	_, err = client.GetValidator(context.Background(), chain, "cosmosvaloper1good")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	snap := info.Snapshot(chain.ChainID, time.Unix(100, 0))
	assert.Equal(t, int64(77), snap.MissedBlocks())
	assert.Equal(t, "cosmoshub-4", snap.ChainID)
}

func TestGetValidatorWithoutSlashingModule(t *testing.T) {
	var calls int32
	srv := chainServer(t, testConsAddress(t), &calls)
	defer srv.Close()
	slashingDown := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cosmos/slashing/v1beta1/signing_infos" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		srv.Config.Handler.ServeHTTP(w, r)
	}))
	defer slashingDown.Close()

	info, err := newTestClient().GetValidator(context.Background(), testChain(slashingDown.URL), "cosmosvaloper1good")
	require.NoError(t, err)
	assert.True(t, info.Jailed)
	assert.Equal(t, models.BondStatusUnbonding, info.Status)
	assert.Nil(t, info.MissedBlocks)
	assert.Nil(t, info.Snapshot("cosmoshub-4", time.Unix(100, 0)).MissedBlocksCount)
}

func TestFreshReadSkipsSlashingCache(t *testing.T) {
	var calls int32
	srv := chainServer(t, testConsAddress(t), &calls)
	defer srv.Close()
	client := newTestClient()
	chain := testChain(srv.URL)

	_, err := client.GetValidator(context.Background(), chain, "cosmosvaloper1good")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	ctx := WithFreshRead(context.Background())
	assert.True(t, IsFreshRead(ctx))
	assert.False(t, IsFreshRead(context.Background()))
	info, err := client.GetValidator(ctx, chain, "cosmosvaloper1good")
	require.NoError(t, err)
	require.NotNil(t, info.MissedBlocks)
	assert.Equal(t, int64(77), *info.MissedBlocks)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestGetValidatorErrorKinds(t *testing.T) {
	var calls int32
	srv := chainServer(t, "", &calls)
	defer srv.Close()
	client := newTestClient()
	chain := testChain(srv.URL)

	_, err := client.GetValidator(context.Background(), chain, "cosmosvaloper1missing")
	assert.Equal(t, KindNotFound, Classify(err))

	_, err = client.GetValidator(context.Background(), chain, "cosmosvaloper1broken")
	assert.Equal(t, KindMalformed, Classify(err))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	_, err = client.GetValidator(context.Background(), testChain(down.URL), "cosmosvaloper1good")
	assert.Equal(t, KindNetwork, Classify(err))
}

func TestFailoverToBackupEndpoint(t *testing.T) {
	var calls int32
	srv := chainServer(t, testConsAddress(t), &calls)
	defer srv.Close()

	var primaryHits int32
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer primary.Close()

	client := newTestClient()
	chain := testChain(primary.URL, srv.URL)

	height, err := client.GetLatestHeight(context.Background(), chain)
	require.NoError(t, err)
	assert.Equal(t, int64(1999000), height)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryHits))

	// the healthy backup stays selected
	_, err = client.GetLatestHeight(context.Background(), chain)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&primaryHits))

	stats := client.Stats()["cosmoshub-4"]
	assert.Equal(t, uint64(3), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.FailedRequests)
	assert.Equal(t, uint64(1), stats.Failovers)
}

func TestGetProposals(t *testing.T) {
	var calls int32
	srv := chainServer(t, "", &calls)
	defer srv.Close()
	client := newTestClient()
	chain := testChain(srv.URL)

	proposals, err := client.GetProposals(context.Background(), chain, 20)
	require.NoError(t, err)
	require.Len(t, proposals, 2)
	assert.Equal(t, uint64(12), proposals[0].ID)
	assert.Equal(t, models.ProposalStatusVotingPeriod, proposals[0].Status)
	require.NotNil(t, proposals[0].VotingEndTime)
	assert.Equal(t, 2026, proposals[0].VotingEndTime.Year())
	assert.Equal(t, "Legacy content", proposals[1].Title)
	assert.Nil(t, proposals[1].VotingEndTime)

	chain.GovAPIVersion = "v1beta1"
	proposals, err = client.GetProposals(context.Background(), chain, 20)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, uint64(5), proposals[0].ID)
	assert.Equal(t, "Old style", proposals[0].Title)
}

func TestGetUpgradePlan(t *testing.T) {
	var calls int32
	srv := chainServer(t, "", &calls)
	defer srv.Close()
	client := newTestClient()

	plan, err := client.GetUpgradePlan(context.Background(), testChain(srv.URL))
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "v19", plan.Name)
	assert.Equal(t, int64(2000000), plan.Height)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"plan":null}`))
	}))
	defer empty.Close()
	plan, err = client.GetUpgradePlan(context.Background(), testChain(empty.URL))
	require.NoError(t, err)
	assert.Nil(t, plan)
}
