package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/cache"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

const (
	maxResponseBytes     = 8 << 20
	signingInfoPageLimit = 500
	maxSigningInfoPages  = 20
)

// Client fetches validator, governance and upgrade state from a chain
type Client interface {
	GetValidator(ctx context.Context, chain *config.ChainConfig, operatorAddress string) (*ValidatorInfo, error)
	GetProposals(ctx context.Context, chain *config.ChainConfig, limit int) ([]Proposal, error)
	GetUpgradePlan(ctx context.Context, chain *config.ChainConfig) (*models.UpgradePlan, error)
	GetLatestHeight(ctx context.Context, chain *config.ChainConfig) (int64, error)
}

// EndpointStats holds per chain request statistics
type EndpointStats struct {
	TotalRequests  uint64    `json:"total_requests"`
	FailedRequests uint64    `json:"failed_requests"`
	Failovers      uint64    `json:"failovers"`
	CurrentURL     string    `json:"current_url"`
	LastSuccessAt  time.Time `json:"last_success_at"`
}

// RESTClient talks to the Cosmos SDK REST gateway. Each chain may list backup
// endpoints; a network failure moves the chain to the next endpoint.
type RESTClient struct {
	httpClient *http.Client
	cache      cache.Cache
	cacheTTL   time.Duration
	logger     *logrus.Logger

	mu      sync.Mutex
	current map[string]int
	stats   map[string]*EndpointStats
}

// NewRESTClient creates a REST client. c may be nil to disable signing info caching.
func NewRESTClient(timeout time.Duration, c cache.Cache, cacheTTL time.Duration) *RESTClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RESTClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   utils.GetLogger(),
		current:  make(map[string]int),
		stats:    make(map[string]*EndpointStats),
	}
}

// WithLogger replaces the client's logger
func (c *RESTClient) WithLogger(logger *logrus.Logger) *RESTClient {
	c.logger = logger
	return c
}

// Stats returns a copy of the per chain endpoint statistics
func (c *RESTClient) Stats() map[string]EndpointStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]EndpointStats, len(c.stats))
	for k, v := range c.stats {
		out[k] = *v
	}
	return out
}

type freshReadKey struct{}

// WithFreshRead marks ctx so slashing data is fetched from the chain instead
// of the cache. The fetched data still refreshes the cache.
func WithFreshRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshReadKey{}, true)
}

// IsFreshRead reports whether ctx was marked by WithFreshRead
func IsFreshRead(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshReadKey{}).(bool)
	return fresh
}

// GetValidator fetches a validator from the staking module and, for chains
// that support it, its missed block counter from the slashing module. An
// unavailable slashing module leaves MissedBlocks nil.
func (c *RESTClient) GetValidator(ctx context.Context, chain *config.ChainConfig, operatorAddress string) (*ValidatorInfo, error) {
	var resp validatorResponse
	path := "/cosmos/staking/v1beta1/validators/" + url.PathEscape(operatorAddress)
	if err := c.getJSON(ctx, chain, path, nil, "validator "+operatorAddress, &resp); err != nil {
		return nil, err
	}
	if resp.Validator == nil {
		return nil, &MalformedResponseError{URL: path, Err: errors.New("missing validator object")}
	}
	status, err := models.ParseBondStatus(resp.Validator.Status)
	if err != nil {
		return nil, &MalformedResponseError{URL: path, Err: err}
	}

	info := &ValidatorInfo{
		OperatorAddress: resp.Validator.OperatorAddress,
		Moniker:         resp.Validator.Description.Moniker,
		Jailed:          resp.Validator.Jailed,
		Status:          status,
		Tokens:          resp.Validator.Tokens,
		ConsensusPubKey: resp.Validator.ConsensusPubkey,
	}
	if info.OperatorAddress == "" {
		info.OperatorAddress = operatorAddress
	}

	if !chain.MissedBlocksSupported {
		return info, nil
	}

	consAddr, err := ConsensusAddress(info.ConsensusPubKey, chain.ConsensusPrefix)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"chain":     chain.ChainID,
			"validator": operatorAddress,
			"error":     err,
		}).Debug("Cannot derive consensus address, missed blocks unavailable")
		return info, nil
	}
	info.ConsensusAddress = consAddr

	missed, err := c.signingInfos(ctx, chain)
	if err != nil {
		kind := Classify(err)
		if kind == KindCanceled {
			return nil, err
		}
		c.logger.WithFields(logrus.Fields{
			"chain":      chain.ChainID,
			"validator":  operatorAddress,
			"error_kind": kind,
			"error":      err,
		}).Warn("Signing infos unavailable, missed blocks unknown")
		return info, nil
	}
	if count, ok := missed[consAddr]; ok {
		info.MissedBlocks = &count
	}

	window, err := c.signedBlocksWindow(ctx, chain)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"chain": chain.ChainID,
			"error": err,
		}).Debug("Failed to fetch slashing params")
	} else {
		info.SignedBlocksWindow = window
	}

	return info, nil
}

// signingInfos returns missed block counters keyed by consensus address.
// The full set is fetched once per chain and cached.
func (c *RESTClient) signingInfos(ctx context.Context, chain *config.ChainConfig) (map[string]int64, error) {
	key := "signing_infos:" + chain.ChainID
	if c.cache != nil && !IsFreshRead(ctx) {
		if raw, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var cached map[string]int64
			if json.Unmarshal(raw, &cached) == nil {
				return cached, nil
			}
		} else if err != nil {
			c.logger.WithField("error", err).Warn("Signing info cache read failed")
		}
	}

	out := make(map[string]int64)
	var nextKey string
	for page := 0; page < maxSigningInfoPages; page++ {
		query := url.Values{}
		query.Set("pagination.limit", strconv.Itoa(signingInfoPageLimit))
		if nextKey != "" {
			query.Set("pagination.key", nextKey)
		}
		var resp signingInfosResponse
		if err := c.getJSON(ctx, chain, "/cosmos/slashing/v1beta1/signing_infos", query, "signing infos", &resp); err != nil {
			return nil, err
		}
		for _, info := range resp.Info {
			out[info.Address] = int64(info.MissedBlocksCounter)
		}
		if resp.Pagination == nil || resp.Pagination.NextKey == nil || *resp.Pagination.NextKey == "" {
			break
		}
		nextKey = *resp.Pagination.NextKey
	}

	if c.cache != nil {
		if raw, err := json.Marshal(out); err == nil {
			if err := c.cache.Set(ctx, key, raw, c.cacheTTL); err != nil {
				c.logger.WithField("error", err).Warn("Signing info cache write failed")
			}
		}
	}
	return out, nil
}

func (c *RESTClient) signedBlocksWindow(ctx context.Context, chain *config.ChainConfig) (int64, error) {
	key := "slashing_window:" + chain.ChainID
	if c.cache != nil && !IsFreshRead(ctx) {
		if raw, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			if v, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
				return v, nil
			}
		}
	}
	var resp slashingParamsResponse
	path := "/cosmos/slashing/v1beta1/params"
	if err := c.getJSON(ctx, chain, path, nil, "slashing params", &resp); err != nil {
		return 0, err
	}
	if resp.Params == nil {
		return 0, &MalformedResponseError{URL: path, Err: errors.New("missing params object")}
	}
	window := int64(resp.Params.SignedBlocksWindow)
	if c.cache != nil {
		_ = c.cache.Set(ctx, key, []byte(strconv.FormatInt(window, 10)), c.cacheTTL)
	}
	return window, nil
}

// GetProposals returns the most recent proposals, newest first
func (c *RESTClient) GetProposals(ctx context.Context, chain *config.ChainConfig, limit int) ([]Proposal, error) {
	query := url.Values{}
	query.Set("pagination.limit", strconv.Itoa(limit))
	query.Set("pagination.reverse", "true")

	if chain.GovAPIVersion == "v1beta1" {
		return c.proposalsV1Beta1(ctx, chain, query)
	}
	return c.proposalsV1(ctx, chain, query)
}

func (c *RESTClient) proposalsV1(ctx context.Context, chain *config.ChainConfig, query url.Values) ([]Proposal, error) {
	var resp govV1ProposalsResponse
	if err := c.getJSON(ctx, chain, "/cosmos/gov/v1/proposals", query, "proposals", &resp); err != nil {
		return nil, err
	}
	out := make([]Proposal, 0, len(resp.Proposals))
	for _, p := range resp.Proposals {
		status, err := models.ParseProposalStatus(p.Status)
		if err != nil {
			c.logProposalSkipped(chain, uint64(p.ID), err)
			continue
		}
		title := p.Title
		for _, msg := range p.Messages {
			if title != "" {
				break
			}
			if msg.Content != nil {
				title = msg.Content.Title
			}
		}
		out = append(out, Proposal{
			ID:            uint64(p.ID),
			Status:        status,
			Title:         proposalTitle(title, uint64(p.ID)),
			VotingEndTime: votingEnd(p.VotingEndTime),
		})
	}
	return out, nil
}

func (c *RESTClient) proposalsV1Beta1(ctx context.Context, chain *config.ChainConfig, query url.Values) ([]Proposal, error) {
	var resp govV1Beta1ProposalsResponse
	if err := c.getJSON(ctx, chain, "/cosmos/gov/v1beta1/proposals", query, "proposals", &resp); err != nil {
		return nil, err
	}
	out := make([]Proposal, 0, len(resp.Proposals))
	for _, p := range resp.Proposals {
		status, err := models.ParseProposalStatus(p.Status)
		if err != nil {
			c.logProposalSkipped(chain, uint64(p.ProposalID), err)
			continue
		}
		var title string
		if p.Content != nil {
			title = p.Content.Title
		}
		out = append(out, Proposal{
			ID:            uint64(p.ProposalID),
			Status:        status,
			Title:         proposalTitle(title, uint64(p.ProposalID)),
			VotingEndTime: votingEnd(p.VotingEndTime),
		})
	}
	return out, nil
}

func (c *RESTClient) logProposalSkipped(chain *config.ChainConfig, id uint64, err error) {
	c.logger.WithFields(logrus.Fields{
		"chain":       chain.ChainID,
		"proposal_id": id,
		"error":       err,
	}).Debug("Skipping proposal with unrecognised status")
}

func proposalTitle(title string, id uint64) string {
	if title == "" {
		return fmt.Sprintf("Proposal #%d", id)
	}
	return title
}

// GetUpgradePlan returns the pending upgrade plan, or nil when none is scheduled
func (c *RESTClient) GetUpgradePlan(ctx context.Context, chain *config.ChainConfig) (*models.UpgradePlan, error) {
	var resp upgradePlanResponse
	if err := c.getJSON(ctx, chain, "/cosmos/upgrade/v1beta1/current_plan", nil, "upgrade plan", &resp); err != nil {
		return nil, err
	}
	if resp.Plan == nil || resp.Plan.Name == "" {
		return nil, nil
	}
	return &models.UpgradePlan{
		ChainID: chain.ChainID,
		Name:    resp.Plan.Name,
		Height:  int64(resp.Plan.Height),
		Info:    resp.Plan.Info,
	}, nil
}

// GetLatestHeight returns the latest block height
func (c *RESTClient) GetLatestHeight(ctx context.Context, chain *config.ChainConfig) (int64, error) {
	var resp latestBlockResponse
	path := "/cosmos/base/tendermint/v1beta1/blocks/latest"
	if err := c.getJSON(ctx, chain, path, nil, "latest block", &resp); err != nil {
		return 0, err
	}
	switch {
	case resp.SDKBlock != nil && resp.SDKBlock.Header.Height > 0:
		return int64(resp.SDKBlock.Header.Height), nil
	case resp.Block != nil && resp.Block.Header.Height > 0:
		return int64(resp.Block.Header.Height), nil
	}
	return 0, &MalformedResponseError{URL: path, Err: errors.New("missing block header")}
}

// getJSON performs a GET against the chain, failing over between endpoints on network errors
func (c *RESTClient) getJSON(ctx context.Context, chain *config.ChainConfig, path string, query url.Values, resource string, out any) error {
	endpoints := chain.Endpoints()
	start := c.currentIndex(chain.ChainID, len(endpoints))

	var lastErr error
	for i := 0; i < len(endpoints); i++ {
		idx := (start + i) % len(endpoints)
		body, err := c.get(ctx, endpoints[idx], path, query, resource)
		c.record(chain.ChainID, endpoints[idx], err)
		if err == nil {
			if i > 0 {
				c.switchEndpoint(chain.ChainID, idx)
			}
			if err := json.Unmarshal(body, out); err != nil {
				return &MalformedResponseError{URL: endpoints[idx] + path, Err: err}
			}
			return nil
		}
		lastErr = err
		if Classify(err) != KindNetwork || ctx.Err() != nil {
			return err
		}
		if i+1 < len(endpoints) {
			c.logger.WithFields(logrus.Fields{
				"chain":    chain.ChainID,
				"endpoint": endpoints[idx],
				"error":    err,
			}).Warn("Endpoint failed, trying next")
		}
	}
	return lastErr
}

func (c *RESTClient) get(ctx context.Context, base, path string, query url.Values, resource string) ([]byte, error) {
	target := base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &NetworkError{URL: target, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, &NotFoundError{URL: target, Resource: resource}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &NetworkError{URL: target, StatusCode: resp.StatusCode}
	}
	return body, nil
}

func (c *RESTClient) currentIndex(chainID string, n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.current[chainID]
	if idx >= n {
		idx = 0
	}
	return idx
}

func (c *RESTClient) switchEndpoint(chainID string, idx int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current[chainID] = idx
	if s, ok := c.stats[chainID]; ok {
		s.Failovers++
	}
	c.logger.WithFields(logrus.Fields{
		"chain":     chainID,
		"new_index": idx,
	}).Info("Switched chain endpoint")
}

func (c *RESTClient) record(chainID, endpoint string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[chainID]
	if !ok {
		s = &EndpointStats{}
		c.stats[chainID] = s
	}
	s.TotalRequests++
	if err != nil {
		s.FailedRequests++
		return
	}
	s.CurrentURL = endpoint
	s.LastSuccessAt = time.Now()
}
