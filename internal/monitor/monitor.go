// File: internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/chain"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/metrics"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/notification"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/storage"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// ErrTickInProgress is returned by RunTick when another tick has not finished
var ErrTickInProgress = errors.New("a poll tick is already running")

// Monitor polls every configured chain, diffs the result against the stored
// snapshots and emits alerts on transitions.
type Monitor struct {
	// Dependencies
	config   *config.Config
	client   chain.Client
	storage  storage.Storage
	notifier notification.Notifier
	clock    Clock
	logger   *logrus.Logger
	metrics  *metrics.Manager

	// Only one tick runs at a time
	tickMu sync.Mutex

	// State management
	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	stats *MonitorStats
}

// MonitorStats provides monitoring statistics
type MonitorStats struct {
	StartTime       time.Time     `json:"start_time"`
	Uptime          time.Duration `json:"uptime"`
	IsRunning       bool          `json:"is_running"`
	TicksCompleted  uint64        `json:"ticks_completed"`
	TicksSkipped    uint64        `json:"ticks_skipped"`
	TicksAborted    uint64        `json:"ticks_aborted"`
	AlertsEmitted   uint64        `json:"alerts_emitted"`
	LastTickAt      *time.Time    `json:"last_tick_at,omitempty"`
	LastTickTook    time.Duration `json:"last_tick_duration"`
	LastError       *string       `json:"last_error,omitempty"`
	LastErrorTime   *time.Time    `json:"last_error_time,omitempty"`
	ChainsMonitored int           `json:"chains_monitored"`
}

// HealthStatus provides health information
type HealthStatus struct {
	Healthy        bool       `json:"healthy"`
	Running        bool       `json:"running"`
	LastTickAt     *time.Time `json:"last_tick_at,omitempty"`
	StorageHealthy bool       `json:"storage_healthy"`
	Issues         []string   `json:"issues,omitempty"`
}

// TickResult summarises one tick
type TickResult struct {
	TickID           string        `json:"tick_id"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	Chains           int           `json:"chains"`
	ValidatorsPolled int64         `json:"validators_polled"`
	FetchFailures    int64         `json:"fetch_failures"`
	AlertsEmitted    int64         `json:"alerts_emitted"`
}

type tickCounters struct {
	polled   atomic.Int64
	failures atomic.Int64
	alerts   atomic.Int64
}

// NewMonitor creates a monitor. clock and metricsManager may be nil.
func NewMonitor(
	cfg *config.Config,
	client chain.Client,
	store storage.Storage,
	notifier notification.Notifier,
	clock Clock,
	metricsManager *metrics.Manager,
) *Monitor {
	if clock == nil {
		clock = RealClock()
	}
	return &Monitor{
		config:   cfg,
		client:   client,
		storage:  store,
		notifier: notifier,
		clock:    clock,
		logger:   utils.GetLogger(),
		metrics:  metricsManager,
		stopChan: make(chan struct{}),
		stats: &MonitorStats{
			StartTime:       clock.Now(),
			ChainsMonitored: len(cfg.Chains),
		},
	}
}

// WithLogger replaces the monitor logger
func (m *Monitor) WithLogger(logger *logrus.Logger) *Monitor {
	m.logger = logger
	return m
}

// Start starts the poll loop
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Monitor already running", "")
	}

	m.running = true
	m.stats.StartTime = m.clock.Now()
	m.stats.IsRunning = true

	m.wg.Add(1)
	go m.monitoringLoop(ctx)

	m.logger.WithFields(logrus.Fields{
		"chains":        len(m.config.Chains),
		"poll_interval": m.config.Monitor.PollInterval,
	}).Info("Validator monitor started")
	return nil
}

// Stop stops the loop and waits for an in-flight tick to finish
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.stats.IsRunning = false
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Validator monitor stopped")
	return nil
}

// IsRunning returns whether the loop is running
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Monitor) monitoringLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(m.config.Monitor.PollInterval)
	defer ticker.Stop()

	if m.config.Monitor.RunOnStart {
		m.tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitoring loop stopped by context")
			return
		case <-m.stopChan:
			m.logger.Info("Monitoring loop stopped by stop signal")
			return
		case <-ticker.C():
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	// an in-flight tick always finishes, even after ctx is cancelled
	if _, err := m.RunTick(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrTickInProgress) {
		m.logger.WithError(err).Error("Poll tick aborted")
	}
}

// RunTick runs one poll over every configured chain. Per entity failures are
// isolated; only a persistence failure aborts the tick.
func (m *Monitor) RunTick(ctx context.Context) (*TickResult, error) {
	if !m.tickMu.TryLock() {
		m.mu.Lock()
		m.stats.TicksSkipped++
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.GetPrometheusMetrics().RecordTickSkipped()
		}
		m.logger.Warn("Previous tick still running, skipping")
		return nil, ErrTickInProgress
	}
	defer m.tickMu.Unlock()

	result := &TickResult{TickID: utils.ShortID(), StartedAt: m.clock.Now()}
	logger := m.logger.WithField("tick_id", result.TickID)
	logger.Debug("Poll tick started")

	err := m.runTick(ctx, result)
	result.Duration = m.clock.Now().Sub(result.StartedAt)
	m.finishTick(result, err)

	if err != nil {
		return result, err
	}
	logger.WithFields(logrus.Fields{
		"chains":            result.Chains,
		"validators_polled": result.ValidatorsPolled,
		"fetch_failures":    result.FetchFailures,
		"alerts":            result.AlertsEmitted,
		"duration":          result.Duration,
	}).Info("Poll tick completed")
	return result, nil
}

func (m *Monitor) runTick(ctx context.Context, result *TickResult) error {
	keys, err := m.storage.ListMonitoredValidators(ctx)
	if err != nil {
		return err
	}

	byChain := make(map[string][]string)
	for _, key := range keys {
		byChain[key.ChainID] = append(byChain[key.ChainID], key.OperatorAddress)
	}
	for chainID, addrs := range byChain {
		if _, ok := m.config.ChainByID(chainID); !ok {
			m.logger.WithFields(logrus.Fields{
				"chain":      chainID,
				"validators": len(addrs),
			}).Warn("Registrations reference a chain that is no longer configured")
		}
	}
	if m.metrics != nil {
		m.metrics.GetPrometheusMetrics().UpdateMonitoredValidators(len(keys))
	}

	chains := make([]*config.ChainConfig, 0, len(m.config.Chains))
	for _, name := range m.config.ChainNames() {
		chains = append(chains, m.config.Chains[name])
	}
	result.Chains = len(chains)

	counters := &tickCounters{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.config.Monitor.ConcurrentChains))
	for _, chainCfg := range chains {
		chainCfg := chainCfg
		addrs := byChain[chainCfg.ChainID]
		sort.Strings(addrs)
		g.Go(func() error {
			return m.pollChain(gctx, chainCfg, addrs, counters)
		})
	}
	err = g.Wait()

	result.ValidatorsPolled = counters.polled.Load()
	result.FetchFailures = counters.failures.Load()
	result.AlertsEmitted = counters.alerts.Load()
	return err
}

func (m *Monitor) finishTick(result *TickResult, err error) {
	now := m.clock.Now()
	status := "success"

	m.mu.Lock()
	m.stats.AlertsEmitted += uint64(result.AlertsEmitted)
	m.stats.LastTickTook = result.Duration
	if err != nil {
		status = "aborted"
		m.stats.TicksAborted++
		msg := err.Error()
		m.stats.LastError = &msg
		m.stats.LastErrorTime = &now
	} else {
		m.stats.TicksCompleted++
		m.stats.LastTickAt = &now
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.GetPrometheusMetrics().RecordTick(status, result.Duration)
	}
}

// GetStats returns a copy of the monitor statistics
func (m *Monitor) GetStats() *MonitorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := *m.stats
	if stats.IsRunning {
		stats.Uptime = m.clock.Now().Sub(stats.StartTime)
	}
	return &stats
}

// GetHealth reports loop and storage health
func (m *Monitor) GetHealth() *HealthStatus {
	stats := m.GetStats()
	health := &HealthStatus{
		Running:        stats.IsRunning,
		LastTickAt:     stats.LastTickAt,
		StorageHealthy: true,
	}

	if err := m.storage.Ping(); err != nil {
		health.StorageHealthy = false
		health.Issues = append(health.Issues, "storage unreachable: "+err.Error())
	}
	if stats.IsRunning && stats.LastTickAt != nil {
		if lag := m.clock.Now().Sub(*stats.LastTickAt); lag > 3*m.config.Monitor.PollInterval {
			health.Issues = append(health.Issues, "no successful tick for "+lag.Round(time.Second).String())
		}
	}
	health.Healthy = len(health.Issues) == 0
	return health
}
