package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/metrics"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/monitor"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/notification"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/service"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

type fakeCommands struct {
	regs         []*models.Registration
	lastRegister service.RegisterRequest
	lastUnreg    []string
	lastPref     service.ChainPreferenceUpdate
}

func (f *fakeCommands) Chains() []service.ChainInfo {
	return []service.ChainInfo{{Name: "cosmoshub", ChainID: "cosmoshub-4", Symbol: "ATOM"}}
}

func (f *fakeCommands) Status(_ context.Context, chainName, addr string) (*models.ValidatorStatus, error) {
	if chainName != "cosmoshub" {
		return nil, utils.NewAppError(utils.ErrCodeUnsupportedChain, "Chain `"+chainName+"` is not supported", "")
	}
	if addr == "missing" {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Could not find validator", "")
	}
	return &models.ValidatorStatus{
		Snapshot:     &models.ValidatorSnapshot{ChainID: "cosmoshub-4", OperatorAddress: addr, Moniker: "Hub"},
		StakeDisplay: "1.00 ATOM",
	}, nil
}

func (f *fakeCommands) ListRegistrations(context.Context, string) ([]*models.Registration, error) {
	return f.regs, nil
}

func (f *fakeCommands) Register(_ context.Context, req service.RegisterRequest) (*service.RegistrationResult, error) {
	f.lastRegister = req
	if req.OperatorAddress == "dup" {
		return nil, utils.NewAppError(utils.ErrCodeConflict, "already registered", "")
	}
	return &service.RegistrationResult{
		Registration: &models.Registration{UserID: req.UserID, OperatorAddress: req.OperatorAddress},
		Moniker:      "Hub",
		ChainName:    "cosmoshub",
	}, nil
}

func (f *fakeCommands) Unregister(_ context.Context, user, chainName, addr string) error {
	f.lastUnreg = []string{user, chainName, addr}
	return nil
}

func (f *fakeCommands) SetChainNotifications(_ context.Context, channelID, _ string, update service.ChainPreferenceUpdate) (*models.ChannelPreference, error) {
	f.lastPref = update
	return models.DefaultChannelPreference(channelID, "cosmoshub-4"), nil
}

type fakeMonitor struct {
	tickErr error
	healthy bool
}

func (f *fakeMonitor) RunTick(ctx context.Context) (*monitor.TickResult, error) {
	if f.tickErr != nil {
		return nil, f.tickErr
	}
	return &monitor.TickResult{TickID: "t1", Chains: 1, ValidatorsPolled: 3}, nil
}

func (f *fakeMonitor) GetStats() *monitor.MonitorStats {
	return &monitor.MonitorStats{TicksCompleted: 4}
}

func (f *fakeMonitor) GetHealth() *monitor.HealthStatus {
	return &monitor.HealthStatus{Healthy: f.healthy, Running: true, StorageHealthy: true}
}

type fakeNotifier struct{}

func (fakeNotifier) GetStats() notification.NotificationStats { return notification.NotificationStats{Sent: 2} }
func (fakeNotifier) IsHealthy() bool                          { return true }

type fixture struct {
	handler  http.Handler
	commands *fakeCommands
	monitor  *fakeMonitor
	metrics  *metrics.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	commands := &fakeCommands{}
	mon := &fakeMonitor{healthy: true}
	m := metrics.NewManager()
	srv := NewHTTPServer(&config.ServerConfig{
		Host:          "127.0.0.1",
		Port:          0,
		ReadTimeout:   time.Second,
		WriteTimeout:  time.Second,
		EnableMetrics: true,
		EnableHealth:  true,
	}, commands, mon, fakeNotifier{}, nil, m).WithLogger(utils.NewDiscardLogger())
	return &fixture{handler: srv.Handler(), commands: commands, monitor: mon, metrics: m}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	f.monitor.healthy = false
	rec, body = f.do(t, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestChainsAndStatus(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, "GET", "/api/v1/chains", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, body["count"])

	rec, body = f.do(t, "GET", "/api/v1/status/cosmoshub/cosmosvaloper1abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1.00 ATOM", body["stake"])

	rec, body = f.do(t, "GET", "/api/v1/status/cosmoshub/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, utils.ErrCodeNotFound, body["code"])

	rec, _ = f.do(t, "GET", "/api/v1/status/juno/cosmosvaloper1abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegistrations(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, "GET", "/api/v1/users/u1/registrations", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, body["count"])
	assert.Equal(t, []interface{}{}, body["registrations"])

	rec, body = f.do(t, "POST", "/api/v1/users/u1/registrations",
		`{"channel_id":"c1","chain":"cosmoshub","operator_address":"cosmosvaloper1abc"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Hub", body["moniker"])
	assert.Equal(t, service.RegisterRequest{ChannelID: "c1", UserID: "u1", Chain: "cosmoshub", OperatorAddress: "cosmosvaloper1abc"}, f.commands.lastRegister)

	rec, _ = f.do(t, "POST", "/api/v1/users/u1/registrations", `{"chain":"cosmoshub","operator_address":"dup"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = f.do(t, "POST", "/api/v1/users/u1/registrations", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, "DELETE", "/api/v1/users/u1/registrations?chain=cosmoshub&address=cosmosvaloper1abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"u1", "cosmoshub", "cosmosvaloper1abc"}, f.commands.lastUnreg)

	rec, _ = f.do(t, "DELETE", "/api/v1/users/u1/registrations", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePreferences(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, "PUT", "/api/v1/preferences",
		`{"channel_id":"c1","chain":"cosmoshub","upgrade_alerts_enabled":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c1", body["channel_id"])
	require.NotNil(t, f.commands.lastPref.UpgradeAlerts)
	assert.False(t, *f.commands.lastPref.UpgradeAlerts)
	assert.Nil(t, f.commands.lastPref.GovernanceAlerts)
}

func TestTick(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, "POST", "/api/v1/monitor/tick", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", body["tick_id"])

	f.monitor.tickErr = monitor.ErrTickInProgress
	rec, _ = f.do(t, "POST", "/api/v1/monitor/tick", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = f.do(t, "GET", "/api/v1/monitor/tick", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpointAndMiddleware(t *testing.T) {
	f := newFixture(t)

	f.do(t, "GET", "/api/v1/status/cosmoshub/cosmosvaloper1abc", "")
	counter := f.metrics.GetPrometheusMetrics().HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/status/{chain}/{address}", "200")
	assert.Equal(t, 1.0, testutil.ToFloat64(counter))

	rec, _ := f.do(t, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "valmon_http_requests_total")
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, "GET", "/api/v1/stats", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "monitor")
	assert.Contains(t, body, "notification")
}
