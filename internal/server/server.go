// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/config"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/metrics"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/monitor"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/notification"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/service"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/storage"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

const version = "1.0.0"

// Commands is the command surface exposed over HTTP
type Commands interface {
	Chains() []service.ChainInfo
	Status(ctx context.Context, chainName, operatorAddress string) (*models.ValidatorStatus, error)
	ListRegistrations(ctx context.Context, userID string) ([]*models.Registration, error)
	Register(ctx context.Context, req service.RegisterRequest) (*service.RegistrationResult, error)
	Unregister(ctx context.Context, userID, chainName, operatorAddress string) error
	SetChainNotifications(ctx context.Context, channelID, chainName string, update service.ChainPreferenceUpdate) (*models.ChannelPreference, error)
}

// Monitor is the poll loop as seen by the API
type Monitor interface {
	RunTick(ctx context.Context) (*monitor.TickResult, error)
	GetStats() *monitor.MonitorStats
	GetHealth() *monitor.HealthStatus
}

// Notifier reports the state of alert delivery
type Notifier interface {
	GetStats() notification.NotificationStats
	IsHealthy() bool
}

// HTTPServer represents the HTTP server
type HTTPServer struct {
	config         *config.ServerConfig
	server         *http.Server
	router         *mux.Router
	commands       Commands
	monitor        Monitor
	notifier       Notifier
	storage        storage.Storage
	metricsManager *metrics.Manager
	logger         *logrus.Logger

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	cfg *config.ServerConfig,
	commands Commands,
	mon Monitor,
	notifier Notifier,
	store storage.Storage,
	metricsManager *metrics.Manager,
) *HTTPServer {
	server := &HTTPServer{
		config:         cfg,
		commands:       commands,
		monitor:        mon,
		notifier:       notifier,
		storage:        store,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
		stopChan:       make(chan struct{}),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return server
}

// WithLogger replaces the server logger
func (s *HTTPServer) WithLogger(logger *logrus.Logger) *HTTPServer {
	s.logger = logger
	return s
}

// Handler returns the router, mostly for tests
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
	}

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	api.HandleFunc("/chains", s.listChainsHandler).Methods("GET")
	api.HandleFunc("/status/{chain}/{address}", s.validatorStatusHandler).Methods("GET")

	api.HandleFunc("/users/{user}/registrations", s.listRegistrationsHandler).Methods("GET")
	api.HandleFunc("/users/{user}/registrations", s.addRegistrationHandler).Methods("POST")
	api.HandleFunc("/users/{user}/registrations", s.removeRegistrationHandler).Methods("DELETE")

	api.HandleFunc("/preferences", s.updatePreferencesHandler).Methods("PUT")

	api.HandleFunc("/monitor/status", s.monitorStatusHandler).Methods("GET")
	api.HandleFunc("/monitor/tick", s.tickHandler).Methods("POST")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentMetrics()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to report immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.updateComponentMetrics()
		}
	}
}

func (s *HTTPServer) updateComponentMetrics() {
	s.metricsManager.UpdateSystemMetrics()
	pm := s.metricsManager.GetPrometheusMetrics()
	if s.monitor != nil {
		health := s.monitor.GetHealth()
		pm.UpdateComponentHealth("monitor", health.Healthy)
		pm.UpdateComponentHealth("storage", health.StorageHealthy)
	}
	if s.notifier != nil {
		pm.UpdateComponentHealth("notification", s.notifier.IsHealthy())
	}
	if s.storage != nil {
		if count, err := s.storage.CountRegistrations(context.Background()); err == nil {
			pm.UpdateRegistrations(count)
		}
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")
	s.stopOnce.Do(func() { close(s.stopChan) })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Middleware

// loggingMiddleware logs HTTP requests
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start),
			"user_agent": r.UserAgent(),
			"remote_ip":  r.RemoteAddr,
		}).Debug("HTTP request")
	})
}

// corsMiddleware handles CORS
func (s *HTTPServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Health Handlers

// healthHandler reports the poll loop, storage and delivery health
func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := true
	components := map[string]interface{}{}

	if s.monitor != nil {
		health := s.monitor.GetHealth()
		healthy = healthy && health.Healthy
		components["monitor"] = health
	}
	if s.notifier != nil {
		ok := s.notifier.IsHealthy()
		healthy = healthy && ok
		components["notification"] = map[string]interface{}{"healthy": ok}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"version":    version,
		"components": components,
	})
}

// statsHandler returns application statistics
func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp": time.Now().UTC(),
	}
	if s.storage != nil {
		storageStats, err := s.storage.GetStorageStats(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "Failed to retrieve storage stats", err)
			return
		}
		stats["storage"] = storageStats
	}
	if s.monitor != nil {
		stats["monitor"] = s.monitor.GetStats()
	}
	if s.notifier != nil {
		stats["notification"] = s.notifier.GetStats()
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// Chain and validator Handlers

func (s *HTTPServer) listChainsHandler(w http.ResponseWriter, r *http.Request) {
	chains := s.commands.Chains()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"chains": chains,
		"count":  len(chains),
	})
}

// validatorStatusHandler fetches a validator directly from the chain
func (s *HTTPServer) validatorStatusHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	status, err := s.commands.Status(r.Context(), vars["chain"], vars["address"])
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

// Registration Handlers

type registrationRequest struct {
	GuildID         string `json:"guild_id"`
	ChannelID       string `json:"channel_id"`
	Chain           string `json:"chain"`
	OperatorAddress string `json:"operator_address"`
}

func (s *HTTPServer) listRegistrationsHandler(w http.ResponseWriter, r *http.Request) {
	regs, err := s.commands.ListRegistrations(r.Context(), mux.Vars(r)["user"])
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	if regs == nil {
		regs = []*models.Registration{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"registrations": regs,
		"count":         len(regs),
	})
}

func (s *HTTPServer) addRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := s.commands.Register(r.Context(), service.RegisterRequest{
		GuildID:         req.GuildID,
		ChannelID:       req.ChannelID,
		UserID:          mux.Vars(r)["user"],
		Chain:           req.Chain,
		OperatorAddress: req.OperatorAddress,
	})
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

// removeRegistrationHandler takes chain and address as query parameters
func (s *HTTPServer) removeRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	chainName, address := query.Get("chain"), query.Get("address")
	if chainName == "" || address == "" {
		s.writeError(w, http.StatusBadRequest, "chain and address query parameters are required", nil)
		return
	}

	if err := s.commands.Unregister(r.Context(), mux.Vars(r)["user"], chainName, address); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Registration removed",
	})
}

// Preference Handlers

type preferenceRequest struct {
	ChannelID string `json:"channel_id"`
	Chain     string `json:"chain"`
	service.ChainPreferenceUpdate
}

func (s *HTTPServer) updatePreferencesHandler(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pref, err := s.commands.SetChainNotifications(r.Context(), req.ChannelID, req.Chain, req.ChainPreferenceUpdate)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pref)
}

// Monitor Handlers

func (s *HTTPServer) monitorStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"health":    s.monitor.GetHealth(),
		"stats":     s.monitor.GetStats(),
		"timestamp": time.Now().UTC(),
	})
}

// tickHandler runs one poll tick. The tick outlives a disconnecting client.
func (s *HTTPServer) tickHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.monitor.RunTick(context.WithoutCancel(r.Context()))
	if errors.Is(err, monitor.ErrTickInProgress) {
		s.writeError(w, http.StatusConflict, "A tick is already running", nil)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Tick aborted", err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// Utility Methods

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		entry := s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		})
		if status >= http.StatusInternalServerError {
			entry.Error("HTTP error")
		} else {
			entry.Debug("HTTP error")
		}
	}

	s.writeJSON(w, status, errorResponse)
}

// writeAppError maps an AppError code to its HTTP status
func (s *HTTPServer) writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := utils.ErrorCode(err)
	switch code {
	case utils.ErrCodeValidation, utils.ErrCodeUnsupportedChain, utils.ErrCodeInvalidAddress:
		status = http.StatusBadRequest
	case utils.ErrCodeNotFound:
		status = http.StatusNotFound
	case utils.ErrCodeConflict:
		status = http.StatusConflict
	case utils.ErrCodeConnection, utils.ErrCodeBlockchain:
		status = http.StatusBadGateway
	}

	message := "Internal error"
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	s.logger.WithFields(logrus.Fields{"code": code, "status": status, "error": err}).Debug("Request failed")
	s.writeJSON(w, status, map[string]interface{}{
		"error":     message,
		"code":      code,
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}
