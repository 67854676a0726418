package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/metrics"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) observe(operation, table string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, table, status, time.Since(start))
}

// GetValidatorSnapshot loads a snapshot and records metrics
func (s *StorageWithMetrics) GetValidatorSnapshot(ctx context.Context, chainID, operatorAddress string) (*models.ValidatorSnapshot, error) {
	start := time.Now()
	snap, err := s.Storage.GetValidatorSnapshot(ctx, chainID, operatorAddress)
	s.observe("select", "validator_snapshots", start, err)
	return snap, err
}

// SaveValidatorSnapshot saves a snapshot and records metrics
func (s *StorageWithMetrics) SaveValidatorSnapshot(ctx context.Context, snapshot *models.ValidatorSnapshot) error {
	start := time.Now()
	err := s.Storage.SaveValidatorSnapshot(ctx, snapshot)
	s.observe("upsert", "validator_snapshots", start, err)
	return err
}

// SaveProposalSnapshot saves a proposal and records metrics
func (s *StorageWithMetrics) SaveProposalSnapshot(ctx context.Context, snapshot *models.ProposalSnapshot) error {
	start := time.Now()
	err := s.Storage.SaveProposalSnapshot(ctx, snapshot)
	s.observe("upsert", "proposal_snapshots", start, err)
	return err
}

// IncrementFailureCount bumps a failure counter and records metrics
func (s *StorageWithMetrics) IncrementFailureCount(ctx context.Context, chainID, entity, lastError string) (int, error) {
	start := time.Now()
	n, err := s.Storage.IncrementFailureCount(ctx, chainID, entity, lastError)
	s.observe("upsert", "failure_counters", start, err)
	return n, err
}

// CreateRegistration inserts a registration and records metrics
func (s *StorageWithMetrics) CreateRegistration(ctx context.Context, registration *models.Registration) error {
	start := time.Now()
	err := s.Storage.CreateRegistration(ctx, registration)
	s.observe("insert", "registrations", start, err)
	if err == nil {
		s.refreshRegistrationGauge(ctx)
	}
	return err
}

// DeleteRegistration removes a registration and records metrics
func (s *StorageWithMetrics) DeleteRegistration(ctx context.Context, userID, chainID, operatorAddress string) error {
	start := time.Now()
	err := s.Storage.DeleteRegistration(ctx, userID, chainID, operatorAddress)
	s.observe("delete", "registrations", start, err)
	if err == nil {
		s.refreshRegistrationGauge(ctx)
	}
	return err
}

func (s *StorageWithMetrics) refreshRegistrationGauge(ctx context.Context) {
	if s.metricsManager == nil {
		return
	}
	if n, err := s.Storage.CountRegistrations(ctx); err == nil {
		s.metricsManager.GetPrometheusMetrics().UpdateRegistrations(n)
	}
}
