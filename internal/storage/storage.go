// File: internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
)

var (
	// ErrNotFound is returned when an update or delete matches nothing
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique record already exists
	ErrConflict = errors.New("record already exists")
)

// Failure counter entities for chain level polls
const (
	EntityGovernance = "governance"
	EntityUpgrade    = "upgrade"
)

// ValidatorEntity names the failure counter of a validator
func ValidatorEntity(operatorAddress string) string {
	return "validator:" + operatorAddress
}

// Storage persists snapshots, registrations and preferences.
// Get* lookups return (nil, nil) when nothing is stored.
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Snapshots
	GetValidatorSnapshot(ctx context.Context, chainID, operatorAddress string) (*models.ValidatorSnapshot, error)
	SaveValidatorSnapshot(ctx context.Context, snapshot *models.ValidatorSnapshot) error
	GetProposalSnapshot(ctx context.Context, chainID string, proposalID uint64) (*models.ProposalSnapshot, error)
	SaveProposalSnapshot(ctx context.Context, snapshot *models.ProposalSnapshot) error
	GetUpgradePlan(ctx context.Context, chainID string) (*models.UpgradePlan, error)
	SaveUpgradePlan(ctx context.Context, plan *models.UpgradePlan) error
	DeleteUpgradePlan(ctx context.Context, chainID string) error
	GetChainState(ctx context.Context, chainID string) (*models.ChainState, error)
	SaveChainState(ctx context.Context, state *models.ChainState) error

	// Consecutive failure counters
	IncrementFailureCount(ctx context.Context, chainID, entity, lastError string) (int, error)
	ResetFailureCount(ctx context.Context, chainID, entity string) (int, error)

	// Registrations
	CreateRegistration(ctx context.Context, registration *models.Registration) error
	DeleteRegistration(ctx context.Context, userID, chainID, operatorAddress string) error
	GetRegistration(ctx context.Context, userID, chainID, operatorAddress string) (*models.Registration, error)
	ListRegistrationsByUser(ctx context.Context, userID string) ([]*models.Registration, error)
	ListRegistrationsForValidator(ctx context.Context, chainID, operatorAddress string) ([]*models.Registration, error)
	ListMonitoredValidators(ctx context.Context) ([]models.ValidatorKey, error)
	ListChannelsForChain(ctx context.Context, chainID string) ([]string, error)
	SetRegistrationNotifications(ctx context.Context, userID, chainID, operatorAddress string, enabled bool) error
	CountRegistrations(ctx context.Context) (int64, error)

	// Channel preferences
	GetChannelPreference(ctx context.Context, channelID, chainID string) (*models.ChannelPreference, error)
	SaveChannelPreference(ctx context.Context, preference *models.ChannelPreference) error
	ListChannelPreferences(ctx context.Context, channelID string) ([]*models.ChannelPreference, error)

	// Maintenance
	PruneOrphans(ctx context.Context) (*PruneResult, error)
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// PruneResult reports what PruneOrphans removed
type PruneResult struct {
	ValidatorSnapshots int64 `json:"validator_snapshots"`
	FailureCounters    int64 `json:"failure_counters"`
}

// StorageStats provides storage statistics
type StorageStats struct {
	Registrations      int64      `json:"registrations"`
	ValidatorSnapshots int64      `json:"validator_snapshots"`
	ProposalSnapshots  int64      `json:"proposal_snapshots"`
	PendingUpgrades    int64      `json:"pending_upgrades"`
	LatestObservation  *time.Time `json:"latest_observation,omitempty"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}

// PersistenceError means the store could not be read or written
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistenceError reports whether err is, or wraps, a PersistenceError
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
