// File: internal/notification/notification.go
package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/metrics"
	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// ErrQueueFull is returned by Enqueue when the alert was dropped
var ErrQueueFull = errors.New("notification queue is full")

// Notifier accepts alerts for delivery. Delivery is asynchronous; callers never
// learn whether it succeeded.
type Notifier interface {
	Notify(ctx context.Context, alert *models.Alert)
}

// Sender delivers a single alert to one destination
type Sender interface {
	Name() string
	Send(ctx context.Context, alert *models.Alert) error
}

// DispatcherConfig holds dispatcher configuration
type DispatcherConfig struct {
	QueueSize   int           `json:"queue_size"`
	Workers     int           `json:"workers"`
	SendTimeout time.Duration `json:"send_timeout"`
}

// NotificationStats provides notification statistics
type NotificationStats struct {
	Queued  uint64 `json:"queued"`
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	Pending int    `json:"pending"`
}

// Dispatcher queues alerts and delivers them from a worker pool to the primary
// sender, copying mirrored alerts to every mirror sender.
type Dispatcher struct {
	config  DispatcherConfig
	primary Sender
	mirrors []Sender
	logger  *logrus.Entry
	metrics *metrics.Manager

	mu      sync.RWMutex
	queue   chan *models.Alert
	running bool
	closed  bool
	wg      sync.WaitGroup

	queued, sent, failed, dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher. metricsManager may be nil.
func NewDispatcher(cfg DispatcherConfig, primary Sender, mirrors []Sender, metricsManager *metrics.Manager) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Dispatcher{
		config:  cfg,
		primary: primary,
		mirrors: mirrors,
		logger:  utils.GetLogger().WithField("component", "notification_dispatcher"),
		metrics: metricsManager,
		queue:   make(chan *models.Alert, cfg.QueueSize),
	}
}

// WithLogger replaces the dispatcher logger
func (d *Dispatcher) WithLogger(logger *logrus.Logger) *Dispatcher {
	d.logger = logger.WithField("component", "notification_dispatcher")
	return d
}

// Start launches the worker pool
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Dispatcher already running", "")
	}
	if d.closed {
		return utils.NewAppError(utils.ErrCodeInternal, "Dispatcher already stopped", "")
	}
	d.running = true

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}

	d.logger.WithFields(logrus.Fields{
		"workers":    d.config.Workers,
		"queue_size": d.config.QueueSize,
		"primary":    d.primary.Name(),
		"mirrors":    len(d.mirrors),
	}).Info("Notification dispatcher started")
	return nil
}

// Stop stops accepting alerts and waits for queued ones to be delivered
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	running := d.running
	d.mu.Unlock()

	if running {
		d.wg.Wait()
	}
	d.logger.Info("Notification dispatcher stopped")
	return nil
}

// Notify queues the alert without blocking; it is dropped when the queue is full
func (d *Dispatcher) Notify(ctx context.Context, alert *models.Alert) {
	if err := d.Enqueue(alert); err != nil {
		d.logger.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"kind":     alert.Kind,
			"chain":    alert.ChainID,
			"channel":  alert.ChannelID,
			"error":    err,
		}).Warn("Dropping alert")
	}
}

// Enqueue queues the alert and reports whether it was accepted
func (d *Dispatcher) Enqueue(alert *models.Alert) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return utils.NewAppError(utils.ErrCodeProcessing, "Dispatcher stopped", "")
	}
	select {
	case d.queue <- alert:
		d.queued.Add(1)
		return nil
	default:
		d.dropped.Add(1)
		if d.metrics != nil {
			d.metrics.GetPrometheusMetrics().RecordAlertDropped()
		}
		return ErrQueueFull
	}
}

// SendNow delivers an alert synchronously through the primary sender only
func (d *Dispatcher) SendNow(ctx context.Context, alert *models.Alert) error {
	return d.send(ctx, d.primary, alert)
}

// GetStats returns dispatcher counters
func (d *Dispatcher) GetStats() NotificationStats {
	return NotificationStats{
		Queued:  d.queued.Load(),
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
		Pending: len(d.queue),
	}
}

// IsHealthy reports whether workers are running
func (d *Dispatcher) IsHealthy() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running && !d.closed
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for alert := range d.queue {
		d.deliver(ctx, alert)
	}
	d.logger.WithField("worker", id).Debug("Notification worker exited")
}

func (d *Dispatcher) deliver(ctx context.Context, alert *models.Alert) {
	// queued alerts are still delivered during shutdown
	ctx = context.WithoutCancel(ctx)

	if err := d.send(ctx, d.primary, alert); err != nil {
		d.logger.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"sender":   d.primary.Name(),
			"channel":  alert.ChannelID,
			"error":    err,
		}).Error("Failed to deliver alert")
	}
	if !alert.Mirror {
		return
	}
	for _, mirror := range d.mirrors {
		if err := d.send(ctx, mirror, alert); err != nil {
			d.logger.WithFields(logrus.Fields{
				"alert_id": alert.ID,
				"sender":   mirror.Name(),
				"error":    err,
			}).Warn("Failed to mirror alert")
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, sender Sender, alert *models.Alert) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	start := time.Now()
	err := sender.Send(sendCtx, alert)
	if err != nil {
		d.failed.Add(1)
		if d.metrics != nil {
			d.metrics.GetPrometheusMetrics().RecordNotificationFailure(sender.Name(), string(alert.Kind))
		}
		return err
	}
	d.sent.Add(1)
	if d.metrics != nil {
		d.metrics.GetPrometheusMetrics().RecordNotificationSent(sender.Name(), string(alert.Kind), time.Since(start))
	}
	return nil
}
