// File: internal/notification/webhook.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/cosmos-validator-monitor/internal/models"
	"github.com/smartdevs17/cosmos-validator-monitor/pkg/utils"
)

// WebhookConfig holds webhook sender configuration
type WebhookConfig struct {
	URLs       []string          `json:"urls"`
	Headers    map[string]string `json:"headers"`
	MaxRetries int               `json:"max_retries"`
	RetryDelay time.Duration     `json:"retry_delay"`
	MaxDelay   time.Duration     `json:"max_delay"`
	Timeout    time.Duration     `json:"timeout"`
}

// WebhookSender posts alerts as JSON to every configured URL
type WebhookSender struct {
	config     WebhookConfig
	logger     *logrus.Entry
	httpClient *http.Client
}

// WebhookPayload defines the webhook payload structure
type WebhookPayload struct {
	Alert     *models.Alert `json:"alert"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
	Version   string        `json:"version"`
}

// WebhookResponse represents a webhook response
type WebhookResponse struct {
	StatusCode   int           `json:"status_code"`
	ResponseTime time.Duration `json:"response_time"`
	Success      bool          `json:"success"`
	Error        error         `json:"error,omitempty"`
	Body         string        `json:"body,omitempty"`
}

// NewWebhookSender creates a new webhook sender
func NewWebhookSender(config WebhookConfig) *WebhookSender {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &WebhookSender{
		config: config,
		logger: utils.GetLogger().WithField("component", "webhook_sender"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Name implements Sender
func (ws *WebhookSender) Name() string { return "webhook" }

// Send posts the alert to every URL; the first failure is returned after all
// URLs have been tried.
func (ws *WebhookSender) Send(ctx context.Context, alert *models.Alert) error {
	payload := &WebhookPayload{
		Alert:     alert,
		Text:      RenderText(alert),
		Timestamp: time.Now().UTC(),
		Source:    "cosmos-validator-monitor",
		Version:   "1.0",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal webhook payload", err.Error())
	}

	var firstErr error
	for _, url := range ws.config.URLs {
		response := ws.sendWithRetry(ctx, url, body)
		if response.Success {
			ws.logger.WithFields(logrus.Fields{
				"url":         url,
				"status_code": response.StatusCode,
				"duration_ms": response.ResponseTime.Milliseconds(),
			}).Debug("Webhook sent successfully")
			continue
		}
		ws.logger.WithFields(logrus.Fields{
			"url":         url,
			"status_code": response.StatusCode,
			"error":       response.Error,
		}).Error("Webhook failed")
		if firstErr == nil {
			firstErr = response.Error
		}
	}
	return firstErr
}

func (ws *WebhookSender) sendWithRetry(ctx context.Context, url string, body []byte) *WebhookResponse {
	var lastResponse *WebhookResponse

	for attempt := 1; attempt <= ws.config.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := ws.retryDelay(attempt)
			ws.logger.WithFields(logrus.Fields{
				"url":          url,
				"attempt":      attempt,
				"max_attempts": ws.config.MaxRetries,
				"retry_delay":  delay.String(),
			}).Warn("Retrying webhook")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &WebhookResponse{Error: ctx.Err()}
			}
		}

		lastResponse = ws.sendSingle(ctx, url, body)
		if lastResponse.Success {
			return lastResponse
		}
	}
	return lastResponse
}

func (ws *WebhookSender) sendSingle(ctx context.Context, url string, body []byte) *WebhookResponse {
	startTime := time.Now()
	response := &WebhookResponse{}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeInternal, "Failed to create webhook request", err.Error())
		return response
	}
	ws.setRequestHeaders(req)

	resp, err := ws.httpClient.Do(req)
	response.ResponseTime = time.Since(startTime)
	if err != nil {
		response.Error = utils.NewAppError(utils.ErrCodeConnection, "Failed to send webhook", err.Error())
		return response
	}
	defer resp.Body.Close()

	response.StatusCode = resp.StatusCode
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	response.Body = string(snippet)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		response.Success = true
	} else {
		response.Error = utils.NewAppError(utils.ErrCodeConnection,
			"Webhook returned non-success status",
			fmt.Sprintf("status: %d, body: %s", resp.StatusCode, response.Body))
	}
	return response
}

func (ws *WebhookSender) setRequestHeaders(req *http.Request) {
	for key, value := range ws.config.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "cosmos-validator-monitor/1.0")
	}
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("X-Request-ID", utils.GenerateID())
}

// retryDelay doubles the base delay per attempt, capped at MaxDelay
func (ws *WebhookSender) retryDelay(attempt int) time.Duration {
	delay := time.Duration(int64(ws.config.RetryDelay) << uint(attempt-2))
	if delay > ws.config.MaxDelay || delay <= 0 {
		delay = ws.config.MaxDelay
	}
	return delay
}
