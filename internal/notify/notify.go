package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/backhaul/internal/engine"
)

// New picks a notifier: a webhook poster when a URL is configured, a
// log-only notifier otherwise.
func New(webhookURL string, logger zerolog.Logger) engine.Notifier {
	if webhookURL != "" {
		return NewWebhookNotifier(webhookURL, logger)
	}
	return NewLogNotifier(logger)
}

// LogNotifier records finished executions in the service log.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) ExecutionFinished(_ context.Context, event engine.FinishEvent) {
	n.logger.Info().
		Str("plan_id", event.Plan.ID).
		Str("plan_name", event.Plan.Name).
		Str("execution_id", event.Execution.ID).
		Str("status", string(event.Status)).
		Bool("success", event.Success).
		Str("reason", event.Reason).
		Msg("execution finished")
}

// WebhookNotifier posts a JSON summary of each finished execution to a
// configured endpoint. Delivery is best effort: failures are logged and
// never affect the run's recorded outcome.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewWebhookNotifier(url string, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

type webhookPayload struct {
	PlanID        string     `json:"plan_id"`
	PlanName      string     `json:"plan_name"`
	ExecutionID   string     `json:"execution_id"`
	ExecutionName string     `json:"execution_name"`
	Status        string     `json:"status"`
	Success       bool       `json:"success"`
	Reason        string     `json:"reason"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	FilesChanged  *int64     `json:"files_changed,omitempty"`
	BytesSent     *int64     `json:"bytes_sent,omitempty"`
}

func (n *WebhookNotifier) ExecutionFinished(ctx context.Context, event engine.FinishEvent) {
	payload := webhookPayload{
		PlanID:        event.Plan.ID,
		PlanName:      event.Plan.Name,
		ExecutionID:   event.Execution.ID,
		ExecutionName: event.Execution.Name,
		Status:        string(event.Status),
		Success:       event.Success,
		Reason:        event.Reason,
		StartedAt:     event.Execution.StartDateTime,
		EndedAt:       event.Execution.EndDateTime,
	}
	if event.Stats != nil {
		payload.FilesChanged = &event.Stats.TransferredFiles
		payload.BytesSent = &event.Stats.BytesSent
	}

	if err := n.post(ctx, payload); err != nil {
		n.logger.Error().Err(err).Str("execution_id", event.Execution.ID).Msg("webhook delivery failed")
		return
	}
	n.logger.Debug().Str("execution_id", event.Execution.ID).Msg("webhook delivered")
}

func (n *WebhookNotifier) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
