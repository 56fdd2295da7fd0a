package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sentinelops/incident-engine/internal/models"
)

// WebhookNotifier posts notifications to an operator webhook. Delivery runs
// in a goroutine with its own timeout so the pipeline never blocks on a slow
// receiver.
type WebhookNotifier struct {
	logger     *slog.Logger
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier builds a notifier; an empty url disables delivery.
func NewWebhookNotifier(logger *slog.Logger, url string) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		logger:     logger,
		url:        url,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type notification struct {
	IncidentID string    `json:"incident_id"`
	Scope      string    `json:"scope"`
	State      string    `json:"state"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sent_at"`
}

// Notify sends the notification fire-and-forget.
func (n *WebhookNotifier) Notify(_ context.Context, incident *models.Incident, subject, message string) {
	if n.url == "" {
		n.logger.Info("notification",
			slog.String("incident_id", incident.ID),
			slog.String("subject", subject),
			slog.String("message", message))
		return
	}

	payload := notification{
		IncidentID: incident.ID,
		Scope:      incident.Scope,
		State:      string(incident.State),
		Subject:    subject,
		Message:    message,
		SentAt:     time.Now().UTC(),
	}

	go func() {
		body, err := json.Marshal(payload)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			n.logger.Warn("notification delivery failed",
				slog.String("incident_id", payload.IncidentID),
				slog.Any("error", err))
			return
		}
		resp.Body.Close()
	}()
}
