package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sentinelops/incident-engine/internal/models"
)

// OpsCoreClient wraps the ops-core aggregation APIs that expose structured
// events and audit-trail records for a scope.
type OpsCoreClient struct {
	baseURL    string
	eventsPath string
	auditPath  string
	httpClient *http.Client
}

// NewOpsCoreClient constructs a client targeting the configured ops-core instance.
func NewOpsCoreClient(baseURL, eventsPath, auditPath string, timeout time.Duration) *OpsCoreClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &OpsCoreClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		eventsPath: eventsPath,
		auditPath:  auditPath,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchEvents queries ops-core for structured events within the window.
func (c *OpsCoreClient) FetchEvents(ctx context.Context, scope string, start, end time.Time) ([]models.EventRecord, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("ops-core base URL not configured")
	}

	payload := map[string]interface{}{
		"scope": scope,
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
	}

	var response struct {
		Events []struct {
			Timestamp time.Time `json:"timestamp"`
			Severity  string    `json:"severity"`
			Source    string    `json:"source"`
			Message   string    `json:"message"`
		} `json:"events"`
	}

	if err := c.postJSON(ctx, c.endpoint(c.eventsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("ops-core events request failed: %w", err)
	}

	events := make([]models.EventRecord, 0, len(response.Events))
	for _, ev := range response.Events {
		events = append(events, models.EventRecord{
			Timestamp: ev.Timestamp,
			Severity:  ev.Severity,
			Source:    ev.Source,
			Message:   ev.Message,
		})
	}
	return events, nil
}

// FetchAuditRecords queries ops-core for audit-trail records within the window.
func (c *OpsCoreClient) FetchAuditRecords(ctx context.Context, scope string, start, end time.Time) ([]models.AuditRecord, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("ops-core base URL not configured")
	}

	payload := map[string]interface{}{
		"scope": scope,
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
	}

	var response struct {
		Records []struct {
			Timestamp time.Time `json:"timestamp"`
			Actor     string    `json:"actor"`
			Action    string    `json:"action"`
			Resource  string    `json:"resource"`
		} `json:"records"`
	}

	if err := c.postJSON(ctx, c.endpoint(c.auditPath), payload, &response); err != nil {
		return nil, fmt.Errorf("ops-core audit request failed: %w", err)
	}

	records := make([]models.AuditRecord, 0, len(response.Records))
	for _, rec := range response.Records {
		records = append(records, models.AuditRecord{
			Timestamp: rec.Timestamp,
			Actor:     rec.Actor,
			Action:    rec.Action,
			Resource:  rec.Resource,
		})
	}
	return records, nil
}

func (c *OpsCoreClient) endpoint(p string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + p
	}
	u.Path = path.Join(u.Path, p)
	return u.String()
}

func (c *OpsCoreClient) postJSON(ctx context.Context, endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
