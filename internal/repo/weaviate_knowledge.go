package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelops/incident-engine/internal/cache"
	"github.com/sentinelops/incident-engine/internal/models"
)

const knowledgeClass = "KnowledgeEntry"

// WeaviateKnowledgeRepo is the semantic (vector) tier of the knowledge
// store. It is a derived, rebuildable index over the durable tier, accessed
// through Weaviate's REST and GraphQL APIs.
type WeaviateKnowledgeRepo struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      cache.Provider
	searchTTL  time.Duration
}

// NewWeaviateKnowledgeRepo constructs the semantic repo. An empty endpoint
// yields a repo whose searches return no hits and whose writes are no-ops,
// so the authoritative tier keeps working when the vector backend is absent.
func NewWeaviateKnowledgeRepo(endpoint, apiKey string, timeout time.Duration, cacheProvider cache.Provider, searchTTL time.Duration) *WeaviateKnowledgeRepo {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WeaviateKnowledgeRepo{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		searchTTL:  searchTTL,
	}
}

// Available reports whether a semantic backend is configured.
func (r *WeaviateKnowledgeRepo) Available() bool {
	return r != nil && r.endpoint != ""
}

// StoreEntry upserts a knowledge entry into the semantic index.
func (r *WeaviateKnowledgeRepo) StoreEntry(ctx context.Context, entry models.KnowledgeEntry) error {
	if !r.Available() {
		return nil
	}

	payload := map[string]interface{}{
		"class":      knowledgeClass,
		"properties": entryProperties(entry),
	}
	if entry.ID != "" {
		payload["id"] = entry.ID
	}
	if len(entry.Vector) > 0 {
		payload["vector"] = entry.Vector
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/objects", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("weaviate store entry failed: %s", strings.TrimSpace(string(data)))
	}

	// A fresher copy of the entry invalidates cached searches lazily via TTL.
	return nil
}

// SimilarEntries runs a nearest-neighbour search and returns scored hits.
func (r *WeaviateKnowledgeRepo) SimilarEntries(ctx context.Context, query string, limit int) ([]models.KnowledgeHit, error) {
	return r.search(ctx, query, limit, 0.5)
}

// BroadEntries is the last-resort retrieval tier: a wider net with no
// certainty floor.
func (r *WeaviateKnowledgeRepo) BroadEntries(ctx context.Context, query string, limit int) ([]models.KnowledgeHit, error) {
	return r.search(ctx, query, limit*2, 0)
}

func (r *WeaviateKnowledgeRepo) search(ctx context.Context, query string, limit int, certainty float64) ([]models.KnowledgeHit, error) {
	if !r.Available() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	cacheKey := ""
	if r.searchTTL > 0 {
		cacheKey = fmt.Sprintf("weaviate:search:%.2f:%d:%s", certainty, limit, query)
		if data, err := r.cache.Get(ctx, cacheKey); err == nil {
			var cached []models.KnowledgeHit
			if err := json.Unmarshal(data, &cached); err == nil {
				return cached, nil
			}
		}
	}

	nearText := fmt.Sprintf(`nearText: {concepts: [%q]}`, query)
	if certainty > 0 {
		nearText = fmt.Sprintf(`nearText: {concepts: [%q], certainty: %.2f}`, query, certainty)
	}

	gql := map[string]interface{}{
		"query": fmt.Sprintf(`{
          Get {
            %s(
              limit: %d
              %s
            ) {
              entryId
              kind
              title
              summary
              rootCause
              scope
              keywords
              quality
              occurrences
              createdAt
              _additional { certainty }
            }
          }
        }`, knowledgeClass, limit, nearText),
	}

	payload, err := json.Marshal(gql)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint+"/v1/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weaviate search status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var response struct {
		Data struct {
			Get map[string][]struct {
				EntryID     string   `json:"entryId"`
				Kind        string   `json:"kind"`
				Title       string   `json:"title"`
				Summary     string   `json:"summary"`
				RootCause   string   `json:"rootCause"`
				Scope       string   `json:"scope"`
				Keywords    []string `json:"keywords"`
				Quality     float64  `json:"quality"`
				Occurrences int      `json:"occurrences"`
				CreatedAt   string   `json:"createdAt"`
				Additional  struct {
					Certainty float64 `json:"certainty"`
				} `json:"_additional"`
			} `json:"Get"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode weaviate response: %w", err)
	}

	records := response.Data.Get[knowledgeClass]
	hits := make([]models.KnowledgeHit, 0, len(records))
	for _, rec := range records {
		createdAt, _ := time.Parse(time.RFC3339, rec.CreatedAt)
		hits = append(hits, models.KnowledgeHit{
			Entry: models.KnowledgeEntry{
				ID:          rec.EntryID,
				Kind:        models.EntryKind(rec.Kind),
				Title:       rec.Title,
				Summary:     rec.Summary,
				RootCause:   rec.RootCause,
				Scope:       rec.Scope,
				Keywords:    rec.Keywords,
				Quality:     rec.Quality,
				Occurrences: rec.Occurrences,
				CreatedAt:   createdAt,
			},
			Score: rec.Additional.Certainty,
		})
	}

	if r.searchTTL > 0 && cacheKey != "" && len(hits) > 0 {
		if data, err := json.Marshal(hits); err == nil {
			_ = r.cache.Set(ctx, cacheKey, data, r.searchTTL)
		}
	}

	return hits, nil
}

func entryProperties(entry models.KnowledgeEntry) map[string]interface{} {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return map[string]interface{}{
		"entryId":     entry.ID,
		"kind":        string(entry.Kind),
		"title":       entry.Title,
		"summary":     entry.Summary,
		"rootCause":   entry.RootCause,
		"scope":       entry.Scope,
		"keywords":    entry.Keywords,
		"quality":     entry.Quality,
		"occurrences": entry.Occurrences,
		"createdAt":   createdAt.Format(time.RFC3339),
	}
}
