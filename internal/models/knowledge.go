package models

import "time"

// EntryKind classifies knowledge-store contents.
type EntryKind string

const (
	EntryPattern         EntryKind = "pattern"
	EntryIncidentSummary EntryKind = "incident-summary"
)

// KnowledgeEntry is a validated pattern or historical-incident summary held
// by the knowledge store. Entries are never hard-deleted; repeated matches
// bump Occurrences and feedback decays Quality instead.
type KnowledgeEntry struct {
	ID          string    `json:"id"`
	Kind        EntryKind `json:"kind"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	RootCause   string    `json:"root_cause"`
	Scope       string    `json:"scope,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	Quality     float64   `json:"quality"`
	Occurrences int       `json:"occurrences"`
	// Vector is the embedding used by the semantic tier. Empty when no
	// embedder is configured; the semantic backend then vectorizes
	// server-side.
	Vector    []float32 `json:"vector,omitempty"`
	Pattern   *Pattern  `json:"pattern,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KnowledgeHit is a scored retrieval result from one of the search tiers.
type KnowledgeHit struct {
	Entry KnowledgeEntry `json:"entry"`
	Score float64        `json:"score"`
	Tier  string         `json:"tier"`
}
