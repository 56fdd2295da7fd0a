// mock-opscore serves canned events and audit records for local development.
// The dataset simulates a CPU-saturation incident following a config update,
// which the built-in patterns recognise.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type event struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

type auditRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		now := time.Now().UTC()
		writeJSON(w, map[string]any{
			"events": []event{
				{Timestamp: now.Add(-10 * time.Minute), Severity: "warning", Source: "api-gateway", Message: "request latency above 500ms"},
				{Timestamp: now.Add(-8 * time.Minute), Severity: "error", Source: "checkout", Message: "upstream timeout calling payments"},
				{Timestamp: now.Add(-6 * time.Minute), Severity: "error", Source: "checkout", Message: "upstream timeout calling payments"},
				{Timestamp: now.Add(-4 * time.Minute), Severity: "error", Source: "checkout", Message: "worker saturated, queueing requests"},
			},
		})
	})

	mux.HandleFunc("/api/v1/audit", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		now := time.Now().UTC()
		writeJSON(w, map[string]any{
			"records": []auditRecord{
				{Timestamp: now.Add(-30 * time.Minute), Actor: "deploy-bot", Action: "update", Resource: "checkout/config"},
			},
		})
	})

	addr := ":9000"
	log.Printf("mock-opscore listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
