package sop

import "github.com/sentinelops/incident-engine/internal/models"

// Builtins returns the shipped SOP catalog. Every diagnosable root cause has
// at least one procedure; "manual-triage" is the wildcard fallback so that
// unknown causes still produce an actionable incident.
func Builtins() []models.SOPDefinition {
	return []models.SOPDefinition{
		{
			ID:        "scale-or-restart",
			Title:     "Scale out or restart saturated service",
			AppliesTo: []string{"cpu-*"},
			Risk:      models.RiskL1,
			Steps: []models.SOPStep{
				{Description: "Capture current replica count and utilisation", Action: "inspect", Params: map[string]string{"target": "replicas"}},
				{Description: "Scale the service out by one replica", Action: "scale", Params: map[string]string{"delta": "1"}},
				{Description: "Verify utilisation drops below 80%", Action: "verify", Params: map[string]string{"metric": "cpu_utilization", "below": "80"}},
			},
			Rollback: "Scale back to the captured replica count",
		},
		{
			ID:        "clear-memory-pressure",
			Title:     "Recycle workers under memory pressure",
			AppliesTo: []string{"memory-pressure"},
			Risk:      models.RiskL2,
			Steps: []models.SOPStep{
				{Description: "Identify the worker with the highest RSS", Action: "inspect", Params: map[string]string{"target": "memory"}},
				{Description: "Rolling-restart the affected workers", Action: "restart", Params: map[string]string{"strategy": "rolling"}},
				{Description: "Verify memory utilisation recovers", Action: "verify", Params: map[string]string{"metric": "memory_utilization", "below": "85"}},
			},
			Rollback: "None required; restart is self-limiting",
		},
		{
			ID:        "expand-disk",
			Title:     "Free or expand disk at capacity",
			AppliesTo: []string{"disk-full"},
			Risk:      models.RiskL2,
			Steps: []models.SOPStep{
				{Description: "Rotate and compress logs older than 24h", Action: "cleanup", Params: map[string]string{"target": "logs", "older_than": "24h"}},
				{Description: "Verify disk usage drops below 90%", Action: "verify", Params: map[string]string{"metric": "disk_used_percent", "below": "90"}},
			},
			Rollback: "Restore rotated logs from archive if needed",
		},
		{
			ID:        "rollback-config",
			Title:     "Roll back the most recent configuration change",
			AppliesTo: []string{"config-regression"},
			Risk:      models.RiskL3,
			Steps: []models.SOPStep{
				{Description: "Identify the most recent config revision from audit trail", Action: "inspect", Params: map[string]string{"target": "config-history"}},
				{Description: "Revert to the previous revision", Action: "rollback", Params: map[string]string{"target": "config"}},
				{Description: "Verify error rate returns to baseline", Action: "verify", Params: map[string]string{"metric": "error_rate", "below": "1"}},
			},
			Rollback: "Re-apply the reverted revision",
		},
		{
			ID:        "raise-rate-limits",
			Title:     "Back off and request limit increase",
			AppliesTo: []string{"api-throttling", "error-spike"},
			Risk:      models.RiskL1,
			Steps: []models.SOPStep{
				{Description: "Enable client-side backoff on the throttled API", Action: "configure", Params: map[string]string{"setting": "backoff", "value": "on"}},
				{Description: "Verify throttle events stop", Action: "verify", Params: map[string]string{"event": "throttl", "max": "0"}},
			},
			Rollback: "Disable client-side backoff",
		},
		{
			ID:        "manual-triage",
			Title:     "Escalate to on-call for manual triage",
			AppliesTo: []string{"*"},
			Risk:      models.RiskL0,
			Steps: []models.SOPStep{
				{Description: "Page the on-call engineer with the evidence bundle", Action: "notify", Params: map[string]string{"channel": "oncall"}},
			},
			Rollback: "",
		},
	}
}
