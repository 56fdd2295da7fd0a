package patterns

import "github.com/sentinelops/incident-engine/internal/models"

// Builtins returns the shipped pattern catalog. Built-in patterns cover the
// failure modes the pipeline must recognise without any learned history.
func Builtins() []models.Pattern {
	return []models.Pattern{
		{
			ID:             "builtin-high-cpu",
			Title:          "Sustained CPU saturation",
			RootCause:      "cpu-saturation",
			BaseConfidence: 0.9,
			Source:         models.PatternBuiltIn,
			Conditions: []models.Condition{
				{
					Signal:      models.SourceMetrics,
					Metric:      "cpu_utilization",
					Op:          models.OpGreaterThan,
					Threshold:   90,
					Consecutive: 3,
				},
			},
		},
		{
			ID:             "builtin-memory-pressure",
			Title:          "Memory pressure with OOM events",
			RootCause:      "memory-pressure",
			BaseConfidence: 0.88,
			Source:         models.PatternBuiltIn,
			Conditions: []models.Condition{
				{
					Signal:      models.SourceMetrics,
					Metric:      "memory_utilization",
					Op:          models.OpGreaterThan,
					Threshold:   95,
					Consecutive: 2,
				},
				{
					Signal:   models.SourceEvents,
					Contains: "oom",
				},
			},
		},
		{
			ID:             "builtin-error-spike",
			Title:          "Error-event spike",
			RootCause:      "error-spike",
			BaseConfidence: 0.8,
			Source:         models.PatternBuiltIn,
			Conditions: []models.Condition{
				{
					Signal:   models.SourceEvents,
					Severity: "error",
					MinCount: 5,
				},
			},
		},
		{
			ID:             "builtin-disk-full",
			Title:          "Disk usage near capacity",
			RootCause:      "disk-full",
			BaseConfidence: 0.92,
			Source:         models.PatternBuiltIn,
			Conditions: []models.Condition{
				{
					Signal:      models.SourceMetrics,
					Metric:      "disk_used_percent",
					Op:          models.OpGreaterEq,
					Threshold:   95,
					Consecutive: 1,
				},
			},
		},
		{
			ID:             "builtin-bad-deploy",
			Title:          "Errors following a configuration change",
			RootCause:      "config-regression",
			BaseConfidence: 0.82,
			Source:         models.PatternBuiltIn,
			Conditions: []models.Condition{
				{
					Signal:   models.SourceAudit,
					Contains: "update",
				},
				{
					Signal:   models.SourceEvents,
					Severity: "error",
					MinCount: 3,
				},
			},
		},
		{
			ID:             "builtin-throttling",
			Title:          "API throttling",
			RootCause:      "api-throttling",
			BaseConfidence: 0.85,
			Source:         models.PatternBuiltIn,
			Conditions: []models.Condition{
				{
					Signal:   models.SourceEvents,
					Contains: "throttl",
					MinCount: 3,
				},
			},
		},
	}
}
