package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the incident engine.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Detection    DetectionConfig    `yaml:"detection"`
	Patterns     PatternsConfig     `yaml:"patterns"`
	Inference    InferenceConfig    `yaml:"inference"`
	SOP          SOPConfig          `yaml:"sop"`
	Safety       SafetyConfig       `yaml:"safety"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Cache        CacheConfig        `yaml:"cache"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// TelemetryConfig groups the read-only telemetry backends.
type TelemetryConfig struct {
	Influx  InfluxConfig  `yaml:"influx"`
	OpsCore OpsCoreConfig `yaml:"opsCore"`
}

// InfluxConfig configures the metrics backend.
type InfluxConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Org     string        `yaml:"org"`
	Bucket  string        `yaml:"bucket"`
	Timeout time.Duration `yaml:"timeout"`
}

// OpsCoreConfig configures the events/audit aggregation API.
type OpsCoreConfig struct {
	BaseURL    string        `yaml:"baseURL"`
	EventsPath string        `yaml:"eventsPath"`
	AuditPath  string        `yaml:"auditPath"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DetectionConfig controls snapshot caching and collection windows.
type DetectionConfig struct {
	SnapshotTTL time.Duration `yaml:"snapshotTTL"`
	Window      time.Duration `yaml:"window"`
	MaxRetries  int           `yaml:"maxRetries"`
}

// PatternsConfig controls pattern-pack loading for the matcher.
type PatternsConfig struct {
	Path string `yaml:"path"`
}

// InferenceConfig controls tiered root-cause inference.
type InferenceConfig struct {
	HighThreshold float64       `yaml:"highThreshold"`
	Tier1Model    string        `yaml:"tier1Model"`
	Tier2Model    string        `yaml:"tier2Model"`
	APIKey        string        `yaml:"apiKey"`
	BaseURL       string        `yaml:"baseURL"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"maxRetries"`
	EvidenceLimit int           `yaml:"evidenceLimit"`
}

// SOPConfig controls SOP-pack loading for the registry.
type SOPConfig struct {
	Path string `yaml:"path"`
}

// SafetyConfig controls cooldown and circuit-breaker behaviour.
type SafetyConfig struct {
	Cooldown         time.Duration `yaml:"cooldown"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerWindow    time.Duration `yaml:"breakerWindow"`
}

// KnowledgeConfig configures the two-tier knowledge store.
type KnowledgeConfig struct {
	BadgerPath        string        `yaml:"badgerPath"`
	WeaviateEndpoint  string        `yaml:"weaviateEndpoint"`
	WeaviateAPIKey    string        `yaml:"weaviateAPIKey"`
	WeaviateTimeout   time.Duration `yaml:"weaviateTimeout"`
	QualityGate       float64       `yaml:"qualityGate"`
	KeywordThreshold  float64       `yaml:"keywordThreshold"`
	SemanticThreshold float64       `yaml:"semanticThreshold"`
	SearchCacheTTL    time.Duration `yaml:"searchCacheTTL"`
	EmbeddingModel    string        `yaml:"embeddingModel"`
}

// OrchestratorConfig controls incident lifecycle behaviour.
type OrchestratorConfig struct {
	ApprovalExpiry time.Duration `yaml:"approvalExpiry"`
	NotifyWebhook  string        `yaml:"notifyWebhook"`
	IncidentPath   string        `yaml:"incidentPath"`
}

// SchedulerConfig controls proactive scans.
type SchedulerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Scopes      []string      `yaml:"scopes"`
	Concurrency int           `yaml:"concurrency"`
	ScansPerSec float64       `yaml:"scansPerSec"`
}

// CacheConfig controls Valkey-backed caching of expensive lookups.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTINEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Influx: InfluxConfig{
				Bucket:  "telemetry",
				Timeout: 5 * time.Second,
			},
			OpsCore: OpsCoreConfig{
				EventsPath: "/api/v1/events",
				AuditPath:  "/api/v1/audit",
				Timeout:    5 * time.Second,
			},
		},
		Detection: DetectionConfig{
			SnapshotTTL: 2 * time.Minute,
			Window:      15 * time.Minute,
			MaxRetries:  2,
		},
		Patterns: PatternsConfig{Path: "configs/patterns/default.yaml"},
		Inference: InferenceConfig{
			HighThreshold: 0.85,
			Tier1Model:    "gpt-4o-mini",
			Tier2Model:    "gpt-4o",
			Timeout:       30 * time.Second,
			MaxRetries:    2,
			EvidenceLimit: 3,
		},
		SOP: SOPConfig{Path: "configs/sops/default.yaml"},
		Safety: SafetyConfig{
			Cooldown:         5 * time.Minute,
			BreakerThreshold: 3,
			BreakerWindow:    time.Minute,
		},
		Knowledge: KnowledgeConfig{
			BadgerPath:        "data/knowledge",
			WeaviateTimeout:   5 * time.Second,
			QualityGate:       0.7,
			KeywordThreshold:  0.85,
			SemanticThreshold: 0.70,
			SearchCacheTTL:    2 * time.Minute,
		},
		Orchestrator: OrchestratorConfig{
			ApprovalExpiry: 30 * time.Minute,
			IncidentPath:   "data/incidents",
		},
		Scheduler: SchedulerConfig{
			Interval:    5 * time.Minute,
			Concurrency: 4,
			ScansPerSec: 2,
		},
		Cache: CacheConfig{
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SENTINEL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SENTINEL_INFLUX_URL"); v != "" {
		cfg.Telemetry.Influx.URL = v
	}
	if v := os.Getenv("SENTINEL_INFLUX_TOKEN"); v != "" {
		cfg.Telemetry.Influx.Token = v
	}
	if v := os.Getenv("SENTINEL_INFLUX_ORG"); v != "" {
		cfg.Telemetry.Influx.Org = v
	}
	if v := os.Getenv("SENTINEL_INFLUX_BUCKET"); v != "" {
		cfg.Telemetry.Influx.Bucket = v
	}
	if v := os.Getenv("SENTINEL_OPSCORE_BASE_URL"); v != "" {
		cfg.Telemetry.OpsCore.BaseURL = v
	}
	if v := os.Getenv("SENTINEL_OPSCORE_EVENTS_PATH"); v != "" {
		cfg.Telemetry.OpsCore.EventsPath = v
	}
	if v := os.Getenv("SENTINEL_OPSCORE_AUDIT_PATH"); v != "" {
		cfg.Telemetry.OpsCore.AuditPath = v
	}
	if v := os.Getenv("SENTINEL_SNAPSHOT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detection.SnapshotTTL = d
		}
	}
	if v := os.Getenv("SENTINEL_PATTERNS_PATH"); v != "" {
		cfg.Patterns.Path = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Inference.APIKey = v
	}
	if v := os.Getenv("SENTINEL_INFERENCE_BASE_URL"); v != "" {
		cfg.Inference.BaseURL = v
	}
	if v := os.Getenv("SENTINEL_TIER1_MODEL"); v != "" {
		cfg.Inference.Tier1Model = v
	}
	if v := os.Getenv("SENTINEL_TIER2_MODEL"); v != "" {
		cfg.Inference.Tier2Model = v
	}
	if v := os.Getenv("SENTINEL_HIGH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Inference.HighThreshold = f
		}
	}
	if v := os.Getenv("SENTINEL_SOP_PATH"); v != "" {
		cfg.SOP.Path = v
	}
	if v := os.Getenv("SENTINEL_SAFETY_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Safety.Cooldown = d
		}
	}
	if v := os.Getenv("SENTINEL_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Safety.BreakerThreshold = n
		}
	}
	if v := os.Getenv("SENTINEL_BREAKER_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Safety.BreakerWindow = d
		}
	}
	if v := os.Getenv("SENTINEL_BADGER_PATH"); v != "" {
		cfg.Knowledge.BadgerPath = v
	}
	if v := os.Getenv("SENTINEL_WEAVIATE_URL"); v != "" {
		cfg.Knowledge.WeaviateEndpoint = v
	}
	if v := os.Getenv("SENTINEL_WEAVIATE_API_KEY"); v != "" {
		cfg.Knowledge.WeaviateAPIKey = v
	}
	if v := os.Getenv("SENTINEL_QUALITY_GATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Knowledge.QualityGate = f
		}
	}
	if v := os.Getenv("SENTINEL_APPROVAL_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Orchestrator.ApprovalExpiry = d
		}
	}
	if v := os.Getenv("SENTINEL_NOTIFY_WEBHOOK"); v != "" {
		cfg.Orchestrator.NotifyWebhook = v
	}
	if v := os.Getenv("SENTINEL_INCIDENT_PATH"); v != "" {
		cfg.Orchestrator.IncidentPath = v
	}
	if v := os.Getenv("SENTINEL_SCHEDULER_ENABLED"); v != "" {
		cfg.Scheduler.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SENTINEL_SCHEDULER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.Interval = d
		}
	}
	if v := os.Getenv("SENTINEL_SCHEDULER_SCOPES"); v != "" {
		cfg.Scheduler.Scopes = splitScopes(v)
	}
	if v := os.Getenv("SENTINEL_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SENTINEL_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("SENTINEL_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("SENTINEL_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("SENTINEL_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("SENTINEL_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func splitScopes(v string) []string {
	parts := strings.Split(v, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			scopes = append(scopes, trimmed)
		}
	}
	return scopes
}
