package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port      string `env:"PORT" envDefault:":8080"`
	Env       string `env:"APP_ENV" envDefault:"local"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	ProjectsRoot string `env:"PROJECTS_ROOT" envDefault:"Projects"`
	TemplateDir  string `env:"TEMPLATE_DIR" envDefault:"templates"`
	TraceDir     string `env:"TRACE_DIR" envDefault:"tmp/llm_traces"`

	// CloneDepth 0 clones the full history so commit counts are real.
	CloneDepth int `env:"CLONE_DEPTH" envDefault:"0"`

	// CollectionMode is "convert" (built from endpoints) or "llm" (written
	// by the model from the generated routes and models).
	CollectionMode string `env:"COLLECTION_MODE" envDefault:"convert"`

	LLM       LLMConfig
	Discovery DiscoveryConfig
	Schema    SchemaConfig
	Storage   StorageConfig
	Artifact  ArtifactConfig
}

type LLMConfig struct {
	// Provider is the default backend; per-stage overrides fall back to it.
	Provider           string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	DiscoveryProvider  string `env:"DISCOVERY_PROVIDER" envDefault:"groq"`
	SchemaProvider     string `env:"SCHEMA_PROVIDER" envDefault:"groq"`
	PriorityProvider   string `env:"PRIORITY_PROVIDER" envDefault:"groq"`
	CodegenProvider    string `env:"CODEGEN_PROVIDER" envDefault:"anthropic"`
	CollectionProvider string `env:"COLLECTION_PROVIDER" envDefault:"groq"`

	RetryAttempts int           `env:"LLM_RETRY_ATTEMPTS" envDefault:"2"`
	RetryDelay    time.Duration `env:"LLM_RETRY_DELAY" envDefault:"500ms"`
	RPS           float64       `env:"LLM_RPS" envDefault:"0"`
	Burst         int           `env:"LLM_BURST" envDefault:"1"`
	Timeout       time.Duration `env:"LLM_TIMEOUT" envDefault:"120s"`
	UsageLedger   string        `env:"USAGE_LEDGER_PATH" envDefault:"tmp/llm_usage.json"`

	GroqAPIKey  string `env:"GROQ_API_KEY"`
	GroqBaseURL string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	GroqModel   string `env:"GROQ_MODEL" envDefault:"meta-llama/llama-4-maverick-17b-128e-instruct"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4.1-mini"`

	AnthropicAPIKey         string `env:"ANTHROPIC_API_KEY"`
	AnthropicBaseURL        string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com"`
	AnthropicModel          string `env:"ANTHROPIC_MODEL" envDefault:"claude-3-7-sonnet-20250219"`
	AnthropicVersion        string `env:"ANTHROPIC_VERSION" envDefault:"2023-06-01"`
	AnthropicMaxTokens      int    `env:"ANTHROPIC_MAX_TOKENS" envDefault:"17000"`
	AnthropicThinkingBudget int    `env:"ANTHROPIC_THINKING_BUDGET" envDefault:"16000"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-pro"`
}

type DiscoveryConfig struct {
	MaxFiles int `env:"DISCOVERY_MAX_FILES" envDefault:"0"`
	// Modes is a comma list of all_files, api_files, react_hooks, auth_files.
	Modes []string `env:"DISCOVERY_MODES" envSeparator:","`
}

type SchemaConfig struct {
	Concurrency    int           `env:"SCHEMA_CONCURRENCY" envDefault:"10"`
	MockDataAPIURL string        `env:"MOCK_DATA_API_URL"`
	MockTimeout    time.Duration `env:"MOCK_DATA_TIMEOUT" envDefault:"60s"`
}

type StorageConfig struct {
	MongoURL           string `env:"MONGODB_URL"`
	MongoDBName        string `env:"MONGODB_DB_NAME" envDefault:"F2B"`
	ErrorCollection    string `env:"ERROR_COLLECTION_NAME" envDefault:"error_logs"`
	LLMUsageCollection string `env:"LLM_USAGE_COLLECTION_NAME" envDefault:"llm_usage_logs"`
	PostgresDSN        string `env:"DATABASE_URL"`
}

type ArtifactConfig struct {
	Endpoint  string `env:"ARTIFACT_S3_ENDPOINT"`
	Region    string `env:"ARTIFACT_S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"ARTIFACT_S3_ACCESS_KEY"`
	SecretKey string `env:"ARTIFACT_S3_SECRET_KEY"`
	Bucket    string `env:"ARTIFACT_S3_BUCKET" envDefault:"f2b-artifacts"`
	UseSSL    bool   `env:"ARTIFACT_S3_USE_SSL" envDefault:"true"`

	MinioEndpoint string `env:"ARTIFACT_MINIO_ENDPOINT"`
	MinioUser     string `env:"MINIO_ROOT_USER"`
	MinioPassword string `env:"MINIO_ROOT_PASSWORD"`

	PostgresDSN  string `env:"ARTIFACT_PG_DSN"`
	CacheEntries int    `env:"ARTIFACT_CACHE_ENTRIES" envDefault:"64"`
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.Port = normalizePort(cfg.Port)
	cfg.Artifact = resolveArtifact(cfg.Env, cfg.Artifact)
	if cfg.CloneDepth < 0 {
		cfg.CloneDepth = 0
	}
	if cfg.Schema.Concurrency <= 0 {
		cfg.Schema.Concurrency = 10
	}
	cfg.CollectionMode = strings.ToLower(strings.TrimSpace(cfg.CollectionMode))
	for i, m := range cfg.Discovery.Modes {
		cfg.Discovery.Modes[i] = strings.ToLower(strings.TrimSpace(m))
	}
	return cfg, nil
}

// Enabled reports whether an S3-compatible mirror is configured.
func (a ArtifactConfig) Enabled() bool {
	return a.Endpoint != "" && a.AccessKey != "" && a.SecretKey != ""
}

// ProviderFor returns the configured provider for a stage, or the default.
func (l LLMConfig) ProviderFor(stage string) string {
	var p string
	switch stage {
	case "discovery":
		p = l.DiscoveryProvider
	case "schema":
		p = l.SchemaProvider
	case "priority":
		p = l.PriorityProvider
	case "codegen":
		p = l.CodegenProvider
	case "collection":
		p = l.CollectionProvider
	}
	return strings.ToLower(firstNonEmpty(strings.TrimSpace(p), l.Provider))
}

func normalizePort(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ":8080"
	}
	if strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

// In local mode a bundled MinIO is the default mirror.
func resolveArtifact(appEnv string, a ArtifactConfig) ArtifactConfig {
	if strings.EqualFold(strings.TrimSpace(appEnv), "local") {
		if a.Endpoint == "" {
			a.Endpoint = strings.TrimSpace(a.MinioEndpoint)
		}
		a.UseSSL = false
	}
	a.AccessKey = firstNonEmpty(strings.TrimSpace(a.AccessKey), strings.TrimSpace(a.MinioUser))
	a.SecretKey = firstNonEmpty(strings.TrimSpace(a.SecretKey), strings.TrimSpace(a.MinioPassword))
	a.Endpoint = strings.TrimSpace(a.Endpoint)
	return a
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
