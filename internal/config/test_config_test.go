package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "Projects", cfg.ProjectsRoot)
	assert.Equal(t, 10, cfg.Schema.Concurrency)
	assert.Equal(t, "F2B", cfg.Storage.MongoDBName)
	assert.Equal(t, "error_logs", cfg.Storage.ErrorCollection)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.LLM.GroqBaseURL)
	assert.Equal(t, 17000, cfg.LLM.AnthropicMaxTokens)
	assert.False(t, cfg.Artifact.Enabled())
	assert.Equal(t, "convert", cfg.CollectionMode)
	assert.Equal(t, 64, cfg.Artifact.CacheEntries)
	assert.Zero(t, cfg.CloneDepth)
}

func TestParse_CloneDepth(t *testing.T) {
	t.Setenv("CLONE_DEPTH", "50")
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.CloneDepth)

	t.Setenv("CLONE_DEPTH", "-3")
	cfg, err = Parse()
	require.NoError(t, err)
	assert.Zero(t, cfg.CloneDepth)
}

func TestParse_PortAndModes(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DISCOVERY_MODES", "API_FILES, auth_files")
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"api_files", "auth_files"}, cfg.Discovery.Modes)
}

func TestParse_LocalMinioFallback(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_ROOT_USER", "user")
	t.Setenv("MINIO_ROOT_PASSWORD", "secret")
	cfg, err := Parse()
	require.NoError(t, err)

	assert.True(t, cfg.Artifact.Enabled())
	assert.Equal(t, "minio:9000", cfg.Artifact.Endpoint)
	assert.False(t, cfg.Artifact.UseSSL)
}

func TestProviderFor_FallsBackToDefault(t *testing.T) {
	l := LLMConfig{Provider: "Anthropic", SchemaProvider: "groq"}
	assert.Equal(t, "groq", l.ProviderFor("schema"))
	assert.Equal(t, "anthropic", l.ProviderFor("codegen"))
	assert.Equal(t, "anthropic", l.ProviderFor("other"))
}
