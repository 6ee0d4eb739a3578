package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f2b/internal/config"
)

func fakeConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{"LLM_PROVIDER", "DISCOVERY_PROVIDER", "SCHEMA_PROVIDER", "PRIORITY_PROVIDER", "CODEGEN_PROVIDER", "COLLECTION_PROVIDER"} {
		t.Setenv(k, "fake")
	}
	dir := t.TempDir()
	t.Setenv("PROJECTS_ROOT", filepath.Join(dir, "Projects"))
	t.Setenv("TEMPLATE_DIR", filepath.Join(dir, "templates"))
	t.Setenv("TRACE_DIR", filepath.Join(dir, "traces"))
	t.Setenv("USAGE_LEDGER_PATH", "")
	t.Setenv("MONGODB_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "")
	t.Setenv("ARTIFACT_MINIO_ENDPOINT", "")
	t.Setenv("ARTIFACT_PG_DSN", "")
	cfg, err := config.Parse()
	require.NoError(t, err)
	return cfg
}

func TestNew_WiresHandler(t *testing.T) {
	a, err := New(context.Background(), fakeConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	require.NotNil(t, a.Orchestrator)
	require.NotNil(t, a.Discoverer)
	require.NotNil(t, a.Synthesizer)
	assert.Nil(t, a.stores.artifacts)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// No mirror is configured, so listings are unavailable.
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/artifacts?project_id=3f2c1e4a-8b6d-4c1f-9a2e-7d5b0c9e1f30", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "f2b_")
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := fakeConfig(t)
	cfg.LLM.CodegenProvider = "nope"
	_, err := New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "codegen provider")
}

func TestClose_Idempotent(t *testing.T) {
	a, err := New(context.Background(), fakeConfig(t), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Shutdown(context.Background()))
}
