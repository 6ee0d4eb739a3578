package errorsink

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f2b/internal/reqctx"
	"f2b/internal/store/docstore"
)

type failingStore struct{ docstore.Memory }

func (f *failingStore) Append(context.Context, string, string, map[string]any) error {
	return errors.New("database down")
}

func TestDoc_RecordsCorrelationFields(t *testing.T) {
	mem := docstore.NewMemory()
	sink := NewDoc(mem, "F2B", "error_logs", zerolog.Nop())
	sink.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	ctx, run := reqctx.New(context.Background(), "https://github.com/acme/shop")
	ctx = reqctx.WithStage(reqctx.WithProject(ctx, "p-1"), "discovery")
	sink.Record(ctx, "llm parse failed", map[string]any{"file": "src/index.tsx", "error_message": "ignored"})

	docs := mem.Docs("F2B", "error_logs")
	require.Len(t, docs, 1)
	d := docs[0]
	assert.Equal(t, run.TraceID, d["request_id"])
	assert.Equal(t, "p-1", d["project_id"])
	assert.Equal(t, "discovery", d["stage"])
	assert.Equal(t, "https://github.com/acme/shop", d["user_query"])
	assert.Equal(t, "llm parse failed", d["error_message"])
	assert.Equal(t, "src/index.tsx", d["file"])
	assert.Equal(t, "2025-03-01 10:00:00", d["timestamp"])
}

func TestDoc_SwallowsStoreFailures(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	sink := NewDoc(&failingStore{}, "F2B", "error_logs", log)

	assert.NotPanics(t, func() { sink.Record(context.Background(), "boom", nil) })
	assert.Contains(t, buf.String(), "errorsink: dropped record")
}

func TestDoc_RecordsAfterCancel(t *testing.T) {
	mem := docstore.NewMemory()
	sink := NewDoc(mem, "F2B", "error_logs", zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink.Record(ctx, "late failure", nil)
	assert.Len(t, mem.Docs("F2B", "error_logs"), 1)
}

func TestMulti_FansOut(t *testing.T) {
	var buf bytes.Buffer
	mem := docstore.NewMemory()
	m := Multi{Log{Logger: zerolog.New(&buf)}, nil, NewDoc(mem, "F2B", "error_logs", zerolog.Nop())}

	m.Record(context.Background(), "x", map[string]any{"k": 1})
	assert.Contains(t, buf.String(), `"message":"x"`)
	assert.Len(t, mem.Docs("F2B", "error_logs"), 1)
}
