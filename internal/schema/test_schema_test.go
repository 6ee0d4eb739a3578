package schema

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f2b/internal/apperr"
	"f2b/internal/errorsink"
	"f2b/internal/llm"
	"f2b/internal/store/docstore"
	"f2b/internal/types"
)

type fakeMock struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeMock) Generate(_ context.Context, samples map[string]any) ([]map[string]any, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []map[string]any{samples, samples}, nil
}

func testProject(t *testing.T) *types.Project {
	dir := t.TempDir()
	return &types.Project{ID: "p-1", RepoName: "shop", RepoPath: filepath.Join(dir, "shop"), Dir: dir}
}

func TestAnnotate_AttachesSchemaWithoutSamples(t *testing.T) {
	fake := llm.NewFake(func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "Endpoint: /broken") {
			return "I cannot help with that.", nil
		}
		return "Sure:\n" + `{"collection_name":"users","schema":{"email":"string"},"samples":{"email":"a@b.c"}}` + "\nDone.", nil
	})
	mem := docstore.NewMemory()
	mock := &fakeMock{}
	logs := docstore.NewMemory()
	sink := errorsink.NewDoc(logs, "F2B", "error_logs", zerolog.Nop())
	p := testProject(t)

	in := []types.Endpoint{
		{EndpointName: "/signup", Method: "POST"},
		{EndpointName: "/broken", Method: "GET"},
		{EndpointName: "/signin", Method: "POST"},
	}
	out, err := New(fake, mock, mem, sink, zerolog.Nop()).Annotate(context.Background(), p, in)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, "/signup", out[0].EndpointName)
	require.NotNil(t, out[0].DatabaseSchema)
	assert.Equal(t, "users", out[0].DatabaseSchema.CollectionName)
	assert.Equal(t, "shop", out[0].DatabaseSchema.DBName)
	assert.Equal(t, "string", out[0].DatabaseSchema.Schema["email"])

	assert.Equal(t, "unknown", out[1].DatabaseSchema.CollectionName)
	assert.Empty(t, out[1].DatabaseSchema.Schema)

	assert.Nil(t, in[0].DatabaseSchema, "input must not be mutated")
	assert.Equal(t, 2, mock.calls)
	assert.Len(t, mem.Docs("p-1", "users"), 2)
	assert.Len(t, logs.Docs("F2B", "error_logs"), 1)

	raw, err := os.ReadFile(filepath.Join(p.Dir, FileWithSchema))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "samples")
	assert.Contains(t, string(raw), `"db_name": "shop"`)
}

func TestAnnotate_ProviderErrorFallsBackToUnknown(t *testing.T) {
	fake := llm.NewFake(func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "Endpoint: /cart") {
			return "", errors.New("upstream 529 overloaded")
		}
		return `{"collection_name":"products","schema":{"sku":"string"},"samples":{"sku":"A1"}}`, nil
	})
	logs := docstore.NewMemory()
	sink := errorsink.NewDoc(logs, "F2B", "error_logs", zerolog.Nop())

	in := []types.Endpoint{
		{EndpointName: "/products", Method: "GET"},
		{EndpointName: "/cart", Method: "POST"},
		{EndpointName: "/products/:id", Method: "GET"},
	}
	out, err := New(fake, &fakeMock{}, docstore.NewMemory(), sink, zerolog.Nop()).
		Annotate(context.Background(), testProject(t), in)
	require.NoError(t, err)
	require.Len(t, out, 3)

	require.NotNil(t, out[1].DatabaseSchema)
	assert.Equal(t, "unknown", out[1].DatabaseSchema.CollectionName)
	assert.Empty(t, out[1].DatabaseSchema.Schema)
	for _, i := range []int{0, 2} {
		require.NotNil(t, out[i].DatabaseSchema, out[i].EndpointName)
		assert.Equal(t, "products", out[i].DatabaseSchema.CollectionName, out[i].EndpointName)
		assert.Equal(t, "string", out[i].DatabaseSchema.Schema["sku"], out[i].EndpointName)
	}
	assert.Len(t, logs.Docs("F2B", "error_logs"), 1)
}

func TestAnnotate_MockFailureKeepsSchema(t *testing.T) {
	fake := llm.NewFakeText(`{"collection_name":"orders","schema":{"total":"number"},"samples":{"total":3}}`)
	mem := docstore.NewMemory()
	out, err := New(fake, &fakeMock{err: errors.New("503")}, mem, nil, zerolog.Nop()).
		Annotate(context.Background(), testProject(t), []types.Endpoint{{EndpointName: "/orders", Method: "GET"}})
	require.NoError(t, err)
	assert.Equal(t, "orders", out[0].DatabaseSchema.CollectionName)
	assert.Empty(t, mem.Docs("p-1", "orders"))
}

func TestAnnotate_ConcurrencyIsBounded(t *testing.T) {
	var inFlight, peak int32
	fake := llm.NewFake(func(llm.Request) (string, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return `{"collection_name":"items","schema":{},"samples":{}}`, nil
	})
	var eps []types.Endpoint
	for i := 0; i < 12; i++ {
		eps = append(eps, types.Endpoint{EndpointName: fmt.Sprintf("/e%d", i), Method: "GET"})
	}

	_, err := New(fake, nil, nil, nil, zerolog.Nop(), WithConcurrency(3)).Annotate(context.Background(), testProject(t), eps)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestAnnotate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(llm.NewFakeText("{}"), nil, nil, nil, zerolog.Nop()).
		Annotate(ctx, testProject(t), []types.Endpoint{{EndpointName: "/a", Method: "GET"}})
	require.Error(t, err)
}

func TestParseSchema(t *testing.T) {
	ms, err := ParseSchema(`{"collection_name":"  ","schema":null}`)
	require.NoError(t, err)
	assert.True(t, ms.IsUnknown())
	assert.NotNil(t, ms.Schema)

	_, err = ParseSchema("nothing here")
	assert.True(t, apperr.Is(err, apperr.KindLLMParse))
}
