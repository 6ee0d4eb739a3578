package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

var traceIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// TraceFile persists usage records as JSONL, one file per project (or per
// trace when no project is known yet).
type TraceFile struct {
	dir string
	mu  sync.Mutex
}

func NewTraceFile(dir string) *TraceFile {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = filepath.Join("tmp", "llm_traces")
	}
	return &TraceFile{dir: dir}
}

func sanitizeTraceKey(key string) string {
	key = traceIDSanitizer.ReplaceAllString(strings.TrimSpace(key), "_")
	if key == "" {
		return "unknown"
	}
	return key
}

func (f *TraceFile) filePath(key string) string {
	return filepath.Join(f.dir, sanitizeTraceKey(key)+".jsonl")
}

// RecordUsage implements UsageSink.
func (f *TraceFile) RecordUsage(_ context.Context, rec UsageRecord) {
	if f == nil {
		return
	}
	key := rec.ProjectID
	if key == "" {
		key = rec.TraceID
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	raw = append(raw, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return
	}
	fh, err := os.OpenFile(f.filePath(key), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer fh.Close()
	_, _ = fh.Write(raw)
}

// Read returns all records stored for key (project or trace id).
func (f *TraceFile) Read(key string) ([]UsageRecord, error) {
	if f == nil {
		return nil, fmt.Errorf("llm: trace file is nil")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.Open(f.filePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return []UsageRecord{}, nil
		}
		return nil, err
	}
	defer fh.Close()

	out := make([]UsageRecord, 0, 16)
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec UsageRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
