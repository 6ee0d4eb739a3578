package llm

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"f2b/internal/util/jsonutil"
)

// UsageLedger keeps running totals per UTC day, broken down by model and by
// pipeline stage, in one JSON file. The file is read once and rewritten
// after every record.
type UsageLedger struct {
	mu     sync.Mutex
	path   string
	loaded bool
	data   usageLedgerFile
}

type usageLedgerFile struct {
	UpdatedAt time.Time           `json:"updated_at"`
	Days      map[string]usageDay `json:"days"`
}

type usageDay struct {
	usageStat
	Models map[string]usageStat `json:"models"`
	Stages map[string]usageStat `json:"stages,omitempty"`
}

type usageStat struct {
	Requests int64   `json:"requests"`
	Tokens   int64   `json:"tokens"`
	CostUSD  float64 `json:"cost_usd"`
	Errors   int64   `json:"errors"`
}

func (s *usageStat) add(rec UsageRecord) {
	s.Requests++
	s.Tokens += int64(rec.Tokens.Total())
	s.CostUSD += rec.CostUSD
	if rec.Error != "" {
		s.Errors++
	}
}

// NewUsageLedger writes to path. An empty path disables the ledger.
func NewUsageLedger(path string) *UsageLedger {
	return &UsageLedger{path: path}
}

func (l *UsageLedger) RecordUsage(_ context.Context, rec UsageRecord) {
	if l == nil || l.path == "" {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.load()

	key := rec.Timestamp.UTC().Format(time.DateOnly)
	day := l.data.Days[key]
	if day.Models == nil {
		day.Models = map[string]usageStat{}
	}
	if day.Stages == nil {
		day.Stages = map[string]usageStat{}
	}
	day.add(rec)
	addTo(day.Models, rec.Provider+":"+rec.Model, rec)
	if rec.Stage != "" {
		addTo(day.Stages, rec.Stage, rec)
	}
	l.data.Days[key] = day
	l.data.UpdatedAt = time.Now().UTC()

	// Usage accounting never fails a completion.
	_ = jsonutil.WriteFile(l.path, l.data)
}

func addTo(m map[string]usageStat, key string, rec UsageRecord) {
	s := m[key]
	s.add(rec)
	m[key] = s
}

// load reads the existing file on first use. An unreadable file starts a
// fresh ledger.
func (l *UsageLedger) load() {
	if l.loaded {
		return
	}
	l.loaded = true
	err := jsonutil.ReadFile(l.path, &l.data)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.data = usageLedgerFile{}
	}
	if l.data.Days == nil {
		l.data.Days = map[string]usageDay{}
	}
}
