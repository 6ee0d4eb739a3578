package docstore

import (
	"context"
	"sync"
)

// Memory is an in-process Store for tests and local runs without a database.
type Memory struct {
	mu   sync.Mutex
	data map[string][]map[string]any
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]map[string]any)}
}

func memKey(namespace, collection string) string { return namespace + "/" + collection }

func (m *Memory) Replace(_ context.Context, namespace, collection string, records []map[string]any) error {
	if err := checkNames(namespace, collection); err != nil {
		return err
	}
	cp := make([]map[string]any, 0, len(records))
	for _, r := range records {
		cp = append(cp, copyDoc(r))
	}
	m.mu.Lock()
	m.data[memKey(namespace, collection)] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Append(_ context.Context, namespace, collection string, doc map[string]any) error {
	if err := checkNames(namespace, collection); err != nil {
		return err
	}
	k := memKey(namespace, collection)
	m.mu.Lock()
	m.data[k] = append(m.data[k], copyDoc(doc))
	m.mu.Unlock()
	return nil
}

// Docs returns a copy of the documents stored under namespace/collection.
func (m *Memory) Docs(namespace, collection string) []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.data[memKey(namespace, collection)]
	out := make([]map[string]any, 0, len(src))
	for _, d := range src {
		out = append(out, copyDoc(d))
	}
	return out
}

func (m *Memory) Close(context.Context) error { return nil }

func copyDoc(d map[string]any) map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
