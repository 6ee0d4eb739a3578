package discover

import (
	"sort"

	"f2b/internal/types"
)

// Merger accumulates endpoints keyed by (endpointName, METHOD). Earlier
// observations are authoritative unless an incoming record is flagged as a
// modification. Insertion order is preserved.
type Merger struct {
	order []types.EndpointKey
	byKey map[types.EndpointKey]*types.Endpoint
}

func NewMerger() *Merger {
	return &Merger{byKey: make(map[types.EndpointKey]*types.Endpoint)}
}

// Merge folds incoming into the canonical set.
func (m *Merger) Merge(incoming []types.Endpoint) {
	for _, in := range incoming {
		key := in.Key()
		if key.Name == "" {
			continue
		}
		cur, ok := m.byKey[key]
		switch {
		case !ok:
			e := in.Clone()
			e.Method = key.Method
			e.IsModifiedEndpoint = false
			e.UsedInFiles = unionSorted(nil, e.UsedInFiles)
			m.byKey[key] = &e
			m.order = append(m.order, key)
		case in.IsModifiedEndpoint:
			cur.UsedInFiles = unionSorted(cur.UsedInFiles, in.UsedInFiles)
			if len(in.Description) > len(cur.Description) {
				cur.Description = in.Description
			}
			cur.Payload = mergeFields(cur.Payload, in.Payload)
			cur.QueryParams = mergeFields(cur.QueryParams, in.QueryParams)
			cur.Response = mergeFields(cur.Response, in.Response)
			orFlags(cur, in)
		default:
			cur.UsedInFiles = unionSorted(cur.UsedInFiles, in.UsedInFiles)
			orFlags(cur, in)
		}
	}
}

// Endpoints returns a deep copy of the canonical set in insertion order.
func (m *Merger) Endpoints() []types.Endpoint {
	out := make([]types.Endpoint, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.byKey[k].Clone())
	}
	return out
}

func (m *Merger) Len() int { return len(m.order) }

func orFlags(cur *types.Endpoint, in types.Endpoint) {
	cur.AuthRequired = cur.AuthRequired || in.AuthRequired
	cur.DatabaseRequired = cur.DatabaseRequired || in.DatabaseRequired
	cur.FileUpload = cur.FileUpload || in.FileUpload
}

func mergeFields(cur, in types.Fields) types.Fields {
	if len(in) == 0 {
		return cur
	}
	if cur == nil {
		cur = make(types.Fields, len(in))
	}
	for k, v := range in {
		cur[k] = v
	}
	return cur
}

func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		if s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
