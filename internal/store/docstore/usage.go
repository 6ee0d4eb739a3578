package docstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"f2b/internal/llm"
)

// UsageSink appends every traced LLM call to a collection.
type UsageSink struct {
	store      Store
	namespace  string
	collection string
	log        zerolog.Logger
}

func NewUsageSink(store Store, namespace, collection string, log zerolog.Logger) *UsageSink {
	return &UsageSink{store: store, namespace: namespace, collection: collection, log: log}
}

func (u *UsageSink) RecordUsage(ctx context.Context, rec llm.UsageRecord) {
	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := u.store.Append(wctx, u.namespace, u.collection, doc); err != nil {
		u.log.Debug().Err(err).Str("stage", rec.Stage).Msg("docstore: usage record dropped")
	}
}
