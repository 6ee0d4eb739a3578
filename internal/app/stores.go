package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"f2b/internal/config"
	"f2b/internal/store/artifact"
	"f2b/internal/store/docstore"
)

type stores struct {
	docs      docstore.Store
	artifacts artifact.Store
	closers   []io.Closer
}

func initStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	docs, err := docstore.Open(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	arts, err := artifact.Open(ctx, cfg.Artifact, log)
	if err != nil {
		_ = docs.Close(ctx)
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	s := &stores{docs: docs, artifacts: arts}
	if c, ok := arts.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	return s, nil
}

func (s *stores) close(ctx context.Context) error {
	errs := []error{s.docs.Close(ctx)}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
