package postgres

import (
	"context"
	"fmt"

	"github.com/navikt/nada-socrata/pkg/cache"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
)

var _ service.SocrataAPI = &socrataCache{}

// socrataCache caches dataset metadata and row counts, row streams always go
// to the portal.
type socrataCache struct {
	api   service.SocrataAPI
	cache cache.Cacher
}

func (s *socrataCache) ParseDatasetURL(ctx context.Context, raw string) (*service.SocrataDataset, error) {
	return s.api.ParseDatasetURL(ctx, raw)
}

func (s *socrataCache) GetMetadata(ctx context.Context, ds service.SocrataDataset) (*service.SocrataMetadata, error) {
	const op errs.Op = "socrataCache.GetMetadata"

	key := fmt.Sprintf("socrata:metadata:%s", ds)

	meta := &service.SocrataMetadata{}
	valid := s.cache.Get(ctx, key, meta)
	if valid {
		return meta, nil
	}

	meta, err := s.api.GetMetadata(ctx, ds)
	if err != nil {
		return nil, errs.E(op, err)
	}

	s.cache.Set(ctx, key, meta)

	return meta, nil
}

func (s *socrataCache) GetRowCount(ctx context.Context, ds service.SocrataDataset) (*int, error) {
	const op errs.Op = "socrataCache.GetRowCount"

	key := fmt.Sprintf("socrata:rowcount:%s", ds)

	var count int
	valid := s.cache.Get(ctx, key, &count)
	if valid {
		return &count, nil
	}

	n, err := s.api.GetRowCount(ctx, ds)
	if err != nil {
		return nil, errs.E(op, err)
	}

	// Unknown counts are retried on the next request
	if n != nil {
		s.cache.Set(ctx, key, *n)
	}

	return n, nil
}

func (s *socrataCache) StreamRows(ctx context.Context, ds service.SocrataDataset) (service.RowStream, error) {
	return s.api.StreamRows(ctx, ds)
}

func NewSocrataCache(api service.SocrataAPI, cache cache.Cacher) *socrataCache {
	return &socrataCache{
		api:   api,
		cache: cache,
	}
}
