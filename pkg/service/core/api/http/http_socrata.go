package http

import (
	"context"
	"errors"

	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/socrata"
	"github.com/rs/zerolog"
)

var _ service.SocrataAPI = &socrataAPI{}

type socrataAPI struct {
	fetcher socrata.Fetcher
	log     zerolog.Logger
}

func (a *socrataAPI) ParseDatasetURL(_ context.Context, raw string) (*service.SocrataDataset, error) {
	const op errs.Op = "socrataAPI.ParseDatasetURL"

	ds, err := socrata.ParseURL(raw)
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, op, errs.Parameter("url"), err)
	}

	return &service.SocrataDataset{
		Domain: ds.Domain,
		ID:     ds.ID,
	}, nil
}

func (a *socrataAPI) GetMetadata(ctx context.Context, ds service.SocrataDataset) (*service.SocrataMetadata, error) {
	const op errs.Op = "socrataAPI.GetMetadata"

	meta, err := a.fetcher.GetMetadata(ctx, toDataset(ds))
	if err != nil {
		return nil, errs.E(kindFor(err), op, errs.Parameter("url"), err)
	}

	columns := make([]service.SocrataColumn, len(meta.Columns))
	for i, c := range meta.Columns {
		columns[i] = service.SocrataColumn{
			ID:           c.ID,
			Name:         c.Name,
			FieldName:    c.FieldName,
			DataTypeName: c.DataTypeName,
			Description:  c.Description,
		}
	}

	return &service.SocrataMetadata{
		ID:          meta.ID,
		Name:        meta.Name,
		Description: meta.Description,
		Attribution: meta.Attribution,
		Category:    meta.Category,
		Columns:     columns,
		Raw:         meta.Raw,
	}, nil
}

func (a *socrataAPI) GetRowCount(ctx context.Context, ds service.SocrataDataset) (*int, error) {
	count, err := a.fetcher.GetRowCount(ctx, toDataset(ds))
	if err != nil {
		// The count is informational, failing to get it is not an error
		a.log.Info().Err(err).Str("dataset", ds.String()).Msg("fetching row count")
		return nil, nil
	}

	return count, nil
}

func (a *socrataAPI) StreamRows(ctx context.Context, ds service.SocrataDataset) (service.RowStream, error) {
	const op errs.Op = "socrataAPI.StreamRows"

	reader, err := a.fetcher.StreamRows(ctx, toDataset(ds))
	if err != nil {
		return nil, errs.E(kindFor(err), op, err)
	}

	return &rowStream{reader: reader}, nil
}

type rowStream struct {
	reader *socrata.RowReader
}

func (s *rowStream) Columns() []string {
	return s.reader.Columns()
}

func (s *rowStream) Next() (map[string]string, error) {
	return s.reader.Next()
}

func (s *rowStream) Close() error {
	return s.reader.Close()
}

func toDataset(ds service.SocrataDataset) socrata.Dataset {
	return socrata.Dataset{
		Domain: ds.Domain,
		ID:     ds.ID,
	}
}

func kindFor(err error) errs.Kind {
	switch {
	case errors.Is(err, socrata.ErrDatasetNotFound):
		return errs.NotExist
	case errors.Is(err, socrata.ErrMissingDomain), errors.Is(err, socrata.ErrInvalidID):
		return errs.InvalidRequest
	default:
		return errs.IO
	}
}

func NewSocrataAPI(fetcher socrata.Fetcher, log zerolog.Logger) *socrataAPI {
	return &socrataAPI{
		fetcher: fetcher,
		log:     log,
	}
}
