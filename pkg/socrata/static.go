package socrata

import (
	"context"
	"io"
	"strings"
)

// StaticDataset is a dataset served by the Static fetcher.
type StaticDataset struct {
	Metadata *Metadata
	RowCount *int
	CSV      string
}

// Static serves datasets from memory, used for local development and tests.
type Static struct {
	Datasets map[Dataset]*StaticDataset
}

func (s *Static) get(ds Dataset) (*StaticDataset, error) {
	d, ok := s.Datasets[ds]
	if !ok {
		return nil, ErrDatasetNotFound
	}

	return d, nil
}

func (s *Static) GetMetadata(_ context.Context, ds Dataset) (*Metadata, error) {
	d, err := s.get(ds)
	if err != nil {
		return nil, err
	}

	return d.Metadata, nil
}

func (s *Static) GetRowCount(_ context.Context, ds Dataset) (*int, error) {
	d, err := s.get(ds)
	if err != nil {
		return nil, nil
	}

	return d.RowCount, nil
}

func (s *Static) StreamRows(_ context.Context, ds Dataset) (*RowReader, error) {
	d, err := s.get(ds)
	if err != nil {
		return nil, err
	}

	return NewRowReader(io.NopCloser(strings.NewReader(d.CSV)))
}

func NewStatic(datasets map[Dataset]*StaticDataset) *Static {
	return &Static{
		Datasets: datasets,
	}
}
