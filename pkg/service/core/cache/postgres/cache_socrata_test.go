package postgres_test

import (
	"context"
	"testing"

	"github.com/navikt/nada-socrata/pkg/cache"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/service/core/cache/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type cacherMock struct {
	mock.Mock
}

func (m *cacherMock) Get(ctx context.Context, key string, into any) bool {
	args := m.Called(ctx, key, into)
	return args.Bool(0)
}

func (m *cacherMock) Set(ctx context.Context, key string, val any) {
	m.Called(ctx, key, val)
}

func (m *cacherMock) Stats() cache.Statistics {
	return cache.Statistics{}
}

type socrataAPIMock struct {
	mock.Mock
}

func (m *socrataAPIMock) ParseDatasetURL(ctx context.Context, raw string) (*service.SocrataDataset, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(*service.SocrataDataset), args.Error(1)
}

func (m *socrataAPIMock) GetMetadata(ctx context.Context, ds service.SocrataDataset) (*service.SocrataMetadata, error) {
	args := m.Called(ctx, ds)
	return args.Get(0).(*service.SocrataMetadata), args.Error(1)
}

func (m *socrataAPIMock) GetRowCount(ctx context.Context, ds service.SocrataDataset) (*int, error) {
	args := m.Called(ctx, ds)
	return args.Get(0).(*int), args.Error(1)
}

func (m *socrataAPIMock) StreamRows(ctx context.Context, ds service.SocrataDataset) (service.RowStream, error) {
	args := m.Called(ctx, ds)
	return args.Get(0).(service.RowStream), args.Error(1)
}

var ds = service.SocrataDataset{Domain: "data.edmonton.ca", ID: "24uj-dj8v"}

func TestSocrataCache_GetMetadata(t *testing.T) {
	ctx := context.Background()
	meta := &service.SocrataMetadata{ID: "24uj-dj8v", Name: "Permits"}

	t.Run("Miss", func(t *testing.T) {
		c := &cacherMock{}
		api := &socrataAPIMock{}

		c.On("Get", ctx, "socrata:metadata:data.edmonton.ca/24uj-dj8v", mock.Anything).Return(false)
		c.On("Set", ctx, "socrata:metadata:data.edmonton.ca/24uj-dj8v", meta).Return()
		api.On("GetMetadata", ctx, ds).Return(meta, nil)

		got, err := postgres.NewSocrataCache(api, c).GetMetadata(ctx, ds)
		require.NoError(t, err)
		assert.Equal(t, meta, got)
		c.AssertExpectations(t)
		api.AssertExpectations(t)
	})

	t.Run("Hit", func(t *testing.T) {
		c := &cacherMock{}
		api := &socrataAPIMock{}

		c.On("Get", ctx, "socrata:metadata:data.edmonton.ca/24uj-dj8v", mock.Anything).
			Run(func(args mock.Arguments) {
				*args.Get(2).(*service.SocrataMetadata) = *meta
			}).
			Return(true)

		got, err := postgres.NewSocrataCache(api, c).GetMetadata(ctx, ds)
		require.NoError(t, err)
		assert.Equal(t, meta, got)
		api.AssertNotCalled(t, "GetMetadata", mock.Anything, mock.Anything)
	})
}

func TestSocrataCache_GetRowCountUnknownIsNotCached(t *testing.T) {
	ctx := context.Background()

	c := &cacherMock{}
	api := &socrataAPIMock{}

	c.On("Get", ctx, "socrata:rowcount:data.edmonton.ca/24uj-dj8v", mock.Anything).Return(false)
	api.On("GetRowCount", ctx, ds).Return((*int)(nil), nil)

	got, err := postgres.NewSocrataCache(api, c).GetRowCount(ctx, ds)
	require.NoError(t, err)
	assert.Nil(t, got)
	c.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}
