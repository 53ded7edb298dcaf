package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/nada-socrata/pkg/database/gensql"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/service/core/storage/postgres"
	"github.com/navikt/nada-socrata/pkg/service/core/storage/postgres/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	grantID = uuid.MustParse("14726B25-FACE-47C7-AC55-782799362E58")
	created = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
)

func TestPermissionStorage_HasGrant(t *testing.T) {
	testCases := []struct {
		name      string
		returnOK  bool
		returnErr error
		expect    bool
		expectErr bool
	}{
		{
			name:     "Has grant",
			returnOK: true,
			expect:   true,
		},
		{
			name:     "No grant",
			returnOK: false,
			expect:   false,
		},
		{
			name:      "Database error",
			returnErr: fmt.Errorf("connection refused"),
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()

			mockQueries := new(mock.PermissionQueriesMock)
			mockQueries.On("HasGrant", ctx, gensql.HasGrantParams{ActorID: "alice", Action: service.PermissionImportSocrata}).
				Return(tc.returnOK, tc.returnErr)

			storage := postgres.NewPermissionStorage(mockQueries, mock.PermissionQueriesWithTxFn(mockQueries, nil, nil))
			got, err := storage.HasGrant(ctx, "alice", service.PermissionImportSocrata)

			if tc.expectErr {
				require.Error(t, err)
				assert.True(t, errs.KindIs(errs.Database, err))
				assert.Equal(t, []string{"permissionStorage.HasGrant"}, errs.OpStack(err))
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tc.expect, got)
			mockQueries.AssertExpectations(t)
		})
	}
}

func TestPermissionStorage_CreateGrant(t *testing.T) {
	grant := &service.PermissionGrant{
		ID:        grantID,
		ActorID:   "alice",
		Action:    service.PermissionImportSocrata,
		GrantedBy: service.RootActorID,
	}

	t.Run("Creates grant", func(t *testing.T) {
		ctx := context.Background()

		mockQueries := new(mock.PermissionQueriesMock)
		mockTransacter := new(mock.MockTransacter)

		mockQueries.On("HasGrant", ctx, gensql.HasGrantParams{ActorID: "alice", Action: service.PermissionImportSocrata}).
			Return(false, nil)
		mockQueries.On("CreateGrant", ctx, gensql.CreateGrantParams{
			ID:        grantID,
			ActorID:   "alice",
			Action:    service.PermissionImportSocrata,
			GrantedBy: service.RootActorID,
		}).Return(gensql.PermissionGrant{
			ID:        grantID,
			ActorID:   "alice",
			Action:    service.PermissionImportSocrata,
			GrantedBy: service.RootActorID,
			CreatedAt: created,
		}, nil)
		mockTransacter.On("Commit").Return(nil)
		mockTransacter.On("Rollback").Return(nil)

		storage := postgres.NewPermissionStorage(mockQueries, mock.PermissionQueriesWithTxFn(mockQueries, mockTransacter, nil))
		got, err := storage.CreateGrant(ctx, grant)
		require.NoError(t, err)

		assert.Equal(t, &service.PermissionGrant{
			ID:        grantID,
			ActorID:   "alice",
			Action:    service.PermissionImportSocrata,
			GrantedBy: service.RootActorID,
			CreatedAt: created,
		}, got)
		mockQueries.AssertExpectations(t)
		mockTransacter.AssertCalled(t, "Commit")
	})

	t.Run("Already granted", func(t *testing.T) {
		ctx := context.Background()

		mockQueries := new(mock.PermissionQueriesMock)
		mockTransacter := new(mock.MockTransacter)

		mockQueries.On("HasGrant", ctx, gensql.HasGrantParams{ActorID: "alice", Action: service.PermissionImportSocrata}).
			Return(true, nil)
		mockTransacter.On("Rollback").Return(nil)

		storage := postgres.NewPermissionStorage(mockQueries, mock.PermissionQueriesWithTxFn(mockQueries, mockTransacter, nil))
		_, err := storage.CreateGrant(ctx, grant)

		require.Error(t, err)
		assert.True(t, errs.KindIs(errs.Exist, err))
		mockQueries.AssertNotCalled(t, "CreateGrant")
		mockTransacter.AssertNotCalled(t, "Commit")
		mockTransacter.AssertCalled(t, "Rollback")
	})

	t.Run("Begin fails", func(t *testing.T) {
		mockQueries := new(mock.PermissionQueriesMock)

		storage := postgres.NewPermissionStorage(mockQueries, mock.PermissionQueriesWithTxFn(nil, nil, fmt.Errorf("no connection")))
		_, err := storage.CreateGrant(context.Background(), grant)

		require.Error(t, err)
		assert.True(t, errs.KindIs(errs.Database, err))
	})
}

func TestPermissionStorage_DeleteGrant(t *testing.T) {
	testCases := []struct {
		name       string
		deleted    int64
		returnErr  error
		expectKind errs.Kind
	}{
		{
			name:    "Deleted",
			deleted: 1,
		},
		{
			name:       "No such grant",
			deleted:    0,
			expectKind: errs.NotExist,
		},
		{
			name:       "Database error",
			returnErr:  fmt.Errorf("oops"),
			expectKind: errs.Database,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()

			mockQueries := new(mock.PermissionQueriesMock)
			mockQueries.On("DeleteGrant", ctx, gensql.DeleteGrantParams{ActorID: "alice", Action: service.PermissionImportSocrata}).
				Return(tc.deleted, tc.returnErr)

			storage := postgres.NewPermissionStorage(mockQueries, nil)
			err := storage.DeleteGrant(ctx, "alice", service.PermissionImportSocrata)

			if tc.expectKind == errs.Other {
				assert.NoError(t, err)
			} else {
				assert.True(t, errs.KindIs(tc.expectKind, err))
			}

			mockQueries.AssertExpectations(t)
		})
	}
}

func TestPermissionStorage_ListGrants(t *testing.T) {
	ctx := context.Background()

	mockQueries := new(mock.PermissionQueriesMock)
	mockQueries.On("GetGrants", ctx).Return([]gensql.PermissionGrant{
		{
			ID:        grantID,
			ActorID:   "bob",
			Action:    service.PermissionImportSocrata,
			GrantedBy: service.RootActorID,
			CreatedAt: created,
		},
	}, nil)

	storage := postgres.NewPermissionStorage(mockQueries, nil)
	got, err := storage.ListGrants(ctx)
	require.NoError(t, err)

	assert.Equal(t, []*service.PermissionGrant{
		{
			ID:        grantID,
			ActorID:   "bob",
			Action:    service.PermissionImportSocrata,
			GrantedBy: service.RootActorID,
			CreatedAt: created,
		},
	}, got)
}
