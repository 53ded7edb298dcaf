package core

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
	httpapi "github.com/navikt/nada-socrata/pkg/service/core/api/http"
	"github.com/navikt/nada-socrata/pkg/service/core/storage/sqlite"
	"github.com/navikt/nada-socrata/pkg/socrata"
	"github.com/navikt/nada-socrata/pkg/sqlitedb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const permitsURL = "https://data.edmonton.ca/Urban-Planning-Economy/General-Building-Permits/24uj-dj8v"

type memoryAuditStorage struct {
	sync.Mutex
	audits map[uuid.UUID]*service.ImportAudit
}

func (s *memoryAuditStorage) CreateImportAudit(_ context.Context, audit *service.ImportAudit) error {
	s.Lock()
	defer s.Unlock()

	audit.Status = service.ImportStatusStarted
	audit.StartedAt = time.Now()

	stored := *audit
	s.audits[audit.ID] = &stored

	return nil
}

func (s *memoryAuditStorage) FinishImportAudit(_ context.Context, id uuid.UUID, status string, rows int64, errMsg string) error {
	s.Lock()
	defer s.Unlock()

	audit, ok := s.audits[id]
	if !ok {
		return errs.E(errs.NotExist, errs.Str("no audit"))
	}

	now := time.Now()
	audit.Status = status
	audit.RowsImported = rows
	audit.Error = errMsg
	audit.FinishedAt = &now

	return nil
}

func (s *memoryAuditStorage) ListImportAudits(_ context.Context, database string, limit int) ([]*service.ImportAudit, error) {
	s.Lock()
	defer s.Unlock()

	var audits []*service.ImportAudit
	for _, a := range s.audits {
		if a.DatabaseName == database {
			audits = append(audits, a)
		}
	}

	sort.Slice(audits, func(i, j int) bool {
		return audits[i].StartedAt.After(audits[j].StartedAt)
	})

	if len(audits) > limit {
		audits = audits[:limit]
	}

	return audits, nil
}

func (s *memoryAuditStorage) GetLatestImportAudit(ctx context.Context, database, datasetID string) (*service.ImportAudit, error) {
	audits, _ := s.ListImportAudits(ctx, database, len(s.audits)+1)
	for _, a := range audits {
		if a.DatasetID == datasetID {
			return a, nil
		}
	}

	return nil, errs.E(errs.NotExist, errs.Parameter("datasetID"), errs.Str("no audit"))
}

func (s *memoryAuditStorage) byStatus(status string) []*service.ImportAudit {
	s.Lock()
	defer s.Unlock()

	var audits []*service.ImportAudit
	for _, a := range s.audits {
		if a.Status == status {
			audits = append(audits, a)
		}
	}

	return audits
}

type fixedDisk struct {
	low bool
}

func (d *fixedDisk) IsLow(context.Context) (bool, error) {
	return d.low, nil
}

type recordingNotifier struct {
	sync.Mutex
	audits []*service.ImportAudit
}

func (n *recordingNotifier) ImportFinished(_ context.Context, audit *service.ImportAudit) error {
	n.Lock()
	defer n.Unlock()

	n.audits = append(n.audits, audit)

	return nil
}

type socrataFixture struct {
	service   *socrataService
	imports   service.SocrataImportStorage
	databases service.DatabaseStorage
	audits    *memoryAuditStorage
	disk      *fixedDisk
	notifier  *recordingNotifier
}

func newSocrataFixture(t *testing.T, restrict string) *socrataFixture {
	t.Helper()

	dir := t.TempDir()
	registry := sqlitedb.NewRegistry()

	for _, name := range []string{"data", "other"} {
		db, err := sqlitedb.Open(name, filepath.Join(dir, name+".db"), false)
		require.NoError(t, err)
		require.NoError(t, registry.Add(db))
	}

	t.Cleanup(func() {
		_ = registry.Close()
	})

	count := 3
	fetcher := socrata.NewStatic(map[socrata.Dataset]*socrata.StaticDataset{
		{Domain: "data.edmonton.ca", ID: "24uj-dj8v"}: {
			Metadata: &socrata.Metadata{
				ID:          "24uj-dj8v",
				Name:        "General Building Permits",
				Description: "Permits issued by the city",
				Raw:         []byte(`{"id":"24uj-dj8v","name":"General Building Permits"}`),
			},
			RowCount: &count,
			CSV:      "permit,value,ward\n1,10.5,north\n2,,south\n3,7,\n",
		},
		{Domain: "data.edmonton.ca", ID: "empt-y000"}: {
			Metadata: &socrata.Metadata{ID: "empt-y000", Name: "Empty"},
			CSV:      "a,b\n",
		},
	})

	f := &socrataFixture{
		imports:   sqlite.NewSocrataImportStorage(registry),
		databases: sqlite.NewDatabaseStorage(registry),
		audits:    &memoryAuditStorage{audits: map[uuid.UUID]*service.ImportAudit{}},
		disk:      &fixedDisk{},
		notifier:  &recordingNotifier{},
	}

	permissions := NewPermissionService(nil, zerolog.Nop(), NewAllowListPlugin(map[string][]string{
		service.PermissionImportSocrata: {"alice@example.com"},
	}))

	f.service = NewSocrataService(
		httpapi.NewSocrataAPI(fetcher, zerolog.Nop()),
		f.imports,
		f.databases,
		f.audits,
		permissions,
		f.disk,
		f.notifier,
		restrict,
		2,
		zerolog.Nop(),
	)

	require.NoError(t, f.service.Startup(context.Background()))

	return f
}

var alice = &service.Actor{ID: "alice@example.com"}

func TestSocrataService_ImportLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newSocrataFixture(t, "")

	started, err := f.service.StartImport(ctx, alice, &service.ImportRequest{URL: permitsURL})
	require.NoError(t, err)

	assert.Equal(t, "data", started.Database)
	assert.Equal(t, "socrata_24uj_dj8v", started.Table)
	assert.Equal(t, "/data/socrata_24uj_dj8v", started.RedirectPath)
	assert.Equal(t, "General Building Permits", started.Import.Name)
	assert.JSONEq(t, `{"id":"24uj-dj8v","name":"General Building Permits"}`, string(started.Import.Metadata))
	require.NotNil(t, started.Job)
	assert.Equal(t, "alice@example.com", started.Job.ActorID)
	assert.False(t, started.Job.Resumed)

	require.Len(t, f.audits.byStatus(service.ImportStatusStarted), 1)

	audit, err := f.service.RunImport(ctx, started.Job)
	require.NoError(t, err)
	assert.Equal(t, service.ImportStatusCompleted, audit.Status)
	assert.Equal(t, int64(3), audit.RowsImported)
	assert.Empty(t, audit.Error)

	completed := f.audits.byStatus(service.ImportStatusCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, started.Job.AuditID, completed[0].ID)
	assert.Equal(t, int64(3), completed[0].RowsImported)

	imp, err := f.service.GetImport(ctx, alice, "", "24uj-dj8v")
	require.NoError(t, err)
	assert.True(t, imp.IsComplete())
	assert.Equal(t, 3, imp.RowProgress)
	assert.Equal(t, 3, *imp.RowCount)

	page, err := f.databases.GetRows(ctx, "data", "socrata_24uj_dj8v", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"permit", "value", "ward"}, page.Columns)
	assert.Equal(t, 3, page.Total)

	imports, err := f.service.ListImports(ctx, alice, "")
	require.NoError(t, err)
	require.Len(t, imports, 1)
	assert.Equal(t, "data", imports[0].Database)

	history, err := f.service.ImportHistory(ctx, alice, "data")
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.Len(t, f.notifier.audits, 1)
	assert.Equal(t, service.ImportStatusCompleted, f.notifier.audits[0].Status)
}

func TestSocrataService_EmptyDatasetCreatesTable(t *testing.T) {
	ctx := context.Background()
	f := newSocrataFixture(t, "")

	started, err := f.service.StartImport(ctx, alice, &service.ImportRequest{URL: "https://data.edmonton.ca/d/empt-y000"})
	require.NoError(t, err)

	audit, err := f.service.RunImport(ctx, started.Job)
	require.NoError(t, err)
	assert.Equal(t, int64(0), audit.RowsImported)

	exists, err := f.imports.TableExists(ctx, "data", "socrata_empt_y000")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSocrataService_StartImportErrors(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name    string
		actor   *service.Actor
		req     *service.ImportRequest
		lowDisk bool
		kind    errs.Kind
		message string
	}{
		{
			name:    "Anonymous actor",
			actor:   nil,
			req:     &service.ImportRequest{URL: permitsURL},
			kind:    errs.Unauthorized,
			message: "Permission denied",
		},
		{
			name:    "Actor without permission",
			actor:   &service.Actor{ID: "bob@example.com"},
			req:     &service.ImportRequest{URL: permitsURL},
			kind:    errs.Unauthorized,
			message: "Permission denied",
		},
		{
			name:    "Low disk space",
			actor:   alice,
			req:     &service.ImportRequest{URL: permitsURL},
			lowDisk: true,
			kind:    errs.Unavailable,
			message: "Disk space is low",
		},
		{
			name:    "Missing domain",
			actor:   alice,
			req:     &service.ImportRequest{URL: "/no/domain/24uj-dj8v"},
			kind:    errs.InvalidRequest,
			message: "Missing domain",
		},
		{
			name:  "Unknown dataset",
			actor: alice,
			req:   &service.ImportRequest{URL: "https://data.edmonton.ca/d/abcd-1234"},
			kind:  errs.NotExist,
		},
		{
			name:  "Unknown database",
			actor: alice,
			req:   &service.ImportRequest{URL: permitsURL, Database: "missing"},
			kind:  errs.NotExist,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSocrataFixture(t, "")
			f.disk.low = tc.lowDisk

			_, err := f.service.StartImport(ctx, tc.actor, tc.req)
			require.Error(t, err)
			assert.True(t, errs.KindIs(tc.kind, err), "kind: %v", err)

			if tc.message != "" {
				assert.Equal(t, tc.message, errs.Message(err))
			}

			assert.Empty(t, f.audits.byStatus(service.ImportStatusStarted))
		})
	}
}

func TestSocrataService_TargetDatabase(t *testing.T) {
	ctx := context.Background()

	t.Run("Defaults to the first mutable database", func(t *testing.T) {
		f := newSocrataFixture(t, "")

		db, err := f.service.TargetDatabase(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "data", db)

		db, err = f.service.TargetDatabase(ctx, "other")
		require.NoError(t, err)
		assert.Equal(t, "other", db)
	})

	t.Run("Restricted database", func(t *testing.T) {
		f := newSocrataFixture(t, "other")

		db, err := f.service.TargetDatabase(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, "other", db)

		_, err = f.service.TargetDatabase(ctx, "data")
		assert.True(t, errs.KindIs(errs.InvalidRequest, err))
		assert.Equal(t, "imports are restricted to the other database", errs.Message(err))
	})
}

func TestSocrataService_Form(t *testing.T) {
	ctx := context.Background()
	f := newSocrataFixture(t, "")

	form, err := f.service.Form(ctx, alice, "")
	require.NoError(t, err)
	assert.Equal(t, &service.ImportForm{
		Databases: []string{"data", "other"},
		Selected:  "data",
	}, form)

	form, err = f.service.Form(ctx, alice, "/no/domain/24uj-dj8v")
	require.NoError(t, err)
	assert.Equal(t, "Missing domain", form.Error)
	assert.Nil(t, form.Preview)

	form, err = f.service.Form(ctx, alice, permitsURL)
	require.NoError(t, err)
	require.NotNil(t, form.Preview)
	assert.Equal(t, "General Building Permits", form.Preview.Metadata.Name)
	assert.Equal(t, 3, *form.Preview.RowCount)

	_, err = f.service.Form(ctx, &service.Actor{ID: "bob@example.com"}, "")
	assert.True(t, errs.KindIs(errs.Unauthorized, err))
}

func TestSocrataService_RunImportFailure(t *testing.T) {
	ctx := context.Background()
	f := newSocrataFixture(t, "")

	started, err := f.service.StartImport(ctx, alice, &service.ImportRequest{URL: permitsURL})
	require.NoError(t, err)

	job := *started.Job
	job.Dataset = service.SocrataDataset{Domain: "data.edmonton.ca", ID: "gone-0000"}

	audit, err := f.service.RunImport(ctx, &job)
	require.Error(t, err)
	require.NotNil(t, audit)
	assert.Equal(t, service.ImportStatusFailed, audit.Status)
	assert.NotEmpty(t, audit.Error)

	failed := f.audits.byStatus(service.ImportStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, started.Job.AuditID, failed[0].ID)

	require.Len(t, f.notifier.audits, 1)
	assert.Equal(t, service.ImportStatusFailed, f.notifier.audits[0].Status)
}

func TestSocrataService_ResumeInterruptedImport(t *testing.T) {
	ctx := context.Background()
	f := newSocrataFixture(t, "")

	started, err := f.service.StartImport(ctx, alice, &service.ImportRequest{URL: permitsURL})
	require.NoError(t, err)

	// Nothing to resume while the heartbeat is fresh
	jobs, err := f.service.ResumableImports(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	// Pretend the instance running it went away
	f.service.now = func() time.Time {
		return time.Now().Add(defaultStaleAfter + time.Minute)
	}

	jobs, err = f.service.ResumableImports(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, &service.ImportJob{
		Database: "data",
		Dataset:  service.SocrataDataset{Domain: "data.edmonton.ca", ID: "24uj-dj8v"},
		ActorID:  "alice@example.com",
		Resumed:  true,
	}, jobs[0])

	audit, err := f.service.RunImport(ctx, jobs[0])
	require.NoError(t, err)
	assert.Equal(t, service.ImportStatusCompleted, audit.Status)
	assert.NotEqual(t, started.Job.AuditID, audit.ID)

	failed := f.audits.byStatus(service.ImportStatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, started.Job.AuditID, failed[0].ID)
	assert.Equal(t, "import was interrupted", failed[0].Error)

	imp, err := f.service.GetImport(ctx, alice, "data", "24uj-dj8v")
	require.NoError(t, err)
	assert.True(t, imp.IsComplete())
	assert.Equal(t, 3, imp.RowProgress)

	jobs, err = f.service.ResumableImports(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSocrataService_ResumeSkipsLiveImports(t *testing.T) {
	ctx := context.Background()
	f := newSocrataFixture(t, "")

	_, err := f.service.StartImport(ctx, alice, &service.ImportRequest{URL: permitsURL})
	require.NoError(t, err)

	later := time.Now().Add(defaultStaleAfter + time.Minute)
	f.service.now = func() time.Time {
		return later
	}

	testCases := []struct {
		name      string
		heartbeat time.Time
		expect    int
	}{
		{
			name:      "Heartbeat from another instance",
			heartbeat: later.Add(-time.Minute),
			expect:    0,
		},
		{
			name:      "Heartbeat just inside the limit",
			heartbeat: later.Add(-defaultStaleAfter + time.Second),
			expect:    0,
		},
		{
			name:      "Stale heartbeat",
			heartbeat: later.Add(-defaultStaleAfter - time.Second),
			expect:    1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, f.imports.TouchImport(ctx, "data", "24uj-dj8v", tc.heartbeat))

			jobs, err := f.service.ResumableImports(ctx)
			require.NoError(t, err)
			assert.Len(t, jobs, tc.expect)
		})
	}
}

func TestSocrataService_KeepAlive(t *testing.T) {
	ctx := context.Background()
	f := newSocrataFixture(t, "")

	started, err := f.service.StartImport(ctx, alice, &service.ImportRequest{URL: permitsURL})
	require.NoError(t, err)
	require.NotNil(t, started.Import.ImportHeartbeat)

	first := *started.Import.ImportHeartbeat

	f.service.staleAfter = 50 * time.Millisecond
	stop := f.service.keepAlive(ctx, started.Job)

	assert.Eventually(t, func() bool {
		imp, err := f.imports.GetImport(ctx, "data", "24uj-dj8v")
		return err == nil && imp.ImportHeartbeat != nil && *imp.ImportHeartbeat > first
	}, time.Second, 10*time.Millisecond)

	stop()

	imp, err := f.imports.GetImport(ctx, "data", "24uj-dj8v")
	require.NoError(t, err)
	assert.Equal(t, started.Import.ImportStarted, imp.ImportStarted)
}

func TestSocrataService_WaitForTable(t *testing.T) {
	ctx := context.Background()
	f := newSocrataFixture(t, "")

	ok, err := f.service.WaitForTable(ctx, "data", "socrata_24uj_dj8v", 150*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.imports.InsertBatch(ctx, "data", "socrata_24uj_dj8v", "24uj-dj8v", []string{"a"}, nil))

	ok, err = f.service.WaitForTable(ctx, "data", "socrata_24uj_dj8v", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}
