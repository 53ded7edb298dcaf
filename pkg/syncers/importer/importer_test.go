package importer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/syncers/importer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocrataService struct {
	service.SocrataService

	mu        sync.Mutex
	resumable []*service.ImportJob
	runs      []*service.ImportJob
	run       func(ctx context.Context, job *service.ImportJob) (*service.ImportAudit, error)
}

func (f *fakeSocrataService) RunImport(ctx context.Context, job *service.ImportJob) (*service.ImportAudit, error) {
	f.mu.Lock()
	f.runs = append(f.runs, job)
	run := f.run
	f.mu.Unlock()

	if run != nil {
		return run(ctx, job)
	}

	return &service.ImportAudit{Status: service.ImportStatusCompleted, RowsImported: 10}, nil
}

func (f *fakeSocrataService) ResumableImports(context.Context) ([]*service.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	jobs := f.resumable
	f.resumable = nil

	return jobs, nil
}

func (f *fakeSocrataService) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.runs)
}

func newJob(id string, resumed bool) *service.ImportJob {
	return &service.ImportJob{
		Database: "data",
		Dataset:  service.SocrataDataset{Domain: "data.edmonton.ca", ID: id},
		ActorID:  "alice@example.com",
		Resumed:  resumed,
	}
}

func startImporter(t *testing.T, svc service.SocrataService, metrics *importer.Metrics) *importer.Importer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	imp := importer.New(svc, 2, time.Minute, time.Hour, metrics, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		imp.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return imp
}

func TestImporter_RunsQueuedJobs(t *testing.T) {
	svc := &fakeSocrataService{}
	metrics := importer.NewMetrics()
	prometheus.NewRegistry().MustRegister(metrics.Collectors()...)

	imp := startImporter(t, svc, metrics)

	require.NoError(t, imp.Enqueue(context.Background(), newJob("24uj-dj8v", false)))
	require.NoError(t, imp.Enqueue(context.Background(), newJob("abcd-1234", false)))

	require.Eventually(t, func() bool {
		return svc.runCount() == 2 && testutil.CollectAndCount(metrics.Collectors()[0]) == 1
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.Collectors()[1]) == 20
	}, time.Second, 10*time.Millisecond)
}

func TestImporter_ResumesOnStart(t *testing.T) {
	svc := &fakeSocrataService{
		resumable: []*service.ImportJob{newJob("24uj-dj8v", true)},
	}

	startImporter(t, svc, importer.NewMetrics())

	require.Eventually(t, func() bool {
		return svc.runCount() == 1
	}, time.Second, 10*time.Millisecond)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.True(t, svc.runs[0].Resumed)
}

func TestImporter_FreshJobReplacesRunningImport(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan error, 1)

	svc := &fakeSocrataService{}
	svc.run = func(ctx context.Context, job *service.ImportJob) (*service.ImportAudit, error) {
		if job.ActorID == "first" {
			close(started)
			<-ctx.Done()
			cancelled <- ctx.Err()

			return &service.ImportAudit{Status: service.ImportStatusFailed}, ctx.Err()
		}

		return &service.ImportAudit{Status: service.ImportStatusCompleted}, nil
	}

	imp := startImporter(t, svc, importer.NewMetrics())

	first := newJob("24uj-dj8v", false)
	first.ActorID = "first"
	require.NoError(t, imp.Enqueue(context.Background(), first))

	<-started

	// A resumed job for the same table is skipped while it runs
	require.NoError(t, imp.Enqueue(context.Background(), newJob("24uj-dj8v", true)))

	second := newJob("24uj-dj8v", false)
	second.ActorID = "second"
	require.NoError(t, imp.Enqueue(context.Background(), second))

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("running import was not cancelled")
	}

	require.Eventually(t, func() bool {
		return svc.runCount() == 2
	}, time.Second, 10*time.Millisecond)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	assert.Equal(t, "first", svc.runs[0].ActorID)
	assert.Equal(t, "second", svc.runs[1].ActorID)
}

func TestImporter_ResumeOnlyOnLeader(t *testing.T) {
	testCases := []struct {
		name   string
		leader bool
		expect int
	}{
		{
			name:   "Leader resumes",
			leader: true,
			expect: 1,
		},
		{
			name:   "Follower skips",
			leader: false,
			expect: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeSocrataService{resumable: []*service.ImportJob{newJob("24uj-dj8v", true)}}

			imp := importer.New(svc, 1, time.Minute, time.Hour, importer.NewMetrics(), zerolog.Nop(),
				importer.WithLeaderCheck(func(context.Context) (bool, error) {
					return tc.leader, nil
				}),
			)

			imp.Resume(context.Background())
			assert.Len(t, imp.Queue, tc.expect)
		})
	}
}
