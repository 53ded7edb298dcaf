// Package importer runs Socrata imports in the background and resumes the
// ones an earlier process left unfinished.
package importer

import (
	"context"
	"sync"
	"time"

	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	DefaultQueueSize = 100

	statusError = "error"
)

type Metrics struct {
	imports  *prometheus.CounterVec
	rows     prometheus.Counter
	duration prometheus.Histogram
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.imports, m.rows, m.duration}
}

func (m *Metrics) observe(audit *service.ImportAudit, elapsed time.Duration) {
	status := statusError
	if audit != nil {
		status = audit.Status
		m.rows.Add(float64(audit.RowsImported))
	}

	m.imports.WithLabelValues(status).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func NewMetrics() *Metrics {
	return &Metrics{
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nada_socrata",
			Subsystem: "importer",
			Name:      "imports_total",
			Help:      "Number of finished imports by outcome.",
		}, []string{"status"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nada_socrata",
			Subsystem: "importer",
			Name:      "rows_total",
			Help:      "Number of rows written by imports.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nada_socrata",
			Subsystem: "importer",
			Name:      "import_duration_seconds",
			Help:      "Duration of imports.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}

type runningImport struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Importer struct {
	Queue chan *service.ImportJob

	service         service.SocrataService
	workers         int
	deadline        time.Duration
	resumeFrequency time.Duration
	metrics         *Metrics
	isLeader        LeaderCheck
	log             zerolog.Logger

	mu      sync.Mutex
	running map[string]*runningImport
	pending map[string]bool
}

// LeaderCheck reports whether this instance should resume interrupted
// imports, only one instance sharing the databases may do so.
type LeaderCheck func(ctx context.Context) (bool, error)

type Option func(*Importer)

func WithLeaderCheck(check LeaderCheck) Option {
	return func(i *Importer) {
		i.isLeader = check
	}
}

func New(
	socrataService service.SocrataService,
	workers int,
	deadline, resumeFrequency time.Duration,
	metrics *Metrics,
	log zerolog.Logger,
	opts ...Option,
) *Importer {
	i := &Importer{
		Queue:           make(chan *service.ImportJob, DefaultQueueSize),
		service:         socrataService,
		workers:         workers,
		deadline:        deadline,
		resumeFrequency: resumeFrequency,
		metrics:         metrics,
		log:             log,
		running:         map[string]*runningImport{},
		pending:         map[string]bool{},
		isLeader: func(context.Context) (bool, error) {
			return true, nil
		},
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Run starts the workers and blocks until ctx is done and every running
// import has stopped.
func (i *Importer) Run(ctx context.Context) {
	i.log.Info().
		Int("workers", i.workers).
		Dur("deadline", i.deadline).
		Dur("resume_frequency", i.resumeFrequency).
		Msg("starting importer")

	var wg sync.WaitGroup

	for n := 0; n < i.workers; n++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			i.work(ctx)
		}()
	}

	ticker := time.NewTicker(i.resumeFrequency)
	defer ticker.Stop()

	i.Resume(ctx)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			i.log.Info().Msg("importer stopped")

			return
		case <-ticker.C:
			i.Resume(ctx)
		}
	}
}

// Enqueue hands a job to the workers, it blocks while the queue is full.
func (i *Importer) Enqueue(ctx context.Context, job *service.ImportJob) error {
	select {
	case i.Queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resume queues the interrupted imports that are neither running nor
// already queued.
func (i *Importer) Resume(ctx context.Context) {
	leader, err := i.isLeader(ctx)
	if err != nil {
		i.log.Error().Err(err).Msg("checking leader status")
		return
	}

	if !leader {
		i.log.Debug().Msg("not leader, skipping resume")
		return
	}

	jobs, err := i.service.ResumableImports(ctx)
	if err != nil {
		i.log.Error().Err(err).Msg("listing resumable imports")
		return
	}

	for _, job := range jobs {
		key := job.Key()

		i.mu.Lock()
		_, running := i.running[key]
		skip := running || i.pending[key]

		if !skip {
			i.pending[key] = true
		}
		i.mu.Unlock()

		if skip {
			continue
		}

		i.log.Info().Str("import", key).Msg("resuming interrupted import")

		err := i.Enqueue(ctx, job)
		if err != nil {
			return
		}
	}
}

func (i *Importer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-i.Queue:
			i.process(ctx, job)
		}
	}
}

func (i *Importer) process(ctx context.Context, job *service.ImportJob) {
	key := job.Key()
	log := i.log.With().Str("import", key).Bool("resumed", job.Resumed).Logger()

	jobCtx, entry, ok := i.claim(ctx, job)
	if !ok {
		log.Info().Msg("import is already running, skipping")
		return
	}

	defer func() {
		entry.cancel()

		i.mu.Lock()
		if i.running[key] == entry {
			delete(i.running, key)
		}
		i.mu.Unlock()

		close(entry.done)
	}()

	start := time.Now()

	audit, err := i.service.RunImport(jobCtx, job)
	if err != nil {
		log.Warn().Err(err).Msg("import did not complete")
	}

	i.metrics.observe(audit, time.Since(start))
}

// claim registers job as running. A resumed job is dropped while another
// import of the same table runs, a fresh job cancels and replaces it.
func (i *Importer) claim(ctx context.Context, job *service.ImportJob) (context.Context, *runningImport, bool) {
	key := job.Key()

	for {
		i.mu.Lock()

		if job.Resumed {
			delete(i.pending, key)
		}

		existing, ok := i.running[key]
		if !ok {
			jobCtx, cancel := context.WithTimeout(ctx, i.deadline)
			entry := &runningImport{
				cancel: cancel,
				done:   make(chan struct{}),
			}
			i.running[key] = entry
			i.mu.Unlock()

			return jobCtx, entry, true
		}

		cancel := existing.cancel
		i.mu.Unlock()

		if job.Resumed {
			return nil, nil, false
		}

		i.log.Info().Str("import", key).Msg("cancelling running import of the same table")
		cancel()

		select {
		case <-existing.done:
		case <-ctx.Done():
			return nil, nil, false
		}
	}
}
