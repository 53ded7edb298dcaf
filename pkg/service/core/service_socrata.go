package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/sqlitedb"
	"github.com/rs/zerolog"
)

const (
	importHistoryLimit = 50
	waitForTablePoll   = 100 * time.Millisecond
	interruptedMessage = "import was interrupted"

	// Imports without a heartbeat for this long are considered abandoned.
	defaultStaleAfter  = 5 * time.Minute
	heartbeatsPerStale = 5
)

var _ service.SocrataService = &socrataService{}

type socrataService struct {
	socrataAPI        service.SocrataAPI
	importStorage     service.SocrataImportStorage
	databaseStorage   service.DatabaseStorage
	auditStorage      service.ImportAuditStorage
	permissionService service.PermissionService
	diskChecker       service.DiskSpaceChecker
	notifier          service.ImportNotifier

	restrictDatabase string
	batchSize        int
	staleAfter       time.Duration
	now              func() time.Time
	log              zerolog.Logger
}

func (s *socrataService) Form(ctx context.Context, actor *service.Actor, rawURL string) (*service.ImportForm, error) {
	const op errs.Op = "socrataService.Form"

	err := s.ensureAllowed(ctx, actor)
	if err != nil {
		return nil, errs.E(op, err)
	}

	databases, err := s.importDatabases(ctx)
	if err != nil {
		return nil, errs.E(op, err)
	}

	form := &service.ImportForm{
		URL:       rawURL,
		Databases: databases,
	}

	if len(databases) > 0 {
		form.Selected = databases[0]
	}

	if rawURL == "" {
		return form, nil
	}

	preview, err := s.preview(ctx, rawURL)
	if err != nil {
		s.log.Info().Err(err).Str("url", rawURL).Msg("previewing dataset")
		form.Error = errs.Message(err)

		return form, nil
	}

	form.Preview = preview

	return form, nil
}

func (s *socrataService) Preview(ctx context.Context, actor *service.Actor, rawURL string) (*service.SocrataPreview, error) {
	const op errs.Op = "socrataService.Preview"

	err := s.ensureAllowed(ctx, actor)
	if err != nil {
		return nil, errs.E(op, err)
	}

	preview, err := s.preview(ctx, rawURL)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return preview, nil
}

// preview fetches the metadata, the row count is only fetched for datasets
// that exist.
func (s *socrataService) preview(ctx context.Context, rawURL string) (*service.SocrataPreview, error) {
	ds, err := s.socrataAPI.ParseDatasetURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	meta, err := s.socrataAPI.GetMetadata(ctx, *ds)
	if err != nil {
		return nil, err
	}

	count, err := s.socrataAPI.GetRowCount(ctx, *ds)
	if err != nil {
		return nil, err
	}

	return &service.SocrataPreview{
		URL:      rawURL,
		Dataset:  *ds,
		Metadata: meta,
		RowCount: count,
	}, nil
}

func (s *socrataService) TargetDatabase(ctx context.Context, requested string) (string, error) {
	const op errs.Op = "socrataService.TargetDatabase"

	name := requested

	switch {
	case s.restrictDatabase != "":
		if requested != "" && requested != s.restrictDatabase {
			return "", errs.E(errs.InvalidRequest, op, errs.Parameter("database"),
				fmt.Errorf("imports are restricted to the %s database", s.restrictDatabase))
		}

		name = s.restrictDatabase
	case requested == "":
		databases, err := s.importDatabases(ctx)
		if err != nil {
			return "", errs.E(op, err)
		}

		if len(databases) == 0 {
			return "", errs.E(errs.NotExist, op, errs.Parameter("database"), errs.Str("no writable database configured"))
		}

		name = databases[0]
	}

	info, err := s.databaseStorage.GetDatabase(ctx, name)
	if err != nil {
		return "", errs.E(op, err)
	}

	if !info.Mutable {
		return "", errs.E(errs.InvalidRequest, op, errs.Parameter("database"), fmt.Errorf("database %s is immutable", name))
	}

	if !info.WAL {
		return "", errs.E(errs.InvalidRequest, op, errs.Parameter("database"), fmt.Errorf("database %s is not in WAL mode", name))
	}

	return name, nil
}

func (s *socrataService) StartImport(ctx context.Context, actor *service.Actor, req *service.ImportRequest) (*service.ImportStarted, error) {
	const op errs.Op = "socrataService.StartImport"

	err := s.ensureAllowed(ctx, actor)
	if err != nil {
		return nil, errs.E(op, err)
	}

	err = req.Validate()
	if err != nil {
		return nil, errs.E(errs.Validation, op, errs.Parameter("url"), err)
	}

	low, err := s.diskChecker.IsLow(ctx)
	if err != nil {
		return nil, errs.E(errs.IO, op, err)
	}

	if low {
		return nil, errs.E(errs.Unavailable, op, errs.Str("Disk space is low"))
	}

	database, err := s.TargetDatabase(ctx, req.Database)
	if err != nil {
		return nil, errs.E(op, err)
	}

	preview, err := s.preview(ctx, req.URL)
	if err != nil {
		return nil, errs.E(op, err)
	}

	metadata, err := rawMetadata(preview.Metadata)
	if err != nil {
		return nil, errs.E(errs.Internal, op, err)
	}

	table := preview.Dataset.TableName()

	started := service.ImportTimestamp(s.now())

	imp := &service.SocrataImport{
		ID:              preview.Dataset.ID,
		Name:            preview.Metadata.Name,
		URL:             req.URL,
		Metadata:        metadata,
		RowCount:        preview.RowCount,
		RowProgress:     0,
		ImportStarted:   started,
		ImportHeartbeat: &started,
		Database:        database,
		TableName:       table,
	}

	err = s.importStorage.UpsertImport(ctx, database, imp)
	if err != nil {
		return nil, errs.E(op, err)
	}

	err = s.importStorage.DropTable(ctx, database, table)
	if err != nil {
		return nil, errs.E(op, err)
	}

	audit := &service.ImportAudit{
		ID:           uuid.New(),
		DatabaseName: database,
		TableName:    table,
		Domain:       preview.Dataset.Domain,
		DatasetID:    preview.Dataset.ID,
		ActorID:      actor.ID,
		Metadata:     metadata,
	}

	err = s.auditStorage.CreateImportAudit(ctx, audit)
	if err != nil {
		return nil, errs.E(op, err)
	}

	s.log.Info().
		Str("actor", actor.ID).
		Str("dataset", preview.Dataset.String()).
		Str("database", database).
		Str("table", table).
		Msg("import started")

	return &service.ImportStarted{
		Database:     database,
		Table:        table,
		RedirectPath: "/" + url.PathEscape(database) + "/" + url.PathEscape(table),
		Import:       imp,
		Job: &service.ImportJob{
			AuditID:  audit.ID,
			Database: database,
			Dataset:  preview.Dataset,
			ActorID:  actor.ID,
		},
	}, nil
}

func (s *socrataService) RunImport(ctx context.Context, job *service.ImportJob) (*service.ImportAudit, error) {
	const op errs.Op = "socrataService.RunImport"

	log := s.log.With().
		Str("dataset", job.Dataset.String()).
		Str("database", job.Database).
		Bool("resumed", job.Resumed).
		Logger()

	if job.Resumed {
		err := s.prepareResume(ctx, job)
		if err != nil {
			return nil, errs.E(op, err)
		}
	}

	table := job.Dataset.TableName()

	var (
		rows      int64
		importErr error
	)

	// A cancelled earlier run of the same dataset may have left rows behind
	if !job.Resumed {
		_, importErr = s.resetImport(ctx, job, false)
	}

	if importErr == nil {
		stop := s.keepAlive(ctx, job)
		rows, importErr = s.importRows(ctx, job, table)
		stop()
	}

	audit := &service.ImportAudit{
		ID:           job.AuditID,
		DatabaseName: job.Database,
		TableName:    table,
		Domain:       job.Dataset.Domain,
		DatasetID:    job.Dataset.ID,
		ActorID:      job.ActorID,
		Status:       service.ImportStatusCompleted,
		RowsImported: rows,
	}

	if importErr != nil {
		audit.Status = service.ImportStatusFailed
		audit.Error = errs.Message(importErr)
	}

	finished := s.now()
	audit.FinishedAt = &finished

	// The import context may have hit its deadline, the outcome is still recorded
	recordCtx := context.WithoutCancel(ctx)

	err := s.auditStorage.FinishImportAudit(recordCtx, audit.ID, audit.Status, audit.RowsImported, audit.Error)
	if err != nil {
		log.Error().Err(err).Msg("recording import outcome")
	}

	err = s.notifier.ImportFinished(recordCtx, audit)
	if err != nil {
		log.Warn().Err(err).Msg("notifying about import")
	}

	if importErr != nil {
		log.Error().Err(importErr).Int64("rows", rows).Msg("import failed")
		return audit, errs.E(op, importErr)
	}

	log.Info().Int64("rows", rows).Msg("import completed")

	return audit, nil
}

func (s *socrataService) importRows(ctx context.Context, job *service.ImportJob, table string) (int64, error) {
	stream, err := s.socrataAPI.StreamRows(ctx, job.Dataset)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	columns := stream.Columns()
	tracker := sqlitedb.NewTypeTracker()
	batch := make([]map[string]string, 0, s.batchSize)

	var total int64

	flush := func() error {
		err := s.importStorage.InsertBatch(ctx, job.Database, table, job.Dataset.ID, columns, batch)
		if err != nil {
			return err
		}

		total += int64(len(batch))
		batch = batch[:0]

		return nil
	}

	for {
		row, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return total, errs.E(errs.IO, err)
		}

		tracker.Observe(row)
		batch = append(batch, row)

		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}

	// An export without rows still gets an empty table
	if len(batch) > 0 || total == 0 {
		if err := flush(); err != nil {
			return total, err
		}
	}

	types := map[string]string{}
	for column, typ := range tracker.Types() {
		types[column] = string(typ)
	}

	err = s.importStorage.TransformTable(ctx, job.Database, table, types)
	if err != nil {
		return total, err
	}

	err = s.importStorage.CompleteImport(ctx, job.Database, job.Dataset.ID, s.now())
	if err != nil {
		return total, err
	}

	return total, nil
}

// keepAlive refreshes the heartbeat of the import until the returned func is
// called, so other instances leave it alone.
func (s *socrataService) keepAlive(ctx context.Context, job *service.ImportJob) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.staleAfter / heartbeatsPerStale)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := s.importStorage.TouchImport(ctx, job.Database, job.Dataset.ID, s.now())
				if err != nil && ctx.Err() == nil {
					s.log.Warn().Err(err).Str("dataset", job.Dataset.String()).Msg("refreshing import heartbeat")
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// prepareResume starts over an interrupted import with a fresh table and
// audit entry.
func (s *socrataService) prepareResume(ctx context.Context, job *service.ImportJob) error {
	previous, err := s.auditStorage.GetLatestImportAudit(ctx, job.Database, job.Dataset.ID)
	if err != nil && !errs.KindIs(errs.NotExist, err) {
		return err
	}

	if previous != nil && previous.Status == service.ImportStatusStarted {
		err = s.auditStorage.FinishImportAudit(ctx, previous.ID, service.ImportStatusFailed, previous.RowsImported, interruptedMessage)
		if err != nil {
			return err
		}
	}

	imp, err := s.resetImport(ctx, job, true)
	if err != nil {
		return err
	}

	audit := &service.ImportAudit{
		ID:           uuid.New(),
		DatabaseName: job.Database,
		TableName:    imp.TableName,
		Domain:       job.Dataset.Domain,
		DatasetID:    job.Dataset.ID,
		ActorID:      job.ActorID,
		Metadata:     imp.Metadata,
	}

	err = s.auditStorage.CreateImportAudit(ctx, audit)
	if err != nil {
		return err
	}

	job.AuditID = audit.ID

	return nil
}

// resetImport clears the progress of an import and drops its table,
// restarted imports also get a new start time.
func (s *socrataService) resetImport(ctx context.Context, job *service.ImportJob, restarted bool) (*service.SocrataImport, error) {
	imp, err := s.importStorage.GetImport(ctx, job.Database, job.Dataset.ID)
	if err != nil {
		return nil, err
	}

	now := service.ImportTimestamp(s.now())

	imp.RowProgress = 0
	imp.ImportComplete = nil
	imp.ImportHeartbeat = &now

	if restarted {
		imp.ImportStarted = now
	}

	err = s.importStorage.UpsertImport(ctx, job.Database, imp)
	if err != nil {
		return nil, err
	}

	err = s.importStorage.DropTable(ctx, job.Database, imp.TableName)
	if err != nil {
		return nil, err
	}

	return imp, nil
}

func (s *socrataService) ResumableImports(ctx context.Context) ([]*service.ImportJob, error) {
	const op errs.Op = "socrataService.ResumableImports"

	databases, err := s.importDatabases(ctx)
	if err != nil {
		return nil, errs.E(op, err)
	}

	// Imports still refreshed by a running instance are not taken over
	staleBefore := service.ImportTimestamp(s.now().Add(-s.staleAfter))

	var jobs []*service.ImportJob

	for _, database := range databases {
		imports, err := s.importStorage.ListIncompleteImports(ctx, database)
		if err != nil {
			return nil, errs.E(op, err)
		}

		for _, imp := range imports {
			if imp.LastActivity() >= staleBefore {
				continue
			}

			ds, err := s.socrataAPI.ParseDatasetURL(ctx, imp.URL)
			if err != nil {
				s.log.Warn().Err(err).Str("database", database).Str("id", imp.ID).Msg("skipping import with invalid url")
				continue
			}

			actorID := service.RootActorID

			latest, err := s.auditStorage.GetLatestImportAudit(ctx, database, imp.ID)
			if err != nil && !errs.KindIs(errs.NotExist, err) {
				return nil, errs.E(op, err)
			}

			if latest != nil {
				// Imports that failed in an earlier run are not retried
				if latest.Status != service.ImportStatusStarted {
					continue
				}

				actorID = latest.ActorID
			}

			jobs = append(jobs, &service.ImportJob{
				Database: database,
				Dataset:  *ds,
				ActorID:  actorID,
				Resumed:  true,
			})
		}
	}

	return jobs, nil
}

func (s *socrataService) ListImports(ctx context.Context, actor *service.Actor, database string) ([]*service.SocrataImport, error) {
	const op errs.Op = "socrataService.ListImports"

	err := s.ensureAllowed(ctx, actor)
	if err != nil {
		return nil, errs.E(op, err)
	}

	databases := []string{database}
	if database == "" {
		databases, err = s.importDatabases(ctx)
		if err != nil {
			return nil, errs.E(op, err)
		}
	}

	imports := []*service.SocrataImport{}

	for _, db := range databases {
		dbImports, err := s.importStorage.ListImports(ctx, db)
		if err != nil {
			return nil, errs.E(op, err)
		}

		imports = append(imports, dbImports...)
	}

	return imports, nil
}

func (s *socrataService) GetImport(ctx context.Context, actor *service.Actor, database, id string) (*service.SocrataImport, error) {
	const op errs.Op = "socrataService.GetImport"

	err := s.ensureAllowed(ctx, actor)
	if err != nil {
		return nil, errs.E(op, err)
	}

	if database == "" {
		database, err = s.TargetDatabase(ctx, "")
		if err != nil {
			return nil, errs.E(op, err)
		}
	}

	imp, err := s.importStorage.GetImport(ctx, database, id)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return imp, nil
}

func (s *socrataService) ImportHistory(ctx context.Context, actor *service.Actor, database string) ([]*service.ImportAudit, error) {
	const op errs.Op = "socrataService.ImportHistory"

	err := s.ensureAllowed(ctx, actor)
	if err != nil {
		return nil, errs.E(op, err)
	}

	if database == "" {
		database, err = s.TargetDatabase(ctx, "")
		if err != nil {
			return nil, errs.E(op, err)
		}
	}

	audits, err := s.auditStorage.ListImportAudits(ctx, database, importHistoryLimit)
	if err != nil {
		return nil, errs.E(op, err)
	}

	return audits, nil
}

func (s *socrataService) WaitForTable(ctx context.Context, database, table string, maxWait time.Duration) (bool, error) {
	const op errs.Op = "socrataService.WaitForTable"

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	ticker := time.NewTicker(waitForTablePoll)
	defer ticker.Stop()

	for {
		exists, err := s.importStorage.TableExists(ctx, database, table)
		if err != nil {
			return false, errs.E(op, err)
		}

		if exists {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
		}
	}
}

func (s *socrataService) Startup(ctx context.Context) error {
	const op errs.Op = "socrataService.Startup"

	databases, err := s.databaseStorage.ListDatabases(ctx)
	if err != nil {
		return errs.E(op, err)
	}

	for _, db := range databases {
		if !db.Mutable {
			continue
		}

		if !db.WAL {
			err := s.databaseStorage.EnableWAL(ctx, db.Name)
			if err != nil {
				return errs.E(op, err)
			}

			s.log.Info().Str("database", db.Name).Msg("enabled WAL mode")
		}

		err := s.importStorage.EnsureImportsTable(ctx, db.Name)
		if err != nil {
			return errs.E(op, err)
		}
	}

	return nil
}

// importDatabases lists the databases imports can go to, the configured
// restriction first.
func (s *socrataService) importDatabases(ctx context.Context) ([]string, error) {
	if s.restrictDatabase != "" {
		return []string{s.restrictDatabase}, nil
	}

	databases, err := s.databaseStorage.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, db := range databases {
		if db.Mutable {
			names = append(names, db.Name)
		}
	}

	return names, nil
}

func (s *socrataService) ensureAllowed(ctx context.Context, actor *service.Actor) error {
	allowed, err := s.permissionService.Allowed(ctx, actor, service.PermissionImportSocrata)
	if err != nil {
		return err
	}

	if !allowed {
		return errs.E(errs.Unauthorized, errs.UserName(actor.String()), errs.Str("Permission denied"))
	}

	return nil
}

func rawMetadata(meta *service.SocrataMetadata) (json.RawMessage, error) {
	if len(meta.Raw) > 0 {
		return meta.Raw, nil
	}

	return json.Marshal(meta)
}

func NewSocrataService(
	socrataAPI service.SocrataAPI,
	importStorage service.SocrataImportStorage,
	databaseStorage service.DatabaseStorage,
	auditStorage service.ImportAuditStorage,
	permissionService service.PermissionService,
	diskChecker service.DiskSpaceChecker,
	notifier service.ImportNotifier,
	restrictDatabase string,
	batchSize int,
	log zerolog.Logger,
) *socrataService {
	return &socrataService{
		socrataAPI:        socrataAPI,
		importStorage:     importStorage,
		databaseStorage:   databaseStorage,
		auditStorage:      auditStorage,
		permissionService: permissionService,
		diskChecker:       diskChecker,
		notifier:          notifier,
		restrictDatabase:  restrictDatabase,
		batchSize:         batchSize,
		staleAfter:        defaultStaleAfter,
		now:               time.Now,
		log:               log,
	}
}
