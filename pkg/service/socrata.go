package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

const (
	ImportStatusStarted   = "started"
	ImportStatusCompleted = "completed"
	ImportStatusFailed    = "failed"
)

// ImportTimestamp formats t the way import_started and import_complete are
// stored, e.g. 2024-05-02T08:30:00.000000Z
func ImportTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000") + "Z"
}

type SocrataAPI interface {
	ParseDatasetURL(ctx context.Context, raw string) (*SocrataDataset, error)
	GetMetadata(ctx context.Context, ds SocrataDataset) (*SocrataMetadata, error)
	// GetRowCount returns nil when the count could not be determined.
	GetRowCount(ctx context.Context, ds SocrataDataset) (*int, error)
	StreamRows(ctx context.Context, ds SocrataDataset) (RowStream, error)
}

// RowStream yields the rows of a CSV export until io.EOF.
type RowStream interface {
	Columns() []string
	Next() (map[string]string, error)
	Close() error
}

type SocrataImportStorage interface {
	// EnsureImportsTable creates the socrata_imports table in the database.
	EnsureImportsTable(ctx context.Context, database string) error
	UpsertImport(ctx context.Context, database string, imp *SocrataImport) error
	GetImport(ctx context.Context, database, id string) (*SocrataImport, error)
	ListImports(ctx context.Context, database string) ([]*SocrataImport, error)
	ListIncompleteImports(ctx context.Context, database string) ([]*SocrataImport, error)
	DropTable(ctx context.Context, database, table string) error
	// InsertBatch inserts the rows and bumps row_progress of the import in
	// the same transaction.
	InsertBatch(ctx context.Context, database, table, importID string, columns []string, rows []map[string]string) error
	TransformTable(ctx context.Context, database, table string, types map[string]string) error
	CompleteImport(ctx context.Context, database, importID string, completed time.Time) error
	// TouchImport records that the import is still being worked on.
	TouchImport(ctx context.Context, database, importID string, at time.Time) error
	TableExists(ctx context.Context, database, table string) (bool, error)
}

type ImportAuditStorage interface {
	CreateImportAudit(ctx context.Context, audit *ImportAudit) error
	FinishImportAudit(ctx context.Context, id uuid.UUID, status string, rowsImported int64, errMessage string) error
	ListImportAudits(ctx context.Context, database string, limit int) ([]*ImportAudit, error)
	GetLatestImportAudit(ctx context.Context, database, datasetID string) (*ImportAudit, error)
}

type DiskSpaceChecker interface {
	IsLow(ctx context.Context) (bool, error)
}

type ImportNotifier interface {
	ImportFinished(ctx context.Context, audit *ImportAudit) error
}

type SocrataService interface {
	// Form collects what is needed to render the import form, including a
	// preview of rawURL when it is set.
	Form(ctx context.Context, actor *Actor, rawURL string) (*ImportForm, error)
	Preview(ctx context.Context, actor *Actor, rawURL string) (*SocrataPreview, error)
	TargetDatabase(ctx context.Context, requested string) (string, error)
	StartImport(ctx context.Context, actor *Actor, req *ImportRequest) (*ImportStarted, error)
	// RunImport streams the dataset into its table and returns the finished
	// audit entry, also when the import failed.
	RunImport(ctx context.Context, job *ImportJob) (*ImportAudit, error)
	// ResumableImports returns jobs for imports that were started by an
	// earlier process but never completed, e.g. because it crashed.
	ResumableImports(ctx context.Context) ([]*ImportJob, error)
	ListImports(ctx context.Context, actor *Actor, database string) ([]*SocrataImport, error)
	GetImport(ctx context.Context, actor *Actor, database, id string) (*SocrataImport, error)
	ImportHistory(ctx context.Context, actor *Actor, database string) ([]*ImportAudit, error)
	// WaitForTable polls until the table exists or maxWait has passed.
	WaitForTable(ctx context.Context, database, table string, maxWait time.Duration) (bool, error)
	// Startup enables WAL and creates the socrata_imports table in every
	// mutable database.
	Startup(ctx context.Context) error
}

// SocrataDataset identifies a dataset on a portal.
type SocrataDataset struct {
	Domain string `json:"domain"`
	ID     string `json:"id"`
}

func (d SocrataDataset) String() string {
	return d.Domain + "/" + d.ID
}

// TableName is the name of the table the dataset is imported into.
func (d SocrataDataset) TableName() string {
	return "socrata_" + strings.ReplaceAll(d.ID, "-", "_")
}

type SocrataColumn struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	FieldName    string `json:"fieldName"`
	DataTypeName string `json:"dataTypeName"`
	Description  string `json:"description,omitempty"`
}

type SocrataMetadata struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Attribution string          `json:"attribution"`
	Category    string          `json:"category"`
	Columns     []SocrataColumn `json:"columns"`

	// Raw is the metadata document as returned by the portal.
	Raw json.RawMessage `json:"raw,omitempty"`
}

type SocrataPreview struct {
	URL      string           `json:"url"`
	Dataset  SocrataDataset   `json:"dataset"`
	Metadata *SocrataMetadata `json:"metadata"`
	RowCount *int             `json:"rowCount"`
}

// SocrataImport is a row in the socrata_imports table of a database.
type SocrataImport struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	URL            string          `json:"url"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	RowCount       *int            `json:"rowCount"`
	RowProgress    int             `json:"rowProgress"`
	ImportStarted  string          `json:"importStarted"`
	ImportComplete *string         `json:"importComplete"`

	// ImportHeartbeat is refreshed by the instance running the import.
	ImportHeartbeat *string `json:"importHeartbeat"`

	Database  string `json:"database"`
	TableName string `json:"tableName"`
}

func (i *SocrataImport) IsComplete() bool {
	return i.ImportComplete != nil
}

// LastActivity is the latest heartbeat, or the start time for imports that
// never reported one.
func (i *SocrataImport) LastActivity() string {
	if i.ImportHeartbeat != nil && *i.ImportHeartbeat > i.ImportStarted {
		return *i.ImportHeartbeat
	}

	return i.ImportStarted
}

type ImportRequest struct {
	URL      string `json:"url"`
	Database string `json:"database"`
}

func (r ImportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required),
	)
}

type ImportStarted struct {
	Database     string         `json:"database"`
	Table        string         `json:"table"`
	RedirectPath string         `json:"redirectPath"`
	Import       *SocrataImport `json:"import"`
	Job          *ImportJob     `json:"-"`
}

// ImportJob is a queued import, picked up by the importer.
type ImportJob struct {
	AuditID  uuid.UUID      `json:"auditID"`
	Database string         `json:"database"`
	Dataset  SocrataDataset `json:"dataset"`
	ActorID  string         `json:"actorID"`
	Resumed  bool           `json:"resumed"`
}

// Key identifies the import target, only one import per key runs at a time.
func (j *ImportJob) Key() string {
	return j.Database + "/" + j.Dataset.TableName()
}

type ImportAudit struct {
	ID           uuid.UUID       `json:"id"`
	DatabaseName string          `json:"databaseName"`
	TableName    string          `json:"tableName"`
	Domain       string          `json:"domain"`
	DatasetID    string          `json:"datasetID"`
	ActorID      string          `json:"actorID"`
	Status       string          `json:"status"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Error        string          `json:"error,omitempty"`
	RowsImported int64           `json:"rowsImported"`
	StartedAt    time.Time       `json:"startedAt"`
	FinishedAt   *time.Time      `json:"finishedAt"`
}

type ImportForm struct {
	URL       string          `json:"url"`
	Databases []string        `json:"databases"`
	Selected  string          `json:"selected"`
	Preview   *SocrataPreview `json:"preview"`
	Error     string          `json:"error,omitempty"`
}
