package gensql

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type ImportStatus string

const (
	ImportStatusStarted   ImportStatus = "started"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

func (e *ImportStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = ImportStatus(s)
	case string:
		*e = ImportStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for ImportStatus: %T", src)
	}
	return nil
}

func (e ImportStatus) Value() (driver.Value, error) {
	return string(e), nil
}

type HttpCache struct {
	Endpoint          string
	ResponseBody      []byte
	CreatedAt         time.Time
	LastTriedUpdateAt time.Time
}

type ImportAudit struct {
	ID           uuid.UUID
	DatabaseName string
	TableName    string
	Domain       string
	DatasetID    string
	ActorID      string
	Status       ImportStatus
	Metadata     pqtype.NullRawMessage
	Error        sql.NullString
	RowsImported int64
	StartedAt    time.Time
	FinishedAt   sql.NullTime
}

type PermissionGrant struct {
	ID        uuid.UUID
	ActorID   string
	Action    string
	GrantedBy string
	CreatedAt time.Time
}
