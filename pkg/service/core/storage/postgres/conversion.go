package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/navikt/nada-socrata/pkg/database/gensql"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/sqlc-dev/pqtype"
)

type Converter[O any] interface {
	To() (O, error)
}

func From[I Converter[O], O any](i I) (O, error) {
	return i.To()
}

type PermissionGrant gensql.PermissionGrant

func (g PermissionGrant) To() (*service.PermissionGrant, error) {
	return &service.PermissionGrant{
		ID:        g.ID,
		ActorID:   g.ActorID,
		Action:    g.Action,
		GrantedBy: g.GrantedBy,
		CreatedAt: g.CreatedAt,
	}, nil
}

type PermissionGrants []gensql.PermissionGrant

func (g PermissionGrants) To() ([]*service.PermissionGrant, error) {
	grants := make([]*service.PermissionGrant, len(g))

	for i, raw := range g {
		grant, err := From(PermissionGrant(raw))
		if err != nil {
			return nil, err
		}

		grants[i] = grant
	}

	return grants, nil
}

type ImportAudit gensql.ImportAudit

func (a ImportAudit) To() (*service.ImportAudit, error) {
	var metadata json.RawMessage
	if a.Metadata.Valid {
		metadata = json.RawMessage(a.Metadata.RawMessage)
	}

	return &service.ImportAudit{
		ID:           a.ID,
		DatabaseName: a.DatabaseName,
		TableName:    a.TableName,
		Domain:       a.Domain,
		DatasetID:    a.DatasetID,
		ActorID:      a.ActorID,
		Status:       string(a.Status),
		Metadata:     metadata,
		Error:        a.Error.String,
		RowsImported: a.RowsImported,
		StartedAt:    a.StartedAt,
		FinishedAt:   nullTimeToPtr(a.FinishedAt),
	}, nil
}

type ImportAudits []gensql.ImportAudit

func (a ImportAudits) To() ([]*service.ImportAudit, error) {
	audits := make([]*service.ImportAudit, len(a))

	for i, raw := range a {
		audit, err := From(ImportAudit(raw))
		if err != nil {
			return nil, err
		}

		audits[i] = audit
	}

	return audits, nil
}

func nullTimeToPtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	return &t.Time
}

func stringToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}

func rawToNullRawMessage(raw json.RawMessage) pqtype.NullRawMessage {
	if len(raw) == 0 {
		return pqtype.NullRawMessage{}
	}

	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}
