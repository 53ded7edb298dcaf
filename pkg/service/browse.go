package service

import (
	"context"
)

type DatabaseStorage interface {
	ListDatabases(ctx context.Context) ([]*DatabaseInfo, error)
	GetDatabase(ctx context.Context, name string) (*DatabaseInfo, error)
	EnableWAL(ctx context.Context, name string) error
	ListTables(ctx context.Context, database string) ([]string, error)
	GetRows(ctx context.Context, database, table string, limit, offset int) (*TablePage, error)
}

type BrowseService interface {
	ListDatabases(ctx context.Context) ([]*DatabaseInfo, error)
	GetDatabase(ctx context.Context, name string) (*DatabaseTables, error)
	GetTable(ctx context.Context, database, table string, size, offset int) (*TablePage, error)
}

type DatabaseInfo struct {
	Name    string `json:"name"`
	Mutable bool   `json:"mutable"`
	WAL     bool   `json:"wal"`
}

type DatabaseTables struct {
	Database string   `json:"database"`
	Tables   []string `json:"tables"`
}

type TablePage struct {
	Database string   `json:"database"`
	Table    string   `json:"table"`
	Columns  []string `json:"columns"`
	Rows     [][]any  `json:"rows"`
	Total    int      `json:"total"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}
