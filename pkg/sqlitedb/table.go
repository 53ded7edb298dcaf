package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Quote escapes an identifier, e.g. a table or column name.
func Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var name string

	err := q.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("checking if table %s exists: %w", table, err)
	}

	return true, nil
}

// Tables lists the user tables, internal sqlite and migration tables are left
// out.
func Tables(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != ? ORDER BY name", MigrationsTable)
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	tables := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

// Columns returns the column names of the table, in order.
func Columns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", Quote(table)))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)

		if err := rows.Scan(&cid, &name, &typ, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}

		columns = append(columns, name)
	}

	return columns, rows.Err()
}

func DropTable(ctx context.Context, q Querier, table string) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", Quote(table)))
	if err != nil {
		return fmt.Errorf("dropping table %s: %w", table, err)
	}

	return nil
}

// InsertAll inserts the rows into table, creating the table with the given
// columns if it does not exist and adding columns that are missing. The
// table is created even when there are no rows.
func InsertAll(ctx context.Context, q Querier, table string, columns []string, rows []map[string]string) error {
	if len(columns) == 0 {
		return nil
	}

	err := ensureTable(ctx, q, table, columns)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = Quote(c)
		placeholders[i] = "?"
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		Quote(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)

	args := make([]any, len(columns))
	for _, row := range rows {
		for i, c := range columns {
			args[i] = row[c]
		}

		_, err := q.ExecContext(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
	}

	return nil
}

func ensureTable(ctx context.Context, q Querier, table string, columns []string) error {
	exists, err := TableExists(ctx, q, table)
	if err != nil {
		return err
	}

	if !exists {
		defs := make([]string, len(columns))
		for i, c := range columns {
			defs[i] = Quote(c) + " TEXT"
		}

		_, err := q.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", Quote(table), strings.Join(defs, ", ")))
		if err != nil {
			return fmt.Errorf("creating table %s: %w", table, err)
		}

		return nil
	}

	existing, err := Columns(ctx, q, table)
	if err != nil {
		return err
	}

	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}

	for _, c := range columns {
		if have[c] {
			continue
		}

		_, err := q.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", Quote(table), Quote(c)))
		if err != nil {
			return fmt.Errorf("adding column %s to %s: %w", c, table, err)
		}
	}

	return nil
}

// Transform rebuilds table with the given column types, empty strings in
// numeric columns become NULL. Columns not in types keep their values as
// TEXT.
func Transform(ctx context.Context, q Querier, table string, types map[string]ColumnType) error {
	columns, err := Columns(ctx, q, table)
	if err != nil {
		return err
	}

	if len(columns) == 0 {
		return fmt.Errorf("transforming %s: table has no columns", table)
	}

	tmp := table + "_new_transform"

	defs := make([]string, len(columns))
	quoted := make([]string, len(columns))
	selects := make([]string, len(columns))

	for i, c := range columns {
		typ, ok := types[c]
		if !ok {
			typ = TypeText
		}

		defs[i] = Quote(c) + " " + typ.SQL()
		quoted[i] = Quote(c)

		switch typ {
		case TypeInteger, TypeFloat:
			selects[i] = fmt.Sprintf("CAST(NULLIF(%s, '') AS %s)", Quote(c), typ.SQL())
		default:
			selects[i] = Quote(c)
		}
	}

	statements := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", Quote(tmp)),
		fmt.Sprintf("CREATE TABLE %s (%s)", Quote(tmp), strings.Join(defs, ", ")),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", Quote(tmp), strings.Join(quoted, ", "), strings.Join(selects, ", "), Quote(table)),
		fmt.Sprintf("DROP TABLE %s", Quote(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", Quote(tmp), Quote(table)),
	}

	for _, stmt := range statements {
		_, err := q.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("transforming %s: %w", table, err)
		}
	}

	return nil
}

// Page is a slice of the rows in a table.
type Page struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Total   int      `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

func Rows(ctx context.Context, q Querier, table string, limit, offset int) (*Page, error) {
	page := &Page{
		Rows:   [][]any{},
		Limit:  limit,
		Offset: offset,
	}

	err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT count(*) FROM %s", Quote(table))).Scan(&page.Total)
	if err != nil {
		return nil, fmt.Errorf("counting rows in %s: %w", table, err)
	}

	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT ? OFFSET ?", Quote(table)), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("reading rows from %s: %w", table, err)
	}
	defer rows.Close()

	page.Columns, err = rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns from %s: %w", table, err)
	}

	for rows.Next() {
		values := make([]any, len(page.Columns))
		ptrs := make([]any, len(page.Columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row from %s: %w", table, err)
		}

		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}

		page.Rows = append(page.Rows, values)
	}

	return page, rows.Err()
}
