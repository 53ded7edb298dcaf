package socrata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Row is a single CSV record keyed by the column headers.
type Row map[string]string

// RowReader reads rows from a CSV export, the first record is the header.
type RowReader struct {
	body    io.ReadCloser
	reader  *csv.Reader
	columns []string
	rows    int
}

func NewRowReader(body io.ReadCloser) (*RowReader, error) {
	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reading header: empty csv export")
		}

		return nil, fmt.Errorf("reading header: %w", err)
	}

	return &RowReader{
		body:    body,
		reader:  reader,
		columns: uniqueColumns(header),
	}, nil
}

// uniqueColumns renames repeated headers to name_2, name_3 and so on. SQLite
// compares column names case-insensitively, so that is how they are compared
// here too. The first occurrence of a name keeps it.
func uniqueColumns(header []string) []string {
	columns := make([]string, len(header))
	used := map[string]bool{}
	renamed := []int{}

	for i, h := range header {
		key := strings.ToLower(h)
		if used[key] {
			renamed = append(renamed, i)
			continue
		}

		used[key] = true
		columns[i] = h
	}

	for _, i := range renamed {
		for n := 2; ; n++ {
			name := fmt.Sprintf("%s_%d", header[i], n)
			key := strings.ToLower(name)
			if !used[key] {
				used[key] = true
				columns[i] = name
				break
			}
		}
	}

	return columns
}

// Columns returns the header of the export, in order.
func (r *RowReader) Columns() []string {
	return r.columns
}

// Next returns the next row, or io.EOF when there are no more rows. Blank
// lines are skipped, missing trailing fields are empty.
func (r *RowReader) Next() (Row, error) {
	record, err := r.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, fmt.Errorf("reading row %d: %w", r.rows+1, err)
	}

	r.rows++

	row := make(Row, len(r.columns))
	for i, column := range r.columns {
		if i < len(record) {
			row[column] = record[i]
			continue
		}

		row[column] = ""
	}

	return row, nil
}

func (r *RowReader) Close() error {
	return r.body.Close()
}
