package integration

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/navikt/nada-socrata/pkg/sqlitedb"
)

const (
	PermitsID   = "24uj-dj8v"
	PermitsName = "General Building Permits"
	PermitsCSV  = "permit,value,ward\n1,10.5,north\n2,,south\n3,7,\n"

	DatabaseData = "data"

	ActorAlice = "alice@example.com"
	ActorBob   = "bob@example.com"
)

type PortalDataset struct {
	Metadata string
	CSV      string
	Count    int
}

// SocrataPortal serves the parts of the Socrata API the importer uses.
type SocrataPortal struct {
	*httptest.Server

	datasets map[string]*PortalDataset

	MetadataRequests atomic.Int32
	RowRequests      atomic.Int32
}

func (p *SocrataPortal) DatasetURL(id string) string {
	return p.URL + "/Urban-Planning-Economy/General-Building-Permits/" + id
}

func (p *SocrataPortal) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, "/api/views/") && strings.HasSuffix(path, "/rows.csv"):
		p.RowRequests.Add(1)

		ds, ok := p.datasets[strings.TrimSuffix(strings.TrimPrefix(path, "/api/views/"), "/rows.csv")]
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(ds.CSV))
	case strings.HasPrefix(path, "/api/views/") && strings.HasSuffix(path, ".json"):
		p.MetadataRequests.Add(1)

		ds, ok := p.datasets[strings.TrimSuffix(strings.TrimPrefix(path, "/api/views/"), ".json")]
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ds.Metadata))
	case strings.HasPrefix(path, "/resource/") && strings.HasSuffix(path, ".json"):
		ds, ok := p.datasets[strings.TrimSuffix(strings.TrimPrefix(path, "/resource/"), ".json")]
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"count":"` + strconv.Itoa(ds.Count) + `"}]`))
	default:
		http.NotFound(w, r)
	}
}

func NewSocrataPortal(t *testing.T, datasets map[string]*PortalDataset) *SocrataPortal {
	t.Helper()

	p := &SocrataPortal{
		datasets: datasets,
	}
	p.Server = httptest.NewServer(p)
	t.Cleanup(p.Close)

	return p
}

func PermitsPortal(t *testing.T) *SocrataPortal {
	t.Helper()

	return NewSocrataPortal(t, map[string]*PortalDataset{
		PermitsID: {
			Metadata: `{"id":"24uj-dj8v","name":"General Building Permits","description":"Permits issued in Edmonton","columns":[{"id":1,"name":"Permit","fieldName":"permit","dataTypeName":"number"}]}`,
			CSV:      PermitsCSV,
			Count:    3,
		},
	})
}

// NewSQLiteDatabases opens one mutable database per name in a temporary
// directory.
func NewSQLiteDatabases(t *testing.T, names ...string) *sqlitedb.Registry {
	t.Helper()

	dir := t.TempDir()
	dbs := sqlitedb.NewRegistry()

	for _, name := range names {
		db, err := sqlitedb.Open(name, filepath.Join(dir, name+".db"), false)
		if err != nil {
			t.Fatalf("opening sqlite database %s: %s", name, err)
		}

		err = dbs.Add(db)
		if err != nil {
			t.Fatalf("registering sqlite database %s: %s", name, err)
		}
	}

	t.Cleanup(func() {
		_ = dbs.Close()
	})

	return dbs
}
