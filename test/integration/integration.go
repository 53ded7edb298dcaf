package integration

import (
	"bytes"
	"database/sql"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	_ "github.com/lib/pq"
	"github.com/navikt/nada-socrata/pkg/auth"
	"github.com/navikt/nada-socrata/pkg/config/v2"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/service/core/routes"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"
)

const (
	postgresRepository = "postgres"
	postgresTag        = "14"
	postgresPort       = "5432/tcp"
	postgresMaxWait    = 2 * time.Minute
)

type containers struct {
	t         *testing.T
	log       zerolog.Logger
	pool      *dockertest.Pool
	network   *dockertest.Network
	resources []*dockertest.Resource
}

// Cleanup purges every container started by the test and removes the network.
func (c *containers) Cleanup() {
	for _, r := range c.resources {
		if err := c.pool.Purge(r); err != nil {
			c.log.Warn().Err(err).Msg("purging resources")
		}
	}

	err := c.network.Close()
	if err != nil {
		c.log.Warn().Err(err).Msg("closing network")
	}
}

// NewPostgresConfig is the control plane configuration used by the tests,
// Host and Port are set once the container runs.
func NewPostgresConfig() config.Postgres {
	return config.Postgres{
		UserName:     "nada-socrata",
		Password:     "supersecret",
		DatabaseName: "nada",
		SSLMode:      "disable",
		Configuration: config.PostgresConfiguration{
			MaxIdleConnections: 10,
			MaxOpenConnections: 10,
		},
	}
}

func (c *containers) RunPostgres(cfg config.Postgres) config.Postgres {
	c.t.Helper()

	resource, err := c.pool.RunWithOptions(&dockertest.RunOptions{
		Repository: postgresRepository,
		Tag:        postgresTag,
		Env: []string{
			"POSTGRES_PASSWORD=" + cfg.Password,
			"POSTGRES_USER=" + cfg.UserName,
			"POSTGRES_DB=" + cfg.DatabaseName,
		},
		NetworkID: c.network.Network.ID,
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	if err != nil {
		c.t.Fatalf("starting postgres container: %s", err)
	}

	c.resources = append(c.resources, resource)

	cfg.Host, cfg.Port, err = net.SplitHostPort(resource.GetHostPort(postgresPort))
	if err != nil {
		c.t.Fatalf("parsing postgres host port: %s", err)
	}

	c.log.Info().Str("host", cfg.Host).Str("port", cfg.Port).Msg("postgres container started")

	c.pool.MaxWait = postgresMaxWait

	err = c.pool.Retry(func() error {
		db, err := sql.Open("postgres", cfg.ConnectionString())
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Ping()
	})
	if err != nil {
		c.t.Fatalf("could not connect to postgres: %s", err)
	}

	return cfg
}

func NewContainers(t *testing.T, log zerolog.Logger) *containers {
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("connecting to Docker: %s", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Fatalf("pinging Docker: %s", err)
	}

	network, err := pool.CreateNetwork(fmt.Sprintf("nada-socrata-integration-%d", rand.Intn(100000)))
	if err != nil {
		t.Fatalf("creating network: %s", err)
	}

	return &containers{
		t:       t,
		log:     log,
		pool:    pool,
		network: network,
	}
}

func Marshal(t *testing.T, v any) []byte {
	t.Helper()

	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling: %s", err)
	}

	return b
}

func Unmarshal(t *testing.T, r io.Reader, v any) {
	t.Helper()

	err := json.NewDecoder(r).Decode(v)
	if err != nil {
		t.Fatalf("unmarshaling: %s", err)
	}
}

type TestRunner interface {
	Get(path string, params ...string) TestRunnerStatus
	Post(input any, path string) TestRunnerStatus
	PostForm(values url.Values, path string) TestRunnerStatus
	Delete(input any, path string) TestRunnerStatus
}

type TestRunnerStatus interface {
	HasStatusCode(code int) TestRunnerEnder
}

type TestRunnerEnder interface {
	Value(into any)
	Expect(expect, into any, opts ...cmp.Option)
	Text() string
	Header(key string) string
}

type testRunner struct {
	t *testing.T
	s *httptest.Server

	response *http.Response
}

func (r *testRunner) HasStatusCode(code int) TestRunnerEnder {
	r.t.Helper()

	if r.response.StatusCode != code {
		r.t.Errorf("%s %s: expected status code %d, got %d", r.response.Request.Method, r.response.Request.URL.Path, code, r.response.StatusCode)
	}

	return r
}

func (r *testRunner) Expect(expect, into any, opts ...cmp.Option) {
	r.t.Helper()

	Unmarshal(r.t, r.response.Body, into)

	diff := cmp.Diff(expect, into, opts...)
	if diff != "" {
		r.t.Errorf("unexpected response: %s", diff)
	}
}

func (r *testRunner) Value(into any) {
	r.t.Helper()

	Unmarshal(r.t, r.response.Body, into)
}

func (r *testRunner) Text() string {
	r.t.Helper()

	d, err := io.ReadAll(r.response.Body)
	if err != nil {
		r.t.Fatalf("reading: %s", err)
	}

	return string(d)
}

func (r *testRunner) Header(key string) string {
	return r.response.Header.Get(key)
}

// buildURL takes query parameters as key, value pairs.
func (r *testRunner) buildURL(path string, params ...string) string {
	r.t.Helper()

	if len(params)%2 != 0 {
		r.t.Fatalf("invalid number of query parameters")
	}

	query := url.Values{}
	for i := 0; i < len(params); i += 2 {
		query.Add(params[i], params[i+1])
	}

	if len(query) == 0 {
		return r.s.URL + path
	}

	return r.s.URL + path + "?" + query.Encode()
}

func (r *testRunner) Get(path string, params ...string) TestRunnerStatus {
	r.t.Helper()

	r.response = SendRequest(r.t, http.MethodGet, r.buildURL(path, params...), "", nil)

	return r
}

func (r *testRunner) Post(input any, path string) TestRunnerStatus {
	r.t.Helper()

	r.response = SendRequest(r.t, http.MethodPost, r.buildURL(path), "application/json", bytes.NewReader(Marshal(r.t, input)))

	return r
}

func (r *testRunner) PostForm(values url.Values, path string) TestRunnerStatus {
	r.t.Helper()

	r.response = SendRequest(r.t, http.MethodPost, r.buildURL(path), "application/x-www-form-urlencoded", strings.NewReader(values.Encode()))

	return r
}

func (r *testRunner) Delete(input any, path string) TestRunnerStatus {
	r.t.Helper()

	r.response = SendRequest(r.t, http.MethodDelete, r.buildURL(path), "application/json", bytes.NewReader(Marshal(r.t, input)))

	return r
}

func NewTester(t *testing.T, s *httptest.Server) *testRunner {
	return &testRunner{
		t: t,
		s: s,
	}
}

// noRedirectClient hands redirects back to the test instead of following them.
var noRedirectClient = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

func SendRequest(t *testing.T, method, url, contentType string, body io.Reader) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("creating request: %s", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := noRedirectClient.Do(req)
	if err != nil {
		t.Fatalf("sending request: %s", err)
	}

	t.Cleanup(func() {
		_ = resp.Body.Close()
	})

	return resp
}

func injectActor(actor *service.Actor) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler.ServeHTTP(w, r.WithContext(auth.SetActor(r.Context(), actor)))
		})
	}
}

func TestRouter(log zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.NotFound(routes.NotFound(log))

	return r
}
