// Package socrata provides a client for the Socrata open data portal APIs.
// - https://dev.socrata.com/docs/endpoints.html
package socrata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

const (
	AppTokenHeader = "X-App-Token"
	UserAgent      = "nada-socrata"

	DefaultScheme = "https"
)

var isValidID = regexp.MustCompile(`^\w{4}-\w{4}$`).MatchString

// DatasetError is returned for problems with a dataset URL or its metadata,
// the message is meant to be shown to the user.
type DatasetError struct {
	Message string
	Err     error
}

func (e *DatasetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}

	return e.Message
}

func (e *DatasetError) Unwrap() error {
	return e.Err
}

var (
	ErrMissingDomain   = &DatasetError{Message: "Missing domain"}
	ErrInvalidID       = &DatasetError{Message: "Last element of path was not a valid ID"}
	ErrDatasetNotFound = &DatasetError{Message: "Dataset not found"}

	// ErrRequestTimeout is the cause when the portal does not answer in time
	ErrRequestTimeout = errors.New("request timed out")
)

type Fetcher interface {
	GetMetadata(ctx context.Context, ds Dataset) (*Metadata, error)
	GetRowCount(ctx context.Context, ds Dataset) (*int, error)
	StreamRows(ctx context.Context, ds Dataset) (*RowReader, error)
}

// Dataset identifies a dataset on a portal, e.g. data.edmonton.ca/24uj-dj8v
type Dataset struct {
	Domain string
	ID     string
}

func (d Dataset) String() string {
	return d.Domain + "/" + d.ID
}

// TableName is the name of the table the dataset is imported into.
func (d Dataset) TableName() string {
	return "socrata_" + strings.ReplaceAll(d.ID, "-", "_")
}

// ParseURL extracts the portal domain and dataset id from a dataset page URL
// like https://data.edmonton.ca/Urban-Planning-Economy/General-Building-Permits/24uj-dj8v
func ParseURL(raw string) (Dataset, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return Dataset{}, ErrMissingDomain
	}

	parts := strings.Split(u.Path, "/")
	id := parts[len(parts)-1]

	if !isValidID(id) {
		return Dataset{}, ErrInvalidID
	}

	return Dataset{
		Domain: u.Host,
		ID:     id,
	}, nil
}

type Column struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	FieldName    string `json:"fieldName"`
	DataTypeName string `json:"dataTypeName"`
	Description  string `json:"description,omitempty"`
}

type Metadata struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Attribution string   `json:"attribution"`
	Category    string   `json:"category"`
	Columns     []Column `json:"columns"`

	// Raw is the metadata document as returned by the portal
	Raw []byte `json:"-"`
}

type Client struct {
	client         *http.Client
	limiter        *rate.Limiter
	scheme         string
	appToken       string
	requestTimeout time.Duration
}


func (c *Client) metadataURL(ds Dataset) string {
	return fmt.Sprintf("%s://%s/api/views/%s.json", c.scheme, ds.Domain, ds.ID)
}

func (c *Client) countURL(ds Dataset) string {
	return fmt.Sprintf("%s://%s/resource/%s.json?$select=count(*)", c.scheme, ds.Domain, ds.ID)
}

func (c *Client) csvURL(ds Dataset) string {
	return fmt.Sprintf("%s://%s/api/views/%s/rows.csv", c.scheme, ds.Domain, ds.ID)
}

func (c *Client) GetMetadata(ctx context.Context, ds Dataset) (*Metadata, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.do(ctx, c.metadataURL(ds), "application/json")
	if err != nil {
		return nil, &DatasetError{Message: "HTTP error fetching metadata for dataset", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, ErrDatasetNotFound
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &DatasetError{Message: "HTTP error fetching metadata for dataset", Err: err}
	}

	meta := &Metadata{}
	err = json.Unmarshal(raw, meta)
	if err != nil {
		return nil, &DatasetError{Message: "Invalid metadata for dataset", Err: err}
	}

	meta.Raw = raw

	return meta, nil
}

// GetRowCount returns nil if the count could not be determined, a missing
// count is not an error.
func (c *Client) GetRowCount(ctx context.Context, ds Dataset) (*int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	res, err := c.do(ctx, c.countURL(ds), "application/json")
	if err != nil {
		return nil, nil
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, nil
	}

	var data []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, nil
	}

	if len(data) != 1 || len(data[0]) != 1 {
		return nil, nil
	}

	for key, value := range data[0] {
		if !strings.HasPrefix(key, "count") {
			return nil, nil
		}

		count, ok := toInt(value)
		if !ok {
			return nil, nil
		}

		return &count, nil
	}

	return nil, nil
}

func toInt(v any) (int, bool) {
	switch v := v.(type) {
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	case float64:
		return int(v), true
	}

	return 0, false
}

// StreamRows applies the request timeout to the wait for the response headers
// only. Exports can take far longer to download, reading the body is bounded
// by ctx.
func (c *Client) StreamRows(ctx context.Context, ds Dataset) (*RowReader, error) {
	ctx, cancel := context.WithCancelCause(ctx)

	var timer *time.Timer
	if c.requestTimeout > 0 {
		timer = time.AfterFunc(c.requestTimeout, func() {
			cancel(ErrRequestTimeout)
		})
	}

	res, err := c.do(ctx, c.csvURL(ds), "text/csv")
	if timer != nil {
		timer.Stop()
	}

	if err != nil {
		if cause := context.Cause(ctx); cause != nil {
			err = cause
		}
		cancel(nil)

		return nil, fmt.Errorf("fetching rows: %w", err)
	}

	body := &cancelOnClose{ReadCloser: res.Body, cancel: cancel}

	if res.StatusCode != http.StatusOK {
		_ = body.Close()
		return nil, fmt.Errorf("fetching rows: unexpected status %s", res.Status)
	}

	r, err := NewRowReader(body)
	if err != nil {
		_ = body.Close()
		return nil, err
	}

	return r, nil
}

// cancelOnClose releases the request context together with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelCauseFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel(nil)

	return err
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeoutCause(ctx, c.requestTimeout, ErrRequestTimeout)
}

func (c *Client) do(ctx context.Context, url, accept string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", UserAgent)

	if c.appToken != "" {
		req.Header.Set(AppTokenHeader, c.appToken)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	return res, nil
}

type Option func(*Client)

func WithScheme(scheme string) Option {
	return func(c *Client) {
		c.scheme = scheme
	}
}

func WithAppToken(token string) Option {
	return func(c *Client) {
		c.appToken = token
	}
}

// WithRequestTimeout bounds metadata and count lookups, and the wait for the
// headers of a CSV export.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// WithRateLimit limits the number of requests per second sent to the portals,
// a zero limit disables rate limiting.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}

		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

func New(client *http.Client, opts ...Option) *Client {
	c := &Client{
		client: client,
		scheme: DefaultScheme,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}
