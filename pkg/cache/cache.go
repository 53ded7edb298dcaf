// Package cache stores serialized responses from upstream APIs in the
// http_cache table of the control plane database.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

type Cacher interface {
	// Get returns true if we get a hit in the cache and are able to
	// deserialize into the provided value
	Get(ctx context.Context, key string, into any) bool

	// Set will serialize the provided data and store it in our cache
	Set(ctx context.Context, key string, val any)

	Stats() Statistics
}

type Result struct {
	CachedResponse []byte
	LastCached     time.Time
	LastTried      time.Time
}

type Statistics struct {
	TotalRequests int
	TotalHits     int
	TotalMisses   int
}

type Client struct {
	expiresAfter time.Duration
	db           *sql.DB
	log          zerolog.Logger

	requests atomic.Int32
	hits     atomic.Int32
}

func (c *Client) Get(ctx context.Context, key string, into any) bool {
	c.requests.Add(1)

	res := &Result{}

	err := c.db.QueryRowContext(ctx, `SELECT response_body, created_at, last_tried_update_at FROM http_cache WHERE endpoint = $1`, key).
		Scan(&res.CachedResponse, &res.LastCached, &res.LastTried)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.log.Debug().Str("key", key).Msg("cache miss")
			return false
		}

		c.log.Info().Err(err).Str("key", key).Msg("fetching cached value")
		return false
	}

	if time.Since(res.LastCached) > c.expiresAfter {
		c.log.Debug().Str("key", key).Msg("cache expired")
		return false
	}

	err = json.Unmarshal(res.CachedResponse, into)
	if err != nil {
		c.log.Info().Err(err).Str("key", key).Msg("deserializing cached value")
		return false
	}

	c.hits.Add(1)

	return true
}

func (c *Client) Set(ctx context.Context, key string, val any) {
	data, err := json.Marshal(val)
	if err != nil {
		c.log.Info().Err(err).Str("key", key).Msg("serializing value for cache")
		return
	}

	_, err = c.db.ExecContext(ctx, `INSERT INTO http_cache (endpoint, response_body, created_at, last_tried_update_at)
		VALUES ($1, $2, $3, $3) ON CONFLICT (endpoint) DO UPDATE SET response_body = $2, created_at = $3, last_tried_update_at = $3`, key, data, time.Now().UTC())
	if err != nil {
		c.log.Info().Err(err).Str("key", key).Msg("updating cache")
	}
}

func (c *Client) Stats() Statistics {
	requests := c.requests.Load()
	hits := c.hits.Load()

	return Statistics{
		TotalRequests: int(requests),
		TotalHits:     int(hits),
		TotalMisses:   int(requests - hits),
	}
}

func New(expiresAfter time.Duration, db *sql.DB, log zerolog.Logger) *Client {
	return &Client{
		expiresAfter: expiresAfter,
		db:           db,
		log:          log,
	}
}
