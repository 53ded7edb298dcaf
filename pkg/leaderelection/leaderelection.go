// Package leaderelection asks the elector sidecar which pod is the leader.
package leaderelection

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
)

const (
	ElectorPathEnv = "ELECTOR_PATH"

	defaultRetries = 3
)

type Elector struct {
	electorPath string
	hostname    string
	client      *http.Client
	retries     int
	backoff     time.Duration
}

// IsLeader reports whether this pod is the leader, without an elector
// every instance is.
func (e *Elector) IsLeader(ctx context.Context) (bool, error) {
	if e.electorPath == "" {
		// local development
		return true, nil
	}

	leader, err := e.getLeader(ctx)
	if err != nil {
		return false, err
	}

	return e.hostname == leader, nil
}

func (e *Elector) getLeader(ctx context.Context) (string, error) {
	resp, err := e.electorRequestWithRetry(ctx)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("elector responded with status %d", resp.StatusCode)
	}

	var electorResponse struct {
		Name string `json:"name"`
	}

	err = json.NewDecoder(resp.Body).Decode(&electorResponse)
	if err != nil {
		return "", fmt.Errorf("decoding elector response: %w", err)
	}

	return electorResponse.Name, nil
}

func (e *Elector) electorRequestWithRetry(ctx context.Context) (*http.Response, error) {
	for i := 1; i <= e.retries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+e.electorPath, nil)
		if err != nil {
			return nil, err
		}

		resp, err := e.client.Do(req)
		if err == nil {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.backoff * time.Duration(i)):
		}
	}

	return nil, fmt.Errorf("no response from elector container after %v retries", e.retries)
}

func New(electorPath, hostname string, client *http.Client) *Elector {
	return &Elector{
		electorPath: electorPath,
		hostname:    hostname,
		client:      client,
		retries:     defaultRetries,
		backoff:     time.Second,
	}
}

// NewFromEnv uses the elector configured for the pod, if any.
func NewFromEnv() (*Elector, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("getting hostname: %w", err)
	}

	return New(os.Getenv(ElectorPathEnv), hostname, &http.Client{Timeout: 5 * time.Second}), nil
}
