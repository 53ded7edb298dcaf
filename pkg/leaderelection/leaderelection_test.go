package leaderelection_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/navikt/nada-socrata/pkg/leaderelection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElector_IsLeader(t *testing.T) {
	elector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name":"nada-socrata-7d9f-abcde","last_update":"2024-09-01T12:00:00Z"}`))
	}))
	defer elector.Close()

	electorPath := strings.TrimPrefix(elector.URL, "http://")

	testCases := []struct {
		name        string
		electorPath string
		hostname    string
		expect      bool
	}{
		{
			name:     "Without elector",
			hostname: "whatever",
			expect:   true,
		},
		{
			name:        "Leader",
			electorPath: electorPath,
			hostname:    "nada-socrata-7d9f-abcde",
			expect:      true,
		},
		{
			name:        "Follower",
			electorPath: electorPath,
			hostname:    "nada-socrata-7d9f-fghij",
			expect:      false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := leaderelection.New(tc.electorPath, tc.hostname, elector.Client()).IsLeader(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.expect, got)
		})
	}
}

func TestElector_IsLeaderBadResponse(t *testing.T) {
	elector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer elector.Close()

	_, err := leaderelection.New(strings.TrimPrefix(elector.URL, "http://"), "host", elector.Client()).IsLeader(context.Background())
	assert.Error(t, err)
}
