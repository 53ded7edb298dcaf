package errs_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestE(t *testing.T) {
	const inner errs.Op = "storage.Get"
	const outer errs.Op = "service.Get"

	err := errs.E(outer, errs.E(errs.NotExist, inner, errs.Parameter("id"), fmt.Errorf("no rows")))

	assert.True(t, errs.KindIs(errs.NotExist, err))
	assert.False(t, errs.KindIs(errs.Database, err))
	assert.Equal(t, []string{"service.Get", "storage.Get"}, errs.OpStack(err))
	assert.Equal(t, "no rows", errs.Message(err))

	e, ok := err.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, errs.Parameter("id"), e.Param)
	assert.True(t, errs.Match(errs.E(errs.NotExist, outer), err))
}

func TestEBadArgument(t *testing.T) {
	err := errs.E(errs.Internal, 42)
	assert.Contains(t, err.Error(), "unknown type int")
}

func TestHTTPErrorResponse(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "invalid request",
			err:     errs.E(errs.InvalidRequest, errs.Op("test"), errs.Parameter("url"), errs.Str("Missing domain")),
			status:  http.StatusBadRequest,
			message: "Missing domain",
		},
		{
			name:    "unauthorized",
			err:     errs.E(errs.Unauthorized, errs.Op("test"), errs.Str("permission denied")),
			status:  http.StatusForbidden,
			message: "permission denied",
		},
		{
			name:    "internal hides message",
			err:     errs.E(errs.Database, errs.Op("test"), errs.Str("connection refused")),
			status:  http.StatusInternalServerError,
			message: http.StatusText(http.StatusInternalServerError),
		},
		{
			name:    "unavailable",
			err:     errs.E(errs.Unavailable, errs.Op("test"), errs.Str("Disk space is low")),
			status:  http.StatusServiceUnavailable,
			message: http.StatusText(http.StatusServiceUnavailable),
		},
		{
			name:    "unknown error",
			err:     fmt.Errorf("oops"),
			status:  http.StatusInternalServerError,
			message: "unexpected error - contact support",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer

			rr := httptest.NewRecorder()
			errs.HTTPErrorResponse(rr, zerolog.New(&buf), tc.err)

			assert.Equal(t, tc.status, rr.Code)

			got := errs.ErrResponse{}
			err := json.Unmarshal(rr.Body.Bytes(), &got)
			require.NoError(t, err)
			assert.Equal(t, tc.status, got.Error.StatusCode)
			assert.Equal(t, tc.message, got.Error.Message)
			assert.NotEmpty(t, buf.String())
		})
	}
}
