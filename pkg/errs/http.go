package errs

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrResponse is used as the Response Body
type ErrResponse struct {
	Error ServiceError `json:"error"`
}

// ServiceError has fields for Service errors. All fields with no data will
// be omitted
type ServiceError struct {
	StatusCode int    `json:"statusCode"`
	Kind       string `json:"kind,omitempty"`
	Param      string `json:"param,omitempty"`
	Message    string `json:"message,omitempty"`
}

// HTTPStatus maps an error to the status code the transport layer should
// respond with.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch {
	case KindIs(Unauthenticated, e):
		return http.StatusUnauthorized
	case KindIs(Unauthorized, e):
		return http.StatusForbidden
	case KindIs(NotExist, e):
		return http.StatusNotFound
	case KindIs(Exist, e):
		return http.StatusConflict
	case KindIs(InvalidRequest, e), KindIs(Validation, e), KindIs(Invalid, e):
		return http.StatusBadRequest
	case KindIs(Unavailable, e):
		return http.StatusServiceUnavailable
	case KindIs(IO, e):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse takes a writer, logger and error and writes a JSON
// error response, logging the operation stack on the way out.
func HTTPErrorResponse(w http.ResponseWriter, logger zerolog.Logger, err error) {
	if err == nil {
		nilErrorResponse(w, logger)
		return
	}

	var e *Error
	if !errors.As(err, &e) {
		unknownErrorResponse(w, logger, err)
		return
	}

	code := HTTPStatus(e)

	event := logger.Error()
	if code < http.StatusInternalServerError {
		event = logger.Info()
	}

	event.
		Err(err).
		Strs("stack", OpStack(err)).
		Str("kind", e.Kind.String()).
		Str("param", string(e.Param)).
		Str("user", string(e.User)).
		Int("status", code).
		Msg("error response")

	message := Message(e)
	if code >= http.StatusInternalServerError && !KindIs(IO, e) {
		// Don't leak internals to the client
		message = http.StatusText(code)
	}

	writeJSON(w, logger, code, ErrResponse{
		Error: ServiceError{
			StatusCode: code,
			Kind:       e.Kind.String(),
			Param:      string(e.Param),
			Message:    message,
		},
	})
}

func unknownErrorResponse(w http.ResponseWriter, logger zerolog.Logger, err error) {
	logger.Error().Err(err).Msg("unknown error")

	writeJSON(w, logger, http.StatusInternalServerError, ErrResponse{
		Error: ServiceError{
			StatusCode: http.StatusInternalServerError,
			Kind:       Internal.String(),
			Message:    "unexpected error - contact support",
		},
	})
}

func nilErrorResponse(w http.ResponseWriter, logger zerolog.Logger) {
	logger.Error().Msg("nil error - no response body sent")

	w.WriteHeader(http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, logger zerolog.Logger, code int, body ErrResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		logger.Error().Err(err).Msg("encoding error response")
	}
}
