// Package requestlogger writes one structured log line per served request.
package requestlogger

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/mileusna/useragent"
	"github.com/rs/zerolog"
)

const unknown = "n/a"

// Middleware logs every request except those whose path is listed in
// skipPaths, such as liveness probes and metric scrapes.
func Middleware(logger zerolog.Logger, skipPaths ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(skipPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info().
				Timestamp().
				Str("request_id", requestID(r)).
				Str("request", fmt.Sprintf("%s %s (response_code: %d)", r.Method, r.URL.Path, ww.Status())).
				Str("browser", browser(r.UserAgent())).
				Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0).
				Int("bytes_in", contentLength(r)).
				Int("bytes_out", ww.BytesWritten()).
				Msg("incoming_request")
		})
	}
}

func requestID(r *http.Request) string {
	if id := middleware.GetReqID(r.Context()); id != "" {
		return id
	}

	return unknown
}

func contentLength(r *http.Request) int {
	n, err := strconv.Atoi(r.Header.Get("Content-Length"))
	if err != nil {
		return 0
	}

	return n
}

func browser(raw string) string {
	if raw == "" {
		return unknown
	}

	ua := useragent.Parse(raw)
	switch {
	case ua.Name == "":
		return unknown
	case ua.OS == "":
		return ua.Name
	default:
		return fmt.Sprintf("%s (%s)", ua.Name, ua.OS)
	}
}
