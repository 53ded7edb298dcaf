package routes

import (
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/docker/cli/cli/command/formatter/tabwriter"
	"github.com/go-chi/chi"
	"github.com/go-chi/cors"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/rs/zerolog"
)

type AddRoutesFn func(router chi.Router)

// Add registers the routes in order, so the browse routes with their
// top level wildcards must come last.
func Add(r chi.Router, routes ...AddRoutesFn) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	for _, route := range routes {
		route(r)
	}
}

// NotFound answers unknown routes with the same JSON body as other errors.
func NotFound(log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		errs.HTTPErrorResponse(w, log, errs.E(errs.NotExist, errs.Op("routes.NotFound"), errs.Parameter("path"), fmt.Errorf("no route for %s %s", r.Method, r.URL.Path)))
	}
}

type route struct {
	method      string
	pattern     string
	middlewares int
}

// Print writes the route table sorted by pattern and method.
func Print(r chi.Router, out io.Writer) error {
	var all []route

	err := chi.Walk(r, func(method, pattern string, _ http.Handler, middlewares ...func(http.Handler) http.Handler) error {
		all = append(all, route{method: method, pattern: pattern, middlewares: len(middlewares)})

		return nil
	})
	if err != nil {
		return fmt.Errorf("walking routes: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].pattern != all[j].pattern {
			return all[i].pattern < all[j].pattern
		}

		return all[i].method < all[j].method
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "Method\tRoute\tMiddlewares")

	for _, rt := range all {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", rt.method, rt.pattern, rt.middlewares)
	}

	return w.Flush()
}
