// Package transport adapts typed handler functions to http.HandlerFunc.
//
// A handler receives the decoded request value and returns a response
// value. The response is written as JSON unless it implements Encoder, and
// the status code can be overridden by implementing StatusCoder. Errors are
// translated by errs.HTTPErrorResponse.
package transport

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/rs/zerolog"
)

type StatusCoder interface {
	StatusCode() int
}

type Encoder interface {
	Encode(w http.ResponseWriter) error
}

// DecoderFunc turns the incoming request into the handler input.
type DecoderFunc[In any] func(r *http.Request) (In, error)

// TargetFunc handles a decoded request. The raw request is passed along for
// handlers that need query parameters or headers.
type TargetFunc[In any, Out any] func(context.Context, *http.Request, In) (Out, error)

type Transport[In any, Out any] struct {
	decoderFn DecoderFunc[In]
	targetFn  TargetFunc[In, Out]
}

func For[In any, Out any](target TargetFunc[In, Out]) *Transport[In, Out] {
	return &Transport[In, Out]{
		targetFn: target,
	}
}

// RequestFromJSON decodes the request body as JSON.
func (t *Transport[In, Out]) RequestFromJSON() *Transport[In, Out] {
	t.decoderFn = func(r *http.Request) (In, error) {
		var in In

		return in, json.NewDecoder(r.Body).Decode(&in)
	}

	return t
}

// RequestFromForm decodes url encoded form values into the fields tagged
// with `form`, only the first value of each field is used.
func (t *Transport[In, Out]) RequestFromForm() *Transport[In, Out] {
	t.decoderFn = func(r *http.Request) (In, error) {
		var in In

		if err := r.ParseForm(); err != nil {
			return in, err
		}

		values := make(map[string]any, len(r.PostForm))
		for key := range r.PostForm {
			values[key] = r.PostForm.Get(key)
		}

		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "form",
			WeaklyTypedInput: true,
			Result:           &in,
		})
		if err != nil {
			return in, err
		}

		return in, decoder.Decode(values)
	}

	return t
}

func (t *Transport[In, Out]) decode(r *http.Request) (In, error) {
	var in In

	if t.decoderFn == nil {
		return in, nil
	}

	in, err := t.decoderFn(r)
	if err != nil {
		return in, errs.E(errs.InvalidRequest, errs.Op("transport.decode"), err)
	}

	return in, nil
}

func (t *Transport[In, Out]) Build(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in, err := t.decode(r)
		if err != nil {
			errs.HTTPErrorResponse(w, logger, err)
			return
		}

		out, err := t.targetFn(r.Context(), r, in)
		if err != nil {
			errs.HTTPErrorResponse(w, logger, err)
			return
		}

		err = respond(w, out)
		if err != nil {
			errs.HTTPErrorResponse(w, logger, errs.E(errs.Internal, errs.Op("transport.respond"), err))
		}
	}
}

func respond(w http.ResponseWriter, out any) error {
	if enc, ok := out.(Encoder); ok {
		return enc.Encode(w)
	}

	code := http.StatusOK
	if sc, ok := out.(StatusCoder); ok {
		code = sc.StatusCode()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	if code == http.StatusNoContent {
		return nil
	}

	return json.NewEncoder(w).Encode(out)
}
