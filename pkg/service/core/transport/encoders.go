package transport

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
)

// Redirect sends a 302 to newURL without a body.
type Redirect struct {
	newURL string
	r      *http.Request
}

func (r *Redirect) Encode(w http.ResponseWriter) error {
	// A present but empty Content-Type stops http.Redirect from writing a body.
	w.Header().Set("Content-Type", "")
	http.Redirect(w, r.r, r.newURL, http.StatusFound)

	return nil
}

func NewRedirect(newURL string, r *http.Request) *Redirect {
	return &Redirect{
		newURL: newURL,
		r:      r,
	}
}

// HTML renders a named template, the page is rendered to a buffer first so a
// template error still results in a proper error response.
type HTML struct {
	tmpl   *template.Template
	name   string
	data   any
	status int
}

func (h *HTML) Encode(w http.ResponseWriter) error {
	var buf bytes.Buffer

	err := h.tmpl.ExecuteTemplate(&buf, h.name, h.data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(h.status)

	_, err = buf.WriteTo(w)

	return err
}

func (h *HTML) WithStatus(code int) *HTML {
	h.status = code
	return h
}

func NewHTML(tmpl *template.Template, name string, data any) *HTML {
	return &HTML{
		tmpl:   tmpl,
		name:   name,
		data:   data,
		status: http.StatusOK,
	}
}

// Empty answers with 204 and no body.
type Empty struct{}

func (e *Empty) StatusCode() int {
	return http.StatusNoContent
}

// Created answers with 201 and Data as the JSON body.
type Created struct {
	Data any
}

func (c *Created) StatusCode() int {
	return http.StatusCreated
}

func (c *Created) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Data)
}
