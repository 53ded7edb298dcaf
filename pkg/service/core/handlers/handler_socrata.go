package handlers

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/navikt/nada-socrata/pkg/auth"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
	"github.com/navikt/nada-socrata/pkg/service/core/transport"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html
var templatesFS embed.FS

const importFormTemplate = "import_socrata"

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"rowCount": formatRowCount,
}).ParseFS(templatesFS, "templates/*.html"))

// formatRowCount groups the digits in thousands, 1234567 -> 1,234,567.
func formatRowCount(count *int) string {
	if count == nil {
		return ""
	}

	digits := strconv.Itoa(*count)

	sign := ""
	if digits[0] == '-' {
		sign, digits = "-", digits[1:]
	}

	out := make([]byte, 0, len(digits)+len(digits)/3)
	for i := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}

		out = append(out, digits[i])
	}

	return sign + string(out)
}

// Enqueuer hands started imports to the background importer.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *service.ImportJob) error
}

type ImportFormRequest struct {
	URL      string `form:"url"`
	Database string `form:"database"`
}

type SocrataHandler struct {
	socrataService service.SocrataService
	importer       Enqueuer
	redirectDelay  time.Duration
	log            zerolog.Logger
}

func (h *SocrataHandler) ImportForm(ctx context.Context, r *http.Request, _ any) (*transport.HTML, error) {
	form, err := h.socrataService.Form(ctx, auth.GetActor(ctx), r.URL.Query().Get("url"))
	if err != nil {
		return nil, err
	}

	return transport.NewHTML(templates, importFormTemplate, form), nil
}

// StartImport re-renders the form when the import could not be started,
// otherwise it redirects to the new table once it exists.
func (h *SocrataHandler) StartImport(ctx context.Context, r *http.Request, in ImportFormRequest) (transport.Encoder, error) {
	const op errs.Op = "SocrataHandler.StartImport"

	actor := auth.GetActor(ctx)

	started, err := h.socrataService.StartImport(ctx, actor, &service.ImportRequest{
		URL:      in.URL,
		Database: in.Database,
	})
	if err != nil {
		if errs.KindIs(errs.Unauthorized, err) || errs.KindIs(errs.Unauthenticated, err) {
			return nil, err
		}

		h.log.Info().Err(err).Str("url", in.URL).Msg("starting import")

		return h.renderFormError(ctx, actor, in, err)
	}

	err = h.importer.Enqueue(ctx, started.Job)
	if err != nil {
		return nil, errs.E(errs.Unavailable, op, err)
	}

	_, err = h.socrataService.WaitForTable(ctx, started.Database, started.Table, h.redirectDelay)
	if err != nil {
		h.log.Warn().Err(err).Str("table", started.Table).Msg("waiting for table")
	}

	return transport.NewRedirect(started.RedirectPath, r), nil
}

func (h *SocrataHandler) renderFormError(ctx context.Context, actor *service.Actor, in ImportFormRequest, cause error) (transport.Encoder, error) {
	form, err := h.socrataService.Form(ctx, actor, "")
	if err != nil {
		return nil, err
	}

	form.URL = in.URL
	form.Error = errs.Message(cause)

	if in.Database != "" {
		form.Selected = in.Database
	}

	return transport.NewHTML(templates, importFormTemplate, form).WithStatus(errs.HTTPStatus(cause)), nil
}

func (h *SocrataHandler) Preview(ctx context.Context, r *http.Request, _ any) (*service.SocrataPreview, error) {
	return h.socrataService.Preview(ctx, auth.GetActor(ctx), r.URL.Query().Get("url"))
}

func (h *SocrataHandler) ListImports(ctx context.Context, r *http.Request, _ any) ([]*service.SocrataImport, error) {
	return h.socrataService.ListImports(ctx, auth.GetActor(ctx), r.URL.Query().Get("database"))
}

func (h *SocrataHandler) GetImport(ctx context.Context, r *http.Request, _ any) (*service.SocrataImport, error) {
	return h.socrataService.GetImport(ctx, auth.GetActor(ctx), r.URL.Query().Get("database"), chi.URLParamFromCtx(ctx, "id"))
}

func (h *SocrataHandler) ImportHistory(ctx context.Context, r *http.Request, _ any) ([]*service.ImportAudit, error) {
	return h.socrataService.ImportHistory(ctx, auth.GetActor(ctx), r.URL.Query().Get("database"))
}

func NewSocrataHandler(socrataService service.SocrataService, importer Enqueuer, redirectDelay time.Duration, log zerolog.Logger) *SocrataHandler {
	return &SocrataHandler{
		socrataService: socrataService,
		importer:       importer,
		redirectDelay:  redirectDelay,
		log:            log,
	}
}
