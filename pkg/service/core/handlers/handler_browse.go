package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/navikt/nada-socrata/pkg/errs"
	"github.com/navikt/nada-socrata/pkg/service"
)

type BrowseHandler struct {
	browseService service.BrowseService
}

func (h *BrowseHandler) ListDatabases(ctx context.Context, _ *http.Request, _ any) ([]*service.DatabaseInfo, error) {
	return h.browseService.ListDatabases(ctx)
}

func (h *BrowseHandler) GetDatabase(ctx context.Context, _ *http.Request, _ any) (*service.DatabaseTables, error) {
	return h.browseService.GetDatabase(ctx, chi.URLParamFromCtx(ctx, "database"))
}

func (h *BrowseHandler) GetTable(ctx context.Context, r *http.Request, _ any) (*service.TablePage, error) {
	const op errs.Op = "BrowseHandler.GetTable"

	size, err := intQuery(r, "_size")
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, op, errs.Parameter("_size"), err)
	}

	offset, err := intQuery(r, "_offset")
	if err != nil {
		return nil, errs.E(errs.InvalidRequest, op, errs.Parameter("_offset"), err)
	}

	return h.browseService.GetTable(ctx, chi.URLParamFromCtx(ctx, "database"), chi.URLParamFromCtx(ctx, "table"), size, offset)
}

func intQuery(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}

	return strconv.Atoi(raw)
}

func NewBrowseHandler(browseService service.BrowseService) *BrowseHandler {
	return &BrowseHandler{
		browseService: browseService,
	}
}
