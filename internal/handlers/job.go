package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"recorte/internal/jobs"
	"recorte/web/components"

	"github.com/labstack/echo/v4"
)

// JobHandler はジョブ一覧APIのハンドラー
type JobHandler struct {
	svc *jobs.Service
}

// NewJobHandler は新しいJobHandlerを作成
func NewJobHandler(svc *jobs.Service) *JobHandler {
	return &JobHandler{svc: svc}
}

// List はジョブ一覧を取得
func (h *JobHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	status := c.QueryParam("status")

	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	list, err := h.svc.List(ctx, status, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Erro: err.Error()})
	}

	return c.JSON(http.StatusOK, list)
}

// Stats はジョブ統計を取得
func (h *JobHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	counts, err := h.svc.Stats(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Erro: err.Error()})
	}

	stats := make(map[string]int)
	for _, row := range counts {
		stats[row.Status] = row.Count
	}

	return c.JSON(http.StatusOK, stats)
}

// Get はジョブの記録を取得
func (h *JobHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	job, err := h.svc.Job(ctx, c.Param("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Erro: "Processo não encontrado"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Erro: err.Error()})
	}

	return c.JSON(http.StatusOK, job)
}

// ListPage はジョブ一覧ページを表示
func (h *JobHandler) ListPage(c echo.Context) error {
	ctx := c.Request().Context()
	list, err := h.svc.List(ctx, "", 50)
	if err != nil {
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return render(c, components.JobList(list))
}
