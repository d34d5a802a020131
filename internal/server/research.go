package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
	"github.com/mohammad-safakhou/researcher/internal/store"
	"github.com/mohammad-safakhou/researcher/models"
)

const maxPageSize = 100

// ResearchHandler runs research and serves the brief archive.
type ResearchHandler struct {
	Runner     Runner
	Runs       RunReader
	Index      Searcher
	Logger     logrus.FieldLogger
	RunTimeout time.Duration
}

func (h *ResearchHandler) Register(g *echo.Group, cfg config.ServerConfig) {
	run := []echo.MiddlewareFunc{}
	read := []echo.MiddlewareFunc{}
	if cfg.AuthEnabled() {
		authMW := runtime.EchoAuthMiddleware([]byte(cfg.JWTSecret))
		run = append(run, authMW, runtime.RequireScopes(runtime.ScopeRun))
		read = append(read, authMW, runtime.RequireScopes(runtime.ScopeRead))
	}
	g.POST("", h.create, run...)
	g.GET("", h.list, read...)
	g.GET("/search", h.search, read...)
	g.GET("/:id", h.get, read...)
}

// Create
//
//	@Summary		Run research
//	@Description	Runs the research workflow synchronously and returns the brief
//	@Tags			research
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		ResearchRequest	true	"Research query"
//	@Success		200		{object}	ResearchResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		502		{object}	HTTPError
//	@Router			/api/research [post]
func (h *ResearchHandler) create(c echo.Context) error {
	if h.Runner == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "research runner not configured")
	}
	var req ResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	if h.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.RunTimeout)
		defer cancel()
	}
	trigger := "api"
	if client, ok := runtime.SubjectFromContext(ctx); ok {
		trigger = "api:" + client
	}

	state, run, err := h.Runner.Run(ctx, req.Query, trigger)
	if err != nil {
		return researchError(err)
	}
	return c.JSON(http.StatusOK, ResearchResponse{Run: run, Messages: state.Messages})
}

func researchError(err error) error {
	var stageErr *research.StageError
	switch {
	case errors.Is(err, research.ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &stageErr):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// List
//
//	@Summary		List runs
//	@Tags			research
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Offset"
//	@Success		200		{object}	RunListResponse
//	@Router			/api/research [get]
func (h *ResearchHandler) list(c echo.Context) error {
	if h.Runs == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run archive not configured")
	}
	limit := queryInt(c, "limit", 20)
	if limit <= 0 || limit > maxPageSize {
		limit = 20
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	runs, err := h.Runs.ListRuns(c.Request().Context(), limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if runs == nil {
		runs = []models.Run{}
	}
	return c.JSON(http.StatusOK, RunListResponse{Runs: runs, Limit: limit, Offset: offset})
}

// Get
//
//	@Summary		Get run
//	@Tags			research
//	@Produce		json
//	@Param			id	path		string	true	"Run ID"
//	@Success		200	{object}	models.Run
//	@Failure		404	{object}	HTTPError
//	@Router			/api/research/{id} [get]
func (h *ResearchHandler) get(c echo.Context) error {
	if h.Runs == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run archive not configured")
	}
	run, err := h.Runs.GetRun(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrRunNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

// Search
//
//	@Summary		Search briefs
//	@Tags			research
//	@Produce		json
//	@Param			q		query		string	true	"Query string"
//	@Param			limit	query		int		false	"Max hits"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	HTTPError
//	@Router			/api/research/search [get]
func (h *ResearchHandler) search(c echo.Context) error {
	if h.Index == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "search index not configured")
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	hits, err := h.Index.Search(q, queryInt(c, "limit", 10))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out := SearchResponse{Query: q, Hits: make([]SearchHit, 0, len(hits))}
	for _, hit := range hits {
		item := SearchHit{ID: hit.ID, Score: hit.Score}
		if h.Runs != nil {
			if run, err := h.Runs.GetRun(c.Request().Context(), hit.ID); err == nil {
				item.Query = run.Query
				item.FinalSummary = run.FinalSummary
			} else if !errors.Is(err, store.ErrRunNotFound) {
				h.Logger.WithError(err).WithField("run_id", hit.ID).Warn("hydrate search hit")
			}
		}
		out.Hits = append(out.Hits, item)
	}
	return c.JSON(http.StatusOK, out)
}

func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
