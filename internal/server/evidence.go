package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/newser-evidence/internal/pipeline"
	"github.com/mohammad-safakhou/newser-evidence/internal/rerank"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/models"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search"
	searchmodels "github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

const maxHarvestURLs = 50

type Searcher interface {
	SearchAll(ctx context.Context, req searchmodels.Request) ([]searchmodels.Hit, error)
}

type Harvester interface {
	HarvestAll(ctx context.Context, hits []searchmodels.Hit) []models.Evidence
}

type Gatherer interface {
	Gather(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// EvidenceHandler exposes each pipeline stage on its own plus the full
// gather flow.
type EvidenceHandler struct {
	Search  Searcher
	Harvest Harvester
	Gather  Gatherer
	Rerank  rerank.Options
}

func (h *EvidenceHandler) Register(g *echo.Group) {
	g.POST("/search", h.search)
	g.POST("/harvest", h.harvest)
	g.POST("/rerank", h.rerank)
	g.POST("/gather", h.gather)
}

type searchResponse struct {
	Hits []searchmodels.Hit `json:"hits"`
}

func (h *EvidenceHandler) search(c echo.Context) error {
	var req searchmodels.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	hits, err := h.Search.SearchAll(c.Request().Context(), req)
	if err != nil {
		return requestError(err)
	}
	if hits == nil {
		hits = []searchmodels.Hit{}
	}
	return c.JSON(http.StatusOK, searchResponse{Hits: hits})
}

type harvestRequest struct {
	URLs []string `json:"urls"`
}

type evidenceResponse struct {
	Evidence []models.Evidence `json:"evidence"`
}

func (h *EvidenceHandler) harvest(c echo.Context) error {
	var req harvestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.URLs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "urls are required")
	}
	if len(req.URLs) > maxHarvestURLs {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("at most %d urls per request", maxHarvestURLs))
	}
	hits := make([]searchmodels.Hit, 0, len(req.URLs))
	for _, raw := range req.URLs {
		hit, err := searchmodels.NewHit("", "", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		hits = append(hits, hit)
	}
	evidence := h.Harvest.HarvestAll(c.Request().Context(), hits)
	if evidence == nil {
		evidence = []models.Evidence{}
	}
	return c.JSON(http.StatusOK, evidenceResponse{Evidence: evidence})
}

type rerankRequest struct {
	Evidence []models.Evidence `json:"evidence"`
}

type rerankResponse struct {
	Ranked []rerank.Scored `json:"ranked"`
}

func (h *EvidenceHandler) rerank(c echo.Context) error {
	var req rerankRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rerankResponse{Ranked: rerank.Rank(req.Evidence, h.Rerank)})
}

func (h *EvidenceHandler) gather(c echo.Context) error {
	var req pipeline.Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.Gather.Gather(c.Request().Context(), req)
	if err != nil {
		return requestError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func requestError(err error) error {
	switch {
	case errors.Is(err, web_search.ErrMissingQuery),
		errors.Is(err, web_search.ErrMissingURLs),
		errors.Is(err, web_search.ErrInvalidMode):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}
