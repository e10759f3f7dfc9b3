package server

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/loopback-hub/loopback/internal/knowledge"
)

type KnowledgeHandler struct {
	Index      *knowledge.Index
	MaxResults int
	Logger     *log.Logger
}

func (h *KnowledgeHandler) Register(e *echo.Echo) {
	e.GET("/search_knowledge", h.search)
}

func (h *KnowledgeHandler) search(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter required")
	}
	hits, err := h.Index.Search(query, h.MaxResults)
	if err != nil {
		h.Logger.Printf("knowledge search failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	knowledgeSearchesTotal.Inc()
	if hits == nil {
		hits = []knowledge.Hit{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: hits})
}
