package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/loopback-hub/loopback/internal/runtime"
	"github.com/loopback-hub/loopback/internal/store"
	"github.com/loopback-hub/loopback/internal/triage"
	"github.com/loopback-hub/loopback/internal/watsonx"
)

type TicketsHandler struct {
	Store          *store.Store
	Tokens         *watsonx.TokenSource
	Grouper        *triage.Grouper
	Lock           *MutationLock
	CandidateLimit int
	Logger         *log.Logger
}

func (h *TicketsHandler) Register(e *echo.Echo, secret []byte) {
	e.GET("/tickets", h.list)
	e.POST("/tickets", h.create)
	e.DELETE("/tickets/:id", h.delete, runtime.EchoAuthMiddleware(secret))
	e.POST("/broadcast", h.broadcast, runtime.EchoAuthMiddleware(secret))
}

func (h *TicketsHandler) list(c echo.Context) error {
	items, err := h.Store.ListTickets(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.Ticket{}
	}
	return c.JSON(http.StatusOK, items)
}

// create persists a new ticket after deciding its cluster membership. Grouping
// is best-effort: a failed token exchange or grouping call leaves the ticket
// rooting its own cluster instead of failing the creation.
func (h *TicketsHandler) create(c echo.Context) error {
	var req CreateTicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query required")
	}
	ctx := c.Request().Context()

	clusterID := ""
	token, err := h.Tokens.Token(ctx)
	if err != nil {
		h.Logger.Printf("token exchange failed, skipping grouping: %v", err)
	} else {
		open, err := h.Store.ListPending(ctx, h.CandidateLimit)
		if err != nil {
			h.Logger.Printf("listing grouping candidates failed: %v", err)
		} else if cid, ok := h.Grouper.GroupOf(ctx, token, req.Query, open); ok {
			clusterID = cid
		}
	}

	var created store.Ticket
	err = h.Lock.WithLock(ctx, "tickets", func() error {
		var err error
		created, err = h.Store.CreateTicket(ctx, req.Query, req.AIDraft, clusterID, req.Users)
		return err
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	grouped := "false"
	if clusterID != "" {
		grouped = "true"
		h.Logger.Printf("linked ticket %s to cluster %s", created.ID, created.ClusterID)
	} else {
		h.Logger.Printf("new cluster established for %s", created.ID)
	}
	ticketsCreatedTotal.WithLabelValues(grouped).Inc()

	return c.JSON(http.StatusCreated, CreateTicketResponse{
		Status:   "created",
		TicketID: created.ID,
		GroupID:  created.ClusterID,
	})
}

func (h *TicketsHandler) delete(c echo.Context) error {
	id := c.Param("id")
	err := h.Lock.WithLock(c.Request().Context(), "tickets", func() error {
		return h.Store.DeleteTicket(c.Request().Context(), id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "ticket not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted", "ticket_id": id})
}

// broadcast fans a human-approved resolution out to the whole duplicate
// cluster. A missing ticket id is a zero-count no-op, not an error.
func (h *TicketsHandler) broadcast(c echo.Context) error {
	var req BroadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.TicketID == "" || req.FinalAnswer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "ticket_id and final_answer required")
	}
	ctx := c.Request().Context()

	var resolved int64
	err := h.Lock.WithLock(ctx, "tickets", func() error {
		var err error
		resolved, err = h.Store.ResolveCluster(ctx, req.TicketID, req.FinalAnswer)
		return err
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if resolved > 0 {
		broadcastResolvedTotal.Add(float64(resolved))
		if t, err := h.Store.GetTicket(ctx, req.TicketID); err == nil {
			if err := h.Store.RecordBroadcast(ctx, t.ID, t.ClusterID, resolved); err != nil {
				h.Logger.Printf("broadcast audit failed: %v", err)
			}
		}
		h.Logger.Printf("resolved %d tickets in cluster of %s", resolved, req.TicketID)
	} else {
		h.Logger.Printf("broadcast target %s not found, nothing resolved", req.TicketID)
	}

	return c.JSON(http.StatusOK, BroadcastResponse{Status: "broadcast_complete", ResolvedCount: resolved})
}
