package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/loopback-hub/loopback/internal/watsonx"
)

type AskHandler struct {
	Client *watsonx.Client
	Logger *log.Logger
}

func (h *AskHandler) Register(e *echo.Echo) {
	e.POST("/ask", h.ask)
}

// ask relays a question to the remote agent and maps every failure mode to a
// user-facing message so the caller always gets a 200 with something to show.
func (h *AskHandler) ask(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message required")
	}

	answer, err := h.Client.Run(c.Request().Context(), req.Message)
	resp := h.outcome(answer, err)
	asksTotal.WithLabelValues(resp.Result).Inc()
	return c.JSON(http.StatusOK, resp)
}

func (h *AskHandler) outcome(answer watsonx.Answer, err error) AskResponse {
	if err == nil {
		return AskResponse{Response: answer.Text, Result: "answer", Path: answer.Path}
	}

	var remote *watsonx.RemoteFailure
	if errors.As(err, &remote) {
		h.Logger.Printf("agent run ended in status %s", remote.Status)
		return AskResponse{
			Response: fmt.Sprintf("The AI agent encountered an issue (Status: %s). Please try again.", remote.Status),
			Result:   "remote_failure",
		}
	}
	if errors.Is(err, watsonx.ErrTimedOut) {
		h.Logger.Printf("agent run exhausted its polling budget")
		return AskResponse{
			Response: "The request is taking longer than expected. Please check the dashboard later or try again.",
			Result:   "timeout",
		}
	}
	h.Logger.Printf("agent run failed: %v", err)
	return AskResponse{
		Response: fmt.Sprintf("Connection error: %v", err),
		Result:   "connection_error",
	}
}
