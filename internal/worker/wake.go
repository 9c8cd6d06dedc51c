package worker

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	defaultBatch        = 5
	defaultDrainTimeout = 10 * time.Minute

	msgInvalidWake  = "invalid wake request"
	msgMissingToken = "wake token is required"
	msgWakeAccepted = "draining"
	msgWakeQueued   = "drain already running; queued"
)

type WakeRequest struct {
	Reason     string `json:"reason"`
	Token      string `json:"token"`
	APIBaseURL string `json:"api_base_url"`
}

// WakeHandler accepts wake calls from the API dispatcher.
type WakeHandler struct {
	runner     *Runner
	apiBaseURL string
}

func NewWakeHandler(runner *Runner, apiBaseURL string) *WakeHandler {
	return &WakeHandler{runner: runner, apiBaseURL: strings.TrimRight(apiBaseURL, "/")}
}

// Wake answers 202 as soon as the drain is scheduled. The API base URL in the
// request is only logged; the worker talks to the URL it was configured with.
func (h *WakeHandler) Wake(c echo.Context) error {
	var req WakeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msgInvalidWake})
	}
	if strings.TrimSpace(req.Token) == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": msgMissingToken})
	}

	if req.APIBaseURL != "" && strings.TrimRight(req.APIBaseURL, "/") != h.apiBaseURL {
		h.runner.log.Warn("wake names a different api base url", "requested", req.APIBaseURL, "configured", h.apiBaseURL)
	}

	msg := msgWakeAccepted
	if !h.runner.Wake(req.Token) {
		msg = msgWakeQueued
	}
	h.runner.log.Info("wake received", "reason", req.Reason)

	return c.JSON(http.StatusAccepted, map[string]string{"message": msg})
}

func (h *WakeHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
