package handler

import (
	"net/http"
	"strconv"
	"time"

	"asset-pipeline/internal/domain/asset"
	"asset-pipeline/internal/domain/job"
	"asset-pipeline/internal/queue"

	"github.com/labstack/echo/v4"
)

// WorkerHandler serves the worker-facing queue API. Every route runs behind
// a worker capability token.
type WorkerHandler struct {
	queue QueueService
}

func NewWorkerHandler(queue QueueService) *WorkerHandler {
	return &WorkerHandler{queue: queue}
}

type PatchJobRequest struct {
	Status       string            `json:"status"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty"`
}

type JobResponse struct {
	ID             string  `json:"id"`
	AssetID        string  `json:"asset_id"`
	JobType        string  `json:"job_type"`
	Status         string  `json:"status"`
	Attempts       int     `json:"attempts"`
	MaxAttempts    int     `json:"max_attempts"`
	ErrorMessage   *string `json:"error_message"`
	LeaseExpiresAt *string `json:"lease_expires_at"`
}

func (h *WorkerHandler) ListPending(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam(queryLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return respondError(c, http.StatusBadRequest, msgInvalidLimit)
		}
		limit = n
	}

	jobs, err := h.queue.ListPending(c.Request().Context(), limit)
	if err != nil {
		return respondServiceError(c, err)
	}
	if jobs == nil {
		jobs = []queue.PendingJob{}
	}
	return c.JSON(http.StatusOK, jobs)
}

func (h *WorkerHandler) PatchJob(c echo.Context) error {
	id, err := parseIDParam(c, msgInvalidJobID)
	if err != nil {
		return handleHTTPError(c, err)
	}

	var req PatchJobRequest
	if err := bindStrictJSON(c, &req); err != nil {
		return handleHTTPError(c, err)
	}

	in := queue.PatchInput{
		Status:       job.Status(req.Status),
		ErrorMessage: req.ErrorMessage,
	}
	if len(req.Outputs) > 0 {
		in.Outputs = make(map[asset.Derivative]string, len(req.Outputs))
		for d, key := range req.Outputs {
			in.Outputs[asset.Derivative(d)] = key
		}
	}

	updated, err := h.queue.Patch(c.Request().Context(), id, in)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(http.StatusOK, toJobResponse(updated))
}

func (h *WorkerHandler) GetAsset(c echo.Context) error {
	id, err := parseIDParam(c, msgInvalidAssetID)
	if err != nil {
		return handleHTTPError(c, err)
	}

	a, err := h.queue.AssetForWorker(c.Request().Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:           j.ID.String(),
		AssetID:      j.AssetID.String(),
		JobType:      string(j.Type),
		Status:       string(j.Status),
		Attempts:     j.Attempts,
		MaxAttempts:  j.MaxAttempts,
		ErrorMessage: j.ErrorMessage,
	}
	if j.LeaseExpiresAt != nil {
		s := j.LeaseExpiresAt.UTC().Format(time.RFC3339)
		resp.LeaseExpiresAt = &s
	}
	return resp
}
