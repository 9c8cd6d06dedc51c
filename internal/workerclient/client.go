// Package workerclient talks to the worker-facing queue API on behalf of a
// worker process. Each client carries the capability token of one wake call.
package workerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"asset-pipeline/internal/domain/asset"
	"asset-pipeline/internal/queue"

	"github.com/google/uuid"
)

const (
	pathPending = "/api/worker/queue/pending"
	pathJob     = "/api/worker/queue/jobs/"
	pathAsset   = "/api/worker/assets/"

	contentTypeJSON = "application/json"
	maxErrorBody    = 4 << 10
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned %d: %s", e.StatusCode, e.Message)
}

// IsConflict reports whether err is a 409, which the API returns when a job
// has already moved on.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// PatchRequest mirrors the job status report the API accepts.
type PatchRequest struct {
	Status       string            `json:"status"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty"`
}

type Job struct {
	ID             uuid.UUID `json:"id"`
	AssetID        uuid.UUID `json:"asset_id"`
	JobType        string    `json:"job_type"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"max_attempts"`
	ErrorMessage   *string   `json:"error_message"`
	LeaseExpiresAt *string   `json:"lease_expires_at"`
}

func (c *Client) ListPending(ctx context.Context, limit int) ([]queue.PendingJob, error) {
	path := pathPending
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var jobs []queue.PendingJob
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *Client) PatchJob(ctx context.Context, id uuid.UUID, req PatchRequest) (*Job, error) {
	var out Job
	if err := c.do(ctx, http.MethodPatch, pathJob+id.String(), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAsset(ctx context.Context, id uuid.UUID) (*queue.WorkerAsset, error) {
	var out queue.WorkerAsset
	if err := c.do(ctx, http.MethodGet, pathAsset+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutObject writes body to a capability URL. The URL is its own credential,
// so no bearer token is sent.
func (c *Client) PutObject(ctx context.Context, url, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkResponse(resp)
}

// Outputs converts derivative keys into the wire form of a completion report.
func Outputs(keys map[asset.Derivative]string) map[string]string {
	out := make(map[string]string, len(keys))
	for d, key := range keys {
		out[string(d)] = key
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", contentTypeJSON)
	if in != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
