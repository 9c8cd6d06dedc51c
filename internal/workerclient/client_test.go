package workerclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"asset-pipeline/internal/domain/asset"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ListPendingSendsToken(t *testing.T) {
	jobID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, pathPending, r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", contentTypeJSON)
		_, _ = w.Write([]byte(`[{"id":"` + jobID.String() + `","asset_code":"HP-ANM-0001","job_type":"generate_all","urls":{"thumbnail":"https://x/t"},"keys":{"thumbnail":"thumbnails/HP-ANM-0001.png"}}]`))
	}))
	defer srv.Close()

	jobs, err := New(srv.URL+"/", "tok", time.Second).ListPending(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, jobID, jobs[0].ID)
	assert.Equal(t, "https://x/t", jobs[0].URLs[asset.DerivativeThumbnail])
	assert.Equal(t, "thumbnails/HP-ANM-0001.png", jobs[0].Keys[asset.DerivativeThumbnail])
}

func TestClient_PatchJob(t *testing.T) {
	jobID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, pathJob+jobID.String(), r.URL.Path)
		assert.Equal(t, contentTypeJSON, r.Header.Get("Content-Type"))

		var req PatchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "completed", req.Status)
		assert.Equal(t, "documents/HP-ANM-0001.pdf", req.Outputs["document"])

		_, _ = w.Write([]byte(`{"id":"` + jobID.String() + `","status":"completed","attempts":1}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL, "tok", time.Second).PatchJob(context.Background(), jobID, PatchRequest{
		Status:  "completed",
		Outputs: Outputs(map[asset.Derivative]string{asset.DerivativeDocument: "documents/HP-ANM-0001.pdf"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", out.Status)
	assert.Equal(t, 1, out.Attempts)
}

func TestClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"cannot move job from completed to processing"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "tok", time.Second).PatchJob(context.Background(), uuid.New(), PatchRequest{Status: "processing"})
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "cannot move job from completed to processing", apiErr.Message)
}

func TestClient_PutObjectOmitsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "png-bytes", string(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := New("http://unused", "tok", time.Second).PutObject(context.Background(), srv.URL+"/uploads/signed/public?key=k", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
}

func TestClient_PutObjectForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))
	defer srv.Close()

	err := New(srv.URL, "tok", time.Second).PutObject(context.Background(), srv.URL, "image/png", []byte("x"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "denied", apiErr.Message)
}
