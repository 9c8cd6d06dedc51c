package http

import (
	"context"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"asset-pipeline/internal/assets"
	"asset-pipeline/internal/auth"
	"asset-pipeline/internal/config"
	"asset-pipeline/internal/domain/asset"
	"asset-pipeline/internal/domain/job"
	"asset-pipeline/internal/download"
	"asset-pipeline/internal/metrics"
	"asset-pipeline/internal/queue"
	"asset-pipeline/internal/signer"
	apperrors "asset-pipeline/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "server-test-secret-0123456789abcdef"

type stubAssets struct{}

func (stubAssets) CreateDraft(context.Context, assets.Metadata) (*asset.Asset, error) {
	return nil, apperrors.Validation("title is required")
}
func (stubAssets) CreateOrUpdate(context.Context, assets.UpsertInput) (*assets.UpsertResult, error) {
	return nil, apperrors.Validation("title is required")
}
func (stubAssets) Get(context.Context, uuid.UUID) (*asset.Asset, error) {
	return nil, apperrors.NotFound("asset not found")
}
func (stubAssets) List(context.Context, asset.ListAssetsFilter) ([]*asset.Asset, error) {
	return []*asset.Asset{}, nil
}
func (stubAssets) SetStatus(context.Context, uuid.UUID, asset.Status) (*asset.Asset, error) {
	return nil, apperrors.NotFound("asset not found")
}
func (stubAssets) Delete(context.Context, uuid.UUID) error { return nil }
func (stubAssets) BulkDelete(context.Context, []uuid.UUID) (*assets.BulkResult, error) {
	return &assets.BulkResult{}, nil
}
func (stubAssets) BulkSetStatus(context.Context, []uuid.UUID, asset.Status) (*assets.BulkResult, error) {
	return &assets.BulkResult{}, nil
}
func (stubAssets) BulkRegenerate(context.Context, []uuid.UUID) (*assets.BulkResult, error) {
	return &assets.BulkResult{}, nil
}

type stubQueue struct{}

func (stubQueue) ListPending(context.Context, int) ([]queue.PendingJob, error) {
	return []queue.PendingJob{}, nil
}
func (stubQueue) Patch(context.Context, uuid.UUID, queue.PatchInput) (*job.Job, error) {
	return nil, apperrors.NotFound("processing job not found")
}
func (stubQueue) AssetForWorker(context.Context, uuid.UUID) (*queue.WorkerAsset, error) {
	return nil, apperrors.NotFound("asset not found")
}

type stubGate struct{}

func (stubGate) Prepare(context.Context, uuid.UUID, uuid.UUID) (*download.Delivery, error) {
	return nil, apperrors.Forbidden("an active subscription is required to download")
}
func (stubGate) Record(uuid.UUID, uuid.UUID) {}

type stubObjects struct{}

func (stubObjects) Put(context.Context, asset.Bucket, string, io.ReadSeeker, string) error {
	return nil
}

type testServer struct {
	handler stdhttp.Handler
	jwt     *auth.JWTService
	workers *auth.WorkerTokenIssuer
	signer  *signer.Signer
}

func newTestServer(t *testing.T, configure ...func(*config.Config)) *testServer {
	t.Helper()

	m, err := metrics.New("server_test", nil)
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{MaxUploadSize: 1 << 20},
		Signer: config.SignerConfig{AdminTTL: time.Hour},
	}
	for _, fn := range configure {
		fn(cfg)
	}
	ts := &testServer{
		jwt:     auth.NewJWTService(testSecret, time.Hour),
		workers: auth.NewWorkerTokenIssuer(testSecret, 15*time.Minute),
		signer:  signer.New(testSecret, "https://api.example.com"),
	}

	srv := NewServer(&ServerDependencies{
		Config:         cfg,
		Metrics:        m,
		AuthMiddleware: auth.NewMiddleware(ts.jwt, ts.workers),
		Assets:         stubAssets{},
		Queue:          stubQueue{},
		Downloads:      stubGate{},
		Signer:         ts.signer,
		Objects:        stubObjects{},
	})
	ts.handler = srv.Handler()
	return ts
}

func (ts *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(stdhttp.MethodGet, "/health", "", "")
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = ts.do(stdhttp.MethodGet, "/metrics", "", "")
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `server_test_http_requests_total{code="200",method="GET",route="/health"} 1`)
}

func TestServer_AdminRoutes(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(stdhttp.MethodGet, "/api/admin/assets", "", "")
	assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)

	userToken, err := ts.jwt.Generate(uuid.New(), auth.RoleUser)
	require.NoError(t, err)
	rec = ts.do(stdhttp.MethodGet, "/api/admin/assets", userToken, "")
	assert.Equal(t, stdhttp.StatusForbidden, rec.Code)

	workerToken, err := ts.workers.Issue("batch")
	require.NoError(t, err)
	rec = ts.do(stdhttp.MethodGet, "/api/admin/assets", workerToken, "")
	assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)

	adminToken, err := ts.jwt.Generate(uuid.New(), auth.RoleAdmin)
	require.NoError(t, err)
	rec = ts.do(stdhttp.MethodGet, "/api/admin/assets", adminToken, "")
	assert.Equal(t, stdhttp.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(stdhttp.MethodPatch, "/api/admin/assets/"+uuid.NewString()+"/status", adminToken, `{"status":"published"}`)
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
}

func TestServer_WorkerRoutes(t *testing.T) {
	ts := newTestServer(t)

	adminToken, err := ts.jwt.Generate(uuid.New(), auth.RoleAdmin)
	require.NoError(t, err)
	rec := ts.do(stdhttp.MethodGet, "/api/worker/queue/pending", adminToken, "")
	assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code, "session tokens are not worker tokens")

	workerToken, err := ts.workers.Issue("sweep")
	require.NoError(t, err)
	rec = ts.do(stdhttp.MethodGet, "/api/worker/queue/pending?limit=1", workerToken, "")
	assert.Equal(t, stdhttp.StatusOK, rec.Code)

	rec = ts.do(stdhttp.MethodPatch, "/api/worker/queue/jobs/"+uuid.NewString(), workerToken, `{"status":"processing"}`)
	assert.Equal(t, stdhttp.StatusNotFound, rec.Code)
}

func TestServer_SignedUploadAndDownload(t *testing.T) {
	ts := newTestServer(t)

	capability, err := ts.signer.Issue(asset.BucketPublic, "thumbnails/HP-ANM-0001.png", time.Minute)
	require.NoError(t, err)
	path := strings.TrimPrefix(capability.URL, "https://api.example.com")

	rec := ts.do(stdhttp.MethodPut, path, "", "png")
	assert.Equal(t, stdhttp.StatusOK, rec.Code)

	rec = ts.do(stdhttp.MethodPut, strings.Replace(path, "/public", "/private", 1), "", "png")
	assert.Equal(t, stdhttp.StatusForbidden, rec.Code)

	userToken, err := ts.jwt.Generate(uuid.New(), auth.RoleUser)
	require.NoError(t, err)
	rec = ts.do(stdhttp.MethodGet, "/api/assets/"+uuid.NewString()+"/download", userToken, "")
	assert.Equal(t, stdhttp.StatusForbidden, rec.Code)

	rec = ts.do(stdhttp.MethodGet, "/api/assets/"+uuid.NewString()+"/download", "", "")
	assert.Equal(t, stdhttp.StatusUnauthorized, rec.Code)
}

func TestServer_ActorRateLimitFollowsAuth(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.ActorRateLimit = 1
		cfg.Server.ActorRateBurst = 2
	})

	first, err := ts.jwt.Generate(uuid.New(), auth.RoleAdmin)
	require.NoError(t, err)
	second, err := ts.jwt.Generate(uuid.New(), auth.RoleAdmin)
	require.NoError(t, err)

	// Rejected logins never reach the limiter.
	for i := 0; i < 5; i++ {
		assert.Equal(t, stdhttp.StatusUnauthorized, ts.do(stdhttp.MethodGet, "/api/admin/assets", "", "").Code)
	}

	for i := 0; i < 2; i++ {
		rec := ts.do(stdhttp.MethodGet, "/api/admin/assets", first, "")
		require.Equal(t, stdhttp.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := ts.do(stdhttp.MethodGet, "/api/admin/assets", first, "")
	assert.Equal(t, stdhttp.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())

	// Same client address, different admin.
	assert.Equal(t, stdhttp.StatusOK, ts.do(stdhttp.MethodGet, "/api/admin/assets", second, "").Code)

	workerToken, err := ts.workers.Issue("batch")
	require.NoError(t, err)
	assert.Equal(t, stdhttp.StatusOK, ts.do(stdhttp.MethodGet, "/api/worker/queue/pending", workerToken, "").Code)
	assert.Equal(t, stdhttp.StatusOK, ts.do(stdhttp.MethodGet, "/api/worker/queue/pending", workerToken, "").Code)
	assert.Equal(t, stdhttp.StatusTooManyRequests, ts.do(stdhttp.MethodGet, "/api/worker/queue/pending", workerToken, "").Code)
}
