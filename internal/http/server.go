package http

import (
	"context"
	stdhttp "net/http"
	"strconv"

	"asset-pipeline/internal/auth"
	"asset-pipeline/internal/config"
	"asset-pipeline/internal/http/handler"
	"asset-pipeline/internal/http/middleware"
	"asset-pipeline/internal/logger"
	"asset-pipeline/internal/metrics"
	"asset-pipeline/pkg/profiling"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
)

const (
	jsonKeyStatus    = "status"
	statusOK         = "ok"
	requestBodyLimit = "1M"

	// Multipart overhead on top of the per-file limit.
	multipartSlack = 1 << 20
	uploadSlots    = 3

	defaultActorRateLimit = 20
	defaultActorRateBurst = 40
)

type ServerDependencies struct {
	Config         *config.Config
	Logger         *logger.Logger
	Metrics        *metrics.Metrics
	AuthMiddleware *auth.Middleware
	Assets         handler.AssetService
	Queue          handler.QueueService
	Downloads      handler.DownloadGate
	Signer         handler.URLSigner
	Objects        handler.ObjectWriter
	AuditLogger    handler.AuditLogger
}

type Server struct {
	echo *echo.Echo
	deps *ServerDependencies
}

func NewServer(deps *ServerDependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	e.Server.ReadTimeout = deps.Config.Server.ReadTimeout
	e.Server.WriteTimeout = deps.Config.Server.WriteTimeout

	// Request ID middleware (first, so all logs have request ID)
	e.Use(middleware.RequestID())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomiddleware.Recover())
	e.Use(deps.Metrics.Middleware())

	e.Use(middleware.NewGlobalRateLimiter().Middleware())

	// Keyed by the authenticated actor, so it must follow each group's auth.
	actorLimit := deps.Config.Server.ActorRateLimit
	if actorLimit <= 0 {
		actorLimit = defaultActorRateLimit
	}
	actorBurst := deps.Config.Server.ActorRateBurst
	if actorBurst <= 0 {
		actorBurst = defaultActorRateBurst
	}
	actorLimiter := middleware.NewActorRateLimiter(actorLimit, actorBurst).Middleware()

	maxUpload := deps.Config.Server.MaxUploadSize
	jsonLimit := echomiddleware.BodyLimit(requestBodyLimit)
	objectLimit := echomiddleware.BodyLimit(byteLimit(maxUpload))
	formLimit := echomiddleware.BodyLimit(byteLimit(uploadSlots*maxUpload + multipartSlack))

	assetHandler := handler.NewAssetHandler(deps.Assets, deps.AuditLogger, maxUpload)
	uploadHandler := handler.NewUploadHandler(deps.Signer, deps.Objects, deps.AuditLogger, deps.Metrics, maxUpload, deps.Config.Signer.AdminTTL)
	workerHandler := handler.NewWorkerHandler(deps.Queue)
	downloadHandler := handler.NewDownloadHandler(deps.Downloads)

	e.GET("/health", healthCheck)
	e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))

	// The capability in the query string is the only credential.
	e.PUT("/uploads/signed/:bucket", uploadHandler.PutSigned, objectLimit)

	admin := e.Group("/api/admin")
	admin.Use(deps.AuthMiddleware.RequireAdmin(), actorLimiter)
	admin.POST("/assets/draft", assetHandler.CreateDraft, jsonLimit)
	admin.POST("/assets", assetHandler.Upsert, formLimit)
	admin.GET("/assets", assetHandler.List)
	admin.GET("/assets/:id", assetHandler.Get)
	admin.PATCH("/assets/:id/status", assetHandler.SetStatus, jsonLimit)
	admin.DELETE("/assets/:id", assetHandler.Delete)
	admin.POST("/assets/bulk/delete", assetHandler.BulkDelete, jsonLimit)
	admin.POST("/assets/bulk/status", assetHandler.BulkSetStatus, jsonLimit)
	admin.POST("/assets/bulk/regenerate", assetHandler.BulkRegenerate, jsonLimit)
	admin.POST("/uploads/sign", uploadHandler.Sign, jsonLimit)

	worker := e.Group("/api/worker")
	worker.Use(deps.AuthMiddleware.RequireWorker(), actorLimiter)
	worker.GET("/queue/pending", workerHandler.ListPending)
	worker.PATCH("/queue/jobs/:id", workerHandler.PatchJob, jsonLimit)
	worker.GET("/assets/:id", workerHandler.GetAsset)

	user := e.Group("/api")
	user.GET("/assets/:id/download", downloadHandler.Download, deps.AuthMiddleware.RequireUser(), actorLimiter)

	if deps.Config.App.Profiling {
		profiling.Register(e.Group("/debug", deps.AuthMiddleware.RequireAdmin()))
	}

	return &Server{
		echo: e,
		deps: deps,
	}
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() stdhttp.Handler {
	return s.echo
}

func healthCheck(c echo.Context) error {
	return c.JSON(stdhttp.StatusOK, map[string]string{
		jsonKeyStatus: statusOK,
	})
}

func byteLimit(n int64) string {
	if n <= 0 {
		return requestBodyLimit
	}
	return strconv.FormatInt(n, 10) + "B"
}
