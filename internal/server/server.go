package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/draftline/draftline/internal/config"
	"github.com/draftline/draftline/internal/service"
	"github.com/draftline/draftline/internal/service/generator"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	AuthService       *service.AuthService
	QueueService      *service.QueueService
	ApprovalService   *service.ApprovalService
	PublishingService *service.PublishingService
	MonitoringService *service.MonitoringService
	ProgressHub       *service.ProgressHub
	Orchestrator      *service.Orchestrator
	Worker            *service.Worker
	StatsUpdater      *service.StatsUpdater
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize services
	authService := service.NewAuthService(logger, cfg.Auth)
	queueService := service.NewQueueService(db, logger)
	monitoringService := service.NewMonitoringService(db, logger)
	progressHub := service.NewProgressHub(db, logger)
	approvalService := service.NewApprovalService(db, logger, queueService)
	publishingService := service.NewPublishingService(db, logger, queueService, monitoringService)

	for name, platformCfg := range cfg.Publisher.Platforms {
		if !platformCfg.Enabled {
			continue
		}
		if err := publishingService.RegisterPublisher(service.NewWebhookPublisher(name, platformCfg, logger)); err != nil {
			return nil, fmt.Errorf("failed to register publisher %s: %w", name, err)
		}
	}

	contentClient := generator.NewContentClient(&cfg.Generator, logger)
	imageClient := generator.NewImageClient(&cfg.Images, logger)
	assetClient := generator.NewAssetClient(&cfg.Assets, logger)

	imageTimeout, err := time.ParseDuration(cfg.Images.Timeout)
	if err != nil || imageTimeout <= 0 {
		imageTimeout = 30 * time.Second
	}

	orchestrator := service.NewOrchestrator(
		db, logger,
		queueService, progressHub, monitoringService,
		contentClient, imageClient, assetClient,
		imageTimeout,
	)
	worker := service.NewWorker(&cfg.Worker, logger, queueService, orchestrator)
	statsUpdater := service.NewStatsUpdater(monitoringService, logger, time.Hour)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:            cfg,
		DB:                db,
		Router:            router,
		Logger:            logger,
		AuthService:       authService,
		QueueService:      queueService,
		ApprovalService:   approvalService,
		PublishingService: publishingService,
		MonitoringService: monitoringService,
		ProgressHub:       progressHub,
		Orchestrator:      orchestrator,
		Worker:            worker,
		StatsUpdater:      statsUpdater,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if len(s.Config.Server.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = s.Config.Server.AllowOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	s.Router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", s.handleHealth)

	// API routes
	api := s.Router.Group("/api/v1")
	api.Use(s.AuthService.Middleware())
	{
		queue := api.Group("/queue")
		{
			queue.POST("", s.handleCreateQueueItem)
			queue.GET("", s.handleListQueueItems)
			queue.GET("/stats", s.handleQueueStats)
			queue.GET("/:id", s.handleGetQueueItem)
			queue.PATCH("/:id", s.handleUpdateQueueItem)
			queue.DELETE("/:id", s.handleDeleteQueueItem)
			queue.POST("/:id/retry", s.handleRetryQueueItem)
			queue.GET("/:id/phases", s.handleListPhases)
			queue.GET("/:id/progress", s.handleGetProgress)
			queue.GET("/:id/progress/stream", s.handleStreamProgress)
			queue.POST("/:id/approvals", s.handleRequestApproval)
			queue.GET("/:id/approvals", s.handleListApprovals)
			queue.POST("/:id/publish", s.handlePublish)
			queue.GET("/:id/publishing", s.handleListPublishingRecords)
		}

		approvals := api.Group("/approvals")
		{
			approvals.POST("/:id/decision", s.handleDecideApproval)
		}
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "ok"
	if sqlDB, err := s.DB.DB(); err != nil || sqlDB.Ping() != nil {
		status = http.StatusServiceUnavailable
		dbStatus = "unreachable"
	}

	c.JSON(status, gin.H{
		"status":   dbStatus,
		"database": dbStatus,
		"time":     time.Now().Unix(),
	})
}

func (s *Server) Start(ctx context.Context) error {
	// Start background processing
	if err := s.Worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	s.StatsUpdater.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop background processing first
	s.Worker.Stop()
	s.StatsUpdater.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
