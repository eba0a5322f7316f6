package main

import (
	"github.com/gin-gonic/gin"
	"github.com/haasonsaas/stethoscope/pkg/config"
	"github.com/haasonsaas/stethoscope/pkg/narrative"
	"github.com/haasonsaas/stethoscope/pkg/scoring"
	"github.com/haasonsaas/stethoscope/pkg/validate"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Server wires the analysis pipeline to HTTP. Only finished reports are
// kept; raw payloads never leave the request.
type Server struct {
	db          *gorm.DB
	store       *ReportStore
	engine      *scoring.Engine
	narrator    narrative.Generator
	limits      validate.Limits
	limiter     *RateLimiter
	tokenHasher TokenHasher
	adminToken  string
	cfg         *config.ServerConfig
	logger      zerolog.Logger
}

func newServer(cfg *config.ServerConfig, db *gorm.DB, narrator narrative.Generator, logger zerolog.Logger) *Server {
	if narrator == nil {
		narrator = narrative.Disabled{}
	}
	return &Server{
		db:          db,
		store:       NewReportStore(db, cfg.Server.HistoryLimit),
		engine:      scoring.NewEngine(),
		narrator:    narrator,
		limits:      validate.DefaultLimits(),
		limiter:     NewRateLimiter(),
		tokenHasher: NewTokenHasher([]byte(cfg.Server.TokenSecret)),
		adminToken:  cfg.Server.AdminToken,
		cfg:         cfg,
		logger:      logger,
	}
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(withRequestContext(s.logger))
	r.Use(metricsMiddleware())

	v1 := r.Group("/v1")
	v1.GET("/health", s.handleHealth)

	authed := v1.Group("", s.requireAPIKey)
	authed.POST("/analyze", s.handleAnalyze)
	authed.GET("/reports", s.handleListReports)
	authed.GET("/reports/:id", s.handleGetReport)

	s.registerKeyRoutes(r)
	r.GET("/metrics", metricsHandler())
	return r
}
