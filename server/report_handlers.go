package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/haasonsaas/stethoscope/pkg/health"
	"github.com/haasonsaas/stethoscope/pkg/scoring"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
)

type reportSummary struct {
	ID             string    `json:"id"`
	Hostname       string    `json:"hostname"`
	Score          int       `json:"score"`
	CriticalCount  int       `json:"critical_count"`
	WarningCount   int       `json:"warning_count"`
	InfoCount      int       `json:"info_count"`
	HasNarrative   bool      `json:"has_narrative"`
	NarrativeError string    `json:"narrative_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type reportDetail struct {
	ID             string          `json:"id"`
	Report         *scoring.Report `json:"report"`
	Narrative      string          `json:"narrative,omitempty"`
	NarrativeError string          `json:"narrative_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (s *Server) handleListReports(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(c, http.StatusBadRequest, codeBadRequest, "limit must be a positive integer", s.logger)
			return
		}
		limit = min(parsed, maxListLimit)
	}

	records, err := s.store.ListRecent(c.Request.Context(), currentUser(c), limit)
	if err != nil {
		logger := requestLogger(c, s.logger)
		logger.Error().Err(err).Msg("Failed to list reports")
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to list reports", s.logger)
		return
	}

	summaries := make([]reportSummary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, reportSummary{
			ID:             r.ID,
			Hostname:       r.Hostname,
			Score:          r.Score,
			CriticalCount:  r.CriticalCount,
			WarningCount:   r.WarningCount,
			InfoCount:      r.InfoCount,
			HasNarrative:   r.Narrative != "",
			NarrativeError: r.NarrativeError,
			CreatedAt:      r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"reports": summaries})
}

func (s *Server) handleGetReport(c *gin.Context) {
	logger := requestLogger(c, s.logger)
	record, err := s.store.Get(c.Request.Context(), currentUser(c), c.Param("id"))
	if errors.Is(err, errReportNotFound) {
		respondError(c, http.StatusNotFound, codeNotFound, "report not found", s.logger)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load report")
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to load report", s.logger)
		return
	}

	report, err := record.Decode()
	if err != nil {
		logger.Error().Err(err).Msg("Stored report is unreadable")
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to load report", s.logger)
		return
	}
	c.JSON(http.StatusOK, reportDetail{
		ID:             record.ID,
		Report:         report,
		Narrative:      record.Narrative,
		NarrativeError: record.NarrativeError,
		CreatedAt:      record.CreatedAt,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	var pinger health.Pinger
	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			pinger = sqlDB
		}
	}

	status := health.Check(c.Request.Context(), pinger, s.narrator.Configured(), Version)
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":       status,
		"rate_limiter": s.limiter.Stats(),
	})
}
