package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/haasonsaas/stethoscope/pkg/codec"
	"github.com/haasonsaas/stethoscope/pkg/narrative"
	"github.com/haasonsaas/stethoscope/pkg/scoring"
	"github.com/haasonsaas/stethoscope/pkg/telemetry"
	"github.com/haasonsaas/stethoscope/pkg/validate"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type analyzeRequest struct {
	Data string `json:"data"`
}

type analyzeResponse struct {
	Status         string          `json:"status"`
	ID             string          `json:"id,omitempty"`
	Report         *scoring.Report `json:"report"`
	Narrative      string          `json:"narrative,omitempty"`
	NarrativeError string          `json:"narrative_error,omitempty"`
}

func (s *Server) handleAnalyze(c *gin.Context) {
	logger := requestLogger(c, s.logger)
	userID := currentUser(c)
	ctx := c.Request.Context()

	if !s.limiter.Allow(userID, s.cfg.Server.AnalyzePerMinute, time.Minute) {
		analysesTotal.WithLabelValues("rate_limited").Inc()
		respondError(c, http.StatusTooManyRequests, codeRateLimited, "analysis rate limit exceeded", s.logger)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxBodyBytes)
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			analysesTotal.WithLabelValues(strings.ToLower(validate.CodeTooLarge)).Inc()
			respondError(c, http.StatusRequestEntityTooLarge, validate.CodeTooLarge, "request body too large", s.logger)
			return
		}
		respondError(c, http.StatusBadRequest, codeBadRequest, "request body must be a JSON object with a data field", s.logger)
		return
	}

	report, err := s.analyze(ctx, req.Data)
	if err != nil {
		var coded validate.Coded
		if !errors.As(err, &coded) {
			analysesTotal.WithLabelValues(outcomeError).Inc()
			respondError(c, http.StatusInternalServerError, codeInternal, "analysis failed", s.logger)
			return
		}
		status := http.StatusBadRequest
		if coded.Code() == validate.CodeTooLarge {
			status = http.StatusRequestEntityTooLarge
		}
		analysesTotal.WithLabelValues(strings.ToLower(coded.Code())).Inc()
		respondError(c, status, coded.Code(), err.Error(), s.logger)
		return
	}
	scoreHistogram.Observe(float64(report.Score))

	text, narrativeErr := s.generateNarrative(ctx, report, logger)

	resp := analyzeResponse{
		Status:         "success",
		Report:         report,
		Narrative:      text,
		NarrativeError: narrativeErr,
	}
	if stored, err := s.persist(ctx, userID, report, text, narrativeErr); err != nil {
		logger.Error().Err(err).Msg("Failed to persist report")
	} else {
		resp.ID = stored.ID
	}

	analysesTotal.WithLabelValues(outcomeSuccess).Inc()
	logger.Info().
		Str("user_id", userID).
		Str("report_id", resp.ID).
		Int("score", report.Score).
		Int("findings", len(report.Findings)).
		Bool("narrative", text != "").
		Msg("Analysis complete")
	c.JSON(http.StatusOK, resp)
}

// analyze runs decode, validate and score. It holds no state between
// requests and keeps nothing after returning.
func (s *Server) analyze(ctx context.Context, line string) (*scoring.Report, error) {
	tracer := telemetry.Tracer()

	_, span := tracer.Start(ctx, "decode")
	if limit := s.limits.MaxInputBytes; limit > 0 && len(line) > limit {
		err := &validate.TooLargeError{Size: len(line), Limit: limit}
		endSpan(span, err)
		return nil, err
	}
	data, err := codec.Decode(line)
	span.SetAttributes(attribute.Int("payload.bytes", len(line)))
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	_, span = tracer.Start(ctx, "validate")
	res, err := validate.Document(data, s.limits)
	if res != nil {
		span.SetAttributes(attribute.Int("anomalies", len(res.Anomalies)))
	}
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	_, span = tracer.Start(ctx, "score")
	report := s.engine.Score(res)
	span.SetAttributes(
		attribute.Int("score", report.Score),
		attribute.Int("findings", len(report.Findings)),
	)
	span.End()
	return report, nil
}

// generateNarrative returns the model's text, or the failure kind. It never
// substitutes text of its own.
func (s *Server) generateNarrative(ctx context.Context, report *scoring.Report, logger zerolog.Logger) (string, string) {
	if !s.narrator.Configured() {
		return "", string(narrative.KindNotConfigured)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "narrative")
	defer span.End()

	text, err := s.narrator.Generate(ctx, report)
	if err != nil {
		kind := narrative.KindOf(err)
		narrativeFailures.WithLabelValues(string(kind)).Inc()
		span.SetAttributes(attribute.String("narrative.error_kind", string(kind)))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		logger.Warn().Err(err).Str("kind", string(kind)).Msg("Narrative generation failed")
		return "", string(kind)
	}
	span.SetAttributes(attribute.Int("narrative.bytes", len(text)))
	return text, ""
}

func (s *Server) persist(ctx context.Context, userID string, report *scoring.Report, text, narrativeErr string) (*StoredReport, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "persist")
	stored, err := s.store.Save(ctx, userID, report, text, narrativeErr)
	endSpan(span, err)
	return stored, err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		var coded validate.Coded
		if errors.As(err, &coded) {
			span.SetAttributes(attribute.String("error.code", coded.Code()))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
