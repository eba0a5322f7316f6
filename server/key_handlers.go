package main

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func (s *Server) registerKeyRoutes(r *gin.Engine) {
	admin := r.Group("/v1/admin/keys", s.requireAdmin)
	admin.POST("", s.handleIssueKey)
	admin.GET("", s.handleListKeys)
	admin.DELETE("/:id", s.handleRevokeKey)
}

func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
	return token, token != ""
}

// requireAdmin guards key management. With no admin token configured the
// admin API is switched off.
func (s *Server) requireAdmin(c *gin.Context) {
	if s.adminToken == "" {
		respondError(c, http.StatusForbidden, codeForbidden, "admin API disabled", s.logger)
		return
	}
	token, ok := bearerToken(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, codeUnauthorized, "missing bearer token", s.logger)
		return
	}
	if !secureCompare(token, s.adminToken) {
		respondError(c, http.StatusUnauthorized, codeUnauthorized, "invalid bearer token", s.logger)
		return
	}
	c.Next()
}

// requireAPIKey resolves the bearer key to a user id.
func (s *Server) requireAPIKey(c *gin.Context) {
	token, ok := bearerToken(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, codeUnauthorized, "missing bearer token", s.logger)
		return
	}

	var key APIKey
	err := s.db.WithContext(c.Request.Context()).
		Where("key_hash = ? AND revoked_at IS NULL", s.tokenHasher.HashString(token)).
		First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusUnauthorized, codeUnauthorized, "invalid api key", s.logger)
			return
		}
		respondError(c, http.StatusInternalServerError, codeInternal, "api key lookup failed", s.logger)
		return
	}

	now := time.Now().UTC()
	if err := s.db.Model(&key).Update("last_used_at", now).Error; err != nil {
		logger := requestLogger(c, s.logger)
		logger.Warn().Err(err).Uint("key_id", key.ID).Msg("Failed to record key use")
	}

	c.Set(userIDContextKey, key.UserID)
	c.Next()
}

func (s *Server) handleIssueKey(c *gin.Context) {
	var req struct {
		Label  string `json:"label"`
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeBadRequest, "invalid request body", s.logger)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || len(req.UserID) > 128 {
		respondError(c, http.StatusBadRequest, codeBadRequest, "user_id is required", s.logger)
		return
	}

	raw, err := generateAPIKey()
	if err != nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to generate key", s.logger)
		return
	}

	record := APIKey{
		Label:   req.Label,
		UserID:  req.UserID,
		KeyHash: s.tokenHasher.HashString(raw),
	}
	if err := s.db.WithContext(c.Request.Context()).Create(&record).Error; err != nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to persist key", s.logger)
		return
	}

	logger := requestLogger(c, s.logger)
	logger.Info().Uint("key_id", record.ID).Str("user_id", record.UserID).Msg("API key issued")
	c.JSON(http.StatusCreated, gin.H{
		"id":      record.ID,
		"key":     raw,
		"label":   record.Label,
		"user_id": record.UserID,
	})
}

func (s *Server) handleListKeys(c *gin.Context) {
	var keys []APIKey
	if err := s.db.WithContext(c.Request.Context()).Order("created_at desc").Find(&keys).Error; err != nil {
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to list keys", s.logger)
		return
	}

	resp := make([]gin.H, 0, len(keys))
	for _, k := range keys {
		resp = append(resp, gin.H{
			"id":           k.ID,
			"label":        k.Label,
			"user_id":      k.UserID,
			"fingerprint":  s.tokenHasher.Fingerprint(k.KeyHash),
			"created_at":   k.CreatedAt,
			"last_used_at": k.LastUsedAt,
			"revoked_at":   k.RevokedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRevokeKey(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, codeBadRequest, "invalid key id", s.logger)
		return
	}

	var key APIKey
	if err := s.db.WithContext(c.Request.Context()).First(&key, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, codeNotFound, "key not found", s.logger)
			return
		}
		respondError(c, http.StatusInternalServerError, codeInternal, "failed to load key", s.logger)
		return
	}
	if key.RevokedAt == nil {
		if err := s.db.Model(&key).Update("revoked_at", time.Now().UTC()).Error; err != nil {
			respondError(c, http.StatusInternalServerError, codeInternal, "failed to revoke key", s.logger)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func parseUintParam(raw string) (uint, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty")
	}
	id64, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id64), nil
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
