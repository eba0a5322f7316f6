package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/stethoscope/pkg/scoring"
	"gorm.io/gorm"
)

var errReportNotFound = errors.New("report not found")

// ReportStore persists analyses per user and keeps at most historyLimit of
// them for each.
type ReportStore struct {
	db           *gorm.DB
	historyLimit int
}

func NewReportStore(db *gorm.DB, historyLimit int) *ReportStore {
	return &ReportStore{db: db, historyLimit: historyLimit}
}

func (s *ReportStore) Save(ctx context.Context, userID string, report *scoring.Report, narrative, narrativeErr string) (*StoredReport, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	counts := report.Counts()
	record := &StoredReport{
		ID:             uuid.NewString(),
		UserID:         userID,
		Score:          report.Score,
		CriticalCount:  counts[scoring.SeverityCritical],
		WarningCount:   counts[scoring.SeverityWarning],
		InfoCount:      counts[scoring.SeverityInfo],
		ReportJSON:     string(data),
		Narrative:      narrative,
		NarrativeError: narrativeErr,
		CreatedAt:      time.Now().UTC(),
	}
	if report.NormalizedSnapshot != nil {
		record.Hostname = report.NormalizedSnapshot.OSInfo.Hostname
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return s.prune(tx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	return record, nil
}

// prune drops the user's reports beyond the history limit, oldest first.
func (s *ReportStore) prune(tx *gorm.DB, userID string) error {
	if s.historyLimit <= 0 {
		return nil
	}
	keep := tx.Model(&StoredReport{}).
		Select("id").
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(s.historyLimit)
	return tx.Where("user_id = ? AND id NOT IN (?)", userID, keep).Delete(&StoredReport{}).Error
}

func (s *ReportStore) ListRecent(ctx context.Context, userID string, limit int) ([]StoredReport, error) {
	var reports []StoredReport
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

func (s *ReportStore) Get(ctx context.Context, userID, id string) (*StoredReport, error) {
	var report StoredReport
	err := s.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &report, nil
}

// Decode returns the stored score report.
func (r *StoredReport) Decode() (*scoring.Report, error) {
	var report scoring.Report
	if err := json.Unmarshal([]byte(r.ReportJSON), &report); err != nil {
		return nil, fmt.Errorf("decode stored report %s: %w", r.ID, err)
	}
	return &report, nil
}
