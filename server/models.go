package main

import "time"

// StoredReport is one analysis kept in a user's history. ReportJSON holds
// the full score report; the other columns are denormalized for listing.
type StoredReport struct {
	ID             string    `gorm:"primaryKey;size:36"`
	UserID         string    `gorm:"index:user_created,priority:1;not null"`
	Hostname       string
	Score          int
	CriticalCount  int
	WarningCount   int
	InfoCount      int
	ReportJSON     string `gorm:"type:text"`
	Narrative      string `gorm:"type:text"`
	NarrativeError string
	CreatedAt      time.Time `gorm:"index:user_created,priority:2"`
}

// APIKey stores an HMAC of a caller's bearer key, never the key itself.
type APIKey struct {
	ID         uint   `gorm:"primaryKey"`
	Label      string
	UserID     string `gorm:"index;not null"`
	KeyHash    string `gorm:"uniqueIndex"`
	LastUsedAt *time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

func migrationModels() []any {
	return []any{&StoredReport{}, &APIKey{}}
}
