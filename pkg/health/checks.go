package health

import (
	"context"
	"fmt"
	"time"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthStatus struct {
	DatabaseReachable   bool      `json:"database_reachable"`
	NarrativeConfigured bool      `json:"narrative_configured"`
	CheckedAt           time.Time `json:"checked_at"`
	Version             string    `json:"version"`
	Healthy             bool      `json:"healthy"`
	Issues              []string  `json:"issues,omitempty"`
}

// Check reports whether the server can accept analyses. A missing narrative
// provider is listed as an issue but does not make the server unhealthy:
// scoring still works without it.
func Check(ctx context.Context, db Pinger, narrativeConfigured bool, version string) *HealthStatus {
	status := &HealthStatus{
		Healthy:             true,
		Issues:              []string{},
		NarrativeConfigured: narrativeConfigured,
		Version:             version,
		CheckedAt:           time.Now().UTC(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if db == nil {
		status.Healthy = false
		status.Issues = append(status.Issues, "database not initialized")
	} else if err := db.PingContext(pingCtx); err != nil {
		status.Healthy = false
		status.Issues = append(status.Issues, fmt.Sprintf("database unreachable: %v", err))
	} else {
		status.DatabaseReachable = true
	}

	if !narrativeConfigured {
		status.Issues = append(status.Issues, "narrative provider not configured; reports will have no narrative")
	}

	return status
}
