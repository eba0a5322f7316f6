package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestCheck(t *testing.T) {
	tests := []struct {
		name        string
		db          Pinger
		narrative   bool
		wantHealthy bool
		wantIssues  int
	}{
		{name: "all good", db: fakePinger{}, narrative: true, wantHealthy: true, wantIssues: 0},
		{name: "no narrative", db: fakePinger{}, narrative: false, wantHealthy: true, wantIssues: 1},
		{name: "db down", db: fakePinger{err: errors.New("disk I/O error")}, narrative: true, wantHealthy: false, wantIssues: 1},
		{name: "no db", db: nil, narrative: false, wantHealthy: false, wantIssues: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := Check(context.Background(), tt.db, tt.narrative, "test")
			if status.Healthy != tt.wantHealthy {
				t.Errorf("Healthy = %v, want %v", status.Healthy, tt.wantHealthy)
			}
			if len(status.Issues) != tt.wantIssues {
				t.Errorf("Issues = %v, want %d", status.Issues, tt.wantIssues)
			}
			if status.Version != "test" || status.CheckedAt.IsZero() {
				t.Errorf("status metadata missing: %+v", status)
			}
		})
	}
}
