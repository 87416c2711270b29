package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"radium-hq/toolgate/pkg/analytics"
	"radium-hq/toolgate/pkg/analytics/storage"
)

var now = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s analytics.Storage, ages ...time.Duration) {
	t.Helper()
	for i, age := range ages {
		err := s.Store(context.Background(), &analytics.Event{
			ID:        fmt.Sprintf("e%d", i),
			Timestamp: now.Add(-age),
			ToolName:  "read_file",
			Action:    "allow",
		})
		if err != nil {
			t.Fatalf("Store() failed: %v", err)
		}
	}
}

func newPruner(s analytics.Storage, cfg *Config) *Pruner {
	p := NewPruner(s, cfg)
	p.now = func() time.Time { return now }
	return p
}

func TestPruner_Prune(t *testing.T) {
	day := 24 * time.Hour

	tests := []struct {
		name        string
		config      Config
		ages        []time.Duration
		wantDeleted int64
		wantLeft    int
	}{
		{
			name:        "age only",
			config:      Config{RetentionDays: 30},
			ages:        []time.Duration{day, 10 * day, 31 * day, 90 * day},
			wantDeleted: 2,
			wantLeft:    2,
		},
		{
			name:        "count only",
			config:      Config{MaxEvents: 2},
			ages:        []time.Duration{day, 2 * day, 3 * day, 4 * day, 5 * day},
			wantDeleted: 3,
			wantLeft:    2,
		},
		{
			name:        "age then count",
			config:      Config{RetentionDays: 7, MaxEvents: 1},
			ages:        []time.Duration{day, 2 * day, 8 * day},
			wantDeleted: 2,
			wantLeft:    1,
		},
		{
			name:        "keep forever",
			config:      Config{},
			ages:        []time.Duration{day, 400 * day},
			wantDeleted: 0,
			wantLeft:    2,
		},
		{
			name:        "under limit",
			config:      Config{MaxEvents: 10},
			ages:        []time.Duration{day},
			wantDeleted: 0,
			wantLeft:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := storage.NewMemoryStorage()
			seed(t, s, tt.ages...)

			cfg := tt.config
			deleted, err := newPruner(s, &cfg).Prune(context.Background())
			if err != nil {
				t.Fatalf("Prune() failed: %v", err)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("Prune() deleted %d, want %d", deleted, tt.wantDeleted)
			}
			if s.Size() != tt.wantLeft {
				t.Errorf("%d events left, want %d", s.Size(), tt.wantLeft)
			}
		})
	}
}

func TestPruner_CountKeepsNewest(t *testing.T) {
	s := storage.NewMemoryStorage()
	seed(t, s, time.Hour, 3*time.Hour, 2*time.Hour)

	if _, err := newPruner(s, &Config{MaxEvents: 1}).Prune(context.Background()); err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	left, _ := s.Query(context.Background(), &analytics.Query{})
	if len(left) != 1 || left[0].ID != "e0" {
		t.Errorf("expected newest event e0 to survive, got %+v", left)
	}
}

func TestPruner_Archive(t *testing.T) {
	dir := t.TempDir()
	s := storage.NewMemoryStorage()
	seed(t, s, time.Hour, 100*24*time.Hour)

	p := newPruner(s, &Config{RetentionDays: 30, ArchiveBeforeDelete: true, ArchivePath: dir})
	deleted, err := p.Prune(context.Background())
	if err != nil || deleted != 1 {
		t.Fatalf("Prune() = %d, %v", deleted, err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "policy-events-age-*.json"))
	if len(matches) != 1 {
		t.Fatalf("expected one archive file, got %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 || data[0] != '[' {
		t.Errorf("archive is not a JSON array: %s", data)
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{name: "valid daily schedule", schedule: "0 3 * * *", wantRunning: true},
		{name: "valid hourly schedule", schedule: "0 * * * *", wantRunning: true},
		{name: "empty schedule", schedule: "", wantRunning: false},
		{name: "invalid schedule", schedule: "invalid cron", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: tt.schedule, RetentionDays: 90})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := p.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if p.scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", p.scheduler.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning && p.NextPruning() == nil {
				t.Error("NextPruning() returned nil for running scheduler")
			}

			p.Stop()
			if p.scheduler.IsRunning() {
				t.Error("scheduler still running after Stop()")
			}
		})
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	p := NewPruner(storage.NewMemoryStorage(), &Config{PruneSchedule: "@every 1h"})

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for p.scheduler.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.scheduler.IsRunning() {
		t.Error("scheduler did not stop after context cancellation")
	}
}

func TestValidateSchedule(t *testing.T) {
	if err := ValidateSchedule("0 3 * * *"); err != nil {
		t.Errorf("ValidateSchedule() = %v", err)
	}
	if err := ValidateSchedule("61 * * * *"); err == nil {
		t.Error("expected error for out-of-range minute")
	}
}
