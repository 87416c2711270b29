package retention

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"radium-hq/toolgate/pkg/analytics"
	"radium-hq/toolgate/pkg/analytics/export"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to keep events.
	// 0 keeps events forever.
	RetentionDays int

	// PruneSchedule is a cron expression for scheduled pruning.
	// Empty disables the scheduler.
	PruneSchedule string

	// ArchiveBeforeDelete writes pruned events to ArchivePath as JSON.
	ArchiveBeforeDelete bool

	// ArchivePath is the directory for archives.
	ArchivePath string

	// MaxEvents caps the number of stored events. 0 means unlimited.
	MaxEvents int64
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 90,
		PruneSchedule: "0 3 * * *",
		ArchivePath:   "data/archives/",
	}
}

// Pruner enforces retention on an analytics store.
type Pruner struct {
	storage   analytics.Storage
	config    *Config
	logger    *slog.Logger
	scheduler *Scheduler
	now       func() time.Time
}

// NewPruner creates a new retention pruner.
func NewPruner(storage analytics.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	p := &Pruner{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "analytics.retention"),
		now:     time.Now,
	}
	p.scheduler = NewScheduler(p)

	return p
}

// Prune deletes events older than the retention period, then the oldest
// events beyond MaxEvents. It returns the total number deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by age failed: %w", err)
		}
		total += deleted
	}

	if p.config.MaxEvents > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return total, fmt.Errorf("prune by count failed: %w", err)
		}
		total += deleted
	}

	if total > 0 {
		p.logger.Info("analytics pruning completed",
			"total_deleted", total,
			"retention_days", p.config.RetentionDays,
			"max_events", p.config.MaxEvents,
		)
	}

	return total, nil
}

func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
	query := &analytics.Query{EndTime: &cutoff}

	if p.config.ArchiveBeforeDelete {
		events, err := p.storage.Query(ctx, query)
		if err != nil {
			return 0, analytics.NewRetentionError(p.config.RetentionDays, err)
		}
		if err := p.archive(ctx, events, "age"); err != nil {
			return 0, analytics.NewRetentionError(p.config.RetentionDays, err)
		}
	}

	deleted, err := p.storage.Delete(ctx, query)
	if err != nil {
		return 0, analytics.NewRetentionError(p.config.RetentionDays, err)
	}
	return deleted, nil
}

func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &analytics.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	if count <= p.config.MaxEvents {
		return 0, nil
	}

	excess := int(count - p.config.MaxEvents)
	oldest, err := p.storage.Query(ctx, &analytics.Query{SortOrder: "asc", Limit: excess})
	if err != nil {
		return 0, fmt.Errorf("failed to query events: %w", err)
	}
	if len(oldest) == 0 {
		return 0, nil
	}

	if p.config.ArchiveBeforeDelete {
		if err := p.archive(ctx, oldest, "count"); err != nil {
			return 0, fmt.Errorf("archive failed: %w", err)
		}
	}

	// Events sharing the cutoff timestamp are removed together.
	cutoff := oldest[len(oldest)-1].Timestamp
	deleted, err := p.storage.Delete(ctx, &analytics.Query{EndTime: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	return deleted, nil
}

func (p *Pruner) archive(ctx context.Context, events []*analytics.Event, kind string) error {
	if len(events) == 0 {
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := filepath.Join(p.config.ArchivePath,
		fmt.Sprintf("policy-events-%s-%s.json", kind, p.now().UTC().Format("2006-01-02-150405")))
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(true).Export(ctx, events, f); err != nil {
		return err
	}

	p.logger.Info("analytics events archived", "archive_file", name, "event_count", len(events))
	return nil
}

// Start starts the pruning scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the pruning scheduler.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the time of the next scheduled run, or nil.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
