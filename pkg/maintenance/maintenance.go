// Package maintenance holds the periodic upkeep jobs: retention cleanup, health checks, bulk
// aggregate rebuilds and the automatic recovery of tracked players.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riftrewind/rewindx/pkg/aggregate"
	"github.com/riftrewind/rewindx/pkg/db"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/retry"
	"go.uber.org/zap"
)

// DefaultRetentionDays applies when a cleanup job does not set one.
const DefaultRetentionDays = 30

// Store is what maintenance needs from the record store.
type Store interface {
	db.SummonerStore
	db.MaintenanceStore
}

type Service struct {
	Logger     *zap.Logger
	Store      Store
	Aggregator *aggregate.Aggregator
	Submitter  jobs.Submitter
	// Checks are probed by Health next to the store. Failing checks downgrade the report to warning.
	Checks      map[string]Check
	DefaultYear int

	now func() time.Time
}

func New(logger *zap.Logger, store Store, agg *aggregate.Aggregator, submitter jobs.Submitter, defaultYear int) *Service {
	return &Service{
		Logger:      logger,
		Store:       store,
		Aggregator:  agg,
		Submitter:   submitter,
		Checks:      map[string]Check{},
		DefaultYear: defaultYear,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register binds the maintenance job types.
func (s *Service) Register(reg *jobs.Registry) error {
	return errors.Join(
		reg.Register(jobs.TypeCleanup, jobs.Typed(s.Cleanup)),
		reg.Register(jobs.TypeHealthCheck, jobs.Typed(s.Health)),
		reg.Register(jobs.TypeRecomputeStats, jobs.Typed(s.Recompute)),
	)
}

type CleanupResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

// Cleanup deletes matches stored before now - RetentionDays. Participants and timelines go with them.
func (s *Service) Cleanup(ctx context.Context, in jobs.CleanupJob) (CleanupResult, error) {
	days := in.RetentionDays
	if days == 0 {
		days = DefaultRetentionDays
	}
	if days < 0 {
		return CleanupResult{}, retry.Permanent(fmt.Errorf("retention days must be positive, got %d", days))
	}
	cutoff := s.now().AddDate(0, 0, -days)
	n, err := s.Store.DeleteMatchesCreatedBefore(ctx, cutoff)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("cleanup before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	s.Logger.Info("Cleanup finished", zap.Time("cutoff", cutoff), zap.Int64("deleted", n))
	return CleanupResult{Cutoff: cutoff, Deleted: n}, nil
}

// Recompute rebuilds every aggregate of the job's year.
func (s *Service) Recompute(ctx context.Context, in jobs.RecomputeJob) (aggregate.RecomputeSummary, error) {
	year := in.Year
	if year == 0 {
		year = s.DefaultYear
	}
	if err := ValidateYear(year); err != nil {
		return aggregate.RecomputeSummary{}, retry.Permanent(err)
	}
	return s.Aggregator.RecomputeAll(ctx, year, in.Platform)
}

// ValidateYear accepts the years the sync supports.
func ValidateYear(year int) error {
	if year < 2020 || year > 2030 {
		return fmt.Errorf("year must be between 2020 and 2030, got %d", year)
	}
	return nil
}

type RetrySummary struct {
	Year      int `json:"year"`
	Tracked   int `json:"tracked"`
	Submitted int `json:"submitted"`
	Errors    int `json:"errors"`
}

// RetryIncomplete submits a recovery job for every tracked player. Jobs are not awaited.
func (s *Service) RetryIncomplete(ctx context.Context, year int) (RetrySummary, error) {
	if year == 0 {
		year = s.DefaultYear
	}
	summary := RetrySummary{Year: year}
	players, err := s.Store.ListTrackedSummoners(ctx)
	if err != nil {
		return summary, err
	}
	for _, p := range players {
		if !p.Tracked() {
			continue
		}
		summary.Tracked++
		_, err := s.Submitter.Submit(ctx, jobs.TypeRecovery, jobs.PlayerJob{
			GameName: p.Name,
			TagLine:  p.TagLine,
			Platform: p.Platform,
			Routing:  p.Routing,
			Year:     year,
		})
		if err != nil {
			summary.Errors++
			s.Logger.Warn("Recovery submit failed", zap.String("riot_id", p.RiotID()), zap.Error(err))
			continue
		}
		summary.Submitted++
	}
	s.Logger.Info("Submitted recovery for tracked players",
		zap.Int("year", year),
		zap.Int("tracked", summary.Tracked),
		zap.Int("submitted", summary.Submitted),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}
