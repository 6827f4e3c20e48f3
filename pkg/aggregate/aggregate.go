// Package aggregate maintains the per player, year and platform statistics, incrementally
// from one new participant row or wholesale from every stored row.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/riftrewind/rewindx/pkg/db"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
	"github.com/riftrewind/rewindx/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Store is what the aggregator needs from the record store.
type Store interface {
	db.TxRunner
	db.StatsStore
}

// Aggregator updates yearly statistics.
type Aggregator struct {
	store  Store
	logger *zap.Logger
	// Parallelism bounds RecomputeAll.
	Parallelism int
}

// New returns an Aggregator over store.
func New(store Store, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger, Parallelism: 4}
}

// KeyFor returns the aggregate key a participant of match contributes to. ok is false when the
// match has no creation time, since such rows never fall inside a year.
func KeyFor(p *models.Participant, match *models.Match) (key models.YearlyStatsKey, ok bool) {
	year, ok := match.Year()
	if !ok {
		return models.YearlyStatsKey{}, false
	}
	return models.YearlyStatsKey{SummonerID: p.SummonerID, Year: year, Platform: match.Platform}, true
}

// Increment adds one newly stored participant row to its aggregate. It joins the caller's
// transaction when there is one; the aggregate row stays locked until that transaction ends.
// The distinct champion, role and lane counters consult the other stored rows of the same key and
// are only exact when increments for one player are serialized; Recompute corrects them.
// Matches without a creation time are skipped and (nil, nil) is returned.
func (a *Aggregator) Increment(ctx context.Context, p *models.Participant, match *models.Match) (*models.YearlyStats, error) {
	key, ok := KeyFor(p, match)
	if !ok {
		a.logger.Debug("Skipping aggregate for match without creation time", zap.String("match_id", match.MatchID))
		return nil, nil
	}
	var out *models.YearlyStats
	err := a.store.WithinTx(ctx, func(ctx context.Context) error {
		s, err := a.store.LockYearlyStats(ctx, key)
		if err != nil {
			return err
		}

		addCounters(s, p)

		diversity := []struct {
			field   db.DiversityField
			value   string
			counter *int
		}{
			{db.DiversityChampion, p.ChampionName, &s.UniqueChampionsPlayed},
			{db.DiversityRole, p.Role, &s.UniqueRolesPlayed},
			{db.DiversityLane, p.Lane, &s.UniqueLanesPlayed},
		}
		for _, d := range diversity {
			if d.value == "" {
				continue
			}
			played, err := a.store.HasPlayedBefore(ctx, key, d.field, d.value, p.ID)
			if err != nil {
				return err
			}
			if !played {
				*d.counter++
			}
		}

		if p.ChampionName != "" {
			n, err := a.store.ChampionPlayCount(ctx, key, p.ChampionName)
			if err != nil {
				return err
			}
			switch {
			case n > s.MostPlayedChampionCount:
				s.MostPlayedChampion, s.MostPlayedChampionCount = p.ChampionName, n
			case p.ChampionName == s.MostPlayedChampion:
				s.MostPlayedChampionCount = n
			case n == s.MostPlayedChampionCount:
				// ties go to the champion played first, as in Compute
				first, err := a.playedFirst(ctx, key, p.ChampionName, s.MostPlayedChampion)
				if err != nil {
					return err
				}
				if first {
					s.MostPlayedChampion = p.ChampionName
				}
			}
		}

		Derive(s)
		if err := a.store.SaveYearlyStats(ctx, s); err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("increment yearly stats %+v: %w", key, err)
	}
	metrics.AggregateUpdatesTotal.WithLabelValues("increment").Inc()
	return out, nil
}

// playedFirst reports whether champion's first game under key comes before leader's.
func (a *Aggregator) playedFirst(ctx context.Context, key models.YearlyStatsKey, champion, leader string) (bool, error) {
	at, id, err := a.store.FirstPlayed(ctx, key, champion)
	if err != nil {
		return false, err
	}
	leaderAt, leaderID, err := a.store.FirstPlayed(ctx, key, leader)
	if errors.Is(err, db.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if !at.Equal(leaderAt) {
		return at.Before(leaderAt), nil
	}
	return id < leaderID, nil
}

// Recompute rebuilds the aggregate for key from every stored participant row and overwrites it.
func (a *Aggregator) Recompute(ctx context.Context, key models.YearlyStatsKey) (*models.YearlyStats, error) {
	var out models.YearlyStats
	err := a.store.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := a.store.LockYearlyStats(ctx, key); err != nil {
			return err
		}
		rows, err := a.store.ParticipantsForYear(ctx, key)
		if err != nil {
			return err
		}
		out = Compute(key, rows)
		return a.store.SaveYearlyStats(ctx, &out)
	})
	if err != nil {
		return nil, fmt.Errorf("recompute yearly stats %+v: %w", key, err)
	}
	metrics.AggregateUpdatesTotal.WithLabelValues("recompute").Inc()
	a.logger.Debug("Recomputed yearly stats",
		zap.Int64("summoner_id", key.SummonerID),
		zap.Int("year", key.Year),
		zap.String("platform", key.Platform),
		zap.Int64("matches", out.TotalMatches),
	)
	return &out, nil
}

// RecomputeSummary reports a bulk recomputation.
type RecomputeSummary struct {
	Updated int           `json:"updated"`
	Errors  int           `json:"errors"`
	Total   int           `json:"total"`
	Took    time.Duration `json:"took"`
}

// RecomputeAll recomputes every aggregate of year, optionally limited to one platform.
// Failures are counted and logged; they do not stop the others.
func (a *Aggregator) RecomputeAll(ctx context.Context, year int, platform string) (RecomputeSummary, error) {
	start := time.Now()
	targets, err := a.store.StatsTargets(ctx, platform)
	if err != nil {
		return RecomputeSummary{}, err
	}

	var updated, failed atomic.Int64
	total := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.Parallelism, 1))
	for _, key := range targets {
		if key.Year != year {
			continue
		}
		total++
		g.Go(func() error {
			if _, err := a.Recompute(gctx, key); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				a.logger.Error("Recompute failed", zap.Int64("summoner_id", key.SummonerID), zap.Error(err))
				return nil
			}
			updated.Add(1)
			return nil
		})
	}
	err = g.Wait()

	summary := RecomputeSummary{
		Updated: int(updated.Load()),
		Errors:  int(failed.Load()),
		Total:   total,
		Took:    time.Since(start),
	}
	a.logger.Info("Recomputed yearly stats",
		zap.Int("year", year),
		zap.String("platform", platform),
		zap.Int("updated", summary.Updated),
		zap.Int("errors", summary.Errors),
		zap.Int("total", summary.Total),
	)
	return summary, err
}
