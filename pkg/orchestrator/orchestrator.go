// Package orchestrator drives one player's sync for one year: resolve the identity, list the
// remote matches, work out what is missing, fill the gaps through the batch scheduler and
// rebuild the yearly aggregate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/riftrewind/rewindx/pkg/aggregate"
	"github.com/riftrewind/rewindx/pkg/db"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
	"github.com/riftrewind/rewindx/pkg/gaps"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/metrics"
	"github.com/riftrewind/rewindx/pkg/riot"
	"github.com/riftrewind/rewindx/pkg/scheduler"
	"github.com/riftrewind/rewindx/pkg/utils"
	"go.uber.org/zap"
)

// Store is what a run needs from the record store.
type Store interface {
	db.SummonerStore
	db.GapStore
}

// Orchestrator is safe for concurrent use; runs for the same player and year are rejected
// while one is in flight.
type Orchestrator struct {
	Logger     *zap.Logger
	Store      Store
	API        riot.API
	Submitter  jobs.Submitter
	Scheduler  *scheduler.Scheduler
	Aggregator *aggregate.Aggregator
	Gaps       *gaps.Analyzer
	Progress   jobs.ProgressReporter

	DefaultYear int
	// MaxMatchIDs caps the ids listed per run; zero lists the whole year.
	MaxMatchIDs int

	active *xsync.Map[string, struct{}]
	now    func() time.Time
}

// Config holds the tunables read from the environment.
type Config struct {
	DefaultYear int
	MaxMatchIDs int
}

// ConfigFromEnv reads DEFAULT_MATCH_YEAR and SYNC_MAX_MATCH_IDS.
func ConfigFromEnv() Config {
	return Config{
		DefaultYear: utils.EnvInt("DEFAULT_MATCH_YEAR", 2025),
		MaxMatchIDs: utils.EnvInt("SYNC_MAX_MATCH_IDS", 100),
	}
}

// New wires an orchestrator. The gap analyzer is built over store.
func New(logger *zap.Logger, store Store, api riot.API, submitter jobs.Submitter, sched *scheduler.Scheduler, agg *aggregate.Aggregator, progress jobs.ProgressReporter, cfg Config) *Orchestrator {
	if progress == nil {
		progress = jobs.NopProgress{}
	}
	return &Orchestrator{
		Logger:      logger,
		Store:       store,
		API:         api,
		Submitter:   submitter,
		Scheduler:   sched,
		Aggregator:  agg,
		Gaps:        gaps.NewAnalyzer(store),
		Progress:    progress,
		DefaultYear: cfg.DefaultYear,
		MaxMatchIDs: cfg.MaxMatchIDs,
		active:      xsync.NewMap[string, struct{}](),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// run carries the state of one Run call.
type run struct {
	o      *Orchestrator
	req    Request
	jobID  string
	res    Result
	logger *zap.Logger
}

func (r *run) enter(ctx context.Context, s State, meta map[string]any) {
	r.res.State = s
	r.logger.Info("Sync state", zap.String("state", string(s)))
	p := jobs.Progress{
		State:     jobs.ProgressRunning,
		Step:      string(s),
		Percent:   percent[s],
		Meta:      meta,
		UpdatedAt: r.o.now(),
	}
	if s == StateDone {
		p.State = jobs.ProgressCompleted
	}
	r.publish(ctx, p)
}

func (r *run) publish(ctx context.Context, p jobs.Progress) {
	if r.jobID == "" {
		return
	}
	if err := r.o.Progress.ReportProgress(context.WithoutCancel(ctx), r.jobID, p); err != nil {
		r.logger.Warn("Progress update failed", zap.Error(err))
	}
}

func (r *run) fail(ctx context.Context, err error) (Result, error) {
	failedAt := r.res.State
	r.res.State = StateFailed
	r.res.Error = err.Error()
	r.logger.Error("Sync failed", zap.String("step", string(failedAt)), zap.Error(err))
	r.publish(ctx, jobs.Progress{
		State:     jobs.ProgressFailed,
		Step:      string(failedAt),
		Percent:   percent[failedAt],
		Meta:      map[string]any{"error": err.Error()},
		UpdatedAt: r.o.now(),
	})
	return r.res, fmt.Errorf("sync %s#%s %d: %s: %w", r.req.GameName, r.req.TagLine, r.res.Year, failedAt, err)
}

func (o *Orchestrator) normalize(req Request) Request {
	if req.Mode == "" {
		req.Mode = ModeFresh
	}
	if req.Year == 0 {
		req.Year = o.DefaultYear
	}
	req.Platform = strings.ToLower(req.Platform)
	if req.Routing == "" {
		req.Routing = riot.RoutingForPlatform(req.Platform)
	}
	return req
}

// Lookup resolves a riot id and stores the identity without syncing any match.
func (o *Orchestrator) Lookup(ctx context.Context, req Request) (*models.Summoner, error) {
	req = o.normalize(req)
	if req.GameName == "" || req.TagLine == "" {
		return nil, errors.New("game name and tag line are required")
	}
	return o.lookup(ctx, req, nil)
}

// lookup resolves and stores the identity. A non-nil requestedAt marks the player as having a
// sync requested, which makes it a candidate for automatic recovery even if the run never completes.
func (o *Orchestrator) lookup(ctx context.Context, req Request, requestedAt *time.Time) (*models.Summoner, error) {
	id, err := o.API.ResolveIdentity(ctx, req.Platform, req.Routing, req.GameName, req.TagLine)
	if err != nil {
		return nil, err
	}
	sum := &models.Summoner{
		PUUID:           id.PUUID,
		SummonerID:      id.SummonerID,
		AccountID:       id.AccountID,
		Name:            firstNonEmpty(id.GameName, req.GameName),
		TagLine:         firstNonEmpty(id.TagLine, req.TagLine),
		ProfileIconID:   id.ProfileIconID,
		Level:           id.SummonerLevel,
		Platform:        req.Platform,
		Routing:         req.Routing,
		SyncRequestedAt: requestedAt,
	}
	if sum.SummonerID == "" {
		sum.SummonerID = sum.PUUID
	}
	if _, err := o.Store.UpsertSummoner(ctx, sum); err != nil {
		return nil, fmt.Errorf("save summoner: %w", err)
	}
	return sum, nil
}

// Run executes the state machine. Only identity resolution, id listing, gap analysis and the
// final aggregate rebuild fail a run; individual job failures are tallied in the result.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	req = o.normalize(req)
	start := o.now()
	r := &run{
		o:     o,
		req:   req,
		jobID: jobs.JobIDFromContext(ctx),
		res:   Result{Mode: req.Mode, Year: req.Year, FailedIDs: make([]string, 0)},
		logger: o.Logger.With(
			zap.String("game_name", req.GameName),
			zap.String("tag_line", req.TagLine),
			zap.String("platform", req.Platform),
			zap.Int("year", req.Year),
			zap.String("mode", string(req.Mode)),
		),
	}

	key := fmt.Sprintf("%s#%s|%s|%d", strings.ToLower(req.GameName), strings.ToLower(req.TagLine), req.Platform, req.Year)
	if _, loaded := o.active.LoadOrStore(key, struct{}{}); loaded {
		return r.res, ErrAlreadyRunning
	}
	defer o.active.Delete(key)

	res, err := r.execute(ctx)
	res.Took = o.now().Sub(start)
	metrics.SyncRunsTotal.WithLabelValues(string(req.Mode), string(res.State)).Inc()
	return res, err
}

func (r *run) execute(ctx context.Context) (Result, error) {
	o, req := r.o, r.req

	// fetch_identity
	r.enter(ctx, StateFetchIdentity, nil)
	if req.GameName == "" || req.TagLine == "" {
		return r.fail(ctx, errors.New("game name and tag line are required"))
	}
	requested := o.now()
	sum, err := o.lookup(ctx, req, &requested)
	if err != nil {
		return r.fail(ctx, err)
	}
	r.res.Summoner = sum
	r.logger = r.logger.With(zap.String("puuid", sum.PUUID))

	// fetch_remote_ids
	r.enter(ctx, StateFetchRemoteIDs, map[string]any{"puuid": sum.PUUID})
	remote, err := o.API.ListMatchIDs(ctx, req.Routing, sum.PUUID, riot.YearWindow(req.Year), o.MaxMatchIDs)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("list matches: %w", err))
	}
	remote = utils.Dedup(remote)
	r.res.TotalRecords = len(remote)

	// analyze_gaps
	r.enter(ctx, StateAnalyzeGaps, map[string]any{"total_records": len(remote)})
	pending, subPending := remote, []string(nil)
	if req.Mode == ModeRecovery {
		g, err := o.Gaps.Analyze(ctx, remote)
		if err != nil {
			return r.fail(ctx, fmt.Errorf("analyze gaps: %w", err))
		}
		pending, subPending = g.MissingRecords, g.MissingSubRecords
		r.res.ExistingRecords = len(g.Present)
	} else if present, err := o.Store.ExistingMatchIDs(ctx, remote); err != nil {
		r.logger.Warn("Count stored matches failed", zap.Error(err))
	} else {
		r.res.ExistingRecords = len(present)
	}

	// dispatch_batches
	r.enter(ctx, StateDispatchBatches, map[string]any{
		"pending_records":     len(pending),
		"pending_sub_records": len(subPending),
	})
	matches, err := o.Scheduler.Run(ctx, pending, r.dispatchMatch(sum.PUUID))
	r.res.ProcessedRecords = matches.Succeeded
	r.res.FailedRecords = len(matches.Failed)
	r.res.FailedIDs = append(r.res.FailedIDs, matches.Failed...)
	if err != nil {
		return r.fail(ctx, err)
	}
	if len(subPending) > 0 {
		timelines, err := o.Scheduler.Run(ctx, subPending, r.dispatchTimeline())
		r.res.ProcessedSubRecords = timelines.Succeeded
		r.res.FailedSubRecords = len(timelines.Failed)
		r.res.FailedSubRecordIDs = timelines.Failed
		if err != nil {
			return r.fail(ctx, err)
		}
	}

	// await_results
	r.enter(ctx, StateAwaitResults, map[string]any{
		"processed_records":     r.res.ProcessedRecords,
		"failed_records":        r.res.FailedRecords,
		"processed_sub_records": r.res.ProcessedSubRecords,
		"failed_sub_records":    r.res.FailedSubRecords,
	})
	if r.res.FailedRecords > 0 || r.res.FailedSubRecords > 0 {
		r.logger.Warn("Some jobs failed",
			zap.Int("failed_records", r.res.FailedRecords),
			zap.Int("failed_sub_records", r.res.FailedSubRecords),
		)
	}

	// update_aggregates
	r.enter(ctx, StateUpdateAggregates, nil)
	stats, err := o.Aggregator.Recompute(ctx, models.YearlyStatsKey{SummonerID: sum.ID, Year: req.Year, Platform: req.Platform})
	if err != nil {
		return r.fail(ctx, err)
	}
	r.res.Stats = stats
	if err := o.Store.MarkSynced(ctx, sum.ID, o.now()); err != nil {
		r.logger.Warn("Mark synced failed", zap.Error(err))
	}

	r.enter(ctx, StateDone, map[string]any{
		"processed_records": r.res.ProcessedRecords,
		"failed_records":    r.res.FailedRecords,
		"total_matches":     stats.TotalMatches,
	})
	return r.res, nil
}

func (r *run) dispatchMatch(puuid string) scheduler.DispatchFunc {
	return func(ctx context.Context, id string) (jobs.Handle, error) {
		return r.o.Submitter.Submit(ctx, jobs.TypeProcessMatch, jobs.MatchJob{
			MatchID:  id,
			Platform: r.req.Platform,
			Routing:  r.req.Routing,
			PUUID:    puuid,
			Year:     r.req.Year,
		})
	}
}

func (r *run) dispatchTimeline() scheduler.DispatchFunc {
	return func(ctx context.Context, id string) (jobs.Handle, error) {
		return r.o.Submitter.Submit(ctx, jobs.TypeProcessTimeline, jobs.TimelineJob{
			MatchID:  id,
			Platform: r.req.Platform,
			Routing:  r.req.Routing,
		})
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
