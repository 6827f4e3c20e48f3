package processor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/riftrewind/rewindx/pkg/aggregate"
	"github.com/riftrewind/rewindx/pkg/db/memory"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/retry"
	"github.com/riftrewind/rewindx/pkg/riot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeAPI struct {
	mu            sync.Mutex
	matches       map[string]*riot.Match
	matchErr      error
	timelineCalls int
}

func (f *fakeAPI) ResolveIdentity(context.Context, string, string, string, string) (*riot.Identity, error) {
	return nil, errors.New("not used")
}

func (f *fakeAPI) ListMatchIDs(context.Context, string, string, riot.Window, int) ([]string, error) {
	return nil, errors.New("not used")
}

func (f *fakeAPI) GetMatch(_ context.Context, _ string, id string) (*riot.Match, error) {
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	m, ok := f.matches[id]
	if !ok {
		return nil, &riot.APIError{Endpoint: "match-v5", Status: 404}
	}
	return m, nil
}

func (f *fakeAPI) GetTimeline(_ context.Context, _ string, id string) (*riot.Timeline, error) {
	f.mu.Lock()
	f.timelineCalls++
	f.mu.Unlock()
	t := &riot.Timeline{Raw: json.RawMessage(`{"info":{"frameInterval":60000}}`)}
	t.Metadata.MatchID = id
	t.Info.FrameInterval = 60000
	return t, nil
}

type submitted struct {
	t       jobs.Type
	payload any
}

type fakeSubmitter struct {
	mu   sync.Mutex
	jobs []submitted
	err  error
}

type doneHandle struct{ id string }

func (h doneHandle) ID() string { return h.id }
func (h doneHandle) Await(context.Context, time.Duration) (jobs.Result, error) {
	return jobs.Result{Success: true}, nil
}

func (s *fakeSubmitter) Submit(_ context.Context, t jobs.Type, payload any) (jobs.Handle, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, submitted{t: t, payload: payload})
	return doneHandle{id: jobs.NewJobID(t, payload)}, nil
}

func sampleMatch(id string) *riot.Match {
	m := &riot.Match{Raw: json.RawMessage(`{"metadata":{"matchId":"` + id + `"}}`)}
	m.Metadata.MatchID = id
	m.Info.GameCreation = time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC).UnixMilli()
	m.Info.GameDuration = 1800
	m.Info.QueueID = 420
	m.Info.PlatformID = "EUW1"
	m.Info.Participants = []riot.Participant{
		{PUUID: "p-zed", RiotIDGameName: "Other", RiotIDTagline: "EUW", ChampionName: "Zed", Kills: 2, Deaths: 5, Assists: 1},
		{PUUID: "p-me", RiotIDGameName: "Me", RiotIDTagline: "EUW", ChampionName: "Ahri", Role: "SOLO", Lane: "MIDDLE", Kills: 7, Deaths: 2, Assists: 8, Win: true, GoldEarned: 12000, TotalMinionsKilled: 200, Item0: 3089,
			Perks: riot.Perks{Styles: []riot.PerkStyle{{Description: "primaryStyle", Style: 8100}, {Description: "subStyle", Style: 8300}}}},
	}
	return m
}

type harness struct {
	store *memory.Store
	api   *fakeAPI
	subs  *fakeSubmitter
	mp    *MatchProcessor
	tp    *TimelineProcessor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.New()
	api := &fakeAPI{matches: map[string]*riot.Match{"EUW1_1": sampleMatch("EUW1_1")}}
	subs := &fakeSubmitter{}
	logger := zaptest.NewLogger(t)
	return &harness{
		store: store,
		api:   api,
		subs:  subs,
		mp: &MatchProcessor{
			Logger:     logger,
			Store:      store,
			API:        api,
			Aggregator: aggregate.New(store, logger),
			Submitter:  subs,
		},
		tp: &TimelineProcessor{Logger: logger, Store: store, API: api},
	}
}

func (h *harness) stats(t *testing.T, puuid string) *models.YearlyStats {
	t.Helper()
	sum, err := h.store.GetSummonerByPUUID(context.Background(), puuid)
	require.NoError(t, err)
	s, err := h.store.GetYearlyStats(context.Background(), models.YearlyStatsKey{SummonerID: sum.ID, Year: 2025, Platform: "euw1"})
	require.NoError(t, err)
	return s
}

var meJob = jobs.MatchJob{MatchID: "EUW1_1", Platform: "euw1", Routing: "europe", PUUID: "p-me", Year: 2025}

func TestProcessMatchCommitsEverything(t *testing.T) {
	h := newHarness(t)

	res, err := h.mp.Process(context.Background(), meJob)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Created)
	assert.Equal(t, 2, res.ParticipantCount)
	assert.Equal(t, 2, res.NewParticipants)
	assert.True(t, res.TimelineEnqueued)

	summoners, matches, participants, timelines := h.store.Counts()
	assert.Equal(t, 2, summoners)
	assert.Equal(t, 1, matches)
	assert.Equal(t, 2, participants)
	assert.Equal(t, 0, timelines)

	m, err := h.store.GetMatch(context.Background(), "EUW1_1")
	require.NoError(t, err)
	require.NotNil(t, m.GameCreation)
	assert.Equal(t, 2025, m.GameCreation.Year())

	placeholder, err := h.store.GetSummonerByPUUID(context.Background(), "p-zed")
	require.NoError(t, err)
	assert.Equal(t, "Other", placeholder.Name)

	s := h.stats(t, "p-me")
	assert.EqualValues(t, 1, s.TotalMatches)
	assert.EqualValues(t, 1, s.Wins)
	assert.Equal(t, 1, s.UniqueChampionsPlayed)
	assert.Equal(t, "Ahri", s.MostPlayedChampion)
	assert.InDelta(t, 7.5, s.KDARatio, 1e-9)

	require.Len(t, h.subs.jobs, 1)
	assert.Equal(t, jobs.TypeProcessTimeline, h.subs.jobs[0].t)
	assert.Equal(t, jobs.TimelineJob{MatchID: "EUW1_1", Platform: "euw1", Routing: "europe"}, h.subs.jobs[0].payload)
}

func TestProcessMatchIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.mp.Process(ctx, meJob)
	require.NoError(t, err)
	before := *h.stats(t, "p-me")

	res, err := h.mp.Process(ctx, meJob)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Created)
	assert.Zero(t, res.NewParticipants)

	_, matches, participants, _ := h.store.Counts()
	assert.Equal(t, 1, matches)
	assert.Equal(t, 2, participants)

	after := h.stats(t, "p-me")
	assert.Equal(t, before.TotalMatches, after.TotalMatches)
	assert.Equal(t, before.TotalKills, after.TotalKills)
}

func TestProcessMatchFetchFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.api.matchErr = &riot.APIError{Endpoint: "match-v5", Status: 503}

	_, err := h.mp.Process(context.Background(), meJob)
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))

	summoners, matches, participants, _ := h.store.Counts()
	assert.Zero(t, summoners+matches+participants)
	assert.Empty(t, h.subs.jobs)
}

func TestProcessMatchUnknownIsPermanent(t *testing.T) {
	h := newHarness(t)
	job := meJob
	job.MatchID = "EUW1_404"

	_, err := h.mp.Process(context.Background(), job)
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.ErrorIs(t, err, riot.ErrNotFound)
}

func TestProcessMatchCountsOnlyStoredParticipants(t *testing.T) {
	h := newHarness(t)
	m := sampleMatch("EUW1_2")
	m.Info.Participants = append(m.Info.Participants, riot.Participant{ChampionName: "Annie"})
	h.api.matches["EUW1_2"] = m
	job := meJob
	job.MatchID = "EUW1_2"

	res, err := h.mp.Process(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ParticipantCount)
	assert.Equal(t, 2, res.NewParticipants)

	_, _, participants, _ := h.store.Counts()
	assert.Equal(t, 2, participants)
}

func TestProcessMatchWithoutCreationTimeSkipsAggregates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := sampleMatch("EUW1_3")
	m.Info.GameCreation = 0
	h.api.matches["EUW1_3"] = m
	job := meJob
	job.MatchID = "EUW1_3"

	res, err := h.mp.Process(ctx, job)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 2, res.NewParticipants)

	sum, err := h.store.GetSummonerByPUUID(ctx, "p-me")
	require.NoError(t, err)
	incremental, err := h.store.ListYearlyStats(ctx, sum.ID)
	require.NoError(t, err)
	assert.Empty(t, incremental)

	// a rebuild finds nothing to aggregate either
	summary, err := h.mp.Aggregator.RecomputeAll(ctx, 2025, "euw1")
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}

type failingStats struct {
	*memory.Store
}

func (failingStats) SaveYearlyStats(context.Context, *models.YearlyStats) error {
	return errors.New("disk full")
}

func TestProcessMatchRollsBackWhenAggregationFails(t *testing.T) {
	h := newHarness(t)
	h.mp.Aggregator = aggregate.New(failingStats{h.store}, zaptest.NewLogger(t))

	_, err := h.mp.Process(context.Background(), meJob)
	require.Error(t, err)

	summoners, matches, participants, _ := h.store.Counts()
	assert.Zero(t, summoners)
	assert.Zero(t, matches)
	assert.Zero(t, participants)
	assert.Empty(t, h.subs.jobs)
}

func TestProcessMatchSkipsTimelineForOtherPlayers(t *testing.T) {
	h := newHarness(t)
	job := meJob
	job.PUUID = "p-somebody-else"

	res, err := h.mp.Process(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, res.TimelineEnqueued)
	assert.Empty(t, h.subs.jobs)
}

func TestProcessMatchSubmitFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.subs.err = errors.New("queue down")

	res, err := h.mp.Process(context.Background(), meJob)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.TimelineEnqueued)
}

func TestTimelineRequiresStoredMatch(t *testing.T) {
	h := newHarness(t)

	_, err := h.tp.Process(context.Background(), jobs.TimelineJob{MatchID: "EUW1_1", Routing: "europe"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.True(t, retry.IsPermanent(err))
	assert.Zero(t, h.api.timelineCalls)
}

func TestTimelineCreatedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.mp.Process(ctx, meJob)
	require.NoError(t, err)

	res, err := h.tp.Process(ctx, jobs.TimelineJob{MatchID: "EUW1_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, res.Status)

	res, err = h.tp.Process(ctx, jobs.TimelineJob{MatchID: "EUW1_1"})
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyExists, res.Status)
	assert.Equal(t, 1, h.api.timelineCalls)

	_, _, _, timelines := h.store.Counts()
	assert.Equal(t, 1, timelines)
}

func TestTimelineConcurrentCreatorsConverge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.mp.Process(ctx, meJob)
	require.NoError(t, err)

	var wg sync.WaitGroup
	statuses := make([]TimelineStatus, 8)
	for i := range statuses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.tp.Process(ctx, jobs.TimelineJob{MatchID: "EUW1_1"})
			assert.NoError(t, err)
			statuses[i] = res.Status
		}()
	}
	wg.Wait()

	created := 0
	for _, s := range statuses {
		if s == StatusCreated {
			created++
		}
	}
	assert.Equal(t, 1, created)
	_, _, _, timelines := h.store.Counts()
	assert.Equal(t, 1, timelines)
}
