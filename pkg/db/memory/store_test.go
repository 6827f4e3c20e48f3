package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/riftrewind/rewindx/pkg/db"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(year int, day int) *time.Time {
	t := time.Date(year, time.March, day, 12, 0, 0, 0, time.UTC)
	return &t
}

func seedMatch(t *testing.T, s *Store, matchID string, created *time.Time, players ...*models.Participant) {
	t.Helper()
	ctx := context.Background()
	_, err := s.UpsertMatch(ctx, &models.Match{MatchID: matchID, GameCreation: created, Platform: "na1", Routing: "americas"})
	require.NoError(t, err)
	for _, p := range players {
		p.MatchID = matchID
		sum := models.NewPlaceholderSummoner(p.PUUID, "", "", "na1", "americas")
		_, err := s.EnsureSummoner(ctx, sum)
		require.NoError(t, err)
		p.SummonerID = sum.ID
		_, err = s.UpsertParticipant(ctx, p)
		require.NoError(t, err)
	}
}

func TestUpsertReportsCreatedOnce(t *testing.T) {
	ctx := context.Background()
	s := New()

	sum := &models.Summoner{PUUID: "p1", Name: "Faker", TagLine: "KR1", Platform: "kr", Routing: "asia"}
	created, err := s.UpsertSummoner(ctx, sum)
	require.NoError(t, err)
	assert.True(t, created)
	id := sum.ID

	again := &models.Summoner{PUUID: "p1", Name: "Faker", TagLine: "T1", Platform: "kr", Routing: "asia"}
	created, err = s.UpsertSummoner(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again.ID)

	placeholder := models.NewPlaceholderSummoner("p1", "", "", "kr", "asia")
	created, err = s.EnsureSummoner(ctx, placeholder)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, placeholder.ID)

	got, err := s.GetSummonerByPUUID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "T1", got.TagLine, "ensure must not overwrite a resolved identity")

	seedMatch(t, s, "NA1_1", ts(2025, 1), &models.Participant{PUUID: "p1"})
	created, err = s.UpsertParticipant(ctx, &models.Participant{MatchID: "NA1_1", PUUID: "p1", SummonerID: id, Kills: 3})
	require.NoError(t, err)
	assert.False(t, created)

	_, _, participants, _ := s.Counts()
	assert.Equal(t, 1, participants)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.UpsertMatch(ctx, &models.Match{MatchID: "NA1_1", Platform: "na1"})
		require.NoError(t, err)
		// nested scopes join the outer one
		return s.WithinTx(ctx, func(ctx context.Context) error { return boom })
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetMatch(ctx, "NA1_1")
	require.ErrorIs(t, err, db.ErrNotFound)
}

func TestRollbackKeepsWritesMadeOutsideTheTx(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedMatch(t, s, "M1", ts(2025, 1))
	boom := errors.New("boom")

	inTx := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- s.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := s.UpsertMatch(ctx, &models.Match{MatchID: "M2", Platform: "na1"}); err != nil {
				return err
			}
			close(inTx)
			<-release
			return boom
		})
	}()

	<-inTx
	ok, err := s.InsertTimeline(ctx, &models.Timeline{MatchID: "M1"})
	require.NoError(t, err)
	assert.True(t, ok)
	sum := &models.Summoner{PUUID: "p1", Name: "Faker", TagLine: "KR1", Platform: "kr"}
	_, err = s.UpsertSummoner(ctx, sum)
	require.NoError(t, err)
	close(release)
	require.ErrorIs(t, <-done, boom)

	has, err := s.HasTimeline(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, has)
	_, err = s.GetSummonerByPUUID(ctx, "p1")
	assert.NoError(t, err)
	_, err = s.GetMatch(ctx, "M2")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestRollbackRestoresOverwrittenRows(t *testing.T) {
	ctx := context.Background()
	s := New()
	p1 := &models.Participant{PUUID: "p1", Kills: 2}
	seedMatch(t, s, "M1", ts(2025, 1), p1)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.UpsertParticipant(ctx, &models.Participant{MatchID: "M1", PUUID: "p1", SummonerID: p1.SummonerID, Kills: 9})
		require.NoError(t, err)
		_, err = s.DeleteMatchesCreatedBefore(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, matches, participants, _ := s.Counts()
	assert.Equal(t, 1, matches)
	assert.Equal(t, 1, participants)
	rows, err := s.ParticipantsForYear(ctx, models.YearlyStatsKey{SummonerID: p1.SummonerID, Year: 2025, Platform: "na1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Kills)
}

func TestGapQueries(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedMatch(t, s, "M1", ts(2025, 1))
	seedMatch(t, s, "M2", ts(2025, 2))
	ok, err := s.InsertTimeline(ctx, &models.Timeline{MatchID: "M1", FrameInterval: 60000})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.InsertTimeline(ctx, &models.Timeline{MatchID: "M1"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.InsertTimeline(ctx, &models.Timeline{MatchID: "M9"})
	require.Error(t, err)

	present, err := s.ExistingMatchIDs(ctx, []string{"M1", "M2", "M3"})
	require.NoError(t, err)
	assert.Len(t, present, 2)
	assert.Contains(t, present, "M2")

	withTimeline, err := s.ExistingTimelineMatchIDs(ctx, []string{"M1", "M2", "M3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"M1": {}}, withTimeline)
}

func TestDiversityQueriesAreScopedToYearAndPlatform(t *testing.T) {
	ctx := context.Background()
	s := New()
	ahri := &models.Participant{PUUID: "p1", ChampionName: "Ahri", Role: "SOLO", Lane: "MIDDLE"}
	seedMatch(t, s, "M1", ts(2024, 1), ahri)
	lux := &models.Participant{PUUID: "p1", ChampionName: "Lux", Role: "SOLO", Lane: "MIDDLE"}
	seedMatch(t, s, "M2", ts(2025, 1), lux)
	ahri25 := &models.Participant{PUUID: "p1", ChampionName: "Ahri", Role: "SOLO", Lane: "MIDDLE"}
	seedMatch(t, s, "M3", ts(2025, 2), ahri25)

	key := models.YearlyStatsKey{SummonerID: lux.SummonerID, Year: 2025, Platform: "na1"}

	played, err := s.HasPlayedBefore(ctx, key, db.DiversityChampion, "Ahri", ahri25.ID)
	require.NoError(t, err)
	assert.False(t, played, "the 2024 game is outside the key")

	played, err = s.HasPlayedBefore(ctx, key, db.DiversityLane, "MIDDLE", ahri25.ID)
	require.NoError(t, err)
	assert.True(t, played)

	n, err := s.ChampionPlayCount(ctx, key, "Ahri")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := s.ParticipantsForYear(ctx, key)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "M2", rows[0].MatchID)

	targets, err := s.StatsTargets(ctx, "")
	require.NoError(t, err)
	assert.Len(t, targets, 2)
}

func TestDeleteMatchesCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedMatch(t, s, "M1", ts(2025, 1), &models.Participant{PUUID: "p1"})
	_, err := s.InsertTimeline(ctx, &models.Timeline{MatchID: "M1"})
	require.NoError(t, err)

	n, err := s.DeleteMatchesCreatedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	summoners, matches, participants, timelines := s.Counts()
	assert.Equal(t, 1, summoners)
	assert.Zero(t, matches)
	assert.Zero(t, participants)
	assert.Zero(t, timelines)
}
