//go:build integration

package records

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/riftrewind/rewindx/pkg/db"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
	"github.com/riftrewind/rewindx/pkg/db/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

var testDB *DB

// TestMain starts one PostgreSQL container for the package. Tests use distinct ids instead of
// resetting tables.
func TestMain(m *testing.M) {
	os.Exit(runWithContainer(m))
}

func runWithContainer(m *testing.M) int {
	ctx := context.Background()
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("postgres"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		logger.Error("Failed to start PostgreSQL container", zap.Error(err))
		return 1
	}
	defer func() { _ = testcontainers.TerminateContainer(ctr) }()

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		logger.Error("Failed to get connection string", zap.Error(err))
		return 1
	}
	_ = os.Setenv("POSTGRES_URL", dsn)

	testDB, err = NewWithPoolConfig(ctx, logger, "rewind_test", *postgres.GetPoolConfigForComponent("cli"))
	if err != nil {
		logger.Error("Failed to initialize record store", zap.Error(err))
		return 1
	}
	defer func() { _ = testDB.Close() }()

	return m.Run()
}

func ts(year int, day int) *time.Time {
	t := time.Date(year, time.March, day, 12, 0, 0, 0, time.UTC)
	return &t
}

func seedMatch(t *testing.T, matchID string, created *time.Time, players ...*models.Participant) {
	t.Helper()
	ctx := context.Background()
	_, err := testDB.UpsertMatch(ctx, &models.Match{MatchID: matchID, GameCreation: created, Platform: "na1", Routing: "americas"})
	require.NoError(t, err)
	for _, p := range players {
		p.MatchID = matchID
		sum := models.NewPlaceholderSummoner(p.PUUID, "", "", "na1", "americas")
		_, err := testDB.EnsureSummoner(ctx, sum)
		require.NoError(t, err)
		p.SummonerID = sum.ID
		_, err = testDB.UpsertParticipant(ctx, p)
		require.NoError(t, err)
	}
}

func TestUpsertSummonerCreatedOnce(t *testing.T) {
	ctx := context.Background()

	sum := &models.Summoner{PUUID: "pg-p1", Name: "Faker", TagLine: "KR1", Platform: "kr", Routing: "asia"}
	created, err := testDB.UpsertSummoner(ctx, sum)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, sum.ID)

	again := &models.Summoner{PUUID: "pg-p1", Name: "Faker", TagLine: "T1", Platform: "kr", Routing: "asia"}
	created, err = testDB.UpsertSummoner(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sum.ID, again.ID)

	placeholder := models.NewPlaceholderSummoner("pg-p1", "", "", "kr", "asia")
	created, err = testDB.EnsureSummoner(ctx, placeholder)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sum.ID, placeholder.ID)

	got, err := testDB.FindSummonerByRiotID(ctx, "faker", "t1", "kr")
	require.NoError(t, err)
	assert.Equal(t, "pg-p1", got.PUUID)

	_, err = testDB.GetSummonerByPUUID(ctx, "pg-missing")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestListTrackedSummonersIncludesInterruptedSyncs(t *testing.T) {
	ctx := context.Background()
	requested := time.Now()

	interrupted := &models.Summoner{PUUID: "pg-track-1", Name: "Jankos", TagLine: "EUW", Platform: "euw1", Routing: "europe", SyncRequestedAt: &requested}
	_, err := testDB.UpsertSummoner(ctx, interrupted)
	require.NoError(t, err)
	// a later refresh without the marker keeps it
	_, err = testDB.UpsertSummoner(ctx, &models.Summoner{PUUID: "pg-track-1", Name: "Jankos", TagLine: "EUW", Platform: "euw1", Routing: "europe"})
	require.NoError(t, err)

	lookedUp := &models.Summoner{PUUID: "pg-track-2", Name: "Rekkles", TagLine: "EUW", Platform: "euw1", Routing: "europe"}
	_, err = testDB.UpsertSummoner(ctx, lookedUp)
	require.NoError(t, err)

	tracked, err := testDB.ListTrackedSummoners(ctx)
	require.NoError(t, err)
	puuids := make([]string, 0, len(tracked))
	for _, s := range tracked {
		puuids = append(puuids, s.PUUID)
	}
	assert.Contains(t, puuids, "pg-track-1")
	assert.NotContains(t, puuids, "pg-track-2")
}

func TestWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := testDB.WithinTx(ctx, func(ctx context.Context) error {
		_, err := testDB.UpsertMatch(ctx, &models.Match{MatchID: "PG_TX_1", Platform: "na1"})
		require.NoError(t, err)
		return testDB.WithinTx(ctx, func(ctx context.Context) error { return boom })
	})
	require.ErrorIs(t, err, boom)

	_, err = testDB.GetMatch(ctx, "PG_TX_1")
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func TestGapQueriesAndTimelines(t *testing.T) {
	ctx := context.Background()
	seedMatch(t, "PG_GAP_1", ts(2025, 1))
	seedMatch(t, "PG_GAP_2", ts(2025, 2))

	ok, err := testDB.InsertTimeline(ctx, &models.Timeline{MatchID: "PG_GAP_1", FrameInterval: 60000, Raw: []byte(`{"info":{}}`)})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = testDB.InsertTimeline(ctx, &models.Timeline{MatchID: "PG_GAP_1"})
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := testDB.HasTimeline(ctx, "PG_GAP_2")
	require.NoError(t, err)
	assert.False(t, has)

	present, err := testDB.ExistingMatchIDs(ctx, []string{"PG_GAP_1", "PG_GAP_2", "PG_GAP_3"})
	require.NoError(t, err)
	assert.Len(t, present, 2)

	withTimeline, err := testDB.ExistingTimelineMatchIDs(ctx, []string{"PG_GAP_1", "PG_GAP_2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"PG_GAP_1": {}}, withTimeline)
}

func TestStatsQueriesAreScopedToYear(t *testing.T) {
	ctx := context.Background()
	ahri24 := &models.Participant{PUUID: "pg-div", ChampionName: "Ahri", Role: "SOLO", Lane: "MIDDLE", Win: true}
	seedMatch(t, "PG_DIV_1", ts(2024, 1), ahri24)
	lux := &models.Participant{PUUID: "pg-div", ChampionName: "Lux", Role: "SOLO", Lane: "MIDDLE"}
	seedMatch(t, "PG_DIV_2", ts(2025, 1), lux)
	ahri := &models.Participant{PUUID: "pg-div", ChampionName: "Ahri", Role: "SOLO", Lane: "MIDDLE", Kills: 7}
	seedMatch(t, "PG_DIV_3", ts(2025, 2), ahri)

	key := models.YearlyStatsKey{SummonerID: lux.SummonerID, Year: 2025, Platform: "na1"}

	played, err := testDB.HasPlayedBefore(ctx, key, db.DiversityChampion, "Ahri", ahri.ID)
	require.NoError(t, err)
	assert.False(t, played)
	played, err = testDB.HasPlayedBefore(ctx, key, db.DiversityLane, "MIDDLE", ahri.ID)
	require.NoError(t, err)
	assert.True(t, played)

	n, err := testDB.ChampionPlayCount(ctx, key, "Ahri")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	first, id, err := testDB.FirstPlayed(ctx, key, "Lux")
	require.NoError(t, err)
	assert.True(t, first.Equal(*ts(2025, 1)))
	assert.Equal(t, lux.ID, id)
	_, _, err = testDB.FirstPlayed(ctx, key, "Zed")
	assert.ErrorIs(t, err, db.ErrNotFound)

	rows, err := testDB.ParticipantsForYear(ctx, key)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "PG_DIV_2", rows[0].MatchID)

	matches, err := testDB.CountMatchesForPUUID(ctx, "pg-div", ts(2025, 1).AddDate(0, -3, 0), ts(2025, 1).AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), matches)

	locked, err := testDB.LockYearlyStats(ctx, key)
	require.NoError(t, err)
	locked.TotalMatches = 2
	locked.TotalKills = 7
	require.NoError(t, testDB.SaveYearlyStats(ctx, locked))

	got, err := testDB.GetYearlyStats(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalMatches)
	assert.Equal(t, int64(7), got.TotalKills)
}

func TestConcurrentParticipantInsertsCreateOnce(t *testing.T) {
	ctx := context.Background()
	seedMatch(t, "PG_RACE_1", ts(2025, 5))
	sum := models.NewPlaceholderSummoner("pg-race", "", "", "na1", "americas")
	_, err := testDB.EnsureSummoner(ctx, sum)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := testDB.WithinTx(ctx, func(ctx context.Context) error {
				ok, err := testDB.UpsertParticipant(ctx, &models.Participant{MatchID: "PG_RACE_1", PUUID: "pg-race", SummonerID: sum.ID, Kills: 1})
				if err != nil {
					return err
				}
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestDeleteMatchesCascades(t *testing.T) {
	ctx := context.Background()
	seedMatch(t, "PG_DEL_1", ts(2025, 1), &models.Participant{PUUID: "pg-del"})
	_, err := testDB.InsertTimeline(ctx, &models.Timeline{MatchID: "PG_DEL_1"})
	require.NoError(t, err)

	n, err := testDB.DeleteMatchesCreatedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	_, err = testDB.GetMatch(ctx, "PG_DEL_1")
	assert.ErrorIs(t, err, db.ErrNotFound)
	has, err := testDB.HasTimeline(ctx, "PG_DEL_1")
	require.NoError(t, err)
	assert.False(t, has)

	_, err = testDB.GetSummonerByPUUID(ctx, "pg-del")
	assert.NoError(t, err, "identities survive retention cleanup")
}
