package db

import (
	"context"
	"errors"
	"time"

	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// DiversityField names a participant column tracked by the distinct-value counters.
type DiversityField string

const (
	DiversityChampion DiversityField = "champion_name"
	DiversityRole     DiversityField = "role"
	DiversityLane     DiversityField = "lane"
)

// Valid reports whether f is one of the known diversity columns.
func (f DiversityField) Valid() bool {
	switch f {
	case DiversityChampion, DiversityRole, DiversityLane:
		return true
	}
	return false
}

// TxRunner scopes work to one unit of work. fn receives a context carrying the transaction;
// nested calls join the outer transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SummonerStore holds player identities keyed by puuid.
type SummonerStore interface {
	// UpsertSummoner creates or fully refreshes the identity and sets s.ID. The bool is true when a row was created.
	UpsertSummoner(ctx context.Context, s *models.Summoner) (bool, error)
	// EnsureSummoner creates a placeholder identity when puuid is unknown and never overwrites an existing one.
	EnsureSummoner(ctx context.Context, s *models.Summoner) (bool, error)
	GetSummonerByPUUID(ctx context.Context, puuid string) (*models.Summoner, error)
	FindSummonerByRiotID(ctx context.Context, name, tag, platform string) (*models.Summoner, error)
	ListSummoners(ctx context.Context, platform string, limit, offset int) ([]models.Summoner, error)
	// ListTrackedSummoners returns named identities that had a sync requested or completed.
	ListTrackedSummoners(ctx context.Context) ([]models.Summoner, error)
	MarkSynced(ctx context.Context, summonerID int64, at time.Time) error
}

// MatchStore holds matches, their participants and timelines.
type MatchStore interface {
	UpsertMatch(ctx context.Context, m *models.Match) (bool, error)
	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
	UpsertParticipant(ctx context.Context, p *models.Participant) (bool, error)
	HasTimeline(ctx context.Context, matchID string) (bool, error)
	// InsertTimeline stores t unless the match already has one; the bool reports whether a row was written.
	InsertTimeline(ctx context.Context, t *models.Timeline) (bool, error)
}

// GapStore answers set-membership questions over match ids.
type GapStore interface {
	ExistingMatchIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
	ExistingTimelineMatchIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// StatsStore holds the yearly aggregates and the participant scans that feed them.
type StatsStore interface {
	// LockYearlyStats returns the aggregate for key, creating an empty row first when needed.
	// Inside a transaction the row stays locked until commit.
	LockYearlyStats(ctx context.Context, key models.YearlyStatsKey) (*models.YearlyStats, error)
	SaveYearlyStats(ctx context.Context, s *models.YearlyStats) error
	GetYearlyStats(ctx context.Context, key models.YearlyStatsKey) (*models.YearlyStats, error)
	ListYearlyStats(ctx context.Context, summonerID int64) ([]models.YearlyStats, error)
	// ParticipantsForYear returns every participant row of the summoner on platform whose match
	// falls in year, oldest game first.
	ParticipantsForYear(ctx context.Context, key models.YearlyStatsKey) ([]models.ParticipantRow, error)
	// HasPlayedBefore reports whether another participant row under key already has value in field.
	HasPlayedBefore(ctx context.Context, key models.YearlyStatsKey, field DiversityField, value string, excludeParticipantID int64) (bool, error)
	ChampionPlayCount(ctx context.Context, key models.YearlyStatsKey, champion string) (int, error)
	// FirstPlayed returns the game creation time and participant id of the earliest row under key
	// on champion, in the order ParticipantsForYear uses. db.ErrNotFound when there is none.
	FirstPlayed(ctx context.Context, key models.YearlyStatsKey, champion string) (time.Time, int64, error)
	// StatsTargets lists the (summoner, year, platform) keys that have at least one participant row.
	StatsTargets(ctx context.Context, platform string) ([]models.YearlyStatsKey, error)
}

// MaintenanceStore covers status counters and retention cleanup.
type MaintenanceStore interface {
	Ping(ctx context.Context) error
	CountMatchesForPUUID(ctx context.Context, puuid string, from, to time.Time) (int64, error)
	CountTimelinesForPUUID(ctx context.Context, puuid string, from, to time.Time) (int64, error)
	DeleteMatchesCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the full record store used by the worker and the admin API.
type Store interface {
	TxRunner
	SummonerStore
	MatchStore
	GapStore
	StatsStore
	MaintenanceStore
	Close() error
}
