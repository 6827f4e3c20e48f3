package records

import (
	"context"
	"fmt"

	"github.com/riftrewind/rewindx/pkg/db"
	"github.com/riftrewind/rewindx/pkg/db/postgres"
	"go.uber.org/zap"
)

// DB is the PostgreSQL record store.
type DB struct {
	postgres.Client
	Name string
}

var _ db.Store = (*DB)(nil)

// NewWithPoolConfig connects to the named database, creating it and its schema when missing.
func NewWithPoolConfig(ctx context.Context, logger *zap.Logger, name string, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(
		zap.String("db", name),
		zap.String("component", poolConfig.Component),
	), name, &poolConfig)
	if err != nil {
		return nil, err
	}

	recordsDB := &DB{
		Client: client,
		Name:   client.TargetDatabase,
	}

	if err := recordsDB.InitializeDB(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return recordsDB, nil
}

// Close terminates the underlying PostgreSQL connection
func (d *DB) Close() error {
	d.Client.Close()
	return nil
}

// DatabaseName returns the name of the records database
func (d *DB) DatabaseName() string {
	return d.Name
}

// InitializeDB ensures the required tables exist
func (d *DB) InitializeDB(ctx context.Context) error {
	d.Logger.Info("Initializing records database", zap.String("database", d.Name))

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"summoners", d.initSummoners},
		{"matches", d.initMatches},
		{"participants", d.initParticipants},
		{"timelines", d.initTimelines},
		{"yearly_stats", d.initYearlyStats},
	}
	for _, step := range steps {
		d.Logger.Debug("Initialize table", zap.String("table", step.name))
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", step.name, err)
		}
	}

	d.Logger.Info("Records database initialized", zap.String("database", d.Name))
	return nil
}

func (d *DB) initSummoners(ctx context.Context) error {
	return d.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS summoners (
			id              BIGSERIAL PRIMARY KEY,
			puuid           TEXT NOT NULL UNIQUE,
			summoner_id     TEXT NOT NULL UNIQUE,
			account_id      TEXT NOT NULL DEFAULT '',
			name            TEXT NOT NULL,
			tag_line        TEXT NOT NULL DEFAULT '',
			profile_icon_id INTEGER NOT NULL DEFAULT 0,
			summoner_level  INTEGER NOT NULL DEFAULT 0,
			platform        TEXT NOT NULL,
			routing         TEXT NOT NULL,
			last_synced_at  TIMESTAMPTZ,
			sync_requested_at TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		ALTER TABLE summoners ADD COLUMN IF NOT EXISTS sync_requested_at TIMESTAMPTZ;
		CREATE INDEX IF NOT EXISTS summoners_riot_id_idx ON summoners (lower(name), lower(tag_line), platform);
	`)
}

func (d *DB) initMatches(ctx context.Context) error {
	return d.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS matches (
			id            BIGSERIAL PRIMARY KEY,
			match_id      TEXT NOT NULL UNIQUE,
			data_version  TEXT NOT NULL DEFAULT '',
			game_creation TIMESTAMPTZ,
			game_duration INTEGER NOT NULL DEFAULT 0,
			queue_id      INTEGER NOT NULL DEFAULT 0,
			platform      TEXT NOT NULL,
			routing       TEXT NOT NULL,
			raw           JSONB,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS matches_game_creation_idx ON matches (game_creation);
	`)
}

func (d *DB) initParticipants(ctx context.Context) error {
	return d.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_participants (
			id                     BIGSERIAL PRIMARY KEY,
			match_id               TEXT NOT NULL REFERENCES matches (match_id) ON DELETE CASCADE,
			summoner_id            BIGINT NOT NULL REFERENCES summoners (id),
			puuid                  TEXT NOT NULL,
			summoner_name          TEXT NOT NULL DEFAULT '',
			team_id                INTEGER NOT NULL DEFAULT 0,
			champion_id            INTEGER NOT NULL DEFAULT 0,
			champion_name          TEXT NOT NULL DEFAULT '',
			role                   TEXT NOT NULL DEFAULT '',
			lane                   TEXT NOT NULL DEFAULT '',
			kills                  INTEGER NOT NULL DEFAULT 0,
			deaths                 INTEGER NOT NULL DEFAULT 0,
			assists                INTEGER NOT NULL DEFAULT 0,
			win                    BOOLEAN NOT NULL DEFAULT FALSE,
			gold_earned            INTEGER NOT NULL DEFAULT 0,
			total_minions_killed   INTEGER NOT NULL DEFAULT 0,
			neutral_minions_killed INTEGER NOT NULL DEFAULT 0,
			damage_to_champions    INTEGER NOT NULL DEFAULT 0,
			items                  INTEGER[] NOT NULL DEFAULT '{}',
			spell1                 INTEGER NOT NULL DEFAULT 0,
			spell2                 INTEGER NOT NULL DEFAULT 0,
			perk_primary_style     INTEGER NOT NULL DEFAULT 0,
			perk_sub_style         INTEGER NOT NULL DEFAULT 0,
			UNIQUE (match_id, puuid)
		);
		CREATE INDEX IF NOT EXISTS match_participants_summoner_idx ON match_participants (summoner_id);
		CREATE INDEX IF NOT EXISTS match_participants_puuid_idx ON match_participants (puuid);
	`)
}

func (d *DB) initTimelines(ctx context.Context) error {
	return d.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_timelines (
			id             BIGSERIAL PRIMARY KEY,
			match_id       TEXT NOT NULL UNIQUE REFERENCES matches (match_id) ON DELETE CASCADE,
			data_version   TEXT NOT NULL DEFAULT '',
			frame_interval INTEGER NOT NULL DEFAULT 0,
			raw            JSONB,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
}

func (d *DB) initYearlyStats(ctx context.Context) error {
	return d.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS player_yearly_stats (
			id                           BIGSERIAL PRIMARY KEY,
			summoner_id                  BIGINT NOT NULL REFERENCES summoners (id) ON DELETE CASCADE,
			year                         INTEGER NOT NULL,
			platform                     TEXT NOT NULL,
			total_matches                BIGINT NOT NULL DEFAULT 0,
			wins                         BIGINT NOT NULL DEFAULT 0,
			losses                       BIGINT NOT NULL DEFAULT 0,
			total_kills                  BIGINT NOT NULL DEFAULT 0,
			total_deaths                 BIGINT NOT NULL DEFAULT 0,
			total_assists                BIGINT NOT NULL DEFAULT 0,
			total_gold_earned            BIGINT NOT NULL DEFAULT 0,
			total_minions_killed         BIGINT NOT NULL DEFAULT 0,
			total_neutral_minions_killed BIGINT NOT NULL DEFAULT 0,
			total_damage_to_champions    BIGINT NOT NULL DEFAULT 0,
			unique_champions_played      INTEGER NOT NULL DEFAULT 0,
			unique_roles_played          INTEGER NOT NULL DEFAULT 0,
			unique_lanes_played          INTEGER NOT NULL DEFAULT 0,
			most_played_champion         TEXT NOT NULL DEFAULT '',
			most_played_champion_count   INTEGER NOT NULL DEFAULT 0,
			win_rate                     DOUBLE PRECISION NOT NULL DEFAULT 0,
			kda_ratio                    DOUBLE PRECISION NOT NULL DEFAULT 0,
			average_kills                DOUBLE PRECISION NOT NULL DEFAULT 0,
			average_deaths               DOUBLE PRECISION NOT NULL DEFAULT 0,
			average_assists              DOUBLE PRECISION NOT NULL DEFAULT 0,
			average_gold_per_match       DOUBLE PRECISION NOT NULL DEFAULT 0,
			average_cs_per_match         DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at                   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at                   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (summoner_id, year, platform)
		);
	`)
}

func isNoRows(err error) bool {
	return postgres.IsNoRows(err)
}

// notFound maps pgx's no-rows error onto db.ErrNotFound.
func notFound(err error, what string) error {
	if postgres.IsNoRows(err) {
		return fmt.Errorf("%s: %w", what, db.ErrNotFound)
	}
	return err
}
