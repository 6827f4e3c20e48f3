package records

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
)

const summonerColumns = `id, puuid, summoner_id, account_id, name, tag_line, profile_icon_id, summoner_level,
	platform, routing, last_synced_at, sync_requested_at, created_at, updated_at`

// UpsertSummoner inserts or refreshes an identity keyed by puuid.
// xmax = 0 only holds for a tuple created by this statement, which is how wasCreated is derived.
func (d *DB) UpsertSummoner(ctx context.Context, s *models.Summoner) (bool, error) {
	query := `
		INSERT INTO summoners (puuid, summoner_id, account_id, name, tag_line, profile_icon_id,
			summoner_level, platform, routing, last_synced_at, sync_requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (puuid) DO UPDATE SET
			summoner_id     = EXCLUDED.summoner_id,
			account_id      = EXCLUDED.account_id,
			name            = EXCLUDED.name,
			tag_line        = EXCLUDED.tag_line,
			profile_icon_id = EXCLUDED.profile_icon_id,
			summoner_level  = EXCLUDED.summoner_level,
			platform        = EXCLUDED.platform,
			routing         = EXCLUDED.routing,
			last_synced_at  = COALESCE(EXCLUDED.last_synced_at, summoners.last_synced_at),
			sync_requested_at = COALESCE(EXCLUDED.sync_requested_at, summoners.sync_requested_at),
			updated_at      = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)
	`
	summonerID := s.SummonerID
	if summonerID == "" {
		summonerID = s.PUUID
	}
	var created bool
	err := d.QueryRow(ctx, query,
		s.PUUID, summonerID, s.AccountID, s.Name, s.TagLine, s.ProfileIconID,
		s.Level, s.Platform, s.Routing, s.LastSyncedAt, s.SyncRequestedAt,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upsert summoner %s: %w", s.PUUID, err)
	}
	s.SummonerID = summonerID
	return created, nil
}

// EnsureSummoner creates the identity when puuid is unknown. Existing rows are left untouched;
// the no-op update lets RETURNING report the id on conflict.
func (d *DB) EnsureSummoner(ctx context.Context, s *models.Summoner) (bool, error) {
	query := `
		INSERT INTO summoners (puuid, summoner_id, name, tag_line, platform, routing)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (puuid) DO UPDATE SET puuid = summoners.puuid
		RETURNING id, (xmax = 0)
	`
	summonerID := s.SummonerID
	if summonerID == "" {
		summonerID = s.PUUID
	}
	name := s.Name
	if name == "" {
		name = models.PlaceholderName
	}
	var created bool
	err := d.QueryRow(ctx, query, s.PUUID, summonerID, name, s.TagLine, s.Platform, s.Routing).Scan(&s.ID, &created)
	if err != nil {
		return false, fmt.Errorf("ensure summoner %s: %w", s.PUUID, err)
	}
	return created, nil
}

// GetSummonerByPUUID returns db.ErrNotFound when the identity is unknown.
func (d *DB) GetSummonerByPUUID(ctx context.Context, puuid string) (*models.Summoner, error) {
	row := d.QueryRow(ctx, `SELECT `+summonerColumns+` FROM summoners WHERE puuid = $1`, puuid)
	s, err := scanSummoner(row)
	if err != nil {
		return nil, notFound(err, "summoner "+puuid)
	}
	return s, nil
}

// FindSummonerByRiotID matches name and tag case-insensitively.
func (d *DB) FindSummonerByRiotID(ctx context.Context, name, tag, platform string) (*models.Summoner, error) {
	row := d.QueryRow(ctx, `
		SELECT `+summonerColumns+` FROM summoners
		WHERE lower(name) = lower($1) AND lower(tag_line) = lower($2) AND platform = $3
		ORDER BY updated_at DESC
		LIMIT 1
	`, name, tag, platform)
	s, err := scanSummoner(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("summoner %s#%s", name, tag))
	}
	return s, nil
}

// ListSummoners pages through identities ordered by id. An empty platform lists every shard.
func (d *DB) ListSummoners(ctx context.Context, platform string, limit, offset int) ([]models.Summoner, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.GetExecutor(ctx).Query(ctx, `
		SELECT `+summonerColumns+` FROM summoners
		WHERE ($1 = '' OR platform = $1)
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, platform, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list summoners: %w", err)
	}
	return collectSummoners(rows)
}

// ListTrackedSummoners returns identities that had a sync requested or completed and can be
// resolved again by riot id. Players whose sync never completed come first.
func (d *DB) ListTrackedSummoners(ctx context.Context) ([]models.Summoner, error) {
	rows, err := d.GetExecutor(ctx).Query(ctx, `
		SELECT `+summonerColumns+` FROM summoners
		WHERE (last_synced_at IS NOT NULL OR sync_requested_at IS NOT NULL)
			AND tag_line <> '' AND name <> $1
		ORDER BY last_synced_at NULLS FIRST, id
	`, models.PlaceholderName)
	if err != nil {
		return nil, fmt.Errorf("list tracked summoners: %w", err)
	}
	return collectSummoners(rows)
}

// MarkSynced stamps last_synced_at after a completed run.
func (d *DB) MarkSynced(ctx context.Context, summonerID int64, at time.Time) error {
	if err := d.Exec(ctx, `UPDATE summoners SET last_synced_at = $2, updated_at = NOW() WHERE id = $1`, summonerID, at.UTC()); err != nil {
		return fmt.Errorf("mark summoner %d synced: %w", summonerID, err)
	}
	return nil
}

func scanSummoner(row pgx.Row) (*models.Summoner, error) {
	var s models.Summoner
	err := row.Scan(&s.ID, &s.PUUID, &s.SummonerID, &s.AccountID, &s.Name, &s.TagLine, &s.ProfileIconID,
		&s.Level, &s.Platform, &s.Routing, &s.LastSyncedAt, &s.SyncRequestedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSummoners(rows pgx.Rows) ([]models.Summoner, error) {
	defer rows.Close()
	out := make([]models.Summoner, 0)
	for rows.Next() {
		s, err := scanSummoner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
