package records

import (
	"context"
	"fmt"

	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
)

// UpsertMatch writes the match keyed by its remote id; a re-sync overwrites the stored payload.
func (d *DB) UpsertMatch(ctx context.Context, m *models.Match) (bool, error) {
	query := `
		INSERT INTO matches (match_id, data_version, game_creation, game_duration, queue_id, platform, routing, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (match_id) DO UPDATE SET
			data_version  = EXCLUDED.data_version,
			game_creation = EXCLUDED.game_creation,
			game_duration = EXCLUDED.game_duration,
			queue_id      = EXCLUDED.queue_id,
			platform      = EXCLUDED.platform,
			routing       = EXCLUDED.routing,
			raw           = EXCLUDED.raw
		RETURNING id, created_at, (xmax = 0)
	`
	var created bool
	err := d.QueryRow(ctx, query,
		m.MatchID, m.DataVersion, m.GameCreation, m.GameDuration, m.QueueID, m.Platform, m.Routing, jsonbArg(m.Raw),
	).Scan(&m.ID, &m.CreatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upsert match %s: %w", m.MatchID, err)
	}
	return created, nil
}

// GetMatch returns db.ErrNotFound when the match is not stored.
func (d *DB) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var m models.Match
	var raw []byte
	err := d.QueryRow(ctx, `
		SELECT id, match_id, data_version, game_creation, game_duration, queue_id, platform, routing, raw, created_at
		FROM matches WHERE match_id = $1
	`, matchID).Scan(&m.ID, &m.MatchID, &m.DataVersion, &m.GameCreation, &m.GameDuration, &m.QueueID,
		&m.Platform, &m.Routing, &raw, &m.CreatedAt)
	if err != nil {
		return nil, notFound(err, "match "+matchID)
	}
	m.Raw = raw
	return &m, nil
}

// UpsertParticipant writes one participant keyed by (match_id, puuid) and sets p.ID.
func (d *DB) UpsertParticipant(ctx context.Context, p *models.Participant) (bool, error) {
	query := `
		INSERT INTO match_participants (match_id, summoner_id, puuid, summoner_name, team_id, champion_id,
			champion_name, role, lane, kills, deaths, assists, win, gold_earned, total_minions_killed,
			neutral_minions_killed, damage_to_champions, items, spell1, spell2, perk_primary_style, perk_sub_style)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (match_id, puuid) DO UPDATE SET
			summoner_id            = EXCLUDED.summoner_id,
			summoner_name          = EXCLUDED.summoner_name,
			team_id                = EXCLUDED.team_id,
			champion_id            = EXCLUDED.champion_id,
			champion_name          = EXCLUDED.champion_name,
			role                   = EXCLUDED.role,
			lane                   = EXCLUDED.lane,
			kills                  = EXCLUDED.kills,
			deaths                 = EXCLUDED.deaths,
			assists                = EXCLUDED.assists,
			win                    = EXCLUDED.win,
			gold_earned            = EXCLUDED.gold_earned,
			total_minions_killed   = EXCLUDED.total_minions_killed,
			neutral_minions_killed = EXCLUDED.neutral_minions_killed,
			damage_to_champions    = EXCLUDED.damage_to_champions,
			items                  = EXCLUDED.items,
			spell1                 = EXCLUDED.spell1,
			spell2                 = EXCLUDED.spell2,
			perk_primary_style     = EXCLUDED.perk_primary_style,
			perk_sub_style         = EXCLUDED.perk_sub_style
		RETURNING id, (xmax = 0)
	`
	items := p.Items
	if items == nil {
		items = []int32{}
	}
	var created bool
	err := d.QueryRow(ctx, query,
		p.MatchID, p.SummonerID, p.PUUID, p.SummonerName, p.TeamID, p.ChampionID,
		p.ChampionName, p.Role, p.Lane, p.Kills, p.Deaths, p.Assists, p.Win, p.GoldEarned, p.TotalMinionsKilled,
		p.NeutralMinionsKilled, p.DamageToChampions, items, p.Spell1, p.Spell2, p.PerkPrimaryStyle, p.PerkSubStyle,
	).Scan(&p.ID, &created)
	if err != nil {
		return false, fmt.Errorf("upsert participant %s/%s: %w", p.MatchID, p.PUUID, err)
	}
	return created, nil
}

// ExistingMatchIDs returns the subset of ids already stored.
func (d *DB) ExistingMatchIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	return d.idSet(ctx, `SELECT match_id FROM matches WHERE match_id = ANY($1)`, ids)
}

func (d *DB) idSet(ctx context.Context, query string, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := d.GetExecutor(ctx).Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query id set: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// jsonbArg keeps empty payloads NULL instead of sending an invalid empty document.
func jsonbArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
