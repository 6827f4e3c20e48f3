package records

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riftrewind/rewindx/pkg/db"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
)

const statsColumns = `id, summoner_id, year, platform, total_matches, wins, losses, total_kills, total_deaths,
	total_assists, total_gold_earned, total_minions_killed, total_neutral_minions_killed, total_damage_to_champions,
	unique_champions_played, unique_roles_played, unique_lanes_played, most_played_champion, most_played_champion_count,
	win_rate, kda_ratio, average_kills, average_deaths, average_assists, average_gold_per_match, average_cs_per_match,
	created_at, updated_at`

// LockYearlyStats creates the aggregate row if needed and reads it back with FOR UPDATE, so
// concurrent increments for the same key serialize on the row lock until the caller's transaction ends.
func (d *DB) LockYearlyStats(ctx context.Context, key models.YearlyStatsKey) (*models.YearlyStats, error) {
	err := d.Exec(ctx, `
		INSERT INTO player_yearly_stats (summoner_id, year, platform)
		VALUES ($1, $2, $3)
		ON CONFLICT (summoner_id, year, platform) DO NOTHING
	`, key.SummonerID, key.Year, key.Platform)
	if err != nil {
		return nil, fmt.Errorf("create yearly stats %+v: %w", key, err)
	}
	row := d.QueryRow(ctx, `
		SELECT `+statsColumns+` FROM player_yearly_stats
		WHERE summoner_id = $1 AND year = $2 AND platform = $3
		FOR UPDATE
	`, key.SummonerID, key.Year, key.Platform)
	s, err := scanStats(row)
	if err != nil {
		return nil, fmt.Errorf("lock yearly stats %+v: %w", key, err)
	}
	return s, nil
}

// SaveYearlyStats overwrites every counter and ratio of the row identified by the stats key.
func (d *DB) SaveYearlyStats(ctx context.Context, s *models.YearlyStats) error {
	err := d.QueryRow(ctx, `
		INSERT INTO player_yearly_stats (summoner_id, year, platform, total_matches, wins, losses, total_kills,
			total_deaths, total_assists, total_gold_earned, total_minions_killed, total_neutral_minions_killed,
			total_damage_to_champions, unique_champions_played, unique_roles_played, unique_lanes_played,
			most_played_champion, most_played_champion_count, win_rate, kda_ratio, average_kills, average_deaths,
			average_assists, average_gold_per_match, average_cs_per_match)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21,
			$22, $23, $24, $25)
		ON CONFLICT (summoner_id, year, platform) DO UPDATE SET
			total_matches                = EXCLUDED.total_matches,
			wins                         = EXCLUDED.wins,
			losses                       = EXCLUDED.losses,
			total_kills                  = EXCLUDED.total_kills,
			total_deaths                 = EXCLUDED.total_deaths,
			total_assists                = EXCLUDED.total_assists,
			total_gold_earned            = EXCLUDED.total_gold_earned,
			total_minions_killed         = EXCLUDED.total_minions_killed,
			total_neutral_minions_killed = EXCLUDED.total_neutral_minions_killed,
			total_damage_to_champions    = EXCLUDED.total_damage_to_champions,
			unique_champions_played      = EXCLUDED.unique_champions_played,
			unique_roles_played          = EXCLUDED.unique_roles_played,
			unique_lanes_played          = EXCLUDED.unique_lanes_played,
			most_played_champion         = EXCLUDED.most_played_champion,
			most_played_champion_count   = EXCLUDED.most_played_champion_count,
			win_rate                     = EXCLUDED.win_rate,
			kda_ratio                    = EXCLUDED.kda_ratio,
			average_kills                = EXCLUDED.average_kills,
			average_deaths               = EXCLUDED.average_deaths,
			average_assists              = EXCLUDED.average_assists,
			average_gold_per_match       = EXCLUDED.average_gold_per_match,
			average_cs_per_match         = EXCLUDED.average_cs_per_match,
			updated_at                   = NOW()
		RETURNING id, created_at, updated_at
	`, s.SummonerID, s.Year, s.Platform, s.TotalMatches, s.Wins, s.Losses, s.TotalKills,
		s.TotalDeaths, s.TotalAssists, s.TotalGoldEarned, s.TotalMinionsKilled, s.TotalNeutralMinionsKilled,
		s.TotalDamageToChampions, s.UniqueChampionsPlayed, s.UniqueRolesPlayed, s.UniqueLanesPlayed,
		s.MostPlayedChampion, s.MostPlayedChampionCount, s.WinRate, s.KDARatio, s.AverageKills, s.AverageDeaths,
		s.AverageAssists, s.AverageGoldPerMatch, s.AverageCSPerMatch,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save yearly stats %+v: %w", s.Key(), err)
	}
	return nil
}

// GetYearlyStats returns db.ErrNotFound when no aggregate exists for key.
func (d *DB) GetYearlyStats(ctx context.Context, key models.YearlyStatsKey) (*models.YearlyStats, error) {
	row := d.QueryRow(ctx, `
		SELECT `+statsColumns+` FROM player_yearly_stats
		WHERE summoner_id = $1 AND year = $2 AND platform = $3
	`, key.SummonerID, key.Year, key.Platform)
	s, err := scanStats(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("yearly stats %+v", key))
	}
	return s, nil
}

// ListYearlyStats returns every aggregate of a summoner, newest year first.
func (d *DB) ListYearlyStats(ctx context.Context, summonerID int64) ([]models.YearlyStats, error) {
	rows, err := d.GetExecutor(ctx).Query(ctx, `
		SELECT `+statsColumns+` FROM player_yearly_stats
		WHERE summoner_id = $1
		ORDER BY year DESC, platform
	`, summonerID)
	if err != nil {
		return nil, fmt.Errorf("list yearly stats: %w", err)
	}
	defer rows.Close()
	out := make([]models.YearlyStats, 0)
	for rows.Next() {
		s, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ParticipantsForYear scans the participant rows that feed one aggregate, oldest game first.
func (d *DB) ParticipantsForYear(ctx context.Context, key models.YearlyStatsKey) ([]models.ParticipantRow, error) {
	from, to := models.YearBounds(key.Year)
	rows, err := d.GetExecutor(ctx).Query(ctx, `
		SELECT p.id, p.match_id, p.summoner_id, p.puuid, p.summoner_name, p.team_id, p.champion_id,
			p.champion_name, p.role, p.lane, p.kills, p.deaths, p.assists, p.win, p.gold_earned,
			p.total_minions_killed, p.neutral_minions_killed, p.damage_to_champions, p.items, p.spell1, p.spell2,
			p.perk_primary_style, p.perk_sub_style, m.game_creation, m.platform
		FROM match_participants p
		JOIN matches m ON m.match_id = p.match_id
		WHERE p.summoner_id = $1 AND m.platform = $2 AND m.game_creation >= $3 AND m.game_creation < $4
		ORDER BY m.game_creation, p.id
	`, key.SummonerID, key.Platform, from, to)
	if err != nil {
		return nil, fmt.Errorf("scan participants %+v: %w", key, err)
	}
	defer rows.Close()
	out := make([]models.ParticipantRow, 0)
	for rows.Next() {
		var r models.ParticipantRow
		p := &r.Participant
		if err := rows.Scan(&p.ID, &p.MatchID, &p.SummonerID, &p.PUUID, &p.SummonerName, &p.TeamID, &p.ChampionID,
			&p.ChampionName, &p.Role, &p.Lane, &p.Kills, &p.Deaths, &p.Assists, &p.Win, &p.GoldEarned,
			&p.TotalMinionsKilled, &p.NeutralMinionsKilled, &p.DamageToChampions, &p.Items, &p.Spell1, &p.Spell2,
			&p.PerkPrimaryStyle, &p.PerkSubStyle, &r.GameCreation, &r.Platform); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasPlayedBefore looks for another participant row under key with the same value in field.
func (d *DB) HasPlayedBefore(ctx context.Context, key models.YearlyStatsKey, field db.DiversityField, value string, excludeParticipantID int64) (bool, error) {
	if !field.Valid() {
		return false, fmt.Errorf("unknown diversity field %q", field)
	}
	from, to := models.YearBounds(key.Year)
	column := pgx.Identifier{"p", string(field)}.Sanitize()
	var exists bool
	err := d.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM match_participants p
			JOIN matches m ON m.match_id = p.match_id
			WHERE p.summoner_id = $1 AND m.platform = $2 AND m.game_creation >= $3 AND m.game_creation < $4
				AND `+column+` = $5 AND p.id <> $6
		)
	`, key.SummonerID, key.Platform, from, to, value, excludeParticipantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s history: %w", field, err)
	}
	return exists, nil
}

// ChampionPlayCount counts participant rows under key played on champion.
func (d *DB) ChampionPlayCount(ctx context.Context, key models.YearlyStatsKey, champion string) (int, error) {
	from, to := models.YearBounds(key.Year)
	var n int
	err := d.QueryRow(ctx, `
		SELECT COUNT(*) FROM match_participants p
		JOIN matches m ON m.match_id = p.match_id
		WHERE p.summoner_id = $1 AND m.platform = $2 AND m.game_creation >= $3 AND m.game_creation < $4
			AND p.champion_name = $5
	`, key.SummonerID, key.Platform, from, to, champion).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count champion %s: %w", champion, err)
	}
	return n, nil
}

// FirstPlayed finds the oldest game under key played on champion.
func (d *DB) FirstPlayed(ctx context.Context, key models.YearlyStatsKey, champion string) (time.Time, int64, error) {
	from, to := models.YearBounds(key.Year)
	var (
		at time.Time
		id int64
	)
	err := d.QueryRow(ctx, `
		SELECT m.game_creation, p.id FROM match_participants p
		JOIN matches m ON m.match_id = p.match_id
		WHERE p.summoner_id = $1 AND m.platform = $2 AND m.game_creation >= $3 AND m.game_creation < $4
			AND p.champion_name = $5
		ORDER BY m.game_creation, p.id
		LIMIT 1
	`, key.SummonerID, key.Platform, from, to, champion).Scan(&at, &id)
	if err != nil {
		return time.Time{}, 0, notFound(err, "first game on "+champion)
	}
	return at, id, nil
}

// StatsTargets lists every (summoner, year, platform) with at least one participant row.
func (d *DB) StatsTargets(ctx context.Context, platform string) ([]models.YearlyStatsKey, error) {
	rows, err := d.GetExecutor(ctx).Query(ctx, `
		SELECT DISTINCT p.summoner_id, EXTRACT(YEAR FROM m.game_creation AT TIME ZONE 'UTC')::int, m.platform
		FROM match_participants p
		JOIN matches m ON m.match_id = p.match_id
		WHERE m.game_creation IS NOT NULL AND ($1 = '' OR m.platform = $1)
		ORDER BY 1, 2, 3
	`, platform)
	if err != nil {
		return nil, fmt.Errorf("list stats targets: %w", err)
	}
	defer rows.Close()
	out := make([]models.YearlyStatsKey, 0)
	for rows.Next() {
		var k models.YearlyStatsKey
		if err := rows.Scan(&k.SummonerID, &k.Year, &k.Platform); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func scanStats(row pgx.Row) (*models.YearlyStats, error) {
	var s models.YearlyStats
	err := row.Scan(&s.ID, &s.SummonerID, &s.Year, &s.Platform, &s.TotalMatches, &s.Wins, &s.Losses,
		&s.TotalKills, &s.TotalDeaths, &s.TotalAssists, &s.TotalGoldEarned, &s.TotalMinionsKilled,
		&s.TotalNeutralMinionsKilled, &s.TotalDamageToChampions, &s.UniqueChampionsPlayed, &s.UniqueRolesPlayed,
		&s.UniqueLanesPlayed, &s.MostPlayedChampion, &s.MostPlayedChampionCount, &s.WinRate, &s.KDARatio,
		&s.AverageKills, &s.AverageDeaths, &s.AverageAssists, &s.AverageGoldPerMatch, &s.AverageCSPerMatch,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
