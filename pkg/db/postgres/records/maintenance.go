package records

import (
	"context"
	"fmt"
	"time"
)

// CountMatchesForPUUID counts stored matches the player took part in with game creation in [from, to).
func (d *DB) CountMatchesForPUUID(ctx context.Context, puuid string, from, to time.Time) (int64, error) {
	var n int64
	err := d.QueryRow(ctx, `
		SELECT COUNT(*) FROM match_participants p
		JOIN matches m ON m.match_id = p.match_id
		WHERE p.puuid = $1 AND m.game_creation >= $2 AND m.game_creation < $3
	`, puuid, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return n, nil
}

// CountTimelinesForPUUID counts stored timelines of those matches.
func (d *DB) CountTimelinesForPUUID(ctx context.Context, puuid string, from, to time.Time) (int64, error) {
	var n int64
	err := d.QueryRow(ctx, `
		SELECT COUNT(*) FROM match_participants p
		JOIN matches m ON m.match_id = p.match_id
		JOIN match_timelines t ON t.match_id = m.match_id
		WHERE p.puuid = $1 AND m.game_creation >= $2 AND m.game_creation < $3
	`, puuid, from, to).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count timelines: %w", err)
	}
	return n, nil
}

// DeleteMatchesCreatedBefore removes matches stored before cutoff; participants and timelines cascade.
func (d *DB) DeleteMatchesCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := d.GetExecutor(ctx).Exec(ctx, `DELETE FROM matches WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete matches before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
