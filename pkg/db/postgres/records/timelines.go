package records

import (
	"context"
	"fmt"

	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
)

// HasTimeline reports whether the match already has its timeline stored.
func (d *DB) HasTimeline(ctx context.Context, matchID string) (bool, error) {
	var exists bool
	err := d.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM match_timelines WHERE match_id = $1)`, matchID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check timeline %s: %w", matchID, err)
	}
	return exists, nil
}

// InsertTimeline never replaces an existing timeline. It returns false when one was already there.
func (d *DB) InsertTimeline(ctx context.Context, t *models.Timeline) (bool, error) {
	err := d.QueryRow(ctx, `
		INSERT INTO match_timelines (match_id, data_version, frame_interval, raw)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id) DO NOTHING
		RETURNING id, created_at
	`, t.MatchID, t.DataVersion, t.FrameInterval, jsonbArg(t.Raw)).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert timeline %s: %w", t.MatchID, err)
	}
	return true, nil
}

// ExistingTimelineMatchIDs returns the subset of match ids that have a timeline.
func (d *DB) ExistingTimelineMatchIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	return d.idSet(ctx, `SELECT match_id FROM match_timelines WHERE match_id = ANY($1)`, ids)
}
