package rewind

import (
	"encoding/json"
	"time"
)

const TimelinesTableName = "match_timelines"

// Timeline is the frame-by-frame detail of a match; at most one per match.
type Timeline struct {
	ID            int64           `json:"id"`
	MatchID       string          `json:"match_id"`
	DataVersion   string          `json:"data_version,omitempty"`
	FrameInterval int             `json:"frame_interval"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
