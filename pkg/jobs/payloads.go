package jobs

import (
	"fmt"
	"strings"
)

// MatchJob asks for one match to be fetched and committed.
type MatchJob struct {
	MatchID  string `json:"match_id"`
	Platform string `json:"platform"`
	Routing  string `json:"routing"`
	// PUUID is the player whose sync requested the match.
	PUUID string `json:"puuid"`
	Year  int    `json:"year"`
}

func (j MatchJob) JobKey() string { return j.MatchID }

// TimelineJob asks for the timeline of a stored match.
type TimelineJob struct {
	MatchID  string `json:"match_id"`
	Platform string `json:"platform"`
	Routing  string `json:"routing"`
}

func (j TimelineJob) JobKey() string { return j.MatchID }

// PlayerJob starts a fresh or recovery sync for one riot id.
type PlayerJob struct {
	GameName string `json:"game_name"`
	TagLine  string `json:"tag_line"`
	Platform string `json:"platform"`
	Routing  string `json:"routing"`
	Year     int    `json:"year"`
}

// JobKey collapses concurrent requests for the same player and year.
func (j PlayerJob) JobKey() string {
	return fmt.Sprintf("%s-%s-%s-%d", strings.ToLower(j.GameName), strings.ToLower(j.TagLine), j.Platform, j.Year)
}

// CleanupJob removes matches stored more than RetentionDays ago.
type CleanupJob struct {
	RetentionDays int `json:"retention_days"`
}

// RecomputeJob rebuilds every aggregate of a year, optionally limited to one platform.
type RecomputeJob struct {
	Year     int    `json:"year"`
	Platform string `json:"platform,omitempty"`
}

func (j RecomputeJob) JobKey() string { return fmt.Sprintf("%d-%s", j.Year, j.Platform) }

// HealthCheckJob has no parameters.
type HealthCheckJob struct{}
