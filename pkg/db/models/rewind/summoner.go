package rewind

import (
	"fmt"
	"strings"
	"time"
)

const SummonersTableName = "summoners"

// PlaceholderName is stored for participants seen before their identity is resolved.
const PlaceholderName = "Unknown"

// Summoner is a player identity. PUUID is the remote identifier issued by the data source.
type Summoner struct {
	ID            int64      `json:"id"`
	PUUID         string     `json:"puuid"`
	SummonerID    string     `json:"summoner_id"`
	AccountID     string     `json:"account_id,omitempty"`
	Name          string     `json:"name"`
	TagLine       string     `json:"tag_line,omitempty"`
	ProfileIconID int        `json:"profile_icon_id,omitempty"`
	Level         int        `json:"summoner_level"`
	Platform      string     `json:"platform"`
	Routing       string     `json:"routing"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	// SyncRequestedAt is set when a sync run resolved this identity, whether or not the run completed.
	SyncRequestedAt *time.Time `json:"sync_requested_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// RiotID returns "name#tag", or just the name when the tag is unknown.
func (s *Summoner) RiotID() string {
	if s.TagLine == "" {
		return s.Name
	}
	return fmt.Sprintf("%s#%s", s.Name, s.TagLine)
}

// Tracked reports whether the identity can be re-resolved by riot id (needed for recovery runs).
func (s *Summoner) Tracked() bool {
	return strings.TrimSpace(s.Name) != "" && s.Name != PlaceholderName && strings.TrimSpace(s.TagLine) != ""
}

// NewPlaceholderSummoner builds the row created for a participant that was never synced directly.
func NewPlaceholderSummoner(puuid, summonerID, name, platform, routing string) *Summoner {
	if summonerID == "" {
		summonerID = puuid
	}
	if strings.TrimSpace(name) == "" {
		name = PlaceholderName
	}
	return &Summoner{
		PUUID:      puuid,
		SummonerID: summonerID,
		Name:       name,
		Platform:   platform,
		Routing:    routing,
	}
}
