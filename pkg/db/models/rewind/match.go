package rewind

import (
	"encoding/json"
	"time"
)

const (
	MatchesTableName      = "matches"
	ParticipantsTableName = "match_participants"
)

// Match is one completed game. Raw keeps the full normalized payload from the data source.
type Match struct {
	ID           int64           `json:"id"`
	MatchID      string          `json:"match_id"`
	DataVersion  string          `json:"data_version,omitempty"`
	GameCreation *time.Time      `json:"game_creation,omitempty"`
	GameDuration int             `json:"game_duration"`
	QueueID      int             `json:"queue_id"`
	Platform     string          `json:"platform"`
	Routing      string          `json:"routing"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Year returns the UTC year the game was created in. ok is false when the creation time is unknown.
func (m *Match) Year() (year int, ok bool) {
	if m == nil || m.GameCreation == nil || m.GameCreation.IsZero() {
		return 0, false
	}
	return m.GameCreation.UTC().Year(), true
}

// Participant is one player's line in a match. (MatchID, PUUID) is unique.
type Participant struct {
	ID                   int64   `json:"id"`
	MatchID              string  `json:"match_id"`
	SummonerID           int64   `json:"summoner_id"`
	PUUID                string  `json:"puuid"`
	SummonerName         string  `json:"summoner_name"`
	TeamID               int     `json:"team_id"`
	ChampionID           int     `json:"champion_id"`
	ChampionName         string  `json:"champion_name,omitempty"`
	Role                 string  `json:"role,omitempty"`
	Lane                 string  `json:"lane,omitempty"`
	Kills                int     `json:"kills"`
	Deaths               int     `json:"deaths"`
	Assists              int     `json:"assists"`
	Win                  bool    `json:"win"`
	GoldEarned           int     `json:"gold_earned"`
	TotalMinionsKilled   int     `json:"total_minions_killed"`
	NeutralMinionsKilled int     `json:"neutral_minions_killed"`
	DamageToChampions    int     `json:"damage_to_champions"`
	Items                []int32 `json:"items"`
	Spell1               int     `json:"spell1"`
	Spell2               int     `json:"spell2"`
	PerkPrimaryStyle     int     `json:"perk_primary_style"`
	PerkSubStyle         int     `json:"perk_sub_style"`
}

// ParticipantRow is a participant joined with the match attributes aggregation needs.
type ParticipantRow struct {
	Participant
	GameCreation *time.Time
	Platform     string
}
