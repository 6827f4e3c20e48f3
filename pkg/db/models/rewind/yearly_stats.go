package rewind

import "time"

const YearlyStatsTableName = "player_yearly_stats"

// YearlyStatsKey identifies one aggregate row.
type YearlyStatsKey struct {
	SummonerID int64
	Year       int
	Platform   string
}

// YearlyStats is the per player, year and platform aggregate. Ratio fields are derived from
// the counters and rewritten on every save.
type YearlyStats struct {
	ID         int64  `json:"id"`
	SummonerID int64  `json:"summoner_id"`
	Year       int    `json:"year"`
	Platform   string `json:"platform"`

	TotalMatches              int64 `json:"total_matches"`
	Wins                      int64 `json:"wins"`
	Losses                    int64 `json:"losses"`
	TotalKills                int64 `json:"total_kills"`
	TotalDeaths               int64 `json:"total_deaths"`
	TotalAssists              int64 `json:"total_assists"`
	TotalGoldEarned           int64 `json:"total_gold_earned"`
	TotalMinionsKilled        int64 `json:"total_minions_killed"`
	TotalNeutralMinionsKilled int64 `json:"total_neutral_minions_killed"`
	TotalDamageToChampions    int64 `json:"total_damage_to_champions"`

	UniqueChampionsPlayed   int    `json:"unique_champions_played"`
	UniqueRolesPlayed       int    `json:"unique_roles_played"`
	UniqueLanesPlayed       int    `json:"unique_lanes_played"`
	MostPlayedChampion      string `json:"most_played_champion,omitempty"`
	MostPlayedChampionCount int    `json:"most_played_champion_count"`

	WinRate             float64 `json:"win_rate"`
	KDARatio            float64 `json:"kda_ratio"`
	AverageKills        float64 `json:"average_kills"`
	AverageDeaths       float64 `json:"average_deaths"`
	AverageAssists      float64 `json:"average_assists"`
	AverageGoldPerMatch float64 `json:"average_gold_per_match"`
	AverageCSPerMatch   float64 `json:"average_cs_per_match"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the natural key of the row.
func (s *YearlyStats) Key() YearlyStatsKey {
	return YearlyStatsKey{SummonerID: s.SummonerID, Year: s.Year, Platform: s.Platform}
}

// YearBounds returns the half-open UTC interval [from, to) covering year.
func YearBounds(year int) (from, to time.Time) {
	from = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0)
}
