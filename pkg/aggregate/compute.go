package aggregate

import (
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
)

// Derive rewrites every ratio of s from its counters. Zero matches leaves every ratio at zero.
func Derive(s *models.YearlyStats) {
	s.WinRate, s.KDARatio = 0, 0
	s.AverageKills, s.AverageDeaths, s.AverageAssists = 0, 0, 0
	s.AverageGoldPerMatch, s.AverageCSPerMatch = 0, 0
	if s.TotalMatches <= 0 {
		return
	}
	n := float64(s.TotalMatches)
	s.WinRate = float64(s.Wins) / n * 100
	s.AverageKills = float64(s.TotalKills) / n
	s.AverageDeaths = float64(s.TotalDeaths) / n
	s.AverageAssists = float64(s.TotalAssists) / n
	s.AverageGoldPerMatch = float64(s.TotalGoldEarned) / n
	s.AverageCSPerMatch = float64(s.TotalMinionsKilled+s.TotalNeutralMinionsKilled) / n
	s.KDARatio = KDA(s.TotalKills, s.TotalDeaths, s.TotalAssists)
}

// KDA is (kills+assists)/deaths, or kills+assists when the player never died.
func KDA(kills, deaths, assists int64) float64 {
	if deaths == 0 {
		return float64(kills + assists)
	}
	return float64(kills+assists) / float64(deaths)
}

// addCounters adds one participant's contribution to the counters of s.
func addCounters(s *models.YearlyStats, p *models.Participant) {
	s.TotalMatches++
	if p.Win {
		s.Wins++
	} else {
		s.Losses++
	}
	s.TotalKills += int64(p.Kills)
	s.TotalDeaths += int64(p.Deaths)
	s.TotalAssists += int64(p.Assists)
	s.TotalGoldEarned += int64(p.GoldEarned)
	s.TotalMinionsKilled += int64(p.TotalMinionsKilled)
	s.TotalNeutralMinionsKilled += int64(p.NeutralMinionsKilled)
	s.TotalDamageToChampions += int64(p.DamageToChampions)
}

// Compute builds the aggregate for key from scratch. rows must be in game creation order;
// ties for most played champion go to the champion seen first.
func Compute(key models.YearlyStatsKey, rows []models.ParticipantRow) models.YearlyStats {
	s := models.YearlyStats{SummonerID: key.SummonerID, Year: key.Year, Platform: key.Platform}

	champions := map[string]int{}
	order := make([]string, 0)
	roles := map[string]struct{}{}
	lanes := map[string]struct{}{}
	for i := range rows {
		p := &rows[i].Participant
		addCounters(&s, p)
		if p.ChampionName != "" {
			if _, seen := champions[p.ChampionName]; !seen {
				order = append(order, p.ChampionName)
			}
			champions[p.ChampionName]++
		}
		if p.Role != "" {
			roles[p.Role] = struct{}{}
		}
		if p.Lane != "" {
			lanes[p.Lane] = struct{}{}
		}
	}

	s.UniqueChampionsPlayed = len(champions)
	s.UniqueRolesPlayed = len(roles)
	s.UniqueLanesPlayed = len(lanes)
	for _, name := range order {
		if champions[name] > s.MostPlayedChampionCount {
			s.MostPlayedChampion = name
			s.MostPlayedChampionCount = champions[name]
		}
	}

	Derive(&s)
	return s
}
