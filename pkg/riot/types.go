package riot

import (
	"encoding/json"
	"strings"
	"time"
)

// Identity is a resolved player. The summoner fields are empty when enrichment failed.
type Identity struct {
	PUUID         string `json:"puuid"`
	GameName      string `json:"gameName"`
	TagLine       string `json:"tagLine"`
	SummonerID    string `json:"id,omitempty"`
	AccountID     string `json:"accountId,omitempty"`
	ProfileIconID int    `json:"profileIconId,omitempty"`
	SummonerLevel int    `json:"summonerLevel,omitempty"`
}

type summonerDTO struct {
	ID            string `json:"id"`
	AccountID     string `json:"accountId"`
	PUUID         string `json:"puuid"`
	ProfileIconID int    `json:"profileIconId"`
	SummonerLevel int    `json:"summonerLevel"`
}

// Window restricts match listing to games started in [Start, End). Zero values are open ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// YearWindow covers one UTC calendar year.
func YearWindow(year int) Window {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(1, 0, 0)}
}

// Match is a match-v5 document. Raw holds the body exactly as received.
type Match struct {
	Metadata MatchMetadata   `json:"metadata"`
	Info     MatchInfo       `json:"info"`
	Raw      json.RawMessage `json:"-"`
}

type MatchMetadata struct {
	DataVersion  string   `json:"dataVersion"`
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

type MatchInfo struct {
	GameCreation int64         `json:"gameCreation"`
	GameDuration int           `json:"gameDuration"`
	QueueID      int           `json:"queueId"`
	PlatformID   string        `json:"platformId"`
	Participants []Participant `json:"participants"`
}

// CreatedAt converts the epoch-millisecond creation time; nil when absent.
func (i MatchInfo) CreatedAt() *time.Time {
	if i.GameCreation <= 0 {
		return nil
	}
	t := time.UnixMilli(i.GameCreation).UTC()
	return &t
}

// Participant carries the per-player fields the store keeps.
type Participant struct {
	PUUID                string `json:"puuid"`
	SummonerID           string `json:"summonerId"`
	SummonerName         string `json:"summonerName"`
	RiotIDGameName       string `json:"riotIdGameName"`
	RiotIDTagline        string `json:"riotIdTagline"`
	TeamID               int    `json:"teamId"`
	ChampionID           int    `json:"championId"`
	ChampionName         string `json:"championName"`
	Role                 string `json:"role"`
	Lane                 string `json:"lane"`
	Kills                int    `json:"kills"`
	Deaths               int    `json:"deaths"`
	Assists              int    `json:"assists"`
	Win                  bool   `json:"win"`
	GoldEarned           int    `json:"goldEarned"`
	TotalMinionsKilled   int    `json:"totalMinionsKilled"`
	NeutralMinionsKilled int    `json:"neutralMinionsKilled"`
	DamageToChampions    int    `json:"totalDamageDealtToChampions"`
	Item0                int32  `json:"item0"`
	Item1                int32  `json:"item1"`
	Item2                int32  `json:"item2"`
	Item3                int32  `json:"item3"`
	Item4                int32  `json:"item4"`
	Item5                int32  `json:"item5"`
	Item6                int32  `json:"item6"`
	Summoner1ID          int    `json:"summoner1Id"`
	Summoner2ID          int    `json:"summoner2Id"`
	Perks                Perks  `json:"perks"`
}

// Items returns the seven loadout slots in order.
func (p Participant) Items() []int32 {
	return []int32{p.Item0, p.Item1, p.Item2, p.Item3, p.Item4, p.Item5, p.Item6}
}

// DisplayName prefers the riot id game name over the legacy summoner name.
func (p Participant) DisplayName() string {
	if p.RiotIDGameName != "" {
		return p.RiotIDGameName
	}
	return p.SummonerName
}

type Perks struct {
	Styles []PerkStyle `json:"styles"`
}

type PerkStyle struct {
	Description string `json:"description"`
	Style       int    `json:"style"`
}

// Style returns the style id with the given description ("primaryStyle", "subStyle").
func (p Perks) Style(description string) int {
	for _, s := range p.Styles {
		if s.Description == description {
			return s.Style
		}
	}
	return 0
}

// Timeline is a match-v5 timeline document. Raw holds the body exactly as received.
type Timeline struct {
	Metadata struct {
		DataVersion string `json:"dataVersion"`
		MatchID     string `json:"matchId"`
	} `json:"metadata"`
	Info struct {
		FrameInterval int `json:"frameInterval"`
	} `json:"info"`
	Raw json.RawMessage `json:"-"`
}

var platformRouting = map[string]string{
	"na1": "americas", "br1": "americas", "la1": "americas", "la2": "americas",
	"euw1": "europe", "eun1": "europe", "tr1": "europe", "ru": "europe", "me1": "europe",
	"kr": "asia", "jp1": "asia",
	"oc1": "sea", "ph2": "sea", "sg2": "sea", "th2": "sea", "tw2": "sea", "vn2": "sea",
}

// RoutingForPlatform returns the regional cluster serving platform, or "" when unknown.
func RoutingForPlatform(platform string) string {
	return platformRouting[strings.ToLower(platform)]
}
