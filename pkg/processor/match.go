package processor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/riftrewind/rewindx/pkg/aggregate"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/riot"
	"go.uber.org/zap"
)

// MatchProcessor fetches a match and commits it with its participants in one transaction.
type MatchProcessor struct {
	Logger     *zap.Logger
	Store      Store
	API        riot.API
	Aggregator *aggregate.Aggregator
	// Submitter receives the follow-up timeline job. Nil disables timeline fan-out.
	Submitter jobs.Submitter
}

// Process is safe to re-run: the match and participants are upserted and aggregates only see
// participant rows this call created.
func (p *MatchProcessor) Process(ctx context.Context, in jobs.MatchJob) (MatchResult, error) {
	out := MatchResult{MatchID: in.MatchID}
	routing := in.Routing
	if routing == "" {
		routing = riot.RoutingForPlatform(in.Platform)
	}

	remote, err := p.API.GetMatch(ctx, routing, in.MatchID)
	if err != nil {
		return out, fmt.Errorf("fetch match %s: %w", in.MatchID, err)
	}

	platform := in.Platform
	if platform == "" {
		platform = strings.ToLower(remote.Info.PlatformID)
	}
	match := &models.Match{
		MatchID:      in.MatchID,
		DataVersion:  remote.Metadata.DataVersion,
		GameCreation: remote.Info.CreatedAt(),
		GameDuration: remote.Info.GameDuration,
		QueueID:      remote.Info.QueueID,
		Platform:     platform,
		Routing:      routing,
		Raw:          remote.Raw,
	}

	participants := append([]riot.Participant(nil), remote.Info.Participants...)
	sort.Slice(participants, func(i, j int) bool { return participants[i].PUUID < participants[j].PUUID })

	requesterPlayed := false
	err = p.Store.WithinTx(ctx, func(ctx context.Context) error {
		created, err := p.Store.UpsertMatch(ctx, match)
		if err != nil {
			return err
		}
		out.Created = created
		out.NewParticipants = 0
		out.ParticipantCount = 0

		for _, rp := range participants {
			if rp.PUUID == "" {
				continue
			}
			sum := models.NewPlaceholderSummoner(rp.PUUID, rp.SummonerID, rp.DisplayName(), platform, routing)
			sum.TagLine = rp.RiotIDTagline
			if _, err := p.Store.EnsureSummoner(ctx, sum); err != nil {
				return fmt.Errorf("ensure summoner %s: %w", rp.PUUID, err)
			}

			row := toParticipant(in.MatchID, sum.ID, rp)
			isNew, err := p.Store.UpsertParticipant(ctx, row)
			if err != nil {
				return fmt.Errorf("upsert participant %s: %w", rp.PUUID, err)
			}
			out.ParticipantCount++
			if rp.PUUID == in.PUUID {
				requesterPlayed = true
			}
			if !isNew {
				continue
			}
			out.NewParticipants++
			if _, err := p.Aggregator.Increment(ctx, row, match); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return MatchResult{MatchID: in.MatchID}, fmt.Errorf("commit match %s: %w", in.MatchID, err)
	}

	out.Success = true
	if requesterPlayed && p.Submitter != nil {
		_, err := p.Submitter.Submit(context.WithoutCancel(ctx), jobs.TypeProcessTimeline, jobs.TimelineJob{
			MatchID:  in.MatchID,
			Platform: platform,
			Routing:  routing,
		})
		if err != nil {
			p.Logger.Warn("Timeline submit failed", zap.String("match_id", in.MatchID), zap.Error(err))
		} else {
			out.TimelineEnqueued = true
		}
	}

	p.Logger.Debug("Match processed",
		zap.String("match_id", in.MatchID),
		zap.Bool("created", out.Created),
		zap.Int("participants", out.ParticipantCount),
		zap.Int("new_participants", out.NewParticipants),
	)
	return out, nil
}

func toParticipant(matchID string, summonerID int64, rp riot.Participant) *models.Participant {
	return &models.Participant{
		MatchID:              matchID,
		SummonerID:           summonerID,
		PUUID:                rp.PUUID,
		SummonerName:         rp.DisplayName(),
		TeamID:               rp.TeamID,
		ChampionID:           rp.ChampionID,
		ChampionName:         rp.ChampionName,
		Role:                 rp.Role,
		Lane:                 rp.Lane,
		Kills:                rp.Kills,
		Deaths:               rp.Deaths,
		Assists:              rp.Assists,
		Win:                  rp.Win,
		GoldEarned:           rp.GoldEarned,
		TotalMinionsKilled:   rp.TotalMinionsKilled,
		NeutralMinionsKilled: rp.NeutralMinionsKilled,
		DamageToChampions:    rp.DamageToChampions,
		Items:                rp.Items(),
		Spell1:               rp.Summoner1ID,
		Spell2:               rp.Summoner2ID,
		PerkPrimaryStyle:     rp.Perks.Style("primaryStyle"),
		PerkSubStyle:         rp.Perks.Style("subStyle"),
	}
}
