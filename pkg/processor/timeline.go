package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/riftrewind/rewindx/pkg/db"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/retry"
	"github.com/riftrewind/rewindx/pkg/riot"
	"go.uber.org/zap"
)

// TimelineProcessor stores at most one timeline per match.
type TimelineProcessor struct {
	Logger *zap.Logger
	Store  Store
	API    riot.API
}

func (p *TimelineProcessor) Process(ctx context.Context, in jobs.TimelineJob) (TimelineResult, error) {
	out := TimelineResult{MatchID: in.MatchID}

	exists, err := p.Store.HasTimeline(ctx, in.MatchID)
	if err != nil {
		return out, err
	}
	if exists {
		out.Status = StatusAlreadyExists
		return out, nil
	}

	match, err := p.Store.GetMatch(ctx, in.MatchID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return out, retry.Permanent(fmt.Errorf("timeline %s: %w", in.MatchID, ErrRecordNotFound))
		}
		return out, err
	}

	routing := in.Routing
	if routing == "" {
		routing = match.Routing
	}
	if routing == "" {
		routing = riot.RoutingForPlatform(match.Platform)
	}
	remote, err := p.API.GetTimeline(ctx, routing, in.MatchID)
	if err != nil {
		return out, fmt.Errorf("fetch timeline %s: %w", in.MatchID, err)
	}

	created, err := p.Store.InsertTimeline(ctx, &models.Timeline{
		MatchID:       in.MatchID,
		DataVersion:   remote.Metadata.DataVersion,
		FrameInterval: remote.Info.FrameInterval,
		Raw:           remote.Raw,
	})
	if err != nil {
		return out, fmt.Errorf("insert timeline %s: %w", in.MatchID, err)
	}
	if created {
		out.Status = StatusCreated
	} else {
		// a concurrent job got there first
		out.Status = StatusAlreadyExists
	}
	p.Logger.Debug("Timeline processed", zap.String("match_id", in.MatchID), zap.String("status", string(out.Status)))
	return out, nil
}
