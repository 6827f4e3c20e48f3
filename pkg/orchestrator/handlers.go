package orchestrator

import (
	"context"
	"errors"

	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/retry"
)

// Register binds the player sync and recovery job types to this orchestrator.
func (o *Orchestrator) Register(reg *jobs.Registry) error {
	if err := reg.Register(jobs.TypePlayerSync, jobs.Typed(o.handler(ModeFresh))); err != nil {
		return err
	}
	return reg.Register(jobs.TypeRecovery, jobs.Typed(o.handler(ModeRecovery)))
}

func (o *Orchestrator) handler(mode Mode) func(ctx context.Context, in jobs.PlayerJob) (Result, error) {
	return func(ctx context.Context, in jobs.PlayerJob) (Result, error) {
		res, err := o.Run(ctx, Request{
			GameName: in.GameName,
			TagLine:  in.TagLine,
			Platform: in.Platform,
			Routing:  in.Routing,
			Year:     in.Year,
			Mode:     mode,
		})
		if errors.Is(err, ErrAlreadyRunning) {
			// the running attempt owns this player and year
			return res, retry.Permanent(err)
		}
		return res, err
	}
}
