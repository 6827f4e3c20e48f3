package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/riftrewind/rewindx/pkg/jobs"
)

// ProgressTTL is how long a job's last progress stays readable.
const ProgressTTL = 24 * time.Hour

// ErrNoProgress is returned for jobs that never reported or whose entry expired.
var ErrNoProgress = errors.New("no progress recorded for job")

// ProgressKey holds the latest progress of a job.
func ProgressKey(jobID string) string { return "rewind:job:" + jobID }

// ProgressChannel receives every progress update of a job.
func ProgressChannel(jobID string) string { return "rewind:jobs:" + jobID }

// ProgressStore keeps the latest progress per job and fans updates out over pub/sub.
type ProgressStore struct {
	c   *Client
	ttl time.Duration
}

var _ jobs.ProgressReporter = (*ProgressStore)(nil)

func NewProgressStore(c *Client) *ProgressStore {
	return &ProgressStore{c: c, ttl: ProgressTTL}
}

// ReportProgress overwrites the stored progress and publishes it.
func (s *ProgressStore) ReportProgress(ctx context.Context, jobID string, p jobs.Progress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := s.c.client.Set(ctx, ProgressKey(jobID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store progress %s: %w", jobID, err)
	}
	s.c.Publish(ctx, ProgressChannel(jobID), data)
	return nil
}

// GetProgress returns the last stored progress of jobID.
func (s *ProgressStore) GetProgress(ctx context.Context, jobID string) (jobs.Progress, error) {
	var p jobs.Progress
	data, err := s.c.client.Get(ctx, ProgressKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return p, ErrNoProgress
	}
	if err != nil {
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode progress %s: %w", jobID, err)
	}
	return p, nil
}

// Watch streams progress updates of jobID until ctx ends. The channel is closed on return.
func (s *ProgressStore) Watch(ctx context.Context, jobID string) (<-chan jobs.Progress, error) {
	sub := s.c.Subscribe(ctx, ProgressChannel(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", jobID, err)
	}

	out := make(chan jobs.Progress, 16)
	go func() {
		defer close(out)
		defer func() { _ = sub.Close() }()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var p jobs.Progress
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					continue
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
