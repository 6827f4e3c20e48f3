// Package processor commits single units of sync work: one match with its participants and
// aggregate updates, or one timeline.
package processor

import (
	"errors"

	"github.com/riftrewind/rewindx/pkg/db"
)

// ErrRecordNotFound is returned when a timeline is requested for a match that is not stored.
var ErrRecordNotFound = errors.New("match not stored")

// Store is what the processors need from the record store.
type Store interface {
	db.TxRunner
	db.SummonerStore
	db.MatchStore
}

type MatchResult struct {
	MatchID          string `json:"match_id"`
	Success          bool   `json:"success"`
	Created          bool   `json:"created"`
	ParticipantCount int    `json:"participant_count"`
	// NewParticipants counts rows created by this run; only those were added to aggregates.
	NewParticipants  int  `json:"new_participants"`
	TimelineEnqueued bool `json:"timeline_enqueued"`
}

type TimelineStatus string

const (
	StatusCreated       TimelineStatus = "created"
	StatusAlreadyExists TimelineStatus = "already_exists"
)

type TimelineResult struct {
	MatchID string         `json:"match_id"`
	Status  TimelineStatus `json:"status"`
}
