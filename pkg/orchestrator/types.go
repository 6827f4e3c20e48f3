package orchestrator

import (
	"errors"
	"time"

	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
)

// ErrAlreadyRunning is returned when a run for the same player and year is in progress.
var ErrAlreadyRunning = errors.New("sync already running for player and year")

// State is a step of the sync state machine.
type State string

const (
	StateFetchIdentity    State = "fetch_identity"
	StateFetchRemoteIDs   State = "fetch_remote_ids"
	StateAnalyzeGaps      State = "analyze_gaps"
	StateDispatchBatches  State = "dispatch_batches"
	StateAwaitResults     State = "await_results"
	StateUpdateAggregates State = "update_aggregates"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// percent is the progress reported on entering a state.
var percent = map[State]int{
	StateFetchIdentity:    5,
	StateFetchRemoteIDs:   15,
	StateAnalyzeGaps:      25,
	StateDispatchBatches:  30,
	StateAwaitResults:     85,
	StateUpdateAggregates: 90,
	StateDone:             100,
}

type Mode string

const (
	// ModeFresh dispatches every listed match; stored ones are cheap no-op re-runs.
	ModeFresh Mode = "fresh"
	// ModeRecovery dispatches only missing matches, then missing timelines of stored matches.
	ModeRecovery Mode = "recovery"
)

// Request identifies the player and year to sync.
type Request struct {
	GameName string
	TagLine  string
	Platform string
	Routing  string
	Year     int
	Mode     Mode
}

// Result summarizes one run.
type Result struct {
	Mode     Mode                `json:"mode"`
	State    State               `json:"state"`
	Year     int                 `json:"year"`
	Summoner *models.Summoner    `json:"summoner,omitempty"`
	Stats    *models.YearlyStats `json:"stats,omitempty"`

	TotalRecords     int `json:"total_records"`
	ExistingRecords  int `json:"existing_records"`
	ProcessedRecords int `json:"processed_records"`
	FailedRecords    int `json:"failed_records"`

	ProcessedSubRecords int `json:"processed_sub_records"`
	FailedSubRecords    int `json:"failed_sub_records"`

	FailedIDs          []string      `json:"failed_ids"`
	FailedSubRecordIDs []string      `json:"failed_sub_record_ids,omitempty"`
	Error              string        `json:"error,omitempty"`
	Took               time.Duration `json:"took"`
}
