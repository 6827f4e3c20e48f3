// Package gaps computes which remote match ids are missing locally so an interrupted sync can resume.
package gaps

import (
	"context"
	"fmt"

	"github.com/riftrewind/rewindx/pkg/db"
)

// Set is a membership set of match ids.
type Set map[string]struct{}

// Result splits a requested id list. Present and MissingRecords partition the request;
// MissingSubRecords is the part of Present without a stored timeline.
// Every slice keeps request order with duplicates collapsed.
type Result struct {
	Present           []string `json:"present"`
	MissingRecords    []string `json:"missing_records"`
	MissingSubRecords []string `json:"missing_sub_records"`
}

// Requested returns the number of distinct ids that were analyzed.
func (r Result) Requested() int {
	return len(r.Present) + len(r.MissingRecords)
}

// Analyze is the pure part of gap analysis.
func Analyze(requested []string, present, withTimeline Set) Result {
	res := Result{
		Present:           make([]string, 0),
		MissingRecords:    make([]string, 0),
		MissingSubRecords: make([]string, 0),
	}
	seen := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if _, ok := present[id]; !ok {
			res.MissingRecords = append(res.MissingRecords, id)
			continue
		}
		res.Present = append(res.Present, id)
		if _, ok := withTimeline[id]; !ok {
			res.MissingSubRecords = append(res.MissingSubRecords, id)
		}
	}
	return res
}

// Analyzer runs Analyze against the record store.
type Analyzer struct {
	Store db.GapStore
}

// NewAnalyzer returns an Analyzer backed by store.
func NewAnalyzer(store db.GapStore) *Analyzer {
	return &Analyzer{Store: store}
}

// Analyze queries which of requested are stored and which of those have a timeline.
func (a *Analyzer) Analyze(ctx context.Context, requested []string) (Result, error) {
	if len(requested) == 0 {
		return Analyze(nil, nil, nil), nil
	}
	present, err := a.Store.ExistingMatchIDs(ctx, requested)
	if err != nil {
		return Result{}, fmt.Errorf("query stored matches: %w", err)
	}
	stored := make([]string, 0, len(present))
	for id := range present {
		stored = append(stored, id)
	}
	withTimeline, err := a.Store.ExistingTimelineMatchIDs(ctx, stored)
	if err != nil {
		return Result{}, fmt.Errorf("query stored timelines: %w", err)
	}
	return Analyze(requested, present, withTimeline), nil
}
