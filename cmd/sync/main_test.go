package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/riftrewind/rewindx/pkg/db/memory"
	"github.com/riftrewind/rewindx/pkg/orchestrator"
	"github.com/riftrewind/rewindx/pkg/riot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type emptyAccount struct{}

func (emptyAccount) ResolveIdentity(_ context.Context, _, _, gameName, tagLine string) (*riot.Identity, error) {
	return &riot.Identity{PUUID: "p-" + gameName, GameName: gameName, TagLine: tagLine}, nil
}
func (emptyAccount) ListMatchIDs(context.Context, string, string, riot.Window, int) ([]string, error) {
	return []string{}, nil
}
func (emptyAccount) GetMatch(context.Context, string, string) (*riot.Match, error) {
	return nil, riot.ErrNotFound
}
func (emptyAccount) GetTimeline(context.Context, string, string) (*riot.Timeline, error) {
	return nil, riot.ErrNotFound
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"-name", "Faker", "-tag", "KR1", "-platform", "kr", "-year", "2024", "-mode", "recovery", "-store", "memory"})
	require.NoError(t, err)
	assert.Equal(t, options{Name: "Faker", Tag: "KR1", Platform: "kr", Year: 2024, Mode: "recovery", Store: "memory", Timeout: 30 * time.Minute}, o)

	for name, args := range map[string][]string{
		"missing tag":   {"-name", "Faker"},
		"unknown mode":  {"-name", "Faker", "-tag", "KR1", "-mode", "partial"},
		"unknown store": {"-name", "Faker", "-tag", "KR1", "-store", "sqlite"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseFlags(args)
			assert.Error(t, err)
		})
	}
}

func TestRunPrintsResult(t *testing.T) {
	t.Setenv("JOB_BACKEND", "temporal") // always overridden to the in-process backend
	t.Setenv("LOCAL_DISABLE_RATE_LIMITS", "true")

	store := memory.New()
	var out bytes.Buffer
	o := options{Name: "Faker", Tag: "KR1", Platform: "kr", Year: 2024, Mode: "fresh", Store: "memory", Timeout: 10 * time.Second}
	require.NoError(t, run(context.Background(), zaptest.NewLogger(t), o, store, emptyAccount{}, &out))

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, orchestrator.StateDone, res.State)
	assert.Equal(t, 2024, res.Year)
	require.NotNil(t, res.Summoner)
	assert.Equal(t, "p-Faker", res.Summoner.PUUID)

	sum, err := store.FindSummonerByRiotID(context.Background(), "faker", "kr1", "kr")
	require.NoError(t, err)
	assert.NotNil(t, sum.LastSyncedAt)
}
