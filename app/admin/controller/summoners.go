package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/riftrewind/rewindx/pkg/db"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/maintenance"
	"github.com/riftrewind/rewindx/pkg/orchestrator"
	"github.com/riftrewind/rewindx/pkg/riot"
	"go.uber.org/zap"
)

// PlayerRequest is the body of the lookup, sync and recover endpoints.
type PlayerRequest struct {
	GameName string `json:"game_name"`
	TagLine  string `json:"tag_line"`
	Platform string `json:"platform"`
	Year     int    `json:"year,omitempty"`
}

// SyncAccepted is returned when a sync job was queued.
type SyncAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Year   int    `json:"year"`
}

// SummonerStatus reports how much of a player's year is stored.
type SummonerStatus struct {
	Summoner        *models.Summoner    `json:"summoner"`
	Year            int                 `json:"year"`
	MatchesInDB     int64               `json:"matches_in_db"`
	MatchesInYear   int64               `json:"matches_in_year"`
	TimelinesInYear int64               `json:"timelines_in_year"`
	Stats           *models.YearlyStats `json:"stats"`
	LastSyncedAt    *time.Time          `json:"last_synced_at,omitempty"`
	Synced          bool                `json:"synced"`
}

// validate normalizes in and reports the first problem found.
func (in *PlayerRequest) validate(defaultYear int, needYear bool) error {
	in.GameName = strings.TrimSpace(in.GameName)
	in.TagLine = strings.TrimPrefix(strings.TrimSpace(in.TagLine), "#")
	in.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
	if in.GameName == "" || in.TagLine == "" {
		return errors.New("game_name and tag_line are required")
	}
	if in.Platform == "" {
		in.Platform = "euw1"
	}
	if riot.RoutingForPlatform(in.Platform) == "" {
		return errors.New("unknown platform " + in.Platform)
	}
	if !needYear {
		return nil
	}
	if in.Year == 0 {
		in.Year = defaultYear
	}
	return maintenance.ValidateYear(in.Year)
}

func decodePlayer(r *http.Request, defaultYear int, needYear bool) (PlayerRequest, error) {
	var in PlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		return in, errors.New("bad json")
	}
	err := in.validate(defaultYear, needYear)
	return in, err
}

// HandleLookup resolves a riot id and stores the identity.
func (c *Controller) HandleLookup(w http.ResponseWriter, r *http.Request) {
	in, err := decodePlayer(r, c.App.DefaultYear, false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := c.App.Core.Orchestrator.Lookup(r.Context(), orchestrator.Request{
		GameName: in.GameName,
		TagLine:  in.TagLine,
		Platform: in.Platform,
	})
	if errors.Is(err, riot.ErrNotFound) {
		writeError(w, http.StatusNotFound, "riot id not found")
		return
	}
	if err != nil {
		c.App.Logger.Warn("Lookup failed", zap.String("game_name", in.GameName), zap.String("tag_line", in.TagLine), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleSync queues a fresh sync of one player year.
func (c *Controller) HandleSync(w http.ResponseWriter, r *http.Request) {
	c.submitPlayer(w, r, jobs.TypePlayerSync)
}

// HandleRecover queues a recovery sync that only dispatches what is missing.
func (c *Controller) HandleRecover(w http.ResponseWriter, r *http.Request) {
	c.submitPlayer(w, r, jobs.TypeRecovery)
}

func (c *Controller) submitPlayer(w http.ResponseWriter, r *http.Request, t jobs.Type) {
	in, err := decodePlayer(r, c.App.DefaultYear, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h, err := c.App.Core.Submitter.Submit(r.Context(), t, jobs.PlayerJob{
		GameName: in.GameName,
		TagLine:  in.TagLine,
		Platform: in.Platform,
		Year:     in.Year,
	})
	if err != nil {
		c.App.Logger.Error("Failed to queue sync", zap.String("type", string(t)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to queue job")
		return
	}
	c.App.Logger.Info("Sync queued",
		zap.String("job_id", h.ID()),
		zap.String("type", string(t)),
		zap.String("game_name", in.GameName),
		zap.String("tag_line", in.TagLine),
		zap.Int("year", in.Year),
		zap.String("requested_by", c.currentUser(r)),
	)
	writeJSON(w, http.StatusAccepted, SyncAccepted{JobID: h.ID(), Status: "queued", Year: in.Year})
}

// HandleSummonerStatus reports stored matches, timelines and the yearly aggregate of a player.
func (c *Controller) HandleSummonerStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := PlayerRequest{GameName: q.Get("game_name"), TagLine: q.Get("tag_line"), Platform: q.Get("platform")}
	if y := q.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be a number")
			return
		}
		in.Year = year
	}
	if err := in.validate(c.App.DefaultYear, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	store := c.App.Core.Store
	sum, err := store.FindSummonerByRiotID(ctx, in.GameName, in.TagLine, in.Platform)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "summoner not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := SummonerStatus{Summoner: sum, Year: in.Year, LastSyncedAt: sum.LastSyncedAt, Synced: sum.LastSyncedAt != nil}
	window := riot.YearWindow(in.Year)
	if out.MatchesInDB, err = store.CountMatchesForPUUID(ctx, sum.PUUID, time.Unix(0, 0).UTC(), time.Now().UTC().AddDate(1, 0, 0)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out.MatchesInYear, err = store.CountMatchesForPUUID(ctx, sum.PUUID, window.Start, window.End); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out.TimelinesInYear, err = store.CountTimelinesForPUUID(ctx, sum.PUUID, window.Start, window.End); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stats, err := store.GetYearlyStats(ctx, models.YearlyStatsKey{SummonerID: sum.ID, Year: in.Year, Platform: in.Platform})
	switch {
	case err == nil:
		out.Stats = stats
	case !errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSummonersList pages through stored identities. Query: platform, limit (max 200), offset.
func (c *Controller) HandleSummonersList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := c.App.Core.Store.ListSummoners(r.Context(), strings.ToLower(q.Get("platform")), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summoners": rows, "limit": limit, "offset": offset})
}
