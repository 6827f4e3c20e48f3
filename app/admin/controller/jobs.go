package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/maintenance"
	"github.com/riftrewind/rewindx/pkg/redis"
	"go.uber.org/zap"
)

// HandleJobProgress returns the last progress a job reported.
func (c *Controller) HandleJobProgress(w http.ResponseWriter, r *http.Request) {
	if c.App.Progress == nil {
		writeError(w, http.StatusServiceUnavailable, "job progress not available (Redis disabled)")
		return
	}
	id := mux.Vars(r)["id"]
	p, err := c.App.Progress.GetProgress(r.Context(), id)
	if errors.Is(err, redis.ErrNoProgress) {
		writeError(w, http.StatusNotFound, "no progress for job")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "progress": p})
}

// HandleCleanup queues a retention cleanup. Body: {"retention_days": 30}; empty means the default.
func (c *Controller) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	var in jobs.CleanupJob
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
	}
	if in.RetentionDays < 0 {
		writeError(w, http.StatusBadRequest, "retention_days must not be negative")
		return
	}
	c.submit(w, r, jobs.TypeCleanup, in)
}

// HandleRecompute queues a rebuild of every aggregate of a year. Body: {"year": 2025, "platform": "euw1"}.
func (c *Controller) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	var in jobs.RecomputeJob
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if in.Year == 0 {
		in.Year = c.App.DefaultYear
	}
	if err := maintenance.ValidateYear(in.Year); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
	c.submit(w, r, jobs.TypeRecomputeStats, in)
}

func (c *Controller) submit(w http.ResponseWriter, r *http.Request, t jobs.Type, payload any) {
	h, err := c.App.Core.Submitter.Submit(r.Context(), t, payload)
	if err != nil {
		c.App.Logger.Error("Failed to queue job", zap.String("type", string(t)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to queue job")
		return
	}
	c.App.Logger.Info("Job queued",
		zap.String("job_id", h.ID()),
		zap.String("type", string(t)),
		zap.String("requested_by", c.currentUser(r)),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": h.ID(), "status": "queued"})
}
