package controller

import (
	"net/http"

	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/maintenance"
)

// HandleHealth runs the health probes inline. Unhealthy reports answer 503 so load balancers can act on them.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report, err := c.App.Core.Maintenance.Health(r.Context(), jobs.HealthCheckJob{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if report.Status == maintenance.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
