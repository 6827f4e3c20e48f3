package maintenance

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/riftrewind/rewindx/pkg/jobs"
	"go.uber.org/zap"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusWarning   Status = "warning"
	StatusUnhealthy Status = "unhealthy"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

type ComponentHealth struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type HealthReport struct {
	Status     Status                     `json:"status"`
	Message    string                     `json:"message"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Health probes the database and every registered check. The database is required; other
// failures only downgrade the report to warning. A report is returned even when unhealthy.
func (s *Service) Health(ctx context.Context, _ jobs.HealthCheckJob) (HealthReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	report := HealthReport{Status: StatusHealthy, Components: map[string]ComponentHealth{}, CheckedAt: s.now()}
	probe := func(name string, c Check) bool {
		if err := c(ctx); err != nil {
			report.Components[name] = ComponentHealth{Error: err.Error()}
			return false
		}
		report.Components[name] = ComponentHealth{OK: true}
		return true
	}

	if !probe("database", s.Store.Ping) {
		report.Status = StatusUnhealthy
	}
	names := make([]string, 0, len(s.Checks))
	for name := range s.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !probe(name, s.Checks[name]) && report.Status == StatusHealthy {
			report.Status = StatusWarning
		}
	}

	var failing []string
	for _, name := range append([]string{"database"}, names...) {
		if !report.Components[name].OK {
			failing = append(failing, name)
		}
	}
	switch report.Status {
	case StatusHealthy:
		report.Message = "all components operational"
	default:
		report.Message = "failing: " + strings.Join(failing, ", ")
	}
	s.Logger.Debug("Health check", zap.String("status", string(report.Status)), zap.String("message", report.Message))
	return report, nil
}
