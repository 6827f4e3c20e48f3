package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/riftrewind/rewindx/pkg/db"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
)

// LockYearlyStats relies on WithinTx for serialization; there is no row-level lock.
func (m *Store) LockYearlyStats(ctx context.Context, key models.YearlyStatsKey) (*models.YearlyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.s.stats[key]
	if !ok {
		if u := undoFrom(ctx); u != nil {
			remember(u.stats, m.s.stats, key)
		}
		now := m.now()
		s = &models.YearlyStats{
			ID:         m.nextID(),
			SummonerID: key.SummonerID,
			Year:       key.Year,
			Platform:   key.Platform,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		m.s.stats[key] = s
	}
	out := *s
	return &out, nil
}

func (m *Store) SaveYearlyStats(ctx context.Context, s *models.YearlyStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := s.Key()
	if u := undoFrom(ctx); u != nil {
		remember(u.stats, m.s.stats, key)
	}
	row := *s
	if existing, ok := m.s.stats[key]; ok {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
	} else {
		row.ID = m.nextID()
		row.CreatedAt = m.now()
	}
	row.UpdatedAt = m.now()
	m.s.stats[key] = &row
	s.ID, s.CreatedAt, s.UpdatedAt = row.ID, row.CreatedAt, row.UpdatedAt
	return nil
}

func (m *Store) GetYearlyStats(_ context.Context, key models.YearlyStatsKey) (*models.YearlyStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.s.stats[key]
	if !ok {
		return nil, fmt.Errorf("yearly stats %+v: %w", key, db.ErrNotFound)
	}
	out := *s
	return &out, nil
}

func (m *Store) ListYearlyStats(_ context.Context, summonerID int64) ([]models.YearlyStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.YearlyStats, 0)
	for _, s := range m.s.stats {
		if s.SummonerID == summonerID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Platform < out[j].Platform
	})
	return out, nil
}

// rowsFor must be called with mu held.
func (m *Store) rowsFor(key models.YearlyStatsKey) []models.ParticipantRow {
	from, to := models.YearBounds(key.Year)
	out := make([]models.ParticipantRow, 0)
	for _, p := range m.s.participants {
		if p.SummonerID != key.SummonerID {
			continue
		}
		match, ok := m.s.matches[p.MatchID]
		if !ok || match.Platform != key.Platform || !inRange(match.GameCreation, from, to) {
			continue
		}
		row := models.ParticipantRow{Participant: *p, GameCreation: match.GameCreation, Platform: match.Platform}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].GameCreation, out[j].GameCreation
		if !a.Equal(*b) {
			return a.Before(*b)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func inRange(t *time.Time, from, to time.Time) bool {
	return t != nil && !t.Before(from) && t.Before(to)
}

func (m *Store) ParticipantsForYear(_ context.Context, key models.YearlyStatsKey) ([]models.ParticipantRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rowsFor(key), nil
}

func (m *Store) HasPlayedBefore(_ context.Context, key models.YearlyStatsKey, field db.DiversityField, value string, excludeParticipantID int64) (bool, error) {
	if !field.Valid() {
		return false, fmt.Errorf("unknown diversity field %q", field)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rowsFor(key) {
		if r.ID == excludeParticipantID {
			continue
		}
		if diversityValue(&r.Participant, field) == value {
			return true, nil
		}
	}
	return false, nil
}

func diversityValue(p *models.Participant, field db.DiversityField) string {
	switch field {
	case db.DiversityChampion:
		return p.ChampionName
	case db.DiversityRole:
		return p.Role
	default:
		return p.Lane
	}
}

func (m *Store) ChampionPlayCount(_ context.Context, key models.YearlyStatsKey, champion string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.rowsFor(key) {
		if r.ChampionName == champion {
			n++
		}
	}
	return n, nil
}

func (m *Store) FirstPlayed(_ context.Context, key models.YearlyStatsKey, champion string) (time.Time, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rowsFor(key) {
		if r.ChampionName == champion {
			return *r.GameCreation, r.ID, nil
		}
	}
	return time.Time{}, 0, fmt.Errorf("first game on %s: %w", champion, db.ErrNotFound)
}

func (m *Store) StatsTargets(_ context.Context, platform string) ([]models.YearlyStatsKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[models.YearlyStatsKey]struct{}{}
	for _, p := range m.s.participants {
		match, ok := m.s.matches[p.MatchID]
		if !ok || match.GameCreation == nil || (platform != "" && match.Platform != platform) {
			continue
		}
		seen[models.YearlyStatsKey{SummonerID: p.SummonerID, Year: match.GameCreation.UTC().Year(), Platform: match.Platform}] = struct{}{}
	}
	out := make([]models.YearlyStatsKey, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SummonerID != out[j].SummonerID {
			return out[i].SummonerID < out[j].SummonerID
		}
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Platform < out[j].Platform
	})
	return out, nil
}

func (m *Store) CountMatchesForPUUID(_ context.Context, puuid string, from, to time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, p := range m.s.participants {
		if p.PUUID != puuid {
			continue
		}
		if match, ok := m.s.matches[p.MatchID]; ok && inRange(match.GameCreation, from, to) {
			n++
		}
	}
	return n, nil
}

func (m *Store) CountTimelinesForPUUID(_ context.Context, puuid string, from, to time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, p := range m.s.participants {
		if p.PUUID != puuid {
			continue
		}
		match, ok := m.s.matches[p.MatchID]
		if !ok || !inRange(match.GameCreation, from, to) {
			continue
		}
		if _, ok := m.s.timelines[p.MatchID]; ok {
			n++
		}
	}
	return n, nil
}
