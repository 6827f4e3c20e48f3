// Package memory is an in-process db.Store used by tests and dry runs of the sync CLI.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/riftrewind/rewindx/pkg/db"
	models "github.com/riftrewind/rewindx/pkg/db/models/rewind"
)

type txKey struct{}

// undoLog keeps the value each key had before its first write inside a transaction. A nil
// entry means the key did not exist.
type undoLog struct {
	summoners    map[string]*models.Summoner
	matches      map[string]*models.Match
	participants map[string]*models.Participant
	timelines    map[string]*models.Timeline
	stats        map[models.YearlyStatsKey]*models.YearlyStats
}

func newUndoLog() *undoLog {
	return &undoLog{
		summoners:    map[string]*models.Summoner{},
		matches:      map[string]*models.Match{},
		participants: map[string]*models.Participant{},
		timelines:    map[string]*models.Timeline{},
		stats:        map[models.YearlyStatsKey]*models.YearlyStats{},
	}
}

// undoFrom returns the log of the transaction carried by ctx, or nil outside a transaction.
func undoFrom(ctx context.Context) *undoLog {
	u, _ := ctx.Value(txKey{}).(*undoLog)
	return u
}

func remember[K comparable, V any](log map[K]*V, table map[K]*V, key K) {
	if _, seen := log[key]; !seen {
		log[key] = table[key]
	}
}

func restore[K comparable, V any](log map[K]*V, table map[K]*V) {
	for key, prev := range log {
		if prev == nil {
			delete(table, key)
			continue
		}
		table[key] = prev
	}
}

type state struct {
	summoners    map[string]*models.Summoner
	matches      map[string]*models.Match
	participants map[string]*models.Participant
	timelines    map[string]*models.Timeline
	stats        map[models.YearlyStatsKey]*models.YearlyStats
}

// Store keeps every table in maps. Transactions are serialized by txMu. A rollback reverts
// only the keys the transaction wrote, so writes made outside it survive.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	s    state
	seq  int64
	now  func() time.Time
}

var _ db.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		s: state{
			summoners:    map[string]*models.Summoner{},
			matches:      map[string]*models.Match{},
			participants: map[string]*models.Participant{},
			timelines:    map[string]*models.Timeline{},
			stats:        map[models.YearlyStatsKey]*models.YearlyStats{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithinTx runs fn while holding the transaction lock. On error every write made by fn is discarded.
func (m *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if undoFrom(ctx) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	undo := newUndoLog()
	if err := fn(context.WithValue(ctx, txKey{}, undo)); err != nil {
		m.mu.Lock()
		restore(undo.summoners, m.s.summoners)
		restore(undo.matches, m.s.matches)
		restore(undo.participants, m.s.participants)
		restore(undo.timelines, m.s.timelines)
		restore(undo.stats, m.s.stats)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Store) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *Store) Ping(context.Context) error { return nil }

func (m *Store) Close() error { return nil }

// Counts returns the number of stored summoners, matches, participants and timelines.
func (m *Store) Counts() (summoners, matches, participants, timelines int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.s.summoners), len(m.s.matches), len(m.s.participants), len(m.s.timelines)
}

func (m *Store) UpsertSummoner(ctx context.Context, s *models.Summoner) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := undoFrom(ctx); u != nil {
		remember(u.summoners, m.s.summoners, s.PUUID)
	}
	if s.SummonerID == "" {
		s.SummonerID = s.PUUID
	}
	now := m.now()
	row := *s
	existing, ok := m.s.summoners[s.PUUID]
	if ok {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		if row.LastSyncedAt == nil {
			row.LastSyncedAt = existing.LastSyncedAt
		}
		if row.SyncRequestedAt == nil {
			row.SyncRequestedAt = existing.SyncRequestedAt
		}
	} else {
		row.ID = m.nextID()
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	m.s.summoners[s.PUUID] = &row
	*s = row
	return !ok, nil
}

func (m *Store) EnsureSummoner(ctx context.Context, s *models.Summoner) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.s.summoners[s.PUUID]; ok {
		s.ID = existing.ID
		return false, nil
	}
	if u := undoFrom(ctx); u != nil {
		remember(u.summoners, m.s.summoners, s.PUUID)
	}
	row := *s
	if row.SummonerID == "" {
		row.SummonerID = row.PUUID
	}
	if row.Name == "" {
		row.Name = models.PlaceholderName
	}
	row.ID = m.nextID()
	row.CreatedAt = m.now()
	row.UpdatedAt = row.CreatedAt
	m.s.summoners[s.PUUID] = &row
	s.ID = row.ID
	return true, nil
}

func (m *Store) GetSummonerByPUUID(_ context.Context, puuid string) (*models.Summoner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.s.summoners[puuid]
	if !ok {
		return nil, fmt.Errorf("summoner %s: %w", puuid, db.ErrNotFound)
	}
	out := *s
	return &out, nil
}

func (m *Store) FindSummonerByRiotID(_ context.Context, name, tag, platform string) (*models.Summoner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.s.summoners {
		if strings.EqualFold(s.Name, name) && strings.EqualFold(s.TagLine, tag) && s.Platform == platform {
			out := *s
			return &out, nil
		}
	}
	return nil, fmt.Errorf("summoner %s#%s: %w", name, tag, db.ErrNotFound)
}

func (m *Store) sortedSummoners(keep func(*models.Summoner) bool) []models.Summoner {
	out := make([]models.Summoner, 0)
	for _, s := range m.s.summoners {
		if keep(s) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Store) ListSummoners(_ context.Context, platform string, limit, offset int) ([]models.Summoner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	all := m.sortedSummoners(func(s *models.Summoner) bool { return platform == "" || s.Platform == platform })
	if offset >= len(all) {
		return []models.Summoner{}, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *Store) ListTrackedSummoners(context.Context) ([]models.Summoner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.sortedSummoners(func(s *models.Summoner) bool {
		return (s.LastSyncedAt != nil || s.SyncRequestedAt != nil) && s.Tracked()
	})
	// never completed first, then oldest sync
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LastSyncedAt, out[j].LastSyncedAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	return out, nil
}

func (m *Store) MarkSynced(ctx context.Context, summonerID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for puuid, s := range m.s.summoners {
		if s.ID == summonerID {
			if u := undoFrom(ctx); u != nil {
				remember(u.summoners, m.s.summoners, puuid)
			}
			row := *s
			t := at.UTC()
			row.LastSyncedAt = &t
			row.UpdatedAt = m.now()
			m.s.summoners[puuid] = &row
			return nil
		}
	}
	return nil
}

func (m *Store) UpsertMatch(ctx context.Context, match *models.Match) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := undoFrom(ctx); u != nil {
		remember(u.matches, m.s.matches, match.MatchID)
	}
	row := *match
	existing, ok := m.s.matches[match.MatchID]
	if ok {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
	} else {
		row.ID = m.nextID()
		row.CreatedAt = m.now()
	}
	m.s.matches[match.MatchID] = &row
	match.ID, match.CreatedAt = row.ID, row.CreatedAt
	return !ok, nil
}

func (m *Store) GetMatch(_ context.Context, matchID string) (*models.Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	match, ok := m.s.matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, db.ErrNotFound)
	}
	out := *match
	return &out, nil
}

func participantKey(matchID, puuid string) string {
	return matchID + "|" + puuid
}

func (m *Store) UpsertParticipant(ctx context.Context, p *models.Participant) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.s.matches[p.MatchID]; !ok {
		return false, fmt.Errorf("upsert participant %s/%s: match missing", p.MatchID, p.PUUID)
	}
	key := participantKey(p.MatchID, p.PUUID)
	if u := undoFrom(ctx); u != nil {
		remember(u.participants, m.s.participants, key)
	}
	row := *p
	row.Items = append([]int32(nil), p.Items...)
	existing, ok := m.s.participants[key]
	if ok {
		row.ID = existing.ID
	} else {
		row.ID = m.nextID()
	}
	m.s.participants[key] = &row
	p.ID = row.ID
	return !ok, nil
}

func (m *Store) HasTimeline(_ context.Context, matchID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.s.timelines[matchID]
	return ok, nil
}

func (m *Store) InsertTimeline(ctx context.Context, t *models.Timeline) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.s.matches[t.MatchID]; !ok {
		return false, fmt.Errorf("insert timeline %s: match missing", t.MatchID)
	}
	if _, ok := m.s.timelines[t.MatchID]; ok {
		return false, nil
	}
	if u := undoFrom(ctx); u != nil {
		remember(u.timelines, m.s.timelines, t.MatchID)
	}
	row := *t
	row.ID = m.nextID()
	row.CreatedAt = m.now()
	m.s.timelines[t.MatchID] = &row
	t.ID, t.CreatedAt = row.ID, row.CreatedAt
	return true, nil
}

func (m *Store) ExistingMatchIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := m.s.matches[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (m *Store) ExistingTimelineMatchIDs(_ context.Context, ids []string) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := m.s.timelines[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// DeleteMatchesCreatedBefore drops matches stored before cutoff together with their participants and timelines.
func (m *Store) DeleteMatchesCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := undoFrom(ctx)
	var n int64
	for id, match := range m.s.matches {
		if !match.CreatedAt.Before(cutoff) {
			continue
		}
		if u != nil {
			remember(u.matches, m.s.matches, id)
			remember(u.timelines, m.s.timelines, id)
		}
		delete(m.s.matches, id)
		delete(m.s.timelines, id)
		for key, p := range m.s.participants {
			if p.MatchID == id {
				if u != nil {
					remember(u.participants, m.s.participants, key)
				}
				delete(m.s.participants, key)
			}
		}
		n++
	}
	return n, nil
}
