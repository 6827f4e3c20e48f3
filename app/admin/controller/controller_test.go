package controller

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/riftrewind/rewindx/app/admin/types"
	"github.com/riftrewind/rewindx/app/worker"
	"github.com/riftrewind/rewindx/pkg/db/memory"
	"github.com/riftrewind/rewindx/pkg/jobs"
	"github.com/riftrewind/rewindx/pkg/redis"
	"github.com/riftrewind/rewindx/pkg/riot"
	"github.com/riftrewind/rewindx/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const testToken = "testtoken"

// playerAPI knows a single player with no matches.
type playerAPI struct{}

func (playerAPI) ResolveIdentity(_ context.Context, _, _, gameName, tagLine string) (*riot.Identity, error) {
	if !strings.EqualFold(gameName, "Faker") || !strings.EqualFold(tagLine, "KR1") {
		return nil, riot.ErrNotFound
	}
	return &riot.Identity{PUUID: "puuid-faker", GameName: "Faker", TagLine: "KR1", SummonerLevel: 600}, nil
}
func (playerAPI) ListMatchIDs(context.Context, string, string, riot.Window, int) ([]string, error) {
	return nil, nil
}
func (playerAPI) GetMatch(context.Context, string, string) (*riot.Match, error) {
	return nil, riot.ErrNotFound
}
func (playerAPI) GetTimeline(context.Context, string, string) (*riot.Timeline, error) {
	return nil, riot.ErrNotFound
}

// memProgress is an in-process stand-in for the Redis progress store.
type memProgress struct {
	mu       sync.Mutex
	last     map[string]jobs.Progress
	watchers map[string][]chan jobs.Progress
}

func newMemProgress() *memProgress {
	return &memProgress{last: map[string]jobs.Progress{}, watchers: map[string][]chan jobs.Progress{}}
}

func (m *memProgress) ReportProgress(_ context.Context, jobID string, p jobs.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[jobID] = p
	for _, ch := range m.watchers[jobID] {
		select {
		case ch <- p:
		default:
		}
	}
	return nil
}

func (m *memProgress) GetProgress(_ context.Context, jobID string) (jobs.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.last[jobID]
	if !ok {
		return p, redis.ErrNoProgress
	}
	return p, nil
}

func (m *memProgress) Watch(ctx context.Context, jobID string) (<-chan jobs.Progress, error) {
	ch := make(chan jobs.Progress, 32)
	m.mu.Lock()
	m.watchers[jobID] = append(m.watchers[jobID], ch)
	m.mu.Unlock()
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.watchers[jobID]
		for i, c := range list {
			if c == ch {
				m.watchers[jobID] = append(list[:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

type fixture struct {
	ctl      *Controller
	router   *mux.Router
	store    *memory.Store
	progress *memProgress
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.New()
	progress := newMemProgress()

	cfg := worker.Config{
		Backend:   worker.BackendLocal,
		Scheduler: scheduler.Config{BatchSize: 10, AwaitTimeout: 5 * time.Second},
		Local:     jobs.LocalOptions{Workers: 4, DisableRateLimits: true},
	}
	cfg.Orchestrator.DefaultYear = 2025
	core, err := worker.NewCore(logger, store, playerAPI{}, nil, nil, progress, cfg)
	require.NoError(t, err)
	t.Cleanup(core.Close)

	adminHash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	viewerHash, err := bcrypt.GenerateFromPassword([]byte("peek"), bcrypt.MinCost)
	require.NoError(t, err)

	ctl := &Controller{
		App:        &types.App{Core: core, Progress: progress, DefaultYear: 2025, Logger: logger},
		AdminToken: testToken,
		Users: map[string]types.User{
			"admin":  {Username: "admin", Hash: adminHash, Role: "admin"},
			"viewer": {Username: "viewer", Hash: viewerHash, Role: "viewer"},
		},
		JWTSecret: []byte("test-secret"),
	}
	router, err := ctl.NewRouter()
	require.NoError(t, err)
	return &fixture{ctl: ctl, router: router, store: store, progress: progress}
}

type reqOpt func(*http.Request)

func bearer(r *http.Request) { r.Header.Set("Authorization", "Bearer "+testToken) }

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func (f *fixture) do(method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (f *fixture) login(t *testing.T, user, pass string) *http.Cookie {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/auth/login", map[string]string{"username": user, "password": pass})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func TestRequireAuth(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/summoners", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/summoners", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer wrong")
	}).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/summoners", nil, bearer).Code)
}

func TestLoginSessionAndRoles(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "ghost", "password": "secret"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	admin := f.login(t, "admin", "secret")
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/summoners", nil, withCookie(admin)).Code)
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/api/stats/recompute", map[string]int{"year": 2025}, withCookie(admin)).Code)

	viewer := f.login(t, "viewer", "peek")
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/summoners", nil, withCookie(viewer)).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/api/stats/recompute", map[string]int{"year": 2025}, withCookie(viewer)).Code)

	forged := &http.Cookie{Name: sessionCookie, Value: "not-a-jwt"}
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/summoners", nil, withCookie(forged)).Code)

	rec = f.do(http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestLookup(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/summoners/lookup", PlayerRequest{GameName: "faker", TagLine: "#KR1", Platform: "KR"}, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "puuid-faker", body["puuid"])
	assert.Equal(t, "kr", body["platform"])
	assert.Equal(t, "asia", body["routing"])

	n, _, _, _ := f.store.Counts()
	assert.Equal(t, 1, n)

	list := decodeBody[map[string]any](t, f.do(http.MethodGet, "/api/summoners?platform=kr", nil, bearer))
	assert.Len(t, list["summoners"], 1)

	cases := []struct {
		name string
		in   PlayerRequest
		code int
	}{
		{"unknown player", PlayerRequest{GameName: "Nobody", TagLine: "000", Platform: "kr"}, http.StatusNotFound},
		{"missing tag", PlayerRequest{GameName: "Faker", Platform: "kr"}, http.StatusBadRequest},
		{"unknown platform", PlayerRequest{GameName: "Faker", TagLine: "KR1", Platform: "mars1"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, f.do(http.MethodPost, "/api/summoners/lookup", tc.in, bearer).Code)
		})
	}
}

func TestSyncRunsAndReportsProgress(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/summoners/sync", PlayerRequest{GameName: "Faker", TagLine: "KR1", Platform: "kr", Year: 2019}, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/summoners/sync", PlayerRequest{GameName: "Faker", TagLine: "KR1", Platform: "kr"}, bearer)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decodeBody[SyncAccepted](t, rec)
	assert.Equal(t, "player_sync-faker-kr1-kr-2025", accepted.JobID)
	assert.Equal(t, 2025, accepted.Year)

	require.Eventually(t, func() bool {
		p, err := f.progress.GetProgress(context.Background(), accepted.JobID)
		return err == nil && p.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	rec = f.do(http.MethodGet, "/api/jobs/"+accepted.JobID, nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decodeBody[struct {
		JobID    string        `json:"job_id"`
		Progress jobs.Progress `json:"progress"`
	}](t, rec)
	assert.Equal(t, jobs.ProgressCompleted, progress.Progress.State)
	assert.Equal(t, 100, progress.Progress.Percent)

	rec = f.do(http.MethodGet, "/api/summoners/status?game_name=Faker&tag_line=KR1&platform=kr&year=2025", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status := decodeBody[SummonerStatus](t, rec)
	assert.True(t, status.Synced)
	assert.Equal(t, int64(0), status.MatchesInYear)
	require.NotNil(t, status.Stats)
	assert.Equal(t, 2025, status.Stats.Year)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/jobs/unknown", nil, bearer).Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(http.MethodGet, "/api/summoners/status?game_name=Nobody&tag_line=000&platform=kr", nil, bearer).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(http.MethodGet, "/api/summoners/status?game_name=Faker&tag_line=KR1&year=abc", nil, bearer).Code)
}

func TestRecoverQueuesRecoveryJob(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/summoners/recover", PlayerRequest{GameName: "Faker", TagLine: "KR1", Platform: "kr", Year: 2024}, bearer)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decodeBody[SyncAccepted](t, rec)
	assert.Equal(t, "recovery-faker-kr1-kr-2024", accepted.JobID)
}

func TestMaintenanceEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/maintenance/cleanup", nil, bearer)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decodeBody[map[string]string](t, rec)["job_id"], string(jobs.TypeCleanup)))

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/maintenance/cleanup", map[string]int{"retention_days": -1}, bearer).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/stats/recompute", map[string]int{"year": 2040}, bearer).Code)

	rec = f.do(http.MethodPost, "/api/stats/recompute", map[string]any{"year": 2025, "platform": "EUW1"}, bearer)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "recompute_stats-2025-euw1", decodeBody[map[string]string](t, rec)["job_id"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody[map[string]any](t, rec)["status"])

	f.ctl.App.Core.Maintenance.Checks["riot"] = func(context.Context) error { return riot.ErrNotFound }
	rec = f.do(http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "warning", body["status"])
	assert.Equal(t, "failing: riot", body["message"])
}

func TestProgressUnavailableWithoutRedis(t *testing.T) {
	f := newFixture(t)
	f.ctl.App.Progress = nil

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/jobs/x", nil, bearer).Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/ws?job_id=x", nil, bearer).Code)
}

func TestWebSocketStreamsUntilTerminal(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, f.progress.ReportProgress(ctx, "job-1", jobs.Progress{State: jobs.ProgressRunning, Step: "fetch_identity", Percent: 5}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?job_id=job-1"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + testToken}})
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg struct {
		Type    string        `json:"type"`
		Payload jobs.Progress `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "progress", msg.Type)
	assert.Equal(t, "fetch_identity", msg.Payload.Step)

	require.NoError(t, f.progress.ReportProgress(ctx, "job-1", jobs.Progress{State: jobs.ProgressCompleted, Step: "done", Percent: 100}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, jobs.ProgressCompleted, msg.Payload.State)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
}
