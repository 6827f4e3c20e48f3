// Package riot is the rate limited client for the Riot Games API endpoints the sync needs:
// account-v1, summoner-v4 and match-v5.
package riot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/riftrewind/rewindx/pkg/metrics"
	"github.com/riftrewind/rewindx/pkg/utils"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// PageSize is the largest page the match id endpoint returns.
const PageSize = 100

// API is the external data source used by the processors and the orchestrator.
type API interface {
	ResolveIdentity(ctx context.Context, platform, routing, gameName, tagLine string) (*Identity, error)
	ListMatchIDs(ctx context.Context, routing, puuid string, window Window, maxCount int) ([]string, error)
	GetMatch(ctx context.Context, routing, matchID string) (*Match, error)
	GetTimeline(ctx context.Context, routing, matchID string) (*Timeline, error)
}

// Opts configures a Client.
type Opts struct {
	APIKey  string
	Timeout time.Duration
	// RPS and Burst size the token bucket shared by every host.
	RPS   float64
	Burst int
	// BreakerFailures consecutive host failures open that host's breaker for BreakerCooldown.
	BreakerFailures int
	BreakerCooldown time.Duration
	// BaseURL replaces https://{host}.api.riotgames.com for every host when set.
	BaseURL    string
	HTTPClient *http.Client
}

// OptsFromEnv reads RIOT_API_KEY, RIOT_RPS, RIOT_BURST and RIOT_TIMEOUT.
func OptsFromEnv() Opts {
	return Opts{
		APIKey:  utils.Env("RIOT_API_KEY", ""),
		RPS:     float64(utils.EnvInt("RIOT_RPS", 20)),
		Burst:   utils.EnvInt("RIOT_BURST", 20),
		Timeout: utils.EnvDuration("RIOT_TIMEOUT", 10*time.Second),
	}
}

// Client implements API over net/http with a token bucket and a circuit breaker per host.
type Client struct {
	logger   *zap.Logger
	http     *http.Client
	apiKey   string
	baseURL  string
	limiter  *rate.Limiter
	breakers *xsync.Map[string, *gobreaker.CircuitBreaker[[]byte]]
	opts     Opts
}

var _ API = (*Client)(nil)

// New returns a Client. Zero options take conservative defaults matching a development key.
func New(logger *zap.Logger, o Opts) *Client {
	if o.RPS <= 0 {
		o.RPS = 20
	}
	if o.Burst <= 0 {
		o.Burst = int(o.RPS)
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}
	return &Client{
		logger:   logger,
		http:     client,
		apiKey:   o.APIKey,
		baseURL:  strings.TrimSuffix(o.BaseURL, "/"),
		limiter:  rate.NewLimiter(rate.Limit(o.RPS), o.Burst),
		breakers: xsync.NewMap[string, *gobreaker.CircuitBreaker[[]byte]](),
		opts:     o,
	}
}

func (c *Client) hostURL(host string) string {
	if c.baseURL != "" {
		return c.baseURL
	}
	return fmt.Sprintf("https://%s.api.riotgames.com", strings.ToLower(host))
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker[[]byte] {
	cb, _ := c.breakers.LoadOrCompute(host, func() (*gobreaker.CircuitBreaker[[]byte], bool) {
		metrics.RiotBreakerState.WithLabelValues(host).Set(0)
		return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "riot-" + host,
			MaxRequests: 1,
			Timeout:     c.opts.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(c.opts.BreakerFailures)
			},
			IsSuccessful: func(err error) bool {
				return !hostFailure(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("Riot API breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
				metrics.RiotBreakerState.WithLabelValues(host).Set(float64(to))
			},
		}), false
	})
	return cb
}

// get performs one rate limited GET against host and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, host, endpoint, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := c.hostURL(host) + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	start := time.Now()
	body, err := c.breaker(host).Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Riot-Token", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer func() { _ = utils.DrainAndClose(resp.Body) }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := strings.TrimSpace(string(data))
			if len(msg) > 256 {
				msg = msg[:256]
			}
			return nil, &APIError{
				Endpoint:   endpoint,
				Status:     resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Body:       msg,
			}
		}
		return data, nil
	})
	metrics.RecordRiotRequest(endpoint, statusLabel(err), time.Since(start))
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("riot %s: host %s unavailable: %w", endpoint, host, err)
		}
		return nil, err
	}
	return body, nil
}

func statusLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return strconv.Itoa(apiErr.Status)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "breaker_open"
	}
	return "error"
}

func decode[T any](body []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &malformed{err: err}
	}
	return &out, nil
}

// ResolveIdentity looks up the account by riot id on the regional cluster, then enriches it
// from summoner-v4 on the platform. A failed enrichment is logged and the account still returned.
func (c *Client) ResolveIdentity(ctx context.Context, platform, routing, gameName, tagLine string) (*Identity, error) {
	if routing == "" {
		routing = RoutingForPlatform(platform)
	}
	path := fmt.Sprintf("/riot/account/v1/accounts/by-riot-id/%s/%s", url.PathEscape(gameName), url.PathEscape(tagLine))
	body, err := c.get(ctx, routing, "account-v1", path, nil)
	if err != nil {
		return nil, err
	}
	id, err := decode[Identity](body)
	if err != nil {
		return nil, err
	}
	if id.PUUID == "" {
		return nil, &malformed{err: errors.New("account without puuid")}
	}

	if platform == "" {
		return id, nil
	}
	sbody, err := c.get(ctx, platform, "summoner-v4", "/lol/summoner/v4/summoners/by-puuid/"+url.PathEscape(id.PUUID), nil)
	if err != nil {
		c.logger.Warn("Summoner enrichment failed", zap.String("puuid", id.PUUID), zap.Error(err))
		return id, nil
	}
	if s, err := decode[summonerDTO](sbody); err == nil {
		id.SummonerID = s.ID
		id.AccountID = s.AccountID
		id.ProfileIconID = s.ProfileIconID
		id.SummonerLevel = s.SummonerLevel
	}
	return id, nil
}

// ListMatchIDs pages through match ids newest first until maxCount ids or a short page.
// maxCount <= 0 lists everything in window.
func (c *Client) ListMatchIDs(ctx context.Context, routing, puuid string, window Window, maxCount int) ([]string, error) {
	out := make([]string, 0)
	path := fmt.Sprintf("/lol/match/v5/matches/by-puuid/%s/ids", url.PathEscape(puuid))
	for start := 0; ; start += PageSize {
		count := PageSize
		if maxCount > 0 {
			count = min(PageSize, maxCount-len(out))
		}
		if count <= 0 {
			break
		}
		q := url.Values{}
		q.Set("start", strconv.Itoa(start))
		q.Set("count", strconv.Itoa(count))
		if !window.Start.IsZero() {
			q.Set("startTime", strconv.FormatInt(window.Start.Unix(), 10))
		}
		if !window.End.IsZero() {
			q.Set("endTime", strconv.FormatInt(window.End.Unix(), 10))
		}
		body, err := c.get(ctx, routing, "match-v5-ids", path, q)
		if err != nil {
			return nil, err
		}
		var page []string
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, &malformed{err: err}
		}
		out = append(out, page...)
		if len(page) < count {
			break
		}
	}
	return out, nil
}

// GetMatch fetches one match and keeps the raw body.
func (c *Client) GetMatch(ctx context.Context, routing, matchID string) (*Match, error) {
	body, err := c.get(ctx, routing, "match-v5", "/lol/match/v5/matches/"+url.PathEscape(matchID), nil)
	if err != nil {
		return nil, err
	}
	m, err := decode[Match](body)
	if err != nil {
		return nil, err
	}
	m.Raw = body
	return m, nil
}

// GetTimeline fetches the timeline of one match and keeps the raw body.
func (c *Client) GetTimeline(ctx context.Context, routing, matchID string) (*Timeline, error) {
	body, err := c.get(ctx, routing, "match-v5-timeline", "/lol/match/v5/matches/"+url.PathEscape(matchID)+"/timeline", nil)
	if err != nil {
		return nil, err
	}
	t, err := decode[Timeline](body)
	if err != nil {
		return nil, err
	}
	t.Raw = body
	return t, nil
}

// Status checks the platform status endpoint; used by health checks.
func (c *Client) Status(ctx context.Context, platform string) error {
	_, err := c.get(ctx, platform, "status-v4", "/lol/status/v4/platform-data", nil)
	return err
}
