// Package polymarket provides a caching client for the Polymarket Gamma
// market data API with bounded retries and local rate limiting.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/predictgate/polymarket-mcp/pkg/cache"
	"github.com/predictgate/polymarket-mcp/pkg/ratelimit"
)

// DefaultBaseURL is the public Gamma API endpoint.
const DefaultBaseURL = "https://gamma-api.polymarket.com"

// Result limits. Callers passing a non-positive limit get the operation
// default; anything above MaxLimit is clamped.
const (
	DefaultActiveLimit   = 50
	DefaultSearchLimit   = 20
	DefaultTrendingLimit = 10
	MaxLimit             = 100

	// searchCandidateLimit is how many active markets are fetched as the
	// candidate set for keyword filtering and trending ranking.
	searchCandidateLimit = 100
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_requests_total",
		Help: "Total number of upstream API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pm_request_duration_seconds",
		Help:    "Upstream API request duration including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_upstream_errors_total",
		Help: "Total number of failed upstream operations by error class",
	}, []string{"error_class"})
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Gamma API. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey, when set, is sent as a bearer token. The public endpoints
	// work without one.
	APIKey string

	// UserAgent identifies this client to the upstream.
	UserAgent string

	// RequestTimeout bounds each individual HTTP attempt.
	RequestTimeout time.Duration

	// Retry controls backoff behavior for transient failures.
	Retry RetryPolicy

	// CacheEnabled toggles read-through caching of fetch results.
	CacheEnabled bool

	// CacheTTL is the freshness window for cached responses.
	CacheTTL time.Duration

	// MaxInflight caps concurrent upstream HTTP requests.
	MaxInflight int
}

// DefaultConfig returns a production-ready configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      "polymarket-mcp/1.0",
		RequestTimeout: 10 * time.Second,
		Retry:          DefaultRetryPolicy(),
		CacheEnabled:   true,
		CacheTTL:       60 * time.Second,
		MaxInflight:    8,
	}
}

// Client fetches market data from the Gamma API. All fetch operations are
// read-through cached, deduplicated per cache key, and safe for concurrent
// use.
type Client struct {
	config     Config
	httpClient *http.Client
	store      cache.Store
	limiter    *ratelimit.Limiter
	group      singleflight.Group
	inflight   *semaphore.Weighted
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a market data client backed by the given cache store and
// rate limiter.
func New(cfg Config, store cache.Store, limiter *ratelimit.Limiter, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.MaxInflight < 1 {
		cfg.MaxInflight = 8
	}
	if cfg.CacheEnabled && store == nil {
		return nil, fmt.Errorf("cache enabled but no store provided")
	}
	if limiter == nil {
		limiter = ratelimit.New(0, logger)
	}

	return &Client{
		config: cfg,
		httpClient: &http.Client{
			// Bounds each attempt; retries get a fresh window.
			Timeout: cfg.RequestTimeout,
		},
		store:    store,
		limiter:  limiter,
		inflight: semaphore.NewWeighted(int64(cfg.MaxInflight)),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// ActiveMarkets returns up to limit currently active markets.
func (c *Client) ActiveMarkets(ctx context.Context, limit int) ([]Market, error) {
	limit = normalizeLimit(limit, DefaultActiveLimit)
	key := cache.Key("active", cache.P("limit", strconv.Itoa(limit)))

	return c.cachedMarkets(ctx, key, func(ctx context.Context) ([]Market, error) {
		markets, err := c.fetchMarketList(ctx, activeQuery(limit))
		if err != nil {
			return nil, err
		}
		return truncate(markets, limit), nil
	})
}

// MarketByID returns a single market. Unknown ids yield ErrNotFound.
func (c *Client) MarketByID(ctx context.Context, id string) (Market, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Market{}, fmt.Errorf("%w: empty market id", ErrNotFound)
	}
	key := cache.Key("market", cache.P("id", id))

	markets, err := c.cachedMarkets(ctx, key, func(ctx context.Context) ([]Market, error) {
		body, err := c.getJSON(ctx, "/markets/"+url.PathEscape(id), nil)
		if err != nil {
			return nil, err
		}
		var m Market
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, &ParseError{Msg: "decoding market " + id, Err: err}
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
		return []Market{m}, nil
	})
	if err != nil {
		return Market{}, err
	}
	if len(markets) == 0 {
		return Market{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return markets[0], nil
}

// Search returns up to limit active markets whose question, description, or
// category contains the keyword (case-insensitive).
func (c *Client) Search(ctx context.Context, keyword string, limit int) ([]Market, error) {
	keyword = strings.TrimSpace(keyword)
	limit = normalizeLimit(limit, DefaultSearchLimit)
	key := cache.Key("search",
		cache.P("keyword", keyword),
		cache.P("limit", strconv.Itoa(limit)))

	return c.cachedMarkets(ctx, key, func(ctx context.Context) ([]Market, error) {
		candidates, err := c.fetchMarketList(ctx, activeQuery(searchCandidateLimit))
		if err != nil {
			return nil, err
		}

		kw := strings.ToLower(keyword)
		matches := make([]Market, 0, limit)
		for _, m := range candidates {
			if marketMatches(&m, kw) {
				matches = append(matches, m)
				if len(matches) == limit {
					break
				}
			}
		}
		return matches, nil
	})
}

// Prices returns the current outcome prices of a market. Markets without
// usable price data yield ErrMissingPriceData.
func (c *Client) Prices(ctx context.Context, id string) ([]MarketPrice, error) {
	m, err := c.MarketByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if len(m.Outcomes) == 0 || len(m.OutcomePrices) == 0 {
		return nil, fmt.Errorf("%w: market %s has no outcome prices", ErrMissingPriceData, m.ID)
	}

	timestamp := c.now().UTC().Format(time.RFC3339)
	prices := make([]MarketPrice, 0, len(m.Outcomes))
	for i, outcome := range m.Outcomes {
		price, err := strconv.ParseFloat(strings.TrimSpace(m.OutcomePrices[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: market %s price %q for outcome %q",
				ErrMissingPriceData, m.ID, m.OutcomePrices[i], outcome)
		}
		if price < 0 || price > 1 {
			return nil, fmt.Errorf("%w: market %s price %v for outcome %q out of range",
				ErrMissingPriceData, m.ID, price, outcome)
		}
		prices = append(prices, MarketPrice{
			MarketID:  m.ID,
			Outcome:   outcome,
			Price:     price,
			Timestamp: timestamp,
		})
	}
	return prices, nil
}

// Trending returns up to limit active markets ranked by volume descending.
// Equal volumes are ordered by market id so the ranking is deterministic.
func (c *Client) Trending(ctx context.Context, limit int) ([]Market, error) {
	limit = normalizeLimit(limit, DefaultTrendingLimit)
	key := cache.Key("trending", cache.P("limit", strconv.Itoa(limit)))

	return c.cachedMarkets(ctx, key, func(ctx context.Context) ([]Market, error) {
		candidates, err := c.fetchMarketList(ctx, activeQuery(searchCandidateLimit))
		if err != nil {
			return nil, err
		}

		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].Volume != candidates[j].Volume {
				return candidates[i].Volume > candidates[j].Volume
			}
			return candidates[i].ID < candidates[j].ID
		})
		return truncate(candidates, limit), nil
	})
}

// cachedMarkets wraps a fetch in the read-through cache and collapses
// concurrent fetches of the same key into one upstream call.
func (c *Client) cachedMarkets(ctx context.Context, key string, fetch func(context.Context) ([]Market, error)) ([]Market, error) {
	if c.config.CacheEnabled {
		if data, err := c.store.Get(ctx, key); err == nil {
			var markets []Market
			if err := json.Unmarshal(data, &markets); err == nil {
				c.logger.Debug().Str("key", key).Msg("Cache hit")
				return markets, nil
			}
			// Corrupted entry; drop it and fall through to a fresh fetch.
			_ = c.store.Delete(ctx, key)
		}
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		markets, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		// Failures are never cached; only fresh data enters the store.
		if c.config.CacheEnabled {
			if data, err := json.Marshal(markets); err == nil {
				if err := c.store.Set(ctx, key, data, c.config.CacheTTL); err != nil {
					c.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache response")
				}
			}
		}
		return markets, nil
	})
	if err != nil {
		upstreamErrorsTotal.WithLabelValues(errorClass(err)).Inc()
		return nil, err
	}
	return v.([]Market), nil
}

// fetchMarketList fetches and decodes a market list from /markets.
func (c *Client) fetchMarketList(ctx context.Context, query url.Values) ([]Market, error) {
	body, err := c.getJSON(ctx, "/markets", query)
	if err != nil {
		return nil, err
	}

	var markets []Market
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, &ParseError{Msg: "decoding market list", Err: err}
	}
	for i := range markets {
		if err := markets[i].Validate(); err != nil {
			return nil, err
		}
	}
	return markets, nil
}

// getJSON issues a GET request with retries and returns the response body.
// Decoding happens in the caller: a body that arrives intact but fails to
// parse would fail identically on every retry.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values) ([]byte, error) {
	requestID := uuid.NewString()
	logger := c.logger.With().Str("request_id", requestID).Str("path", path).Logger()

	target := strings.TrimSuffix(c.config.BaseURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	start := c.now()
	var body []byte

	err := retryWithBackoff(ctx, logger, c.config.Retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := c.inflight.Acquire(ctx, 1); err != nil {
			return err
		}
		defer c.inflight.Release(1)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if c.config.UserAgent != "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		}
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &TransportError{Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &TransportError{Err: err}
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode == http.StatusTooManyRequests:
			c.limiter.Penalize(retryAfter(resp))
			return &StatusError{StatusCode: resp.StatusCode, Body: trimBody(data)}
		case resp.StatusCode >= 400:
			return &StatusError{StatusCode: resp.StatusCode, Body: trimBody(data)}
		}

		body = data
		return nil
	})

	requestDuration.WithLabelValues(path).Observe(c.now().Sub(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(path, "error").Inc()
		logger.Error().Err(err).Msg("Upstream request failed")
		return nil, err
	}

	requestsTotal.WithLabelValues(path, "ok").Inc()
	return body, nil
}

func activeQuery(limit int) url.Values {
	return url.Values{
		"active":   {"true"},
		"archived": {"false"},
		"closed":   {"false"},
		"limit":    {strconv.Itoa(limit)},
	}
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func truncate(markets []Market, limit int) []Market {
	if len(markets) > limit {
		return markets[:limit]
	}
	return markets
}

func marketMatches(m *Market, lowerKeyword string) bool {
	if lowerKeyword == "" {
		return true
	}
	return strings.Contains(strings.ToLower(m.Question), lowerKeyword) ||
		strings.Contains(strings.ToLower(m.Description), lowerKeyword) ||
		strings.Contains(strings.ToLower(m.Category), lowerKeyword)
}

// retryAfter parses the Retry-After header of a 429 response, accepting
// only the delay-seconds form.
func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func trimBody(data []byte) string {
	const max = 256
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max]
	}
	return s
}
