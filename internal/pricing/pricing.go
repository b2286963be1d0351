// Package pricing fetches the market figures attached to new tasks from the
// external pricing server. The three lookups run concurrently under a single
// deadline and the combined result is cached for a short time.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/patric-chuzhbe/todoapp/internal/logger"
	"github.com/patric-chuzhbe/todoapp/internal/metrics"
	"github.com/patric-chuzhbe/todoapp/internal/models"
)

const (
	arbitrageRatePath = "/arbitrage-rate"
	usdRatePath       = "/kraken-price"
	zarRatePath       = "/luno-price"
)

// ErrTimeout is returned when the lookups did not finish within the deadline.
var ErrTimeout = errors.New("pricing lookup timed out")

// Gateway talks to the pricing server.
type Gateway struct {
	client   *resty.Client
	timeout  time.Duration
	cacheTTL time.Duration
	now      func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	cached   *rates
	cachedAt time.Time
}

type rates struct {
	arbitrage float64
	usd       float64
	zar       float64
}

// number accepts both JSON numbers and numeric strings, the arbitrage
// endpoint has been seen returning either.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = number(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = number(v)

	return nil
}

type arbitrageRateResponse struct {
	ArbitrageRate *number `json:"arbitrageRate"`
}

type usdRateResponse struct {
	KrakenPrice *number `json:"krakenPrice"`
}

type zarRateResponse struct {
	LunoPrice *number `json:"lunoPrice"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Option func(*Gateway)

// WithClock overrides the time source used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// WithRestyClient replaces the underlying HTTP client. The base URL passed
// to New is applied to it.
func WithRestyClient(client *resty.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

// New creates a Gateway for the pricing server at baseURL. A zero cacheTTL
// disables caching.
func New(baseURL string, timeout, cacheTTL time.Duration, options ...Option) *Gateway {
	g := &Gateway{
		client:   resty.New(),
		timeout:  timeout,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
	for _, option := range options {
		option(g)
	}
	g.client.
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")

	return g
}

// Snapshot returns the current figures tagged with currency.
func (g *Gateway) Snapshot(ctx context.Context, currency string) (models.PricingSnapshot, error) {
	current, err := g.rates(ctx)
	if err != nil {
		return models.PricingSnapshot{}, err
	}

	return models.PricingSnapshot{
		ArbitrageRate: formatRate(current.arbitrage),
		Currency:      currency,
		USD:           formatRate(current.usd),
		ZAR:           formatRate(current.zar),
	}, nil
}

func (g *Gateway) rates(ctx context.Context) (*rates, error) {
	if cached := g.fromCache(); cached != nil {
		metrics.PricingCacheHitsTotal.Inc()
		return cached, nil
	}

	// Detached from the caller that started it; g.timeout bounds the lookup.
	flight := g.group.DoChan("rates", func() (interface{}, error) {
		fetched, err := g.fetch(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		g.store(fetched)
		return fetched, nil
	})

	select {
	case result := <-flight:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*rates), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gateway) fetch(ctx context.Context) (*rates, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var result rates
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var payload arbitrageRateResponse
		if err := g.get(groupCtx, arbitrageRatePath, "arbitrage rate", &payload); err != nil {
			return err
		}
		if payload.ArbitrageRate == nil {
			return fmt.Errorf("failed to fetch arbitrage rate: missing arbitrageRate field")
		}
		result.arbitrage = float64(*payload.ArbitrageRate)
		return nil
	})

	group.Go(func() error {
		var payload usdRateResponse
		if err := g.get(groupCtx, usdRatePath, "USD rate", &payload); err != nil {
			return err
		}
		if payload.KrakenPrice == nil {
			return fmt.Errorf("failed to fetch USD rate: missing krakenPrice field")
		}
		result.usd = float64(*payload.KrakenPrice)
		return nil
	})

	group.Go(func() error {
		var payload zarRateResponse
		if err := g.get(groupCtx, zarRatePath, "ZAR rate", &payload); err != nil {
			return err
		}
		if payload.LunoPrice == nil {
			return fmt.Errorf("failed to fetch ZAR rate: missing lunoPrice field")
		}
		result.zar = float64(*payload.LunoPrice)
		return nil
	})

	if err := group.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, g.timeout, err)
		}
		return nil, err
	}

	return &result, nil
}

func (g *Gateway) get(ctx context.Context, path, what string, target interface{}) error {
	response, err := g.client.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		metrics.PricingFetchesTotal.WithLabelValues(path, "transport_error").Inc()
		logger.Log.Debugln("Error calling the pricing server", "path", path, zap.Error(err))
		return fmt.Errorf("failed to fetch %s: %w", what, err)
	}

	if !response.IsSuccess() {
		metrics.PricingFetchesTotal.WithLabelValues(path, "bad_status").Inc()
		var upstream errorResponse
		_ = json.Unmarshal(response.Body(), &upstream)
		return fmt.Errorf("failed to fetch %s: status %d: %s", what, response.StatusCode(), upstream.Error)
	}

	if err := json.Unmarshal(response.Body(), target); err != nil {
		metrics.PricingFetchesTotal.WithLabelValues(path, "parse_error").Inc()
		return fmt.Errorf("failed to fetch %s: %w", what, err)
	}

	metrics.PricingFetchesTotal.WithLabelValues(path, "ok").Inc()

	return nil
}

func (g *Gateway) fromCache() *rates {
	if g.cacheTTL <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cached == nil || g.now().Sub(g.cachedAt) >= g.cacheTTL {
		return nil
	}

	return g.cached
}

func (g *Gateway) store(fetched *rates) {
	if g.cacheTTL <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.cached = fetched
	g.cachedAt = g.now()
}

func formatRate(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
