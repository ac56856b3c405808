// Package prices serves token price quotes through a TTL cache backed by an
// upstream market-data API.
package prices

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/tidwall/gjson"

	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/internal/httputil"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

const (
	defaultTTL          = time.Minute
	defaultStaleIfError = time.Hour
	maxCachedCurrencies = 64
)

var currencyRe = regexp.MustCompile(`^[a-z]{2,6}$`)

// Config tunes cache behaviour and the upstream coin identifier.
type Config struct {
	CoinID       string
	TTL          time.Duration
	StaleIfError time.Duration
}

type staleEntry struct {
	value     float64
	fetchedAt time.Time
}

// Service caches upstream price quotes per currency. A fresh cache hit is
// served directly; on upstream failure a stale copy is served while it is
// within the stale-if-error tolerance.
type Service struct {
	client       *httputil.Client
	coinID       string
	ttl          time.Duration
	staleIfError time.Duration
	fresh        *expirable.LRU[string, float64]
	stale        *lru.Cache[string, staleEntry]
	log          *logger.Logger
	now          func() time.Time
}

// New constructs a price service over the given upstream client.
func New(client *httputil.Client, cfg Config, log *logger.Logger) *Service {
	if cfg.CoinID == "" {
		cfg.CoinID = "likecoin"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.StaleIfError <= 0 {
		cfg.StaleIfError = defaultStaleIfError
	}
	if log == nil {
		log = logger.NewDefault("prices")
	}
	stale, _ := lru.New[string, staleEntry](maxCachedCurrencies)
	return &Service{
		client:       client,
		coinID:       cfg.CoinID,
		ttl:          cfg.TTL,
		staleIfError: cfg.StaleIfError,
		fresh:        expirable.NewLRU[string, float64](maxCachedCurrencies, nil, cfg.TTL),
		stale:        stale,
		log:          log,
		now:          time.Now,
	}
}

// TTL reports the freshness window, mirrored into Cache-Control headers.
func (s *Service) TTL() time.Duration { return s.ttl }

// StaleIfError reports the stale tolerance, mirrored into Cache-Control.
func (s *Service) StaleIfError() time.Duration { return s.staleIfError }

// Price returns the token price in the given currency. The second return
// reports whether a stale copy was served due to an upstream failure.
func (s *Service) Price(ctx context.Context, currency string) (float64, bool, error) {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "usd"
	}
	if !currencyRe.MatchString(currency) {
		return 0, false, apperrors.Validation("invalid currency code")
	}

	if value, ok := s.fresh.Get(currency); ok {
		return value, false, nil
	}

	value, err := s.fetch(ctx, currency)
	if err != nil {
		if entry, ok := s.stale.Get(currency); ok && s.now().Sub(entry.fetchedAt) <= s.staleIfError {
			s.log.WithError(err).
				WithField("currency", currency).
				Warn("price upstream failed, serving stale quote")
			return entry.value, true, nil
		}
		return 0, false, apperrors.Upstream("price upstream unavailable").WithCause(err)
	}

	s.fresh.Add(currency, value)
	s.stale.Add(currency, staleEntry{value: value, fetchedAt: s.now()})
	return value, false, nil
}

func (s *Service) fetch(ctx context.Context, currency string) (float64, error) {
	resp, err := s.client.Get(ctx, fmt.Sprintf("/simple/price?ids=%s&vs_currencies=%s", s.coinID, currency))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return 0, fmt.Errorf("price request failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, fmt.Errorf("read price response: %w", err)
	}
	result := gjson.GetBytes(body, s.coinID+"."+currency)
	if !result.Exists() {
		return 0, fmt.Errorf("price for %s missing in upstream response", currency)
	}
	return result.Float(), nil
}
