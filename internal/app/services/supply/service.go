// Package supply computes the circulating token supply: total minted minus
// the balances held by reserved wallets.
package supply

import (
	"context"
	"math/big"
	"sync"
	"time"

	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

// DefaultTTL is how long a computed supply figure is served before the
// reserved balances are re-queried.
const DefaultTTL = time.Hour

// BalanceFetcher reads an on-chain wallet balance in base units.
type BalanceFetcher interface {
	GetBalance(ctx context.Context, address string) (*big.Int, error)
}

// Config describes the supply computation inputs.
type Config struct {
	// TotalMinted is the fixed minted amount in base units, decimal string.
	TotalMinted string
	// ReservedWallets hold non-circulating funds excluded from the figure.
	ReservedWallets []string
	TTL             time.Duration
}

// Service caches the circulating-supply figure.
type Service struct {
	chain    BalanceFetcher
	total    *big.Int
	reserved []string
	ttl      time.Duration
	log      *logger.Logger
	now      func() time.Time

	mu        sync.Mutex
	cached    string
	cachedAt  time.Time
	haveCache bool
}

// New constructs a supply service. The configured total must be a decimal
// integer in base units.
func New(cfg Config, chain BalanceFetcher, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.NewDefault("supply")
	}
	total, ok := new(big.Int).SetString(cfg.TotalMinted, 10)
	if !ok || total.Sign() < 0 {
		return nil, apperrors.Validation("total minted must be a non-negative decimal integer")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		chain:    chain,
		total:    total,
		reserved: append([]string(nil), cfg.ReservedWallets...),
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}, nil
}

// TTL returns the cache lifetime for Cache-Control headers.
func (s *Service) TTL() time.Duration { return s.ttl }

// CirculatingSupply returns the supply figure as a decimal string in base
// units. The figure is recomputed at most once per TTL; within the TTL every
// caller gets the cached value. A stale cached figure is served when the
// chain is unreachable.
func (s *Service) CirculatingSupply(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.haveCache && now.Sub(s.cachedAt) < s.ttl {
		return s.cached, nil
	}

	figure, err := s.compute(ctx)
	if err != nil {
		if s.haveCache {
			s.log.WithError(err).Warn("supply recompute failed, serving stale figure")
			return s.cached, nil
		}
		return "", apperrors.Upstream("supply computation failed").WithCause(err)
	}

	s.cached = figure
	s.cachedAt = now
	s.haveCache = true
	return figure, nil
}

func (s *Service) compute(ctx context.Context) (string, error) {
	circulating := new(big.Int).Set(s.total)
	for _, wallet := range s.reserved {
		balance, err := s.chain.GetBalance(ctx, wallet)
		if err != nil {
			return "", err
		}
		circulating.Sub(circulating, balance)
	}
	// Reserved balances can transiently exceed the minted figure during a
	// mint rollout; clamp instead of publishing a negative supply.
	if circulating.Sign() < 0 {
		circulating.SetInt64(0)
	}
	return circulating.String(), nil
}
