// Package subscription manages paid tier state on user records.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/user"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/internal/httputil"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

const (
	// DefaultPeriod is the billing period granted per activation.
	DefaultPeriod = 30 * 24 * time.Hour

	// DefaultSweepSpec runs the renewal sweep hourly.
	DefaultSweepSpec = "@hourly"
)

// BillingGateway talks to the external payment processor. Charge returns a
// processor reference for the payment; Refund cancels a standing plan.
type BillingGateway interface {
	Charge(ctx context.Context, userID, tier string) (string, error)
	Refund(ctx context.Context, userID, reference string) error
}

// Service applies tier changes and expires lapsed subscriptions.
type Service struct {
	users   storage.UserStore
	gateway BillingGateway
	period  time.Duration
	log     *logger.Logger
	now     func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
}

// New constructs a subscription service.
func New(users storage.UserStore, gateway BillingGateway, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("subscription")
	}
	return &Service{
		users:   users,
		gateway: gateway,
		period:  DefaultPeriod,
		log:     log,
		now:     time.Now,
	}
}

// Activate charges the user through the billing gateway and records the
// tier. Activating an already active tier extends the subscription end.
func (s *Service) Activate(ctx context.Context, userID, tier string) (user.User, error) {
	if tier != user.TierCivicLiker && tier != user.TierLikerPlus {
		return user.User{}, apperrors.Validation("unknown subscription tier")
	}
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return user.User{}, err
	}

	reference, err := s.gateway.Charge(ctx, u.ID, tier)
	if err != nil {
		return user.User{}, apperrors.Upstream("billing charge failed").WithCause(err)
	}

	now := s.now().UTC()
	start := now
	if u.SubscriptionTier == tier && u.SubscriptionEnd.After(now) {
		start = u.SubscriptionEnd
	}
	u.SubscriptionTier = tier
	u.SubscriptionEnd = start.Add(s.period)

	updated, err := s.users.UpdateUser(ctx, u)
	if err != nil {
		s.log.WithError(err).
			WithField("user_id", u.ID).
			WithField("billing_ref", reference).
			Error("charge succeeded but tier update failed")
		return user.User{}, err
	}
	s.log.WithField("user_id", u.ID).
		WithField("tier", tier).
		WithField("billing_ref", reference).
		WithField("subscription_end", updated.SubscriptionEnd.Format(time.RFC3339)).
		Info("subscription activated")
	return updated, nil
}

// Cancel refunds the current period and clears the tier immediately.
func (s *Service) Cancel(ctx context.Context, userID, reference string) (user.User, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	if u.SubscriptionTier == user.TierNone {
		return user.User{}, apperrors.Conflict("no active subscription")
	}

	if err := s.gateway.Refund(ctx, u.ID, reference); err != nil {
		return user.User{}, apperrors.Upstream("billing refund failed").WithCause(err)
	}

	u.SubscriptionTier = user.TierNone
	u.SubscriptionEnd = time.Time{}
	updated, err := s.users.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", u.ID).Info("subscription cancelled")
	return updated, nil
}

// SweepLapsed clears the tier on every user whose subscription end has
// passed. Returns the number of users lapsed.
func (s *Service) SweepLapsed(ctx context.Context) (int, error) {
	now := s.now().UTC()
	lapsed, err := s.users.ListLapsedSubscribers(ctx, now)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, u := range lapsed {
		u.SubscriptionTier = user.TierNone
		if _, err := s.users.UpdateUser(ctx, u); err != nil {
			s.log.WithError(err).WithField("user_id", u.ID).Error("lapse subscription")
			continue
		}
		count++
	}
	if count > 0 {
		s.log.WithField("count", count).Info("lapsed subscriptions swept")
	}
	return count, nil
}

// Name implements system.Service.
func (s *Service) Name() string { return "subscription" }

// Start schedules the renewal sweep.
func (s *Service) Start(ctx context.Context) error {
	s.cron = cron.New()
	id, err := s.cron.AddFunc(DefaultSweepSpec, func() {
		if _, err := s.SweepLapsed(context.Background()); err != nil {
			s.log.WithError(err).Error("subscription sweep")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule subscription sweep: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	return nil
}

// Stop halts the sweep and waits for a running iteration to finish.
func (s *Service) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) getUser(ctx context.Context, userID string) (user.User, error) {
	u, err := s.users.GetUser(ctx, strings.ToLower(strings.TrimSpace(userID)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, apperrors.NotFound("user not found").WithCause(err)
		}
		return user.User{}, err
	}
	return u, nil
}

// HTTPGateway charges and refunds through a remote billing endpoint.
type HTTPGateway struct {
	client *httputil.Client
}

// NewHTTPGateway wraps a billing API base URL.
func NewHTTPGateway(baseURL string) *HTTPGateway {
	return &HTTPGateway{client: httputil.NewClient(httputil.ClientConfig{BaseURL: baseURL})}
}

func (g *HTTPGateway) Charge(ctx context.Context, userID, tier string) (string, error) {
	var out struct {
		Reference string `json:"reference"`
	}
	err := g.client.PostJSON(ctx, "/v1/charges", map[string]string{
		"user_id": userID,
		"plan":    tier,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Reference, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, userID, reference string) error {
	return g.client.PostJSON(ctx, "/v1/refunds", map[string]string{
		"user_id":   userID,
		"reference": reference,
	}, nil)
}
