// Package reward handles bonus, coupon and mission claims. Every claim is
// an atomic read-check-write so concurrent attempts cannot double-pay.
package reward

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/reward"
	"github.com/likecoin/likecoin-api-public/internal/app/domain/user"
	"github.com/likecoin/likecoin-api-public/internal/app/metrics"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

// Claim error codes kept stable for API clients.
var (
	ErrUserBlacklisted = apperrors.New("ERROR_USER_BAK", "user is blacklisted", http.StatusForbidden)
	ErrBonusCooldown   = apperrors.New("ERROR_BONUS_COOLDOWN", "bonus claim cooldown active", http.StatusTooManyRequests)
	ErrMediumContent   = apperrors.New("MEDIUM_CONTENT_INVALID", "submitted content does not contain the required back-link", http.StatusBadRequest)
)

// PayoutSender submits the on-chain transfer backing a successful claim.
type PayoutSender interface {
	Send(ctx context.Context, toWallet string, value int64, memo string) (txHash string, err error)
}

// Service processes claims against the reward store.
type Service struct {
	users          storage.UserStore
	rewards        storage.RewardStore
	transactor     storage.Transactor
	sender         PayoutSender
	mediumBackLink string
	log            *logger.Logger
	now            func() time.Time
}

// New constructs a reward service. sender may be nil, in which case claims
// settle in-store only.
func New(users storage.UserStore, rewards storage.RewardStore, transactor storage.Transactor, sender PayoutSender, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("reward")
	}
	return &Service{
		users:          users,
		rewards:        rewards,
		transactor:     transactor,
		sender:         sender,
		mediumBackLink: "like.co",
		log:            log,
		now:            time.Now,
	}
}

// GetCoupon returns the current state of a coupon code.
func (s *Service) GetCoupon(ctx context.Context, code string) (reward.Coupon, error) {
	c, err := s.rewards.GetCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return reward.Coupon{}, apperrors.NotFound("coupon not found").WithCause(err)
		}
		return reward.Coupon{}, err
	}
	return c, nil
}

// ClaimBonusesByType flips every due unclaimed bonus of the given type for
// the user inside one transaction and returns the summed value. A repeat
// call returns zero.
func (s *Service) ClaimBonusesByType(ctx context.Context, userID, bonusType string) (int64, error) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, apperrors.NotFound("user not found").WithCause(err)
		}
		return 0, err
	}
	if u.IsBlacklisted {
		metrics.RecordClaim("bonus", "blacklisted")
		return 0, ErrUserBlacklisted
	}
	now := s.now().UTC()
	if u.BonusCooldownAt.After(now) {
		metrics.RecordClaim("bonus", "cooldown")
		return 0, ErrBonusCooldown
	}

	var total int64
	var claimed []reward.Bonus
	err = s.transactor.RunTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		total = 0
		claimed = claimed[:0]
		bonuses, err := tx.Rewards().ListClaimableBonuses(ctx, userID, bonusType, now)
		if err != nil {
			return err
		}
		for _, b := range bonuses {
			b.WaitForClaim = false
			b.ClaimedAt = now
			b, err = tx.Rewards().UpdateBonus(ctx, b)
			if err != nil {
				return err
			}
			total += b.Value
			claimed = append(claimed, b)
		}
		return nil
	})
	if err != nil {
		metrics.RecordClaim("bonus", "error")
		return 0, err
	}
	if total == 0 {
		metrics.RecordClaim("bonus", "empty")
		return 0, nil
	}
	metrics.RecordClaim("bonus", "claimed")

	if s.sender != nil {
		wallet := payoutWallet(u)
		txHash, sendErr := s.sender.Send(ctx, wallet, total, "bonus claim")
		if sendErr != nil {
			// Bonuses stay claimed; the payout is retried out of band.
			s.log.WithError(sendErr).
				WithField("user_id", userID).
				WithField("value", total).
				Error("bonus payout broadcast failed")
		} else {
			for _, b := range claimed {
				b.ClaimTxHash = txHash
				if _, err := s.rewards.UpdateBonus(ctx, b); err != nil {
					s.log.WithError(err).WithField("bonus_id", b.ID).Warn("record bonus payout hash")
				}
			}
		}
	}

	s.log.WithField("user_id", userID).
		WithField("bonus_type", bonusType).
		WithField("value", total).
		Info("bonuses claimed")
	return total, nil
}

func payoutWallet(u user.User) string {
	if u.LikeWallet != "" {
		return u.LikeWallet
	}
	if u.CosmosWallet != "" {
		return u.CosmosWallet
	}
	return u.EVMWallet
}

// ClaimCoupon claims a coupon for a wallet. Exactly one concurrent caller
// wins the claim; the transfer is broadcast only after the claim commits,
// and the claim is rolled back if the broadcast fails.
func (s *Service) ClaimCoupon(ctx context.Context, code, recipientWallet string) (reward.Coupon, string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return reward.Coupon{}, "", apperrors.Validation("coupon code is required")
	}
	if strings.TrimSpace(recipientWallet) == "" {
		return reward.Coupon{}, "", apperrors.Validation("recipient wallet is required")
	}
	now := s.now().UTC()

	var coupon reward.Coupon
	err := s.transactor.RunTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		c, err := tx.Rewards().GetCoupon(ctx, code)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperrors.NotFound("coupon not found").WithCause(err)
			}
			return err
		}
		if c.IsInvalidated {
			return apperrors.Gone("coupon has been invalidated")
		}
		if c.IsClaimed {
			return apperrors.Conflict("coupon already claimed")
		}
		if c.Expired(now) {
			return apperrors.Expired("coupon has expired")
		}
		if c.AssignedWallet != "" && !strings.EqualFold(c.AssignedWallet, recipientWallet) {
			return apperrors.Forbidden("coupon is assigned to another wallet")
		}

		c.IsClaimed = true
		c.ClaimedByWallet = recipientWallet
		c.ClaimedAt = now
		coupon, err = tx.Rewards().UpdateCoupon(ctx, c)
		return err
	})
	if err != nil {
		metrics.RecordClaim("coupon", "rejected")
		return reward.Coupon{}, "", err
	}

	if s.sender == nil {
		metrics.RecordClaim("coupon", "claimed")
		return coupon, "", nil
	}

	txHash, sendErr := s.sender.Send(ctx, recipientWallet, coupon.Value, "coupon "+code)
	if sendErr != nil {
		// Broadcast failed: release the claim so the coupon can be retried.
		// A crash between commit and this rollback leaves the coupon
		// tentatively claimed; reconciliation uses ClaimedAt/ClaimTxHash.
		rollback := coupon
		rollback.IsClaimed = false
		rollback.ClaimedByWallet = ""
		rollback.ClaimedAt = time.Time{}
		if _, rbErr := s.rewards.UpdateCoupon(ctx, rollback); rbErr != nil {
			s.log.WithError(rbErr).WithField("code", code).Error("coupon claim rollback failed")
		}
		metrics.RecordClaim("coupon", "broadcast_failed")
		return reward.Coupon{}, "", apperrors.Upstream("coupon transfer broadcast failed").WithCause(sendErr)
	}

	coupon.ClaimTxHash = txHash
	if _, err := s.rewards.UpdateCoupon(ctx, coupon); err != nil {
		s.log.WithError(err).WithField("code", code).Warn("record coupon claim hash")
	}
	metrics.RecordClaim("coupon", "claimed")
	s.log.WithField("code", code).
		WithField("wallet", recipientWallet).
		WithField("tx_hash", txHash).
		Info("coupon claimed")
	return coupon, txHash, nil
}

// ClaimMission validates the completion proof and marks the mission done,
// creating at most one linked bonus.
func (s *Service) ClaimMission(ctx context.Context, userID, missionID, proof string) (reward.Mission, error) {
	m, err := s.rewards.GetMission(ctx, missionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return reward.Mission{}, apperrors.NotFound("mission not found").WithCause(err)
		}
		return reward.Mission{}, err
	}
	if m.UserID != userID {
		return reward.Mission{}, apperrors.Forbidden("mission belongs to another user")
	}
	now := s.now().UTC()
	if !m.InWindow(now) {
		return reward.Mission{}, apperrors.Expired("mission window has passed")
	}

	// Completion criteria are validated before any document is touched.
	if m.Type == "medium" && !strings.Contains(proof, s.mediumBackLink) {
		metrics.RecordClaim("mission", "invalid_proof")
		return reward.Mission{}, ErrMediumContent
	}

	var done reward.Mission
	err = s.transactor.RunTransaction(ctx, func(ctx context.Context, tx storage.Tx) error {
		current, err := tx.Rewards().GetMission(ctx, missionID)
		if err != nil {
			return err
		}
		if current.Status == reward.MissionStatusDone || current.BonusID != "" {
			return apperrors.Conflict("mission already completed")
		}

		if current.RewardValue > 0 {
			bonus, err := tx.Rewards().CreateBonus(ctx, reward.Bonus{
				UserID:       userID,
				Type:         reward.BonusTypeMission,
				Value:        current.RewardValue,
				WaitForClaim: true,
				EffectiveTs:  now,
			})
			if err != nil {
				return err
			}
			current.BonusID = bonus.ID
		}
		current.Status = reward.MissionStatusDone
		current.DoneAt = now
		done, err = tx.Rewards().UpdateMission(ctx, current)
		return err
	})
	if err != nil {
		metrics.RecordClaim("mission", "rejected")
		return reward.Mission{}, err
	}
	metrics.RecordClaim("mission", "claimed")
	s.log.WithField("mission_id", missionID).
		WithField("user_id", userID).
		Info("mission completed")
	return done, nil
}

// ListMissions returns all missions for a user ordered by priority.
func (s *Service) ListMissions(ctx context.Context, userID string) ([]reward.Mission, error) {
	return s.rewards.ListMissions(ctx, userID)
}
