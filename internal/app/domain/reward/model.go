package reward

import "time"

// Bonus types claimable by users.
const (
	BonusTypeReferral = "referral"
	BonusTypeMission  = "mission"
	BonusTypeCoupon   = "coupon"
)

// Bonus is a pending credit owed to a user, claimable once its effective
// time has passed. WaitForClaim flips to false exactly once.
type Bonus struct {
	ID           string
	UserID       string
	Type         string
	Value        int64
	WaitForClaim bool
	EffectiveTs  time.Time
	ClaimedAt    time.Time
	ClaimTxHash  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Claimable reports whether the bonus can still be claimed at now.
func (b Bonus) Claimable(now time.Time) bool {
	return b.WaitForClaim && !b.EffectiveTs.After(now)
}

// Coupon is a prepaid value voucher keyed by code. At most one successful
// claim transitions IsClaimed false to true.
type Coupon struct {
	Code            string
	Value           int64
	ExpiresAt       time.Time
	IsClaimed       bool
	IsInvalidated   bool
	AssignedWallet  string
	ClaimedByWallet string
	ClaimedAt       time.Time
	ClaimTxHash     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Expired reports whether the coupon can no longer be claimed due to time.
func (c Coupon) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Mission completion states.
const (
	MissionStatusOpen = "open"
	MissionStatusDone = "done"
)

// Mission is a completable task tied to at most one payout ever.
type Mission struct {
	ID          string
	UserID      string
	Type        string
	Status      string
	Priority    int
	RewardValue int64
	BonusID     string
	StartTs     time.Time
	EndTs       time.Time
	DoneAt      time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// InWindow reports whether the mission is claimable at now given its
// optional time window.
func (m Mission) InWindow(now time.Time) bool {
	if !m.StartTs.IsZero() && now.Before(m.StartTs) {
		return false
	}
	if !m.EndTs.IsZero() && now.After(m.EndTs) {
		return false
	}
	return true
}
