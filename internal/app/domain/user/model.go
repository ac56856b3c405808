package user

import "time"

// Subscription tiers recorded on a user.
const (
	TierNone       = ""
	TierCivicLiker = "civic_liker"
	TierLikerPlus  = "liker_plus"
)

// User is an identity record keyed by handle. Users are never structurally
// deleted, only flagged.
type User struct {
	ID               string
	Email            string
	EVMWallet        string
	CosmosWallet     string
	LikeWallet       string
	Referrer         string
	IsBlacklisted    bool
	SubscriptionTier string
	SubscriptionEnd  time.Time
	BonusCooldownAt  time.Time
	AuthNonce        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SocialLink records a linked external platform account for a user.
type SocialLink struct {
	ID         string
	UserID     string
	Platform   string
	PlatformID string
	Handle     string
	URL        string
	IsPublic   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
