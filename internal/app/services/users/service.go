// Package users manages identity records: registration, wallet linking
// with ownership proofs, and social platform links.
package users

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/user"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
	"github.com/likecoin/likecoin-api-public/internal/chain"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

// Handle rules match the historical registration constraints.
var (
	handleRe = regexp.MustCompile(`^[a-z0-9-_]{7,20}$`)
	emailRe  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

var socialPlatforms = map[string]bool{
	"twitter":   true,
	"facebook":  true,
	"medium":    true,
	"matters":   true,
	"flickr":    true,
	"instagram": true,
}

// Service manages user records.
type Service struct {
	store storage.UserStore
	log   *logger.Logger
}

// New constructs a users service.
func New(store storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("users")
	}
	return &Service{store: store, log: log}
}

// RegisterRequest carries the fields accepted at sign-up.
type RegisterRequest struct {
	ID        string
	Email     string
	EVMWallet string
	Referrer  string
}

// Register creates a user record. The handle is the permanent key.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (user.User, error) {
	id := strings.ToLower(strings.TrimSpace(req.ID))
	if !handleRe.MatchString(id) {
		return user.User{}, apperrors.Validation("handle must be 7-20 characters of a-z, 0-9, - or _")
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !emailRe.MatchString(email) {
		return user.User{}, apperrors.Validation("invalid email address")
	}
	wallet := strings.TrimSpace(req.EVMWallet)
	if wallet != "" {
		if !chain.IsValidEVMAddress(wallet) {
			return user.User{}, apperrors.Validation("invalid wallet address")
		}
		wallet = chain.NormalizeEVMAddress(wallet)
	}
	referrer := strings.ToLower(strings.TrimSpace(req.Referrer))
	if referrer != "" {
		if _, err := s.store.GetUser(ctx, referrer); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return user.User{}, apperrors.Validation("referrer does not exist")
			}
			return user.User{}, err
		}
	}

	created, err := s.store.CreateUser(ctx, user.User{
		ID:        id,
		Email:     email,
		EVMWallet: wallet,
		Referrer:  referrer,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return user.User{}, apperrors.AlreadyExists("handle or wallet already registered").WithCause(err)
		}
		return user.User{}, err
	}
	s.log.WithField("user_id", id).Info("user registered")
	return created, nil
}

// Get returns a user by handle.
func (s *Service) Get(ctx context.Context, id string) (user.User, error) {
	u, err := s.store.GetUser(ctx, strings.ToLower(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, apperrors.NotFound("user not found").WithCause(err)
		}
		return user.User{}, err
	}
	return u, nil
}

// GetByWallet returns a user by any of their linked wallets.
func (s *Service) GetByWallet(ctx context.Context, wallet string) (user.User, error) {
	u, err := s.store.GetUserByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return user.User{}, apperrors.NotFound("user not found").WithCause(err)
		}
		return user.User{}, err
	}
	return u, nil
}

// ChallengeNonce issues a fresh nonce stored on the user record. The next
// wallet-link or login proof must sign a message containing it.
func (s *Service) ChallengeNonce(ctx context.Context, userID string) (string, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	nonce, err := randomNonce()
	if err != nil {
		return "", err
	}
	u.AuthNonce = nonce
	if _, err := s.store.UpdateUser(ctx, u); err != nil {
		return "", err
	}
	return nonce, nil
}

// LinkMessage is the exact text a wallet must sign to prove ownership.
func LinkMessage(userID, wallet, nonce string) string {
	return fmt.Sprintf("Link wallet %s to Liker ID %s (nonce: %s)", wallet, userID, nonce)
}

// LinkEVMWallet attaches an EVM wallet after verifying a personal-sign
// proof over the link message with the user's current nonce.
func (s *Service) LinkEVMWallet(ctx context.Context, userID, wallet, sigHex string) (user.User, error) {
	if !chain.IsValidEVMAddress(wallet) {
		return user.User{}, apperrors.Validation("invalid wallet address")
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	if u.AuthNonce == "" {
		return user.User{}, apperrors.Validation("request a challenge nonce first")
	}
	message := LinkMessage(u.ID, wallet, u.AuthNonce)
	if !chain.VerifyPersonalSign(wallet, message, sigHex) {
		return user.User{}, apperrors.Unauthorized("wallet signature verification failed")
	}
	if taken, err := s.walletTaken(ctx, wallet, u.ID); err != nil {
		return user.User{}, err
	} else if taken {
		return user.User{}, apperrors.AlreadyExists("wallet already linked to another user")
	}

	u.EVMWallet = chain.NormalizeEVMAddress(wallet)
	u.AuthNonce = ""
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", u.ID).WithField("wallet", updated.EVMWallet).Info("evm wallet linked")
	return updated, nil
}

// LinkCosmosWallet attaches a Cosmos wallet after verifying a secp256k1
// proof over the link message. The like-prefixed form is derived and stored
// alongside.
func (s *Service) LinkCosmosWallet(ctx context.Context, userID, wallet, pubKeyBase64, sigBase64 string) (user.User, error) {
	if !chain.IsValidCosmosAddress(wallet) && !chain.IsValidLikeAddress(wallet) {
		return user.User{}, apperrors.Validation("invalid wallet address")
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	if u.AuthNonce == "" {
		return user.User{}, apperrors.Validation("request a challenge nonce first")
	}

	prefix := chain.Bech32PrefixCosmos
	if chain.IsValidLikeAddress(wallet) {
		prefix = chain.Bech32PrefixLike
	}
	message := LinkMessage(u.ID, wallet, u.AuthNonce)
	signer, ok := chain.VerifyCosmosSign(pubKeyBase64, message, sigBase64, prefix)
	if !ok || !strings.EqualFold(signer, wallet) {
		return user.User{}, apperrors.Unauthorized("wallet signature verification failed")
	}
	if taken, err := s.walletTaken(ctx, wallet, u.ID); err != nil {
		return user.User{}, err
	} else if taken {
		return user.User{}, apperrors.AlreadyExists("wallet already linked to another user")
	}

	likeWallet := wallet
	cosmosWallet := wallet
	if prefix == chain.Bech32PrefixLike {
		cosmosWallet, err = chain.ConvertBech32Prefix(wallet, chain.Bech32PrefixCosmos)
	} else {
		likeWallet, err = chain.ConvertBech32Prefix(wallet, chain.Bech32PrefixLike)
	}
	if err != nil {
		return user.User{}, apperrors.Validation("invalid wallet address").WithCause(err)
	}

	u.CosmosWallet = cosmosWallet
	u.LikeWallet = likeWallet
	u.AuthNonce = ""
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", u.ID).WithField("wallet", likeWallet).Info("cosmos wallet linked")
	return updated, nil
}

// VerifyLogin checks a personal-sign proof over the link message for an
// EVM wallet already linked to the user. The nonce is consumed either way.
func (s *Service) VerifyLogin(ctx context.Context, userID, wallet, sigHex string) (user.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	if u.AuthNonce == "" {
		return user.User{}, apperrors.Validation("request a challenge nonce first")
	}
	nonce := u.AuthNonce
	u.AuthNonce = ""
	if _, err := s.store.UpdateUser(ctx, u); err != nil {
		return user.User{}, err
	}

	if !strings.EqualFold(u.EVMWallet, wallet) {
		return user.User{}, apperrors.Unauthorized("wallet not linked to this user")
	}
	message := LinkMessage(u.ID, wallet, nonce)
	if !chain.VerifyPersonalSign(wallet, message, sigHex) {
		return user.User{}, apperrors.Unauthorized("wallet signature verification failed")
	}
	return u, nil
}

func (s *Service) walletTaken(ctx context.Context, wallet, selfID string) (bool, error) {
	existing, err := s.store.GetUserByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return existing.ID != selfID, nil
}

// LinkSocial records an external platform link for a user.
func (s *Service) LinkSocial(ctx context.Context, userID string, link user.SocialLink) (user.SocialLink, error) {
	platform := strings.ToLower(strings.TrimSpace(link.Platform))
	if !socialPlatforms[platform] {
		return user.SocialLink{}, apperrors.Validation("unsupported platform")
	}
	if _, err := s.Get(ctx, userID); err != nil {
		return user.SocialLink{}, err
	}

	link.UserID = strings.ToLower(userID)
	link.Platform = platform
	created, err := s.store.CreateSocialLink(ctx, link)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return user.SocialLink{}, apperrors.AlreadyExists("platform already linked").WithCause(err)
		}
		return user.SocialLink{}, err
	}
	s.log.WithField("user_id", link.UserID).WithField("platform", platform).Info("social platform linked")
	return created, nil
}

// UnlinkSocial removes a platform link.
func (s *Service) UnlinkSocial(ctx context.Context, userID, platform string) error {
	err := s.store.DeleteSocialLink(ctx, strings.ToLower(userID), strings.ToLower(platform))
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.NotFound("platform link not found").WithCause(err)
	}
	return err
}

// ListSocial returns all platform links for a user.
func (s *Service) ListSocial(ctx context.Context, userID string) ([]user.SocialLink, error) {
	return s.store.ListSocialLinks(ctx, strings.ToLower(userID))
}

// SetBlacklisted flags or unflags a user. Records are never deleted.
func (s *Service) SetBlacklisted(ctx context.Context, userID string, blacklisted bool) (user.User, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return user.User{}, err
	}
	u.IsBlacklisted = blacklisted
	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return user.User{}, err
	}
	s.log.WithField("user_id", u.ID).WithField("blacklisted", blacklisted).Warn("user blacklist flag changed")
	return updated, nil
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
