// Package collection manages NFT collection records with owner-gated writes.
package collection

import (
	"context"
	"errors"
	"strings"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/collection"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
	"github.com/likecoin/likecoin-api-public/internal/chain"
	apperrors "github.com/likecoin/likecoin-api-public/internal/errors"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

const maxNameLength = 256

// Service gates collection writes on the owning wallet.
type Service struct {
	store storage.CollectionStore
	log   *logger.Logger
}

// New constructs a collection service.
func New(store storage.CollectionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("collection")
	}
	return &Service{store: store, log: log}
}

// Create records a new collection owned by the caller's wallet.
func (s *Service) Create(ctx context.Context, callerWallet string, c collection.Collection) (collection.Collection, error) {
	if err := validateWallet(callerWallet); err != nil {
		return collection.Collection{}, err
	}
	if strings.TrimSpace(c.Name) == "" {
		return collection.Collection{}, apperrors.Validation("collection name is required")
	}
	if len(c.Name) > maxNameLength {
		return collection.Collection{}, apperrors.Validation("collection name too long")
	}
	c.OwnerWallet = callerWallet
	created, err := s.store.CreateCollection(ctx, c)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return collection.Collection{}, apperrors.AlreadyExists("collection already exists").WithCause(err)
		}
		return collection.Collection{}, err
	}
	s.log.WithField("collection_id", created.ID).
		WithField("owner", callerWallet).
		Info("collection created")
	return created, nil
}

// Get returns a collection by ID.
func (s *Service) Get(ctx context.Context, id string) (collection.Collection, error) {
	return s.get(ctx, id)
}

// ListByOwner returns the collections owned by a wallet.
func (s *Service) ListByOwner(ctx context.Context, ownerWallet string) ([]collection.Collection, error) {
	return s.store.ListCollectionsByOwner(ctx, ownerWallet)
}

// Update replaces the mutable fields of a collection. Only the owner may
// update; ownership itself never changes.
func (s *Service) Update(ctx context.Context, callerWallet string, c collection.Collection) (collection.Collection, error) {
	existing, err := s.authorize(ctx, callerWallet, c.ID)
	if err != nil {
		return collection.Collection{}, err
	}
	if strings.TrimSpace(c.Name) == "" {
		return collection.Collection{}, apperrors.Validation("collection name is required")
	}

	existing.Name = c.Name
	existing.Description = c.Description
	existing.ImageURL = c.ImageURL
	existing.URI = c.URI
	existing.Priority = c.Priority
	updated, err := s.store.UpdateCollection(ctx, existing)
	if err != nil {
		return collection.Collection{}, err
	}
	s.log.WithField("collection_id", updated.ID).Info("collection updated")
	return updated, nil
}

// Delete removes a collection. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, callerWallet, id string) error {
	if _, err := s.authorize(ctx, callerWallet, id); err != nil {
		return err
	}
	if err := s.store.DeleteCollection(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.NotFound("collection not found").WithCause(err)
		}
		return err
	}
	s.log.WithField("collection_id", id).Info("collection deleted")
	return nil
}

func (s *Service) authorize(ctx context.Context, callerWallet, id string) (collection.Collection, error) {
	if err := validateWallet(callerWallet); err != nil {
		return collection.Collection{}, err
	}
	existing, err := s.get(ctx, id)
	if err != nil {
		return collection.Collection{}, err
	}
	if !strings.EqualFold(existing.OwnerWallet, callerWallet) {
		return collection.Collection{}, apperrors.Forbidden("not the collection owner")
	}
	return existing, nil
}

func (s *Service) get(ctx context.Context, id string) (collection.Collection, error) {
	c, err := s.store.GetCollection(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return collection.Collection{}, apperrors.NotFound("collection not found").WithCause(err)
		}
		return collection.Collection{}, err
	}
	return c, nil
}

func validateWallet(wallet string) error {
	if chain.IsValidEVMAddress(wallet) || chain.IsValidLikeAddress(wallet) || chain.IsValidCosmosAddress(wallet) {
		return nil
	}
	return apperrors.Validation("invalid wallet address")
}
