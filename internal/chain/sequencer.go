package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

// SequenceQuerier reads the next account sequence from the chain. Both
// CosmosClient and EVMClient (via GetTransactionCount) satisfy it through
// small adapters.
type SequenceQuerier interface {
	AccountSequence(ctx context.Context, address string) (uint64, error)
}

// BroadcastFunc signs and broadcasts a transaction using the handed-out
// sequence, returning the accepted transaction hash.
type BroadcastFunc func(ctx context.Context, sequence uint64) (txHash string, err error)

// Sequencer hands out collision-free sequence numbers per signing address.
// Callers for the same address are serialized; different addresses proceed
// independently. A broadcast failure rolls the counter back so the sequence
// can be reused; a stale-sequence rejection triggers a single refetch-and-
// retry against the chain.
type Sequencer struct {
	querier SequenceQuerier
	log     *logger.Logger

	mu      sync.Mutex
	entries map[string]*addressSequence
}

type addressSequence struct {
	mu    sync.Mutex
	next  uint64
	known bool
}

// NewSequencer creates a sequencer backed by the given chain querier.
func NewSequencer(querier SequenceQuerier, log *logger.Logger) *Sequencer {
	if log == nil {
		log = logger.NewDefault("sequencer")
	}
	return &Sequencer{
		querier: querier,
		log:     log,
		entries: make(map[string]*addressSequence),
	}
}

func (s *Sequencer) entry(address string) *addressSequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[address]
	if !ok {
		e = &addressSequence{}
		s.entries[address] = e
	}
	return e
}

// WithSequence acquires exclusive access to the counter for address, hands
// the next sequence to fn and advances the counter only when fn succeeds.
func (s *Sequencer) WithSequence(ctx context.Context, address string, fn BroadcastFunc) (string, error) {
	e := s.entry(address)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.known {
		seq, err := s.querier.AccountSequence(ctx, address)
		if err != nil {
			return "", fmt.Errorf("query sequence for %s: %w", address, err)
		}
		e.next = seq
		e.known = true
	}

	txHash, err := fn(ctx, e.next)
	if err == nil {
		e.next++
		return txHash, nil
	}

	if !IsSequenceMismatch(err) {
		// Counter untouched so the same sequence is reusable on retry.
		return "", err
	}

	s.log.WithField("address", address).
		WithField("stale_sequence", e.next).
		Warn("sequence mismatch, refetching from chain")

	seq, qErr := s.querier.AccountSequence(ctx, address)
	if qErr != nil {
		e.known = false
		return "", fmt.Errorf("refetch sequence for %s: %w", address, qErr)
	}
	e.next = seq

	txHash, err = fn(ctx, e.next)
	if err != nil {
		if IsSequenceMismatch(err) {
			e.known = false
		}
		return "", err
	}
	e.next++
	return txHash, nil
}

// ResetSequence drops the cached counter for an address, forcing the next
// caller to refetch from chain.
func (s *Sequencer) ResetSequence(address string) {
	e := s.entry(address)
	e.mu.Lock()
	e.known = false
	e.mu.Unlock()
}
