// Package poller confirms broadcast transactions against the chain and
// settles their ledger records.
package poller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/likecoin/likecoin-api-public/internal/app/domain/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/metrics"
	ledgersvc "github.com/likecoin/likecoin-api-public/internal/app/services/ledger"
	"github.com/likecoin/likecoin-api-public/internal/app/storage"
	"github.com/likecoin/likecoin-api-public/internal/app/system"
	"github.com/likecoin/likecoin-api-public/internal/chain"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

const (
	defaultInterval = 15 * time.Second
	defaultTimeout  = 10 * time.Minute
	defaultBatch    = 100
)

// TxResolver decides whether a broadcast transaction has settled.
type TxResolver interface {
	Resolve(ctx context.Context, tx ledger.Transaction) (done bool, success bool, reason string, retryAfter time.Duration, err error)
}

// CosmosTxGetter polls a Cosmos transaction by hash.
type CosmosTxGetter interface {
	GetTx(ctx context.Context, txHash string) (chain.TxStatus, error)
}

// EVMReceiptGetter polls an EVM transaction receipt by hash.
type EVMReceiptGetter interface {
	GetTransactionReceipt(ctx context.Context, txHash string) (*chain.TransactionReceipt, error)
}

// ChainResolver resolves transactions against the ledger's two chains,
// picking the chain by the sender address form. Transactions not indexed
// within the timeout are marked failed.
type ChainResolver struct {
	cosmos  CosmosTxGetter
	evm     EVMReceiptGetter
	timeout time.Duration
	seen    sync.Map // txHash -> time.Time
}

// NewChainResolver builds a resolver over the given chain clients. Either
// client may be nil; transactions for a missing chain stay pending until
// the timeout.
func NewChainResolver(cosmos CosmosTxGetter, evm EVMReceiptGetter, timeout time.Duration) *ChainResolver {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ChainResolver{cosmos: cosmos, evm: evm, timeout: timeout}
}

func (r *ChainResolver) Resolve(ctx context.Context, tx ledger.Transaction) (bool, bool, string, time.Duration, error) {
	if r.expired(tx.TxHash) {
		return true, false, "timed out waiting for chain confirmation", 0, nil
	}

	if strings.HasPrefix(tx.From, "0x") {
		return r.resolveEVM(ctx, tx)
	}
	return r.resolveCosmos(ctx, tx)
}

func (r *ChainResolver) resolveCosmos(ctx context.Context, tx ledger.Transaction) (bool, bool, string, time.Duration, error) {
	if r.cosmos == nil {
		return false, false, "", 0, nil
	}
	status, err := r.cosmos.GetTx(ctx, tx.TxHash)
	if err != nil {
		return false, false, "", 0, err
	}
	if !status.Found {
		return false, false, "", 0, nil
	}
	if status.Code != 0 {
		return true, false, status.RawLog, 0, nil
	}
	return true, true, "", 0, nil
}

func (r *ChainResolver) resolveEVM(ctx context.Context, tx ledger.Transaction) (bool, bool, string, time.Duration, error) {
	if r.evm == nil {
		return false, false, "", 0, nil
	}
	receipt, err := r.evm.GetTransactionReceipt(ctx, tx.TxHash)
	if err != nil {
		return false, false, "", 0, err
	}
	if receipt == nil {
		return false, false, "", 0, nil
	}
	if !receipt.Succeeded() {
		return true, false, "execution reverted", 0, nil
	}
	return true, true, "", 0, nil
}

// expired reports whether the hash has been pending longer than the
// timeout, counting from the first time the resolver saw it.
func (r *ChainResolver) expired(txHash string) bool {
	firstSeen, loaded := r.seen.LoadOrStore(txHash, time.Now())
	if !loaded {
		return false
	}
	return time.Since(firstSeen.(time.Time)) >= r.timeout
}

func (r *ChainResolver) forget(txHash string) {
	r.seen.Delete(txHash)
}

// Poller sweeps pending ledger records and settles them via the resolver.
type Poller struct {
	store    storage.LedgerStore
	ledger   *ledgersvc.Service
	resolver TxResolver
	interval time.Duration
	batch    int
	log      *logger.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
}

var _ system.Service = (*Poller)(nil)

// New builds a confirmation poller.
func New(store storage.LedgerStore, ledgerSvc *ledgersvc.Service, resolver TxResolver, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.NewDefault("tx-poller")
	}
	return &Poller{
		store:       store,
		ledger:      ledgerSvc,
		resolver:    resolver,
		interval:    defaultInterval,
		batch:       defaultBatch,
		log:         log,
		nextAttempt: make(map[string]time.Time),
	}
}

func (p *Poller) Name() string { return "tx-poller" }

func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.tick(runCtx)
			}
		}
	}()

	p.log.Info("transaction confirmation poller started")
	return nil
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (p *Poller) tick(ctx context.Context) {
	txs, err := p.store.ListTransactionsByStatus(ctx, ledger.StatusPending, p.batch)
	if err != nil {
		p.log.WithError(err).Warn("list pending transactions failed")
		return
	}

	now := time.Now()
	for _, tx := range txs {
		if !p.shouldAttempt(tx.TxHash, now) {
			continue
		}

		done, success, reason, retryAfter, err := p.resolver.Resolve(ctx, tx)
		if err != nil {
			p.log.WithError(err).Warnf("resolve transaction %s failed", tx.TxHash)
			metrics.RecordPollerSweep("error")
			p.scheduleNext(tx.TxHash, retryAfter)
			continue
		}
		if !done {
			metrics.RecordPollerSweep("pending")
			p.scheduleNext(tx.TxHash, retryAfter)
			continue
		}

		if err := p.settle(ctx, tx.TxHash, success, reason); err != nil {
			p.log.WithError(err).Warnf("settle transaction %s failed", tx.TxHash)
			metrics.RecordPollerSweep("error")
			p.scheduleNext(tx.TxHash, retryAfter)
			continue
		}
		if success {
			metrics.RecordPollerSweep("completed")
		} else {
			metrics.RecordPollerSweep("failed")
		}
		p.log.Infof("transaction %s settled (success=%t)", tx.TxHash, success)
		p.clearSchedule(tx.TxHash)
		if cr, ok := p.resolver.(*ChainResolver); ok {
			cr.forget(tx.TxHash)
		}
	}
}

func (p *Poller) settle(ctx context.Context, txHash string, success bool, reason string) error {
	if success {
		_, err := p.ledger.MarkComplete(ctx, txHash, time.Now().UTC())
		return err
	}
	if reason == "" {
		reason = "transaction failed on chain"
	}
	_, err := p.ledger.MarkFailed(ctx, txHash, reason)
	return err
}

func (p *Poller) shouldAttempt(txHash string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.nextAttempt[txHash]
	return !ok || now.After(next)
}

func (p *Poller) scheduleNext(txHash string, after time.Duration) {
	if after <= 0 {
		after = p.interval
	}
	p.mu.Lock()
	p.nextAttempt[txHash] = time.Now().Add(after)
	p.mu.Unlock()
}

func (p *Poller) clearSchedule(txHash string) {
	p.mu.Lock()
	delete(p.nextAttempt, txHash)
	p.mu.Unlock()
}
