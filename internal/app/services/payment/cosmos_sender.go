package payment

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/likecoin/likecoin-api-public/internal/app/metrics"
	"github.com/likecoin/likecoin-api-public/internal/chain"
	"github.com/likecoin/likecoin-api-public/pkg/logger"
)

const (
	defaultGas       = 200000
	defaultFeeAmount = "5000"
)

// CosmosSender submits server-signed bank transfers from the service
// wallet, sequenced per address so concurrent payouts never collide.
type CosmosSender struct {
	client *chain.CosmosClient
	signer *chain.Signer
	seq    *chain.Sequencer
	log    *logger.Logger

	mu            sync.Mutex
	accountNumber uint64
	accountKnown  bool
}

// NewCosmosSender constructs the sender around the service signing key.
func NewCosmosSender(client *chain.CosmosClient, signer *chain.Signer, log *logger.Logger) *CosmosSender {
	if log == nil {
		log = logger.NewDefault("cosmos-sender")
	}
	return &CosmosSender{
		client: client,
		signer: signer,
		seq:    chain.NewSequencer(client, log),
		log:    log,
	}
}

func (s *CosmosSender) getAccountNumber(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountKnown {
		return s.accountNumber, nil
	}
	account, err := s.client.GetAccount(ctx, s.signer.Address())
	if err != nil {
		return 0, err
	}
	s.accountNumber = account.AccountNumber
	s.accountKnown = true
	return s.accountNumber, nil
}

// Send transfers value to toWallet and returns the accepted hash.
func (s *CosmosSender) Send(ctx context.Context, toWallet string, value int64, memo string) (string, error) {
	return s.SendMsgs(ctx, []chain.Msg{{
		Type: "cosmos-sdk/MsgSend",
		Value: map[string]interface{}{
			"from_address": s.signer.Address(),
			"to_address":   toWallet,
			"amount": []chain.Coin{{
				Denom:  s.client.Denom(),
				Amount: strconv.FormatInt(value, 10),
			}},
		},
	}}, memo)
}

// SendMsgs signs and broadcasts arbitrary messages from the service wallet.
// ISCN registration reuses this path with its own message types.
func (s *CosmosSender) SendMsgs(ctx context.Context, msgs []chain.Msg, memo string) (string, error) {
	accountNumber, err := s.getAccountNumber(ctx)
	if err != nil {
		return "", err
	}
	fee := chain.Fee{
		Amount: []chain.Coin{{Denom: s.client.Denom(), Amount: defaultFeeAmount}},
		Gas:    defaultGas,
	}

	start := time.Now()
	txHash, err := s.seq.WithSequence(ctx, s.signer.Address(), func(ctx context.Context, sequence uint64) (string, error) {
		stdTx, err := s.signer.SignStdTx(accountNumber, sequence, msgs, fee, memo)
		if err != nil {
			return "", err
		}
		result, err := s.client.BroadcastStdTx(ctx, stdTx)
		if err != nil {
			if chain.IsSequenceMismatch(err) {
				metrics.RecordSequenceMismatch()
			}
			return "", err
		}
		return result.TxHash, nil
	})
	if err != nil {
		metrics.RecordBroadcast("cosmos", "failed", time.Since(start))
		return "", err
	}
	metrics.RecordBroadcast("cosmos", "ok", time.Since(start))
	return txHash, nil
}
