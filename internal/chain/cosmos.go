package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Cosmos SDK error code returned when the signed sequence does not match the
// account state on the node.
const cosmosCodeSequenceMismatch = 32

// CosmosClient provides REST (LCD) access to a Cosmos-SDK-based chain node.
type CosmosClient struct {
	lcdURL     string
	chainID    string
	denom      string
	httpClient *http.Client
}

// CosmosConfig holds Cosmos client configuration.
type CosmosConfig struct {
	LCDURL  string
	ChainID string
	Denom   string
	Timeout time.Duration
}

// NewCosmosClient creates a new Cosmos LCD client.
func NewCosmosClient(cfg CosmosConfig) (*CosmosClient, error) {
	if cfg.LCDURL == "" {
		return nil, fmt.Errorf("LCD URL required")
	}
	if cfg.Denom == "" {
		cfg.Denom = "nanolike"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &CosmosClient{
		lcdURL:  strings.TrimSuffix(cfg.LCDURL, "/"),
		chainID: cfg.ChainID,
		denom:   cfg.Denom,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// ChainID returns the configured chain identifier.
func (c *CosmosClient) ChainID() string { return c.chainID }

// Denom returns the configured base denomination.
func (c *CosmosClient) Denom() string { return c.denom }

func (c *CosmosClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.lcdURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lcd %s: status %d: %s", path, resp.StatusCode, truncate(body, 256))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", path, err)
	}
	return nil
}

func (c *CosmosClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.lcdURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lcd %s: status %d: %s", path, resp.StatusCode, truncate(respBody, 256))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal %s response: %w", path, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// GetBalance returns the balance of an address in the configured denom.
func (c *CosmosClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var out struct {
		Balance struct {
			Denom  string `json:"denom"`
			Amount string `json:"amount"`
		} `json:"balance"`
	}
	path := fmt.Sprintf("/cosmos/bank/v1beta1/balances/%s/by_denom?denom=%s", address, c.denom)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}

	amount, ok := new(big.Int).SetString(out.Balance.Amount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid balance amount %q", out.Balance.Amount)
	}
	return amount, nil
}

// Account holds the on-chain account number and next sequence.
type Account struct {
	Address       string
	AccountNumber uint64
	Sequence      uint64
}

// GetAccount returns the account number and sequence for an address.
func (c *CosmosClient) GetAccount(ctx context.Context, address string) (Account, error) {
	var out struct {
		Account struct {
			Address       string `json:"address"`
			AccountNumber string `json:"account_number"`
			Sequence      string `json:"sequence"`
		} `json:"account"`
	}
	if err := c.get(ctx, "/cosmos/auth/v1beta1/accounts/"+address, &out); err != nil {
		return Account{}, err
	}

	accountNumber, err := strconv.ParseUint(out.Account.AccountNumber, 10, 64)
	if err != nil {
		return Account{}, fmt.Errorf("invalid account number %q", out.Account.AccountNumber)
	}
	sequence, err := strconv.ParseUint(out.Account.Sequence, 10, 64)
	if err != nil {
		return Account{}, fmt.Errorf("invalid sequence %q", out.Account.Sequence)
	}

	return Account{
		Address:       address,
		AccountNumber: accountNumber,
		Sequence:      sequence,
	}, nil
}

// AccountSequence returns only the next sequence for an address. Implements
// the sequencer's chain-query fallback.
func (c *CosmosClient) AccountSequence(ctx context.Context, address string) (uint64, error) {
	acct, err := c.GetAccount(ctx, address)
	if err != nil {
		return 0, err
	}
	return acct.Sequence, nil
}

// GetBlockHeight returns the latest block height.
func (c *CosmosClient) GetBlockHeight(ctx context.Context) (int64, error) {
	var out struct {
		Block struct {
			Header struct {
				Height string `json:"height"`
			} `json:"header"`
		} `json:"block"`
	}
	if err := c.get(ctx, "/cosmos/base/tendermint/v1beta1/blocks/latest", &out); err != nil {
		return 0, err
	}

	height, err := strconv.ParseInt(out.Block.Header.Height, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid block height %q", out.Block.Header.Height)
	}
	return height, nil
}

// Delegation is a single staking delegation entry.
type Delegation struct {
	ValidatorAddress string
	Amount           *big.Int
}

// GetDelegations returns the active delegations for a delegator address.
func (c *CosmosClient) GetDelegations(ctx context.Context, delegator string) ([]Delegation, error) {
	var out struct {
		DelegationResponses []struct {
			Delegation struct {
				ValidatorAddress string `json:"validator_address"`
			} `json:"delegation"`
			Balance struct {
				Amount string `json:"amount"`
			} `json:"balance"`
		} `json:"delegation_responses"`
	}
	if err := c.get(ctx, "/cosmos/staking/v1beta1/delegations/"+delegator, &out); err != nil {
		return nil, err
	}

	delegations := make([]Delegation, 0, len(out.DelegationResponses))
	for _, entry := range out.DelegationResponses {
		amount, ok := new(big.Int).SetString(entry.Balance.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid delegation amount %q", entry.Balance.Amount)
		}
		delegations = append(delegations, Delegation{
			ValidatorAddress: entry.Delegation.ValidatorAddress,
			Amount:           amount,
		})
	}
	return delegations, nil
}

// BroadcastError reports a transaction rejected by the node after it was
// accepted at the HTTP level.
type BroadcastError struct {
	Code   int
	RawLog string
}

func (e *BroadcastError) Error() string {
	return fmt.Sprintf("broadcast rejected (code %d): %s", e.Code, e.RawLog)
}

// IsSequenceMismatch reports whether the error is a stale-sequence rejection
// that the sequencer may retry with a fresh sequence.
func IsSequenceMismatch(err error) bool {
	var bErr *BroadcastError
	if errors.As(err, &bErr) {
		return bErr.Code == cosmosCodeSequenceMismatch ||
			strings.Contains(bErr.RawLog, "account sequence mismatch")
	}
	return false
}

// BroadcastResult is the node's acceptance response for a broadcast.
type BroadcastResult struct {
	TxHash string
	Code   int
	RawLog string
}

// BroadcastTx submits signed transaction bytes in sync mode. A non-zero code
// in the response is returned as a BroadcastError.
func (c *CosmosClient) BroadcastTx(ctx context.Context, txBytesBase64 string) (BroadcastResult, error) {
	payload := map[string]interface{}{
		"tx_bytes": txBytesBase64,
		"mode":     "BROADCAST_MODE_SYNC",
	}
	var out struct {
		TxResponse struct {
			TxHash string `json:"txhash"`
			Code   int    `json:"code"`
			RawLog string `json:"raw_log"`
		} `json:"tx_response"`
	}
	if err := c.post(ctx, "/cosmos/tx/v1beta1/txs", payload, &out); err != nil {
		return BroadcastResult{}, err
	}

	result := BroadcastResult{
		TxHash: out.TxResponse.TxHash,
		Code:   out.TxResponse.Code,
		RawLog: out.TxResponse.RawLog,
	}
	if result.Code != 0 {
		return result, &BroadcastError{Code: result.Code, RawLog: result.RawLog}
	}
	return result, nil
}

// BroadcastStdTx submits a legacy amino StdTx produced by the Signer through
// the legacy broadcast endpoint.
func (c *CosmosClient) BroadcastStdTx(ctx context.Context, stdTx json.RawMessage) (BroadcastResult, error) {
	payload := map[string]interface{}{
		"tx":   stdTx,
		"mode": "sync",
	}
	var out struct {
		TxHash string `json:"txhash"`
		Code   int    `json:"code"`
		RawLog string `json:"raw_log"`
	}
	if err := c.post(ctx, "/txs", payload, &out); err != nil {
		return BroadcastResult{}, err
	}

	result := BroadcastResult{TxHash: out.TxHash, Code: out.Code, RawLog: out.RawLog}
	if result.Code != 0 {
		return result, &BroadcastError{Code: result.Code, RawLog: result.RawLog}
	}
	return result, nil
}

// TxStatus is the inclusion state of a broadcast transaction.
type TxStatus struct {
	Found   bool
	Height  int64
	Code    int
	RawLog  string
	GasUsed int64
}

// Succeeded reports whether the transaction was included and executed.
func (s TxStatus) Succeeded() bool { return s.Found && s.Code == 0 }

// GetTx polls a transaction by hash. Found=false means the node has not yet
// indexed it; callers keep polling.
func (c *CosmosClient) GetTx(ctx context.Context, txHash string) (TxStatus, error) {
	var out struct {
		TxResponse struct {
			Height  string `json:"height"`
			Code    int    `json:"code"`
			RawLog  string `json:"raw_log"`
			GasUsed string `json:"gas_used"`
		} `json:"tx_response"`
	}
	err := c.get(ctx, "/cosmos/tx/v1beta1/txs/"+txHash, &out)
	if err != nil {
		// LCD responds 404 until the tx is indexed.
		if strings.Contains(err.Error(), "status 404") {
			return TxStatus{}, nil
		}
		return TxStatus{}, err
	}

	height, _ := strconv.ParseInt(out.TxResponse.Height, 10, 64)
	gasUsed, _ := strconv.ParseInt(out.TxResponse.GasUsed, 10, 64)
	return TxStatus{
		Found:   height > 0,
		Height:  height,
		Code:    out.TxResponse.Code,
		RawLog:  out.TxResponse.RawLog,
		GasUsed: gasUsed,
	}, nil
}
