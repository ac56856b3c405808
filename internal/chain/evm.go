// Package chain provides Cosmos and EVM blockchain interaction for the
// LikeCoin API server.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"
)

// EVMClient provides JSON-RPC access to an EVM-compatible chain node.
type EVMClient struct {
	rpcURL     string
	httpClient *http.Client
}

// EVMConfig holds EVM client configuration.
type EVMConfig struct {
	RPCURL  string
	Timeout time.Duration
}

// NewEVMClient creates a new EVM JSON-RPC client.
func NewEVMClient(cfg EVMConfig) (*EVMClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &EVMClient{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Call makes a JSON-RPC call to the EVM node.
func (c *EVMClient) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

func (c *EVMClient) callHexQuantity(ctx context.Context, method string, params []interface{}) (*big.Int, error) {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}

	var hexValue string
	if err := json.Unmarshal(raw, &hexValue); err != nil {
		return nil, fmt.Errorf("unmarshal %s result: %w", method, err)
	}

	value, ok := new(big.Int).SetString(strings.TrimPrefix(hexValue, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q from %s", hexValue, method)
	}
	return value, nil
}

// GetBalance returns the wei balance of an address at the latest block.
func (c *EVMClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	return c.callHexQuantity(ctx, "eth_getBalance", []interface{}{address, "latest"})
}

// GetTransactionCount returns the next nonce for an address, counting
// pending transactions so concurrent submitters see their own txs.
func (c *EVMClient) GetTransactionCount(ctx context.Context, address string) (uint64, error) {
	count, err := c.callHexQuantity(ctx, "eth_getTransactionCount", []interface{}{address, "pending"})
	if err != nil {
		return 0, err
	}
	return count.Uint64(), nil
}

// GetBlockNumber returns the latest block number.
func (c *EVMClient) GetBlockNumber(ctx context.Context) (uint64, error) {
	height, err := c.callHexQuantity(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	return height.Uint64(), nil
}

// SendRawTransaction relays a client-signed raw transaction and returns the
// transaction hash accepted into the mempool.
func (c *EVMClient) SendRawTransaction(ctx context.Context, signedTxHex string) (string, error) {
	if !strings.HasPrefix(signedTxHex, "0x") {
		signedTxHex = "0x" + signedTxHex
	}

	raw, err := c.Call(ctx, "eth_sendRawTransaction", []interface{}{signedTxHex})
	if err != nil {
		return "", err
	}

	var txHash string
	if err := json.Unmarshal(raw, &txHash); err != nil {
		return "", fmt.Errorf("unmarshal tx hash: %w", err)
	}
	return txHash, nil
}

// TransactionReceipt is the subset of an EVM receipt the poller needs.
type TransactionReceipt struct {
	TxHash      string `json:"transactionHash"`
	BlockNumber string `json:"blockNumber"`
	Status      string `json:"status"`
}

// Succeeded reports whether the receipt records a successful execution.
func (r *TransactionReceipt) Succeeded() bool {
	return r != nil && r.Status == "0x1"
}

// GetTransactionReceipt returns the receipt for a transaction hash, or nil
// if the transaction is not yet included in a block.
func (c *EVMClient) GetTransactionReceipt(ctx context.Context, txHash string) (*TransactionReceipt, error) {
	raw, err := c.Call(ctx, "eth_getTransactionReceipt", []interface{}{txHash})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var receipt TransactionReceipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return &receipt, nil
}
