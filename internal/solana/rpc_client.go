package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"
)

// Default configuration values.
const (
	DefaultAttemptTimeout = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 1 * time.Second
	DefaultMaxDelay       = 10 * time.Second
	DefaultBackoffMult    = 2.0

	lamportsPerSOL = 1_000_000_000
)

// ErrBadRequest indicates the node rejected the request as malformed
// (HTTP 400). Retrying cannot help; callers normalize it to empty data.
var ErrBadRequest = errors.New("bad request rejected by node")

// ErrRateLimited indicates the node answered 429/403 on every attempt up
// to the retry ceiling.
var ErrRateLimited = errors.New("rate limited by node")

// HTTPClient implements Client using HTTP JSON-RPC 2.0 with retries,
// capped exponential backoff and jitter.
type HTTPClient struct {
	endpoint       string
	client         *http.Client
	attemptTimeout time.Duration
	maxRetries     int
	retryDelay     time.Duration
	maxDelay       time.Duration
	backoffMult    float64
	requestID      atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithAttemptTimeout sets the per-attempt timeout.
func WithAttemptTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.attemptTimeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client for one endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:       endpoint,
		client:         &http.Client{},
		attemptTimeout: DefaultAttemptTimeout,
		maxRetries:     DefaultMaxRetries,
		retryDelay:     DefaultRetryDelay,
		maxDelay:       DefaultMaxDelay,
		backoffMult:    DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the endpoint URL this client talks to.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and jittered exponential
// backoff. HTTP 429 and 403 are retried; HTTP 400 fails immediately with
// ErrBadRequest; JSON-RPC errors are never retried.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error
	rateLimited := false

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter(delay)):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		done, err := c.attempt(ctx, body, result)
		if done {
			return err
		}
		if err != nil {
			lastErr = err
			rateLimited = errors.Is(err, ErrRateLimited)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	if rateLimited {
		return fmt.Errorf("%w after %d attempts: %v", ErrRateLimited, c.maxRetries+1, lastErr)
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// attempt performs a single request. done=true means the outcome is
// final (success or a non-retryable failure).
func (c *HTTPClient) attempt(ctx context.Context, body []byte, result interface{}) (done bool, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return true, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("http request: %w", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusForbidden:
		return false, fmt.Errorf("%w (status %d)", ErrRateLimited, resp.StatusCode)
	case http.StatusBadRequest:
		return true, ErrBadRequest
	default:
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody, 200))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return false, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		// RPC errors are not retried
		return true, rpcResp.Error
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return true, fmt.Errorf("unmarshal result: %w", err)
		}
	}

	return true, nil
}

// jitter spreads a delay by ±25% to avoid synchronized retry storms.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := float64(d) * 0.25
	return d + time.Duration((rand.Float64()*2-1)*spread)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// GetHealth probes endpoint liveness via getHealth.
func (c *HTTPClient) GetHealth(ctx context.Context) error {
	var result string
	if err := c.call(ctx, "getHealth", nil, &result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("node unhealthy: %q", result)
	}
	return nil
}

// GetTransactionDetail retrieves a transaction by signature and computes
// per-account balance changes from the pre/post balance arrays.
// Returns (nil, nil) when the node does not know the signature.
func (c *HTTPClient) GetTransactionDetail(ctx context.Context, signature string) (*TransactionDetail, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"maxSupportedTransactionVersion": 0,
		},
	}

	var result getTransactionResult
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		if errors.Is(err, ErrBadRequest) {
			return nil, nil
		}
		return nil, err
	}

	if result.Slot == 0 && result.BlockTime == nil && result.Transaction == nil {
		// Transaction not found
		return nil, nil
	}

	detail := &TransactionDetail{
		Signature: signature,
		Slot:      result.Slot,
		Success:   true,
	}
	if result.BlockTime != nil {
		detail.BlockTime = *result.BlockTime
	}

	var accountKeys []string
	if result.Transaction != nil && result.Transaction.Message != nil {
		accountKeys = result.Transaction.Message.AccountKeys
	}
	detail.AccountKeys = accountKeys

	if result.Meta != nil {
		detail.Success = result.Meta.Err == nil
		detail.BalanceChanges = balanceChanges(accountKeys, result.Meta)
	}

	return detail, nil
}

// balanceChanges derives native and token deltas from transaction meta.
// Malformed or truncated arrays yield whatever can be read, never an error.
func balanceChanges(accountKeys []string, meta *getTransactionMeta) []BalanceChange {
	var changes []BalanceChange

	for i, pre := range meta.PreBalances {
		if i >= len(meta.PostBalances) || i >= len(accountKeys) {
			break
		}
		delta := meta.PostBalances[i] - pre
		if delta == 0 {
			continue
		}
		changes = append(changes, BalanceChange{
			Address: accountKeys[i],
			Delta:   float64(delta) / lamportsPerSOL,
		})
	}

	pre := indexTokenBalances(accountKeys, meta.PreTokenBalances)
	for _, post := range meta.PostTokenBalances {
		address := tokenBalanceAddress(accountKeys, post)
		if address == "" || post.Mint == "" {
			continue
		}
		key := address + "|" + post.Mint
		delta := post.amount() - pre[key]
		delete(pre, key)
		if delta == 0 {
			continue
		}
		changes = append(changes, BalanceChange{
			Address: address,
			Mint:    post.Mint,
			Delta:   delta,
		})
	}
	// Accounts whose token balance went to zero appear only in the pre set.
	for key, amount := range pre {
		if amount == 0 {
			continue
		}
		address, mint, ok := splitTokenKey(key)
		if !ok {
			continue
		}
		changes = append(changes, BalanceChange{
			Address: address,
			Mint:    mint,
			Delta:   -amount,
		})
	}

	return changes
}

func indexTokenBalances(accountKeys []string, balances []tokenBalance) map[string]float64 {
	out := make(map[string]float64, len(balances))
	for _, tb := range balances {
		address := tokenBalanceAddress(accountKeys, tb)
		if address == "" || tb.Mint == "" {
			continue
		}
		out[address+"|"+tb.Mint] = tb.amount()
	}
	return out
}

func tokenBalanceAddress(accountKeys []string, tb tokenBalance) string {
	if tb.Owner != "" {
		return tb.Owner
	}
	if tb.AccountIndex >= 0 && tb.AccountIndex < len(accountKeys) {
		return accountKeys[tb.AccountIndex]
	}
	return ""
}

func splitTokenKey(key string) (address, mint string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

// getTransactionResult is the raw RPC response for getTransaction.
type getTransactionResult struct {
	Slot        int64               `json:"slot"`
	BlockTime   *int64              `json:"blockTime"`
	Meta        *getTransactionMeta `json:"meta"`
	Transaction *getTransactionTx   `json:"transaction"`
}

type getTransactionMeta struct {
	Err               interface{}    `json:"err"`
	PreBalances       []int64        `json:"preBalances"`
	PostBalances      []int64        `json:"postBalances"`
	PreTokenBalances  []tokenBalance `json:"preTokenBalances"`
	PostTokenBalances []tokenBalance `json:"postTokenBalances"`
}

type tokenBalance struct {
	AccountIndex  int    `json:"accountIndex"`
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		UIAmount *float64 `json:"uiAmount"`
	} `json:"uiTokenAmount"`
}

func (t tokenBalance) amount() float64 {
	if t.UITokenAmount.UIAmount == nil {
		return 0
	}
	return *t.UITokenAmount.UIAmount
}

type getTransactionTx struct {
	Message *getTransactionMessage `json:"message"`
}

type getTransactionMessage struct {
	AccountKeys []string `json:"accountKeys"`
}

// GetSignaturesForAddress retrieves signatures for an address with pagination.
func (c *HTTPClient) GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error) {
	config := make(map[string]interface{})
	if opts != nil {
		if opts.Before != "" {
			config["before"] = opts.Before
		}
		if opts.Until != "" {
			config["until"] = opts.Until
		}
		if opts.Limit > 0 {
			config["limit"] = opts.Limit
		}
	}

	params := []interface{}{address}
	if len(config) > 0 {
		params = append(params, config)
	}

	var result []getSignaturesResult
	if err := c.call(ctx, "getSignaturesForAddress", params, &result); err != nil {
		if errors.Is(err, ErrBadRequest) {
			return nil, nil
		}
		return nil, err
	}

	sigs := make([]SignatureInfo, len(result))
	for i, r := range result {
		sigs[i] = SignatureInfo{
			Signature: r.Signature,
			Slot:      r.Slot,
			BlockTime: r.BlockTime,
			Err:       r.Err,
		}
	}

	return sigs, nil
}

// getSignaturesResult is the raw RPC response item for getSignaturesForAddress.
type getSignaturesResult struct {
	Signature string      `json:"signature"`
	Slot      int64       `json:"slot"`
	BlockTime *int64      `json:"blockTime"`
	Err       interface{} `json:"err"`
}

var _ Client = (*HTTPClient)(nil)
