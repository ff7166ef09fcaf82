// Package custody provides a typed HTTP client for the custodyd API.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Config controls how the Client connects to custodyd.
type Config struct {
	BaseURL            string
	SharedSecretHeader string
	SharedSecretValue  string
	Timeout            time.Duration
	HTTPClient         *http.Client
}

// Client wraps the custodyd HTTP endpoints.
type Client struct {
	baseURL      string
	http         *http.Client
	sharedHeader string
	sharedValue  string
}

// Operation is the receipt returned by every state-changing endpoint.
type Operation struct {
	ID     string       `json:"id"`
	User   string       `json:"user"`
	Asset  string       `json:"asset"`
	Result *hexutil.Big `json:"result"`
	Time   string       `json:"time"`
}

// Position mirrors the GET /positions response.
type Position struct {
	User             string       `json:"user"`
	Asset            string       `json:"asset"`
	ScaledSupply     *hexutil.Big `json:"scaledSupply"`
	ScaledDebt       *hexutil.Big `json:"scaledDebt"`
	UnderlyingSupply *hexutil.Big `json:"underlyingSupply"`
	UnderlyingDebt   *hexutil.Big `json:"underlyingDebt"`
}

// Asset mirrors one entry of the GET /assets response.
type Asset struct {
	Asset           string `json:"asset"`
	Position        int    `json:"position"`
	DepositsEnabled bool   `json:"depositsEnabled"`
	BorrowsEnabled  bool   `json:"borrowsEnabled"`
}

// APIError carries the error body and status returned by custodyd.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("custodyd: status %d: %s", e.Status, e.Message)
}

// New constructs a Client from the provided configuration.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:      baseURL,
		http:         httpClient,
		sharedHeader: strings.TrimSpace(cfg.SharedSecretHeader),
		sharedValue:  strings.TrimSpace(cfg.SharedSecretValue),
	}, nil
}

type operationPayload struct {
	User   string       `json:"user"`
	Asset  string       `json:"asset"`
	Amount *hexutil.Big `json:"amount,omitempty"`
}

// Deposit supplies funds on behalf of the user and returns the receipt.
func (c *Client) Deposit(ctx context.Context, user, asset common.Address, amount *big.Int) (*Operation, error) {
	return c.operation(ctx, "/deposit", user, asset, amount)
}

// Withdraw redeems part of the user's supply.
func (c *Client) Withdraw(ctx context.Context, user, asset common.Address, amount *big.Int) (*Operation, error) {
	return c.operation(ctx, "/withdraw", user, asset, amount)
}

// WithdrawAll redeems the user's entire supply for the asset.
func (c *Client) WithdrawAll(ctx context.Context, user, asset common.Address) (*Operation, error) {
	return c.operation(ctx, "/withdraw-all", user, asset, nil)
}

// Borrow draws debt for the user.
func (c *Client) Borrow(ctx context.Context, user, asset common.Address, amount *big.Int) (*Operation, error) {
	return c.operation(ctx, "/borrow", user, asset, amount)
}

// Repay retires part of the user's debt.
func (c *Client) Repay(ctx context.Context, user, asset common.Address, amount *big.Int) (*Operation, error) {
	return c.operation(ctx, "/repay", user, asset, amount)
}

// RepayAll retires the user's entire debt for the asset.
func (c *Client) RepayAll(ctx context.Context, user, asset common.Address) (*Operation, error) {
	return c.operation(ctx, "/repay-all", user, asset, nil)
}

// Position fetches the user's attributed position for the asset.
func (c *Client) Position(ctx context.Context, user, asset common.Address) (*Position, error) {
	var out Position
	path := fmt.Sprintf("/positions/%s/%s", user.Hex(), asset.Hex())
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Assets fetches the listed assets in listing order.
func (c *Client) Assets(ctx context.Context) ([]Asset, error) {
	var out []Asset
	if err := c.do(ctx, http.MethodGet, "/assets", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Pause halts all state-changing workflows.
func (c *Client) Pause(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/pause", struct{}{}, nil)
}

// Resume re-enables state-changing workflows.
func (c *Client) Resume(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/admin/resume", struct{}{}, nil)
}

func (c *Client) operation(ctx context.Context, path string, user, asset common.Address, amount *big.Int) (*Operation, error) {
	payload := operationPayload{User: user.Hex(), Asset: asset.Hex(), Amount: (*hexutil.Big)(amount)}
	var out Operation
	if err := c.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, result any) error {
	var body *bytes.Buffer
	if payload != nil {
		body = &bytes.Buffer{}
		if err := json.NewEncoder(body).Encode(payload); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	} else {
		body = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sharedHeader != "" && c.sharedValue != "" {
		req.Header.Set(c.sharedHeader, c.sharedValue)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call custodyd: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
