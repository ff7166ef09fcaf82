// Package poolclient adapts the external lending pool's JSON-RPC surface to
// the collaborator interfaces consumed by the custody engine.
package poolclient

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

	"poolcustody/native/custody"
)

// Config controls how the Client connects to the pool RPC endpoint.
type Config struct {
	BaseURL            string
	BearerToken        string
	SharedSecretHeader string
	SharedSecretValue  string
	Timeout            time.Duration
}

// Client implements the minimal subset of JSON-RPC 2.0 used by the custody
// engine against a remote pool node. It satisfies custody.Pool,
// custody.PriceOracle and custody.TokenMover.
type Client struct {
	baseURL      string
	http         *http.Client
	bearer       string
	sharedHeader string
	sharedValue  string
	timeout      time.Duration
}

var (
	_ custody.Pool        = (*Client)(nil)
	_ custody.PriceOracle = (*Client)(nil)
	_ custody.TokenMover  = (*Client)(nil)
)

// New constructs a Client from the provided configuration.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      baseURL,
		http:         &http.Client{Timeout: timeout},
		bearer:       strings.TrimSpace(cfg.BearerToken),
		sharedHeader: strings.TrimSpace(cfg.SharedSecretHeader),
		sharedValue:  strings.TrimSpace(cfg.SharedSecretValue),
		timeout:      timeout,
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(method string, params any, result any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	reqBody := rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Client", "custodyd")
	if c.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.sharedHeader != "" && c.sharedValue != "" {
		httpReq.Header.Set(c.sharedHeader, c.sharedValue)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call rpc: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("rpc call failed with status %s", resp.Status)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

func (c *Client) callBig(method string, params any) (*big.Int, error) {
	var result hexutil.Big
	if err := c.call(method, params, &result); err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

// Supply deposits funds into the pool on behalf of the custodial account.
func (c *Client) Supply(asset common.Address, amount *big.Int, onBehalfOf common.Address) error {
	return c.call("pool_supply", []any{asset, (*hexutil.Big)(amount), onBehalfOf}, nil)
}

// Withdraw redeems funds from the pool; the pool reports the amount actually
// released.
func (c *Client) Withdraw(asset common.Address, amount *big.Int, to common.Address) (*big.Int, error) {
	return c.callBig("pool_withdraw", []any{asset, (*hexutil.Big)(amount), to})
}

// Borrow draws funds from the pool against the custodial account.
func (c *Client) Borrow(asset common.Address, amount *big.Int, rateMode uint64, onBehalfOf common.Address) error {
	return c.call("pool_borrow", []any{asset, (*hexutil.Big)(amount), rateMode, onBehalfOf}, nil)
}

// Repay retires pool debt; the pool reports the amount actually accepted.
func (c *Client) Repay(asset common.Address, amount *big.Int, rateMode uint64, onBehalfOf common.Address) (*big.Int, error) {
	return c.callBig("pool_repay", []any{asset, (*hexutil.Big)(amount), rateMode, onBehalfOf})
}

// NormalizedSupplyIndex returns the pool's current ray-scaled supply index.
func (c *Client) NormalizedSupplyIndex(asset common.Address) (*big.Int, error) {
	return c.callBig("pool_normalizedSupplyIndex", []any{asset})
}

// NormalizedDebtIndex returns the pool's current ray-scaled variable debt
// index.
func (c *Client) NormalizedDebtIndex(asset common.Address) (*big.Int, error) {
	return c.callBig("pool_normalizedDebtIndex", []any{asset})
}

type reserveConfigPayload struct {
	LtvBps                  uint64         `json:"ltvBps"`
	LiquidationThresholdBps uint64         `json:"liquidationThresholdBps"`
	ReceiptToken            common.Address `json:"receiptToken"`
	DebtToken               common.Address `json:"debtToken"`
}

// ReserveConfiguration fetches the pool's risk parameters and token addresses
// for the asset.
func (c *Client) ReserveConfiguration(asset common.Address) (custody.ReserveConfig, error) {
	var payload reserveConfigPayload
	if err := c.call("pool_reserveConfiguration", []any{asset}, &payload); err != nil {
		return custody.ReserveConfig{}, err
	}
	return custody.ReserveConfig{
		LtvBps:                  payload.LtvBps,
		LiquidationThresholdBps: payload.LiquidationThresholdBps,
		ReceiptToken:            payload.ReceiptToken,
		DebtToken:               payload.DebtToken,
	}, nil
}

type accountSnapshotPayload struct {
	TotalCollateralBase     *hexutil.Big `json:"totalCollateralBase"`
	TotalDebtBase           *hexutil.Big `json:"totalDebtBase"`
	AvailableBorrowsBase    *hexutil.Big `json:"availableBorrowsBase"`
	LiquidationThresholdBps uint64       `json:"liquidationThresholdBps"`
	LtvBps                  uint64       `json:"ltvBps"`
	HealthFactor            *hexutil.Big `json:"healthFactor"`
}

// AccountRiskSnapshot fetches the pool's own account-wide risk view of the
// custodial account.
func (c *Client) AccountRiskSnapshot(account common.Address) (custody.AccountSnapshot, error) {
	var payload accountSnapshotPayload
	if err := c.call("pool_accountRiskSnapshot", []any{account}, &payload); err != nil {
		return custody.AccountSnapshot{}, err
	}
	return custody.AccountSnapshot{
		TotalCollateralBase:     (*big.Int)(payload.TotalCollateralBase),
		TotalDebtBase:           (*big.Int)(payload.TotalDebtBase),
		AvailableBorrowsBase:    (*big.Int)(payload.AvailableBorrowsBase),
		LiquidationThresholdBps: payload.LiquidationThresholdBps,
		LtvBps:                  payload.LtvBps,
		HealthFactor:            (*big.Int)(payload.HealthFactor),
	}, nil
}

// ScaledBalanceOf returns the holder's scaled balance on a receipt or debt
// token.
func (c *Client) ScaledBalanceOf(token, holder common.Address) (*big.Int, error) {
	return c.callBig("token_scaledBalanceOf", []any{token, holder})
}

// AssetPrice returns the oracle's base-currency price for the asset.
func (c *Client) AssetPrice(asset common.Address) (*big.Int, error) {
	return c.callBig("oracle_assetPrice", []any{asset})
}

// AssetDecimals returns the asset's decimals as reported by the oracle.
func (c *Client) AssetDecimals(asset common.Address) (uint64, error) {
	var result uint64
	if err := c.call("oracle_assetDecimals", []any{asset}, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// Pull moves funds from the user into custody.
func (c *Client) Pull(asset, from common.Address, amount *big.Int) error {
	return c.call("token_pull", []any{asset, from, (*hexutil.Big)(amount)}, nil)
}

// Push releases funds from custody to the user.
func (c *Client) Push(asset, to common.Address, amount *big.Int) error {
	return c.call("token_push", []any{asset, to, (*hexutil.Big)(amount)}, nil)
}

// ApprovePool sets the pool's allowance over custody-held funds.
func (c *Client) ApprovePool(asset common.Address, amount *big.Int) error {
	return c.call("token_approvePool", []any{asset, (*hexutil.Big)(amount)}, nil)
}
