package custody

import (
	"bytes"
	"math/big"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "poolcustody/native/common"
)

const moduleName = "custody"

type reserveTokens struct {
	receipt common.Address
	debt    common.Address
}

// Engine owns the custodial book: it attributes the shared pool position to
// individual users through the scaled-balance ledger and gates borrow and
// withdrawal flows through the risk engine. Every state-changing operation is
// serialized and executes all-or-nothing; ledger mutation happens strictly
// after the pool call is observed to succeed.
type Engine struct {
	mu    sync.Mutex
	owner atomic.Uint64

	account  common.Address
	registry *AssetRegistry
	ledger   *Ledger
	risk     *RiskEngine
	pool     Pool
	oracle   PriceOracle
	tokens   TokenMover
	pauses   nativecommon.PauseView
	params   RiskParameters
	rateMode uint64

	// receipt/debt token pair per asset, resolved from the pool's reserve
	// configuration on first use.
	reserves map[common.Address]reserveTokens
}

// NewEngine constructs the custody engine for one custodial account at the
// external pool.
func NewEngine(account common.Address, pool Pool, oracle PriceOracle, tokens TokenMover, params RiskParameters) *Engine {
	params.EnsureDefaults()
	registry := NewAssetRegistry()
	ledger := NewLedger()
	return &Engine{
		account:  account,
		registry: registry,
		ledger:   ledger,
		risk:     NewRiskEngine(registry, ledger, pool, oracle, params),
		pool:     pool,
		oracle:   oracle,
		tokens:   tokens,
		params:   params.Clone(),
		rateMode: VariableRateMode,
		reserves: make(map[common.Address]reserveTokens),
	}
}

// SetPauses wires the global pause switch checked before every workflow.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetRateMode overrides the interest rate mode forwarded to the pool.
func (e *Engine) SetRateMode(mode uint64) {
	if e == nil {
		return
	}
	e.rateMode = mode
}

// Registry exposes the asset listing for the administrative collaborator and
// read-only queries.
func (e *Engine) Registry() *AssetRegistry { return e.registry }

// Risk exposes the risk engine for read-only health queries.
func (e *Engine) Risk() *RiskEngine { return e.risk }

// enter serializes workflows against each other and rejects reentrant
// invocation from inside a collaborator call. A reentrant call arrives on the
// goroutine that already owns the mutex, so it is turned away instead of
// deadlocking; every other caller blocks until the running operation exits.
func (e *Engine) enter() error {
	id := callerGoroutine()
	if id != 0 && e.owner.Load() == id {
		return ErrReentrantCall
	}
	e.mu.Lock()
	e.owner.Store(id)
	return nil
}

func (e *Engine) exit() {
	e.owner.Store(0)
	e.mu.Unlock()
}

// callerGoroutine reports the current goroutine id, parsed from the stack
// header the runtime prints as "goroutine N [running]:". Returns 0 when the
// header cannot be parsed.
func callerGoroutine() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func (e *Engine) checkCollaborators() error {
	if e.pool == nil {
		return errNilPool
	}
	if e.oracle == nil {
		return errNilOracle
	}
	if e.tokens == nil {
		return errNilTokens
	}
	return nil
}

func validateParticipants(user, asset common.Address) error {
	if user == (common.Address{}) || asset == (common.Address{}) {
		return ErrZeroAddress
	}
	return nil
}

func validateAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrZeroAmount
	}
	return nil
}

// tokensFor resolves the pool's receipt and debt token addresses for the
// asset, memoizing the result. A zero address in the reserve configuration is
// an integration fault and surfaces before any funds move.
func (e *Engine) tokensFor(asset common.Address) (reserveTokens, error) {
	if rt, ok := e.reserves[asset]; ok {
		return rt, nil
	}
	cfg, err := e.pool.ReserveConfiguration(asset)
	if err != nil {
		return reserveTokens{}, err
	}
	if cfg.ReceiptToken == (common.Address{}) || cfg.DebtToken == (common.Address{}) {
		return reserveTokens{}, ErrMissingReserveToken
	}
	rt := reserveTokens{receipt: cfg.ReceiptToken, debt: cfg.DebtToken}
	e.reserves[asset] = rt
	return rt, nil
}

// accountSolvent applies the pool's own account-wide health factor to the
// shared custodial position. This is the coarse outer gate; the per-user
// multi-asset gates in the risk engine are authoritative.
func (e *Engine) accountSolvent() error {
	snap, err := e.pool.AccountRiskSnapshot(e.account)
	if err != nil {
		return err
	}
	if snap.TotalDebtBase == nil || snap.TotalDebtBase.Sign() == 0 {
		return nil
	}
	if snap.HealthFactor != nil && snap.HealthFactor.Cmp(e.params.MinHealthFactorWad) <= 0 {
		return ErrAccountHealthFactorTooLow
	}
	return nil
}

// Deposit pulls funds from the user, supplies them to the pool on behalf of
// the custodial account and credits the user with the scaled delta the pool
// minted. The measured scaled delta is returned.
func (e *Engine) Deposit(user, asset common.Address, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.checkCollaborators(); err != nil {
		return nil, err
	}
	if err := validateParticipants(user, asset); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !e.registry.IsListed(asset) {
		return nil, ErrAssetNotListed
	}
	if !e.registry.DepositsEnabled(asset) {
		return nil, ErrDepositsDisabled
	}

	rt, err := e.tokensFor(asset)
	if err != nil {
		return nil, err
	}

	if err := e.tokens.Pull(asset, user, amount); err != nil {
		return nil, err
	}
	if err := e.tokens.ApprovePool(asset, amount); err != nil {
		return nil, err
	}

	before, err := e.pool.ScaledBalanceOf(rt.receipt, e.account)
	if err != nil {
		return nil, err
	}
	if err := e.pool.Supply(asset, amount, e.account); err != nil {
		return nil, err
	}
	after, err := e.pool.ScaledBalanceOf(rt.receipt, e.account)
	if err != nil {
		return nil, err
	}

	minted := new(big.Int).Sub(after, before)
	e.ledger.CreditSupply(user, asset, minted)
	// The position is committed once the supply landed; the allowance reset is
	// best effort and cannot unwind it.
	_ = e.tokens.ApprovePool(asset, big.NewInt(0))
	return minted, nil
}

// Withdraw redeems part of the user's attributed supply. The pool-reported
// actual amount is pushed to the user and returned; it may exceed the nominal
// request by a rounding remainder.
func (e *Engine) Withdraw(user, asset common.Address, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	return e.withdraw(user, asset, amount)
}

// WithdrawAll redeems the user's entire live underlying supply for the asset,
// leaving the scaled balance at exactly zero.
func (e *Engine) WithdrawAll(user, asset common.Address) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.checkCollaborators(); err != nil {
		return nil, err
	}
	if err := validateParticipants(user, asset); err != nil {
		return nil, err
	}
	if !e.registry.IsListed(asset) {
		return nil, ErrAssetNotListed
	}
	if e.ledger.ScaledSupplyOf(user, asset).Sign() == 0 {
		return nil, ErrNoScaledBalance
	}
	index, err := e.pool.NormalizedSupplyIndex(asset)
	if err != nil {
		return nil, err
	}
	return e.withdraw(user, asset, e.ledger.UnderlyingSupply(user, asset, index))
}

func (e *Engine) withdraw(user, asset common.Address, amount *big.Int) (*big.Int, error) {
	if err := e.checkCollaborators(); err != nil {
		return nil, err
	}
	if err := validateParticipants(user, asset); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !e.registry.IsListed(asset) {
		return nil, ErrAssetNotListed
	}
	if e.ledger.ScaledSupplyOf(user, asset).Sign() == 0 {
		return nil, ErrNoScaledBalance
	}

	index, err := e.pool.NormalizedSupplyIndex(asset)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(e.ledger.UnderlyingSupply(user, asset, index)) > 0 {
		return nil, ErrAmountExceedsWithdrawable
	}

	if err := e.accountSolvent(); err != nil {
		return nil, err
	}
	if err := e.risk.CheckWithdraw(user, asset, amount); err != nil {
		return nil, err
	}

	rt, err := e.tokensFor(asset)
	if err != nil {
		return nil, err
	}
	before, err := e.pool.ScaledBalanceOf(rt.receipt, e.account)
	if err != nil {
		return nil, err
	}
	actual, err := e.pool.Withdraw(asset, amount, e.account)
	if err != nil {
		return nil, err
	}
	after, err := e.pool.ScaledBalanceOf(rt.receipt, e.account)
	if err != nil {
		return nil, err
	}

	e.ledger.DebitSupply(user, asset, new(big.Int).Sub(before, after))
	if err := e.tokens.Push(asset, user, actual); err != nil {
		return nil, err
	}
	return actual, nil
}

// Borrow draws debt against the user's aggregate collateral. Both the
// account-wide and the per-user risk gates run before the pool is called, so
// a rejected request never needs rolling back.
func (e *Engine) Borrow(user, asset common.Address, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.checkCollaborators(); err != nil {
		return nil, err
	}
	if err := validateParticipants(user, asset); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !e.registry.IsListed(asset) {
		return nil, ErrAssetNotListed
	}
	if !e.registry.BorrowsEnabled(asset) {
		return nil, ErrBorrowsDisabled
	}

	if err := e.accountSolvent(); err != nil {
		return nil, err
	}
	if err := e.risk.CheckBorrow(user, asset, amount); err != nil {
		return nil, err
	}

	rt, err := e.tokensFor(asset)
	if err != nil {
		return nil, err
	}
	before, err := e.pool.ScaledBalanceOf(rt.debt, e.account)
	if err != nil {
		return nil, err
	}
	if err := e.pool.Borrow(asset, amount, e.rateMode, e.account); err != nil {
		return nil, err
	}
	after, err := e.pool.ScaledBalanceOf(rt.debt, e.account)
	if err != nil {
		return nil, err
	}

	drawn := new(big.Int).Sub(after, before)
	e.ledger.CreditDebt(user, asset, drawn)
	if err := e.tokens.Push(asset, user, amount); err != nil {
		return nil, err
	}
	return drawn, nil
}

// Repay retires part of the user's attributed debt. If the pool accepts less
// than offered (the position rounds to exactly zero) the remainder is
// refunded. The pool-reported amount actually repaid is returned.
func (e *Engine) Repay(user, asset common.Address, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	return e.repay(user, asset, amount)
}

// RepayAll retires the user's entire live underlying debt for the asset,
// leaving the scaled debt at exactly zero.
func (e *Engine) RepayAll(user, asset common.Address) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.exit()
	if err := e.checkCollaborators(); err != nil {
		return nil, err
	}
	if err := validateParticipants(user, asset); err != nil {
		return nil, err
	}
	if !e.registry.IsListed(asset) {
		return nil, ErrAssetNotListed
	}
	if e.ledger.ScaledDebtOf(user, asset).Sign() == 0 {
		return nil, ErrNoScaledBalance
	}
	index, err := e.pool.NormalizedDebtIndex(asset)
	if err != nil {
		return nil, err
	}
	return e.repay(user, asset, e.ledger.UnderlyingDebt(user, asset, index))
}

func (e *Engine) repay(user, asset common.Address, amount *big.Int) (*big.Int, error) {
	if err := e.checkCollaborators(); err != nil {
		return nil, err
	}
	if err := validateParticipants(user, asset); err != nil {
		return nil, err
	}
	if err := validateAmount(amount); err != nil {
		return nil, err
	}
	if !e.registry.IsListed(asset) {
		return nil, ErrAssetNotListed
	}
	if e.ledger.ScaledDebtOf(user, asset).Sign() == 0 {
		return nil, ErrNoScaledBalance
	}

	index, err := e.pool.NormalizedDebtIndex(asset)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(e.ledger.UnderlyingDebt(user, asset, index)) > 0 {
		return nil, ErrAmountExceedsRepayable
	}

	rt, err := e.tokensFor(asset)
	if err != nil {
		return nil, err
	}

	if err := e.tokens.Pull(asset, user, amount); err != nil {
		return nil, err
	}
	if err := e.tokens.ApprovePool(asset, amount); err != nil {
		return nil, err
	}

	before, err := e.pool.ScaledBalanceOf(rt.debt, e.account)
	if err != nil {
		return nil, err
	}
	actual, err := e.pool.Repay(asset, amount, e.rateMode, e.account)
	if err != nil {
		return nil, err
	}
	after, err := e.pool.ScaledBalanceOf(rt.debt, e.account)
	if err != nil {
		return nil, err
	}

	e.ledger.DebitDebt(user, asset, new(big.Int).Sub(before, after))
	// The debt is retired at the pool once Repay returned; the allowance reset
	// is best effort and cannot unwind it.
	_ = e.tokens.ApprovePool(asset, big.NewInt(0))

	if actual.Cmp(amount) < 0 {
		refund := new(big.Int).Sub(amount, actual)
		if err := e.tokens.Push(asset, user, refund); err != nil {
			return nil, err
		}
	}
	return actual, nil
}

// ScaledSupplyOf returns the user's attributed scaled supply for the asset.
func (e *Engine) ScaledSupplyOf(user, asset common.Address) *big.Int {
	return e.ledger.ScaledSupplyOf(user, asset)
}

// ScaledDebtOf returns the user's attributed scaled debt for the asset.
func (e *Engine) ScaledDebtOf(user, asset common.Address) *big.Int {
	return e.ledger.ScaledDebtOf(user, asset)
}

// UnderlyingSupplyOf converts the user's scaled supply at the pool's current
// index. A zero position short-circuits without touching the pool.
func (e *Engine) UnderlyingSupplyOf(user, asset common.Address) (*big.Int, error) {
	if e.ledger.ScaledSupplyOf(user, asset).Sign() == 0 {
		return big.NewInt(0), nil
	}
	index, err := e.pool.NormalizedSupplyIndex(asset)
	if err != nil {
		return nil, err
	}
	return e.ledger.UnderlyingSupply(user, asset, index), nil
}

// UnderlyingDebtOf converts the user's scaled debt at the pool's current
// index. A zero position short-circuits without touching the pool.
func (e *Engine) UnderlyingDebtOf(user, asset common.Address) (*big.Int, error) {
	if e.ledger.ScaledDebtOf(user, asset).Sign() == 0 {
		return big.NewInt(0), nil
	}
	index, err := e.pool.NormalizedDebtIndex(asset)
	if err != nil {
		return nil, err
	}
	return e.ledger.UnderlyingDebt(user, asset, index), nil
}
