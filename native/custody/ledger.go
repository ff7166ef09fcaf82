package custody

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger attributes the custodial account's pooled scaled balances to
// individual users. Entries are keyed (user, asset), created lazily on the
// first credit and never removed; a position may sit at zero indefinitely.
//
// Scaled deltas are always measured by the workflows as the pool-reported
// balance movement around an external call. The ledger never derives them
// from amount/index division, so attribution stays bit-consistent with
// whatever rounding the pool performed internally.
type Ledger struct {
	mu        sync.RWMutex
	positions map[common.Address]map[common.Address]*Position
}

// NewLedger constructs an empty scaled-balance ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[common.Address]map[common.Address]*Position)}
}

func (l *Ledger) ensure(user, asset common.Address) *Position {
	byAsset, ok := l.positions[user]
	if !ok {
		byAsset = make(map[common.Address]*Position)
		l.positions[user] = byAsset
	}
	pos, ok := byAsset[asset]
	if !ok {
		pos = &Position{ScaledSupply: big.NewInt(0), ScaledDebt: big.NewInt(0)}
		byAsset[asset] = pos
	}
	return pos
}

// CreditSupply increases the user's scaled supply by a measured pool delta.
func (l *Ledger) CreditSupply(user, asset common.Address, scaledDelta *big.Int) {
	if scaledDelta == nil || scaledDelta.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.ensure(user, asset)
	pos.ScaledSupply = new(big.Int).Add(pos.ScaledSupply, scaledDelta)
}

// CreditDebt increases the user's scaled debt by a measured pool delta.
func (l *Ledger) CreditDebt(user, asset common.Address, scaledDelta *big.Int) {
	if scaledDelta == nil || scaledDelta.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.ensure(user, asset)
	pos.ScaledDebt = new(big.Int).Add(pos.ScaledDebt, scaledDelta)
}

// DebitSupply burns scaled supply, clamping the measured delta to the user's
// current balance so adversarial pool rounding can never drive the position
// negative. The amount actually burned is returned.
func (l *Ledger) DebitSupply(user, asset common.Address, measuredScaledDelta *big.Int) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.ensure(user, asset)
	burned := clampBurn(measuredScaledDelta, pos.ScaledSupply)
	pos.ScaledSupply = new(big.Int).Sub(pos.ScaledSupply, burned)
	return burned
}

// DebitDebt burns scaled debt with the same clamp discipline as DebitSupply.
func (l *Ledger) DebitDebt(user, asset common.Address, measuredScaledDelta *big.Int) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos := l.ensure(user, asset)
	burned := clampBurn(measuredScaledDelta, pos.ScaledDebt)
	pos.ScaledDebt = new(big.Int).Sub(pos.ScaledDebt, burned)
	return burned
}

func clampBurn(measured, balance *big.Int) *big.Int {
	if measured == nil || measured.Sign() <= 0 {
		return big.NewInt(0)
	}
	if measured.Cmp(balance) > 0 {
		return new(big.Int).Set(balance)
	}
	return new(big.Int).Set(measured)
}

// ScaledSupplyOf returns a copy of the user's scaled supply for the asset.
func (l *Ledger) ScaledSupplyOf(user, asset common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if pos := l.lookup(user, asset); pos != nil && pos.ScaledSupply != nil {
		return new(big.Int).Set(pos.ScaledSupply)
	}
	return big.NewInt(0)
}

// ScaledDebtOf returns a copy of the user's scaled debt for the asset.
func (l *Ledger) ScaledDebtOf(user, asset common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if pos := l.lookup(user, asset); pos != nil && pos.ScaledDebt != nil {
		return new(big.Int).Set(pos.ScaledDebt)
	}
	return big.NewInt(0)
}

// UnderlyingSupply converts the user's scaled supply to a live underlying
// amount at the supplied growth index. A zero scaled balance returns exactly 0
// without consulting the index.
func (l *Ledger) UnderlyingSupply(user, asset common.Address, currentIndex *big.Int) *big.Int {
	return underlyingFromScaled(l.ScaledSupplyOf(user, asset), currentIndex)
}

// UnderlyingDebt converts the user's scaled debt to a live underlying amount
// at the supplied growth index.
func (l *Ledger) UnderlyingDebt(user, asset common.Address, currentIndex *big.Int) *big.Int {
	return underlyingFromScaled(l.ScaledDebtOf(user, asset), currentIndex)
}

func (l *Ledger) lookup(user, asset common.Address) *Position {
	byAsset, ok := l.positions[user]
	if !ok {
		return nil
	}
	return byAsset[asset]
}
