package custody

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// AssetRegistry keeps the ordered set of assets the custodial book may touch.
// Listing positions are 1-based, append-only and never reassigned so risk
// aggregation iterates the book deterministically.
type AssetRegistry struct {
	mu        sync.RWMutex
	positions map[common.Address]int
	ordered   []common.Address
	deposits  map[common.Address]bool
	borrows   map[common.Address]bool
}

// NewAssetRegistry constructs an empty registry.
func NewAssetRegistry() *AssetRegistry {
	return &AssetRegistry{
		positions: make(map[common.Address]int),
		deposits:  make(map[common.Address]bool),
		borrows:   make(map[common.Address]bool),
	}
}

// List registers an asset with the supplied flags. The first call assigns the
// next sequential listing position; repeat calls only refresh the flags.
func (r *AssetRegistry) List(asset common.Address, depositsEnabled, borrowsEnabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[asset]; !ok {
		r.ordered = append(r.ordered, asset)
		r.positions[asset] = len(r.ordered)
	}
	r.deposits[asset] = depositsEnabled
	r.borrows[asset] = borrowsEnabled
}

// SetDepositsEnabled flips the deposit flag on an already listed asset.
func (r *AssetRegistry) SetDepositsEnabled(asset common.Address, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[asset]; !ok {
		return ErrAssetNotListed
	}
	r.deposits[asset] = enabled
	return nil
}

// SetBorrowsEnabled flips the borrow flag on an already listed asset.
func (r *AssetRegistry) SetBorrowsEnabled(asset common.Address, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[asset]; !ok {
		return ErrAssetNotListed
	}
	r.borrows[asset] = enabled
	return nil
}

// IsListed reports whether the asset has ever been listed.
func (r *AssetRegistry) IsListed(asset common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.positions[asset]
	return ok
}

// DepositsEnabled reports whether deposits are currently accepted.
func (r *AssetRegistry) DepositsEnabled(asset common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.deposits[asset]
}

// BorrowsEnabled reports whether borrowing is currently accepted.
func (r *AssetRegistry) BorrowsEnabled(asset common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.borrows[asset]
}

// ListingPosition returns the asset's 1-based listing position, or 0 when the
// asset was never listed.
func (r *AssetRegistry) ListingPosition(asset common.Address) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions[asset]
}

// OrderedAssets returns every listed asset in listing order.
func (r *AssetRegistry) OrderedAssets() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]common.Address, len(r.ordered))
	copy(out, r.ordered)
	return out
}
