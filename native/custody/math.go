package custody

import "math/big"

var (
	basisPoints = big.NewInt(10_000)
	wad         = mustBigInt("1000000000000000000")           // 1e18 health-factor precision
	ray         = mustBigInt("1000000000000000000000000000")  // 1e27, must match the pool's index precision
	ten         = big.NewInt(10)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// underlyingFromScaled converts scaled shares into a live underlying amount
// using the pool's growth index. Division truncates, matching the pool's own
// conversion; callers never feed the result back into scaled deltas.
func underlyingFromScaled(scaled, index *big.Int) *big.Int {
	if scaled == nil || scaled.Sign() == 0 {
		return big.NewInt(0)
	}
	if index == nil || index.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(scaled, index)
	return out.Quo(out, ray)
}

// baseValue expresses an asset amount in the oracle's base currency:
// amount * price / 10^decimals.
func baseValue(amount, price *big.Int, decimals uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 || price == nil || price.Sign() == 0 {
		return big.NewInt(0)
	}
	unit := new(big.Int).Exp(ten, new(big.Int).SetUint64(decimals), nil)
	value := new(big.Int).Mul(amount, price)
	return value.Quo(value, unit)
}

// bpsShare scales a value by a basis-point fraction.
func bpsShare(value *big.Int, bps uint64) *big.Int {
	if value == nil || value.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	share := new(big.Int).Mul(value, new(big.Int).SetUint64(bps))
	return share.Quo(share, basisPoints)
}

// healthFactor computes collateral * WAD / debt. A zero debt yields the
// maximum representable factor so comparisons against the minimum always pass.
func healthFactor(collateral, debt *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Lsh(wad, 128)
	}
	if collateral == nil || collateral.Sign() == 0 {
		return big.NewInt(0)
	}
	hf := new(big.Int).Mul(collateral, wad)
	return hf.Quo(hf, debt)
}
