package custody

import (
	"math/big"
	"testing"
)

func TestLedgerUnderlyingTracksIndexExactly(t *testing.T) {
	ledger := NewLedger()
	user := makeAddress(0xA1)
	asset := makeAddress(0x01)

	ledger.CreditSupply(user, asset, big.NewInt(1000))
	if got := ledger.ScaledSupplyOf(user, asset); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected scaled supply 1000, got %s", got)
	}

	// At index 1.0 ray the underlying equals the scaled amount.
	if got := ledger.UnderlyingSupply(user, asset, new(big.Int).Set(ray)); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected underlying 1000 at unit index, got %s", got)
	}

	// Index growth to 1.05 accrues interest without ledger mutation.
	grown := new(big.Int).Mul(ray, big.NewInt(105))
	grown.Quo(grown, big.NewInt(100))
	if got := ledger.UnderlyingSupply(user, asset, grown); got.Cmp(big.NewInt(1050)) != 0 {
		t.Fatalf("expected underlying 1050 at 1.05 index, got %s", got)
	}
}

func TestLedgerZeroBalanceShortCircuits(t *testing.T) {
	ledger := NewLedger()
	user := makeAddress(0xA2)
	asset := makeAddress(0x02)

	// A nil index would corrupt a real conversion; a zero balance must not
	// consult it at all.
	if got := ledger.UnderlyingSupply(user, asset, nil); got.Sign() != 0 {
		t.Fatalf("expected exact 0, got %s", got)
	}
	if got := ledger.UnderlyingDebt(user, asset, nil); got.Sign() != 0 {
		t.Fatalf("expected exact 0, got %s", got)
	}
}

func TestLedgerDebitClampsToBalance(t *testing.T) {
	ledger := NewLedger()
	user := makeAddress(0xA3)
	asset := makeAddress(0x03)

	ledger.CreditSupply(user, asset, big.NewInt(500))
	ledger.CreditDebt(user, asset, big.NewInt(300))

	// An adversarial pool-reported delta larger than the balance burns only
	// what the user holds.
	burned := ledger.DebitSupply(user, asset, big.NewInt(700))
	if burned.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected clamp to 500, burned %s", burned)
	}
	if got := ledger.ScaledSupplyOf(user, asset); got.Sign() != 0 {
		t.Fatalf("expected scaled supply 0 after clamped burn, got %s", got)
	}

	burned = ledger.DebitDebt(user, asset, big.NewInt(1_000_000))
	if burned.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected clamp to 300, burned %s", burned)
	}
	if got := ledger.ScaledDebtOf(user, asset); got.Sign() != 0 {
		t.Fatalf("expected scaled debt 0 after clamped burn, got %s", got)
	}

	// Repeated burns on an empty position stay at exactly zero.
	for i := 0; i < 5; i++ {
		ledger.DebitSupply(user, asset, big.NewInt(10))
		ledger.DebitDebt(user, asset, big.NewInt(10))
	}
	if ledger.ScaledSupplyOf(user, asset).Sign() != 0 || ledger.ScaledDebtOf(user, asset).Sign() != 0 {
		t.Fatalf("expected balances pinned at zero")
	}
}

func TestLedgerIgnoresNonPositiveDeltas(t *testing.T) {
	ledger := NewLedger()
	user := makeAddress(0xA4)
	asset := makeAddress(0x04)

	ledger.CreditSupply(user, asset, nil)
	ledger.CreditSupply(user, asset, big.NewInt(-5))
	ledger.CreditDebt(user, asset, big.NewInt(0))
	if ledger.ScaledSupplyOf(user, asset).Sign() != 0 || ledger.ScaledDebtOf(user, asset).Sign() != 0 {
		t.Fatalf("expected non-positive credits to be ignored")
	}

	ledger.CreditSupply(user, asset, big.NewInt(100))
	if burned := ledger.DebitSupply(user, asset, big.NewInt(-7)); burned.Sign() != 0 {
		t.Fatalf("expected negative measured delta to burn nothing, got %s", burned)
	}
	if got := ledger.ScaledSupplyOf(user, asset); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected balance unchanged, got %s", got)
	}
}

func TestLedgerUsersAreIndependent(t *testing.T) {
	ledger := NewLedger()
	alice := makeAddress(0xAA)
	bob := makeAddress(0xBB)
	asset := makeAddress(0x05)

	ledger.CreditSupply(alice, asset, big.NewInt(1000))
	ledger.CreditSupply(bob, asset, big.NewInt(1000))

	ledger.DebitSupply(alice, asset, big.NewInt(1000))

	if got := ledger.ScaledSupplyOf(alice, asset); got.Sign() != 0 {
		t.Fatalf("expected alice drained, got %s", got)
	}
	if got := ledger.ScaledSupplyOf(bob, asset); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected bob untouched, got %s", got)
	}

	grown := new(big.Int).Mul(ray, big.NewInt(2))
	if got := ledger.UnderlyingSupply(bob, asset, grown); got.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("expected bob to accrue independently, got %s", got)
	}
}
