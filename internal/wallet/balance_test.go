package wallet

import "testing"

func TestDrawDown(t *testing.T) {
	cases := []struct {
		name                   string
		total, cashWon, amount int64
		wantTotal, wantCash    int64
	}{
		{"deposits cover it", 100, 50, 80, 20, 50},
		{"exact deposits", 100, 50, 100, 0, 50},
		{"borrows from winnings", 100, 50, 120, 0, 30},
		{"winnings only", 0, 50, 50, 0, 0},
		{"zero amount", 100, 50, 0, 100, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotTotal, gotCash := drawDown(tc.total, tc.cashWon, tc.amount)
			if gotTotal != tc.wantTotal || gotCash != tc.wantCash {
				t.Errorf("drawDown(%d, %d, %d) = (%d, %d), want (%d, %d)",
					tc.total, tc.cashWon, tc.amount, gotTotal, gotCash, tc.wantTotal, tc.wantCash)
			}
		})
	}
}

func TestDrawDownPreservesSum(t *testing.T) {
	for _, amount := range []int64{0, 10, 50, 99, 150} {
		total, cashWon := drawDown(100, 50, amount)
		if total+cashWon != 150-amount {
			t.Errorf("drawDown(100, 50, %d): sum %d, want %d", amount, total+cashWon, 150-amount)
		}
	}
}

func TestBalanceConsistent(t *testing.T) {
	ok := Balance{TotalBalance: 70, CashWon: 30, TotalWalletBalance: 100}
	if !ok.consistent() {
		t.Error("expected 70 + 30 = 100 to be consistent")
	}
	bad := Balance{TotalBalance: 70, CashWon: 30, TotalWalletBalance: 90}
	if bad.consistent() {
		t.Error("expected 70 + 30 != 90 to be inconsistent")
	}
}
