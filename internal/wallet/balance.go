package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"battle-arena/internal/apperr"
)

// Balance is the three-part wallet. TotalWalletBalance is the spendable
// total and must equal TotalBalance + CashWon after every mutation.
// TotalBalance holds deposit-sourced funds, CashWon holds winnings; only
// CashWon may leave the platform as a cash withdrawal.
type Balance struct {
	TotalBalance       int64 `json:"total_balance"`
	CashWon            int64 `json:"cash_won"`
	TotalWalletBalance int64 `json:"total_wallet_balance"`
	ReferralEarning    int64 `json:"referral_earning"`
	Bonus              int64 `json:"bonus"`
	Penalty            int64 `json:"penalty"`
	BattlesPlayed      int64 `json:"battles_played"`
}

func (b Balance) consistent() bool {
	return b.TotalWalletBalance == b.TotalBalance+b.CashWon
}

// drawDown spends amount from the deposit-sourced portion first and borrows
// the shortfall from winnings. The caller must have verified
// total+cashWon >= amount; with that check done the clamp keeps cashWon >= 0.
func drawDown(total, cashWon, amount int64) (int64, int64) {
	if total >= amount {
		return total - amount, cashWon
	}
	return 0, cashWon - (amount - total)
}

// lockBalance reads the wallet row under FOR UPDATE so the balance check and
// the write that follows are one atomic unit.
func lockBalance(ctx context.Context, tx pgx.Tx, userID int64) (Balance, error) {
	var b Balance
	err := tx.QueryRow(ctx, `
		SELECT total_balance, cash_won, total_wallet_balance, referral_earning, bonus, penalty, battles_played
		FROM users WHERE id=$1 FOR UPDATE
	`, userID).Scan(
		&b.TotalBalance, &b.CashWon, &b.TotalWalletBalance,
		&b.ReferralEarning, &b.Bonus, &b.Penalty, &b.BattlesPlayed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, apperr.NotFound(fmt.Sprintf("wallet for user %d not found", userID))
		}
		return Balance{}, err
	}
	return b, nil
}

func writeBalance(ctx context.Context, tx pgx.Tx, userID int64, b Balance) error {
	if !b.consistent() {
		return apperr.Internal(fmt.Sprintf(
			"wallet invariant broken for user %d: %d != %d + %d",
			userID, b.TotalWalletBalance, b.TotalBalance, b.CashWon,
		))
	}
	_, err := tx.Exec(ctx, `
		UPDATE users SET total_balance=$1, cash_won=$2, total_wallet_balance=$3,
			referral_earning=$4, bonus=$5, penalty=$6, battles_played=$7, updated_at=$8
		WHERE id=$9
	`, b.TotalBalance, b.CashWon, b.TotalWalletBalance,
		b.ReferralEarning, b.Bonus, b.Penalty, b.BattlesPlayed, time.Now(), userID)
	return err
}
