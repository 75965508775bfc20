package wallet

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"battle-arena/internal/apperr"
)

// Transaction kinds and statuses.
const (
	KindDeposit  = "deposit"
	KindWithdraw = "withdraw"
	KindBonus    = "bonus"
	KindPenalty  = "penalty"
	KindReferral = "referral"

	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Entry is one immutable ledger record. Battle escrow entries are deleted
// (not marked) when a battle unwinds; the delete is always paired with the
// wallet credit inside the same transaction.
type Entry struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	BattleID       *int64    `json:"battle_id,omitempty"`
	Type           string    `json:"type"`
	Amount         int64     `json:"amount"`
	Status         string    `json:"status"`
	IsBattle       bool      `json:"is_battle"`
	IsWonCash      bool      `json:"is_won_cash"`
	IsReferral     bool      `json:"is_referral"`
	ClosingBalance int64     `json:"closing_balance"`
	PaymentMethod  string    `json:"payment_method,omitempty"`
	UPIID          string    `json:"upi_id,omitempty"`
	UTRNo          string    `json:"utr_no,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DebitForBattle withdraws the entry fee into escrow: one approved withdraw
// entry linked to the battle, then the draw-down against the wallet. The
// balance check and the write share the row lock, so a concurrent debit
// cannot push the wallet negative.
func DebitForBattle(ctx context.Context, tx pgx.Tx, userID, battleID, amount int64) error {
	b, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return err
	}
	if b.TotalWalletBalance < amount {
		return apperr.InsufficientFunds("insufficient wallet balance")
	}

	closing := b.TotalWalletBalance - amount
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (user_id, battle_id, type, amount, status, is_battle, closing_balance)
		VALUES ($1,$2,$3,$4,$5,TRUE,$6)
	`, userID, battleID, KindWithdraw, amount, StatusApproved, closing)
	if err != nil {
		return err
	}

	b.TotalBalance, b.CashWon = drawDown(b.TotalBalance, b.CashWon, amount)
	b.TotalWalletBalance = closing
	b.BattlesPlayed++
	return writeBalance(ctx, tx, userID, b)
}

// HasBattleDebit reports whether an approved escrow withdrawal already exists
// for this battle and party. Confirm/start use it to stay idempotent across
// retried requests.
func HasBattleDebit(ctx context.Context, tx pgx.Tx, userID, battleID int64) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM transactions
			WHERE user_id=$1 AND battle_id=$2 AND type=$3 AND status=$4 AND is_battle
		)
	`, userID, battleID, KindWithdraw, StatusApproved).Scan(&exists)
	return exists, err
}

// VoidBattleDebit deletes the escrow withdrawal for battle+party and credits
// the amount back to the deposit-sourced balance. Voiding an entry that was
// already voided (or never made) is a no-op, not an error: the sweeper and a
// live request may race to clean up the same battle.
func VoidBattleDebit(ctx context.Context, tx pgx.Tx, userID, battleID, amount int64) (bool, error) {
	b, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM transactions
		WHERE user_id=$1 AND battle_id=$2 AND type=$3 AND is_battle
	`, userID, battleID, KindWithdraw)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	b.TotalBalance += amount
	b.TotalWalletBalance += amount
	// The entry existed, so DebitForBattle counted this battle; uncount it.
	b.BattlesPlayed--
	return true, writeBalance(ctx, tx, userID, b)
}

// CreditWinnings pays the winner. The entry is winnings-flagged so the cash
// withdrawal path can tell prize money from deposits.
func CreditWinnings(ctx context.Context, tx pgx.Tx, userID, battleID, amount int64) error {
	b, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return err
	}

	closing := b.TotalWalletBalance + amount
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (user_id, battle_id, type, amount, status, is_battle, is_won_cash, closing_balance)
		VALUES ($1,$2,$3,$4,$5,TRUE,TRUE,$6)
	`, userID, battleID, KindDeposit, amount, StatusApproved, closing)
	if err != nil {
		return err
	}

	b.CashWon += amount
	b.TotalWalletBalance = closing
	return writeBalance(ctx, tx, userID, b)
}

// CreditReferral adds the referral cut to the referrer's referralEarning
// balance. It does not touch the spendable wallet; redemption is a separate
// player action.
func CreditReferral(ctx context.Context, tx pgx.Tx, userID, battleID, amount int64) error {
	b, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (user_id, battle_id, type, amount, status, is_battle, is_referral, closing_balance)
		VALUES ($1,$2,$3,$4,$5,TRUE,TRUE,$6)
	`, userID, battleID, KindDeposit, amount, StatusApproved, b.TotalWalletBalance)
	if err != nil {
		return err
	}

	b.ReferralEarning += amount
	return writeBalance(ctx, tx, userID, b)
}
