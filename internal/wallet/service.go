package wallet

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"battle-arena/internal/apperr"
	"battle-arena/internal/notify"
	"battle-arena/internal/store"
)

// MinAmount is the smallest deposit or withdrawal the platform accepts,
// same unit as the battle entry fee minimum.
const MinAmount = 50

// Service owns the non-battle money rails: manual-approval deposits and cash
// withdrawals, referral redemption, admin bonus/penalty grants. Battle escrow
// goes through the tx-scoped primitives in ledger.go instead.
type Service struct {
	pool     *pgxpool.Pool
	notifier *notify.Notifier
	log      zerolog.Logger
}

func NewService(pool *pgxpool.Pool, notifier *notify.Notifier, log zerolog.Logger) *Service {
	return &Service{pool: pool, notifier: notifier, log: log}
}

// GetBalance returns the current wallet snapshot.
func (s *Service) GetBalance(ctx context.Context, userID int64) (Balance, error) {
	var b Balance
	err := s.pool.QueryRow(ctx, `
		SELECT total_balance, cash_won, total_wallet_balance, referral_earning, bonus, penalty, battles_played
		FROM users WHERE id=$1
	`, userID).Scan(
		&b.TotalBalance, &b.CashWon, &b.TotalWalletBalance,
		&b.ReferralEarning, &b.Bonus, &b.Penalty, &b.BattlesPlayed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{}, apperr.NotFound("user not found")
	}
	return b, err
}

// RequestDeposit records a deposit awaiting operator approval. No balance
// changes until an admin approves it.
func (s *Service) RequestDeposit(ctx context.Context, userID, amount int64, utrNo, screenshot, adminUPI string) error {
	if amount < MinAmount {
		return apperr.Validation(fmt.Sprintf("minimum amount is %d", MinAmount))
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (user_id, type, amount, status, utr_no, screenshot, admin_upi_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, userID, KindDeposit, amount, StatusPending, utrNo, screenshot, adminUPI)
	if err != nil {
		return err
	}
	s.notifier.Audit(ctx, &userID, "deposit_requested", fmt.Sprintf("amount=%d", amount))
	return nil
}

// RequestWithdrawal debits CashWon immediately and records a pending
// withdrawal for operator payout. Blocked while the player has a forming or
// unresolved battle, or another withdrawal still pending.
func (s *Service) RequestWithdrawal(ctx context.Context, userID, amount int64, method, upiID string) error {
	if amount < MinAmount {
		return apperr.Validation(fmt.Sprintf("minimum amount is %d", MinAmount))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	b, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return err
	}
	if b.CashWon < amount {
		return apperr.InsufficientFunds("withdrawable winnings are less than the requested amount")
	}

	var inBattle bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM battles
			WHERE (created_by=$1 OR accepted_by=$1) AND status IN ('OPEN','PLAYING','CONFLICT')
		)
	`, userID).Scan(&inBattle)
	if err != nil {
		return err
	}
	if inBattle {
		return apperr.InvalidTransition("cannot withdraw while a battle is open or unresolved")
	}

	var pending bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM transactions WHERE user_id=$1 AND type=$2 AND status=$3)
	`, userID, KindWithdraw, StatusPending).Scan(&pending)
	if err != nil {
		return err
	}
	if pending {
		return apperr.Conflict("a withdrawal request is already pending")
	}

	closing := b.TotalWalletBalance - amount
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (user_id, type, amount, status, payment_method, upi_id, closing_balance)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, userID, KindWithdraw, amount, StatusPending, method, upiID, closing)
	if err != nil {
		return err
	}

	b.CashWon -= amount
	b.TotalWalletBalance = closing
	if err := writeBalance(ctx, tx, userID, b); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notifier.Audit(ctx, &userID, "withdrawal_requested", fmt.Sprintf("amount=%d", amount))
	return nil
}

// RedeemReferralEarnings moves referral earnings into the spendable wallet.
// Auto-approved; no operator involved.
func (s *Service) RedeemReferralEarnings(ctx context.Context, userID, amount int64) error {
	if amount <= 0 {
		return apperr.Validation("amount must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	b, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return err
	}
	if b.ReferralEarning < amount {
		return apperr.InsufficientFunds("referral earnings are less than the requested amount")
	}

	closing := b.TotalWalletBalance + amount
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (user_id, type, amount, status, is_referral, closing_balance)
		VALUES ($1,$2,$3,$4,TRUE,$5)
	`, userID, KindReferral, amount, StatusApproved, closing)
	if err != nil {
		return err
	}

	b.ReferralEarning -= amount
	b.TotalBalance += amount
	b.TotalWalletBalance = closing
	if err := writeBalance(ctx, tx, userID, b); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApproveTransaction settles a pending deposit or withdrawal. Deposits credit
// the wallet now; withdrawals were debited at request time, so approval only
// marks the payout done.
func (s *Service) ApproveTransaction(ctx context.Context, adminID, entryID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		userID, amount int64
		kind, status   string
	)
	err = tx.QueryRow(ctx, `
		SELECT user_id, amount, type, status FROM transactions WHERE id=$1 FOR UPDATE
	`, entryID).Scan(&userID, &amount, &kind, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("transaction not found")
	}
	if err != nil {
		return err
	}
	if status != StatusPending {
		return apperr.InvalidTransition("transaction is not pending")
	}

	if kind == KindDeposit {
		b, err := lockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		b.TotalBalance += amount
		b.TotalWalletBalance += amount
		if err := writeBalance(ctx, tx, userID, b); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			"UPDATE transactions SET status=$1, approved_by=$2, closing_balance=$3 WHERE id=$4",
			StatusApproved, adminID, b.TotalWalletBalance, entryID)
		if err != nil {
			return err
		}
	} else {
		_, err = tx.Exec(ctx,
			"UPDATE transactions SET status=$1, approved_by=$2 WHERE id=$3",
			StatusApproved, adminID, entryID)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notifier.Push(ctx, userID, kind, fmt.Sprintf("your %s of %d was approved", kind, amount))
	s.notifier.Audit(ctx, &adminID, "transaction_approved", fmt.Sprintf("entry=%d", entryID))
	return nil
}

// RejectTransaction declines a pending entry. A rejected withdrawal returns
// the already-debited winnings.
func (s *Service) RejectTransaction(ctx context.Context, adminID, entryID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		userID, amount int64
		kind, status   string
	)
	err = tx.QueryRow(ctx, `
		SELECT user_id, amount, type, status FROM transactions WHERE id=$1 FOR UPDATE
	`, entryID).Scan(&userID, &amount, &kind, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("transaction not found")
	}
	if err != nil {
		return err
	}
	if status != StatusPending {
		return apperr.InvalidTransition("transaction is not pending")
	}

	if kind == KindWithdraw {
		b, err := lockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		b.CashWon += amount
		b.TotalWalletBalance += amount
		if err := writeBalance(ctx, tx, userID, b); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx,
		"UPDATE transactions SET status=$1, approved_by=$2 WHERE id=$3",
		StatusRejected, adminID, entryID)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notifier.Push(ctx, userID, kind, fmt.Sprintf("your %s of %d was rejected", kind, amount))
	s.notifier.Audit(ctx, &adminID, "transaction_rejected", fmt.Sprintf("entry=%d", entryID))
	return nil
}

// GrantAdjustment applies an operator bonus or penalty to a wallet.
func (s *Service) GrantAdjustment(ctx context.Context, adminID, userID, amount int64, kind string) error {
	if kind != KindBonus && kind != KindPenalty {
		return apperr.Validation("kind must be bonus or penalty")
	}
	if amount <= 0 {
		return apperr.Validation("amount must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	b, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return err
	}

	var closing int64
	if kind == KindBonus {
		closing = b.TotalWalletBalance + amount
		b.TotalBalance += amount
		b.Bonus += amount
	} else {
		if b.TotalWalletBalance < amount {
			return apperr.InsufficientFunds("penalty exceeds wallet balance")
		}
		closing = b.TotalWalletBalance - amount
		b.TotalBalance, b.CashWon = drawDown(b.TotalBalance, b.CashWon, amount)
		b.Penalty += amount
	}
	b.TotalWalletBalance = closing

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (user_id, type, amount, status, approved_by, closing_balance)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, userID, kind, amount, StatusApproved, adminID, closing)
	if err != nil {
		return err
	}
	if err := writeBalance(ctx, tx, userID, b); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notifier.Push(ctx, userID, kind, fmt.Sprintf("a %s of %d was applied to your wallet", kind, amount))
	return nil
}

// ListEntries returns a user's ledger history, newest first. Admins pass
// userID=0 with an optional status filter to see the whole queue.
func (s *Service) ListEntries(ctx context.Context, userID int64, status string) ([]Entry, error) {
	q := store.Psql.
		Select("id", "user_id", "battle_id", "type", "amount", "status",
			"is_battle", "is_won_cash", "is_referral", "closing_balance",
			"payment_method", "upi_id", "utr_no", "created_at").
		From("transactions").
		OrderBy("id DESC").
		Limit(200)
	if userID != 0 {
		q = q.Where(sq.Eq{"user_id": userID})
	}
	if status != "" && status != "all" {
		q = q.Where(sq.Eq{"status": status})
	}

	rows, err := store.Query(ctx, s.pool, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.BattleID, &e.Type, &e.Amount, &e.Status,
			&e.IsBattle, &e.IsWonCash, &e.IsReferral, &e.ClosingBalance,
			&e.PaymentMethod, &e.UPIID, &e.UTRNo, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
