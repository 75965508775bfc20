package wallet_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"battle-arena/internal/notify"
	"battle-arena/internal/store"
	"battle-arena/internal/wallet"
)

func setupTest(t *testing.T) (*pgxpool.Pool, *wallet.Service) {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("db connection: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := store.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = pool.Exec(ctx, `TRUNCATE audit_logs, notifications, battle_commissions,
		transactions, battles, settings, users RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("reset db: %v", err)
	}

	log := zerolog.Nop()
	return pool, wallet.NewService(pool, notify.New(pool, log), log)
}

func seedUser(t *testing.T, pool *pgxpool.Pool, name string, total, cashWon int64) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (name, mobile_no, pass_hash, total_balance, cash_won, total_wallet_balance)
		VALUES ($1, $2, 'x', $3, $4, $3 + $4) RETURNING id
	`, name, fmt.Sprintf("%s-%d", name, time.Now().UnixNano()), total, cashWon).Scan(&id)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func pendingEntry(t *testing.T, pool *pgxpool.Pool, userID int64) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(),
		"SELECT id FROM transactions WHERE user_id=$1 AND status=$2 ORDER BY id DESC LIMIT 1",
		userID, wallet.StatusPending).Scan(&id)
	if err != nil {
		t.Fatalf("pending entry: %v", err)
	}
	return id
}

func TestDepositApprovalCreditsWallet(t *testing.T) {
	pool, svc := setupTest(t)
	ctx := context.Background()

	user := seedUser(t, pool, "player", 0, 0)
	admin := seedUser(t, pool, "admin", 0, 0)

	if err := svc.RequestDeposit(ctx, user, 500, "UTR123", "", "arena@upi"); err != nil {
		t.Fatalf("request deposit: %v", err)
	}
	b, err := svc.GetBalance(ctx, user)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if b.TotalWalletBalance != 0 {
		t.Fatalf("balance before approval = %d, want 0", b.TotalWalletBalance)
	}

	entry := pendingEntry(t, pool, user)
	if err := svc.ApproveTransaction(ctx, admin, entry); err != nil {
		t.Fatalf("approve: %v", err)
	}
	b, _ = svc.GetBalance(ctx, user)
	if b.TotalBalance != 500 || b.TotalWalletBalance != 500 {
		t.Fatalf("balance after approval = %+v, want 500", b)
	}

	// Approval is one-shot.
	if err := svc.ApproveTransaction(ctx, admin, entry); err == nil {
		t.Fatal("expected a second approval to fail")
	}
}

func TestWithdrawalDebitsWinningsOnly(t *testing.T) {
	pool, svc := setupTest(t)
	ctx := context.Background()

	user := seedUser(t, pool, "player", 400, 100)

	// 400 in deposits does not make 200 withdrawable.
	if err := svc.RequestWithdrawal(ctx, user, 200, "upi", "p@upi"); err == nil {
		t.Fatal("expected withdrawal above cash_won to fail")
	}

	if err := svc.RequestWithdrawal(ctx, user, 100, "upi", "p@upi"); err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	b, _ := svc.GetBalance(ctx, user)
	if b.CashWon != 0 || b.TotalWalletBalance != 400 {
		t.Fatalf("balance after request = %+v, want cash_won 0 twb 400", b)
	}

	// Only one withdrawal may be in flight.
	if err := svc.RequestWithdrawal(ctx, user, 50, "upi", "p@upi"); err == nil {
		t.Fatal("expected a second pending withdrawal to fail")
	}
}

func TestWithdrawalRejectionRefunds(t *testing.T) {
	pool, svc := setupTest(t)
	ctx := context.Background()

	user := seedUser(t, pool, "player", 0, 300)
	admin := seedUser(t, pool, "admin", 0, 0)

	if err := svc.RequestWithdrawal(ctx, user, 300, "upi", "p@upi"); err != nil {
		t.Fatalf("request withdrawal: %v", err)
	}
	entry := pendingEntry(t, pool, user)
	if err := svc.RejectTransaction(ctx, admin, entry); err != nil {
		t.Fatalf("reject: %v", err)
	}

	b, _ := svc.GetBalance(ctx, user)
	if b.CashWon != 300 || b.TotalWalletBalance != 300 {
		t.Fatalf("balance after rejection = %+v, want cash_won 300", b)
	}
}

func TestVoidBattleDebitIdempotent(t *testing.T) {
	pool, svc := setupTest(t)
	ctx := context.Background()

	user := seedUser(t, pool, "player", 500, 0)
	const battleID = 42

	inTx := func(fn func(tx pgx.Tx) error) {
		t.Helper()
		tx, err := pool.Begin(ctx)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		defer tx.Rollback(ctx)
		if err := fn(tx); err != nil {
			t.Fatalf("tx func: %v", err)
		}
		if err := tx.Commit(ctx); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	inTx(func(tx pgx.Tx) error {
		return wallet.DebitForBattle(ctx, tx, user, battleID, 100)
	})
	b, err := svc.GetBalance(ctx, user)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if b.TotalWalletBalance != 400 || b.BattlesPlayed != 1 {
		t.Fatalf("balance after debit = %+v, want twb 400 played 1", b)
	}

	inTx(func(tx pgx.Tx) error {
		voided, err := wallet.VoidBattleDebit(ctx, tx, user, battleID, 100)
		if err != nil {
			return err
		}
		if !voided {
			t.Fatal("first void should report the entry removed")
		}
		return nil
	})
	b, _ = svc.GetBalance(ctx, user)
	if b.TotalWalletBalance != 500 || b.BattlesPlayed != 0 {
		t.Fatalf("balance after void = %+v, want twb 500 played 0", b)
	}

	// A racing second void finds no entry and must not credit again.
	inTx(func(tx pgx.Tx) error {
		voided, err := wallet.VoidBattleDebit(ctx, tx, user, battleID, 100)
		if err != nil {
			return err
		}
		if voided {
			t.Fatal("second void should be a no-op")
		}
		return nil
	})
	b, _ = svc.GetBalance(ctx, user)
	if b.TotalWalletBalance != 500 || b.BattlesPlayed != 0 {
		t.Fatalf("balance after double void = %+v, want twb 500 unchanged", b)
	}
}

func TestAdjustments(t *testing.T) {
	pool, svc := setupTest(t)
	ctx := context.Background()

	user := seedUser(t, pool, "player", 100, 50)
	admin := seedUser(t, pool, "admin", 0, 0)

	if err := svc.GrantAdjustment(ctx, admin, user, 30, wallet.KindBonus); err != nil {
		t.Fatalf("bonus: %v", err)
	}
	b, _ := svc.GetBalance(ctx, user)
	if b.TotalBalance != 130 || b.TotalWalletBalance != 180 || b.Bonus != 30 {
		t.Fatalf("balance after bonus = %+v", b)
	}

	// Penalty draws from deposits first, then winnings.
	if err := svc.GrantAdjustment(ctx, admin, user, 160, wallet.KindPenalty); err != nil {
		t.Fatalf("penalty: %v", err)
	}
	b, _ = svc.GetBalance(ctx, user)
	if b.TotalBalance != 0 || b.CashWon != 20 || b.TotalWalletBalance != 20 {
		t.Fatalf("balance after penalty = %+v, want 0/20/20", b)
	}

	if err := svc.GrantAdjustment(ctx, admin, user, 100, wallet.KindPenalty); err == nil {
		t.Fatal("expected penalty beyond balance to fail")
	}
	if err := svc.GrantAdjustment(ctx, admin, user, 10, "weird"); err == nil {
		t.Fatal("expected unknown kind to fail")
	}
}
