package battle_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"battle-arena/internal/battle"
	"battle-arena/internal/config"
	"battle-arena/internal/notify"
	"battle-arena/internal/observability"
	"battle-arena/internal/store"
	"battle-arena/internal/wallet"
)

type testEnv struct {
	pool    *pgxpool.Pool
	battles *battle.Service
	wallets *wallet.Service
}

func setupTest(t *testing.T) *testEnv {
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
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	notifier := notify.New(pool, log)
	settings := config.NewProvider(pool)

	return &testEnv{
		pool:    pool,
		battles: battle.NewService(pool, settings, notifier, log, metrics),
		wallets: wallet.NewService(pool, notifier, log),
	}
}

func seedPlayer(t *testing.T, pool *pgxpool.Pool, name string, balance int64) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (name, mobile_no, pass_hash, referral_code, total_balance, total_wallet_balance)
		VALUES ($1, $2, 'x', $3, $4, $4) RETURNING id
	`, name, fmt.Sprintf("%s-%d", name, time.Now().UnixNano()), name+"-CODE", balance).Scan(&id)
	if err != nil {
		t.Fatalf("seed player: %v", err)
	}
	return id
}

func getWallet(t *testing.T, env *testEnv, userID int64) wallet.Balance {
	t.Helper()

	b, err := env.wallets.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return b
}

func escrowCount(t *testing.T, pool *pgxpool.Pool, battleID int64) int {
	t.Helper()

	var n int
	err := pool.QueryRow(context.Background(),
		"SELECT COUNT(*) FROM transactions WHERE battle_id=$1 AND is_battle AND type='withdraw'",
		battleID).Scan(&n)
	if err != nil {
		t.Fatalf("escrow count: %v", err)
	}
	return n
}

// Drives one battle from creation to the point where both parties are
// committed and the match is running.
func startBattle(t *testing.T, env *testEnv, creator, acceptor int64, fee int64) *battle.Battle {
	t.Helper()
	ctx := context.Background()

	b, err := env.battles.Create(ctx, creator, fee)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.battles.RequestJoin(ctx, acceptor, b.ID); err != nil {
		t.Fatalf("request join: %v", err)
	}
	if _, err := env.battles.ConfirmJoin(ctx, creator, b.ID); err != nil {
		t.Fatalf("confirm join: %v", err)
	}
	b, err = env.battles.Start(ctx, acceptor, b.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return b
}

func TestBattleLifecycleSettlement(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	creator := seedPlayer(t, env.pool, "creator", 500)
	acceptor := seedPlayer(t, env.pool, "acceptor", 500)

	b, err := env.battles.Create(ctx, creator, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Status != battle.StatusOpen || b.WinnerAmount != 180 || b.CommissionPct != 20 {
		t.Fatalf("unexpected battle after create: %+v", b)
	}
	// Creation only checks the balance, nothing is held yet.
	if got := getWallet(t, env, creator).TotalWalletBalance; got != 500 {
		t.Fatalf("creator balance after create = %d, want 500", got)
	}

	if _, err := env.battles.RequestJoin(ctx, acceptor, b.ID); err != nil {
		t.Fatalf("request join: %v", err)
	}
	if _, err := env.battles.ConfirmJoin(ctx, creator, b.ID); err != nil {
		t.Fatalf("confirm join: %v", err)
	}
	for _, id := range []int64{creator, acceptor} {
		if got := getWallet(t, env, id).TotalWalletBalance; got != 400 {
			t.Fatalf("balance after confirm = %d, want 400", got)
		}
	}

	// Confirming again must not double-charge.
	if _, err := env.battles.ConfirmJoin(ctx, creator, b.ID); err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if n := escrowCount(t, env.pool, b.ID); n != 2 {
		t.Fatalf("escrow entries = %d, want 2", n)
	}

	b, err = env.battles.Start(ctx, acceptor, b.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if b.Status != battle.StatusPlaying {
		t.Fatalf("status after start = %s, want %s", b.Status, battle.StatusPlaying)
	}

	b, err = env.battles.SelfReport(ctx, creator, b.ID, battle.ClaimWon, "shot.png", "")
	if err != nil {
		t.Fatalf("creator report: %v", err)
	}
	if b.Status != battle.StatusPlaying || b.MatchStatus != battle.MatchPending {
		t.Fatalf("battle settled on a single report: %+v", b)
	}

	b, err = env.battles.SelfReport(ctx, acceptor, b.ID, battle.ClaimLoss, "", "")
	if err != nil {
		t.Fatalf("acceptor report: %v", err)
	}
	if b.Status != battle.StatusClosed || b.MatchStatus != battle.MatchCompleted {
		t.Fatalf("battle not settled after agreeing reports: %+v", b)
	}
	if b.Winner == nil || *b.Winner != creator {
		t.Fatalf("winner = %v, want %d", b.Winner, creator)
	}

	cw := getWallet(t, env, creator)
	if cw.CashWon != 180 || cw.TotalWalletBalance != 580 || cw.TotalBalance != 400 {
		t.Fatalf("winner wallet = %+v, want cash_won 180 twb 580", cw)
	}
	aw := getWallet(t, env, acceptor)
	if aw.TotalWalletBalance != 400 || aw.CashWon != 0 {
		t.Fatalf("loser wallet = %+v, want twb 400", aw)
	}

	var commission int64
	err = env.pool.QueryRow(ctx,
		"SELECT amount FROM battle_commissions WHERE battle_id=$1", b.ID).Scan(&commission)
	if err != nil || commission != 20 {
		t.Fatalf("commission = %d (%v), want 20", commission, err)
	}

	// Slots are immutable once written.
	if _, err := env.battles.SelfReport(ctx, creator, b.ID, battle.ClaimLoss, "", ""); err == nil {
		t.Fatal("expected rewriting a report to fail")
	}
}

func TestBattleVoidRefund(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	creator := seedPlayer(t, env.pool, "creator", 300)
	acceptor := seedPlayer(t, env.pool, "acceptor", 300)
	b := startBattle(t, env, creator, acceptor, 100)

	if _, err := env.battles.SelfReport(ctx, creator, b.ID, battle.ClaimCancelled, "", "opponent left"); err != nil {
		t.Fatalf("creator report: %v", err)
	}
	b, err := env.battles.SelfReport(ctx, acceptor, b.ID, battle.ClaimCancelled, "", "lobby broke")
	if err != nil {
		t.Fatalf("acceptor report: %v", err)
	}
	if b.Status != battle.StatusClosed || b.MatchStatus != battle.MatchCancelled {
		t.Fatalf("battle not voided: %+v", b)
	}
	if b.Winner != nil {
		t.Fatalf("void battle has a winner: %d", *b.Winner)
	}

	for _, id := range []int64{creator, acceptor} {
		w := getWallet(t, env, id)
		if w.TotalWalletBalance != 300 || w.CashWon != 0 {
			t.Fatalf("wallet after void = %+v, want full refund to 300", w)
		}
	}
	if n := escrowCount(t, env.pool, b.ID); n != 0 {
		t.Fatalf("escrow entries after void = %d, want 0", n)
	}
}

func TestBattleConflictAdminResolve(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	creator := seedPlayer(t, env.pool, "creator", 300)
	acceptor := seedPlayer(t, env.pool, "acceptor", 300)
	admin := seedPlayer(t, env.pool, "admin", 0)
	b := startBattle(t, env, creator, acceptor, 100)

	if _, err := env.battles.SelfReport(ctx, creator, b.ID, battle.ClaimWon, "a.png", ""); err != nil {
		t.Fatalf("creator report: %v", err)
	}
	b, err := env.battles.SelfReport(ctx, acceptor, b.ID, battle.ClaimWon, "b.png", "")
	if err != nil {
		t.Fatalf("acceptor report: %v", err)
	}
	if b.Status != battle.StatusConflict {
		t.Fatalf("status after contradicting reports = %s, want %s", b.Status, battle.StatusConflict)
	}
	// No money moved while the dispute is open.
	if got := getWallet(t, env, creator).TotalWalletBalance; got != 200 {
		t.Fatalf("creator balance during conflict = %d, want 200", got)
	}

	b, err = env.battles.AdminResolve(ctx, admin, b.ID, &acceptor, false, "")
	if err != nil {
		t.Fatalf("admin resolve: %v", err)
	}
	if b.Status != battle.StatusClosed || b.Winner == nil || *b.Winner != acceptor {
		t.Fatalf("battle after ruling: %+v", b)
	}

	aw := getWallet(t, env, acceptor)
	if aw.CashWon != 180 || aw.TotalWalletBalance != 380 {
		t.Fatalf("winner wallet after ruling = %+v, want cash_won 180", aw)
	}

	// The ruling is final.
	if _, err := env.battles.AdminResolve(ctx, admin, b.ID, &creator, false, ""); err == nil {
		t.Fatal("expected a second ruling to fail")
	}
}

func TestRejectAfterConfirmRefundsBoth(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	creator := seedPlayer(t, env.pool, "creator", 300)
	acceptor := seedPlayer(t, env.pool, "acceptor", 300)

	b, err := env.battles.Create(ctx, creator, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.battles.RequestJoin(ctx, acceptor, b.ID); err != nil {
		t.Fatalf("request join: %v", err)
	}
	if _, err := env.battles.ConfirmJoin(ctx, creator, b.ID); err != nil {
		t.Fatalf("confirm join: %v", err)
	}
	for _, id := range []int64{creator, acceptor} {
		w := getWallet(t, env, id)
		if w.TotalWalletBalance != 200 || w.BattlesPlayed != 1 {
			t.Fatalf("wallet after confirm = %+v, want twb 200 played 1", w)
		}
	}

	b, err = env.battles.RejectJoin(ctx, acceptor, b.ID)
	if err != nil {
		t.Fatalf("reject join: %v", err)
	}
	if b.Status != battle.StatusOpen || b.AcceptedBy != nil || b.RequestAccepted {
		t.Fatalf("battle after reject: %+v, want open with no acceptor", b)
	}

	// Both stakes come back, exactly once, and the played counter unwinds.
	for _, id := range []int64{creator, acceptor} {
		w := getWallet(t, env, id)
		if w.TotalWalletBalance != 300 || w.CashWon != 0 || w.BattlesPlayed != 0 {
			t.Fatalf("wallet after reject = %+v, want full refund to 300", w)
		}
	}
	if n := escrowCount(t, env.pool, b.ID); n != 0 {
		t.Fatalf("escrow entries after reject = %d, want 0", n)
	}

	// Nothing left to reject; a retry cannot credit anyone again.
	if _, err := env.battles.RejectJoin(ctx, acceptor, b.ID); err == nil {
		t.Fatal("expected rejecting twice to fail")
	}
	if got := getWallet(t, env, creator).TotalWalletBalance; got != 300 {
		t.Fatalf("creator balance after repeat reject = %d, want 300", got)
	}
}

func TestConcurrentJoinOneWins(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	creator := seedPlayer(t, env.pool, "creator", 300)
	p1 := seedPlayer(t, env.pool, "p1", 300)
	p2 := seedPlayer(t, env.pool, "p2", 300)

	b, err := env.battles.Create(ctx, creator, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, player := range []int64{p1, p2} {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := env.battles.RequestJoin(ctx, id, b.ID)
			errs <- err
		}(player)
	}
	wg.Wait()
	close(errs)

	won, lost := 0, 0
	for err := range errs {
		if err == nil {
			won++
		} else {
			lost++
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("expected exactly one join to win, got %d wins %d losses", won, lost)
	}
}

func TestReferralPayout(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	referrer := seedPlayer(t, env.pool, "referrer", 0)
	creator := seedPlayer(t, env.pool, "creator", 300)
	acceptor := seedPlayer(t, env.pool, "acceptor", 300)
	if _, err := env.pool.Exec(ctx, "UPDATE users SET referred_by=$1 WHERE id=$2", referrer, acceptor); err != nil {
		t.Fatalf("link referral: %v", err)
	}

	b := startBattle(t, env, creator, acceptor, 100)
	if _, err := env.battles.SelfReport(ctx, creator, b.ID, battle.ClaimLoss, "", ""); err != nil {
		t.Fatalf("creator report: %v", err)
	}
	if _, err := env.battles.SelfReport(ctx, acceptor, b.ID, battle.ClaimWon, "w.png", ""); err != nil {
		t.Fatalf("acceptor report: %v", err)
	}

	rw := getWallet(t, env, referrer)
	if rw.ReferralEarning != 2 {
		t.Fatalf("referral earning = %d, want 2", rw.ReferralEarning)
	}
	// Referral earnings sit outside the spendable wallet until redeemed.
	if rw.TotalWalletBalance != 0 {
		t.Fatalf("referrer spendable balance = %d, want 0", rw.TotalWalletBalance)
	}

	if err := env.wallets.RedeemReferralEarnings(ctx, referrer, 2); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	rw = getWallet(t, env, referrer)
	if rw.ReferralEarning != 0 || rw.TotalWalletBalance != 2 {
		t.Fatalf("wallet after redeem = %+v, want twb 2", rw)
	}
}

func TestDeleteOpenBattle(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	creator := seedPlayer(t, env.pool, "creator", 300)
	other := seedPlayer(t, env.pool, "other", 300)

	b, err := env.battles.Create(ctx, creator, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := env.battles.Delete(ctx, other, b.ID); err == nil {
		t.Fatal("expected delete by a stranger to fail")
	}
	if err := env.battles.Delete(ctx, creator, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.battles.Get(ctx, b.ID); err == nil {
		t.Fatal("expected deleted battle to be gone")
	}
}

func TestCreateLimits(t *testing.T) {
	env := setupTest(t)
	ctx := context.Background()

	creator := seedPlayer(t, env.pool, "creator", 10000)

	if _, err := env.battles.Create(ctx, creator, 49); err == nil {
		t.Fatal("expected sub-minimum fee to fail")
	}
	if _, err := env.battles.Create(ctx, creator, 120); err == nil {
		t.Fatal("expected off-tier fee to fail")
	}

	if _, err := env.battles.Create(ctx, creator, 100); err != nil {
		t.Fatalf("first create: %v", err)
	}
	// Same fee twice is rejected, a second tier is fine, a third battle is not.
	if _, err := env.battles.Create(ctx, creator, 100); err == nil {
		t.Fatal("expected duplicate fee to fail")
	}
	if _, err := env.battles.Create(ctx, creator, 200); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if _, err := env.battles.Create(ctx, creator, 300); err == nil {
		t.Fatal("expected a third open battle to fail")
	}

	poor := seedPlayer(t, env.pool, "poor", 40)
	if _, err := env.battles.Create(ctx, poor, 50); err == nil {
		t.Fatal("expected create beyond balance to fail")
	}
}
