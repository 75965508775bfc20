package battle

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"battle-arena/internal/apperr"
	"battle-arena/internal/config"
	"battle-arena/internal/notify"
	"battle-arena/internal/observability"
	"battle-arena/internal/store"
	"battle-arena/internal/wallet"
)

// Service owns the battle lifecycle. Every transition runs in one
// transaction: the battle row is locked, preconditions are re-checked against
// the persisted state, and any money movement happens before commit. The
// sweeper calls the same methods instead of reimplementing the rules.
type Service struct {
	pool     *pgxpool.Pool
	settings *config.Provider
	notifier *notify.Notifier
	log      zerolog.Logger
	metrics  *observability.Metrics
}

func NewService(
	pool *pgxpool.Pool,
	settings *config.Provider,
	notifier *notify.Notifier,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Service {
	return &Service{pool: pool, settings: settings, notifier: notifier, log: log, metrics: metrics}
}

// Create opens a new battle. The entry fee is checked against the wallet but
// not escrowed; withdrawal happens at confirm/start.
func (s *Service) Create(ctx context.Context, creatorID, amount int64) (*Battle, error) {
	if amount < MinEntryFee {
		return nil, apperr.Validation(fmt.Sprintf("minimum entry fee is %d", MinEntryFee))
	}
	if !validEntryFee(amount) {
		return nil, apperr.Validation(fmt.Sprintf("entry fee must be a multiple of %d", MinEntryFee))
	}

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.checkNoUnreportedBattle(ctx, tx, creatorID, []string{StatusOpen, StatusPlaying}); err != nil {
		return nil, err
	}

	var openCount, sameFee int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE entry_fee=$2)
		FROM battles WHERE created_by=$1 AND status=$3
	`, creatorID, amount, StatusOpen).Scan(&openCount, &sameFee)
	if err != nil {
		return nil, err
	}
	if openCount >= MaxOpenBattles {
		return nil, apperr.Validation(fmt.Sprintf("at most %d open battles allowed", MaxOpenBattles))
	}
	if sameFee > 0 {
		return nil, apperr.Validation("you already have an open battle with this entry fee")
	}

	var balance int64
	err = tx.QueryRow(ctx, "SELECT total_wallet_balance FROM users WHERE id=$1", creatorID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, apperr.InsufficientFunds("insufficient wallet balance")
	}

	winnerAmount := winnerAmountFor(amount, snap.CommissionPct)
	row := tx.QueryRow(ctx, `
		INSERT INTO battles (created_by, entry_fee, winner_amount, commission_pct)
		VALUES ($1,$2,$3,$4)
		RETURNING `+battleColumns, creatorID, amount, winnerAmount, snap.CommissionPct)
	b, err := scanBattle(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifier.Audit(ctx, &creatorID, "battle_created", fmt.Sprintf("battle=%d fee=%d", b.ID, amount))
	return b, nil
}

// RequestJoin reserves the acceptor slot. No money moves; the creator still
// has to confirm. Exactly one of two racing joins wins the slot, the other
// gets CONFLICT.
func (s *Service) RequestJoin(ctx context.Context, playerID, battleID int64) (*Battle, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return nil, err
	}
	if b.CreatedBy == playerID {
		return nil, apperr.InvalidTransition("cannot join your own battle")
	}
	if b.Status != StatusOpen || b.AcceptedBy != nil {
		return nil, apperr.Conflict("battle is no longer open")
	}

	if err := s.checkNoUnreportedBattle(ctx, tx, playerID, []string{StatusPlaying}); err != nil {
		return nil, err
	}

	var balance int64
	err = tx.QueryRow(ctx, "SELECT total_wallet_balance FROM users WHERE id=$1", playerID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	if balance < b.EntryFee {
		return nil, apperr.InsufficientFunds("insufficient wallet balance")
	}

	// Conditional write: the row lock already serializes, the WHERE clause
	// is the backstop against state drift.
	tag, err := tx.Exec(ctx, `
		UPDATE battles SET accepted_by=$1, accepted_at=now(), updated_at=now()
		WHERE id=$2 AND status=$3 AND accepted_by IS NULL
	`, playerID, battleID, StatusOpen)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.Conflict("battle is no longer open")
	}
	b.AcceptedBy = &playerID

	if err := s.retireOtherOpenOffers(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifier.Push(ctx, b.CreatedBy, "battle", fmt.Sprintf("a player wants to join battle %d", b.ID))
	return s.Get(ctx, battleID)
}

// ConfirmJoin is the creator accepting the pending acceptor. This is the
// transition that escrows both stakes; it is idempotent because the debits
// are guarded by existing-entry checks.
func (s *Service) ConfirmJoin(ctx context.Context, creatorID, battleID int64) (*Battle, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return nil, err
	}
	if b.CreatedBy != creatorID {
		return nil, apperr.Unauthorized("only the creator can confirm a join request")
	}
	if b.Status == StatusPlaying || b.MatchStatus == MatchCompleted {
		return nil, apperr.InvalidTransition("battle already started or completed")
	}
	if b.Status != StatusOpen {
		return nil, apperr.InvalidTransition("battle is not open")
	}
	if b.AcceptedBy == nil {
		return nil, apperr.InvalidTransition("no join request to confirm")
	}

	if !b.RequestAccepted {
		if err := s.ensureEscrow(ctx, tx, b.CreatedBy, b); err != nil {
			return nil, err
		}
		if err := s.ensureEscrow(ctx, tx, *b.AcceptedBy, b); err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx,
			"UPDATE battles SET request_accepted=TRUE, updated_at=now() WHERE id=$1", battleID)
		if err != nil {
			return nil, err
		}
		if err := s.retireOtherOpenOffers(ctx, tx, b); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifier.Push(ctx, *b.AcceptedBy, "battle", fmt.Sprintf("battle %d was confirmed, you can start", b.ID))
	return s.Get(ctx, battleID)
}

// RejectJoin clears the pending acceptor. Either side may back out while the
// match has not started. If stakes were already escrowed at confirm, both are
// unwound the same way battle deletion unwinds them.
func (s *Service) RejectJoin(ctx context.Context, playerID, battleID int64) (*Battle, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return nil, err
	}
	if b.Status == StatusPlaying || b.MatchStatus == MatchCompleted {
		return nil, apperr.InvalidTransition("battle already started or completed")
	}
	if !b.isParty(playerID) {
		return nil, apperr.Unauthorized("not a party to this battle")
	}
	if b.AcceptedBy == nil {
		return nil, apperr.InvalidTransition("no join request to reject")
	}

	if b.RequestAccepted {
		if _, err := wallet.VoidBattleDebit(ctx, tx, b.CreatedBy, b.ID, b.EntryFee); err != nil {
			return nil, err
		}
		if _, err := wallet.VoidBattleDebit(ctx, tx, *b.AcceptedBy, b.ID, b.EntryFee); err != nil {
			return nil, err
		}
	}

	rejected := *b.AcceptedBy
	_, err = tx.Exec(ctx, `
		UPDATE battles SET accepted_by=NULL, accepted_at=NULL, request_accepted=FALSE, updated_at=now()
		WHERE id=$1
	`, battleID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifier.Push(ctx, rejected, "battle", fmt.Sprintf("your join request for battle %d was withdrawn", b.ID))
	return s.Get(ctx, battleID)
}

// Start moves a confirmed battle to PLAYING. Acceptor only. The acceptor's
// escrow is taken here if confirm somehow skipped it; the guard makes a
// double charge impossible.
func (s *Service) Start(ctx context.Context, playerID, battleID int64) (*Battle, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusOpen {
		return nil, apperr.InvalidTransition("battle is not open")
	}
	if !b.RequestAccepted {
		return nil, apperr.InvalidTransition("join request not confirmed yet")
	}
	if b.AcceptedBy == nil || *b.AcceptedBy != playerID {
		return nil, apperr.Unauthorized("only the acceptor can start the game")
	}

	if err := s.ensureEscrow(ctx, tx, *b.AcceptedBy, b); err != nil {
		return nil, err
	}
	if err := s.ensureEscrow(ctx, tx, b.CreatedBy, b); err != nil {
		return nil, err
	}
	if err := s.retireOtherOpenOffers(ctx, tx, b); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx,
		"UPDATE battles SET status=$1, updated_at=now() WHERE id=$2 AND status=$3",
		StatusPlaying, battleID, StatusOpen)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.Conflict("battle state changed, try again")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifier.Push(ctx, b.CreatedBy, "battle", fmt.Sprintf("battle %d has started", b.ID))
	return s.Get(ctx, battleID)
}

// Delete removes an OPEN, unaccepted battle. Nothing was escrowed before
// confirm, so the defensive void normally no-ops.
func (s *Service) Delete(ctx context.Context, creatorID, battleID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return err
	}
	if b.CreatedBy != creatorID {
		return apperr.Unauthorized("only the creator can delete a battle")
	}
	if b.Status != StatusOpen || b.AcceptedBy != nil {
		return apperr.InvalidTransition("battle can no longer be deleted")
	}

	if err := s.retireLocked(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.notifier.Audit(ctx, &creatorID, "battle_deleted", fmt.Sprintf("battle=%d", battleID))
	return nil
}

// EnterRoom attaches the external game room code. Creator only, so a
// malicious acceptor cannot redirect the match.
func (s *Service) EnterRoom(ctx context.Context, creatorID, battleID int64, roomNo string) error {
	if len(roomNo) != 8 {
		return apperr.Validation("room number must be 8 characters")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return err
	}
	if b.CreatedBy != creatorID {
		return apperr.Unauthorized("only the creator can set the room number")
	}
	if b.Status != StatusOpen && b.Status != StatusPlaying {
		return apperr.InvalidTransition("battle is no longer active")
	}

	_, err = tx.Exec(ctx, "UPDATE battles SET room_no=$1, updated_at=now() WHERE id=$2", roomNo, battleID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SelfReport writes the caller's result slot. A slot with a terminal claim is
// immutable. When the second slot lands the reports are reconciled and, if
// they agree, settlement runs before the call returns.
func (s *Service) SelfReport(ctx context.Context, playerID, battleID int64, claim, screenshot, cancelReason string) (*Battle, error) {
	if !validClaim(claim) {
		return nil, apperr.Validation("claim must be WON, LOSS or CANCELLED")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusOpen && b.Status != StatusPlaying {
		return nil, apperr.InvalidTransition("battle is not awaiting results")
	}
	if !b.isParty(playerID) {
		return nil, apperr.Unauthorized("not a party to this battle")
	}
	// A report before the match was ever confirmed makes no sense: nothing
	// is at stake yet.
	if !b.RequestAccepted {
		return nil, apperr.InvalidTransition("battle has not been confirmed")
	}

	slot := b.reportFor(playerID)
	if slot.Claim != "" {
		return nil, apperr.InvalidTransition("result already submitted")
	}
	now := time.Now()
	*slot = Report{Claim: claim, Screenshot: screenshot, CancelReason: cancelReason, ReportedAt: &now}

	if err := s.writeReports(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := s.resolveLocked(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifyOutcome(ctx, b)
	return s.Get(ctx, battleID)
}

// AdminResolve lets an operator force a terminal outcome, bypassing
// self-report agreement. The only way out of CONFLICT.
func (s *Service) AdminResolve(ctx context.Context, adminID, battleID int64, winnerID *int64, cancelled bool, reason string) (*Battle, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, battleID)
	if err != nil {
		return nil, err
	}
	if b.MatchStatus != MatchPending && b.Status != StatusConflict {
		return nil, apperr.InvalidTransition("battle is already resolved")
	}
	if b.Status == StatusClosed {
		return nil, apperr.InvalidTransition("battle is already closed")
	}

	now := time.Now()
	if cancelled {
		forceClaim(&b.CreatorReport, ClaimCancelled, reason, now)
		forceClaim(&b.AcceptorReport, ClaimCancelled, reason, now)
		b.Winner, b.Loser = nil, nil
		b.MatchStatus = MatchCancelled
		b.Status = StatusClosed
		b.PaymentStatus = PaymentCompleted
		if err := s.refundBoth(ctx, tx, b); err != nil {
			s.metrics.SettlementFailures.Inc()
			return nil, err
		}
	} else {
		if winnerID == nil || !b.isParty(*winnerID) {
			return nil, apperr.Validation("winner must be one of the battle's parties")
		}
		loser := b.CreatedBy
		if *winnerID == b.CreatedBy {
			if b.AcceptedBy == nil {
				return nil, apperr.InvalidTransition("battle has no second party")
			}
			loser = *b.AcceptedBy
			forceClaim(&b.CreatorReport, ClaimWon, "", now)
			forceClaim(&b.AcceptorReport, ClaimLoss, "", now)
		} else {
			forceClaim(&b.CreatorReport, ClaimLoss, "", now)
			forceClaim(&b.AcceptorReport, ClaimWon, "", now)
		}
		winner := *winnerID
		b.Winner, b.Loser = &winner, &loser
		b.MatchStatus = MatchCompleted
		b.Status = StatusClosed
		b.PaymentStatus = PaymentCompleted
		if err := s.settleWin(ctx, tx, b); err != nil {
			s.metrics.SettlementFailures.Inc()
			return nil, err
		}
	}

	if err := s.writeReports(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := s.writeOutcome(ctx, tx, b); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.metrics.BattlesSettled.Inc()
	s.notifier.Audit(ctx, &adminID, "battle_resolved", fmt.Sprintf("battle=%d cancelled=%t", battleID, cancelled))
	s.notifyOutcome(ctx, b)
	return s.Get(ctx, battleID)
}

// forceClaim fills a slot only when it is still empty; written slots are
// immutable even to the operator path.
func forceClaim(r *Report, claim, reason string, at time.Time) {
	if r.Claim != "" {
		return
	}
	ts := at
	*r = Report{Claim: claim, CancelReason: reason, ReportedAt: &ts}
}

// checkNoUnreportedBattle blocks a player who still owes a self-report in a
// committed battle from opening or joining another one.
func (s *Service) checkNoUnreportedBattle(ctx context.Context, tx pgx.Tx, playerID int64, statuses []string) error {
	rows, err := store.QueryTx(ctx, tx, store.Psql.
		Select("created_by", "accepted_by", "creator_claim", "acceptor_claim").
		From("battles").
		Where(sq.Or{sq.Eq{"created_by": playerID}, sq.Eq{"accepted_by": playerID}}).
		Where(sq.Eq{"status": statuses, "request_accepted": true}))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			createdBy     int64
			acceptedBy    *int64
			creatorClaim  string
			acceptorClaim string
		)
		if err := rows.Scan(&createdBy, &acceptedBy, &creatorClaim, &acceptorClaim); err != nil {
			return err
		}
		if createdBy == playerID && creatorClaim == "" {
			return apperr.InvalidTransition("submit the result of your current battle first")
		}
		if acceptedBy != nil && *acceptedBy == playerID && acceptorClaim == "" {
			return apperr.InvalidTransition("submit the result of your current battle first")
		}
	}
	return rows.Err()
}

func (s *Service) notifyOutcome(ctx context.Context, b *Battle) {
	if b.Winner != nil && b.Status == StatusClosed {
		s.notifier.Push(ctx, *b.Winner, "battle", fmt.Sprintf("you won battle %d: %d credited", b.ID, b.WinnerAmount))
	}
	if b.Status == StatusConflict {
		s.notifier.Push(ctx, b.CreatedBy, "battle", fmt.Sprintf("battle %d is under review", b.ID))
		if b.AcceptedBy != nil {
			s.notifier.Push(ctx, *b.AcceptedBy, "battle", fmt.Sprintf("battle %d is under review", b.ID))
		}
	}
}
