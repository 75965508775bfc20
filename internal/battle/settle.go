package battle

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"battle-arena/internal/store"
	"battle-arena/internal/wallet"
)

// ensureEscrow withdraws a party's stake unless an approved escrow entry for
// this battle+party already exists. The guard is what makes confirm/start
// retries and the confirm/start overlap safe.
func (s *Service) ensureEscrow(ctx context.Context, tx pgx.Tx, userID int64, b *Battle) error {
	has, err := wallet.HasBattleDebit(ctx, tx, userID, b.ID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	return wallet.DebitForBattle(ctx, tx, userID, b.ID, b.EntryFee)
}

// refundBoth voids both parties' escrow entries. Safe to call when a party
// never escrowed or was already refunded; the void no-ops.
func (s *Service) refundBoth(ctx context.Context, tx pgx.Tx, b *Battle) error {
	if _, err := wallet.VoidBattleDebit(ctx, tx, b.CreatedBy, b.ID, b.EntryFee); err != nil {
		return err
	}
	if b.AcceptedBy != nil {
		if _, err := wallet.VoidBattleDebit(ctx, tx, *b.AcceptedBy, b.ID, b.EntryFee); err != nil {
			return err
		}
	}
	return nil
}

// settleWin pays the winner, records the commission at the rate locked in at
// battle creation, and credits the referrer's cut at the current referral
// rate. Referral is the one settlement-time rate read: commission is frozen
// when the battle opens, the referral percentage is looked up at payout.
func (s *Service) settleWin(ctx context.Context, tx pgx.Tx, b *Battle) error {
	if b.Winner == nil {
		return nil
	}

	if err := wallet.CreditWinnings(ctx, tx, *b.Winner, b.ID, b.WinnerAmount); err != nil {
		return err
	}

	commission := commissionFor(b.EntryFee, b.CommissionPct)
	_, err := tx.Exec(ctx, `
		INSERT INTO battle_commissions (battle_id, commission_pct, amount) VALUES ($1,$2,$3)
	`, b.ID, b.CommissionPct, commission)
	if err != nil {
		return err
	}

	var referrer *int64
	err = tx.QueryRow(ctx, "SELECT referred_by FROM users WHERE id=$1", *b.Winner).Scan(&referrer)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if referrer == nil {
		return nil
	}

	snap, err := s.settings.Snapshot(ctx)
	if err != nil {
		return err
	}
	cut := referralCutFor(b.EntryFee, snap.ReferralPct)
	if cut <= 0 {
		return nil
	}
	return wallet.CreditReferral(ctx, tx, *referrer, b.ID, cut)
}

// resolveLocked merges the two report slots and applies the verdict to the
// locked battle. Settlement is skipped when the battle is already CLOSED, so
// a racing sweeper and live request cannot pay out twice.
func (s *Service) resolveLocked(ctx context.Context, tx pgx.Tx, b *Battle) error {
	if b.Status == StatusClosed {
		return nil
	}

	switch reconcile(b.CreatorReport.Claim, b.AcceptorReport.Claim) {
	case ResolutionNone:
		return nil

	case ResolutionCreatorWins:
		winner, loser := b.CreatedBy, *b.AcceptedBy
		b.Winner, b.Loser = &winner, &loser
		b.MatchStatus = MatchCompleted
		b.Status = StatusClosed
		b.PaymentStatus = PaymentCompleted
		if err := s.settleWin(ctx, tx, b); err != nil {
			s.metrics.SettlementFailures.Inc()
			return err
		}
		s.metrics.BattlesSettled.Inc()

	case ResolutionAcceptorWins:
		winner, loser := *b.AcceptedBy, b.CreatedBy
		b.Winner, b.Loser = &winner, &loser
		b.MatchStatus = MatchCompleted
		b.Status = StatusClosed
		b.PaymentStatus = PaymentCompleted
		if err := s.settleWin(ctx, tx, b); err != nil {
			s.metrics.SettlementFailures.Inc()
			return err
		}
		s.metrics.BattlesSettled.Inc()

	case ResolutionVoid:
		b.Winner, b.Loser = nil, nil
		b.MatchStatus = MatchCancelled
		b.Status = StatusClosed
		b.PaymentStatus = PaymentCompleted
		if err := s.refundBoth(ctx, tx, b); err != nil {
			s.metrics.SettlementFailures.Inc()
			return err
		}
		s.metrics.BattlesSettled.Inc()

	case ResolutionContradiction:
		b.Winner, b.Loser = nil, nil
		b.Status = StatusConflict
	}

	return s.writeOutcome(ctx, tx, b)
}

// retireLocked unwinds one locked battle: both escrow entries voided (each a
// no-op when nothing was withdrawn), then the battle and its commission rows
// are removed. Used by delete, sibling-offer cleanup and the expiry sweep.
func (s *Service) retireLocked(ctx context.Context, tx pgx.Tx, b *Battle) error {
	if err := s.refundBoth(ctx, tx, b); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM battle_commissions WHERE battle_id=$1", b.ID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, "DELETE FROM battles WHERE id=$1", b.ID)
	return err
}

// retireOtherOpenOffers cancels every other OPEN battle either party has a
// hand in, refunding any escrow those battles took. One forming match per
// player: this is the single definition of that invariant.
func (s *Service) retireOtherOpenOffers(ctx context.Context, tx pgx.Tx, current *Battle) error {
	parties := []int64{current.CreatedBy}
	if current.AcceptedBy != nil {
		parties = append(parties, *current.AcceptedBy)
	}

	rows, err := store.QueryTx(ctx, tx, store.Psql.
		Select(battleColumns).
		From("battles").
		Where(sq.NotEq{"id": current.ID}).
		Where(sq.Eq{"status": StatusOpen}).
		Where(sq.Or{sq.Eq{"created_by": parties}, sq.Eq{"accepted_by": parties}}).
		OrderBy("id").
		Suffix("FOR UPDATE"))
	if err != nil {
		return err
	}

	var others []*Battle
	for rows.Next() {
		o, err := scanBattle(rows)
		if err != nil {
			rows.Close()
			return err
		}
		others = append(others, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range others {
		if err := s.retireLocked(ctx, tx, o); err != nil {
			return err
		}
		s.log.Info().Int64("battle_id", o.ID).Int64("superseded_by", current.ID).Msg("retired sibling open offer")
	}
	return nil
}

func (s *Service) writeReports(ctx context.Context, tx pgx.Tx, b *Battle) error {
	_, err := tx.Exec(ctx, `
		UPDATE battles SET
			creator_claim=$1, creator_screenshot=$2, creator_cancel_reason=$3, creator_reported_at=$4,
			acceptor_claim=$5, acceptor_screenshot=$6, acceptor_cancel_reason=$7, acceptor_reported_at=$8,
			updated_at=now()
		WHERE id=$9
	`, b.CreatorReport.Claim, b.CreatorReport.Screenshot, b.CreatorReport.CancelReason, b.CreatorReport.ReportedAt,
		b.AcceptorReport.Claim, b.AcceptorReport.Screenshot, b.AcceptorReport.CancelReason, b.AcceptorReport.ReportedAt,
		b.ID)
	return err
}

func (s *Service) writeOutcome(ctx context.Context, tx pgx.Tx, b *Battle) error {
	_, err := tx.Exec(ctx, `
		UPDATE battles SET status=$1, match_status=$2, payment_status=$3, winner_id=$4, loser_id=$5, updated_at=now()
		WHERE id=$6
	`, b.Status, b.MatchStatus, b.PaymentStatus, b.Winner, b.Loser, b.ID)
	return err
}

// Get returns a battle snapshot without locking.
func (s *Service) Get(ctx context.Context, id int64) (*Battle, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+battleColumns+" FROM battles WHERE id=$1", id)
	return scanBattle(row)
}
