package battle

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"battle-arena/internal/apperr"
	"battle-arena/internal/store"
)

// The sweep methods live on Service so the timer path runs the exact same
// transition and settlement code as the live path. Each battle is handled in
// its own transaction; one failure is logged and the sweep moves on.

// SweepNoAcceptor deletes OPEN battles that attracted nobody within
// NoAcceptorAge. Escrow only happens at confirm/start, so the refund inside
// retireLocked is a defensive no-op here.
func (s *Service) SweepNoAcceptor(ctx context.Context) int {
	ids, err := s.sweepCandidates(ctx, store.Psql.
		Select("id").From("battles").
		Where(sq.Eq{"status": StatusOpen}).
		Where("accepted_by IS NULL").
		Where(sq.LtOrEq{"created_at": time.Now().Add(-NoAcceptorAge)}))
	if err != nil {
		s.log.Error().Err(err).Msg("no-acceptor sweep query failed")
		return 0
	}

	swept := 0
	for _, id := range ids {
		if err := s.expireOne(ctx, id); err != nil {
			s.metrics.SweepErrors.Inc()
			s.log.Error().Err(err).Int64("battle_id", id).Msg("failed to expire battle")
			continue
		}
		swept++
		s.metrics.BattlesExpired.Inc()
	}
	return swept
}

func (s *Service) expireOne(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, id)
	if err != nil {
		return ignoreGone(err)
	}
	// Re-check under the lock: a join may have landed since the scan.
	if b.Status != StatusOpen || b.AcceptedBy != nil {
		return nil
	}
	if err := s.retireLocked(ctx, tx, b); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SweepUnreported escalates battles that sat past UnreportedAge with one or
// both report slots empty: the missing slots are force-filled with CANCELLED
// and the battle goes to CONFLICT. No money moves; an operator closes it.
func (s *Service) SweepUnreported(ctx context.Context) int {
	ids, err := s.sweepCandidates(ctx, store.Psql.
		Select("id").From("battles").
		Where(sq.Eq{"status": []string{StatusOpen, StatusPlaying}}).
		Where(sq.Or{sq.Eq{"creator_claim": ""}, sq.Eq{"acceptor_claim": ""}}).
		Where(sq.LtOrEq{"created_at": time.Now().Add(-UnreportedAge)}))
	if err != nil {
		s.log.Error().Err(err).Msg("unreported sweep query failed")
		return 0
	}

	swept := 0
	for _, id := range ids {
		if err := s.escalateOne(ctx, id); err != nil {
			s.metrics.SweepErrors.Inc()
			s.log.Error().Err(err).Int64("battle_id", id).Msg("failed to escalate battle")
			continue
		}
		swept++
		s.metrics.BattlesEscalated.Inc()
	}
	return swept
}

func (s *Service) escalateOne(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, id)
	if err != nil {
		return ignoreGone(err)
	}
	if b.Status != StatusOpen && b.Status != StatusPlaying {
		return nil
	}
	if b.CreatorReport.Claim != "" && b.AcceptorReport.Claim != "" {
		return nil
	}

	now := time.Now()
	forceClaim(&b.CreatorReport, ClaimCancelled, "", now)
	forceClaim(&b.AcceptorReport, ClaimCancelled, "", now)
	b.Status = StatusConflict

	if err := s.writeReports(ctx, tx, b); err != nil {
		return err
	}
	if err := s.writeOutcome(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notifyOutcome(ctx, b)
	return nil
}

// SweepAgreedResults settles PLAYING battles whose slots already agree.
// Safety net for a live self-report that failed after writing its slot;
// normally disabled.
func (s *Service) SweepAgreedResults(ctx context.Context) int {
	ids, err := s.sweepCandidates(ctx, store.Psql.
		Select("id").From("battles").
		Where(sq.Eq{"status": StatusPlaying, "match_status": MatchPending}).
		Where(sq.NotEq{"creator_claim": ""}).
		Where(sq.NotEq{"acceptor_claim": ""}))
	if err != nil {
		s.log.Error().Err(err).Msg("agreed-result sweep query failed")
		return 0
	}

	swept := 0
	for _, id := range ids {
		if err := s.resolveOne(ctx, id); err != nil {
			s.metrics.SweepErrors.Inc()
			s.log.Error().Err(err).Int64("battle_id", id).Msg("failed to settle agreed battle")
			continue
		}
		swept++
	}
	return swept
}

func (s *Service) resolveOne(ctx context.Context, id int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	b, err := lockBattle(ctx, tx, id)
	if err != nil {
		return ignoreGone(err)
	}
	if b.Status != StatusPlaying || b.MatchStatus != MatchPending {
		return nil
	}
	if err := s.resolveLocked(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.notifyOutcome(ctx, b)
	return nil
}

func (s *Service) sweepCandidates(ctx context.Context, q sq.SelectBuilder) ([]int64, error) {
	rows, err := store.Query(ctx, s.pool, q.OrderBy("id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ignoreGone drops not-found errors: the battle was handled by a racing
// request between the scan and the lock.
func ignoreGone(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Code == apperr.CodeNotFound {
		return nil
	}
	return err
}
