package battle

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"battle-arena/internal/store"
)

// ListItem is the board/history row: a battle plus the party names and the
// viewer-dependent bits the client renders from.
type ListItem struct {
	Battle
	CreatorName  string `json:"creator_name"`
	AcceptorName string `json:"acceptor_name,omitempty"`
	WinStatus    string `json:"win_status,omitempty"`
}

// Board returns what a player sees on the battle screen: open offers first,
// then running and disputed matches.
type Board struct {
	Open []ListItem `json:"open_battles"`
	Live []ListItem `json:"live_battles"`
}

const listColumns = `b.id, b.created_by, b.accepted_by, b.entry_fee, b.winner_amount, b.commission_pct,
	b.room_no, b.status, b.match_status, b.payment_status, b.request_accepted, b.winner_id, b.loser_id,
	b.creator_claim, b.creator_screenshot, b.creator_cancel_reason, b.creator_reported_at,
	b.acceptor_claim, b.acceptor_screenshot, b.acceptor_cancel_reason, b.acceptor_reported_at,
	b.accepted_at, b.created_at, b.updated_at,
	cu.name, COALESCE(au.name, '')`

func (s *Service) listQuery() sq.SelectBuilder {
	return store.Psql.
		Select(listColumns).
		From("battles b").
		Join("users cu ON cu.id = b.created_by").
		LeftJoin("users au ON au.id = b.accepted_by").
		OrderBy("b.created_at DESC")
}

func (s *Service) scanList(ctx context.Context, q sq.SelectBuilder) ([]ListItem, error) {
	rows, err := store.Query(ctx, s.pool, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ListItem
	for rows.Next() {
		var it ListItem
		err := rows.Scan(
			&it.ID, &it.CreatedBy, &it.AcceptedBy, &it.EntryFee, &it.WinnerAmount, &it.CommissionPct,
			&it.RoomNo, &it.Status, &it.MatchStatus, &it.PaymentStatus, &it.RequestAccepted,
			&it.Winner, &it.Loser,
			&it.CreatorReport.Claim, &it.CreatorReport.Screenshot, &it.CreatorReport.CancelReason, &it.CreatorReport.ReportedAt,
			&it.AcceptorReport.Claim, &it.AcceptorReport.Screenshot, &it.AcceptorReport.CancelReason, &it.AcceptorReport.ReportedAt,
			&it.AcceptedAt, &it.CreatedAt, &it.UpdatedAt,
			&it.CreatorName, &it.AcceptorName,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ListBoard splits the active battles into open offers and live matches.
func (s *Service) ListBoard(ctx context.Context) (*Board, error) {
	items, err := s.scanList(ctx, s.listQuery().
		Where(sq.Eq{"b.status": []string{StatusOpen, StatusPlaying, StatusConflict}}))
	if err != nil {
		return nil, err
	}

	board := &Board{}
	for _, it := range items {
		if it.Status == StatusOpen {
			board.Open = append(board.Open, it)
		} else {
			board.Live = append(board.Live, it)
		}
	}
	return board, nil
}

// History lists every battle the player took part in, tagged with the
// player's own result.
func (s *Service) History(ctx context.Context, playerID int64) ([]ListItem, error) {
	items, err := s.scanList(ctx, s.listQuery().
		Where(sq.Or{sq.Eq{"b.created_by": playerID}, sq.Eq{"b.accepted_by": playerID}}))
	if err != nil {
		return nil, err
	}

	for i := range items {
		switch {
		case items[i].Winner == nil:
			items[i].WinStatus = "PENDING"
		case *items[i].Winner == playerID:
			items[i].WinStatus = "WIN"
		default:
			items[i].WinStatus = "LOSE"
		}
	}
	return items, nil
}

// AdminList filters battles by status for the operator console.
func (s *Service) AdminList(ctx context.Context, status string) ([]ListItem, error) {
	q := s.listQuery()
	if status != "" && status != "all" {
		q = q.Where(sq.Eq{"b.status": status})
	}
	return s.scanList(ctx, q.Limit(200))
}

// HoldAmounts reports, per party, the entry fee still held in escrow for a
// battle: escrow-withdraw entries that have not been settled or voided.
func (s *Service) HoldAmounts(ctx context.Context, battleID int64) (map[int64]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.user_id, t.amount
		FROM transactions t
		JOIN battles b ON b.id = t.battle_id
		WHERE t.battle_id=$1 AND t.type='withdraw' AND t.is_battle AND b.status <> $2
	`, battleID, StatusClosed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	holds := map[int64]int64{}
	for rows.Next() {
		var userID, amount int64
		if err := rows.Scan(&userID, &amount); err != nil {
			return nil, err
		}
		holds[userID] += amount
	}
	return holds, rows.Err()
}
