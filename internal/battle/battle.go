package battle

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"battle-arena/internal/apperr"
)

// Lifecycle states. CLOSED is terminal; CONFLICT waits for an operator and
// never reverts to play.
const (
	StatusOpen     = "OPEN"
	StatusPlaying  = "PLAYING"
	StatusClosed   = "CLOSED"
	StatusConflict = "CONFLICT"
)

// Outcome of the match as a whole.
const (
	MatchPending   = "PENDING"
	MatchCompleted = "COMPLETED"
	MatchCancelled = "CANCELLED"
)

const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
)

// Claims a party may self-report.
const (
	ClaimWon       = "WON"
	ClaimLoss      = "LOSS"
	ClaimCancelled = "CANCELLED"
)

const (
	// MinEntryFee is also the unit: fees must be positive multiples of it.
	MinEntryFee = 50
	// MaxOpenBattles caps concurrently OPEN battles per creator.
	MaxOpenBattles = 2

	// NoAcceptorAge is how long an OPEN battle may sit without an acceptor
	// before the sweeper deletes it.
	NoAcceptorAge = 5 * time.Minute
	// UnreportedAge is how long a battle may sit without both self-reports
	// before the sweeper escalates it to CONFLICT.
	UnreportedAge = 45 * time.Minute
)

// Report is one party's self-report slot. Once Claim holds a terminal value
// the slot is immutable.
type Report struct {
	Claim        string     `json:"claim,omitempty"`
	Screenshot   string     `json:"screenshot,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	ReportedAt   *time.Time `json:"reported_at,omitempty"`
}

type Battle struct {
	ID              int64      `json:"id"`
	CreatedBy       int64      `json:"created_by"`
	AcceptedBy      *int64     `json:"accepted_by,omitempty"`
	EntryFee        int64      `json:"entry_fee"`
	WinnerAmount    int64      `json:"winner_amount"`
	CommissionPct   int64      `json:"commission_pct"`
	RoomNo          string     `json:"room_no,omitempty"`
	Status          string     `json:"status"`
	MatchStatus     string     `json:"match_status"`
	PaymentStatus   string     `json:"payment_status"`
	RequestAccepted bool       `json:"request_accepted"`
	Winner          *int64     `json:"winner,omitempty"`
	Loser           *int64     `json:"loser,omitempty"`
	CreatorReport   Report     `json:"creator_report"`
	AcceptorReport  Report     `json:"acceptor_report"`
	AcceptedAt      *time.Time `json:"accepted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// isParty reports whether id is one of the battle's two committed sides.
func (b *Battle) isParty(id int64) bool {
	if b.CreatedBy == id {
		return true
	}
	return b.AcceptedBy != nil && *b.AcceptedBy == id
}

func (b *Battle) reportFor(id int64) *Report {
	if b.CreatedBy == id {
		return &b.CreatorReport
	}
	if b.AcceptedBy != nil && *b.AcceptedBy == id {
		return &b.AcceptorReport
	}
	return nil
}

const battleColumns = `id, created_by, accepted_by, entry_fee, winner_amount, commission_pct,
	room_no, status, match_status, payment_status, request_accepted, winner_id, loser_id,
	creator_claim, creator_screenshot, creator_cancel_reason, creator_reported_at,
	acceptor_claim, acceptor_screenshot, acceptor_cancel_reason, acceptor_reported_at,
	accepted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBattle(row rowScanner) (*Battle, error) {
	var b Battle
	err := row.Scan(
		&b.ID, &b.CreatedBy, &b.AcceptedBy, &b.EntryFee, &b.WinnerAmount, &b.CommissionPct,
		&b.RoomNo, &b.Status, &b.MatchStatus, &b.PaymentStatus, &b.RequestAccepted,
		&b.Winner, &b.Loser,
		&b.CreatorReport.Claim, &b.CreatorReport.Screenshot, &b.CreatorReport.CancelReason, &b.CreatorReport.ReportedAt,
		&b.AcceptorReport.Claim, &b.AcceptorReport.Screenshot, &b.AcceptorReport.CancelReason, &b.AcceptorReport.ReportedAt,
		&b.AcceptedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("battle not found")
		}
		return nil, err
	}
	return &b, nil
}

// lockBattle re-fetches the battle under FOR UPDATE so every transition is a
// read-modify-write against the current persisted state, never a stale copy.
func lockBattle(ctx context.Context, tx pgx.Tx, id int64) (*Battle, error) {
	row := tx.QueryRow(ctx, "SELECT "+battleColumns+" FROM battles WHERE id=$1 FOR UPDATE", id)
	return scanBattle(row)
}
