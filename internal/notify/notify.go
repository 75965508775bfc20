package notify

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Notifier is a fire-and-forget sink. Delivery failures are logged and
// otherwise ignored; nothing in the battle or ledger paths depends on it.
type Notifier struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

func New(pool *pgxpool.Pool, log zerolog.Logger) *Notifier {
	return &Notifier{pool: pool, log: log}
}

func (n *Notifier) Push(ctx context.Context, userID int64, kind, message string) {
	_, err := n.pool.Exec(ctx,
		"INSERT INTO notifications(user_id, kind, message) VALUES ($1,$2,$3)",
		userID, kind, message,
	)
	if err != nil {
		n.log.Warn().Err(err).Int64("user_id", userID).Str("kind", kind).Msg("notification dropped")
	}
}

// Item is one row of a user's notification feed.
type Item struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// List returns the newest notifications for a user.
func (n *Notifier) List(ctx context.Context, userID int64) ([]Item, error) {
	rows, err := n.pool.Query(ctx, `
		SELECT id, kind, message, created_at
		FROM notifications WHERE user_id=$1
		ORDER BY id DESC LIMIT 100
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Kind, &it.Message, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Audit records who did what. Best effort, same as Push.
func (n *Notifier) Audit(ctx context.Context, actorID *int64, action, details string) {
	_, err := n.pool.Exec(ctx,
		"INSERT INTO audit_logs(actor_id, action, details) VALUES ($1,$2,$3)",
		actorID, action, details,
	)
	if err != nil {
		n.log.Warn().Err(err).Str("action", action).Msg("audit entry dropped")
	}
}
