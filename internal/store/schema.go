package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the schema. Statements are idempotent so restarts are safe.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                   BIGSERIAL PRIMARY KEY,
		name                 TEXT NOT NULL DEFAULT 'Anonymous Player',
		mobile_no            TEXT NOT NULL UNIQUE,
		email                TEXT,
		pass_hash            TEXT NOT NULL,
		role                 TEXT NOT NULL DEFAULT 'user',
		is_active            BOOLEAN NOT NULL DEFAULT TRUE,
		referral_code        TEXT UNIQUE,
		referred_by          BIGINT REFERENCES users(id),
		total_balance        BIGINT NOT NULL DEFAULT 0,
		cash_won             BIGINT NOT NULL DEFAULT 0,
		total_wallet_balance BIGINT NOT NULL DEFAULT 0,
		referral_earning     BIGINT NOT NULL DEFAULT 0,
		bonus                BIGINT NOT NULL DEFAULT 0,
		penalty              BIGINT NOT NULL DEFAULT 0,
		battles_played       BIGINT NOT NULL DEFAULT 0,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT wallet_parts CHECK (total_wallet_balance = total_balance + cash_won)
	)`,

	`CREATE TABLE IF NOT EXISTS battles (
		id                     BIGSERIAL PRIMARY KEY,
		created_by             BIGINT NOT NULL REFERENCES users(id),
		accepted_by            BIGINT REFERENCES users(id),
		entry_fee              BIGINT NOT NULL,
		winner_amount          BIGINT NOT NULL,
		commission_pct         BIGINT NOT NULL,
		room_no                TEXT NOT NULL DEFAULT '',
		status                 TEXT NOT NULL DEFAULT 'OPEN',
		match_status           TEXT NOT NULL DEFAULT 'PENDING',
		payment_status         TEXT NOT NULL DEFAULT 'PENDING',
		request_accepted       BOOLEAN NOT NULL DEFAULT FALSE,
		winner_id              BIGINT REFERENCES users(id),
		loser_id               BIGINT REFERENCES users(id),
		creator_claim          TEXT NOT NULL DEFAULT '',
		creator_screenshot     TEXT NOT NULL DEFAULT '',
		creator_cancel_reason  TEXT NOT NULL DEFAULT '',
		creator_reported_at    TIMESTAMPTZ,
		acceptor_claim         TEXT NOT NULL DEFAULT '',
		acceptor_screenshot    TEXT NOT NULL DEFAULT '',
		acceptor_cancel_reason TEXT NOT NULL DEFAULT '',
		acceptor_reported_at   TIMESTAMPTZ,
		accepted_at            TIMESTAMPTZ,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_battles_status ON battles(status)`,
	`CREATE INDEX IF NOT EXISTS idx_battles_created_by ON battles(created_by)`,
	`CREATE INDEX IF NOT EXISTS idx_battles_accepted_by ON battles(accepted_by)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id              BIGSERIAL PRIMARY KEY,
		user_id         BIGINT NOT NULL REFERENCES users(id),
		battle_id       BIGINT,
		type            TEXT NOT NULL,
		amount          BIGINT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		is_battle       BOOLEAN NOT NULL DEFAULT FALSE,
		is_won_cash     BOOLEAN NOT NULL DEFAULT FALSE,
		is_referral     BOOLEAN NOT NULL DEFAULT FALSE,
		closing_balance BIGINT NOT NULL DEFAULT 0,
		payment_method  TEXT NOT NULL DEFAULT '',
		upi_id          TEXT NOT NULL DEFAULT '',
		utr_no          TEXT NOT NULL DEFAULT '',
		screenshot      TEXT NOT NULL DEFAULT '',
		admin_upi_id    TEXT NOT NULL DEFAULT '',
		approved_by     BIGINT REFERENCES users(id),
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_battle ON transactions(battle_id)`,

	`CREATE TABLE IF NOT EXISTS battle_commissions (
		id             BIGSERIAL PRIMARY KEY,
		battle_id      BIGINT NOT NULL,
		commission_pct BIGINT NOT NULL,
		amount         BIGINT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		id             BIGSERIAL PRIMARY KEY,
		commission_pct BIGINT NOT NULL DEFAULT 20,
		referral_pct   BIGINT NOT NULL DEFAULT 2,
		upi_id         TEXT NOT NULL DEFAULT '',
		upi_qr_code    TEXT NOT NULL DEFAULT '',
		whatsapp_link  TEXT NOT NULL DEFAULT '',
		telegram_link  TEXT NOT NULL DEFAULT '',
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS notifications (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL,
		kind       TEXT NOT NULL,
		message    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS audit_logs (
		id         BIGSERIAL PRIMARY KEY,
		actor_id   BIGINT,
		action     TEXT NOT NULL,
		details    TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}
