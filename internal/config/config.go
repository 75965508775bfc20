package config

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Defaults used when the settings row has not been created yet.
const (
	DefaultCommissionPct = 20
	DefaultReferralPct   = 2
)

// Snapshot is an immutable read of the admin-controlled settings row.
// Commission is read at battle creation, referral percentage at settlement;
// callers pass the snapshot around instead of re-reading ambient state.
type Snapshot struct {
	CommissionPct int64  `json:"commission_pct"`
	ReferralPct   int64  `json:"referral_pct"`
	UPIID         string `json:"upi_id"`
	UPIQRCode     string `json:"upi_qr_code"`
	WhatsAppLink  string `json:"whatsapp_link"`
	TelegramLink  string `json:"telegram_link"`
}

type Provider struct {
	pool *pgxpool.Pool
}

func NewProvider(pool *pgxpool.Pool) *Provider {
	return &Provider{pool: pool}
}

func (p *Provider) Snapshot(ctx context.Context) (Snapshot, error) {
	s := Snapshot{CommissionPct: DefaultCommissionPct, ReferralPct: DefaultReferralPct}
	err := p.pool.QueryRow(ctx, `
		SELECT commission_pct, referral_pct, upi_id, upi_qr_code, whatsapp_link, telegram_link
		FROM settings ORDER BY id LIMIT 1
	`).Scan(&s.CommissionPct, &s.ReferralPct, &s.UPIID, &s.UPIQRCode, &s.WhatsAppLink, &s.TelegramLink)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s, nil
		}
		return Snapshot{}, err
	}
	return s, nil
}

// Update upserts the single settings row.
func (p *Provider) Update(ctx context.Context, s Snapshot) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE settings SET commission_pct=$1, referral_pct=$2, upi_id=$3,
			upi_qr_code=$4, whatsapp_link=$5, telegram_link=$6, updated_at=now()
		WHERE id = (SELECT id FROM settings ORDER BY id LIMIT 1)
	`, s.CommissionPct, s.ReferralPct, s.UPIID, s.UPIQRCode, s.WhatsAppLink, s.TelegramLink)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		_, err = p.pool.Exec(ctx, `
			INSERT INTO settings (commission_pct, referral_pct, upi_id, upi_qr_code, whatsapp_link, telegram_link)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, s.CommissionPct, s.ReferralPct, s.UPIID, s.UPIQRCode, s.WhatsAppLink, s.TelegramLink)
	}
	return err
}
