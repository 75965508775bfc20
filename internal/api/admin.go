package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"battle-arena/internal/battle"
	"battle-arena/internal/config"
	"battle-arena/internal/wallet"
)

func AdminBattles(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.AdminList(c.Request.Context(), c.Query("status"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"battles": items})
	}
}

// AdminBattleDetail adds the per-party escrow holds to the battle row so the
// operator can see whose stake is still locked before ruling.
func AdminBattleDetail(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := battleID(c)
		if !ok {
			return
		}
		b, err := svc.Get(c.Request.Context(), id)
		if err != nil {
			writeErr(c, err)
			return
		}
		holds, err := svc.HoldAmounts(c.Request.Context(), id)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"battle": b, "holds": holds})
	}
}

func AdminResolveBattle(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := battleID(c)
		if !ok {
			return
		}
		var req struct {
			WinnerID  *int64 `json:"winner_id"`
			Cancelled bool   `json:"cancelled"`
			Reason    string `json:"reason"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		b, err := svc.AdminResolve(c.Request.Context(), uid(c), id, req.WinnerID, req.Cancelled, req.Reason)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, b)
	}
}

func AdminTransactions(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := svc.ListEntries(c.Request.Context(), 0, c.Query("status"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"transactions": entries})
	}
}

func AdminApproveTransaction(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(400, gin.H{"error": "bad transaction id"})
			return
		}
		if err := svc.ApproveTransaction(c.Request.Context(), uid(c), id); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"ok": true})
	}
}

func AdminRejectTransaction(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(400, gin.H{"error": "bad transaction id"})
			return
		}
		if err := svc.RejectTransaction(c.Request.Context(), uid(c), id); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"ok": true})
	}
}

func AdminAdjustment(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			UserID int64  `json:"user_id"`
			Amount int64  `json:"amount"`
			Kind   string `json:"kind"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		if err := svc.GrantAdjustment(c.Request.Context(), uid(c), req.UserID, req.Amount, req.Kind); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"ok": true})
	}
}

func AdminUsers(db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := db.Query(c.Request.Context(), `
			SELECT id, name, mobile_no, role, is_active,
				total_wallet_balance, cash_won, referral_earning, battles_played, created_at
			FROM users ORDER BY id DESC LIMIT 200
		`)
		if err != nil {
			writeErr(c, err)
			return
		}
		defer rows.Close()

		var users []gin.H
		for rows.Next() {
			var (
				id, twb, cashWon, referral, played int64
				name, mobile, role                 string
				active                             bool
				createdAt                          any
			)
			err := rows.Scan(&id, &name, &mobile, &role, &active, &twb, &cashWon, &referral, &played, &createdAt)
			if err != nil {
				writeErr(c, err)
				return
			}
			users = append(users, gin.H{
				"id": id, "name": name, "mobile_no": mobile, "role": role, "is_active": active,
				"total_wallet_balance": twb, "cash_won": cashWon,
				"referral_earning": referral, "battles_played": played, "created_at": createdAt,
			})
		}
		if err := rows.Err(); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"users": users})
	}
}

// AdminBlockUser toggles login access. A blocked player keeps their wallet;
// they just cannot sign in.
func AdminBlockUser(db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(400, gin.H{"error": "bad user id"})
			return
		}
		var req struct {
			Active bool `json:"is_active"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		tag, err := db.Exec(c.Request.Context(),
			"UPDATE users SET is_active=$1, updated_at=now() WHERE id=$2 AND role <> 'admin'",
			req.Active, id)
		if err != nil {
			writeErr(c, err)
			return
		}
		if tag.RowsAffected() == 0 {
			c.JSON(404, gin.H{"error": "user not found"})
			return
		}
		c.JSON(200, gin.H{"ok": true})
	}
}

func AdminGetSettings(settings *config.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := settings.Snapshot(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, snap)
	}
}

func AdminUpdateSettings(settings *config.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var snap config.Snapshot
		if err := c.BindJSON(&snap); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		if snap.CommissionPct < 0 || snap.CommissionPct > 100 ||
			snap.ReferralPct < 0 || snap.ReferralPct > 100 {
			c.JSON(400, gin.H{"error": "percentages must be between 0 and 100"})
			return
		}
		if err := settings.Update(c.Request.Context(), snap); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"ok": true})
	}
}
