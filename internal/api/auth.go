package api

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"battle-arena/internal/notify"
)

// Register creates a player account. A referral code of an existing player may
// be attached; the link is what earns the referrer a cut of this player's
// future battle winnings.
func Register(db *pgxpool.Pool, notifier *notify.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name         string `json:"name"`
			MobileNo     string `json:"mobile_no"`
			Password     string `json:"password"`
			ReferralCode string `json:"referral_code"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		if req.Name == "" || req.MobileNo == "" || req.Password == "" {
			c.JSON(400, gin.H{"error": "fill all fields"})
			return
		}
		if len(req.Password) < 6 {
			c.JSON(400, gin.H{"error": "password too short"})
			return
		}

		ctx := c.Request.Context()

		var referredBy *int64
		if req.ReferralCode != "" {
			var refID int64
			err := db.QueryRow(ctx,
				"SELECT id FROM users WHERE referral_code=$1", req.ReferralCode,
			).Scan(&refID)
			if err != nil {
				c.JSON(400, gin.H{"error": "unknown referral code"})
				return
			}
			referredBy = &refID
		}

		hash, _ := bcrypt.GenerateFromPassword([]byte(req.Password), 10)
		code := strings.ToUpper(uuid.NewString()[:8])

		var id int64
		err := db.QueryRow(ctx, `
			INSERT INTO users(name, mobile_no, pass_hash, role, referral_code, referred_by)
			VALUES ($1,$2,$3,'user',$4,$5) RETURNING id
		`, req.Name, req.MobileNo, string(hash), code, referredBy).Scan(&id)
		if err != nil {
			c.JSON(409, gin.H{"error": "mobile number already registered"})
			return
		}

		notifier.Push(ctx, id, "welcome", "welcome to the arena, your wallet is ready")
		if referredBy != nil {
			notifier.Push(ctx, *referredBy, "referral", "a new player joined with your referral code")
		}
		notifier.Audit(ctx, &id, "register", "user registered")
		c.JSON(200, gin.H{"ok": true, "referral_code": code})
	}
}

func Login(db *pgxpool.Pool, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			MobileNo string `json:"mobile_no"`
			Password string `json:"password"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}

		var (
			id       int64
			role     string
			passHash string
			active   bool
		)
		err := db.QueryRow(context.Background(),
			"SELECT id, role, pass_hash, is_active FROM users WHERE mobile_no=$1",
			req.MobileNo,
		).Scan(&id, &role, &passHash, &active)
		if err != nil {
			c.JSON(401, gin.H{"error": "invalid credentials"})
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(passHash), []byte(req.Password)) != nil {
			c.JSON(401, gin.H{"error": "invalid credentials"})
			return
		}
		if !active {
			c.JSON(403, gin.H{"error": "account is blocked"})
			return
		}

		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
			UserID: id,
			Role:   role,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				Issuer:    "battle-arena",
			},
		})
		s, _ := tok.SignedString([]byte(secret))

		secure := os.Getenv("COOKIE_SECURE") == "1"
		c.SetCookie(cookieName, s, 86400, "/", "", secure, true)
		c.JSON(200, gin.H{"ok": true, "role": role})
	}
}

func Logout() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.SetCookie(cookieName, "", -1, "/", "", false, true)
		c.JSON(200, gin.H{"ok": true})
	}
}

// Me returns the caller's profile together with the wallet snapshot the
// client shows on every screen.
func Me(db *pgxpool.Pool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uid(c)
		var (
			name, mobile, role, code string
			total, cashWon, twb      int64
			referral, played         int64
		)
		err := db.QueryRow(c.Request.Context(), `
			SELECT name, mobile_no, role, referral_code,
				total_balance, cash_won, total_wallet_balance, referral_earning, battles_played
			FROM users WHERE id=$1
		`, id).Scan(&name, &mobile, &role, &code, &total, &cashWon, &twb, &referral, &played)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				c.JSON(404, gin.H{"error": "user not found"})
				return
			}
			c.JSON(500, gin.H{"error": "internal error"})
			return
		}
		c.JSON(200, gin.H{
			"id": id, "name": name, "mobile_no": mobile, "role": role,
			"referral_code": code,
			"total_balance": total, "cash_won": cashWon,
			"total_wallet_balance": twb, "referral_earning": referral,
			"battles_played": played,
		})
	}
}
