package api

import (
	"github.com/gin-gonic/gin"

	"battle-arena/internal/config"
	"battle-arena/internal/notify"
	"battle-arena/internal/wallet"
)

func WalletBalance(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		b, err := svc.GetBalance(c.Request.Context(), uid(c))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, b)
	}
}

// RequestDeposit records a UPI deposit claim for operator review. The payment
// rails are manual: the player pays the configured UPI ID out of band and
// submits the UTR number plus a screenshot here.
func RequestDeposit(svc *wallet.Service, settings *config.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Amount     int64  `json:"amount"`
			UTRNo      string `json:"utr_no"`
			Screenshot string `json:"screenshot"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		if req.UTRNo == "" {
			c.JSON(400, gin.H{"error": "utr number required"})
			return
		}

		snap, err := settings.Snapshot(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		err = svc.RequestDeposit(c.Request.Context(), uid(c), req.Amount, req.UTRNo, req.Screenshot, snap.UPIID)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"ok": true})
	}
}

func RequestWithdrawal(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Amount int64  `json:"amount"`
			Method string `json:"payment_method"`
			UPIID  string `json:"upi_id"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		if req.UPIID == "" {
			c.JSON(400, gin.H{"error": "upi id required"})
			return
		}
		if req.Method == "" {
			req.Method = "upi"
		}
		err := svc.RequestWithdrawal(c.Request.Context(), uid(c), req.Amount, req.Method, req.UPIID)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"ok": true})
	}
}

func RedeemReferral(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Amount int64 `json:"amount"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		if err := svc.RedeemReferralEarnings(c.Request.Context(), uid(c), req.Amount); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"ok": true})
	}
}

func Transactions(svc *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := svc.ListEntries(c.Request.Context(), uid(c), c.Query("status"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"transactions": entries})
	}
}

func Notifications(notifier *notify.Notifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := notifier.List(c.Request.Context(), uid(c))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"notifications": items})
	}
}

// Settings exposes the public part of the platform settings: payment
// destination and support links. Percentages stay admin-only.
func Settings(settings *config.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := settings.Snapshot(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{
			"upi_id":        snap.UPIID,
			"upi_qr_code":   snap.UPIQRCode,
			"whatsapp_link": snap.WhatsAppLink,
			"telegram_link": snap.TelegramLink,
		})
	}
}
