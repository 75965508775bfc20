package api

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"battle-arena/internal/battle"
)

func battleID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(400, gin.H{"error": "bad battle id"})
		return 0, false
	}
	return id, true
}

func CreateBattle(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Amount int64 `json:"amount"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		b, err := svc.Create(c.Request.Context(), uid(c), req.Amount)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, b)
	}
}

func BattleBoard(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		board, err := svc.ListBoard(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, board)
	}
}

func BattleDetail(svc *battle.Service) gin.HandlerFunc {
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
		c.JSON(200, b)
	}
}

func RequestJoin(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := battleID(c)
		if !ok {
			return
		}
		b, err := svc.RequestJoin(c.Request.Context(), uid(c), id)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, b)
	}
}

func ConfirmJoin(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := battleID(c)
		if !ok {
			return
		}
		b, err := svc.ConfirmJoin(c.Request.Context(), uid(c), id)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, b)
	}
}

func RejectJoin(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := battleID(c)
		if !ok {
			return
		}
		b, err := svc.RejectJoin(c.Request.Context(), uid(c), id)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, b)
	}
}

func StartBattle(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := battleID(c)
		if !ok {
			return
		}
		b, err := svc.Start(c.Request.Context(), uid(c), id)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, b)
	}
}

func DeleteBattle(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := battleID(c)
		if !ok {
			return
		}
		if err := svc.Delete(c.Request.Context(), uid(c), id); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"ok": true})
	}
}

func EnterRoom(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := battleID(c)
		if !ok {
			return
		}
		var req struct {
			RoomNo string `json:"room_no"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		if err := svc.EnterRoom(c.Request.Context(), uid(c), id, req.RoomNo); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"ok": true})
	}
}

func SelfReport(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := battleID(c)
		if !ok {
			return
		}
		var req struct {
			Claim        string `json:"claim"`
			Screenshot   string `json:"screenshot"`
			CancelReason string `json:"cancel_reason"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "bad json"})
			return
		}
		b, err := svc.SelfReport(c.Request.Context(), uid(c), id, req.Claim, req.Screenshot, req.CancelReason)
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, b)
	}
}

func BattleHistory(svc *battle.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		items, err := svc.History(c.Request.Context(), uid(c))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(200, gin.H{"battles": items})
	}
}
