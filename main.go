package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"battle-arena/internal/api"
	"battle-arena/internal/battle"
	"battle-arena/internal/config"
	"battle-arena/internal/notify"
	"battle-arena/internal/observability"
	"battle-arena/internal/store"
	"battle-arena/internal/sweeper"
	"battle-arena/internal/wallet"
)

func main() {
	log := observability.NewLogger("main")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	pool := store.MustPool(dbURL)
	defer pool.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	settings := config.NewProvider(pool)
	notifier := notify.New(pool, observability.NewLogger("notify"))
	wallets := wallet.NewService(pool, notifier, observability.NewLogger("wallet"))
	battles := battle.NewService(pool, settings, notifier, observability.NewLogger("battle"), metrics)

	sweepInterval := time.Minute
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			sweepInterval = d
		}
	}
	sweepAgreed := os.Getenv("SWEEP_AGREED") == "1"
	sw := sweeper.New(battles, observability.NewLogger("sweeper"), metrics, sweepInterval, sweepAgreed)
	go sw.Run(ctx)

	r := gin.Default()
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	v1 := r.Group("/api")
	{
		v1.POST("/auth/register", api.Register(pool, notifier))
		v1.POST("/auth/login", api.Login(pool, secret))
		v1.POST("/auth/logout", api.Logout())
		v1.GET("/me", api.Auth(secret), api.Me(pool))

		v1.GET("/settings", api.Settings(settings))

		authed := v1.Group("", api.Auth(secret))
		{
			authed.GET("/battles", api.BattleBoard(battles))
			authed.POST("/battles", api.CreateBattle(battles))
			authed.GET("/battles/:id", api.BattleDetail(battles))
			authed.POST("/battles/:id/join", api.RequestJoin(battles))
			authed.POST("/battles/:id/confirm", api.ConfirmJoin(battles))
			authed.POST("/battles/:id/reject", api.RejectJoin(battles))
			authed.POST("/battles/:id/start", api.StartBattle(battles))
			authed.POST("/battles/:id/room", api.EnterRoom(battles))
			authed.POST("/battles/:id/result", api.SelfReport(battles))
			authed.DELETE("/battles/:id", api.DeleteBattle(battles))
			authed.GET("/history", api.BattleHistory(battles))

			authed.GET("/wallet", api.WalletBalance(wallets))
			authed.POST("/wallet/deposit", api.RequestDeposit(wallets, settings))
			authed.POST("/wallet/withdraw", api.RequestWithdrawal(wallets))
			authed.POST("/wallet/referral/redeem", api.RedeemReferral(wallets))
			authed.GET("/transactions", api.Transactions(wallets))
			authed.GET("/notifications", api.Notifications(notifier))
		}

		admin := v1.Group("/admin", api.Auth(secret), api.RequireAdmin())
		{
			admin.GET("/battles", api.AdminBattles(battles))
			admin.GET("/battles/:id", api.AdminBattleDetail(battles))
			admin.POST("/battles/:id/resolve", api.AdminResolveBattle(battles))

			admin.GET("/transactions", api.AdminTransactions(wallets))
			admin.POST("/transactions/:id/approve", api.AdminApproveTransaction(wallets))
			admin.POST("/transactions/:id/reject", api.AdminRejectTransaction(wallets))
			admin.POST("/adjustments", api.AdminAdjustment(wallets))

			admin.GET("/users", api.AdminUsers(pool))
			admin.POST("/users/:id/block", api.AdminBlockUser(pool))

			admin.GET("/settings", api.AdminGetSettings(settings))
			admin.PUT("/settings", api.AdminUpdateSettings(settings))
		}
	}

	srv := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		log.Info().Str("port", port).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
