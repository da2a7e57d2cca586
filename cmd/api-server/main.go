package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"manhwahub/internal/anilist"
	"manhwahub/internal/auth"
	"manhwahub/internal/cache"
	"manhwahub/internal/links"
	"manhwahub/internal/mangadex"
	"manhwahub/internal/manhwa"
	"manhwahub/internal/match"
	"manhwahub/internal/search"
	synchub "manhwahub/internal/sync"
	"manhwahub/internal/upstream"
	"manhwahub/pkg/database"
	"manhwahub/pkg/utils"
)

const cacheSweepInterval = 10 * time.Minute

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dbCfg := database.DefaultConfig()
	db := database.MustOpen(dbCfg)
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Tier 1 is optional: without redis the service runs on sqlite alone.
	var fast cache.KeyValueStore
	redisCfg := utils.LoadRedisConfig()
	if store, err := cache.NewRedisStore(redisCfg); err != nil {
		logger.Warn("redis unavailable, running without tier-1 cache",
			slog.String("addr", redisCfg.Addr), slog.Any("error", err))
	} else {
		fast = store
	}
	sqliteStore := cache.NewSQLiteStore(db)
	tiered := cache.NewTiered(fast, sqliteStore, logger)

	upCfg := utils.LoadUpstreamConfig()
	alExec := upstream.NewExecutor("anilist", upstream.NewLimiter(upCfg.AniListRPS), logger)
	alExec.MaxAttempts = upCfg.MaxAttempts
	mdExec := upstream.NewExecutor("mangadex", upstream.NewLimiter(upCfg.MangaDexRPS), logger)
	mdExec.MaxAttempts = upCfg.MaxAttempts

	alClient := anilist.NewClient(upCfg, alExec, tiered, logger)
	mdClient := mangadex.NewClient(upCfg, mdExec, tiered, logger)

	// Forward matches AniList entries against MangaDex, reverse the
	// other way around.
	forward := match.NewPipeline(mdClient, logger)
	reverse := match.NewPipeline(alClient, logger)

	searchSvc := search.NewService(mdClient, alClient, mdClient, logger)

	hub := synchub.NewHub(logger)

	linksRepo := links.NewRepository(db)
	linksSvc := links.NewService(linksRepo, alClient, mdClient, forward, reverse, hub, tiered, logger)

	authCfg := utils.LoadAuthConfig()
	tokenSvc := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.JWTDuration,
	}
	authRepo := auth.NewRepo(db)

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		stats := hub.Stats()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":     "not_ready",
				"db_error":   err.Error(),
				"redis":      fast != nil,
				"ws_clients": stats.Clients,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"db":         dbCfg.Path,
			"redis":      fast != nil,
			"ws_clients": stats.Clients,
			"ws_users":   stats.Users,
		})
	})

	authHandler := auth.NewHandler(authRepo, tokenSvc, alClient)
	authHandler.RegisterRoutes(router.Group("/auth"))

	// Catalog browsing is public.
	manhwaHandler := manhwa.NewHandler(searchSvc, alClient, mdClient)
	manhwaHandler.RegisterRoutes(router.Group("/manhwa"))

	// Link management and user lists require a session.
	mw := auth.AuthMiddleware(tokenSvc, authRepo)

	manhwaProtected := router.Group("/manhwa")
	manhwaProtected.Use(mw)
	usersProtected := router.Group("/users")
	usersProtected.Use(mw)

	linksHandler := links.NewHandler(linksSvc, authRepo, alClient, logger)
	linksHandler.RegisterRoutes(manhwaProtected, usersProtected)

	wsGroup := router.Group("/ws")
	wsGroup.Use(mw)
	wsGroup.GET("", synchub.WSHandler(hub, auth.UserID))

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweepExpired(sweepCtx, sqliteStore, logger)

	srvCfg := utils.LoadServerConfig()
	httpSrv := &http.Server{
		Addr:    srvCfg.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", srvCfg.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("server error", slog.Any("error", err))
	}

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", slog.Any("error", err))
	}
	logger.Info("server stopped")
}

// sweepExpired drops expired tier-2 documents on an interval. Reads
// never delete expired rows so stale fallbacks stay available between
// sweeps.
func sweepExpired(ctx context.Context, store *cache.SQLiteStore, logger *slog.Logger) {
	ticker := time.NewTicker(cacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.DeleteExpired(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("cache sweep failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				logger.Debug("cache sweep", slog.Int64("removed", n))
			}
		}
	}
}
