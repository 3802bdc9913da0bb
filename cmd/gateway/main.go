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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/lib/slogcustom"
	"github.com/mind-engage/mindengage-quiz/internal/stats"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

func main() {
	envFile := pflag.String("env-file", "", "dotenv file to load (default ./.env)")
	addr := pflag.String("addr", "", "listen address, overrides HTTP_ADDR")
	dbDriver := pflag.String("db-driver", "", "sqlite|postgres, overrides DB_DRIVER")
	dbDSN := pflag.String("db-dsn", "", "database DSN, overrides DB_DSN")
	pflag.Parse()

	cfg := config.Load(*envFile)
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}
	if *dbDriver != "" {
		cfg.DBDriver = *dbDriver
	}
	if *dbDSN != "" {
		cfg.DBDSN = *dbDSN
	}

	log := setupLogger(cfg)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	dbh, err := db.Open(openCtx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbh.Close()

	userRepo := users.NewRepo(dbh)
	if cfg.AdminPassHash != "" {
		if err := userRepo.EnsureAdmin(openCtx, cfg.AdminUser, cfg.AdminPassHash); err != nil {
			return err
		}
		log.Info("admin account ready", "username", cfg.AdminUser)
	} else {
		log.Warn("ADMIN_PASS_HASH not set, skipping admin bootstrap")
	}

	// --- Statistics cache ---
	var cache stats.Cache = stats.NopCache{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(openCtx).Err(); err != nil {
			log.Warn("redis unavailable, statistics cache disabled", "addr", cfg.RedisAddr, "err", err)
		} else {
			cache = stats.NewRedisCache(rdb, cfg.StatsCacheTTL)
			log.Info("statistics cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.StatsCacheTTL)
		}
	}

	svc := exam.NewService(exam.NewSQLStore(dbh), exam.WithCache(cache), exam.WithLogger(log))

	h := api.NewRouter(api.RouterDeps{
		Log:             log,
		Auth:            auth.NewAuthService(cfg.AuthHMACSecret),
		Tests:           svc,
		Users:           userRepo,
		DB:              dbh,
		CORSOrigins:     cfg.CORSOrigins(),
		EnableLocalAuth: cfg.EnableLocalAuth,
		DebugErrors:     cfg.DebugErrors,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func setupLogger(cfg config.Config) *slog.Logger {
	if cfg.Mode == config.ModeOnline {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	}
	return slog.New(slogcustom.NewHandler(os.Stdout, cfg.LogLevel))
}
