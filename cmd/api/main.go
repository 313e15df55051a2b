package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth"
	authrepo "github.com/ovaphlow/pitchfork/service-warbler-go/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/schema"
	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/utilities"
)

func main() {
	// best-effort: without a .env file the real environment is used
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-warbler-go")

	cfg := database.ConfigFromEnv()
	db, err := database.Open(cfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if os.Getenv("AUTO_MIGRATE") == "1" {
		if err := schema.Ensure(ctx, db); err != nil {
			sugar.Fatalf("ensure schema: %v", err)
		}
		sugar.Info("schema ensured")
	}

	ids, err := utilities.IDGeneratorFromEnv()
	if err != nil {
		sugar.Fatalf("id generator: %v", err)
	}

	var limiter *ratelimit.Limiter
	if rlCfg := ratelimit.ConfigFromEnv(); rlCfg.Enabled() {
		client, err := ratelimit.NewClient(ctx, rlCfg)
		if err != nil {
			sugar.Fatalf("redis: %v", err)
		}
		defer client.Close()
		limiter = ratelimit.New(client, rlCfg.MaxRequests, rlCfg.Window, sugar)
		sugar.Infow("login rate limiting enabled", "max", rlCfg.MaxRequests, "window", rlCfg.Window)
	}

	handler, err := router.RegisterRoutes(sugar, db, router.Options{
		Auth:    auth.ConfigFromEnv(),
		User:    user.ConfigFromEnv(),
		IDs:     ids,
		Limiter: limiter,
	})
	if err != nil {
		sugar.Fatalf("register routes: %v", err)
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8431"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", addr, "driver", cfg.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	// revoked tokens are only needed until they would have expired anyway
	go func() {
		revoked := authrepo.NewRevokedRepo(db)
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := revoked.PurgeExpired(ctx, now)
				if err != nil {
					sugar.Warnw("purge revoked tokens failed", "err", err)
					continue
				}
				if n > 0 {
					sugar.Debugw("purged revoked tokens", "count", n)
				}
			}
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
