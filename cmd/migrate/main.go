// Command migrate creates the Warbler tables and exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-warbler-go/internal/schema"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warbler-go/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	cfg := database.ConfigFromEnv()
	db, err := database.Open(cfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	start := time.Now()
	if err := schema.Ensure(ctx, db); err != nil {
		sugar.Fatalw("migration failed", "driver", cfg.Driver, "err", err)
	}
	sugar.Infow("schema up to date", "driver", cfg.Driver, "elapsed", time.Since(start))
}
