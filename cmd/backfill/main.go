// Command backfill recomputes balance_before/balance_after for every closed
// trade by replaying realized PnL in close order. Run it with the agent
// stopped.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"SpotAgent/internal/di"
	internalrepo "SpotAgent/internal/repository"
	"SpotAgent/internal/usecase"
	"SpotAgent/pkg/config"
	"SpotAgent/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	start := flag.Float64("start-balance", 0, "balance before the first trade; 0 uses the first trade's recorded balance")
	dryRun := flag.Bool("dry-run", true, "compute and print without writing")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, closeLog, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer closeLog()

	client, closeDB, err := di.ProvidePostgresClient(cfg)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer closeDB()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	bf := usecase.NewBalanceBackfill(internalrepo.NewPostgresTradeStore(client), l)
	res, err := bf.Run(ctx, *start, *dryRun)
	if err != nil {
		l.Error("backfill failed", logger.Error(err))
		closeDB()
		closeLog()
		os.Exit(1)
	}
	for _, u := range res.Updates {
		log.Printf("trade=%d before=%.8f after=%.8f net=%+.8f", u.TradeID, u.Before, u.After, u.Net)
	}
	log.Printf("trades=%d start=%.8f end=%.8f applied=%t",
		len(res.Updates), res.StartBalance, res.EndBalance, res.Applied)
}
