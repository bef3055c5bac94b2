package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibflow/ingestd/internal/backfill"
	"github.com/ibflow/ingestd/internal/broker"
	"github.com/ibflow/ingestd/internal/indicator"
	"github.com/ibflow/ingestd/internal/persistence"
	"github.com/ibflow/ingestd/internal/store"
)

// dailyCmd runs one backfill pass over the configured symbol list
// directly, bypassing the supervisor's market-hours gating — a quick
// manual test run, per spec.md §6's "for test runs" mode.
var dailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Run one daily-bar backfill pass for the configured symbol list",
	RunE:  runDaily,
}

func init() {
	rootCmd.AddCommand(dailyCmd)
}

func runDaily(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	if len(cfg.Symbols.Backfill) == 0 {
		return fmt.Errorf("daily: [symbols] backfill is not configured")
	}

	st, err := store.New(cfg, log)
	if err != nil {
		return fmt.Errorf("daily: open store: %w", err)
	}
	defer st.Close()

	kernel := indicator.NewKernel()
	queue := persistence.NewQueue(st, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("daily: start persistence queue: %w", err)
	}
	defer queue.Stop()

	driver := backfill.NewDriver(cfg.Symbols.Backfill, true, broker.NewIBGateway(), cfg.Broker.Host, cfg.Broker.Port, kernel, queue, st, log)
	if !driver.Connect(ctx) {
		return fmt.Errorf("daily: connect to broker gateway failed")
	}
	defer driver.Disconnect()

	go func() {
		waitForSignal(log)
		cancel()
	}()

	log.WithField("symbols", cfg.Symbols.Backfill).Info("daily backfill pass starting")
	return driver.Run(ctx)
}
