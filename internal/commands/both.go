package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ibflow/ingestd/internal/aggregator"
	"github.com/ibflow/ingestd/internal/backfill"
	"github.com/ibflow/ingestd/internal/broker"
	"github.com/ibflow/ingestd/internal/indicator"
	"github.com/ibflow/ingestd/internal/persistence"
	"github.com/ibflow/ingestd/internal/shm"
	"github.com/ibflow/ingestd/internal/store"
	"github.com/ibflow/ingestd/internal/supervisor"
)

// bothCmd runs the production shape: the realtime aggregator and the
// daily backfill driver, each market-hours gated by the supervisor
// (spec.md §4.8), until SIGINT or SIGTERM.
var bothCmd = &cobra.Command{
	Use:   "both",
	Short: "Run the realtime feed and the daily backfill driver under the market-hours supervisor",
	RunE:  runBoth,
}

func init() {
	rootCmd.AddCommand(bothCmd)
}

func runBoth(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	st, err := store.New(cfg, log)
	if err != nil {
		return fmt.Errorf("both: open store: %w", err)
	}
	defer st.Close()

	shmWriter, err := shm.Open(cfg.ShmRegion)
	if err != nil {
		return fmt.Errorf("both: open shared memory: %w", err)
	}
	defer shmWriter.Close()

	queue := persistence.NewQueue(st, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("both: start persistence queue: %w", err)
	}
	defer queue.Stop()

	var realtimeTask supervisor.RealtimeTask
	if cfg.Symbols.Realtime != "" {
		realtimeTask = aggregator.NewRealtime(cfg.Symbols.Realtime, broker.NewIBGateway(), cfg.Broker.Host, cfg.Broker.Port, indicator.NewKernel(), queue, shmWriter, log)
	} else {
		log.Warn("[symbols] realtime not configured, realtime feed disabled")
	}

	var backfillTask supervisor.BackfillTask
	if len(cfg.Symbols.Backfill) > 0 {
		backfillTask = backfill.NewDriver(cfg.Symbols.Backfill, true, broker.NewIBGateway(), cfg.Broker.Host, cfg.Broker.Port, indicator.NewKernel(), queue, st, log)
	} else {
		log.Warn("[symbols] backfill not configured, daily backfill disabled")
	}

	super := supervisor.New(realtimeTask, backfillTask, log)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-interrupt
		log.WithField("signal", sig.String()).Info("shutdown signal received")
		cancel()
	}()

	log.Info("supervisor starting")
	super.Run(ctx)
	return nil
}
