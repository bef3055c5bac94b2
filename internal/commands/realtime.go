package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ibflow/ingestd/internal/aggregator"
	"github.com/ibflow/ingestd/internal/broker"
	"github.com/ibflow/ingestd/internal/indicator"
	"github.com/ibflow/ingestd/internal/persistence"
	"github.com/ibflow/ingestd/internal/shm"
	"github.com/ibflow/ingestd/internal/store"
)

// realtimeCmd runs the realtime aggregator directly against the
// configured symbol, bypassing the supervisor's market-hours gating —
// a quick manual test run, per spec.md §6's "for test runs" mode.
var realtimeCmd = &cobra.Command{
	Use:   "realtime",
	Short: "Run the realtime aggregator for the configured symbol until stopped",
	RunE:  runRealtime,
}

func init() {
	rootCmd.AddCommand(realtimeCmd)
}

func runRealtime(cmd *cobra.Command, args []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	if cfg.Symbols.Realtime == "" {
		return fmt.Errorf("realtime: [symbols] realtime is not configured")
	}

	st, err := store.New(cfg, log)
	if err != nil {
		return fmt.Errorf("realtime: open store: %w", err)
	}
	defer st.Close()

	shmWriter, err := shm.Open(cfg.ShmRegion)
	if err != nil {
		return fmt.Errorf("realtime: open shared memory: %w", err)
	}
	defer shmWriter.Close()

	kernel := indicator.NewKernel()
	queue := persistence.NewQueue(st, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("realtime: start persistence queue: %w", err)
	}
	defer queue.Stop()

	rt := aggregator.NewRealtime(cfg.Symbols.Realtime, broker.NewIBGateway(), cfg.Broker.Host, cfg.Broker.Port, kernel, queue, shmWriter, log)
	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("realtime: start aggregator: %w", err)
	}

	log.WithField("symbol", cfg.Symbols.Realtime).Info("realtime aggregator running")
	waitForSignal(log)

	return rt.Stop()
}
