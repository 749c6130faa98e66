package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/re-cinq/dagline/internal/executor"
	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/pump"
	"github.com/re-cinq/dagline/internal/riserial"
	"github.com/re-cinq/dagline/internal/state"
)

var runOnce bool

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Tick every plan to quiescence once and exit, instead of running the daemon")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pump daemon, driving every non-paused plan forward",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}

		if err := a.lc.RecoverCrashedPlans(); err != nil {
			return fmt.Errorf("crash recovery: %w", err)
		}

		// One RI serializer shared by every executor this process hands
		// out — RI merges are strictly serial across the whole process
		// (spec §4.8), not just within one plan.
		ri := riserial.New()
		ex := a.newExecutor(ri)

		p := pump.New(a.store, a.cap, func(plan *model.Plan) (*executor.Executor, error) {
			return ex, nil
		}, a.cfg.Settings.PumpInterval.Duration(), a.log)
		p.SetEmitter(a.events.EmitFunc())

		if runOnce {
			return runUntilQuiescent(context.Background(), a, p)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			a.log.Info().Msg("received shutdown signal")
			cancel()
		}()

		a.log.Info().Dur("interval", a.cfg.Settings.PumpInterval.Duration()).Msg("dagline pump started")
		return p.Run(ctx)
	},
}

// runUntilQuiescent repeatedly ticks the pump until every loaded plan
// is either paused or in a terminal status on two consecutive ticks,
// and returns an error if that has not happened within maxTicks — a
// bounded substitute for the interactive daemon loop, used by
// `run --once` and acceptance tests.
func runUntilQuiescent(ctx context.Context, a *app, p *pump.Pump) error {
	const maxTicks = 500
	quiet := 0
	for i := 0; i < maxTicks; i++ {
		if err := p.Tick(ctx); err != nil {
			return err
		}

		ids, err := a.store.ListPlanIDs()
		if err != nil {
			return err
		}
		done := true
		for _, id := range ids {
			plan, err := a.store.ReadPlanMetadata(id)
			if err != nil {
				continue
			}
			if plan.Paused {
				continue
			}
			if !state.PlanStatusTerminal(state.New(plan).ComputePlanStatus()) {
				done = false
			}
		}
		if done {
			quiet++
		} else {
			quiet = 0
		}
		if quiet >= 2 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("run --once: plans did not quiesce within %d ticks", maxTicks)
}
