package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/state"
)

var (
	statusFollow   bool
	statusInterval float64
)

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "Live-update status (like watch)")
	statusCmd.Flags().Float64VarP(&statusInterval, "interval", "n", 2.0, "Seconds between updates (with --follow)")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [plan-id]",
	Short: "Show the status of every plan, or one plan's nodes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		var planID string
		if len(args) == 1 {
			planID = args[0]
		}

		if statusFollow {
			return followStatus(a, planID)
		}
		return renderStatus(os.Stdout, a, planID)
	},
}

func followStatus(a *app, planID string) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interval := time.Duration(statusInterval * float64(time.Second))
	var lastOutput string

	for {
		var buf bytes.Buffer
		if err := renderStatus(&buf, a, planID); err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		output := buf.String()
		if output != lastOutput {
			fmt.Print("\033[H\033[2J")
			fmt.Printf("Every %.1fs: dagline status\n\n", statusInterval)
			fmt.Print(output)
			lastOutput = output
		}

		select {
		case <-sigCh:
			fmt.Println()
			return nil
		case <-time.After(interval):
		}
	}
}

func renderStatus(w io.Writer, a *app, planID string) error {
	ids, err := a.store.ListPlanIDs()
	if err != nil {
		return err
	}
	if planID != "" {
		ids = []string{planID}
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "no plans")
		return nil
	}

	for _, id := range ids {
		plan, err := a.store.ReadPlanMetadata(id)
		if err != nil {
			fmt.Fprintf(w, "%s: %s\n", id, err)
			continue
		}
		renderPlan(w, plan)
		fmt.Fprintln(w)
	}
	return nil
}

func renderPlan(w io.Writer, plan *model.Plan) {
	m := state.New(plan)
	ps := m.ComputePlanStatus()
	color := planStateColor(ps)
	fmt.Fprintf(w, "Plan %s  %s%s%s\n", plan.ID, color, ps, ansiReset)
	fmt.Fprintln(w, "──────────────────────────────────────")

	for _, n := range plan.Spec.Nodes {
		s := plan.NodeStates[n.ID]
		symbol, color := stateDisplay(s.Status)
		extra := ""
		switch s.Status {
		case model.StatusFailed:
			extra = fmt.Sprintf(" (attempt %d)", s.Attempt)
		case model.StatusSucceeded:
			if s.CompletedCommit != "" {
				extra = fmt.Sprintf(" -> %s", short(s.CompletedCommit))
			}
		}
		fmt.Fprintf(w, "  %s%s%s  %-24s  %s%s\n", color, symbol, ansiReset, n.Name, s.Status, extra)
	}
}

func short(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
