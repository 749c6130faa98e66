package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/re-cinq/dagline/internal/lifecycle"
	"github.com/re-cinq/dagline/internal/model"
)

var retryClearWorktree bool

func init() {
	retryCmd.Flags().BoolVar(&retryClearWorktree, "clear-worktree", false, "Fetch, hard-reset, and clean the node's worktree before retrying")
	rootCmd.AddCommand(retryCmd)
}

var retryCmd = &cobra.Command{
	Use:   "retry <plan-id> <node-name>",
	Short: "Re-arm a failed node for another attempt",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		plan, err := a.store.ReadPlanMetadata(args[0])
		if err != nil {
			return err
		}
		nodeID, err := resolveNodeID(plan, args[1])
		if err != nil {
			return err
		}

		opts := lifecycle.RetryOptions{ClearWorktree: retryClearWorktree}
		if err := a.lc.Retry(a.repo, args[0], nodeID, opts); err != nil {
			return err
		}
		fmt.Printf("retrying %s\n", args[1])
		return nil
	},
}

// resolveNodeID maps a user-given job name to its internal node ID
// using the plan's recorded ProducerToNodeID mapping (spec §3).
func resolveNodeID(plan *model.Plan, name string) (string, error) {
	if id, ok := plan.ProducerToNodeID[name]; ok {
		return id, nil
	}
	if _, ok := plan.NodeStates[name]; ok {
		return name, nil
	}
	return "", fmt.Errorf("no node named %q in plan %s", name, plan.ID)
}
