package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(createCmd)
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new plan from the config file, paused",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}

		spec, nameToID, err := a.cfg.ToPlanSpec()
		if err != nil {
			return err
		}

		plan, err := a.lc.Create(a.repo.Dir, spec, nameToID)
		if err != nil {
			return fmt.Errorf("creating plan: %w", err)
		}

		fmt.Printf("created plan %s (%d nodes, paused)\n", plan.ID, len(plan.Spec.Nodes))
		fmt.Printf("run %q to start it\n", "dagline resume "+plan.ID)
		return nil
	},
}
