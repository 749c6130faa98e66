package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pauseCmd, resumeCmd, cancelCmd, deleteCmd, forceFailCmd)
}

var pauseCmd = &cobra.Command{
	Use:   "pause <plan-id>",
	Short: "Pause a plan so the pump stops dispatching its nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		if err := a.lc.Pause(args[0]); err != nil {
			return err
		}
		fmt.Printf("paused %s\n", args[0])
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <plan-id>",
	Short: "Resume a paused plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		if err := a.lc.Resume(args[0]); err != nil {
			return err
		}
		fmt.Printf("resumed %s\n", args[0])
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <plan-id>",
	Short: "Cancel every non-terminal node in a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		if err := a.lc.Cancel(args[0]); err != nil {
			return err
		}
		fmt.Printf("canceled %s\n", args[0])
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <plan-id>",
	Short: "Cancel and permanently remove a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configPath)
		if err != nil {
			return err
		}
		if err := a.lc.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var forceFailCmd = &cobra.Command{
	Use:   "force-fail <plan-id> <node-name>",
	Short: "Force a running or scheduled node to failed, killing its process tree",
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
		if err := a.lc.ForceFailNode(args[0], nodeID); err != nil {
			return err
		}
		fmt.Printf("force-failed %s\n", args[1])
		return nil
	},
}
