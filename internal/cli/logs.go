package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

var (
	logsFollow bool
	logsTail   int
)

func init() {
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of lines to show")
	rootCmd.AddCommand(logsCmd)
}

var logsCmd = &cobra.Command{
	Use:   "logs <plan-id> <node-name>",
	Short: "Show a node's current-attempt execution log",
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

		logPath, err := a.store.ExecutionLogPath(args[0], nodeID)
		if err != nil {
			return err
		}
		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			return fmt.Errorf("no log file found for %q (expected at %s)", args[1], logPath)
		}

		tailArgs := []string{"-n", fmt.Sprintf("%d", logsTail)}
		if logsFollow {
			tailArgs = append(tailArgs, "-f")
		}
		tailArgs = append(tailArgs, logPath)

		tailCmd := exec.Command("tail", tailArgs...)
		tailCmd.Stdout = os.Stdout
		tailCmd.Stderr = os.Stderr
		return tailCmd.Run()
	},
}
