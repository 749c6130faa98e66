package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dagline",
	Short: "Orchestrate a DAG of coding-agent and shell jobs across Git worktrees",
	Long: `dagline runs a plan: a DAG of jobs, each with prechecks/work/postchecks
phases, executed in isolated Git worktrees. Dependencies are forward-
integrated into a dependent's worktree before it starts; leaves are
reverse-integrated back into a shared target branch once they finish.

Plans persist to disk and survive a restart: a crashed run resumes from
where it left off rather than starting over.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "path", "p", "plan.yaml", "Path to plan config file")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dagline %s\n", Version)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
