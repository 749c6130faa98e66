package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter plan.yaml in the current (or given) directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		if _, err := os.Stat(filepath.Join(absDir, ".git")); err != nil {
			return fmt.Errorf("%s is not a git repository (no .git directory)", absDir)
		}

		target := filepath.Join(absDir, "plan.yaml")
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("%s already exists", target)
		}

		if err := os.WriteFile(target, []byte(starterPlanYAML), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", target, err)
		}
		fmt.Printf("  plan   %s\n", target)
		fmt.Println("\nEdit the job list, then run `dagline create` to register a plan.")
		return nil
	},
}

const starterPlanYAML = `agent:
  command: claude
  args: ["-p"]

settings:
  storagePath: .dagline/state
  maxParallel: 4
  globalMaxParallel: 4
  pumpInterval: 1s
  baseBranch: main
  targetBranch: main

merge:
  pushOnSuccess: false
  prefer: theirs

jobs:
  - name: implement
    work:
      agentInstructions: |
        Implement the feature described in TASK.md.

  - name: review
    needs: [implement]
    work:
      agentInstructions: |
        Review the diff introduced by the "implement" job for correctness
        and style; fix anything you find directly.
    postchecks:
      command: go build ./... && go vet ./...
`
