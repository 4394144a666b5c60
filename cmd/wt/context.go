package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kdunlap/wt"
)

func init() {
	rootCmd.AddCommand(contextCmd)

	contextCmd.Flags().Bool("json", false, "JSON output")
	contextCmd.Flags().Bool("no-diff", false, "Omit full diff content")
	contextCmd.Flags().Int("commits", 10, "Number of recent commits to include")
}

// contextCmd: wt context <branch> [--json] [--no-diff] [--commits N]
var contextCmd = &cobra.Command{
	Use:   "context <branch>",
	Short: "Print structured context for a worktree, for agent consumption",
	Long: `Context gathers a worktree's diff, changed files, branch state, recent
commits, and PR status into one structured block, suitable for inclusion in
an autonomous agent's system prompt or message.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		branch := args[0]
		jsonOutput, _ := cmd.Flags().GetBool("json")
		noDiff, _ := cmd.Flags().GetBool("no-diff")
		commits, _ := cmd.Flags().GetInt("commits")

		m, err := getManager()
		if err != nil {
			return err
		}
		ctx := context.Background()

		w, err := m.GetWorktreeByBranch(ctx, branch)
		if err != nil {
			return err
		}

		opts := wt.DefaultContextOptions()
		opts.IncludeCommits = commits
		if noDiff {
			opts.IncludeDiff = false
		}

		wctx, err := m.GatherContext(ctx, *w, opts)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(wctx)
		}

		fmt.Print(wctx.FormatForPrompt())
		return nil
	},
}
