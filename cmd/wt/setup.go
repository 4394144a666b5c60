package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kdunlap/wt"
	"github.com/kdunlap/wt/internal/obs"
	"github.com/kdunlap/wt/internal/settings"
)

func init() {
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(configCmd)

	setupCmd.Flags().StringP("from", "f", "", "Base branch")
	setupCmd.Flags().Bool("skip-copy", false, "Skip the bulk-copy phase")
	setupCmd.Flags().Bool("skip-link", false, "Skip the link phases")
	setupCmd.Flags().Bool("json", false, "JSON output")
	setupCmd.Flags().Bool("verbose", false, "Log every git/gh invocation")

	configCmd.AddCommand(configPrintCmd)
	configPrintCmd.Flags().Bool("watch", false, "Re-print whenever the repo config file changes")
	configPrintCmd.Flags().Bool("json", false, "JSON output")
}

// resolveBaseBranch applies the worktree.defaultParent configuration value
// as the base branch when the caller did not pass --from explicitly. An
// empty result still falls back to Manager.New's own auto-detection.
func resolveBaseBranch(m *wt.Manager, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	cfg, err := settings.NewLoader("wt", m.RepoDir()).Load(nil)
	if err != nil {
		return flagValue
	}
	return cfg.Worktree.DefaultParent
}

// jsonWorktree is the "worktree" section of the stable `wt setup --json`
// contract.
type jsonWorktree struct {
	Path         string  `json:"path"`
	Branch       *string `json:"branch"`
	Commit       string  `json:"commit"`
	Rebased      bool    `json:"rebased"`
	RebaseSource *string `json:"rebaseSource"`
}

type jsonCopyStats struct {
	FilesTransferred int   `json:"filesTransferred"`
	TotalBytes       int64 `json:"totalBytes"`
}

type jsonLinkStats struct {
	Created       int           `json:"created"`
	Skipped       int           `json:"skipped"`
	ConflictCount int           `json:"conflictCount"`
	Conflicts     []wt.Conflict `json:"conflicts"`
}

type jsonSetup struct {
	Copy *jsonCopyStats `json:"copy"`
	Link *jsonLinkStats `json:"link"`
}

type jsonSetupResult struct {
	Success  bool         `json:"success"`
	Worktree jsonWorktree `json:"worktree"`
	Setup    jsonSetup    `json:"setup"`
	Duration int64        `json:"duration"`
	Warnings []string     `json:"warnings"`
}

func buildJSONResult(wtInfo jsonWorktree, result *wt.SetupResult) jsonSetupResult {
	out := jsonSetupResult{Worktree: wtInfo}
	if result == nil {
		return out
	}
	out.Success = result.Success
	out.Duration = result.DurationMs
	out.Warnings = result.Warnings
	if result.CopyStats != nil {
		out.Setup.Copy = &jsonCopyStats{
			FilesTransferred: result.CopyStats.FilesTransferred,
			TotalBytes:       result.CopyStats.TotalBytes,
		}
	}
	if result.LinkStats != nil {
		out.Setup.Link = &jsonLinkStats{
			Created:       result.LinkStats.Created,
			Skipped:       result.LinkStats.Skipped,
			ConflictCount: len(result.LinkStats.Conflicts),
			Conflicts:     result.LinkStats.Conflicts,
		}
	}
	return out
}

// setupCmd: wt setup <branch> [--from X] [--skip-copy] [--skip-link] [--json]
var setupCmd = &cobra.Command{
	Use:   "setup <branch>",
	Short: "Create a worktree and materialize its copy/link configuration",
	Long: `Setup creates a new branch worktree (same as "wt new") and then runs the
configured bulk-copy and symlink phases against it, rolling every recorded
effect back if any phase fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		verbose, _ := cmd.Flags().GetBool("verbose")
		logger := obs.New(os.Stderr, !jsonOutput)
		if !verbose {
			// Process-invocation events log at debug; without --verbose, only
			// compensation warnings reach stderr.
			logger = logger.Level(zerolog.InfoLevel)
		}

		gitRunner := &wt.DefaultGitRunner{
			OnInvocation: func(args []string, durationMs int64, err error) {
				obs.ProcessInvocation(logger, "git", len(args), durationMs, err)
			},
		}
		ghRunner := &wt.DefaultGHRunner{
			OnInvocation: func(args []string, durationMs int64, err error) {
				obs.ProcessInvocation(logger, "gh", len(args), durationMs, err)
			},
		}
		m, err := getManager(wt.WithGitRunner(gitRunner), wt.WithGHRunner(ghRunner))
		if err != nil {
			return err
		}

		branch := args[0]
		fromFlag, _ := cmd.Flags().GetString("from")
		skipCopy, _ := cmd.Flags().GetBool("skip-copy")
		skipLink, _ := cmd.Flags().GetBool("skip-link")
		ctx := context.Background()

		loader := settings.NewLoader("wt", m.RepoDir())
		cfg, err := loader.Load(nil)
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}

		baseBranch := resolveBaseBranch(m, fromFlag)
		path, err := m.New(ctx, branch, baseBranch, "")
		if err != nil {
			return err
		}

		vcs := wt.NewGitVCSCapability(m)

		wtInfo := jsonWorktree{Path: path, Branch: &branch}
		if infos, listErr := vcs.ListWorktrees(ctx); listErr == nil {
			for _, info := range infos {
				if info.Path == path {
					wtInfo.Commit = info.Commit
					break
				}
			}
		}
		if parent, parentErr := m.GetParentBranch(ctx, branch, path); parentErr == nil && parent != "" {
			if cfg.Worktree.RebaseOnAdd {
				wtInfo.RebaseSource = &parent
				wtInfo.Rebased = vcs.RebaseBranchInWorktree(ctx, path, "origin/"+parent)
			}
		}

		orchestrator := wt.NewSetupOrchestrator(vcs, cfg.Copy, cfg.Link, obs.TransactionWarn(logger))

		var progress wt.ProgressFunc
		if !jsonOutput {
			progress = func(p wt.CopyProgress) {
				if p.HasPercentage {
					fmt.Printf("\rSyncing files: %d/%d (%.0f%%)", p.FilesTransferred, p.TotalFiles, p.Percentage)
				} else {
					fmt.Printf("\rSynced: %d files", p.FilesTransferred)
				}
			}
		}

		result, setupErr := orchestrator.Setup(ctx, path, wt.SetupOptions{
			SkipCopy:   skipCopy,
			SkipLink:   skipLink,
			OnProgress: progress,
		})
		if progress != nil {
			fmt.Println()
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(buildJSONResult(wtInfo, result)); encErr != nil {
				return encErr
			}
		}

		if setupErr != nil {
			return setupErr
		}

		output := wt.DefaultOutput()
		for _, w := range result.Warnings {
			output.Warn(w)
		}
		if !jsonOutput {
			output.Success(fmt.Sprintf("Setup complete in %dms", result.DurationMs))
			fmt.Printf("__WT_CD__:%s\n", path)
		}
		return nil
	},
}

// configCmd: wt config
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect resolved worktree configuration",
}

// configPrintCmd: wt config print [--watch] [--json]
var configPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the merged copy/link/worktree configuration",
	Long: `Print resolves configuration from defaults, the global config file,
any discovered project manifest, the repository's own config file, and
environment variables, in that order of increasing precedence, and prints
the merged result.

With --watch, it re-prints whenever the repository's config file changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := getManager()
		if err != nil {
			return err
		}
		watch, _ := cmd.Flags().GetBool("watch")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		loader := settings.NewLoader("wt", m.RepoDir())
		print := func() error {
			cfg, err := loader.Load(nil)
			if err != nil {
				return err
			}
			return printConfig(cfg, jsonOutput)
		}

		if err := print(); err != nil {
			return err
		}
		if !watch {
			return nil
		}

		watcher, err := settings.NewWatcher(loader)
		if err != nil {
			return fmt.Errorf("could not watch configuration: %w", err)
		}
		defer watcher.Close()

		watcher.Run(func(cfg settings.Config, err error) {
			if err != nil {
				wt.DefaultOutput().Error(fmt.Sprintf("reload failed: %v", err))
				return
			}
			printConfig(cfg, jsonOutput)
		})
		return nil
	},
}

func printConfig(cfg settings.Config, jsonOutput bool) error {
	if jsonOutput {
		raw, err := settings.ToJSON(cfg)
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}

	fmt.Printf("copy.enabled     = %v\n", cfg.Copy.Enabled)
	fmt.Printf("copy.flags       = %v\n", cfg.Copy.Flags)
	fmt.Printf("copy.exclude     = %v\n", cfg.Copy.Exclude)
	fmt.Printf("link.patterns    = %v\n", cfg.Link.Patterns)
	fmt.Printf("link.relative    = %v\n", cfg.Link.Relative)
	fmt.Printf("link.beforeCopy  = %v\n", cfg.Link.BeforeCopy)
	fmt.Printf("worktree.defaultParent        = %q\n", cfg.Worktree.DefaultParent)
	fmt.Printf("worktree.rebaseOnAdd          = %v\n", cfg.Worktree.RebaseOnAdd)
	fmt.Printf("worktree.deleteBranchOnRemove = %q\n", cfg.Worktree.DeleteBranchOnRemove)
	return nil
}
