package wt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SetupResult is the outcome of one Setup invocation, returned on both
// success and failure (via SetupError.Result) so a caller can render the
// same JSON shape either way.
type SetupResult struct {
	Success     bool
	CopyStats   *CopyStats
	LinkStats   *LinkStats
	DurationMs  int64
	Warnings    []string
	Compensated bool
}

// CopyOverride carries one invocation's overrides onto the repository's base
// copy configuration. Enabled is a *bool, not a bool, so a caller can turn a
// base `enabled: true` off: a plain bool's zero value (false) would be
// indistinguishable from "not overridden" and the base value would always
// win (O.enabled ?? B.enabled requires knowing whether O.enabled is present
// at all, not just what it equals).
type CopyOverride struct {
	Enabled *bool
	Flags   []string
	Exclude []string
}

// LinkOverride carries one invocation's overrides onto the repository's base
// link configuration. Relative and BeforeCopy are *bool for the same reason
// as CopyOverride.Enabled.
type LinkOverride struct {
	Relative   *bool
	BeforeCopy *bool
	Patterns   []string
}

// SetupOptions configures one Setup invocation. Copy and Link override the
// repository's resolved configuration: scalar fields replace when set,
// Exclude and Patterns concatenate onto the base (P7).
type SetupOptions struct {
	Copy       CopyOverride
	Link       LinkOverride
	SkipCopy   bool
	SkipLink   bool
	OnProgress ProgressFunc
}

// mergeCopyConfig applies override on top of base: Enabled and Flags replace
// when override sets them, Exclude concatenates.
func mergeCopyConfig(base CopyConfig, override CopyOverride) CopyConfig {
	merged := base
	if override.Flags != nil {
		merged.Flags = override.Flags
	}
	merged.Exclude = append(append([]string{}, base.Exclude...), override.Exclude...)
	if override.Enabled != nil {
		merged.Enabled = *override.Enabled
	}
	return merged
}

// mergeLinkConfig applies override on top of base: Relative and BeforeCopy
// replace, Patterns concatenates.
func mergeLinkConfig(base LinkConfig, override LinkOverride) LinkConfig {
	merged := base
	merged.Patterns = append(append([]string{}, base.Patterns...), override.Patterns...)
	if override.Relative != nil {
		merged.Relative = *override.Relative
	}
	if override.BeforeCopy != nil {
		merged.BeforeCopy = *override.BeforeCopy
	}
	return merged
}

// SetupOrchestrator wires the bulk-copy and link helpers to the version
// control capability and runs the seven-phase worktree setup pipeline,
// compensating every recorded effect if any phase before Validation fails.
type SetupOrchestrator struct {
	vcs  VCSCapability
	copy *CopyHelper
	link *LinkHelper
	warn WarnFunc
	base struct {
		Copy CopyConfig
		Link LinkConfig
	}
}

// NewSetupOrchestrator builds an orchestrator over the given capability and
// base configuration (the repository's resolved `.wt` config, before any
// per-invocation overrides).
func NewSetupOrchestrator(vcs VCSCapability, baseCopy CopyConfig, baseLink LinkConfig, warn WarnFunc) *SetupOrchestrator {
	if warn == nil {
		warn = func(string, map[string]string) {}
	}
	o := &SetupOrchestrator{
		vcs:  vcs,
		copy: NewCopyHelper(),
		link: NewLinkHelper(),
		warn: warn,
	}
	o.base.Copy = baseCopy
	o.base.Link = baseLink
	return o
}

// Setup runs the seven-phase pipeline against a worktree already created at
// destination: Init, Checkpoint, LinkBefore, Copy, LinkAfter, Validation,
// Complete. Any failure in phases 1 through 6 triggers compensation and
// re-raises a single *SetupError carrying the partial SetupResult.
func (o *SetupOrchestrator) Setup(ctx context.Context, destination string, opts SetupOptions) (*SetupResult, error) {
	start := time.Now()
	tx := NewTransaction(o.warn)
	result := &SetupResult{}

	copyCfg := mergeCopyConfig(o.base.Copy, opts.Copy)
	linkCfg := mergeLinkConfig(o.base.Link, opts.Link)

	source, err := o.vcs.GetMainWorktreePath(ctx)
	if err != nil {
		return o.fail(tx, result, start, "could not resolve main worktree path", err)
	}
	if _, err := os.Stat(source); err != nil {
		return o.fail(tx, result, start, "main worktree does not exist", &ValidationError{Reason: fmt.Sprintf("source %q: %v", source, err)})
	}
	if _, err := os.Stat(destination); err != nil {
		return o.fail(tx, result, start, "destination worktree does not exist", &ValidationError{Reason: fmt.Sprintf("destination %q: %v", destination, err)})
	}

	// Phase 2: Checkpoint. Taken before any destructive effect so
	// compensation can still locate the worktree to remove, even after the
	// ledger itself has been cleared by rollback.
	tx.createCheckpoint("worktree", map[string]string{"path": destination})

	var linkStats LinkStats
	runLink := func() error {
		stats, err := o.link.createLinks(tx, source, destination, linkCfg, true, true)
		linkStats.Created += stats.Created
		linkStats.Skipped += stats.Skipped
		linkStats.Conflicts = append(linkStats.Conflicts, stats.Conflicts...)
		for _, c := range stats.Conflicts {
			result.Warnings = append(result.Warnings, fmt.Sprintf("replaced existing %s at %s", c.Reason, c.Target))
		}
		return err
	}

	if !opts.SkipLink && linkCfg.BeforeCopy {
		if err := runLink(); err != nil {
			return o.fail(tx, result, start, "link-before-copy failed", err)
		}
	}

	var copyStats CopyStats
	if !opts.SkipCopy && copyCfg.Enabled {
		if !o.copy.isInstalled(ctx) {
			return o.fail(tx, result, start, "bulk-copy program not available", ErrCopyProgramMissing)
		}

		// P5: every link pattern match is anchored as a copy exclusion so
		// the bulk copy never overwrites a path the Link Helper already
		// (or will) own.
		matches, err := o.link.matchPatterns(source, linkCfg.Patterns)
		if err != nil {
			return o.fail(tx, result, start, "could not expand link patterns", err)
		}
		var anchoredExcludes []string
		for _, rel := range matches {
			fi, statErr := os.Stat(filepath.Join(source, rel))
			switch {
			case statErr != nil:
				result.Warnings = append(result.Warnings, fmt.Sprintf("could not stat link pattern match %q, excluding as file: %v", rel, statErr))
				anchoredExcludes = append(anchoredExcludes, "/"+rel)
			case fi.IsDir():
				anchoredExcludes = append(anchoredExcludes, "/"+rel+"/")
			default:
				anchoredExcludes = append(anchoredExcludes, "/"+rel)
			}
		}

		totalFiles := o.copy.estimateFileCount(ctx, source, copyCfg)
		copyOpts := CopyOptions{
			ExcludePatterns: anchoredExcludes,
			TotalFiles:      totalFiles,
			OnProgress:      opts.OnProgress,
		}
		stats, err := o.copy.copy(ctx, tx, source, destination, copyCfg, copyOpts)
		if err != nil {
			return o.fail(tx, result, start, "bulk copy failed", err)
		}
		copyStats = stats
	}

	if !opts.SkipLink && !linkCfg.BeforeCopy {
		if err := runLink(); err != nil {
			return o.fail(tx, result, start, "link-after-copy failed", err)
		}
	}

	// Phase 6: Validation. Failures here are warnings, not aborts -- the
	// worktree is otherwise usable and a rollback would discard real work.
	if _, err := os.Stat(destination); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("destination missing after setup: %v", err))
	}
	for _, effect := range tx.getOperations() {
		if effect.Kind != CreateLink {
			continue
		}
		expected := effect.Metadata["target"]
		if !o.link.verifyLink(effect.Path, expected) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("link verification failed for %s", effect.Path))
		}
	}

	result.Success = true
	result.CopyStats = &copyStats
	result.LinkStats = &linkStats
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

// fail runs the five-step compensation algorithm and re-raises exactly one
// SetupError carrying the partial result captured at the point of failure.
func (o *SetupOrchestrator) fail(tx *Transaction, result *SetupResult, start time.Time, message string, cause error) (*SetupResult, error) {
	outcome := tx.rollback()
	result.Compensated = true

	for _, failure := range outcome.FailedRollbacks {
		result.Warnings = append(result.Warnings, "rollback: "+failure)
	}

	if cp, ok := outcome.Checkpoints["worktree"]; ok {
		path := cp["path"]
		if err := o.vcs.RemoveWorktree(context.Background(), path, true); err != nil {
			if rmErr := os.RemoveAll(path); rmErr != nil {
				result.Compensated = false
				result.Warnings = append(result.Warnings, fmt.Sprintf("compensation partially failed: could not remove worktree %s: %v (fallback: %v)", path, err, rmErr))
			} else {
				result.Warnings = append(result.Warnings, fmt.Sprintf("removed worktree %s via fallback after capability error: %v", path, err))
			}
		}
	}

	result.Success = false
	result.DurationMs = time.Since(start).Milliseconds()
	return result, newSetupError(message, result, cause)
}
