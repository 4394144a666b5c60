package wt

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// WorktreeInfo describes a worktree as reported by the version-control
// capability.
type WorktreeInfo struct {
	Path             string
	Branch           string
	Commit           string
	IsPrunable       bool
	IsExistingBranch bool
}

// AddWorktreeOptions configures addWorktree.
type AddWorktreeOptions struct {
	Branch         string
	Commit         string
	Force          bool
	SkipPostCreate bool
}

// VCSCapability is the narrow surface the Setup Orchestrator and the
// setup command consume. The orchestrator itself only calls
// getMainWorktreePath and removeWorktree; the setup command also calls
// listWorktrees and rebaseBranchInWorktree.
type VCSCapability interface {
	GetMainWorktreePath(ctx context.Context) (string, error)
	AddWorktree(ctx context.Context, path string, opts AddWorktreeOptions) (WorktreeInfo, error)
	RemoveWorktree(ctx context.Context, path string, force bool) error
	ListWorktrees(ctx context.Context) ([]WorktreeInfo, error)
	RebaseBranchInWorktree(ctx context.Context, path, ontoBranch string) bool
	HasUncommittedChanges(ctx context.Context, path string) bool
	BranchExists(ctx context.Context, name string) bool
	GetCurrentBranch(ctx context.Context, path string) (string, error)
}

// GitVCSCapability implements VCSCapability over a Manager's GitRunner and
// bare-clone layout, adapting the teacher's existing Manager methods to the
// narrower capability interface the orchestrator depends on.
type GitVCSCapability struct {
	manager *Manager
}

// NewGitVCSCapability wraps a Manager as a VCSCapability.
func NewGitVCSCapability(m *Manager) *GitVCSCapability {
	return &GitVCSCapability{manager: m}
}

// GetMainWorktreePath returns the primary working tree path: the worktree
// checked out for the repository's default branch.
func (v *GitVCSCapability) GetMainWorktreePath(ctx context.Context) (string, error) {
	bareDir := v.manager.BareDir()
	if _, err := os.Stat(bareDir); os.IsNotExist(err) {
		return "", ErrRepoNotInitialized
	}
	defaultBranch, err := GetDefaultBranch(ctx, v.manager.git, bareDir)
	if err != nil {
		return "", &CapabilityError{Op: "getMainWorktreePath", Err: err}
	}
	worktrees, err := v.manager.List(ctx)
	if err != nil {
		return "", &CapabilityError{Op: "getMainWorktreePath", Err: err}
	}
	for _, w := range worktrees {
		if w.Branch == defaultBranch {
			return w.Path, nil
		}
	}
	return "", &ValidationError{Reason: fmt.Sprintf("no worktree found for default branch %q", defaultBranch)}
}

// AddWorktree creates a worktree. A branch that does not exist yet is
// created from origin/<branch>; an existing branch is checked out as it is.
// Force passes --force to `git worktree add`; it does not reset the branch.
func (v *GitVCSCapability) AddWorktree(ctx context.Context, path string, opts AddWorktreeOptions) (WorktreeInfo, error) {
	bareDir := v.manager.BareDir()
	existing := v.branchRef(ctx, opts.Branch)

	args := []string{"worktree", "add"}
	if opts.Force {
		args = append(args, "--force")
	}
	isExisting := existing
	if !isExisting {
		args = append(args, "-b", opts.Branch, path, "origin/"+opts.Branch)
	} else {
		args = append(args, path, opts.Branch)
	}

	if _, err := v.manager.git.Run(ctx, args, bareDir); err != nil {
		return WorktreeInfo{}, &CapabilityError{Op: "addWorktree", Err: err}
	}

	commit := ""
	if result, err := v.manager.git.Run(ctx, []string{"rev-parse", "HEAD"}, path); err == nil {
		commit = strings.TrimSpace(result.Stdout)
	}

	return WorktreeInfo{
		Path:             path,
		Branch:           opts.Branch,
		Commit:           commit,
		IsExistingBranch: isExisting,
	}, nil
}

// RemoveWorktree retracts a worktree, optionally forcing removal of a
// worktree with uncommitted changes.
func (v *GitVCSCapability) RemoveWorktree(ctx context.Context, path string, force bool) error {
	bareDir := v.manager.BareDir()
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)

	if _, err := v.manager.git.Run(ctx, args, bareDir); err != nil {
		return &CapabilityError{Op: "removeWorktree", Err: err}
	}
	return nil
}

// ListWorktrees returns a porcelain listing adapted to WorktreeInfo.
func (v *GitVCSCapability) ListWorktrees(ctx context.Context) ([]WorktreeInfo, error) {
	worktrees, err := v.manager.List(ctx)
	if err != nil {
		return nil, &CapabilityError{Op: "listWorktrees", Err: err}
	}
	infos := make([]WorktreeInfo, 0, len(worktrees))
	for _, w := range worktrees {
		infos = append(infos, WorktreeInfo{Path: w.Path, Branch: w.Branch, Commit: w.Commit})
	}
	return infos, nil
}

// RebaseBranchInWorktree attempts a rebase inside a worktree. On any
// failure it aborts the rebase and returns false rather than propagating a
// conflict as an error.
func (v *GitVCSCapability) RebaseBranchInWorktree(ctx context.Context, path, ontoBranch string) bool {
	if _, err := v.manager.git.Run(ctx, []string{"rebase", "--autostash", ontoBranch}, path); err != nil {
		v.manager.git.Run(ctx, []string{"rebase", "--abort"}, path)
		return false
	}
	return true
}

// HasUncommittedChanges probes working-copy cleanliness.
func (v *GitVCSCapability) HasUncommittedChanges(ctx context.Context, path string) bool {
	result, err := v.manager.git.Run(ctx, []string{"status", "--porcelain"}, path)
	if err != nil {
		return false
	}
	return strings.TrimSpace(result.Stdout) != ""
}

// BranchExists checks the bare repository's local branches.
func (v *GitVCSCapability) BranchExists(ctx context.Context, name string) bool {
	return v.branchRef(ctx, name)
}

func (v *GitVCSCapability) branchRef(ctx context.Context, name string) bool {
	bareDir := v.manager.BareDir()
	_, err := v.manager.git.Run(ctx, []string{"rev-parse", "--verify", "refs/heads/" + name}, bareDir)
	return err == nil
}

// GetCurrentBranch returns the checked-out branch name for a worktree path.
func (v *GitVCSCapability) GetCurrentBranch(ctx context.Context, path string) (string, error) {
	result, err := v.manager.git.Run(ctx, []string{"branch", "--show-current"}, path)
	if err != nil {
		return "", &CapabilityError{Op: "getCurrentBranch", Err: err}
	}
	return strings.TrimSpace(result.Stdout), nil
}
