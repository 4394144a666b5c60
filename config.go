package wt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultHookTimeout bounds a single hook command when the repo config
// doesn't set hook_timeout_seconds. Setup's own phases are already bounded
// by the caller's context; an unbounded post_create hook could otherwise
// hang a setup indefinitely.
const defaultHookTimeout = 5 * time.Minute

// RepoConfig holds per-repository configuration from .wt.yaml.
type RepoConfig struct {
	DefaultBase        string   `yaml:"default_base"`
	PostCreate         []string `yaml:"post_create"`
	PostRemove         []string `yaml:"post_remove"`
	OnWorktreeCreate   []string `yaml:"on_worktree_create"`
	OnWorktreeDelete   []string `yaml:"on_worktree_delete"`
	HookTimeoutSeconds int      `yaml:"hook_timeout_seconds"`
}

// LoadRepoConfig loads .wt.yaml from a repository path.
// Returns a default config if the file doesn't exist.
func LoadRepoConfig(repoPath string) (*RepoConfig, error) {
	configPath := filepath.Join(repoPath, ".wt.yaml")

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return &RepoConfig{DefaultBase: "main"}, nil
	}
	if err != nil {
		return nil, err
	}

	var config RepoConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	if config.DefaultBase == "" {
		config.DefaultBase = "main"
	}

	return &config, nil
}

// HookTimeout returns the configured per-hook timeout, falling back to
// defaultHookTimeout when unset or non-positive.
func (c *RepoConfig) HookTimeout() time.Duration {
	if c == nil || c.HookTimeoutSeconds <= 0 {
		return defaultHookTimeout
	}
	return time.Duration(c.HookTimeoutSeconds) * time.Second
}

// WorktreeCreateCommands returns commands that should run after creating a worktree.
// It supports both legacy wt keys and bramble-specific keys.
func (c *RepoConfig) WorktreeCreateCommands() []string {
	if c == nil {
		return nil
	}
	cmds := make([]string, 0, len(c.PostCreate)+len(c.OnWorktreeCreate))
	cmds = append(cmds, c.PostCreate...)
	cmds = append(cmds, c.OnWorktreeCreate...)
	return cmds
}

// WorktreeDeleteCommands returns commands that should run before deleting a worktree.
// It supports both legacy wt keys and bramble-specific keys.
func (c *RepoConfig) WorktreeDeleteCommands() []string {
	if c == nil {
		return nil
	}
	cmds := make([]string, 0, len(c.PostRemove)+len(c.OnWorktreeDelete))
	cmds = append(cmds, c.PostRemove...)
	cmds = append(cmds, c.OnWorktreeDelete...)
	return cmds
}

// RunHooks executes hook commands in a worktree, each bounded by timeout
// (use RepoConfig.HookTimeout for the configured value). onHook, when set,
// is called after every command with its outcome -- the same OnInvocation
// shape DefaultGitRunner/DefaultGHRunner use, so a caller can attach
// structured logging without this package importing a logging library.
func RunHooks(ctx context.Context, commands []string, worktreePath, branch string, timeout time.Duration, output *Output, onHook func(cmd string, durationMs int64, err error)) error {
	env := os.Environ()
	env = append(env, "WT_BRANCH="+branch, "WT_PATH="+worktreePath)

	for _, cmdStr := range commands {
		output.Info("Running: " + cmdStr)

		hookCtx, cancel := context.WithTimeout(ctx, timeout)
		start := time.Now()
		cmd := exec.CommandContext(hookCtx, "sh", "-c", cmdStr)
		cmd.Dir = worktreePath
		cmd.Env = env
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		err := cmd.Run()
		cancel()

		if onHook != nil {
			onHook(cmdStr, time.Since(start).Milliseconds(), err)
		}

		if err != nil {
			if hookCtx.Err() == context.DeadlineExceeded {
				output.Error(fmt.Sprintf("Hook timed out after %s: %s", timeout, cmdStr))
			} else {
				output.Error("Hook failed: " + cmdStr)
			}
			return err
		}
	}

	return nil
}
