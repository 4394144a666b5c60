package wt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// mockVCS implements VCSCapability with just enough behavior for Setup
// tests: a fixed main worktree path and a recorded RemoveWorktree call.
type mockVCS struct {
	mainPath     string
	mainPathErr  error
	removedPaths []string
	removeErr    error
}

func (m *mockVCS) GetMainWorktreePath(ctx context.Context) (string, error) {
	return m.mainPath, m.mainPathErr
}
func (m *mockVCS) AddWorktree(ctx context.Context, path string, opts AddWorktreeOptions) (WorktreeInfo, error) {
	return WorktreeInfo{}, nil
}
func (m *mockVCS) RemoveWorktree(ctx context.Context, path string, force bool) error {
	m.removedPaths = append(m.removedPaths, path)
	return m.removeErr
}
func (m *mockVCS) ListWorktrees(ctx context.Context) ([]WorktreeInfo, error) { return nil, nil }
func (m *mockVCS) RebaseBranchInWorktree(ctx context.Context, path, onto string) bool { return true }
func (m *mockVCS) HasUncommittedChanges(ctx context.Context, path string) bool        { return false }
func (m *mockVCS) BranchExists(ctx context.Context, name string) bool                 { return false }
func (m *mockVCS) GetCurrentBranch(ctx context.Context, path string) (string, error)   { return "", nil }

func mustMkWorktree(t *testing.T, root string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(root, "main")
	for rel, contents := range files {
		full := filepath.Join(path, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(contents), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func newOrchestratorWithRunner(vcs VCSCapability, runner RsyncRunner, copyCfg CopyConfig, linkCfg LinkConfig) *SetupOrchestrator {
	o := NewSetupOrchestrator(vcs, copyCfg, linkCfg, nil)
	o.copy = NewCopyHelperWithRunner(runner)
	return o
}

func TestSetupHappyPathLinkBeforeCopy(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	main := mustMkWorktree(t, root, map[string]string{
		".env":         "SECRET=1",
		"package.json": "{}",
		"src/index.ts": "code",
	})
	dest := filepath.Join(root, "feature")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}

	vcs := &mockVCS{mainPath: main}
	runner := &mockRsyncRunner{
		versionResult: &CmdResult{Stdout: "rsync  version 3.2.7\n"},
		runResult:     &CmdResult{Stdout: "Number of created files: 1\n"},
	}
	o := newOrchestratorWithRunner(vcs, runner, CopyConfig{Enabled: true}, LinkConfig{Patterns: []string{".env"}, BeforeCopy: true})

	result, err := o.Setup(context.Background(), dest, SetupOptions{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !result.Success || result.Compensated {
		t.Fatalf("result = %+v, want Success=true Compensated=false", result)
	}
	if result.LinkStats.Created != 1 {
		t.Errorf("LinkStats.Created = %d, want 1", result.LinkStats.Created)
	}
	if _, err := os.Lstat(filepath.Join(dest, ".env")); err != nil {
		t.Errorf(".env link not created: %v", err)
	}

	joined := runner.lastArgs
	for _, a := range joined {
		if a == "/.env" {
			return
		}
	}
	t.Errorf("expected bulk copy to exclude linked pattern /.env, got args %v", joined)
}

func TestSetupHappyPathLinkAfterCopy(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	main := mustMkWorktree(t, root, map[string]string{"package.json": "{}"})
	dest := filepath.Join(root, "feature")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}

	vcs := &mockVCS{mainPath: main}
	runner := &mockRsyncRunner{
		versionResult: &CmdResult{Stdout: "rsync  version 3.2.7\n"},
		runResult:     &CmdResult{Stdout: "Number of created files: 1\n"},
	}
	o := newOrchestratorWithRunner(vcs, runner, CopyConfig{Enabled: true}, LinkConfig{Patterns: []string{"package.json"}, BeforeCopy: false})

	result, err := o.Setup(context.Background(), dest, SetupOptions{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want Success=true", result)
	}
	if _, err := os.Lstat(filepath.Join(dest, "package.json")); err != nil {
		t.Errorf("package.json link not created after copy: %v", err)
	}
}

func TestSetupCopyProgramMissing(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	main := mustMkWorktree(t, root, map[string]string{"package.json": "{}"})
	dest := filepath.Join(root, "feature")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}

	vcs := &mockVCS{mainPath: main}
	runner := &mockRsyncRunner{versionErr: errors.New("not found")}
	o := newOrchestratorWithRunner(vcs, runner, CopyConfig{Enabled: true}, LinkConfig{})

	_, err := o.Setup(context.Background(), dest, SetupOptions{})
	var se *SetupError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SetupError", err)
	}
	if !errors.Is(err, ErrCopyProgramMissing) {
		t.Errorf("error chain does not contain ErrCopyProgramMissing: %v", err)
	}
	if se.Result == nil || !se.Result.Compensated {
		t.Errorf("result = %+v, want Compensated=true", se.Result)
	}
	if len(vcs.removedPaths) != 1 || vcs.removedPaths[0] != dest {
		t.Errorf("removedPaths = %v, want [%s]", vcs.removedPaths, dest)
	}
}

func TestSetupRollsBackOnMidPhaseFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	main := mustMkWorktree(t, root, map[string]string{".env": "SECRET=1"})
	dest := filepath.Join(root, "feature")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}

	vcs := &mockVCS{mainPath: main}
	runner := &mockRsyncRunner{
		versionResult: &CmdResult{Stdout: "rsync  version 3.2.7\n"},
		runErr:        errors.New("connection reset"),
	}
	o := newOrchestratorWithRunner(vcs, runner, CopyConfig{Enabled: true}, LinkConfig{Patterns: []string{".env"}, BeforeCopy: true})

	result, err := o.Setup(context.Background(), dest, SetupOptions{})
	if err == nil {
		t.Fatal("expected an error")
	}
	var se *SetupError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *SetupError", err)
	}
	if result.Success {
		t.Error("result.Success = true, want false")
	}
	if !result.Compensated {
		t.Error("result.Compensated = false, want true")
	}
	if _, statErr := os.Lstat(filepath.Join(dest, ".env")); !os.IsNotExist(statErr) {
		t.Errorf(".env link should have been rolled back, stat err = %v", statErr)
	}
	if len(vcs.removedPaths) != 1 {
		t.Errorf("expected RemoveWorktree to be called once, got %v", vcs.removedPaths)
	}
}

func TestSetupConflictReplacedSilentlyNoWarning(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	main := mustMkWorktree(t, root, map[string]string{"package.json": "{}"})
	dest := filepath.Join(root, "feature")
	// Destination already has a checked-out package.json (the VCS tool put it there).
	mustWriteFile(t, filepath.Join(dest, "package.json"), "checked out")

	vcs := &mockVCS{mainPath: main}
	runner := &mockRsyncRunner{
		versionResult: &CmdResult{Stdout: "rsync  version 3.2.7\n"},
		runResult:     &CmdResult{Stdout: "Number of created files: 0\n"},
	}
	o := newOrchestratorWithRunner(vcs, runner, CopyConfig{Enabled: true}, LinkConfig{Patterns: []string{"package.json"}, BeforeCopy: true})

	result, err := o.Setup(context.Background(), dest, SetupOptions{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if len(result.LinkStats.Conflicts) != 0 {
		t.Errorf("LinkStats.Conflicts = %v, want none (replaced silently)", result.LinkStats.Conflicts)
	}
	if result.LinkStats.Created != 1 {
		t.Errorf("LinkStats.Created = %d, want 1", result.LinkStats.Created)
	}
}

func boolPtr(b bool) *bool { return &b }

func TestMergeCopyConfigOverrideDisablesEnabledBase(t *testing.T) {
	t.Parallel()

	base := CopyConfig{Enabled: true, Flags: []string{"-a"}, Exclude: []string{"node_modules"}}
	merged := mergeCopyConfig(base, CopyOverride{Enabled: boolPtr(false)})
	if merged.Enabled {
		t.Error("merged.Enabled = true, want false (explicit override must be able to turn off a true base)")
	}
	if len(merged.Exclude) != 1 || merged.Exclude[0] != "node_modules" {
		t.Errorf("merged.Exclude = %v, want base preserved when override has none", merged.Exclude)
	}

	unset := mergeCopyConfig(base, CopyOverride{})
	if !unset.Enabled {
		t.Error("merged.Enabled = false with no override set, want base value true preserved")
	}
}

func TestMergeLinkConfigOverrideDisablesScalars(t *testing.T) {
	t.Parallel()

	base := LinkConfig{Relative: true, BeforeCopy: true, Patterns: []string{".env"}}
	merged := mergeLinkConfig(base, LinkOverride{Relative: boolPtr(false), BeforeCopy: boolPtr(false)})
	if merged.Relative {
		t.Error("merged.Relative = true, want false")
	}
	if merged.BeforeCopy {
		t.Error("merged.BeforeCopy = true, want false")
	}
	if len(merged.Patterns) != 1 || merged.Patterns[0] != ".env" {
		t.Errorf("merged.Patterns = %v, want base preserved", merged.Patterns)
	}

	unset := mergeLinkConfig(base, LinkOverride{})
	if !unset.Relative || !unset.BeforeCopy {
		t.Errorf("unset override changed scalars: %+v", unset)
	}
}

func TestSetupOptionsCopyEnabledFalseOverridesRepoEnabledTrue(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	main := mustMkWorktree(t, root, map[string]string{"package.json": "{}"})
	dest := filepath.Join(root, "feature")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}

	vcs := &mockVCS{mainPath: main}
	runner := &mockRsyncRunner{
		versionResult: &CmdResult{Stdout: "rsync  version 3.2.7\n"},
		runResult:     &CmdResult{Stdout: "Number of created files: 1\n"},
	}
	o := newOrchestratorWithRunner(vcs, runner, CopyConfig{Enabled: true}, LinkConfig{})

	result, err := o.Setup(context.Background(), dest, SetupOptions{
		Copy: CopyOverride{Enabled: boolPtr(false)},
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if runner.lastArgs != nil {
		t.Errorf("expected bulk copy to be skipped when override disables a repo-enabled base, got rsync args %v", runner.lastArgs)
	}
	if result.CopyStats == nil || result.CopyStats.FilesTransferred != 0 {
		t.Errorf("CopyStats = %+v, want zero-value (copy skipped)", result.CopyStats)
	}
}

func TestSetupDirectoryPatternCoversFilePattern(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	main := mustMkWorktree(t, root, map[string]string{
		"vendor/a": "a",
		"vendor/b": "b",
	})
	dest := filepath.Join(root, "feature")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}

	vcs := &mockVCS{mainPath: main}
	runner := &mockRsyncRunner{
		versionResult: &CmdResult{Stdout: "rsync  version 3.2.7\n"},
		runResult:     &CmdResult{Stdout: "Number of created files: 0\n"},
	}
	o := newOrchestratorWithRunner(vcs, runner, CopyConfig{Enabled: true}, LinkConfig{Patterns: []string{"vendor", "vendor/*"}, BeforeCopy: true})

	result, err := o.Setup(context.Background(), dest, SetupOptions{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if result.LinkStats.Created != 1 {
		t.Errorf("LinkStats.Created = %d, want 1 (only the covering vendor directory)", result.LinkStats.Created)
	}

	foundVendorExclude := false
	for _, a := range runner.lastArgs {
		if a == "/vendor/" {
			foundVendorExclude = true
		}
	}
	if !foundVendorExclude {
		t.Errorf("expected copy to exclude /vendor/ as a directory anchor, got args %v", runner.lastArgs)
	}
}
