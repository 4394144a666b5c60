package wt

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockRsyncRunner implements RsyncRunner for testing CopyHelper.
type mockRsyncRunner struct {
	versionResult *CmdResult
	versionErr    error
	runResult     *CmdResult
	runErr        error
	runLines      []string
	lastArgs      []string
}

func (m *mockRsyncRunner) Run(ctx context.Context, args []string, onLine func(line string)) (*CmdResult, error) {
	m.lastArgs = args
	if onLine != nil {
		for _, line := range m.runLines {
			onLine(line)
		}
	}
	return m.runResult, m.runErr
}

func (m *mockRsyncRunner) Version(ctx context.Context) (*CmdResult, error) {
	return m.versionResult, m.versionErr
}

func TestCopyHelperIsInstalled(t *testing.T) {
	t.Parallel()

	t.Run("installed", func(t *testing.T) {
		runner := &mockRsyncRunner{versionResult: &CmdResult{Stdout: "rsync  version 3.2.7  protocol version 31\n"}}
		helper := NewCopyHelperWithRunner(runner)
		if !helper.isInstalled(context.Background()) {
			t.Error("isInstalled() = false, want true")
		}
	})

	t.Run("missing", func(t *testing.T) {
		runner := &mockRsyncRunner{versionErr: errors.New("not found")}
		helper := NewCopyHelperWithRunner(runner)
		if helper.isInstalled(context.Background()) {
			t.Error("isInstalled() = true, want false")
		}
	})
}

func TestBuildArgsFiltersManagedFlagsAndDedupsExcludes(t *testing.T) {
	t.Parallel()

	helper := NewCopyHelperWithRunner(&mockRsyncRunner{})
	cfg := CopyConfig{
		Flags:   []string{"-a", "--progress", "--dry-run", "  ", "--delete"},
		Exclude: []string{"node_modules", ".git"},
	}
	args := helper.buildArgs("/src", "/dst", cfg, []string{"/package.json"})

	joined := strings.Join(args, " ")
	if strings.Contains(joined, "--progress") && !strings.Contains(joined, "--info=progress2") {
		t.Errorf("managed --progress flag should have been filtered: %v", args)
	}
	if strings.Contains(joined, "--dry-run") {
		t.Errorf("managed --dry-run flag should have been filtered: %v", args)
	}
	if !strings.Contains(joined, "-a") || !strings.Contains(joined, "--delete") {
		t.Errorf("user flags should be preserved: %v", args)
	}
	if strings.Count(joined, "--exclude .git") != 1 {
		t.Errorf("vcs metadata dir should be excluded exactly once: %v", args)
	}
	if !strings.HasSuffix(args[len(args)-2], "/src/") {
		t.Errorf("source should be normalized with trailing separator, got %q", args[len(args)-2])
	}
}

func TestParseProgressLineDetectsFileComplete(t *testing.T) {
	t.Parallel()

	helper := NewCopyHelperWithRunner(&mockRsyncRunner{})

	tests := []struct {
		name string
		line string
		want progressClassification
	}{
		{"file complete", "          1,234 100%   12.34kB/s    0:00:00 (xfer#1, to-check=0/1)", progressClassification{isFileComplete: true}},
		{"filename only", "src/index.ts", progressClassification{isFileName: true}},
		{"stats line", "Number of files: 12", progressClassification{}},
		{"blank", "", progressClassification{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := helper.parseProgressLine(tt.line)
			if got != tt.want {
				t.Errorf("parseProgressLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseStatsDialectOne(t *testing.T) {
	t.Parallel()

	helper := NewCopyHelperWithRunner(&mockRsyncRunner{})
	output := `
Number of files: 10
Number of created files: 3
Total file size: 4,096 bytes
sent 1,024 bytes  received 20 bytes  2,088.00 bytes/sec
`
	stats := helper.parseStats(output, 500)
	if stats.FilesTransferred != 3 {
		t.Errorf("FilesTransferred = %d, want 3", stats.FilesTransferred)
	}
	if stats.TotalBytes != 4096 {
		t.Errorf("TotalBytes = %d, want 4096", stats.TotalBytes)
	}
	if stats.BytesSent != 1024 {
		t.Errorf("BytesSent = %d, want 1024", stats.BytesSent)
	}
	if !stats.Success {
		t.Error("Success = false, want true")
	}
}

func TestParseStatsDialectTwo(t *testing.T) {
	t.Parallel()

	helper := NewCopyHelperWithRunner(&mockRsyncRunner{})
	output := `
Number of regular files transferred: 7
Total transferred file size: 2,048 bytes
Total bytes sent: 512
`
	stats := helper.parseStats(output, 100)
	if stats.FilesTransferred != 7 {
		t.Errorf("FilesTransferred = %d, want 7", stats.FilesTransferred)
	}
	if stats.TotalBytes != 2048 {
		t.Errorf("TotalBytes = %d, want 2048", stats.TotalBytes)
	}
	if stats.BytesSent != 512 {
		t.Errorf("BytesSent = %d, want 512", stats.BytesSent)
	}
}

func TestParseStatsUnknownFormatYieldsZeros(t *testing.T) {
	t.Parallel()

	helper := NewCopyHelperWithRunner(&mockRsyncRunner{})
	stats := helper.parseStats("nothing recognizable here", 50)
	if stats.FilesTransferred != 0 || stats.TotalBytes != 0 || stats.BytesSent != 0 {
		t.Errorf("expected all-zero stats for unknown format, got %+v", stats)
	}
	if !stats.Success {
		t.Error("unknown format should still report Success=true")
	}
}

func TestCopyRecordsBulkCopyEffect(t *testing.T) {
	t.Parallel()

	runner := &mockRsyncRunner{
		versionResult: &CmdResult{Stdout: "rsync  version 3.2.7\n"},
		runResult:     &CmdResult{Stdout: "Number of created files: 1\n"},
	}
	helper := NewCopyHelperWithRunner(runner)
	tx := NewTransaction(nil)

	stats, err := helper.copy(context.Background(), tx, "/src", "/dst", CopyConfig{}, CopyOptions{})
	if err != nil {
		t.Fatalf("copy() error = %v", err)
	}
	if stats.FilesTransferred != 1 {
		t.Errorf("FilesTransferred = %d, want 1", stats.FilesTransferred)
	}

	ops := tx.getOperations()
	if len(ops) != 1 || ops[0].Kind != BulkCopy || ops[0].Metadata["destination"] != "/dst" {
		t.Errorf("expected one BulkCopy effect for /dst, got %+v", ops)
	}
}

func TestCopyFailsWhenProgramMissing(t *testing.T) {
	t.Parallel()

	runner := &mockRsyncRunner{versionErr: errors.New("not found")}
	helper := NewCopyHelperWithRunner(runner)
	tx := NewTransaction(nil)

	_, err := helper.copy(context.Background(), tx, "/src", "/dst", CopyConfig{}, CopyOptions{})
	if !errors.Is(err, ErrCopyProgramMissing) {
		t.Errorf("copy() error = %v, want ErrCopyProgramMissing", err)
	}
}

func TestCopyReportsProgress(t *testing.T) {
	t.Parallel()

	runner := &mockRsyncRunner{
		versionResult: &CmdResult{Stdout: "rsync  version 3.2.7\n"},
		runResult:     &CmdResult{Stdout: "Number of created files: 2\n"},
		runLines: []string{
			"a.txt 100 100%   1kB/s    0:00:00 (xfer#1, to-check=1/2)",
			"b.txt 100 100%   1kB/s    0:00:00 (xfer#2, to-check=0/2)",
		},
	}
	helper := NewCopyHelperWithRunner(runner)
	tx := NewTransaction(nil)

	var progressCalls []CopyProgress
	_, err := helper.copy(context.Background(), tx, "/src", "/dst", CopyConfig{}, CopyOptions{
		TotalFiles: 2,
		OnProgress: func(p CopyProgress) { progressCalls = append(progressCalls, p) },
	})
	if err != nil {
		t.Fatalf("copy() error = %v", err)
	}
	if len(progressCalls) != 2 {
		t.Fatalf("expected 2 progress callbacks, got %d", len(progressCalls))
	}
	if progressCalls[1].FilesTransferred != 2 || !progressCalls[1].HasPercentage || progressCalls[1].Percentage != 100 {
		t.Errorf("final progress = %+v, want FilesTransferred=2 Percentage=100", progressCalls[1])
	}
}
