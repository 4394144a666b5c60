package wt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// vcsMetadataDir is always excluded from bulk copies: the destination is a
// worktree sharing the same object store, so its own ".git" file/directory
// must never be overwritten by a copy of the source tree's.
const vcsMetadataDir = ".git"

// rsyncManagedFlags are flags the Bulk-Copy Helper decides for itself. A
// user-supplied flag matching one of these prefixes is dropped from
// buildArgs: the helper, not the caller, controls whether stats/progress are
// requested and never allows a dry run (each invocation targets a fresh
// destination).
var rsyncManagedFlags = []string{
	"--stats",
	"--progress",
	"--info=progress",
	"--dry-run",
	"-n",
}

// CopyStats summarizes one bulk-copy invocation.
type CopyStats struct {
	FilesTransferred int
	BytesSent        int64
	TotalBytes       int64
	DurationMs       int64
	Success          bool
}

// CopyProgress is reported to a ProgressFunc each time a whole-file
// completion line is detected in the copy program's output.
type CopyProgress struct {
	FilesTransferred int
	TotalFiles       int // 0 if unknown
	Percentage       float64
	HasPercentage    bool
}

// ProgressFunc receives incremental copy progress.
type ProgressFunc func(CopyProgress)

// CopyOptions configures a single copy() call.
type CopyOptions struct {
	ExcludePatterns []string
	TotalFiles      int // 0 means unknown
	OnProgress      ProgressFunc
}

// CopyConfig is the resolved `copy` configuration section.
type CopyConfig struct {
	Enabled bool
	Flags   []string
	Exclude []string
}

// RsyncRunner executes the external bulk-copy program, streaming its
// stdout line-by-line to onLine so callers can classify progress as it
// happens. It mirrors GitRunner's shape so tests can supply a mock the same
// way MockGitRunner mocks git.
type RsyncRunner interface {
	Run(ctx context.Context, args []string, onLine func(line string)) (*CmdResult, error)
	Version(ctx context.Context) (*CmdResult, error)
}

// DefaultRsyncRunner implements RsyncRunner using os/exec against the real
// rsync binary.
type DefaultRsyncRunner struct{}

func (r *DefaultRsyncRunner) Run(ctx context.Context, args []string, onLine func(line string)) (*CmdResult, error) {
	cmd := exec.CommandContext(ctx, "rsync", args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var stdout strings.Builder
	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		stdout.WriteString(line)
		stdout.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		cmd.Wait()
		return nil, err
	}

	waitErr := cmd.Wait()
	result := &CmdResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, waitErr
	}
	return result, waitErr
}

func (r *DefaultRsyncRunner) Version(ctx context.Context) (*CmdResult, error) {
	cmd := exec.CommandContext(ctx, "rsync", "--version")
	out, err := cmd.Output()
	result := &CmdResult{Stdout: string(out)}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.Stderr = string(exitErr.Stderr)
		result.ExitCode = exitErr.ExitCode()
	}
	return result, err
}

// RsyncVersionInfo is the cached result of probing the copy program.
type RsyncVersionInfo struct {
	Major           int
	Minor           int
	Installed       bool
	SupportsProgress bool
	SupportsStats   bool
}

var rsyncVersionLineRe = regexp.MustCompile(`(\d+)\.(\d+)`)

// CopyHelper wraps the external bulk-copy program (rsync).
type CopyHelper struct {
	runner  RsyncRunner
	version *RsyncVersionInfo
}

// NewCopyHelper creates a CopyHelper using the real rsync binary.
func NewCopyHelper() *CopyHelper {
	return &CopyHelper{runner: &DefaultRsyncRunner{}}
}

// NewCopyHelperWithRunner creates a CopyHelper over a custom RsyncRunner,
// for testing.
func NewCopyHelperWithRunner(runner RsyncRunner) *CopyHelper {
	return &CopyHelper{runner: runner}
}

// isInstalled probes for the copy program by attempting a version query.
func (c *CopyHelper) isInstalled(ctx context.Context) bool {
	info := c.versionInfo(ctx)
	return info.Installed
}

// versionInfo returns cached information about the installed copy program.
func (c *CopyHelper) versionInfo(ctx context.Context) *RsyncVersionInfo {
	if c.version != nil {
		return c.version
	}

	info := &RsyncVersionInfo{}
	result, err := c.runner.Version(ctx)
	if err != nil || result == nil {
		c.version = info
		return info
	}

	firstLine := result.Stdout
	if idx := strings.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	match := rsyncVersionLineRe.FindStringSubmatch(firstLine)
	if match == nil {
		c.version = info
		return info
	}

	info.Installed = true
	info.Major, _ = strconv.Atoi(match[1])
	info.Minor, _ = strconv.Atoi(match[2])
	info.SupportsProgress = true
	info.SupportsStats = true
	c.version = info
	return info
}

// buildArgs constructs the rsync invocation argument list.
func (c *CopyHelper) buildArgs(source, destination string, cfg CopyConfig, additionalExcludes []string) []string {
	var args []string

	for _, flag := range cfg.Flags {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}
		if isManagedFlag(flag) {
			continue
		}
		args = append(args, flag)
	}

	args = append(args, "--stats", "--info=progress2")

	seen := make(map[string]bool)
	addExclude := func(pattern string) {
		if pattern == "" || seen[pattern] {
			return
		}
		seen[pattern] = true
		args = append(args, "--exclude", pattern)
	}

	addExclude(vcsMetadataDir)
	for _, pattern := range cfg.Exclude {
		addExclude(pattern)
	}
	for _, pattern := range additionalExcludes {
		addExclude(pattern)
	}

	normalizedSource := source
	if !strings.HasSuffix(normalizedSource, "/") {
		normalizedSource += "/"
	}
	args = append(args, normalizedSource, destination)
	return args
}

func isManagedFlag(flag string) bool {
	for _, managed := range rsyncManagedFlags {
		if flag == managed || strings.HasPrefix(flag, managed) {
			return true
		}
	}
	return false
}

// copy spawns the external program and returns its parsed statistics. On
// success it records a BulkCopy effect into tx.
func (c *CopyHelper) copy(ctx context.Context, tx *Transaction, source, destination string, cfg CopyConfig, opts CopyOptions) (CopyStats, error) {
	if !c.isInstalled(ctx) {
		return CopyStats{}, ErrCopyProgramMissing
	}

	args := c.buildArgs(source, destination, cfg, opts.ExcludePatterns)

	filesTransferred := 0
	start := time.Now()

	onLine := func(line string) {
		classification := c.parseProgressLine(line)
		if !classification.isFileComplete {
			return
		}
		filesTransferred++
		if opts.OnProgress == nil {
			return
		}
		progress := CopyProgress{FilesTransferred: filesTransferred, TotalFiles: opts.TotalFiles}
		if opts.TotalFiles > 0 {
			progress.HasPercentage = true
			progress.Percentage = 100 * float64(filesTransferred) / float64(opts.TotalFiles)
		}
		opts.OnProgress(progress)
	}

	result, err := c.runner.Run(ctx, args, onLine)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		stderr := ""
		if result != nil {
			stderr = result.Stderr
		}
		return CopyStats{}, &CapabilityError{Op: "rsync copy", Err: fmt.Errorf("%w (stderr: %s)", err, stderr)}
	}

	stats := c.parseStats(result.Stdout, elapsed)
	tx.record(BulkCopy, destination, map[string]string{"destination": destination})
	return stats, nil
}

// estimateFileCount runs the copy program in a non-mutating mode and counts
// the files it would transfer, used to drive progress percentages.
func (c *CopyHelper) estimateFileCount(ctx context.Context, source string, cfg CopyConfig) int {
	args := append([]string{"--dry-run", "--stats"}, c.buildArgs(source, "/dev/null", cfg, nil)...)
	result, err := c.runner.Run(ctx, args, nil)
	if err != nil || result == nil {
		return 0
	}
	stats := c.parseStats(result.Stdout, 0)
	return stats.FilesTransferred
}

type progressClassification struct {
	isFileComplete bool
	isFileName     bool
}

var xferTokenRe = regexp.MustCompile(`\(xfer#\d+, to-check=\d+/\d+\)`)
var ratioLineRe = regexp.MustCompile(`^\s*[\d,]+\s+\d+%\s`)

// parseProgressLine classifies a single line of the copy program's output.
func (c *CopyHelper) parseProgressLine(line string) progressClassification {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return progressClassification{}
	}
	if isStatsLine(trimmed) {
		return progressClassification{}
	}
	if xferTokenRe.MatchString(line) && strings.Contains(line, "100%") {
		return progressClassification{isFileComplete: true}
	}
	if ratioLineRe.MatchString(line) {
		return progressClassification{}
	}
	return progressClassification{isFileName: true}
}

var statsLinePrefixes = []string{
	"Number of",
	"Total file size",
	"Total transferred file size",
	"sent ",
	"Total bytes sent",
	"Literal data",
	"Matched data",
	"File list",
	"total size is",
}

func isStatsLine(line string) bool {
	for _, prefix := range statsLinePrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

var (
	filesCreatedRe     = regexp.MustCompile(`Number of created files:\s*([\d,]+)`)
	filesRegularRe     = regexp.MustCompile(`Number of regular files transferred:\s*([\d,]+)`)
	filesTransferredRe = regexp.MustCompile(`Number of files transferred:\s*([\d,]+)`)
	totalFileSizeRe    = regexp.MustCompile(`Total file size:\s*([\d,]+)\s*(bytes|B)?`)
	totalTransferredRe = regexp.MustCompile(`Total transferred file size:\s*([\d,]+)\s*(bytes|B)?`)
	sentBytesRe        = regexp.MustCompile(`sent\s+([\d,]+)\s*bytes`)
	totalBytesSentRe   = regexp.MustCompile(`Total bytes sent:\s*([\d,]+)`)
)

// parseStats extracts CopyStats from the copy program's final statistics
// block, tolerating both widely-deployed output dialects. Unknown format
// yields zeros with success=true (the program still exited cleanly).
func (c *CopyHelper) parseStats(output string, elapsedMs int64) CopyStats {
	stats := CopyStats{Success: true, DurationMs: elapsedMs}

	if m := filesCreatedRe.FindStringSubmatch(output); m != nil {
		stats.FilesTransferred = parseCount(m[1])
	} else if m := filesRegularRe.FindStringSubmatch(output); m != nil {
		stats.FilesTransferred = parseCount(m[1])
	} else if m := filesTransferredRe.FindStringSubmatch(output); m != nil {
		stats.FilesTransferred = parseCount(m[1])
	}

	if m := totalFileSizeRe.FindStringSubmatch(output); m != nil {
		stats.TotalBytes = int64(parseCount(m[1]))
	} else if m := totalTransferredRe.FindStringSubmatch(output); m != nil {
		stats.TotalBytes = int64(parseCount(m[1]))
	}

	if m := sentBytesRe.FindStringSubmatch(output); m != nil {
		stats.BytesSent = int64(parseCount(m[1]))
	} else if m := totalBytesSentRe.FindStringSubmatch(output); m != nil {
		stats.BytesSent = int64(parseCount(m[1]))
	}

	return stats
}

func parseCount(s string) int {
	s = strings.ReplaceAll(s, ",", "")
	n, _ := strconv.Atoi(s)
	return n
}
