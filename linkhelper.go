package wt

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LinkConfig is the resolved `link` configuration section.
type LinkConfig struct {
	Patterns   []string
	Relative   bool
	BeforeCopy bool
}

// LinkPair is a source/destination pair produced by expanding link patterns.
type LinkPair struct {
	Source string
	Target string
}

// LinkStats summarizes one createLinks batch.
type LinkStats struct {
	Conflicts []Conflict
	Created   int
	Skipped   int
}

// LinkHelper materializes filesystem links according to configured glob
// patterns.
type LinkHelper struct{}

// NewLinkHelper creates a LinkHelper. It holds no state of its own; every
// operation acts only on the paths passed to it.
func NewLinkHelper() *LinkHelper {
	return &LinkHelper{}
}

// matchPatterns expands every glob pattern against baseDir and returns the
// matched paths relative to baseDir. Deduplication invariant: if the result
// set contains both a directory D and any path strictly inside D, only D is
// kept -- this prevents double-linking a directory and its contents (P8).
func (l *LinkHelper) matchPatterns(baseDir string, patterns []string) ([]string, error) {
	matchSet := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(baseDir, pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			rel, err := filepath.Rel(baseDir, m)
			if err != nil {
				continue
			}
			matchSet[rel] = true
		}
	}

	relPaths := make([]string, 0, len(matchSet))
	for p := range matchSet {
		relPaths = append(relPaths, p)
	}
	sort.Strings(relPaths)

	var kept []string
	for _, p := range relPaths {
		covered := false
		for _, k := range kept {
			if p == k || strings.HasPrefix(p, k+string(filepath.Separator)) {
				covered = true
				break
			}
		}
		if !covered {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

// detectConflicts classifies each link's target, if it already exists.
func (l *LinkHelper) detectConflicts(links []LinkPair) []Conflict {
	var conflicts []Conflict
	for _, link := range links {
		fi, err := os.Lstat(link.Target)
		if err != nil {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Source: link.Source,
			Target: link.Target,
			Reason: classifyExisting(fi),
		})
	}
	return conflicts
}

func classifyExisting(fi os.FileInfo) string {
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		return "symbolic-link"
	case fi.IsDir():
		return "directory"
	default:
		return "file"
	}
}

// createLink creates a single symbolic link at target pointing at source,
// recording a CreateLink effect on success. If target already exists and
// replaceExisting is false, it fails with a LinkConflictError.
func (l *LinkHelper) createLink(tx *Transaction, source, target string, relative, replaceExisting bool) error {
	if fi, err := os.Lstat(target); err == nil {
		if !replaceExisting {
			return &LinkConflictError{Conflicts: []Conflict{{
				Source: source,
				Target: target,
				Reason: classifyExisting(fi),
			}}}
		}
		if err := os.RemoveAll(target); err != nil {
			return err
		}
	}

	resolvedSource, err := filepath.Abs(source)
	if err != nil {
		resolvedSource = source
	}

	linkValue := resolvedSource
	if relative {
		rel, err := filepath.Rel(filepath.Dir(target), resolvedSource)
		if err == nil {
			linkValue = rel
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.Symlink(linkValue, target); err != nil {
		return err
	}

	tx.record(CreateLink, target, map[string]string{"target": resolvedSource})
	return nil
}

// createLinks orchestrates a batch: expand patterns, build source/target
// pairs, detect conflicts, and either fail the whole batch (when conflicts
// exist and skipConflicts is false) or create every link, replacing
// conflicting destinations when replaceExisting is true and otherwise
// skipping them.
func (l *LinkHelper) createLinks(tx *Transaction, sourceDir, targetDir string, cfg LinkConfig, replaceExisting, skipConflicts bool) (LinkStats, error) {
	relPaths, err := l.matchPatterns(sourceDir, cfg.Patterns)
	if err != nil {
		return LinkStats{}, err
	}

	links := make([]LinkPair, 0, len(relPaths))
	for _, rel := range relPaths {
		links = append(links, LinkPair{
			Source: filepath.Join(sourceDir, rel),
			Target: filepath.Join(targetDir, rel),
		})
	}

	conflicts := l.detectConflicts(links)
	if len(conflicts) > 0 && !skipConflicts {
		return LinkStats{Conflicts: conflicts}, &LinkConflictError{Conflicts: conflicts}
	}

	conflictTargets := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		conflictTargets[c.Target] = true
	}

	var stats LinkStats
	for _, link := range links {
		if conflictTargets[link.Target] && !replaceExisting {
			stats.Skipped++
			continue
		}
		if err := l.createLink(tx, link.Source, link.Target, cfg.Relative, replaceExisting); err != nil {
			var lce *LinkConflictError
			if errors.As(err, &lce) {
				stats.Conflicts = append(stats.Conflicts, lce.Conflicts...)
				stats.Skipped++
				continue
			}
			return stats, err
		}
		stats.Created++
	}
	return stats, nil
}

// verifyLink reports whether linkPath is a symbolic link whose resolved
// target equals expectedTarget.
func (l *LinkHelper) verifyLink(linkPath, expectedTarget string) bool {
	fi, err := os.Lstat(linkPath)
	if err != nil || fi.Mode()&os.ModeSymlink == 0 {
		return false
	}
	value, err := os.Readlink(linkPath)
	if err != nil {
		return false
	}
	if !filepath.IsAbs(value) {
		value = filepath.Join(filepath.Dir(linkPath), value)
	}
	resolvedExpected, err := filepath.Abs(expectedTarget)
	if err != nil {
		resolvedExpected = expectedTarget
	}
	return filepath.Clean(value) == filepath.Clean(resolvedExpected)
}
