package wt

import (
	"fmt"
	"os"
	"time"
)

// EffectKind distinguishes the four kinds of reversible filesystem mutation
// the Transaction can compensate.
type EffectKind int

const (
	CreateLink EffectKind = iota
	BulkCopy
	CreateDir
	DeleteFile
)

func (k EffectKind) String() string {
	switch k {
	case CreateLink:
		return "CreateLink"
	case BulkCopy:
		return "BulkCopy"
	case CreateDir:
		return "CreateDir"
	case DeleteFile:
		return "DeleteFile"
	default:
		return "Unknown"
	}
}

// Effect is one ledger entry: a mutation that has already succeeded and can
// be compensated in reverse order.
type Effect struct {
	Kind      EffectKind
	Path      string
	Metadata  map[string]string
	Timestamp time.Time
}

// WarnFunc receives a human-readable warning plus structured fields
// describing the effect that could not be cleanly compensated. It decouples
// the Transaction from any particular logger.
type WarnFunc func(message string, fields map[string]string)

// RollbackOutcome reports what rollback() did. Checkpoints is preserved here
// even though the Transaction's own checkpoint store is cleared by rollback:
// callers that need the "worktree" checkpoint after compensation (the
// orchestrator does) must read it from the outcome, not from the Transaction.
type RollbackOutcome struct {
	Checkpoints          map[string]map[string]string
	FailedRollbacks      []string
	RolledBackOperations int
}

// Transaction is an append-only ledger of reversible effects plus a set of
// named checkpoints. record is infallible by design: storage is an in-memory
// slice/map, never I/O, so a caller can rely on every successful mutation
// being tracked.
type Transaction struct {
	warn        WarnFunc
	checkpoints map[string]map[string]string
	effects     []Effect
}

// NewTransaction creates an empty Transaction. warn may be nil, in which
// case warnings are silently dropped.
func NewTransaction(warn WarnFunc) *Transaction {
	if warn == nil {
		warn = func(string, map[string]string) {}
	}
	return &Transaction{
		warn:        warn,
		checkpoints: make(map[string]map[string]string),
	}
}

// record appends a new effect to the ledger. Infallible.
func (t *Transaction) record(kind EffectKind, path string, metadata map[string]string) {
	t.effects = append(t.effects, Effect{
		Kind:      kind,
		Path:      path,
		Metadata:  metadata,
		Timestamp: time.Now(),
	})
}

// createCheckpoint inserts or replaces a named checkpoint.
func (t *Transaction) createCheckpoint(name string, payload map[string]string) {
	t.checkpoints[name] = payload
}

// getCheckpoint reads a checkpoint without removing it.
func (t *Transaction) getCheckpoint(name string) (map[string]string, bool) {
	cp, ok := t.checkpoints[name]
	return cp, ok
}

// getOperations returns a snapshot of the recorded effects.
func (t *Transaction) getOperations() []Effect {
	out := make([]Effect, len(t.effects))
	copy(out, t.effects)
	return out
}

// clear drops all ledger entries and checkpoints, making the Transaction
// reusable.
func (t *Transaction) clear() {
	t.effects = nil
	t.checkpoints = make(map[string]map[string]string)
}

// rollback compensates every recorded effect in strict reverse insertion
// order. Per-effect failures are collected in FailedRollbacks and never
// abort the sweep. Checkpoints present before this call are snapshotted into
// the outcome before the ledger is cleared -- this is what lets a caller
// retrieve the "worktree" checkpoint after rollback has already wiped the
// Transaction's own store.
func (t *Transaction) rollback() RollbackOutcome {
	checkpoints := make(map[string]map[string]string, len(t.checkpoints))
	for name, payload := range t.checkpoints {
		checkpoints[name] = payload
	}

	outcome := RollbackOutcome{Checkpoints: checkpoints}

	for i := len(t.effects) - 1; i >= 0; i-- {
		effect := t.effects[i]
		if err := t.compensate(effect); err != nil {
			outcome.FailedRollbacks = append(outcome.FailedRollbacks, fmt.Sprintf("%s %s: %v", effect.Kind, effect.Path, err))
			continue
		}
		outcome.RolledBackOperations++
	}

	t.clear()
	return outcome
}

func (t *Transaction) compensate(effect Effect) error {
	switch effect.Kind {
	case CreateLink:
		return t.compensateCreateLink(effect)
	case BulkCopy:
		return t.compensateBulkCopy(effect)
	case CreateDir:
		return t.compensateCreateDir(effect)
	case DeleteFile:
		return t.compensateDeleteFile(effect)
	default:
		return fmt.Errorf("unknown effect kind %v", effect.Kind)
	}
}

// compensateCreateLink unlinks the path only if it is still a symbolic link.
// If something else now occupies the path, that is left untouched and a
// warning is emitted instead -- P3.
func (t *Transaction) compensateCreateLink(effect Effect) error {
	fi, err := os.Lstat(effect.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		t.warn("path exists but is not a symbolic link", map[string]string{"kind": effect.Kind.String(), "path": effect.Path})
		return nil
	}
	return os.Remove(effect.Path)
}

// compensateCreateDir removes the directory only if it is still empty -- P4.
func (t *Transaction) compensateCreateDir(effect Effect) error {
	entries, err := os.ReadDir(effect.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		t.warn("directory not empty", map[string]string{"kind": effect.Kind.String(), "path": effect.Path})
		return nil
	}
	return os.Remove(effect.Path)
}

// compensateBulkCopy removes the recorded destination subtree entirely. Safe
// only because the orchestrator's precondition guarantees the destination
// was just created by the version-control capability -- see the "bulk-copy
// rollback granularity" design note.
func (t *Transaction) compensateBulkCopy(effect Effect) error {
	destination, ok := effect.Metadata["destination"]
	if !ok || destination == "" {
		t.warn("no destination metadata recorded", map[string]string{"kind": effect.Kind.String(), "path": effect.Path})
		return nil
	}
	if _, err := os.Stat(destination); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(destination)
}

// compensateDeleteFile restores the original contents from the matching
// "file:<path>" checkpoint, if one was taken before the delete.
func (t *Transaction) compensateDeleteFile(effect Effect) error {
	cp, ok := t.getCheckpoint("file:" + effect.Path)
	if !ok {
		t.warn("no checkpoint backup available", map[string]string{"kind": effect.Kind.String(), "path": effect.Path})
		return nil
	}
	return os.WriteFile(effect.Path, []byte(cp["contents"]), 0644)
}
