// Package syncq is the client-side offline operation queue. Mutating
// requests issued while the server is unreachable are persisted to a JSON
// file and replayed in FIFO order on reconnect; the server's idempotency
// gate turns at-least-once replay into exactly-once effects.
package syncq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// Status is the lifecycle state of one queued operation.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRetrying    Status = "retrying"
	StatusSynced      Status = "synced"
	StatusConflict    Status = "conflict"
	StatusNeedsReview Status = "needs_review"
	StatusFailed      Status = "failed"
	StatusResolved    Status = "resolved"
	StatusIgnored     Status = "ignored"
)

// terminal reports whether a status needs no further replay attempts.
func (s Status) terminal() bool {
	switch s {
	case StatusSynced, StatusConflict, StatusNeedsReview, StatusResolved, StatusIgnored:
		return true
	}
	return false
}

// Operation is one queued mutating request.
type Operation struct {
	ID             string            `json:"id"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Data           json.RawMessage   `json:"data,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	CreatedAt      time.Time         `json:"created_at"`
	Retries        int               `json:"retries"`
	LastAttemptAt  *time.Time        `json:"last_attempt_at,omitempty"`
	NextAttemptAt  *time.Time        `json:"next_attempt_at,omitempty"`
	Status         Status            `json:"status"`
	LastError      string            `json:"last_error,omitempty"`
	AdminNote      string            `json:"admin_note,omitempty"`
}

// AuditEntry records one admin action against the queue.
type AuditEntry struct {
	At     time.Time `json:"at"`
	OpID   string    `json:"op_id"`
	Action string    `json:"action"`
	Note   string    `json:"note,omitempty"`
}

// HistoryEntry records the final outcome of one queued operation, kept
// after synced operations leave the queue itself.
type HistoryEntry struct {
	At     time.Time `json:"at"`
	OpID   string    `json:"op_id"`
	URL    string    `json:"url"`
	Method string    `json:"method"`
	Status Status    `json:"status"`
	Error  string    `json:"error,omitempty"`
}

// maxAuditEntries caps the audit history kept in the queue file.
const maxAuditEntries = 200

// maxHistoryEntries caps the outcome log kept in the queue file.
const maxHistoryEntries = 200

// defaultRetryCap is how many attempts an operation gets before it stops
// being retried automatically.
const defaultRetryCap = 5

// queueFile is the on-disk shape.
type queueFile struct {
	Operations []Operation    `json:"operations"`
	Audit      []AuditEntry   `json:"audit,omitempty"`
	History    []HistoryEntry `json:"history,omitempty"`
}

// Queue is a file-backed FIFO of queued operations. All methods are safe
// for concurrent use; replay passes are additionally serialized by an
// atomic latch so only one pass is in flight.
type Queue struct {
	mu       sync.Mutex
	path     string
	ops      []Operation
	audit    []AuditEntry
	history  []HistoryEntry
	syncing  atomic.Bool
	RetryCap int
	Now      func() time.Time
}

// Open loads the queue file at path, creating an empty queue when the
// file does not exist.
func Open(path string) (*Queue, error) {
	q := &Queue{
		path:     path,
		RetryCap: defaultRetryCap,
		Now:      func() time.Time { return time.Now().UTC() },
	}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=syncq.open: %w", err)
	}
	var f queueFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("op=syncq.decode: %w", err)
	}
	q.ops = f.Operations
	q.audit = f.Audit
	q.history = f.History
	return q, nil
}

// persist writes the queue atomically: temp file then rename.
func (q *Queue) persist() error {
	raw, err := json.MarshalIndent(queueFile{Operations: q.ops, Audit: q.audit, History: q.history}, "", "  ")
	if err != nil {
		return fmt.Errorf("op=syncq.encode: %w", err)
	}
	dir := filepath.Dir(q.path)
	tmp, err := os.CreateTemp(dir, ".syncq-*")
	if err != nil {
		return fmt.Errorf("op=syncq.tmpfile: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("op=syncq.write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("op=syncq.close: %w", err)
	}
	if err := os.Rename(name, q.path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("op=syncq.rename: %w", err)
	}
	return nil
}

// Enqueue appends an operation. Missing ids and idempotency keys are
// generated so every replay carries a stable key.
func (q *Queue) Enqueue(op Operation) (Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.IdempotencyKey == "" {
		op.IdempotencyKey = uuid.NewString()
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = q.Now()
	}
	op.Status = StatusPending
	q.ops = append(q.ops, op)
	return op, q.persist()
}

// Snapshot returns a copy of the queue contents.
func (q *Queue) Snapshot() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Operation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Depth counts operations still awaiting replay.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, op := range q.ops {
		if !op.Status.terminal() {
			n++
		}
	}
	return n
}

// Get returns one operation by id.
func (q *Queue) Get(id string) (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.ops {
		if op.ID == id {
			return op, true
		}
	}
	return Operation{}, false
}

// Retry resets a stuck operation for another replay pass.
func (q *Queue) Retry(id, note string) error {
	return q.adminAction(id, "retry", note, func(op *Operation) {
		op.Status = StatusPending
		op.Retries = 0
		op.NextAttemptAt = nil
		op.LastError = ""
	})
}

// Resolve marks an operation handled out of band without re-sending it.
func (q *Queue) Resolve(id, note string) error {
	return q.adminAction(id, "resolve", note, func(op *Operation) {
		op.Status = StatusResolved
	})
}

// Ignore drops an operation from future replays while keeping its record.
func (q *Queue) Ignore(id, note string) error {
	return q.adminAction(id, "ignore", note, func(op *Operation) {
		op.Status = StatusIgnored
	})
}

func (q *Queue) adminAction(id, action, note string, apply func(*Operation)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.ops {
		if q.ops[i].ID != id {
			continue
		}
		apply(&q.ops[i])
		q.ops[i].AdminNote = note
		q.audit = append(q.audit, AuditEntry{At: q.Now(), OpID: id, Action: action, Note: note})
		if len(q.audit) > maxAuditEntries {
			q.audit = q.audit[len(q.audit)-maxAuditEntries:]
		}
		if st := q.ops[i].Status; st == StatusResolved || st == StatusIgnored {
			q.recordOutcomeLocked(q.ops[i])
		}
		return q.persist()
	}
	return fmt.Errorf("op=syncq.%s: operation %s not found", action, id)
}

// recordOutcomeLocked appends the operation's outcome to the capped
// history log. Callers hold q.mu.
func (q *Queue) recordOutcomeLocked(op Operation) {
	q.history = append(q.history, HistoryEntry{
		At:     q.Now(),
		OpID:   op.ID,
		URL:    op.URL,
		Method: op.Method,
		Status: op.Status,
		Error:  op.LastError,
	})
	if len(q.history) > maxHistoryEntries {
		q.history = q.history[len(q.history)-maxHistoryEntries:]
	}
}

// Audit returns a copy of the admin action history.
func (q *Queue) Audit() []AuditEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]AuditEntry, len(q.audit))
	copy(out, q.audit)
	return out
}

// History returns a copy of the operation outcome log, oldest first.
func (q *Queue) History() []HistoryEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]HistoryEntry, len(q.history))
	copy(out, q.history)
	return out
}

// retryDelay computes the backoff before attempt n (zero-based), using an
// exponential schedule of base 1s, factor 2, cap 60s, jitter 25%.
func retryDelay(n int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.RandomizationFactor = 0.25
	b.MaxElapsedTime = 0
	b.Reset()
	d := b.NextBackOff()
	for i := 0; i < n; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Interval picks the adaptive timer interval for the next pass.
func (q *Queue) Interval(quality string) time.Duration {
	switch quality {
	case "slow-2g", "2g":
		return 25 * time.Second
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, op := range q.ops {
		if op.Status == StatusPending || op.Status == StatusRetrying || op.Status == StatusFailed {
			return 5 * time.Second
		}
	}
	return 10 * time.Second
}
