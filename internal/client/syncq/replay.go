package syncq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Doer is the HTTP client surface the replayer needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Replayer drains a Queue against a server. One Replayer owns one queue
// file; Sync passes never overlap thanks to the queue's latch.
type Replayer struct {
	Queue   *Queue
	Client  Doer
	BaseURL string
	Token   string
	Log     *slog.Logger
}

// NewReplayer constructs a Replayer with a default HTTP client.
func NewReplayer(q *Queue, baseURL, token string, log *slog.Logger) *Replayer {
	return &Replayer{
		Queue:   q,
		Client:  &http.Client{Timeout: 30 * time.Second},
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Log:     log,
	}
}

// Sync performs one replay pass over the queue in FIFO order. It returns
// the number of operations removed (synced). A pass already in flight
// makes Sync a no-op; overlapping timers and online events collapse into
// a single pass.
func (rp *Replayer) Sync(ctx context.Context) (int, error) {
	if !rp.Queue.syncing.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer rp.Queue.syncing.Store(false)

	now := rp.Queue.Now()
	var synced int
	for _, op := range rp.Queue.Snapshot() {
		if op.Status.terminal() {
			continue
		}
		if op.NextAttemptAt != nil && now.Before(*op.NextAttemptAt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		removed, err := rp.attempt(ctx, op)
		if err != nil {
			rp.Log.Warn("queued operation replay failed",
				slog.String("op_id", op.ID),
				slog.String("url", op.URL),
				slog.Any("error", err))
		}
		if removed {
			synced++
		}
	}
	return synced, nil
}

// attempt sends one queued operation and applies the outcome transition.
func (rp *Replayer) attempt(ctx context.Context, op Operation) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, op.Method, rp.BaseURL+op.URL, bytes.NewReader(op.Data))
	if err != nil {
		rp.transition(op.ID, func(o *Operation) {
			o.Status = StatusFailed
			o.LastError = err.Error()
		})
		return false, fmt.Errorf("op=syncq.request: %w", err)
	}
	for k, v := range op.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", op.IdempotencyKey)
	req.Header.Set("X-Queued-Request", "true")
	req.Header.Set("X-Queued-Created-At", op.CreatedAt.Format(time.RFC3339))
	if rp.Token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+rp.Token)
	}

	resp, err := rp.Client.Do(req)
	if err != nil {
		rp.reschedule(op, err.Error())
		return false, fmt.Errorf("op=syncq.send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		rp.remove(op.ID)
		return true, nil
	case resp.StatusCode == http.StatusConflict:
		rp.transition(op.ID, func(o *Operation) {
			o.Status = StatusConflict
			o.Retries++
			o.LastError = trim(body)
			now := rp.Queue.Now()
			o.LastAttemptAt = &now
		})
		return false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		rp.transition(op.ID, func(o *Operation) {
			o.Retries++
			o.LastError = trim(body)
			now := rp.Queue.Now()
			o.LastAttemptAt = &now
			o.Status = StatusFailed
			if o.Retries >= rp.Queue.RetryCap {
				o.Status = StatusNeedsReview
			}
		})
		return false, nil
	default:
		rp.reschedule(op, trim(body))
		return false, nil
	}
}

// reschedule applies the transient-failure transition: exponential backoff
// until the retry cap, then failed.
func (rp *Replayer) reschedule(op Operation, reason string) {
	rp.transition(op.ID, func(o *Operation) {
		o.Retries++
		o.LastError = reason
		now := rp.Queue.Now()
		o.LastAttemptAt = &now
		if o.Retries >= rp.Queue.RetryCap {
			o.Status = StatusFailed
			o.NextAttemptAt = nil
			return
		}
		o.Status = StatusRetrying
		next := now.Add(retryDelay(o.Retries - 1))
		o.NextAttemptAt = &next
	})
}

func (rp *Replayer) transition(id string, apply func(*Operation)) {
	rp.Queue.mu.Lock()
	defer rp.Queue.mu.Unlock()
	for i := range rp.Queue.ops {
		if rp.Queue.ops[i].ID == id {
			apply(&rp.Queue.ops[i])
			switch rp.Queue.ops[i].Status {
			case StatusConflict, StatusNeedsReview, StatusFailed:
				rp.Queue.recordOutcomeLocked(rp.Queue.ops[i])
			}
			if err := rp.Queue.persist(); err != nil {
				rp.Log.Error("queue persist failed", slog.Any("error", err))
			}
			return
		}
	}
}

// remove drops a synced operation from the queue, logging its outcome to
// the history first.
func (rp *Replayer) remove(id string) {
	rp.Queue.mu.Lock()
	defer rp.Queue.mu.Unlock()
	for i := range rp.Queue.ops {
		if rp.Queue.ops[i].ID == id {
			op := rp.Queue.ops[i]
			op.Status = StatusSynced
			op.LastError = ""
			rp.Queue.recordOutcomeLocked(op)
			rp.Queue.ops = append(rp.Queue.ops[:i], rp.Queue.ops[i+1:]...)
			if err := rp.Queue.persist(); err != nil {
				rp.Log.Error("queue persist failed", slog.Any("error", err))
			}
			return
		}
	}
}

func trim(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 500 {
		s = s[:500]
	}
	return s
}
