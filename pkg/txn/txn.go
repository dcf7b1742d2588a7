// Package txn implements the Transaction Coordinator (spec §4.7): a
// builder-style sequence of (operation, compensating rollback) pairs that
// commits all-or-nothing, de-duplicated by idempotency key. Unlike a database
// transaction, a coordinator Transaction only ever wraps calls into the other
// components here (Balance, Escrow, Ledger) — there is no separate storage
// engine underneath it to roll back to, so "rollback" means "run the
// compensating action," not "discard a write-ahead log."
package txn

import (
	"sync"

	"github.com/decred/slog"
	"github.com/vctt94/econcore/pkg/econerr"
	"github.com/vctt94/econcore/pkg/econtypes"
)

// Status is a transaction's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusCommitted
	StatusRolledBack
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCommitted:
		return "committed"
	case StatusRolledBack:
		return "rolled_back"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Step is one operation and its compensating action. Undo is only ever
// called for a Step whose Do already succeeded, in reverse registration
// order.
type Step struct {
	Name string
	Do   func() *econerr.Error
	Undo func() *econerr.Error
}

// DefaultTimeoutMillis is the deadline applied to a transaction that does not
// specify its own (spec §4.7: 30s default).
const DefaultTimeoutMillis = 30_000

// Transaction is a single coordinated sequence of steps, built fluently with
// AddStep and finalized with Commit.
type Transaction struct {
	mu sync.Mutex

	id             econtypes.TransactionID
	idempotencyKey econtypes.IdempotencyKey
	status         Status
	steps          []Step
	executedCount  int
	createdAt      int64
	deadline       int64

	log   slog.Logger
	clock econtypes.Clock
}

// ID returns the transaction's identity.
func (t *Transaction) ID() econtypes.TransactionID { return t.id }

// Status returns the transaction's current lifecycle state.
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// AddStep appends a step to the transaction. Returns the transaction for
// fluent chaining. Adding a step to a non-pending transaction is a no-op —
// Commit on such a transaction will simply fail structurally, which is
// preferable to panicking on a builder misuse.
func (t *Transaction) AddStep(name string, do, undo func() *econerr.Error) *Transaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return t
	}
	t.steps = append(t.steps, Step{Name: name, Do: do, Undo: undo})
	return t
}

// Commit runs every step's Do in order. On the first failure it runs Undo
// for every already-executed step in reverse order (synchronous
// compensation, per spec §5), then marks the transaction Failed and returns
// the triggering error. If every step succeeds the transaction is marked
// Committed.
func (t *Transaction) Commit(now int64) *econerr.Error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPending {
		return econerr.InvalidStatusTransition("transaction is not pending",
			map[string]interface{}{"id": string(t.id), "status": t.status.String()})
	}
	if now > t.deadline {
		t.status = StatusFailed
		return econerr.TransactionTimeout(string(t.id))
	}

	for i, step := range t.steps {
		if err := step.Do(); err != nil {
			t.log.Errorf("txn=%s step=%s failed: %v — rolling back %d prior step(s)", t.id, step.Name, err, i)
			t.rollbackLocked(i)
			t.status = StatusFailed
			return err
		}
		t.executedCount = i + 1
	}

	t.status = StatusCommitted
	return nil
}

// Rollback manually unwinds an already-committed or still-pending
// transaction, in reverse step order. An undo failure is logged and
// unwinding continues with the remaining steps — a half-applied compensation
// is still better than none.
func (t *Transaction) Rollback() *econerr.Error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status == StatusRolledBack {
		return nil
	}
	t.rollbackLocked(t.executedCount)
	t.status = StatusRolledBack
	return nil
}

func (t *Transaction) rollbackLocked(executed int) {
	for i := executed - 1; i >= 0; i-- {
		step := t.steps[i]
		if step.Undo == nil {
			continue
		}
		if err := step.Undo(); err != nil {
			t.log.Errorf("txn=%s step=%s compensating rollback failed: %v", t.id, step.Name, err)
		}
	}
	t.executedCount = 0
}

// Coordinator owns the idempotency index across all transactions it has ever
// begun, so a repeated Begin with the same key returns the original
// transaction instead of starting a duplicate.
type Coordinator struct {
	log   slog.Logger
	clock econtypes.Clock

	mu           sync.Mutex
	transactions map[econtypes.IdempotencyKey]*Transaction
	nextSeq      int64
}

// New creates an empty Transaction Coordinator.
func New(log slog.Logger, clock econtypes.Clock) *Coordinator {
	return &Coordinator{
		log:          log,
		clock:        clock,
		transactions: make(map[econtypes.IdempotencyKey]*Transaction),
	}
}

// Begin returns the transaction registered under key, creating one with the
// given timeout (0 means DefaultTimeoutMillis) if none exists yet. The
// second return value reports whether an existing transaction was reused.
func (c *Coordinator) Begin(key econtypes.IdempotencyKey, timeoutMillis int64) (*Transaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.transactions[key]; ok {
		return existing, true
	}

	if timeoutMillis <= 0 {
		timeoutMillis = DefaultTimeoutMillis
	}
	now := c.clock.NowMillis()
	c.nextSeq++
	t := &Transaction{
		id:             econtypes.TransactionID("txn-" + itoa(c.nextSeq)),
		idempotencyKey: key,
		status:         StatusPending,
		createdAt:      now,
		deadline:       now + timeoutMillis,
		log:            c.log,
		clock:          c.clock,
	}
	c.transactions[key] = t
	return t, false
}

// Get returns the transaction registered under key, if any.
func (c *Coordinator) Get(key econtypes.IdempotencyKey) (*Transaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.transactions[key]
	return t, ok
}

// CleanupExpired removes every non-pending transaction older than
// olderThanMillis relative to now, bounding the idempotency index's memory
// growth. Pending transactions are left alone even if stale — Commit itself
// is responsible for timing a pending transaction out.
func (c *Coordinator) CleanupExpired(now, olderThanMillis int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, t := range c.transactions {
		t.mu.Lock()
		stale := t.status != StatusPending && now-t.createdAt > olderThanMillis
		t.mu.Unlock()
		if stale {
			delete(c.transactions, key)
			removed++
		}
	}
	return removed
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
