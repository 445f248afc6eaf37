package stav

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strblr/stav/pkg/observe"
)

// Tx is a node in a parent-linked transaction tree. It holds a per-container
// fork map seeded lazily on first touch, an Act entry point that scopes
// execution to the transaction, and a Commit operation that hands fork state
// exactly one level outward. A transaction that never commits is simply
// abandoned; there is no teardown call.
type Tx struct {
	id      uuid.UUID
	parent  *Tx
	forks   map[any]any
	order   []txFork
	hooks   observe.Hooks
	emitter *observe.Emitter
	records []CommitRecord
}

type txFork struct {
	container string
	commit    func(parent *Tx) (CommitRecord, bool)
}

// TxOption configures transaction creation.
type TxOption func(*txConfig)

type txConfig struct {
	parent    *Tx
	parentSet bool
	hooks     observe.Hooks
	emitter   *observe.Emitter
}

// WithParent overrides the parent inferred from the ambient context.
func WithParent(parent *Tx) TxOption {
	return func(cfg *txConfig) {
		cfg.parent = parent
		cfg.parentSet = true
	}
}

// Detached starts a root-level transaction even while another one is
// ambient.
func Detached() TxOption {
	return WithParent(nil)
}

// WithCommitHooks attaches observers notified once per effective container
// transition during Commit. Hooks are cloned and nil entries dropped.
func WithCommitHooks(hooks observe.Hooks) TxOption {
	normalized := cloneCommitHooks(hooks)
	return func(cfg *txConfig) {
		cfg.hooks = normalized
	}
}

// WithEmitter routes committed transitions through an emitter, which applies
// channel defaults and enablement from its configuration.
func WithEmitter(emitter *observe.Emitter) TxOption {
	return func(cfg *txConfig) {
		cfg.emitter = emitter
	}
}

// Begin creates a transaction nested under the transaction ambient on ctx,
// unless a TxOption overrides the parent.
func Begin(ctx context.Context, opts ...TxOption) *Tx {
	cfg := txConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	parent := FromContext(ctx)
	if cfg.parentSet {
		parent = cfg.parent
	}
	return &Tx{
		id:      uuid.New(),
		parent:  parent,
		forks:   map[any]any{},
		hooks:   cfg.hooks,
		emitter: cfg.emitter,
	}
}

// ID returns the transaction's identifier, carried into commit events and
// traces.
func (tx *Tx) ID() uuid.UUID {
	return tx.id
}

// Parent returns the enclosing transaction, or nil at root level.
func (tx *Tx) Parent() *Tx {
	return tx.parent
}

// Containers returns the names of containers forked so far, in first-touch
// order.
func (tx *Tx) Containers() []string {
	if len(tx.order) == 0 {
		return nil
	}
	names := make([]string, len(tx.order))
	for i, f := range tx.order {
		names[i] = f.container
	}
	return names
}

// Act runs fn with a derived context carrying tx, returning fn's error
// untouched. The fork map lives on tx itself, so a later Act call on the
// same transaction sees state written by an earlier one; asynchronous bodies
// re-enter their transaction scope by retaining the derived context or by
// calling Act again after a suspension point.
func (tx *Tx) Act(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("stav: act requires a function")
	}
	return fn(withTx(ctx, tx))
}

// Commit performs, for every fork in first-touch order, a plain set of the
// fork's current state resolved against the parent scope. Writes land
// exactly one level outward; every ancestor must also commit for a change to
// reach the root container. Commit carries no committed guard: invoking it
// again re-applies the fork's last state, which may re-fire listeners if the
// target has since diverged.
func (tx *Tx) Commit(ctx context.Context) {
	for _, f := range tx.order {
		record, applied := f.commit(tx.parent)
		tx.records = append(tx.records, record)
		if !applied {
			continue
		}
		event := observe.Event{
			Verb:       observe.VerbCommitted,
			TxID:       tx.id.String(),
			Container:  record.Container,
			Prev:       record.Prev,
			Next:       record.Next,
			OccurredAt: time.Now(),
		}
		// Hook failures never unwind a committed write.
		if tx.hooks.Enabled() {
			_ = tx.hooks.Notify(ctx, event)
		}
		if tx.emitter.Enabled() {
			_ = tx.emitter.Emit(ctx, event)
		}
	}
}

func (tx *Tx) fork(key any) (any, bool) {
	existing, ok := tx.forks[key]
	return existing, ok
}

func (tx *Tx) addFork(key, forked any, container string, commit func(parent *Tx) (CommitRecord, bool)) {
	tx.forks[key] = forked
	tx.order = append(tx.order, txFork{container: container, commit: commit})
}

// Run wraps fn in a fresh transaction: it begins one nested under the
// ambient transaction, invokes fn once via Act, and commits only when fn
// returns nil. A non-nil error (or a panic) propagates to the caller with
// the fork abandoned and outer state untouched.
func Run(ctx context.Context, fn func(context.Context) error, opts ...TxOption) error {
	tx := Begin(ctx, opts...)
	if err := tx.Act(ctx, fn); err != nil {
		return err
	}
	tx.Commit(ctx)
	return nil
}

// RunResult is Run for bodies that produce a value alongside the error. The
// value is returned only when the transaction commits.
func RunResult[R any](ctx context.Context, fn func(context.Context) (R, error), opts ...TxOption) (R, error) {
	tx := Begin(ctx, opts...)
	var result R
	err := tx.Act(ctx, func(ctx context.Context) error {
		var actErr error
		result, actErr = fn(ctx)
		return actErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	tx.Commit(ctx)
	return result, nil
}

func cloneCommitHooks(hooks observe.Hooks) observe.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make(observe.Hooks, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
