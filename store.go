package stav

import (
	"context"

	"github.com/google/uuid"
)

// Container is a stable identity holding one value, replaced wholesale on
// every effective write. All operations resolve against the internals
// visible at the ambient scope: the root when ctx carries no transaction,
// otherwise the active transaction's fork.
type Container[T any] struct {
	name     string
	initial  T
	equality EqualityFn[T]
	logger   EvaluatorLogger
	root     *internals[T]
}

// New constructs a Container around the provided initial state.
func New[T any](initial T, opts ...Option[T]) *Container[T] {
	cfg := applyContainerOptions(opts)
	name := cfg.name
	if name == "" {
		name = "container-" + uuid.NewString()
	}
	equality := cfg.equality
	if equality == nil {
		equality = Identity[T]
	}
	return &Container[T]{
		name:     name,
		initial:  initial,
		equality: equality,
		logger:   cfg.logger,
		root:     newInternals(initial),
	}
}

// Name returns the container's stable name.
func (c *Container[T]) Name() string {
	return c.name
}

// Get returns the state visible at the ambient scope.
func (c *Container[T]) Get(ctx context.Context) T {
	return c.resolveIn(FromContext(ctx)).state
}

// GetInitial returns the literal value passed at construction, unaffected by
// any write or transaction, forever.
func (c *Container[T]) GetInitial() T {
	return c.initial
}

// Set writes next into the internals visible at the ambient scope. When the
// equality policy reports next equal to the current state, nothing is
// written and no listener fires; otherwise every visible listener is invoked
// synchronously, in subscription order, with (next, prev).
func (c *Container[T]) Set(ctx context.Context, next T) {
	c.setIn(FromContext(ctx), next)
}

// Update is the functional form of Set: fn receives the state visible at the
// ambient scope and returns the proposed replacement.
func (c *Container[T]) Update(ctx context.Context, fn func(T) T) {
	tx := FromContext(ctx)
	c.setIn(tx, fn(c.resolveIn(tx).state))
}

// Subscribe registers a listener against the internals visible at the
// ambient scope and returns its idempotent Unsubscribe.
func (c *Container[T]) Subscribe(ctx context.Context, fn Listener[T], opts ...SubscribeOption) Unsubscribe {
	cfg := applySubscribeOptions(opts)
	if cfg.rule != nil {
		fn = c.guarded(fn, cfg.rule)
	}
	in := c.resolveIn(FromContext(ctx))
	id := in.add(fn, cfg.inheritable)
	return func() {
		in.remove(id)
	}
}

func (c *Container[T]) setIn(tx *Tx, next T) bool {
	return c.apply(c.resolveIn(tx), next)
}

func (c *Container[T]) apply(in *internals[T], next T) bool {
	prev := in.state
	if c.equality(next, prev) {
		return false
	}
	in.state = next
	in.notify(next, prev)
	return true
}

// resolveIn resolves the internals that reads and writes should target under
// tx. A transaction's fork is created at most once, seeded from the nearest
// ancestor holding a fork for this container; a container first touched
// three transactions deep still resolves through fork2 -> fork1 -> root.
func (c *Container[T]) resolveIn(tx *Tx) *internals[T] {
	if tx == nil {
		return c.root
	}
	if existing, ok := tx.fork(c); ok {
		return existing.(*internals[T])
	}
	forked := c.resolveIn(tx.parent).fork()
	tx.addFork(c, forked, c.name, func(parent *Tx) (CommitRecord, bool) {
		target := c.resolveIn(parent)
		prev := target.state
		applied := c.apply(target, forked.state)
		return CommitRecord{
			Container: c.name,
			Prev:      prev,
			Next:      forked.state,
			Applied:   applied,
		}, applied
	})
	return forked
}

func (c *Container[T]) evaluatorLogger() EvaluatorLogger {
	if c.logger != nil {
		return c.logger
	}
	return noopEvaluatorLogger{}
}
