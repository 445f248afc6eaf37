package stav

import "time"

// Listener receives the new and previous state after an effective write.
type Listener[T any] func(next, prev T)

// Unsubscribe detaches a listener from the internals it registered against.
// It is idempotent; calls after the first are no-ops.
type Unsubscribe func()

// EqualityFn decides whether a proposed state equals the current one. Equal
// proposals perform no write and fire no listeners.
type EqualityFn[T any] func(a, b T) bool

// ChangeContext carries the inputs available when evaluating a rule against
// a state transition.
type ChangeContext struct {
	Next      any
	Prev      any
	Initial   any
	Container string
	Now       *time.Time
	Args      map[string]any
	Metadata  map[string]any
}

func (ctx ChangeContext) withDefaultNow() ChangeContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx ChangeContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx ChangeContext) withDefaultMaps() ChangeContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx ChangeContext) containerLabel() string {
	if ctx.Container != "" {
		return ctx.Container
	}
	return "unknown"
}

// Evaluator executes rule expressions against a change context.
type Evaluator interface {
	Evaluate(ctx ChangeContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx ChangeContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// Option configures a Container at construction.
type Option[T any] func(*containerConfig[T])

type containerConfig[T any] struct {
	name     string
	equality EqualityFn[T]
	logger   EvaluatorLogger
}

func applyContainerOptions[T any](opts []Option[T]) containerConfig[T] {
	cfg := containerConfig[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithName sets a stable name used in traces, commit events, and rule
// contexts. Containers without an explicit name get a generated one.
func WithName[T any](name string) Option[T] {
	return func(cfg *containerConfig[T]) {
		cfg.name = name
	}
}

// WithEquality replaces the default bit-identity equality policy.
func WithEquality[T any](equality EqualityFn[T]) Option[T] {
	return func(cfg *containerConfig[T]) {
		cfg.equality = equality
	}
}

// SubscribeOption configures listener registration.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	inheritable bool
	rule        CompiledRule
}

func applySubscribeOptions(opts []SubscribeOption) subscribeConfig {
	cfg := subscribeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Inheritable marks a listener as attached to any fork created from its
// subscribing scope. Listeners default to scope-local.
func Inheritable() SubscribeOption {
	return func(cfg *subscribeConfig) {
		cfg.inheritable = true
	}
}

// When gates a listener on a compiled rule; the listener fires only when the
// rule evaluates to true for the transition. Evaluation failures suppress the
// listener and surface through the container's evaluator logger.
func When(rule CompiledRule) SubscribeOption {
	return func(cfg *subscribeConfig) {
		cfg.rule = rule
	}
}
