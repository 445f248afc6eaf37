// Package stav provides reactive, in-process state containers with atomic,
// nested transactions across multiple independent containers.
//
// A Container holds a single value, replaced wholesale on every update and
// never mutated in place. Writes are gated by a pluggable equality policy and
// fan out synchronously to subscribed listeners in subscription order.
//
// Transactions give batched updates all-or-nothing semantics with snapshot
// isolation. The active transaction travels on a context.Context rather than
// in global state; a container operation resolves the internals visible at
// the ambient scope (the root, or the active transaction's lazily created
// fork). Commit hands a fork's final state exactly one scope level outward,
// so a nested transaction needs every ancestor to commit before its writes
// reach the root container.
//
// The scheduling model is single-goroutine and cooperative. Containers and
// transactions carry no locks; callers that interleave asynchronous
// continuations are responsible for the relative ordering of independent
// transactions.
package stav
