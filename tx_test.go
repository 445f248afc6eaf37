package stav

import (
	"context"
	"errors"
	"testing"

	"github.com/strblr/stav/pkg/observe"
)

func TestTransactionIsolation(t *testing.T) {
	ctx := context.Background()
	c := New(counterState{Count: 0})

	tx := Begin(ctx)
	if err := tx.Act(ctx, func(ctx context.Context) error {
		c.Set(ctx, counterState{Count: 5})
		if got := c.Get(ctx).Count; got != 5 {
			t.Fatalf("expected fork to see 5, got %d", got)
		}
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := c.Get(ctx).Count; got != 0 {
		t.Fatalf("expected root to stay at 0 before commit, got %d", got)
	}
	tx.Commit(ctx)
	if got := c.Get(ctx).Count; got != 5 {
		t.Fatalf("expected root to see 5 after commit, got %d", got)
	}
}

func TestTransactionBatchesNotifications(t *testing.T) {
	ctx := context.Background()
	c := New(counterState{Count: 0})

	var log []transition[counterState]
	c.Subscribe(ctx, recordListener(&log))

	if err := Run(ctx, func(ctx context.Context) error {
		c.Set(ctx, counterState{Count: 1})
		c.Set(ctx, counterState{Count: 2})
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(log) != 1 {
		t.Fatalf("expected exactly one notification at commit, got %d", len(log))
	}
	if log[0].next.Count != 2 || log[0].prev.Count != 0 {
		t.Fatalf("expected ({2},{0}), got (%+v,%+v)", log[0].next, log[0].prev)
	}
	if got := c.Get(ctx).Count; got != 2 {
		t.Fatalf("expected 2 after commit, got %d", got)
	}
}

func TestFailedTransactionDiscardsFork(t *testing.T) {
	ctx := context.Background()
	c := New(counterState{Count: 0})

	var log []transition[counterState]
	c.Subscribe(ctx, recordListener(&log))

	errBoom := errors.New("x")
	err := Run(ctx, func(ctx context.Context) error {
		c.Set(ctx, counterState{Count: 1})
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected body error to propagate, got %v", err)
	}
	if len(log) != 0 {
		t.Fatalf("expected no notification, got %d", len(log))
	}
	if got := c.Get(ctx).Count; got != 0 {
		t.Fatalf("expected untouched state, got %d", got)
	}
}

func TestPanicDiscardsFork(t *testing.T) {
	ctx := context.Background()
	c := New(0)

	func() {
		defer func() {
			if recovered := recover(); recovered == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = Run(ctx, func(ctx context.Context) error {
			c.Set(ctx, 9)
			panic("boom")
		})
	}()

	if got := c.Get(ctx); got != 0 {
		t.Fatalf("expected untouched state after panic, got %d", got)
	}
}

func TestNestedFailureCaughtByOuter(t *testing.T) {
	ctx := context.Background()
	c := New(counterState{Count: 0})

	if err := Run(ctx, func(ctx context.Context) error {
		c.Set(ctx, counterState{Count: 1})

		innerErr := Run(ctx, func(ctx context.Context) error {
			c.Set(ctx, counterState{Count: 99})
			return errors.New("inner failure")
		})
		if innerErr == nil {
			t.Fatalf("expected inner transaction to fail")
		}

		if got := c.Get(ctx).Count; got != 1 {
			t.Fatalf("expected outer fork unaffected by inner failure, got %d", got)
		}
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := c.Get(ctx).Count; got != 1 {
		t.Fatalf("expected outer mutation only, got %d", got)
	}
}

func TestNestedFailureUncaught(t *testing.T) {
	ctx := context.Background()
	c := New(counterState{Count: 0})

	err := Run(ctx, func(ctx context.Context) error {
		c.Set(ctx, counterState{Count: 1})
		return Run(ctx, func(ctx context.Context) error {
			c.Set(ctx, counterState{Count: 2})
			return errors.New("inner failure")
		})
	})
	if err == nil {
		t.Fatalf("expected failure to unwind both transactions")
	}
	if got := c.Get(ctx).Count; got != 0 {
		t.Fatalf("expected neither mutation visible, got %d", got)
	}
}

func TestNestedCommitHandsStateUpOneLevel(t *testing.T) {
	ctx := context.Background()
	c := New(0)

	outer := Begin(ctx)
	if err := outer.Act(ctx, func(ctx context.Context) error {
		inner := Begin(ctx)
		if err := inner.Act(ctx, func(ctx context.Context) error {
			c.Set(ctx, 42)
			return nil
		}); err != nil {
			return err
		}
		inner.Commit(ctx)

		if got := c.Get(ctx); got != 42 {
			t.Fatalf("expected outer fork to see inner commit, got %d", got)
		}
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := c.Get(ctx); got != 0 {
		t.Fatalf("expected root untouched until outer commit, got %d", got)
	}
	outer.Commit(ctx)
	if got := c.Get(ctx); got != 42 {
		t.Fatalf("expected 42 at root after both commits, got %d", got)
	}
}

func TestRepeatableCommitReappliesState(t *testing.T) {
	ctx := context.Background()
	c := New(0)

	var log []transition[int]
	c.Subscribe(ctx, recordListener(&log))

	tx := Begin(ctx)
	if err := tx.Act(ctx, func(ctx context.Context) error {
		c.Set(ctx, 5)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx.Commit(ctx)
	if got := c.Get(ctx); got != 5 {
		t.Fatalf("expected 5 after first commit, got %d", got)
	}

	// Diverge the target, then replay.
	c.Set(ctx, 9)
	tx.Commit(ctx)
	if got := c.Get(ctx); got != 5 {
		t.Fatalf("expected replayed commit to restore 5, got %d", got)
	}
	if len(log) != 3 {
		t.Fatalf("expected three notifications (commit, diverge, replay), got %d", len(log))
	}

	// Replaying against an identical target is suppressed by equality.
	tx.Commit(ctx)
	if len(log) != 3 {
		t.Fatalf("expected no notification when replayed state is equal, got %d", len(log))
	}

	trace := tx.Trace()
	if len(trace.Records) != 3 {
		t.Fatalf("expected three commit records, got %d", len(trace.Records))
	}
	if !trace.Records[0].Applied || !trace.Records[1].Applied || trace.Records[2].Applied {
		t.Fatalf("unexpected applied flags: %+v", trace.Records)
	}
}

func TestInheritableListeners(t *testing.T) {
	ctx := context.Background()
	c := New(0)

	var inherited, local []transition[int]
	c.Subscribe(ctx, recordListener(&inherited), Inheritable())
	c.Subscribe(ctx, recordListener(&local))

	if err := Run(ctx, func(ctx context.Context) error {
		c.Set(ctx, 1)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The inheritable listener fired inside the fork and again at commit;
	// the scope-local listener only saw the commit write.
	if len(inherited) != 2 {
		t.Fatalf("expected inheritable listener to fire in fork and at commit, got %d", len(inherited))
	}
	if len(local) != 1 {
		t.Fatalf("expected local listener to fire once at commit, got %d", len(local))
	}
}

func TestScopeLocalListenerInvisibleElsewhere(t *testing.T) {
	ctx := context.Background()
	c := New(0)

	var insideTx []transition[int]
	t1 := Begin(ctx)
	if err := t1.Act(ctx, func(ctx context.Context) error {
		c.Subscribe(ctx, recordListener(&insideTx))
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Root mutation: t1's scope-local listener must not fire.
	c.Set(ctx, 1)

	// Sibling transaction mutation: same.
	t2 := Begin(ctx)
	if err := t2.Act(ctx, func(ctx context.Context) error {
		c.Set(ctx, 2)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t2.Commit(ctx)

	if len(insideTx) != 0 {
		t.Fatalf("expected scope-local listener to stay silent, got %d", len(insideTx))
	}
}

func TestLazyForkSeedsThroughLineage(t *testing.T) {
	ctx := context.Background()
	c := New("root")

	t1 := Begin(ctx)
	if err := t1.Act(ctx, func(ctx context.Context) error {
		c.Set(ctx, "one")

		t2 := Begin(ctx)
		return t2.Act(ctx, func(ctx context.Context) error {
			t3 := Begin(ctx)
			return t3.Act(ctx, func(ctx context.Context) error {
				// First touch three levels deep resolves through t2 -> t1,
				// not straight to root.
				if got := c.Get(ctx); got != "one" {
					t.Fatalf("expected lineage seed %q, got %q", "one", got)
				}
				return nil
			})
		})
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestActRetainsForksAcrossCalls(t *testing.T) {
	ctx := context.Background()
	c := New(0)

	tx := Begin(ctx)
	if err := tx.Act(ctx, func(ctx context.Context) error {
		c.Set(ctx, 1)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A later Act call on the same transaction sees the earlier write; this
	// is what lets an asynchronous body re-enter its scope after suspension.
	if err := tx.Act(ctx, func(ctx context.Context) error {
		if got := c.Get(ctx); got != 1 {
			t.Fatalf("expected retained fork state 1, got %d", got)
		}
		c.Set(ctx, 2)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tx.Commit(ctx)
	if got := c.Get(ctx); got != 2 {
		t.Fatalf("expected 2 after commit, got %d", got)
	}
}

func TestFromContext(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != nil {
		t.Fatalf("expected no ambient transaction outside Act")
	}

	tx := Begin(ctx)
	if err := tx.Act(ctx, func(inner context.Context) error {
		if FromContext(inner) != tx {
			t.Fatalf("expected ambient transaction inside Act")
		}
		nested := Begin(inner)
		return nested.Act(inner, func(deepest context.Context) error {
			if FromContext(deepest) != nested {
				t.Fatalf("expected nested transaction ambient in nested Act")
			}
			if nested.Parent() != tx {
				t.Fatalf("expected nested parent to default to ambient transaction")
			}
			return nil
		})
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDetachedTransaction(t *testing.T) {
	ctx := context.Background()
	c := New(0)

	outer := Begin(ctx)
	if err := outer.Act(ctx, func(ctx context.Context) error {
		c.Set(ctx, 3)

		detached := Begin(ctx, Detached())
		if detached.Parent() != nil {
			t.Fatalf("expected detached transaction to have no parent")
		}
		if err := detached.Act(ctx, func(ctx context.Context) error {
			if got := c.Get(ctx); got != 0 {
				t.Fatalf("expected detached fork seeded from root, got %d", got)
			}
			c.Set(ctx, 7)
			return nil
		}); err != nil {
			return err
		}
		// Commits straight to root, bypassing the enclosing transaction.
		detached.Commit(ctx)

		if got := c.Get(ctx); got != 3 {
			t.Fatalf("expected enclosing fork unaffected by detached commit, got %d", got)
		}
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := c.Get(ctx); got != 7 {
		t.Fatalf("expected detached commit at root, got %d", got)
	}

	outer.Commit(ctx)
	if got := c.Get(ctx); got != 3 {
		t.Fatalf("expected outer commit to replay over the detached write, got %d", got)
	}
}

func TestRunResult(t *testing.T) {
	ctx := context.Background()
	c := New(10)

	doubled, err := RunResult(ctx, func(ctx context.Context) (int, error) {
		c.Update(ctx, func(n int) int { return n * 2 })
		return c.Get(ctx), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doubled != 20 || c.Get(ctx) != 20 {
		t.Fatalf("expected committed result 20, got result=%d state=%d", doubled, c.Get(ctx))
	}

	_, err = RunResult(ctx, func(ctx context.Context) (int, error) {
		c.Set(ctx, 99)
		return 0, errors.New("reject")
	})
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
	if got := c.Get(ctx); got != 20 {
		t.Fatalf("expected failed body not to commit, got %d", got)
	}
}

func TestCommitHooks(t *testing.T) {
	ctx := context.Background()
	a := New(0, WithName[int]("a"))
	b := New(0, WithName[int]("b"))

	capture := &observe.CaptureHook{}
	if err := Run(ctx, func(ctx context.Context) error {
		a.Set(ctx, 1)
		b.Set(ctx, 2)
		b.Set(ctx, 0) // lands back on the root value; commit is a no-op
		return nil
	}, WithCommitHooks(observe.Hooks{capture})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(capture.Events) != 1 {
		t.Fatalf("expected one event for the single effective transition, got %d", len(capture.Events))
	}
	event := capture.Events[0]
	if event.Verb != observe.VerbCommitted || event.Container != "a" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Prev != 0 || event.Next != 1 {
		t.Fatalf("unexpected event payload: %+v", event)
	}
	if event.TxID == "" || event.OccurredAt.IsZero() {
		t.Fatalf("expected normalized event metadata: %+v", event)
	}
}

func TestCommitEmitter(t *testing.T) {
	ctx := context.Background()
	c := New(0, WithName[int]("metered"))

	capture := &observe.CaptureHook{}
	emitter := observe.NewEmitter(observe.Hooks{capture}, observe.Config{Enabled: true, Channel: "audit"})

	if err := Run(ctx, func(ctx context.Context) error {
		c.Set(ctx, 1)
		return nil
	}, WithEmitter(emitter)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(capture.Events) != 1 {
		t.Fatalf("expected one emitted event, got %d", len(capture.Events))
	}
	event := capture.Events[0]
	if event.Container != "metered" || event.Channel != "audit" {
		t.Fatalf("unexpected emitted event: %+v", event)
	}

	disabled := observe.NewEmitter(observe.Hooks{capture}, observe.Config{Enabled: false})
	if err := Run(ctx, func(ctx context.Context) error {
		c.Set(ctx, 2)
		return nil
	}, WithEmitter(disabled)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected a disabled emitter to stay silent, got %d", len(capture.Events))
	}
}

func TestTxIntrospection(t *testing.T) {
	ctx := context.Background()
	a := New(0, WithName[int]("alpha"))
	b := New(0, WithName[int]("beta"))

	tx := Begin(ctx)
	if tx.ID() == Begin(ctx).ID() {
		t.Fatalf("expected unique transaction ids")
	}
	if err := tx.Act(ctx, func(ctx context.Context) error {
		b.Set(ctx, 1)
		a.Set(ctx, 1)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := tx.Containers()
	if len(names) != 2 || names[0] != "beta" || names[1] != "alpha" {
		t.Fatalf("expected first-touch order [beta alpha], got %v", names)
	}
}

func TestTraceJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := New(0, WithName[int]("counted"))

	tx := Begin(ctx)
	if err := tx.Act(ctx, func(ctx context.Context) error {
		c.Set(ctx, 3)
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx.Commit(ctx)

	payload, err := tx.Trace().ToJSON()
	if err != nil {
		t.Fatalf("unexpected error serialising trace: %v", err)
	}
	decoded, err := TraceFromJSON(payload)
	if err != nil {
		t.Fatalf("unexpected error deserialising trace: %v", err)
	}
	if decoded.TxID != tx.ID().String() {
		t.Fatalf("expected tx id %q, got %q", tx.ID().String(), decoded.TxID)
	}
	if len(decoded.Records) != 1 || decoded.Records[0].Container != "counted" || !decoded.Records[0].Applied {
		t.Fatalf("unexpected decoded records: %+v", decoded.Records)
	}
}

func TestActRequiresFunction(t *testing.T) {
	tx := Begin(context.Background())
	if err := tx.Act(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil act function")
	}
}
