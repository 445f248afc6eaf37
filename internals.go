package stav

// internals is the mutable unit a container owns at a given scope: the state
// plus the listener registry. The root internals lives for the container's
// whole lifetime; forks are created lazily per transaction.
type internals[T any] struct {
	state  T
	subs   []subscription[T]
	nextID uint64
}

// subscription tags a listener with a stable id used as the removal key and
// an inheritable flag controlling whether forks retain it.
type subscription[T any] struct {
	id          uint64
	fn          Listener[T]
	inheritable bool
}

func newInternals[T any](state T) *internals[T] {
	return &internals[T]{state: state, nextID: 1}
}

func (in *internals[T]) add(fn Listener[T], inheritable bool) uint64 {
	id := in.nextID
	in.nextID++
	in.subs = append(in.subs, subscription[T]{id: id, fn: fn, inheritable: inheritable})
	return id
}

func (in *internals[T]) remove(id uint64) bool {
	for i := range in.subs {
		if in.subs[i].id == id {
			in.subs = append(in.subs[:i], in.subs[i+1:]...)
			return true
		}
	}
	return false
}

// fork seeds a new internals with the current state and the inheritable
// subset of listeners, preserving subscription order. The id counter carries
// over so fresh subscriptions on the fork never collide with inherited ones.
func (in *internals[T]) fork() *internals[T] {
	forked := &internals[T]{state: in.state, nextID: in.nextID}
	for _, sub := range in.subs {
		if sub.inheritable {
			forked.subs = append(forked.subs, sub)
		}
	}
	return forked
}

// notify fires listeners in subscription order against a snapshot of the
// registry, so listeners that subscribe or unsubscribe mid-notification do
// not disturb the current fan-out.
func (in *internals[T]) notify(next, prev T) {
	if len(in.subs) == 0 {
		return
	}
	snapshot := make([]subscription[T], len(in.subs))
	copy(snapshot, in.subs)
	for _, sub := range snapshot {
		sub.fn(next, prev)
	}
}
