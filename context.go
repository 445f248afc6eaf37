package stav

import "context"

type txContextKey struct{}

// FromContext returns the transaction ambient on ctx, or nil when execution
// is outside any Act scope. Collaborators such as persistence layers use it
// to suppress side effects while a transaction is still open.
func FromContext(ctx context.Context) *Tx {
	if ctx == nil {
		return nil
	}
	tx, _ := ctx.Value(txContextKey{}).(*Tx)
	return tx
}

func withTx(ctx context.Context, tx *Tx) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, txContextKey{}, tx)
}
