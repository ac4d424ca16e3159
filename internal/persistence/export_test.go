package persistence

import "context"

// ExecRaw runs arbitrary SQL inside the transaction; tests use it to build
// broken schemas.
func (t *Tx) ExecRaw(ctx context.Context, query string) error {
	_, err := t.tx.ExecContext(ctx, query)
	return err
}
