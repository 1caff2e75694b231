package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
)

// fakeTx satisfies pgx.Tx for context plumbing tests; none of its methods are
// called.
type fakeTx struct {
	pgx.Tx
	id int
}

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx from empty context, got %v", tx)
	}
}

func TestWithTx_RoundTrip(t *testing.T) {
	want := &fakeTx{id: 1}
	ctx := WithTx(context.Background(), want)

	got := TxFromContext(ctx)
	if got != want {
		t.Errorf("expected stashed tx back, got %v", got)
	}
}

func TestWithTx_InnerShadowsOuter(t *testing.T) {
	outer := &fakeTx{id: 1}
	inner := &fakeTx{id: 2}

	ctx := WithTx(context.Background(), outer)
	ctx = WithTx(ctx, inner)

	got, ok := TxFromContext(ctx).(*fakeTx)
	if !ok || got.id != 2 {
		t.Errorf("expected inner tx, got %v", got)
	}
}
