package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	tx     *fakeTx
	begins int
}

func (b *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	b.begins++
	b.tx = &fakeTx{}
	return b.tx, nil
}

func TestRunInTx_Commit(t *testing.T) {
	b := &fakeBeginner{}
	var seen pgx.Tx
	err := RunInTx(context.Background(), b, func(ctx context.Context) error {
		seen = TxFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen == nil {
		t.Fatal("expected tx in context")
	}
	if !b.tx.committed || b.tx.rolledBack {
		t.Errorf("expected commit without rollback, got committed=%v rolledBack=%v", b.tx.committed, b.tx.rolledBack)
	}
}

func TestRunInTx_RollbackOnError(t *testing.T) {
	b := &fakeBeginner{}
	want := errors.New("slot taken")
	err := RunInTx(context.Background(), b, func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Error("expected rollback without commit")
	}
}

func TestRunInTx_NestedReusesOuter(t *testing.T) {
	b := &fakeBeginner{}
	err := RunInTx(context.Background(), b, func(ctx context.Context) error {
		outer := TxFromContext(ctx)
		return RunInTx(ctx, b, func(inner context.Context) error {
			if TxFromContext(inner) != outer {
				t.Error("expected nested call to reuse outer tx")
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.begins != 1 {
		t.Errorf("expected 1 begin, got %d", b.begins)
	}
}

func TestRunInTx_NilBeginner(t *testing.T) {
	err := RunInTx(context.Background(), nil, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error without a beginner")
	}
}

func TestTxFromContext_Nil(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Error("expected nil tx from empty context")
	}
}

func TestConn_PrefersTx(t *testing.T) {
	tx := &fakeTx{}
	ctx := context.WithValue(context.Background(), txKey{}, pgx.Tx(tx))
	if Conn(ctx, nil) != Querier(tx) {
		t.Error("expected tx from context")
	}
	if Conn(context.Background(), nil) != nil {
		t.Error("expected fallback when no tx")
	}
}

func TestTxRunner_InTx(t *testing.T) {
	b := &fakeBeginner{}
	var r Transactor = NewTxRunner(b)
	err := r.InTx(context.Background(), func(ctx context.Context) error {
		if TxFromContext(ctx) == nil {
			t.Error("expected tx in context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.begins != 1 {
		t.Errorf("expected 1 begin, got %d", b.begins)
	}
}

func TestNoTx_InTx(t *testing.T) {
	called := false
	err := NoTx{}.InTx(context.Background(), func(ctx context.Context) error {
		called = true
		if TxFromContext(ctx) != nil {
			t.Error("expected no tx")
		}
		return nil
	})
	if err != nil || !called {
		t.Errorf("expected fn to run, err=%v", err)
	}
}
