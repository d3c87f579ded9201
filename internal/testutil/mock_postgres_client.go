package testutil

import (
	"context"
	"sync"

	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/postgres"
	"github.com/counterpos/counterpos/internal/types"
)

var _ postgres.IClient = (*MockPostgresClient)(nil)

// MockPostgresClient gives the in-memory stores transaction semantics: work
// registered with OnRollback is undone when fn fails, and row locks taken
// with RowLocker are held until the outermost transaction ends.
type MockPostgresClient struct {
	logger *logger.Logger
}

func NewMockPostgresClient(logger *logger.Logger) *MockPostgresClient {
	return &MockPostgresClient{logger: logger}
}

type mockTxKey struct{}

type mockTx struct {
	id         string
	onRollback []func()
	onEnd      []func()
	held       map[string]bool
}

func getMockTx(ctx context.Context) (*mockTx, bool) {
	tx, ok := ctx.Value(mockTxKey{}).(*mockTx)
	return tx, ok
}

// WithTx runs fn in a simulated transaction. Nested calls join the outer one.
func (c *MockPostgresClient) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := getMockTx(ctx); ok {
		return fn(ctx)
	}

	tx := &mockTx{id: types.GenerateUUID(), held: make(map[string]bool)}
	txCtx := context.WithValue(ctx, mockTxKey{}, tx)

	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			tx.end()
			panic(r)
		}
	}()

	if err = fn(txCtx); err != nil {
		c.logger.Debugw("mock transaction rolled back", "tx_id", tx.id, "error", err)
		tx.rollback()
	}
	tx.end()
	return err
}

// Querier is unused by the in-memory stores
func (c *MockPostgresClient) Querier(ctx context.Context) postgres.Querier {
	return nil
}

func (tx *mockTx) rollback() {
	for i := len(tx.onRollback) - 1; i >= 0; i-- {
		tx.onRollback[i]()
	}
	tx.onRollback = nil
}

func (tx *mockTx) end() {
	for i := len(tx.onEnd) - 1; i >= 0; i-- {
		tx.onEnd[i]()
	}
	tx.onEnd = nil
}

// OnRollback registers an undo step for the transaction in ctx.
// Outside a transaction writes are final and fn is dropped.
func OnRollback(ctx context.Context, fn func()) {
	if tx, ok := getMockTx(ctx); ok {
		tx.onRollback = append(tx.onRollback, fn)
	}
}

// onTxEnd runs fn when the transaction in ctx ends, or right away without one
func onTxEnd(ctx context.Context, fn func()) {
	if tx, ok := getMockTx(ctx); ok {
		tx.onEnd = append(tx.onEnd, fn)
		return
	}
	fn()
}

// RowLocker emulates SELECT ... FOR UPDATE: a locked key stays locked until
// the transaction that took it ends.
type RowLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRowLocker() *RowLocker {
	return &RowLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until key is free. Re-locking inside the same transaction is a no-op.
func (l *RowLocker) Lock(ctx context.Context, key string) {
	tx, inTx := getMockTx(ctx)
	if inTx && tx.held[key] {
		return
	}

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	if inTx {
		tx.held[key] = true
	}
	onTxEnd(ctx, m.Unlock)
}
