// Package outbox defers side effects until the enclosing database
// transaction has committed. Callbacks registered during a rolled-back
// transaction are discarded.
package outbox

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ctxKey struct{}

// scope collects after-commit callbacks for one outermost transaction.
type scope struct {
	callbacks []func(context.Context)
}

// Runner executes work inside a transaction and fires registered
// callbacks only after the outermost transaction commits.
type Runner struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRunner(db *gorm.DB, logger *zap.Logger) *Runner {
	return &Runner{db: db, logger: logger.Named("outbox")}
}

// Run executes fn inside a transaction. Nested calls join the
// transaction already open on ctx; their callbacks fire with the
// outermost commit. If fn returns an error everything rolls back and
// registered callbacks are dropped.
func (r *Runner) Run(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if _, ok := ctx.Value(ctxKey{}).(*scope); ok {
		return fn(ctx, txFrom(ctx, r.db))
	}

	sc := &scope{}
	ctx = context.WithValue(ctx, ctxKey{}, sc)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(withTx(ctx, tx), tx)
	})
	if err != nil {
		return err
	}

	for _, cb := range sc.callbacks {
		cb(ctx)
	}
	return nil
}

// Register schedules fn to run after the outermost transaction on ctx
// commits. Outside any transaction fn runs immediately.
func Register(ctx context.Context, fn func(ctx context.Context)) {
	if sc, ok := ctx.Value(ctxKey{}).(*scope); ok {
		sc.callbacks = append(sc.callbacks, fn)
		return
	}
	fn(ctx)
}

// InTransaction reports whether ctx carries an open outbox transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(ctxKey{}).(*scope)
	return ok
}

type txKey struct{}

func withTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFrom(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return fallback
}

var Module = fx.Module("outbox",
	fx.Provide(NewRunner),
)
