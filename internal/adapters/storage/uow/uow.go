// Package uow groups the entity stores so a use case can run them in one transaction.
package uow

import (
	"context"
	"database/sql"

	"loyalty/internal/adapters/storage"
	brandStore "loyalty/internal/adapters/storage/brand"
	ledgerStore "loyalty/internal/adapters/storage/ledger"
	memberStore "loyalty/internal/adapters/storage/member"
	syncrunStore "loyalty/internal/adapters/storage/syncrun"
	tierStore "loyalty/internal/adapters/storage/tier"
	transactionStore "loyalty/internal/adapters/storage/transaction"
)

// Stores is the set of stores bound to one Querier.
type Stores struct {
	Brands       brandStore.Store
	Members      memberStore.Store
	Transactions transactionStore.Store
	Tiers        tierStore.Store
	TierHistory  tierStore.HistoryStore
	Ledger       ledgerStore.Store
	Runs         syncrunStore.Store
}

// NewStores binds every SQLite store to q, a *sql.DB or a *sql.Tx.
func NewStores(q storage.Querier) Stores {
	return Stores{
		Brands:       brandStore.NewSQLiteStore(q),
		Members:      memberStore.NewSQLiteStore(q),
		Transactions: transactionStore.NewSQLiteStore(q),
		Tiers:        tierStore.NewSQLiteStore(q),
		TierHistory:  tierStore.NewSQLiteHistoryStore(q),
		Ledger:       ledgerStore.NewSQLiteStore(q),
		Runs:         syncrunStore.NewSQLiteStore(q),
	}
}

// Runner executes fn with stores that share one transaction.
type Runner interface {
	// InTx runs fn in a transaction.
	// POST: fn's writes commit together when it returns nil and are discarded otherwise
	InTx(ctx context.Context, fn func(s Stores) error) error
}

// SQLRunner implements Runner on a database handle.
type SQLRunner struct {
	db storage.SQLDB
}

// Compile-time check that SQLRunner implements Runner.
var _ Runner = (*SQLRunner)(nil)

// NewSQLRunner creates a Runner on db.
func NewSQLRunner(db storage.SQLDB) *SQLRunner {
	return &SQLRunner{db: db}
}

// InTx implements Runner.
func (r *SQLRunner) InTx(ctx context.Context, fn func(s Stores) error) error {
	return storage.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		return fn(NewStores(tx))
	})
}
