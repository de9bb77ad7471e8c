package db

import (
	"context"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres bundles the pool with a transactor whose DBGetter returns the
// transaction bound to ctx, or the pool when there is none.
type Postgres struct {
	Pool       *pgxpool.Pool
	Transactor *tx.Transactor
	DBGetter   tx.DBGetter
}

func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	transactor, getter := tx.NewTransactorFromPool(pool)
	return &Postgres{Pool: pool, Transactor: transactor, DBGetter: getter}, nil
}

func (p *Postgres) Close() {
	p.Pool.Close()
}
