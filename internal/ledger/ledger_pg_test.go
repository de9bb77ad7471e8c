package ledger

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/db"
	"github.com/yuditv/gerenciadorprofinal-sub001/internal/models"
)

// Runs against a real Postgres when TEST_DATABASE_DSN is set.
func openTestDB(t *testing.T) *db.Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	require.NoError(t, db.RunMigrations(zap.NewNop(), dsn, "../../migrations", false))
	pg, err := db.Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pg.Close)
	return pg
}

func TestLedgerAgainstPostgres(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()
	l := New(pg.DBGetter)
	user := "ledger-test-" + uuid.NewString()
	orderA, orderB := uuid.NewString(), uuid.NewString()

	require.NoError(t, l.Credit(ctx, user, decimal.RequireFromString("10"), "topup", uuid.NewString(), models.LedgerCredit))
	require.NoError(t, l.Debit(ctx, user, decimal.RequireFromString("6.50"), ReferenceSMMOrder, orderA))

	err := l.Debit(ctx, user, decimal.RequireFromString("6.50"), ReferenceSMMOrder, orderB)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	err = l.Debit(ctx, user, decimal.RequireFromString("1"), ReferenceSMMOrder, orderA)
	require.ErrorIs(t, err, ErrDuplicateEntry)

	bal, err := l.Balance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, "3.5", bal.String())

	require.NoError(t, l.Credit(ctx, user, decimal.RequireFromString("6.50"), ReferenceSMMOrder, orderA, models.LedgerRefund))
	err = l.Credit(ctx, user, decimal.RequireFromString("6.50"), ReferenceSMMOrder, orderA, models.LedgerRefund)
	require.ErrorIs(t, err, ErrDuplicateEntry)

	bal, err = l.Balance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, "10", bal.String())

	hist, err := l.History(ctx, user, 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Equal(t, models.LedgerRefund, hist[0].Type)
}

func TestLedgerJoinsAmbientTransaction(t *testing.T) {
	pg := openTestDB(t)
	ctx := context.Background()
	l := New(pg.DBGetter)
	user := "ledger-test-" + uuid.NewString()
	require.NoError(t, l.Credit(ctx, user, decimal.RequireFromString("5"), "topup", uuid.NewString(), models.LedgerCredit))

	rollback := errors.New("rollback")
	err := pg.Transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := l.Debit(ctx, user, decimal.RequireFromString("5"), ReferenceSMMOrder, uuid.NewString()); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	bal, err := l.Balance(ctx, user)
	require.NoError(t, err)
	require.Equal(t, "5", bal.String())

	hist, err := l.History(ctx, user, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
}
