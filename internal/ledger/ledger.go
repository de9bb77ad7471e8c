package ledger

import (
	"context"
	"errors"
	"fmt"

	tx "github.com/Thiht/transactor/pgx"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/yuditv/gerenciadorprofinal-sub001/internal/models"
)

// ReferenceSMMOrder is the reference type of ledger rows tied to an order.
const ReferenceSMMOrder = "smm_order"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateEntry    = errors.New("ledger entry already recorded")
	ErrInvalidAmount     = errors.New("ledger amount must be positive")
)

const uniqueViolation = "23505"

// Ledger moves credits in and out of wallets. Each call is one statement,
// so it is atomic on its own and joins any transaction bound to ctx.
type Ledger struct {
	db tx.DBGetter
}

func New(db tx.DBGetter) *Ledger {
	return &Ledger{db: db}
}

const debitSQL = `
WITH debited AS (
  UPDATE wallets
  SET credits = credits - $2, updated_at = now()
  WHERE user_id = $1 AND credits >= $2
  RETURNING user_id
)
INSERT INTO ledger_transactions (user_id, type, amount, reference_type, reference_id)
SELECT user_id, 'debit', $2, $3, $4 FROM debited`

func (l *Ledger) Debit(ctx context.Context, userID string, amount decimal.Decimal, referenceType, referenceID string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	tag, err := l.db(ctx).Exec(ctx, debitSQL, userID, amount, referenceType, referenceID)
	if err != nil {
		return wrapWriteErr("debit", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

const creditSQL = `
WITH credited AS (
  INSERT INTO wallets (user_id, credits) VALUES ($1, $2)
  ON CONFLICT (user_id) DO UPDATE
  SET credits = wallets.credits + EXCLUDED.credits, updated_at = now()
  RETURNING user_id
)
INSERT INTO ledger_transactions (user_id, type, amount, reference_type, reference_id)
SELECT user_id, $5, $2, $3, $4 FROM credited`

// Credit adds amount to the wallet, creating it if needed. txType is
// usually LedgerRefund for compensations and LedgerCredit for top-ups.
func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal, referenceType, referenceID string, txType models.LedgerTxType) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if txType == models.LedgerDebit {
		return fmt.Errorf("credit: invalid transaction type %q", txType)
	}
	if _, err := l.db(ctx).Exec(ctx, creditSQL, userID, amount, referenceType, referenceID, string(txType)); err != nil {
		return wrapWriteErr("credit", err)
	}
	return nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var credits decimal.Decimal
	err := l.db(ctx).QueryRow(ctx,
		`SELECT COALESCE((SELECT credits FROM wallets WHERE user_id = $1), 0)`, userID,
	).Scan(&credits)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance: %w", err)
	}
	return credits, nil
}

func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]models.LedgerTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := l.db(ctx).Query(ctx, `
SELECT id, user_id, type, amount, reference_type, reference_id, created_at
FROM ledger_transactions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerTransaction
	for rows.Next() {
		var t models.LedgerTransaction
		var typ string
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.ReferenceType, &t.ReferenceID, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = models.LedgerTxType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

func wrapWriteErr(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrDuplicateEntry)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
