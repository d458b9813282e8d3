package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// WalletRepository owns the wallet balance column and the ledger_operations
// table recording applied idempotency keys.
type WalletRepository struct {
	db *sql.DB
}

func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Debit removes amount from the wallet only if the full amount is covered.
func (r *WalletRepository) Debit(ctx context.Context, userID int64, amount int64) (bool, error) {
	const query = `
UPDATE users SET wallet_balance = wallet_balance - ?, updated_at = NOW()
WHERE user_id = ? AND wallet_balance >= ?`
	res, err := r.db.ExecContext(ctx, query, amount, userID, amount)
	if err != nil {
		return false, fmt.Errorf("debit wallet: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("wallet rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *WalletRepository) Credit(ctx context.Context, userID int64, amount int64) error {
	const query = `UPDATE users SET wallet_balance = wallet_balance + ?, updated_at = NOW() WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, amount, userID); err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

// CreditOnce applies a wallet credit at most once per key. The key row and the
// balance change commit together, so a replayed payment confirmation either
// finds the key already recorded or applies the full credit, never half.
func (r *WalletRepository) CreditOnce(ctx context.Context, key string, userID int64, amount int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT IGNORE INTO ledger_operations (op_key, user_id, amount) VALUES (?, ?, ?)`, key, userID, amount)
	if err != nil {
		return false, fmt.Errorf("record operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("operation rows affected: %w", err)
	}
	if affected == 0 {
		// Replay: already applied.
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET wallet_balance = wallet_balance + ?, updated_at = NOW() WHERE user_id = ?`, amount, userID); err != nil {
		return false, fmt.Errorf("credit wallet: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit credit tx: %w", err)
	}
	return true, nil
}

// ApplyOnce records an idempotency key for non-wallet grants. It returns false
// when the key was already applied.
func (r *WalletRepository) ApplyOnce(ctx context.Context, key string, userID int64) (bool, error) {
	const query = `INSERT IGNORE INTO ledger_operations (op_key, user_id, amount) VALUES (?, ?, 0)`
	res, err := r.db.ExecContext(ctx, query, key, userID)
	if err != nil {
		return false, fmt.Errorf("record operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("operation rows affected: %w", err)
	}
	return affected > 0, nil
}
