package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flipzon/flash-sale/internal/core/domain"
)

// ErrStatusConflict means a transaction record was not in the expected
// status for a transition and had not already completed it.
var ErrStatusConflict = errors.New("transaction status conflict")

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the tables the adapter relies on. Safe to run on
// every startup.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sales (
			id VARCHAR(64) PRIMARY KEY,
			item_id VARCHAR(64) NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status VARCHAR(16) NOT NULL,
			per_customer_limit INT NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			item_id VARCHAR(64) PRIMARY KEY,
			initial_stock INT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id VARCHAR(64) PRIMARY KEY,
			customer_id VARCHAR(64) NOT NULL,
			sale_id VARCHAR(64) NOT NULL,
			item_id VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			INDEX idx_sale_customer (sale_id, customer_id),
			INDEX idx_item_created (item_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS reconcile_checkpoints (
			item_id VARCHAR(64) PRIMARY KEY,
			reconciled_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) GetActiveSale(ctx context.Context, saleID string, now time.Time) (*domain.Sale, error) {
	var sale domain.Sale
	err := m.db.QueryRowContext(ctx, `
		SELECT id, item_id, start_time, end_time, status, per_customer_limit
		FROM sales
		WHERE id = ? AND status = ? AND start_time <= ? AND end_time >= ?`,
		saleID, domain.SaleStatusActive, now, now,
	).Scan(&sale.ID, &sale.ItemID, &sale.StartTime, &sale.EndTime, &sale.Status, &sale.PerCustomerLimit)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active sale: %w", err)
	}

	return &sale, nil
}

func (m *MySQLAdapter) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	err := m.db.QueryRowContext(ctx, `
		SELECT id, item_id, start_time, end_time, status, per_customer_limit
		FROM sales WHERE id = ?`, saleID,
	).Scan(&sale.ID, &sale.ItemID, &sale.StartTime, &sale.EndTime, &sale.Status, &sale.PerCustomerLimit)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sale: %w", err)
	}

	return &sale, nil
}

func (m *MySQLAdapter) ListSalesByItem(ctx context.Context, itemID string) ([]domain.Sale, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, item_id, start_time, end_time, status, per_customer_limit
		FROM sales WHERE item_id = ?`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var sales []domain.Sale
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.ItemID, &sale.StartTime, &sale.EndTime,
			&sale.Status, &sale.PerCustomerLimit); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (m *MySQLAdapter) UpsertInventory(ctx context.Context, itemID string, initialStock int) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO inventory (item_id, initial_stock, created_at, updated_at)
		VALUES (?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE initial_stock = VALUES(initial_stock), updated_at = NOW()`,
		itemID, initialStock,
	)
	if err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetInventory(ctx context.Context, itemID string) (*domain.Inventory, error) {
	var inv domain.Inventory
	err := m.db.QueryRowContext(ctx, `
		SELECT item_id, initial_stock, created_at, updated_at
		FROM inventory WHERE item_id = ?`, itemID,
	).Scan(&inv.ItemID, &inv.InitialStock, &inv.CreatedAt, &inv.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}

	return &inv, nil
}

func (m *MySQLAdapter) ListInventories(ctx context.Context) ([]domain.Inventory, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT item_id, initial_stock, created_at, updated_at FROM inventory`)
	if err != nil {
		return nil, fmt.Errorf("list inventories: %w", err)
	}
	defer rows.Close()

	var invs []domain.Inventory
	for rows.Next() {
		var inv domain.Inventory
		if err := rows.Scan(&inv.ItemID, &inv.InitialStock, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

func (m *MySQLAdapter) Record(ctx context.Context, rec domain.TransactionRecord) (domain.TransactionRecord, error) {
	// `id = id` makes the insert a no-op when the idempotency key already
	// exists; the follow-up read returns whatever the first attempt stored.
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO transactions (id, customer_id, sale_id, item_id, quantity, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE id = id`,
		rec.ID, rec.CustomerID, rec.SaleID, rec.ItemID, rec.Quantity, rec.Status,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("insert transaction: %w", err)
	}

	var stored domain.TransactionRecord
	err = m.db.QueryRowContext(ctx, `
		SELECT id, customer_id, sale_id, item_id, quantity, status, created_at, updated_at
		FROM transactions WHERE id = ?`, rec.ID,
	).Scan(&stored.ID, &stored.CustomerID, &stored.SaleID, &stored.ItemID,
		&stored.Quantity, &stored.Status, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return domain.TransactionRecord{}, fmt.Errorf("read back transaction: %w", err)
	}

	return stored, nil
}

func (m *MySQLAdapter) UpdateStatus(ctx context.Context, id string, from, to domain.TransactionStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE transactions SET status = ?, updated_at = NOW()
		WHERE id = ? AND status = ?`,
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	// Retried transition: already in the target status counts as done.
	var current domain.TransactionStatus
	err = m.db.QueryRowContext(ctx,
		`SELECT status FROM transactions WHERE id = ?`, id,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("check transaction status: %w", err)
	}
	if current == to {
		return nil
	}

	return fmt.Errorf("%w: %s is %s, wanted %s -> %s", ErrStatusConflict, id, current, from, to)
}

func (m *MySQLAdapter) ListByItemSince(ctx context.Context, itemID string, since time.Time) ([]domain.TransactionRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, customer_id, sale_id, item_id, quantity, status, created_at, updated_at
		FROM transactions
		WHERE item_id = ? AND created_at >= ?
		ORDER BY created_at`,
		itemID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var recs []domain.TransactionRecord
	for rows.Next() {
		var rec domain.TransactionRecord
		if err := rows.Scan(&rec.ID, &rec.CustomerID, &rec.SaleID, &rec.ItemID,
			&rec.Quantity, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (m *MySQLAdapter) GetCheckpoint(ctx context.Context, itemID string) (time.Time, error) {
	var at time.Time
	err := m.db.QueryRowContext(ctx,
		`SELECT reconciled_at FROM reconcile_checkpoints WHERE item_id = ?`, itemID,
	).Scan(&at)

	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query checkpoint: %w", err)
	}

	return at, nil
}

func (m *MySQLAdapter) SaveCheckpoint(ctx context.Context, itemID string, at time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO reconcile_checkpoints (item_id, reconciled_at)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE reconciled_at = VALUES(reconciled_at)`,
		itemID, at,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
