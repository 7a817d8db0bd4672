package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sage-erp/pharmacy/internal/orders"
	"github.com/sage-erp/pharmacy/internal/platform/db"
)

const archiveSelect = `SELECT id, provider_name, order_created_at, created_at FROM archived_orders`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// FinishedOrders lists FINISHED orders oldest first.
func (r *Repository) FinishedOrders(ctx context.Context) ([]orders.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, provider_name, status, created_at FROM orders WHERE status=$1 ORDER BY created_at, id`,
		string(orders.StatusFinished))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []orders.Order
	for rows.Next() {
		var o orders.Order
		if err := rows.Scan(&o.ID, &o.ProviderName, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListArchives returns archives newest first with receipts.
func (r *Repository) ListArchives(ctx context.Context) ([]ArchivedOrder, error) {
	rows, err := r.pool.Query(ctx, archiveSelect+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	archives, err := pgx.CollectRows(rows, scanArchive)
	if err != nil {
		return nil, err
	}
	if len(archives) == 0 {
		return archives, nil
	}
	ids := make([]int64, len(archives))
	byID := make(map[int64]int, len(archives))
	for i, a := range archives {
		ids[i] = a.ID
		byID[a.ID] = i
	}
	rows, err = r.pool.Query(ctx, `SELECT id, filename, order_id, archived_order_id FROM receipts WHERE archived_order_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	receipts, err := orders.ScanReceipts(rows)
	if err != nil {
		return nil, err
	}
	for _, rc := range receipts {
		i := byID[*rc.ArchivedOrderID]
		archives[i].Receipts = append(archives[i].Receipts, rc)
	}
	return archives, nil
}

// GetArchive returns one archive with receipts.
func (r *Repository) GetArchive(ctx context.Context, id int64) (ArchivedOrder, error) {
	rows, err := r.pool.Query(ctx, archiveSelect+` WHERE id=$1`, id)
	if err != nil {
		return ArchivedOrder{}, err
	}
	a, err := pgx.CollectOneRow(rows, scanArchive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ArchivedOrder{}, fmt.Errorf("archived order %d: %w", id, ErrNotFound)
		}
		return ArchivedOrder{}, err
	}
	rows, err = r.pool.Query(ctx, `SELECT id, filename, order_id, archived_order_id FROM receipts WHERE archived_order_id=$1 ORDER BY id`, id)
	if err != nil {
		return ArchivedOrder{}, err
	}
	a.Receipts, err = orders.ScanReceipts(rows)
	return a, err
}

func scanArchive(row pgx.CollectableRow) (ArchivedOrder, error) {
	var a ArchivedOrder
	err := row.Scan(&a.ID, &a.ProviderName, &a.OrderCreatedAt, &a.CreatedAt)
	return a, err
}

func (tx *txRepo) LockOrderStatus(ctx context.Context, orderID int64) (orders.Status, error) {
	var status orders.Status
	err := tx.tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("order %d: %w", orderID, orders.ErrNotFound)
	}
	return status, err
}

func (tx *txRepo) CreateArchive(ctx context.Context, a ArchivedOrder) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO archived_orders (provider_name, order_created_at) VALUES ($1,$2) RETURNING id`,
		a.ProviderName, a.OrderCreatedAt).Scan(&id)
	return id, err
}

func (tx *txRepo) MoveReceipts(ctx context.Context, orderID, archiveID int64) (int, error) {
	tag, err := tx.tx.Exec(ctx, `UPDATE receipts SET archived_order_id=$2, order_id=NULL WHERE order_id=$1`, orderID, archiveID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (tx *txRepo) MarkArchived(ctx context.Context, orderID int64) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, orderID, string(orders.StatusArchived))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", orderID, orders.ErrNotFound)
	}
	return nil
}

func (tx *txRepo) LockArchive(ctx context.Context, id int64) error {
	var found int64
	err := tx.tx.QueryRow(ctx, `SELECT id FROM archived_orders WHERE id=$1 FOR UPDATE`, id).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("archived order %d: %w", id, ErrNotFound)
	}
	return err
}

func (tx *txRepo) ReplaceReceipts(ctx context.Context, archiveID int64, receiptIDs []int64) error {
	if receiptIDs == nil {
		receiptIDs = []int64{}
	}
	if _, err := tx.tx.Exec(ctx, `UPDATE receipts SET archived_order_id=NULL WHERE archived_order_id=$1 AND NOT (id = ANY($2))`, archiveID, receiptIDs); err != nil {
		return err
	}
	if len(receiptIDs) == 0 {
		return nil
	}
	tag, err := tx.tx.Exec(ctx, `UPDATE receipts SET archived_order_id=$1, order_id=NULL WHERE id = ANY($2)`, archiveID, receiptIDs)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(dedupe(receiptIDs)) {
		return fmt.Errorf("unknown receipt in %v: %w", receiptIDs, ErrNotFound)
	}
	return nil
}

func (tx *txRepo) DeleteArchive(ctx context.Context, id int64) error {
	tag, err := tx.tx.Exec(ctx, `DELETE FROM archived_orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("archived order %d: %w", id, ErrNotFound)
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
