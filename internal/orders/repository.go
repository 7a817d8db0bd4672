package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sage-erp/pharmacy/internal/platform/db"
)

const lineSelect = `SELECT l.id, l.order_id, l.offer_id, o.name, l.quantity, o.price_without_tax, o.price_with_tax
	FROM order_lines l JOIN offers o ON o.id = l.offer_id`

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

// GetOrder returns the order with lines in insertion order.
func (r *Repository) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, `SELECT id, provider_name, status, created_at FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.ProviderName, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
		}
		return Order{}, err
	}
	lines, err := r.queryLines(ctx, lineSelect+` WHERE l.order_id = $1 ORDER BY l.id`, id)
	if err != nil {
		return Order{}, err
	}
	o.Lines = lines
	return o, nil
}

// ListOrders returns orders newest first with their lines.
func (r *Repository) ListOrders(ctx context.Context, status *Status) ([]Order, error) {
	query := `SELECT id, provider_name, status, created_at FROM orders`
	var args []any
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	orders, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]int64, len(orders))
	byID := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
	}
	lines, err := r.queryLines(ctx, lineSelect+` WHERE l.order_id = ANY($1) ORDER BY l.id`, ids)
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		i := byID[l.OrderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	return orders, nil
}

// CountOrders counts orders.
func (r *Repository) CountOrders(ctx context.Context, status *Status) (int, error) {
	var total int
	var err error
	if status != nil {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE status=$1`, string(*status)).Scan(&total)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total)
	}
	return total, err
}

// ListReceipts returns receipts attached to an order.
func (r *Repository) ListReceipts(ctx context.Context, orderID int64) ([]Receipt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, filename, order_id, archived_order_id FROM receipts WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	return ScanReceipts(rows)
}

// OrderedOfferIDs returns every offer referenced by an order line.
func (r *Repository) OrderedOfferIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT offer_id FROM order_lines`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *Repository) queryLines(ctx context.Context, query string, args ...any) ([]Line, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.OfferID, &l.OfferName, &l.Quantity, &l.PriceWithoutTax, &l.PriceWithTax); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanOrders(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.ProviderName, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ScanReceipts reads id, filename, order_id, archived_order_id rows.
func ScanReceipts(rows pgx.Rows) ([]Receipt, error) {
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		var rc Receipt
		if err := rows.Scan(&rc.ID, &rc.Filename, &rc.OrderID, &rc.ArchivedOrderID); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (tx *txRepo) OpenOrders(ctx context.Context, providerName string) ([]Order, error) {
	rows, err := tx.tx.Query(ctx, `SELECT id, provider_name, status, created_at FROM orders WHERE provider_name=$1 AND status=$2 ORDER BY created_at, id FOR UPDATE`,
		providerName, string(StatusOrdered))
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

func (tx *txRepo) LockStatus(ctx context.Context, id int64) (Status, error) {
	var status Status
	err := tx.tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return status, err
}

func (tx *txRepo) CreateOrder(ctx context.Context, providerName string) (Order, error) {
	o := Order{ProviderName: providerName, Status: StatusOrdered}
	err := tx.tx.QueryRow(ctx, `INSERT INTO orders (provider_name, status) VALUES ($1, $2) RETURNING id, created_at`,
		providerName, string(StatusOrdered)).Scan(&o.ID, &o.CreatedAt)
	return o, err
}

func (tx *txRepo) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO order_lines (order_id, offer_id, quantity) VALUES ($1,$2,$3) RETURNING id`,
		line.OrderID, line.OfferID, line.Quantity).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

func (tx *txRepo) DeleteOrder(ctx context.Context, id int64) error {
	tag, err := tx.tx.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

func (tx *txRepo) DeleteLine(ctx context.Context, orderID int64, offerName string) error {
	tag, err := tx.tx.Exec(ctx, `DELETE FROM order_lines l USING offers o WHERE l.offer_id = o.id AND l.order_id=$1 AND o.name=$2`, orderID, offerName)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line %q in order %d: %w", offerName, orderID, ErrNotFound)
	}
	return nil
}

func (tx *txRepo) SetLineQuantity(ctx context.Context, orderID int64, offerName string, quantity int) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE order_lines l SET quantity=$3 FROM offers o WHERE l.offer_id = o.id AND l.order_id=$1 AND o.name=$2`, orderID, offerName, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("line %q in order %d: %w", offerName, orderID, ErrNotFound)
	}
	return nil
}

func (tx *txRepo) InsertReceipt(ctx context.Context, rc Receipt) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO receipts (filename, order_id, archived_order_id) VALUES ($1,$2,$3) RETURNING id`,
		rc.Filename, rc.OrderID, rc.ArchivedOrderID).Scan(&id)
	return id, err
}
