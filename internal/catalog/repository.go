package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sage-erp/pharmacy/internal/platform/db"
)

const stockColumns = `id, name, dci, location, family, nomenclature, reference, selling_price, cost_price, quantity, real_quantity, min_quantity, max_quantity, alert`

const offerSelect = `SELECT o.id, o.provider_id, p.name, o.name, o.quantity, o.price_without_tax, o.price_with_tax, o.expires_at,
	COALESCE((SELECT array_agg(m.stock_item_id ORDER BY m.stock_item_id) FROM offer_matches m WHERE m.offer_id = o.id), '{}')
	FROM offers o JOIN providers p ON p.id = o.provider_id`

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

// CountStock counts items matching filter.
func (r *Repository) CountStock(ctx context.Context, filter StockFilter) (int, error) {
	where, args := filter.Where(1)
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_items WHERE `+where, args...).Scan(&total)
	return total, err
}

// ListStock returns a page of items ordered by name.
func (r *Repository) ListStock(ctx context.Context, filter StockFilter, limit, offset int) ([]StockItem, error) {
	where, args := filter.Where(1)
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM stock_items WHERE %s ORDER BY name LIMIT $%d OFFSET $%d`, stockColumns, where, n+1, n+2)
	args = append(args, limit, offset)
	return r.queryStock(ctx, query, args...)
}

// GetStockItems loads the items with the given ids.
func (r *Repository) GetStockItems(ctx context.Context, ids []int64) ([]StockItem, error) {
	return r.queryStock(ctx, `SELECT `+stockColumns+` FROM stock_items WHERE id = ANY($1) ORDER BY name`, ids)
}

// LowStock returns items whose quantity is at or below alert.
func (r *Repository) LowStock(ctx context.Context) ([]StockItem, error) {
	return r.queryStock(ctx, `SELECT `+stockColumns+` FROM stock_items WHERE quantity <= alert ORDER BY name`)
}

// StockNames lists item names.
func (r *Repository) StockNames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM stock_items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// GetProvider returns a provider by id.
func (r *Repository) GetProvider(ctx context.Context, id int64) (Provider, error) {
	var p Provider
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, min_purchase, min_quantity FROM providers WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Email, &p.MinPurchase, &p.MinQuantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Provider{}, fmt.Errorf("provider %d: %w", id, ErrNotFound)
		}
		return Provider{}, err
	}
	return p, nil
}

// ListProviders returns providers ordered by name.
func (r *Repository) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, email, min_purchase, min_quantity FROM providers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.MinPurchase, &p.MinQuantity); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetOffer returns an offer with its provider name.
func (r *Repository) GetOffer(ctx context.Context, id int64) (Offer, error) {
	offers, err := r.queryOffers(ctx, offerSelect+` WHERE o.id=$1`, id)
	if err != nil {
		return Offer{}, err
	}
	if len(offers) == 0 {
		return Offer{}, fmt.Errorf("offer %d: %w", id, ErrNotFound)
	}
	return offers[0], nil
}

// FindOffer returns the first offer of providerID named name.
func (r *Repository) FindOffer(ctx context.Context, providerID int64, name string) (Offer, error) {
	offers, err := r.queryOffers(ctx, offerSelect+` WHERE o.provider_id=$1 AND o.name=$2 ORDER BY o.id LIMIT 1`, providerID, name)
	if err != nil {
		return Offer{}, err
	}
	if len(offers) == 0 {
		return Offer{}, fmt.Errorf("offer %q of provider %d: %w", name, providerID, ErrNotFound)
	}
	return offers[0], nil
}

// ListOffers returns a provider's offers.
func (r *Repository) ListOffers(ctx context.Context, providerID int64) ([]Offer, error) {
	return r.queryOffers(ctx, offerSelect+` WHERE o.provider_id=$1 ORDER BY o.name, o.id`, providerID)
}

// OffersMatching returns offers linked to stockItemID.
func (r *Repository) OffersMatching(ctx context.Context, stockItemID int64) ([]Offer, error) {
	return r.queryOffers(ctx, offerSelect+` WHERE EXISTS (SELECT 1 FROM offer_matches m WHERE m.offer_id = o.id AND m.stock_item_id = $1) ORDER BY o.id`, stockItemID)
}

func (r *Repository) queryStock(ctx context.Context, query string, args ...any) ([]StockItem, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockItem
	for rows.Next() {
		var s StockItem
		if err := rows.Scan(&s.ID, &s.Name, &s.DCI, &s.Location, &s.Family, &s.Nomenclature, &s.Reference,
			&s.SellingPrice, &s.CostPrice, &s.Quantity, &s.Real, &s.Min, &s.Max, &s.Alert); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) queryOffers(ctx context.Context, query string, args ...any) ([]Offer, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Offer
	for rows.Next() {
		var o Offer
		var expires *time.Time
		if err := rows.Scan(&o.ID, &o.ProviderID, &o.ProviderName, &o.Name, &o.Quantity,
			&o.PriceWithoutTax, &o.PriceWithTax, &expires, &o.MatchingItemIDs); err != nil {
			return nil, err
		}
		if expires != nil {
			o.ExpiresAt = *expires
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (tx *txRepo) CreateStockItem(ctx context.Context, s StockItem) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO stock_items (name, dci, location, family, nomenclature, reference, selling_price, cost_price, quantity, real_quantity, min_quantity, max_quantity, alert)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13) RETURNING id`,
		s.Name, s.DCI, s.Location, s.Family, s.Nomenclature, s.Reference, s.SellingPrice, s.CostPrice,
		s.Quantity, s.Real, s.Min, s.Max, s.Alert).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdateStockItem(ctx context.Context, s StockItem) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE stock_items SET location=$2, selling_price=$3, cost_price=$4, quantity=$5, real_quantity=$6, min_quantity=$7, max_quantity=$8, alert=$9 WHERE id=$1`,
		s.ID, s.Location, s.SellingPrice, s.CostPrice, s.Quantity, s.Real, s.Min, s.Max, s.Alert)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stock item %d: %w", s.ID, ErrNotFound)
	}
	return nil
}

func (tx *txRepo) DeleteStockItems(ctx context.Context, ids []int64) error {
	_, err := tx.tx.Exec(ctx, `DELETE FROM stock_items WHERE id = ANY($1)`, ids)
	return err
}

func (tx *txRepo) CreateProvider(ctx context.Context, p Provider) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO providers (name, email, min_purchase, min_quantity) VALUES ($1,$2,$3,$4) RETURNING id`,
		p.Name, p.Email, p.MinPurchase, p.MinQuantity).Scan(&id)
	return id, err
}

func (tx *txRepo) UpdateProvider(ctx context.Context, p Provider) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE providers SET name=$2, email=$3, min_purchase=$4, min_quantity=$5 WHERE id=$1`,
		p.ID, p.Name, p.Email, p.MinPurchase, p.MinQuantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("provider %d: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (tx *txRepo) RenameOrders(ctx context.Context, oldName, newName string) error {
	_, err := tx.tx.Exec(ctx, `UPDATE orders SET provider_name=$2 WHERE provider_name=$1`, oldName, newName)
	return err
}

func (tx *txRepo) CountOrderLines(ctx context.Context, providerID int64) (int, error) {
	var n int
	err := tx.tx.QueryRow(ctx, `SELECT COUNT(*) FROM order_lines l JOIN offers o ON o.id = l.offer_id WHERE o.provider_id=$1`, providerID).Scan(&n)
	return n, err
}

func (tx *txRepo) DeleteProvider(ctx context.Context, id int64) error {
	tag, err := tx.tx.Exec(ctx, `DELETE FROM providers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("provider %d: %w", id, ErrNotFound)
	}
	return nil
}

func (tx *txRepo) DeleteOpenOrders(ctx context.Context, providerName string) error {
	_, err := tx.tx.Exec(ctx, `DELETE FROM orders WHERE provider_name=$1 AND status IN ('ORDERED','PENDING')`, providerName)
	return err
}

func (tx *txRepo) DeleteOffers(ctx context.Context, providerID int64) error {
	_, err := tx.tx.Exec(ctx, `DELETE FROM offers WHERE provider_id=$1`, providerID)
	return err
}

func (tx *txRepo) InsertOffer(ctx context.Context, o Offer) (int64, error) {
	var expires *time.Time
	if !o.ExpiresAt.IsZero() {
		expires = &o.ExpiresAt
	}
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO offers (provider_id, name, quantity, price_without_tax, price_with_tax, expires_at) VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		o.ProviderID, o.Name, o.Quantity, o.PriceWithoutTax, o.PriceWithTax, expires).Scan(&id)
	return id, err
}

func (tx *txRepo) SetMatches(ctx context.Context, offerID int64, stockItemIDs []int64) error {
	if _, err := tx.tx.Exec(ctx, `DELETE FROM offer_matches WHERE offer_id=$1`, offerID); err != nil {
		return err
	}
	if len(stockItemIDs) == 0 {
		return nil
	}
	_, err := tx.tx.Exec(ctx, `INSERT INTO offer_matches (offer_id, stock_item_id) SELECT $1, unnest($2::bigint[])`, offerID, stockItemIDs)
	return err
}
