package devapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/five82/kiosk/internal/shop"
)

var (
	// ErrNotFound is returned when a product, variant or item does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid is returned for requests the store refuses to apply.
	ErrInvalid = errors.New("invalid request")
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	tenant TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price INTEGER NOT NULL,
	currency TEXT NOT NULL DEFAULT 'USD',
	image_url TEXT NOT NULL DEFAULT '',
	image_status TEXT NOT NULL DEFAULT '',
	image_ready_at INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant, id)
);

CREATE TABLE IF NOT EXISTS variants (
	tenant TEXT NOT NULL,
	product_id TEXT NOT NULL,
	id TEXT NOT NULL,
	name TEXT NOT NULL,
	price INTEGER NOT NULL DEFAULT 0,
	stock INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant, product_id, id),
	FOREIGN KEY (tenant, product_id) REFERENCES products(tenant, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS cart_items (
	id TEXT PRIMARY KEY,
	tenant TEXT NOT NULL,
	customer TEXT NOT NULL,
	product_id TEXT NOT NULL,
	variant_id TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (tenant, customer, product_id, variant_id)
);

CREATE TABLE IF NOT EXISTS wishlist_items (
	id TEXT PRIMARY KEY,
	tenant TEXT NOT NULL,
	customer TEXT NOT NULL,
	product_id TEXT NOT NULL,
	variant_id TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE (tenant, customer, product_id, variant_id)
);
`

// Store persists the development catalog and customer collections in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens the database at path and applies the schema. ":memory:" is
// accepted for tests.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// HasCatalog reports whether tenant has any products.
func (s *Store) HasCatalog(ctx context.Context, tenant string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE tenant = ?`, tenant).Scan(&n); err != nil {
		return false, fmt.Errorf("count products: %w", err)
	}
	return n > 0, nil
}

// PutProduct inserts or replaces a product and its variants.
func (s *Store) PutProduct(ctx context.Context, tenant string, position int, p shop.Product) error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product id and name are required", ErrInvalid)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO products (tenant, id, name, description, price, currency, image_url, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			currency = excluded.currency,
			image_url = excluded.image_url,
			position = excluded.position
	`, tenant, p.ID, p.Name, p.Description, p.Price, currency, p.ImageURL, position); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE tenant = ? AND product_id = ?`, tenant, p.ID); err != nil {
		return fmt.Errorf("clear variants: %w", err)
	}
	for i, v := range p.Variants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO variants (tenant, product_id, id, name, price, stock, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, tenant, p.ID, v.ID, v.Name, v.Price, v.Stock, i); err != nil {
			return fmt.Errorf("insert variant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit product: %w", err)
	}
	return nil
}

// ListProducts returns the tenant's catalog in display order.
func (s *Store) ListProducts(ctx context.Context, tenant string) ([]shop.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, price, currency, image_url, image_status, image_ready_at
		FROM products
		WHERE tenant = ?
		ORDER BY position ASC, id ASC
	`, tenant)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := make([]shop.Product, 0)
	for rows.Next() {
		p, err := s.scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	for i := range products {
		variants, err := s.listVariants(ctx, tenant, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Variants = variants
	}
	return products, nil
}

// GetProduct returns one product with its variants.
func (s *Store) GetProduct(ctx context.Context, tenant, id string) (shop.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, price, currency, image_url, image_status, image_ready_at
		FROM products
		WHERE tenant = ? AND id = ?
	`, tenant, id)
	p, err := s.scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return shop.Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return shop.Product{}, err
	}
	p.Variants, err = s.listVariants(ctx, tenant, id)
	if err != nil {
		return shop.Product{}, err
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanProduct reports a pending image as completed or failed once its ready
// time has passed.
func (s *Store) scanProduct(row scanner) (shop.Product, error) {
	var (
		p       shop.Product
		status  string
		readyAt int64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &p.ImageURL, &status, &readyAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shop.Product{}, err
		}
		return shop.Product{}, fmt.Errorf("scan product: %w", err)
	}
	p.ImageProcessingStatus = shop.ProcessingStatus(status)
	if p.ImageProcessingStatus == shop.StatusPending && toMillis(s.now()) >= readyAt {
		p.ImageProcessingStatus = finalStatus(p.ImageURL)
	}
	return p, nil
}

// finalStatus lets developers exercise the failure path by uploading a URL
// containing "fail".
func finalStatus(imageURL string) shop.ProcessingStatus {
	if strings.Contains(strings.ToLower(imageURL), "fail") {
		return shop.StatusFailed
	}
	return shop.StatusCompleted
}

func (s *Store) listVariants(ctx context.Context, tenant, productID string) ([]shop.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, stock
		FROM variants
		WHERE tenant = ? AND product_id = ?
		ORDER BY position ASC
	`, tenant, productID)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	variants := make([]shop.Variant, 0)
	for rows.Next() {
		var v shop.Variant
		if err := rows.Scan(&v.ID, &v.Name, &v.Price, &v.Stock); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variants: %w", err)
	}
	return variants, nil
}

// SetImage records a new image and marks processing pending until readyAt.
func (s *Store) SetImage(ctx context.Context, tenant, id, imageURL string, readyAt time.Time) (shop.Product, error) {
	if strings.TrimSpace(imageURL) == "" {
		return shop.Product{}, fmt.Errorf("%w: imageUrl is required", ErrInvalid)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET image_url = ?, image_status = ?, image_ready_at = ?
		WHERE tenant = ? AND id = ?
	`, imageURL, string(shop.StatusPending), toMillis(readyAt), tenant, id)
	if err != nil {
		return shop.Product{}, fmt.Errorf("update image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shop.Product{}, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return s.GetProduct(ctx, tenant, id)
}

func itemsTable(kind shop.Kind) (string, error) {
	switch kind {
	case shop.KindCart:
		return "cart_items", nil
	case shop.KindWishlist:
		return "wishlist_items", nil
	default:
		return "", fmt.Errorf("%w: unknown collection %q", ErrInvalid, kind)
	}
}

// Owner scopes a collection to one tenant and customer.
type Owner struct {
	Tenant   string
	Customer string
	Kind     shop.Kind
}

// ListItems returns the collection with denormalized product fields.
func (s *Store) ListItems(ctx context.Context, o Owner) ([]shop.Item, error) {
	return listItems(ctx, s.db, o)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listItems(ctx context.Context, q querier, o Owner) ([]shop.Item, error) {
	table, err := itemsTable(o.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT i.id, i.product_id, i.variant_id, i.quantity, p.name,
			COALESCE(v.name, ''),
			CASE WHEN v.price > 0 THEN v.price ELSE p.price END,
			p.image_url
		FROM %s i
		JOIN products p ON p.tenant = i.tenant AND p.id = i.product_id
		LEFT JOIN variants v ON v.tenant = i.tenant AND v.product_id = i.product_id AND v.id = i.variant_id
		WHERE i.tenant = ? AND i.customer = ?
		ORDER BY i.created_at ASC, i.rowid ASC
	`, table), o.Tenant, o.Customer)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make([]shop.Item, 0)
	for rows.Next() {
		var it shop.Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.VariantID, &it.Quantity, &it.Name, &it.VariantName, &it.Price, &it.ImageURL); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// AddItem adds a variant to the collection. Cart adds accumulate quantity;
// wishlist adds of an existing variant are no-ops. An empty variant id picks
// the product's first variant.
func (s *Store) AddItem(ctx context.Context, o Owner, productID, variantID string, quantity int) ([]shop.Item, error) {
	table, err := itemsTable(o.Kind)
	if err != nil {
		return nil, err
	}
	if quantity <= 0 {
		quantity = 1
	}
	if o.Kind == shop.KindWishlist {
		quantity = 1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM products WHERE tenant = ? AND id = ?`, o.Tenant, productID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup product: %w", err)
	}

	if variantID == "" {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM variants WHERE tenant = ? AND product_id = ? ORDER BY position ASC LIMIT 1
		`, o.Tenant, productID).Scan(&variantID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lookup default variant: %w", err)
		}
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT 1 FROM variants WHERE tenant = ? AND product_id = ? AND id = ?
		`, o.Tenant, productID, variantID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("variant %s: %w", variantID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("lookup variant: %w", err)
		}
	}

	conflict := "DO NOTHING"
	if o.Kind == shop.KindCart {
		conflict = "DO UPDATE SET quantity = quantity + excluded.quantity"
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, tenant, customer, product_id, variant_id, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant, customer, product_id, variant_id) %s
	`, table, conflict), "item-"+uuid.NewString(), o.Tenant, o.Customer, productID, variantID, quantity, toMillis(s.now())); err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	items, err := listItems(ctx, tx, o)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit item: %w", err)
	}
	return items, nil
}

// UpdateItem sets an item's quantity. Zero or less removes it.
func (s *Store) UpdateItem(ctx context.Context, o Owner, itemID string, quantity int) ([]shop.Item, error) {
	if quantity <= 0 {
		return s.RemoveItem(ctx, o, itemID)
	}
	table, err := itemsTable(o.Kind)
	if err != nil {
		return nil, err
	}
	return s.mutateItems(ctx, o, true, fmt.Sprintf(`
		UPDATE %s SET quantity = ? WHERE tenant = ? AND customer = ? AND id = ?
	`, table), quantity, o.Tenant, o.Customer, itemID)
}

// RemoveItem deletes one item.
func (s *Store) RemoveItem(ctx context.Context, o Owner, itemID string) ([]shop.Item, error) {
	table, err := itemsTable(o.Kind)
	if err != nil {
		return nil, err
	}
	return s.mutateItems(ctx, o, true, fmt.Sprintf(`
		DELETE FROM %s WHERE tenant = ? AND customer = ? AND id = ?
	`, table), o.Tenant, o.Customer, itemID)
}

// ClearItems deletes every item in the collection.
func (s *Store) ClearItems(ctx context.Context, o Owner) ([]shop.Item, error) {
	table, err := itemsTable(o.Kind)
	if err != nil {
		return nil, err
	}
	return s.mutateItems(ctx, o, false, fmt.Sprintf(`
		DELETE FROM %s WHERE tenant = ? AND customer = ?
	`, table), o.Tenant, o.Customer)
}

// mutateItems runs stmt and returns the resulting collection from the same
// transaction. mustMatch turns an unaffected statement into ErrNotFound.
func (s *Store) mutateItems(ctx context.Context, o Owner, mustMatch bool, stmt string, args ...any) ([]shop.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("mutate items: %w", err)
	}
	if n, _ := res.RowsAffected(); mustMatch && n == 0 {
		return nil, fmt.Errorf("item: %w", ErrNotFound)
	}
	items, err := listItems(ctx, tx, o)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit items: %w", err)
	}
	return items, nil
}
