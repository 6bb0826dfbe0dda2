package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stockpilot/backend/internal/domain"
	"stockpilot/backend/internal/store"
	"stockpilot/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, wholesale_price_cents, retail_price_cents, quantity, created_at, updated_at
		FROM products
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.WholesalePriceCents, &p.RetailPriceCents, &p.Quantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.Name == "" || product.RetailPriceCents < 1 || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.WholesalePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, type, wholesale_price_cents, retail_price_cents, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, product.ID, product.Name, product.Type, product.WholesalePriceCents, product.RetailPriceCents, product.Quantity, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, wholesale_price_cents, retail_price_cents, quantity, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Type, &product.WholesalePriceCents, &product.RetailPriceCents, &product.Quantity, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.ID == "" || product.Name == "" || product.RetailPriceCents < 1 || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.WholesalePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	var updated domain.Product
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, type = $3, wholesale_price_cents = $4, retail_price_cents = $5, quantity = $6, updated_at = now()
		WHERE id = $1
		RETURNING id, name, type, wholesale_price_cents, retail_price_cents, quantity, created_at, updated_at
	`, product.ID, product.Name, product.Type, product.WholesalePriceCents, product.RetailPriceCents, product.Quantity).Scan(
		&updated.ID,
		&updated.Name,
		&updated.Type,
		&updated.WholesalePriceCents,
		&updated.RetailPriceCents,
		&updated.Quantity,
		&updated.CreatedAt,
		&updated.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	updated.CreatedAt = updated.CreatedAt.UTC()
	updated.UpdatedAt = updated.UpdatedAt.UTC()
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RestockProduct(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1
		RETURNING id, name, type, wholesale_price_cents, retail_price_cents, quantity, created_at, updated_at
	`, id, quantity).Scan(
		&product.ID,
		&product.Name,
		&product.Type,
		&product.WholesalePriceCents,
		&product.RetailPriceCents,
		&product.Quantity,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return &product, nil
}

// CreateSale commits the sale header, its item snapshot and the stock
// decrement as one serializable transaction. The decrement is guarded by
// quantity >= sold, so two concurrent sellers can never drive stock below
// zero: the loser either blocks on the row lock and sees the reduced
// quantity, or hits the guard and the whole transaction rolls back.
func (s *Store) CreateSale(ctx context.Context, productID string, quantity int, at time.Time) (*domain.Sale, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	at = at.UTC()

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var product domain.Product
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, name, type, wholesale_price_cents, retail_price_cents, quantity
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&product.ID, &product.Name, &product.Type, &product.WholesalePriceCents, &product.RetailPriceCents, &product.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classifyTxError(err)
	}

	if product.Quantity < quantity {
		return nil, store.ErrInsufficientStock
	}

	itemTotal := product.RetailPriceCents * int64(quantity)
	sale := domain.Sale{
		ID:               xid.New("sale"),
		SaleTimestamp:    at,
		TotalAmountCents: itemTotal,
		CreatedAt:        time.Now().UTC(),
	}
	item := domain.SaleItem{
		ID:                          xid.New("item"),
		SaleID:                      sale.ID,
		ProductID:                   product.ID,
		ProductNameSnapshot:         product.Name,
		ProductTypeSnapshot:         product.Type,
		QuantitySold:                quantity,
		RetailPriceCentsSnapshot:    product.RetailPriceCents,
		WholesalePriceCentsSnapshot: product.WholesalePriceCents,
		ItemTotalCents:              itemTotal,
		CreatedAt:                   sale.CreatedAt,
		CurrentProductName:          product.Name,
		CurrentProductType:          product.Type,
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, sale_timestamp, total_amount_cents, created_at)
		VALUES ($1,$2,$3,$4)
	`, sale.ID, sale.SaleTimestamp, sale.TotalAmountCents, sale.CreatedAt)
	if err != nil {
		return nil, classifyTxError(err)
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sale_items (
			id, sale_id, product_id, product_name_snapshot, product_type_snapshot,
			quantity_sold, retail_price_cents_snapshot, wholesale_price_cents_snapshot,
			item_total_cents, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, item.ID, item.SaleID, item.ProductID, item.ProductNameSnapshot, item.ProductTypeSnapshot,
		item.QuantitySold, item.RetailPriceCentsSnapshot, item.WholesalePriceCentsSnapshot,
		item.ItemTotalCents, item.CreatedAt)
	if err != nil {
		return nil, classifyTxError(err)
	}

	res, err := pgTx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - $1, updated_at = now()
		WHERE id = $2 AND quantity >= $1
	`, quantity, productID)
	if err != nil {
		return nil, classifyTxError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrInsufficientStock
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classifyTxError(err)
	}

	sale.Items = []domain.SaleItem{item}
	return &sale, nil
}

func (s *Store) ListRecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_timestamp, total_amount_cents, created_at
		FROM sales
		ORDER BY sale_timestamp DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}

	sales, err := s.scanSales(rows, limit)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_timestamp, total_amount_cents, created_at
		FROM sales
		WHERE sale_timestamp >= $1 AND sale_timestamp < $2
		ORDER BY sale_timestamp ASC, id ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}

	sales, err := s.scanSales(rows, 64)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) SumSalesBetween(ctx context.Context, from time.Time, to time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_amount_cents),0)::bigint
		FROM sales
		WHERE sale_timestamp >= $1 AND sale_timestamp < $2
	`, from.UTC(), to.UTC()).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)::int FROM products`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CountLowStockProducts(ctx context.Context, threshold int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM products WHERE quantity < $1
	`, threshold).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) scanSales(rows *sql.Rows, hint int) ([]domain.Sale, error) {
	defer rows.Close()

	sales := make([]domain.Sale, 0, hint)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.SaleTimestamp, &sale.TotalAmountCents, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.SaleTimestamp = sale.SaleTimestamp.UTC()
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// attachItems loads the items for the given sale headers in one query and
// joins in the product's current name and type. The LEFT JOIN keeps items
// whose product has since been deleted; their current fields stay empty.
func (s *Store) attachItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}

	saleIDs := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		saleIDs = append(saleIDs, sale.ID)
		index[sale.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.product_id, si.product_name_snapshot, si.product_type_snapshot,
			si.quantity_sold, si.retail_price_cents_snapshot, si.wholesale_price_cents_snapshot,
			si.item_total_cents, si.created_at,
			COALESCE(p.name, ''), COALESCE(p.type, '')
		FROM sale_items si
		LEFT JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = ANY($1)
		ORDER BY si.created_at ASC, si.id ASC
	`, saleIDs)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(
			&item.ID, &item.SaleID, &item.ProductID, &item.ProductNameSnapshot, &item.ProductTypeSnapshot,
			&item.QuantitySold, &item.RetailPriceCentsSnapshot, &item.WholesalePriceCentsSnapshot,
			&item.ItemTotalCents, &item.CreatedAt,
			&item.CurrentProductName, &item.CurrentProductType,
		); err != nil {
			return err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		if i, ok := index[item.SaleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	return rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// classifyTxError maps a serialization failure to ErrConflict so callers can
// distinguish "retry the whole request" from a real persistence failure.
func classifyTxError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "40001" {
		return store.ErrConflict
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
