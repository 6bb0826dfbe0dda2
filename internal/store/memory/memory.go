package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stockpilot/backend/internal/domain"
	"stockpilot/backend/internal/store"
	"stockpilot/backend/internal/xid"
)

// Store is a mutex-guarded in-memory Repository. CreateSale holds the write
// lock for the whole validate-append-decrement sequence, so two concurrent
// sellers can never both observe the same pre-decrement quantity.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	sales           map[string]*domain.Sale
	saleOrder       []string
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		sales:           make(map[string]*domain.Sale),
		saleOrder:       make([]string, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset
// variables fall back to dev defaults with a warning. Production deployments
// use PostgreSQL (DATABASE_URL) and never hit this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	catalog := []domain.Product{
		{ID: "prod-espresso-1kg", Name: "Espresso Beans 1kg", Type: "beverage", WholesalePriceCents: 950, RetailPriceCents: 1599, Quantity: 40},
		{ID: "prod-green-tea", Name: "Green Tea Box", Type: "beverage", WholesalePriceCents: 320, RetailPriceCents: 699, Quantity: 55},
		{ID: "prod-notebook-a5", Name: "Notebook A5", Type: "stationery", WholesalePriceCents: 110, RetailPriceCents: 349, Quantity: 120},
		{ID: "prod-gel-pen", Name: "Gel Pen", Type: "stationery", WholesalePriceCents: 45, RetailPriceCents: 150, Quantity: 200},
		{ID: "prod-usb-cable", Name: "USB-C Cable 1m", Type: "electronics", WholesalePriceCents: 280, RetailPriceCents: 899, Quantity: 35},
		{ID: "prod-mouse", Name: "Wireless Mouse", Type: "electronics", WholesalePriceCents: 750, RetailPriceCents: 1999, Quantity: 18},
		{ID: "prod-mug", Name: "Ceramic Mug", Type: "kitchen", WholesalePriceCents: 210, RetailPriceCents: 599, Quantity: 8},
		{ID: "prod-water-bottle", Name: "Water Bottle 750ml", Type: "kitchen", WholesalePriceCents: 330, RetailPriceCents: 999, Quantity: 60},
	}

	s := New()
	for _, p := range catalog {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.RetailPriceCents < 0 || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.RetailPriceCents < 0 || product.Quantity < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) RestockProduct(_ context.Context, id string, quantity int) (*domain.Product, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Quantity += quantity
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	updated := product
	return &updated, nil
}

// CreateSale validates, snapshots and commits under one write lock. On any
// failure path nothing has been written: the quantity check happens before
// the ledger append, and both mutations occur back to back while the lock
// is held.
func (s *Store) CreateSale(_ context.Context, productID string, quantity int, at time.Time) (*domain.Sale, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Quantity < quantity {
		return nil, store.ErrInsufficientStock
	}

	itemTotal := int64(quantity) * product.RetailPriceCents
	sale := &domain.Sale{
		ID:               xid.New("sale"),
		SaleTimestamp:    at.UTC(),
		TotalAmountCents: itemTotal,
		CreatedAt:        at.UTC(),
	}
	sale.Items = []domain.SaleItem{{
		ID:                          xid.New("item"),
		SaleID:                      sale.ID,
		ProductID:                   product.ID,
		ProductNameSnapshot:         product.Name,
		ProductTypeSnapshot:         product.Type,
		QuantitySold:                quantity,
		RetailPriceCentsSnapshot:    product.RetailPriceCents,
		WholesalePriceCentsSnapshot: product.WholesalePriceCents,
		ItemTotalCents:              itemTotal,
		CreatedAt:                   at.UTC(),
	}}

	product.Quantity -= quantity
	product.UpdatedAt = at.UTC()
	s.products[productID] = product

	s.sales[sale.ID] = sale
	s.saleOrder = append(s.saleOrder, sale.ID)

	return cloneSale(sale), nil
}

func (s *Store) ListRecentSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}

	result := make([]domain.Sale, 0, limit)
	for _, sale := range s.sales {
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.SaleTimestamp.Equal(b.SaleTimestamp) {
			return cmpString(b.ID, a.ID)
		}
		if a.SaleTimestamp.After(b.SaleTimestamp) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}

	for i := range result {
		s.joinCurrentProductLocked(&result[i])
	}
	return result, nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.sales {
		if sale.SaleTimestamp.Before(from) || !sale.SaleTimestamp.Before(to) {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.SaleTimestamp.Equal(b.SaleTimestamp) {
			return cmpString(a.ID, b.ID)
		}
		if a.SaleTimestamp.Before(b.SaleTimestamp) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) SumSalesBetween(_ context.Context, from time.Time, to time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := int64(0)
	for _, sale := range s.sales {
		if sale.SaleTimestamp.Before(from) || !sale.SaleTimestamp.Before(to) {
			continue
		}
		total += sale.TotalAmountCents
	}
	return total, nil
}

func (s *Store) CountProducts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}

func (s *Store) CountLowStockProducts(_ context.Context, threshold int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.products {
		if p.Quantity < threshold {
			count++
		}
	}
	return count, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if username == "" || password == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// joinCurrentProductLocked fills the display-only current name/type on each
// item. Caller must hold at least the read lock.
func (s *Store) joinCurrentProductLocked(sale *domain.Sale) {
	for i := range sale.Items {
		if p, ok := s.products[sale.Items[i].ProductID]; ok {
			sale.Items[i].CurrentProductName = p.Name
			sale.Items[i].CurrentProductType = p.Type
		}
	}
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return &dup
}
