package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"stockpilot/backend/internal/advisor"
	"stockpilot/backend/internal/domain"
	"stockpilot/backend/internal/store"
	"stockpilot/backend/internal/store/memory"
)

func newTestService(t *testing.T, now time.Time) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	svc := New(repo, nil, nil, nil, 0)
	svc.now = func() time.Time { return now }
	return svc, repo
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func seedProduct(t *testing.T, repo *memory.Store, id string, price int64, qty int) {
	t.Helper()
	_, err := repo.CreateProduct(context.Background(), domain.Product{
		ID:               id,
		Name:             "Product " + id,
		Type:             "test",
		RetailPriceCents: price,
		Quantity:         qty,
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func TestRecordSaleValidation(t *testing.T) {
	svc, repo := newTestService(t, time.Now().UTC())
	seedProduct(t, repo, "prod-a", 1000, 5)

	cases := []struct {
		name string
		req  domain.RecordSaleRequest
	}{
		{"empty product id", domain.RecordSaleRequest{ProductID: "", QuantitySold: 1}},
		{"zero quantity", domain.RecordSaleRequest{ProductID: "prod-a", QuantitySold: 0}},
		{"negative quantity", domain.RecordSaleRequest{ProductID: "prod-a", QuantitySold: -3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordSale(context.Background(), tc.req)
			if !errors.Is(err, store.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	product, err := repo.GetProductByID(context.Background(), "prod-a")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Quantity != 5 {
		t.Fatalf("rejected requests changed quantity to %d", product.Quantity)
	}
}

func TestRecordSaleMissingProduct(t *testing.T) {
	svc, repo := newTestService(t, time.Now().UTC())

	_, err := svc.RecordSale(context.Background(), domain.RecordSaleRequest{ProductID: "nope", QuantitySold: 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sales, err := repo.ListRecentSales(context.Background(), 10)
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("missing product sale left %d ledger entries", len(sales))
	}
}

func TestRecordSaleStampsInjectedClock(t *testing.T) {
	now := time.Date(2025, 6, 4, 10, 30, 0, 0, time.UTC)
	svc, repo := newTestService(t, now)
	seedProduct(t, repo, "prod-a", 700, 3)

	resp, err := svc.RecordSale(context.Background(), domain.RecordSaleRequest{ProductID: "prod-a", QuantitySold: 2})
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if !resp.Sale.SaleTimestamp.Equal(now) {
		t.Fatalf("sale timestamp %v != injected now %v", resp.Sale.SaleTimestamp, now)
	}
	if resp.SaleItem.ItemTotalCents != 1400 {
		t.Fatalf("expected item total 1400, got %d", resp.SaleItem.ItemTotalCents)
	}
	if resp.Sale.TotalAmountCents != resp.SaleItem.ItemTotalCents {
		t.Fatalf("sale total %d != item total %d", resp.Sale.TotalAmountCents, resp.SaleItem.ItemTotalCents)
	}
}

type failingRepo struct {
	store.Repository
}

func (failingRepo) CreateSale(ctx context.Context, productID string, quantity int, at time.Time) (*domain.Sale, error) {
	return nil, fmt.Errorf("connection reset by peer")
}

func TestRecordSalePersistenceFailurePassesThrough(t *testing.T) {
	svc := New(failingRepo{memory.New()}, nil, nil, nil, 0)

	_, err := svc.RecordSale(context.Background(), domain.RecordSaleRequest{ProductID: "prod-a", QuantitySold: 1})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, store.ErrInvalidInput) || errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("infrastructure failure mapped to a domain error: %v", err)
	}
}

func TestGetSalesByDayZeroFills(t *testing.T) {
	now := time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, now)

	series, err := svc.GetSalesByDay(context.Background(), 7)
	if err != nil {
		t.Fatalf("get sales by day: %v", err)
	}
	if len(series) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(series))
	}
	if series[0].Date != "2025-06-01" || series[6].Date != "2025-06-07" {
		t.Fatalf("unexpected window: %s .. %s", series[0].Date, series[6].Date)
	}
	for _, bucket := range series {
		if bucket.TotalSalesCents != 0 {
			t.Fatalf("empty ledger produced non-zero bucket %+v", bucket)
		}
	}
}

func TestGetSalesByDayBucketsAndExcludesOutOfWindow(t *testing.T) {
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, now)
	seedProduct(t, repo, "prod-a", 500, 100)

	mustSell := func(at time.Time, qty int) {
		t.Helper()
		if _, err := repo.CreateSale(context.Background(), "prod-a", qty, at); err != nil {
			t.Fatalf("create sale: %v", err)
		}
	}
	// $10 today, $20 four days ago, $5 eight days ago (outside a 7-day window).
	mustSell(now.Add(-2*time.Hour), 2)
	mustSell(now.AddDate(0, 0, -4), 4)
	mustSell(now.AddDate(0, 0, -8), 1)

	series, err := svc.GetSalesByDay(context.Background(), 7)
	if err != nil {
		t.Fatalf("get sales by day: %v", err)
	}
	if len(series) != 7 {
		t.Fatalf("expected 7 buckets, got %d", len(series))
	}

	byDate := make(map[string]int64, len(series))
	for i, bucket := range series {
		byDate[bucket.Date] = bucket.TotalSalesCents
		if i > 0 && series[i-1].Date >= bucket.Date {
			t.Fatalf("buckets not ascending: %s then %s", series[i-1].Date, bucket.Date)
		}
	}

	if byDate["2025-06-10"] != 1000 {
		t.Fatalf("today bucket = %d, want 1000", byDate["2025-06-10"])
	}
	if byDate["2025-06-06"] != 2000 {
		t.Fatalf("four-days-ago bucket = %d, want 2000", byDate["2025-06-06"])
	}
	if _, ok := byDate["2025-06-02"]; ok {
		t.Fatal("eight-days-ago date leaked into a 7-day window")
	}
	var total int64
	for _, cents := range byDate {
		total += cents
	}
	if total != 3000 {
		t.Fatalf("window total = %d, want 3000", total)
	}
}

func TestGetDashboardStats(t *testing.T) {
	// Wednesday. Week runs Monday 2025-06-02 .. Sunday.
	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, now)
	seedProduct(t, repo, "prod-a", 1000, 50)
	seedProduct(t, repo, "prod-low", 1000, domain.LowStockThreshold-2)

	mustSell := func(at time.Time, qty int) {
		t.Helper()
		if _, err := repo.CreateSale(context.Background(), "prod-a", qty, at); err != nil {
			t.Fatalf("create sale: %v", err)
		}
	}
	mustSell(now.Add(-time.Hour), 1)                              // today, this week, this month
	mustSell(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), 2)     // Monday: this week + month, not today
	mustSell(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC), 3)     // Sunday before: month only
	mustSell(time.Date(2025, 5, 31, 23, 0, 0, 0, time.UTC), 10)  // May: none

	stats, err := svc.GetDashboardStats(context.Background())
	if err != nil {
		t.Fatalf("get dashboard stats: %v", err)
	}

	if stats.TotalProducts != 2 {
		t.Fatalf("total products = %d, want 2", stats.TotalProducts)
	}
	if stats.LowStockItems != 1 {
		t.Fatalf("low stock items = %d, want 1", stats.LowStockItems)
	}
	if stats.TotalSalesTodayCents != 1000 {
		t.Fatalf("today = %d, want 1000", stats.TotalSalesTodayCents)
	}
	if stats.TotalSalesThisWeekCents != 3000 {
		t.Fatalf("week = %d, want 3000", stats.TotalSalesThisWeekCents)
	}
	if stats.TotalSalesThisMonthCents != 6000 {
		t.Fatalf("month = %d, want 6000", stats.TotalSalesThisMonthCents)
	}
}

func TestProductMutationsRequireAdmin(t *testing.T) {
	svc, repo := newTestService(t, time.Now().UTC())
	seedProduct(t, repo, "prod-a", 1000, 5)

	staffCtx := WithActor(context.Background(), domain.Actor{Username: "staff", Role: "staff"})

	if _, err := svc.CreateProduct(staffCtx, domain.ProductCreateRequest{Name: "X", RetailPriceCents: 100}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("create: expected ErrAdminRequired, got %v", err)
	}
	if _, err := svc.UpdateProduct(staffCtx, "prod-a", domain.ProductUpdateRequest{}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("update: expected ErrAdminRequired, got %v", err)
	}
	if err := svc.DeleteProduct(staffCtx, "prod-a"); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("delete: expected ErrAdminRequired, got %v", err)
	}
	if _, err := svc.RestockProduct(staffCtx, "prod-a", domain.RestockRequest{Quantity: 5}); !errors.Is(err, ErrAdminRequired) {
		t.Fatalf("restock: expected ErrAdminRequired, got %v", err)
	}
}

func TestUpdateProductPartial(t *testing.T) {
	svc, repo := newTestService(t, time.Now().UTC())
	seedProduct(t, repo, "prod-a", 1000, 5)

	newPrice := int64(1250)
	updated, err := svc.UpdateProduct(adminContext(), "prod-a", domain.ProductUpdateRequest{RetailPriceCents: &newPrice})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.RetailPriceCents != 1250 {
		t.Fatalf("price = %d, want 1250", updated.RetailPriceCents)
	}
	if updated.Name != "Product prod-a" || updated.Quantity != 5 {
		t.Fatalf("untouched fields changed: %+v", updated)
	}

	product, err := repo.GetProductByID(context.Background(), "prod-a")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.RetailPriceCents != 1250 {
		t.Fatalf("persisted price = %d, want 1250", product.RetailPriceCents)
	}
}

func TestRestockProduct(t *testing.T) {
	svc, repo := newTestService(t, time.Now().UTC())
	seedProduct(t, repo, "prod-a", 1000, 5)

	product, err := svc.RestockProduct(adminContext(), "prod-a", domain.RestockRequest{Quantity: 7})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if product.Quantity != 12 {
		t.Fatalf("quantity = %d, want 12", product.Quantity)
	}

	if _, err := svc.RestockProduct(adminContext(), "prod-a", domain.RestockRequest{Quantity: 0}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero quantity, got %v", err)
	}
	if _, err := svc.RestockProduct(adminContext(), "missing", domain.RestockRequest{Quantity: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type scriptedAdvisor struct {
	calls int
	resp  advisor.Response
	err   error
}

func (a *scriptedAdvisor) Suggest(ctx context.Context, req advisor.Request) (advisor.Response, error) {
	a.calls++
	return a.resp, a.err
}

type mapCache struct {
	entries map[string]string
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	val, ok := c.entries[key]
	return val, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.entries[key] = value
	return nil
}

func TestRestockSuggestionsCachesAdvisorAnswer(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := memory.New()
	fake := &scriptedAdvisor{resp: advisor.Response{RestockSuggestions: "Order more beans."}}
	suggestions := &mapCache{entries: map[string]string{}}
	svc := New(repo, fake, suggestions, nil, time.Hour)
	svc.now = func() time.Time { return now }

	seedProduct(t, repo, "prod-a", 500, 20)
	if _, err := repo.CreateSale(context.Background(), "prod-a", 3, now.Add(-24*time.Hour)); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	first, err := svc.RestockSuggestions(context.Background(), domain.RestockSuggestionRequest{LeadTimeDays: 7})
	if err != nil {
		t.Fatalf("restock suggestions: %v", err)
	}
	if first.Cached || first.Suggestions != "Order more beans." {
		t.Fatalf("unexpected first response: %+v", first)
	}

	second, err := svc.RestockSuggestions(context.Background(), domain.RestockSuggestionRequest{LeadTimeDays: 7})
	if err != nil {
		t.Fatalf("restock suggestions: %v", err)
	}
	if !second.Cached {
		t.Fatal("expected second call to hit the cache")
	}
	if fake.calls != 1 {
		t.Fatalf("advisor called %d times, want 1", fake.calls)
	}

	// A different lead time is a different question.
	if _, err := svc.RestockSuggestions(context.Background(), domain.RestockSuggestionRequest{LeadTimeDays: 14}); err != nil {
		t.Fatalf("restock suggestions: %v", err)
	}
	if fake.calls != 2 {
		t.Fatalf("advisor called %d times, want 2", fake.calls)
	}
}

func TestRestockSuggestionsRequiresRecentSales(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	svc, repo := newTestService(t, now)
	seedProduct(t, repo, "prod-a", 500, 20)

	_, err := svc.RestockSuggestions(context.Background(), domain.RestockSuggestionRequest{LeadTimeDays: 7})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput with no sales, got %v", err)
	}

	_, err = svc.RestockSuggestions(context.Background(), domain.RestockSuggestionRequest{LeadTimeDays: -1})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative lead time, got %v", err)
	}
}
