package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"stockpilot/backend/internal/store"
)

func openTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	databaseURL := os.Getenv("STOCKPILOT_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set STOCKPILOT_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, ctx
}

func TestCreateSaleCommitsAtomically(t *testing.T) {
	s, ctx := openTestStore(t)

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-sale-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id NOT IN (SELECT sale_id FROM sale_items)`)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, type, wholesale_price_cents, retail_price_cents, quantity, created_at, updated_at)
		VALUES ($1, 'Sale IT Product', 'test', 500, 1200, 5, now(), now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	sale, err := s.CreateSale(ctx, productID, 3, time.Now().UTC())
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.TotalAmountCents != 3600 {
		t.Fatalf("expected total 3600, got %d", sale.TotalAmountCents)
	}
	if len(sale.Items) != 1 || sale.Items[0].RetailPriceCentsSnapshot != 1200 {
		t.Fatalf("unexpected sale items: %+v", sale.Items)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM products WHERE id = $1
	`, productID).Scan(&qty); err != nil {
		t.Fatalf("query quantity: %v", err)
	}
	if qty != 2 {
		t.Fatalf("expected quantity 2 after sale, got %d", qty)
	}

	_, err = s.CreateSale(ctx, productID, 3, time.Now().UTC())
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM products WHERE id = $1
	`, productID).Scan(&qty); err != nil {
		t.Fatalf("query quantity: %v", err)
	}
	if qty != 2 {
		t.Fatalf("rejected sale changed quantity to %d", qty)
	}

	var ledgerEntries int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::int FROM sale_items WHERE product_id = $1
	`, productID).Scan(&ledgerEntries); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if ledgerEntries != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", ledgerEntries)
	}
}

func TestConcurrentCreateSaleLastUnit(t *testing.T) {
	s, ctx := openTestStore(t)

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-race-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id NOT IN (SELECT sale_id FROM sale_items)`)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, type, wholesale_price_cents, retail_price_cents, quantity, created_at, updated_at)
		VALUES ($1, 'Race IT Product', 'test', 500, 1000, 1, now(), now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateSale(ctx, productID, 1, time.Now().UTC())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one committed sale, got %d", successes)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM products WHERE id = $1
	`, productID).Scan(&qty); err != nil {
		t.Fatalf("query quantity: %v", err)
	}
	if qty != 0 {
		t.Fatalf("expected quantity 0, got %d", qty)
	}
}
