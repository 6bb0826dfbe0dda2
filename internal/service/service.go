package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"stockpilot/backend/internal/advisor"
	"stockpilot/backend/internal/cache"
	"stockpilot/backend/internal/domain"
	"stockpilot/backend/internal/store"
	"stockpilot/backend/internal/timewin"
)

// ErrAdminRequired is returned when a mutation needs the admin role and the
// request actor does not have it.
var ErrAdminRequired = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo          store.Repository
	advisor       advisor.Client
	suggestions   cache.SuggestionCache
	logger        *zap.Logger
	suggestionTTL time.Duration
	now           func() time.Time
}

func New(repo store.Repository, advisorClient advisor.Client, suggestions cache.SuggestionCache, logger *zap.Logger, suggestionTTL time.Duration) *Service {
	if advisorClient == nil {
		advisorClient = advisor.Disabled{}
	}
	if suggestions == nil {
		suggestions = cache.NoopSuggestionCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if suggestionTTL <= 0 {
		suggestionTTL = time.Hour
	}

	return &Service{
		repo:          repo,
		advisor:       advisorClient,
		suggestions:   suggestions,
		logger:        logger,
		suggestionTTL: suggestionTTL,
		now:           time.Now,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Type = strings.TrimSpace(req.Type)
	if req.Name == "" || req.RetailPriceCents < 1 || req.WholesalePriceCents < 0 || req.Quantity < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:                req.Name,
		Type:                req.Type,
		WholesalePriceCents: req.WholesalePriceCents,
		RetailPriceCents:    req.RetailPriceCents,
		Quantity:            req.Quantity,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("name", created.Name),
		zap.Int("quantity", created.Quantity))
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, store.ErrInvalidInput
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Type != nil {
		updated.Type = strings.TrimSpace(*req.Type)
	}
	if req.WholesalePriceCents != nil {
		if *req.WholesalePriceCents < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.WholesalePriceCents = *req.WholesalePriceCents
	}
	if req.RetailPriceCents != nil {
		if *req.RetailPriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.RetailPriceCents = *req.RetailPriceCents
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Quantity = *req.Quantity
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product updated",
		zap.String("product_id", saved.ID),
		zap.Int64("retail_price_cents", saved.RetailPriceCents),
		zap.Int("quantity", saved.Quantity))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidInput
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.logger.Info("product deleted", zap.String("product_id", id))
	return nil
}

func (s *Service) RestockProduct(ctx context.Context, id string, req domain.RestockRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" || req.Quantity < 1 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product, err := s.repo.RestockProduct(ctx, id, req.Quantity)
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product restocked",
		zap.String("product_id", product.ID),
		zap.Int("added", req.Quantity),
		zap.Int("quantity", product.Quantity))
	return *product, nil
}

// RecordSale commits one sale as a single unit of work. Either the sale
// header, its item snapshot and the stock decrement all land, or nothing
// does.
func (s *Service) RecordSale(ctx context.Context, req domain.RecordSaleRequest) (domain.RecordSaleResponse, error) {
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.RecordSaleResponse{}, fmt.Errorf("%w: product id is required", store.ErrInvalidInput)
	}
	if req.QuantitySold < 1 {
		return domain.RecordSaleResponse{}, fmt.Errorf("%w: quantity sold must be at least 1", store.ErrInvalidInput)
	}

	sale, err := s.repo.CreateSale(ctx, req.ProductID, req.QuantitySold, s.now().UTC())
	if err != nil {
		return domain.RecordSaleResponse{}, err
	}

	item := sale.Items[0]
	s.logger.Info("sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("product_id", item.ProductID),
		zap.Int("quantity_sold", item.QuantitySold),
		zap.Int64("total_amount_cents", sale.TotalAmountCents))

	return domain.RecordSaleResponse{Sale: *sale, SaleItem: item}, nil
}

func (s *Service) ListSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return s.repo.ListRecentSales(ctx, limit)
}

func (s *Service) GetDashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	now := s.now()

	totalProducts, err := s.repo.CountProducts(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	lowStock, err := s.repo.CountLowStockProducts(ctx, domain.LowStockThreshold)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	dayFrom, dayTo := timewin.DayWindow(now)
	today, err := s.repo.SumSalesBetween(ctx, dayFrom, dayTo)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	weekFrom, weekTo := timewin.WeekWindow(now)
	week, err := s.repo.SumSalesBetween(ctx, weekFrom, weekTo)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	monthFrom, monthTo := timewin.MonthWindow(now)
	month, err := s.repo.SumSalesBetween(ctx, monthFrom, monthTo)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	return domain.DashboardStats{
		TotalProducts:            totalProducts,
		LowStockItems:            lowStock,
		TotalSalesTodayCents:     today,
		TotalSalesThisWeekCents:  week,
		TotalSalesThisMonthCents: month,
	}, nil
}

// GetSalesByDay returns exactly days buckets, oldest first. Every calendar
// day in the window appears even when it saw no sales.
func (s *Service) GetSalesByDay(ctx context.Context, days int) ([]domain.DailySales, error) {
	if days < 1 {
		days = 7
	}
	if days > 90 {
		days = 90
	}

	now := s.now()
	from, to := timewin.LastNDays(now, days)

	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64, days)
	for _, key := range timewin.DayKeys(now, days) {
		totals[key] = 0
	}
	for _, sale := range sales {
		key := timewin.DayKey(sale.SaleTimestamp.In(now.Location()))
		if _, ok := totals[key]; !ok {
			continue
		}
		totals[key] += sale.TotalAmountCents
	}

	result := make([]domain.DailySales, 0, days)
	for key, total := range totals {
		result = append(result, domain.DailySales{Date: key, TotalSalesCents: total})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date < result[j].Date
	})
	return result, nil
}

// RestockSuggestions summarizes the last 30 days of sales and the current
// stock levels, hands both to the external advisor and caches its answer.
// The advisor's output is opaque text and is never parsed.
func (s *Service) RestockSuggestions(ctx context.Context, req domain.RestockSuggestionRequest) (domain.RestockSuggestionResponse, error) {
	if req.LeadTimeDays < 0 {
		return domain.RestockSuggestionResponse{}, fmt.Errorf("%w: lead time must not be negative", store.ErrInvalidInput)
	}

	now := s.now()
	from, to := timewin.LastNDays(now, 30)
	sales, err := s.repo.ListSalesBetween(ctx, from, to)
	if err != nil {
		return domain.RestockSuggestionResponse{}, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.RestockSuggestionResponse{}, err
	}

	salesText := summarizeSales(sales)
	stockText := summarizeStock(products)
	if salesText == "" {
		return domain.RestockSuggestionResponse{}, fmt.Errorf("%w: no sales recorded in the last 30 days", store.ErrInvalidInput)
	}
	if stockText == "" {
		return domain.RestockSuggestionResponse{}, fmt.Errorf("%w: no products in inventory", store.ErrInvalidInput)
	}

	key := suggestionCacheKey(req.LeadTimeDays, salesText, stockText)
	if cached, ok, err := s.suggestions.Get(ctx, key); err != nil {
		s.logger.Warn("suggestion cache read failed", zap.Error(err))
	} else if ok {
		return domain.RestockSuggestionResponse{Suggestions: cached, Cached: true}, nil
	}

	resp, err := s.advisor.Suggest(ctx, advisor.Request{
		SalesData:          salesText,
		CurrentStockLevels: stockText,
		LeadTimeDays:       req.LeadTimeDays,
	})
	if err != nil {
		return domain.RestockSuggestionResponse{}, err
	}

	if err := s.suggestions.Set(ctx, key, resp.RestockSuggestions, s.suggestionTTL); err != nil {
		s.logger.Warn("suggestion cache write failed", zap.Error(err))
	}

	return domain.RestockSuggestionResponse{Suggestions: resp.RestockSuggestions}, nil
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return ErrAdminRequired
	}
	return nil
}

// summarizeSales aggregates units sold per product snapshot name, most sold
// first, in the line format the advisor consumes.
func summarizeSales(sales []domain.Sale) string {
	type productSales struct {
		name  string
		units int
		cents int64
	}
	byName := make(map[string]*productSales)
	for _, sale := range sales {
		for _, item := range sale.Items {
			entry := byName[item.ProductNameSnapshot]
			if entry == nil {
				entry = &productSales{name: item.ProductNameSnapshot}
				byName[item.ProductNameSnapshot] = entry
			}
			entry.units += item.QuantitySold
			entry.cents += item.ItemTotalCents
		}
	}

	entries := make([]*productSales, 0, len(byName))
	for _, entry := range byName {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].units == entries[j].units {
			return entries[i].name < entries[j].name
		}
		return entries[i].units > entries[j].units
	})

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s: %d units sold, %s revenue", entry.name, entry.units, formatCents(entry.cents)))
	}
	return strings.Join(lines, "\n")
}

func summarizeStock(products []domain.Product) string {
	lines := make([]string, 0, len(products))
	for _, product := range products {
		lines = append(lines, fmt.Sprintf("%s: %d in stock", product.Name, product.Quantity))
	}
	return strings.Join(lines, "\n")
}

func suggestionCacheKey(leadTimeDays int, salesText string, stockText string) string {
	sum := sha256.New()
	fmt.Fprintf(sum, "%d\n%s\n%s", leadTimeDays, salesText, stockText)
	return "restock:suggestion:" + hex.EncodeToString(sum.Sum(nil))
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
