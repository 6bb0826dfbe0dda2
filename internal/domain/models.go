package domain

import "time"

// LowStockThreshold is the fixed quantity below which a product counts as
// low stock on the dashboard.
const LowStockThreshold = 10

type Product struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Type                string    `json:"type,omitempty"`
	WholesalePriceCents int64     `json:"wholesale_price_cents,omitempty"`
	RetailPriceCents    int64     `json:"retail_price_cents"`
	Quantity            int       `json:"quantity"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name                string `json:"name"`
	Type                string `json:"type,omitempty"`
	WholesalePriceCents int64  `json:"wholesale_price_cents,omitempty"`
	RetailPriceCents    int64  `json:"retail_price_cents"`
	Quantity            int    `json:"quantity"`
}

type ProductUpdateRequest struct {
	Name                *string `json:"name,omitempty"`
	Type                *string `json:"type,omitempty"`
	WholesalePriceCents *int64  `json:"wholesale_price_cents,omitempty"`
	RetailPriceCents    *int64  `json:"retail_price_cents,omitempty"`
	Quantity            *int    `json:"quantity,omitempty"`
}

// Sale is one committed ledger entry. Immutable after commit: the engine
// never updates or deletes sales.
type Sale struct {
	ID               string     `json:"id"`
	SaleTimestamp    time.Time  `json:"sale_timestamp"`
	TotalAmountCents int64      `json:"total_amount_cents"`
	CreatedAt        time.Time  `json:"created_at"`
	Items            []SaleItem `json:"items"`
}

// SaleItem carries the product snapshot taken at commit time. Snapshot
// fields never change when the product is later renamed or repriced; the
// Current* fields are joined in at read time for display and may be empty
// when the product has since been deleted.
type SaleItem struct {
	ID                          string    `json:"id"`
	SaleID                      string    `json:"sale_id"`
	ProductID                   string    `json:"product_id"`
	ProductNameSnapshot         string    `json:"product_name_snapshot"`
	ProductTypeSnapshot         string    `json:"product_type_snapshot,omitempty"`
	QuantitySold                int       `json:"quantity_sold"`
	RetailPriceCentsSnapshot    int64     `json:"retail_price_cents_snapshot"`
	WholesalePriceCentsSnapshot int64     `json:"wholesale_price_cents_snapshot,omitempty"`
	ItemTotalCents              int64     `json:"item_total_cents"`
	CreatedAt                   time.Time `json:"created_at"`
	CurrentProductName          string    `json:"current_product_name,omitempty"`
	CurrentProductType          string    `json:"current_product_type,omitempty"`
}

type RecordSaleRequest struct {
	ProductID    string `json:"product_id"`
	QuantitySold int    `json:"quantity_sold"`
}

type RecordSaleResponse struct {
	Sale     Sale     `json:"sale"`
	SaleItem SaleItem `json:"sale_item"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

type DashboardStats struct {
	TotalProducts            int   `json:"total_products"`
	LowStockItems            int   `json:"low_stock_items"`
	TotalSalesTodayCents     int64 `json:"total_sales_today_cents"`
	TotalSalesThisWeekCents  int64 `json:"total_sales_this_week_cents"`
	TotalSalesThisMonthCents int64 `json:"total_sales_this_month_cents"`
}

// DailySales is one zero-filled day bucket, keyed by local calendar date.
type DailySales struct {
	Date            string `json:"date"`
	TotalSalesCents int64  `json:"total_sales_cents"`
}

type RestockSuggestionRequest struct {
	LeadTimeDays int `json:"lead_time_days"`
}

type RestockSuggestionResponse struct {
	Suggestions string `json:"suggestions"`
	Cached      bool   `json:"cached"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
