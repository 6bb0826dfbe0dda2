package store

import (
	"context"
	"errors"
	"time"

	"stockpilot/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("write conflict")
	ErrInvalidInput      = errors.New("invalid input")
)

// Repository is the storage contract shared by the in-memory and postgres
// implementations. CreateSale is the one atomic unit of work: it must append
// the sale header and item and decrement the product quantity together, or
// leave no trace at all. All other errors from an implementation are treated
// as persistence failures by callers.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	RestockProduct(ctx context.Context, id string, quantity int) (*domain.Product, error)

	CreateSale(ctx context.Context, productID string, quantity int, at time.Time) (*domain.Sale, error)
	ListRecentSales(ctx context.Context, limit int) ([]domain.Sale, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	SumSalesBetween(ctx context.Context, from time.Time, to time.Time) (int64, error)

	CountProducts(ctx context.Context) (int, error)
	CountLowStockProducts(ctx context.Context, threshold int) (int, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
