package store

import (
	"context"
	"errors"
	"time"

	"laplayita/backend/internal/domain"
)

// Sentinel error kinds. Stores wrap these with fmt.Errorf("%w: ...") so the
// actual quantities travel with the error; callers match with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrOverReceipt           = errors.New("received quantity exceeds requested")
	ErrMissingExpirationDate = errors.New("expiration date required")
	ErrEmptyOrder            = errors.New("order has no lines")
	ErrOrderAlreadyReceiving = errors.New("order status does not allow this operation")
	ErrOrderHasSales         = errors.New("order lots already have sale movements")
	ErrDuplicate             = errors.New("already exists")
)

type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListLowStockProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductDetail(ctx context.Context, id string) (*domain.ProductDetail, error)

	// CreateLot inserts the lot, records its entry movement, and recomputes
	// the product's derived stock and average cost, atomically.
	CreateLot(ctx context.Context, lot domain.Lot, movement domain.Movement) (*domain.Lot, error)
	GetLot(ctx context.Context, id string) (*domain.Lot, error)
	ListLots(ctx context.Context, productID string, includeExhausted bool) ([]domain.Lot, error)
	// ListLiveLots returns lots with stock remaining, earliest expiry first
	// (undated lots last, ties broken by receipt time).
	ListLiveLots(ctx context.Context, productID string) ([]domain.Lot, error)
	ListExpiringLots(ctx context.Context, before time.Time) ([]domain.Lot, error)

	// ConsumeFromProduct plans earliest-expiry-first across the product's
	// live lots under row locks and applies the draws. Fails whole with
	// ErrInsufficientStock when the live total is short.
	ConsumeFromProduct(ctx context.Context, productID string, qty int, reason string, saleRef string, description string, at time.Time) ([]domain.Movement, *domain.Product, error)
	// ConsumeFromLot draws from one specific lot (discards, targeted exits).
	ConsumeFromLot(ctx context.Context, lotID string, qty int, reason string, description string, at time.Time) (*domain.Movement, *domain.Product, error)
	ListMovements(ctx context.Context, productID string, limit int) ([]domain.Movement, error)

	CreateRestockOrder(ctx context.Context, order domain.RestockOrder, audit domain.RestockAudit) (*domain.RestockOrder, error)
	GetRestockOrder(ctx context.Context, id string) (*domain.RestockOrder, error)
	ListRestockOrders(ctx context.Context, status string, limit int) ([]domain.RestockOrder, error)
	// ReplaceRestockLines swaps the full line set of a draft/requested order
	// and updates the order header and totals.
	ReplaceRestockLines(ctx context.Context, order domain.RestockOrder, audit domain.RestockAudit) (*domain.RestockOrder, error)
	UpdateRestockStatus(ctx context.Context, orderID string, from []string, to string, audit domain.RestockAudit) (*domain.RestockOrder, error)
	// ReceiveRestockOrder applies received quantities, creates one lot per
	// line with stock, records entry movements, recomputes every affected
	// product, flips the order to received, and writes the audit entries,
	// all in one transaction.
	ReceiveRestockOrder(ctx context.Context, orderID string, lines []domain.ReceiveLineInput, receivedBy string, at time.Time, audits []domain.RestockAudit) (*domain.ReceptionResult, error)
	// DeleteRestockOrder purges the order's lots and movements, then the
	// lines and the order. Refused with ErrOrderHasSales when any created
	// lot has a sale-exit movement.
	DeleteRestockOrder(ctx context.Context, orderID string) error
	AmendReceivedLine(ctx context.Context, orderID string, lineID string, expiration *time.Time, lotCode string, audit domain.RestockAudit) (*domain.RestockLine, error)
	ListRestockAudit(ctx context.Context, orderID string) ([]domain.RestockAudit, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)
	GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
