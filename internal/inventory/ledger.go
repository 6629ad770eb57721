package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/catalog"
)

// Availability and reservation statuses reported to the coordinator.
const (
	StatusUnknownProduct = "unknown-product"
	StatusAvailable      = "available"
	StatusOutOfStock     = "out-of-stock"
	StatusReserved       = "reserved"
	StatusReleased       = "released"
)

// Result is the structured outcome of an inventory operation.
type Result struct {
	Action    string `json:"action"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
	Success   bool   `json:"success"`
	InStock   int    `json:"inStock"`
	Message   string `json:"message"`
}

// ProductRepository abstracts persistence for products. SaveProduct must
// fully persist before returning.
type ProductRepository interface {
	Product(ctx context.Context, id string) (catalog.Product, bool, error)
	SaveProduct(ctx context.Context, product catalog.Product) error
}

// Ledger tracks per-product stock. It is the only component allowed to
// mutate inStock, and it serializes mutations per product so stock never
// goes negative under concurrent reservations. The outstanding reservation
// count lives on the product document itself, so the release clamp holds
// across process restarts.
type Ledger struct {
	repo ProductRepository

	stripes []sync.Mutex
}

// NewLedger constructs a Ledger over the given product repository.
func NewLedger(repo ProductRepository) *Ledger {
	return &Ledger{
		repo:    repo,
		stripes: make([]sync.Mutex, lockStripes),
	}
}

// CheckAvailability reports stock status for a product. Pure read.
func (l *Ledger) CheckAvailability(ctx context.Context, productID string) (Result, error) {
	product, ok, err := l.repo.Product(ctx, productID)
	if err != nil {
		return Result{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	if !ok {
		return Result{
			Action:    "checkAvailability",
			ProductID: productID,
			Status:    StatusUnknownProduct,
			Message:   "product not found",
		}, nil
	}

	status := StatusAvailable
	if product.InStock <= 0 {
		status = StatusOutOfStock
	}
	return Result{
		Action:    "checkAvailability",
		ProductID: productID,
		Status:    status,
		Success:   true,
		InStock:   product.InStock,
		Message:   "product in stock",
	}, nil
}

// Reserve decrements stock by quantity. Each call consumes stock; it is not
// idempotent, the coordinator guarantees at most one reserve per attempt.
func (l *Ledger) Reserve(ctx context.Context, productID string, quantity int) (Result, error) {
	if quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}

	lock := l.stripeFor(productID)
	lock.Lock()
	defer lock.Unlock()

	product, ok, err := l.repo.Product(ctx, productID)
	if err != nil {
		return Result{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	if !ok {
		return Result{
			Action:    "reserveProduct",
			ProductID: productID,
			Quantity:  quantity,
			Status:    StatusUnknownProduct,
			Message:   "product not found",
		}, ErrUnknownProduct
	}

	if product.InStock < quantity {
		return Result{
			Action:    "reserveProduct",
			ProductID: productID,
			Quantity:  quantity,
			Status:    StatusOutOfStock,
			InStock:   product.InStock,
			Message:   fmt.Sprintf("insufficient stock: requested %d, available %d", quantity, product.InStock),
		}, ErrOutOfStock
	}

	product.InStock -= quantity
	product.Reserved += quantity
	if err := l.repo.SaveProduct(ctx, product); err != nil {
		return Result{}, fmt.Errorf("persist reservation for %s: %w", productID, err)
	}

	return Result{
		Action:    "reserveProduct",
		ProductID: productID,
		Quantity:  quantity,
		Status:    StatusReserved,
		Success:   true,
		InStock:   product.InStock,
		Message:   fmt.Sprintf("reserved %d units of %s", quantity, product.Name),
	}, nil
}

// Release is the compensating action for Reserve. The credit is clamped to
// the outstanding reserved-but-unreleased quantity so a duplicate release
// can never over-credit stock.
func (l *Ledger) Release(ctx context.Context, productID string, quantity int) (Result, error) {
	if quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}

	lock := l.stripeFor(productID)
	lock.Lock()
	defer lock.Unlock()

	product, ok, err := l.repo.Product(ctx, productID)
	if err != nil {
		return Result{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	if !ok {
		return Result{
			Action:    "releaseProduct",
			ProductID: productID,
			Quantity:  quantity,
			Status:    StatusUnknownProduct,
			Message:   "product not found",
		}, ErrUnknownProduct
	}

	if product.Reserved <= 0 {
		return Result{
			Action:    "releaseProduct",
			ProductID: productID,
			Quantity:  quantity,
			Status:    StatusReleased,
			InStock:   product.InStock,
			Message:   "no outstanding reservation to release",
		}, ErrNothingReserved
	}

	credit := quantity
	if credit > product.Reserved {
		credit = product.Reserved
	}

	product.InStock += credit
	product.Reserved -= credit
	if err := l.repo.SaveProduct(ctx, product); err != nil {
		return Result{}, fmt.Errorf("persist release for %s: %w", productID, err)
	}

	return Result{
		Action:    "releaseProduct",
		ProductID: productID,
		Quantity:  credit,
		Status:    StatusReleased,
		Success:   true,
		InStock:   product.InStock,
		Message:   fmt.Sprintf("released %d units of %s", credit, product.Name),
	}, nil
}

// Outstanding reports the reserved-but-unreleased quantity for a product.
func (l *Ledger) Outstanding(ctx context.Context, productID string) (int, error) {
	product, ok, err := l.repo.Product(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("load product %s: %w", productID, err)
	}
	if !ok {
		return 0, ErrUnknownProduct
	}
	return product.Reserved, nil
}

var (
	ErrUnknownProduct  = errors.New("unknown product")
	ErrOutOfStock      = errors.New("out of stock")
	ErrNothingReserved = errors.New("no outstanding reservation")
	ErrInvalidQuantity = errors.New("quantity must be > 0")
)
