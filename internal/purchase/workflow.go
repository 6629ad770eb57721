package purchase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/orra-dev/agent-fragile-to-prod-guide/internal/catalog"

	"github.com/google/uuid"
)

// Purchase outcome statuses reported to the coordinator.
const (
	StatusUnknownUser    = "unknown-user"
	StatusUnknownProduct = "unknown-product"
	StatusPaymentFailed  = "payment-failed"
)

// UserSource looks up users.
type UserSource interface {
	User(ctx context.Context, id string) (catalog.User, bool, error)
}

// ProductSource looks up products.
type ProductSource interface {
	Product(ctx context.Context, id string) (catalog.Product, bool, error)
}

// OrderAppender appends committed orders.
type OrderAppender interface {
	Append(ctx context.Context, order catalog.Order) error
}

// Notifier informs a user about their order. Its outcome never gates the
// purchase result.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// Workflow is the forward path of the purchase saga: validate, charge,
// commit the order, notify. The only step this service ever compensates is
// the prior inventory reservation, and that happens outside this workflow.
type Workflow struct {
	users      UserSource
	products   ProductSource
	payments   PaymentGateway
	orders     OrderAppender
	notifier   Notifier
	newOrderID func() string
	now        func() time.Time
	logf       func(format string, args ...any)
}

// NewWorkflow constructs a purchase workflow.
func NewWorkflow(users UserSource, products ProductSource, payments PaymentGateway, orders OrderAppender, notifier Notifier, logf func(format string, args ...any)) *Workflow {
	if logf == nil {
		logf = log.Printf
	}
	return &Workflow{
		users:      users,
		products:   products,
		payments:   payments,
		orders:     orders,
		notifier:   notifier,
		newOrderID: func() string { return "order-" + uuid.NewString() },
		now:        time.Now,
		logf:       logf,
	}
}

// Purchase validates the user and product, charges the payment gateway, and
// commits the order. Both identifiers are validated independently; neither
// check depends on the other's outcome or on parameter position.
func (w *Workflow) Purchase(ctx context.Context, userID, productID string, estimate catalog.DeliveryEstimate) (catalog.Order, error) {
	_, userOK, err := w.users.User(ctx, userID)
	if err != nil {
		return catalog.Order{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	product, productOK, err := w.products.Product(ctx, productID)
	if err != nil {
		return catalog.Order{}, fmt.Errorf("load product %s: %w", productID, err)
	}
	if !userOK {
		return catalog.Order{}, ErrUnknownUser
	}
	if !productOK {
		return catalog.Order{}, ErrUnknownProduct
	}

	transactionID, err := w.payments.Charge(ctx, userID, productID, product.Price)
	if err != nil {
		return catalog.Order{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	order := catalog.Order{
		ID:               w.newOrderID(),
		UserID:           userID,
		ProductID:        productID,
		ProductName:      product.Name,
		Price:            product.Price,
		TransactionID:    transactionID,
		Status:           catalog.OrderStatusProcessed,
		CreatedAt:        w.now().UTC(),
		DeliveryEstimate: estimate,
	}

	if err := w.orders.Append(ctx, order); err != nil {
		return catalog.Order{}, fmt.Errorf("commit order %s: %w", order.ID, err)
	}

	if w.notifier != nil {
		message := fmt.Sprintf("Your order for %s has been confirmed! Estimated delivery: %s",
			product.Name, order.DeliveryEstimate.BestCase.DeliveryDate.Format(time.RFC3339))
		if err := w.notifier.Notify(ctx, userID, message); err != nil {
			w.logf("notify user %s for order %s: %v", userID, order.ID, err)
		}
	}

	return order, nil
}

var (
	ErrUnknownUser    = errors.New("unknown user")
	ErrUnknownProduct = errors.New("unknown product")
	ErrPaymentFailed  = errors.New("payment failed")
)
