package catalog

import (
	"errors"
	"time"
)

// Product is a sellable item tracked by the inventory ledger. Reserved is
// the outstanding reserved-but-unreleased quantity; it is persisted with the
// product so the release guard survives restarts.
type Product struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Price            float64 `json:"price"`
	InStock          int     `json:"inStock"`
	Reserved         int     `json:"reserved"`
	WarehouseAddress string  `json:"warehouseAddress"`
}

// NewProduct constructs a Product with validation on input fields.
func NewProduct(id, name string, price float64, inStock int, warehouseAddress string) (Product, error) {
	if id == "" {
		return Product{}, ErrProductIDRequired
	}

	if price < 0 {
		return Product{}, ErrNegativePrice
	}

	if inStock < 0 {
		return Product{}, ErrNegativeStock
	}

	return Product{
		ID:               id,
		Name:             name,
		Price:            price,
		InStock:          inStock,
		WarehouseAddress: warehouseAddress,
	}, nil
}

// User is a registered customer.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// NewUser constructs a User with validation on input fields.
func NewUser(id, name, address string) (User, error) {
	if id == "" {
		return User{}, ErrUserIDRequired
	}

	return User{
		ID:      id,
		Name:    name,
		Address: address,
	}, nil
}

// OrderStatusProcessed is the only status a committed order ever carries.
// Orders are append-only and never rolled back.
const OrderStatusProcessed = "order-processed"

// Order records a committed purchase. Created only after a successful charge.
type Order struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	ProductID        string           `json:"productId"`
	ProductName      string           `json:"productName"`
	Price            float64          `json:"price"`
	TransactionID    string           `json:"transactionId"`
	Status           string           `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
	DeliveryEstimate DeliveryEstimate `json:"deliveryEstimate"`
}

var (
	ErrProductIDRequired = errors.New("product id is required")
	ErrNegativePrice     = errors.New("price must be >= 0")
	ErrNegativeStock     = errors.New("stock must be >= 0")
	ErrUserIDRequired    = errors.New("user id is required")
)
