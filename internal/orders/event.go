package orders

import (
	"errors"
	"fmt"
	"strings"
)

const CreatedEventType = "orders.created"

var ErrInvalidOrder = errors.New("invalid order")

type Product struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type CreatedEvent struct {
	OrderID         string    `json:"orderId"`
	UserID          string    `json:"userId"`
	Products        []Product `json:"products"`
	ShippingAddress string    `json:"shippingAddress"`
}

// ValidateAll reports every violation at once, wrapped in ErrInvalidOrder.
func (e *CreatedEvent) ValidateAll() error {
	var problems []string

	if strings.TrimSpace(e.UserID) == "" {
		problems = append(problems, "userId is required")
	}

	for i, p := range e.Products {
		if strings.TrimSpace(p.ProductID) == "" {
			problems = append(problems, fmt.Sprintf("products[%d].productId is required", i))
		}
		if p.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("products[%d].quantity must be positive", i))
		}
		if p.Price < 0 {
			problems = append(problems, fmt.Sprintf("products[%d].price must not be negative", i))
		}
	}

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrInvalidOrder, strings.Join(problems, "; "))
}
