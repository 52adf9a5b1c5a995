package orders

import (
	"context"
	"errors"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/quarks-tech/orderflow-go/internal/orders"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type OrderIntake interface {
	Create(ctx context.Context, req orders.CreateRequest) (string, error)
}

type CreateOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
}

type OrderHandler struct {
	intake OrderIntake
	logger logrus.FieldLogger
}

func NewOrderHandler(in OrderIntake, l logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{intake: in, logger: l}
}

func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Warn("invalid request body for CreateOrder")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	orderID, err := h.intake.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, orders.ErrInvalidOrder) {
			h.logger.WithError(err).Warn("bad request for CreateOrder")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.WithError(err).Error("create order")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err = json.NewEncoder(w).Encode(CreateOrderResponse{Success: true, OrderID: orderID}); err != nil {
		h.logger.WithError(err).Error("write response")
	}
}
