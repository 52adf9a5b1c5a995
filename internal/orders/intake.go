package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
)

const publishTimeout = 5 * time.Second

type CreateRequest struct {
	UserID          string    `json:"userId"`
	Products        []Product `json:"products"`
	ShippingAddress string    `json:"shippingAddress"`
}

// Intake accepts new orders and emits them as events without waiting for
// them to be processed.
type Intake struct {
	publisher eventbus.Publisher
	logger    logrus.FieldLogger
	newID     func() string
}

func NewIntake(publisher eventbus.Publisher, logger logrus.FieldLogger) *Intake {
	return &Intake{
		publisher: publisher,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// Create validates req, assigns the order id and publishes the created
// event. A failed publish is logged and does not fail the request.
func (in *Intake) Create(ctx context.Context, req CreateRequest) (string, error) {
	e := &CreatedEvent{
		OrderID:         in.newID(),
		UserID:          req.UserID,
		Products:        req.Products,
		ShippingAddress: req.ShippingAddress,
	}

	if err := e.ValidateAll(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := in.publisher.Publish(ctx, CreatedEventType, e, eventbus.WithSubject(e.OrderID))
	if err != nil {
		in.logger.WithError(err).WithField("orderId", e.OrderID).Error("publish order created event")
	}

	return e.OrderID, nil
}
