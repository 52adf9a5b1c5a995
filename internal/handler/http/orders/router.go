package orders

import (
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

func RegisterRoutes(r chi.Router, in OrderIntake, l logrus.FieldLogger) {
	handler := NewOrderHandler(in, l.WithField("component", "OrderHTTPHandler"))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.CreateOrder)
	})
}
