package dlq

import (
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

func RegisterRoutes(r chi.Router, s AdminService, l logrus.FieldLogger) {
	handler := NewHandler(s, l.WithField("component", "DLQHTTPHandler"))

	r.Route("/dlq", func(r chi.Router) {
		r.Get("/status", handler.Status)
		r.Get("/messages", handler.ListMessages)
		r.Get("/messages/{orderID}", handler.GetMessage)
		r.Post("/messages/{orderID}/reprocess", handler.ReprocessMessage)
		r.Delete("/messages/{orderID}", handler.DeleteMessage)
		r.Post("/reprocess-all", handler.ReprocessAll)
		r.Delete("/purge", handler.Purge)
	})
}
