package orders_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	handler "github.com/quarks-tech/orderflow-go/internal/handler/http/orders"
	"github.com/quarks-tech/orderflow-go/internal/orders"
	"github.com/quarks-tech/orderflow-go/pkg/event"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
)

type recordingSender struct {
	sent []*event.Metadata
}

func (s *recordingSender) Send(_ context.Context, md *event.Metadata, _ []byte) error {
	s.sent = append(s.sent, md)
	return nil
}

func newRouter(sender eventbus.Sender) http.Handler {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	r := chi.NewRouter()
	handler.RegisterRoutes(r, orders.NewIntake(eventbus.NewPublisher(sender), logger), logger)

	return r
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))

	return rec
}

func TestCreateOrder(t *testing.T) {
	sender := &recordingSender{}

	rec := post(newRouter(sender), `{"userId":"u-1","products":[{"productId":"p-1","quantity":1,"price":10}],"shippingAddress":"Main St 1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}

	var res handler.CreateOrderResponse
	if err := jsoniter.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !res.Success || res.OrderID == "" {
		t.Fatalf("response = %+v", res)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d events, want 1", len(sender.sent))
	}
	if md := sender.sent[0]; md.Type != orders.CreatedEventType || md.Subject != res.OrderID {
		t.Errorf("metadata = %+v, want type %q subject %q", md, orders.CreatedEventType, res.OrderID)
	}
}

func TestCreateOrderBadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"userId":`},
		{"missing user", `{"products":[]}`},
		{"bad quantity", `{"userId":"u-1","products":[{"productId":"p-1","quantity":0}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}

			rec := post(newRouter(sender), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if len(sender.sent) != 0 {
				t.Errorf("sent %d events, want 0", len(sender.sent))
			}
		})
	}
}
