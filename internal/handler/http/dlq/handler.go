package dlq

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/quarks-tech/orderflow-go/internal/admin"
	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/deadletter"
)

const defaultListLimit = 10

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type AdminService interface {
	Status(ctx context.Context) (admin.StatusResult, error)
	List(ctx context.Context, limit int) (admin.ListResult, error)
	Get(ctx context.Context, orderID string) (*deadletter.Record, error)
	ReprocessOne(ctx context.Context, orderID string) (admin.SuccessResult, error)
	DeleteOne(ctx context.Context, orderID string) (admin.SuccessResult, error)
	ReprocessAll(ctx context.Context) (admin.ReprocessAllResult, error)
	PurgeAll(ctx context.Context) (admin.PurgeResult, error)
}

type Handler struct {
	service AdminService
	logger  logrus.FieldLogger
}

func NewHandler(s AdminService, l logrus.FieldLogger) *Handler {
	return &Handler{service: s, logger: l}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Status(r.Context())
	if err != nil {
		h.fail(w, "status", "", err)
		return
	}

	h.respond(w, http.StatusOK, res)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit

	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			h.logger.WithError(err).WithField("limit", s).Warn("invalid limit")
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}

		limit = n
	}

	res, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.fail(w, "list", "", err)
		return
	}

	h.respond(w, http.StatusOK, res)
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	rec, err := h.service.Get(r.Context(), orderID)
	if err != nil {
		h.fail(w, "get", orderID, err)
		return
	}

	h.respond(w, http.StatusOK, rec)
}

func (h *Handler) ReprocessMessage(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	res, err := h.service.ReprocessOne(r.Context(), orderID)
	if err != nil {
		h.fail(w, "reprocess", orderID, err)
		return
	}

	h.logger.WithField("orderId", orderID).Info("dead-lettered message reprocessed")
	h.respond(w, http.StatusOK, res)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	res, err := h.service.DeleteOne(r.Context(), orderID)
	if err != nil {
		h.fail(w, "delete", orderID, err)
		return
	}

	h.logger.WithField("orderId", orderID).Info("dead-lettered message deleted")
	h.respond(w, http.StatusOK, res)
}

func (h *Handler) ReprocessAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ReprocessAll(r.Context())
	if err != nil {
		h.fail(w, "reprocess-all", "", err)
		return
	}

	h.logger.WithField("count", res.ReprocessedCount).Info("dead-letter queue reprocessed")
	h.respond(w, http.StatusOK, res)
}

func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.PurgeAll(r.Context())
	if err != nil {
		h.fail(w, "purge", "", err)
		return
	}

	h.logger.WithField("count", res.DeletedCount).Warn("dead-letter queue purged")
	h.respond(w, http.StatusOK, res)
}

func (h *Handler) respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("write response")
	}
}

func (h *Handler) fail(w http.ResponseWriter, op, orderID string, err error) {
	logger := h.logger.WithError(err).WithField("operation", op)
	if orderID != "" {
		logger = logger.WithField("orderId", orderID)
	}

	switch {
	case deadletter.IsNotFound(err):
		logger.Info("dead-lettered message not found")
		http.Error(w, "Message not found", http.StatusNotFound)
	case errors.Is(err, deadletter.ErrInvalidLimit):
		logger.Warn("invalid limit")
		http.Error(w, "Invalid limit", http.StatusBadRequest)
	case errors.Is(err, deadletter.ErrBusy), errors.Is(err, deadletter.ErrLockLost):
		logger.Warn("dead-letter queue busy")
		http.Error(w, "Another operation is in progress", http.StatusConflict)
	case errors.Is(err, deadletter.ErrLockUnavailable):
		logger.Error("scan lock unavailable")
		http.Error(w, "Lock service unavailable", http.StatusServiceUnavailable)
	case deadletter.IsTransportError(err):
		logger.Error("broker failure")
		http.Error(w, "Broker unavailable", http.StatusBadGateway)
	default:
		logger.Error("dead-letter operation failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
