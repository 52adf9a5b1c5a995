// Package admin exposes the dead-letter queue operations as named commands.
package admin

import (
	"context"

	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq/deadletter"
)

type Scanner interface {
	Status(ctx context.Context) (deadletter.QueueStatus, error)
	List(ctx context.Context, limit int) ([]deadletter.Record, error)
	Get(ctx context.Context, key string) (*deadletter.Record, error)
	Delete(ctx context.Context, key string) (int, error)
	Reprocess(ctx context.Context, key string) (int, error)
	ReprocessAll(ctx context.Context) (int, error)
	Purge(ctx context.Context) (int, error)
}

type StatusResult struct {
	QueueName     string `json:"queueName"`
	MessageCount  int    `json:"messageCount"`
	ConsumerCount int    `json:"consumerCount"`
}

type ListResult struct {
	Count    int                 `json:"count"`
	Messages []deadletter.Record `json:"messages"`
}

type SuccessResult struct {
	Success bool `json:"success"`
}

type ReprocessAllResult struct {
	ReprocessedCount int `json:"reprocessedCount"`
}

type PurgeResult struct {
	DeletedCount int `json:"deletedCount"`
}

// Observer is told the outcome of every operation.
type Observer func(operation string, err error)

type Service struct {
	scanner  Scanner
	observer Observer
}

func NewService(scanner Scanner, observer Observer) *Service {
	if observer == nil {
		observer = func(string, error) {}
	}

	return &Service{
		scanner:  scanner,
		observer: observer,
	}
}

func (s *Service) Status(ctx context.Context) (StatusResult, error) {
	st, err := s.scanner.Status(ctx)
	s.observer("status", err)

	if err != nil {
		return StatusResult{}, err
	}

	return StatusResult{
		QueueName:     st.Queue,
		MessageCount:  st.Messages,
		ConsumerCount: st.Consumers,
	}, nil
}

func (s *Service) List(ctx context.Context, limit int) (ListResult, error) {
	records, err := s.scanner.List(ctx, limit)
	s.observer("list", err)

	if err != nil {
		return ListResult{}, err
	}

	return ListResult{Count: len(records), Messages: records}, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*deadletter.Record, error) {
	rec, err := s.scanner.Get(ctx, orderID)
	s.observer("get", err)

	return rec, err
}

func (s *Service) ReprocessOne(ctx context.Context, orderID string) (SuccessResult, error) {
	_, err := s.scanner.Reprocess(ctx, orderID)
	s.observer("reprocess", err)

	if err != nil {
		return SuccessResult{}, err
	}

	return SuccessResult{Success: true}, nil
}

func (s *Service) DeleteOne(ctx context.Context, orderID string) (SuccessResult, error) {
	_, err := s.scanner.Delete(ctx, orderID)
	s.observer("delete", err)

	if err != nil {
		return SuccessResult{}, err
	}

	return SuccessResult{Success: true}, nil
}

func (s *Service) ReprocessAll(ctx context.Context) (ReprocessAllResult, error) {
	n, err := s.scanner.ReprocessAll(ctx)
	s.observer("reprocess-all", err)

	if err != nil {
		return ReprocessAllResult{}, err
	}

	return ReprocessAllResult{ReprocessedCount: n}, nil
}

func (s *Service) PurgeAll(ctx context.Context) (PurgeResult, error) {
	n, err := s.scanner.Purge(ctx)
	s.observer("purge", err)

	if err != nil {
		return PurgeResult{}, err
	}

	return PurgeResult{DeletedCount: n}, nil
}
