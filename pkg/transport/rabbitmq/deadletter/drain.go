package deadletter

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq"
)

type action int

const (
	actionRestore action = iota
	actionDiscard
	actionReprocess
)

type fetched struct {
	delivery   amqp.Delivery
	record     *Record
	provenance rabbitmq.Provenance
	hasOrigin  bool
	settled    bool
}

// scan drains up to limit messages (the whole queue when limit is 0), asks
// decide what to do with each one and restores everything left unsettled.
// A scan is not cancelled with ctx: once started it runs to completion or
// fails on a broker error.
func (s *Scanner) scan(ctx context.Context, op string, limit int, decide func(rec *Record) action) error {
	ctx = context.WithoutCancel(ctx)

	return s.serialize(ctx, func(held func() error) error {
		err := s.exec(ctx, func(ctx context.Context, ch Channel) error {
			return s.drain(ctx, ch, op, limit, decide, held)
		})

		return transportError("connect", err)
	})
}

func (s *Scanner) drain(ctx context.Context, ch Channel, op string, limit int, decide func(rec *Record) action, held func() error) error {
	logger := s.options.logger.WithFields(s.logFields(op))

	batch, err := s.fetch(ch, limit)
	if err != nil {
		restoreErr := s.restore(batch)
		logger.WithError(err).WithField("fetched", len(batch)).Error("fetch failed, restoring")

		return errors.Join(transportError("get", err), restoreErr)
	}

	var acked, reprocessed int

	for _, m := range batch {
		act := decide(m.record)
		if act == actionRestore {
			continue
		}

		if err = held(); err != nil {
			logger.WithError(err).Error("scan lock lost, restoring")
			return errors.Join(err, s.restore(batch))
		}

		switch act {
		case actionDiscard:
			if err = m.delivery.Ack(false); err != nil {
				return errors.Join(transportError("ack", err), s.restore(batch))
			}

			acked++
		case actionReprocess:
			if err = s.republish(ctx, ch, m); err != nil {
				return errors.Join(transportError("publish", err), s.restore(batch))
			}

			if err = m.delivery.Ack(false); err != nil {
				return errors.Join(transportError("ack", err), s.restore(batch))
			}

			reprocessed++
		}

		m.settled = true
	}

	if err = s.restore(batch); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"scanned":     len(batch),
		"discarded":   acked,
		"reprocessed": reprocessed,
	}).Info("scan finished")

	return nil
}

func (s *Scanner) fetch(ch Channel, limit int) ([]*fetched, error) {
	var batch []*fetched

	for limit == 0 || len(batch) < limit {
		d, ok, err := ch.Get(s.options.queue, false)
		if err != nil {
			return batch, err
		}

		if !ok {
			break
		}

		rec, prov, hasOrigin := s.decoder.decode(&d, len(batch))

		batch = append(batch, &fetched{
			delivery:   d,
			record:     rec,
			provenance: prov,
			hasOrigin:  hasOrigin,
		})
	}

	return batch, nil
}

// restore requeues every unsettled message. It keeps going after a failure;
// messages it could not requeue return to the queue once the broker drops
// the channel.
func (s *Scanner) restore(batch []*fetched) error {
	var firstErr error

	for _, m := range batch {
		if m.settled {
			continue
		}

		if err := m.delivery.Nack(false, true); err != nil {
			if firstErr == nil {
				firstErr = transportError("nack", err)
			}

			continue
		}

		m.settled = true
	}

	return firstErr
}

func (s *Scanner) republish(ctx context.Context, ch Channel, m *fetched) error {
	target := s.options.fallbackQueue
	if m.hasOrigin {
		target = m.provenance.Queue
	}

	d := m.delivery

	publishing := amqp.Publishing{
		Headers:         reprocessHeaders(d.Headers, m.record.RetryCount, s.options.now()),
		ContentType:     d.ContentType,
		ContentEncoding: d.ContentEncoding,
		DeliveryMode:    amqp.Persistent,
		CorrelationId:   d.CorrelationId,
		MessageId:       d.MessageId,
		Timestamp:       d.Timestamp,
		Type:            d.Type,
		AppId:           d.AppId,
		Body:            d.Body,
	}

	if err := ch.PublishWithContext(ctx, "", target, false, false, publishing); err != nil {
		return err
	}

	s.options.logger.WithFields(logrus.Fields{
		"orderId":       m.record.OrderID,
		"targetQueue":   target,
		"previousCount": m.record.RetryCount,
	}).Info("message reprocessed")

	return nil
}
