package logging

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/quarks-tech/orderflow-go/pkg/event"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
)

func PublisherInterceptor(logger logrus.FieldLogger) eventbus.PublisherInterceptor {
	return func(ctx context.Context, name string, e interface{}, p *eventbus.PublisherImpl, pf eventbus.PublishFn, opts ...eventbus.PublishOption) error {
		err := pf(ctx, name, e, p, opts...)
		if err == nil {
			logger.WithField("eventName", name).Debug("event published")

			return nil
		}

		logger.
			WithField("eventName", name).
			WithField("body", fmt.Sprintf("%+v", e)).
			Errorf("publishing event (%s): %s", name, err)

		return err
	}
}

func SubscriberInterceptor(logger logrus.FieldLogger) eventbus.SubscriberInterceptor {
	return func(ctx context.Context, md *event.Metadata, e interface{}, handler eventbus.Handler) error {
		entry := logger.
			WithField("eventName", md.Type).
			WithField("eventId", md.ID).
			WithField("subject", md.Subject)

		entry.WithField("body", fmt.Sprintf("%+v", e)).Info("event received")

		hErr := handler(event.NewIncomingContext(ctx, md), e)
		if hErr != nil {
			entry.Errorf("error while handling event %s: %s", md.Type, hErr)

			return hErr
		}

		entry.Info("event handled")

		return nil
	}
}
