package eventbus

import (
	"context"

	"github.com/quarks-tech/orderflow-go/pkg/event"
)

type SubscriberInterceptor func(ctx context.Context, md *event.Metadata, event interface{}, handler Handler) error

func WithSubscriberInterceptor(f SubscriberInterceptor) SubscriberOption {
	return func(o *subscriberOptions) {
		o.interceptor = f
	}
}

func WithChainSubscriberInterceptor(interceptors ...SubscriberInterceptor) SubscriberOption {
	return func(o *subscriberOptions) {
		o.chainInterceptors = append(o.chainInterceptors, interceptors...)
	}
}

func chainSubscriberInterceptors(s *Subscriber) {
	// opts.interceptor runs before the chained ones.
	interceptors := s.opts.chainInterceptors
	if s.opts.interceptor != nil {
		interceptors = append([]SubscriberInterceptor{s.opts.interceptor}, s.opts.chainInterceptors...)
	}

	var chainedInt SubscriberInterceptor
	if len(interceptors) == 0 {
		chainedInt = nil
	} else if len(interceptors) == 1 {
		chainedInt = interceptors[0]
	} else {
		chainedInt = chainInterceptors(interceptors)
	}

	s.opts.interceptor = chainedInt
}

func chainInterceptors(interceptors []SubscriberInterceptor) SubscriberInterceptor {
	return func(ctx context.Context, md *event.Metadata, e interface{}, handler Handler) error {
		return interceptors[0](ctx, md, e, getChainHandler(interceptors, 0, md, handler))
	}
}

func getChainHandler(interceptors []SubscriberInterceptor, curr int, md *event.Metadata, finalHandler Handler) Handler {
	if curr == len(interceptors)-1 {
		return finalHandler
	}
	return func(ctx context.Context, e interface{}) error {
		return interceptors[curr+1](ctx, md, e, getChainHandler(interceptors, curr+1, md, finalHandler))
	}
}
