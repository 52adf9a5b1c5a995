package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quarks-tech/orderflow-go/pkg/encoding"
	"github.com/quarks-tech/orderflow-go/pkg/event"
)

// Processor handles one raw event taken off a transport. A nil error means the
// event was fully handled and may be acknowledged.
type Processor func(ctx context.Context, md *event.Metadata, data []byte) error

type Receiver interface {
	Setup(ctx context.Context, consumerName string, eventTypes ...string) error
	Receive(ctx context.Context, processor Processor) error
}

type Handler func(ctx context.Context, event interface{}) error

type subscription struct {
	newEvent func() interface{}
	handler  Handler
}

type subscriberOptions struct {
	interceptor       SubscriberInterceptor
	chainInterceptors []SubscriberInterceptor
}

func defaultSubscriberOptions() *subscriberOptions {
	return &subscriberOptions{}
}

type SubscriberOption func(opts *subscriberOptions)

type Subscriber struct {
	mux           sync.Mutex
	name          string
	opts          *subscriberOptions
	subscriptions map[string]*subscription
	serve         bool
}

func NewSubscriber(name string, opts ...SubscriberOption) *Subscriber {
	defOpts := defaultSubscriberOptions()

	for _, opt := range opts {
		opt(defOpts)
	}

	s := &Subscriber{
		name:          name,
		opts:          defOpts,
		subscriptions: make(map[string]*subscription),
	}

	chainSubscriberInterceptors(s)

	return s
}

// RegisterHandler subscribes fn to events of the given type, decoding the
// event data into a fresh *T for every delivery.
func RegisterHandler[T any](s *Subscriber, eventType string, fn func(ctx context.Context, e *T) error) {
	s.Register(eventType, func() interface{} { return new(T) }, func(ctx context.Context, e interface{}) error {
		return fn(ctx, e.(*T))
	})
}

func (s *Subscriber) Register(eventType string, newEvent func() interface{}, h Handler) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if s.serve {
		panic(fmt.Sprintf("eventbus: Subscriber.Register(%q) after Subscriber.Subscribe", eventType))
	}

	if _, ok := s.subscriptions[eventType]; ok {
		panic(fmt.Sprintf("eventbus: duplicate subscription for %q", eventType))
	}

	s.subscriptions[eventType] = &subscription{
		newEvent: newEvent,
		handler:  h,
	}
}

// EventTypes returns the registered event types in lexical order.
func (s *Subscriber) EventTypes() []string {
	s.mux.Lock()
	defer s.mux.Unlock()

	types := make([]string, 0, len(s.subscriptions))
	for t := range s.subscriptions {
		types = append(types, t)
	}

	sort.Strings(types)

	return types
}

func (s *Subscriber) Subscribe(ctx context.Context, r Receiver) error {
	s.mux.Lock()
	s.serve = true
	s.mux.Unlock()

	if err := r.Setup(ctx, s.name, s.EventTypes()...); err != nil {
		return err
	}

	return r.Receive(ctx, s.Process)
}

// Process decodes data according to md and dispatches it to the registered
// handler through the interceptor chain.
func (s *Subscriber) Process(ctx context.Context, md *event.Metadata, data []byte) error {
	sub, ok := s.subscriptions[md.Type]
	if !ok {
		return NewUnprocessableEventError(fmt.Errorf("subscription not found: %s", md.Type))
	}

	codec, err := encoding.CodecForContentType(md.DataContentType)
	if err != nil {
		return NewUnprocessableEventError(fmt.Errorf("get codec for %s: %w", md.DataContentType, err))
	}

	e := sub.newEvent()
	if err = codec.Unmarshal(data, e); err != nil {
		return NewUnprocessableEventError(fmt.Errorf("unmarshalling event data: %w", err))
	}

	ctx = event.NewIncomingContext(ctx, md)

	if s.opts.interceptor == nil {
		return sub.handler(ctx, e)
	}

	return s.opts.interceptor(ctx, md, e, sub.handler)
}
