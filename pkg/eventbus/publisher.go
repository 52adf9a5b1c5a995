package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quarks-tech/orderflow-go/pkg/encoding"
	_ "github.com/quarks-tech/orderflow-go/pkg/encoding/json"
	"github.com/quarks-tech/orderflow-go/pkg/event"
)

type Sender interface {
	Send(ctx context.Context, metadata *event.Metadata, data []byte) error
}

type Publisher interface {
	Publish(ctx context.Context, name string, event interface{}, opts ...PublishOption) error
}

type PublishOption func(m *event.Metadata)

func WithEventSource(source string) PublishOption {
	return func(m *event.Metadata) {
		m.Source = source
	}
}

func WithSubject(subject string) PublishOption {
	return func(m *event.Metadata) {
		m.Subject = subject
	}
}

func WithContentType(contentType string) PublishOption {
	return func(m *event.Metadata) {
		m.DataContentType = contentType
	}
}

func WithExtension(key string, v interface{}) PublishOption {
	return func(m *event.Metadata) {
		m.SetExtension(key, v)
	}
}

type publisherOptions struct {
	publishOptions    []PublishOption
	chainInterceptors []PublisherInterceptor
	interceptor       PublisherInterceptor
}

func defaultPublisherOptions() publisherOptions {
	return publisherOptions{}
}

type PublisherOption func(opts *publisherOptions)

// WithDefaultPublishOptions applies opts to every event published.
func WithDefaultPublishOptions(opts ...PublishOption) PublisherOption {
	return func(o *publisherOptions) {
		o.publishOptions = append(o.publishOptions, opts...)
	}
}

type PublisherImpl struct {
	sender  Sender
	options publisherOptions
}

func NewPublisher(sender Sender, opts ...PublisherOption) *PublisherImpl {
	options := defaultPublisherOptions()

	for _, opt := range opts {
		opt(&options)
	}

	p := &PublisherImpl{
		sender:  sender,
		options: options,
	}

	chainPublisherInterceptors(p)

	return p
}

func (p *PublisherImpl) Publish(ctx context.Context, name string, event interface{}, opts ...PublishOption) error {
	opts = combine(p.options.publishOptions, opts)

	if p.options.interceptor != nil {
		return p.options.interceptor(ctx, name, event, p, publish, opts...)
	}

	return publish(ctx, name, event, p, opts...)
}

func publish(ctx context.Context, name string, e interface{}, p *PublisherImpl, opts ...PublishOption) error {
	md := newMetadata(name)

	for _, opt := range opts {
		opt(md)
	}

	codec, err := encoding.CodecForContentType(md.DataContentType)
	if err != nil {
		return fmt.Errorf("resolve codec: %w", err)
	}

	data, err := codec.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", name, err)
	}

	if err = p.sender.Send(ctx, md, data); err != nil {
		return fmt.Errorf("send event %s: %w", name, err)
	}

	return nil
}

func combine(o1 []PublishOption, o2 []PublishOption) []PublishOption {
	// we don't use append because o1 could have extra capacity whose
	// elements would be overwritten, which could cause inadvertent
	// sharing (and race conditions) between concurrent calls
	if len(o1) == 0 {
		return o2
	} else if len(o2) == 0 {
		return o1
	}
	ret := make([]PublishOption, len(o1)+len(o2))
	copy(ret, o1)
	copy(ret[len(o1):], o2)
	return ret
}

func newMetadata(t string) *event.Metadata {
	return &event.Metadata{
		SpecVersion:     "1.0",
		Type:            t,
		ID:              uuid.New().String(),
		Time:            time.Now(),
		DataContentType: event.StructuredJSONContentType,
	}
}
