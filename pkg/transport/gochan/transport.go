package gochan

import (
	"context"
	"errors"

	"github.com/quarks-tech/orderflow-go/pkg/event"
	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
)

const (
	defaultChanDepth = 20
)

var (
	ErrNilContext  = errors.New("nil Context")
	ErrNilMetadata = errors.New("nil Metadata")
)

// SendReceiver is an in-process transport: everything sent is handed to the
// processor of the same instance. Processing errors stop Receive.
type SendReceiver struct {
	sender   sender
	receiver receiver
}

type message struct {
	meta *event.Metadata
	data []byte
}

func New() *SendReceiver {
	return NewWithDepth(defaultChanDepth)
}

func NewWithDepth(depth int) *SendReceiver {
	ch := make(chan message, depth)

	return &SendReceiver{
		sender:   ch,
		receiver: ch,
	}
}

func (sr *SendReceiver) Setup(ctx context.Context, consumerName string, eventTypes ...string) error {
	return sr.receiver.Setup(ctx, consumerName, eventTypes...)
}

func (sr *SendReceiver) Send(ctx context.Context, meta *event.Metadata, data []byte) error {
	return sr.sender.Send(ctx, meta, data)
}

func (sr *SendReceiver) Receive(ctx context.Context, processor eventbus.Processor) error {
	return sr.receiver.Receive(ctx, processor)
}

func (sr *SendReceiver) Close(_ context.Context) {
	close(sr.sender)
}
