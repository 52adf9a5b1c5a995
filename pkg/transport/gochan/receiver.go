package gochan

import (
	"context"

	"github.com/quarks-tech/orderflow-go/pkg/eventbus"
)

type receiver <-chan message

func (r receiver) Receive(ctx context.Context, processor eventbus.Processor) error {
	if ctx == nil {
		return ErrNilContext
	}

	for m := range r {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := processor(ctx, m.meta, m.data); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r receiver) Setup(_ context.Context, _ string, _ ...string) error {
	return nil
}
