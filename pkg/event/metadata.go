package event

import (
	"context"
	"net/url"
	"time"
)

// Metadata carries the CloudEvents attributes of a single event.
// Subject holds the aggregate identifier (the order id for order events).
type Metadata struct {
	SpecVersion     string
	Type            string
	Source          string
	Subject         string
	ID              string
	Time            time.Time
	Extensions      map[string]interface{}
	DataSchema      *url.URL
	DataContentType string
}

func NewMetadata(t string) *Metadata {
	return &Metadata{
		SpecVersion: "1.0",
		Type:        t,
	}
}

// Extension returns the extension attribute stored under key.
func (m *Metadata) Extension(key string) (interface{}, bool) {
	if m.Extensions == nil {
		return nil, false
	}

	v, ok := m.Extensions[key]

	return v, ok
}

func (m *Metadata) SetExtension(key string, v interface{}) {
	if m.Extensions == nil {
		m.Extensions = make(map[string]interface{})
	}

	m.Extensions[key] = v
}

type mdIncomingKey struct{}

func NewIncomingContext(ctx context.Context, md *Metadata) context.Context {
	return context.WithValue(ctx, mdIncomingKey{}, md)
}

func MetadataFromIncomingContext(ctx context.Context) (*Metadata, bool) {
	md, ok := ctx.Value(mdIncomingKey{}).(*Metadata)
	if !ok {
		return nil, false
	}

	return md, true
}
