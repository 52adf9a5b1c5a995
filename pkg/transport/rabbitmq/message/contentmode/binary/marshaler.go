package binary

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quarks-tech/orderflow-go/pkg/event"
)

const (
	headerPrefix      = "cloudEvents:"
	headerSpecVersion = headerPrefix + "specversion"
	headerID          = headerPrefix + "id"
	headerSource      = headerPrefix + "source"
	headerSubject     = headerPrefix + "subject"
	headerTime        = headerPrefix + "time"
	headerDataSchema  = headerPrefix + "dataschema"
)

// Marshaler keeps the event data as the message body and carries the
// attributes in AMQP headers and properties.
type Marshaler struct{}

func (m Marshaler) Marshal(md *event.Metadata, data []byte) (amqp.Publishing, error) {
	return amqp.Publishing{
		MessageId:   md.ID,
		Type:        md.Type,
		ContentType: md.DataContentType,
		Headers:     marshalMetadata(md),
		Body:        data,
	}, nil
}

func (m Marshaler) Unmarshal(d *amqp.Delivery) (*event.Metadata, []byte, error) {
	md, err := unmarshalMetadata(d)
	if err != nil {
		return nil, nil, fmt.Errorf("parse amqp delivery: %w", err)
	}

	return md, d.Body, nil
}

func marshalMetadata(md *event.Metadata) amqp.Table {
	headers := amqp.Table{
		headerSpecVersion: md.SpecVersion,
		headerID:          md.ID,
		headerSource:      md.Source,
	}

	if md.Subject != "" {
		headers[headerSubject] = md.Subject
	}

	if md.DataSchema != nil {
		headers[headerDataSchema] = md.DataSchema.String()
	}

	if !md.Time.IsZero() {
		headers[headerTime] = md.Time.Format(time.RFC3339)
	}

	for k, v := range md.Extensions {
		headers[k] = v
	}

	return headers
}

func unmarshalMetadata(d *amqp.Delivery) (*event.Metadata, error) {
	if d.Type == "" {
		return nil, errors.New("required attribute 'type' is missing")
	}

	md := &event.Metadata{
		DataContentType: d.ContentType,
		Type:            d.Type,
	}

	var ok bool

	if md.SpecVersion, ok = d.Headers[headerSpecVersion].(string); !ok {
		return nil, errors.New("required attribute 'specversion' is missing")
	}

	if md.ID, ok = d.Headers[headerID].(string); !ok {
		md.ID = d.MessageId
	}

	if md.ID == "" {
		return nil, errors.New("required attribute 'id' is missing")
	}

	if md.Source, ok = d.Headers[headerSource].(string); !ok {
		return nil, errors.New("required attribute 'source' is missing")
	}

	md.Subject, _ = d.Headers[headerSubject].(string)

	if v, ok := d.Headers[headerTime].(string); ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("parse attribute 'time': %w", err)
		}

		md.Time = t
	}

	if v, ok := d.Headers[headerDataSchema].(string); ok {
		u, err := url.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("parse attribute 'dataschema': %w", err)
		}

		md.DataSchema = u
	}

	for k, v := range d.Headers {
		if strings.HasPrefix(k, headerPrefix) {
			continue
		}

		md.SetExtension(k, v)
	}

	return md, nil
}
