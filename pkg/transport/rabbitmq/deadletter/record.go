package deadletter

import (
	"strconv"
	"time"

	json "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quarks-tech/orderflow-go/pkg/transport/rabbitmq"
)

const unknown = "unknown"

// Record is the read model of one dead-lettered message. It is rebuilt on
// every scan and never cached.
type Record struct {
	MessageID     string                 `json:"messageId"`
	OrderID       string                 `json:"orderId"`
	EventType     string                 `json:"eventType,omitempty"`
	RoutingKey    string                 `json:"routingKey"`
	Payload       interface{}            `json:"payload"`
	Headers       map[string]interface{} `json:"headers"`
	RetryCount    int64                  `json:"retryCount"`
	FailureReason string                 `json:"failureReason"`
	OriginalQueue string                 `json:"originalQueue"`
	Timestamp     time.Time              `json:"timestamp"`
	Reprocessed   bool                   `json:"reprocessed"`
	DecodeError   string                 `json:"decodeError,omitempty"`
}

type decoder struct {
	marshaler rabbitmq.Marshaler
	keyField  string
	now       func() time.Time
}

// decode builds the record of d. The provenance is reported separately since
// Record substitutes defaults for missing values.
func (dec decoder) decode(d *amqp.Delivery, pos int) (*Record, rabbitmq.Provenance, bool) {
	rec := &Record{
		MessageID:     d.MessageId,
		RoutingKey:    d.RoutingKey,
		EventType:     d.Type,
		Headers:       d.Headers,
		FailureReason: unknown,
		OriginalQueue: unknown,
		Reprocessed:   rabbitmq.IsReprocessed(d.Headers),
	}

	if rec.MessageID == "" {
		rec.MessageID = "msg-" + strconv.Itoa(pos)
	}

	if rec.Headers == nil {
		rec.Headers = map[string]interface{}{}
	}

	prov, hasProv := rabbitmq.ParseProvenance(d.Headers)
	if hasProv {
		if prov.Reason != "" {
			rec.FailureReason = prov.Reason
		}
		if prov.Queue != "" {
			rec.OriginalQueue = prov.Queue
		}
		rec.RetryCount = prov.Count
		rec.Timestamp = prov.Time
	}

	if n := rabbitmq.DeliveryCount(d.Headers); n > rec.RetryCount {
		rec.RetryCount = n
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = dec.now()
	}

	md, data, err := dec.marshaler.Unmarshal(d)
	if err == nil {
		rec.EventType = md.Type
		if md.ID != "" {
			rec.MessageID = md.ID
		}
		rec.Payload = decodePayload(data)
		rec.OrderID = lookupKey(data, dec.keyField)

		if rec.OrderID == "" {
			rec.OrderID = md.Subject
		}

		return rec, prov, hasProv && prov.Queue != ""
	}

	rec.DecodeError = err.Error()
	rec.Payload = decodePayload(d.Body)
	rec.OrderID = lookupKey(d.Body, "data", dec.keyField)

	if rec.OrderID == "" {
		rec.OrderID = lookupKey(d.Body, dec.keyField)
	}

	return rec, prov, hasProv && prov.Queue != ""
}

// lookupKey reads a string or numeric field at path. Anything else, including
// a body that is not JSON, yields an empty key.
func lookupKey(data []byte, path ...interface{}) string {
	v := json.Get(data, path...)

	switch v.ValueType() {
	case json.StringValue, json.NumberValue:
		return v.ToString()
	default:
		return ""
	}
}

func decodePayload(data []byte) interface{} {
	var v interface{}

	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}

	return v
}
