package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	deathHeader         = "x-death"
	deliveryCountHeader = "x-delivery-count"
)

// Provenance is the most recent dead-lettering event recorded by the broker
// in the x-death header.
type Provenance struct {
	Queue  string
	Reason string
	Count  int64
	Time   time.Time
}

// ParseProvenance reads the first x-death entry. It reports false when the
// header is absent or malformed.
func ParseProvenance(headers amqp.Table) (Provenance, bool) {
	deaths, ok := headers[deathHeader].([]interface{})
	if !ok || len(deaths) == 0 {
		return Provenance{}, false
	}

	death, ok := deaths[0].(amqp.Table)
	if !ok {
		return Provenance{}, false
	}

	var p Provenance

	p.Queue, _ = death["queue"].(string)
	p.Reason, _ = death["reason"].(string)
	p.Count = toInt64(death["count"])
	p.Time, _ = death["time"].(time.Time)

	return p, true
}

// DeliveryCount returns the broker's x-delivery-count, zero on a first delivery.
func DeliveryCount(headers amqp.Table) int64 {
	return toInt64(headers[deliveryCountHeader])
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	default:
		return 0
	}
}
