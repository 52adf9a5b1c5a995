package structured

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	json "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quarks-tech/orderflow-go/pkg/event"
)

var attributeNames = map[string]struct{}{
	"specversion":     {},
	"id":              {},
	"type":            {},
	"source":          {},
	"subject":         {},
	"time":            {},
	"dataschema":      {},
	"datacontenttype": {},
	"data":            {},
}

type envelope struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	Time            string          `json:"time,omitempty"`
	DataSchema      string          `json:"dataschema,omitempty"`
	DataContentType string          `json:"datacontenttype,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// Marshaler encodes the whole event, attributes and data, into a single JSON
// body. The event data must itself be JSON.
type Marshaler struct{}

func (m Marshaler) Marshal(md *event.Metadata, data []byte) (amqp.Publishing, error) {
	env := envelope{
		SpecVersion:     md.SpecVersion,
		ID:              md.ID,
		Type:            md.Type,
		Source:          md.Source,
		Subject:         md.Subject,
		DataContentType: md.DataContentType,
		Data:            data,
	}

	if md.DataSchema != nil {
		env.DataSchema = md.DataSchema.String()
	}

	if !md.Time.IsZero() {
		env.Time = md.Time.Format(time.RFC3339)
	}

	body, err := json.Marshal(&env)
	if err != nil {
		return amqp.Publishing{}, err
	}

	if len(md.Extensions) > 0 {
		if body, err = mergeExtensions(body, md.Extensions); err != nil {
			return amqp.Publishing{}, err
		}
	}

	return amqp.Publishing{
		MessageId:   md.ID,
		Type:        md.Type,
		ContentType: event.StructuredJSONContentType,
		Body:        body,
	}, nil
}

func (m Marshaler) Unmarshal(d *amqp.Delivery) (*event.Metadata, []byte, error) {
	var env envelope

	if err := json.Unmarshal(d.Body, &env); err != nil {
		return nil, nil, fmt.Errorf("decode structured event: %w", err)
	}

	switch {
	case env.SpecVersion == "":
		return nil, nil, errors.New("required attribute 'specversion' is missing")
	case env.Type == "":
		return nil, nil, errors.New("required attribute 'type' is missing")
	case env.ID == "":
		return nil, nil, errors.New("required attribute 'id' is missing")
	case env.Source == "":
		return nil, nil, errors.New("required attribute 'source' is missing")
	case len(env.Data) == 0:
		return nil, nil, errors.New("required attribute 'data' is missing")
	}

	md := &event.Metadata{
		SpecVersion:     env.SpecVersion,
		ID:              env.ID,
		Type:            env.Type,
		Source:          env.Source,
		Subject:         env.Subject,
		DataContentType: env.DataContentType,
	}

	if env.Time != "" {
		t, err := time.Parse(time.RFC3339, env.Time)
		if err != nil {
			return nil, nil, fmt.Errorf("parse attribute 'time': %w", err)
		}

		md.Time = t
	}

	if env.DataSchema != "" {
		u, err := url.Parse(env.DataSchema)
		if err != nil {
			return nil, nil, fmt.Errorf("parse attribute 'dataschema': %w", err)
		}

		md.DataSchema = u
	}

	extensions, err := readExtensions(d.Body)
	if err != nil {
		return nil, nil, err
	}

	md.Extensions = extensions

	return md, env.Data, nil
}

func mergeExtensions(body []byte, extensions map[string]interface{}) ([]byte, error) {
	dto := make(map[string]json.RawMessage)

	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, err
	}

	for k, v := range extensions {
		if _, ok := attributeNames[k]; ok {
			continue
		}

		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode extension %q: %w", k, err)
		}

		dto[k] = raw
	}

	return json.Marshal(dto)
}

func readExtensions(body []byte) (map[string]interface{}, error) {
	dto := make(map[string]interface{})

	if err := json.Unmarshal(body, &dto); err != nil {
		return nil, err
	}

	var extensions map[string]interface{}

	for k, v := range dto {
		if _, ok := attributeNames[k]; ok {
			continue
		}

		if extensions == nil {
			extensions = make(map[string]interface{})
		}

		extensions[k] = v
	}

	return extensions, nil
}
