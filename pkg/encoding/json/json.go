package json

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/quarks-tech/orderflow-go/pkg/encoding"
)

const Name = "json"

var api = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	encoding.RegisterCodec(codec{})
}

type codec struct{}

func (codec) Name() string {
	return Name
}

func (codec) Marshal(v interface{}) ([]byte, error) {
	return api.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	return api.Unmarshal(data, v)
}
