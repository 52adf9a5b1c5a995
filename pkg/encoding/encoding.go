package encoding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quarks-tech/orderflow-go/pkg/event"
)

var ErrUnknownCodec = errors.New("orderflow: unknown codec")

// Codec encodes and decodes event data. Implementations must be safe for
// concurrent use.
type Codec interface {
	// Name returns the content-subtype handled by the codec, e.g. "json".
	Name() string
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

var registeredCodecs = make(map[string]Codec)

// RegisterCodec registers the codec under the lowercase form of its Name.
// It must only be called from init functions.
func RegisterCodec(codec Codec) {
	if codec == nil {
		panic("orderflow: cannot register a nil Codec")
	}
	if codec.Name() == "" {
		panic("orderflow: cannot register Codec with empty string result for Name()")
	}
	contentSubtype := strings.ToLower(codec.Name())
	registeredCodecs[contentSubtype] = codec
}

// GetCodec gets a registered Codec by content-subtype.
func GetCodec(contentSubtype string) (Codec, error) {
	codec, ok := registeredCodecs[strings.ToLower(contentSubtype)]
	if ok {
		return codec, nil
	}

	return nil, ErrUnknownCodec
}

// CodecForContentType resolves the codec for a full content type such as
// "application/cloudevents+json".
func CodecForContentType(contentType string) (Codec, error) {
	contentSubtype, ok := event.ContentSubtype(contentType)
	if !ok {
		return nil, fmt.Errorf("invalid content type %q: %w", contentType, ErrUnknownCodec)
	}

	return GetCodec(contentSubtype)
}
