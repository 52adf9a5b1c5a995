package event

import (
	"strings"
)

const (
	baseContentType        = "application"
	cloudeventsContentType = "application/cloudevents"

	// StructuredJSONContentType marks a body that carries both the attributes
	// and the data of an event as one JSON document.
	StructuredJSONContentType = cloudeventsContentType + "+json"
)

// ContentSubtype extracts the codec name from a content type, accepting both
// "application/<codec>" and "application/cloudevents+<codec>" forms.
func ContentSubtype(contentType string) (string, bool) {
	if !strings.HasPrefix(contentType, cloudeventsContentType) {
		if strings.HasPrefix(contentType, baseContentType+"/") {
			return contentType[len(baseContentType)+1:], true
		}

		return "", false
	}

	if len(contentType) == len(cloudeventsContentType) {
		return "", false
	}

	switch contentType[len(cloudeventsContentType)] {
	case '+', ';':
		return contentType[len(cloudeventsContentType)+1:], true
	default:
		return "", false
	}
}

func ContentType(contentSubtype string) string {
	return baseContentType + "/" + contentSubtype
}
