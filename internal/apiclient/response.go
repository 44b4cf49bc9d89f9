package apiclient

import (
	"encoding/json"
	"fmt"

	"github.com/avorobev/chatauth/internal/apperrors"
)

// Kind tags the recognized response shapes.
// Upstream endpoints answer in several envelope styles, the normalizer
// resolves them in a fixed priority order.
type Kind int

const (
	// KindData is {success: true, data: {...}}
	KindData Kind = iota

	// KindMessage is {success: true, message: "...", task_id: "..."}
	KindMessage

	// KindRaw is a payload with neither a success nor an error key
	KindRaw

	// KindFailure is {success: false, error|message: "..."}
	KindFailure
)

// Response is the normalized body of a successful HTTP exchange
type Response struct {
	Kind Kind

	// KindData
	Data json.RawMessage

	// KindMessage
	Message string
	TaskID  string

	// KindRaw: the whole payload untouched
	Raw json.RawMessage

	// KindFailure
	FailureMessage string
}

// DecodeData unmarshals the data envelope contents into out
func (r Response) DecodeData(out any) error {
	if r.Kind != KindData {
		return fmt.Errorf("response has no data envelope")
	}
	return json.Unmarshal(r.Data, out)
}

// rawBody is the loose form every matcher inspects
type rawBody struct {
	fields  map[string]json.RawMessage
	success *bool
}

// NormalizeResponse resolves the upstream envelope into a tagged Response.
// Matchers run in priority order: data envelope, message envelope, raw
// passthrough, failure. A body matching none of them is an unexpected shape
// error, surfaced immediately and never retried.
func NormalizeResponse(body []byte) (Response, error) {
	raw, err := parseBody(body)
	if err != nil {
		return Response{}, err
	}
	if raw.fields == nil {
		// Valid JSON but not an object (array, scalar): passthrough
		return Response{Kind: KindRaw, Raw: json.RawMessage(body)}, nil
	}

	switch {
	case isDataEnvelope(raw):
		return Response{Kind: KindData, Data: raw.fields["data"]}, nil

	case isMessageEnvelope(raw):
		return Response{
			Kind:    KindMessage,
			Message: stringField(raw.fields, "message"),
			TaskID:  stringField(raw.fields, "task_id"),
		}, nil

	case isPassthrough(raw):
		return Response{Kind: KindRaw, Raw: json.RawMessage(body)}, nil

	case isFailure(raw):
		message := stringField(raw.fields, "error")
		if message == "" {
			message = stringField(raw.fields, "message")
		}
		return Response{Kind: KindFailure, FailureMessage: message}, nil

	default:
		return Response{}, fmt.Errorf("%w: matched no known envelope", apperrors.ErrUnexpectedShape)
	}
}

func parseBody(body []byte) (rawBody, error) {
	if len(body) == 0 {
		return rawBody{}, fmt.Errorf("%w: empty body", apperrors.ErrUnexpectedShape)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		// Not an object. Could still be valid JSON (array, number, string).
		if json.Valid(body) {
			return rawBody{}, nil
		}
		return rawBody{}, fmt.Errorf("%w: not valid JSON", apperrors.ErrUnexpectedShape)
	}

	raw := rawBody{fields: fields}
	if successRaw, ok := fields["success"]; ok {
		var success bool
		if err := json.Unmarshal(successRaw, &success); err != nil {
			return rawBody{}, fmt.Errorf("%w: success key is not a bool", apperrors.ErrUnexpectedShape)
		}
		raw.success = &success
	}

	return raw, nil
}

func isDataEnvelope(raw rawBody) bool {
	_, hasData := raw.fields["data"]
	return raw.success != nil && *raw.success && hasData
}

func isMessageEnvelope(raw rawBody) bool {
	_, hasMessage := raw.fields["message"]
	return raw.success != nil && *raw.success && hasMessage
}

func isPassthrough(raw rawBody) bool {
	_, hasError := raw.fields["error"]
	return raw.success == nil && !hasError
}

func isFailure(raw rawBody) bool {
	_, hasError := raw.fields["error"]
	_, hasMessage := raw.fields["message"]
	return raw.success != nil && !*raw.success && (hasError || hasMessage)
}

func stringField(fields map[string]json.RawMessage, key string) string {
	rawValue, ok := fields[key]
	if !ok {
		return ""
	}

	var value string
	if err := json.Unmarshal(rawValue, &value); err != nil {
		return ""
	}
	return value
}
