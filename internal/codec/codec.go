// Package codec converts raw item bytes to and from the text envelope format
// carried on the bus. Encoding is plain base64; the JSON helpers wrap sonic so
// the rest of the pipeline never imports a JSON library directly.
package codec

import "encoding/base64"

// DecodeError reports a malformed payload. Consuming loops log it and drop
// the message instead of propagating it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "inferbench: malformed payload: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodePayload encodes raw item bytes into the transportable text form.
func EncodePayload(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodePayload is the total inverse of EncodePayload. It returns a
// *DecodeError on malformed input and never silently truncates.
func DecodePayload(text string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return raw, nil
}
