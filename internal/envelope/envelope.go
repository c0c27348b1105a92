// Package envelope defines the wire types exchanged over the bus: the request
// Envelope on the input topic and the ResultEnvelope on the result topic. Both
// are serialized as JSON message bodies.
package envelope

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/streambench/inferbench/internal/codec"
)

// Metadata keys stamped onto bus messages alongside the JSON body.
const (
	MetadataKeyRunID  = "inferbench_run_id"
	MetadataKeyItemID = "inferbench_item_id"
)

// Item is one unit of work flowing through the benchmark. Truth is the
// optional ground-truth label, used only for accuracy reporting.
type Item struct {
	ID      string
	Payload []byte
	Truth   string
}

// Envelope is the wire form of a dispatched item.
type Envelope struct {
	CorrelationID string            `json:"correlation_id"`
	Payload       string            `json:"payload"`
	SentAtMillis  int64             `json:"sent_at_ms"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ResultEnvelope carries a classification outcome back to the collector,
// keyed by the correlation id of the originating Envelope.
type ResultEnvelope struct {
	CorrelationID     string `json:"correlation_id"`
	Label             string `json:"label"`
	ProcessedAtMillis int64  `json:"processed_at_ms"`
}

// New wraps raw item bytes into an Envelope, encoding the payload and
// stamping the wall-clock send time.
func New(correlationID string, raw []byte, metadata map[string]string) Envelope {
	return Envelope{
		CorrelationID: correlationID,
		Payload:       codec.EncodePayload(raw),
		SentAtMillis:  time.Now().UnixMilli(),
		Metadata:      metadata,
	}
}

// DecodePayload returns the raw item bytes carried by the envelope.
func (e Envelope) DecodePayload() ([]byte, error) {
	return codec.DecodePayload(e.Payload)
}

// ToMessage serializes the envelope into a Watermill message. The message
// UUID is the correlation id so transport-level logs line up with the
// correlation table.
func (e Envelope) ToMessage() (*message.Message, error) {
	payload, err := codec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	msg := message.NewMessage(e.CorrelationID, payload)
	for k, v := range e.Metadata {
		msg.Metadata.Set(k, v)
	}
	return msg, nil
}

// FromMessage parses an Envelope out of a bus message body. Malformed bodies
// surface as *codec.DecodeError so consuming loops can drop them uniformly.
func FromMessage(msg *message.Message) (Envelope, error) {
	var e Envelope
	if err := codec.Unmarshal(msg.Payload, &e); err != nil {
		return Envelope{}, &codec.DecodeError{Err: err}
	}
	if e.CorrelationID == "" {
		return Envelope{}, &codec.DecodeError{Err: fmt.Errorf("envelope missing correlation_id")}
	}
	return e, nil
}

// NewResult builds a ResultEnvelope for the given correlation id, stamping
// the processing time.
func NewResult(correlationID, label string) ResultEnvelope {
	return ResultEnvelope{
		CorrelationID:     correlationID,
		Label:             label,
		ProcessedAtMillis: time.Now().UnixMilli(),
	}
}

// ToMessage serializes the result envelope into a Watermill message.
func (r ResultEnvelope) ToMessage() (*message.Message, error) {
	payload, err := codec.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal result envelope: %w", err)
	}
	return message.NewMessage(r.CorrelationID, payload), nil
}

// ResultFromMessage parses a ResultEnvelope out of a bus message body.
func ResultFromMessage(msg *message.Message) (ResultEnvelope, error) {
	var r ResultEnvelope
	if err := codec.Unmarshal(msg.Payload, &r); err != nil {
		return ResultEnvelope{}, &codec.DecodeError{Err: err}
	}
	if r.CorrelationID == "" {
		return ResultEnvelope{}, &codec.DecodeError{Err: fmt.Errorf("result envelope missing correlation_id")}
	}
	return r, nil
}
