// Package wire defines the self-describing frame envelope carried over
// the Hub<->Client Runtime transport: a discriminator, an optional
// correlation id, and a raw payload, with constructor helpers per frame
// kind. The "notification with no correlation id" path is a first-class,
// always-routable case rather than an omitted field that happens to
// unmarshal as empty.
package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the required discriminator field. A frame with an empty or
// missing Kind is a protocol error; unknown non-empty kinds are
// tolerated and ignored by the Hub for forward compatibility.
type Kind string

const (
	// Push frames, Hub -> client, over the SSE downstream channel.
	KindHeartbeat       Kind = "heartbeat"
	KindMentionDelivery Kind = "mentionDelivery"
	KindSessionClosed   Kind = "sessionClosed"

	// Request/response frames, client -> Hub (and Hub's reply). The
	// Hub's HTTP Tool Surface exchanges plain JSON bodies rather than
	// these frames; waitForMentions in particular is answered by its
	// HTTP long-poll response, never by a push frame.
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindError    Kind = "error"
)

// Frame is the envelope for every message exchanged over the protocol.
// CorrelationID is optional: a frame with no correlation id is a
// notification and must still be routed, never rejected for missing
// reply metadata. Action names one of the Tool Surface operations
// for request/response frames; it is empty for push frames.
type Frame struct {
	Kind           Kind            `json:"kind"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	Action         string          `json:"action,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Validate enforces the one hard requirement on an inbound frame: the
// discriminator must be present. Everything else -- an empty correlation
// id, an unrecognized kind -- is valid and must be tolerated by callers.
func (f *Frame) Validate() error {
	if f.Kind == "" {
		return fmt.Errorf("wire: frame missing required discriminator field %q", "kind")
	}
	return nil
}

// IsNotification reports whether f carries no correlation id, i.e. it
// cannot be matched to a pending request and must be handled as a
// fire-and-forget push.
func (f *Frame) IsNotification() bool {
	return f.CorrelationID == ""
}

// NewRequest builds a request frame addressed at a Tool-Surface action.
func NewRequest(correlationID, action string, payload interface{}) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal request payload: %w", err)
	}
	return &Frame{
		Kind:          KindRequest,
		CorrelationID: correlationID,
		Action:        action,
		Payload:       data,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// NewResponse builds a response frame correlated to a prior request.
func NewResponse(correlationID, action string, payload interface{}) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal response payload: %w", err)
	}
	return &Frame{
		Kind:          KindResponse,
		CorrelationID: correlationID,
		Action:        action,
		Payload:       data,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// NewError builds an error response frame. code is an error taxonomy
// kind (e.g. "ThreadClosed", "TimeoutTooLarge").
func NewError(correlationID, action, code, message string) (*Frame, error) {
	data, err := json.Marshal(ErrorPayload{Code: code, Message: message})
	if err != nil {
		return nil, fmt.Errorf("wire: marshal error payload: %w", err)
	}
	return &Frame{
		Kind:          KindError,
		CorrelationID: correlationID,
		Action:        action,
		Payload:       data,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// NewNotification builds a push frame with no correlation id. This is the
// shape of a heartbeat or an asynchronously delivered mention batch.
func NewNotification(kind Kind, payload interface{}) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal notification payload: %w", err)
	}
	return &Frame{
		Kind:      kind,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// ErrorPayload is the JSON body of a KindError frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParsePayload decodes f's payload into v.
func (f *Frame) ParsePayload(v interface{}) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}
