package delivery

import (
	"context"
	"encoding/json"
)

// Transport performs a single network send of a payload to a destination.
// Implementations report failures using the error types in this package so
// callers can tell rate limits, permanent rejections and transient faults apart.
type Transport interface {
	Send(ctx context.Context, destination string, payload Payload, opts Options) (Receipt, error)
}

// TransportFunc adapts a plain function to the Transport interface.
type TransportFunc func(ctx context.Context, destination string, payload Payload, opts Options) (Receipt, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, destination string, payload Payload, opts Options) (Receipt, error) {
	return f(ctx, destination, payload, opts)
}

// Payload wraps message content. The bytes are copied on construction so the
// caller may reuse its buffer after handing the payload off.
type Payload struct {
	data []byte
}

// NewPayload copies data into a new Payload.
func NewPayload(data []byte) Payload {
	if data == nil {
		return Payload{}
	}
	return Payload{data: append([]byte(nil), data...)}
}

// TextPayload builds a Payload from a text message.
func TextPayload(text string) Payload {
	return Payload{data: []byte(text)}
}

// Bytes returns the payload content.
func (p Payload) Bytes() []byte {
	return p.data
}

func (p Payload) String() string {
	return string(p.data)
}

// Len returns the payload size in bytes.
func (p Payload) Len() int {
	return len(p.data)
}

// Options carries transport-specific delivery options such as parse mode or
// reply markup. The queue never inspects them.
type Options map[string]any

// Clone returns a shallow copy of o.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Receipt is the transport's success result.
type Receipt struct {
	MessageID int64           `json:"message_id,omitempty"`
	ChatID    int64           `json:"chat_id,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}
