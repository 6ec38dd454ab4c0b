package message

import "eproxy/rpc/serialize"

// ResultMessage is the outcome of a remote invocation that produced a result.
// A nil *ResultMessage means absence: open circuit, failure or timeout.
type ResultMessage struct {
	// Result is either a generic decoded value (map[string]any, []any, string,
	// float64, bool, nil) or a Payload still waiting for a typed decode.
	Result any
}

// Payload is a response body that has not been decoded yet.
type Payload struct {
	Data       []byte
	Serializer serialize.Serializer
}

func (p Payload) Decode(val any) error {
	return p.Serializer.Decode(p.Data, val)
}
