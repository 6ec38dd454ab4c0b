package grpcx

import (
	"fmt"

	"google.golang.org/grpc/encoding"

	"eproxy/rpc/message"
)

const codecName = "eproxy"

var _ encoding.Codec = Codec{}

// Codec carries the eproxy framing as the gRPC message body, so a request
// sent over gRPC is byte for byte the one sent over tcp.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case *message.Request:
		val.CalculateHeaderLength()
		val.CalculateBodyLength()
		return message.EncodeReq(val), nil
	case *message.Response:
		val.CalculateHeaderLength()
		val.CalculateBodyLength()
		return message.EncodeResp(val), nil
	default:
		return nil, fmt.Errorf("grpcx: cannot marshal %T", v)
	}
}

func (Codec) Unmarshal(data []byte, v any) error {
	if len(data) < message.FixedHeadLength {
		return fmt.Errorf("grpcx: frame too short, %d bytes", len(data))
	}
	switch val := v.(type) {
	case *message.Request:
		*val = *message.DecodeReq(data)
	case *message.Response:
		*val = *message.DecodeResp(data)
	default:
		return fmt.Errorf("grpcx: cannot unmarshal into %T", v)
	}
	return nil
}

func (Codec) Name() string {
	return codecName
}
