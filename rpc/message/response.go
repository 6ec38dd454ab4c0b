package message

import "encoding/binary"

// Response shares the fixed head of Request; the rest of the head is the error text.
type Response struct {
	HeadLength uint32
	BodyLength uint32
	MessageId  uint32
	Version    uint8
	Compresser uint8
	Serializer uint8

	Error []byte
	Data  []byte
}

func EncodeResp(resp *Response) []byte {
	bs := make([]byte, resp.HeadLength+resp.BodyLength)
	binary.BigEndian.PutUint32(bs[:4], resp.HeadLength)
	binary.BigEndian.PutUint32(bs[4:8], resp.BodyLength)
	binary.BigEndian.PutUint32(bs[8:12], resp.MessageId)
	bs[12] = resp.Version
	bs[13] = resp.Compresser
	bs[14] = resp.Serializer

	// the head length already tells where the error ends, no splitter needed
	cur := bs[FixedHeadLength:]
	copy(cur, resp.Error)
	cur = cur[len(resp.Error):]
	copy(cur, resp.Data)
	return bs
}

func DecodeResp(bs []byte) *Response {
	resp := &Response{}
	resp.HeadLength = binary.BigEndian.Uint32(bs[:4])
	resp.BodyLength = binary.BigEndian.Uint32(bs[4:8])
	resp.MessageId = binary.BigEndian.Uint32(bs[8:12])
	resp.Version = bs[12]
	resp.Compresser = bs[13]
	resp.Serializer = bs[14]
	if resp.HeadLength > FixedHeadLength {
		resp.Error = bs[FixedHeadLength:resp.HeadLength]
	}
	if resp.BodyLength != 0 {
		resp.Data = bs[resp.HeadLength:]
	}
	return resp
}

func (resp *Response) CalculateHeaderLength() {
	resp.HeadLength = FixedHeadLength + uint32(len(resp.Error))
}

func (resp *Response) CalculateBodyLength() {
	resp.BodyLength = uint32(len(resp.Data))
}
