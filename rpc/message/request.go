package message

import (
	"bytes"
	"encoding/binary"
)

const (
	splitter     = '\n'
	pairSplitter = '\r'

	// head length + body length + message id + version + compressor + serializer
	FixedHeadLength = 15
)

// Request is one remote service invocation on the wire.
//
// Layout: | head length(4) | body length(4) | message id(4) | version(1) |
// compressor(1) | serializer(1) | service id \n | service key \n |
// key \r value \n ... | body |
type Request struct {
	HeadLength uint32
	BodyLength uint32
	MessageId  uint32
	Version    uint8
	Compresser uint8
	Serializer uint8

	ServiceID string
	// ServiceKey selects a version or group of the same service, may be empty
	ServiceKey string

	// Meta carries link metadata such as deadline, one-way or trace headers
	Meta map[string]string

	Data []byte
}

func EncodeReq(req *Request) []byte {
	bs := make([]byte, req.HeadLength+req.BodyLength)
	binary.BigEndian.PutUint32(bs[:4], req.HeadLength)
	binary.BigEndian.PutUint32(bs[4:8], req.BodyLength)
	binary.BigEndian.PutUint32(bs[8:12], req.MessageId)
	bs[12] = req.Version
	bs[13] = req.Compresser
	bs[14] = req.Serializer

	cur := bs[FixedHeadLength:]
	cur = writeField(cur, req.ServiceID)
	cur = writeField(cur, req.ServiceKey)
	for key, value := range req.Meta {
		copy(cur, key)
		cur = cur[len(key):]
		cur[0] = pairSplitter
		cur = writeField(cur[1:], value)
	}
	copy(cur, req.Data)
	return bs
}

func writeField(cur []byte, val string) []byte {
	copy(cur, val)
	cur = cur[len(val):]
	cur[0] = splitter
	return cur[1:]
}

func DecodeReq(bs []byte) *Request {
	req := &Request{}
	req.HeadLength = binary.BigEndian.Uint32(bs[:4])
	req.BodyLength = binary.BigEndian.Uint32(bs[4:8])
	req.MessageId = binary.BigEndian.Uint32(bs[8:12])
	req.Version = bs[12]
	req.Compresser = bs[13]
	req.Serializer = bs[14]

	header := bs[FixedHeadLength:req.HeadLength]
	index := bytes.IndexByte(header, splitter)
	req.ServiceID = string(header[:index])
	header = header[index+1:]

	index = bytes.IndexByte(header, splitter)
	req.ServiceKey = string(header[:index])
	header = header[index+1:]

	index = bytes.IndexByte(header, splitter)
	if index != -1 {
		meta := make(map[string]string, 4)
		for index != -1 {
			pair := header[:index]
			pairIndex := bytes.IndexByte(pair, pairSplitter)
			meta[string(pair[:pairIndex])] = string(pair[pairIndex+1:])
			header = header[index+1:]
			index = bytes.IndexByte(header, splitter)
		}
		req.Meta = meta
	}
	if req.BodyLength != 0 {
		req.Data = bs[req.HeadLength:]
	}
	return req
}

func (req *Request) CalculateHeaderLength() {
	headLength := FixedHeadLength + len(req.ServiceID) + 1 + len(req.ServiceKey) + 1
	for key, value := range req.Meta {
		// key \r value \n
		headLength += len(key) + 1 + len(value) + 1
	}
	req.HeadLength = uint32(headLength)
}

func (req *Request) CalculateBodyLength() {
	req.BodyLength = uint32(len(req.Data))
}
