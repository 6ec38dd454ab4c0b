package rpc

import (
	"encoding/binary"
	"io"
	"net"

	"eproxy/internal/errs"
)

// head length(4) + body length(4)
const lenBytes = 8

// ReadMsg reads one whole request or response frame.
func ReadMsg(conn net.Conn) ([]byte, error) {
	lenBs := make([]byte, lenBytes)
	if _, err := io.ReadFull(conn, lenBs); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errs.ReadLenDataError
		}
		return nil, err
	}
	headLength := binary.BigEndian.Uint32(lenBs[:4])
	bodyLength := binary.BigEndian.Uint32(lenBs[4:])
	if headLength < lenBytes {
		return nil, errs.ReadLenDataError
	}
	bs := make([]byte, headLength+bodyLength)
	copy(bs[:lenBytes], lenBs)
	if _, err := io.ReadFull(conn, bs[lenBytes:]); err != nil {
		return nil, err
	}
	return bs, nil
}
