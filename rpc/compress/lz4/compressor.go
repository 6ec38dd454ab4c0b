package lz4

import (
	"encoding/binary"
	"io"

	"github.com/pierrec/lz4/v4"

	"eproxy/rpc/compress"
)

var _ compress.Compressor = Compressor{}

const (
	flagRaw   byte = 0
	flagBlock byte = 1
	headLen        = 5
)

// Compressor uses lz4 block mode. Lz4 trades a slightly lower ratio for very
// fast decompression, a good fit for small, frequent RPC payloads.
// Layout: | flag(1) | original length(4) | block or raw data |
type Compressor struct{}

func (c Compressor) Code() byte {
	return 2
}

func (c Compressor) Compress(data []byte) ([]byte, error) {
	buf := make([]byte, headLen+lz4.CompressBlockBound(len(data)))
	binary.BigEndian.PutUint32(buf[1:headLen], uint32(len(data)))
	var lc lz4.Compressor
	n, err := lc.CompressBlock(data, buf[headLen:])
	if err != nil {
		return nil, err
	}
	// n == 0 means the data is not compressible
	if n == 0 {
		buf[0] = flagRaw
		n = copy(buf[headLen:], data)
		return buf[:headLen+n], nil
	}
	buf[0] = flagBlock
	return buf[:headLen+n], nil
}

func (c Compressor) UnCompress(data []byte) ([]byte, error) {
	if len(data) < headLen {
		return nil, io.ErrUnexpectedEOF
	}
	size := binary.BigEndian.Uint32(data[1:headLen])
	if data[0] == flagRaw {
		return data[headLen:], nil
	}
	buf := make([]byte, size)
	n, err := lz4.UncompressBlock(data[headLen:], buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
