package snappy

import (
	"bytes"
	"io"

	"github.com/golang/snappy"

	"eproxy/rpc/compress"
)

var _ compress.Compressor = Compressor{}

type Compressor struct{}

func (_ Compressor) Code() byte {
	return 3
}

func (_ Compressor) Compress(data []byte) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	w := snappy.NewBufferedWriter(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (_ Compressor) UnCompress(data []byte) ([]byte, error) {
	res, err := io.ReadAll(snappy.NewReader(bytes.NewReader(data)))
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return res, nil
}
