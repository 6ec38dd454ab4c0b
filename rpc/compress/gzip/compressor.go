package gzip

import (
	"bytes"
	"compress/gzip"
	"io"

	"eproxy/rpc/compress"
)

var _ compress.Compressor = Compressor{}

type Compressor struct{}

func (_ Compressor) Code() byte {
	return 1
}

func (_ Compressor) Compress(data []byte) ([]byte, error) {
	res := bytes.NewBuffer(nil)
	w := gzip.NewWriter(res)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	// Close must run before reading res, a deferred Close leaves the tail unflushed
	if err := w.Close(); err != nil {
		return nil, err
	}
	return res.Bytes(), nil
}

func (_ Compressor) UnCompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
	}()
	res, err := io.ReadAll(r)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return res, nil
}
