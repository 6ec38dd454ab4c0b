package compress

// Compressor -> compression algorithm abstract, Code is written into the message head
type Compressor interface {
	Code() byte
	Compress(data []byte) ([]byte, error)
	UnCompress(data []byte) ([]byte, error)
}

// DoNothingCompressor keeps the data as is, used to avoid nil checks
type DoNothingCompressor struct{}

func (d DoNothingCompressor) Code() byte {
	return 0
}

func (d DoNothingCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (d DoNothingCompressor) UnCompress(data []byte) ([]byte, error) {
	return data, nil
}
