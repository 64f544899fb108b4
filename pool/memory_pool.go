package pool

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync"
)

// maxPooledBuffer keeps a single huge encode from pinning memory in the pool.
const maxPooledBuffer = 16 << 20

var encodeBuffers = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

func GetBuffer() *bytes.Buffer {
	return encodeBuffers.Get().(*bytes.Buffer)
}

func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuffer {
		return
	}
	buf.Reset()
	encodeBuffers.Put(buf)
}

// EncodeJPEG encodes img through a pooled scratch buffer and returns a copy
// the caller owns.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}

	return bytes.Clone(buf.Bytes()), nil
}
