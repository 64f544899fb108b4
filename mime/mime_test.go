package mime

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentType(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))

	var jpg, pngBuf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, img, nil))
	require.NoError(t, png.Encode(&pngBuf, img))

	assert.Equal(t, "image/jpeg", ContentType(jpg.Bytes()))
	assert.Equal(t, "image/png", ContentType(pngBuf.Bytes()))
	assert.Equal(t, JPEG, ContentType([]byte("plain text")))
	assert.Equal(t, JPEG, ContentType(nil))
}

func TestIsImageMime(t *testing.T) {
	assert.True(t, IsImageMime("image/gif"))
	assert.False(t, IsImageMime("video/mp4"))
}
