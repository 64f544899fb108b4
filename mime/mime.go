package mime

import (
	"slices"

	"github.com/gabriel-vasile/mimetype"
)

const JPEG = "image/jpeg"

var imageMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
	"image/bmp",
}

func IsImageMime(mimeType string) bool {
	return slices.Contains(imageMimeTypes, mimeType)
}

// ContentType sniffs a still's body. Anything not recognised as an image is
// labelled JPEG, the format frames are written in.
func ContentType(body []byte) string {
	detected := mimetype.Detect(body).String()
	if IsImageMime(detected) {
		return detected
	}
	return JPEG
}
