package scaler

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"zm-image/dimension"
	"zm-image/pool"
)

var (
	ErrDecode = errors.New("failed to decode image")
	ErrEncode = errors.New("failed to encode image")
)

const (
	ResamplerLanczos3   = "lanczos3"
	ResamplerLanczos    = "lanczos"
	ResamplerCatmullRom = "catmullrom"
)

// Resampler scales an image to exactly the given size.
type Resampler func(img image.Image, width, height int) image.Image

var resamplers = map[string]Resampler{
	ResamplerLanczos3: func(img image.Image, width, height int) image.Image {
		return resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
	},
	ResamplerLanczos: func(img image.Image, width, height int) image.Image {
		return imaging.Resize(img, width, height, imaging.Lanczos)
	},
	ResamplerCatmullRom: func(img image.Image, width, height int) image.Image {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		return dst
	},
}

// Engine decodes, resamples and re-encodes JPEG stills.
type Engine struct {
	resample Resampler
	quality  int
}

func New(resampler string, quality int) (*Engine, error) {
	fn, ok := resamplers[resampler]
	if !ok {
		return nil, fmt.Errorf("unknown resampler: %s", resampler)
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("jpeg quality must be between 1 and 100")
	}
	return &Engine{resample: fn, quality: quality}, nil
}

// Decode reads any still format imaging understands. Output is always JPEG.
func (e *Engine) Decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, nil
}

// Scale resamples img to dims and returns the encoded JPEG.
func (e *Engine) Scale(img image.Image, dims dimension.Dimensions) ([]byte, error) {
	if dims.Width <= 0 || dims.Height <= 0 {
		return nil, fmt.Errorf("%w: invalid target %s", ErrEncode, dims)
	}

	scaled := e.resample(img, dims.Width, dims.Height)

	out, err := pool.EncodeJPEG(scaled, e.quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return out, nil
}
