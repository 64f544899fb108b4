package dimension

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"zm-image/validation"
)

type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// NativeFunc reports the source image's own size. It is only called when the
// request leaves a dimension open.
type NativeFunc func() (Dimensions, error)

// Resolve turns a scale request into final dimensions. The boolean is false
// when no scaling was asked for and the original should be passed through.
//
// Derived sizes are rounded to the nearest integer and never drop below 1.
func Resolve(req validation.ScaleRequest, native NativeFunc, logger *zap.Logger) (Dimensions, bool, error) {
	if req.Width > 0 && req.Height > 0 {
		return Dimensions{Width: req.Width, Height: req.Height}, true, nil
	}

	if req.Width == 0 && req.Height == 0 && (req.Scale == 0 || req.Scale == 100) {
		return Dimensions{}, false, nil
	}

	src, err := native()
	if err != nil {
		return Dimensions{}, false, err
	}
	if src.Width <= 0 || src.Height <= 0 {
		return Dimensions{}, false, fmt.Errorf("invalid native dimensions %s", src)
	}

	var out Dimensions
	switch {
	case req.Width == 0 && req.Height == 0:
		out.Width = round(float64(src.Width) * float64(req.Scale) / 100)
		out.Height = round(float64(src.Height) * float64(req.Scale) / 100)
	case req.Width == 0:
		out.Height = req.Height
		out.Width = round(float64(req.Height) * float64(src.Width) / float64(src.Height))
	default:
		out.Width = req.Width
		out.Height = round(float64(req.Width) * float64(src.Height) / float64(src.Width))
	}

	if out == src {
		logger.Warn("no change to dimensions despite scaling", zap.Stringer("dimensions", out), zap.Stringer("request", req))
	}

	return out, true, nil
}

func round(v float64) int {
	r := int(math.Round(v))
	if r < 1 {
		return 1
	}
	return r
}
