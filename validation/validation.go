package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"zm-image/config"
)

const DefaultVariant = "capture"

// ScaleRequest holds the raw sizing parameters. Zero means absent.
type ScaleRequest struct {
	Scale  int
	Width  int
	Height int
}

func (s ScaleRequest) String() string {
	return fmt.Sprintf("scale=%d;width=%d;height=%d", s.Scale, s.Width, s.Height)
}

// SourceKind tags which form of SourceReference is populated.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceDirect
	SourceByFrame
)

// SourceReference names the image to serve: either a direct path or an
// event/frame pair. EventID is zero when only a frame key was given.
type SourceReference struct {
	Kind SourceKind

	Path string

	EventID uint64
	FrameID uint64
	Variant string
}

func Direct(path string) SourceReference {
	return SourceReference{Kind: SourceDirect, Path: path}
}

func ByFrame(eventID, frameID uint64, variant string) SourceReference {
	if variant == "" {
		variant = DefaultVariant
	}
	return SourceReference{Kind: SourceByFrame, EventID: eventID, FrameID: frameID, Variant: variant}
}

func (r SourceReference) String() string {
	switch r.Kind {
	case SourceDirect:
		return "path=" + r.Path
	case SourceByFrame:
		return fmt.Sprintf("eid=%d;fid=%d;show=%s", r.EventID, r.FrameID, r.Variant)
	default:
		return "none"
	}
}

// ImageContext is everything the pipeline needs from one request.
type ImageContext struct {
	Source SourceReference
	Scale  ScaleRequest
}

// Query is the raw query string view of an image request.
type Query struct {
	Path   string
	Eid    string
	Fid    string
	Show   string
	Scale  string
	Width  string
	Height string
}

// ParseSourceReference picks the request form. A non-empty path wins; otherwise
// a numeric fid is required, with an optional numeric eid.
func ParseSourceReference(q Query) SourceReference {
	if q.Path != "" {
		return Direct(q.Path)
	}

	fid, ok := parseID(q.Fid)
	if !ok {
		return SourceReference{}
	}

	variant, ok := sanitizeVariant(q.Show)
	if !ok {
		return SourceReference{}
	}

	// a malformed eid falls back to treating fid as the global frame key
	eid, _ := parseID(q.Eid)

	return ByFrame(eid, fid, variant)
}

// ParseScaleRequest applies the configured bounds; anything non-numeric or out
// of range is treated as absent.
func ParseScaleRequest(q Query, limits config.Limits) ScaleRequest {
	return ScaleRequest{
		Scale:  boundedInt(q.Scale, limits.ScaleMin, limits.ScaleMax),
		Width:  boundedInt(q.Width, limits.DimensionMin, limits.DimensionMax),
		Height: boundedInt(q.Height, limits.DimensionMin, limits.DimensionMax),
	}
}

func Parse(q Query, limits config.Limits) *ImageContext {
	return &ImageContext{
		Source: ParseSourceReference(q),
		Scale:  ParseScaleRequest(q, limits),
	}
}

// ProcessImageContext reads the image request parameters from the query string.
func ProcessImageContext(c *fiber.Ctx, limits config.Limits) *ImageContext {
	return Parse(Query{
		Path:   c.Query("path"),
		Eid:    c.Query("eid"),
		Fid:    c.Query("fid"),
		Show:   c.Query("show"),
		Scale:  c.Query("scale"),
		Width:  c.Query("width"),
		Height: c.Query("height"),
	}, limits)
}

func boundedInt(raw string, lo, hi int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		// numeric but fractional values still count, truncated once inside the range
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < float64(lo) || f > float64(hi) {
			return 0
		}
		v = int(f)
	}

	if v < lo || v > hi {
		return 0
	}
	return v
}

func parseID(raw string) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// sanitizeVariant keeps the variant usable as a filename component.
func sanitizeVariant(show string) (string, bool) {
	show = strings.TrimSpace(show)
	if show == "" {
		return DefaultVariant, true
	}
	if len(show) > 32 {
		return "", false
	}
	for _, r := range show {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}
		return "", false
	}
	return show, true
}
