package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"zm-image/access"
	"zm-image/dimension"
	"zm-image/metrics"
	"zm-image/resolver"
	"zm-image/synth"
	"zm-image/validation"
	"zm-image/variant"
)

// ErrInternalRead covers a source that exists but cannot be read in full.
var ErrInternalRead = errors.New("failed to read image")

type Outcome int

const (
	PassThrough Outcome = iota
	ServeVariant
	ErrorNotFound
	ErrorForbidden
	ErrorInternal
)

func (o Outcome) String() string {
	switch o {
	case PassThrough:
		return "passthrough"
	case ServeVariant:
		return "variant"
	case ErrorNotFound:
		return "not_found"
	case ErrorForbidden:
		return "forbidden"
	default:
		return "internal"
	}
}

// PlacePassThrough marks original bytes served without scaling.
const PlacePassThrough = "passthrough"

// Result is the single terminal outcome of a request. Body and Filename are
// only set on success.
type Result struct {
	Outcome    Outcome
	Body       []byte
	Filename   string
	Place      string
	Dimensions dimension.Dimensions
	Err        error
}

type Resolver interface {
	Resolve(ctx context.Context, ref validation.SourceReference) (*resolver.Resolution, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) error
}

type Scaler interface {
	Decode(data []byte) (image.Image, error)
	Scale(img image.Image, dims dimension.Dimensions) ([]byte, error)
}

type Pipeline struct {
	resolver    Resolver
	synthesizer Synthesizer
	scaler      Scaler
	cache       *variant.Cache
	logger      *zap.Logger
	metrics     *metrics.Metrics
	perf        *metrics.PerformanceMetrics
}

// New wires the pipeline. synthesizer may be nil to disable extraction from video.
func New(
	res Resolver,
	synthesizer Synthesizer,
	scaler Scaler,
	cache *variant.Cache,
	logger *zap.Logger,
	m *metrics.Metrics,
	pm *metrics.PerformanceMetrics,
) *Pipeline {
	return &Pipeline{
		resolver:    res,
		synthesizer: synthesizer,
		scaler:      scaler,
		cache:       cache,
		logger:      logger,
		metrics:     m,
		perf:        pm,
	}
}

func (p *Pipeline) Serve(ctx context.Context, ic *validation.ImageContext, perms access.PermissionSet) Result {
	start := time.Now()

	result := p.serve(ctx, ic, perms)

	outcome := result.Outcome.String()
	if p.metrics != nil {
		p.metrics.Served.WithLabelValues(sourceLabel(ic.Source), outcome).Inc()
		if result.Outcome == ServeVariant {
			p.metrics.ServedCached.WithLabelValues(result.Place).Inc()
		}
	}
	if p.perf != nil {
		p.perf.RequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		if result.Body != nil {
			p.perf.ImageSizeBytes.WithLabelValues(outcome).Observe(float64(len(result.Body)))
		}
	}

	fields := []zap.Field{
		zap.Stringer("source", ic.Source),
		zap.Stringer("scale", ic.Scale),
		zap.String("outcome", outcome),
		zap.Duration("took", time.Since(start)),
	}
	switch result.Outcome {
	case PassThrough, ServeVariant:
		p.logger.Debug("image served", append(fields, zap.String("place", result.Place))...)
	case ErrorInternal:
		p.logger.Error("image request failed", append(fields, zap.Error(result.Err))...)
	default:
		p.logger.Info("image request rejected", append(fields, zap.Error(result.Err))...)
	}

	return result
}

func (p *Pipeline) serve(ctx context.Context, ic *validation.ImageContext, perms access.PermissionSet) Result {
	ref := ic.Source

	res, err := p.resolver.Resolve(ctx, ref)
	switch {
	case err == nil:
	case errors.Is(err, resolver.ErrOutsideRoot), errors.Is(err, resolver.ErrPathNotAllowed):
		return failure(ErrorForbidden, err)
	case errors.Is(err, resolver.ErrNotFound):
		return failure(ErrorNotFound, err)
	default:
		return failure(ErrorInternal, err)
	}

	switch ref.Kind {
	case validation.SourceDirect:
		// the monitor prefix is read from the cleaned path, so ".." cannot hop monitors
		if err := perms.Check(res.Rel); err != nil {
			return failure(ErrorForbidden, err)
		}
	case validation.SourceByFrame:
		if !perms.Unrestricted() {
			p.logger.Debug("event/frame request is not checked against monitor permissions", zap.Stringer("source", ref))
		}
	}

	if _, err := os.Stat(res.Path); err != nil {
		if !os.IsNotExist(err) {
			return failure(ErrorInternal, fmt.Errorf("%w: %w", ErrInternalRead, err))
		}
		if ref.Kind != validation.SourceByFrame {
			return failure(ErrorNotFound, fmt.Errorf("%w: %s", resolver.ErrNotFound, res.Path))
		}
		if err := p.synthesize(ctx, res); err != nil {
			return failure(ErrorNotFound, err)
		}
	}

	src := &source{path: res.Path, scaler: p.scaler, perf: p.perf}

	dims, scaled, err := dimension.Resolve(ic.Scale, src.native, p.logger)
	if err != nil {
		return failure(ErrorInternal, err)
	}

	filename := res.DownloadName()

	if !scaled {
		body, err := src.bytes()
		if err != nil {
			return failure(ErrorInternal, err)
		}
		return Result{Outcome: PassThrough, Body: body, Filename: filename, Place: PlacePassThrough}
	}

	body, place, err := p.cache.Fetch(res.Path, dims, func() ([]byte, error) {
		img, err := src.image()
		if err != nil {
			return nil, err
		}
		return metrics.TimeFunction(func() ([]byte, error) {
			return p.scaler.Scale(img, dims)
		}, "scale", p.perf)
	})
	if err != nil {
		return failure(ErrorInternal, err)
	}

	return Result{
		Outcome:    ServeVariant,
		Body:       body,
		Filename:   filename,
		Place:      string(place),
		Dimensions: dims,
	}
}

func (p *Pipeline) synthesize(ctx context.Context, res *resolver.Resolution) error {
	if p.synthesizer == nil {
		return fmt.Errorf("%w: %s", synth.ErrSynthesisFailed, "extraction from video is disabled")
	}

	done := metrics.TimeOperation("synthesize", p.perf)
	err := p.synthesizer.Synthesize(ctx, synth.Request{
		Video:      res.Video(),
		FrameIndex: res.Frame.FrameID,
		Variant:    res.Source.Variant,
		OutPath:    res.Path,
	})
	done()

	result := "ok"
	if err != nil {
		result = "failed"
		p.logger.Warn("failed to synthesize frame from video",
			zap.String("path", res.Path),
			zap.String("video", res.Video()),
			zap.Error(err))
	}
	if p.metrics != nil {
		p.metrics.Syntheses.WithLabelValues(result).Inc()
	}

	return err
}

// source loads and decodes the canonical image at most once per request.
type source struct {
	path   string
	scaler Scaler
	perf   *metrics.PerformanceMetrics

	readOnce sync.Once
	data     []byte
	readErr  error

	decodeOnce sync.Once
	img        image.Image
	decodeErr  error
}

func (s *source) bytes() ([]byte, error) {
	s.readOnce.Do(func() {
		data, err := os.ReadFile(s.path)
		switch {
		case err != nil:
			s.readErr = fmt.Errorf("%w: %w", ErrInternalRead, err)
		case len(data) == 0:
			s.readErr = fmt.Errorf("%w: %s is empty", ErrInternalRead, s.path)
		default:
			s.data = data
		}
	})
	return s.data, s.readErr
}

func (s *source) image() (image.Image, error) {
	s.decodeOnce.Do(func() {
		data, err := s.bytes()
		if err != nil {
			s.decodeErr = err
			return
		}
		s.img, s.decodeErr = metrics.TimeFunction(func() (image.Image, error) {
			return s.scaler.Decode(data)
		}, "decode", s.perf)
	})
	return s.img, s.decodeErr
}

func (s *source) native() (dimension.Dimensions, error) {
	img, err := s.image()
	if err != nil {
		return dimension.Dimensions{}, err
	}
	b := img.Bounds()
	return dimension.Dimensions{Width: b.Dx(), Height: b.Dy()}, nil
}

func failure(outcome Outcome, err error) Result {
	return Result{Outcome: outcome, Err: err}
}

func sourceLabel(ref validation.SourceReference) string {
	switch ref.Kind {
	case validation.SourceDirect:
		return "path"
	case validation.SourceByFrame:
		return "frame"
	default:
		return "none"
	}
}
