package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"zm-image/access"
	"zm-image/dimension"
	"zm-image/metrics"
	"zm-image/resolver"
	"zm-image/scaler"
	"zm-image/store"
	"zm-image/store/storetest"
	"zm-image/synth"
	"zm-image/validation"
	"zm-image/variant"
)

type countingScaler struct {
	Scaler
	decodes atomic.Int32
	scales  atomic.Int32
}

func (c *countingScaler) Decode(data []byte) (image.Image, error) {
	c.decodes.Add(1)
	return c.Scaler.Decode(data)
}

func (c *countingScaler) Scale(img image.Image, dims dimension.Dimensions) ([]byte, error) {
	c.scales.Add(1)
	return c.Scaler.Scale(img, dims)
}

type brokenScaler struct{}

func (brokenScaler) Decode([]byte) (image.Image, error) {
	return nil, scaler.ErrDecode
}

func (brokenScaler) Scale(image.Image, dimension.Dimensions) ([]byte, error) {
	return nil, scaler.ErrEncode
}

type fakeSynthesizer struct {
	calls atomic.Int32
	write []byte
	last  synth.Request
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req synth.Request) error {
	f.calls.Add(1)
	f.last = req
	if f.write != nil {
		return os.WriteFile(req.OutPath, f.write, 0o644)
	}
	return synth.ErrSynthesisFailed
}

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

type env struct {
	root  string
	store *storetest.Memory
	synth *fakeSynthesizer
}

func newEnv(t *testing.T) *env {
	return &env{
		root: t.TempDir(),
		store: storetest.NewMemory().
			AddEvent(store.Event{ID: 17, MonitorID: 3, DefaultVideo: "17-video.mp4"}).
			AddFrame(store.Frame{ID: 9001, EventID: 17, FrameID: 42}),
		synth: &fakeSynthesizer{},
	}
}

func (e *env) pipeline(t *testing.T, s Scaler) *Pipeline {
	t.Helper()

	res := resolver.New(e.store, resolver.Options{Root: e.root, EventsDir: e.root, Digits: 5}, zap.NewNop())
	m, pm := metrics.Nop()
	return New(res, e.synth, s, variant.New(nil, zap.NewNop()), zap.NewNop(), m, pm)
}

func engine(t *testing.T) *countingScaler {
	t.Helper()
	e, err := scaler.New(scaler.ResamplerLanczos3, 85)
	require.NoError(t, err)
	return &countingScaler{Scaler: e}
}

func direct(path string, scale validation.ScaleRequest) *validation.ImageContext {
	return &validation.ImageContext{Source: validation.Direct(path), Scale: scale}
}

func TestServe_PassThrough(t *testing.T) {
	e := newEnv(t)
	original := encodeJPEG(t, 80, 60)
	writeFile(t, filepath.Join(e.root, "3", "17", "00001-capture.jpg"), original)

	s := engine(t)
	p := e.pipeline(t, s)

	for _, scale := range []int{0, 100} {
		result := p.Serve(context.Background(), direct("3/17/00001-capture.jpg", validation.ScaleRequest{Scale: scale}), access.PermissionSet{})

		require.Equal(t, PassThrough, result.Outcome, result.Err)
		assert.Equal(t, original, result.Body)
		assert.Equal(t, PlacePassThrough, result.Place)
		assert.Empty(t, result.Filename)
	}

	assert.Zero(t, s.decodes.Load())
	assert.Zero(t, s.scales.Load())
}

func TestServe_Forbidden(t *testing.T) {
	e := newEnv(t)
	writeFile(t, filepath.Join(e.root, "3", "17", "00001-capture.jpg"), encodeJPEG(t, 8, 8))
	p := e.pipeline(t, engine(t))

	perms := access.NewPermissionSet(1, 2)
	for _, path := range []string{"3/17/00001-capture.jpg", "events/3/17/00001-capture.jpg", "31/1.jpg"} {
		result := p.Serve(context.Background(), direct(path, validation.ScaleRequest{}), perms)
		assert.Equal(t, ErrorForbidden, result.Outcome, path)
		assert.Nil(t, result.Body)
		assert.ErrorIs(t, result.Err, access.ErrForbidden)
	}

	result := p.Serve(context.Background(), direct("3/17/00001-capture.jpg", validation.ScaleRequest{}), access.NewPermissionSet(3))
	assert.Equal(t, PassThrough, result.Outcome)
}

func TestServe_ForbiddenAfterDotDot(t *testing.T) {
	e := newEnv(t)
	writeFile(t, filepath.Join(e.root, "2", "5", "00001-capture.jpg"), encodeJPEG(t, 8, 8))
	p := e.pipeline(t, engine(t))

	for _, path := range []string{"1/../2/5/00001-capture.jpg", "1/./../2/5/00001-capture.jpg", "3/../2/5/00001-capture.jpg"} {
		result := p.Serve(context.Background(), direct(path, validation.ScaleRequest{}), access.NewPermissionSet(1))
		assert.Equal(t, ErrorForbidden, result.Outcome, path)
		assert.Nil(t, result.Body, path)
		assert.ErrorIs(t, result.Err, access.ErrForbidden, path)
	}

	// the cleaned path decides, so a detour that lands back on an allowed monitor is served
	result := p.Serve(context.Background(), direct("1/../2/5/00001-capture.jpg", validation.ScaleRequest{}), access.NewPermissionSet(2))
	assert.Equal(t, PassThrough, result.Outcome, result.Err)
}

func TestServe_OutsideRoot(t *testing.T) {
	e := newEnv(t)
	p := e.pipeline(t, engine(t))

	result := p.Serve(context.Background(), direct("3/../../../etc/passwd", validation.ScaleRequest{}), access.PermissionSet{})
	assert.Equal(t, ErrorForbidden, result.Outcome)
	assert.ErrorIs(t, result.Err, resolver.ErrOutsideRoot)
}

func TestServe_ScaleIsCachedAndRepeatable(t *testing.T) {
	e := newEnv(t)
	src := filepath.Join(e.root, "3", "17", "00001-capture.jpg")
	writeFile(t, src, encodeJPEG(t, 800, 600))
	ic := direct("3/17/00001-capture.jpg", validation.ScaleRequest{Scale: 50})

	first := e.pipeline(t, engine(t)).Serve(context.Background(), ic, access.PermissionSet{})
	require.Equal(t, ServeVariant, first.Outcome, first.Err)
	assert.Equal(t, dimension.Dimensions{Width: 400, Height: 300}, first.Dimensions)
	assert.Equal(t, string(variant.PlaceGenerated), first.Place)

	cached, err := os.ReadFile(filepath.Join(e.root, "3", "17", "00001-capture-400x300.jpg"))
	require.NoError(t, err)
	assert.Equal(t, first.Body, cached)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(first.Body))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 300, cfg.Height)

	// native size is still read from the source, but the variant is not re-encoded
	second := e.pipeline(t, &countingScaler{Scaler: mustEngine(t, scaler.ResamplerCatmullRom, 10)}).
		Serve(context.Background(), ic, access.PermissionSet{})
	require.Equal(t, ServeVariant, second.Outcome, second.Err)
	assert.Equal(t, string(variant.PlaceDisk), second.Place)
	assert.Equal(t, first.Body, second.Body)
}

func TestServe_ExplicitDimensionsSkipSource(t *testing.T) {
	e := newEnv(t)
	src := filepath.Join(e.root, "3", "17", "00001-capture.jpg")
	writeFile(t, src, encodeJPEG(t, 800, 600))
	ic := direct("3/17/00001-capture.jpg", validation.ScaleRequest{Width: 100, Height: 50})

	first := e.pipeline(t, engine(t)).Serve(context.Background(), ic, access.PermissionSet{})
	require.Equal(t, ServeVariant, first.Outcome, first.Err)

	// a cached variant with both dimensions never touches the decoder
	second := e.pipeline(t, brokenScaler{}).Serve(context.Background(), ic, access.PermissionSet{})
	require.Equal(t, ServeVariant, second.Outcome, second.Err)
	assert.Equal(t, first.Body, second.Body)
}

func TestServe_DecodeFailure(t *testing.T) {
	e := newEnv(t)
	writeFile(t, filepath.Join(e.root, "3", "17", "00001-capture.jpg"), []byte("not a jpeg"))
	p := e.pipeline(t, engine(t))

	result := p.Serve(context.Background(), direct("3/17/00001-capture.jpg", validation.ScaleRequest{Width: 20}), access.PermissionSet{})
	assert.Equal(t, ErrorInternal, result.Outcome)
	assert.ErrorIs(t, result.Err, scaler.ErrDecode)
	assert.Nil(t, result.Body)
}

func TestServe_EmptySource(t *testing.T) {
	e := newEnv(t)
	writeFile(t, filepath.Join(e.root, "3", "17", "00001-capture.jpg"), nil)

	result := e.pipeline(t, engine(t)).Serve(context.Background(), direct("3/17/00001-capture.jpg", validation.ScaleRequest{}), access.PermissionSet{})
	assert.Equal(t, ErrorInternal, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrInternalRead)
}

func TestServe_NotFound(t *testing.T) {
	e := newEnv(t)
	p := e.pipeline(t, engine(t))

	cases := map[string]*validation.ImageContext{
		"no source":     {},
		"missing file":  direct("3/17/00001-capture.jpg", validation.ScaleRequest{}),
		"unknown event": {Source: validation.ByFrame(18, 42, "")},
		"unknown frame": {Source: validation.ByFrame(17, 41, "")},
	}

	for name, ic := range cases {
		t.Run(name, func(t *testing.T) {
			result := p.Serve(context.Background(), ic, access.PermissionSet{})
			assert.Equal(t, ErrorNotFound, result.Outcome)
			assert.Nil(t, result.Body)
		})
	}

	// direct paths are never synthesized
	assert.Zero(t, e.synth.calls.Load())
}

func TestServe_ExistingFrame(t *testing.T) {
	e := newEnv(t)
	original := encodeJPEG(t, 16, 16)
	writeFile(t, filepath.Join(e.root, "3", "17", "00042-capture.jpg"), original)

	result := e.pipeline(t, engine(t)).Serve(context.Background(), &validation.ImageContext{Source: validation.ByFrame(0, 9001, "")}, access.PermissionSet{})

	require.Equal(t, PassThrough, result.Outcome, result.Err)
	assert.Equal(t, original, result.Body)
	assert.Equal(t, "3_17_42.jpg", result.Filename)
	assert.Zero(t, e.synth.calls.Load())
}

func TestServe_SynthesizesMissingFrame(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.MkdirAll(filepath.Join(e.root, "3", "17"), 0o755))
	e.synth.write = encodeJPEG(t, 160, 120)

	result := e.pipeline(t, engine(t)).Serve(context.Background(), &validation.ImageContext{
		Source: validation.ByFrame(17, 42, ""),
		Scale:  validation.ScaleRequest{Width: 80},
	}, access.PermissionSet{})

	require.Equal(t, ServeVariant, result.Outcome, result.Err)
	assert.Equal(t, dimension.Dimensions{Width: 80, Height: 60}, result.Dimensions)
	assert.Equal(t, "3_17_42.jpg", result.Filename)

	assert.Equal(t, int32(1), e.synth.calls.Load())
	assert.Equal(t, uint64(42), e.synth.last.FrameIndex)
	assert.Equal(t, filepath.Join(e.root, "3", "17", "17-video.mp4"), e.synth.last.Video)
	assert.Equal(t, filepath.Join(e.root, "3", "17", "00042-capture.jpg"), e.synth.last.OutPath)
}

func TestServe_SynthesisFailureIsNotFound(t *testing.T) {
	e := newEnv(t)
	p := e.pipeline(t, engine(t))

	result := p.Serve(context.Background(), &validation.ImageContext{Source: validation.ByFrame(17, 42, "")}, access.PermissionSet{})

	assert.Equal(t, ErrorNotFound, result.Outcome)
	assert.True(t, errors.Is(result.Err, synth.ErrSynthesisFailed))
	assert.Equal(t, int32(1), e.synth.calls.Load())
}

func TestServe_SynthesisDisabled(t *testing.T) {
	e := newEnv(t)
	res := resolver.New(e.store, resolver.Options{Root: e.root, EventsDir: e.root}, zap.NewNop())
	p := New(res, nil, engine(t), variant.New(nil, zap.NewNop()), zap.NewNop(), nil, nil)

	result := p.Serve(context.Background(), &validation.ImageContext{Source: validation.ByFrame(17, 42, "")}, access.PermissionSet{})
	assert.Equal(t, ErrorNotFound, result.Outcome)
	assert.ErrorIs(t, result.Err, synth.ErrSynthesisFailed)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "passthrough", PassThrough.String())
	assert.Equal(t, "variant", ServeVariant.String())
	assert.Equal(t, "not_found", ErrorNotFound.String())
	assert.Equal(t, "forbidden", ErrorForbidden.String())
	assert.Equal(t, "internal", ErrorInternal.String())
}

func mustEngine(t *testing.T, resampler string, quality int) *scaler.Engine {
	t.Helper()
	e, err := scaler.New(resampler, quality)
	require.NoError(t, err)
	return e
}
