package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrSynthesisFailed = errors.New("frame synthesis failed")

// CaptureVariant is the only frame variant that can be rebuilt from video.
const CaptureVariant = "capture"

// Extractor writes the frame at index frameIndex of video to outPath as JPEG.
// Its error is advisory: callers check outPath themselves.
type Extractor interface {
	Extract(ctx context.Context, video string, frameIndex uint64, outPath string) error
}

type Request struct {
	// Video is the absolute path of the event's source video, empty if none.
	Video      string
	FrameIndex uint64
	Variant    string
	OutPath    string
}

type Synthesizer struct {
	extractor Extractor
	timeout   time.Duration
	slots     *semaphore.Weighted
	logger    *zap.Logger
}

func New(extractor Extractor, timeout time.Duration, maxConcurrent int64, logger *zap.Logger) *Synthesizer {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Synthesizer{
		extractor: extractor,
		timeout:   timeout,
		slots:     semaphore.NewWeighted(maxConcurrent),
		logger:    logger,
	}
}

// Synthesize makes one attempt at producing req.OutPath from the source video.
// Success is judged only by the file existing afterwards.
func (s *Synthesizer) Synthesize(ctx context.Context, req Request) error {
	if req.Variant != CaptureVariant {
		return fmt.Errorf("%w: variant %q cannot be extracted from video", ErrSynthesisFailed, req.Variant)
	}
	if req.Video == "" {
		return fmt.Errorf("%w: no video file for this event", ErrSynthesisFailed)
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	defer s.slots.Release(1)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// extract next to the target and rename, so no reader sees a half written still
	tmp := filepath.Join(filepath.Dir(req.OutPath), "."+uuid.NewString()+".synth.jpg")
	defer os.Remove(tmp)

	start := time.Now()
	extractErr := s.extractor.Extract(ctx, req.Video, req.FrameIndex, tmp)
	s.logger.Debug("frame extraction finished",
		zap.String("video", req.Video),
		zap.Uint64("frame", req.FrameIndex),
		zap.Duration("took", time.Since(start)),
		zap.Error(extractErr))

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrSynthesisFailed, ctxErr)
	}

	if info, err := os.Stat(tmp); err == nil && info.Size() > 0 {
		if err := os.Rename(tmp, req.OutPath); err != nil {
			s.logger.Error("failed to move synthesized frame into place", zap.String("path", req.OutPath), zap.Error(err))
		}
	}

	if _, err := os.Stat(req.OutPath); err != nil {
		if extractErr != nil {
			return fmt.Errorf("%w: %w", ErrSynthesisFailed, extractErr)
		}
		return fmt.Errorf("%w: no image at %s after extraction", ErrSynthesisFailed, req.OutPath)
	}

	if extractErr != nil {
		s.logger.Warn("extractor reported failure but produced the frame", zap.String("path", req.OutPath), zap.Error(extractErr))
	}

	return nil
}
