package synth

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"go.uber.org/zap"
)

// FFmpegExtractor shells out to the ffmpeg binary.
type FFmpegExtractor struct {
	Path   string
	Logger *zap.Logger
}

func (f *FFmpegExtractor) Args(video string, frameIndex uint64, outPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-i", video,
		"-vf", "select=gte(n\\," + strconv.FormatUint(frameIndex, 10) + "),setpts=PTS-STARTPTS",
		"-frames:v", "1",
		"-update", "1",
		"-y",
		outPath,
	}
}

func (f *FFmpegExtractor) Extract(ctx context.Context, video string, frameIndex uint64, outPath string) error {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin, f.Args(video, frameIndex, outPath)...)
	f.Logger.Debug("running ffmpeg", zap.String("bin", bin), zap.Strings("args", cmd.Args[1:]))

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w (%s)", err, string(out))
	}
	return nil
}

// Available reports whether the ffmpeg binary can be found.
func (f *FFmpegExtractor) Available() bool {
	bin := f.Path
	if bin == "" {
		bin = "ffmpeg"
	}
	_, err := exec.LookPath(bin)
	return err == nil
}
