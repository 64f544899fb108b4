package synth

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/asticode/go-astiav"

	"zm-image/pool"
)

// LibavExtractor decodes the video in process through the libav bindings.
type LibavExtractor struct {
	Quality int
}

func (x *LibavExtractor) Extract(ctx context.Context, video string, frameIndex uint64, outPath string) error {
	inputFormatContext := astiav.AllocFormatContext()
	if inputFormatContext == nil {
		return errors.New("failed to allocate format context")
	}
	defer inputFormatContext.Free()

	if err := inputFormatContext.OpenInput(video, nil, nil); err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer inputFormatContext.CloseInput()

	if err := inputFormatContext.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("failed to find stream info: %w", err)
	}

	videoStreamIndex := -1
	var videoStream *astiav.Stream
	for _, stream := range inputFormatContext.Streams() {
		if stream.CodecParameters().MediaType() == astiav.MediaTypeVideo {
			videoStreamIndex = stream.Index()
			videoStream = stream
			break
		}
	}
	if videoStreamIndex == -1 {
		return errors.New("no video stream found")
	}

	codec := astiav.FindDecoder(videoStream.CodecParameters().CodecID())
	if codec == nil {
		return errors.New("failed to find decoder")
	}

	codecContext := astiav.AllocCodecContext(codec)
	if codecContext == nil {
		return errors.New("failed to allocate codec context")
	}
	defer codecContext.Free()

	if err := codecContext.FromCodecParameters(videoStream.CodecParameters()); err != nil {
		return fmt.Errorf("failed to copy codec parameters: %w", err)
	}

	if err := codecContext.Open(codec, nil); err != nil {
		return fmt.Errorf("failed to open codec: %w", err)
	}

	packet := astiav.AllocPacket()
	defer packet.Free()

	frame := astiav.AllocFrame()
	defer frame.Free()

	var decoded uint64

	// receive drains the decoder; it returns a non-nil image once the wanted frame shows up
	receive := func() (image.Image, error) {
		for {
			if err := codecContext.ReceiveFrame(frame); err != nil {
				if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
					return nil, nil
				}
				return nil, fmt.Errorf("failed to receive frame: %w", err)
			}

			if decoded == frameIndex {
				img, err := frameToImage(frame)
				frame.Unref()
				return img, err
			}
			decoded++
			frame.Unref()
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := inputFormatContext.ReadFrame(packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}

		if packet.StreamIndex() != videoStreamIndex {
			packet.Unref()
			continue
		}

		err := codecContext.SendPacket(packet)
		packet.Unref()
		if err != nil {
			return fmt.Errorf("failed to send packet: %w", err)
		}

		img, err := receive()
		if err != nil {
			return err
		}
		if img != nil {
			return x.write(img, outPath)
		}
	}

	// flush frames still buffered in the decoder
	if err := codecContext.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("failed to flush decoder: %w", err)
	}
	img, err := receive()
	if err != nil {
		return err
	}
	if img != nil {
		return x.write(img, outPath)
	}

	return fmt.Errorf("video has %d frames, wanted index %d", decoded, frameIndex)
}

func (x *LibavExtractor) write(img image.Image, outPath string) error {
	quality := x.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	data, err := pool.EncodeJPEG(img, quality)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return os.WriteFile(outPath, data, 0o644)
}

func frameToImage(frame *astiav.Frame) (image.Image, error) {
	if frame.Width() <= 0 || frame.Height() <= 0 {
		return nil, fmt.Errorf("invalid frame dimensions: %dx%d", frame.Width(), frame.Height())
	}

	img, err := frame.Data().GuessImageFormat()
	if err != nil {
		return nil, fmt.Errorf("failed to guess image format: %w", err)
	}

	if err := frame.Data().ToImage(img); err != nil {
		return nil, fmt.Errorf("failed to convert frame to image: %w", err)
	}

	return img, nil
}
