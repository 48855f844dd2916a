package audio

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"voxchat/pkg/pcm"
)

// Player writes decoded clips to the default output device.
type Player struct{}

func NewPlayer() *Player { return &Player{} }

func (p *Player) Init() error {
	return portaudio.Initialize()
}

func (p *Player) Close() {
	portaudio.Terminate()
}

// Play blocks until the whole clip has been handed to the device.
func (p *Player) Play(ctx context.Context, clip pcm.Clip) error {
	ch := clip.Channels
	if ch <= 0 {
		ch = 1
	}

	switch clip.SampleWidth {
	case 2:
		return playFrames(ctx, clip.S16, ch, clip.SampleRate, 0)
	case 1:
		return playFrames(ctx, clip.U8, ch, clip.SampleRate, 128)
	default:
		return fmt.Errorf("unsupported sample width %d", clip.SampleWidth)
	}
}

// playFrames streams interleaved samples in frameSize-frame chunks,
// padding the tail chunk with silence.
func playFrames[T int16 | uint8](ctx context.Context, data []T, channels, sampleRate int, silence T) error {
	buf := make([]T, frameSize*channels)

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), frameSize, buf)
	if err != nil {
		return err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return err
	}
	defer stream.Stop()

	for off := 0; off < len(data); off += len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy(buf, data[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = silence
		}
		if err := stream.Write(); err != nil {
			return err
		}
	}

	return nil
}
