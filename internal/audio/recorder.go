package audio

import (
	"context"
	"errors"
	"time"

	"github.com/gordonklaus/portaudio"

	"voxchat/pkg/pcm"
)

const frameSize = 1024

type Recorder struct{}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// Record captures exactly dur worth of mono PCM16 from the default input
// device. It blocks for the whole duration; ctx is only checked between
// device reads.
func (r *Recorder) Record(ctx context.Context, dur time.Duration, sampleRate int) (pcm.Buffer, error) {
	total := int(dur.Seconds() * float64(sampleRate))
	if total <= 0 {
		return pcm.Buffer{}, errors.New("non-positive recording length")
	}

	buf := make([]int16, frameSize)

	stream, err := portaudio.OpenDefaultStream(
		1, // in
		0, // no out
		float64(sampleRate),
		len(buf),
		buf,
	)
	if err != nil {
		return pcm.Buffer{}, err
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return pcm.Buffer{}, err
	}
	defer stream.Stop()

	out := make([]int16, 0, total+frameSize)
	for len(out) < total {
		if err := ctx.Err(); err != nil {
			return pcm.Buffer{}, err
		}
		if err := stream.Read(); err != nil {
			return pcm.Buffer{}, err
		}
		out = append(out, buf...)
	}

	return pcm.Buffer{
		Samples:    out[:total],
		SampleRate: sampleRate,
		Channels:   1,
	}, nil
}
