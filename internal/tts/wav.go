package tts

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"

	"voxchat/pkg/pcm"
)

// DecodeWAV reads a PCM WAV file into a Clip. Only 8-bit (unsigned) and
// 16-bit (signed) samples are accepted.
func DecodeWAV(r io.ReadSeeker) (pcm.Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return pcm.Clip{}, fmt.Errorf("not a valid wav file")
	}

	width := int(dec.BitDepth) / 8
	if width != 1 && width != 2 {
		return pcm.Clip{}, fmt.Errorf("%w: %d bytes", ErrUnsupportedWidth, width)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return pcm.Clip{}, fmt.Errorf("read wav: %w", err)
	}

	clip := pcm.Clip{
		SampleWidth: width,
		Channels:    int(dec.NumChans),
		SampleRate:  int(dec.SampleRate),
	}

	if width == 2 {
		clip.S16 = make([]int16, len(buf.Data))
		for i, v := range buf.Data {
			clip.S16[i] = int16(v)
		}
	} else {
		clip.U8 = make([]uint8, len(buf.Data))
		for i, v := range buf.Data {
			clip.U8[i] = uint8(v)
		}
	}

	return clip, nil
}
