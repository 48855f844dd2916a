package pcm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBufferBytesLittleEndian(t *testing.T) {
	b := Buffer{Samples: []int16{1, -1, 0x1234}, SampleRate: 16000, Channels: 1}

	assert.Equal(t, []byte{0x01, 0x00, 0xff, 0xff, 0x34, 0x12}, b.Bytes())
}

func TestBufferDuration(t *testing.T) {
	b := Buffer{Samples: make([]int16, 5*16000), SampleRate: 16000, Channels: 1}
	assert.Equal(t, 5*time.Second, b.Duration())
	assert.Equal(t, 80000, b.Frames())

	stereo := Buffer{Samples: make([]int16, 2*8000), SampleRate: 8000, Channels: 2}
	assert.Equal(t, time.Second, stereo.Duration())

	assert.Zero(t, Buffer{Samples: []int16{1}}.Duration())
}

func TestClipFrames(t *testing.T) {
	c := Clip{S16: make([]int16, 12), SampleWidth: 2, Channels: 2, SampleRate: 6}
	assert.Equal(t, 12, c.Len())
	assert.Equal(t, 6, c.Frames())
	assert.Equal(t, time.Second, c.Duration())

	u := Clip{U8: make([]uint8, 9), SampleWidth: 1, Channels: 3, SampleRate: 3}
	assert.Equal(t, 3, u.Frames())
}

func TestFloatConversions(t *testing.T) {
	f := Int16ToFloat32([]int16{0, 16384, -32768})
	assert.InDelta(t, 0.0, f[0], 1e-6)
	assert.InDelta(t, 0.5, f[1], 1e-6)
	assert.InDelta(t, -1.0, f[2], 1e-6)

	i := Float32ToInt16([]float32{0, 1, -1, 2, -2})
	assert.Equal(t, []int16{0, 32767, -32767, 32767, -32768}, i)
}
