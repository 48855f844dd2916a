// Package pcm holds the in-memory audio shapes passed between capture,
// recognition and playback.
package pcm

import (
	"encoding/binary"
	"time"
)

// Buffer is a block of signed 16-bit samples, interleaved when
// Channels > 1. Capture always produces mono.
type Buffer struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

func (b Buffer) channels() int {
	if b.Channels <= 0 {
		return 1
	}
	return b.Channels
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	return len(b.Samples) / b.channels()
}

func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Bytes encodes the samples as little-endian PCM16, the layout
// recognizers expect for a raw waveform chunk.
func (b Buffer) Bytes() []byte {
	out := make([]byte, 2*len(b.Samples))
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// Float32 returns the samples scaled into [-1, 1).
func (b Buffer) Float32() []float32 {
	return Int16ToFloat32(b.Samples)
}

// Clip is decoded playback audio. Exactly one of S16 or U8 is set,
// according to SampleWidth; data is interleaved frame by frame.
type Clip struct {
	S16         []int16
	U8          []uint8
	SampleWidth int
	Channels    int
	SampleRate  int
}

// Len returns the total number of samples across all channels.
func (c Clip) Len() int {
	if c.SampleWidth == 1 {
		return len(c.U8)
	}
	return len(c.S16)
}

// Frames returns Len()/Channels, i.e. the row count of the
// frames × channels layout.
func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return c.Len()
	}
	return c.Len() / c.Channels
}

func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

func Int16ToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// Float32ToInt16 quantizes samples in [-1, 1], clipping anything outside.
func Float32ToInt16(data []float32) []int16 {
	out := make([]int16, len(data))
	for i, v := range data {
		x := float64(v) * 32767.0
		switch {
		case x > 32767:
			x = 32767
		case x < -32768:
			x = -32768
		}
		out[i] = int16(x)
	}
	return out
}
