package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"

	"voxchat/pkg/pcm"
)

type Options struct {
	SampleRate int // target rate; 0 => 16000
	MaxSamples int // 0 = no limit
}

// decoded is what every container decoder hands back before the common
// downmix/resample/quantize tail.
type decoded struct {
	samples    []float32 // interleaved
	channels   int
	sampleRate int
}

// DecodeFile reads a wav/mp3/ogg file and returns it as mono PCM16 at
// opt.SampleRate.
func DecodeFile(_ context.Context, path string, opt Options) (pcm.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return pcm.Buffer{}, err
	}
	defer f.Close()

	d, err := decodeAny(f, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return pcm.Buffer{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	return finish(d, opt), nil
}

func decodeAny(f *os.File, ext string) (decoded, error) {
	switch ext {
	case ".wav":
		return decodeWAV(f)
	case ".mp3":
		return decodeMP3(f)
	case ".ogg", ".oga", ".opus":
		return decodeOgg(f)
	}

	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return decoded{}, err
	}

	switch string(magic) {
	case "RIFF":
		return decodeWAV(f)
	case "OggS":
		return decodeOgg(f)
	default:
		return decoded{}, fmt.Errorf("unsupported format %q (supported: wav/mp3/ogg-vorbis/ogg-opus)", ext)
	}
}

func finish(d decoded, opt Options) pcm.Buffer {
	rate := opt.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	x := downmixInterleaved(d.samples, d.channels)
	x = resampleLinear(x, d.sampleRate, rate)
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}

	return pcm.Buffer{
		Samples:    pcm.Float32ToInt16(x),
		SampleRate: rate,
		Channels:   1,
	}
}

func decodeWAV(r io.ReadSeeker) (decoded, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return decoded{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return decoded{}, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return decoded{}, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}

	d := decoded{
		samples:    intSliceToFloat32(pb.Data, bd),
		channels:   int(dec.NumChans),
		sampleRate: int(dec.SampleRate),
	}
	if d.channels <= 0 {
		d.channels = 1
	}
	if d.sampleRate <= 0 {
		d.sampleRate = 44100
	}
	return d, nil
}

func decodeMP3(r io.Reader) (decoded, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return decoded{}, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return decoded{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return decoded{}, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}

	// go-mp3 always emits interleaved stereo
	return decoded{samples: pcm.Int16ToFloat32(ints), channels: 2, sampleRate: sr}, nil
}

// decodeOgg tries Vorbis first and falls back to Opus.
func decodeOgg(f *os.File) (decoded, error) {
	d, verr := decodeOggVorbis(f)
	if verr == nil {
		return d, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return decoded{}, err
	}
	d, oerr := decodeOggOpus(f)
	if oerr == nil {
		return d, nil
	}
	return decoded{}, fmt.Errorf("cannot decode ogg as vorbis (%v) or opus (%w)", verr, oerr)
}

func decodeOggVorbis(r io.Reader) (decoded, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return decoded{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return decoded{}, errors.New("invalid ogg/vorbis stream")
	}
	return decoded{samples: samples, channels: format.Channels, sampleRate: format.SampleRate}, nil
}

func decodeOggOpus(rs io.ReadSeeker) (decoded, error) {
	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return decoded{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		out []float32
		buf = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf) // n = samples per channel
		if n > 0 {
			out = append(out, pcm.Int16ToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return decoded{}, err
		}
	}
	if len(out) == 0 {
		return decoded{}, errors.New("empty opus stream")
	}

	// libopusfile always decodes at 48 kHz
	return decoded{samples: out, channels: ch, sampleRate: 48000}, nil
}

// helpers

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	if bitDepth == 8 {
		// 8-bit wav is unsigned, centred on 128
		for i, v := range data {
			out[i] = float32(clamp(float64(v-128)/128.0, -1.0, 1.0))
		}
		return out
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
