package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxchat/pkg/pcm"
)

type fakePlayer struct {
	clips []pcm.Clip
	err   error
}

func (p *fakePlayer) Play(_ context.Context, clip pcm.Clip) error {
	p.clips = append(p.clips, clip)
	return p.err
}

type fakeDucker struct {
	calls []string
}

func (d *fakeDucker) Duck(context.Context) error {
	d.calls = append(d.calls, "duck")
	return nil
}

func (d *fakeDucker) Restore(context.Context) error {
	d.calls = append(d.calls, "restore")
	return nil
}

func writeWAV(t *testing.T, path string, rate, bits, channels int, data []int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, rate, bits, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bits,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

// fakeSynth writes an executable that records its args and stdin, copies
// fixture (if any) to the path following -f or -w, then exits with code.
func fakeSynth(t *testing.T, dir, fixture string, code int) string {
	t.Helper()

	copyCmd := ""
	if fixture != "" {
		copyCmd = fmt.Sprintf("cp %q \"$out\"", fixture)
	}

	script := fmt.Sprintf(`#!/bin/sh
echo "$@" > %q
out=""
while [ $# -gt 0 ]; do
	case "$1" in
		-f|-w) out="$2"; shift ;;
	esac
	shift
done
cat > %q
%s
exit %d
`, filepath.Join(dir, "args"), filepath.Join(dir, "stdin"), copyCmd, code)

	exe := filepath.Join(dir, "synth")
	require.NoError(t, os.WriteFile(exe, []byte(script), 0o755))
	return exe
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.TrimSpace(string(b))
}

func newSpeaker(t *testing.T, cfg Config, p Player) *Speaker {
	t.Helper()
	s, err := NewSpeaker(cfg, p)
	require.NoError(t, err)
	return s
}

func TestSpeakPlaysStereo16(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.wav")
	writeWAV(t, fixture, 22050, 16, 2, []int{100, -100, 200, -200, 300, -300})

	out := filepath.Join(dir, "tts_output.wav")
	player := &fakePlayer{}
	s := newSpeaker(t, Config{
		Executable: fakeSynth(t, dir, fixture, 0),
		Model:      "voice.onnx",
		CUDA:       true,
		Output:     out,
	}, player)

	require.NoError(t, s.Speak(context.Background(), "Hello there."))

	require.Len(t, player.clips, 1)
	clip := player.clips[0]
	assert.Equal(t, 2, clip.SampleWidth)
	assert.Equal(t, 2, clip.Channels)
	assert.Equal(t, 22050, clip.SampleRate)
	assert.Equal(t, []int16{100, -100, 200, -200, 300, -300}, clip.S16)
	assert.Equal(t, 3, clip.Frames())

	assert.Equal(t, "--model voice.onnx -f "+out+" --cuda", readFile(t, filepath.Join(dir, "args")))
	assert.Equal(t, "Hello there.", readFile(t, filepath.Join(dir, "stdin")))
	assert.NoFileExists(t, out)
}

func TestSpeakPlaysUnsigned8(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.wav")
	writeWAV(t, fixture, 8000, 8, 1, []int{0, 128, 255})

	out := filepath.Join(dir, "out.wav")
	player := &fakePlayer{}
	s := newSpeaker(t, Config{Executable: fakeSynth(t, dir, fixture, 0), Output: out}, player)

	require.NoError(t, s.Speak(context.Background(), "hi"))

	require.Len(t, player.clips, 1)
	assert.Equal(t, 1, player.clips[0].SampleWidth)
	assert.Equal(t, []uint8{0, 128, 255}, player.clips[0].U8)
	assert.Nil(t, player.clips[0].S16)
	assert.NoFileExists(t, out)
}

func TestSpeakUnsupportedWidth(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.wav")
	writeWAV(t, fixture, 16000, 32, 1, []int{1, 2, 3, 4})

	out := filepath.Join(dir, "out.wav")
	player := &fakePlayer{}
	s := newSpeaker(t, Config{Executable: fakeSynth(t, dir, fixture, 0), Output: out}, player)

	err := s.Speak(context.Background(), "hi")
	require.ErrorIs(t, err, ErrUnsupportedWidth)
	assert.Empty(t, player.clips)
	assert.NoFileExists(t, out)
}

func TestSpeakFailingExecutable(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.wav")
	writeWAV(t, fixture, 16000, 16, 1, []int{1, 2})

	// writes output and still fails: the partial file must go too
	out := filepath.Join(dir, "out.wav")
	player := &fakePlayer{}
	s := newSpeaker(t, Config{Executable: fakeSynth(t, dir, fixture, 3), Output: out}, player)

	err := s.Speak(context.Background(), "hi")
	require.ErrorIs(t, err, ErrSynthFailed)
	assert.Empty(t, player.clips)
	assert.NoFileExists(t, out)
}

func TestSpeakMissingExecutable(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]string{
		"absolute path": filepath.Join(dir, "does-not-exist"),
		"not on PATH":   "voxchat-no-such-synth",
	}

	for name, exe := range tests {
		t.Run(name, func(t *testing.T) {
			player := &fakePlayer{}
			s := newSpeaker(t, Config{Executable: exe, Output: filepath.Join(dir, "out.wav")}, player)

			err := s.Speak(context.Background(), "hi")
			require.ErrorIs(t, err, ErrSynthNotFound)
			assert.Empty(t, player.clips)
		})
	}
}

func TestSpeakNoOutput(t *testing.T) {
	dir := t.TempDir()
	player := &fakePlayer{}
	s := newSpeaker(t, Config{Executable: fakeSynth(t, dir, "", 0), Output: filepath.Join(dir, "out.wav")}, player)

	require.ErrorIs(t, s.Speak(context.Background(), "hi"), ErrNoOutput)
	assert.Empty(t, player.clips)
}

func TestSpeakPlaybackError(t *testing.T) {
	dir := t.TempDir()
	fixture := filepath.Join(dir, "fixture.wav")
	writeWAV(t, fixture, 16000, 16, 1, []int{1, 2})

	out := filepath.Join(dir, "out.wav")
	player := &fakePlayer{err: errors.New("device unplugged")}
	ducker := &fakeDucker{}
	s := newSpeaker(t, Config{Executable: fakeSynth(t, dir, fixture, 0), Output: out}, player).WithDucker(ducker)

	err := s.Speak(context.Background(), "hi")
	require.ErrorIs(t, err, ErrPlayback)
	assert.Contains(t, err.Error(), "device unplugged")
	assert.Equal(t, []string{"duck", "restore"}, ducker.calls)
	assert.NoFileExists(t, out)
}

func TestNewSpeakerPresets(t *testing.T) {
	s, err := NewSpeaker(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "piper", s.exe)
	assert.Equal(t, []string{"--model", DefaultPiperModel, "-f", DefaultOutput}, s.args)

	s, err = NewSpeaker(Config{Preset: PresetEspeak, Voice: "en-gb", Output: "x.wav"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "espeak-ng", s.exe)
	assert.Equal(t, []string{"--stdin", "-w", "x.wav", "-v", "en-gb"}, s.args)

	_, err = NewSpeaker(Config{Preset: "festival"}, nil)
	assert.Error(t, err)
}
