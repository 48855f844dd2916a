package audio

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sinkInputsOut = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 65536 / 100% / 0.00 dB,   front-right: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: mono: 52429 /  80% / -5.81 dB
	Properties:
		application.name = "voxchat"
Sink Input #nope
	Volume: mono: 100%
Sink Input #43
	Volume: front-left: 19661 /  30% / -31.37 dB
	Properties:
		application.name = "mpv"
`

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputsOut)

	assert.Equal(t, []sinkInput{
		{ID: 41, Volume: 100, AppName: "Firefox"},
		{ID: 42, Volume: 80, AppName: "voxchat"},
		{ID: 43, Volume: 30, AppName: "mpv"},
	}, got)

	assert.Nil(t, parseSinkInputs("No sink inputs"))
}

type fakePactl struct {
	list string
	sets []string
	err  error
}

func (f *fakePactl) run(_ context.Context, args ...string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if args[0] == "list" {
		return []byte(f.list), nil
	}
	f.sets = append(f.sets, strings.Join(args[1:], " "))
	return nil, nil
}

func TestDuckerDuckAndRestore(t *testing.T) {
	fake := &fakePactl{list: sinkInputsOut}
	d := NewDucker([]string{"voxchat"}, 0.2, 0)
	d.pactl = fake.run

	require.NoError(t, d.Duck(context.Background()))
	assert.Equal(t, []string{"41 20%", "43 6%"}, fake.sets)

	// a second Duck while active is a no-op
	require.NoError(t, d.Duck(context.Background()))
	assert.Len(t, fake.sets, 2)

	fake.sets = nil
	fake.list = strings.ReplaceAll(strings.ReplaceAll(sinkInputsOut, "100%", "20%"), "30%", "6%")
	require.NoError(t, d.Restore(context.Background()))
	assert.Equal(t, []string{"41 100%", "43 30%"}, fake.sets)

	fake.sets = nil
	require.NoError(t, d.Restore(context.Background()))
	assert.Empty(t, fake.sets)
}

func TestDuckerListError(t *testing.T) {
	d := NewDucker(nil, 0.5, 0)
	d.pactl = (&fakePactl{err: errors.New("no pulse")}).run

	err := d.Duck(context.Background())
	assert.ErrorContains(t, err, "pactl list sink-inputs")
}
