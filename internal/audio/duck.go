package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

const maxVolume = 150

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fadeStep struct {
	id, from, to int
}

// Ducker lowers the volume of every PulseAudio sink-input that does not
// belong to us while a reply is playing, then restores it.
type Ducker struct {
	mu        sync.Mutex
	active    bool
	selfNames []string    // application.name values left alone
	saved     map[int]int // sink-input id -> volume before Duck
	factor    float64
	minVolume int
	fade      time.Duration

	pactl func(ctx context.Context, args ...string) ([]byte, error)
}

func NewDucker(selfNames []string, factor float64, fade time.Duration) *Ducker {
	if factor < 0 {
		factor = 0
	}
	if factor > 1 {
		factor = 1
	}
	return &Ducker{
		selfNames: append([]string(nil), selfNames...),
		saved:     make(map[int]int),
		factor:    factor,
		minVolume: 5,
		fade:      fade,
		pactl: func(ctx context.Context, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, "pactl", args...).Output()
		},
	}
}

// Duck scales every foreign stream to volume*factor (not below minVolume).
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.saved = make(map[int]int)
	var steps []fadeStep
	for _, in := range inputs {
		to := int(math.Round(float64(in.Volume) * d.factor))
		if to < d.minVolume {
			to = d.minVolume
		}
		if to > in.Volume {
			to = in.Volume
		}
		d.saved[in.ID] = in.Volume
		steps = append(steps, fadeStep{id: in.ID, from: in.Volume, to: to})
	}

	if err := d.apply(ctx, steps); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Restore fades ducked streams back. Streams that appeared after Duck or
// have gone away are skipped.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	var steps []fadeStep
	for _, in := range inputs {
		orig, ok := d.saved[in.ID]
		if !ok {
			continue
		}
		steps = append(steps, fadeStep{id: in.ID, from: in.Volume, to: orig})
	}

	d.saved = make(map[int]int)
	d.active = false

	return d.apply(ctx, steps)
}

func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}

	var res []sinkInput
	for _, in := range parseSinkInputs(string(out)) {
		if !d.isSelf(in) {
			res = append(res, in)
		}
	}
	return res, nil
}

func (d *Ducker) isSelf(in sinkInput) bool {
	for _, name := range d.selfNames {
		if in.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) apply(ctx context.Context, steps []fadeStep) error {
	if len(steps) == 0 {
		return nil
	}

	const stepEvery = 10 * time.Millisecond

	n := int(d.fade / stepEvery)
	if n < 1 {
		n = 1
	}

	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(n)
		for _, s := range steps {
			v := int(math.Round(float64(s.from) + float64(s.to-s.from)*frac))
			if err := d.setVolume(ctx, s.id, v); err != nil {
				return err
			}
		}

		if i < n {
			time.Sleep(d.fade / time.Duration(n))
		}
	}
	return nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	percent = max(0, min(percent, maxVolume))
	_, err := d.pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent))
	if err != nil {
		return fmt.Errorf("set volume id=%d: %w", id, err)
	}
	return nil
}

// parseSinkInputs reads the human output of `pactl list sink-inputs`.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []sinkInput
	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && in.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) == 2 {
					in.Volume, _ = strconv.Atoi(m[1])
				}
			}

			if rest, ok := strings.CutPrefix(line, "application.name ="); ok && in.AppName == "" {
				in.AppName = strings.Trim(strings.TrimSpace(rest), `"`)
			}
		}

		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}
	return res
}
