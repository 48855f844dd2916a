package notify

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/gen2brain/beeep"

	log "log/slog"
)

// Cue tells the user the microphone is open: an optional mp3 beep and an
// optional desktop notification.
type Cue struct {
	sound   string
	desktop bool

	once sync.Once
	buf  *beep.Buffer
	err  error

	notify func(title, message string) error
}

func NewCue(sound string, desktop bool) *Cue {
	beeep.AppName = "voxchat"
	return &Cue{
		sound:   sound,
		desktop: desktop,
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

// Listening is called right before each recording starts. Failures are
// logged, never fatal.
func (c *Cue) Listening() {
	if c.desktop {
		if err := c.notify("voxchat", "Listening..."); err != nil {
			log.Warn("Desktop notification failed", "err", err)
		}
	}

	if c.sound == "" {
		return
	}
	if err := c.beep(); err != nil {
		log.Warn("Cue sound failed", "path", c.sound, "err", err)
	}
}

// load decodes the mp3 once and initializes the speaker at its rate.
func (c *Cue) load() error {
	c.once.Do(func() {
		f, err := os.Open(c.sound)
		if err != nil {
			c.err = err
			return
		}

		streamer, format, err := mp3.Decode(f)
		if err != nil {
			f.Close()
			c.err = fmt.Errorf("decode mp3: %w", err)
			return
		}
		defer streamer.Close()

		buf := beep.NewBuffer(format)
		buf.Append(streamer)
		if buf.Len() == 0 {
			c.err = errors.New("empty cue sound")
			return
		}

		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			c.err = fmt.Errorf("speaker init: %w", err)
			return
		}
		c.buf = buf
	})
	return c.err
}

func (c *Cue) beep() error {
	if err := c.load(); err != nil {
		return err
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(c.buf.Streamer(0, c.buf.Len()), beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}
