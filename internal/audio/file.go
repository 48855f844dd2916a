package audio

import (
	"context"
	"io"
	"time"

	log "log/slog"

	"voxchat/pkg/audioconv"
	"voxchat/pkg/pcm"
)

// FileSource stands in for the microphone: each Record call decodes the
// next file. After the last file it returns io.EOF.
type FileSource struct {
	paths []string
	next  int
}

func NewFileSource(paths []string) *FileSource {
	return &FileSource{paths: append([]string(nil), paths...)}
}

func (s *FileSource) Record(ctx context.Context, dur time.Duration, sampleRate int) (pcm.Buffer, error) {
	if s.next >= len(s.paths) {
		return pcm.Buffer{}, io.EOF
	}
	path := s.paths[s.next]
	s.next++

	log.Debug("Replaying file", "path", path)

	return audioconv.DecodeFile(ctx, path, audioconv.Options{
		SampleRate: sampleRate,
		MaxSamples: int(dur.Seconds() * float64(sampleRate)),
	})
}
