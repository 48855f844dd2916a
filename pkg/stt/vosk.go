package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	vosk "github.com/alphacep/vosk-api/go"

	"voxchat/pkg/pcm"
)

type Vosk struct {
	model *vosk.VoskModel
}

// NewVosk loads a vosk model directory, e.g. model/vosk-model-en-us-0.22.
func NewVosk(modelDir string) (*Vosk, error) {
	if modelDir == "" {
		return nil, errors.New("empty model path")
	}

	vosk.SetLogLevel(-1)

	m, err := vosk.NewModel(modelDir)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Vosk{model: m}, nil
}

func (v *Vosk) Name() string { return string(KindVosk) }

func (v *Vosk) Close() error {
	if v.model != nil {
		v.model.Free()
		v.model = nil
	}
	return nil
}

// Recognize feeds the whole buffer as a single waveform chunk and reads
// the final result.
func (v *Vosk) Recognize(ctx context.Context, buf pcm.Buffer) (string, error) {
	if v.model == nil {
		return "", errors.New("nil model")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rec, err := vosk.NewRecognizer(v.model, float64(buf.SampleRate))
	if err != nil {
		return "", fmt.Errorf("new recognizer: %w", err)
	}
	defer rec.Free()

	rec.AcceptWaveform(buf.Bytes())

	return resultText([]byte(rec.FinalResult())), nil
}

// resultText pulls "text" out of a recognizer result; anything
// unparsable yields "".
func resultText(raw []byte) string {
	var res struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return ""
	}
	return res.Text
}
