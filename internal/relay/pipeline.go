package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/ent0n29/voicerelay/internal/audio"
)

var ErrNoAudio = errors.New("no audio file provided")

// Result is the voice-chat response payload.
type Result struct {
	Transcription string `json:"transcription"`
	Text          string `json:"text"`
	AudioBase64   string `json:"audioBase64"`
	AudioMime     string `json:"audioMime"`
}

// StageError reports which stage aborted the pipeline.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline runs transcription, completion and synthesis in order and stops at
// the first failure.
type Pipeline struct {
	stt      Transcriber
	brain    Completer
	tts      Synthesizer
	observer StageObserver
	now      func() time.Time
}

func NewPipeline(stt Transcriber, brain Completer, tts Synthesizer, observer StageObserver) *Pipeline {
	return &Pipeline{
		stt:      stt,
		brain:    brain,
		tts:      tts,
		observer: observer,
		now:      time.Now,
	}
}

func (p *Pipeline) Run(ctx context.Context, audioPath string) (Result, error) {
	if audioPath == "" {
		return Result{}, ErrNoAudio
	}

	var transcript string
	if err := p.stage(StageTranscription, func() (err error) {
		transcript, err = p.stt.Transcribe(ctx, audioPath)
		return err
	}); err != nil {
		return Result{}, err
	}

	var reply string
	if err := p.stage(StageCompletion, func() (err error) {
		reply, err = p.brain.Complete(ctx, transcript)
		return err
	}); err != nil {
		return Result{}, err
	}

	var speech []byte
	if err := p.stage(StageSynthesis, func() (err error) {
		speech, err = p.tts.Synthesize(ctx, reply)
		return err
	}); err != nil {
		return Result{}, err
	}

	return Result{
		Transcription: transcript,
		Text:          reply,
		AudioBase64:   base64.StdEncoding.EncodeToString(speech),
		AudioMime:     audio.MIMEForFormat("mp3"),
	}, nil
}

func (p *Pipeline) stage(stage Stage, fn func() error) error {
	started := p.now()
	err := fn()
	if p.observer != nil {
		p.observer.ObserveStage(stage, p.now().Sub(started), err)
	}
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}
