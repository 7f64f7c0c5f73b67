package relay

import (
	"context"
	"time"
)

type Stage string

const (
	StageTranscription Stage = "transcription"
	StageCompletion    Stage = "completion"
	StageSynthesis     Stage = "synthesis"

	// StageChat is the text-only chat relay, timed like a pipeline stage.
	StageChat Stage = "chat"
)

// Transcriber turns an uploaded audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Completer produces the assistant reply for a user turn.
type Completer interface {
	Complete(ctx context.Context, userText string) (string, error)
}

// Synthesizer renders reply text as audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ChatRelay forwards a chat message and returns the upstream JSON body.
type ChatRelay interface {
	Relay(ctx context.Context, message string) ([]byte, error)
}

// StageObserver receives one call per executed stage.
type StageObserver interface {
	ObserveStage(stage Stage, d time.Duration, err error)
}
