package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// VoiceClient runs the transcription, completion and speech stages against an
// OpenAI-compatible API.
type VoiceClient struct {
	apiKey       string
	client       *openai.Client
	chatModel    string
	sttModel     string
	ttsModel     string
	ttsVoice     string
	systemPrompt string
}

func NewVoiceClient(cfg Config) *VoiceClient {
	oc := openai.DefaultConfig(strings.TrimSpace(cfg.APIKey))
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		oc.BaseURL = base
	}
	oc.HTTPClient = cfg.httpClient()
	return &VoiceClient{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		client:       openai.NewClientWithConfig(oc),
		chatModel:    cfg.ChatModel,
		sttModel:     cfg.STTModel,
		ttsModel:     cfg.TTSModel,
		ttsVoice:     cfg.TTSVoice,
		systemPrompt: cfg.SystemPrompt,
	}
}

// Transcribe uploads the audio file at path and returns its transcript.
func (c *VoiceClient) Transcribe(ctx context.Context, path string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	res, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.sttModel,
		FilePath: path,
	})
	if err != nil {
		return "", AsError(err)
	}
	return res.Text, nil
}

// Complete sends transcript as the user turn and returns the assistant reply.
func (c *VoiceClient) Complete(ctx context.Context, transcript string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	res, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	})
	if err != nil {
		return "", AsError(err)
	}
	if len(res.Choices) == 0 {
		return "", &Error{Status: http.StatusBadGateway, Message: "chat completion returned no choices"}
	}
	return res.Choices[0].Message.Content, nil
}

// Synthesize converts text to mp3 audio bytes.
func (c *VoiceClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	res, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.ttsModel),
		Input:          text,
		Voice:          openai.SpeechVoice(c.ttsVoice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, AsError(err)
	}
	defer res.Close()

	audio, err := io.ReadAll(io.LimitReader(res, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &Error{Message: fmt.Sprintf("read speech audio: %v", err)}
	}
	return audio, nil
}
