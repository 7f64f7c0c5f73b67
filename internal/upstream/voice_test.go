package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newVoiceTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range handlers {
		mux.HandleFunc(path, h)
	}
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func writeAudioFixture(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestVoiceClientTranscribe(t *testing.T) {
	ts := newVoiceTestServer(t, map[string]http.HandlerFunc{
		"/v1/audio/transcriptions": func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("ParseMultipartForm() error = %v", err)
				return
			}
			if got := r.FormValue("model"); got != "whisper-1" {
				t.Errorf("model = %q, want whisper-1", got)
			}
			f, hdr, err := r.FormFile("file")
			if err != nil {
				t.Errorf("FormFile() error = %v", err)
				return
			}
			defer f.Close()
			if filepath.Ext(hdr.Filename) != ".webm" {
				t.Errorf("filename = %q, want .webm extension", hdr.Filename)
			}
			data, _ := io.ReadAll(f)
			if !bytes.Equal(data, []byte("RIFFfake")) {
				t.Errorf("uploaded bytes = %q", data)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"text":"hello there"}`)
		},
	})

	c := NewVoiceClient(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1", STTModel: "whisper-1"})
	got, err := c.Transcribe(context.Background(), writeAudioFixture(t, "clip.webm", []byte("RIFFfake")))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got != "hello there" {
		t.Fatalf("Transcribe() = %q, want %q", got, "hello there")
	}
}

func TestVoiceClientComplete(t *testing.T) {
	ts := newVoiceTestServer(t, map[string]http.HandlerFunc{
		"/v1/chat/completions": func(w http.ResponseWriter, r *http.Request) {
			var req chatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hello there" {
				t.Errorf("unexpected messages: %+v", req.Messages)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hi! How can I help?"},"finish_reason":"stop"}]}`)
		},
	})

	c := NewVoiceClient(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1", ChatModel: "gpt-4o", SystemPrompt: "sys"})
	got, err := c.Complete(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "Hi! How can I help?" {
		t.Fatalf("Complete() = %q", got)
	}
}

func TestVoiceClientCompleteNoChoices(t *testing.T) {
	ts := newVoiceTestServer(t, map[string]http.HandlerFunc{
		"/v1/chat/completions": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[]}`)
		},
	})

	c := NewVoiceClient(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1", ChatModel: "gpt-4o"})
	_, err := c.Complete(context.Background(), "hello")
	var ue *Error
	if !errors.As(err, &ue) || ue.Status != http.StatusBadGateway {
		t.Fatalf("Complete() error = %v, want 502 *Error", err)
	}
}

func TestVoiceClientSynthesize(t *testing.T) {
	ts := newVoiceTestServer(t, map[string]http.HandlerFunc{
		"/v1/audio/speech": func(w http.ResponseWriter, r *http.Request) {
			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if req["voice"] != "alloy" || req["input"] != "Hi!" || req["response_format"] != "mp3" {
				t.Errorf("unexpected speech request: %+v", req)
			}
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte{0x01, 0x02, 0x03})
		},
	})

	c := NewVoiceClient(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1", TTSModel: "tts-1", TTSVoice: "alloy"})
	got, err := c.Synthesize(context.Background(), "Hi!")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("Synthesize() = %v, want [1 2 3]", got)
	}
}

func TestVoiceClientSurfacesUpstreamStatus(t *testing.T) {
	ts := newVoiceTestServer(t, map[string]http.HandlerFunc{
		"/v1/audio/transcriptions": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
		},
	})

	c := NewVoiceClient(Config{APIKey: "sk-bad", BaseURL: ts.URL + "/v1", STTModel: "whisper-1"})
	_, err := c.Transcribe(context.Background(), writeAudioFixture(t, "clip.mp3", []byte("x")))
	var ue *Error
	if !errors.As(err, &ue) {
		t.Fatalf("Transcribe() error = %v, want *Error", err)
	}
	if ue.ResponseStatus() != http.StatusUnauthorized {
		t.Fatalf("ResponseStatus() = %d, want 401", ue.ResponseStatus())
	}
	if ue.Message != "Incorrect API key provided" {
		t.Fatalf("Message = %q", ue.Message)
	}
}

func TestVoiceClientWithoutKey(t *testing.T) {
	c := NewVoiceClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := c.Transcribe(context.Background(), "missing.wav"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Transcribe() error = %v, want ErrMissingAPIKey", err)
	}
	if _, err := c.Complete(context.Background(), "x"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Complete() error = %v, want ErrMissingAPIKey", err)
	}
	if _, err := c.Synthesize(context.Background(), "x"); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Synthesize() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestVoiceClientKeepsNonOpenAIErrorBodies(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantBody   string
	}{
		{"string error", http.StatusTooManyRequests, `{"error":"rate limited"}`, http.StatusTooManyRequests, `{"error":"rate limited"}`},
		{"plain text", http.StatusBadGateway, "upstream exploded", http.StatusBadGateway, `{"error":"upstream exploded"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newVoiceTestServer(t, map[string]http.HandlerFunc{
				"/v1/audio/transcriptions": func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tc.status)
					_, _ = io.WriteString(w, tc.body)
				},
			})
			c := NewVoiceClient(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1", STTModel: "whisper-1"})
			_, err := c.Transcribe(context.Background(), writeAudioFixture(t, "clip.webm", []byte("x")))
			var ue *Error
			if !errors.As(err, &ue) {
				t.Fatalf("Transcribe() error = %v, want *Error", err)
			}
			if ue.ResponseStatus() != tc.wantStatus {
				t.Fatalf("ResponseStatus() = %d, want %d", ue.ResponseStatus(), tc.wantStatus)
			}
			if got := string(ue.ResponseBody()); got != tc.wantBody {
				t.Fatalf("ResponseBody() = %s, want %s", got, tc.wantBody)
			}
		})
	}
}
