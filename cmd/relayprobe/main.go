package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/voicerelay/internal/audio"
	"github.com/ent0n29/voicerelay/internal/protocol"
)

type options struct {
	baseURL   string
	mode      string
	message   string
	audioPath string
	outPath   string
	turns     int
	timeout   time.Duration
	verbose   bool
}

type voiceChatResponse struct {
	Transcription string `json:"transcription"`
	Text          string `json:"text"`
	AudioBase64   string `json:"audioBase64"`
	AudioMime     string `json:"audioMime"`
}

type clip struct {
	name string
	data []byte
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "relayprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "relayprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var cfg options
	var timeoutMS int

	fs := flag.NewFlagSet("relayprobe", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:3000", "voice relay base URL")
	fs.StringVar(&cfg.mode, "mode", "chat", "probe mode: chat|voice|ws")
	fs.StringVar(&cfg.message, "message", "Reply in three words: are you there?", "chat message for chat and ws modes")
	fs.StringVar(&cfg.audioPath, "audio", "", "audio clip for voice mode (defaults to one second of generated silence)")
	fs.StringVar(&cfg.outPath, "out", "", "write the last synthesized reply to this file (voice mode)")
	fs.IntVar(&cfg.turns, "turns", 1, "number of requests to send")
	fs.IntVar(&timeoutMS, "timeout-ms", 60000, "per-request timeout in milliseconds")
	fs.BoolVar(&cfg.verbose, "verbose", true, "print each response")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	cfg.mode = strings.ToLower(strings.TrimSpace(cfg.mode))
	switch cfg.mode {
	case "chat", "voice", "ws":
	default:
		return options{}, fmt.Errorf("invalid mode %q (expected chat|voice|ws)", cfg.mode)
	}
	if cfg.mode != "voice" && strings.TrimSpace(cfg.message) == "" {
		return options{}, fmt.Errorf("message is required for %s mode", cfg.mode)
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if timeoutMS < 1000 {
		timeoutMS = 1000
	}
	cfg.timeout = time.Duration(timeoutMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx := context.Background()
	client := &http.Client{Timeout: cfg.timeout}

	var (
		latencies []time.Duration
		err       error
	)
	switch cfg.mode {
	case "chat":
		latencies, err = probeChat(ctx, client, cfg)
	case "voice":
		latencies, err = probeVoice(ctx, client, cfg)
	case "ws":
		latencies, err = probeWS(ctx, cfg)
	}
	if err != nil {
		return err
	}

	p50, p95 := percentiles(latencies)
	fmt.Printf("relayprobe: mode=%s turns=%d p50_ms=%d p95_ms=%d\n", cfg.mode, len(latencies), p50.Milliseconds(), p95.Milliseconds())
	return nil
}

func probeChat(ctx context.Context, client *http.Client, cfg options) ([]time.Duration, error) {
	payload, err := json.Marshal(map[string]string{"message": cfg.message})
	if err != nil {
		return nil, err
	}
	out := make([]time.Duration, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/api/chat", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		started := time.Now()
		body, err := do(client, req)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i+1, err)
		}
		out = append(out, time.Since(started))
		if cfg.verbose {
			fmt.Printf("relayprobe: turn %d/%d reply=%q\n", i+1, cfg.turns, replyContent(body))
		}
	}
	return out, nil
}

func probeVoice(ctx context.Context, client *http.Client, cfg options) ([]time.Duration, error) {
	c, err := loadClip(cfg.audioPath)
	if err != nil {
		return nil, fmt.Errorf("prepare audio: %w", err)
	}
	if cfg.verbose {
		if info := describeWAV(c.data); info != "" {
			fmt.Printf("relayprobe: clip %s %s\n", c.name, info)
		}
	}

	out := make([]time.Duration, 0, cfg.turns)
	var last voiceChatResponse
	for i := 0; i < cfg.turns; i++ {
		body, contentType, err := multipartAudio(c)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/api/voice-chat", body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)

		started := time.Now()
		raw, err := do(client, req)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i+1, err)
		}
		out = append(out, time.Since(started))
		if err := json.Unmarshal(raw, &last); err != nil {
			return nil, fmt.Errorf("turn %d decode: %w", i+1, err)
		}
		if cfg.verbose {
			fmt.Printf("relayprobe: turn %d/%d heard=%q reply=%q audio=%s\n", i+1, cfg.turns, last.Transcription, last.Text, last.AudioMime)
		}
	}

	if cfg.outPath != "" {
		speech, err := base64.StdEncoding.DecodeString(last.AudioBase64)
		if err != nil {
			return nil, fmt.Errorf("decode audioBase64: %w", err)
		}
		if err := os.WriteFile(cfg.outPath, speech, 0o644); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func probeWS(ctx context.Context, cfg options) ([]time.Duration, error) {
	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return nil, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	out := make([]time.Duration, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		id := fmt.Sprintf("probe-%d", i+1)
		started := time.Now()
		if err := conn.WriteJSON(protocol.ChatMessage{Type: protocol.TypeChatMessage, ID: id, Message: cfg.message}); err != nil {
			return nil, fmt.Errorf("turn %d send: %w", i+1, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(cfg.timeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("turn %d read: %w", i+1, err)
		}
		out = append(out, time.Since(started))

		var frame struct {
			Type    protocol.MessageType `json:"type"`
			Status  int                  `json:"status"`
			Payload json.RawMessage      `json:"payload"`
			Error   json.RawMessage      `json:"error"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("turn %d decode: %w", i+1, err)
		}
		if frame.Type == protocol.TypeErrorEvent {
			return nil, fmt.Errorf("turn %d: HTTP %d: %s", i+1, frame.Status, frame.Error)
		}
		if cfg.verbose {
			fmt.Printf("relayprobe: turn %d/%d reply=%q\n", i+1, cfg.turns, replyContent(frame.Payload))
		}
	}
	return out, nil
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 40<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func loadClip(path string) (clip, error) {
	if strings.TrimSpace(path) == "" {
		data, err := audio.SilenceWAV(time.Second, 16000)
		if err != nil {
			return clip{}, err
		}
		return clip{name: "silence.wav", data: data}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return clip{}, err
	}
	if len(data) == 0 {
		return clip{}, fmt.Errorf("%s is empty", path)
	}
	return clip{name: filepath.Base(path), data: data}, nil
}

func multipartAudio(c clip) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", c.name)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(c.data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func replyContent(body []byte) string {
	var res struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &res); err != nil || len(res.Choices) == 0 {
		return ""
	}
	return res.Choices[0].Message.Content
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/chat/ws"
	return u.String(), nil
}

func percentiles(samples []time.Duration) (p50, p95 time.Duration) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	at := func(q float64) time.Duration {
		idx := int(q*float64(len(sorted)) + 0.5)
		if idx < 1 {
			idx = 1
		}
		if idx > len(sorted) {
			idx = len(sorted)
		}
		return sorted[idx-1]
	}
	return at(0.50), at(0.95)
}

// describeWAV reports sample rate and duration for PCM16 WAV clips and
// returns "" for anything else.
func describeWAV(data []byte) string {
	pcm, sampleRate, err := decodeWAVPCM16(data)
	if err != nil {
		return ""
	}
	d := time.Duration(len(pcm)/2) * time.Second / time.Duration(sampleRate)
	return fmt.Sprintf("sample_rate=%dHz duration=%s", sampleRate, d.Round(time.Millisecond))
}

// decodeWAVPCM16 returns mono PCM16LE samples, downmixing multi-channel input.
func decodeWAVPCM16(data []byte) ([]byte, int, error) {
	if len(data) < 12 {
		return nil, 0, fmt.Errorf("wav too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("unsupported wav header")
	}

	var (
		haveFmt     bool
		audioFormat uint16
		channels    uint16
		sampleRate  int
		bitsPerSamp uint16
		pcmData     []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(data) {
			return nil, 0, fmt.Errorf("invalid wav chunk size")
		}
		chunk := data[off : off+size]
		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return nil, 0, fmt.Errorf("invalid wav fmt chunk")
			}
			audioFormat = binary.LittleEndian.Uint16(chunk[0:2])
			channels = binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			bitsPerSamp = binary.LittleEndian.Uint16(chunk[14:16])
			haveFmt = true
		case "data":
			pcmData = append(pcmData[:0], chunk...)
		}
		off += size
		if size%2 == 1 {
			off++
		}
	}
	if !haveFmt {
		return nil, 0, fmt.Errorf("wav fmt chunk missing")
	}
	if audioFormat != 1 || bitsPerSamp != 16 {
		return nil, 0, fmt.Errorf("unsupported wav format=%d bits=%d", audioFormat, bitsPerSamp)
	}
	if channels == 0 {
		return nil, 0, fmt.Errorf("invalid wav channels=0")
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels == 1 {
		return pcmData[:len(pcmData)&^1], sampleRate, nil
	}

	frameBytes := int(channels) * 2
	frameCount := len(pcmData) / frameBytes
	mono := make([]byte, frameCount*2)
	for i := 0; i < frameCount; i++ {
		base := i * frameBytes
		sum := 0
		for ch := 0; ch < int(channels); ch++ {
			sum += int(int16(binary.LittleEndian.Uint16(pcmData[base+ch*2:])))
		}
		binary.LittleEndian.PutUint16(mono[i*2:], uint16(int16(sum/int(channels))))
	}
	return mono, sampleRate, nil
}
