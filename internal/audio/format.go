package audio

import (
	"mime"
	"path/filepath"
	"strings"
)

// MIMEForFormat maps a short audio format name (as used by speech APIs) to a MIME type.
func MIMEForFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	switch {
	case strings.Contains(f, "mp3"), strings.Contains(f, "mpeg"):
		return "audio/mpeg"
	case strings.Contains(f, "wav"):
		return "audio/wav"
	case strings.Contains(f, "ogg"), strings.Contains(f, "opus"):
		return "audio/ogg"
	case strings.Contains(f, "webm"):
		return "audio/webm"
	case strings.Contains(f, "flac"):
		return "audio/flac"
	case strings.Contains(f, "m4a"), strings.Contains(f, "mp4"), strings.Contains(f, "aac"):
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

var extByMIME = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/webm":  ".webm",
	"video/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/flac":  ".flac",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
}

var knownExt = map[string]bool{
	".mp3": true, ".mp4": true, ".mpeg": true, ".mpga": true, ".m4a": true,
	".wav": true, ".webm": true, ".ogg": true, ".oga": true, ".flac": true,
}

// ExtensionFor picks the file extension an uploaded clip should be stored
// with. Transcription endpoints detect the container from the extension, so a
// known extension on the client filename wins, then the declared MIME type,
// then ".webm" (the MediaRecorder default in browsers).
func ExtensionFor(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if knownExt[ext] {
		return ext
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if e, ok := extByMIME[strings.ToLower(mt)]; ok {
			return e
		}
	}
	return ".webm"
}
