package httpapi

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"

	"github.com/ent0n29/voicerelay/internal/policy"
	"github.com/ent0n29/voicerelay/internal/relay"
	"github.com/ent0n29/voicerelay/internal/reliability"
	"github.com/ent0n29/voicerelay/internal/upload"
	"github.com/ent0n29/voicerelay/internal/upstream"
)

const msgNoAudio = "No audio file provided"

// audioFields are the multipart field names accepted for the clip.
var audioFields = map[string]bool{"audio": true, "file": true}

var errUploadTooLarge = errors.New("audio upload too large")

func (s *Server) handleVoiceChat(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.HasAPIKey() {
		respondError(w, http.StatusInternalServerError, msgAPIKeyNotConfigured)
		return
	}
	if s.voice == nil {
		respondError(w, http.StatusNotImplemented, "voice pipeline not configured")
		return
	}

	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}
	file, err := s.saveAudioPart(r)
	switch {
	case errors.Is(err, relay.ErrNoAudio), errors.Is(err, http.ErrNotMultipart):
		respondError(w, http.StatusBadRequest, msgNoAudio)
		return
	case errors.Is(err, upload.ErrEmpty):
		respondError(w, http.StatusBadRequest, "uploaded audio file is empty")
		return
	case errors.Is(err, errUploadTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	defer file.Remove()
	s.metrics.ObserveUpload(file.Size)

	res, err := s.voice.Run(r.Context(), file.Path)
	if err != nil {
		s.respondVoiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// saveAudioPart streams the first audio field of the multipart body into the
// upload store. Other fields are drained and ignored.
func (s *Server) saveAudioPart(r *http.Request) (*upload.File, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, relay.ErrNoAudio
		}
		if err != nil {
			return nil, classifyBodyErr(err)
		}
		if !isAudioPart(part) {
			_ = part.Close()
			continue
		}
		file, err := s.uploads.Save(part, part.FileName(), part.Header.Get("Content-Type"))
		_ = part.Close()
		if err != nil {
			return nil, classifyBodyErr(err)
		}
		return file, nil
	}
}

func isAudioPart(part *multipart.Part) bool {
	return audioFields[part.FormName()] && part.FileName() != ""
}

func classifyBodyErr(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errUploadTooLarge
	}
	return err
}

func (s *Server) respondVoiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, upstream.ErrMissingAPIKey) {
		respondError(w, http.StatusInternalServerError, msgAPIKeyNotConfigured)
		return
	}
	if errors.Is(err, relay.ErrNoAudio) {
		respondError(w, http.StatusBadRequest, msgNoAudio)
		return
	}

	stage := "pipeline"
	cause := err
	var se *relay.StageError
	if errors.As(err, &se) {
		stage = string(se.Stage)
		cause = se.Err
	}
	ue := upstream.AsError(cause)
	detail, _ := policy.RedactForLog(ue.Error())
	log.Printf("voice chat failed: stage=%s class=%s retryable=%t err=%s", stage, reliability.Class(ue.Status), reliability.IsRetryableHTTPStatus(ue.Status), policy.Clip(detail, 400))
	respondRawJSON(w, ue.ResponseStatus(), ue.ResponseBody())
}
