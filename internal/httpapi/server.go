package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/voicerelay/internal/config"
	"github.com/ent0n29/voicerelay/internal/observability"
	"github.com/ent0n29/voicerelay/internal/relay"
	"github.com/ent0n29/voicerelay/internal/upload"
)

const msgAPIKeyNotConfigured = "API key not configured"

// VoicePipeline runs the transcription → completion → synthesis chain.
type VoicePipeline interface {
	Run(ctx context.Context, audioPath string) (relay.Result, error)
}

type Server struct {
	cfg      config.Config
	chat     relay.ChatRelay
	voice    VoicePipeline
	uploads  *upload.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, chat relay.ChatRelay, voice VoicePipeline, uploads *upload.Store, metrics *observability.Metrics) *Server {
	if uploads == nil {
		uploads = upload.NewStore(cfg.UploadDir)
	}
	s := &Server{
		cfg:     cfg,
		chat:    chat,
		voice:   voice,
		uploads: uploads,
		metrics: metrics,
		static:  newStaticHandler(cfg.StaticDir),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware())
	r.Use(s.countRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Get("/chat/ws", s.handleChatWS)
		r.Post("/voice-chat", s.handleVoiceChat)
		r.Get("/perf/latency", s.handlePerfLatency)
	})

	r.Get("/", s.static.ServeHTTP)
	r.Handle("/*", s.static)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"api_key_configured": s.cfg.HasAPIKey(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status := "ready"
	if !s.cfg.HasAPIKey() {
		// Still serving: requests get a configuration error instead of a timeout.
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             status,
		"api_key_configured": s.cfg.HasAPIKey(),
	})
}

func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}
	if !s.cfg.AllowAnyOrigin {
		// An empty AllowedOrigins means allow-all to go-chi/cors.
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = s.originAllowed
	}
	return cors.Handler(opts)
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, status)
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients often omit Origin. Allow them.
		return true
	}
	return s.originAllowed(r, origin)
}

// originAllowed accepts any origin when configured to, otherwise the
// allow-list and the server's own host.
func (s *Server) originAllowed(r *http.Request, origin string) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if strings.EqualFold(strings.TrimRight(allowed, "/"), strings.TrimRight(origin, "/")) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

type errorResponse struct {
	Error string `json:"error"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
