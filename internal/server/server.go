package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/mhrabovsky/titulky/internal/client"
	"github.com/mhrabovsky/titulky/internal/config"
	"github.com/mhrabovsky/titulky/internal/metadata"
)

const requestTimeout = 90 * time.Second

// Server is the Stremio addon HTTP surface: the manifest, the subtitles
// resource, and the download endpoint the subtitle URLs point back to.
type Server struct {
	titulky  client.Client
	resolver metadata.Resolver
	playback metadata.PlaybackLookup
	logger   zerolog.Logger
}

// New creates the addon server. playback may be nil when Real-Debrid
// integration is disabled; per-request keys are still accepted but ignored.
func New(titulky client.Client, resolver metadata.Resolver, playback metadata.PlaybackLookup) *Server {
	return &Server{
		titulky:  titulky,
		resolver: resolver,
		playback: playback,
		logger:   config.GetLogger(),
	}
}

// Router assembles the chi router with logging and recovery middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("Request handled")
	}))

	r.Get("/", s.handleIndex)
	r.Get("/manifest.json", s.handleManifest)
	r.Get("/health", s.handleHealth)
	r.Get("/subtitles/{type}/{id}.json", s.handleSubtitles)
	r.Get("/subtitles/{type}/{id}/{rdKey}.json", s.handleSubtitles)
	r.Get("/download/{id}/{linkFile}.srt", s.handleDownload)

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        addonManifest.Name,
		"version":     addonManifest.Version,
		"description": addonManifest.Description,
		"status":      "OK",
		"endpoints": map[string]string{
			"manifest":          "/manifest.json",
			"subtitles":         "/subtitles/{type}/{id}.json",
			"subtitles_with_rd": "/subtitles/{type}/{id}/{rdKey}.json",
		},
	})
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, addonManifest)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   addonManifest.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
