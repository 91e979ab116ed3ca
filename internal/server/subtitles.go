package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"

	"github.com/mhrabovsky/titulky/internal/apperrors"
	"github.com/mhrabovsky/titulky/internal/metadata"
	"github.com/mhrabovsky/titulky/internal/release"
)

// maxSubtitles caps how many ranked matches are returned to the player.
const maxSubtitles = 10

// streamMatchThreshold is the minimum share of the resolved title's words
// that must appear in the Real-Debrid filename before the stream is trusted
// as the video being played. Below it the stream likely belongs to another
// playback.
const streamMatchThreshold = 0.5

// videoIDRe splits a Stremio video id: "tt1234567" for movies,
// "tt1234567:1:2" for series episodes.
var videoIDRe = regexp.MustCompile(`^(tt\d+)(?::(\d+):(\d+))?$`)

// subtitleEntry is one item of the Stremio subtitles response.
type subtitleEntry struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Lang  string `json:"lang"`
	Title string `json:"title"`
}

type subtitlesResponse struct {
	Subtitles []subtitleEntry `json:"subtitles"`
}

// handleSubtitles resolves the video id to a title, optionally enriches the
// match context from the user's active Real-Debrid stream, and returns ranked
// subtitle candidates. Failures degrade to an empty list; Stremio treats any
// non-200 as addon breakage.
func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	imdbID, season, episode, ok := parseVideoID(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusOK, subtitlesResponse{Subtitles: []subtitleEntry{}})
		return
	}

	info, err := s.resolver.Resolve(ctx, imdbID)
	if err != nil {
		if !errors.Is(err, &apperrors.ErrNotFound{}) {
			s.logger.Error().Err(err).Str("imdbID", imdbID).Msg("Title resolution failed")
			sentry.CaptureException(err)
		}
		writeJSON(w, http.StatusOK, subtitlesResponse{Subtitles: []subtitleEntry{}})
		return
	}

	video := s.videoContext(ctx, chi.URLParam(r, "rdKey"), info.Title)
	variants := buildVariants(info, season, episode)

	results, err := s.titulky.Search(ctx, variants, video)
	if err != nil {
		if errors.Is(err, &apperrors.ErrCaptchaRequired{}) {
			s.logger.Warn().Str("imdbID", imdbID).Msg("Search blocked by captcha cooldown")
		} else {
			s.logger.Error().Err(err).Str("imdbID", imdbID).Msg("Subtitle search failed")
			sentry.CaptureException(err)
		}
		writeJSON(w, http.StatusOK, subtitlesResponse{Subtitles: []subtitleEntry{}})
		return
	}

	if len(results) > maxSubtitles {
		results = results[:maxSubtitles]
	}

	entries := make([]subtitleEntry, 0, len(results))
	for _, match := range results {
		entries = append(entries, subtitleEntry{
			ID:   match.Record.ID,
			URL:  s.downloadURL(r, match.Record.ID, match.Record.LinkFile),
			Lang: match.Record.Language,
			Title: fmt.Sprintf("%s [%d]",
				match.Record.DisplayLabel(), match.Score),
		})
	}
	writeJSON(w, http.StatusOK, subtitlesResponse{Subtitles: entries})
}

// handleDownload runs the download pipeline and serves the best extracted
// file as UTF-8 text.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	subtitleID := chi.URLParam(r, "id")
	linkFile := chi.URLParam(r, "linkFile")

	result, err := s.titulky.Download(r.Context(), subtitleID, linkFile)
	if err != nil {
		switch {
		case errors.Is(err, &apperrors.ErrCaptchaRequired{}):
			http.Error(w, "titulky.com requires solving a captcha; try again later", http.StatusTooManyRequests)
		case errors.Is(err, &apperrors.ErrNotFound{}), errors.Is(err, &apperrors.ErrLinkNotFound{}):
			http.Error(w, "subtitle not found", http.StatusNotFound)
		case errors.Is(err, &apperrors.ErrArchiveTooSmall{}), errors.Is(err, &apperrors.ErrNoSubtitleInArchive{}):
			s.logger.Warn().Err(err).Str("subtitleID", subtitleID).Msg("Unusable download payload")
			http.Error(w, "subtitle archive is unusable", http.StatusBadGateway)
		default:
			s.logger.Error().Err(err).Str("subtitleID", subtitleID).Msg("Subtitle download failed")
			sentry.CaptureException(err)
			http.Error(w, "download failed", http.StatusBadGateway)
		}
		return
	}

	best := result.Best()
	if best == nil {
		http.Error(w, "subtitle not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", best.Filename))
	_, _ = w.Write(best.Content)
}

// videoContext builds the release context for ranking. With a Real-Debrid key
// and an active stream that plausibly is this title, the stream's filename
// and size drive the match; otherwise ranking falls back to static quality.
// Lookup failures degrade to title-only matching rather than failing the
// request.
func (s *Server) videoContext(ctx context.Context, rdKey, title string) release.VideoContext {
	if s.playback == nil || len(rdKey) <= 10 {
		return release.VideoContext{}
	}

	stream, err := s.playback.ActiveStream(ctx, rdKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Real-Debrid lookup failed, matching on title only")
		return release.VideoContext{}
	}
	if stream == nil {
		return release.VideoContext{}
	}
	if release.WordOverlap(title, stream.Filename) < streamMatchThreshold {
		s.logger.Debug().
			Str("filename", stream.Filename).
			Str("title", title).
			Msg("Active stream does not match the requested title")
		return release.VideoContext{}
	}

	video := release.NewVideoContext(stream.Filename)
	video.EnrichFromSize(stream.Size)
	return video
}

func buildVariants(info *metadata.TitleInfo, season, episode string) []string {
	year := yearPrefix(info.Year)

	var variants []string
	if season != "" && episode != "" {
		variants = append(variants, fmt.Sprintf("%s S%sE%s", info.Title, pad2(season), pad2(episode)))
	}
	if year != "" {
		variants = append(variants, info.Title+" "+year)
	}
	variants = append(variants, info.Title)
	return variants
}

// yearPrefix extracts the leading year from OMDB's Year field, which is a
// range like "2008–2013" for series.
func yearPrefix(year string) string {
	if len(year) >= 4 {
		prefix := year[:4]
		for _, r := range prefix {
			if r < '0' || r > '9' {
				return ""
			}
		}
		return prefix
	}
	return ""
}

func pad2(n string) string {
	if len(n) == 1 {
		return "0" + n
	}
	return n
}

// parseVideoID splits a Stremio video id into its IMDB id and optional
// season/episode pair.
func parseVideoID(id string) (imdbID, season, episode string, ok bool) {
	matches := videoIDRe.FindStringSubmatch(strings.TrimSpace(id))
	if matches == nil {
		return "", "", "", false
	}
	return matches[1], matches[2], matches[3], true
}

// downloadURL points the player back at this addon's download endpoint,
// honoring reverse-proxy forwarding headers.
func (s *Server) downloadURL(r *http.Request, subtitleID, linkFile string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return fmt.Sprintf("%s://%s/download/%s/%s.srt",
		scheme, r.Host, url.PathEscape(subtitleID), url.PathEscape(linkFile))
}
