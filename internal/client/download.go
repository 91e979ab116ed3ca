package client

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mhrabovsky/titulky/internal/apperrors"
	"github.com/mhrabovsky/titulky/internal/config"
	"github.com/mhrabovsky/titulky/internal/metrics"
	"github.com/mhrabovsky/titulky/internal/models"
	"github.com/mhrabovsky/titulky/internal/parser"
)

// Download fetches one subtitle through the site's two-step flow: open the
// download intermediary page (Referer set to the detail page), honor the
// server-dictated countdown, then follow the final link. The extracted and
// normalized result is cached, so a repeat request for the same subtitle
// skips the countdown and the network entirely.
func (c *client) Download(ctx context.Context, subtitleID, linkFile string) (*models.DownloadResult, error) {
	logger := config.GetLogger()

	cacheKey := "sub:" + subtitleID
	if cached := c.cachedResult(cacheKey); cached != nil {
		logger.Debug().Str("subtitleID", subtitleID).Msg("Serving download from cache")
		metrics.SubtitleDownloadsTotal.WithLabelValues("cached").Inc()
		return cached, nil
	}

	s := c.session()
	if s.CaptchaBlocked() {
		metrics.SubtitleDownloadsTotal.WithLabelValues("captcha_blocked").Inc()
		return nil, apperrors.NewCaptchaRequiredError("download")
	}

	if _, err := s.EnsureLoggedIn(ctx); err != nil {
		metrics.SubtitleDownloadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login before download failed: %w", err)
	}

	result, err := c.download(ctx, s, subtitleID, linkFile)
	if err != nil {
		if errors.Is(err, &apperrors.ErrCaptchaRequired{}) {
			metrics.SubtitleDownloadsTotal.WithLabelValues("captcha").Inc()
		} else {
			metrics.SubtitleDownloadsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	c.storeResult(cacheKey, result)
	metrics.SubtitleDownloadsTotal.WithLabelValues("success").Inc()
	return result, nil
}

func (c *client) download(ctx context.Context, s sessionDoer, subtitleID, linkFile string) (*models.DownloadResult, error) {
	logger := config.GetLogger()

	page, err := c.openDownloadPage(ctx, s, subtitleID, linkFile)
	if err != nil {
		return nil, err
	}

	if page.Countdown > 0 {
		logger.Info().
			Str("subtitleID", subtitleID).
			Dur("countdown", page.Countdown).
			Msg("Waiting out download countdown")
		if err := sleepCtx(ctx, page.Countdown); err != nil {
			return nil, err
		}
	}

	content, err := c.fetchArchive(ctx, s, subtitleID, page.Link)
	if err != nil {
		return nil, err
	}

	if len(content) < c.minArchiveBytes {
		return nil, apperrors.NewArchiveTooSmallError(len(content), c.minArchiveBytes)
	}

	files, rawFallback, err := extractSubtitles(content, subtitleID)
	if err != nil {
		return nil, err
	}
	for i := range files {
		files[i].Content = parser.NormalizeSubtitleText(files[i].Content)
	}

	logger.Info().
		Str("subtitleID", subtitleID).
		Int("files", len(files)).
		Bool("rawFallback", rawFallback).
		Msg("Subtitle download complete")

	return &models.DownloadResult{
		SubtitleID:  subtitleID,
		Files:       files,
		RawFallback: rawFallback,
	}, nil
}

// openDownloadPage loads the intermediary page that carries the countdown and
// the final link. The site checks the Referer against the detail page.
func (c *client) openDownloadPage(ctx context.Context, s sessionDoer, subtitleID, linkFile string) (*parser.DownloadPage, error) {
	pageURL, err := c.buildDownloadPageURL(subtitleID)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download page request: %w", err)
	}
	req.Header.Set("Referer", strings.TrimRight(c.baseURL, "/")+"/"+linkFile+".htm")

	resp, err := s.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download page request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError("subtitle", subtitleID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download page: %w", err)
	}

	if parser.HasCaptchaMarker(string(body)) {
		s.FlagCaptcha()
		return nil, apperrors.NewCaptchaRequiredError("download")
	}

	return parser.ParseDownloadPage(string(body), subtitleID)
}

// fetchArchive follows the final download link. The link is usually relative;
// the Referer must point back at the intermediary page.
func (c *client) fetchArchive(ctx context.Context, s sessionDoer, subtitleID, link string) ([]byte, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	linkURL, err := url.Parse(link)
	if err != nil {
		return nil, fmt.Errorf("invalid download link %q: %w", link, err)
	}
	target := base.ResolveReference(linkURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive request: %w", err)
	}
	req.Header.Set("Referer", strings.TrimRight(c.baseURL, "/")+"/idown.php")

	resp, err := s.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewNotFoundError("subtitle", subtitleID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive download returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// buildDownloadPageURL builds the idown.php URL. R carries the current unix
// timestamp and zip=z asks the site to wrap loose files in an archive, both
// matching what the site's own download button sends.
func (c *client) buildDownloadPageURL(subtitleID string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	base.Path = strings.TrimRight(base.Path, "/") + "/idown.php"
	values := base.Query()
	values.Set("R", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("titulky", subtitleID)
	values.Set("histstamp", "")
	values.Set("zip", "z")
	base.RawQuery = values.Encode()
	return base.String(), nil
}

// sleepCtx blocks for d or until the context is done. The countdown is server
// policy, not network latency, so it deliberately sits outside the HTTP
// client timeout.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *client) cachedResult(key string) *models.DownloadResult {
	if c.blobCache == nil {
		return nil
	}
	blob, ok := c.blobCache.Get(key)
	if !ok {
		return nil
	}
	var result models.DownloadResult
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&result); err != nil {
		logger := config.GetLogger()
		logger.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return nil
	}
	return &result
}

func (c *client) storeResult(key string, result *models.DownloadResult) {
	if c.blobCache == nil {
		return
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(result); err != nil {
		logger := config.GetLogger()
		logger.Warn().Err(err).Str("key", key).Msg("Failed to encode download result for cache")
		return
	}
	c.blobCache.Set(key, buf.Bytes())
}
