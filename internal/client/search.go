package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mhrabovsky/titulky/internal/apperrors"
	"github.com/mhrabovsky/titulky/internal/config"
	"github.com/mhrabovsky/titulky/internal/metrics"
	"github.com/mhrabovsky/titulky/internal/models"
	"github.com/mhrabovsky/titulky/internal/parser"
	"github.com/mhrabovsky/titulky/internal/release"
)

// Search tries each variant until one yields records, then ranks them against
// the video context. Later variants are progressively broader, so the first
// hit is the most specific one.
func (c *client) Search(ctx context.Context, variants []string, video release.VideoContext) ([]release.MatchResult, error) {
	logger := config.GetLogger()

	s := c.session()
	if s.CaptchaBlocked() {
		metrics.SearchesTotal.WithLabelValues("captcha_blocked").Inc()
		return nil, apperrors.NewCaptchaRequiredError("search")
	}

	if _, err := s.EnsureLoggedIn(ctx); err != nil {
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login before search failed: %w", err)
	}

	for _, variant := range variants {
		variant = strings.TrimSpace(variant)
		if variant == "" {
			continue
		}

		records, err := c.searchOnce(ctx, s, variant)
		if err != nil {
			if errors.Is(err, &apperrors.ErrCaptchaRequired{}) {
				// The site swapped the listing for a challenge. Report an
				// empty result; the sticky flag makes follow-up calls fail
				// fast instead of hammering the challenge page.
				logger.Warn().Str("query", variant).Msg("Search returned a captcha challenge")
				metrics.SearchesTotal.WithLabelValues("captcha").Inc()
				return []release.MatchResult{}, nil
			}
			metrics.SearchesTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if len(records) == 0 {
			logger.Debug().Str("query", variant).Msg("Search variant yielded no results")
			continue
		}

		logger.Info().Str("query", variant).Int("records", len(records)).Msg("Search variant matched")
		metrics.SearchesTotal.WithLabelValues("success").Inc()
		return release.Rank(records, video), nil
	}

	metrics.SearchesTotal.WithLabelValues("empty").Inc()
	return []release.MatchResult{}, nil
}

// sessionDoer is the slice of the session the request helpers need.
type sessionDoer interface {
	Do(req *http.Request) (*http.Response, error)
	FlagCaptcha()
}

// searchOnce issues a single full-text query and parses the listing.
func (c *client) searchOnce(ctx context.Context, s sessionDoer, query string) ([]models.SubtitleRecord, error) {
	searchURL, err := c.buildSearchURL(query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := s.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	if parser.HasCaptchaMarker(string(body)) {
		s.FlagCaptcha()
		return nil, apperrors.NewCaptchaRequiredError("search")
	}

	return c.searchParser.Parse(bytes.NewReader(body))
}

func (c *client) buildSearchURL(query string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	base.Path = strings.TrimRight(base.Path, "/") + "/index.php"
	values := base.Query()
	values.Set("Fulltext", query)
	values.Set("FindUser", "")
	base.RawQuery = values.Encode()
	return base.String(), nil
}
