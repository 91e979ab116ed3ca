package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/mhrabovsky/titulky/internal/cache"
	"github.com/mhrabovsky/titulky/internal/config"
	"github.com/mhrabovsky/titulky/internal/models"
	"github.com/mhrabovsky/titulky/internal/parser"
	"github.com/mhrabovsky/titulky/internal/release"
	"github.com/mhrabovsky/titulky/internal/session"
)

// Client is the facade over titulky.com: authenticated full-text search with
// release-aware ranking, and the countdown-gated download pipeline.
type Client interface {
	// Search tries each title variant in order and returns the ranked matches
	// of the first variant that yields results. A captcha challenge yields an
	// empty result, not an error; the session is flagged so later calls fail
	// fast with ErrCaptchaRequired until the cooldown passes.
	Search(ctx context.Context, variants []string, video release.VideoContext) ([]release.MatchResult, error)

	// Download runs the full download pipeline for one subtitle: the
	// intermediary page, the server-dictated countdown, the archive fetch and
	// extraction, and charset normalization. linkFile is the detail slug from
	// the matching search record.
	Download(ctx context.Context, subtitleID, linkFile string) (*models.DownloadResult, error)

	// Close releases the client's cache resources.
	Close() error
}

type client struct {
	httpClient      *http.Client
	baseURL         string
	sessions        *session.Store
	username        string
	password        string
	searchParser    *parser.SearchParser
	blobCache       cache.Cache
	minArchiveBytes int
}

// NewClient builds a client from config. The blob cache stores completed
// download results so repeated requests skip the countdown entirely; pass nil
// to disable caching.
func NewClient(cfg *config.Config, blobCache cache.Cache) Client {
	logger := config.GetLogger()

	timeout := config.ParseDurationOr(cfg.ClientTimeout, 30*time.Second)

	baseTransport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyConnectionString != "" {
		proxyURL, err := url.Parse(cfg.ProxyConnectionString)
		if err != nil {
			logger.Warn().Err(err).Str("proxy", cfg.ProxyConnectionString).Msg("Invalid proxy URL, continuing without proxy")
		} else {
			baseTransport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: newCompressionTransport(baseTransport),
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}

	sessionOpts := session.Options{
		BaseURL:         cfg.TitulkyDomain,
		UserAgent:       userAgent,
		Freshness:       config.ParseDurationOr(cfg.LoginFreshness, 30*time.Minute),
		CaptchaCooldown: config.ParseDurationOr(cfg.CaptchaCooldown, 15*time.Minute),
	}
	sessions := session.NewStore(cfg.Sessions.Size, config.ParseDurationOr(cfg.Sessions.TTL, 2*time.Hour),
		func(username, password string) *session.Session {
			opts := sessionOpts
			opts.Username = username
			opts.Password = password
			return session.New(httpClient, opts)
		})

	minArchiveBytes := cfg.MinArchiveBytes
	if minArchiveBytes <= 0 {
		minArchiveBytes = 50
	}

	return &client{
		httpClient:      httpClient,
		baseURL:         cfg.TitulkyDomain,
		sessions:        sessions,
		username:        cfg.Username,
		password:        cfg.Password,
		searchParser:    parser.NewSearchParser(),
		blobCache:       blobCache,
		minArchiveBytes: minArchiveBytes,
	}
}

// session returns the shared session for the configured identity. Anonymous
// use gets a session too; it carries cookies but never logs in.
func (c *client) session() *session.Session {
	return c.sessions.Get(c.username, c.password)
}

func (c *client) Close() error {
	if c.blobCache != nil {
		return c.blobCache.Close()
	}
	return nil
}
