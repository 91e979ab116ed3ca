package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/sync/singleflight"

	"github.com/mhrabovsky/titulky/internal/apperrors"
	"github.com/mhrabovsky/titulky/internal/config"
	"github.com/mhrabovsky/titulky/internal/metrics"
)

// State is the login state of a session.
type State int

const (
	LoggedOut State = iota
	LoggingIn
	LoggedIn
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case LoggingIn:
		return "logging_in"
	case LoggedIn:
		return "logged_in"
	default:
		return "logged_out"
	}
}

// badLoginMarker appears in the login response body when the site rejects the
// credentials.
const badLoginMarker = "BadLogin"

// Options configures a Session.
type Options struct {
	BaseURL         string
	Username        string
	Password        string // held in memory only
	UserAgent       string
	Freshness       time.Duration // window after a successful login during which re-login is skipped
	CaptchaCooldown time.Duration // how long the sticky captcha flag blocks the session
	RetryDelay      time.Duration // fixed backoff between transient login attempts
}

// Session owns the cookie state and login state machine for one user identity.
// It is shared across concurrent requests for that user; concurrent
// EnsureLoggedIn calls collapse into a single network login. Session state is
// never persisted across process restarts.
type Session struct {
	httpClient *http.Client
	opts       Options

	mu        sync.Mutex
	state     State
	cookies   map[string]string
	lastLogin time.Time
	captchaAt time.Time // zero when the captcha flag is clear

	group singleflight.Group
}

// New creates a session for the given user identity. Zero-valued durations
// fall back to sensible defaults.
func New(httpClient *http.Client, opts Options) *Session {
	if opts.Freshness <= 0 {
		opts.Freshness = 30 * time.Minute
	}
	if opts.CaptchaCooldown <= 0 {
		opts.CaptchaCooldown = 15 * time.Minute
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = config.DefaultUserAgent
	}
	return &Session{
		httpClient: httpClient,
		opts:       opts,
		cookies:    make(map[string]string),
	}
}

// Username returns the identity this session belongs to.
func (s *Session) Username() string {
	return s.opts.Username
}

// State returns the current login state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Do issues a request carrying the session's cookie jar and merges every
// Set-Cookie from the response back into the jar, newest value per name wins.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", s.opts.UserAgent)
	if header := s.cookieHeader(); header != "" {
		req.Header.Set("Cookie", header)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	s.mergeCookies(resp.Cookies())
	return resp, nil
}

func (s *Session) cookieHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.cookies))
	for name := range s.cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+s.cookies[name])
	}
	return strings.Join(pairs, "; ")
}

func (s *Session) mergeCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cookies {
		s.cookies[c.Name] = c.Value
	}
}

// FlagCaptcha marks the session as captcha-gated. The flag stays sticky until
// the cooldown has elapsed since it was set.
func (s *Session) FlagCaptcha() {
	s.mu.Lock()
	s.captchaAt = time.Now()
	s.mu.Unlock()

	metrics.CaptchaDetectionsTotal.Inc()
	logger := config.GetLogger()
	logger.Warn().Str("user", s.opts.Username).Msg("Captcha detected, session flagged")
}

// CaptchaBlocked reports whether the session is currently captcha-gated. The
// flag clears automatically once the cooldown has elapsed since it was set,
// not since the session was last used.
func (s *Session) CaptchaBlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.captchaAt.IsZero() {
		return false
	}
	if time.Since(s.captchaAt) >= s.opts.CaptchaCooldown {
		s.captchaAt = time.Time{}
		return false
	}
	return true
}

// EnsureLoggedIn makes sure the session holds a fresh authenticated login.
// It returns false without error when no credentials are configured. Bad
// credentials surface as *apperrors.ErrBadCredentials and are never retried;
// transport failures are retried up to three attempts with a fixed backoff.
// Concurrent callers on the same session await a single in-flight attempt.
func (s *Session) EnsureLoggedIn(ctx context.Context) (bool, error) {
	if s.fresh() {
		return true, nil
	}

	v, err, _ := s.group.Do("login", func() (interface{}, error) {
		// A caller that queued behind a finished login can use its result.
		if s.fresh() {
			return true, nil
		}
		return s.login(ctx)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (s *Session) fresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == LoggedIn && time.Since(s.lastLogin) < s.opts.Freshness
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) login(ctx context.Context) (bool, error) {
	if s.opts.Username == "" {
		return false, nil
	}

	logger := config.GetLogger()
	logger.Info().Str("user", s.opts.Username).Msg("Logging in to titulky.com")
	s.setState(LoggingIn)

	policy := retrypolicy.Builder[bool]().
		AbortOnErrors(&apperrors.ErrBadCredentials{}).
		WithDelay(s.opts.RetryDelay).
		WithMaxAttempts(3).
		Build()

	ok, err := failsafe.NewExecutor[bool](policy).WithContext(ctx).Get(func() (bool, error) {
		return s.attemptLogin(ctx)
	})
	if err != nil || !ok {
		s.setState(LoggedOut)
		if err != nil {
			status := "error"
			if errors.Is(err, &apperrors.ErrBadCredentials{}) {
				status = "bad_credentials"
			}
			metrics.LoginsTotal.WithLabelValues(status).Inc()
			logger.Warn().Err(err).Str("user", s.opts.Username).Msg("Login failed")
		}
		return false, err
	}

	s.mu.Lock()
	s.state = LoggedIn
	s.lastLogin = time.Now()
	s.mu.Unlock()

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	logger.Info().Str("user", s.opts.Username).Msg("Login successful")
	return true, nil
}

// attemptLogin performs one full login round trip: seed the jar with the
// landing page's tracking cookies, post the credentials, then re-fetch the
// landing page to confirm the site considers the session logged in.
func (s *Session) attemptLogin(ctx context.Context) (bool, error) {
	if err := s.seedCookies(ctx); err != nil {
		return false, err
	}

	form := url.Values{
		"Login":      {s.opts.Username},
		"Password":   {s.opts.Password},
		"foreverlog": {"0"},
		"Detail2":    {""},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.opts.BaseURL+"/index.php", strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", s.opts.BaseURL)

	resp, err := s.Do(req)
	if err != nil {
		return false, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read login response: %w", err)
	}

	if strings.Contains(string(body), badLoginMarker) {
		return false, apperrors.NewBadCredentialsError(s.opts.Username)
	}
	if len(resp.Cookies()) == 0 && !s.hasCookies() {
		return false, fmt.Errorf("login response carried no session cookies")
	}

	return s.verifyLogin(ctx)
}

func (s *Session) seedCookies(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.BaseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create landing request: %w", err)
	}
	resp, err := s.Do(req)
	if err != nil {
		return fmt.Errorf("landing request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// verifyLogin re-fetches the landing page with the new cookies and checks for
// logged-in markers: a logout control or the username in the page, and the
// absence of the login form.
func (s *Session) verifyLogin(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.BaseURL+"/", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create verification request: %w", err)
	}
	resp, err := s.Do(req)
	if err != nil {
		return false, fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read verification response: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return false, fmt.Errorf("failed to parse verification page: %w", err)
	}

	hasLogout := doc.Find(`a[href*="LogOut"], a[href*="logout"]`).Length() > 0
	hasUsername := strings.Contains(string(body), s.opts.Username)
	hasLoginForm := doc.Find(`input[name="Login"]`).Length() > 0

	if (!hasLogout && !hasUsername) || hasLoginForm {
		return false, fmt.Errorf("landing page does not confirm the login")
	}
	return true, nil
}

func (s *Session) hasCookies() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cookies) > 0
}
