package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mhrabovsky/titulky/internal/apperrors"
)

// loginSite simulates the landing page and login endpoint of titulky.com.
type loginSite struct {
	loginPosts   atomic.Int64
	landingGets  atomic.Int64
	badPassword  bool
	failAttempts int64 // number of initial POSTs answered without cookies
	postDelay    time.Duration
}

func (ls *loginSite) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /index.php", func(w http.ResponseWriter, r *http.Request) {
		n := ls.loginPosts.Add(1)
		if ls.postDelay > 0 {
			time.Sleep(ls.postDelay)
		}
		if ls.badPassword {
			_, _ = w.Write([]byte("<html><body>BadLogin</body></html>"))
			return
		}
		if n <= ls.failAttempts {
			// Simulated transient server glitch: no session cookies issued.
			_, _ = w.Write([]byte("<html><body>try again</body></html>"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "LogonId", Value: "abc123"})
		http.SetCookie(w, &http.Cookie{Name: "CRC", Value: "def456"})
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	})
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		ls.landingGets.Add(1)
		if c, err := r.Cookie("LogonId"); err == nil && c.Value != "" {
			_, _ = w.Write([]byte(`<html><body><a href="LogOut.php">odhlásit franta</a></body></html>`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "TRACK", Value: "t1"})
		_, _ = w.Write([]byte(`<html><body><form><input name="Login"><input name="Password"></form></body></html>`))
	})
	return httptest.NewServer(mux)
}

func newTestSession(t *testing.T, baseURL string, opts ...func(*Options)) *Session {
	t.Helper()
	o := Options{
		BaseURL:         baseURL,
		Username:        "franta",
		Password:        "tajneheslo",
		Freshness:       30 * time.Minute,
		CaptchaCooldown: 15 * time.Minute,
		RetryDelay:      10 * time.Millisecond,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(&http.Client{Timeout: 5 * time.Second}, o)
}

func TestEnsureLoggedIn(t *testing.T) {
	t.Parallel()

	site := &loginSite{}
	server := site.server()
	defer server.Close()

	sess := newTestSession(t, server.URL)

	ok, err := sess.EnsureLoggedIn(context.Background())
	if err != nil {
		t.Fatalf("EnsureLoggedIn failed: %v", err)
	}
	if !ok {
		t.Fatal("EnsureLoggedIn returned false")
	}
	if got := sess.State(); got != LoggedIn {
		t.Errorf("state = %v, want logged_in", got)
	}
	if got := site.loginPosts.Load(); got != 1 {
		t.Errorf("login POSTs = %d, want 1", got)
	}
}

func TestEnsureLoggedInSkipsWithinFreshnessWindow(t *testing.T) {
	t.Parallel()

	site := &loginSite{}
	server := site.server()
	defer server.Close()

	sess := newTestSession(t, server.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := sess.EnsureLoggedIn(ctx); err != nil {
			t.Fatalf("EnsureLoggedIn #%d failed: %v", i, err)
		}
	}
	if got := site.loginPosts.Load(); got != 1 {
		t.Errorf("login POSTs = %d, want 1 within the freshness window", got)
	}
}

func TestConcurrentEnsureLoggedInCollapses(t *testing.T) {
	t.Parallel()

	site := &loginSite{postDelay: 50 * time.Millisecond}
	server := site.server()
	defer server.Close()

	sess := newTestSession(t, server.URL)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sess.EnsureLoggedIn(ctx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if got := site.loginPosts.Load(); got != 1 {
		t.Errorf("login POSTs = %d, want exactly 1 for 5 concurrent callers", got)
	}
}

func TestBadCredentialsAreNotRetried(t *testing.T) {
	t.Parallel()

	site := &loginSite{badPassword: true}
	server := site.server()
	defer server.Close()

	sess := newTestSession(t, server.URL)

	ok, err := sess.EnsureLoggedIn(context.Background())
	if ok {
		t.Fatal("EnsureLoggedIn succeeded with bad credentials")
	}
	if !errors.Is(err, &apperrors.ErrBadCredentials{}) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if got := site.loginPosts.Load(); got != 1 {
		t.Errorf("login POSTs = %d, want 1 (bad credentials must not be retried)", got)
	}
	if got := sess.State(); got != LoggedOut {
		t.Errorf("state = %v, want logged_out", got)
	}
}

func TestTransientFailuresAreRetried(t *testing.T) {
	t.Parallel()

	site := &loginSite{failAttempts: 2}
	server := site.server()
	defer server.Close()

	sess := newTestSession(t, server.URL)

	ok, err := sess.EnsureLoggedIn(context.Background())
	if err != nil {
		t.Fatalf("EnsureLoggedIn failed after retries: %v", err)
	}
	if !ok {
		t.Fatal("EnsureLoggedIn returned false")
	}
	if got := site.loginPosts.Load(); got != 3 {
		t.Errorf("login POSTs = %d, want 3 (two transient failures, then success)", got)
	}
}

func TestNoCredentialsMeansNoLogin(t *testing.T) {
	t.Parallel()

	site := &loginSite{}
	server := site.server()
	defer server.Close()

	sess := newTestSession(t, server.URL, func(o *Options) { o.Username = "" })

	ok, err := sess.EnsureLoggedIn(context.Background())
	if err != nil {
		t.Fatalf("EnsureLoggedIn failed: %v", err)
	}
	if ok {
		t.Error("EnsureLoggedIn reported success without credentials")
	}
	if got := site.loginPosts.Load(); got != 0 {
		t.Errorf("login POSTs = %d, want 0", got)
	}
}

func TestCaptchaFlagClearsAfterCooldown(t *testing.T) {
	t.Parallel()

	sess := newTestSession(t, "http://unused.invalid", func(o *Options) {
		o.CaptchaCooldown = 40 * time.Millisecond
	})

	if sess.CaptchaBlocked() {
		t.Fatal("fresh session must not be captcha-blocked")
	}

	sess.FlagCaptcha()
	if !sess.CaptchaBlocked() {
		t.Fatal("session must be blocked right after the flag is set")
	}

	time.Sleep(60 * time.Millisecond)
	if sess.CaptchaBlocked() {
		t.Error("captcha flag must clear once the cooldown elapses")
	}
}

func TestCookieJarMergesNewestWins(t *testing.T) {
	t.Parallel()

	var gotCookie atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie.Store(r.Header.Get("Cookie"))
		http.SetCookie(w, &http.Cookie{Name: "CRC", Value: "second"})
	}))
	defer server.Close()

	sess := newTestSession(t, server.URL)
	sess.mergeCookies([]*http.Cookie{{Name: "CRC", Value: "first"}, {Name: "LogonId", Value: "id1"}})

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	resp, err := sess.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	resp.Body.Close()

	if got, want := gotCookie.Load().(string), "CRC=first; LogonId=id1"; got != want {
		t.Errorf("sent Cookie header %q, want %q", got, want)
	}

	if got, want := sess.cookieHeader(), "CRC=second; LogonId=id1"; got != want {
		t.Errorf("jar after merge = %q, want %q", got, want)
	}
}

func TestStoreSharesSessionsPerUser(t *testing.T) {
	t.Parallel()

	created := 0
	store := NewStore(10, time.Minute, func(username, password string) *Session {
		created++
		return New(http.DefaultClient, Options{BaseURL: "http://unused.invalid", Username: username, Password: password})
	})

	a := store.Get("franta", "heslo")
	b := store.Get("franta", "heslo")
	if a != b {
		t.Error("expected the same session instance for the same username")
	}
	if created != 1 {
		t.Errorf("factory called %d times, want 1", created)
	}

	c := store.Get("pepa", "heslo")
	if c == a {
		t.Error("different users must not share a session")
	}
	if store.Len() != 2 {
		t.Errorf("store length = %d, want 2", store.Len())
	}
}
