package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mhrabovsky/titulky/internal/apperrors"
	"github.com/mhrabovsky/titulky/internal/cache"
	"github.com/mhrabovsky/titulky/internal/config"
	"github.com/mhrabovsky/titulky/internal/release"
	"github.com/mhrabovsky/titulky/internal/testutil"
)

// fakeSite is an httptest stand-in for titulky.com covering the search and
// download endpoints. All behavior toggles are plain fields set before the
// first request.
type fakeSite struct {
	server *httptest.Server

	searchHTML    string
	downloadHTML  string
	archive       []byte
	archiveStatus int

	requests atomic.Int64
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()

	site := &fakeSite{archiveStatus: http.StatusOK}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /index.php", func(w http.ResponseWriter, r *http.Request) {
		site.requests.Add(1)
		_, _ = w.Write([]byte(site.searchHTML))
	})
	mux.HandleFunc("GET /idown.php", func(w http.ResponseWriter, r *http.Request) {
		site.requests.Add(1)
		_, _ = w.Write([]byte(site.downloadHTML))
	})
	mux.HandleFunc("GET /download/", func(w http.ResponseWriter, r *http.Request) {
		site.requests.Add(1)
		if site.archiveStatus != http.StatusOK {
			w.WriteHeader(site.archiveStatus)
			return
		}
		_, _ = w.Write(site.archive)
	})

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

// newTestClient builds a client against the fake site. No credentials are
// configured, so no login traffic is generated.
func newTestClient(t *testing.T, site *fakeSite) Client {
	t.Helper()

	blobCache, err := cache.New("memory", cache.Options{Size: 10, TTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}

	cfg := &config.Config{
		TitulkyDomain: site.server.URL,
		ClientTimeout: "5s",
	}
	c := NewClient(cfg, blobCache)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func defaultSearchHTML() string {
	return testutil.SearchResultsHTML([]testutil.SearchRowOptions{
		{
			LinkFile:      "movie-name-var1-111",
			Title:         "Movie Name",
			Version:       "Movie.Name.2020.1080p.BluRay.x264-GROUP",
			DownloadCount: "900",
			LangAlt:       "CZ",
			Uploader:      "alice",
		},
		{
			LinkFile:      "movie-name-var2-222",
			Title:         "Movie Name",
			Version:       "Movie.Name.2020.720p.WEB-DL",
			DownloadCount: "2000",
			LangAlt:       "CZ",
			Uploader:      "bob",
		},
	})
}

func TestClientSearchRanksResults(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.searchHTML = defaultSearchHTML()
	c := newTestClient(t, site)

	video := release.NewVideoContext("Movie.Name.2020.1080p.BluRay.x264-GROUP")
	results, err := c.Search(context.Background(), []string{"Movie Name"}, video)
	if err != nil {
		t.Fatalf("Search() returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if results[0].Record.ID != "111" {
		t.Errorf("best match = %s, want 111 (exact release match)", results[0].Record.ID)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %d then %d", results[0].Score, results[1].Score)
	}
}

func TestClientSearchTriesVariantsInOrder(t *testing.T) {
	t.Parallel()

	// Only the second variant yields rows.
	var served atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		if r.URL.Query().Get("Fulltext") == "Movie Name 2020" {
			_, _ = w.Write([]byte(defaultSearchHTML()))
			return
		}
		_, _ = w.Write([]byte("<html><body><p>nenalezeno</p></body></html>"))
	}))
	t.Cleanup(server.Close)

	blobCache, err := cache.New("memory", cache.Options{Size: 10, TTL: time.Minute})
	if err != nil {
		t.Fatalf("failed to build cache: %v", err)
	}
	c := NewClient(&config.Config{TitulkyDomain: server.URL, ClientTimeout: "5s"}, blobCache)
	t.Cleanup(func() { _ = c.Close() })

	results, err := c.Search(context.Background(), []string{"Movie Name S01E01", "Movie Name 2020", "Movie Name"}, release.VideoContext{})
	if err != nil {
		t.Fatalf("Search() returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	if served.Load() != 2 {
		t.Errorf("server saw %d queries, want 2 (stop at first hit)", served.Load())
	}
}

func TestClientSearchCaptchaFlagsSession(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.searchHTML = `<html><body><img src="./captcha/captcha.php"></body></html>`
	c := newTestClient(t, site)

	results, err := c.Search(context.Background(), []string{"Movie"}, release.VideoContext{})
	if err != nil {
		t.Fatalf("Search() with captcha page returned error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Search() with captcha page returned %d results, want 0", len(results))
	}

	before := site.requests.Load()
	_, err = c.Search(context.Background(), []string{"Movie"}, release.VideoContext{})
	if !errors.Is(err, &apperrors.ErrCaptchaRequired{}) {
		t.Fatalf("second Search() error = %v, want ErrCaptchaRequired", err)
	}
	if site.requests.Load() != before {
		t.Error("flagged session still issued network requests")
	}
}

func TestClientDownloadPipeline(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.downloadHTML = testutil.DownloadPageHTML(0, "/download/111/titulky.zip", false)
	site.archive = testutil.BuildZip([]testutil.ZipEntry{
		{Name: "movie.sub", Content: []byte("{1}{50}Ahoj")},
		{Name: "movie.srt", Content: []byte("1\n00:00:01,000 --> 00:00:02,000\nAhoj\n")},
		{Name: "readme.nfo", Content: []byte("release notes")},
	})
	c := newTestClient(t, site)

	result, err := c.Download(context.Background(), "111", "movie-name-111")
	if err != nil {
		t.Fatalf("Download() returned error: %v", err)
	}
	if result.RawFallback {
		t.Error("RawFallback = true for a zip payload")
	}
	if len(result.Files) != 2 {
		t.Fatalf("Download() extracted %d files, want 2", len(result.Files))
	}
	if result.Files[0].Filename != "movie.srt" {
		t.Errorf("best file = %q, want movie.srt (.srt preferred over .sub)", result.Files[0].Filename)
	}
	if best := result.Best(); best == nil || best.Filename != "movie.srt" {
		t.Errorf("Best() = %v, want movie.srt", best)
	}
}

func TestClientDownloadServedFromCache(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.downloadHTML = testutil.DownloadPageHTML(0, "/download/111/titulky.zip", false)
	site.archive = testutil.BuildZip([]testutil.ZipEntry{
		{Name: "movie.srt", Content: []byte("1\n00:00:01,000 --> 00:00:02,000\nAhoj\n")},
	})
	c := newTestClient(t, site)

	first, err := c.Download(context.Background(), "111", "movie-name-111")
	if err != nil {
		t.Fatalf("first Download() returned error: %v", err)
	}

	before := site.requests.Load()
	second, err := c.Download(context.Background(), "111", "movie-name-111")
	if err != nil {
		t.Fatalf("second Download() returned error: %v", err)
	}
	if site.requests.Load() != before {
		t.Error("cached download still hit the network")
	}
	if second.Files[0].Filename != first.Files[0].Filename {
		t.Error("cached result differs from the original")
	}
}

func TestClientDownloadCaptcha(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.downloadHTML = testutil.DownloadPageHTML(0, "", true)
	c := newTestClient(t, site)

	_, err := c.Download(context.Background(), "111", "movie-name-111")
	if !errors.Is(err, &apperrors.ErrCaptchaRequired{}) {
		t.Fatalf("Download() error = %v, want ErrCaptchaRequired", err)
	}

	before := site.requests.Load()
	_, err = c.Download(context.Background(), "111", "movie-name-111")
	if !errors.Is(err, &apperrors.ErrCaptchaRequired{}) {
		t.Fatalf("second Download() error = %v, want ErrCaptchaRequired", err)
	}
	if site.requests.Load() != before {
		t.Error("flagged session still issued network requests")
	}
}

func TestClientDownloadCountdownHonorsContext(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.downloadHTML = testutil.DownloadPageHTML(5, "/download/111/titulky.zip", false)
	c := newTestClient(t, site)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.Download(ctx, "111", "movie-name-111")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Download() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Download() blocked %v past the context deadline", elapsed)
	}
}

func TestClientDownloadTooSmall(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.downloadHTML = testutil.DownloadPageHTML(0, "/download/111/titulky.zip", false)
	site.archive = []byte("err")
	c := newTestClient(t, site)

	_, err := c.Download(context.Background(), "111", "movie-name-111")
	if !errors.Is(err, &apperrors.ErrArchiveTooSmall{}) {
		t.Fatalf("Download() error = %v, want ErrArchiveTooSmall", err)
	}
}

func TestClientDownloadRawFallback(t *testing.T) {
	t.Parallel()

	raw := []byte("1\n00:00:01,000 --> 00:00:02,000\nTohle není archiv, ale rovnou titulky.\n")

	site := newFakeSite(t)
	site.downloadHTML = testutil.DownloadPageHTML(0, "/download/111/titulky.srt", false)
	site.archive = raw
	c := newTestClient(t, site)

	result, err := c.Download(context.Background(), "111", "movie-name-111")
	if err != nil {
		t.Fatalf("Download() returned error: %v", err)
	}
	if !result.RawFallback {
		t.Error("RawFallback = false for a non-archive payload")
	}
	if len(result.Files) != 1 || result.Files[0].Filename != "111.srt" {
		t.Fatalf("files = %+v, want a single 111.srt", result.Files)
	}
	if string(result.Files[0].Content) != string(raw) {
		t.Error("raw payload was altered")
	}
}

func TestClientDownloadNotFound(t *testing.T) {
	t.Parallel()

	site := newFakeSite(t)
	site.downloadHTML = testutil.DownloadPageHTML(0, "/download/111/titulky.zip", false)
	site.archiveStatus = http.StatusNotFound
	c := newTestClient(t, site)

	_, err := c.Download(context.Background(), "111", "movie-name-111")
	if !errors.Is(err, &apperrors.ErrNotFound{}) {
		t.Fatalf("Download() error = %v, want ErrNotFound", err)
	}
}
