package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/mhrabovsky/titulky/internal/apperrors"
	"github.com/mhrabovsky/titulky/internal/testutil"
)

func TestParseDownloadPage(t *testing.T) {
	t.Parallel()

	content := testutil.DownloadPageHTML(12, "/download/593441/nazev-filmu.srt", false)
	page, err := ParseDownloadPage(content, "593441")
	if err != nil {
		t.Fatalf("ParseDownloadPage() returned error: %v", err)
	}
	if page.Link != "/download/593441/nazev-filmu.srt" {
		t.Errorf("Link = %q", page.Link)
	}
	if page.Countdown != 12*time.Second {
		t.Errorf("Countdown = %v, want 12s", page.Countdown)
	}
}

func TestParseDownloadPageNoCountdown(t *testing.T) {
	t.Parallel()

	content := `<html><body><a id="downlink" href="/download/1/x.srt">stáhnout</a></body></html>`
	page, err := ParseDownloadPage(content, "1")
	if err != nil {
		t.Fatalf("ParseDownloadPage() returned error: %v", err)
	}
	if page.Countdown != 0 {
		t.Errorf("Countdown = %v, want 0 when the page carries none", page.Countdown)
	}
}

func TestParseDownloadPageZeroCountdown(t *testing.T) {
	t.Parallel()

	content := testutil.DownloadPageHTML(0, "/download/2/y.srt", false)
	page, err := ParseDownloadPage(content, "2")
	if err != nil {
		t.Fatalf("ParseDownloadPage() returned error: %v", err)
	}
	if page.Countdown != 0 {
		t.Errorf("Countdown = %v, want 0", page.Countdown)
	}
}

func TestParseDownloadPageMissingLink(t *testing.T) {
	t.Parallel()

	content := `<html><body><script>CountDown(5)</script><p>Odkaz není k dispozici</p></body></html>`
	_, err := ParseDownloadPage(content, "593441")
	if err == nil {
		t.Fatal("ParseDownloadPage() succeeded on a page without a download link")
	}
	if !errors.Is(err, &apperrors.ErrLinkNotFound{}) {
		t.Errorf("error = %v, want ErrLinkNotFound", err)
	}
	var linkErr *apperrors.ErrLinkNotFound
	if errors.As(err, &linkErr) && linkErr.SubtitleID != "593441" {
		t.Errorf("SubtitleID = %q, want 593441", linkErr.SubtitleID)
	}
}
