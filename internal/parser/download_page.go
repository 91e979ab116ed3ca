package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mhrabovsky/titulky/internal/apperrors"
)

// countdownRe matches the JavaScript countdown the site embeds in the
// download intermediary page, e.g. "CountDown(12)". The value lives inside a
// script block, so it is pulled from the raw body rather than the DOM.
var countdownRe = regexp.MustCompile(`CountDown\((\d+)\)`)

// DownloadPage is the parsed download intermediary page: the server-dictated
// countdown before the link becomes valid, and the final download href.
type DownloadPage struct {
	Countdown time.Duration
	Link      string
}

// ParseDownloadPage extracts the countdown and the final download link from a
// non-captcha download page. A page that loaded fine but carries no link is a
// hard failure reported as *apperrors.ErrLinkNotFound.
func ParseDownloadPage(content, subtitleID string) (*DownloadPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse download page: %w", err)
	}

	href, ok := doc.Find("a#downlink").Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil, apperrors.NewLinkNotFoundError(subtitleID)
	}

	page := &DownloadPage{Link: strings.TrimSpace(href)}
	if matches := countdownRe.FindStringSubmatch(content); len(matches) > 1 {
		if seconds, err := strconv.Atoi(matches[1]); err == nil && seconds > 0 {
			page.Countdown = time.Duration(seconds) * time.Second
		}
	}
	return page, nil
}
