package parser

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mhrabovsky/titulky/internal/config"
	"github.com/mhrabovsky/titulky/internal/models"
)

// Captcha markers the site substitutes for real content when it suspects
// automated access.
var captchaMarkers = []string{
	"captcha/captcha.php",
	"g-recaptcha",
}

// HasCaptchaMarker reports whether the page body is a captcha challenge
// instead of the expected content.
func HasCaptchaMarker(content string) bool {
	lower := strings.ToLower(content)
	for _, marker := range captchaMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

var (
	detailLinkRe = regexp.MustCompile(`^(.+-(\d+))\.htm$`)
	czechDateRe  = regexp.MustCompile(`^\d{1,2}\.\s?\d{1,2}\.\s?\d{4}$`)
	yearRe       = regexp.MustCompile(`^(19|20)\d{2}$`)
	integerRe    = regexp.MustCompile(`^\d+$`)
	sizeRe       = regexp.MustCompile(`^\d+\.\d+$`)
	langCodeRe   = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

// languageCodes maps the site's two-letter flag codes to canonical ISO 639-2
// codes. Unknown two-letter codes pass through lowercased.
var languageCodes = map[string]string{
	"CZ": "cze",
	"SK": "slk",
	"EN": "eng",
}

// SearchParser extracts subtitle records from the site's full-text search
// listing. The markup is unstable, so extraction is tolerant and row-by-row:
// a row either yields a complete record or is dropped, and no single bad row
// aborts the scan.
type SearchParser struct{}

// NewSearchParser creates a new search listing parser.
func NewSearchParser() *SearchParser {
	return &SearchParser{}
}

// Parse walks every result row of a search page and returns the records that
// could be fully extracted.
func (p *SearchParser) Parse(body io.Reader) ([]models.SubtitleRecord, error) {
	logger := config.GetLogger()

	utf8Body, err := NewUTF8Reader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare search page for parsing: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(utf8Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}

	var records []models.SubtitleRecord
	doc.Find("tr").Each(func(i int, row *goquery.Selection) {
		record := p.extractRecordFromRow(row)
		if record == nil {
			return
		}
		records = append(records, *record)
		logger.Debug().
			Str("id", record.ID).
			Str("title", record.Title).
			Str("language", record.Language).
			Msg("Extracted subtitle row")
	})

	logger.Info().Int("records", len(records)).Msg("Parsed search listing")
	return records, nil
}

// extractRecordFromRow pulls one record out of a table row. The site has
// shipped both 8- and 9-cell layouts, so fields are inferred from cell shapes
// rather than positions: the detail link may sit in any cell, the language is
// whichever image carries a two-letter alt code, and numeric fields are told
// apart by their form (dates carry dots, years are four digits, sizes carry a
// decimal point). Returns nil when id, link slug, or language cannot be
// resolved.
func (p *SearchParser) extractRecordFromRow(row *goquery.Selection) *models.SubtitleRecord {
	record := &models.SubtitleRecord{}

	var detailAnchor *goquery.Selection
	row.Find("a[href]").EachWithBreak(func(i int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		id, linkFile, ok := parseDetailHref(href)
		if !ok {
			return true
		}
		record.ID = id
		record.LinkFile = linkFile
		detailAnchor = a
		return false
	})
	if detailAnchor == nil {
		return nil
	}

	record.Title = strings.TrimSpace(detailAnchor.Text())
	if version, ok := detailAnchor.Attr("title"); ok {
		record.Version = strings.TrimSpace(version)
	} else if version, ok := row.Find("[title]").Attr("title"); ok {
		record.Version = strings.TrimSpace(version)
	}

	row.Find("img[alt]").EachWithBreak(func(i int, img *goquery.Selection) bool {
		alt, _ := img.Attr("alt")
		if !langCodeRe.MatchString(alt) {
			return true
		}
		code := strings.ToUpper(alt)
		if canonical, ok := languageCodes[code]; ok {
			record.Language = canonical
		} else {
			record.Language = strings.ToLower(code)
		}
		return false
	})
	if record.Language == "" {
		return nil
	}

	row.Find("td").Each(func(i int, cell *goquery.Selection) {
		text := strings.TrimSpace(cell.Text())
		switch {
		case text == "" || czechDateRe.MatchString(text) || yearRe.MatchString(text):
			// dates and years carry no ranking signal
		case sizeRe.MatchString(text) && record.Size == 0:
			if size, err := strconv.ParseFloat(text, 64); err == nil {
				record.Size = size
			}
		case integerRe.MatchString(text) && record.DownloadCount == 0:
			if count, err := strconv.Atoi(text); err == nil {
				record.DownloadCount = count
			}
		}

		// The uploader is the only other linked cell.
		if a := cell.Find("a[href]"); a.Length() > 0 {
			href, _ := a.Attr("href")
			if _, _, isDetail := parseDetailHref(href); !isDetail {
				record.Uploader = strings.TrimSpace(a.First().Text())
			}
		}
	})

	return record
}

// parseDetailHref resolves a subtitle detail link of the form
// "/nazev-filmu-123456.htm" into its id and link slug. Both must be present
// for a row to be usable.
func parseDetailHref(href string) (id, linkFile string, ok bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", "", false
	}
	// Tolerate absolute links back to the site itself.
	if idx := strings.Index(href, ".com/"); idx != -1 {
		href = href[idx+len(".com"):]
	}
	href = strings.TrimPrefix(href, "/")

	matches := detailLinkRe.FindStringSubmatch(href)
	if len(matches) != 3 {
		return "", "", false
	}
	return matches[2], matches[1], true
}
