package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

// SearchRowOptions describes one row of a generated search results table.
// Fields left empty are omitted from the markup, which makes it easy to build
// malformed rows.
type SearchRowOptions struct {
	LinkFile      string // detail slug without the .htm suffix, e.g. "nazev-filmu-123456"
	Title         string
	Version       string // release string carried in the anchor's title attribute
	SeasonEpisode string
	Year          string
	DownloadCount string
	LangAlt       string // two-letter flag code, e.g. "CZ"
	Date          string
	Size          string
	Uploader      string
	OmitLink      bool // render the title cell without an anchor
	ExtraCell     bool // switch the row to the 9-cell layout
}

// SearchResultsHTML generates a search listing table in the structure
// titulky.com serves, alternating r0/r1 row classes.
func SearchResultsHTML(rows []SearchRowOptions) string {
	var sb strings.Builder
	sb.WriteString("<html><body>\n<table class=\"table-list\">\n")
	sb.WriteString("<tr><th>Název</th><th>Díl</th><th>Rok</th><th>Staženo</th><th>Jazyk</th><th>Datum</th><th>Velikost</th><th>Autor</th></tr>\n")

	for i, row := range rows {
		sb.WriteString(fmt.Sprintf("<tr class=\"r%d\">", i%2))

		if row.OmitLink {
			sb.WriteString(fmt.Sprintf("<td>%s</td>", row.Title))
		} else {
			titleAttr := ""
			if row.Version != "" {
				titleAttr = fmt.Sprintf(" title=%q", row.Version)
			}
			sb.WriteString(fmt.Sprintf("<td><a href=\"/%s.htm\"%s>%s</a></td>", row.LinkFile, titleAttr, row.Title))
		}

		sb.WriteString(fmt.Sprintf("<td>%s</td>", row.SeasonEpisode))
		if row.ExtraCell {
			sb.WriteString("<td>&nbsp;</td>")
		}
		sb.WriteString(fmt.Sprintf("<td>%s</td>", row.Year))
		sb.WriteString(fmt.Sprintf("<td>%s</td>", row.DownloadCount))

		if row.LangAlt != "" {
			sb.WriteString(fmt.Sprintf("<td><img alt=%q src=\"img/flags/%s.gif\"></td>", row.LangAlt, strings.ToLower(row.LangAlt)))
		} else {
			sb.WriteString("<td></td>")
		}

		sb.WriteString(fmt.Sprintf("<td>%s</td>", row.Date))
		sb.WriteString(fmt.Sprintf("<td>%s</td>", row.Size))

		if row.Uploader != "" {
			sb.WriteString(fmt.Sprintf("<td><a href=\"/user.php?id=%d\">%s</a></td>", i+1, row.Uploader))
		} else {
			sb.WriteString("<td></td>")
		}

		sb.WriteString("</tr>\n")
	}

	sb.WriteString("</table>\n</body></html>")
	return sb.String()
}

// DownloadPageHTML generates the download intermediary page with the given
// countdown and final link. When captcha is set, the page is the captcha
// challenge variant instead.
func DownloadPageHTML(countdownSeconds int, href string, captcha bool) string {
	if captcha {
		return `<html><body><form><img src="./captcha/captcha.php"><input name="captchacode"></form></body></html>`
	}
	return fmt.Sprintf(`<html><body>
<script>CountDown(%d);</script>
<a id="downlink" href=%q>stáhnout titulky</a>
</body></html>`, countdownSeconds, href)
}

// ZipEntry is one file to place in a generated archive.
type ZipEntry struct {
	Name    string
	Content []byte
}

// BuildZip assembles an in-memory zip archive from the entries in order.
func BuildZip(entries []ZipEntry) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, entry := range entries {
		f, err := w.Create(entry.Name)
		if err != nil {
			panic(err)
		}
		if _, err := f.Write(entry.Content); err != nil {
			panic(err)
		}
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
