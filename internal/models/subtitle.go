package models

import "fmt"

// SubtitleRecord is one successfully parsed row of a titulky.com search
// listing. ID and LinkFile are both required: a row that cannot yield both is
// discarded by the parser, never partially emitted.
type SubtitleRecord struct {
	ID            string  `json:"id"`            // opaque site-assigned identifier
	LinkFile      string  `json:"linkFile"`      // slug used to build detail/download URLs
	Title         string  `json:"title"`         // display title of the entry
	Version       string  `json:"version"`       // free-text release string, often empty
	Language      string  `json:"language"`      // canonical ISO 639-2 code (cze, slk, ...)
	DownloadCount int     `json:"downloadCount"` // best-effort, 0 when unparseable
	Size          float64 `json:"size"`          // video size estimate in GB, 0 when absent
	Uploader      string  `json:"uploader"`      // best-effort, empty when absent
}

// DisplayLabel returns the human-facing label for the record: the title with
// the release string appended when one is known.
func (r SubtitleRecord) DisplayLabel() string {
	if r.Version == "" {
		return r.Title
	}
	return fmt.Sprintf("%s (%s)", r.Title, r.Version)
}

// DetailPath is the site-relative path of the subtitle's detail page, used as
// Referer when opening the download intermediary page.
func (r SubtitleRecord) DetailPath() string {
	return "/" + r.LinkFile + ".htm"
}
