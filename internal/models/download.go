package models

// SubtitleFile is one subtitle extracted from a downloaded archive. Content is
// normalized to UTF-8 without a byte order mark.
type SubtitleFile struct {
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
}

// DownloadResult is the outcome of a completed download pipeline. Files are
// ordered by extension preference, best candidate first.
type DownloadResult struct {
	SubtitleID string         `json:"subtitleId"`
	Files      []SubtitleFile `json:"files"`
	// RawFallback marks results where the response bytes were not a
	// recognizable archive and are returned undecoded as a single file.
	RawFallback bool `json:"rawFallback"`
}

// Best returns the preferred subtitle file, or nil when the result is empty.
func (d *DownloadResult) Best() *SubtitleFile {
	if d == nil || len(d.Files) == 0 {
		return nil
	}
	return &d.Files[0]
}
