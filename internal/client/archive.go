package client

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/nwaples/rardecode/v2"

	"github.com/mhrabovsky/titulky/internal/apperrors"
	"github.com/mhrabovsky/titulky/internal/models"
)

// extensionRank orders subtitle formats by how well downstream players cope
// with them. Lower is better.
var extensionRank = map[string]int{
	".srt": 0,
	".sub": 1,
	".ass": 2,
	".ssa": 3,
	".smi": 4,
	".txt": 5,
}

var (
	zipMagic = []byte("PK\x03\x04")
	rarMagic = []byte("Rar!")
)

// extractSubtitles unpacks the downloaded payload. The site serves zip when
// asked (zip=z) but old uploads surface as rar, and single-file downloads can
// come back as the bare subtitle; unrecognized payloads fall back to a single
// raw file rather than failing. An archive that opens but holds no subtitle
// file is an error.
func extractSubtitles(content []byte, subtitleID string) ([]models.SubtitleFile, bool, error) {
	switch {
	case bytes.HasPrefix(content, zipMagic):
		files, total, err := extractZip(content)
		if err != nil {
			return nil, false, err
		}
		if len(files) == 0 {
			return nil, false, apperrors.NewNoSubtitleInArchiveError(total)
		}
		sortByPreference(files)
		return files, false, nil

	case bytes.HasPrefix(content, rarMagic):
		files, total, err := extractRar(content)
		if err != nil {
			return nil, false, err
		}
		if len(files) == 0 {
			return nil, false, apperrors.NewNoSubtitleInArchiveError(total)
		}
		sortByPreference(files)
		return files, false, nil

	default:
		return []models.SubtitleFile{{
			Filename: subtitleID + ".srt",
			Content:  content,
		}}, true, nil
	}
}

func extractZip(content []byte) (files []models.SubtitleFile, total int, err error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open zip archive: %w", err)
	}

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		total++
		if !isSubtitleFile(entry.Name) {
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, total, fmt.Errorf("failed to open %q in zip: %w", entry.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, total, fmt.Errorf("failed to read %q from zip: %w", entry.Name, err)
		}
		files = append(files, models.SubtitleFile{
			Filename: path.Base(entry.Name),
			Content:  data,
		})
	}
	return files, total, nil
}

func extractRar(content []byte) (files []models.SubtitleFile, total int, err error) {
	reader, err := rardecode.NewReader(bytes.NewReader(content))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open rar archive: %w", err)
	}

	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, total, fmt.Errorf("failed to read rar archive: %w", err)
		}
		if header.IsDir {
			continue
		}
		total++
		if !isSubtitleFile(header.Name) {
			continue
		}

		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, total, fmt.Errorf("failed to read %q from rar: %w", header.Name, err)
		}
		files = append(files, models.SubtitleFile{
			Filename: path.Base(header.Name),
			Content:  data,
		})
	}
	return files, total, nil
}

func isSubtitleFile(name string) bool {
	_, ok := extensionRank[strings.ToLower(path.Ext(name))]
	return ok
}

// sortByPreference orders files best-first. The sort is stable so archive
// order breaks ties between files of the same format.
func sortByPreference(files []models.SubtitleFile) {
	sort.SliceStable(files, func(i, j int) bool {
		return extensionRank[strings.ToLower(path.Ext(files[i].Filename))] <
			extensionRank[strings.ToLower(path.Ext(files[j].Filename))]
	})
}
