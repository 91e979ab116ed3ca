package release

import (
	"sort"
	"strings"
)

// Family groups release tags by what they describe.
type Family int

const (
	FamilyResolution Family = iota
	FamilySource
	FamilyCodec
	FamilyAudio
	FamilyEdition
)

// String returns the string representation of the family.
func (f Family) String() string {
	switch f {
	case FamilyResolution:
		return "resolution"
	case FamilySource:
		return "source"
	case FamilyCodec:
		return "codec"
	case FamilyAudio:
		return "audio"
	case FamilyEdition:
		return "edition"
	default:
		return "unknown"
	}
}

// vocabEntry maps a canonical tag to the normalized forms that mark it
// present. Patterns are matched as substrings of the normalized input; short
// ambiguous patterns carry surrounding spaces so they only match whole words
// (the input is padded with spaces before matching).
type vocabEntry struct {
	canonical string
	family    Family
	patterns  []string
}

var vocabulary = []vocabEntry{
	{"2160p", FamilyResolution, []string{"2160p", " 4k ", " uhd "}},
	{"1080p", FamilyResolution, []string{"1080p"}},
	{"720p", FamilyResolution, []string{"720p"}},
	{"480p", FamilyResolution, []string{"480p"}},

	{"remux", FamilySource, []string{"remux"}},
	{"bluray", FamilySource, []string{"bluray", "blu ray", "bdrip", "bd rip", "brrip", "br rip"}},
	{"web-dl", FamilySource, []string{"web dl", "webdl"}},
	{"webrip", FamilySource, []string{"webrip", "web rip"}},
	{"hdtv", FamilySource, []string{"hdtv"}},
	{"dvdrip", FamilySource, []string{"dvdrip", "dvd rip"}},
	{"dvdscr", FamilySource, []string{"dvdscr"}},
	{"cam", FamilySource, []string{"camrip", "hdcam", "hd cam", " cam "}},
	{"ts", FamilySource, []string{"telesync", "hdts", "hd ts", " ts "}},

	{"x264", FamilyCodec, []string{"x264", "h264", "h 264", " avc "}},
	{"x265", FamilyCodec, []string{"x265"}},
	{"hevc", FamilyCodec, []string{"hevc", "h265", "h 265"}},
	{"xvid", FamilyCodec, []string{"xvid", "divx"}},

	{"atmos", FamilyAudio, []string{"atmos"}},
	{"truehd", FamilyAudio, []string{"truehd", "true hd"}},
	{"dts", FamilyAudio, []string{" dts "}},
	{"ac3", FamilyAudio, []string{" ac3 ", "dd5 1", "dd 5 1"}},
	{"aac", FamilyAudio, []string{" aac "}},
	{"flac", FamilyAudio, []string{" flac "}},

	{"extended", FamilyEdition, []string{"extended"}},
	{"directors-cut", FamilyEdition, []string{"directors cut", "director s cut"}},
	{"theatrical", FamilyEdition, []string{"theatrical"}},
	{"unrated", FamilyEdition, []string{"unrated"}},
	{"uncut", FamilyEdition, []string{"uncut"}},
	{"remastered", FamilyEdition, []string{"remastered"}},
	{"imax", FamilyEdition, []string{" imax "}},
}

// TagSet is a deduplicated, order-irrelevant set of canonical release tags.
// It is derived, never persisted; recompute it from any free-text string.
type TagSet map[string]Family

// Has reports whether the canonical tag is in the set.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Tags returns the canonical tags in lexical order.
func (s TagSet) Tags() []string {
	tags := make([]string, 0, len(s))
	for tag := range s {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Join returns the sorted tags joined with the separator.
func (s TagSet) Join(sep string) string {
	return strings.Join(s.Tags(), sep)
}

// Union adds every tag of other into the set.
func (s TagSet) Union(other TagSet) {
	for tag, family := range other {
		s[tag] = family
	}
}

// normalize lowercases the text and flattens the separator characters release
// names use (dots, underscores, hyphens) into spaces, then pads with spaces so
// word-bounded patterns can match at either end of the string.
func normalize(text string) string {
	lower := strings.ToLower(text)
	flat := strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-', ',', '[', ']', '(', ')':
			return ' '
		}
		return r
	}, lower)
	return " " + strings.Join(strings.Fields(flat), " ") + " "
}

// ExtractTags derives the set of canonical release tags present in the text.
// It is a pure function: the same input always yields the same set.
func ExtractTags(text string) TagSet {
	tags := make(TagSet)
	if text == "" {
		return tags
	}

	normalized := normalize(text)
	for _, entry := range vocabulary {
		for _, pattern := range entry.patterns {
			if strings.Contains(normalized, pattern) {
				tags[entry.canonical] = entry.family
				break
			}
		}
	}
	return tags
}
