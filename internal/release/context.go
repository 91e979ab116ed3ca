package release

import "strings"

// VideoContext describes the file currently being played: its raw filename
// (optional) and the release tags derived from it. It is the reference every
// candidate subtitle is scored against.
type VideoContext struct {
	Filename string
	Tags     TagSet
}

// NewVideoContext builds a context from the playing filename. An empty
// filename yields an empty tag set, which makes the scorer fall back to its
// static quality ranking.
func NewVideoContext(filename string) VideoContext {
	return VideoContext{
		Filename: filename,
		Tags:     ExtractTags(filename),
	}
}

// HasTags reports whether any tag could be extracted for this context.
func (v VideoContext) HasTags() bool {
	return len(v.Tags) > 0
}

// EnrichFrom unions the tags of a better-labeled filename for the same content
// into the context. Enrichment only ever adds tags, never removes them.
func (v *VideoContext) EnrichFrom(filename string) {
	if v.Tags == nil {
		v.Tags = make(TagSet)
	}
	v.Tags.Union(ExtractTags(filename))
}

// EnrichFromSize adds a source tag estimated from the video file size when the
// context carries no source tag of its own. Thresholds follow the sizes
// typical for each source tier.
func (v *VideoContext) EnrichFromSize(sizeBytes int64) {
	if sizeBytes <= 0 {
		return
	}
	for _, family := range v.Tags {
		if family == FamilySource {
			return
		}
	}
	if v.Tags == nil {
		v.Tags = make(TagSet)
	}

	gb := float64(sizeBytes) / (1 << 30)
	switch {
	case gb >= 50:
		v.Tags["remux"] = FamilySource
	case gb >= 25:
		v.Tags["bluray"] = FamilySource
	case gb >= 10:
		v.Tags["web-dl"] = FamilySource
	case gb >= 4:
		v.Tags["webrip"] = FamilySource
	case gb >= 2:
		v.Tags["hdtv"] = FamilySource
	default:
		v.Tags["dvdrip"] = FamilySource
	}
}

// WordOverlap returns the share of significant words of a (longer than two
// characters) that also appear in b, between 0 and 1. Used to match a
// torrent-history candidate filename against the playing filename or title.
func WordOverlap(a, b string) float64 {
	awords := significantWords(a)
	if len(awords) == 0 {
		return 0
	}
	bwords := make(map[string]struct{})
	for _, w := range significantWords(b) {
		bwords[w] = struct{}{}
	}

	matched := 0
	for _, w := range awords {
		if _, ok := bwords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(awords))
}

func significantWords(text string) []string {
	fields := strings.Fields(normalize(text))
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			words = append(words, f)
		}
	}
	return words
}
