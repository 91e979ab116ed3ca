package release

import (
	"sort"

	"github.com/mhrabovsky/titulky/internal/models"
)

// Scoring weights per matching tag family. Families are evaluated
// independently: a subtitle can match on resolution and miss on source,
// accumulating a partial score.
const (
	resolutionMatchPoints = 20
	sourceMatchPoints     = 15
	codecMatchPoints      = 5

	// scoreClosenessThreshold is the score distance within which two records
	// are considered equivalent and the download count decides their order.
	scoreClosenessThreshold = 10
)

// sourceQuality is the static, monotonic quality ranking used when the video
// context carries no tags at all: the highest-quality token found on the
// record wins.
var sourceQuality = map[string]int{
	"bluray": 100,
	"remux":  90,
	"web-dl": 85,
	"webrip": 80,
	"hdtv":   75,
	"dvdrip": 70,
	"dvdscr": 65,
	"cam":    25,
	"ts":     20,

	"2160p": 60,
	"1080p": 50,
	"720p":  40,
	"480p":  30,
}

// MatchResult pairs a subtitle record with its compatibility score and the tag
// set extracted from the record's release text. Results are ephemeral and
// recomputed per request; only their ordering matters.
type MatchResult struct {
	Record models.SubtitleRecord
	Score  int
	Tags   TagSet
}

// Rank scores every record against the video context and returns them sorted
// by descending score. Records whose scores are within the closeness threshold
// are ordered by download count, most downloaded first.
func Rank(records []models.SubtitleRecord, video VideoContext) []MatchResult {
	results := make([]MatchResult, 0, len(records))
	for _, rec := range records {
		tags := ExtractTags(rec.Version + " " + rec.Title)

		var score int
		if video.HasTags() {
			score = compatibilityScore(video.Tags, tags)
		} else {
			score = staticQualityScore(tags)
		}

		results = append(results, MatchResult{Record: rec, Score: score, Tags: tags})
	}

	sort.SliceStable(results, func(i, j int) bool {
		diff := results[i].Score - results[j].Score
		if diff > scoreClosenessThreshold {
			return true
		}
		if diff < -scoreClosenessThreshold {
			return false
		}
		return results[i].Record.DownloadCount > results[j].Record.DownloadCount
	})

	return results
}

// compatibilityScore sums the per-family points for every tag present in both
// the video context and the subtitle. Audio and edition tags do not
// contribute.
func compatibilityScore(video, subtitle TagSet) int {
	score := 0
	for tag, family := range subtitle {
		if !video.Has(tag) {
			continue
		}
		switch family {
		case FamilyResolution:
			score += resolutionMatchPoints
		case FamilySource:
			score += sourceMatchPoints
		case FamilyCodec:
			score += codecMatchPoints
		}
	}
	return score
}

// staticQualityScore ranks a record by its own tags alone, a best-effort
// ordering in the total absence of playback information.
func staticQualityScore(subtitle TagSet) int {
	best := 0
	for tag := range subtitle {
		if q, ok := sourceQuality[tag]; ok && q > best {
			best = q
		}
	}
	return best
}
