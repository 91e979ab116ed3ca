package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Scraping pipeline metrics
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titulky_searches_total",
			Help: "Total number of search queries issued against the site.",
		},
		[]string{"status"},
	)

	SubtitleDownloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titulky_subtitle_downloads_total",
			Help: "Total number of subtitle downloads.",
		},
		[]string{"status"},
	)

	LoginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titulky_logins_total",
			Help: "Total number of login attempts against the site.",
		},
		[]string{"status"},
	)

	CaptchaDetectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "titulky_captcha_detections_total",
			Help: "Total number of captcha challenges detected.",
		},
	)
)

// Cache metrics. The "cache" label distinguishes cache instances
// (e.g. the subtitle blob cache from the metadata cache).
var (
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titulky_cache_hits_total",
			Help: "Total number of cache hits.",
		},
		[]string{"cache"},
	)

	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "titulky_cache_misses_total",
			Help: "Total number of cache misses.",
		},
		[]string{"cache"},
	)
)

func init() {
	prometheus.MustRegister(
		SearchesTotal,
		SubtitleDownloadsTotal,
		LoginsTotal,
		CaptchaDetectionsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
	)
}
