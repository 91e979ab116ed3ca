package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mhrabovsky/titulky/internal/apperrors"
	"github.com/mhrabovsky/titulky/internal/config"
)

// DefaultOMDBBaseURL is the public OMDB API endpoint.
const DefaultOMDBBaseURL = "https://www.omdbapi.com/"

// TitleInfo is the metadata needed to build search queries for an IMDB id.
type TitleInfo struct {
	Title string `json:"Title"`
	Year  string `json:"Year"`
	Type  string `json:"Type"` // "movie" or "series"
}

// Resolver turns an IMDB id into title metadata.
type Resolver interface {
	Resolve(ctx context.Context, imdbID string) (*TitleInfo, error)
}

// OMDBResolver resolves titles through the OMDB API.
type OMDBResolver struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewOMDBResolver creates a resolver against the public OMDB API. baseURL is
// overridable for tests; pass "" for the default.
func NewOMDBResolver(httpClient *http.Client, baseURL, apiKey string) *OMDBResolver {
	if baseURL == "" {
		baseURL = DefaultOMDBBaseURL
	}
	return &OMDBResolver{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// omdbResponse mirrors the fields of the OMDB payload the addon cares about.
type omdbResponse struct {
	TitleInfo
	Response string `json:"Response"`
	Error    string `json:"Error"`
}

// Resolve fetches title metadata for an IMDB id like "tt1234567".
func (r *OMDBResolver) Resolve(ctx context.Context, imdbID string) (*TitleInfo, error) {
	logger := config.GetLogger()

	if !strings.HasPrefix(imdbID, "tt") {
		imdbID = "tt" + imdbID
	}

	endpoint, err := url.Parse(r.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid OMDB base URL: %w", err)
	}
	values := endpoint.Query()
	values.Set("i", imdbID)
	values.Set("apikey", r.apiKey)
	endpoint.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create OMDB request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OMDB request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OMDB returned status %d", resp.StatusCode)
	}

	var payload omdbResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode OMDB response: %w", err)
	}

	if payload.Response != "True" || payload.Title == "" {
		logger.Debug().Str("imdbID", imdbID).Str("omdbError", payload.Error).Msg("OMDB has no record for id")
		return nil, apperrors.NewNotFoundError("title", imdbID)
	}

	logger.Info().
		Str("imdbID", imdbID).
		Str("title", payload.Title).
		Str("year", payload.Year).
		Msg("Resolved title from OMDB")
	return &payload.TitleInfo, nil
}
