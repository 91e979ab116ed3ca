package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mhrabovsky/titulky/internal/config"
)

// DefaultRealDebridBaseURL is the Real-Debrid REST API root.
const DefaultRealDebridBaseURL = "https://api.real-debrid.com/rest/1.0"

// StreamCandidate is the file a user is currently playing through
// Real-Debrid. Its filename carries the release tags the scorer matches
// against, and its size feeds the quality estimate when tags are missing.
type StreamCandidate struct {
	Filename string `json:"filename"`
	Size     int64  `json:"filesize"`
}

// PlaybackLookup reports what a user is currently streaming, if anything.
type PlaybackLookup interface {
	ActiveStream(ctx context.Context, apiKey string) (*StreamCandidate, error)
}

// RealDebridClient queries the Real-Debrid REST API with the user's own key.
// Keys arrive per-request, so a single client serves all users.
type RealDebridClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewRealDebridClient creates a Real-Debrid client. baseURL is overridable
// for tests; pass "" for the default.
func NewRealDebridClient(httpClient *http.Client, baseURL string) *RealDebridClient {
	if baseURL == "" {
		baseURL = DefaultRealDebridBaseURL
	}
	return &RealDebridClient{httpClient: httpClient, baseURL: baseURL}
}

// ActiveStream returns the first active stream on the account, or nil when
// nothing is playing. Lookup failures are returned as errors; callers treat
// the stream as optional context and degrade to title-only matching.
func (c *RealDebridClient) ActiveStream(ctx context.Context, apiKey string) (*StreamCandidate, error) {
	logger := config.GetLogger()

	endpoint := strings.TrimRight(c.baseURL, "/") + "/streaming/active"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Real-Debrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Real-Debrid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Real-Debrid returned status %d", resp.StatusCode)
	}

	var streams []StreamCandidate
	if err := json.NewDecoder(resp.Body).Decode(&streams); err != nil {
		return nil, fmt.Errorf("failed to decode Real-Debrid response: %w", err)
	}
	if len(streams) == 0 {
		logger.Debug().Msg("No active Real-Debrid stream")
		return nil, nil
	}

	logger.Info().
		Str("filename", streams[0].Filename).
		Int64("size", streams[0].Size).
		Msg("Active Real-Debrid stream found")
	return &streams[0], nil
}
