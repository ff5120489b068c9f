package tmdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout  = 10 * time.Second
	requestInterval = 100 * time.Millisecond // spacing to stay under the API rate limit
)

// Client handles all interactions with the TMDB API
type Client struct {
	token       string
	baseURL     string
	httpClient  *http.Client
	lastRequest time.Time
}

// Episode represents episode information from TMDB. Episodes are transient
// value objects used during diffing; they are never persisted.
type Episode struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	SeasonNumber  int    `json:"season_number"`
	EpisodeNumber int    `json:"episode_number"`
	AirDate       string `json:"air_date"` // YYYY-MM-DD format
}

// SeriesDetails represents detailed TV series information
type SeriesDetails struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	PosterPath      string `json:"poster_path"`
	NumberOfSeasons int    `json:"number_of_seasons"`
}

// seasonDetail wraps the season endpoint response
type seasonDetail struct {
	Episodes []Episode `json:"episodes"`
}

// APIError represents an error returned by the TMDB API
type APIError struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TMDB API error (code %d): %s", e.StatusCode, e.StatusMessage)
}

// IsNotFound reports whether the error is a TMDB 404, meaning the requested
// resource (typically a season) does not exist yet.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// NewClient creates a new TMDB API client authenticated with a bearer token
func NewClient(baseURL, token string) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// SetBaseURL allows overriding the base URL (useful for testing)
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// GetSeriesDetails fetches detailed information for a TV series
// Calls TMDB /tv/{id}
func (c *Client) GetSeriesDetails(tmdbID int) (*SeriesDetails, error) {
	if tmdbID <= 0 {
		return nil, fmt.Errorf("invalid TMDB ID: %d", tmdbID)
	}

	c.rateLimit()

	endpoint := fmt.Sprintf("%s/tv/%d?language=en-US", c.baseURL, tmdbID)

	var details SeriesDetails
	if err := c.getJSON(endpoint, &details); err != nil {
		return nil, fmt.Errorf("failed to get series details: %w", err)
	}
	return &details, nil
}

// GetSeasonEpisodes fetches all episodes for a specific season
// Calls TMDB /tv/{id}/season/{season}
func (c *Client) GetSeasonEpisodes(tmdbID, seasonNumber int) ([]Episode, error) {
	if tmdbID <= 0 {
		return nil, fmt.Errorf("invalid TMDB ID: %d", tmdbID)
	}
	if seasonNumber < 0 {
		return nil, fmt.Errorf("invalid season number: %d", seasonNumber)
	}

	c.rateLimit()

	endpoint := fmt.Sprintf("%s/tv/%d/season/%d?language=en-US", c.baseURL, tmdbID, seasonNumber)

	var season seasonDetail
	if err := c.getJSON(endpoint, &season); err != nil {
		return nil, fmt.Errorf("failed to get season episodes: %w", err)
	}
	return season.Episodes, nil
}

// getJSON performs an authenticated GET and decodes the response body
func (c *Client) getJSON(endpoint string, out any) error {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponse(resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// checkResponse checks the HTTP response for errors
func (c *Client) checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode:    resp.StatusCode,
			StatusMessage: fmt.Sprintf("HTTP %d: failed to read error response", resp.StatusCode),
		}
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &APIError{
			StatusCode:    resp.StatusCode,
			StatusMessage: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	// TMDB bodies carry their own internal status codes; callers branch on
	// the HTTP status, so that is what the error reports.
	apiErr.StatusCode = resp.StatusCode
	if apiErr.StatusMessage == "" {
		apiErr.StatusMessage = fmt.Sprintf("HTTP %d error", resp.StatusCode)
	}

	return &apiErr
}

// rateLimit ensures requests are spaced out to avoid hitting API limits
func (c *Client) rateLimit() {
	elapsed := time.Since(c.lastRequest)
	if elapsed < requestInterval {
		time.Sleep(requestInterval - elapsed)
	}
	c.lastRequest = time.Now()
}
