// Package strava talks to the external activity source: paginated activity
// retrieval and the token-refresh exchange. Everything it returns crosses
// the normalization seam before the rest of the service sees it.
package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/challenge/internal/domain"
	"example.com/challenge/internal/observability"
)

const (
	defaultAPIBaseURL = "https://www.strava.com/api/v3"
	defaultTokenURL   = "https://www.strava.com/oauth/token"

	// defaultPageSize matches the upstream maximum per page.
	defaultPageSize = 100
	// defaultMaxPages is a deliberate MVP bound, not a protocol limit.
	// Windows with more than maxPages*pageSize activities silently
	// under-count; removing the ceiling changes rate-limit and latency
	// behaviour against the upstream source, so it stays documented here
	// rather than quietly lifted.
	defaultMaxPages = 10

	// Source identifies cached records originating from this client.
	Source = "strava"
)

// Config carries client tunables; zero values fall back to upstream defaults.
type Config struct {
	APIBaseURL   string
	TokenURL     string
	ClientID     string
	ClientSecret string
	PageSize     int
	MaxPages     int
	HTTPClient   *http.Client
}

// Client is a thin upstream API client.
type Client struct {
	apiBaseURL   string
	tokenURL     string
	clientID     string
	clientSecret string
	pageSize     int
	maxPages     int
	httpClient   *http.Client
}

// NewClient constructs a Client with sane defaults.
func NewClient(cfg Config) *Client {
	c := &Client{
		apiBaseURL:   cfg.APIBaseURL,
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		pageSize:     cfg.PageSize,
		maxPages:     cfg.MaxPages,
		httpClient:   cfg.HTTPClient,
	}
	if c.apiBaseURL == "" {
		c.apiBaseURL = defaultAPIBaseURL
	}
	if c.tokenURL == "" {
		c.tokenURL = defaultTokenURL
	}
	if c.pageSize <= 0 {
		c.pageSize = defaultPageSize
	}
	if c.maxPages <= 0 {
		c.maxPages = defaultMaxPages
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return c
}

// RawActivity mirrors the upstream activity payload fields the service cares
// about. The shape is owned by the upstream source; nothing outside this
// package should depend on it.
type RawActivity struct {
	ID                 int64    `json:"id"`
	Type               string   `json:"type"`
	Distance           float64  `json:"distance"`
	MovingTime         int64    `json:"moving_time"`
	TotalElevationGain float64  `json:"total_elevation_gain"`
	AverageCadence     *float64 `json:"average_cadence"`
	Calories           *float64 `json:"calories"`
	StartDate          string   `json:"start_date"`
	StartDateLocal     string   `json:"start_date_local"`
}

// FetchWindow retrieves and normalizes all activities in [after, before],
// paging until an empty page or the page ceiling. Implements
// domain.ActivityFetcher.
func (c *Client) FetchWindow(ctx context.Context, accessToken string, afterEpoch, beforeEpoch int64) ([]domain.Activity, error) {
	pages, err := c.fetchAllPages(ctx, accessToken, afterEpoch, beforeEpoch)
	if err != nil {
		return nil, err
	}

	activities := make([]domain.Activity, 0, len(pages))
	for _, raw := range pages {
		var act RawActivity
		if err := json.Unmarshal(raw, &act); err != nil {
			// A malformed record is normalized from the zero value rather
			// than failing the window.
			act = RawActivity{}
		}
		activities = append(activities, Normalize(act))
	}
	observability.RecordActivitiesFetched(len(activities))
	return activities, nil
}

// FetchRaw retrieves raw records for the activity cache, keeping the
// original payload alongside the extracted key fields.
func (c *Client) FetchRaw(ctx context.Context, accessToken string, afterEpoch, beforeEpoch int64) ([]domain.CachedActivity, error) {
	pages, err := c.fetchAllPages(ctx, accessToken, afterEpoch, beforeEpoch)
	if err != nil {
		return nil, err
	}

	cached := make([]domain.CachedActivity, 0, len(pages))
	for _, raw := range pages {
		var act RawActivity
		if err := json.Unmarshal(raw, &act); err != nil {
			continue
		}
		startDate, _ := time.Parse(time.RFC3339, act.StartDate)
		cached = append(cached, domain.CachedActivity{
			ExternalID:          strconv.FormatInt(act.ID, 10),
			Source:              Source,
			Type:                act.Type,
			StartDate:           startDate,
			DistanceMeters:      act.Distance,
			MovingTimeSeconds:   act.MovingTime,
			ElevationGainMeters: act.TotalElevationGain,
			Payload:             append([]byte(nil), raw...),
		})
	}
	return cached, nil
}

func (c *Client) fetchAllPages(ctx context.Context, accessToken string, afterEpoch, beforeEpoch int64) ([]json.RawMessage, error) {
	all := make([]json.RawMessage, 0, c.pageSize)
	for page := 1; page <= c.maxPages; page++ {
		batch, err := c.fetchPage(ctx, accessToken, afterEpoch, beforeEpoch, page)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
	}
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, accessToken string, afterEpoch, beforeEpoch int64, page int) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("after", strconv.FormatInt(afterEpoch, 10))
	params.Set("before", strconv.FormatInt(beforeEpoch, 10))
	params.Set("per_page", strconv.Itoa(c.pageSize))
	params.Set("page", strconv.Itoa(page))

	endpoint := fmt.Sprintf("%s/athlete/activities?%s", c.apiBaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Raw upstream bodies are not surfaced to callers.
		return nil, fmt.Errorf("%w: status %d", domain.ErrUpstream, resp.StatusCode)
	}

	var batch []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	return batch, nil
}

// TokenGrant is the outcome of a refresh exchange.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Refresh exchanges a refresh token for a fresh grant. The upstream source
// may omit refresh_token in the response; callers must retain their stored
// one in that case.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.requestToken(ctx, form)
}

// Exchange trades an authorization code for the initial grant.
func (c *Client) Exchange(ctx context.Context, code string) (TokenGrant, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	return c.requestToken(ctx, form)
}

func (c *Client) requestToken(ctx context.Context, form url.Values) (TokenGrant, error) {
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenGrant{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenGrant{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TokenGrant{}, fmt.Errorf("token endpoint rejected with status %d", resp.StatusCode)
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresAt    int64  `json:"expires_at"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return TokenGrant{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return TokenGrant{}, fmt.Errorf("token response missing access token")
	}

	expiresAt := time.Unix(result.ExpiresAt, 0)
	if result.ExpiresAt == 0 {
		expiresAt = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	}

	return TokenGrant{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
