// Package engagement fetches social engagement for tracked tokens from an
// HTTP post-search service.
package engagement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/suspectuso/attention-tracker/internal/storage"
	"github.com/suspectuso/attention-tracker/internal/tracker"
)

var _ tracker.EngagementSource = (*Client)(nil)

var allowedSources = map[string]bool{
	"Twitter for iPhone":  true,
	"Twitter for Android": true,
	"Twitter Web App":     true,
}

var excludedUserKeywords = []string{"ai", "kol", "auto", "signal"}

var excludedTextKeywords = []string{
	"gmgn", "alert", "channel", "tg", "telegram", "🚨", "🔴", "#", "vip",
	"rug", "tools", "trending", "🚀",
}

// Client talks to the post-search service
type Client struct {
	baseURL    string
	httpClient *http.Client

	limiter *rate.Limiter
}

// NewClient creates a new engagement client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Every(500 * time.Millisecond), 1),
	}
}

// Post is one social post mentioning a token
type Post struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Views    int64  `json:"views"`
	Source   string `json:"source"`
	Verified bool   `json:"verified"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type searchResponse struct {
	Views *int64 `json:"views"`
	Posts []Post `json:"posts"`
}

func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(data))
	}

	return data, nil
}

// Fetch searches posts newer than the token's latest seen post and sums
// those that pass the noise filters.
func (c *Client) Fetch(ctx context.Context, tok *storage.Token) (storage.EngagementUpdate, error) {
	q := url.Values{}
	query := tok.Address
	if tok.Symbol != "" {
		query += " OR $" + tok.Symbol
	}
	q.Set("query", query)
	if tok.LatestPostID != "" {
		q.Set("since_id", tok.LatestPostID)
	}

	data, err := c.doRequest(ctx, "/posts/search?"+q.Encode())
	if err != nil {
		return storage.EngagementUpdate{}, err
	}

	var resp searchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return storage.EngagementUpdate{}, fmt.Errorf("unmarshal: %w", err)
	}

	update := storage.EngagementUpdate{
		Views:        resp.Views,
		LatestPostID: tok.LatestPostID,
	}
	for _, p := range resp.Posts {
		if !Counts(p) {
			continue
		}
		update.NewPosts++
		update.NewPostViews += p.Views
		if newerID(p.ID, update.LatestPostID) {
			update.LatestPostID = p.ID
		}
	}

	return update, nil
}

// Counts reports whether a post is organic enough to count as engagement.
func Counts(p Post) bool {
	if !p.Verified || !allowedSources[p.Source] {
		return false
	}

	text := strings.ToLower(p.Text)
	for _, kw := range excludedTextKeywords {
		if strings.Contains(text, kw) {
			return false
		}
	}

	username := strings.ToLower(p.Username)
	name := strings.ToLower(p.Name)
	for _, kw := range excludedUserKeywords {
		if strings.Contains(username, kw) || strings.Contains(name, kw) {
			return false
		}
	}

	return true
}

// newerID compares numeric post ids. Non-numeric ids never win.
func newerID(id, current string) bool {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return false
	}
	if current == "" {
		return true
	}
	cur, err := strconv.ParseUint(current, 10, 64)
	if err != nil {
		return true
	}
	return n > cur
}
