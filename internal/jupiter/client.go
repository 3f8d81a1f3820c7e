// Package jupiter is a client for the Jupiter token search API, used for
// token metadata and market caps.
package jupiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/suspectuso/attention-tracker/internal/address"
	"github.com/suspectuso/attention-tracker/internal/tracker"
)

const DefaultBaseURL = "https://lite-api.jup.ag"

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrUnsupportedChain = errors.New("jupiter only indexes solana mints")
)

var _ tracker.MarketData = (*Client)(nil)

// Client is a Jupiter HTTP client
type Client struct {
	baseURL    string
	httpClient *http.Client

	limiter *rate.Limiter
}

// NewClient creates a new Jupiter client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Every(100 * time.Millisecond), 1),
	}
}

// searchToken is one entry of the search response
type searchToken struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Symbol string  `json:"symbol"`
	Icon   string  `json:"icon"`
	Mcap   float64 `json:"mcap"`
}

func (c *Client) search(ctx context.Context, query string) ([]searchToken, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.baseURL + "/tokens/v2/search?query=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
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

	var tokens []searchToken
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	return tokens, nil
}

// FetchToken returns metadata and market cap of a mint. EVM and TON
// addresses fail with ErrUnsupportedChain without a request.
func (c *Client) FetchToken(ctx context.Context, addr string) (*tracker.TokenInfo, error) {
	if address.ChainOf(addr) != address.ChainSolana {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, addr)
	}

	tokens, err := c.search(ctx, addr)
	if err != nil {
		return nil, err
	}

	for _, t := range tokens {
		if t.ID == addr {
			return &tracker.TokenInfo{
				Address:   t.ID,
				Name:      t.Name,
				Symbol:    t.Symbol,
				LogoURI:   t.Icon,
				MarketCap: t.Mcap,
			}, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, addr)
}

// FetchMarketCap returns the market cap of a mint, 0 when unknown
func (c *Client) FetchMarketCap(ctx context.Context, addr string) (float64, error) {
	info, err := c.FetchToken(ctx, addr)
	if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrUnsupportedChain) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.MarketCap, nil
}

// FetchMarketCaps returns market caps of several mints in one request.
// Mints without a market cap and non-solana addresses are left out.
func (c *Client) FetchMarketCaps(ctx context.Context, addresses []string) (map[string]float64, error) {
	out := make(map[string]float64, len(addresses))

	mints := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if address.ChainOf(a) == address.ChainSolana {
			mints = append(mints, a)
		}
	}
	if len(mints) == 0 {
		return out, nil
	}

	tokens, err := c.search(ctx, strings.Join(mints, ","))
	if err != nil {
		return nil, err
	}

	for _, t := range tokens {
		if t.Mcap > 0 {
			out[t.ID] = t.Mcap
		}
	}

	return out, nil
}
