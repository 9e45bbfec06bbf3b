// Package scraper fetches competitor ads from the Meta Ad Library API.
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/adpulse/adpulse/internal/cache"
	"github.com/adpulse/adpulse/internal/circuitbreaker"
	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/httputil"
	"github.com/adpulse/adpulse/internal/metrics"
)

const (
	platform      = "meta"
	upstreamID    = "meta-ad-library"
	defaultLimit  = 25
	cacheTTL      = 6 * time.Hour
	adActiveState = "ACTIVE"
)

// Client queries the ad library for active competitor ads. Results are
// cached so repeated scans of the same query within the TTL stay local.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	cache       cache.Cache
	breaker     circuitbreaker.CircuitBreaker
	tokenFor    func(workspaceID string) (string, bool)
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Client) { s.httpClient = c }
}

// WithTokenLookup resolves per-workspace ad library tokens; workspaces
// without one fall back to the platform-wide token.
func WithTokenLookup(lookup func(workspaceID string) (string, bool)) Option {
	return func(s *Client) { s.tokenFor = lookup }
}

func New(baseURL, accessToken string, store cache.Cache, breakers *circuitbreaker.Manager, opts ...Option) *Client {
	c := &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  httputil.ScraperClient(),
		cache:       store,
		breaker:     breakers.Get(upstreamID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type adsArchiveResponse struct {
	Data []struct {
		ID                   string   `json:"id"`
		PageName             string   `json:"page_name"`
		AdCreativeLinkTitles []string `json:"ad_creative_link_titles"`
		AdCreativeBodies     []string `json:"ad_creative_bodies"`
		AdSnapshotURL        string   `json:"ad_snapshot_url"`
		AdDeliveryStartTime  string   `json:"ad_delivery_start_time"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// Search returns active ads matching the query on behalf of a workspace.
// Page is zero-based and maps onto the API's offset pagination. Results are
// keyed by query alone; the workspace only chooses which token is spent.
func (c *Client) Search(ctx context.Context, workspaceID, query string, page int) ([]domain.CompetitorAd, error) {
	key := cache.ScrapeKey(platform, query, page)
	if data, ok := c.cache.Get(ctx, key); ok {
		var ads []domain.CompetitorAd
		if err := json.Unmarshal(data, &ads); err == nil {
			metrics.CacheHits.WithLabelValues("scrape").Inc()
			return ads, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("scrape").Inc()

	if err := c.breaker.Allow(ctx); err != nil {
		metrics.ScrapeRequests.WithLabelValues(platform, "circuit_open").Inc()
		return nil, err
	}

	ads, err := c.fetch(ctx, c.token(workspaceID), query, page)
	if err != nil {
		c.breaker.RecordFailure(ctx)
		metrics.ScrapeRequests.WithLabelValues(platform, "error").Inc()
		return nil, err
	}
	c.breaker.RecordSuccess(ctx)
	metrics.ScrapeRequests.WithLabelValues(platform, "ok").Inc()

	if data, err := json.Marshal(ads); err == nil {
		if err := c.cache.Set(ctx, key, data, cacheTTL); err != nil {
			slog.Warn("cache scrape results", "error", err)
		}
	}

	return ads, nil
}

func (c *Client) token(workspaceID string) string {
	if c.tokenFor != nil {
		if token, ok := c.tokenFor(workspaceID); ok {
			return token
		}
	}
	return c.accessToken
}

func (c *Client) fetch(ctx context.Context, accessToken, query string, page int) ([]domain.CompetitorAd, error) {
	params := url.Values{}
	params.Set("search_terms", query)
	params.Set("ad_active_status", adActiveState)
	params.Set("ad_type", "ALL")
	params.Set("fields", "id,page_name,ad_creative_link_titles,ad_creative_bodies,ad_snapshot_url,ad_delivery_start_time")
	params.Set("limit", strconv.Itoa(defaultLimit))
	params.Set("offset", strconv.Itoa(page*defaultLimit))
	params.Set("access_token", accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ad library error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var archive adsArchiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&archive); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	ads := make([]domain.CompetitorAd, 0, len(archive.Data))
	for _, raw := range archive.Data {
		ad := domain.CompetitorAd{
			ID:       raw.ID,
			PageName: raw.PageName,
			ImageURL: raw.AdSnapshotURL,
			Platform: platform,
		}
		if len(raw.AdCreativeLinkTitles) > 0 {
			ad.Headline = raw.AdCreativeLinkTitles[0]
		}
		if len(raw.AdCreativeBodies) > 0 {
			ad.Body = raw.AdCreativeBodies[0]
		}
		if raw.AdDeliveryStartTime != "" {
			if t, err := time.Parse("2006-01-02", raw.AdDeliveryStartTime); err == nil {
				ad.FirstSeen = t
			}
		}
		ads = append(ads, ad)
	}

	return ads, nil
}
