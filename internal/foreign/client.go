package foreign

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/house-cat/echo-notifications/internal/config"
	"github.com/house-cat/echo-notifications/internal/model"
)

// SectionResult holds what one wiki reported for one section. HasCount
// distinguishes "zero unread" from "section missing from the response".
type SectionResult struct {
	Count     int
	HasCount  bool
	Timestamp time.Time
}

// SiteResult is one wiki's per-section data.
type SiteResult map[model.Section]SectionResult

// Client queries other wikis' notification APIs concurrently. Each request is
// bounded by a timeout and never retried: a stale cross-wiki count is
// acceptable, a hung request is not.
type Client struct {
	httpClient *http.Client
	apiPath    string
	sites      map[string]string
	timeout    time.Duration
}

// NewClient creates a foreign-wiki API client from configuration.
func NewClient(cfg config.Foreign) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	apiPath := cfg.APIPath
	if apiPath == "" {
		apiPath = "/w/api.php"
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		apiPath:    apiPath,
		sites:      cfg.Sites,
		timeout:    timeout,
	}
}

// apiResponse mirrors the wire contract:
// {"query":{"notifications":{"<section>":{"rawcount":N,"list":[{"timestamp":{"mw":"..."}}]}}}}
type apiResponse struct {
	Query struct {
		Notifications map[string]struct {
			RawCount *int `json:"rawcount"`
			List     []struct {
				Timestamp struct {
					MW string `json:"mw"`
				} `json:"timestamp"`
			} `json:"list"`
		} `json:"notifications"`
	} `json:"query"`
}

// QueryNotifications asks each candidate wiki for the user's per-section raw
// counts and latest unread timestamps. Requests fan out concurrently;
// unreachable or malformed wikis are skipped, and a wiki missing one section
// still contributes its other sections.
func (c *Client) QueryNotifications(ctx context.Context, globalUserID int64, wikis []string) map[string]SiteResult {
	results := make(map[string]SiteResult)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, wiki := range wikis {
		base, ok := c.sites[wiki]
		if !ok {
			zlog.Logger.Warn().Str("wiki", wiki).Msg("no base URL configured for wiki, skipping")
			continue
		}

		wg.Add(1)
		go func(wiki, base string) {
			defer wg.Done()

			result, err := c.queryWiki(ctx, globalUserID, wiki, base)
			if err != nil {
				zlog.Logger.Warn().Err(err).Str("wiki", wiki).Msg("failed to query foreign wiki")
				return
			}
			if len(result) == 0 {
				return
			}

			mu.Lock()
			results[wiki] = result
			mu.Unlock()
		}(wiki, base)
	}

	wg.Wait()
	return results
}

func (c *Client) queryWiki(ctx context.Context, globalUserID int64, wiki, base string) (SiteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{
		"action":            {"query"},
		"meta":              {"notifications"},
		"notprop":           {"count|list"},
		"notgroupbysection": {"1"},
		"notunreadfirst":    {"1"},
		"notwikis":          {wiki},
		"notglobaluserid":   {fmt.Sprintf("%d", globalUserID)},
		"format":            {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+c.apiPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	result := make(SiteResult)
	for _, section := range model.Sections {
		data, ok := decoded.Query.Notifications[string(section)]
		if !ok {
			continue
		}

		var sr SectionResult
		if data.RawCount != nil {
			sr.Count = *data.RawCount
			sr.HasCount = true
		}
		if len(data.List) > 0 {
			ts, err := time.Parse(model.MWTimestampLayout, data.List[0].Timestamp.MW)
			if err != nil {
				zlog.Logger.Warn().Err(err).Str("wiki", wiki).Str("section", string(section)).
					Msg("malformed timestamp in foreign response")
			} else {
				sr.Timestamp = ts
			}
		}
		if sr.HasCount || !sr.Timestamp.IsZero() {
			result[section] = sr
		}
	}

	return result, nil
}
