package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/localdeck/steward/internal/core/domain"
)

// FeedFetcher pulls the current batch of records from one upstream feed.
type FeedFetcher interface {
	Fetch(ctx context.Context) ([]domain.Event, error)
}

// FeedConfig describes one upstream event feed.
type FeedConfig struct {
	Source  string        `yaml:"source"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// HTTPFeed fetches JSON event listings from an upstream aggregator.
type HTTPFeed struct {
	cfg    FeedConfig
	client *http.Client
}

func NewHTTPFeed(cfg FeedConfig) *HTTPFeed {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFeed{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// feedError carries the upstream HTTP status so failures classify by status
// rather than by message text.
type feedError struct {
	Status int
	Body   string
}

func (e *feedError) Error() string {
	return fmt.Sprintf("feed returned status %d: %s", e.Status, e.Body)
}

func (e *feedError) HTTPStatus() int { return e.Status }

func (e *feedError) ResponseBody() string { return e.Body }

// feedItem is the upstream wire shape. Unknown fields are ignored; feeds add
// fields without notice.
type feedItem struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartsAt    time.Time `json:"starts_at"`
	ImageURL    string    `json:"image_url"`
	ImageKind   string    `json:"image_kind"`
}

type feedPage struct {
	Items []feedItem `json:"items"`
}

// Fetch retrieves the feed and converts items to domain events. Items with
// no title or no start time are dropped here; they can never satisfy the
// natural key.
func (f *HTTPFeed) Fetch(ctx context.Context) ([]domain.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read feed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &feedError{Status: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	var page feedPage
	if err := json.Unmarshal(body, &page); err != nil {
		// Some feeds serve a bare array instead of a page object.
		var items []feedItem
		if err2 := json.Unmarshal(body, &items); err2 != nil {
			return nil, fmt.Errorf("decode feed response: %w", err)
		}
		page.Items = items
	}

	events := make([]domain.Event, 0, len(page.Items))
	for _, item := range page.Items {
		if item.Title == "" || item.StartsAt.IsZero() {
			continue
		}
		events = append(events, domain.Event{
			Title:       item.Title,
			Description: item.Description,
			Venue:       item.Venue,
			Source:      f.cfg.Source,
			StartsAt:    item.StartsAt.UTC(),
			ImageURL:    item.ImageURL,
			ImageKind:   domain.ImageKind(item.ImageKind),
		})
	}
	return events, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
