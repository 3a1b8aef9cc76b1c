package httpapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// AdminClient manages auth identities through the admin API. Identity
// deletion is the only operation this service needs.
type AdminClient struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewAdmin(cfg Config, log *slog.Logger) (*AdminClient, error) {
	if cfg.AuthURL == "" {
		return nil, fmt.Errorf("httpapi: auth_url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdminClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("component", "httpapi.admin"),
	}, nil
}

// DeleteUser removes the auth identity of a user. A 404 from the admin API
// means the identity is already gone and counts as success, which keeps
// deletion re-runs idempotent.
func (c *AdminClient) DeleteUser(ctx context.Context, userID string) error {
	u := c.cfg.AuthURL + "/admin/users/" + userID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		c.log.Info("identity already absent", "user_id", userID)
		return nil
	}
	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, body)
	}
	return nil
}
