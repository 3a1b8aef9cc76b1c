// Package httpapi implements the store capability against a hosted
// PostgREST-style table API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/localdeck/steward/internal/core/domain"
	"github.com/localdeck/steward/internal/infra/store"
)

// Config holds connection settings for the hosted store.
type Config struct {
	// BaseURL is the table API root, e.g. https://acme.example.co/rest/v1
	BaseURL string `yaml:"base_url"`
	// AuthURL is the auth admin API root, e.g. https://acme.example.co/auth/v1
	AuthURL string `yaml:"auth_url"`
	// APIKey is sent as both apikey header and bearer token
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// APIError is a non-2xx response from the store API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// HTTPStatus exposes the status code to the error classifier.
func (e *APIError) HTTPStatus() int { return e.Status }

// ResponseBody exposes the raw body for error detail.
func (e *APIError) ResponseBody() string { return e.Body }

// noRowCode is the API error code for "zero rows in single-object mode".
const noRowCode = "PGRST116"

// Client implements store.Store over the table API. It does no retrying of
// its own; the resilient wrapper handles that.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func New(cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("httpapi: base_url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: log.With("component", "httpapi"),
	}, nil
}

func (c *Client) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	body, err := c.do(ctx, http.MethodGet, c.tableURL(table, q, nil), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeRows(body)
}

func (c *Client) SelectOne(ctx context.Context, table string, q store.Query) (store.Row, error) {
	headers := map[string]string{"Accept": "application/vnd.pgrst.object+json"}
	body, err := c.do(ctx, http.MethodGet, c.tableURL(table, q, nil), nil, headers)
	if err != nil {
		if isNoRow(err) {
			return nil, fmt.Errorf("%s: %w", table, domain.ErrNoRows)
		}
		return nil, err
	}

	var row store.Row
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return row, nil
}

func (c *Client) Insert(ctx context.Context, table string, rows []store.Row) error {
	if len(rows) == 0 {
		return nil
	}
	headers := map[string]string{"Prefer": "return=minimal"}
	_, err := c.do(ctx, http.MethodPost, c.tableURL(table, store.Query{}, nil), rows, headers)
	return err
}

func (c *Client) Upsert(ctx context.Context, table string, conflictColumns []string, rows []store.Row) error {
	if len(rows) == 0 {
		return nil
	}
	extra := url.Values{}
	if len(conflictColumns) > 0 {
		extra.Set("on_conflict", strings.Join(conflictColumns, ","))
	}
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	_, err := c.do(ctx, http.MethodPost, c.tableURL(table, store.Query{}, extra), rows, headers)
	return err
}

func (c *Client) Update(ctx context.Context, table string, q store.Query, changes store.Row) (int64, error) {
	if len(q.Filters) == 0 {
		return 0, fmt.Errorf("update %s: %w", table, store.ErrUnfiltered)
	}
	headers := map[string]string{"Prefer": "return=representation"}
	body, err := c.do(ctx, http.MethodPatch, c.tableURL(table, q, nil), changes, headers)
	if err != nil {
		return 0, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (c *Client) Delete(ctx context.Context, table string, q store.Query) (int64, error) {
	if len(q.Filters) == 0 {
		return 0, fmt.Errorf("delete %s: %w", table, store.ErrUnfiltered)
	}
	headers := map[string]string{"Prefer": "return=representation"}
	body, err := c.do(ctx, http.MethodDelete, c.tableURL(table, q, nil), nil, headers)
	if err != nil {
		return 0, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Ping issues a bare request against the API root. Any response below 500
// proves the endpoint is reachable and authenticated routing works.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.cfg.BaseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &APIError{Status: resp.StatusCode, Message: "api unavailable"}
	}
	return nil
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, u string, payload any, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.cfg.APIKey == "" {
		return
	}
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
}

// tableURL renders the table endpoint with the query encoded in the API's
// filter syntax (col=eq.value, order=col.desc, limit=n).
func (c *Client) tableURL(table string, q store.Query, extra url.Values) string {
	values := url.Values{}
	if len(q.Columns) > 0 {
		values.Set("select", strings.Join(q.Columns, ","))
	}
	for _, f := range q.Filters {
		values.Add(f.Column, renderFilter(f))
	}
	if q.OrderBy != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		values.Set("order", q.OrderBy+"."+dir)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	for k, vs := range extra {
		for _, v := range vs {
			values.Add(k, v)
		}
	}

	u := c.cfg.BaseURL + "/" + table
	if encoded := values.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

func renderFilter(f store.Filter) string {
	switch f.Op {
	case store.OpIn:
		values, _ := f.Value.([]string)
		return "in.(" + strings.Join(values, ",") + ")"
	case store.OpIsNull:
		return "is.null"
	default:
		return string(f.Op) + "." + renderValue(f.Value)
	}
}

func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case nil:
		return "null"
	default:
		return fmt.Sprint(t)
	}
}

func decodeRows(body []byte) ([]store.Row, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var rows []store.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return rows, nil
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status, Body: string(body)}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Msg
		}
	}
	return apiErr
}

func isNoRow(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusNotAcceptable || apiErr.Code == noRowCode
}
