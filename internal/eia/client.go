package eia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eiademand/internal/core"
	applog "eiademand/internal/log"
)

const (
	DefaultPageTimeout = 60 * time.Second
	userAgent          = "eiademand/1.0"
	maxErrorBody       = 512
)

// Client fetches paginated result sets from the EIA v2 API. Pages are
// requested one after another; a single failure aborts the whole fetch.
type Client struct {
	httpClient  *http.Client
	pageTimeout time.Duration
	logger      *applog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPageTimeout bounds every individual page request.
func WithPageTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pageTimeout = d
		}
	}
}

// WithLogger sets the logger used for page-level diagnostics.
func WithLogger(l *applog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		pageTimeout: DefaultPageTimeout,
		logger:      applog.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(applog.ComponentEIA)
	return c
}

// PageTimeout returns the per-page timeout in effect.
func (c *Client) PageTimeout() time.Duration {
	return c.pageTimeout
}

type envelope struct {
	Response *struct {
		Data []core.Record `json:"data"`
	} `json:"response"`
}

// FetchAllPages requests pages of q.PageLength() records starting at offset
// zero and returns all records in fetch order. Pagination stops at the
// first page holding fewer records than the page length, an empty page
// included. A server that always answers with full pages keeps the loop
// going; only ctx cancellation stops it then.
func (c *Client) FetchAllPages(ctx context.Context, endpoint string, q Query) ([]core.Record, error) {
	length := q.PageLength()
	var all []core.Record
	pages := 0
	started := time.Now()

	for offset := 0; ; offset += length {
		rows, err := c.fetchPage(ctx, endpoint, q, offset)
		if err != nil {
			return nil, err
		}
		pages++
		all = append(all, rows...)
		if len(rows) < length {
			break
		}
	}

	c.logger.DebugContext(ctx, "Paginated fetch complete",
		applog.FieldEndpoint, endpoint,
		applog.FieldPages, pages,
		applog.FieldRows, len(all),
		applog.FieldDuration, time.Since(started).Milliseconds())
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, endpoint string, q Query, offset int) ([]core.Record, error) {
	fail := func(status int, msg string, err error) error {
		return &core.FetchError{Endpoint: endpoint, Offset: offset, StatusCode: status, Message: msg, Err: err}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fail(0, "invalid endpoint", err)
	}
	u.RawQuery = q.Values(offset).Encode()

	pctx, cancel := context.WithTimeout(ctx, c.pageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fail(0, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fail(0, "execute request", redactURL(err, u))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(resp.StatusCode, "read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(resp.StatusCode, "unexpected status: "+truncate(string(body)), nil)
	}

	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, fail(resp.StatusCode, "decode response", err)
	}

	var rows []core.Record
	if env.Response != nil {
		rows = env.Response.Data
	}

	c.logger.DebugContext(ctx, "Fetched page",
		applog.FieldEndpoint, endpoint,
		applog.FieldOffset, offset,
		applog.FieldLength, q.PageLength(),
		applog.FieldRows, len(rows),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return rows, nil
}

// redactURL drops the query string, which carries the API key, from the URL
// that transport errors embed in their text.
func redactURL(err error, u *url.URL) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		bare := *u
		bare.RawQuery = ""
		ue.URL = bare.String()
	}
	return err
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "... (truncated)"
	}
	return s
}

// FetchDataset fetches every record of a dataset for the [start, end] window.
func (c *Client) FetchDataset(ctx context.Context, ds core.Dataset, apiKey, start, end string, length int) ([]core.Record, error) {
	q := NewQuery(apiKey, start, end)
	if length > 0 {
		q.Length = length
	}
	if len(ds.Facets) > 0 {
		q.Facets = make(map[string][]string, len(ds.Facets))
		for k, v := range ds.Facets {
			q.Facets[k] = append([]string(nil), v...)
		}
	}
	records, err := c.FetchAllPages(ctx, ds.Endpoint, q)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", ds.Name, err)
	}
	return records, nil
}
