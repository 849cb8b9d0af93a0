// Package api is the REST client for the PIM backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pimworks/golden-cli/internal/model"
	"github.com/pimworks/golden-cli/internal/resilience"
	"github.com/pimworks/golden-cli/internal/session"
)

// Client talks to the PIM backend. Idempotent reads are retried with backoff;
// writes are attempted once and surface their error to the caller.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  session.TokenSource
	retry   resilience.RetryConfig
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryConfig overrides the retry policy for idempotent reads.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, tokens session.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiError is a non-2xx backend response.
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api: backend returned %d: %s", e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var ae *apiError
	if eris.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

// do performs one request with auth. A 401 invalidates the cached token and
// retries exactly once with a fresh one.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	err := c.doOnce(ctx, method, path, body, out)
	if StatusCode(err) == http.StatusUnauthorized && c.tokens != nil {
		c.tokens.Invalidate()
		err = c.doOnce(ctx, method, path, body, out)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "api: encode request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return eris.Wrap(err, "api: build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return eris.Wrap(err, "api: fetch token")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "api: send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &apiError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return eris.Wrap(err, "api: decode response")
		}
	}
	return nil
}

// get performs a retried idempotent read.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
}

// ListMatchesOptions filter a match listing.
type ListMatchesOptions struct {
	Status model.ConfidenceStatus
	Limit  int
	Offset int
}

// ListMatches returns the similarity matches for a product.
func (c *Client) ListMatches(ctx context.Context, productID string, opts ListMatchesOptions) ([]model.SimilarityMatch, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprint(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprint(opts.Offset))
	}
	path := "/products/" + url.PathEscape(productID) + "/matches"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var matches []model.SimilarityMatch
	if err := c.get(ctx, path, &matches); err != nil {
		return nil, eris.Wrap(err, "api: list matches")
	}
	return matches, nil
}

// GetMatch returns one similarity match.
func (c *Client) GetMatch(ctx context.Context, matchID string) (model.SimilarityMatch, error) {
	var match model.SimilarityMatch
	if err := c.get(ctx, "/matches/"+url.PathEscape(matchID), &match); err != nil {
		return model.SimilarityMatch{}, eris.Wrap(err, "api: get match")
	}
	return match, nil
}

// UpdateConfidence sets the review state of one match.
func (c *Client) UpdateConfidence(ctx context.Context, matchID string, status model.ConfidenceStatus) (model.SimilarityMatch, error) {
	body := map[string]any{"match_confidence": status}
	var match model.SimilarityMatch
	if err := c.do(ctx, http.MethodPatch, "/matches/"+url.PathEscape(matchID), body, &match); err != nil {
		return model.SimilarityMatch{}, eris.Wrap(err, "api: update confidence")
	}
	return match, nil
}

// MarkPrimary flags one match as the product's primary source. The backend
// clears the flag on the product's other matches in the same transaction.
func (c *Client) MarkPrimary(ctx context.Context, matchID string) (model.SimilarityMatch, error) {
	var match model.SimilarityMatch
	if err := c.do(ctx, http.MethodPost, "/matches/"+url.PathEscape(matchID)+"/primary", nil, &match); err != nil {
		return model.SimilarityMatch{}, eris.Wrap(err, "api: mark primary")
	}
	return match, nil
}

// ConsensusDetails returns the full consensus state of a product.
func (c *Client) ConsensusDetails(ctx context.Context, productID string) (model.ConsensusDetail, error) {
	var detail model.ConsensusDetail
	if err := c.get(ctx, "/products/"+url.PathEscape(productID)+"/consensus", &detail); err != nil {
		return model.ConsensusDetail{}, eris.Wrap(err, "api: consensus details")
	}
	return detail, nil
}

// RecomputeConsensus asks the backend to rerun the vote for a product and
// returns the refreshed detail.
func (c *Client) RecomputeConsensus(ctx context.Context, productID string) (model.ConsensusDetail, error) {
	var detail model.ConsensusDetail
	if err := c.do(ctx, http.MethodPost, "/products/"+url.PathEscape(productID)+"/consensus/recompute", nil, &detail); err != nil {
		return model.ConsensusDetail{}, eris.Wrap(err, "api: recompute consensus")
	}
	return detail, nil
}

// ResolveConflict submits a manual resolution for a conflicted attribute.
func (c *Client) ResolveConflict(ctx context.Context, productID, attribute string, value any, resolvedBy string) (model.Resolution, error) {
	body := map[string]any{
		"attribute":  attribute,
		"value":      value,
		"resolvedBy": resolvedBy,
	}
	var res model.Resolution
	path := "/products/" + url.PathEscape(productID) + "/conflicts/resolve"
	if err := c.do(ctx, http.MethodPost, path, body, &res); err != nil {
		return model.Resolution{}, eris.Wrap(err, "api: resolve conflict")
	}
	return res, nil
}

// GetBulkRun returns one bulk ingestion run.
func (c *Client) GetBulkRun(ctx context.Context, runID string) (model.BulkRun, error) {
	var run model.BulkRun
	if err := c.get(ctx, "/bulk/runs/"+url.PathEscape(runID), &run); err != nil {
		return model.BulkRun{}, eris.Wrap(err, "api: get bulk run")
	}
	return run, nil
}

// ListBulkRuns returns recent bulk ingestion runs, newest first.
func (c *Client) ListBulkRuns(ctx context.Context, limit int) ([]model.BulkRun, error) {
	path := "/bulk/runs"
	if limit > 0 {
		path += "?limit=" + fmt.Sprint(limit)
	}
	var runs []model.BulkRun
	if err := c.get(ctx, path, &runs); err != nil {
		return nil, eris.Wrap(err, "api: list bulk runs")
	}
	return runs, nil
}

// RetryBulkRun re-submits a run in the given mode.
func (c *Client) RetryBulkRun(ctx context.Context, runID string, mode model.RetryMode) (model.BulkRun, error) {
	body := map[string]any{"mode": mode}
	var run model.BulkRun
	if err := c.do(ctx, http.MethodPost, "/bulk/runs/"+url.PathEscape(runID)+"/retry", body, &run); err != nil {
		return model.BulkRun{}, eris.Wrap(err, "api: retry bulk run")
	}
	return run, nil
}
