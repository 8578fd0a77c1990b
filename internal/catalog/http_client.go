package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/port-labs/ocean-core/internal/entity"
	oceanerrors "github.com/port-labs/ocean-core/internal/errors"
	"github.com/port-labs/ocean-core/internal/obs"
)

// DefaultBatchSize is "default 20 entities per call" from §4.3.
const DefaultBatchSize = 20

// HTTPClient is the concrete Client implementation against the REST API
// described in §6. One HTTPClient is shared for the lifetime of an
// integration instance (§5 "shared HTTP client pool for catalog calls").
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	retry      RetryPolicy
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	batchSize  int
	metrics    *obs.Metrics
}

// TokenSource resolves the bearer token used to authenticate against the
// catalog, re-fetching/refreshing as needed. OAuthTokenSource (token.go)
// implements it with the OAuth client-credentials exchange against
// port.clientId/port.clientSecret; HTTPClient depends only on this narrow
// interface.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// NewHTTPClient builds an HTTPClient. httpClient should already carry
// whatever TLS/proxy configuration §6's verifySsl/proxy env vars demand;
// NewHTTPTransport (transport.go) builds such a client.
func NewHTTPClient(baseURL string, httpClient *http.Client, token TokenSource, metrics *obs.Metrics) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		retry:      DefaultRetryPolicy(),
		breaker:    NewBreaker("catalog"),
		limiter:    NewLimiter(20, 20),
		batchSize:  DefaultBatchSize,
		metrics:    metrics,
	}
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if c.metrics != nil {
			c.metrics.CatalogRequests.WithLabelValues(op, outcome).Inc()
			c.metrics.CatalogRequestDur.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}()

	err := c.retry.Do(ctx, func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return oceanerrors.NewCancellationError(err)
		}
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.doOnce(ctx, method, path, body, out)
		})
		return err
	})
	if err != nil {
		outcome = "error"
	}
	return err
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return oceanerrors.NewConfigError(fmt.Errorf("encoding request body: %w", err))
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return oceanerrors.NewPermanentIOError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	token, err := c.token.Token(ctx)
	if err != nil {
		return oceanerrors.NewTransientIOError(fmt.Errorf("resolving catalog token: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return oceanerrors.NewTransientIOError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := parseRetryAfter(resp.Header.Get("Retry-After"))
		return RetryableError{
			Err:        oceanerrors.NewTransientIOError(fmt.Errorf("%s %s: 429 rate limited", method, path)),
			RetryAfter: wait,
		}
	}
	if resp.StatusCode >= 500 {
		return oceanerrors.NewTransientIOError(fmt.Errorf("%s %s: %d", method, path, resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return oceanerrors.NewPermanentIOErrorWithStatus(resp.StatusCode, fmt.Errorf("%s %s: %d", method, path, resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return oceanerrors.NewTransientIOError(fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		return time.Until(when)
	}
	return 0
}

func (c *HTTPClient) RegisterIntegration(ctx context.Context, spec IntegrationSpec) error {
	return c.do(ctx, "registerIntegration", http.MethodPost, "/v1/integration", spec, nil)
}

func (c *HTTPClient) PatchIntegration(ctx context.Context, integrationID string, state ResyncState) error {
	path := fmt.Sprintf("/v1/integration/%s", url.PathEscape(integrationID))
	return c.do(ctx, "patchIntegration", http.MethodPatch, path, state, nil)
}

func (c *HTTPClient) GetPortAppConfig(ctx context.Context, integrationID string) (*entity.PortAppConfig, error) {
	path := fmt.Sprintf("/v1/integration/%s", url.PathEscape(integrationID))
	var out struct {
		PortAppConfig entity.PortAppConfig `json:"portAppConfig"`
	}
	if err := c.do(ctx, "getPortAppConfig", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.PortAppConfig, nil
}

func (c *HTTPClient) GetBlueprint(ctx context.Context, id string) (*Blueprint, error) {
	path := fmt.Sprintf("/v1/blueprints/%s", url.PathEscape(id))
	var bp Blueprint
	if err := c.do(ctx, "getBlueprint", http.MethodGet, path, nil, &bp); err != nil {
		return nil, err
	}
	return &bp, nil
}

func (c *HTTPClient) UpsertEntitiesBatch(ctx context.Context, blueprint string, entities []entity.Entity, opts UpsertOptions) ([]EntityResult, error) {
	results := make([]EntityResult, 0, len(entities))
	for start := 0; start < len(entities); start += c.batchSize {
		end := start + c.batchSize
		if end > len(entities) {
			end = len(entities)
		}
		batch := entities[start:end]

		path := fmt.Sprintf("/v1/blueprints/%s/entities/bulk", url.PathEscape(blueprint))
		body := map[string]any{
			"entities":                     batch,
			"createMissingRelatedEntities": opts.CreateMissingRelatedEntities,
			"merge":                        opts.Merge,
		}
		var out struct {
			Results []struct {
				Identifier string `json:"identifier"`
				Error      string `json:"error,omitempty"`
			} `json:"results"`
		}
		err := c.do(ctx, "upsertEntitiesBatch", http.MethodPost, path, body, &out)
		if err != nil {
			// The whole batch request failed (e.g. transport error after
			// retries exhausted): every entity in it is counted failed,
			// per-entity isolation does not apply to a failure this early.
			for _, e := range batch {
				results = append(results, EntityResult{Ref: EntityRefInput{Blueprint: blueprint, Identifier: e.Identifier}, Err: err})
			}
			continue
		}
		for _, r := range out.Results {
			var entErr error
			if r.Error != "" {
				entErr = oceanerrors.NewPermanentIOError(fmt.Errorf("%s", r.Error))
			}
			results = append(results, EntityResult{Ref: EntityRefInput{Blueprint: blueprint, Identifier: r.Identifier}, Err: entErr})
		}
	}
	return results, nil
}

func (c *HTTPClient) DeleteEntity(ctx context.Context, blueprint, identifier string, opts DeleteOptions) error {
	path := fmt.Sprintf("/v1/blueprints/%s/entities/%s?deleteDependents=%t",
		url.PathEscape(blueprint), url.PathEscape(identifier), opts.DeleteDependents)
	err := c.do(ctx, "deleteEntity", http.MethodDelete, path, nil, nil)
	if oceanerrors.IsNotFound(err) {
		// DeleteEntity is idempotent (§4.3): a 404 on an already-deleted
		// entity is not a failure from the caller's point of view. Any
		// other 4xx (403, 400, ...) is a genuine failure and must be
		// reported, not swallowed.
		return nil
	}
	return err
}

func (c *HTTPClient) SearchEntitiesByIntegration(ctx context.Context, integrationID string, blueprint string) SearchPage {
	return &httpSearchPage{client: c, integrationID: integrationID, blueprint: blueprint, pageSize: 100}
}

type httpSearchPage struct {
	client        *HTTPClient
	integrationID string
	blueprint     string
	pageSize      int
	cursor        string
	done          bool
}

func (p *httpSearchPage) Next(ctx context.Context) ([]entity.EntityRef, bool, error) {
	if p.done {
		return nil, false, nil
	}

	body := map[string]any{
		"integrationId": p.integrationID,
		"blueprint":     p.blueprint,
		"pageSize":      p.pageSize,
		"cursor":        p.cursor,
	}
	var out struct {
		Entities []struct {
			Blueprint  string `json:"blueprint"`
			Identifier string `json:"identifier"`
		} `json:"entities"`
		NextCursor string `json:"nextCursor"`
	}
	if err := p.client.do(ctx, "searchEntitiesByIntegration", http.MethodPost, "/v1/blueprints/entities/search", body, &out); err != nil {
		return nil, false, err
	}

	refs := make([]entity.EntityRef, len(out.Entities))
	for i, e := range out.Entities {
		refs[i] = entity.EntityRef{Blueprint: e.Blueprint, Identifier: e.Identifier}
	}
	if out.NextCursor == "" {
		p.done = true
	} else {
		p.cursor = out.NextCursor
	}
	return refs, len(refs) > 0 || out.NextCursor != "", nil
}
