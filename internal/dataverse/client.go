package dataverse

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// apiBasePath is the Dataverse Web API root, relative to the service URL.
const apiBasePath = "/api/data/v9.2/"

// Client issues OData operations (query, create, update, delete) against a
// configured Dataverse environment. Every operation obtains a valid bearer
// token from the TokenManager first, then issues exactly one HTTP request.
//
// A Client is safe for concurrent use. Configuration is a full overwrite;
// re-configuring clears the cached token.
type Client struct {
	mu         sync.RWMutex
	cfg        Config
	httpClient *http.Client
	tokens     *TokenManager
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithAuthorityHost overrides the Microsoft identity endpoint, e.g.
// "https://login.microsoftonline.us" for national clouds.
func WithAuthorityHost(base string) Option {
	return func(c *Client) {
		c.tokens.loginBase = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client for both record and
// token requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.tokens.httpClient = hc
	}
}

// New creates an unconfigured client. Operations fail with a
// ConfigurationError until Configure succeeds in storing a connection.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     NewTokenManager(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure replaces the connection settings and clears the cached token,
// then attempts one authentication to validate the credentials. The new
// configuration is retained even when that authentication fails, so the
// returned error reports validation outcome rather than rollback.
func (c *Client) Configure(ctx context.Context, cfg Config) error {
	cfg = cfg.normalized()

	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()

	c.tokens.Invalidate()

	if _, err := c.tokens.Token(ctx, cfg); err != nil {
		log.Warn().Err(err).Str("url", cfg.ServiceURL).Msg("configuration saved but authentication failed")
		return err
	}

	log.Info().Str("url", cfg.ServiceURL).Msg("dataverse configured and authenticated")
	return nil
}

// config returns a copy of the current connection settings.
func (c *Client) config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Query retrieves one page of records from an entity collection.
func (c *Client) Query(ctx context.Context, entityName string, opts QueryOptions) (QueryResult, error) {
	cfg, token, err := c.prepare(ctx)
	if err != nil {
		return QueryResult{}, err
	}

	reqURL := cfg.ServiceURL + apiBasePath + entityName

	params := url.Values{}
	if len(opts.Select) > 0 {
		params.Set("$select", strings.Join(opts.Select, ","))
	}
	if opts.Filter != "" {
		params.Set("$filter", opts.Filter)
	}
	if opts.Top != 0 {
		params.Set("$top", strconv.Itoa(opts.Top))
	}
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return QueryResult{}, UnexpectedError{Err: err}
	}
	setCommonHeaders(req, token)

	body, err := c.send(req)
	if err != nil {
		return QueryResult{}, err
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return QueryResult{}, UnexpectedError{Err: err}
	}

	// Missing "value" key defaults to an empty list
	records := qr.Value
	if records == nil {
		records = []map[string]any{}
	}

	log.Info().Str("entity", entityName).Int("count", len(records)).Msg("query successful")

	return QueryResult{Records: records, Count: len(records)}, nil
}

// Create inserts a new record into an entity collection. The payload is a
// JSON document string; it is parsed before the request is issued and a
// parse failure is reported as a ValidationError with no HTTP call made.
func (c *Client) Create(ctx context.Context, entityName string, payload string) (CreateResult, error) {
	cfg, token, err := c.prepare(ctx)
	if err != nil {
		return CreateResult{}, err
	}

	doc, err := parsePayload(payload)
	if err != nil {
		return CreateResult{}, err
	}

	reqURL := cfg.ServiceURL + apiBasePath + entityName

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(doc))
	if err != nil {
		return CreateResult{}, UnexpectedError{Err: err}
	}
	setCommonHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")

	// Response body is unused; the record identity comes from the header
	resp, err := c.sendRaw(req)
	if err != nil {
		return CreateResult{}, err
	}
	resp.Body.Close()

	recordURL := resp.Header.Get("OData-EntityId")
	recordID := recordIDFromEntityURL(recordURL)

	log.Info().Str("entity", entityName).Str("recordId", recordID).Msg("record created")

	return CreateResult{ID: recordID, URL: recordURL}, nil
}

// Update patches an existing record by its GUID. No existence check is made
// before the call; the service's response code is authoritative.
func (c *Client) Update(ctx context.Context, entityName, recordID string, payload string) error {
	cfg, token, err := c.prepare(ctx)
	if err != nil {
		return err
	}

	doc, err := parsePayload(payload)
	if err != nil {
		return err
	}

	reqURL := cfg.ServiceURL + apiBasePath + entityName + "(" + recordID + ")"

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, reqURL, bytes.NewReader(doc))
	if err != nil {
		return UnexpectedError{Err: err}
	}
	setCommonHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.sendRaw(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	log.Info().Str("entity", entityName).Str("recordId", recordID).Msg("record updated")
	return nil
}

// Delete removes a record by its GUID. A 404 from the service surfaces as a
// TransportError like any other non-2xx status; it is not special-cased.
func (c *Client) Delete(ctx context.Context, entityName, recordID string) error {
	cfg, token, err := c.prepare(ctx)
	if err != nil {
		return err
	}

	reqURL := cfg.ServiceURL + apiBasePath + entityName + "(" + recordID + ")"

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return UnexpectedError{Err: err}
	}
	setCommonHeaders(req, token)

	resp, err := c.sendRaw(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	log.Info().Str("entity", entityName).Str("recordId", recordID).Msg("record deleted")
	return nil
}

// prepare runs the shared operation preamble: the configuration check, then
// token acquisition. Token failures propagate verbatim.
func (c *Client) prepare(ctx context.Context) (Config, string, error) {
	cfg := c.config()
	if cfg.ServiceURL == "" {
		return Config{}, "", ConfigurationError{Reason: "dataverse URL must be configured"}
	}

	token, err := c.tokens.Token(ctx, cfg)
	if err != nil {
		return Config{}, "", err
	}
	return cfg, token, nil
}

// send executes a request and reads the response body, mapping transport
// failures and non-2xx statuses to TransportError.
func (c *Client) send(req *http.Request) ([]byte, error) {
	resp, err := c.sendRaw(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, UnexpectedError{Err: err}
	}
	return body, nil
}

// sendRaw executes a request with per-request structured logging. The caller
// owns the response body; on non-2xx the body is consumed into the error.
func (c *Client) sendRaw(req *http.Request) (*http.Response, error) {
	// Correlation ID for request tracing
	correlationID := uuid.New().String()

	logger := log.With().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("correlationId", correlationID).
		Logger()

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("dataverse request failed")
		return nil, TransportError{Message: err.Error()}
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("dataverse request completed")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, TransportError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	return resp, nil
}

// setCommonHeaders applies the headers shared by every Web API operation.
func setCommonHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
}

// parsePayload validates that a record payload is well-formed JSON, pushing
// parse failures to the boundary as a typed ValidationError.
func parsePayload(payload string) (json.RawMessage, error) {
	var doc any
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, ValidationError{Err: err}
	}
	return json.RawMessage(payload), nil
}

// recordIDFromEntityURL extracts the record GUID from an OData-EntityId
// header value: the substring between the last "(" and the trailing ")".
// An empty header yields an empty ID.
func recordIDFromEntityURL(entityURL string) string {
	if entityURL == "" {
		return ""
	}
	s := entityURL
	if i := strings.LastIndex(s, "("); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimRight(s, ")")
}
