package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/linkea-sync/internal/models"
	"github.com/desertthunder/linkea-sync/internal/shared"
)

const (
	senderBaseURL    = "https://api.sender.net/v2"
	senderTimeout    = 30 * time.Second
	senderMaxPerPage = 100
	maxErrorBody     = 2048
)

var (
	// ErrNotFound marks a 404 from Sender.net. Lookups treat it as a negative result, not a failure.
	ErrNotFound = errors.New("sender resource not found")
	// ErrUnexpectedResponse marks a 2xx body that is missing the expected keys.
	ErrUnexpectedResponse = errors.New("unexpected sender response")
	// ErrUnsupportedMethod is a programming error: the client only speaks GET, POST, PATCH and DELETE.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")
)

// APIError describes a non-2xx response from Sender.net.
type APIError struct {
	Method   string
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sender API error: %s %s: status %d: %s", e.Method, e.Endpoint, e.Status, e.Body)
}

// Unwrap exposes [shared.ErrAPIRequest] plus [ErrNotFound] or [shared.ErrRateLimited] when they apply.
func (e *APIError) Unwrap() []error {
	errs := []error{shared.ErrAPIRequest}
	switch e.Status {
	case http.StatusNotFound:
		errs = append(errs, ErrNotFound)
	case http.StatusTooManyRequests:
		errs = append(errs, shared.ErrRateLimited)
	}
	return errs
}

// SenderOpts configures [NewSenderClient].
type SenderOpts struct {
	APIKey  string
	BaseURL string
	// Timeout bounds each HTTP attempt. Defaults to 30s.
	Timeout    time.Duration
	MaxRetries int
	Throttle   *Throttle
	Logger     *log.Logger
	// HTTPClient is the base client under the bearer-token transport, mainly for tests.
	HTTPClient *http.Client
}

// SenderClient is a typed client for the Sender.net v2 REST API.
//
// Requests are authenticated with a static bearer token and sent through a [RetryClient].
type SenderClient struct {
	baseURL string
	http    HTTPDoer
	logger  *log.Logger
}

// NewSenderClient builds a client whose transport injects the API key as a bearer token.
func NewSenderClient(ctx context.Context, opts SenderOpts) (*SenderClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: sender api key", shared.ErrMissingCredentials)
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = senderBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: sender base url %q", shared.ErrInvalidConfig, opts.BaseURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = senderTimeout
	}

	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	authed := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey, TokenType: "Bearer"}))
	authed.Timeout = timeout

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	return &SenderClient{
		baseURL: baseURL,
		http:    NewRetryClient(authed, opts.MaxRetries, opts.Throttle, logger),
		logger:  logger,
	}, nil
}

// NewSenderClientWithDoer builds a client over an arbitrary [HTTPDoer]; authentication is the doer's concern.
func NewSenderClientWithDoer(baseURL string, doer HTTPDoer, logger *log.Logger) *SenderClient {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &SenderClient{baseURL: strings.TrimRight(baseURL, "/"), http: doer, logger: logger}
}

func (c *SenderClient) Name() string { return "Sender.net" }

// doRequest performs a JSON request against the API and decodes the body into result when non-nil.
func (c *SenderClient) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) ([]byte, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}

	apiURL := c.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrAPIRequest, err)
	}
	c.logger.Debug("sender request", "method", method, "endpoint", endpoint, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, &APIError{Method: method, Endpoint: endpoint, Status: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}

	if result != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return raw, fmt.Errorf("%w: %s %s: %v", ErrUnexpectedResponse, method, endpoint, err)
		}
	}
	return raw, nil
}

// GetSubscriber fetches a subscriber by email or remote ID.
func (c *SenderClient) GetSubscriber(ctx context.Context, identifier string) (*models.Subscriber, error) {
	var env subscriberEnvelope
	raw, err := c.doRequest(ctx, http.MethodGet, "/subscribers/"+url.PathEscape(identifier), nil, nil, &env)
	if err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.ID == "" {
		return nil, unexpected(http.MethodGet, "/subscribers/{id}", raw)
	}
	return env.Data.ToModel(), nil
}

// LookupSubscriber wraps [SenderClient.GetSubscriber] in a [models.SubscriberLookup].
func (c *SenderClient) LookupSubscriber(ctx context.Context, identifier string) models.SubscriberLookup {
	sub, err := c.GetSubscriber(ctx, identifier)
	switch {
	case err == nil:
		return models.Found(sub)
	case errors.Is(err, ErrNotFound):
		return models.NotFound()
	default:
		return models.TransientError(err)
	}
}

// CreateSubscriber issues POST /subscribers.
func (c *SenderClient) CreateSubscriber(ctx context.Context, in CreateSubscriberRequest) (*models.Subscriber, error) {
	var env subscriberEnvelope
	raw, err := c.doRequest(ctx, http.MethodPost, "/subscribers", nil, in, &env)
	if err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.ID == "" || (env.Success != nil && !*env.Success) {
		return nil, unexpected(http.MethodPost, "/subscribers", raw)
	}
	return env.Data.ToModel(), nil
}

// UpdateSubscriber issues PATCH /subscribers/{identifier}.
func (c *SenderClient) UpdateSubscriber(ctx context.Context, identifier string, in UpdateSubscriberRequest) (*models.Subscriber, error) {
	var env subscriberEnvelope
	raw, err := c.doRequest(ctx, http.MethodPatch, "/subscribers/"+url.PathEscape(identifier), nil, in, &env)
	if err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.ID == "" {
		return nil, unexpected(http.MethodPatch, "/subscribers/{id}", raw)
	}
	return env.Data.ToModel(), nil
}

// DeleteSubscribers issues DELETE /subscribers for a list of emails.
func (c *SenderClient) DeleteSubscribers(ctx context.Context, emails ...string) error {
	if len(emails) == 0 {
		return fmt.Errorf("%w: no emails to delete", shared.ErrMissingArgument)
	}
	var env successEnvelope
	raw, err := c.doRequest(ctx, http.MethodDelete, "/subscribers", nil, deleteSubscribersRequest{Subscribers: emails}, &env)
	if err != nil {
		return err
	}
	if !env.Success {
		return unexpected(http.MethodDelete, "/subscribers", raw)
	}
	return nil
}

// ListSubscribers fetches one page of the subscriber directory. perPage is capped at 100.
func (c *SenderClient) ListSubscribers(ctx context.Context, page, perPage int) (*SenderSubscriberPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > senderMaxPerPage {
		perPage = senderMaxPerPage
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var out SenderSubscriberPage
	if _, err := c.doRequest(ctx, http.MethodGet, "/subscribers", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListGroups fetches every group in the account.
func (c *SenderClient) ListGroups(ctx context.Context) ([]models.Group, error) {
	var env groupsEnvelope
	if _, err := c.doRequest(ctx, http.MethodGet, "/groups", nil, nil, &env); err != nil {
		return nil, err
	}
	groups := make([]models.Group, 0, len(env.Data))
	for _, g := range env.Data {
		groups = append(groups, g.ToModel())
	}
	return groups, nil
}

// GetGroup fetches a single group by ID.
func (c *SenderClient) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	var env groupEnvelope
	raw, err := c.doRequest(ctx, http.MethodGet, "/groups/"+url.PathEscape(id), nil, nil, &env)
	if err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.ID == "" {
		return nil, unexpected(http.MethodGet, "/groups/{id}", raw)
	}
	g := env.Data.ToModel()
	return &g, nil
}

// CreateGroup issues POST /groups.
func (c *SenderClient) CreateGroup(ctx context.Context, title string) (*models.Group, error) {
	var env groupEnvelope
	raw, err := c.doRequest(ctx, http.MethodPost, "/groups", nil, createGroupRequest{Title: title}, &env)
	if err != nil {
		return nil, err
	}
	if env.Data == nil || env.Data.ID == "" {
		return nil, unexpected(http.MethodPost, "/groups", raw)
	}
	g := env.Data.ToModel()
	return &g, nil
}

// unexpected wraps [ErrUnexpectedResponse] around the raw body of a 2xx response missing its expected keys.
func unexpected(method, endpoint string, raw []byte) error {
	return fmt.Errorf("%w: %s %s: %s", ErrUnexpectedResponse, method, endpoint, truncate(string(raw), maxErrorBody))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
