package annotations

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/listenupapp/listenup-bookmarks/internal/domain"
	"github.com/listenupapp/listenup-bookmarks/internal/errors"
	"github.com/listenupapp/listenup-bookmarks/internal/ratelimit"
)

const (
	// Rate limit: 2 requests per second per account, burst of 5.
	defaultRPS   = 2.0
	defaultBurst = 5

	// HTTP client settings.
	defaultTimeout = 30 * time.Second

	mediaTypeAnnotation = `application/ld+json; profile="http://www.w3.org/ns/anno.jsonld"`
)

// Client is a rate-limited annotation-service client. The HTTP transport is
// injected; its retry and timeout policy belongs to the caller.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
}

// New creates an annotation client. A nil httpClient gets a default with a
// 30 second timeout.
func New(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		http:    httpClient,
		limiter: ratelimit.New(defaultRPS, defaultBurst),
		logger:  logger,
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// FetchAll retrieves every annotation in the account's container.
func (c *Client) FetchAll(ctx context.Context, account domain.Account) ([]Annotation, error) {
	body, err := c.doRequest(ctx, account, http.MethodGet, account.AnnotationsURI, nil)
	if err != nil {
		return nil, err
	}

	var doc container
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "malformed annotation container")
	}
	items := doc.Items
	if len(items) == 0 && doc.First != nil {
		items = doc.First.Items
	}

	c.logger.Debug("annotations fetched",
		"account_id", account.ID,
		"count", len(items),
	)
	return items, nil
}

// Add posts an annotation to the account's container and returns the
// server-assigned annotation URI, if the server reported one.
func (c *Client) Add(ctx context.Context, account domain.Account, annotation Annotation) (string, error) {
	payload, err := json.Marshal(annotation)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeIO, "encode annotation")
	}

	body, err := c.doRequest(ctx, account, http.MethodPost, account.AnnotationsURI, payload)
	if err != nil {
		return "", err
	}

	// The response echoes the annotation with its assigned id.
	var created struct {
		ID string `json:"id"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &created); err != nil {
			c.logger.Warn("annotation created but response unparseable",
				"account_id", account.ID,
				"error", err,
			)
			return "", nil
		}
	}
	return created.ID, nil
}

// Delete removes an annotation by its URI. Returns false without error when
// the server no longer has it.
func (c *Client) Delete(ctx context.Context, account domain.Account, annotationURI string) (bool, error) {
	_, err := c.doRequest(ctx, account, http.MethodDelete, annotationURI, nil)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// doRequest executes one HTTP call with per-account rate limiting and maps
// failures onto the engine's error taxonomy.
func (c *Client) doRequest(ctx context.Context, account domain.Account, method, uri string, payload []byte) ([]byte, error) {
	if uri == "" {
		return nil, errors.IO("account has no annotations URI")
	}
	if err := c.limiter.Wait(ctx, string(account.ID)); err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "rate limit wait")
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "create request")
	}

	req.Header.Set("Accept", mediaTypeAnnotation)
	if payload != nil {
		req.Header.Set("Content-Type", mediaTypeAnnotation)
	}
	if account.Credentials.Username != "" {
		req.SetBasicAuth(account.Credentials.Username, account.Credentials.Password)
	}

	c.logger.Debug("annotation request",
		"account_id", account.ID,
		"method", method,
		"uri", uri,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIO, "read response")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Distinguished so sync operations can trigger credential
		// invalidation instead of treating this as transient.
		return nil, errors.Unauthorizedf("annotation service rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NotFoundf("annotation not found (status %d)", resp.StatusCode)
	default:
		return nil, errors.IOf("annotation service returned status %d", resp.StatusCode)
	}
}
