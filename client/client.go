package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/tranvanhung2003/digital-world-cart/domain"
)

// TokenSource supplies the current bearer token, or "" when the session is
// anonymous. Called per request so a re-login is picked up immediately.
type TokenSource func() string

// Client is the HTTP client for the Cart API: the remote, server-authoritative
// side of the cart. All calls go through a circuit breaker; business
// rejections (out of stock, not found) are not failures from the breaker's
// point of view.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	breaker *gobreaker.CircuitBreaker[*domain.Cart]
}

func New(baseURL string, token TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker[*domain.Cart](gobreaker.Settings{
		Name: "cart-api",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// Only transport trouble should open the breaker.
			return err == nil || !IsNetworkError(err)
		},
	})

	return c
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (timeouts, transport).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Fetch returns the caller's current cart, or an empty cart shape if none
// exists yet.
func (c *Client) Fetch(ctx context.Context) (*domain.Cart, error) {
	return c.breaker.Execute(func() (*domain.Cart, error) {
		return c.do(ctx, http.MethodGet, "/api/v1/cart", nil)
	})
}

// AddItem asks the server to create or increment the line matching the item's
// identity. The server validates stock and re-derives the unit price.
func (c *Client) AddItem(ctx context.Context, item domain.CartItem) (*domain.Cart, error) {
	body := map[string]interface{}{
		"product_id": item.ProductID,
		"quantity":   item.Quantity,
	}
	if item.VariantID != "" {
		body["variant_id"] = item.VariantID
	}
	if len(item.Attributes) > 0 {
		body["attributes"] = item.Attributes
	}

	return c.breaker.Execute(func() (*domain.Cart, error) {
		return c.do(ctx, http.MethodPost, "/api/v1/cart/items", body)
	})
}

// Merge asks the server to fold any session-tracked guest cart into the
// account cart. Fallback path for guests whose cart never touched local
// storage.
func (c *Client) Merge(ctx context.Context) (*domain.Cart, error) {
	return c.breaker.Execute(func() (*domain.Cart, error) {
		return c.do(ctx, http.MethodPost, "/api/v1/cart/merge", nil)
	})
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*domain.Cart, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request failed: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var cart domain.Cart
		if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
			return nil, &NetworkError{Op: method + " " + path, Err: fmt.Errorf("decode response: %w", err)}
		}
		return &cart, nil
	}

	return nil, c.mapError(resp)
}

type errorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *Client) mapError(resp *http.Response) error {
	var envelope errorEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&envelope) // body may be empty

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		if envelope.Code == "out_of_stock" {
			return ErrOutOfStock
		}
		return fmt.Errorf("cart api: %s: %s", envelope.Code, envelope.Error)
	default:
		if resp.StatusCode >= 500 {
			return &NetworkError{
				Op:  "server",
				Err: errors.New(http.StatusText(resp.StatusCode)),
			}
		}
		return fmt.Errorf("cart api: unexpected status %d", resp.StatusCode)
	}
}
