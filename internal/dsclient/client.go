// Package dsclient talks to the delivery services listed in a profile. Every
// call walks the list in order and returns the first success.
package dsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/relayerr"
)

// ProfileResolver maps a delivery-service identity to its profile
type ProfileResolver interface {
	ResolveDeliveryServiceProfile(ctx context.Context, identity string) (models.DeliveryServiceProfile, error)
}

// TokenSource returns the bearer token to present to a delivery service, or
// "" for none. Tokens are issued per delivery service.
type TokenSource func(deliveryService string) string

// StatusError is a non-2xx answer from a delivery service
type StatusError struct {
	URL     string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d %s", e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %d", e.URL, e.Status)
}

// Unwrap maps the status back onto the service error taxonomy
func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return relayerr.ErrUnauthorized
	case http.StatusNotFound:
		return relayerr.ErrUnknownSession
	case http.StatusConflict:
		return relayerr.ErrProfileExists
	case http.StatusRequestEntityTooLarge:
		return relayerr.ErrPayloadTooLarge
	}
	return nil
}

// Client performs requests with delivery-service fallback
type Client struct {
	HTTP     *http.Client
	Resolver ProfileResolver
}

// New returns a Client with NewHTTPClient's transport
func New(resolver ProfileResolver) *Client {
	return &Client{HTTP: NewHTTPClient(), Resolver: resolver}
}

// NewHTTPClient creates the HTTP client used for delivery-service calls
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			DialContext:     dialer.DialContext,
			MaxIdleConns:    100,
			IdleConnTimeout: 90 * time.Second,
		},
	}
}

// attempt runs one try against a single resolved delivery service
type attempt func(ctx context.Context, name string, ds models.DeliveryServiceProfile) error

// each tries services in order, default first, and stops at the first
// success. It returns the name of the service that succeeded. When all fail
// the last failure is returned, wrapped in ErrUpstreamUnavailable.
func (c *Client) each(ctx context.Context, services []string, try attempt) (string, error) {
	if len(services) == 0 {
		return "", fmt.Errorf("%w: profile lists no delivery services", relayerr.ErrUpstreamUnavailable)
	}

	var last error
	for _, name := range services {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		ds, err := c.Resolver.ResolveDeliveryServiceProfile(ctx, name)
		if err != nil {
			last = fmt.Errorf("resolve %s: %w", name, err)
			continue
		}
		if err := try(ctx, name, ds); err != nil {
			last = fmt.Errorf("%s: %w", name, err)
			continue
		}
		return name, nil
	}
	return "", fmt.Errorf("%w: %w", relayerr.ErrUpstreamUnavailable, last)
}

// Request sends method path with an optional JSON body to the delivery
// services of recipient and decodes the first successful answer into out.
func (c *Client) Request(ctx context.Context, recipient models.UserProfile, method, path string, body, out interface{}) error {
	_, err := c.Do(ctx, recipient.DeliveryServices, method, path, nil, body, out)
	return err
}

// Do is Request over an explicit service list with per-service tokens. It
// returns the name of the delivery service that answered.
func (c *Client) Do(ctx context.Context, services []string, method, path string, tokens TokenSource, body, out interface{}) (string, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return "", err
		}
	}

	return c.each(ctx, services, func(ctx context.Context, name string, ds models.DeliveryServiceProfile) error {
		token := ""
		if tokens != nil {
			token = tokens(name)
		}
		// a failed attempt may have decoded part of its answer
		reset(out)
		return c.call(ctx, ds.URL, method, path, token, payload, out)
	})
}

// reset zeroes the value out points to
func reset(out interface{}) {
	if out == nil {
		return
	}
	if v := reflect.ValueOf(out); v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().SetZero()
	}
}

// call performs a single HTTP exchange
func (c *Client) call(ctx context.Context, baseURL, method, path, token string, payload []byte, out interface{}) error {
	url := strings.TrimRight(baseURL, "/") + path

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) != nil {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &StatusError{URL: url, Status: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
