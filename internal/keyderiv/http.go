package keyderiv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	publicKeyPath = "/public-key"
	deriveKeyPath = "/derive-key"

	maxRequestBytes = 64 << 10
)

type keyResponse struct {
	Key []byte `json:"key"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client is a Service backed by a remote HTTP endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// NewClient returns a Client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PublicKey implements Service.
func (c *Client) PublicKey(ctx context.Context, req KeyRequest) ([]byte, error) {
	return c.call(ctx, publicKeyPath, req)
}

// DeriveKey implements Service.
func (c *Client) DeriveKey(ctx context.Context, req DeriveRequest) ([]byte, error) {
	return c.call(ctx, deriveKeyPath, req)
}

func (c *Client) call(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		var e errorResponse
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s: %s (status %d)", path, e.Error, resp.StatusCode)
		}
		return nil, fmt.Errorf("%s: status %d", path, resp.StatusCode)
	}

	var out keyResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	if len(out.Key) == 0 {
		return nil, fmt.Errorf("%s: empty key in response", path)
	}
	return out.Key, nil
}

// Handler serves svc over HTTP for Client.
func Handler(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Post(publicKeyPath, func(w http.ResponseWriter, r *http.Request) {
		var req KeyRequest
		if !decode(w, r, &req) {
			return
		}
		key, err := svc.PublicKey(r.Context(), req)
		reply(w, key, err)
	})
	r.Post(deriveKeyPath, func(w http.ResponseWriter, r *http.Request) {
		var req DeriveRequest
		if !decode(w, r, &req) {
			return
		}
		key, err := svc.DeriveKey(r.Context(), req)
		reply(w, key, err)
	})
	return r
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func reply(w http.ResponseWriter, key []byte, err error) {
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, keyResponse{Key: key})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
