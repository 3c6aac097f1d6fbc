package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	goConsole "github.com/MrEthical07/goConsole"
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 1 << 20

// HTTPClient talks to the admin API over HTTP.
type HTTPClient struct {
	baseURL     string
	loginPath   string
	profilePath string
	userAgent   string
	http        *http.Client
}

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client. Its Timeout is left as set.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.http = c
		}
	}
}

// NewHTTPClient returns a client for cfg. cfg is expected to have passed
// Config.Validate.
func NewHTTPClient(cfg goConsole.APIConfig, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		loginPath:   cfg.LoginPath,
		profilePath: cfg.ProfilePath,
		userAgent:   cfg.UserAgent,
		http:        &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type loginResponse struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Login posts creds and returns the credential token.
func (h *HTTPClient) Login(ctx context.Context, creds goConsole.Credentials) (string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("%w: encode credentials: %v", goConsole.ErrLoginRejected, err)
	}

	req, err := h.newRequest(ctx, http.MethodPost, h.loginPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", goConsole.ErrNetworkUnavailable, err)
	}
	defer drain(resp)

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: login: %s", goConsole.ErrNetworkUnavailable, describe(resp))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %s", goConsole.ErrLoginRejected, describe(resp))
	}

	var out loginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode login response: %v", goConsole.ErrLoginRejected, err)
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", fmt.Errorf("%w: response carried no token", goConsole.ErrLoginRejected)
	}
	return out.Token, nil
}

// FetchProfile returns the profile of the operator token belongs to.
func (h *HTTPClient) FetchProfile(ctx context.Context, token string) (goConsole.Profile, error) {
	req, err := h.newRequest(ctx, http.MethodGet, h.profilePath, nil)
	if err != nil {
		return goConsole.Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.http.Do(req)
	if err != nil {
		return goConsole.Profile{}, fmt.Errorf("%w: %v", goConsole.ErrNetworkUnavailable, err)
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return goConsole.Profile{}, fmt.Errorf("%w: %s", goConsole.ErrCredentialRejected, describe(resp))
	}

	profile, err := decodeProfile(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return goConsole.Profile{}, fmt.Errorf("%w: decode profile: %v", goConsole.ErrCredentialRejected, err)
	}
	return profile, nil
}

func (h *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", goConsole.ErrNetworkUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	if id := goConsole.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	return req, nil
}

// decodeProfile maps the well-known fields and keeps the rest in Attributes.
func decodeProfile(r io.Reader) (goConsole.Profile, error) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return goConsole.Profile{}, err
	}
	if raw == nil {
		return goConsole.Profile{}, errors.New("empty profile")
	}

	var p goConsole.Profile
	take := func(key string) string {
		v, ok := raw[key]
		if !ok {
			return ""
		}
		delete(raw, key)
		switch t := v.(type) {
		case nil:
			return ""
		case string:
			return t
		case float64:
			return fmt.Sprintf("%.0f", t)
		default:
			return fmt.Sprint(t)
		}
	}
	p.ID = take("id")
	p.Name = take("name")
	p.Email = take("email")
	p.Role = take("role")

	if attrs, ok := raw["attributes"].(map[string]any); ok {
		delete(raw, "attributes")
		for k, v := range attrs {
			raw[k] = v
		}
	}
	if len(raw) > 0 {
		p.Attributes = raw
	}
	return p, nil
}

func describe(resp *http.Response) string {
	var body errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if len(data) > 0 && json.Unmarshal(data, &body) == nil {
		if msg := firstNonEmpty(body.Message, body.Error); msg != "" {
			return fmt.Sprintf("status %d: %s", resp.StatusCode, msg)
		}
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	_ = resp.Body.Close()
}
