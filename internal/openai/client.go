package openai

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

const DefaultBaseURL = "https://api.openai.com"

// APIError is a non-2xx response from the remote API.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (HTTP %d): %s", e.Service, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Retryable reports true only for rate limiting; retry.Policy keys off it.
func (e *APIError) Retryable() bool {
	return e.RateLimited()
}

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		// No client timeout: calls are bounded by the caller's context.
		HTTPClient: &http.Client{},
	}
}

func (c *Client) do(req *http.Request, service string) ([]byte, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("%s: API key not set: set MEETSCRIBE_OPENAI_API_KEY or add openai_api_key to config", service)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s API: %w", service, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", service, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Service: service, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
