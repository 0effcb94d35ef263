// Package kalshi is a REST client for the public Kalshi trade API.
package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// DefaultBaseURL is the production trade API root.
const DefaultBaseURL = "https://api.elections.kalshi.com/trade-api/v2"

const userAgent = "kalshitracker/1.0"

// ClientConfig holds the network configuration for a Client. Proxy use is
// explicit: ambient HTTP_PROXY/HTTPS_PROXY variables are never consulted.
type ClientConfig struct {
	BaseURL  string
	APIKeyID string
	Timeout  time.Duration
	// ProxyURL routes requests through an HTTP proxy when non-empty.
	ProxyURL string
	// HTTPClient replaces the constructed client entirely (used by tests).
	HTTPClient *http.Client
}

// Client is the REST client for the Kalshi exchange API.
type Client struct {
	baseURL    string
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a new Kalshi REST client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.Proxy = nil
		if cfg.ProxyURL != "" {
			proxy, err := url.Parse(cfg.ProxyURL)
			if err != nil {
				return nil, fmt.Errorf("kalshi: parse proxy url: %w", err)
			}
			transport.Proxy = http.ProxyURL(proxy)
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	return &Client{
		baseURL:    baseURL,
		apiKeyID:   cfg.APIKeyID,
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

// SetRSAPrivateKey loads an RSA private key from PEM-encoded bytes and
// configures the client for RSA-signed authentication. Without a key the
// client sends unauthenticated requests, which the public trades endpoint
// accepts.
func (c *Client) SetRSAPrivateKey(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS1 as fallback.
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	c.privateKey = rsaKey
	return nil
}

// GetTrades fetches one page of trades. A page whose body lacks the
// "trades" or "cursor" keys, or contains an invalid trade, is reported as
// domain.ErrMalformedResponse.
func (c *Client) GetTrades(ctx context.Context, q TradesQuery) (TradesPage, error) {
	params := url.Values{}
	if q.MinTS > 0 {
		params.Set("min_ts", strconv.FormatInt(q.MinTS, 10))
	}
	if q.MaxTS > 0 {
		params.Set("max_ts", strconv.FormatInt(q.MaxTS, 10))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		params.Set("cursor", q.Cursor)
	}
	if q.Ticker != "" {
		params.Set("ticker", q.Ticker)
	}

	path := "/markets/trades"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return TradesPage{}, fmt.Errorf("kalshi: get trades: %w", err)
	}

	var resp tradesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return TradesPage{}, fmt.Errorf("kalshi: decode trades: %w: %v", domain.ErrMalformedResponse, err)
	}
	if resp.Trades == nil {
		return TradesPage{}, fmt.Errorf("kalshi: decode trades: %w: missing trades", domain.ErrMalformedResponse)
	}
	if resp.Cursor == nil {
		return TradesPage{}, fmt.Errorf("kalshi: decode trades: %w: missing cursor", domain.ErrMalformedResponse)
	}

	page := TradesPage{
		Trades: make([]domain.Trade, 0, len(*resp.Trades)),
		Cursor: *resp.Cursor,
	}
	for _, t := range *resp.Trades {
		trade, err := t.ToDomain()
		if err != nil {
			return TradesPage{}, fmt.Errorf("kalshi: decode trades: %w", err)
		}
		page.Trades = append(page.Trades, trade)
	}
	if page.Cursor != "" && page.Cursor == q.Cursor {
		return TradesPage{}, fmt.Errorf("kalshi: decode trades: %w: cursor did not advance", domain.ErrMalformedResponse)
	}

	return page, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, optionally signs, sends, and reads an HTTP request
// against the Kalshi API.
func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.privateKey != nil {
		if err := c.signRequest(req, method); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := c.checkStatus(resp, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// signRequest adds RSA authentication headers to the HTTP request.
// Kalshi uses RSA-PSS-SHA256 signatures over timestamp + method + path,
// where path is the full URL path without the query string.
func (c *Client) signRequest(req *http.Request, method string) error {
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	message := ts + method + req.URL.Path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("RSA sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)

	return nil
}

// checkStatus maps non-2xx HTTP responses to *APIError.
func (c *Client) checkStatus(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)
	code, message := apiErr.codeAndMessage()
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       code,
		Message:    message,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
	}
}
