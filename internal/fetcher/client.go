package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"fleet-tracking-backend/config"
	"fleet-tracking-backend/internal/logger"
	"fleet-tracking-backend/internal/model"
)

// Client fetches the device listing from the fleet API.
type Client struct {
	baseURL string
	apiKey  string
	headers map[string]string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a client for the configured API.
func NewClient(cfg *config.APIConfig) *Client {
	log := logger.WithComponent("fetcher")

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", cfg.HTTPProxy).Msg("invalid proxy URL, fetching without a proxy")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.Key,
		headers: cfg.Headers,
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		log: log,
	}
}

// devicesURL builds {API_URL}/device?latest_point=true&api-key={API_KEY}.
func (c *Client) devicesURL() string {
	q := url.Values{}
	q.Set("latest_point", "true")
	q.Set("api-key", c.apiKey)
	return c.baseURL + "/device?" + q.Encode()
}

// FetchDevices returns the current device listing. A body without result_list
// yields an empty list, not an error, and a malformed entry never fails the
// listing.
func (c *Client) FetchDevices(ctx context.Context) ([]model.Device, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.devicesURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	devices, skipped, ok, err := decodeResultList(body)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.log.Warn().Msg("response has no result_list array, treating as empty")
		return []model.Device{}, nil
	}
	if skipped > 0 {
		c.log.Warn().Int("skipped", skipped).Msg("result_list has entries that are not device objects")
	}

	c.log.Debug().Int("devices", len(devices)).Msg("fetched device listing")
	return devices, nil
}
