package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// maxPayloadBytes bounds how much of a response body a connector will buffer.
const maxPayloadBytes = 16 << 20

// HTTPConnector downloads the resource at a URL. It is used for portrait images.
type HTTPConnector struct {
	Result

	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPConnector creates a connector for a GET of url. A nil client means http.DefaultClient.
func NewHTTPConnector(url string, client *http.Client, logger zerolog.Logger) *HTTPConnector {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPConnector{
		url:    url,
		client: client,
		logger: logger.With().Str("component", "HTTPConnector").Logger(),
	}
}

// URL returns the address this connector fetches.
func (c *HTTPConnector) URL() string {
	return c.url
}

// Execute performs the GET and records the body or a transport error.
func (c *HTTPConnector) Execute(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		failure := NewTransportError(0, fmt.Errorf("failed to build request: %w", err))
		c.record(nil, failure)
		return failure
	}

	data, err := doRequest(c.client, req)
	if err != nil {
		c.logger.Error().Err(err).Msg("Download failed.")
		c.record(nil, err)
		return err
	}

	c.logger.Debug().Int("bytes", len(data)).Msg("Download completed.")
	c.record(data, nil)
	return nil
}

// doRequest sends req and returns the body of a 2xx response. Any other
// outcome is reported as a transport *Error.
func doRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, NewTransportError(0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, NewTransportError(resp.StatusCode, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewTransportError(resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
	}
	return body, nil
}
