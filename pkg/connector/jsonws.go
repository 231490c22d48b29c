package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// invokePath is the portal's batch JSON web-service endpoint.
const invokePath = "/api/jsonws/invoke"

// Authenticator decorates outgoing requests with credentials.
type Authenticator interface {
	Authenticate(req *http.Request)
}

// Endpoint is the portal server a JSON web-service call is sent to.
type Endpoint struct {
	Server string
	Auth   Authenticator
	Client *http.Client
}

// JSONWSConnector invokes one portal JSON web-service method and keeps the raw
// response body as its payload.
type JSONWSConnector struct {
	Result

	endpoint Endpoint
	method   string
	params   map[string]any
	logger   zerolog.Logger
}

// NewJSONWSConnector creates a call to method (e.g. "/user/get-user-by-id") with params.
func NewJSONWSConnector(endpoint Endpoint, method string, params map[string]any, logger zerolog.Logger) *JSONWSConnector {
	if endpoint.Client == nil {
		endpoint.Client = http.DefaultClient
	}
	return &JSONWSConnector{
		endpoint: endpoint,
		method:   method,
		params:   params,
		logger:   logger.With().Str("component", "JSONWSConnector").Str("method", method).Logger(),
	}
}

// Method returns the web-service method name.
func (c *JSONWSConnector) Method() string {
	return c.method
}

// Params returns the call parameters.
func (c *JSONWSConnector) Params() map[string]any {
	return c.params
}

// Execute posts the invocation and records the response body.
func (c *JSONWSConnector) Execute(ctx context.Context) error {
	data, err := c.invoke(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("Web-service call failed.")
		c.record(nil, err)
		return err
	}
	c.record(data, nil)
	return nil
}

func (c *JSONWSConnector) invoke(ctx context.Context) ([]byte, error) {
	params := c.params
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{c.method: params})
	if err != nil {
		return nil, NewTransportError(0, fmt.Errorf("failed to encode invocation: %w", err))
	}

	url := strings.TrimSuffix(c.endpoint.Server, "/") + invokePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewTransportError(0, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.endpoint.Auth != nil {
		c.endpoint.Auth.Authenticate(req)
	}

	data, err := doRequest(c.endpoint.Client, req)
	if err != nil {
		return nil, err
	}
	if msg := serverException(data); msg != "" {
		return nil, NewTransportError(http.StatusOK, errors.New(msg))
	}
	return data, nil
}

// serverException extracts the message of an {"exception": "..."} reply, which
// the portal sends with a 200 status.
func serverException(data []byte) string {
	var reply struct {
		Exception string `json:"exception"`
	}
	if err := json.Unmarshal(data, &reply); err != nil {
		return ""
	}
	return reply.Exception
}

// UserConnector looks up a portal user and exposes the user's attributes.
type UserConnector struct {
	*JSONWSConnector
	attributes map[string]any
}

// NewUserByIDConnector looks a user up by user id.
func NewUserByIDConnector(endpoint Endpoint, userID int64, logger zerolog.Logger) *UserConnector {
	return &UserConnector{JSONWSConnector: NewJSONWSConnector(endpoint, "/user/get-user-by-id",
		map[string]any{"userId": userID}, logger)}
}

// NewUserByEmailConnector looks a user up by company and email address.
func NewUserByEmailConnector(endpoint Endpoint, companyID int64, email string, logger zerolog.Logger) *UserConnector {
	return &UserConnector{JSONWSConnector: NewJSONWSConnector(endpoint, "/user/get-user-by-email-address",
		map[string]any{"companyId": companyID, "emailAddress": email}, logger)}
}

// NewUserByScreenNameConnector looks a user up by company and screen name.
func NewUserByScreenNameConnector(endpoint Endpoint, companyID int64, screenName string, logger zerolog.Logger) *UserConnector {
	return &UserConnector{JSONWSConnector: NewJSONWSConnector(endpoint, "/user/get-user-by-screen-name",
		map[string]any{"companyId": companyID, "screenName": screenName}, logger)}
}

// Execute runs the lookup and decodes the returned user. A body that is not a
// JSON object is recorded as malformed.
func (c *UserConnector) Execute(ctx context.Context) error {
	if err := c.JSONWSConnector.Execute(ctx); err != nil {
		return err
	}
	attrs, err := DecodeAttributes(c.ResultData())
	if err != nil {
		c.record(nil, err)
		return err
	}
	c.attributes = attrs
	return nil
}

// UserAttributes returns the decoded user, nil before a successful Execute.
func (c *UserConnector) UserAttributes() map[string]any {
	return c.attributes
}

// DecodeAttributes parses a JSON object, keeping numbers as json.Number so
// 64-bit ids survive.
func DecodeAttributes(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, NewMalformedError(fmt.Errorf("failed to decode attributes: %w", err))
	}
	if attrs == nil {
		return nil, NewMalformedError(errors.New("attributes payload is null"))
	}
	return attrs, nil
}
