package portrait

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/illmade-knight/go-screenlets/pkg/connector"
	"github.com/illmade-knight/go-screenlets/pkg/session"
	"github.com/rs/zerolog"
)

// ConnectorFactory constructs the remote calls a plan needs.
type ConnectorFactory interface {
	UserLookup(endpoint connector.Endpoint, req LookupRequest) connector.Connector
	Image(url string, client *http.Client) connector.Connector
}

// AttributeSource is a completed connector that exposes a decoded user.
type AttributeSource interface {
	UserAttributes() map[string]any
}

// ServerFactory builds connectors against the portal server.
type ServerFactory struct {
	Logger zerolog.Logger
}

// UserLookup builds the user lookup for req.
func (f ServerFactory) UserLookup(endpoint connector.Endpoint, req LookupRequest) connector.Connector {
	switch req.Kind {
	case LookupByEmail:
		return connector.NewUserByEmailConnector(endpoint, req.TenantID, req.Email, f.Logger)
	case LookupByScreenName:
		return connector.NewUserByScreenNameConnector(endpoint, req.TenantID, req.ScreenName, f.Logger)
	default:
		return connector.NewUserByIDConnector(endpoint, req.UserID, f.Logger)
	}
}

// Image builds the download of a portrait URL.
func (f ServerFactory) Image(url string, client *http.Client) connector.Connector {
	return connector.NewHTTPConnector(url, client, f.Logger)
}

// Builder turns a Plan into a connector or connector chain.
type Builder struct {
	factory ConnectorFactory
	now     func() time.Time
	logger  zerolog.Logger
}

// NewBuilder creates a Builder. A nil now means time.Now.
func NewBuilder(factory ConnectorFactory, now func() time.Time, logger zerolog.Logger) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{factory: factory, now: now, logger: logger}
}

// Build returns a single image connector for direct and logged-in plans and a
// two-step chain for chained ones.
func (b *Builder) Build(plan Plan, sess *session.Session) (connector.Connector, error) {
	if sess == nil {
		return nil, connector.NewInvalidArgumentError(errors.New("a session is required"))
	}
	switch plan.Kind {
	case PlanDirect, PlanLoggedIn:
		return b.factory.Image(PortraitURL(sess.Server, *plan.Image, b.now()), sess.Client), nil
	case PlanChained:
		head := b.factory.UserLookup(sess.Endpoint(), *plan.Lookup)
		step := imageStep{factory: b.factory, server: sess.Server, client: sess.Client, now: b.now}
		return connector.NewChain(head, step.next, b.logger), nil
	default:
		return nil, fmt.Errorf("unknown plan kind %d", plan.Kind)
	}
}

// imageStep resolves the second step of a chained plan. It holds only what it
// needs to build the image call.
type imageStep struct {
	factory ConnectorFactory
	server  string
	client  *http.Client
	now     func() time.Time
}

func (s imageStep) next(completed connector.Connector, step int) (connector.Connector, error) {
	if step > 0 {
		return nil, nil
	}
	src, ok := completed.(AttributeSource)
	if !ok {
		return nil, connector.NewNotAvailableError(fmt.Errorf("step %d produced no user attributes", step))
	}
	req, _, err := ImageRequestFromAttributes(src.UserAttributes())
	if err != nil {
		return nil, err
	}
	return s.factory.Image(PortraitURL(s.server, req, s.now()), s.client), nil
}

// ImageRequestFromAttributes extracts the portrait address and owner from a
// looked-up user. Missing fields are reported as NotAvailable.
func ImageRequestFromAttributes(attrs map[string]any) (ImageRequest, int64, error) {
	if attrs == nil {
		return ImageRequest{}, 0, connector.NewNotAvailableError(errors.New("no user attributes"))
	}
	portraitID, ok := asInt64(attrs["portraitId"])
	if !ok {
		return ImageRequest{}, 0, connector.NewNotAvailableError(errors.New("user has no portraitId"))
	}
	uuid, ok := attrs["uuid"].(string)
	if !ok || uuid == "" {
		return ImageRequest{}, 0, connector.NewNotAvailableError(errors.New("user has no uuid"))
	}
	userID, ok := asInt64(attrs["userId"])
	if !ok {
		return ImageRequest{}, 0, connector.NewNotAvailableError(errors.New("user has no userId"))
	}
	return ImageRequest{PortraitID: portraitID, UUID: uuid, Male: true}, userID, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
