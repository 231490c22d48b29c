// Package session describes who is talking to the portal server. A Session is
// passed explicitly to every interactor run.
package session

import (
	"net/http"
	"time"

	"github.com/illmade-knight/go-screenlets/pkg/connector"
)

// Identity is the cached identity of the logged-in user.
type Identity struct {
	TenantID   int64
	UserID     int64
	PortraitID int64
	// UUID is the user's correlation token; portrait URLs carry a hash of it.
	UUID       string
	Email      string
	ScreenName string
}

// HasPortrait reports whether the identity carries enough to address the
// user's portrait directly: both the portrait id and the correlation token.
func (i Identity) HasPortrait() bool {
	return i.PortraitID != 0 && i.UUID != ""
}

// BasicAuth authenticates requests with a username and password.
type BasicAuth struct {
	Username string
	Password string
}

// Authenticate implements connector.Authenticator.
func (b BasicAuth) Authenticate(req *http.Request) {
	if b.Username == "" {
		return
	}
	req.SetBasicAuth(b.Username, b.Password)
}

// Session is the server a run talks to and, when logged in, the current user.
type Session struct {
	Server string
	Auth   connector.Authenticator
	Client *http.Client

	identity *Identity
}

// New creates a session with no logged-in user.
func New(server string, auth connector.Authenticator, timeout time.Duration) *Session {
	client := http.DefaultClient
	if timeout > 0 {
		client = &http.Client{Timeout: timeout}
	}
	return &Session{Server: server, Auth: auth, Client: client}
}

// WithIdentity returns a copy of s logged in as id.
func (s *Session) WithIdentity(id Identity) *Session {
	cp := *s
	cp.identity = &id
	return &cp
}

// CurrentIdentity returns the logged-in user, if any. It is safe on a nil session.
func (s *Session) CurrentIdentity() (Identity, bool) {
	if s == nil || s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Endpoint returns the connector endpoint for this session.
func (s *Session) Endpoint() connector.Endpoint {
	return connector.Endpoint{Server: s.Server, Auth: s.Auth, Client: s.Client}
}
