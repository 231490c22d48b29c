package connector_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/illmade-knight/go-screenlets/pkg/connector"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headerAuth struct{ value string }

func (a headerAuth) Authenticate(req *http.Request) {
	req.Header.Set("Authorization", a.value)
}

func TestHTTPConnector_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("payload"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	t.Run("Success records the body", func(t *testing.T) {
		c := connector.NewHTTPConnector(server.URL+"/ok", nil, zerolog.Nop())

		require.NoError(t, c.Execute(context.Background()))

		assert.Equal(t, []byte("payload"), c.ResultData())
		assert.NoError(t, c.LastError())
		assert.Equal(t, server.URL+"/ok", c.URL())
	})

	t.Run("Non-2xx status is a transport error", func(t *testing.T) {
		c := connector.NewHTTPConnector(server.URL+"/missing", server.Client(), zerolog.Nop())

		err := c.Execute(context.Background())

		require.Error(t, err)
		var connErr *connector.Error
		require.True(t, errors.As(err, &connErr))
		assert.Equal(t, connector.KindTransport, connErr.Kind)
		assert.Equal(t, http.StatusNotFound, connErr.StatusCode)
		assert.Nil(t, c.ResultData())
		assert.Equal(t, err, c.LastError())
	})

	t.Run("Unreachable server is a transport error", func(t *testing.T) {
		c := connector.NewHTTPConnector("http://127.0.0.1:1/nothing", nil, zerolog.Nop())

		err := c.Execute(context.Background())

		assert.ErrorIs(t, err, connector.ErrTransport)
	})
}

func TestJSONWSConnector_Invoke(t *testing.T) {
	// Arrange
	var gotBody map[string]map[string]any
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/jsonws/invoke", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		assert.NoError(t, dec.Decode(&gotBody))
		_, _ = fmt.Fprint(w, `{"userId": 42, "portraitId": 7, "uuid": "abc"}`)
	}))
	t.Cleanup(server.Close)
	endpoint := connector.Endpoint{Server: server.URL + "/", Auth: headerAuth{value: "Basic x"}}

	// Act
	c := connector.NewUserByEmailConnector(endpoint, 10, "joe@example.com", zerolog.Nop())
	err := c.Execute(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Basic x", gotAuth)
	require.Contains(t, gotBody, "/user/get-user-by-email-address")
	params := gotBody["/user/get-user-by-email-address"]
	assert.Equal(t, json.Number("10"), params["companyId"])
	assert.Equal(t, "joe@example.com", params["emailAddress"])

	attrs := c.UserAttributes()
	assert.Equal(t, json.Number("42"), attrs["userId"])
	assert.Equal(t, "abc", attrs["uuid"])
}

func TestJSONWSConnector_Failures(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "server exception", status: http.StatusOK, body: `{"exception":"No User exists"}`, wantErr: connector.ErrTransport},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: connector.ErrTransport},
		{name: "not an object", status: http.StatusOK, body: `[1,2]`, wantErr: connector.ErrMalformed},
		{name: "null body", status: http.StatusOK, body: `null`, wantErr: connector.ErrMalformed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = fmt.Fprint(w, tc.body)
			}))
			t.Cleanup(server.Close)

			c := connector.NewUserByIDConnector(connector.Endpoint{Server: server.URL}, 1, zerolog.Nop())
			err := c.Execute(context.Background())

			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, c.LastError(), tc.wantErr)
			assert.Nil(t, c.ResultData())
			assert.Nil(t, c.UserAttributes())
		})
	}
}

func TestJSONWSConnector_Params(t *testing.T) {
	c := connector.NewUserByScreenNameConnector(connector.Endpoint{Server: "http://portal"}, 3, "ann", zerolog.Nop())

	assert.Equal(t, "/user/get-user-by-screen-name", c.Method())
	assert.Equal(t, map[string]any{"companyId": int64(3), "screenName": "ann"}, c.Params())
}
