package portrait_test

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/illmade-knight/go-screenlets/pkg/connector"
	"github.com/illmade-knight/go-screenlets/pkg/portrait"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func pngFixture(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.NRGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// countingFactory records which connectors a plan constructs.
type countingFactory struct {
	inner   portrait.ServerFactory
	lookups atomic.Int32
	images  atomic.Int32

	mu        sync.Mutex
	imageURLs []string
	requests  []portrait.LookupRequest
}

func newCountingFactory() *countingFactory {
	return &countingFactory{inner: portrait.ServerFactory{Logger: zerolog.Nop()}}
}

func (f *countingFactory) UserLookup(endpoint connector.Endpoint, req portrait.LookupRequest) connector.Connector {
	f.lookups.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.inner.UserLookup(endpoint, req)
}

func (f *countingFactory) Image(u string, client *http.Client) connector.Connector {
	f.images.Add(1)
	f.mu.Lock()
	f.imageURLs = append(f.imageURLs, u)
	f.mu.Unlock()
	return f.inner.Image(u, client)
}

func (f *countingFactory) lastImageQuery(t *testing.T) url.Values {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.imageURLs)
	parsed, err := url.Parse(f.imageURLs[len(f.imageURLs)-1])
	require.NoError(t, err)
	return parsed.Query()
}

// fakePortal serves the user lookup and portrait endpoints.
type fakePortal struct {
	*httptest.Server
	requests    atomic.Int32
	user        map[string]any
	image       []byte
	imageStatus int

	mu      sync.Mutex
	methods []string
}

func newFakePortal(t *testing.T, user map[string]any, image []byte) *fakePortal {
	t.Helper()
	p := &fakePortal{user: user, image: image, imageStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/jsonws/invoke", func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		var body map[string]map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for method := range body {
			p.mu.Lock()
			p.methods = append(p.methods, method)
			p.mu.Unlock()
		}
		if p.user == nil {
			_, _ = w.Write([]byte(`{"exception":"No User exists"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(p.user)
	})
	imageHandler := func(w http.ResponseWriter, r *http.Request) {
		p.requests.Add(1)
		if p.imageStatus != http.StatusOK {
			w.WriteHeader(p.imageStatus)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(p.image)
	}
	mux.HandleFunc("/image/user_male/_portrait", imageHandler)
	mux.HandleFunc("/image/user_female/_portrait", imageHandler)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakePortal) calledMethods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.methods...)
}
