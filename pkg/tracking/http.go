package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// AnalyticsPath is the analytics processor's servlet on the portal server.
	AnalyticsPath = "/o/analytics-processor/track"
	// UserAgent identifies requests from this tracker.
	UserAgent = "Go AT"
)

// HTTPTracker posts each event to the portal's analytics processor as a form
// with "events" and "context" fields.
type HTTPTracker struct {
	endpoint       string
	client         *http.Client
	trackerContext Context
	groupID        int64
	logger         zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewHTTPTracker creates a tracker posting to server. A nil client gets a
// client with a ten second timeout.
func NewHTTPTracker(server string, groupID int64, client *http.Client, trackerContext Context, logger zerolog.Logger) *HTTPTracker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTracker{
		endpoint:       strings.TrimSuffix(server, "/") + AnalyticsPath,
		client:         client,
		trackerContext: trackerContext,
		groupID:        groupID,
		logger:         logger.With().Str("component", "HTTPTracker").Logger(),
	}
}

// Track sends event in the background. Events arriving after Stop are dropped.
func (h *HTTPTracker) Track(ctx context.Context, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		h.logger.Warn().Str("event_id", event.ID).Msg("Tracker stopped, dropping event.")
		return
	}

	h.wg.Add(1)
	// The post outlives the caller's request, so only its values are kept.
	sendCtx := context.WithoutCancel(ctx)
	go func() {
		defer h.wg.Done()
		if err := h.send(sendCtx, event); err != nil {
			h.logger.Error().Err(err).Str("event_id", event.ID).Msg("Error sending tracking action.")
		}
	}()
}

func (h *HTTPTracker) send(ctx context.Context, event Event) error {
	events, err := json.Marshal([]wireEvent{toWire(event, h.groupID)})
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}
	trackerContext, err := json.Marshal(h.trackerContext)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	form := url.Values{
		"events":  {string(events)},
		"context": {string(trackerContext)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build tracking request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("tracking request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analytics processor returned status %d", resp.StatusCode)
	}
	h.logger.Debug().Str("event_id", event.ID).Msg("Tracking event sent.")
	return nil
}

// Stop rejects new events and waits for in-flight posts.
func (h *HTTPTracker) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
