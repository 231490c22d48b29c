package microservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/illmade-knight/go-screenlets/pkg/cache"
	"github.com/illmade-knight/go-screenlets/pkg/connector"
	"github.com/illmade-knight/go-screenlets/pkg/interactor"
	"github.com/illmade-knight/go-screenlets/pkg/portrait"
	"github.com/illmade-knight/go-screenlets/pkg/rating"
	"github.com/illmade-knight/go-screenlets/pkg/session"
	"github.com/illmade-knight/go-screenlets/pkg/tracking"
	"github.com/rs/zerolog"
)

// PortraitClassName is the asset class reported in portrait view events.
const PortraitClassName = "UserPortrait"

// PortraitServiceConfig holds the settings of a PortraitService.
type PortraitServiceConfig struct {
	HTTPPort string
	// Strategy is the default cache strategy; requests may override it with ?strategy=.
	Strategy interactor.CacheStrategy
	// RequestTimeout bounds one interactor run. Zero means 30 seconds.
	RequestTimeout time.Duration
}

// PortraitService serves portraits and ratings from the portal server.
type PortraitService struct {
	*BaseServer

	cfg     PortraitServiceConfig
	sess    *session.Session
	builder *portrait.Builder
	gateway cache.Gateway
	tracker tracking.Tracker
	logger  zerolog.Logger
}

// NewPortraitService creates the service. gateway may be nil to disable
// caching, and tracker may be nil to disable tracking.
func NewPortraitService(
	cfg PortraitServiceConfig,
	sess *session.Session,
	builder *portrait.Builder,
	gateway cache.Gateway,
	tracker tracking.Tracker,
	logger zerolog.Logger,
) (*PortraitService, error) {
	if sess == nil {
		return nil, errors.New("session cannot be nil")
	}
	if builder == nil {
		return nil, errors.New("portrait builder cannot be nil")
	}
	if tracker == nil {
		tracker = tracking.Nop{}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	s := &PortraitService{
		BaseServer: NewBaseServer(logger, cfg.HTTPPort),
		cfg:        cfg,
		sess:       sess,
		builder:    builder,
		gateway:    gateway,
		tracker:    tracker,
		logger:     logger.With().Str("component", "PortraitService").Logger(),
	}
	s.registerHandlers()
	return s, nil
}

func (s *PortraitService) registerHandlers() {
	mux := s.Mux()
	mux.HandleFunc("GET /portraits", s.handlePortrait)
	mux.HandleFunc("GET /ratings", s.handleLoadRating)
	mux.HandleFunc("POST /ratings", s.handleAddRating)
	mux.HandleFunc("DELETE /ratings", s.handleDeleteRating)
}

func (s *PortraitService) handlePortrait(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode, err := ParseMode(q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	opts, err := s.interactorOptions(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	it := portrait.NewDownloadInteractor(mode, s.builder, s.gateway, s.logger, opts...)
	result, err := interactor.Run(ctx, it, s.sess)
	if err != nil {
		s.writeError(w, err)
		return
	}

	body, err := portrait.EncodePNG(result.Image)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.tracker.Track(r.Context(), tracking.NewEvent(tracking.EventView, PortraitClassName, result.UserID, mode.CacheKey()))

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Cache-Source", it.Source().String())
	if result.UserID != 0 {
		w.Header().Set("X-User-Id", strconv.FormatInt(result.UserID, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *PortraitService) handleLoadRating(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entryID, err1 := optionalInt(q, "entryId")
	classPK, err2 := optionalInt(q, "classPK")
	stepCount, err3 := optionalInt(q, "stepCount")
	if err := errors.Join(err1, err2, err3); err != nil {
		s.writeError(w, connector.NewInvalidArgumentError(err))
		return
	}
	s.runRating(w, r, rating.LoadRequest(entryID, classPK, q.Get("className"), int(stepCount)))
}

func (s *PortraitService) handleAddRating(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	classPK, err1 := optionalInt(q, "classPK")
	stepCount, err2 := optionalInt(q, "stepCount")
	score, err3 := strconv.ParseFloat(q.Get("score"), 64)
	if err3 != nil {
		err3 = fmt.Errorf("score: %w", err3)
	}
	if err := errors.Join(err1, err2, err3); err != nil {
		s.writeError(w, connector.NewInvalidArgumentError(err))
		return
	}
	s.runRating(w, r, rating.AddRequest(classPK, q.Get("className"), score, int(stepCount)))
}

func (s *PortraitService) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	classPK, err1 := optionalInt(q, "classPK")
	stepCount, err2 := optionalInt(q, "stepCount")
	if err := errors.Join(err1, err2); err != nil {
		s.writeError(w, connector.NewInvalidArgumentError(err))
		return
	}
	s.runRating(w, r, rating.DeleteRequest(classPK, q.Get("className"), int(stepCount)))
}

func (s *PortraitService) runRating(w http.ResponseWriter, r *http.Request, req rating.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	result, err := interactor.Run(ctx, rating.NewInteractor(req, s.logger, interactor.WithToken(requestToken(r))), s.sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write rating response.")
	}
}

func (s *PortraitService) interactorOptions(r *http.Request) ([]interactor.Option, error) {
	strategy := s.cfg.Strategy
	if raw := r.URL.Query().Get("strategy"); raw != "" {
		parsed, err := interactor.ParseCacheStrategy(raw)
		if err != nil {
			return nil, connector.NewInvalidArgumentError(err)
		}
		strategy = parsed
	}
	return []interactor.Option{
		interactor.WithStrategy(strategy),
		interactor.WithToken(requestToken(r)),
	}, nil
}

// requestToken reuses the caller's X-Request-Id so logs can be correlated.
func requestToken(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

// StatusFor maps an operation error to the HTTP status returned to clients.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, connector.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, connector.ErrNotAvailable):
		return http.StatusNotFound
	case errors.Is(err, connector.ErrMalformed), errors.Is(err, connector.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *PortraitService) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	s.logger.Warn().Err(err).Int("status", status).Str("kind", connector.KindOf(err).String()).Msg("Request failed.")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// ParseMode reads the portrait target from query parameters. Exactly one of
// userId, companyId with emailAddress, companyId with screenName, or
// portraitId with uuid must be given.
func ParseMode(q url.Values) (portrait.Mode, error) {
	invalid := func(format string, args ...any) error {
		return connector.NewInvalidArgumentError(fmt.Errorf(format, args...))
	}

	switch {
	case q.Has("portraitId"):
		id, err := strconv.ParseInt(q.Get("portraitId"), 10, 64)
		if err != nil {
			return nil, invalid("portraitId: %w", err)
		}
		uuid := q.Get("uuid")
		if uuid == "" {
			return nil, invalid("portraitId requires uuid")
		}
		male := true
		if q.Has("male") {
			if male, err = strconv.ParseBool(q.Get("male")); err != nil {
				return nil, invalid("male: %w", err)
			}
		}
		return portrait.ByAttributes{PortraitID: id, UUID: uuid, Male: male}, nil

	case q.Has("userId"):
		id, err := strconv.ParseInt(q.Get("userId"), 10, 64)
		if err != nil {
			return nil, invalid("userId: %w", err)
		}
		return portrait.ByUserID{UserID: id}, nil

	case q.Has("companyId"):
		companyID, err := strconv.ParseInt(q.Get("companyId"), 10, 64)
		if err != nil {
			return nil, invalid("companyId: %w", err)
		}
		if email := q.Get("emailAddress"); email != "" {
			return portrait.ByEmailAddress{TenantID: companyID, Email: email}, nil
		}
		if screenName := q.Get("screenName"); screenName != "" {
			return portrait.ByScreenName{TenantID: companyID, ScreenName: screenName}, nil
		}
		return nil, invalid("companyId requires emailAddress or screenName")

	default:
		return nil, invalid("one of userId, companyId or portraitId is required")
	}
}

func optionalInt(q url.Values, name string) (int64, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
