// Package rating loads, adds and deletes the ratings attached to a portal asset.
// Results always come from the server; ratings are never cached.
package rating

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-screenlets/pkg/connector"
	"github.com/illmade-knight/go-screenlets/pkg/interactor"
	"github.com/illmade-knight/go-screenlets/pkg/session"
	"github.com/rs/zerolog"
)

// DefaultStepCount is the number of rating buckets used when a request leaves it unset.
const DefaultStepCount = 5

const (
	methodGetEntries = "/screens.screensratingsentry/get-ratings-entries"
	methodUpdate     = "/screens.screensratingsentry/update-rating-entry"
	methodDelete     = "/screens.screensratingsentry/delete-rating-entry"
)

// AssetRating is the server's summary of an asset's ratings.
type AssetRating struct {
	ClassPK    int64   `json:"classPK"`
	ClassName  string  `json:"className"`
	Ratings    []int   `json:"ratings"`
	Average    float64 `json:"average"`
	UserScore  float64 `json:"userScore"`
	TotalScore float64 `json:"totalScore"`
	TotalCount int     `json:"totalCount"`
}

// Action is the kind of rating call.
type Action int

const (
	ActionLoad Action = iota
	ActionAdd
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionLoad:
		return "load"
	case ActionAdd:
		return "add"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Request is the input of one rating call.
type Request struct {
	Action    Action
	EntryID   int64
	ClassPK   int64
	ClassName string
	Score     float64
	StepCount int
}

// LoadRequest reads the ratings of an entry, or of the asset identified by
// classPK and className when entryID is zero.
func LoadRequest(entryID, classPK int64, className string, stepCount int) Request {
	return Request{Action: ActionLoad, EntryID: entryID, ClassPK: classPK, ClassName: className, StepCount: stepCount}
}

// AddRequest sets the current user's score for an asset. Score must be in [0, 1].
func AddRequest(classPK int64, className string, score float64, stepCount int) Request {
	return Request{Action: ActionAdd, ClassPK: classPK, ClassName: className, Score: score, StepCount: stepCount}
}

// DeleteRequest removes the current user's score for an asset.
func DeleteRequest(classPK int64, className string, stepCount int) Request {
	return Request{Action: ActionDelete, ClassPK: classPK, ClassName: className, StepCount: stepCount}
}

// Validate reports malformed input as an InvalidArgument error.
func (r Request) Validate() error {
	switch r.Action {
	case ActionLoad:
		if r.EntryID == 0 && (r.ClassName == "" || r.ClassPK == 0) {
			return connector.NewInvalidArgumentError(errors.New("either entryId or className and classPK must be set"))
		}
	case ActionAdd:
		if r.Score < 0 || r.Score > 1 {
			return connector.NewInvalidArgumentError(fmt.Errorf("score %v is not between 0 and 1", r.Score))
		}
	case ActionDelete:
	default:
		return connector.NewInvalidArgumentError(fmt.Errorf("unknown rating action %d", int(r.Action)))
	}
	if r.StepCount < 0 {
		return connector.NewInvalidArgumentError(fmt.Errorf("step count %d is negative", r.StepCount))
	}
	return nil
}

func (r Request) invocation() (string, map[string]any) {
	steps := r.StepCount
	if steps == 0 {
		steps = DefaultStepCount
	}
	switch r.Action {
	case ActionAdd:
		return methodUpdate, map[string]any{
			"classPK": r.ClassPK, "className": r.ClassName, "score": r.Score, "stepCount": steps,
		}
	case ActionDelete:
		return methodDelete, map[string]any{
			"classPK": r.ClassPK, "className": r.ClassName, "stepCount": steps,
		}
	default:
		if r.EntryID != 0 {
			return methodGetEntries, map[string]any{"entryId": r.EntryID, "stepCount": steps}
		}
		return methodGetEntries, map[string]any{
			"classPK": r.ClassPK, "className": r.ClassName, "stepCount": steps,
		}
	}
}

// Operation runs a Request against the portal.
type Operation struct {
	req    Request
	logger zerolog.Logger
}

// NewOperation creates the rating operation for req.
func NewOperation(req Request, logger zerolog.Logger) *Operation {
	return &Operation{
		req:    req,
		logger: logger.With().Str("component", "RatingOperation").Str("action", req.Action.String()).Logger(),
	}
}

// NewInteractor creates an interactor that runs req.
func NewInteractor(req Request, logger zerolog.Logger, opts ...interactor.Option) *interactor.Interactor[AssetRating] {
	opts = append([]interactor.Option{interactor.WithLogger(logger)}, opts...)
	return interactor.New[AssetRating](NewOperation(req, logger), opts...)
}

// CreateConnector validates the request and builds the web-service call.
func (o *Operation) CreateConnector(_ context.Context, sess *session.Session) (connector.Connector, error) {
	if err := o.req.Validate(); err != nil {
		o.logger.Debug().Err(err).Msg("Rejected rating request.")
		return nil, err
	}
	if sess == nil {
		return nil, connector.NewInvalidArgumentError(errors.New("rating calls need a session"))
	}
	method, params := o.req.invocation()
	return connector.NewJSONWSConnector(sess.Endpoint(), method, params, o.logger), nil
}

// CompletedConnector decodes the returned rating summary.
func (o *Operation) CompletedConnector(c connector.Connector) (AssetRating, error) {
	if c.LastError() != nil {
		return AssetRating{}, c.LastError()
	}
	return Decode(c.ResultData())
}

// Decode parses a rating summary. Anything that is not a JSON object is Malformed.
func Decode(data []byte) (AssetRating, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return AssetRating{}, connector.NewMalformedError(fmt.Errorf("failed to decode rating: %w", errOrNull(err)))
	}
	for _, field := range []string{"classPK", "className", "ratings"} {
		if _, ok := raw[field]; !ok {
			return AssetRating{}, connector.NewMalformedError(fmt.Errorf("rating is missing %q", field))
		}
	}
	var rating AssetRating
	if err := json.Unmarshal(data, &rating); err != nil {
		return AssetRating{}, connector.NewMalformedError(fmt.Errorf("failed to decode rating: %w", err))
	}
	return rating, nil
}

func errOrNull(err error) error {
	if err != nil {
		return err
	}
	return errors.New("payload is null")
}
