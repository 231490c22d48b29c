package portrait

import (
	"github.com/illmade-knight/go-screenlets/pkg/session"
)

// PlanKind is the shape of the remote work chosen for a Mode.
type PlanKind int

const (
	// PlanDirect fetches the image straight from the supplied attributes.
	PlanDirect PlanKind = iota + 1
	// PlanChained looks the user up first and fetches the image from the result.
	PlanChained
	// PlanLoggedIn fetches the image using the session's own cached identity,
	// skipping the user lookup.
	PlanLoggedIn
)

func (k PlanKind) String() string {
	switch k {
	case PlanDirect:
		return "direct"
	case PlanChained:
		return "chained"
	case PlanLoggedIn:
		return "logged-in"
	default:
		return "unknown"
	}
}

// ImageRequest addresses one portrait image.
type ImageRequest struct {
	PortraitID int64
	UUID       string
	Male       bool
}

// LookupKind is the remote user lookup a chained plan starts with.
type LookupKind int

const (
	LookupByUserID LookupKind = iota + 1
	LookupByEmail
	LookupByScreenName
)

// LookupRequest is the first step of a chained plan.
type LookupRequest struct {
	Kind       LookupKind
	TenantID   int64
	UserID     int64
	Email      string
	ScreenName string
}

// Plan is the outcome of strategy selection. Image is set for direct and
// logged-in plans, Lookup for chained ones. UserID is the portrait owner when
// it is known before any call is made.
type Plan struct {
	Kind   PlanKind
	Image  *ImageRequest
	Lookup *LookupRequest
	UserID int64
}

// Select picks the remote calls for mode given the session's current
// identity. It performs no I/O. When the requested user is the logged-in user
// and the session knows their portrait, the lookup is skipped.
func Select(mode Mode, sess *session.Session) Plan {
	if id, ok := sess.CurrentIdentity(); ok {
		return mode.plan(&id)
	}
	return mode.plan(nil)
}

func (m ByAttributes) plan(_ *session.Identity) Plan {
	return Plan{
		Kind:  PlanDirect,
		Image: &ImageRequest{PortraitID: m.PortraitID, UUID: m.UUID, Male: m.Male},
	}
}

func (m ByUserID) plan(current *session.Identity) Plan {
	if current != nil && current.UserID == m.UserID {
		if p, ok := loggedIn(current); ok {
			return p
		}
	}
	return Plan{
		Kind:   PlanChained,
		Lookup: &LookupRequest{Kind: LookupByUserID, UserID: m.UserID},
		UserID: m.UserID,
	}
}

func (m ByEmailAddress) plan(current *session.Identity) Plan {
	if current != nil && current.TenantID == m.TenantID && current.Email == m.Email {
		if p, ok := loggedIn(current); ok {
			return p
		}
	}
	return Plan{
		Kind:   PlanChained,
		Lookup: &LookupRequest{Kind: LookupByEmail, TenantID: m.TenantID, Email: m.Email},
	}
}

func (m ByScreenName) plan(current *session.Identity) Plan {
	if current != nil && current.TenantID == m.TenantID && current.ScreenName == m.ScreenName {
		if p, ok := loggedIn(current); ok {
			return p
		}
	}
	return Plan{
		Kind:   PlanChained,
		Lookup: &LookupRequest{Kind: LookupByScreenName, TenantID: m.TenantID, ScreenName: m.ScreenName},
	}
}

// loggedIn builds the shortcut plan. A session identity without a portrait id
// or correlation token cannot address its portrait, so the caller falls back
// to a lookup.
func loggedIn(current *session.Identity) (Plan, bool) {
	if !current.HasPortrait() {
		return Plan{}, false
	}
	return Plan{
		Kind:   PlanLoggedIn,
		Image:  &ImageRequest{PortraitID: current.PortraitID, UUID: current.UUID, Male: true},
		UserID: current.UserID,
	}, true
}
