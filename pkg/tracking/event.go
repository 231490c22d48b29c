// Package tracking reports audience-targeting actions (views, clicks, sessions)
// to the analytics pipeline. Delivery is best-effort: failures are logged and
// never returned to the caller.
package tracking

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType names a tracked action.
type EventType string

const (
	EventInstallation    EventType = "installation"
	EventSession         EventType = "session"
	EventView            EventType = "view"
	EventFormView        EventType = "formView"
	EventFormSubmit      EventType = "formSubmit"
	EventClick           EventType = "click"
	EventButtonClick     EventType = "buttonClick"
	EventSessionOnScreen EventType = "sessionOnScreen"
	EventATOnScreen      EventType = "atOnScreen"
)

// Referrer kinds.
const (
	ReferrerConsumer    = "consumer"
	ReferrerUserSegment = "userSegment"
	ReferrerPlaceholder = "placeholder"
	ReferrerCampaign    = "campaign"
)

// Referrer attributes an event to the targeting entities that caused it.
type Referrer struct {
	ClassName string
	ClassPKs  []int64
}

// NewReferrer creates a referrer for className and its primary keys.
func NewReferrer(className string, classPKs ...int64) Referrer {
	return Referrer{ClassName: className, ClassPKs: classPKs}
}

func (r Referrer) formattedPKs() string {
	parts := make([]string, len(r.ClassPKs))
	for i, pk := range r.ClassPKs {
		parts[i] = strconv.FormatInt(pk, 10)
	}
	return strings.Join(parts, ",")
}

// Event is one tracked action on an asset.
type Event struct {
	ID        string
	Type      EventType
	ClassName string
	ClassPK   int64
	ElementID string
	GroupID   int64
	Referrers []Referrer
	Timestamp time.Time
}

// NewEvent creates an event with a fresh id, stamped with the current time.
func NewEvent(eventType EventType, className string, classPK int64, elementID string, referrers ...Referrer) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ClassName: className,
		ClassPK:   classPK,
		ElementID: elementID,
		Referrers: referrers,
		Timestamp: time.Now().UTC(),
	}
}

// Context describes who produced the events of a tracker.
type Context struct {
	CompanyID  int64  `json:"companyId"`
	LanguageID string `json:"languageId"`
	UserID     int64  `json:"userId"`
	LayoutURL  string `json:"layoutURL"`
}

// Tracker delivers events.
type Tracker interface {
	// Track queues event for delivery. It never blocks on the network.
	Track(ctx context.Context, event Event)
	// Stop flushes queued events, giving up when ctx is done.
	Stop(ctx context.Context) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Track(context.Context, Event) {}

func (Nop) Stop(context.Context) error { return nil }

type wireReferrer struct {
	ClassName string `json:"referrerClassName"`
	ClassPKs  string `json:"referrerClassPKs"`
}

type wireProperties struct {
	ClassName string         `json:"className"`
	ClassPK   int64          `json:"classPK"`
	ElementID string         `json:"elementId"`
	GroupID   int64          `json:"groupId"`
	Referrers []wireReferrer `json:"referrers"`
}

// wireEvent is the analytics processor's event layout.
type wireEvent struct {
	ID         string         `json:"id,omitempty"`
	Event      EventType      `json:"event"`
	Properties wireProperties `json:"properties"`
	Timestamp  string         `json:"timestamp"`
}

func toWire(e Event, groupID int64) wireEvent {
	if e.GroupID != 0 {
		groupID = e.GroupID
	}
	refs := make([]wireReferrer, len(e.Referrers))
	for i, r := range e.Referrers {
		refs[i] = wireReferrer{ClassName: r.ClassName, ClassPKs: r.formattedPKs()}
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return wireEvent{
		ID:    e.ID,
		Event: e.Type,
		Properties: wireProperties{
			ClassName: e.ClassName,
			ClassPK:   e.ClassPK,
			ElementID: e.ElementID,
			GroupID:   groupID,
			Referrers: refs,
		},
		Timestamp: ts.Format(time.RFC3339),
	}
}
