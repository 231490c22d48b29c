// Package portrait downloads user portraits. A portrait can be addressed
// directly by its image attributes or indirectly through the user it belongs
// to; the selector picks the cheapest sequence of remote calls for each case.
package portrait

import (
	"fmt"

	"github.com/illmade-knight/go-screenlets/pkg/session"
)

// Mode is the way a portrait download is parameterised. Every variant must
// implement both decision points, cache identity and plan selection, so adding
// a variant without handling it does not compile.
type Mode interface {
	// CacheKey identifies the logical target. It is prefixed with the variant
	// tag so different variants never collide.
	CacheKey() string
	// CacheAttributes are persisted alongside the cached value for lookup and audit.
	CacheAttributes() map[string]any

	plan(current *session.Identity) Plan
}

// ByAttributes addresses a portrait image directly.
type ByAttributes struct {
	PortraitID int64
	// UUID is the owner's correlation token.
	UUID string
	Male bool
}

// ByEmailAddress addresses the portrait of the user with this email in a tenant.
type ByEmailAddress struct {
	TenantID int64
	Email    string
}

// ByScreenName addresses the portrait of the user with this screen name in a tenant.
type ByScreenName struct {
	TenantID   int64
	ScreenName string
}

// ByUserID addresses the portrait of a user.
type ByUserID struct {
	UserID int64
}

func (m ByAttributes) CacheKey() string {
	return fmt.Sprintf("portraitId-%d-%s", m.PortraitID, gender(m.Male))
}

func (m ByAttributes) CacheAttributes() map[string]any {
	return map[string]any{"portraitId": m.PortraitID, "male": m.Male}
}

func (m ByEmailAddress) CacheKey() string {
	return fmt.Sprintf("emailAddress-%d-%s", m.TenantID, m.Email)
}

func (m ByEmailAddress) CacheAttributes() map[string]any {
	return map[string]any{"tenantId": m.TenantID, "emailAddress": m.Email}
}

func (m ByScreenName) CacheKey() string {
	return fmt.Sprintf("screenName-%d-%s", m.TenantID, m.ScreenName)
}

func (m ByScreenName) CacheAttributes() map[string]any {
	return map[string]any{"tenantId": m.TenantID, "screenName": m.ScreenName}
}

func (m ByUserID) CacheKey() string {
	return fmt.Sprintf("userId-%d", m.UserID)
}

func (m ByUserID) CacheAttributes() map[string]any {
	return map[string]any{"userId": m.UserID}
}

func gender(male bool) string {
	if male {
		return "male"
	}
	return "female"
}
