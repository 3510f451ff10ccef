package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookup methods when no row matches.
// Callers must distinguish it from infrastructure errors: the decision
// pipeline treats "not found" as a policy denial and anything else as a
// system error.
var ErrNotFound = errors.New("not found")

// MemberIdentity is the result of resolving a device-local identifier:
// the fingerprint mapping joined with the user it belongs to.
type MemberIdentity struct {
	DeviceUserID int
	UserID       string // uuid
	FirstName    string
	LastName     string
}

// DisplayName renders the name shown on the kiosk.
func (m MemberIdentity) DisplayName() string {
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

// MembershipInfo is the most relevant membership for a user: the
// active one with the latest end date.
type MembershipInfo struct {
	ID        string // uuid
	PlanID    string // uuid
	PlanName  string
	StartDate string // civil date 'YYYY-MM-DD'
	EndDate   string // civil date 'YYYY-MM-DD'
	Status    string
}

// Restriction is a plan's daily access window. Weekday names are lowercase
// English ("monday".."sunday"); times are zero-padded 'HH:MM' strings so
// they compare lexically.
type Restriction struct {
	HasTimeRestrictions bool
	AllowedDays         []string
	StartTime           string
	EndTime             string
}

// AllowsDay reports whether the weekday is in the allowed set.
// An empty set allows every day.
func (r Restriction) AllowsDay(day string) bool {
	if len(r.AllowedDays) == 0 {
		return true
	}
	for _, d := range r.AllowedDays {
		if d == day {
			return true
		}
	}
	return false
}

// MemberStore is the read side of the membership data model.
// All three lookups return ErrNotFound for zero rows.
type MemberStore interface {
	// FindByDeviceUserID resolves a device-local identifier to a member.
	FindByDeviceUserID(ctx context.Context, deviceUserID int) (MemberIdentity, error)

	// LatestActiveMembership returns the user's active membership with the
	// latest end date (most generous expiry wins).
	LatestActiveMembership(ctx context.Context, userID string) (MembershipInfo, error)

	// PlanRestriction returns the plan's access restriction row.
	PlanRestriction(ctx context.Context, planID string) (Restriction, error)
}
