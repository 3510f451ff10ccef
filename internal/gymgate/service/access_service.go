package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/muscleupgym/gymgate/internal/gymgate/store"
	"github.com/muscleupgym/gymgate/internal/gymgate/types"
)

// Reason strings surfaced to the kiosk. Formatted variants (expiry,
// weekday, window) are built in place.
const (
	ReasonIdentifierRequired      = "identifier required"
	ReasonIdentifierNotRegistered = "identifier not registered"
	ReasonNoActiveMembership      = "no active membership"
	ReasonAccessAuthorized        = "access authorized"
	ReasonInternalError           = "internal system error"
	ReasonIdentityQueryError      = "error querying identity"
	ReasonMembershipQueryError    = "error querying membership"
)

// RestrictionFetchPolicy controls what happens when the time-window
// restriction row cannot be fetched because of a store fault.
//
// The source system fails open here (a brief restrictions-table outage must
// not lock every member out), which is the opposite of the fail-closed
// default on the identity and membership paths. It is kept as an explicit,
// configurable policy so the choice stays reviewable.
type RestrictionFetchPolicy int

const (
	RestrictionFailOpen RestrictionFetchPolicy = iota
	RestrictionFailClosed
)

// AccessConfig carries the engine's fixed parameters.
type AccessConfig struct {
	// DeviceID is stamped on every audit row.
	DeviceID string

	// Location is the facility's civil timezone; "today", weekday and
	// time-of-day are always derived in it, regardless of the timezone of
	// incoming timestamps.
	Location *time.Location

	// DecideTimeout bounds the whole pipeline. A deadline hit degrades to
	// a system-error denial instead of hanging the kiosk. Defaults to 3s.
	DecideTimeout time.Duration

	// RestrictionPolicy selects fail-open or fail-closed for the
	// time-window fetch.
	RestrictionPolicy RestrictionFetchPolicy

	// Now is the clock; defaults to time.Now. Injected by tests.
	Now func() time.Time
}

// AccessService turns a raw identification event into a binary, explainable
// access decision plus one append-only audit row. Decide never returns an
// error: faults become in-band system-error denials.
type AccessService struct {
	members store.MemberStore
	logs    store.AccessLogStore
	cfg     AccessConfig
	logger  *log.Logger
}

func NewAccessService(members store.MemberStore, logs store.AccessLogStore, cfg AccessConfig, logger *log.Logger) *AccessService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DecideTimeout <= 0 {
		cfg.DecideTimeout = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "F22-MAIN"
	}
	return &AccessService{members: members, logs: logs, cfg: cfg, logger: logger}
}

// Decide runs the ordered validation pipeline. The first failing step
// determines the reason; later steps are not consulted.
func (s *AccessService) Decide(ctx context.Context, req types.DecisionRequest) (result types.DecisionResult) {
	start := s.cfg.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("decide: recovered panic: %v", r)
			result = types.DecisionResult{
				UserName:         "System Error",
				Reason:           ReasonInternalError,
				SystemError:      true,
				ValidationTimeMs: s.elapsedMs(start),
				DeviceUserID:     req.DeviceUserID,
			}
		}
	}()

	// Nothing to key an audit row on: short-circuit with no store access
	// and no log write.
	if req.DeviceUserID <= 0 {
		return types.DecisionResult{
			UserName:         "Error",
			Reason:           ReasonIdentifierRequired,
			ValidationTimeMs: s.elapsedMs(start),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.DecideTimeout)
	defer cancel()

	// Event time: device-reported when parseable, server clock otherwise.
	deviceTime := parseOptionalTimestamp(req.Timestamp)
	eventTime := s.cfg.Now()
	if deviceTime != nil {
		eventTime = *deviceTime
	}

	// 1. Identity resolution.
	ident, err := s.members.FindByDeviceUserID(ctx, req.DeviceUserID)
	if errors.Is(err, store.ErrNotFound) {
		res := types.DecisionResult{
			UserName:         "Unknown User",
			Reason:           ReasonIdentifierNotRegistered,
			ValidationTimeMs: s.elapsedMs(start),
			DeviceUserID:     req.DeviceUserID,
		}
		s.record(ctx, "", req.DeviceUserID, deviceTime, false, res.Reason)
		return res
	}
	if err != nil {
		return s.systemError(ctx, start, req.DeviceUserID, deviceTime, "", ReasonIdentityQueryError, err)
	}

	// 2. Membership resolution: latest-ending active membership wins.
	membership, err := s.members.LatestActiveMembership(ctx, ident.UserID)
	if errors.Is(err, store.ErrNotFound) {
		res := types.DecisionResult{
			UserName:          ident.DisplayName(),
			Reason:            ReasonNoActiveMembership,
			MembershipExpired: true,
			ValidationTimeMs:  s.elapsedMs(start),
			DeviceUserID:      req.DeviceUserID,
		}
		s.record(ctx, ident.UserID, req.DeviceUserID, deviceTime, false, res.Reason)
		return res
	}
	if err != nil {
		return s.systemError(ctx, start, req.DeviceUserID, deviceTime, ident.UserID, ReasonMembershipQueryError, err)
	}

	// 3. Expiration: civil-date comparison in the facility timezone.
	// Zero-padded 'YYYY-MM-DD' strings compare lexically.
	today := s.cfg.Now().In(s.cfg.Location).Format("2006-01-02")
	if membership.EndDate < today {
		res := types.DecisionResult{
			UserName:          ident.DisplayName(),
			Reason:            fmt.Sprintf("membership expired on %s", membership.EndDate),
			MembershipType:    membership.PlanName,
			EndDate:           membership.EndDate,
			MembershipExpired: true,
			ValidationTimeMs:  s.elapsedMs(start),
			DeviceUserID:      req.DeviceUserID,
		}
		s.record(ctx, ident.UserID, req.DeviceUserID, deviceTime, false, res.Reason)
		return res
	}

	// 4. Time-window restriction.
	if ok, reason := s.checkWindow(ctx, membership.PlanID, eventTime); !ok {
		res := types.DecisionResult{
			UserName:         ident.DisplayName(),
			Reason:           reason,
			MembershipType:   membership.PlanName,
			OutsideHours:     true,
			ValidationTimeMs: s.elapsedMs(start),
			DeviceUserID:     req.DeviceUserID,
		}
		s.record(ctx, ident.UserID, req.DeviceUserID, deviceTime, false, res.Reason)
		return res
	}

	// 5. Grant.
	res := types.DecisionResult{
		AccessGranted:    true,
		UserName:         ident.DisplayName(),
		Reason:           ReasonAccessAuthorized,
		MembershipType:   membership.PlanName,
		EndDate:          membership.EndDate,
		ValidationTimeMs: s.elapsedMs(start),
		DeviceUserID:     req.DeviceUserID,
	}
	s.record(ctx, ident.UserID, req.DeviceUserID, deviceTime, true, res.Reason)
	return res
}

// checkWindow applies the plan's access restriction to the event time.
// Returns (true, "") when access is allowed.
func (s *AccessService) checkWindow(ctx context.Context, planID string, eventTime time.Time) (bool, string) {
	restriction, err := s.members.PlanRestriction(ctx, planID)
	if errors.Is(err, store.ErrNotFound) {
		return true, "" // no restriction row: unrestricted access
	}
	if err != nil {
		if s.cfg.RestrictionPolicy == RestrictionFailClosed {
			s.logger.Printf("restriction fetch failed (fail-closed): %v", err)
			return false, "schedule restrictions unavailable"
		}
		// Explicit fail-open: a restrictions outage must not lock the
		// whole facility; see RestrictionFetchPolicy.
		s.logger.Printf("restriction fetch failed, treating plan %s as unrestricted (fail-open): %v", planID, err)
		return true, ""
	}

	if !restriction.HasTimeRestrictions {
		return true, ""
	}

	local := eventTime.In(s.cfg.Location)
	weekday := strings.ToLower(local.Weekday().String())
	timeOfDay := local.Format("15:04")

	if !restriction.AllowsDay(weekday) {
		return false, fmt.Sprintf("access not allowed on %ss", weekday)
	}

	// Inclusive on both ends, matching the source behavior.
	if timeOfDay < restriction.StartTime || timeOfDay > restriction.EndTime {
		return false, fmt.Sprintf("outside allowed hours (%s - %s)", restriction.StartTime, restriction.EndTime)
	}

	return true, ""
}

func (s *AccessService) systemError(ctx context.Context, start time.Time, deviceUserID int, deviceTime *time.Time, userID, reason string, err error) types.DecisionResult {
	s.logger.Printf("decide: %s: %v", reason, err)
	s.record(ctx, userID, deviceUserID, deviceTime, false, reason)
	return types.DecisionResult{
		UserName:         "System Error",
		Reason:           reason,
		SystemError:      true,
		ValidationTimeMs: s.elapsedMs(start),
		DeviceUserID:     deviceUserID,
	}
}

// record appends the audit row for a decision. Errors are intentionally
// not returned to the caller: a failed audit write must not change or
// delay the decision already computed.
func (s *AccessService) record(ctx context.Context, userID string, deviceUserID int, deviceTime *time.Time, granted bool, reason string) {
	accessType := "denied"
	denialReason := reason
	if granted {
		accessType = "entry"
		denialReason = ""
	}

	rec := store.AccessLogRecord{
		UserID:          userID,
		DeviceID:        s.cfg.DeviceID,
		AccessType:      accessType,
		AccessMethod:    "fingerprint",
		Success:         granted,
		DenialReason:    denialReason,
		DeviceUserID:    deviceUserID,
		DeviceTimestamp: deviceTime,
		RecordedAt:      s.cfg.Now().UTC(),
	}

	if err := s.logs.Append(ctx, rec); err != nil {
		s.logger.Printf("access log append failed: %v", err)
	}
}

func (s *AccessService) elapsedMs(start time.Time) int64 {
	return s.cfg.Now().Sub(start).Milliseconds()
}

// parseOptionalTimestamp attempts to parse a device-reported timestamp.
// Returns nil if the string is empty or unparseable.
func parseOptionalTimestamp(v string) *time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		u := t.UTC()
		return &u
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		u := t.UTC()
		return &u
	}
	return nil
}
