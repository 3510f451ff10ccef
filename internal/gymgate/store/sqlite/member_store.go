package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/muscleupgym/gymgate/internal/gymgate/store"
)

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

func (s *MemberStore) FindByDeviceUserID(ctx context.Context, deviceUserID int) (store.MemberIdentity, error) {
	var m store.MemberIdentity

	err := s.db.QueryRowContext(ctx, `
SELECT ft.device_user_id, u.id, u.first_name, u.last_name
FROM fingerprint_templates ft
JOIN users u ON u.id = ft.user_id
WHERE ft.device_user_id = ?;
`, deviceUserID).Scan(&m.DeviceUserID, &m.UserID, &m.FirstName, &m.LastName)

	if err == sql.ErrNoRows {
		return store.MemberIdentity{}, store.ErrNotFound
	}
	if err != nil {
		return store.MemberIdentity{}, fmt.Errorf("FindByDeviceUserID query: %w", err)
	}
	return m, nil
}

func (s *MemberStore) LatestActiveMembership(ctx context.Context, userID string) (store.MembershipInfo, error) {
	var mi store.MembershipInfo

	// Most generous expiry wins: a user transitioning between plans must
	// never be denied because an older active row sorted first.
	err := s.db.QueryRowContext(ctx, `
SELECT um.id, um.plan_id, mp.name, um.start_date, um.end_date, um.status
FROM user_memberships um
JOIN membership_plans mp ON mp.id = um.plan_id
WHERE um.user_id = ? AND um.status = 'active'
ORDER BY um.end_date DESC
LIMIT 1;
`, userID).Scan(&mi.ID, &mi.PlanID, &mi.PlanName, &mi.StartDate, &mi.EndDate, &mi.Status)

	if err == sql.ErrNoRows {
		return store.MembershipInfo{}, store.ErrNotFound
	}
	if err != nil {
		return store.MembershipInfo{}, fmt.Errorf("LatestActiveMembership query: %w", err)
	}
	return mi, nil
}

func (s *MemberStore) PlanRestriction(ctx context.Context, planID string) (store.Restriction, error) {
	var (
		r       store.Restriction
		hasTime int
		days    sql.NullString
		start   sql.NullString
		end     sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
SELECT has_time_restrictions, allowed_days, access_start_time, access_end_time
FROM plan_access_restrictions
WHERE plan_id = ?;
`, planID).Scan(&hasTime, &days, &start, &end)

	if err == sql.ErrNoRows {
		return store.Restriction{}, store.ErrNotFound
	}
	if err != nil {
		return store.Restriction{}, fmt.Errorf("PlanRestriction query: %w", err)
	}

	r.HasTimeRestrictions = hasTime == 1
	if days.Valid {
		r.AllowedDays = splitDays(days.String)
	}
	// Empty bounds fall back to the whole day, matching the source system.
	r.StartTime = "00:00"
	r.EndTime = "23:59"
	if start.Valid && strings.TrimSpace(start.String) != "" {
		r.StartTime = strings.TrimSpace(start.String)
	}
	if end.Valid && strings.TrimSpace(end.String) != "" {
		r.EndTime = strings.TrimSpace(end.String)
	}

	return r, nil
}

func splitDays(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
