package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SeedDev inserts a minimal working data set so the decision endpoint can be
// exercised immediately in a dev environment: one member with an active
// membership on a weekday-restricted plan, enrolled as device user 1.
//
// Rows are keyed by fixed uuids so re-running the seeder is idempotent.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC()
	nowMs := now.UnixMilli()

	userID := uuid.MustParse("6f1d2c3a-0000-4000-8000-000000000001").String()
	planID := uuid.MustParse("6f1d2c3a-0000-4000-8000-000000000002").String()
	membershipID := uuid.MustParse("6f1d2c3a-0000-4000-8000-000000000003").String()

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO users(id, first_name, last_name, email, created_at_ms)
VALUES (?, 'Dev', 'Member', 'dev.member@example.com', ?);`, userID, nowMs); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO membership_plans(id, name, description, duration_days, created_at_ms)
VALUES (?, 'Weekday Plan', 'Dev plan, weekdays 06:00-22:00', 30, ?);`, planID, nowMs); err != nil {
		return fmt.Errorf("seed plan: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO plan_access_restrictions(
  plan_id, has_time_restrictions, allowed_days, access_start_time, access_end_time
) VALUES (?, 1, 'monday,tuesday,wednesday,thursday,friday', '06:00', '22:00');`,
		planID); err != nil {
		return fmt.Errorf("seed restriction: %w", err)
	}

	start := now.AddDate(0, 0, -1).Format("2006-01-02")
	end := now.AddDate(0, 1, 0).Format("2006-01-02")
	if _, err := db.ExecContext(ctx, `
INSERT INTO user_memberships(id, user_id, plan_id, start_date, end_date, status, created_at_ms)
VALUES (?, ?, ?, ?, ?, 'active', ?)
ON CONFLICT(id) DO UPDATE SET
  end_date = excluded.end_date,
  status   = 'active';`,
		membershipID, userID, planID, start, end, nowMs); err != nil {
		return fmt.Errorf("seed membership: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO fingerprint_templates(device_user_id, user_id, finger_index, created_at_ms)
VALUES (1, ?, 0, ?);`, userID, nowMs); err != nil {
		return fmt.Errorf("seed fingerprint mapping: %w", err)
	}

	return nil
}
