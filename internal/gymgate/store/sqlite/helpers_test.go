package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/muscleupgym/gymgate/internal/db"
)

// openTestDB opens a private in-memory database, migrated to the current
// schema. cache=shared keeps the database alive across the pool's single
// connection being recycled.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(context.Background(), sqlDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlDB
}

func newTestWriter(t *testing.T, sqlDB *sql.DB) *db.Worker {
	t.Helper()
	w := db.NewWorker(sqlDB)
	t.Cleanup(w.Close)
	return w
}

func nowMs() int64 { return time.Now().UTC().UnixMilli() }

func seedUser(t *testing.T, sqlDB *sql.DB, id, firstName, lastName string) {
	t.Helper()
	_, err := sqlDB.Exec(
		`INSERT INTO users(id, first_name, last_name, created_at_ms) VALUES(?, ?, ?, ?);`,
		id, firstName, lastName, nowMs())
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func seedPlan(t *testing.T, sqlDB *sql.DB, id, name string) {
	t.Helper()
	_, err := sqlDB.Exec(
		`INSERT INTO membership_plans(id, name, created_at_ms) VALUES(?, ?, ?);`,
		id, name, nowMs())
	if err != nil {
		t.Fatalf("seed plan: %v", err)
	}
}

func seedMembership(t *testing.T, sqlDB *sql.DB, id, userID, planID, startDate, endDate, status string) {
	t.Helper()
	_, err := sqlDB.Exec(
		`INSERT INTO user_memberships(id, user_id, plan_id, start_date, end_date, status, created_at_ms)
		 VALUES(?, ?, ?, ?, ?, ?, ?);`,
		id, userID, planID, startDate, endDate, status, nowMs())
	if err != nil {
		t.Fatalf("seed membership: %v", err)
	}
}

func seedRestriction(t *testing.T, sqlDB *sql.DB, planID string, hasTime int, days, start, end any) {
	t.Helper()
	_, err := sqlDB.Exec(
		`INSERT INTO plan_access_restrictions(plan_id, has_time_restrictions, allowed_days, access_start_time, access_end_time)
		 VALUES(?, ?, ?, ?, ?);`,
		planID, hasTime, days, start, end)
	if err != nil {
		t.Fatalf("seed restriction: %v", err)
	}
}

func seedFingerprint(t *testing.T, sqlDB *sql.DB, deviceUserID int, userID string) {
	t.Helper()
	_, err := sqlDB.Exec(
		`INSERT INTO fingerprint_templates(device_user_id, user_id, finger_index, created_at_ms)
		 VALUES(?, ?, 0, ?);`,
		deviceUserID, userID, nowMs())
	if err != nil {
		t.Fatalf("seed fingerprint: %v", err)
	}
}
