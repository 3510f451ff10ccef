package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/muscleupgym/gymgate/internal/db"
	"github.com/muscleupgym/gymgate/internal/gymgate/store"
)

type AccessLogStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAccessLogStore(db *sql.DB, writer *dbpkg.Worker) *AccessLogStore {
	return &AccessLogStore{db: db, writer: writer}
}

func (s *AccessLogStore) Append(ctx context.Context, rec store.AccessLogRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	recordedMs := rec.RecordedAt.UTC().UnixMilli()

	var userID any
	if rec.UserID != "" {
		userID = rec.UserID
	}

	var denialReason any
	if rec.DenialReason != "" {
		denialReason = rec.DenialReason
	}

	var deviceUserID any
	if rec.DeviceUserID > 0 {
		deviceUserID = rec.DeviceUserID
	}

	var deviceTsMs any
	if rec.DeviceTimestamp != nil {
		deviceTsMs = rec.DeviceTimestamp.UTC().UnixMilli()
	}

	var success int
	if rec.Success {
		success = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_logs(
  id, user_id, device_id, access_type, access_method,
  success, denial_reason, device_user_id, device_timestamp_ms, recorded_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.ID, userID, rec.DeviceID, rec.AccessType, rec.AccessMethod,
			success, denialReason, deviceUserID, deviceTsMs, recordedMs,
		); err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		return nil
	})
}

func (s *AccessLogStore) Recent(ctx context.Context, limit int) ([]store.AccessLogRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, device_id, access_type, access_method,
       success, denial_reason, device_user_id, device_timestamp_ms, recorded_at_ms
FROM access_logs
ORDER BY recorded_at_ms DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("Recent query: %w", err)
	}
	defer rows.Close()

	var out []store.AccessLogRecord
	for rows.Next() {
		var (
			rec          store.AccessLogRecord
			userID       sql.NullString
			denialReason sql.NullString
			deviceUserID sql.NullInt64
			deviceTsMs   sql.NullInt64
			success      int
			recordedMs   int64
		)
		if err := rows.Scan(
			&rec.ID, &userID, &rec.DeviceID, &rec.AccessType, &rec.AccessMethod,
			&success, &denialReason, &deviceUserID, &deviceTsMs, &recordedMs,
		); err != nil {
			return nil, fmt.Errorf("Recent scan: %w", err)
		}

		rec.UserID = userID.String
		rec.DenialReason = denialReason.String
		rec.Success = success == 1
		if deviceUserID.Valid {
			rec.DeviceUserID = int(deviceUserID.Int64)
		}
		if deviceTsMs.Valid {
			t := time.UnixMilli(deviceTsMs.Int64).UTC()
			rec.DeviceTimestamp = &t
		}
		rec.RecordedAt = time.UnixMilli(recordedMs).UTC()

		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *AccessLogStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM access_logs WHERE recorded_at_ms < ?;`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan delete: %w", err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("PruneOlderThan rows affected: %w", err)
		}
		return nil
	})
	return deleted, err
}
