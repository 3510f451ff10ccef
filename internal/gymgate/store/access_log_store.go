package store

import (
	"context"
	"time"
)

// AccessLogRecord captures a single access decision for the audit log.
// UserID is empty when identity resolution failed; the column is nullable
// so this is safe.
type AccessLogRecord struct {
	ID              string // uuid; assigned by the store when empty
	UserID          string
	DeviceID        string
	AccessType      string // "entry" | "denied"
	AccessMethod    string // "fingerprint"
	Success         bool
	DenialReason    string // empty on success
	DeviceUserID    int
	DeviceTimestamp *time.Time // device-reported event time, if any
	RecordedAt      time.Time
}

// AccessLogStore persists access decisions as an append-only audit log.
type AccessLogStore interface {
	Append(ctx context.Context, rec AccessLogRecord) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]AccessLogRecord, error)

	// PruneOlderThan deletes records recorded before cutoff and reports
	// how many were removed.
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
