package types

// DecisionRequest is the payload the reader relay posts for every
// identification event. Timestamp is optional; when absent or unparseable
// the server's clock is used.
type DecisionRequest struct {
	DeviceUserID int    `json:"deviceUserId"`
	Timestamp    string `json:"timestamp,omitempty"` // RFC 3339
}

// DecisionResult is the in-band decision envelope. The decision endpoint
// always answers HTTP 200 with one of these; infrastructure faults are
// signalled with SystemError rather than an HTTP status so the relay's
// retry logic stays trivial.
type DecisionResult struct {
	AccessGranted     bool   `json:"accessGranted"`
	UserName          string `json:"userName"`
	Reason            string `json:"reason"`
	MembershipType    string `json:"membershipType,omitempty"`
	EndDate           string `json:"endDate,omitempty"` // civil date 'YYYY-MM-DD'
	MembershipExpired bool   `json:"membershipExpired,omitempty"`
	OutsideHours      bool   `json:"outsideHours,omitempty"`
	SystemError       bool   `json:"systemError,omitempty"`
	ValidationTimeMs  int64  `json:"validationTimeMs"`
	DeviceUserID      int    `json:"deviceUserId,omitempty"`
}
