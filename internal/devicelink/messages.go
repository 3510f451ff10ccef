package devicelink

import (
	"encoding/json"

	"github.com/muscleupgym/gymgate/internal/gymgate/types"
)

// Inbound message kinds from the companion process. Replies are correlated
// by kind, not by a per-request id: the protocol does not echo ids, so the
// link enforces at most one outstanding request per kind instead.
const (
	kindDeviceStatus          = "device_status"
	kindDeviceConnected       = "device_connected"
	kindDeviceDisconnected    = "device_disconnected"
	kindDeviceConnectionError = "device_connection_error"
	kindDeviceInfo            = "device_info"
	kindSyncTemplatesResult   = "sync_templates_result"
	kindEnrollmentSuccess     = "enrollment_success"
	kindEnrollmentError       = "enrollment_error"
	kindError                 = "error"
)

// Outbound actions.
const (
	actionConnectDevice    = "connect_device"
	actionDisconnectDevice = "disconnect_device"
	actionGetDeviceInfo    = "get_device_info"
	actionSyncTemplates    = "sync_templates"
	actionEnrollUser       = "enroll_user"
)

// inboundMessage is the envelope every companion-process message arrives in.
// Which fields are populated depends on the kind.
type inboundMessage struct {
	Type       string            `json:"type"`
	Status     string            `json:"status,omitempty"`
	Message    string            `json:"message,omitempty"`
	DeviceInfo *types.DeviceInfo `json:"device_info,omitempty"`
	Data       json.RawMessage   `json:"data,omitempty"`
}

type simpleCommand struct {
	Action string `json:"action"`
}

type syncCommand struct {
	Action   string `json:"action"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

type enrollCommand struct {
	Action      string `json:"action"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	FingerIndex int    `json:"fingerIndex"`
}
