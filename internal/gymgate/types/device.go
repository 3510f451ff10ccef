package types

// DeviceInfo is the descriptor the companion process reports for the
// physical fingerprint reader.
type DeviceInfo struct {
	Status         string `json:"status"`
	IP             string `json:"ip"`
	Port           int    `json:"port"`
	Firmware       string `json:"firmware,omitempty"`
	Serial         string `json:"serial,omitempty"`
	UsersCount     int    `json:"users_count,omitempty"`
	TemplatesCount int    `json:"templates_count,omitempty"`
}

// TemplateData describes one enrolled fingerprint slot on the device.
type TemplateData struct {
	UID         int    `json:"uid"`
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	FingerIndex int    `json:"finger_index"`
	HasTemplate bool   `json:"has_template"`
}

// SyncResult is one page of the device's template table.
// An empty page (zero templates) is a valid, non-error result.
type SyncResult struct {
	Success    bool           `json:"success"`
	Templates  []TemplateData `json:"templates"`
	Count      int            `json:"count"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	Total      int            `json:"total"`
	TotalPages int            `json:"totalPages"`
}

// EnrollResult is the outcome of an enrollment command.
type EnrollResult struct {
	Success bool   `json:"success"`
	UID     int    `json:"uid"`
	Message string `json:"message"`
}
