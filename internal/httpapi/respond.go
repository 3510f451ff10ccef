package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/muscleupgym/gymgate/internal/devicelink"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeDeviceError maps DeviceLink failures onto management-API statuses.
func (s *Server) writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, devicelink.ErrNotConnected):
		writeError(w, http.StatusConflict, "device_not_connected", "device service is not connected")
	case errors.Is(err, devicelink.ErrCallPending):
		writeError(w, http.StatusConflict, "call_pending", "a call of this kind is already in flight")
	case errors.Is(err, devicelink.ErrCallTimeout):
		writeError(w, http.StatusGatewayTimeout, "device_timeout", "device service did not answer in time")
	default:
		s.logger.Printf("device call error: %v", err)
		writeError(w, http.StatusBadGateway, "device_error", err.Error())
	}
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("not positive: %d", n)
	}
	return n, nil
}
