package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/muscleupgym/gymgate/internal/devicelink"
	"github.com/muscleupgym/gymgate/internal/gymgate/service"
	"github.com/muscleupgym/gymgate/internal/gymgate/store"
	"github.com/muscleupgym/gymgate/internal/gymgate/store/memory"
	"github.com/muscleupgym/gymgate/internal/gymgate/types"
	"github.com/muscleupgym/gymgate/internal/httpapi"
	"github.com/muscleupgym/gymgate/internal/metrics"
)

// fakeLink is a canned-response DeviceLink.
type fakeLink struct {
	info       types.DeviceInfo
	infoErr    error
	connectErr error
	syncRes    types.SyncResult
	syncErr    error
	enrollRes  types.EnrollResult
	enrollErr  error
	state      devicelink.State
	deviceUp   bool

	lastSyncPage     int
	lastSyncPageSize int
}

func (f *fakeLink) ConnectDevice(context.Context) (types.DeviceInfo, error) {
	return f.info, f.connectErr
}

func (f *fakeLink) DisconnectDevice(context.Context) error { return nil }

func (f *fakeLink) GetDeviceInfo(context.Context) (types.DeviceInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeLink) SyncTemplates(_ context.Context, page, pageSize int) (types.SyncResult, error) {
	f.lastSyncPage = page
	f.lastSyncPageSize = pageSize
	return f.syncRes, f.syncErr
}

func (f *fakeLink) EnrollUser(context.Context, string, string, int) (types.EnrollResult, error) {
	return f.enrollRes, f.enrollErr
}

func (f *fakeLink) State() devicelink.State { return f.state }
func (f *fakeLink) IsDeviceConnected() bool { return f.deviceUp }

// Fixed clock: Tuesday 2026-03-10 12:00 UTC.
var testNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	srv     *httptest.Server
	link    *fakeLink
	members *memory.MemberStore
	logs    *memory.AccessLogStore
}

func newTestEnv(t *testing.T, authSecret string) *testEnv {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	members := memory.NewMemberStore()
	logs := memory.NewAccessLogStore()

	access := service.NewAccessService(members, logs, service.AccessConfig{
		DeviceID: "F22-TEST",
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	}, logger)

	link := &fakeLink{}

	s := httpapi.NewServer(httpapi.Dependencies{
		Logger:        logger,
		Addr:          "127.0.0.1:0",
		AccessService: access,
		Link:          link,
		LogStore:      logs,
		AuthSecret:    authSecret,
	})

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, link: link, members: members, logs: logs}
}

func (e *testEnv) seedActiveMember(deviceUserID int) {
	e.members.PutIdentity(store.MemberIdentity{
		DeviceUserID: deviceUserID,
		UserID:       "u-0001",
		FirstName:    "Luis",
		LastName:     "Hernandez",
	})
	e.members.PutMembership("u-0001", store.MembershipInfo{
		ID: "m-0001", PlanID: "p-0001", PlanName: "Gold Plan",
		StartDate: "2026-01-01", EndDate: "2026-04-01", Status: "active",
	})
}

func postJSON(t *testing.T, url, body string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func getJSON(t *testing.T, url string, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

// ── Decision endpoint ────────────────────────────────────────────────────────

func TestValidate_Granted(t *testing.T) {
	env := newTestEnv(t, "")
	env.seedActiveMember(42)

	resp, body := postJSON(t, env.srv.URL+"/v1/access/validate", `{"deviceUserId":42}`, nil)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("CORS origin = %q, want *", got)
	}

	var res types.DecisionResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.AccessGranted {
		t.Fatalf("expected grant, got %q", res.Reason)
	}
	if res.UserName != "Luis Hernandez" || res.MembershipType != "Gold Plan" {
		t.Errorf("unexpected payload: %+v", res)
	}
}

func TestValidate_MissingIdentifier(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := postJSON(t, env.srv.URL+"/v1/access/validate", `{}`, nil)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 even on a denial", resp.StatusCode)
	}
	var res types.DecisionResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.AccessGranted || res.Reason != "identifier required" {
		t.Errorf("unexpected payload: %+v", res)
	}
}

func TestValidate_MalformedBodyStillHTTP200(t *testing.T) {
	env := newTestEnv(t, "")
	deniedBefore := testutil.ToFloat64(metrics.Decisions.WithLabelValues("denied"))

	resp, body := postJSON(t, env.srv.URL+"/v1/access/validate", `{not json`, nil)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200: errors are in-band for the relay", resp.StatusCode)
	}
	var res types.DecisionResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.UserName != "Error" || res.Reason != "invalid request body" {
		t.Errorf("unexpected payload: %+v", res)
	}

	// A rejected payload is still a decision: it must show up in the
	// denied count.
	deniedAfter := testutil.ToFloat64(metrics.Decisions.WithLabelValues("denied"))
	if deniedAfter-deniedBefore != 1 {
		t.Errorf("denied counter moved by %v, want 1", deniedAfter-deniedBefore)
	}
}

func TestValidate_ExpiredMembership(t *testing.T) {
	env := newTestEnv(t, "")
	env.members.PutIdentity(store.MemberIdentity{
		DeviceUserID: 42, UserID: "u-0001", FirstName: "Luis", LastName: "Hernandez",
	})
	env.members.PutMembership("u-0001", store.MembershipInfo{
		ID: "m-0001", PlanID: "p-0001", PlanName: "Gold Plan",
		StartDate: "2025-01-01", EndDate: "2026-02-28", Status: "active",
	})

	_, body := postJSON(t, env.srv.URL+"/v1/access/validate", `{"deviceUserId":42}`, nil)

	var res types.DecisionResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.AccessGranted || !res.MembershipExpired {
		t.Errorf("unexpected payload: %+v", res)
	}
	if res.EndDate != "2026-02-28" {
		t.Errorf("endDate = %q, want 2026-02-28", res.EndDate)
	}
}

// ── Access logs ──────────────────────────────────────────────────────────────

func TestRecentLogs_CamelCasePayload(t *testing.T) {
	env := newTestEnv(t, "")
	env.seedActiveMember(42)

	postJSON(t, env.srv.URL+"/v1/access/validate", `{"deviceUserId":42}`, nil)

	resp, body := getJSON(t, env.srv.URL+"/v1/access/logs?limit=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var payload struct {
		Logs []map[string]any `json:"logs"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(payload.Logs))
	}
	entry := payload.Logs[0]
	if entry["accessType"] != "entry" || entry["accessMethod"] != "fingerprint" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["deviceId"] != "F22-TEST" {
		t.Errorf("deviceId = %v, want F22-TEST", entry["deviceId"])
	}
	if entry["success"] != true {
		t.Errorf("success = %v, want true", entry["success"])
	}
}

// ── Device endpoints ─────────────────────────────────────────────────────────

func TestDeviceStatus(t *testing.T) {
	env := newTestEnv(t, "")
	env.link.state = devicelink.StateConnected
	env.link.deviceUp = true

	_, body := getJSON(t, env.srv.URL+"/v1/device/status", nil)

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["linkState"] != "connected" || payload["deviceConnected"] != true {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestDeviceConnect_NotConnectedMapsTo409(t *testing.T) {
	env := newTestEnv(t, "")
	env.link.connectErr = devicelink.ErrNotConnected

	resp, body := postJSON(t, env.srv.URL+"/v1/device/connect", `{}`, nil)

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != "device_not_connected" {
		t.Errorf("code = %q, want device_not_connected", payload.Error.Code)
	}
}

func TestDeviceSync_DefaultsPageSize(t *testing.T) {
	env := newTestEnv(t, "")
	env.link.syncRes = types.SyncResult{Success: true, Templates: []types.TemplateData{}, Page: 0, PageSize: 10}

	resp, _ := postJSON(t, env.srv.URL+"/v1/device/sync", `{"page":0}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if env.link.lastSyncPageSize != 10 {
		t.Errorf("pageSize defaulted to %d, want 10", env.link.lastSyncPageSize)
	}
}

func TestDeviceEnroll_RequiresUserID(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := postJSON(t, env.srv.URL+"/v1/device/enroll", `{"userName":"Luis","fingerIndex":6}`, nil)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != "invalid_user_id" {
		t.Errorf("code = %q, want invalid_user_id", payload.Error.Code)
	}
}

// ── Auth ─────────────────────────────────────────────────────────────────────

func TestAuth_ManagementRequiresToken(t *testing.T) {
	env := newTestEnv(t, "op-secret")

	resp, _ := getJSON(t, env.srv.URL+"/v1/access/logs", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a token", resp.StatusCode)
	}

	resp, _ = getJSON(t, env.srv.URL+"/v1/access/logs", map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 with a garbage token", resp.StatusCode)
	}
}

func TestAuth_DecisionEndpointStaysOpen(t *testing.T) {
	env := newTestEnv(t, "op-secret")

	resp, _ := postJSON(t, env.srv.URL+"/v1/access/validate", `{"deviceUserId":42}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("the decision endpoint must not require auth; status = %d", resp.StatusCode)
	}
}

func TestAuth_TokenExchangeAndUse(t *testing.T) {
	env := newTestEnv(t, "op-secret")

	resp, _ := postJSON(t, env.srv.URL+"/v1/auth/token", `{"secret":"wrong"}`, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for a wrong secret", resp.StatusCode)
	}

	resp, body := postJSON(t, env.srv.URL+"/v1/auth/token", `{"secret":"op-secret"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for the right secret", resp.StatusCode)
	}
	var tok struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tok.Token == "" || tok.ExpiresAt <= time.Now().Unix() {
		t.Fatalf("unexpected token payload: %+v", tok)
	}

	resp, _ = getJSON(t, env.srv.URL+"/v1/access/logs", map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", tok.Token),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with a valid token", resp.StatusCode)
	}
}

func TestAuth_DisabledWithoutSecret(t *testing.T) {
	env := newTestEnv(t, "")

	resp, _ := getJSON(t, env.srv.URL+"/v1/access/logs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("with no secret configured auth is off; status = %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, env.srv.URL+"/v1/auth/token", `{"secret":"x"}`, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("token endpoint must not be registered without a secret; status = %d", resp.StatusCode)
	}
}

// ── Health ───────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	env.link.deviceUp = true

	resp, body := getJSON(t, env.srv.URL+"/v1/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["ok"] != true || payload["deviceConnected"] != true {
		t.Errorf("unexpected payload: %v", payload)
	}
}
