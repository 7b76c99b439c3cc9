package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/clipradar/detector"
	"github.com/onnwee/clipradar/settings"
	"github.com/onnwee/clipradar/twitchapi"
)

// testHarness wires handlers over an in-memory store and an offline detector
// whose only rung is the synthetic generator.
func testHarness(t *testing.T) (http.Handler, settings.Store, *detector.Detector) {
	t.Helper()
	store := settings.NewMemoryStore()
	det := &detector.Detector{
		Store:           store,
		Tokens:          twitchapi.NewTokenSource(twitchapi.Identity{Kind: twitchapi.IdentityBuiltIn, ClientID: twitchapi.BuiltInClientID}),
		Synthetic:       twitchapi.NewSyntheticSource(42),
		ChatActivity:    func() int { return 100 },
		ClipsPerChannel: 5,
	}
	mon := detector.NewMonitor(det, time.Hour, detector.Options{})
	h := NewHandlers(context.Background(), store, det, mon, nil)
	return NewMux(h), store, det
}

func doJSON(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	mux, _, _ := testHarness(t)
	rec := doJSON(t, mux, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestReadyzWithoutDB(t *testing.T) {
	mux, _, _ := testHarness(t)
	rec := doJSON(t, mux, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMomentsSynthetic(t *testing.T) {
	mux, _, _ := testHarness(t)
	rec := doJSON(t, mux, http.MethodGet, "/api/moments?synthetic=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res detector.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !res.UsingSyntheticData {
		t.Error("usingSyntheticData = false, want true")
	}
	if len(res.Moments) != 10 {
		t.Fatalf("len(moments) = %d, want 10", len(res.Moments))
	}
	for _, m := range res.Moments {
		if !twitchapi.IsSynthetic(m.ID) {
			t.Errorf("moment id %q should carry a synthetic prefix", m.ID)
		}
	}
}

func TestMomentsMethodNotAllowed(t *testing.T) {
	mux, _, _ := testHarness(t)
	rec := doJSON(t, mux, http.MethodPost, "/api/moments", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestMomentsMissingCredentials(t *testing.T) {
	mux, store, _ := testHarness(t)
	// user_public mode with no client id stored
	if err := store.Set(context.Background(), settings.KeyCredentialMode, settings.ModeUserPublic); err != nil {
		t.Fatal(err)
	}
	rec := doJSON(t, mux, http.MethodGet, "/api/moments", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body = %s", rec.Code, rec.Body.String())
	}
}

func TestMonitorLifecycle(t *testing.T) {
	mux, _, _ := testHarness(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/monitor/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var snap detector.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if snap.State != detector.StateActive {
		t.Errorf("state = %s, want active", snap.State)
	}
	if len(snap.Moments) == 0 {
		t.Error("started monitor should carry moments")
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/monitor", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/monitor/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPost, "/api/monitor/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if snap.State != detector.StateIdle {
		t.Errorf("state after stop = %s, want idle", snap.State)
	}
}

func TestMonitorStartMethodNotAllowed(t *testing.T) {
	mux, _, _ := testHarness(t)
	rec := doJSON(t, mux, http.MethodGet, "/api/monitor/start", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	mux, _, _ := testHarness(t)
	rec := doJSON(t, mux, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if body["monitor_state"] != "idle" {
		t.Errorf("monitor_state = %v, want idle", body["monitor_state"])
	}
	if body["credential_mode"] != "builtin" {
		t.Errorf("credential_mode = %v, want builtin", body["credential_mode"])
	}
}

func TestSettingsDefaults(t *testing.T) {
	mux, _, _ := testHarness(t)
	rec := doJSON(t, mux, http.MethodGet, "/api/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var view settingsView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if view.Mode != settings.ModeBuiltIn {
		t.Errorf("mode = %s, want builtin", view.Mode)
	}
	if view.HasSecret || view.Confidential {
		t.Errorf("fresh store view = %+v, want no secret, not confidential", view)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	mux, store, _ := testHarness(t)

	rec := doJSON(t, mux, http.MethodPut, "/api/settings",
		`{"mode":"user_confidential","clientId":"abc123","clientSecret":"shh"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/settings", "")
	var view settingsView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if view.Mode != settings.ModeUserConfidential || view.ClientID != "abc123" {
		t.Errorf("view = %+v, want saved mode and client id", view)
	}
	if !view.HasSecret || !view.Confidential {
		t.Errorf("view = %+v, want hasSecret and confidential", view)
	}
	if strings.Contains(rec.Body.String(), "shh") {
		t.Error("secret value must never be echoed")
	}

	// The raw secret is persisted for the resolver, just never served.
	secret, err := store.Get(context.Background(), settings.KeyClientSecret)
	if err != nil || secret != "shh" {
		t.Errorf("stored secret = %q, %v", secret, err)
	}
}

func TestSettingsKeepsPreviousSecret(t *testing.T) {
	mux, store, _ := testHarness(t)

	rec := doJSON(t, mux, http.MethodPut, "/api/settings",
		`{"mode":"user_confidential","clientId":"abc123","clientSecret":"shh"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("initial put status = %d", rec.Code)
	}
	// Re-save without retyping the secret
	rec = doJSON(t, mux, http.MethodPut, "/api/settings",
		`{"mode":"user_confidential","clientId":"def456"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("re-save status = %d, body = %s", rec.Code, rec.Body.String())
	}
	secret, err := store.Get(context.Background(), settings.KeyClientSecret)
	if err != nil || secret != "shh" {
		t.Errorf("stored secret = %q, %v, want previous kept", secret, err)
	}
}

func TestSettingsClearsSecretOnDowngrade(t *testing.T) {
	mux, store, _ := testHarness(t)

	rec := doJSON(t, mux, http.MethodPut, "/api/settings",
		`{"mode":"user_confidential","clientId":"abc123","clientSecret":"shh"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("initial put status = %d", rec.Code)
	}
	rec = doJSON(t, mux, http.MethodPut, "/api/settings",
		`{"mode":"user_public","clientId":"abc123"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("downgrade status = %d, body = %s", rec.Code, rec.Body.String())
	}
	secret, err := store.Get(context.Background(), settings.KeyClientSecret)
	if err != nil || secret != "" {
		t.Errorf("stored secret = %q, %v, want cleared for non-confidential mode", secret, err)
	}
}

func TestSettingsValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"unknown mode", `{"mode":"oauth_pkce"}`},
		{"user mode without client id", `{"mode":"user_public"}`},
		{"confidential without any secret", `{"mode":"user_confidential","clientId":"abc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, _, _ := testHarness(t)
			rec := doJSON(t, mux, http.MethodPut, "/api/settings", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	mux, _, _ := testHarness(t)
	rec := doJSON(t, mux, http.MethodOptions, "/api/moments", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestCorrelationIDEcho(t *testing.T) {
	mux, _, _ := testHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", got)
	}
}

func TestCorrelationIDGenerated(t *testing.T) {
	mux, _, _ := testHarness(t)
	rec := doJSON(t, mux, http.MethodGet, "/healthz", "")
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID should be generated when absent")
	}
}
