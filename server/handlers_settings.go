package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/clipradar/settings"
)

// settingsView is what GET returns. The secret itself is never echoed back;
// only its presence is reported.
type settingsView struct {
	Mode         string `json:"mode"`
	ClientID     string `json:"clientId"`
	HasSecret    bool   `json:"hasSecret"`
	Confidential bool   `json:"confidential"`
}

type settingsUpdate struct {
	Mode         string `json:"mode"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// HandleSettings reads and writes the Twitch credential configuration. A
// successful PUT invalidates the cached app token synchronously so the next
// detection cycle authenticates with the new credentials.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleSettingsGet(w, r)
	case http.MethodPut:
		h.handleSettingsPut(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view := settingsView{Mode: settings.ModeBuiltIn}
	if mode, err := h.store.Get(ctx, settings.KeyCredentialMode); err == nil && mode != "" {
		view.Mode = mode
	}
	if id, err := h.store.Get(ctx, settings.KeyClientID); err == nil {
		view.ClientID = id
	}
	if secret, err := h.store.Get(ctx, settings.KeyClientSecret); err == nil && secret != "" {
		view.HasSecret = true
	}
	view.Confidential = view.Mode == settings.ModeUserConfidential
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(view)
}

func (h *Handlers) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	var upd settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	upd.Mode = strings.TrimSpace(upd.Mode)
	upd.ClientID = strings.TrimSpace(upd.ClientID)
	upd.ClientSecret = strings.TrimSpace(upd.ClientSecret)

	if !settings.ValidMode(upd.Mode) {
		http.Error(w, "invalid mode", http.StatusBadRequest)
		return
	}
	// Reject obviously broken configurations before persisting them; the
	// resolver enforces the same rules again on every cycle.
	if upd.Mode != settings.ModeBuiltIn && upd.ClientID == "" {
		http.Error(w, "client id required", http.StatusBadRequest)
		return
	}
	if upd.Mode == settings.ModeUserConfidential && upd.ClientSecret == "" {
		// Allow keeping a previously saved secret on re-save.
		if prev, err := h.store.Get(r.Context(), settings.KeyClientSecret); err != nil || prev == "" {
			http.Error(w, "client secret required", http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	writes := map[string]string{
		settings.KeyCredentialMode: upd.Mode,
		settings.KeyClientID:       upd.ClientID,
	}
	if upd.ClientSecret != "" {
		writes[settings.KeyClientSecret] = upd.ClientSecret
	}
	if upd.Mode != settings.ModeUserConfidential {
		writes[settings.KeyClientSecret] = ""
	}
	for k, v := range writes {
		if err := h.store.Set(ctx, k, v); err != nil {
			if !errors.Is(err, ctx.Err()) {
				slog.Error("failed to update settings", slog.String("key", k), slog.Any("err", err))
			}
			http.Error(w, "failed to update settings", http.StatusInternalServerError)
			return
		}
	}

	// Credentials changed: the cached token must not survive the save.
	h.detector.Tokens.Invalidate()
	slog.Info("credential settings updated", slog.String("mode", upd.Mode))

	w.WriteHeader(http.StatusNoContent)
}
