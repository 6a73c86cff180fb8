package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"algo_bot/internal/modules/health/service"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestProbes(t *testing.T) {
	state := service.NewState()
	r := NewRouter(state)

	if w := get(t, r, "/livez"); w.Code != http.StatusOK {
		t.Errorf("livez = %d", w.Code)
	}
	if w := get(t, r, "/readyz"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before ready = %d", w.Code)
	}

	state.SetReady(true)
	state.SetMode("paper")
	state.SetStreaming(true)
	state.TouchBar(time.Unix(1700000000, 0))

	if w := get(t, r, "/readyz"); w.Code != http.StatusOK {
		t.Errorf("readyz = %d", w.Code)
	}

	w := get(t, r, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
	var body struct {
		Ready       bool   `json:"ready"`
		Mode        string `json:"mode"`
		Streaming   bool   `json:"streaming"`
		LastBarUnix int64  `json:"lastBarUnix"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Ready || body.Mode != "paper" || !body.Streaming || body.LastBarUnix != 1700000000 {
		t.Errorf("healthz body = %+v", body)
	}
}
