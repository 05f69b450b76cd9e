package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapiduino/rapiduino-go/internal/config"
	"github.com/rapiduino/rapiduino-go/pkg/board"
	"github.com/rapiduino/rapiduino-go/pkg/device"
	"github.com/rapiduino/rapiduino-go/pkg/transport/transporttest"
	"github.com/rapiduino/rapiduino-go/pkg/wire"
	"github.com/rapiduino/rapiduino-go/pkg/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, opts Options) (*Server, *transporttest.Sketch) {
	t.Helper()
	b, err := board.Lookup("uno")
	require.NoError(t, err)
	s := transporttest.NewSketch()
	d, err := device.New(s, b.Pins())
	require.NoError(t, err)
	w := worker.New(d, worker.DefaultConfig())
	t.Cleanup(w.Close)

	opts.Board = b
	return New(config.HTTPConfig{Addr: ":0"}, w, opts), s
}

func do(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	ready := false
	srv, _ := newTestServer(t, Options{Ready: func() bool { return ready }})

	rec := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = do(t, srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("m 1\n"))
	})
	srv, _ := newTestServer(t, Options{MetricsPath: "/custom", Metrics: h})

	rec := do(t, srv, http.MethodGet, "/custom", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "m 1\n", rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDevice(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	s.SetVersion(1, 4, 2)

	rec := do(t, srv, http.MethodGet, "/v1/device", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "1.4.2", body["firmware"])
	assert.Equal(t, "1.0.0", body["minVersion"])
	assert.NotEmpty(t, body["connectionId"])
}

func TestUnownedPinIO(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	s.SetAnalog(14, 512)

	rec := do(t, srv, http.MethodPost, "/v1/pins/13/mode", "", gin.H{"mode": "output"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	mode, ok := s.Mode(13)
	require.True(t, ok)
	assert.Equal(t, 1, mode)

	rec = do(t, srv, http.MethodPut, "/v1/pins/13/digital", "", gin.H{"state": "high"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, s.Level(13))

	rec = do(t, srv, http.MethodGet, "/v1/pins/13/digital", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIGH", decode(t, rec)["state"])

	rec = do(t, srv, http.MethodGet, "/v1/pins/A0/analog", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 14, body["pin"])
	assert.EqualValues(t, 512, body["value"])

	rec = do(t, srv, http.MethodPut, "/v1/pins/9/analog", "", gin.H{"value": 128})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 128, s.PWM(9))
}

func TestRegisterAndProtection(t *testing.T) {
	srv, s := newTestServer(t, Options{})

	rec := do(t, srv, http.MethodPost, "/v1/components", "", gin.H{
		"pins": []gin.H{{"pin": "9", "pwm": true}, {"pin": "A1", "analog": true}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, []any{9.0, 15.0}, body["pins"])

	rec = do(t, srv, http.MethodPut, "/v1/pins/9/analog", "", gin.H{"value": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "protected_pin", decode(t, rec)["kind"])

	rec = do(t, srv, http.MethodPut, "/v1/pins/9/analog", "someone-else", gin.H{"value": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, s.PWM(9))

	rec = do(t, srv, http.MethodPut, "/v1/pins/9/analog", token, gin.H{"value": 10})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, s.PWM(9))

	rec = do(t, srv, http.MethodGet, "/v1/pins", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pins := decode(t, rec)["pins"].([]any)
	require.Len(t, pins, 20)
	assert.Equal(t, token, pins[9].(map[string]any)["owner"])
	assert.Nil(t, pins[8].(map[string]any)["owner"])

	rec = do(t, srv, http.MethodPost, "/v1/components", "", gin.H{"pins": []gin.H{{"pin": "9"}}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "pin_already_registered", decode(t, rec)["kind"])

	rec = do(t, srv, http.MethodDelete, "/v1/components/"+token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []any{9.0, 15.0}, decode(t, rec)["released"])

	rec = do(t, srv, http.MethodPut, "/v1/pins/9/analog", "", gin.H{"value": 20})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/v1/components/unknown", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["released"])
}

func TestRegisterCapabilityMismatch(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	rec := do(t, srv, http.MethodPost, "/v1/components", "", gin.H{
		"pins": []gin.H{{"pin": "13"}, {"pin": "12", "pwm": true}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "not_pwm_pin", decode(t, rec)["kind"])

	rec = do(t, srv, http.MethodGet, "/v1/pins", "", nil)
	for _, p := range decode(t, rec)["pins"].([]any) {
		assert.Nil(t, p.(map[string]any)["owner"])
	}
}

func TestRequestErrors(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{"unknown pin", http.MethodGet, "/v1/pins/99/digital", nil, http.StatusNotFound, "invalid_pin_number"},
		{"reserved pin", http.MethodGet, "/v1/pins/0/digital", nil, http.StatusBadRequest, "reserved_pin"},
		{"bad mode", http.MethodPost, "/v1/pins/13/mode", gin.H{"mode": "sideways"}, http.StatusBadRequest, "bad_request"},
		{"missing body", http.MethodPut, "/v1/pins/13/digital", nil, http.StatusBadRequest, "bad_request"},
		{"not analog", http.MethodGet, "/v1/pins/13/analog", nil, http.StatusBadRequest, "not_analog_pin"},
		{"not pwm", http.MethodPut, "/v1/pins/13/analog", gin.H{"value": 1}, http.StatusBadRequest, "not_pwm_pin"},
		{"out of range", http.MethodPut, "/v1/pins/9/analog", gin.H{"value": 256}, http.StatusBadRequest, "range"},
		{"bad alias", http.MethodPost, "/v1/components", gin.H{"pins": []gin.H{{"pin": "A9"}}}, http.StatusBadRequest, "bad_request"},
		{"empty pin set", http.MethodPost, "/v1/components", gin.H{"pins": []gin.H{}}, http.StatusBadRequest, "bad_request"},
		{"no pins", http.MethodPost, "/v1/components", gin.H{}, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.path, "", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode(t, rec)["kind"])
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv, s := newTestServer(t, Options{})
	s.SetMute(true)

	rec := do(t, srv, http.MethodGet, "/v1/pins/13/digital", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "receive", decode(t, rec)["kind"])
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(worker.ErrStopped))
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(device.ErrClosed))
	assert.Equal(t, http.StatusGatewayTimeout, StatusOf(context.DeadlineExceeded))
	assert.Equal(t, http.StatusBadGateway, StatusOf(&wire.SendError{Command: "poll", Want: 1}))
	assert.Equal(t, http.StatusConflict, StatusOf(device.ErrComponentAlreadyRegistered))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}
