package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/galcoord/internal/auth"
	"github.com/star/galcoord/internal/coord"
	"github.com/star/galcoord/internal/health"
	"github.com/star/galcoord/internal/trajectory"
)

var shape = coord.Shape{Alpha: -2.56, Gamma: -1}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testOptions() Options {
	return Options{
		Addr:            ":0",
		MaxPoints:       100,
		MaxBatchesPerIP: 2,
		Shape:           shape,
		Tolerance:       1e-10,
		Workers:         2,
	}
}

func newTestHandler(t *testing.T, opts Options) (http.Handler, *health.Readiness) {
	t.Helper()
	logger := testLogger()
	ready := &health.Readiness{}
	srv := NewServer(opts, logger, trajectory.NewPool(opts.Workers, logger), ready)
	return srv.Handler(), ready
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(v), w.Body.String())
}

func TestConvert_PosVel(t *testing.T) {
	h, _ := newTestHandler(t, testOptions())
	w := do(t, h, http.MethodPost, "/api/v1/convert",
		`{"from":"car","to":"sph","pos":[1,2,3],"vel":[4,5,6]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp convertResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, coord.Sph, resp.System)
	assert.Equal(t, [3]string{"r", "theta", "phi"}, resp.Axes)
	assert.InDelta(t, math.Sqrt(14), resp.Pos[0], 1e-12)
	require.NotNil(t, resp.Vel)
	require.NotNil(t, resp.Lz)
	require.NotNil(t, resp.Ltotal)
	assert.InDelta(t, -3, *resp.Lz, 1e-10)
	assert.InDelta(t, math.Sqrt(54), *resp.Ltotal, 1e-10)
	assert.Nil(t, resp.Shape)
}

func TestConvert_PositionToProlSph(t *testing.T) {
	h, _ := newTestHandler(t, testOptions())
	w := do(t, h, http.MethodPost, "/api/v1/convert", `{"from":"Cylindrical","to":"prolsph","pos":[0,2,0.5]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp convertResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, coord.ProlSph, resp.System)
	require.NotNil(t, resp.Shape)
	assert.Equal(t, shapeJSON{Alpha: -2.56, Gamma: -1}, *resp.Shape)
	assert.InDelta(t, 4-shape.Gamma, resp.Pos[0], 1e-12)
	assert.InDelta(t, -shape.Alpha, resp.Pos[1], 1e-12)
	assert.Nil(t, resp.Vel)
}

func TestConvert_Errors(t *testing.T) {
	onAxis, err := coord.ToPos(coord.PosCyl(0, 3, 0), coord.ProlSph, shape)
	require.NoError(t, err)
	axisBody, err := json.Marshal(map[string]any{"from": "prolsph", "to": "cyl", "pos": onAxis.C, "vel": []float64{1, 0, 0}})
	require.NoError(t, err)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantReason string
	}{
		{"unknown system", `{"from":"polar","to":"car","pos":[1,2,3]}`, http.StatusBadRequest, "invalid"},
		{"negative radius", `{"from":"cyl","to":"car","pos":[-1,2,3]}`, http.StatusBadRequest, "invalid"},
		{"bad target shape", `{"from":"cyl","to":"prolsph","pos":[1,2,3],"to_shape":{"alpha":-1,"gamma":-2}}`, http.StatusBadRequest, "invalid"},
		{"singular velocity", string(axisBody), http.StatusUnprocessableEntity, "singular"},
	}
	h, _ := newTestHandler(t, testOptions())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/convert", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			var resp map[string]string
			decodeBody(t, w, &resp)
			assert.Equal(t, tt.wantReason, resp["reason"])
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestConvert_MalformedBody(t *testing.T) {
	h, _ := newTestHandler(t, testOptions())
	for _, body := range []string{`{`, `{"from":"car","to":"sph","pos":[1,2,3],"extra":1}`} {
		w := do(t, h, http.MethodPost, "/api/v1/convert", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	w := do(t, h, http.MethodGet, "/api/v1/convert", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDeriv(t *testing.T) {
	h, _ := newTestHandler(t, testOptions())
	w := do(t, h, http.MethodPost, "/api/v1/deriv", `{"from":"car","to":"cyl","pos":[3,4,1],"second":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp derivResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, coord.Cyl, resp.System)
	assert.InDelta(t, 5, resp.Pos[0], 1e-12)
	// dR/dx, dR/dy, dR/dz
	assert.InDelta(t, 0.6, resp.Deriv[0][0], 1e-12)
	assert.InDelta(t, 0.8, resp.Deriv[0][1], 1e-12)
	assert.Equal(t, 0.0, resp.Deriv[0][2])
	require.NotNil(t, resp.Deriv2)
	// d²R/dx² = y²/R³
	assert.InDelta(t, 16.0/125, resp.Deriv2[0][0], 1e-12)

	w = do(t, h, http.MethodPost, "/api/v1/deriv", `{"from":"car","to":"cyl","pos":[3,4,1]}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp = derivResponse{}
	decodeBody(t, w, &resp)
	assert.Nil(t, resp.Deriv2)
}

func TestDeriv_Singular(t *testing.T) {
	h, _ := newTestHandler(t, testOptions())
	w := do(t, h, http.MethodPost, "/api/v1/deriv", `{"from":"car","to":"sph","pos":[0,0,2]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestTrajectory(t *testing.T) {
	onAxis, err := coord.ToPos(coord.PosCyl(0, 3, 0), coord.ProlSph, shape)
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"from": "prolsph",
		"to":   "car",
		"points": [][6]float64{
			{4, 2, 0.3, 0.1, -0.2, 0.05},
			{onAxis.C[0], onAxis.C[1], 0, 1, 0, 0},
			{5, 1.5, -1, 0, 0.1, 0},
		},
	})
	require.NoError(t, err)

	h, _ := newTestHandler(t, testOptions())
	w := do(t, h, http.MethodPost, "/api/v1/trajectory", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp trajectoryResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, coord.Car, resp.System)
	require.Len(t, resp.Points, 3)
	assert.NotNil(t, resp.Points[0])
	assert.Nil(t, resp.Points[1])
	assert.NotNil(t, resp.Points[2])
	assert.Equal(t, 2, resp.Stats.Converted)
	assert.Equal(t, 1, resp.Stats.Failed)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, 1, resp.Errors[0].Index)
	assert.Equal(t, "singular", resp.Errors[0].Reason)

	want, err := coord.ToPosVel(coord.PosVelProlSph(4, 2, 0.3, 0.1, -0.2, 0.05, shape), coord.Car, coord.Shape{})
	require.NoError(t, err)
	assert.Equal(t, want.Unpack(), *resp.Points[0])
}

func TestTrajectory_PointBudget(t *testing.T) {
	opts := testOptions()
	opts.MaxPoints = 2
	h, _ := newTestHandler(t, opts)
	w := do(t, h, http.MethodPost, "/api/v1/trajectory",
		`{"from":"car","to":"sph","points":[[1,2,3,0,0,0],[1,2,3,0,0,0],[1,2,3,0,0,0]]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]any
	decodeBody(t, w, &resp)
	assert.NotNil(t, resp["error"])
	assert.Equal(t, 2.0, resp["max_points"])
}

func TestBatchLimiter(t *testing.T) {
	l := newBatchLimiter(2)
	assert.True(t, l.acquire("1.2.3.4"))
	assert.True(t, l.acquire("1.2.3.4"))
	assert.False(t, l.acquire("1.2.3.4"))
	assert.True(t, l.acquire("5.6.7.8"))
	assert.Equal(t, 2, l.count("1.2.3.4"))

	l.release("1.2.3.4")
	assert.True(t, l.acquire("1.2.3.4"))
	l.release("1.2.3.4")
	l.release("1.2.3.4")
	assert.Equal(t, 0, l.count("1.2.3.4"))
	assert.NotContains(t, l.inFlight, "1.2.3.4")
}

func TestCheckEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, testOptions())
	w := do(t, h, http.MethodGet, "/api/v1/check", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	decodeBody(t, w, &resp)
	assert.Equal(t, true, resp["ok"])
	assert.NotEmpty(t, resp["run_id"])
	assert.Equal(t, 0.0, resp["failed"])
	assert.NotEmpty(t, resp["results"])
}

func TestSystems(t *testing.T) {
	h, _ := newTestHandler(t, testOptions())
	w := do(t, h, http.MethodGet, "/api/v1/systems", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp []systemJSON
	decodeBody(t, w, &resp)
	require.Len(t, resp, 4)
	assert.Equal(t, "prolsph", resp[3].Tag)
	assert.Equal(t, "ProlateSpheroidal", resp[3].Name)
	assert.Equal(t, [3]string{"lambda", "nu", "phi"}, resp[3].Axes)
}

func TestProbes(t *testing.T) {
	h, ready := newTestHandler(t, testOptions())

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/readyz", "").Code)
	ready.Set(true, "")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/metrics", "").Code)
}

func TestAuthEnabled(t *testing.T) {
	opts := testOptions()
	opts.Auth = auth.Config{Enabled: true, Token: "s3cret"}
	h, _ := newTestHandler(t, opts)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/systems", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, h, http.MethodPost, "/api/v1/convert", `{"from":"car","to":"sph","pos":[1,2,3]}`).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", strings.NewReader(`{"from":"car","to":"sph","pos":[1,2,3]}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	h, _ := newTestHandler(t, testOptions())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		xff, xri   string
		remoteAddr string
		want       string
	}{
		{"remote addr", false, "", "", "192.168.1.1:12345", "192.168.1.1"},
		{"ipv6", false, "", "", "[::1]:12345", "::1"},
		{"no port", false, "", "", "192.168.1.1", "192.168.1.1"},
		{"xff ignored without trust", false, "1.2.3.4", "", "10.0.0.1:1234", "10.0.0.1"},
		{"xff first entry", true, "1.2.3.4, 5.6.7.8", "", "10.0.0.1:1234", "1.2.3.4"},
		{"real ip", true, "", "9.9.9.9", "10.0.0.1:1234", "9.9.9.9"},
		{"empty xff falls through", true, " ,5.6.7.8", "", "10.0.0.1:1234", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
