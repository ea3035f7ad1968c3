package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/star/galcoord/internal/check"
	"github.com/star/galcoord/internal/coord"
	"github.com/star/galcoord/internal/metrics"
	"github.com/star/galcoord/internal/trajectory"
)

const (
	maxBodyBytes      = 64 << 10
	maxBatchBodyBytes = 32 << 20
)

type handlers struct {
	opts    Options
	logger  *slog.Logger
	pool    *trajectory.Pool
	limiter *batchLimiter
}

type shapeJSON struct {
	Alpha float64 `json:"alpha"`
	Gamma float64 `json:"gamma"`
}

func (s *shapeJSON) or(def coord.Shape) coord.Shape {
	if s == nil {
		return def
	}
	return coord.Shape{Alpha: s.Alpha, Gamma: s.Gamma}
}

func shapeOut(sys coord.System, s coord.Shape) *shapeJSON {
	if sys != coord.ProlSph {
		return nil
	}
	return &shapeJSON{Alpha: s.Alpha, Gamma: s.Gamma}
}

// route is the common part of every conversion request.
type route struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	FromShape *shapeJSON `json:"from_shape,omitempty"`
	ToShape   *shapeJSON `json:"to_shape,omitempty"`
}

func (rt route) parse(def coord.Shape) (from, to coord.System, fromShape, toShape coord.Shape, err error) {
	if from, err = coord.ParseSystem(rt.From); err != nil {
		return
	}
	if to, err = coord.ParseSystem(rt.To); err != nil {
		return
	}
	return from, to, rt.FromShape.or(def), rt.ToShape.or(def), nil
}

type convertRequest struct {
	route
	Pos [3]float64  `json:"pos"`
	Vel *[3]float64 `json:"vel,omitempty"`
}

type convertResponse struct {
	System coord.System `json:"system"`
	Axes   [3]string    `json:"axes"`
	Pos    [3]float64   `json:"pos"`
	Vel    *[3]float64  `json:"vel,omitempty"`
	Shape  *shapeJSON   `json:"shape,omitempty"`
	Lz     *float64     `json:"lz,omitempty"`
	Ltotal *float64     `json:"ltotal,omitempty"`
}

type derivRequest struct {
	route
	Pos    [3]float64 `json:"pos"`
	Second bool       `json:"second"`
}

type derivResponse struct {
	System coord.System   `json:"system"`
	Pos    [3]float64     `json:"pos"`
	Shape  *shapeJSON     `json:"shape,omitempty"`
	Deriv  [3][3]float64  `json:"deriv"`
	Deriv2 *[3][6]float64 `json:"deriv2,omitempty"`
}

type trajectoryRequest struct {
	route
	Points [][6]float64 `json:"points"`
}

type pointErrorJSON struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

type trajectoryResponse struct {
	System coord.System     `json:"system"`
	Shape  *shapeJSON       `json:"shape,omitempty"`
	Points []*[6]float64    `json:"points"`
	Stats  trajectory.Stats `json:"stats"`
	Errors []pointErrorJSON `json:"errors,omitempty"`
}

type systemJSON struct {
	Tag  string    `json:"tag"`
	Name string    `json:"name"`
	Axes [3]string `json:"axes"`
}

func (h *handlers) systems(w http.ResponseWriter, r *http.Request) {
	var out []systemJSON
	for _, s := range []coord.System{coord.Car, coord.Cyl, coord.Sph, coord.ProlSph} {
		out = append(out, systemJSON{Tag: s.Tag(), Name: s.String(), Axes: axes(s)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if !decode(w, r, maxBodyBytes, &req) {
		return
	}
	from, to, fromShape, toShape, err := req.parse(h.opts.Shape)
	if err != nil {
		writeError(w, err)
		return
	}

	src := coord.Pos{Sys: from, C: req.Pos, Shape: fromShape}
	if req.Vel == nil {
		out, err := coord.ToPos(src, to, toShape)
		metrics.ObserveConversion(from, to, metrics.KindPos, err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, convertResponse{System: out.Sys, Axes: axes(out.Sys), Pos: out.C, Shape: shapeOut(out.Sys, out.Shape)})
		return
	}

	out, err := coord.ToPosVel(coord.PosVel{Pos: src, V: *req.Vel}, to, toShape)
	metrics.ObserveConversion(from, to, metrics.KindPosVel, err)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := convertResponse{
		System: out.Sys,
		Axes:   axes(out.Sys),
		Pos:    out.C,
		Vel:    &out.V,
		Shape:  shapeOut(out.Sys, out.Shape),
		Lz:     finite(coord.Lz(out)),
		Ltotal: finite(coord.Ltotal(out)),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) deriv(w http.ResponseWriter, r *http.Request) {
	var req derivRequest
	if !decode(w, r, maxBodyBytes, &req) {
		return
	}
	from, to, fromShape, toShape, err := req.parse(h.opts.Shape)
	if err != nil {
		writeError(w, err)
		return
	}
	want := coord.WantDeriv
	if req.Second {
		want = coord.WantBoth
	}
	res, err := coord.ToPosDeriv(coord.Pos{Sys: from, C: req.Pos, Shape: fromShape}, to, toShape, want)
	metrics.ObserveConversion(from, to, metrics.KindDeriv, err)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := derivResponse{
		System: res.Pos.Sys,
		Pos:    res.Pos.C,
		Shape:  shapeOut(res.Pos.Sys, res.Pos.Shape),
		Deriv:  res.Deriv.M,
	}
	if res.Deriv2 != nil {
		resp.Deriv2 = &res.Deriv2.T
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) convertTrajectory(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, h.opts.TrustProxy)
	if !h.limiter.acquire(ip) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many concurrent trajectory requests"})
		return
	}
	defer h.limiter.release(ip)

	var req trajectoryRequest
	if !decode(w, r, maxBatchBodyBytes, &req) {
		return
	}
	if len(req.Points) > h.opts.MaxPoints {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      fmt.Sprintf("%d points exceeds the per-request budget", len(req.Points)),
			"max_points": h.opts.MaxPoints,
		})
		return
	}
	from, to, fromShape, toShape, err := req.parse(h.opts.Shape)
	if err != nil {
		writeError(w, err)
		return
	}

	points := make([]coord.PosVel, len(req.Points))
	for i, p := range req.Points {
		points[i] = coord.PosVelFrom(from, p, fromShape)
	}
	out, st, err := h.pool.Convert(r.Context(), points, to, toShape)
	if err != nil {
		h.logger.Warn("trajectory request aborted", "component", "api", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	resp := trajectoryResponse{
		System: to,
		Shape:  shapeOut(to, toShape),
		Points: make([]*[6]float64, len(out)),
		Stats:  st,
	}
	failed := make(map[int]bool, len(st.Errors))
	for _, pe := range st.Errors {
		failed[pe.Index] = true
		resp.Errors = append(resp.Errors, pointErrorJSON{Index: pe.Index, Reason: metrics.Reason(pe.Err), Error: pe.Err.Error()})
	}
	for i := range out {
		if !failed[i] {
			v := out[i].Unpack()
			resp.Points[i] = &v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type checkResponse struct {
	OK bool `json:"ok"`
	check.Report
}

func (h *handlers) runCheck(w http.ResponseWriter, r *http.Request) {
	suite := check.DefaultSuite(h.opts.Shape, h.opts.Tolerance)
	rep := check.Run(r.Context(), suite, h.opts.Workers, h.logger)
	status := http.StatusOK
	if !rep.OK() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, checkResponse{OK: rep.OK(), Report: rep})
}

func axes(s coord.System) [3]string {
	return [3]string{s.Axis(0), s.Axis(1), s.Axis(2)}
}

// finite drops values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func decode(w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// statusFor maps engine errors onto HTTP statuses: bad input is 400, a
// well-formed request at a point the engine cannot handle is 422.
func statusFor(err error) int {
	switch {
	case errors.Is(err, coord.ErrSingular), errors.Is(err, coord.ErrNoConvergence):
		return http.StatusUnprocessableEntity
	case errors.Is(err, coord.ErrInvalidConfig), errors.Is(err, coord.ErrUnsupported),
		errors.Is(err, coord.ErrShapeMismatch), errors.Is(err, coord.ErrSystemMismatch):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{
		"error":  err.Error(),
		"reason": metrics.Reason(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
