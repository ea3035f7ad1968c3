package trajectory

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/galcoord/internal/coord"
)

var shape = coord.Shape{Alpha: -2.56, Gamma: -1}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// inclinedOrbit samples n points of a circular orbit of radius 2 inclined
// by 30 degrees, all with z > 0 after a vertical offset.
func inclinedOrbit(n int) []coord.PosVel {
	const (
		radius = 2.0
		omega  = 0.5
	)
	si, ci := math.Sincos(math.Pi / 6)
	out := make([]coord.PosVel, n)
	for i := range out {
		s, c := math.Sincos(2 * math.Pi * float64(i) / float64(n))
		x, y := radius*c, radius*s*ci
		z := radius*s*si + 1.5
		vx, vy, vz := -radius*omega*s, radius*omega*c*ci, radius*omega*c*si
		out[i] = coord.PosVelCar(x, y, z, vx, vy, vz)
	}
	return out
}

func TestConvert_PreservesOrder(t *testing.T) {
	points := inclinedOrbit(500)
	for _, dst := range []coord.System{coord.Cyl, coord.Sph, coord.ProlSph} {
		t.Run(dst.Tag(), func(t *testing.T) {
			pool := NewPool(4, testLogger())
			out, st, err := pool.Convert(context.Background(), points, dst, shape)
			require.NoError(t, err)
			require.Len(t, out, len(points))
			assert.Equal(t, len(points), st.Converted)
			assert.Zero(t, st.Failed)
			assert.Zero(t, st.Skipped)

			for i, pv := range points {
				want, err := coord.ToPosVel(pv, dst, shape)
				require.NoError(t, err)
				if !coord.EqualPosVel(want, out[i], 0) {
					t.Fatalf("point %d: got %v, want %v", i, out[i].Unpack(), want.Unpack())
				}
			}
		})
	}
}

func TestConvert_ReportsFailures(t *testing.T) {
	onAxis, err := coord.ToPos(coord.PosCyl(0, 3, 0), coord.ProlSph, shape)
	require.NoError(t, err)
	good, err := coord.ToPosVel(coord.PosVelCyl(1.3, 0.7, 0.4, 0.2, -0.5, 0.9), coord.ProlSph, shape)
	require.NoError(t, err)

	points := []coord.PosVel{
		good,
		{Pos: onAxis, V: [3]float64{1, 0, 0}},
		good,
		{Pos: onAxis, V: [3]float64{0, 1, 0}},
	}
	out, st, err := NewPool(2, testLogger()).Convert(context.Background(), points, coord.Car, coord.Shape{})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Converted)
	assert.Equal(t, 2, st.Failed)
	require.Len(t, st.Errors, 2)
	assert.Equal(t, 1, st.Errors[0].Index)
	assert.Equal(t, 3, st.Errors[1].Index)
	assert.ErrorIs(t, st.Errors[0], coord.ErrSingular)

	assert.Equal(t, coord.Car, out[0].Sys)
	assert.Equal(t, coord.PosVel{}, out[1])
	assert.Equal(t, out[0], out[2])
}

func TestConvert_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	points := inclinedOrbit(100)
	_, st, err := NewPool(3, testLogger()).Convert(ctx, points, coord.Sph, shape)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, len(points), st.Skipped)
	assert.Zero(t, st.Converted)
}

func TestConvert_Empty(t *testing.T) {
	out, st, err := NewPool(2, testLogger()).Convert(context.Background(), nil, coord.Cyl, shape)
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, Stats{}, st)
}

func TestNewPool_ClampsWorkers(t *testing.T) {
	assert.Equal(t, 1, NewPool(0, testLogger()).Workers())
	assert.Equal(t, 6, NewPool(6, testLogger()).Workers())
}

func TestConvert_ConservesAngularMomentum(t *testing.T) {
	points := inclinedOrbit(64)
	out, _, err := NewPool(4, testLogger()).Convert(context.Background(), points, coord.ProlSph, shape)
	require.NoError(t, err)
	for i := range points {
		assert.InDelta(t, coord.Lz(points[i]), coord.Lz(out[i]), 1e-10, "point %d", i)
		assert.InDelta(t, coord.Ltotal(points[i]), coord.Ltotal(out[i]), 1e-10, "point %d", i)
	}
}
