package projection

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/sensorsync/calibration"
	"go.viam.com/sensorsync/pointcloud"
	"go.viam.com/sensorsync/rimage"
	"go.viam.com/sensorsync/utils"
)

var identity = []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

func identitySet() map[string][]float64 {
	return map[string][]float64{
		"R":         identity,
		"T":         {0, 0, 0},
		"R_02":      identity,
		"T_02":      {0, 0, 0},
		"R_rect_02": identity,
		"P_rect_02": {1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0},
	}
}

func newProjector(t *testing.T, values map[string][]float64) *Projector {
	t.Helper()
	p, err := NewProjector(calibration.NewSet(values), Keys{})
	test.That(t, err, test.ShouldBeNil)
	return p
}

func cloud(t *testing.T, points []r3.Vector, intensities []float64) *pointcloud.PointCloud {
	t.Helper()
	pc, err := pointcloud.New(points, intensities)
	test.That(t, err, test.ShouldBeNil)
	return pc
}

func TestProjectIdentity(t *testing.T) {
	p := newProjector(t, identitySet())

	proj, err := p.Project(cloud(t, []r3.Vector{{X: 2, Y: 3, Z: 10}}, []float64{0.4}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, proj.Len(), test.ShouldEqual, 1)
	test.That(t, proj.Pixels[0].X, test.ShouldAlmostEqual, 0.2)
	test.That(t, proj.Pixels[0].Y, test.ShouldAlmostEqual, 0.3)
	test.That(t, proj.Intensities, test.ShouldResemble, []float64{0.4})

	for _, pt := range []r3.Vector{{X: 0, Y: 0, Z: -1}, {X: 100, Y: -20, Z: -1}, {X: 1, Y: 1, Z: 0}} {
		proj, err := p.Project(cloud(t, []r3.Vector{pt}, []float64{1}))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, proj.Len(), test.ShouldEqual, 0)
	}
}

func TestProjectChain(t *testing.T) {
	values := identitySet()
	// sensor x forward, camera z forward
	values["R"] = []float64{0, -1, 0, 0, 0, -1, 1, 0, 0}
	values["T"] = []float64{0, 0, 1}
	values["T_02"] = []float64{0.5, 0, 0}
	values["P_rect_02"] = []float64{100, 0, 50, 0, 0, 100, 40, 0, 0, 0, 1, 0}
	p := newProjector(t, values)

	// sensor (9, -1, 2) -> cam0 (1, -2, 10) -> cam2 (1.5, -2, 10)
	proj, err := p.Project(cloud(t, []r3.Vector{{X: 9, Y: -1, Z: 2}}, []float64{1}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, proj.Len(), test.ShouldEqual, 1)
	test.That(t, proj.Pixels[0].X, test.ShouldAlmostEqual, (100*1.5+50*10)/10)
	test.That(t, proj.Pixels[0].Y, test.ShouldAlmostEqual, (100*-2+40*10)/10.0)

	// the translation moves this point from in front of cam0 to behind cam2
	values["T_02"] = []float64{0, 0, -10.5}
	p = newProjector(t, values)
	proj, err = p.Project(cloud(t, []r3.Vector{{X: 9, Y: -1, Z: 2}}, []float64{1}))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, proj.Len(), test.ShouldEqual, 0)
}

func TestProjectVisibilityAndOrder(t *testing.T) {
	p := newProjector(t, identitySet())
	points := []r3.Vector{
		{X: 1, Y: 1, Z: 2},
		{X: 1, Y: 1, Z: -2},
		{X: -3, Y: 6, Z: 3},
		{X: 0, Y: 0, Z: 0},
		{X: 4, Y: 8, Z: 4},
		{X: 5, Y: 5, Z: -0.001},
	}
	intensities := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}

	proj, err := p.Project(cloud(t, points, intensities))
	test.That(t, err, test.ShouldBeNil)
	visible := 0
	for _, pt := range points {
		if pt.Z > 0 {
			visible++
		}
	}
	test.That(t, proj.Len(), test.ShouldEqual, visible)
	test.That(t, proj.Intensities, test.ShouldResemble, []float64{0.1, 0.3, 0.5})
	test.That(t, proj.Pixels, test.ShouldResemble, []r2.Point{{X: 0.5, Y: 0.5}, {X: -1, Y: 2}, {X: 1, Y: 2}})

	t.Run("permuting the input permutes the output", func(t *testing.T) {
		perm := []int{4, 2, 5, 0, 3, 1}
		permPoints := make([]r3.Vector, len(perm))
		permIntensities := make([]float64, len(perm))
		for i, j := range perm {
			permPoints[i] = points[j]
			permIntensities[i] = intensities[j]
		}
		permuted, err := p.Project(cloud(t, permPoints, permIntensities))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, permuted.Intensities, test.ShouldResemble, []float64{0.5, 0.3, 0.1})
		test.That(t, permuted.Pixels, test.ShouldResemble, []r2.Point{{X: 1, Y: 2}, {X: -1, Y: 2}, {X: 0.5, Y: 0.5}})
	})

	_, err = p.Project(&pointcloud.PointCloud{Points: points, Intensities: intensities[:2]})
	test.That(t, errors.Is(err, utils.ErrShapeMismatch), test.ShouldBeTrue)
}

func TestNewProjector(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(map[string][]float64)
		key    string
	}{
		{"nine element translation", func(v map[string][]float64) { v["T"] = identity }, "T"},
		{"vector rotation", func(v map[string][]float64) { v["R_02"] = []float64{1, 2, 3} }, "R_02"},
		{"square projection", func(v map[string][]float64) { v["P_rect_02"] = identity }, "P_rect_02"},
		{"missing rectification", func(v map[string][]float64) { delete(v, "R_rect_02") }, "R_rect_02"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			values := identitySet()
			tc.mutate(values)
			_, err := NewProjector(calibration.NewSet(values), Keys{})
			test.That(t, errors.Is(err, utils.ErrMalformedCalibration), test.ShouldBeTrue)
			test.That(t, err.Error(), test.ShouldContainSubstring, `"`+tc.key+`"`)
		})
	}

	t.Run("custom keys", func(t *testing.T) {
		values := identitySet()
		values["P_rect_03"] = values["P_rect_02"]
		delete(values, "P_rect_02")
		_, err := NewProjector(calibration.NewSet(values), Keys{Projection: "P_rect_03"})
		test.That(t, err, test.ShouldBeNil)
	})
}

func TestIntensityToColor(t *testing.T) {
	for _, tc := range []struct {
		in  float64
		out uint8
	}{
		{0, 0},
		{1, 255},
		{0.5, 128},
		{0.2, 51},
		{-0.3, 0},
		{1.7, 255},
		{math.NaN(), 0},
	} {
		test.That(t, IntensityToColor(tc.in), test.ShouldEqual, tc.out)
	}
}

func TestOverlay(t *testing.T) {
	img := rimage.NewImage(4, 3, rimage.ChannelRGB)
	proj := &Projection{
		Pixels: []r2.Point{
			{X: 0, Y: 0},
			{X: 3.9, Y: 2.9},
			{X: 4, Y: 1},
			{X: 1, Y: 3},
			{X: -0.1, Y: 1},
			{X: math.NaN(), Y: 1},
			{X: 1.5, Y: 1.2},
		},
		Intensities: []float64{1, 0, 0.5, 0.5, 0.5, 0.5, 0.2},
	}
	test.That(t, Overlay(img, proj), test.ShouldEqual, 3)

	rgb := func(x, y int) []uint8 {
		r, g, b := img.RGB(x, y)
		return []uint8{r, g, b}
	}
	// (255, 255, 255-c) is blue, green, red
	test.That(t, rgb(0, 0), test.ShouldResemble, []uint8{0, 255, 255})
	test.That(t, rgb(3, 2), test.ShouldResemble, []uint8{255, 255, 255})
	test.That(t, rgb(1, 1), test.ShouldResemble, []uint8{204, 255, 255})
	test.That(t, rgb(2, 1), test.ShouldResemble, []uint8{0, 0, 0})

	bgr := rimage.NewImage(1, 1, rimage.ChannelBGR)
	test.That(t, Overlay(bgr, &Projection{Pixels: []r2.Point{{}}, Intensities: []float64{1}}), test.ShouldEqual, 1)
	c0, c1, c2 := bgr.Channels(0, 0)
	test.That(t, []uint8{c0, c1, c2}, test.ShouldResemble, []uint8{255, 255, 0})
}
