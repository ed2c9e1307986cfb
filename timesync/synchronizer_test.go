package timesync

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/sensorsync/timeseries"
	"go.viam.com/sensorsync/utils"
)

func handles(t *testing.T, name string, ts []float64) *timeseries.Series[timeseries.Handle] {
	t.Helper()
	payloads := make([]timeseries.Handle, len(ts))
	for i := range ts {
		payloads[i] = name + "_" + string(rune('a'+i))
	}
	s, err := timeseries.New(name, ts, payloads)
	test.That(t, err, test.ShouldBeNil)
	return s
}

func numeric(t *testing.T, name string, columns []string, ts []float64, rows ...timeseries.Fields) *timeseries.NumericSeries {
	t.Helper()
	s, err := timeseries.NewNumeric(name, columns, ts, rows)
	test.That(t, err, test.ShouldBeNil)
	return s
}

func scenarioStreams(t *testing.T) Streams {
	t.Helper()
	return Streams{
		Lidar: handles(t, "lidar", []float64{0, 1, 2, 3}),
		Image: handles(t, "image", []float64{0.5, 1.7, 2.9}),
		IMU: numeric(t, "imu", []string{"ax", "ay"},
			[]float64{0, 0.5, 1, 1.5, 2, 2.5, 3},
			timeseries.Fields{0, 0}, timeseries.Fields{1, -1}, timeseries.Fields{2, -2}, timeseries.Fields{3, -3},
			timeseries.Fields{4, -4}, timeseries.Fields{5, -5}, timeseries.Fields{6, -6}),
		GPS: numeric(t, "gps", []string{"lat", "lon"},
			[]float64{0, 3},
			timeseries.Fields{10, 20}, timeseries.Fields{16, 14}),
	}
}

func newTestSynchronizer(t *testing.T) (*Synchronizer, *clock.Mock, func(msg string) int) {
	t.Helper()
	logger, logs := golog.NewObservedTestLogger(t)
	mock := clock.NewMock()
	s := NewSynchronizer(logger)
	s.clock = mock
	return s, mock, func(msg string) int { return logs.FilterMessageSnippet(msg).Len() }
}

func TestSynchronize(t *testing.T) {
	s, _, logged := newTestSynchronizer(t)
	in := scenarioStreams(t)

	result, err := s.Synchronize(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Reference, test.ShouldEqual, SensorImage)
	test.That(t, result.ReferenceGap, test.ShouldAlmostEqual, 1.2)

	test.That(t, cmp.Diff([]string{"image", "lidar", "ax", "ay", "lat", "lon"}, result.Columns), test.ShouldBeEmpty)
	test.That(t, cmp.Diff(map[Sensor]Strategy{
		SensorLidar: StrategyNearest,
		SensorIMU:   StrategyNearest,
		SensorGPS:   StrategyInterpolate,
	}, result.Strategies), test.ShouldBeEmpty)

	t.Run("rows follow the reference clock", func(t *testing.T) {
		test.That(t, len(result.Records), test.ShouldEqual, in.Image.Len())
		for i, rec := range result.Records {
			test.That(t, rec.Timestamp, test.ShouldEqual, in.Image.Timestamps[i])
			img, ok := rec.Get("image")
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, *img.Handle, test.ShouldEqual, in.Image.Payloads[i])
		}
	})

	t.Run("dense lidar snaps to the nearest scan", func(t *testing.T) {
		var got []timeseries.Handle
		for _, rec := range result.Records {
			v, ok := rec.Get("lidar")
			test.That(t, ok, test.ShouldBeTrue)
			test.That(t, v.IsNull(), test.ShouldBeFalse)
			got = append(got, *v.Handle)
		}
		// 0.5 is equidistant from 0 and 1 and keeps the earlier scan
		test.That(t, got, test.ShouldResemble, []timeseries.Handle{"lidar_a", "lidar_c", "lidar_d"})
	})

	t.Run("sparse gps is interpolated", func(t *testing.T) {
		for _, rec := range result.Records {
			lat, _ := rec.Get("lat")
			lon, _ := rec.Get("lon")
			test.That(t, *lat.Number, test.ShouldAlmostEqual, 10+2*rec.Timestamp)
			test.That(t, *lon.Number, test.ShouldAlmostEqual, 20-2*rec.Timestamp)
		}
	})

	t.Run("dense imu keeps sampled values", func(t *testing.T) {
		var got []float64
		for _, rec := range result.Records {
			ax, _ := rec.Get("ax")
			got = append(got, *ax.Number)
		}
		test.That(t, got, test.ShouldResemble, []float64{1, 3, 6})
	})

	test.That(t, logged("interpolating gps data"), test.ShouldEqual, 1)
	test.That(t, logged("using nearest imu samples"), test.ShouldEqual, 1)
	test.That(t, logged("synchronization completed in 0s"), test.ShouldEqual, 1)
}

func TestSynchronizeLidarReference(t *testing.T) {
	s, _, _ := newTestSynchronizer(t)
	in := scenarioStreams(t)
	in.Lidar = handles(t, "lidar", []float64{0, 2, 4})
	in.Image = handles(t, "image", []float64{0, 0.5, 1, 1.5, 2, 2.5, 3, 3.5, 4})

	result, err := s.Synchronize(in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.Reference, test.ShouldEqual, SensorLidar)
	test.That(t, result.Columns[:2], test.ShouldResemble, []string{"lidar", "image"})
	test.That(t, len(result.Records), test.ShouldEqual, 3)

	var images []timeseries.Handle
	for i, rec := range result.Records {
		test.That(t, rec.Timestamp, test.ShouldEqual, in.Lidar.Timestamps[i])
		v, _ := rec.Get("image")
		images = append(images, *v.Handle)
	}
	test.That(t, images, test.ShouldResemble, []timeseries.Handle{"image_a", "image_e", "image_i"})
	// imu gap 0.5 and gps gap 3 are both compared against the lidar gap of 2
	test.That(t, result.Strategies[SensorIMU], test.ShouldEqual, StrategyNearest)
	test.That(t, result.Strategies[SensorGPS], test.ShouldEqual, StrategyInterpolate)
}

func TestSynchronizeFailures(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(in *Streams)
		kind   error
	}{
		{
			"single lidar scan",
			func(in *Streams) { in.Lidar = handles(t, "lidar", []float64{0}) },
			utils.ErrInsufficientSamples,
		},
		{
			"single imu sample",
			func(in *Streams) { in.IMU = numeric(t, "imu", []string{"ax"}, []float64{1}, timeseries.Fields{1}) },
			utils.ErrInsufficientSamples,
		},
		{
			"column shared by imu and gps",
			func(in *Streams) {
				in.GPS = numeric(t, "gps", []string{"ax"}, []float64{0, 3}, timeseries.Fields{1}, timeseries.Fields{2})
			},
			utils.ErrShapeMismatch,
		},
		{
			"column shadowing a handle",
			func(in *Streams) {
				in.GPS = numeric(t, "gps", []string{"lidar"}, []float64{0, 3}, timeseries.Fields{1}, timeseries.Fields{2})
			},
			utils.ErrShapeMismatch,
		},
		{
			"column shadowing the timestamp",
			func(in *Streams) {
				in.IMU = numeric(t, "imu", []string{TimestampKey}, []float64{0, 1}, timeseries.Fields{1}, timeseries.Fields{2})
			},
			utils.ErrShapeMismatch,
		},
		{
			"missing stream",
			func(in *Streams) { in.GPS = nil },
			utils.ErrShapeMismatch,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, _, logged := newTestSynchronizer(t)
			in := scenarioStreams(t)
			tc.mutate(&in)
			result, err := s.Synchronize(in)
			test.That(t, result, test.ShouldBeNil)
			test.That(t, errors.Is(err, tc.kind), test.ShouldBeTrue)
			test.That(t, logged("synchronization completed"), test.ShouldEqual, 0)
		})
	}
}

func TestRecordJSON(t *testing.T) {
	s, _, _ := newTestSynchronizer(t)
	in := scenarioStreams(t)
	in.IMU = numeric(t, "imu", []string{"ax"}, []float64{0, 1, 2, 3},
		timeseries.Fields{0}, timeseries.Fields{1}, timeseries.Fields{2}, timeseries.Fields{3})
	in.GPS = numeric(t, "gps", []string{"lat"}, []float64{0, 3}, timeseries.Fields{10}, timeseries.Fields{16})

	result, err := s.Synchronize(in)
	test.That(t, err, test.ShouldBeNil)

	data, err := json.Marshal(result.Records[:1])
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual,
		`[{"timestamp":0.5,"image":"image_a","lidar":"lidar_a","ax":0,"lat":11}]`)

	lat := 1.25
	h := timeseries.Handle("scan.pcd")
	rec := Record{
		Timestamp: 1700000000.123456,
		Columns:   []string{"lidar", "image", "lat"},
		Values:    []Value{{Handle: &h}, {}, {Number: &lat}},
	}
	test.That(t, rec.Values[1].IsNull(), test.ShouldBeTrue)
	data, err = json.Marshal(rec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(data), test.ShouldEqual,
		`{"timestamp":1700000000.123456,"lidar":"scan.pcd","image":null,"lat":1.25}`)

	_, ok := rec.Get("missing")
	test.That(t, ok, test.ShouldBeFalse)

	bad := math.NaN()
	rec.Values[2] = Value{Number: &bad}
	_, err = json.Marshal(rec)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `cannot encode field "lat"`)
}
