package timesync

import (
	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"

	"go.viam.com/sensorsync/timeseries"
	"go.viam.com/sensorsync/utils"
)

// Streams are the four decoded inputs of a synchronization run.
type Streams struct {
	Lidar *timeseries.Series[timeseries.Handle]
	Image *timeseries.Series[timeseries.Handle]
	IMU   *timeseries.NumericSeries
	GPS   *timeseries.NumericSeries
}

// Result is the merged output of a synchronization run.
type Result struct {
	Reference    Sensor
	ReferenceGap float64
	// Strategies records how each non-reference stream was aligned.
	Strategies map[Sensor]Strategy
	Columns    []string
	Records    []Record
}

// Synchronizer aligns and merges sensor streams. It holds no state between
// runs; the logger and clock are only used to report what happened.
type Synchronizer struct {
	logger golog.Logger
	clock  clock.Clock
}

// NewSynchronizer returns a Synchronizer that reports to logger.
func NewSynchronizer(logger golog.Logger) *Synchronizer {
	return &Synchronizer{logger: logger, clock: clock.New()}
}

type column struct {
	name   string
	values []Value
}

// Synchronize selects the reference between lidar and image, aligns every
// other stream to it and left-merges them on the reference timestamp. Rows
// follow the reference order exactly. Any failure aborts the whole run.
func (s *Synchronizer) Synchronize(in Streams) (*Result, error) {
	start := s.clock.Now()
	if in.Lidar == nil || in.Image == nil || in.IMU == nil || in.GPS == nil {
		return nil, utils.NewShapeMismatchError("synchronization needs lidar, image, imu and gps streams")
	}

	ref, err := SelectReference(in.Lidar.Timestamps, in.Image.Timestamps)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("selected reference sensor",
		"sensor", ref.Sensor, "lidar_gap", ref.LidarGap, "image_gap", ref.ImageGap, "rows", len(ref.Timestamps))

	refStream, other, otherSensor := in.Image, in.Lidar, SensorLidar
	if ref.Sensor == SensorLidar {
		refStream, other, otherSensor = in.Lidar, in.Image, SensorImage
	}

	result := &Result{
		Reference:    ref.Sensor,
		ReferenceGap: ref.MeanGap,
		Strategies:   map[Sensor]Strategy{},
	}

	alignedOther, err := AlignHandles(other, ref)
	if err != nil {
		return nil, err
	}
	result.Strategies[otherSensor] = StrategyNearest
	s.logger.Debugf("using nearest %s samples", otherSensor)

	columns := []column{
		{string(ref.Sensor), handleValues(refStream.Timestamps, refStream.Payloads, ref.Timestamps)},
		{string(otherSensor), handleValues(alignedOther.Timestamps, alignedOther.Payloads, ref.Timestamps)},
	}

	for _, numeric := range []struct {
		sensor Sensor
		series *timeseries.NumericSeries
	}{
		{SensorIMU, in.IMU},
		{SensorGPS, in.GPS},
	} {
		aligned, strategy, err := AlignNumeric(numeric.series, ref)
		if err != nil {
			return nil, err
		}
		result.Strategies[numeric.sensor] = strategy
		if strategy == StrategyInterpolate {
			s.logger.Infof("interpolating %s data", numeric.sensor)
		} else {
			s.logger.Infof("using nearest %s samples", numeric.sensor)
		}
		columns = append(columns, numericColumns(aligned, ref.Timestamps)...)
	}

	names := make([]string, len(columns))
	seen := map[string]bool{TimestampKey: true}
	for i, col := range columns {
		if seen[col.name] {
			return nil, utils.NewShapeMismatchError("column %q appears more than once in the merged record", col.name)
		}
		seen[col.name] = true
		names[i] = col.name
	}

	result.Columns = names
	result.Records = make([]Record, len(ref.Timestamps))
	for row, ts := range ref.Timestamps {
		values := make([]Value, len(columns))
		for i, col := range columns {
			values[i] = col.values[row]
		}
		result.Records[row] = Record{Timestamp: ts, Columns: names, Values: values}
	}

	s.logger.Infof("synchronization completed in %s", s.clock.Since(start))
	return result, nil
}

// joinIndex maps each target timestamp to the row of timestamps holding the
// same value, or -1; this is the left merge on the reference timestamp.
func joinIndex(timestamps, targets []float64) []int {
	rows := make(map[float64]int, len(timestamps))
	for i, ts := range timestamps {
		rows[ts] = i
	}
	out := make([]int, len(targets))
	for i, ts := range targets {
		if row, ok := rows[ts]; ok {
			out[i] = row
		} else {
			out[i] = -1
		}
	}
	return out
}

func handleValues(timestamps []float64, handles []timeseries.Handle, targets []float64) []Value {
	values := make([]Value, len(targets))
	for i, row := range joinIndex(timestamps, targets) {
		if row >= 0 {
			h := handles[row]
			values[i] = Value{Handle: &h}
		}
	}
	return values
}

func numericColumns(s *timeseries.NumericSeries, targets []float64) []column {
	index := joinIndex(s.Timestamps, targets)
	out := make([]column, len(s.Columns))
	for c, name := range s.Columns {
		values := make([]Value, len(targets))
		for i, row := range index {
			if row >= 0 {
				v := s.Payloads[row][c]
				values[i] = Value{Number: &v}
			}
		}
		out[c] = column{name: name, values: values}
	}
	return out
}
