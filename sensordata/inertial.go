package sensordata

import (
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/sensorsync/timeseries"
	"go.viam.com/sensorsync/utils"
)

// Stream names used for decoded logs.
const (
	IMUStream = "imu"
	GPSStream = "gps"
)

const timestampField = "timestamp"

// IMU vector groups, flattened to <group>_<axis> columns.
const (
	angularVelocity    = "angular_velocity"
	linearAcceleration = "linear_acceleration"
)

type imuEntry struct {
	Timestamp          *float64                   `json:"timestamp"`
	AngularVelocity    map[string]json.RawMessage `json:"angular_velocity"`
	LinearAcceleration map[string]json.RawMessage `json:"linear_acceleration"`
}

type row struct {
	ts     float64
	values map[string]float64
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// number decodes a JSON number. null is rejected rather than read as zero.
func number(raw json.RawMessage) (float64, bool) {
	var v float64
	if string(raw) == "null" || json.Unmarshal(raw, &v) != nil {
		return 0, false
	}
	return v, true
}

// ReadIMU decodes a JSON array of
// {timestamp, angular_velocity{x,y,z}, linear_acceleration{x,y,z}} records
// into columns angular_velocity_x ... linear_acceleration_z.
func ReadIMU(r io.Reader, source string) (*timeseries.NumericSeries, error) {
	var entries []imuEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, utils.NewMalformedRecordError(source, "%v", err)
	}
	rows := make([]row, len(entries))
	for i, e := range entries {
		if e.Timestamp == nil {
			return nil, utils.NewMalformedRecordError(source, "record %d has no %s", i, timestampField)
		}
		if e.AngularVelocity == nil || e.LinearAcceleration == nil {
			return nil, utils.NewMalformedRecordError(source, "record %d needs both %s and %s",
				i, angularVelocity, linearAcceleration)
		}
		values := map[string]float64{}
		for _, group := range []struct {
			name   string
			values map[string]json.RawMessage
		}{
			{angularVelocity, e.AngularVelocity},
			{linearAcceleration, e.LinearAcceleration},
		} {
			for axis, raw := range group.values {
				col := group.name + "_" + axis
				v, ok := number(raw)
				if !ok {
					return nil, utils.NewMalformedRecordError(source, "record %d field %q is not a number: %s", i, col, raw)
				}
				values[col] = v
			}
		}
		rows[i] = row{ts: *e.Timestamp, values: values}
	}

	var columns []string
	if len(entries) > 0 {
		for _, group := range []struct {
			name   string
			values map[string]json.RawMessage
		}{
			{angularVelocity, entries[0].AngularVelocity},
			{linearAcceleration, entries[0].LinearAcceleration},
		} {
			for _, axis := range sortedKeys(group.values) {
				columns = append(columns, group.name+"_"+axis)
			}
		}
	}
	return buildSeries(IMUStream, source, columns, rows)
}

// ReadGPS decodes a JSON array of flat records. Every key other than timestamp
// becomes a column; every record must carry every column as a number.
func ReadGPS(r io.Reader, source string) (*timeseries.NumericSeries, error) {
	var entries []map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, utils.NewMalformedRecordError(source, "%v", err)
	}
	union := map[string]float64{}
	rows := make([]row, len(entries))
	for i, e := range entries {
		values := make(map[string]float64, len(e))
		for k, raw := range e {
			v, ok := number(raw)
			if !ok {
				return nil, utils.NewMalformedRecordError(source, "record %d field %q is not a number: %s", i, k, raw)
			}
			values[k] = v
		}
		ts, ok := values[timestampField]
		if !ok {
			return nil, utils.NewMalformedRecordError(source, "record %d has no %s", i, timestampField)
		}
		delete(values, timestampField)
		for k := range values {
			union[k] = 0
		}
		rows[i] = row{ts: ts, values: values}
	}
	return buildSeries(GPSStream, source, sortedKeys(union), rows)
}

// buildSeries sorts rows by timestamp and lays them out in column order.
// A row missing a column or carrying an extra one is rejected.
func buildSeries(name, source string, columns []string, rows []row) (*timeseries.NumericSeries, error) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ts < rows[j].ts })
	timestamps := make([]float64, len(rows))
	fields := make([]timeseries.Fields, len(rows))
	for i, r := range rows {
		if len(r.values) != len(columns) {
			return nil, utils.NewMalformedRecordError(source,
				"record at %v has %d fields, expected %d %v", r.ts, len(r.values), len(columns), columns)
		}
		f := make(timeseries.Fields, len(columns))
		for c, col := range columns {
			v, ok := r.values[col]
			if !ok {
				return nil, utils.NewMalformedRecordError(source, "record at %v is missing %q", r.ts, col)
			}
			f[c] = v
		}
		timestamps[i] = r.ts
		fields[i] = f
	}
	return timeseries.NewNumeric(name, columns, timestamps, fields)
}

func readJSONFile(
	path string,
	read func(io.Reader, string) (*timeseries.NumericSeries, error),
) (s *timeseries.NumericSeries, err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.NewResourceNotFoundError(path)
		}
		return nil, errors.Wrapf(err, "cannot open %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return read(f, path)
}

// ReadIMUFile reads an inertial log from disk.
func ReadIMUFile(path string) (*timeseries.NumericSeries, error) {
	return readJSONFile(path, ReadIMU)
}

// ReadGPSFile reads a positioning log from disk.
func ReadGPSFile(path string) (*timeseries.NumericSeries, error) {
	return readJSONFile(path, ReadGPS)
}
