// Package calibration reads KITTI style calibration files into named flat
// numeric arrays and reshapes them into matrices on request.
package calibration

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sensorsync/utils"
)

// Set maps calibration keys to their values. It is immutable once built and
// safe to share between projections.
type Set struct {
	values map[string][]float64
	// lines whose value is not a list of numbers, such as calib_time
	text map[string]string
}

// NewSet builds a Set from already parsed values.
func NewSet(values map[string][]float64) *Set {
	s := &Set{values: make(map[string][]float64, len(values)), text: map[string]string{}}
	for k, v := range values {
		s.values[k] = append([]float64(nil), v...)
	}
	return s
}

// Parse reads `key: v1 v2 ...` lines. Blank lines are ignored, and a line
// whose value is not entirely numeric is kept as text so it can be reported
// if a caller asks for it as a matrix.
func Parse(r io.Reader) (*Set, error) {
	s := NewSet(nil)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, rest, ok := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, utils.NewMalformedCalibrationError(key, "line %d has no key", lineNum)
		}
		if s.has(key) {
			return nil, utils.NewMalformedCalibrationError(key, "defined more than once (line %d)", lineNum)
		}
		fields := strings.Fields(rest)
		values := make([]float64, 0, len(fields))
		numeric := len(fields) > 0
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				numeric = false
				break
			}
			values = append(values, v)
		}
		if numeric {
			s.values[key] = values
		} else {
			s.text[key] = strings.TrimSpace(rest)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading calibration")
	}
	return s, nil
}

// ReadFile parses the calibration file at path.
func ReadFile(path string) (s *Set, err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, utils.NewResourceNotFoundError(path)
		}
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	s, err = Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing %q", path)
	}
	return s, nil
}

// Merge combines sets into one. A numeric key present in more than one set is
// an error. Text entries are metadata (every KITTI file has a calib_time) and
// the first one seen is kept.
func Merge(sets ...*Set) (*Set, error) {
	out := NewSet(nil)
	for _, s := range sets {
		for k, v := range s.values {
			if out.has(k) {
				return nil, utils.NewMalformedCalibrationError(k, "defined in more than one file")
			}
			out.values[k] = v
		}
	}
	for _, s := range sets {
		for k, v := range s.text {
			if out.has(k) {
				if _, isValue := out.values[k]; isValue {
					return nil, utils.NewMalformedCalibrationError(k, "defined in more than one file")
				}
				continue
			}
			out.text[k] = v
		}
	}
	return out, nil
}

func (s *Set) has(key string) bool {
	_, isValue := s.values[key]
	_, isText := s.text[key]
	return isValue || isText
}

// Keys returns every key in the set, sorted.
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.values)+len(s.text))
	for k := range s.values {
		keys = append(keys, k)
	}
	for k := range s.text {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns a copy of the flat values stored under key.
func (s *Set) Values(key string) ([]float64, error) {
	v, ok := s.values[key]
	if !ok {
		if text, isText := s.text[key]; isText {
			return nil, utils.NewMalformedCalibrationError(key, "value %q is not numeric", text)
		}
		return nil, utils.NewMalformedCalibrationError(key, "missing")
	}
	return append([]float64(nil), v...), nil
}

// Matrix reshapes the value under key into a rows x cols matrix in row-major
// order. The element count must match exactly.
func (s *Set) Matrix(key string, rows, cols int) (*mat.Dense, error) {
	v, err := s.Values(key)
	if err != nil {
		return nil, err
	}
	if len(v) != rows*cols {
		return nil, utils.NewMalformedCalibrationError(key, "has %d values, cannot reshape to %dx%d", len(v), rows, cols)
	}
	return mat.NewDense(rows, cols, v), nil
}

// Vector returns the value under key as an n element column vector.
func (s *Set) Vector(key string, n int) (*mat.VecDense, error) {
	v, err := s.Values(key)
	if err != nil {
		return nil, err
	}
	if len(v) != n {
		return nil, utils.NewMalformedCalibrationError(key, "has %d values, expected a vector of %d", len(v), n)
	}
	return mat.NewVecDense(n, v), nil
}
