// Package sensordata decodes recorded sensor files into timestamped streams.
//
// Range scans and camera frames are stored one file per sample, named
// <prefix>_<seconds>_<fraction>.bin. Inertial and positioning logs are JSON
// arrays of records.
package sensordata

import (
	"path/filepath"
	"strconv"
	"strings"

	"go.viam.com/sensorsync/utils"
)

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseTimestamp extracts the timestamp encoded in a sample filename of the
// form <prefix>_<seconds>_<fraction>.<ext>. The fraction keeps every digit it
// was written with, so lidar_1700000000_000123.bin is 1700000000.000123.
func ParseTimestamp(filename, prefix string) (float64, error) {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if ext == "" || ext == "." {
		return 0, utils.NewInvalidTimestampFormatError(base, "missing extension")
	}
	stem, ok := strings.CutPrefix(strings.TrimSuffix(base, ext), prefix+"_")
	if !ok {
		return 0, utils.NewInvalidTimestampFormatError(base, "expected prefix "+strconv.Quote(prefix+"_"))
	}
	secs, frac, ok := strings.Cut(stem, "_")
	if !ok || !allDigits(secs) || !allDigits(frac) {
		return 0, utils.NewInvalidTimestampFormatError(base, "expected <seconds>_<fraction> digits")
	}
	ts, err := strconv.ParseFloat(secs+"."+frac, 64)
	if err != nil {
		return 0, utils.NewInvalidTimestampFormatError(base, err.Error())
	}
	return ts, nil
}
