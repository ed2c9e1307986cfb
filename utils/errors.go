package utils

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors naming each failure kind. Constructors below wrap them with
// context; use errors.Is to test for a kind.
var (
	ErrInvalidTimestampFormat = errors.New("invalid timestamp format")
	ErrInsufficientSamples    = errors.New("insufficient samples")
	ErrMalformedCalibration   = errors.New("malformed calibration")
	ErrShapeMismatch          = errors.New("shape mismatch")
	ErrResourceNotFound       = errors.New("resource not found")
	ErrMalformedRecord        = errors.New("malformed record")
	ErrUnorderedSamples       = errors.New("unordered samples")
)

// ErrorKindInternal is reported by ErrorKind for errors outside the known kinds.
const ErrorKindInternal = "Internal"

var errorKinds = []struct {
	sentinel error
	name     string
}{
	{ErrInvalidTimestampFormat, "InvalidTimestampFormat"},
	{ErrInsufficientSamples, "InsufficientSamples"},
	{ErrMalformedCalibration, "MalformedCalibration"},
	{ErrShapeMismatch, "ShapeMismatch"},
	{ErrResourceNotFound, "ResourceNotFound"},
	{ErrMalformedRecord, "MalformedRecord"},
	{ErrUnorderedSamples, "UnorderedSamples"},
}

// ErrorKind returns the name of the kind err belongs to, or ErrorKindInternal.
func ErrorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			return k.name
		}
	}
	return ErrorKindInternal
}

// NewInvalidTimestampFormatError is used when a filename does not follow the
// <prefix>_<seconds>_<fraction>.<ext> convention.
func NewInvalidTimestampFormatError(filename, reason string) error {
	return errors.Wrapf(ErrInvalidTimestampFormat, "%q: %s", filename, reason)
}

// NewInsufficientSamplesError is used when a stream is too short for a gap statistic.
func NewInsufficientSamplesError(stream string, have, need int) error {
	return errors.Wrapf(ErrInsufficientSamples, "stream %q has %d samples, need at least %d", stream, have, need)
}

// NewMalformedCalibrationError is used when a calibration key is missing or cannot be
// reshaped to what its consumer expects.
func NewMalformedCalibrationError(key string, format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedCalibration, "key %q: %s", key, fmt.Sprintf(format, args...))
}

// NewShapeMismatchError is used when dimensions are incompatible.
func NewShapeMismatchError(format string, args ...interface{}) error {
	return errors.Wrap(ErrShapeMismatch, fmt.Sprintf(format, args...))
}

// NewResourceNotFoundError is used when a referenced file or frame does not exist.
func NewResourceNotFoundError(what string) error {
	return errors.Wrapf(ErrResourceNotFound, "%s", what)
}

// NewMalformedRecordError is used when a decoded record is structurally invalid.
func NewMalformedRecordError(source string, format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedRecord, "%s: %s", source, fmt.Sprintf(format, args...))
}

// NewUnorderedSamplesError is used when timestamps within one stream are not strictly increasing.
func NewUnorderedSamplesError(stream string, index int, prev, cur float64) error {
	return errors.Wrapf(ErrUnorderedSamples,
		"stream %q: timestamp %v at index %d does not follow %v", stream, cur, index, prev)
}

// NewConfigValidationFieldRequiredError is used when a required config field is empty.
func NewConfigValidationFieldRequiredError(path, field string) error {
	return NewConfigValidationError(path, errors.Errorf("%q is required", field))
}

// NewConfigValidationError returns an error about an invalid config at path.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}
