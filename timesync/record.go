package timesync

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"

	"go.viam.com/sensorsync/timeseries"
)

// TimestampKey is the key of the reference timestamp in serialized records.
const TimestampKey = "timestamp"

// Value is one merged field of a record. At most one of Handle and Number is
// set; neither is set when the stream had no row for the reference timestamp.
type Value struct {
	Handle *timeseries.Handle
	Number *float64
}

// IsNull reports whether the field is unmatched.
func (v Value) IsNull() bool {
	return v.Handle == nil && v.Number == nil
}

// Record is one synchronized row. Columns is shared by every record of a
// Result and names Values positionally.
type Record struct {
	Timestamp float64
	Columns   []string
	Values    []Value
}

// Get returns the field with the given column name.
func (r Record) Get(name string) (Value, bool) {
	for i, col := range r.Columns {
		if col == name {
			return r.Values[i], true
		}
	}
	return Value{}, false
}

// MarshalJSON encodes the record as a flat object whose keys follow merge
// order: timestamp, reference handle, other handle, inertial then positioning
// fields. Unmatched fields are null.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeMember(&buf, TimestampKey, r.Timestamp); err != nil {
		return nil, err
	}
	for i, col := range r.Columns {
		buf.WriteByte(',')
		var v interface{}
		switch val := r.Values[i]; {
		case val.Handle != nil:
			v = *val.Handle
		case val.Number != nil:
			v = *val.Number
		}
		if err := writeMember(&buf, col, v); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, value interface{}) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "cannot encode field %q", key)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}
