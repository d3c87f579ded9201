package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RawJSON is an opaque JSON document persisted as JSONB. Provider payloads are
// stored verbatim for audit.
type RawJSON []byte

// Value implements driver.Valuer
func (j RawJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner
func (j *RawJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = RawJSON(v)
	default:
		return fmt.Errorf("cannot scan %T into RawJSON", src)
	}
	return nil
}

func (j RawJSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *RawJSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// ToRawJSON marshals v, falling back to a JSON string holding the raw bytes
// when v is already a non-JSON byte slice
func ToRawJSON(v interface{}) RawJSON {
	switch b := v.(type) {
	case nil:
		return nil
	case RawJSON:
		return b
	case []byte:
		if json.Valid(b) {
			return RawJSON(b)
		}
		quoted, _ := json.Marshal(string(b))
		return RawJSON(quoted)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return RawJSON(data)
}
