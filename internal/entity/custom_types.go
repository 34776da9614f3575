package entity

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

// Millis is a timestamp carried as epoch milliseconds on the wire.
type Millis struct {
	time.Time
}

func MillisOf(t time.Time) Millis {
	return Millis{Time: time.UnixMilli(t.UnixMilli())}
}

func (m Millis) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(m.UnixMilli(), 10)), nil
}

func (m *Millis) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		m.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		t, err := time.Parse(time.RFC3339, string(b[1:len(b)-1]))
		if err != nil {
			return err
		}
		m.Time = t
		return nil
	}
	ms, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid epoch millis %q: %w", b, err)
	}
	m.Time = time.UnixMilli(int64(ms))
	return nil
}

func (m Millis) Value() (driver.Value, error) {
	if m.IsZero() {
		return nil, nil
	}
	return m.Time, nil
}

func (m *Millis) Scan(value interface{}) error {
	if value == nil {
		m.Time = time.Time{}
		return nil
	}

	switch v := value.(type) {
	case time.Time:
		m.Time = v
	case int64:
		m.Time = time.UnixMilli(v)
	case []byte:
		t, err := time.Parse("2006-01-02 15:04:05", string(v))
		if err != nil {
			return err
		}
		m.Time = t
	default:
		return fmt.Errorf("cannot scan type %T into Millis", value)
	}
	return nil
}
