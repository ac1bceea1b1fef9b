package repo

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// dateLayout is fixed width so that text columns sort chronologically.
const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Date time.Time

func (d Date) Value() (driver.Value, error) {
	return time.Time(d).UTC().Format(dateLayout), nil
}

func (d *Date) Scan(value any) error {
	if value == nil {
		*d = Date(time.Time{})
		return nil
	}

	if b, ok := value.([]byte); ok {
		value = string(b)
	}

	if str, ok := value.(string); ok {
		for _, layout := range []string{dateLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, str); err == nil {
				*d = Date(t.UTC())
				return nil
			}
		}
		return fmt.Errorf("cannot parse %q as Date", str)
	}

	if t, ok := value.(time.Time); ok {
		*d = Date(t.UTC())
		return nil
	}

	return fmt.Errorf("cannot scan type %T into Date", value)
}

func (d Date) String() string {
	return time.Time(d).Format(dateLayout)
}

func (d Date) Time() time.Time {
	return time.Time(d)
}
