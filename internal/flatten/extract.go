package flatten

import (
	"database/sql"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/engagement-transform/internal/model"
	"github.com/tidwall/gjson"
)

// Typed extraction with neutral defaults. None of these fail: a value that is
// absent or cannot be coerced yields 0, false, or NULL.

// ID returns an identifier field as text. Integer identifiers are rendered
// without a fractional part.
func ID(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return strings.TrimSpace(r.Str)
	case gjson.Number:
		if r.Num == math.Trunc(r.Num) && math.Abs(r.Num) < 1e15 {
			return strconv.FormatInt(int64(r.Num), 10)
		}
		return r.Raw
	}
	return ""
}

// Text returns a nullable string; empty and non-scalar values are NULL.
func Text(r gjson.Result) sql.NullString {
	switch r.Type {
	case gjson.String:
		if s := strings.TrimSpace(r.Str); s != "" {
			return sql.NullString{String: s, Valid: true}
		}
	case gjson.Number, gjson.True, gjson.False:
		return sql.NullString{String: r.String(), Valid: true}
	}
	return sql.NullString{}
}

// Int coerces numbers and numeric strings, truncating fractions.
func Int(r gjson.Result) int64 {
	switch r.Type {
	case gjson.Number:
		if r.Num == math.Trunc(r.Num) {
			return r.Int()
		}
		return truncate(r.Num)
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return truncate(f)
		}
	}
	return 0
}

func truncate(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64/2 {
		return 0
	}
	return int64(math.Trunc(f))
}

// Float coerces numbers and numeric strings.
func Float(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Num
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(r.Str), 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
	}
	return 0
}

// Bool accepts JSON booleans, "true"/"false"-like strings and non-zero numbers.
func Bool(r gjson.Result) bool {
	switch r.Type {
	case gjson.True:
		return true
	case gjson.String:
		b, err := strconv.ParseBool(strings.TrimSpace(r.Str))
		return err == nil && b
	case gjson.Number:
		return r.Num != 0
	}
	return false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e11

// Date parses a timestamp and keeps only its UTC calendar date. Use it for
// instants such as contact creation and update times.
func Date(r gjson.Result) sql.Null[time.Time] {
	t, ok := parseTime(r)
	if !ok {
		return sql.Null[time.Time]{}
	}
	return sql.Null[time.Time]{V: model.Day(t), Valid: true}
}

// CalendarDate keeps the calendar date as written, ignoring any zone offset.
// Use it for date-only fields such as statsDate or a campaign's start date.
func CalendarDate(r gjson.Result) sql.Null[time.Time] {
	t, ok := parseTime(r)
	if !ok {
		return sql.Null[time.Time]{}
	}
	return sql.Null[time.Time]{V: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

// parseTime accepts the known layouts and epoch seconds or milliseconds.
// Epoch values are returned in UTC.
func parseTime(r gjson.Result) (time.Time, bool) {
	switch r.Type {
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	case gjson.Number:
		if r.Num <= 0 {
			break
		}
		if r.Num >= epochMillisThreshold {
			return time.UnixMilli(int64(r.Num)).UTC(), true
		}
		return time.Unix(int64(r.Num), 0).UTC(), true
	}
	return time.Time{}, false
}

// first returns the first of paths present with a non-null value.
func first(elem gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := elem.Get(p); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}
