package protocol

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Timestamp formats a model may request per shape or member.
const (
	TimestampISO8601  = "iso8601"
	TimestampRFC822   = "rfc822"
	TimestampUnix     = "unixTimestamp"
	TimestampUnixWord = "unix" // accepted alias seen in older models
)

const iso8601Layout = "2006-01-02T15:04:05.999Z"

// FormatTimestamp renders a timestamp in the requested format, falling
// back to the protocol default when the member does not override it.
func FormatTimestamp(t time.Time, format, protocolDefault string) string {
	if format == "" {
		format = protocolDefault
	}
	switch format {
	case TimestampRFC822:
		// http-date always carries the literal GMT zone.
		return t.UTC().Format(http.TimeFormat)
	case TimestampUnix, TimestampUnixWord:
		return formatEpochSeconds(t)
	default:
		return t.UTC().Format(iso8601Layout)
	}
}

// EpochSeconds returns the timestamp as fractional seconds, the number both
// JSON RPC protocols put on the wire.
func EpochSeconds(t time.Time) float64 {
	ms := t.UnixNano() / int64(time.Millisecond)
	return float64(ms) / 1e3
}

func formatEpochSeconds(t time.Time) string {
	return strconv.FormatFloat(EpochSeconds(t), 'f', -1, 64)
}

// ParseTimestamp accepts the value forms a wire format can produce for the
// given format hint: numeric epoch seconds (possibly fractional) and the
// string date layouts.
func ParseTimestamp(v Document, format, protocolDefault string) (time.Time, error) {
	if format == "" {
		format = protocolDefault
	}
	switch value := v.(type) {
	case time.Time:
		return value, nil
	case float64:
		return timeFromEpoch(value), nil
	case int64:
		return time.Unix(value, 0).UTC(), nil
	case int:
		return time.Unix(int64(value), 0).UTC(), nil
	case string:
		switch format {
		case TimestampUnix, TimestampUnixWord:
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return time.Time{}, fmt.Errorf("parsing epoch timestamp %q: %w", value, err)
			}
			return timeFromEpoch(f), nil
		case TimestampRFC822:
			t, err := time.Parse(http.TimeFormat, value)
			if err != nil {
				t, err = time.Parse(time.RFC1123, value)
			}
			if err != nil {
				return time.Time{}, fmt.Errorf("parsing http-date timestamp %q: %w", value, err)
			}
			return t.UTC(), nil
		default:
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return time.Time{}, fmt.Errorf("parsing iso8601 timestamp %q: %w", value, err)
			}
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot interpret %T as a timestamp", v)
}

func timeFromEpoch(seconds float64) time.Time {
	sec, frac := math.Modf(seconds)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC().Round(time.Millisecond)
}
