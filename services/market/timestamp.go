// Package market holds the core market-data value types: wall-clock
// timestamps, second bars, timeframe bars and the trading-session predicates.
package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600

	rthStartSeconds = 8*secondsPerHour + 30*secondsPerMinute
	rthEndSeconds   = 16 * secondsPerHour
)

// Timestamp is a decomposed wall-clock value plus its canonical string form.
// Immutable once constructed.
type Timestamp struct {
	Raw    string `json:"raw"`
	Date   string `json:"date"` // YYYY-MM-DD
	Time   string `json:"time"` // HH:mm:ss
	Year   int    `json:"year"`
	Month  int    `json:"month"`
	Day    int    `json:"day"`
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
	Second int    `json:"second"`
}

// ParseTimestamp parses "YYYY-MM-DD HH:mm:ss" into a Timestamp.
func ParseTimestamp(raw string) (Timestamp, error) {
	trimmed := strings.TrimSpace(raw)
	parts := strings.SplitN(trimmed, " ", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Timestamp{}, fmt.Errorf("invalid timestamp string: %q", raw)
	}
	datePart, timePart := parts[0], parts[1]

	dateFields := strings.Split(datePart, "-")
	timeFields := strings.Split(timePart, ":")
	if len(dateFields) != 3 || len(timeFields) != 3 {
		return Timestamp{}, fmt.Errorf("invalid timestamp components: %q", raw)
	}

	nums := make([]int, 0, 6)
	for _, f := range append(dateFields, timeFields...) {
		n, err := strconv.Atoi(f)
		if err != nil {
			return Timestamp{}, fmt.Errorf("invalid timestamp components: %q", raw)
		}
		nums = append(nums, n)
	}

	return Timestamp{
		Raw:    trimmed,
		Date:   datePart,
		Time:   timePart,
		Year:   nums[0],
		Month:  nums[1],
		Day:    nums[2],
		Hour:   nums[3],
		Minute: nums[4],
		Second: nums[5],
	}, nil
}

// WithTime returns a copy of ts on the same calendar date with a new
// time of day. Used to construct bucket-start timestamps.
func (ts Timestamp) WithTime(hour, minute, second int) Timestamp {
	timeStr := formatTime(hour, minute, second)
	return Timestamp{
		Raw:    ts.Date + " " + timeStr,
		Date:   ts.Date,
		Time:   timeStr,
		Year:   ts.Year,
		Month:  ts.Month,
		Day:    ts.Day,
		Hour:   hour,
		Minute: minute,
		Second: second,
	}
}

// MinuteKey returns "YYYY-MM-DD HH:mm", used as a stable pattern identifier.
func (ts Timestamp) MinuteKey() string {
	return fmt.Sprintf("%s %02d:%02d", ts.Date, ts.Hour, ts.Minute)
}

// UnixMilli returns the UTC epoch milliseconds of the timestamp.
func (ts Timestamp) UnixMilli() int64 {
	return time.Date(ts.Year, time.Month(ts.Month), ts.Day, ts.Hour, ts.Minute, ts.Second, 0, time.UTC).UnixMilli()
}

// SecondsOfDay returns seconds elapsed since midnight.
func (ts Timestamp) SecondsOfDay() int {
	return ts.Hour*secondsPerHour + ts.Minute*secondsPerMinute + ts.Second
}

func formatTime(hour, minute, second int) string {
	return fmt.Sprintf("%02d:%02d:%02d", hour, minute, second)
}

// IsRegularTradingHours reports whether ts falls inside the RTH window,
// 08:30:00 inclusive to 16:00:00 exclusive.
func IsRegularTradingHours(ts Timestamp) bool {
	s := ts.SecondsOfDay()
	return s >= rthStartSeconds && s < rthEndSeconds
}

// IsSessionStart reports whether cur is the first tradable second of a new
// session. prev is nil when cur is the first sample of the stream.
func IsSessionStart(prev *Timestamp, cur Timestamp) bool {
	if !IsRegularTradingHours(cur) {
		return false
	}
	if prev == nil {
		return true
	}
	newDay := prev.Date != cur.Date
	enteredRth := !IsRegularTradingHours(*prev)
	firstRthSecond := cur.SecondsOfDay() == rthStartSeconds
	return newDay || (enteredRth && firstRthSecond) ||
		(firstRthSecond && prev.SecondsOfDay() != cur.SecondsOfDay())
}

// IsSessionEnd reports whether the session closed between prev and cur.
func IsSessionEnd(prev, cur Timestamp) bool {
	return IsRegularTradingHours(prev) && !IsRegularTradingHours(cur)
}
