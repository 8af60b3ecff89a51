// Package format provides human-readable formatting for sizes, bitrates and schedules.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Bytes formats a byte count with binary units.
// Example: Bytes(1536) => "1.5 KB"
func Bytes(bytes int64) string {
	if bytes < 0 {
		return "-" + Bytes(-bytes)
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	sizes := [...]string{"KB", "MB", "GB", "TB", "PB"}
	return fmt.Sprintf("%.1f %s", float64(bytes)/float64(div), sizes[exp])
}

// Number formats an integer with thousands separators.
// Example: Number(1234567) => "1,234,567"
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// Kilobytes formats a kilobyte figure truncated to an integer with separators.
// Example: Kilobytes(10380.9) => "10,380KB"
func Kilobytes(kb float64) string {
	return Number(int64(kb)) + "KB"
}

// Bitrate formats bits per second.
// Example: Bitrate(1250000) => "1.25 Mbps"
func Bitrate(bps float64) string {
	switch {
	case bps >= 1_000_000:
		return strconv.FormatFloat(bps/1_000_000, 'f', 2, 64) + " Mbps"
	case bps >= 1_000:
		return strconv.FormatFloat(bps/1_000, 'f', 1, 64) + " kbps"
	default:
		return strconv.FormatFloat(bps, 'f', 0, 64) + " bps"
	}
}

// Percentage formats a ratio in [0,1] as a percentage.
// Example: Percentage(0.4567, 1) => "45.7%"
func Percentage(ratio float64, decimals int) string {
	return fmt.Sprintf("%.*f%%", decimals, ratio*100)
}

// CronDescription describes common 5-field cron expressions
// (minute hour day-of-month month day-of-week). Anything it does not
// recognise is returned unchanged.
// Example: CronDescription("*/15 * * * *") => "Every 15 minutes"
func CronDescription(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}
	minute, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]
	if dom != "*" || month != "*" {
		return expr
	}

	if minute == "*" && hour == "*" && dow == "*" {
		return "Every minute"
	}
	if n, ok := step(minute); ok && hour == "*" && dow == "*" {
		if n == 1 {
			return "Every minute"
		}
		return fmt.Sprintf("Every %d minutes", n)
	}

	m, mErr := strconv.Atoi(minute)
	if mErr != nil {
		return expr
	}
	if hour == "*" && dow == "*" {
		if m == 0 {
			return "Every hour"
		}
		return fmt.Sprintf("Every hour at :%02d", m)
	}
	if n, ok := step(hour); ok && dow == "*" {
		return fmt.Sprintf("Every %d hours at :%02d", n, m)
	}

	h, hErr := strconv.Atoi(hour)
	if hErr != nil {
		return expr
	}
	at := clock(h, m)
	if dow == "*" {
		return "Daily at " + at
	}
	if d, err := strconv.Atoi(dow); err == nil && d >= 0 && d < len(dayNames) {
		return fmt.Sprintf("%ss at %s", dayNames[d], at)
	}
	if dow == "1-5" {
		return "Weekdays at " + at
	}
	return expr
}

var dayNames = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// step parses "*/n".
func step(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, "*/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func clock(hour, minute int) string {
	switch {
	case hour == 0 && minute == 0:
		return "midnight"
	case hour == 12 && minute == 0:
		return "noon"
	}
	period := "AM"
	h := hour
	if hour >= 12 {
		period = "PM"
		if hour > 12 {
			h = hour - 12
		}
	}
	if hour == 0 {
		h = 12
	}
	if minute == 0 {
		return fmt.Sprintf("%d%s", h, period)
	}
	return fmt.Sprintf("%d:%02d%s", h, minute, period)
}
