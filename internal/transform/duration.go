package transform

import (
	"regexp"
	"strconv"
	"time"
)

// durationComponents mirrors the source's DurationComponents: calendar
// components (years, months) advance with relativedelta-style arithmetic,
// absolute components (days, hours, minutes) with plain addition.
type durationComponents struct {
	Years   int
	Months  int
	Days    int
	Hours   int
	Minutes int
}

var (
	yearRe   = regexp.MustCompile(`(\d+)Y`)
	monthRe  = regexp.MustCompile(`(\d+)M`)
	dayRe    = regexp.MustCompile(`(\d+)D`)
	hourRe   = regexp.MustCompile(`(\d+)H`)
	minuteRe = regexp.MustCompile(`(\d+)M`)
)

// parseISODuration parses an ISO-8601 duration such as "PT15M", "P1D",
// "P1Y", or the mixed form "P1DT2H30M" into its components. It returns an
// error if the string is not a "P..." duration or if every component
// parses to zero.
func parseISODuration(duration string) (durationComponents, error) {
	if len(duration) == 0 || duration[0] != 'P' {
		return durationComponents{}, errInvalidDuration(duration)
	}

	var datePart, timePart string
	if idx := indexByte(duration, 'T'); idx >= 0 {
		datePart = duration[1:idx]
		timePart = duration[idx+1:]
	} else {
		datePart = duration[1:]
	}

	var years, months, days, hours, minutes int
	if datePart != "" {
		years = matchInt(yearRe, datePart)
		months = matchInt(monthRe, datePart)
		days = matchInt(dayRe, datePart)
	}
	if timePart != "" {
		hours = matchInt(hourRe, timePart)
		minutes = matchInt(minuteRe, timePart)
	}

	if years == 0 && months == 0 && days == 0 && hours == 0 && minutes == 0 {
		return durationComponents{}, errInvalidDuration(duration)
	}

	return durationComponents{
		Years: years, Months: months, Days: days, Hours: hours, Minutes: minutes,
	}, nil
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func matchInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return v
}

type durationParseError struct {
	raw string
}

func (e *durationParseError) Error() string {
	return "invalid ISO-8601 duration: " + e.raw
}

func errInvalidDuration(raw string) error {
	return &durationParseError{raw: raw}
}

// addScaled advances t by the duration's components scaled by offset:
// calendar components (years, months) via calendar-aware arithmetic,
// absolute components (days, hours, minutes) via fixed-length arithmetic.
// Both kinds apply additively when a resolution mixes them (e.g. P1DT2H30M).
func addScaled(t time.Time, d durationComponents, offset int) time.Time {
	if d.Years != 0 || d.Months != 0 {
		t = addCalendarMonths(t, d.Years*12*offset+d.Months*offset)
	}
	if d.Days != 0 || d.Hours != 0 || d.Minutes != 0 {
		t = t.Add(time.Duration(d.Days*offset)*24*time.Hour +
			time.Duration(d.Hours*offset)*time.Hour +
			time.Duration(d.Minutes*offset)*time.Minute)
	}
	return t
}

// addCalendarMonths adds the given number of months the way dateutil's
// relativedelta does: the day-of-month clamps to the last valid day of
// the target month rather than overflowing (Jan 31 + 1 month = Feb 28/29,
// not Mar 3).
func addCalendarMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	totalMonths := int(month) - 1 + months
	targetYear := year + totalMonths/12
	targetMonth := totalMonths % 12
	if targetMonth < 0 {
		targetMonth += 12
		targetYear--
	}
	firstOfTarget := time.Date(targetYear, time.Month(targetMonth+1), 1, 0, 0, 0, 0, t.Location())
	lastDayOfTarget := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDayOfTarget {
		day = lastDayOfTarget
	}
	return time.Date(targetYear, time.Month(targetMonth+1), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
