package l2products

// FAA broadcast times are fragments: a day-of-month and hour, an hour
// and minute, a two-digit year. Every helper here reconstructs a full
// UTC timestamp by anchoring the fragment to a reference time, which
// must be the time the message was received (not the wall clock, so
// archived captures replay correctly).

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CleanFAAText strips the trailing whitespace the FAA pads onto every
// line and drops any trailing blank lines.
func CleanFAAText(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t\r")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// DayHourMin reconstructs a full time from an FAA "ddhhmm" (or "ddhh"
// forecast form) string. The day of month is matched against the
// reference date and up to ten days either side of it; an hour of 24
// rolls into hour zero of the next day.
func DayHourMin(ref time.Time, faa string) (time.Time, error) {
	if len(faa) != 4 && len(faa) != 6 {
		return time.Time{}, fmt.Errorf("FAA time %q: want ddhhmm or ddhh", faa)
	}
	day, err1 := strconv.Atoi(faa[0:2])
	hour, err2 := strconv.Atoi(faa[2:4])
	minute := 0
	var err3 error
	if len(faa) == 6 {
		minute, err3 = strconv.Atoi(faa[4:6])
	}
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, fmt.Errorf("FAA time %q: not numeric", faa)
	}

	build := func(date time.Time) time.Time {
		h := hour
		if h == 24 {
			date = date.AddDate(0, 0, 1)
			h = 0
		}
		return time.Date(date.Year(), date.Month(), date.Day(), h, minute, 0, 0, time.UTC)
	}

	refDate := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	if day == ref.Day() {
		return build(refDate), nil
	}

	// Search forward and backward together: the right day is almost
	// always adjacent, and month/year rollover falls out of AddDate.
	forward, backward := refDate, refDate
	for i := 0; i < 10; i++ {
		forward = forward.AddDate(0, 0, 1)
		if forward.Day() == day {
			return build(forward), nil
		}
		backward = backward.AddDate(0, 0, -1)
		if backward.Day() == day {
			return build(backward), nil
		}
	}
	return time.Time{}, fmt.Errorf("FAA time %q: day %d not within 10 days of %s",
		faa, day, ref.Format("2006-01-02"))
}

// FromAPDUHourMin guesses the date an APDU hour and minute refer to:
// the reference date or one day either side, whichever lands closest to
// the reference time. A dead tie between past and future goes to the
// past when favorPast is set.
func FromAPDUHourMin(ref time.Time, hour, minute int, favorPast bool) time.Time {
	refMin := time.Date(ref.Year(), ref.Month(), ref.Day(), ref.Hour(), ref.Minute(), 0, 0, time.UTC)

	now := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, time.UTC)
	plus := now.AddDate(0, 0, 1)
	minus := now.AddDate(0, 0, -1)

	diffNow := absDuration(refMin.Sub(now))
	diffPlus := absDuration(refMin.Sub(plus))
	diffMinus := absDuration(refMin.Sub(minus))

	winner := now
	switch {
	case diffPlus < diffNow && diffPlus <= diffMinus:
		winner = plus
	case diffMinus < diffNow && diffMinus <= diffPlus:
		winner = minus
	}
	if winner != now && diffPlus == diffMinus {
		if favorPast {
			winner = minus
		} else {
			winner = plus
		}
	}
	return winner
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// ComponentsReferenced builds a time from month/day/hour/minute using
// the year of ref, or one year either side, whichever lands closest.
// Handles reports that straddle the new year.
func ComponentsReferenced(ref time.Time, month, day, hour, minute int) time.Time {
	best := time.Time{}
	var bestDiff time.Duration
	for _, year := range []int{ref.Year(), ref.Year() + 1, ref.Year() - 1} {
		t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
		diff := absDuration(ref.Sub(t))
		if best.IsZero() || diff < bestDiff {
			best = t
			bestDiff = diff
		}
	}
	return best
}

// SingleDigitYear resolves a one-digit FAA year against the current
// year: up to four years ahead is the future, otherwise the past.
func SingleDigitYear(currentYear, digit int) int {
	diff := digit - currentYear%10
	switch {
	case diff >= 0 && diff < 5:
		return currentYear + diff
	case diff >= 5:
		return currentYear - (10 - diff)
	case diff <= -6:
		return currentYear + diff + 10
	default:
		return currentYear + diff
	}
}

// DoubleDigitYear resolves a two-digit FAA year against the current
// year: up to 49 years ahead is the future, otherwise the past.
func DoubleDigitYear(currentYear, yy int) int {
	diff := yy - currentYear%100
	switch {
	case diff >= 0 && diff < 50:
		return currentYear + diff
	case diff >= 50:
		return currentYear - (100 - diff)
	case diff <= -60:
		return currentYear + diff + 100
	default:
		return currentYear + diff
	}
}

// NotamTime parses the NOTAM "yymmddHHMM" form.
func NotamTime(currentYear int, faa string) (time.Time, error) {
	if len(faa) != 10 {
		return time.Time{}, fmt.Errorf("NOTAM time %q: want yymmddHHMM", faa)
	}
	var parts [5]int
	for i := 0; i < 5; i++ {
		v, err := strconv.Atoi(faa[i*2 : i*2+2])
		if err != nil {
			return time.Time{}, fmt.Errorf("NOTAM time %q: not numeric", faa)
		}
		parts[i] = v
	}
	year := DoubleDigitYear(currentYear, parts[0])
	return time.Date(year, time.Month(parts[1]), parts[2], parts[3], parts[4], 0, 0, time.UTC), nil
}
