package proxy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TimeFormat identifies how a playback timestamp spells its timezone.
type TimeFormat int

const (
	// TimeFormatNone is a bare timestamp with no suffix.
	TimeFormatNone TimeFormat = iota
	// TimeFormatUTC carries a trailing Z (or z).
	TimeFormatUTC
	// TimeFormatOffset carries a +HHMM / -HHMM suffix.
	TimeFormatOffset
	// TimeFormatOffsetColon carries a +HH:MM / -HH:MM suffix.
	TimeFormatOffsetColon
)

// ErrBadTimestamp is returned for any value that is not YYYYMMDDTHHMMSS with
// an optional Z, +HHMM or +HH:MM suffix.
var ErrBadTimestamp = errors.New("malformed playback timestamp")

// Timestamp is a parsed playback instant: UTC epoch seconds plus the notation
// it was written in, so the instant can be re-rendered identically.
type Timestamp struct {
	Epoch  int64
	Format TimeFormat
	Offset int // timezone offset in seconds, signed
}

// ParseTimestamp parses the compact playback timestamp format. The calendar
// fields are interpreted as wall time at the parsed offset; the returned
// epoch is that wall time converted to UTC.
func ParseTimestamp(value string) (Timestamp, error) {
	if len(value) < 15 {
		return Timestamp{}, ErrBadTimestamp
	}

	work := value
	format := TimeFormatNone
	offset := 0
	if last := work[len(work)-1]; last == 'Z' || last == 'z' {
		format = TimeFormatUTC
		work = work[:len(work)-1]
	} else if pos := strings.LastIndexAny(work, "+-"); pos > 8 {
		// A sign at index <= 8 belongs to the date digits, not a suffix.
		tz := work[pos:]
		sign := 1
		if tz[0] == '-' {
			sign = -1
		}
		var digits []byte
		colons := 0
		for i := 1; i < len(tz); i++ {
			if tz[i] == ':' {
				colons++
				continue
			}
			if tz[i] < '0' || tz[i] > '9' {
				return Timestamp{}, ErrBadTimestamp
			}
			digits = append(digits, tz[i])
		}
		if len(digits) != 4 || colons > 1 {
			return Timestamp{}, ErrBadTimestamp
		}
		hours, _ := strconv.Atoi(string(digits[:2]))
		minutes, _ := strconv.Atoi(string(digits[2:]))
		if minutes >= 60 {
			return Timestamp{}, ErrBadTimestamp
		}
		offset = sign * (hours*3600 + minutes*60)
		if colons == 1 {
			format = TimeFormatOffsetColon
		} else {
			format = TimeFormatOffset
		}
		work = work[:pos]
	}

	if len(work) != 15 || work[8] != 'T' {
		return Timestamp{}, ErrBadTimestamp
	}
	for i := 0; i < len(work); i++ {
		if i == 8 {
			continue
		}
		if work[i] < '0' || work[i] > '9' {
			return Timestamp{}, ErrBadTimestamp
		}
	}

	year, _ := strconv.Atoi(work[0:4])
	month, _ := strconv.Atoi(work[4:6])
	day, _ := strconv.Atoi(work[6:8])
	hour, _ := strconv.Atoi(work[9:11])
	minute, _ := strconv.Atoi(work[11:13])
	sec, _ := strconv.Atoi(work[13:15])

	if month < 1 || month > 12 {
		return Timestamp{}, ErrBadTimestamp
	}
	if day < 1 || day > daysInMonth(year, month) {
		return Timestamp{}, ErrBadTimestamp
	}
	// A seconds value of 60 is accepted verbatim, no leap-second handling.
	if hour > 23 || minute > 59 || sec > 60 {
		return Timestamp{}, ErrBadTimestamp
	}

	return Timestamp{
		Epoch:  epochFromDate(year, month, day, hour, minute, sec) - int64(offset),
		Format: format,
		Offset: offset,
	}, nil
}

// FormatTimestamp renders epoch seconds in the given notation. For the offset
// formats the epoch is re-localized (offset added back) before decomposing;
// the bare and Z forms decompose the epoch value directly. The asymmetry with
// ParseTimestamp is part of the resume wire contract.
func FormatTimestamp(epoch int64, format TimeFormat, offset int) string {
	local := epoch
	if format == TimeFormatOffset || format == TimeFormatOffsetColon {
		local += int64(offset)
	}
	year, month, day, hour, minute, sec := dateFromEpoch(local)

	out := fmt.Sprintf("%04d%02d%02dT%02d%02d%02d", year, month, day, hour, minute, sec)
	switch format {
	case TimeFormatUTC:
		out += "Z"
	case TimeFormatOffset, TimeFormatOffsetColon:
		sign := byte('+')
		total := offset
		if total < 0 {
			sign = '-'
			total = -total
		}
		if format == TimeFormatOffsetColon {
			out += fmt.Sprintf("%c%02d:%02d", sign, total/3600, (total%3600)/60)
		} else {
			out += fmt.Sprintf("%c%02d%02d", sign, total/3600, (total%3600)/60)
		}
	}
	return out
}

func isLeapYear(year int) bool {
	if year%4 != 0 {
		return false
	}
	if year%100 != 0 {
		return true
	}
	return year%400 == 0
}

// daysInMonth expects a 1-based month.
func daysInMonth(year, month int) int {
	days := [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}[month-1]
	if month == 2 && isLeapYear(year) {
		days++
	}
	return days
}

// cumulativeDays[m-1] is the number of days before month m in a common year.
var cumulativeDays = [12]int64{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

// epochFromDate converts proleptic-Gregorian calendar fields to seconds since
// the Unix epoch, walking whole years in either direction from 1970.
func epochFromDate(year, month, day, hour, minute, sec int) int64 {
	var days int64
	if year >= 1970 {
		for y := 1970; y < year; y++ {
			if isLeapYear(y) {
				days += 366
			} else {
				days += 365
			}
		}
	} else {
		for y := 1969; y >= year; y-- {
			if isLeapYear(y) {
				days -= 366
			} else {
				days -= 365
			}
		}
	}
	days += cumulativeDays[month-1]
	if month > 2 && isLeapYear(year) {
		days++
	}
	days += int64(day - 1)
	return days*86400 + int64(hour)*3600 + int64(minute)*60 + int64(sec)
}

// dateFromEpoch is the inverse of epochFromDate. The day count uses floor
// division so negative epochs resolve to the correct calendar day.
func dateFromEpoch(seconds int64) (year, month, day, hour, minute, sec int) {
	days := seconds / 86400
	remain := seconds % 86400
	if remain < 0 {
		remain += 86400
		days--
	}
	hour = int(remain / 3600)
	minute = int(remain % 3600 / 60)
	sec = int(remain % 60)

	year = 1970
	if days >= 0 {
		for {
			diy := int64(365)
			if isLeapYear(year) {
				diy = 366
			}
			if days < diy {
				break
			}
			days -= diy
			year++
		}
	} else {
		for days < 0 {
			year--
			if isLeapYear(year) {
				days += 366
			} else {
				days += 365
			}
		}
	}

	month = 1
	for month < 12 {
		dim := int64(daysInMonth(year, month))
		if days < dim {
			break
		}
		days -= dim
		month++
	}
	day = int(days) + 1
	return year, month, day, hour, minute, sec
}
