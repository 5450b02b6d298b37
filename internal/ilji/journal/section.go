package journal

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateMarker matches "2월 18일" (year from the clock) and "2026-02-18".
var dateMarker = regexp.MustCompile(`(\d{1,2})월\s*(\d{1,2})일|(\d{4})-(\d{2})-(\d{2})`)

// SectionByDate partitions free text into one record per date marker. The
// text after a marker, up to the next marker, becomes that record's notes,
// one note per non-blank line. Text before the first marker belongs to the
// first section. Repeated dates merge into the first record for that date.
// Markers naming impossible dates are left in place as ordinary text.
//
// Without any marker the whole text becomes one record dated today (now's
// calendar day). Blank text yields no records.
func SectionByDate(s string, now time.Time) []Record {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	type marker struct {
		start, end int
		date       string
	}
	var markers []marker
	for _, m := range dateMarker.FindAllStringSubmatchIndex(s, -1) {
		if !digitBounded(s, m) {
			continue
		}
		date, ok := resolveMarker(s, m, now.Year())
		if !ok {
			continue
		}
		markers = append(markers, marker{start: m[0], end: m[1], date: date})
	}

	if len(markers) == 0 {
		today := now.Format(time.DateOnly)
		return []Record{{Date: today, Weekday: WeekdayOf(today), Notes: lines(s)}}
	}

	var (
		out   []Record
		index = make(map[string]int)
	)
	for i, mk := range markers {
		end := len(s)
		if i+1 < len(markers) {
			end = markers[i+1].start
		}
		body := s[mk.end:end]
		if i == 0 {
			body = s[:mk.start] + "\n" + body
		}

		if at, seen := index[mk.date]; seen {
			out[at].Notes = append(out[at].Notes, lines(body)...)
			continue
		}
		index[mk.date] = len(out)
		out = append(out, Record{Date: mk.date, Weekday: WeekdayOf(mk.date), Notes: lines(body)})
	}
	return out
}

// digitBounded rejects markers cut out of a longer number, such as the
// "0261-02-18" inside "20261-02-18" or "12월" inside "112월".
func digitBounded(s string, m []int) bool {
	if m[0] > 0 && isDigit(s[m[0]-1]) {
		return false
	}
	if m[6] >= 0 && m[1] < len(s) && isDigit(s[m[1]]) {
		return false
	}
	return true
}

func isDigit(b byte) bool { return '0' <= b && b <= '9' }

// resolveMarker turns a regexp submatch index slice into an ISO date.
func resolveMarker(s string, m []int, year int) (string, bool) {
	group := func(i int) (int, bool) {
		if m[2*i] < 0 {
			return 0, false
		}
		n, err := strconv.Atoi(s[m[2*i]:m[2*i+1]])
		return n, err == nil
	}

	var y, mo, d int
	if month, ok := group(1); ok {
		day, _ := group(2)
		y, mo, d = year, month, day
	} else {
		y, _ = group(3)
		mo, _ = group(4)
		d, _ = group(5)
	}

	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (2월 30일 → 3월 2일); reject instead.
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return "", false
	}
	return t.Format(time.DateOnly), true
}

func lines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		for _, bullet := range []string{"- ", "* ", "• "} {
			l = strings.TrimPrefix(l, bullet)
		}
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
