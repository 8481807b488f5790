package storage

import (
	"bytes"
	"time"
)

// maxStampLen bounds how much of a line the detector looks at.
const maxStampLen = 40

const commonLogLayout = "02/Jan/2006:15:04:05 -0700"

// DetectTimestamp looks for a timestamp at the start of line, optionally
// wrapped in square brackets, and returns it as Unix nanoseconds.
//
// Recognised forms:
//
//	2026-02-13T10:30:45.123+00:00   ISO 8601 with offset
//	2026-02-13T10:30:45Z            ISO 8601 UTC
//	2026-02-13 10:30:45,123         date and time, no zone (UTC)
//	2026/02/13 10:30:45             slash-separated date
//	13/Feb/2026:10:30:45 +0000      common log format
//
// Fractional seconds may use '.' or ','.
func DetectTimestamp(line []byte) (int64, bool) {
	s := line
	if len(s) > 0 && s[0] == '[' {
		head := s[1:]
		if len(head) > maxStampLen+1 {
			head = head[:maxStampLen+1]
		}
		if end := bytes.IndexByte(head, ']'); end > 0 {
			s = head[:end]
		} else {
			s = s[1:]
		}
	}
	if len(s) > maxStampLen {
		s = s[:maxStampLen]
	}
	if len(s) == 0 || !isDigit(s[0]) {
		return NoTimestamp, false
	}

	if ts, ok := parseISO(s); ok {
		return ts, true
	}
	if ts, ok := parseCommonLog(s); ok {
		return ts, true
	}
	return NoTimestamp, false
}

func parseISO(s []byte) (int64, bool) {
	if len(s) < 19 {
		return 0, false
	}
	dateSep := s[4]
	if dateSep != '-' && dateSep != '/' {
		return 0, false
	}
	if s[7] != dateSep || (s[10] != 'T' && s[10] != ' ') || s[13] != ':' || s[16] != ':' {
		return 0, false
	}
	for _, i := range [...]int{0, 1, 2, 3, 5, 6, 8, 9, 11, 12, 14, 15, 17, 18} {
		if !isDigit(s[i]) {
			return 0, false
		}
	}

	end := 19
	if end+1 < len(s) && (s[end] == '.' || s[end] == ',') && isDigit(s[end+1]) {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
		}
	}

	zone := ""
	switch {
	case end < len(s) && s[end] == 'Z':
		zone = "Z07:00"
		end++
	case end+6 <= len(s) && (s[end] == '+' || s[end] == '-') && s[end+3] == ':' &&
		allDigits(s[end+1:end+3]) && allDigits(s[end+4:end+6]):
		zone = "Z07:00"
		end += 6
	case end+5 <= len(s) && (s[end] == '+' || s[end] == '-') && allDigits(s[end+1:end+5]):
		zone = "Z0700"
		end += 5
	}

	layout := "2006-01-02"
	if dateSep == '/' {
		layout = "2006/01/02"
	}
	if s[10] == 'T' {
		layout += "T15:04:05"
	} else {
		layout += " 15:04:05"
	}
	layout += zone

	t, err := time.Parse(layout, string(s[:end]))
	if err != nil {
		return 0, false
	}
	return t.UnixNano(), true
}

func parseCommonLog(s []byte) (int64, bool) {
	if len(s) < len(commonLogLayout) || s[2] != '/' || s[6] != '/' || s[11] != ':' {
		return 0, false
	}
	t, err := time.Parse(commonLogLayout, string(s[:len(commonLogLayout)]))
	if err != nil {
		return 0, false
	}
	return t.UnixNano(), true
}

func isDigit(b byte) bool {
	return '0' <= b && b <= '9'
}

func allDigits(b []byte) bool {
	for _, c := range b {
		if !isDigit(c) {
			return false
		}
	}
	return true
}
