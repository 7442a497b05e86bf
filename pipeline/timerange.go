package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Window is one resolved time range, precomputed in both the nanosecond
// representation the log store wants and the second representation the
// trace search wants.
type Window struct {
	Token    string `json:"token"`
	StartNs  int64  `json:"start_ns"`
	EndNs    int64  `json:"end_ns"`
	StartSec int64  `json:"start_sec"`
	EndSec   int64  `json:"end_sec"`
}

const defaultWindowToken = "1h"

var (
	relativePattern = regexp.MustCompile(`(?i)(?:last\s+|now-)?(\d+)\s*(hours?|hrs?|h|minutes?|mins?|m|days?|d)\b`)
	koreanPattern   = regexp.MustCompile(`(\d+)\s*(분|시간|일|주|개월|달)`)
)

// NormalizeWindow reduces free text to a canonical relative-time token like
// "3h", "30m", "7d". Unrecognized text yields the default window.
func NormalizeWindow(text string) string {
	if m := koreanPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "분":
			return strconv.Itoa(n) + "m"
		case "시간":
			return strconv.Itoa(n) + "h"
		case "일":
			return strconv.Itoa(n) + "d"
		case "주":
			return strconv.Itoa(n*7) + "d"
		case "개월", "달":
			return strconv.Itoa(n*30) + "d"
		}
	}
	if m := relativePattern.FindStringSubmatch(text); m != nil {
		return m[1] + string(strings.ToLower(m[2])[0])
	}
	trimmed := strings.TrimSpace(strings.ToLower(text))
	if ok, _ := regexp.MatchString(`^\d+[hmd]$`, trimmed); ok {
		return trimmed
	}
	return defaultWindowToken
}

// ResolveWindow parses a canonical token into a window ending at now.
func ResolveWindow(token string, now time.Time) Window {
	token = NormalizeWindow(token)
	n, _ := strconv.Atoi(token[:len(token)-1])
	var span time.Duration
	switch token[len(token)-1] {
	case 'm':
		span = time.Duration(n) * time.Minute
	case 'd':
		span = time.Duration(n) * 24 * time.Hour
	default:
		span = time.Duration(n) * time.Hour
	}
	start := now.Add(-span)
	return Window{
		Token:    token,
		StartNs:  start.UnixNano(),
		EndNs:    now.UnixNano(),
		StartSec: start.Unix(),
		EndSec:   now.Unix(),
	}
}
