package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a normalized schedule string.
//
// Supported forms:
//   - cron: "*/5 * * * *", "0 30 9 * * *" (optional seconds), "@hourly", "@every 55m"
//   - interval duration: "55m", "2h30m"
//   - interval HH:MM: "00:50" (50 minutes), "02:30"
//
// "cron:" forces cron parsing; "interval:" and "every:" force intervals.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	if rest, ok := cutPrefixFold(s, low, "cron:"); ok {
		if rest == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: rest, Source: "cron"}, nil
	}
	for _, p := range []string{"interval:", "every:"} {
		if rest, ok := cutPrefixFold(s, low, p); ok {
			d, src, err := parseInterval(rest)
			if err != nil {
				return ParsedSpec{}, err
			}
			return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
		}
	}

	// whitespace or a descriptor means cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	if d, src, err := parseInterval(s); err == nil {
		return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
	}
	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')",
		raw,
	)
}

func cutPrefixFold(s, low, prefix string) (string, bool) {
	if !strings.HasPrefix(low, prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	src := "duration"
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, "", fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		src = "hhmm"
	} else {
		var err error
		d, err = time.ParseDuration(v)
		if err != nil {
			return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h30m')", v)
		}
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, src, nil
}
