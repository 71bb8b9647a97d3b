package schedule

import (
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// spreadSchedule delays only the first run of an interval schedule so that
// announcements registered together do not all land in the same tick.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *spreadSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

func intervalWithSpread(every time.Duration, now time.Time, name string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	spreadMax := min(every, maxStartupSpread)
	if spreadMax <= 0 {
		return base, 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	rng := rand.New(rand.NewSource(now.UnixNano() ^ int64(h.Sum64())))
	jitter := time.Duration(rng.Int63n(int64(spreadMax)))
	return &spreadSchedule{base: base, first: now.Add(every + jitter)}, jitter
}
