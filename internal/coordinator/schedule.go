package coordinator

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bastionhq/bastion/internal/domain"
	"github.com/bastionhq/bastion/internal/usecase"
)

// maybeStartScheduledLocked auto-starts a session when the current time
// falls inside an enabled schedule window. Each window fires at most
// once per day, so a user-stopped session does not restart until the
// next occurrence. Caller holds c.mu.
func (c *Coordinator) maybeStartScheduledLocked(now time.Time) {
	if c.schedules == nil {
		return
	}

	schedules, err := c.schedules.GetSchedules()
	if err != nil {
		c.logger.Warn("schedule fetch failed", zap.Error(err))
		return
	}

	for _, s := range schedules {
		if !s.Enabled {
			continue
		}
		end, open := scheduleWindow(s, now)
		if !open {
			continue
		}
		key := fmt.Sprintf("%d@%s", s.ID, now.Format("2006-01-02"))
		if _, fired := c.firedWindows[key]; fired {
			continue
		}
		c.firedWindows[key] = struct{}{}

		duration := end.Sub(now)
		if duration > usecase.MaxSessionDuration {
			duration = usecase.MaxSessionDuration
		}
		if duration < usecase.MinSessionDuration {
			c.logger.Debug("schedule window too short, skipping",
				zap.Int64("schedule_id", s.ID))
			continue
		}

		if _, err := c.session.Start(s.Name, duration, s.Hardcore); err != nil {
			c.logger.Warn("scheduled session start failed",
				zap.Int64("schedule_id", s.ID), zap.Error(err))
			continue
		}
		c.logger.Info("scheduled session started",
			zap.Int64("schedule_id", s.ID),
			zap.String("name", s.Name),
			zap.Duration("duration", duration),
			zap.Bool("hardcore", s.Hardcore))
		return
	}
}

// scheduleWindow reports whether now falls inside the schedule's window
// on one of its active days, and if so the window's end time. Windows
// are same-day only; malformed times close the window.
func scheduleWindow(s domain.Schedule, now time.Time) (time.Time, bool) {
	if !dayMatches(s.Days, now.Weekday()) {
		return time.Time{}, false
	}
	start, err := atClockTime(now, s.StartTime)
	if err != nil {
		return time.Time{}, false
	}
	end, err := atClockTime(now, s.EndTime)
	if err != nil {
		return time.Time{}, false
	}
	if !end.After(start) {
		return time.Time{}, false
	}
	if now.Before(start) || !now.Before(end) {
		return time.Time{}, false
	}
	return end, true
}

// dayMatches checks a weekday against short day names ("Mon".."Sun").
func dayMatches(days []string, weekday time.Weekday) bool {
	short := weekday.String()[:3]
	for _, d := range days {
		if d == short {
			return true
		}
	}
	return false
}

// atClockTime resolves an "HH:MM" string onto now's calendar day.
func atClockTime(now time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), 0, 0, now.Location()), nil
}
