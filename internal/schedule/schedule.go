// Package schedule decides when automations fire and dispatches the due
// ones. The evaluator is a pure predicate over an automation's schedule
// and a caller-supplied instant; the dispatcher polls it periodically.
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
)

const (
	// matchWindow is the tolerance around the scheduled minute. The
	// dispatcher polls every 15 minutes, so a due automation is matched
	// on the poll nearest its scheduled time rather than the exact minute.
	matchWindow = 15

	// rerunInterval is the minimum wall-clock gap between two runs of the
	// same automation. It stops an automation from firing again on a later
	// poll that still lands inside the same match window.
	rerunInterval = time.Hour
)

// IsAutomationDue reports whether the automation should execute at now.
//
// now must already be in the automation's reference frame: the evaluator is
// timezone-naive and the caller converts now into Schedule.Timezone first.
// Schedule.Time is guaranteed well-formed "HH:mm" by validation at creation
// time; the evaluator does not defend against malformed input.
//
// The minute-of-day comparison is not circular: a schedule at 23:55 does
// not match a poll at 00:05 the next day. That boundary is intentional and
// kept as-is (see DESIGN.md).
func IsAutomationDue(a *domain.Automation, now time.Time) bool {
	s := a.Schedule
	if s == nil {
		return false
	}

	if s.Frequency == domain.FrequencyWeekly {
		day := strings.ToLower(now.Weekday().String())
		if !containsDay(s.Days, day) {
			return false
		}
	}

	scheduleMinutes := minutesOfDay(s.Time)
	currentMinutes := now.Hour()*60 + now.Minute()

	diff := currentMinutes - scheduleMinutes
	if diff < 0 {
		diff = -diff
	}
	if diff > matchWindow {
		return false
	}

	if a.LastRunAt != nil && now.Sub(*a.LastRunAt) < rerunInterval {
		return false
	}

	return true
}

// ValidateSchedule checks a schedule at automation-creation time so the
// evaluator's preconditions hold by the time a record reaches it.
func ValidateSchedule(s *domain.Schedule) error {
	if s == nil {
		return domain.ErrInvalidSchedule
	}

	switch s.Frequency {
	case domain.FrequencyDaily:
	case domain.FrequencyWeekly:
		if len(s.Days) == 0 {
			return domain.ErrInvalidSchedule
		}
		for _, d := range s.Days {
			if !validDay(d) {
				return domain.ErrInvalidSchedule
			}
		}
	default:
		return domain.ErrInvalidSchedule
	}

	hh, mm, ok := strings.Cut(s.Time, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return domain.ErrInvalidSchedule
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return domain.ErrInvalidSchedule
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return domain.ErrInvalidSchedule
	}

	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return domain.ErrInvalidSchedule
		}
	}

	return nil
}

// minutesOfDay parses a pre-validated "HH:mm" string.
func minutesOfDay(clock string) int {
	hh, mm, _ := strings.Cut(clock, ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return h*60 + m
}

func containsDay(days []string, day string) bool {
	for _, d := range days {
		if strings.EqualFold(d, day) {
			return true
		}
	}
	return false
}

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

func validDay(day string) bool {
	return weekdays[strings.ToLower(day)]
}
