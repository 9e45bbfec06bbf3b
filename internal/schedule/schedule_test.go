package schedule

import (
	"testing"
	"time"

	"github.com/adpulse/adpulse/internal/domain"
)

// 2026-03-02 is a Monday.
func mondayAt(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func weeklyMonday(at string) *domain.Automation {
	return &domain.Automation{
		ID: "a1",
		Schedule: &domain.Schedule{
			Frequency: domain.FrequencyWeekly,
			Time:      at,
			Days:      []string{"monday"},
		},
	}
}

func TestIsAutomationDue_NilSchedule(t *testing.T) {
	a := &domain.Automation{ID: "a1"}
	if IsAutomationDue(a, mondayAt(9, 0)) {
		t.Error("automation without schedule should never be due")
	}
}

func TestIsAutomationDue_WeeklyDayGate(t *testing.T) {
	a := weeklyMonday("09:00")

	if !IsAutomationDue(a, mondayAt(9, 10)) {
		t.Error("weekly monday schedule should be due monday 09:10")
	}

	tuesday := mondayAt(9, 10).AddDate(0, 0, 1)
	if IsAutomationDue(a, tuesday) {
		t.Error("weekly monday schedule should not be due on tuesday")
	}
}

func TestIsAutomationDue_DailyIgnoresDays(t *testing.T) {
	a := &domain.Automation{
		ID: "a1",
		Schedule: &domain.Schedule{
			Frequency: domain.FrequencyDaily,
			Time:      "09:00",
			// Days is meaningless for daily schedules and must be ignored.
			Days: []string{"friday"},
		},
	}

	for d := 0; d < 7; d++ {
		now := mondayAt(9, 0).AddDate(0, 0, d)
		if !IsAutomationDue(a, now) {
			t.Errorf("daily schedule should be due on %s", now.Weekday())
		}
	}
}

func TestIsAutomationDue_TimeWindow(t *testing.T) {
	a := weeklyMonday("09:00")

	tests := []struct {
		now  time.Time
		want bool
	}{
		{mondayAt(8, 44), false}, // 16 minutes early
		{mondayAt(8, 45), true},  // inclusive lower boundary
		{mondayAt(9, 0), true},
		{mondayAt(9, 15), true},  // inclusive upper boundary
		{mondayAt(9, 16), false}, // one minute past the window
	}

	for _, tt := range tests {
		if got := IsAutomationDue(a, tt.now); got != tt.want {
			t.Errorf("IsAutomationDue at %02d:%02d = %v, want %v",
				tt.now.Hour(), tt.now.Minute(), got, tt.want)
		}
	}
}

func TestIsAutomationDue_NoMidnightWraparound(t *testing.T) {
	a := &domain.Automation{
		ID: "a1",
		Schedule: &domain.Schedule{
			Frequency: domain.FrequencyDaily,
			Time:      "23:55",
		},
	}

	// The minute-of-day diff is deliberately non-circular: 00:05 the next
	// day is 1430 minutes away from 23:55, not 10.
	if IsAutomationDue(a, mondayAt(0, 5)) {
		t.Error("23:55 schedule must not match 00:05")
	}
	if !IsAutomationDue(a, mondayAt(23, 55)) {
		t.Error("23:55 schedule should match 23:55")
	}
}

func TestIsAutomationDue_RerunGate(t *testing.T) {
	a := weeklyMonday("09:00")
	now := mondayAt(9, 10)

	recent := now.Add(-30 * time.Minute)
	a.LastRunAt = &recent
	if IsAutomationDue(a, now) {
		t.Error("automation run 30 minutes ago should not re-fire")
	}

	older := now.Add(-61 * time.Minute)
	a.LastRunAt = &older
	if !IsAutomationDue(a, now) {
		t.Error("automation run 61 minutes ago should fire again")
	}
}

func TestIsAutomationDue_RerunGateExactHour(t *testing.T) {
	a := weeklyMonday("09:00")
	now := mondayAt(9, 0)

	exactly := now.Add(-time.Hour)
	a.LastRunAt = &exactly
	if !IsAutomationDue(a, now) {
		t.Error("elapsed of exactly one hour is not less than the gate")
	}
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name    string
		s       *domain.Schedule
		wantErr bool
	}{
		{"nil", nil, true},
		{"daily", &domain.Schedule{Frequency: domain.FrequencyDaily, Time: "09:00"}, false},
		{"weekly", &domain.Schedule{Frequency: domain.FrequencyWeekly, Time: "09:00", Days: []string{"monday", "friday"}}, false},
		{"weekly no days", &domain.Schedule{Frequency: domain.FrequencyWeekly, Time: "09:00"}, true},
		{"bad day", &domain.Schedule{Frequency: domain.FrequencyWeekly, Time: "09:00", Days: []string{"funday"}}, true},
		{"bad frequency", &domain.Schedule{Frequency: "hourly", Time: "09:00"}, true},
		{"bad time", &domain.Schedule{Frequency: domain.FrequencyDaily, Time: "9am"}, true},
		{"hour out of range", &domain.Schedule{Frequency: domain.FrequencyDaily, Time: "24:00"}, true},
		{"minute out of range", &domain.Schedule{Frequency: domain.FrequencyDaily, Time: "09:60"}, true},
		{"short time", &domain.Schedule{Frequency: domain.FrequencyDaily, Time: "9:00"}, true},
		{"timezone", &domain.Schedule{Frequency: domain.FrequencyDaily, Time: "09:00", Timezone: "America/New_York"}, false},
		{"bad timezone", &domain.Schedule{Frequency: domain.FrequencyDaily, Time: "09:00", Timezone: "Mars/Olympus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSchedule(tt.s)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSchedule() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
