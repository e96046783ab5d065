package models

// Constraints configures one generation run. The value is never mutated during a run.
type Constraints struct {
	StartTime           ClockTime `json:"start_time"`
	EndTime             ClockTime `json:"end_time"`
	PeriodDuration      int       `json:"period_duration"`
	BreakDuration       int       `json:"break_duration"`
	LunchBreakStart     ClockTime `json:"lunch_break_start"`
	LunchBreakDuration  int       `json:"lunch_break_duration"`
	MaxHoursPerDay      int       `json:"max_hours_per_day"`
	MaxConsecutiveHours int       `json:"max_consecutive_hours"`
	NoBackToBackLabs    bool      `json:"no_back_to_back_labs"`
}

// DefaultConstraints mirrors the admin dashboard's pre-filled constraint form.
func DefaultConstraints() Constraints {
	return Constraints{
		StartTime:           MustClockTime("09:00"),
		EndTime:             MustClockTime("17:00"),
		PeriodDuration:      60,
		BreakDuration:       15,
		LunchBreakStart:     MustClockTime("12:00"),
		LunchBreakDuration:  60,
		MaxHoursPerDay:      6,
		MaxConsecutiveHours: 3,
		NoBackToBackLabs:    true,
	}
}

// LunchEnd returns the end of the lunch window.
func (c Constraints) LunchEnd() ClockTime {
	return c.LunchBreakStart.Add(c.LunchBreakDuration)
}
