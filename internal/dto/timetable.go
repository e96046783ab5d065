package dto

import (
	"github.com/noah-isme/campus-timetable-api/internal/models"
)

// ConstraintsRequest carries the constraint form. Omitted fields take the default values.
type ConstraintsRequest struct {
	StartTime           *string `json:"startTime" validate:"omitempty,datetime=15:04"`
	EndTime             *string `json:"endTime" validate:"omitempty,datetime=15:04"`
	PeriodDuration      *int    `json:"periodDuration" validate:"omitempty,min=1,max=480"`
	BreakDuration       *int    `json:"breakDuration" validate:"omitempty,min=0,max=240"`
	LunchBreakStart     *string `json:"lunchBreakStart" validate:"omitempty,datetime=15:04"`
	LunchBreakDuration  *int    `json:"lunchBreakDuration" validate:"omitempty,min=0,max=240"`
	MaxHoursPerDay      *int    `json:"maxHoursPerDay" validate:"omitempty,min=1,max=24"`
	MaxConsecutiveHours *int    `json:"maxConsecutiveHours" validate:"omitempty,min=1,max=24"`
	NoBackToBackLabs    *bool   `json:"noBackToBackLabs"`
}

// ToConstraints overlays the provided fields on the default constraints.
func (r *ConstraintsRequest) ToConstraints() (models.Constraints, error) {
	c := models.DefaultConstraints()
	if r == nil {
		return c, nil
	}
	for _, field := range []struct {
		raw *string
		dst *models.ClockTime
	}{
		{r.StartTime, &c.StartTime},
		{r.EndTime, &c.EndTime},
		{r.LunchBreakStart, &c.LunchBreakStart},
	} {
		if field.raw == nil {
			continue
		}
		parsed, err := models.ParseClockTime(*field.raw)
		if err != nil {
			return models.Constraints{}, err
		}
		*field.dst = parsed
	}
	if r.PeriodDuration != nil {
		c.PeriodDuration = *r.PeriodDuration
	}
	if r.BreakDuration != nil {
		c.BreakDuration = *r.BreakDuration
	}
	if r.LunchBreakDuration != nil {
		c.LunchBreakDuration = *r.LunchBreakDuration
	}
	if r.MaxHoursPerDay != nil {
		c.MaxHoursPerDay = *r.MaxHoursPerDay
	}
	if r.MaxConsecutiveHours != nil {
		c.MaxConsecutiveHours = *r.MaxConsecutiveHours
	}
	if r.NoBackToBackLabs != nil {
		c.NoBackToBackLabs = *r.NoBackToBackLabs
	}
	return c, nil
}

// GenerateTimetableRequest asks for a timetable for the given batches.
type GenerateTimetableRequest struct {
	BatchIDs    []string            `json:"batchIds" validate:"required,min=1,dive,required"`
	Constraints *ConstraintsRequest `json:"constraints"`
	Async       bool                `json:"async"`
}

// GenerateTimetableResponse returns the persisted entries and the run report.
type GenerateTimetableResponse struct {
	RunID    string                     `json:"runId"`
	Status   models.GenerationRunStatus `json:"status"`
	Entries  []models.TimetableEntry    `json:"entries,omitempty"`
	Replaced int64                      `json:"replaced"`
	Report   *models.GenerationReport   `json:"report,omitempty"`
}

// TimetableView is a batch or faculty timetable enriched with display names.
type TimetableView struct {
	Scope   string                        `json:"scope"`
	ID      string                        `json:"id"`
	Name    string                        `json:"name,omitempty"`
	Entries []models.TimetableEntryDetail `json:"entries"`
}
